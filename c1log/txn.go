package c1log

import (
	"github.com/juju/errors"

	"github.com/kvdb/c1kv/mlogpool"
)

// IssueTxn appends a single fixed-size TXN record under the ingest mutex,
// honoring the caller's sync flag (spec §4.4). Unlike IssueBundle this is
// always a single mlog append: there is no variable-length payload to
// gather.
func (h *Handle) IssueTxn(t TxnDescriptor, mutation uint64, sync bool) error {
	if h.closed.Load() {
		return ErrClosed
	}

	t.Seq = h.seqno.Add(1)
	t.Gen = uint32(h.gen.Load())

	buf := encodeTxnRecord(t, mutation)

	h.ingestMu.Lock()
	defer h.ingestMu.Unlock()

	if err := h.mlh.Append([]mlogpool.IOVec{{Base: buf}}, len(buf), sync); err != nil {
		h.seqno.Sub(1)
		return errors.Annotate(err, "c1log: issue_txn: mlog_append")
	}

	h.pendingMu.Lock()
	h.pendingTxns = append(h.pendingTxns, t.Seq)
	h.pendingMu.Unlock()

	return nil
}
