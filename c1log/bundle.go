package c1log

import (
	"github.com/juju/errors"

	"github.com/kvdb/c1kv/internal/obslog"
	"github.com/kvdb/c1kv/mlogpool"
)

// maxBundleIOVs bounds how many gather-vector entries a single bundle
// append may require (spec §4.3's iovec-index-overflow edge case). It is
// generous relative to any bundle this package expects to see in one
// ingest call; tripping it is a caller error, not a capacity failure.
const maxBundleIOVs = 4096

// IssueBundle serializes one key-value bundle into the log (spec §4.3): it
// validates the caller's declared aggregates against what walking Keys
// actually produces, lays out a header region in the handle's scratch
// buffer, and emits the bundle as two atomic mlog appends — the fixed-size
// KVB header record, then the gather-vector payload record — under the
// handle's single ingest mutex. The payload append honors the caller's sync
// flag (the header append's sync behavior is left unspecified, per spec
// §4.3). On success it advances the committed counters and the max observed
// value sequence; on any failure no counter changes and the error is traced
// with the point of failure. If the header append succeeds and the payload
// append then fails, the header record stays on the mlog without its
// payload: nothing is truncated.
func (h *Handle) IssueBundle(b *Bundle, txnID, ingestID, mutation uint64, sync bool) (seqno uint64, err error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}

	if err := validateBundleAggregates(b); err != nil {
		return 0, errors.Trace(err)
	}

	layout := computeBundleLayout(b)
	if layout.iovCount+1 > maxBundleIOVs {
		return 0, errors.Annotatef(ErrInvalidArgument, "bundle needs %d iovecs", layout.iovCount+1)
	}

	h.ingestMu.Lock()
	defer h.ingestMu.Unlock()

	scratch, overCeiling, err := ensureScratch(h.scratch, layout.total, h.tun)
	if err != nil {
		return 0, errors.Annotate(err, "c1log: issue_bundle: scratch grow")
	}

	iovs := make([]mlogpool.IOVec, 0, layout.iovCount)
	totalPayload := 0
	off := uint64(0)

	for ki := range b.Keys {
		k := &b.Keys[ki]

		khStart := off
		off += alignUp16(uint64(keyHeaderSize))
		kh := scratch[khStart : khStart+keyHeaderSize]
		putKeyHeader(kh, uint32(len(k.Key)), k.ContainerID, k.ValueLen, k.ValueCount)

		iovs = append(iovs, mlogpool.IOVec{Base: kh})
		iovs = append(iovs, mlogpool.IOVec{Base: k.Key})
		totalPayload += len(kh) + len(k.Key)

		for vi := range k.Values {
			v := &k.Values[vi]

			vhStart := off
			off += alignUp16(uint64(valueHeaderSize))
			vh := scratch[vhStart : vhStart+valueHeaderSize]
			putValueHeader(vh, v.Seq, v.Len(), v.Tomb, logTypeMLog)

			iovs = append(iovs, mlogpool.IOVec{Base: vh})
			iovs = append(iovs, mlogpool.IOVec{Base: v.Value})
			totalPayload += len(vh) + len(v.Value)
		}
	}

	minPrefix, minFull := keyPrefix(b.MinKey)
	maxPrefix, maxFull := keyPrefix(b.MaxKey)
	_ = minFull
	_ = maxFull

	seq := h.seqno.Add(1)
	hdr := encodeBundleHeader(bundleHeader{
		Seqno:              seq,
		TxnID:              txnID,
		Gen:                uint32(h.gen.Load()),
		Mutation:           mutation,
		KeyCount:           b.KeyCount,
		CumulativeKeyCount: h.committedKeyCount.Load() + uint64(b.KeyCount),
		PayloadSize:        uint64(totalPayload),
		MinSeq:             b.MinSeq,
		MaxSeq:             b.MaxSeq,
		MinKeyLen:          minFull,
		MaxKeyLen:          maxFull,
		MinKeyPrefix:       minPrefix,
		MaxKeyPrefix:       maxPrefix,
		IngestID:           ingestID,
	})

	if err := h.mlh.Append([]mlogpool.IOVec{{Base: hdr}}, len(hdr), false); err != nil {
		h.seqno.Sub(1)
		h.logAppendFailure("header", seq, hdr, err)
		return 0, errors.Annotate(err, "c1log: issue_bundle: mlog_append header")
	}

	if err := h.mlh.Append(iovs, totalPayload, sync); err != nil {
		h.seqno.Sub(1)
		failed := make([]byte, 0, totalPayload)
		for _, v := range iovs {
			failed = append(failed, v.Base...)
		}
		h.logAppendFailure("payload", seq, failed, err)
		return 0, errors.Annotate(err, "c1log: issue_bundle: mlog_append payload")
	}

	h.committedKeyCount.Add(uint64(b.KeyCount))
	h.committedKeyTupleCount.Add(uint64(len(b.Keys)))
	h.committedValueTupleCount.Add(uint64(b.ValueCount))

	for ki := range b.Keys {
		for vi := range b.Keys[ki].Values {
			vseq := b.Keys[ki].Values[vi].Seq
			if vseq == InvalidSeq {
				continue
			}
			for {
				cur := h.maxValueSeq.Load()
				if cur != InvalidSeq && cur >= vseq {
					break
				}
				if h.maxValueSeq.CAS(cur, vseq) {
					break
				}
			}
		}
	}

	h.pendingMu.Lock()
	h.pendingBundles = append(h.pendingBundles, seq)
	h.pendingMu.Unlock()

	h.scratch = releaseIfOverCeiling(scratch, overCeiling)

	return seq, nil
}

// logAppendFailure records mlog length and reserved bytes alongside a
// checksum of the bytes that were about to be appended, for diagnosing a
// failed append after the fact (spec §4.3's "log mlog length and reserved
// bytes for diagnostics"). The length query's own failure is logged too
// rather than silently dropped.
func (h *Handle) logAppendFailure(stage string, seq uint64, payload []byte, appendErr error) {
	length, lenErr := h.mlh.Len()
	sum := PayloadChecksum(payload)
	if lenErr != nil {
		obslog.Errorf("c1log: issue_bundle: %s append failed seq=%d mlog_len_err=%v reserved=%d checksum=%x: %v",
			stage, seq, lenErr, h.reserved.Reserved(), sum, appendErr)
		return
	}
	obslog.Errorf("c1log: issue_bundle: %s append failed seq=%d mlog_len=%d reserved=%d checksum=%x: %v",
		stage, seq, length, h.reserved.Reserved(), sum, appendErr)
}

// validateBundleAggregates reproduces spec §4.3's vtacount/vtalen residual
// check: walking Keys/Values must exactly reconstruct the caller's declared
// KeyCount/ValueCount (bundle-level) and ValueCount/ValueLen (per key).
// Any disagreement is a corrupt caller aggregate, surfaced as ErrIO.
func validateBundleAggregates(b *Bundle) error {
	var totalValues uint32

	for ki := range b.Keys {
		k := &b.Keys[ki]

		var vc uint32
		var vl uint64
		for _, v := range k.Values {
			vc++
			vl += v.Len()
		}

		if vc != k.ValueCount || vl != k.ValueLen {
			return errors.Annotatef(ErrIO, "key %d: declared vc=%d vl=%d walked vc=%d vl=%d",
				ki, k.ValueCount, k.ValueLen, vc, vl)
		}

		totalValues += vc
	}

	if uint32(len(b.Keys)) != b.KeyCount {
		return errors.Annotatef(ErrIO, "bundle: declared key_count=%d walked=%d", b.KeyCount, len(b.Keys))
	}
	if totalValues != b.ValueCount {
		return errors.Annotatef(ErrIO, "bundle: declared value_count=%d walked=%d", b.ValueCount, totalValues)
	}

	return nil
}
