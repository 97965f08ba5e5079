package c1log

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/kvdb/c1kv/internal/obslog"
	"github.com/kvdb/c1kv/mlogpool"
)

// Create performs the first phase of two-phase log creation (spec §4.1):
// it requests an mlog of the given capacity, preferring mlogpool.ClassStaging
// and falling back to mlogpool.ClassCapacity when the pool has no staging
// media. On failure the returned Descriptor is the zero value.
func Create(pool mlogpool.Pool, capacity uint64) (Descriptor, error) {
	class := mlogpool.ClassStaging
	if !pool.ProbeClass(class) {
		class = mlogpool.ClassCapacity
	}

	id, props, err := pool.Alloc(class, mlogpool.AllocParams{Capacity: capacity})
	if err != nil {
		return Descriptor{}, errors.Wrapf(err, "c1log: create: mlog_alloc class=%s", class)
	}

	return Descriptor{ObjectID: id, Class: props.Class}, nil
}

// Make commits a previously allocated Descriptor (spec §4.1's "make"). On
// commit failure it best-effort aborts the allocation and returns the
// original commit error, never the abort error. On success it opens the
// log, writes the format header, and closes it: the log now exists durably
// and may be opened by any later caller via Open.
func Make(pool mlogpool.Pool, desc Descriptor, seqno uint64, gen uint32, mdcoid1, mdcoid2, capacity uint64, tun Tunables) error {
	if err := pool.Commit(desc.ObjectID); err != nil {
		if abortErr := pool.Abort(desc.ObjectID); abortErr != nil {
			obslog.Warnf("c1log: make: best-effort abort of %d also failed: %v", desc.ObjectID, abortErr)
		}
		return errors.Wrapf(err, "c1log: make: mlog_commit %d", desc.ObjectID)
	}

	h, err := Open(pool, desc, seqno, gen, mdcoid1, mdcoid2, capacity, tun)
	if err != nil {
		return err
	}

	if err := h.writeFormatHeader(); err != nil {
		_ = h.Close()
		return err
	}

	return h.Close()
}

// Abort releases an allocated-but-not-committed Descriptor.
func Abort(pool mlogpool.Pool, desc Descriptor) error {
	if err := pool.Abort(desc.ObjectID); err != nil {
		return errors.Wrapf(err, "c1log: abort: mlog_abort %d", desc.ObjectID)
	}
	return nil
}

// Destroy deletes a committed log.
func Destroy(pool mlogpool.Pool, desc Descriptor) error {
	if err := pool.Delete(desc.ObjectID); err != nil {
		return errors.Wrapf(err, "c1log: destroy: mlog_delete %d", desc.ObjectID)
	}
	return nil
}

// Handle is a live, opened C1 log (spec §3's "Log handle (runtime)").
type Handle struct {
	pool mlogpool.Pool
	desc Descriptor
	tun  Tunables

	mdcoid1, mdcoid2 uint64

	seqno atomic.Uint64
	gen   atomic.Uint64

	capacity atomic.Uint64

	reserved reservationLedger

	committedKeyCount      atomic.Uint64
	committedKeyTupleCount atomic.Uint64
	committedValueTupleCount atomic.Uint64
	maxValueSeq            atomic.Uint64

	lowUtilHint atomic.Bool

	ingestMu sync.Mutex
	scratch  []byte

	pendingMu sync.Mutex
	pendingBundles []uint64
	pendingTxns    []uint64

	closed atomic.Bool
	mlh    mlogpool.Handle
}

// Open allocates a handle, zeroes its counters, and opens the backing mlog
// (spec §4.1). The generation returned by the pool's Open is not kept:
// Generation reports the caller-supplied gen. seqno/gen/mdcoid1/
// mdcoid2/capacity are supplied by the caller out of band the way the
// source's c1_log_open takes them as parameters rather than reading them
// back off the media.
func Open(pool mlogpool.Pool, desc Descriptor, seqno uint64, gen uint32, mdcoid1, mdcoid2, capacity uint64, tun Tunables) (*Handle, error) {
	h := &Handle{
		pool:    pool,
		desc:    desc,
		tun:     tun,
		mdcoid1: mdcoid1,
		mdcoid2: mdcoid2,
	}
	h.seqno.Store(seqno)
	h.gen.Store(uint64(gen))
	h.capacity.Store(capacity)
	h.maxValueSeq.Store(InvalidSeq)

	_, mlh, err := pool.Open(desc.ObjectID, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "c1log: open: mlog_open %d", desc.ObjectID)
	}
	h.mlh = mlh

	return h, nil
}

// writeFormatHeader emits the KVLOG format-header record (spec §4.1). It is
// called once by Make right after a fresh Open, and again by Reset.
func (h *Handle) writeFormatHeader() error {
	buf := encodeFormatHeader(formatHeader{
		MDCOID1:    h.mdcoid1,
		MDCOID2:    h.mdcoid2,
		ObjectID:   uint64(h.desc.ObjectID),
		Generation: uint32(h.gen.Load()),
		Capacity:   h.capacity.Load(),
		Seqno:      h.seqno.Load(),
	})

	iovs := []mlogpool.IOVec{{Base: buf}}
	if err := h.mlh.Append(iovs, len(buf), true); err != nil {
		return errors.Wrap(err, "c1log: format: mlog_append")
	}
	return nil
}

// Close releases the handle. If the mlog handle is null (Open was never
// performed against this in-memory value, e.g. a zero Handle, or Close was
// already called), Close is a no-op success; otherwise mlog_close is called
// and the handle is released regardless of the close result (spec §4.1, §9
// Open Question #2). Once this has run, IssueBundle, IssueTxn, Reset, Flush
// and Reserve return ErrClosed, and Refresh returns the ledger's current
// value without querying the mlog.
func (h *Handle) Close() error {
	if h == nil || h.mlh == nil {
		return nil
	}

	err := h.mlh.Close()
	h.mlh = nil
	h.closed.Store(true)
	if err != nil {
		return errors.Wrap(err, "c1log: close: mlog_close")
	}
	return nil
}

// Reset erases the mlog from offset zero, assigns the caller-supplied
// sequence/generation, zeroes all reservation and record counters, and
// re-emits the format header (spec §4.1; original_source/c1_log.c's
// c1_log_reset, preserved verbatim per SPEC_FULL.md's feature supplement).
func (h *Handle) Reset(newSeqno uint64, newGen uint32) error {
	if h.closed.Load() {
		return ErrClosed
	}

	if err := h.mlh.Erase(0); err != nil {
		return errors.Wrap(err, "c1log: reset: mlog_erase")
	}

	h.seqno.Store(newSeqno)
	h.gen.Store(uint64(newGen))

	h.reserved.reset()
	h.committedKeyCount.Store(0)
	h.committedKeyTupleCount.Store(0)
	h.committedValueTupleCount.Store(0)

	h.pendingMu.Lock()
	h.pendingBundles = nil
	h.pendingTxns = nil
	h.pendingMu.Unlock()

	return h.writeFormatHeader()
}

// Flush issues an mlog sync; on success it clears the low-utilization hint
// flag. On error no state changes (spec §4.1).
func (h *Handle) Flush() error {
	if h.closed.Load() {
		return ErrClosed
	}
	if err := h.mlh.Sync(); err != nil {
		return errors.Wrap(err, "c1log: flush: mlog_sync")
	}
	h.lowUtilHint.Store(false)
	return nil
}

// Capacity returns the declared capacity, or zero for a nil handle
// (defensive, per spec §4.1).
func (h *Handle) Capacity() uint64 {
	if h == nil {
		return 0
	}
	return h.capacity.Load()
}

// SetCapacity overwrites the declared capacity. Intended only for
// recovery-time reconciliation (spec §4.1); it does not touch the mlog.
func (h *Handle) SetCapacity(size uint64) {
	if h == nil {
		return
	}
	h.capacity.Store(size)
}

// Seqno and Generation report the handle's current incarnation identifiers.
func (h *Handle) Seqno() uint64      { return h.seqno.Load() }
func (h *Handle) Generation() uint32 { return uint32(h.gen.Load()) }

// MaxValueSeq returns the largest value-tuple sequence number ever
// persisted by this handle, or InvalidSeq if none yet.
func (h *Handle) MaxValueSeq() uint64 { return h.maxValueSeq.Load() }

// CommittedCounts returns the cumulative committed key, key-tuple, and
// value-tuple counts (spec §3).
func (h *Handle) CommittedCounts() (keys, keyTuples, valueTuples uint64) {
	return h.committedKeyCount.Load(), h.committedKeyTupleCount.Load(), h.committedValueTupleCount.Load()
}

// LowUtilHint reports whether this log is a rotation candidate; set by an
// excluded higher layer, cleared by Flush.
func (h *Handle) LowUtilHint() bool { return h.lowUtilHint.Load() }

// SetLowUtilHint lets the (excluded) orchestration layer mark this log as a
// low-utilization rotation candidate.
func (h *Handle) SetLowUtilHint(v bool) { h.lowUtilHint.Store(v) }

// Reserve implements the reservation ledger contract of spec §4.2.
func (h *Handle) Reserve(size uint64, spare bool) error {
	if h.closed.Load() {
		return ErrClosed
	}
	return h.reserved.reserve(h.mlh, h.capacity.Load(), h.tun, size, spare)
}

// Refresh implements refresh_space.
func (h *Handle) Refresh() uint64 {
	if h.closed.Load() {
		return uint64(h.reserved.Reserved())
	}
	return h.reserved.refresh(h.mlh)
}

// HasSpace implements has_space(size, inout rsvd).
func (h *Handle) HasSpace(size uint64, rsvd *uint64) bool {
	return h.reserved.hasSpace(h.capacity.Load(), h.tun, size, rsvd)
}

// ReservedSpace returns the ledger's current value.
func (h *Handle) ReservedSpace() int64 { return h.reserved.Reserved() }
