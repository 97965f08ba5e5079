package c1log

import (
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/kvdb/c1kv/mlogpool"
)

// reservationLedger is the space reservation ledger of spec §4.2: an atomic
// byte counter making appends non-failing for lack of room under normal
// operation. It never blocks — only atomic arithmetic, per §5.
type reservationLedger struct {
	reserved atomic.Int64
}

// Reserved returns the current reserved-byte count.
func (l *reservationLedger) Reserved() int64 { return l.reserved.Load() }

// reserve implements spec §4.2's reserve(size, spare) contract. mlh is the
// live mlog handle used to query the current length; capacity/tunables
// supply the usable-capacity computation.
func (l *reservationLedger) reserve(mlh mlogpool.Handle, capacity uint64, tun Tunables, size uint64, spare bool) error {
	available := tun.UsableCapacity(capacity)
	if spare {
		available = capacity
	}

	length, err := mlh.Len()
	if err != nil {
		return errors.Wrap(err, "c1log: reserve: mlog_len")
	}

	if size > available {
		return ErrNoSpace
	}

	reserved := l.reserved.Add(int64(size))

	if length > available || uint64(reserved) > available {
		l.reserved.Sub(int64(size))
		return ErrOutOfMemory
	}

	return nil
}

// refresh implements refresh_space: on success, sets the ledger to the live
// mlog length and returns it; on a length-query failure it leaves the
// ledger untouched and returns its current value (spec §9's documented, if
// surprising, divergence).
func (l *reservationLedger) refresh(mlh mlogpool.Handle) uint64 {
	length, err := mlh.Len()
	if err != nil {
		return uint64(l.reserved.Load())
	}
	l.reserved.Store(int64(length))
	return length
}

// hasSpace implements has_space(size, inout rsvd): a non-mutating admission
// peek. If *rsvd is zero it is seeded from the ledger; size is added; if the
// sum fits within usable capacity, *rsvd is updated and true is returned.
func (l *reservationLedger) hasSpace(capacity uint64, tun Tunables, size uint64, rsvd *uint64) bool {
	available := tun.UsableCapacity(capacity)

	r := *rsvd
	if r == 0 {
		r = uint64(l.reserved.Load())
	}
	r += size

	if r <= available {
		*rsvd = r
		return true
	}
	return false
}

func (l *reservationLedger) reset() {
	l.reserved.Store(0)
}
