package c1log

import "errors"

// Error kinds this core surfaces itself (spec §7). Provider (mlog) failures
// are never replaced by these; they are wrapped and returned as-is so
// errors.Is/errors.Cause still reaches the original cause.
var (
	// ErrNoSpace: a reservation request exceeds usable capacity outright.
	ErrNoSpace = errors.New("c1log: reservation exceeds usable capacity")
	// ErrOutOfMemory: transient back-pressure — the reserved total or the
	// live mlog length would exceed usable capacity.
	ErrOutOfMemory = errors.New("c1log: reservation would exceed usable capacity")
	// ErrNoMemory: the scratch buffer could not be grown to the size a
	// bundle requires.
	ErrNoMemory = errors.New("c1log: scratch buffer allocation failed")
	// ErrInvalidArgument: a bundle needs more gather-vector entries than
	// maxBundleIOVs allows.
	ErrInvalidArgument = errors.New("c1log: iovec index overflow")
	// ErrIO: a bundle's declared aggregates disagreed with what was walked.
	ErrIO = errors.New("c1log: bundle aggregate mismatch")

	// ErrClosed is returned by IssueBundle, IssueTxn, Reset, Flush and
	// Reserve when called after Close.
	ErrClosed = errors.New("c1log: handle closed")
)
