// Package mlogpool defines the media-log provider this module consumes: an
// append-only, commit-then-use log object backed by a storage pool. The log
// core in package c1log treats a Pool as a black box with exactly the
// operations named in this file; nothing in c1log knows or cares whether a
// Pool is backed by real files, a remote object store, or memory.
package mlogpool

import "errors"

// Class names a media class a pool may or may not offer. The lifecycle
// manager prefers ClassStaging and falls back to ClassCapacity when the pool
// reports no staging class (spec §4.1).
type Class string

const (
	ClassStaging  Class = "staging"
	ClassCapacity Class = "capacity"
)

// ObjectID identifies an mlog object within a Pool. It is opaque to callers
// above this package.
type ObjectID uint64

// AllocParams is the allocation request passed to Alloc.
type AllocParams struct {
	Capacity uint64
	Spare    bool
}

// AllocProps is returned by Alloc; Class records the media class the pool
// actually used, which may differ from the class requested if the pool
// degrades the request internally.
type AllocProps struct {
	Class Class
}

// OpenFlags reserved for future read/write mode distinctions; the log core
// only ever opens for read-write append, so this is currently unused by any
// Pool implementation in this module but kept to match the provider
// interface's documented shape (spec §6: "mlog_open(pool, object_id, flags)").
type OpenFlags uint32

// IOVec is one entry of a gather-write vector: a reference to bytes owned by
// the caller (or by the log's own scratch buffer) that Append should copy
// onto the media in order, without an intervening allocation.
type IOVec struct {
	Base []byte
}

// TotalLen sums the bytes referenced by a gather vector.
func TotalLen(iovs []IOVec) int {
	n := 0
	for _, v := range iovs {
		n += len(v.Base)
	}
	return n
}

// Handle is a live, opened mlog object. Every method may block. The ingest
// mutex in c1log.Handle serializes Append calls; c1log calls Len (from
// Reserve and Refresh), Erase (from Reset) and Sync (from Flush) without
// that mutex, so those can run concurrently with an Append on the same
// Handle. Both implementations in this module take a per-handle lock in
// every method.
type Handle interface {
	// Append writes iovs in order, totalBytes the sum of their lengths. If
	// sync is true the provider must not return until the bytes are durable.
	Append(iovs []IOVec, totalBytes int, sync bool) error
	// Sync flushes any buffered bytes to durable media.
	Sync() error
	// Len reports the current logical length of the mlog in bytes.
	Len() (uint64, error)
	// Erase truncates the mlog back to offset, discarding everything after it.
	Erase(offset int64) error
	// Close releases the handle. The underlying object is not deleted.
	Close() error
}

// Pool is the storage pool abstraction of spec §6.
type Pool interface {
	// ProbeClass reports whether the pool offers the given media class.
	ProbeClass(class Class) bool
	// Alloc requests a new mlog of the given capacity in class. The
	// returned ObjectID is not durable until Commit succeeds.
	Alloc(class Class, params AllocParams) (ObjectID, AllocProps, error)
	// Abort releases an allocated-but-not-committed object.
	Abort(id ObjectID) error
	// Commit durably commits a previously allocated object.
	Commit(id ObjectID) error
	// Delete removes a committed object permanently.
	Delete(id ObjectID) error
	// Open opens a committed object for append, returning the pool's
	// generation counter for it alongside a live Handle.
	Open(id ObjectID, flags OpenFlags) (generation uint64, handle Handle, err error)
}

// ErrNoStagingClass is returned by implementations that have no staging
// media at all; callers use ProbeClass to avoid ever seeing it in practice.
var ErrNoStagingClass = errors.New("mlogpool: no staging class available")

// ErrObjectNotFound is returned by Abort/Commit/Delete/Open for an unknown id.
var ErrObjectNotFound = errors.New("mlogpool: object not found")

// ErrAlreadyCommitted is returned by Abort on an already-committed object.
var ErrAlreadyCommitted = errors.New("mlogpool: object already committed")
