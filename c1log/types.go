// Package c1log is the durable, append-only ingest journal of a
// log-structured key-value store: the C1 key-value log. It wraps a single
// mlogpool.Pool-backed media log and serializes key-value bundles and
// tree-transaction records into it so they can be recovered before being
// flushed to the main tree.
//
// This package treats its media-log provider (mlogpool.Pool) as the only
// external collaborator; log-group rotation, recovery replay, and
// compaction are excluded, same as the teacher treats its buffer pool and
// page store as the boundary of the storage engine core.
package c1log

import "github.com/kvdb/c1kv/mlogpool"

// Fixed iovec counts per tuple kind (spec §6, "Consumed constants").
const (
	KeyIOVs   = 2 // key header + key bytes
	ValueIOVs = 2 // value header + value bytes
)

// KeyPrefixLen is KI_DLEN_MAX, the key-prefix length embedded in a bundle
// header's min/max key fields for quick comparison without decoding the
// payload.
const KeyPrefixLen = 32

// InvalidSeq is the sentinel "no value ever observed" sequence number.
const InvalidSeq uint64 = ^uint64(0)

// Descriptor identifies the backing mlog object of a C1 log. It is produced
// by Create, carried through Make/Open/Destroy, and is otherwise opaque.
type Descriptor struct {
	ObjectID mlogpool.ObjectID
	Class    mlogpool.Class
}

// ValueTuple is one value for one key within a Bundle. Ownership is
// borrowed: Value must outlive the IssueBundle call it is passed to.
type ValueTuple struct {
	Seq   uint64
	Tomb  bool
	Value []byte
}

// Len is the on-media extended length of this value (this core always
// stores the value inline, so ExtLen == len(Value)).
func (v ValueTuple) Len() uint64 { return uint64(len(v.Value)) }

// KeyTuple is one key and its values within a Bundle.
type KeyTuple struct {
	ContainerID uint64
	Key         []byte
	Values      []ValueTuple

	// ValueCount and ValueLen are the caller's declared aggregates for this
	// key's values. IssueBundle validates that walking Values reproduces
	// them exactly (spec §4.3's vtacount/vtalen residual check) and fails
	// with ErrIO if they disagree.
	ValueCount uint32
	ValueLen   uint64
}

// Bundle is a batch of keys, each with one or more values, journaled
// atomically by IssueBundle.
type Bundle struct {
	Keys []KeyTuple

	// KeyCount and ValueCount are the caller's declared aggregate counts
	// across Keys; IssueBundle does not recompute them from len(Keys), it
	// trusts and validates against them the same way the source does.
	KeyCount   uint32
	ValueCount uint32

	MinSeq, MaxSeq uint64
	MinKey, MaxKey []byte
}

// keyPrefix truncates (or zero-pads) b to KeyPrefixLen bytes for embedding
// in a bundle header.
func keyPrefix(b []byte) (prefix [KeyPrefixLen]byte, full uint32) {
	full = uint32(len(b))
	n := copy(prefix[:], b)
	_ = n
	return prefix, full
}

// TxnDescriptor is a single tree-transaction record (spec §3).
type TxnDescriptor struct {
	Seq      uint64
	Gen      uint32
	TxnID    uint64
	KVSeq    uint64
	Mutation uint64
	Command  uint32
	Flag     uint32
}
