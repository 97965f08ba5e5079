package c1log

import (
	"fmt"
	"sync"
	"testing"

	"github.com/smartystreets/assertions"
	"github.com/stretchr/testify/require"

	"github.com/kvdb/c1kv/mlogpool"
	"github.com/kvdb/c1kv/mlogpool/mlogfake"
)

func openTestHandle(t *testing.T, capacity uint64) (*mlogfake.Pool, Descriptor, *Handle) {
	t.Helper()
	pool := mlogfake.New(mlogpool.ClassStaging, mlogpool.ClassCapacity)
	tun := DefaultTunables()
	desc, err := Create(pool, capacity)
	require.NoError(t, err)
	require.NoError(t, Make(pool, desc, 1, 1, 0, 0, capacity, tun))
	h, err := Open(pool, desc, 1, 1, 0, 0, capacity, tun)
	require.NoError(t, err)
	return pool, desc, h
}

func singleKeyBundle(key string, values ...ValueTuple) *Bundle {
	var vl uint64
	for _, v := range values {
		vl += v.Len()
	}
	kt := KeyTuple{
		ContainerID: 1,
		Key:         []byte(key),
		Values:      values,
		ValueCount:  uint32(len(values)),
		ValueLen:    vl,
	}
	return &Bundle{
		Keys:       []KeyTuple{kt},
		KeyCount:   1,
		ValueCount: uint32(len(values)),
		MinSeq:     values[0].Seq,
		MaxSeq:     values[len(values)-1].Seq,
		MinKey:     []byte(key),
		MaxKey:     []byte(key),
	}
}

func TestIssueBundleHappyPathAppendsHeaderThenPayload(t *testing.T) {
	pool, desc, h := openTestHandle(t, 1<<20)

	before := len(pool.Bytes(desc.ObjectID))

	b := singleKeyBundle("apple", ValueTuple{Seq: 10, Value: []byte("sauce")})
	seq, err := h.IssueBundle(b, 0, 0, 0, false)
	require.NoError(t, err)
	require.EqualValues(t, 2, seq) // seqno started at 1, first bundle takes 2

	raw := pool.Bytes(desc.ObjectID)
	require.Greater(t, len(raw), before)

	hdr, err := decodeBundleHeader(raw[before:])
	require.NoError(t, err)
	require.EqualValues(t, 2, hdr.Seqno)
	require.EqualValues(t, 1, hdr.KeyCount)

	keys, keyTuples, values := h.CommittedCounts()
	require.EqualValues(t, 1, keys)
	require.EqualValues(t, 1, keyTuples)
	require.EqualValues(t, 1, values)
	require.EqualValues(t, 10, h.MaxValueSeq())
}

func TestIssueBundleRejectsKeyAggregateMismatch(t *testing.T) {
	_, _, h := openTestHandle(t, 1<<20)

	b := singleKeyBundle("apple", ValueTuple{Seq: 1, Value: []byte("x")})
	b.Keys[0].ValueCount = 5 // lies about how many values follow

	_, err := h.IssueBundle(b, 0, 0, 0, false)
	require.ErrorIs(t, err, ErrIO)

	keys, _, _ := h.CommittedCounts()
	require.Zero(t, keys, "a rejected bundle must not advance any committed counter")
}

func TestIssueBundleRejectsBundleLevelCountMismatch(t *testing.T) {
	_, _, h := openTestHandle(t, 1<<20)

	b := singleKeyBundle("apple", ValueTuple{Seq: 1, Value: []byte("x")})
	b.KeyCount = 2 // claims two keys, only one present

	_, err := h.IssueBundle(b, 0, 0, 0, false)
	require.ErrorIs(t, err, ErrIO)
}

func TestIssueBundleOnClosedHandleFails(t *testing.T) {
	_, _, h := openTestHandle(t, 1<<20)
	require.NoError(t, h.Close())

	b := singleKeyBundle("apple", ValueTuple{Seq: 1, Value: []byte("x")})
	_, err := h.IssueBundle(b, 0, 0, 0, false)
	require.ErrorIs(t, err, ErrClosed)
}

func TestIssueBundleHonorsCallerSyncFlag(t *testing.T) {
	pool, desc, h := openTestHandle(t, 1<<20)

	b := singleKeyBundle("cherry", ValueTuple{Seq: 1, Value: []byte("v")})
	_, err := h.IssueBundle(b, 0, 0, 0, true)
	require.NoError(t, err)
	require.True(t, pool.LastAppendSynced(desc.ObjectID), "IssueBundle must thread its sync parameter through to the payload mlog_append")

	b2 := singleKeyBundle("date", ValueTuple{Seq: 2, Value: []byte("v")})
	_, err = h.IssueBundle(b2, 0, 0, 0, false)
	require.NoError(t, err)
	require.False(t, pool.LastAppendSynced(desc.ObjectID))
}

func TestIssueBundleDoesNotMutateCallerValueBytes(t *testing.T) {
	_, _, h := openTestHandle(t, 1<<20)

	value := []byte("untouched-payload")
	before := PayloadChecksum(value)

	b := singleKeyBundle("elderberry", ValueTuple{Seq: 1, Value: value})
	_, err := h.IssueBundle(b, 0, 0, 0, false)
	require.NoError(t, err)

	require.Equal(t, before, PayloadChecksum(value), "a caller's value bytes must be unchanged after IssueBundle, since they are gathered by reference, not copied")
}

func TestIssueBundleMultiValueTombstoneRoundTrip(t *testing.T) {
	pool, desc, h := openTestHandle(t, 1<<20)

	b := singleKeyBundle("banana",
		ValueTuple{Seq: 1, Value: []byte("v1")},
		ValueTuple{Seq: 2, Tomb: true, Value: nil},
	)
	_, err := h.IssueBundle(b, 99, 77, 0xAB, false)
	require.NoError(t, err)

	raw := pool.Bytes(desc.ObjectID)
	// format header record (KVLOG), then the bundle header (KVB), then the
	// payload: key header, key bytes, and a value header plus bytes per value.
	require.GreaterOrEqual(t, len(raw), kvlogRecordSize+kvbRecordSize)

	hdr, err := decodeBundleHeader(raw[kvlogRecordSize:])
	require.NoError(t, err)
	require.EqualValues(t, 99, hdr.TxnID)
	require.EqualValues(t, 77, hdr.IngestID)
	require.EqualValues(t, 0xAB, hdr.Mutation)

	off := kvlogRecordSize + kvbRecordSize
	kh := getKeyHeader(raw[off:])
	require.Equal(t, KeyMagic, kh.Magic)
	require.EqualValues(t, 2, kh.ValueCount)
	off += keyHeaderSize
	require.Equal(t, "banana", string(raw[off:off+int(kh.KeyLen)]))
	off += int(kh.KeyLen)

	vh1 := getValueHeader(raw[off:])
	require.EqualValues(t, 1, vh1.Seq)
	require.False(t, vh1.Tomb)
	off += valueHeaderSize
	require.Equal(t, "v1", string(raw[off:off+int(vh1.ExtLen)]))
	off += int(vh1.ExtLen)

	vh2 := getValueHeader(raw[off:])
	require.EqualValues(t, 2, vh2.Seq)
	require.True(t, vh2.Tomb)
	require.Zero(t, vh2.ExtLen)
	require.Len(t, raw, off+valueHeaderSize)

	keys, keyTuples, values := h.CommittedCounts()
	require.EqualValues(t, 1, keys)
	require.EqualValues(t, 1, keyTuples)
	require.EqualValues(t, 2, values)
	require.EqualValues(t, 2, h.MaxValueSeq())
}

func TestIssueBundleConcurrentCallersSerializeUnderIngestMutex(t *testing.T) {
	_, _, h := openTestHandle(t, 8<<20)

	const n = 50
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := singleKeyBundle(fmt.Sprintf("key-%03d", i), ValueTuple{Seq: uint64(i + 1), Value: []byte("v")})
			_, errs[i] = h.IssueBundle(b, 0, 0, 0, false)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if msg := assertions.ShouldBeNil(err); msg != "" {
			t.Fatal(msg)
		}
	}

	keys, keyTuples, values := h.CommittedCounts()
	if msg := assertions.ShouldEqual(keys, uint64(n)); msg != "" {
		t.Fatal(msg)
	}
	if msg := assertions.ShouldEqual(keyTuples, uint64(n)); msg != "" {
		t.Fatal(msg)
	}
	if msg := assertions.ShouldEqual(values, uint64(n)); msg != "" {
		t.Fatal(msg)
	}
}
