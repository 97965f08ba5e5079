package c1log

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvdb/c1kv/mlogpool"
	"github.com/kvdb/c1kv/mlogpool/mlogfake"
)

func TestCreateMakeOpenCloseRoundTrip(t *testing.T) {
	pool := mlogfake.New(mlogpool.ClassStaging, mlogpool.ClassCapacity)
	tun := DefaultTunables()

	desc, err := Create(pool, 1<<20)
	require.NoError(t, err)
	require.NotZero(t, desc.ObjectID)

	require.NoError(t, Make(pool, desc, 1, 1, 0x1, 0x2, 1<<20, tun))

	h, err := Open(pool, desc, 1, 1, 0x1, 0x2, 1<<20, tun)
	require.NoError(t, err)
	require.NotNil(t, h)

	raw := pool.Bytes(desc.ObjectID)
	require.Len(t, raw, kvlogRecordSize, "Make must emit exactly the format header record")

	fh, err := decodeFormatHeader(raw)
	require.NoError(t, err)
	require.EqualValues(t, 0x1, fh.MDCOID1)
	require.EqualValues(t, 0x2, fh.MDCOID2)
	require.EqualValues(t, 1<<20, fh.Capacity)

	require.NoError(t, h.Close())
	// Close is idempotent against an already-released mlog handle.
	require.NoError(t, h.Close())
}

func TestMakeSurfacesCommitErrorAndBestEffortAborts(t *testing.T) {
	pool := mlogfake.New(mlogpool.ClassStaging, mlogpool.ClassCapacity)
	desc, err := Create(pool, 1024)
	require.NoError(t, err)
	require.NoError(t, Make(pool, desc, 1, 1, 0, 0, 1024, DefaultTunables()))
	require.NoError(t, Destroy(pool, desc))

	// The object is gone: Commit fails with ErrObjectNotFound and the
	// best-effort Abort also fails (same reason), but Make must surface the
	// original commit error, not the abort error.
	err = Make(pool, desc, 2, 1, 0, 0, 1024, DefaultTunables())
	require.ErrorIs(t, err, mlogpool.ErrObjectNotFound)
}

func TestOpenFailsOnUnknownDescriptor(t *testing.T) {
	pool := mlogfake.New(mlogpool.ClassStaging, mlogpool.ClassCapacity)
	_, err := Open(pool, Descriptor{ObjectID: 999}, 0, 0, 0, 0, 0, DefaultTunables())
	require.Error(t, err)
}

func TestHandleResetReemitsFormatHeader(t *testing.T) {
	pool := mlogfake.New(mlogpool.ClassStaging, mlogpool.ClassCapacity)
	tun := DefaultTunables()

	desc, err := Create(pool, 4096)
	require.NoError(t, err)
	require.NoError(t, Make(pool, desc, 1, 1, 7, 8, 4096, tun))

	h, err := Open(pool, desc, 1, 1, 7, 8, 4096, tun)
	require.NoError(t, err)

	require.NoError(t, h.Reset(42, 2))
	require.EqualValues(t, 42, h.Seqno())
	require.EqualValues(t, 2, h.Generation())

	raw := pool.Bytes(desc.ObjectID)
	require.Len(t, raw, kvlogRecordSize, "Reset must erase prior content and leave only the re-emitted header")

	fh, err := decodeFormatHeader(raw)
	require.NoError(t, err)
	require.EqualValues(t, 42, fh.Seqno)
	require.EqualValues(t, 2, fh.Generation)

	keys, keyTuples, values := h.CommittedCounts()
	require.Zero(t, keys)
	require.Zero(t, keyTuples)
	require.Zero(t, values)
}

func TestHandleFlushClearsLowUtilHint(t *testing.T) {
	pool := mlogfake.New(mlogpool.ClassStaging, mlogpool.ClassCapacity)
	tun := DefaultTunables()
	desc, err := Create(pool, 4096)
	require.NoError(t, err)
	require.NoError(t, Make(pool, desc, 1, 1, 0, 0, 4096, tun))
	h, err := Open(pool, desc, 1, 1, 0, 0, 4096, tun)
	require.NoError(t, err)

	h.SetLowUtilHint(true)
	require.True(t, h.LowUtilHint())
	require.NoError(t, h.Flush())
	require.False(t, h.LowUtilHint())
}

func TestHandleCapacityAccessors(t *testing.T) {
	pool := mlogfake.New(mlogpool.ClassStaging, mlogpool.ClassCapacity)
	tun := DefaultTunables()
	desc, err := Create(pool, 4096)
	require.NoError(t, err)
	require.NoError(t, Make(pool, desc, 1, 1, 0, 0, 4096, tun))
	h, err := Open(pool, desc, 1, 1, 0, 0, 4096, tun)
	require.NoError(t, err)

	require.EqualValues(t, 4096, h.Capacity())
	h.SetCapacity(8192)
	require.EqualValues(t, 8192, h.Capacity())
}

func TestNilHandleCapacityIsZero(t *testing.T) {
	var h *Handle
	require.Zero(t, h.Capacity())
	require.NoError(t, h.Close())
}
