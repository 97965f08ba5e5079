package c1log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatHeaderRoundTrip(t *testing.T) {
	in := formatHeader{
		MDCOID1:    0x1111,
		MDCOID2:    0x2222,
		ObjectID:   42,
		Generation: 7,
		Capacity:   1 << 20,
		Seqno:      99,
	}

	buf := encodeFormatHeader(in)
	require.Len(t, buf, kvlogRecordSize)

	typ, size := getCommonHeader(buf)
	assert.Equal(t, RecordTypeKVLog, typ)
	assert.EqualValues(t, kvlogRecordSize, size)

	out, err := decodeFormatHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFormatHeaderDecodeRejectsShortOrWrongType(t *testing.T) {
	_, err := decodeFormatHeader(make([]byte, kvlogRecordSize-1))
	assert.ErrorIs(t, err, ErrIO)

	buf := encodeFormatHeader(formatHeader{})
	putCommonHeader(buf, RecordTypeTxn, kvlogRecordSize)
	_, err = decodeFormatHeader(buf)
	assert.ErrorIs(t, err, ErrIO)
}

func TestBundleHeaderRoundTrip(t *testing.T) {
	minPfx, _ := keyPrefix([]byte("aaa"))
	maxPfx, _ := keyPrefix([]byte("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"))

	in := bundleHeader{
		Seqno:              123,
		TxnID:              456,
		Gen:                3,
		Mutation:           789,
		KeyCount:           10,
		CumulativeKeyCount: 1000,
		PayloadSize:        4096,
		MinSeq:             1,
		MaxSeq:             999,
		MinKeyLen:          3,
		MaxKeyLen:          40,
		MinKeyPrefix:       minPfx,
		MaxKeyPrefix:       maxPfx,
		IngestID:           456,
	}

	buf := encodeBundleHeader(in)
	require.Len(t, buf, kvbRecordSize)

	out, err := decodeBundleHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestTxnRecordRoundTrip(t *testing.T) {
	in := TxnDescriptor{
		Seq:     7,
		Gen:     1,
		TxnID:   0xabc,
		KVSeq:   55,
		Command: 2,
		Flag:    1,
	}

	buf := encodeTxnRecord(in, 0xdeadbeef)
	require.Len(t, buf, txnRecordSize)

	out, mutation, err := decodeTxnRecord(buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.EqualValues(t, 0xdeadbeef, mutation)
}

func TestKeyValueHeaderRoundTrip(t *testing.T) {
	kbuf := make([]byte, keyHeaderSize)
	putKeyHeader(kbuf, 5, 77, 200, 3)
	kh := getKeyHeader(kbuf)
	assert.Equal(t, KeyMagic, kh.Magic)
	assert.EqualValues(t, 5, kh.KeyLen)
	assert.EqualValues(t, 77, kh.ContainerID)
	assert.EqualValues(t, 200, kh.ValueLen)
	assert.EqualValues(t, 3, kh.ValueCount)

	vbuf := make([]byte, valueHeaderSize)
	putValueHeader(vbuf, 88, 16, true, logTypeMLog)
	vh := getValueHeader(vbuf)
	assert.Equal(t, ValueMagic, vh.Magic)
	assert.True(t, vh.Tomb)
	assert.EqualValues(t, logTypeMLog, vh.LogType)
	assert.EqualValues(t, 88, vh.Seq)
	assert.EqualValues(t, 16, vh.ExtLen)
}

func TestKeyPrefixTruncatesAndPads(t *testing.T) {
	short := []byte("ab")
	p, full := keyPrefix(short)
	assert.EqualValues(t, 2, full)
	assert.Equal(t, byte('a'), p[0])
	assert.Equal(t, byte('b'), p[1])
	assert.Equal(t, byte(0), p[2])

	long := make([]byte, KeyPrefixLen*2)
	for i := range long {
		long[i] = byte('x')
	}
	p2, full2 := keyPrefix(long)
	assert.EqualValues(t, KeyPrefixLen*2, full2)
	assert.Len(t, p2, KeyPrefixLen)
}
