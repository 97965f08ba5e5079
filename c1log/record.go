package c1log

import "encoding/binary"

// RecordType is the type tag of the common record header (spec §4.5).
type RecordType uint32

const (
	RecordTypeKVLog RecordType = 1 // KVLOG: format-header record
	RecordTypeKVB   RecordType = 2 // KVB: key-value bundle header record
	RecordTypeTxn   RecordType = 3 // TXN: tree-transaction record
)

func (t RecordType) String() string {
	switch t {
	case RecordTypeKVLog:
		return "KVLOG"
	case RecordTypeKVB:
		return "KVB"
	case RecordTypeTxn:
		return "TXN"
	default:
		return "UNKNOWN"
	}
}

// Magics for key/value tuple headers (spec §4.5, §6).
const (
	KeyMagic   uint32 = 0x4B315443 // "C1_KEY_MAGIC"
	ValueMagic uint32 = 0x4B315456 // "C1_VAL_MAGIC"
)

// logType tags where a value tuple's bytes reside; this core always writes
// them inline in the mlog (spec §4.3).
const logTypeMLog uint8 = 1

var byteOrder = binary.BigEndian

const commonHeaderSize = 8

// putCommonHeader writes a record's type tag and declared size at buf[0:8].
func putCommonHeader(buf []byte, typ RecordType, size uint32) {
	byteOrder.PutUint32(buf[0:4], uint32(typ))
	byteOrder.PutUint32(buf[4:8], size)
}

func getCommonHeader(buf []byte) (typ RecordType, size uint32) {
	return RecordType(byteOrder.Uint32(buf[0:4])), byteOrder.Uint32(buf[4:8])
}

// --- key-tuple header: 32 bytes ---
//
//	magic[4] keylen[4] containerID[8] valuelen[8] valuecount[4] reserved[4]
const keyHeaderSize = 32

func putKeyHeader(buf []byte, keyLen uint32, containerID uint64, valueLen uint64, valueCount uint32) {
	byteOrder.PutUint32(buf[0:4], KeyMagic)
	byteOrder.PutUint32(buf[4:8], keyLen)
	byteOrder.PutUint64(buf[8:16], containerID)
	byteOrder.PutUint64(buf[16:24], valueLen)
	byteOrder.PutUint32(buf[24:28], valueCount)
	byteOrder.PutUint32(buf[28:32], 0)
}

type keyHeader struct {
	Magic       uint32
	KeyLen      uint32
	ContainerID uint64
	ValueLen    uint64
	ValueCount  uint32
}

func getKeyHeader(buf []byte) keyHeader {
	return keyHeader{
		Magic:       byteOrder.Uint32(buf[0:4]),
		KeyLen:      byteOrder.Uint32(buf[4:8]),
		ContainerID: byteOrder.Uint64(buf[8:16]),
		ValueLen:    byteOrder.Uint64(buf[16:24]),
		ValueCount:  byteOrder.Uint32(buf[24:28]),
	}
}

// --- value-tuple header: 24 bytes ---
//
//	magic[4] tomb[1] logtype[1] reserved[2] seq[8] extlen[8]
const valueHeaderSize = 24

func putValueHeader(buf []byte, seq uint64, extLen uint64, tomb bool, logType uint8) {
	byteOrder.PutUint32(buf[0:4], ValueMagic)
	if tomb {
		buf[4] = 1
	} else {
		buf[4] = 0
	}
	buf[5] = logType
	buf[6] = 0
	buf[7] = 0
	byteOrder.PutUint64(buf[8:16], seq)
	byteOrder.PutUint64(buf[16:24], extLen)
}

type valueHeader struct {
	Magic   uint32
	Tomb    bool
	LogType uint8
	Seq     uint64
	ExtLen  uint64
}

func getValueHeader(buf []byte) valueHeader {
	return valueHeader{
		Magic:   byteOrder.Uint32(buf[0:4]),
		Tomb:    buf[4] != 0,
		LogType: buf[5],
		Seq:     byteOrder.Uint64(buf[8:16]),
		ExtLen:  byteOrder.Uint64(buf[16:24]),
	}
}

// --- KVLOG format-header record: common(8) + body(48) = 56 bytes ---
const kvlogBodySize = 48
const kvlogRecordSize = commonHeaderSize + kvlogBodySize

// formatHeader is the decoded form of a KVLOG record.
type formatHeader struct {
	MDCOID1    uint64
	MDCOID2    uint64
	ObjectID   uint64
	Generation uint32
	Capacity   uint64
	Seqno      uint64
}

func encodeFormatHeader(h formatHeader) []byte {
	buf := make([]byte, kvlogRecordSize)
	putCommonHeader(buf, RecordTypeKVLog, kvlogRecordSize)
	b := buf[commonHeaderSize:]
	byteOrder.PutUint64(b[0:8], h.MDCOID1)
	byteOrder.PutUint64(b[8:16], h.MDCOID2)
	byteOrder.PutUint64(b[16:24], h.ObjectID)
	byteOrder.PutUint32(b[24:28], h.Generation)
	byteOrder.PutUint32(b[28:32], 0)
	byteOrder.PutUint64(b[32:40], h.Capacity)
	byteOrder.PutUint64(b[40:48], h.Seqno)
	return buf
}

func decodeFormatHeader(buf []byte) (formatHeader, error) {
	if len(buf) < kvlogRecordSize {
		return formatHeader{}, ErrIO
	}
	typ, size := getCommonHeader(buf)
	if typ != RecordTypeKVLog || int(size) > len(buf) {
		return formatHeader{}, ErrIO
	}
	b := buf[commonHeaderSize:]
	return formatHeader{
		MDCOID1:    byteOrder.Uint64(b[0:8]),
		MDCOID2:    byteOrder.Uint64(b[8:16]),
		ObjectID:   byteOrder.Uint64(b[16:24]),
		Generation: byteOrder.Uint32(b[24:28]),
		Capacity:   byteOrder.Uint64(b[32:40]),
		Seqno:      byteOrder.Uint64(b[40:48]),
	}, nil
}

// --- KVB bundle-header record: common(8) + body(152) = 160 bytes ---
const kvbBodySize = 152
const kvbRecordSize = commonHeaderSize + kvbBodySize

type bundleHeader struct {
	Seqno              uint64
	TxnID              uint64
	Gen                uint32
	Mutation           uint64
	KeyCount           uint32
	CumulativeKeyCount uint64
	PayloadSize        uint64
	MinSeq, MaxSeq     uint64
	MinKeyLen          uint32
	MaxKeyLen          uint32
	MinKeyPrefix       [KeyPrefixLen]byte
	MaxKeyPrefix       [KeyPrefixLen]byte
	IngestID           uint64
}

func encodeBundleHeader(h bundleHeader) []byte {
	buf := make([]byte, kvbRecordSize)
	putCommonHeader(buf, RecordTypeKVB, kvbRecordSize)
	b := buf[commonHeaderSize:]
	byteOrder.PutUint64(b[0:8], h.Seqno)
	byteOrder.PutUint64(b[8:16], h.TxnID)
	byteOrder.PutUint32(b[16:20], h.Gen)
	byteOrder.PutUint64(b[24:32], h.Mutation)
	byteOrder.PutUint32(b[32:36], h.KeyCount)
	byteOrder.PutUint64(b[40:48], h.CumulativeKeyCount)
	byteOrder.PutUint64(b[48:56], h.PayloadSize)
	byteOrder.PutUint64(b[56:64], h.MinSeq)
	byteOrder.PutUint64(b[64:72], h.MaxSeq)
	byteOrder.PutUint32(b[72:76], h.MinKeyLen)
	byteOrder.PutUint32(b[76:80], h.MaxKeyLen)
	copy(b[80:112], h.MinKeyPrefix[:])
	copy(b[112:144], h.MaxKeyPrefix[:])
	byteOrder.PutUint64(b[144:152], h.IngestID)
	return buf
}

func decodeBundleHeader(buf []byte) (bundleHeader, error) {
	if len(buf) < kvbRecordSize {
		return bundleHeader{}, ErrIO
	}
	typ, size := getCommonHeader(buf)
	if typ != RecordTypeKVB || int(size) > len(buf) {
		return bundleHeader{}, ErrIO
	}
	b := buf[commonHeaderSize:]
	h := bundleHeader{
		Seqno:              byteOrder.Uint64(b[0:8]),
		TxnID:              byteOrder.Uint64(b[8:16]),
		Gen:                byteOrder.Uint32(b[16:20]),
		Mutation:           byteOrder.Uint64(b[24:32]),
		KeyCount:           byteOrder.Uint32(b[32:36]),
		CumulativeKeyCount: byteOrder.Uint64(b[40:48]),
		PayloadSize:        byteOrder.Uint64(b[48:56]),
		MinSeq:             byteOrder.Uint64(b[56:64]),
		MaxSeq:             byteOrder.Uint64(b[64:72]),
		MinKeyLen:          byteOrder.Uint32(b[72:76]),
		MaxKeyLen:          byteOrder.Uint32(b[76:80]),
		IngestID:           byteOrder.Uint64(b[144:152]),
	}
	copy(h.MinKeyPrefix[:], b[80:112])
	copy(h.MaxKeyPrefix[:], b[112:144])
	return h, nil
}

// --- TXN record: common(8) + body(48) = 56 bytes ---
const txnBodySize = 48
const txnRecordSize = commonHeaderSize + txnBodySize

func encodeTxnRecord(t TxnDescriptor, mutation uint64) []byte {
	buf := make([]byte, txnRecordSize)
	putCommonHeader(buf, RecordTypeTxn, txnRecordSize)
	b := buf[commonHeaderSize:]
	byteOrder.PutUint64(b[0:8], t.Seq)
	byteOrder.PutUint32(b[8:12], t.Gen)
	byteOrder.PutUint64(b[16:24], t.TxnID)
	byteOrder.PutUint64(b[24:32], t.KVSeq)
	byteOrder.PutUint64(b[32:40], mutation)
	byteOrder.PutUint32(b[40:44], t.Command)
	byteOrder.PutUint32(b[44:48], t.Flag)
	return buf
}

func decodeTxnRecord(buf []byte) (TxnDescriptor, uint64, error) {
	if len(buf) < txnRecordSize {
		return TxnDescriptor{}, 0, ErrIO
	}
	typ, size := getCommonHeader(buf)
	if typ != RecordTypeTxn || int(size) > len(buf) {
		return TxnDescriptor{}, 0, ErrIO
	}
	b := buf[commonHeaderSize:]
	t := TxnDescriptor{
		Seq:     byteOrder.Uint64(b[0:8]),
		Gen:     byteOrder.Uint32(b[8:12]),
		TxnID:   byteOrder.Uint64(b[16:24]),
		KVSeq:   byteOrder.Uint64(b[24:32]),
		Command: byteOrder.Uint32(b[40:44]),
		Flag:    byteOrder.Uint32(b[44:48]),
	}
	mutation := byteOrder.Uint64(b[32:40])
	return t, mutation, nil
}
