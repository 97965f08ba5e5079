package c1log

// scratch buffer sizing and growth (spec §4.3). A bundle's tuple headers are
// written into one contiguous scratch buffer in bundle order:
//
//	[ key header | its value headers ... ][ next key header | ... ] ...
//
// The buffer holds ktsz + vtsz bytes of headers only; key and value bytes
// are not copied into it. Each header slot is rounded up to a 16-byte
// boundary so every header starts aligned; the buffer as a whole is grown
// in ScratchGrowthUnit increments and released again once a single bundle
// drives it past ScratchSoftCeiling.

const scratchAlign = 16

func alignUp16(n uint64) uint64 {
	return (n + scratchAlign - 1) &^ (scratchAlign - 1)
}

// bundleLayout is the precomputed size/shape of one bundle's scratch region.
// Only tuple HEADERS live in the scratch buffer; key bytes and value
// payloads are referenced directly from caller-owned memory via their own
// gather-vector entries (KeyIOVs/ValueIOVs each count a header entry plus a
// borrowed-bytes entry), so the mlog append never copies key or value data.
type bundleLayout struct {
	ktsz     uint64 // key-tuple header region size
	vtsz     uint64 // value-tuple header region size
	iovCount int    // number of gather-vector entries the append will need
	total    uint64 // ktsz + vtsz
}

// computeBundleLayout walks a Bundle's keys/values and computes the scratch
// region sizes and the number of iovec slots the eventual mlog_append will
// need (spec §4.3: KeyIOVs per key-tuple header, ValueIOVs per value tuple).
func computeBundleLayout(b *Bundle) bundleLayout {
	var ktsz, vtsz uint64
	iovCount := 0

	for _, k := range b.Keys {
		ktsz += alignUp16(uint64(keyHeaderSize))
		iovCount += KeyIOVs

		for range k.Values {
			vtsz += alignUp16(uint64(valueHeaderSize))
			iovCount += ValueIOVs
		}
	}

	return bundleLayout{
		ktsz:     ktsz,
		vtsz:     vtsz,
		iovCount: iovCount,
		total:    ktsz + vtsz,
	}
}

// ensureScratch grows buf to at least need bytes, rounded up to the next
// ScratchGrowthUnit multiple, and reports whether the result exceeds the
// soft ceiling (a hint to the caller to release it again after use). It
// never shrinks an already-larger buffer.
func ensureScratch(buf []byte, need uint64, tun Tunables) (out []byte, overCeiling bool, err error) {
	if uint64(cap(buf)) >= need {
		return buf[:need], uint64(cap(buf)) > tun.ScratchSoftCeiling, nil
	}

	grown := roundUp(need, tun.ScratchGrowthUnit)
	if grown < need {
		return nil, false, ErrNoMemory
	}

	nb := make([]byte, need, grown)
	return nb, grown > tun.ScratchSoftCeiling, nil
}

// releaseIfOverCeiling returns nil (dropping the backing array for the GC)
// when the buffer grew past the soft ceiling servicing one outsized bundle;
// otherwise it returns buf unchanged so steady-state bundles reuse it.
func releaseIfOverCeiling(buf []byte, overCeiling bool) []byte {
	if overCeiling {
		return nil
	}
	return buf
}
