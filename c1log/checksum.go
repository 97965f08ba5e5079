package c1log

import "github.com/OneOfOne/xxhash"

// PayloadChecksum is a diagnostic helper, not part of the on-media format:
// it gives callers (and this package's own obslog tracing) a cheap way to
// fingerprint a value's bytes for log lines and test assertions without
// printing the payload itself.
func PayloadChecksum(b []byte) uint64 {
	return xxhash.Checksum64(b)
}
