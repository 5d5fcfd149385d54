// Package fingerprint computes the 12-hex-character content fingerprints
// used throughout bundlebase for pack identifiers, change ids, and bundle
// versions (spec §3 "Fingerprint").
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Length is the number of hex characters in a fingerprint.
const Length = 12

// Of returns the 12-hex-character fingerprint of content: the low 48
// bits (6 bytes) of a SHA-256 digest, lowercase hex-encoded. SHA-256 is
// used instead of BLAKE3 because it is the only cryptographic hash the
// retrieval pack exercises anywhere (no repo in the corpus vendors a
// BLAKE3 implementation); see DESIGN.md.
func Of(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[len(sum)-6:])
}

// OfString is a convenience wrapper over Of for canonical text content.
func OfString(s string) string {
	return Of([]byte(s))
}
