// Package fingerprint computes content hashes used as whole-file
// idempotency keys.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the SHA-256 digest of data as 64 lowercase hex characters.
// Two byte-identical uploads always produce the same fingerprint.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
