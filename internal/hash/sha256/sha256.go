// Package sha256 provides the SHA-256 digests used for item namespace hashes.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements gallery.Hasher using SHA-256.
type Hasher struct {
	// Length truncates hex digests when positive.
	Length int
}

// New returns a SHA-256 hasher producing full-length digests.
func New() *Hasher {
	return &Hasher{}
}

// NewTruncated returns a hasher whose digests are cut to length hex characters.
func NewTruncated(length int) *Hasher {
	return &Hasher{Length: length}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if h != nil && h.Length > 0 && h.Length < len(digest) {
		digest = digest[:h.Length]
	}
	return digest, nil
}
