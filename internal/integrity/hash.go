// Package integrity provides the content hashing primitives used for chunk
// and whole-file verification. All digests are lowercase hex SHA-256 so a
// chunk-level digest and a whole-file digest are computed identically
// regardless of which code path produced them.
package integrity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

// DigestLength is the length of a hex-encoded digest.
const DigestLength = sha256.Size * 2

// HashBytes returns the digest of a byte buffer. Used per-chunk, so it must
// stay allocation-light.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashStream returns the digest of everything readable from r, streaming in
// bounded blocks rather than loading the input into memory. Assembly folds
// hashing into its copy loop via New and Sum; HashStream is for callers
// verifying an already-assembled artifact out of band, such as a consumer
// re-checking a download against the reported file hash.
func HashStream(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// New returns a hasher of the same algorithm family as HashBytes/HashStream,
// for callers that need to fold hashing into an existing copy loop.
func New() hash.Hash {
	return sha256.New()
}

// Sum finalizes a hasher created by New into a hex digest.
func Sum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// Equal reports whether two hex digests match, in constant time with respect
// to the position of any mismatch. The length comparison is not constant-time;
// digests are fixed-width so length reveals nothing.
func Equal(a, b string) bool {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Valid reports whether s looks like a hex digest of the expected width.
func Valid(s string) bool {
	if len(s) != DigestLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
