package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// DigestSize is the byte length of every content address.
const DigestSize = sha1.Size

// Digest is a content address derived from an entity's defining fields.
type Digest [DigestSize]byte

// Hash returns the SHA-1 of the UTF-8 bytes of s.
func Hash(s string) Digest {
	return Digest(sha1.Sum([]byte(s)))
}

// HashParts hashes the colon-joined parts.
func HashParts(parts ...string) Digest {
	return Hash(strings.Join(parts, ":"))
}

// Bytes returns the digest as a slice suitable for binary columns.
func (d Digest) Bytes() []byte {
	b := make([]byte, DigestSize)
	copy(b, d[:])
	return b
}

// Hex renders the first n hex characters of the digest. A negative n renders all of it.
func (d Digest) Hex(n int) string {
	full := hex.EncodeToString(d[:])
	if n < 0 || n > len(full) {
		return full
	}
	return full[:n]
}

func (d Digest) String() string {
	return d.Hex(-1)
}

// DigestFromBytes converts a stored binary key back into a Digest.
func DigestFromBytes(b []byte) (Digest, bool) {
	var d Digest
	if len(b) != DigestSize {
		return d, false
	}
	copy(d[:], b)
	return d, true
}
