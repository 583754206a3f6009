// Package crypto provides the cryptographic primitives used by the Weave
// security engines: hashes, HMAC, HKDF, AES block/stream modes, elliptic
// curve key agreement and signatures, and secret zeroization.
package crypto

import (
	"crypto/sha1"
	"crypto/sha256"
	"hash"
)

// Digest sizes.
const (
	// SHA1LenBytes is the SHA-1 output length in bytes.
	SHA1LenBytes = 20

	// SHA256LenBytes is the SHA-256 output length in bytes.
	SHA256LenBytes = 32
)

// SHA1 computes the SHA-1 hash of a message.
//
// SHA-1 is only used where the Weave wire protocols require it (HKDF-SHA1
// key derivation, passcode authenticators and Config1 PASE hashes).
func SHA1(message []byte) [SHA1LenBytes]byte {
	return sha1.Sum(message)
}

// SHA256 computes the SHA-256 cryptographic hash of a message.
//
// Returns a 32-byte (256-bit) hash digest.
func SHA256(message []byte) [SHA256LenBytes]byte {
	return sha256.Sum256(message)
}

// NewSHA1 returns a new hash.Hash for computing SHA-1 digests incrementally.
func NewSHA1() hash.Hash {
	return sha1.New()
}

// NewSHA256 returns a new hash.Hash for computing SHA-256 digests incrementally.
//
// Usage:
//
//	h := crypto.NewSHA256()
//	h.Write(data1)
//	h.Write(data2)
//	digest := h.Sum(nil)
func NewSHA256() hash.Hash {
	return sha256.New()
}
