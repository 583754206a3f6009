package crypto

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"hash"
)

// HMACSHA1 computes the HMAC-SHA1 of a message using the given key.
//
// Returns a 20-byte MAC.
func HMACSHA1(key, message []byte) [SHA1LenBytes]byte {
	h := hmac.New(sha1.New, key)
	h.Write(message)
	var result [SHA1LenBytes]byte
	copy(result[:], h.Sum(nil))
	return result
}

// HMACSHA256 computes the HMAC-SHA256 of a message using the given key.
//
// Returns a 32-byte (256-bit) MAC.
func HMACSHA256(key, message []byte) [SHA256LenBytes]byte {
	h := hmac.New(sha256.New, key)
	h.Write(message)
	var result [SHA256LenBytes]byte
	copy(result[:], h.Sum(nil))
	return result
}

// NewHMACSHA256 returns a new hash.Hash for computing HMAC-SHA256 incrementally.
// This is useful for computing MACs over data that is assembled in pieces.
//
// Usage:
//
//	h := crypto.NewHMACSHA256(key)
//	h.Write(data1)
//	h.Write(data2)
//	mac := h.Sum(nil)
func NewHMACSHA256(key []byte) hash.Hash {
	return hmac.New(sha256.New, key)
}

// ConstantTimeEqual compares two byte strings in constant time.
// Strings of different length compare unequal.
// This should be used instead of bytes.Equal for authenticators, key
// confirmation hashes and any other value an attacker can probe.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
