package crypto

import (
	gocrypto "crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"io"
)

// ErrNotECDSAKey is returned when a key is not an ECDSA key.
var ErrNotECDSAKey = errors.New("ecdsa: key is not an ECDSA key")

// ECDSASignHash signs a SHA-256 message hash with the given signer.
// The signer is typically an *ecdsa.PrivateKey or a hardware-backed key.
//
// Returns an ASN.1 DER encoded signature.
func ECDSASignHash(signer gocrypto.Signer, r io.Reader, hash []byte) ([]byte, error) {
	if _, ok := signer.Public().(*ecdsa.PublicKey); !ok {
		return nil, ErrNotECDSAKey
	}
	if r == nil {
		r = rand.Reader
	}
	return signer.Sign(r, hash, gocrypto.SHA256)
}

// ECDSAVerifyHash verifies an ASN.1 DER encoded ECDSA signature over a hash.
func ECDSAVerifyHash(pub gocrypto.PublicKey, hash, signature []byte) bool {
	key, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return false
	}
	return ecdsa.VerifyASN1(key, hash, signature)
}
