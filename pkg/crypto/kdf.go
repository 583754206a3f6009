package crypto

import (
	"crypto/sha1"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDFSHA1 derives key material using HKDF-SHA1 (RFC 5869).
// All Weave key hierarchies (root, intermediate, application, key export and
// PASE session keys) are derived with this function.
//
// Parameters:
//   - inputKey: Input keying material (IKM)
//   - salt: Optional salt value (can be nil or empty)
//   - info: Optional context/application-specific info (can be nil or empty)
//   - length: Number of bytes to derive
//
// Returns the derived key material of the specified length.
func HKDFSHA1(inputKey, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha1.New, inputKey, salt, info)
	result := make([]byte, length)
	if _, err := io.ReadFull(reader, result); err != nil {
		ClearSecretData(result)
		return nil, err
	}
	return result, nil
}
