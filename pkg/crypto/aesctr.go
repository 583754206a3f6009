// AES-128 modes used by the Weave engines.
// Key export wraps exported keys with AES-128-CTR; passcode encryption
// encrypts a single padded block with AES-128-ECB.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

// AES constants.
const (
	// AES128KeySize is the AES-128 key size in bytes.
	AES128KeySize = 16

	// AESBlockSize is the AES block size (always 16 bytes).
	AESBlockSize = 16
)

// Errors for AES operations.
var (
	ErrAESInvalidKeySize   = errors.New("aes: invalid key size, must be 16 bytes")
	ErrAESInvalidIVSize    = errors.New("aes: invalid counter block size, must be 16 bytes")
	ErrAESInvalidBlockSize = errors.New("aes: input must be exactly one 16-byte block")
)

// AES128CTR encrypts or decrypts data with AES-128 in counter mode.
// CTR mode is symmetric: the same call decrypts what it encrypted.
//
// Parameters:
//   - key: 16-byte AES-128 key
//   - iv: 16-byte initial counter block (nil means all zero)
//   - data: input bytes
//
// Returns output of the same length as data.
func AES128CTR(key, iv, data []byte) ([]byte, error) {
	if len(key) != AES128KeySize {
		return nil, ErrAESInvalidKeySize
	}
	var ctr [AESBlockSize]byte
	if iv != nil {
		if len(iv) != AESBlockSize {
			return nil, ErrAESInvalidIVSize
		}
		copy(ctr[:], iv)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(data))
	cipher.NewCTR(block, ctr[:]).XORKeyStream(out, data)
	return out, nil
}

// AES128ECBEncryptBlock encrypts exactly one 16-byte block with AES-128.
func AES128ECBEncryptBlock(key, plaintext []byte) ([]byte, error) {
	block, err := newBlock(key, plaintext)
	if err != nil {
		return nil, err
	}
	out := make([]byte, AESBlockSize)
	block.Encrypt(out, plaintext)
	return out, nil
}

// AES128ECBDecryptBlock decrypts exactly one 16-byte block with AES-128.
func AES128ECBDecryptBlock(key, ciphertext []byte) ([]byte, error) {
	block, err := newBlock(key, ciphertext)
	if err != nil {
		return nil, err
	}
	out := make([]byte, AESBlockSize)
	block.Decrypt(out, ciphertext)
	return out, nil
}

func newBlock(key, in []byte) (cipher.Block, error) {
	if len(key) != AES128KeySize {
		return nil, ErrAESInvalidKeySize
	}
	if len(in) != AESBlockSize {
		return nil, ErrAESInvalidBlockSize
	}
	return aes.NewCipher(key)
}
