// Package passcode encrypts and decrypts short device passcodes into the
// fixed 41-byte encrypted passcode structure:
//
//	config(1) | keyID(4) | nonce(4) | passcode(16) | authenticator(8) | fingerprint(8)
//
// Config2 encrypts the zero-padded passcode with AES-128 and authenticates
// it with HMAC-SHA1, using keys derived from an application group key.
// Config1 applies no key and exists for testing only.
package passcode

import (
	"bytes"
	"fmt"

	"github.com/backkem/weave/pkg/crypto"
	"github.com/backkem/weave/pkg/keystore"
	"github.com/backkem/weave/pkg/wire"
)

// Encryption configs.
const (
	Config1TestOnly uint8 = 0x01
	Config2         uint8 = 0x02
)

// Sizes.
const (
	EncryptedPasscodeLen = 41
	MaxPasscodeLen       = 16

	EncryptionKeyLen     = crypto.AES128KeySize
	AuthenticationKeyLen = crypto.SHA1LenBytes
	FingerprintKeyLen    = crypto.SHA1LenBytes

	paddedLen        = 16
	authenticatorLen = 8
	fingerprintLen   = 8

	offsetKeyID         = 1
	offsetNonce         = 5
	offsetPasscode      = 9
	offsetAuthenticator = offsetPasscode + paddedLen
	offsetFingerprint   = offsetAuthenticator + authenticatorLen
)

// Application key diversifiers.
var (
	EncryptionKeyDiversifier  = []byte{0x1A, 0x65, 0x5D, 0x96}
	FingerprintKeyDiversifier = []byte{0xD1, 0xA1, 0xD9, 0x6C}
)

// KeyDeriver derives application keys. *keystore.Store implements it.
type KeyDeriver interface {
	DeriveApplicationKey(id keystore.KeyID, salt, diversifier []byte, keyLen int) (keystore.ApplicationKey, error)
}

// IsSupportedConfig reports whether config is a known encryption config.
func IsSupportedConfig(config uint8) bool {
	return config == Config1TestOnly || config == Config2
}

// EncryptPasscode encrypts passcode with keys derived from keyID.
//
// For Config2, keyID must be an application static or rotating key; a
// current-epoch key id is resolved and the concrete id is written to the
// output. The fingerprint key always comes from the static variant of keyID.
func EncryptPasscode(config uint8, keyID keystore.KeyID, nonce uint32, passcode []byte, keys KeyDeriver) ([]byte, error) {
	if config != Config2 {
		return EncryptPasscodeWithKeys(config, keyID, nonce, passcode, nil, nil, nil)
	}

	encKeys, fpKey, err := deriveKeys(keyID, keys)
	if err != nil {
		return nil, err
	}
	defer encKeys.Clear()
	defer fpKey.Clear()

	return EncryptPasscodeWithKeys(config, encKeys.KeyID, nonce, passcode,
		encKeys.Key[:EncryptionKeyLen], encKeys.Key[EncryptionKeyLen:], fpKey.Key)
}

// EncryptPasscodeWithKeys encrypts passcode with caller-supplied keys. The
// keys are ignored for Config1TestOnly.
func EncryptPasscodeWithKeys(config uint8, keyID keystore.KeyID, nonce uint32, passcode, encKey, authKey, fingerprintKey []byte) ([]byte, error) {
	if len(passcode) > MaxPasscodeLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPasscodeLength, len(passcode))
	}
	if !IsSupportedConfig(config) {
		return nil, fmt.Errorf("%w: %#02x", ErrUnsupportedConfig, config)
	}
	if config == Config2 {
		if err := checkKeys(encKey, authKey, fingerprintKey); err != nil {
			return nil, err
		}
	}

	padded := make([]byte, paddedLen)
	defer crypto.ClearSecretData(padded)
	copy(padded, passcode)

	body := padded
	if config == Config2 {
		enc, err := crypto.AES128ECBEncryptBlock(encKey, padded)
		if err != nil {
			return nil, err
		}
		body = enc
	}

	w := wire.NewWriter(EncryptedPasscodeLen)
	w.PutU8(config)
	w.PutU32(uint32(keyID))
	w.PutU32(nonce)
	w.PutBytes(body)
	w.PutZeros(authenticatorLen)
	w.PutBytes(fingerprint(config, fingerprintKey, passcode))
	out, err := w.Bytes()
	if err != nil {
		return nil, err
	}
	copy(out[offsetAuthenticator:offsetFingerprint], authenticator(authKey, out))
	return out, nil
}

// DecryptPasscode decrypts an encrypted passcode using keys derived from
// the key id it carries.
func DecryptPasscode(encrypted []byte, keys KeyDeriver) ([]byte, error) {
	config, err := GetEncryptedPasscodeConfig(encrypted)
	if err != nil {
		return nil, err
	}
	if config != Config2 {
		return DecryptPasscodeWithKeys(encrypted, nil, nil, nil)
	}

	keyID, err := GetEncryptedPasscodeKeyID(encrypted)
	if err != nil {
		return nil, err
	}
	encKeys, fpKey, err := deriveKeys(keyID, keys)
	if err != nil {
		return nil, err
	}
	defer encKeys.Clear()
	defer fpKey.Clear()

	return DecryptPasscodeWithKeys(encrypted,
		encKeys.Key[:EncryptionKeyLen], encKeys.Key[EncryptionKeyLen:], fpKey.Key)
}

// DecryptPasscodeWithKeys decrypts an encrypted passcode with caller-supplied
// keys. The authenticator is checked before the passcode is decrypted.
//
// The passcode ends at the first zero byte of the padded block, so passcodes
// with embedded NUL bytes come back truncated.
func DecryptPasscodeWithKeys(encrypted, encKey, authKey, fingerprintKey []byte) ([]byte, error) {
	if len(encrypted) != EncryptedPasscodeLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPasscodeLength, len(encrypted))
	}
	config := encrypted[0]
	if !IsSupportedConfig(config) {
		return nil, fmt.Errorf("%w: %#02x", ErrUnsupportedConfig, config)
	}
	if config == Config2 {
		if err := checkKeys(encKey, authKey, fingerprintKey); err != nil {
			return nil, err
		}
	}

	if !crypto.ConstantTimeEqual(authenticator(authKey, encrypted), encrypted[offsetAuthenticator:offsetFingerprint]) {
		return nil, ErrAuthenticationFailed
	}

	body := encrypted[offsetPasscode:offsetAuthenticator]
	padded := make([]byte, paddedLen)
	defer crypto.ClearSecretData(padded)
	if config == Config2 {
		dec, err := crypto.AES128ECBDecryptBlock(encKey, body)
		if err != nil {
			return nil, err
		}
		copy(padded, dec)
		crypto.ClearSecretData(dec)
	} else {
		copy(padded, body)
	}

	n := bytes.IndexByte(padded, 0)
	if n < 0 {
		n = paddedLen
	}
	passcode := make([]byte, n)
	copy(passcode, padded[:n])

	if !crypto.ConstantTimeEqual(fingerprint(config, fingerprintKey, passcode), encrypted[offsetFingerprint:]) {
		crypto.ClearSecretData(passcode)
		return nil, ErrFingerprintFailed
	}
	return passcode, nil
}

// GetEncryptedPasscodeConfig returns the encryption config.
func GetEncryptedPasscodeConfig(encrypted []byte) (uint8, error) {
	if len(encrypted) != EncryptedPasscodeLen {
		return 0, ErrInvalidPasscodeLength
	}
	return encrypted[0], nil
}

// GetEncryptedPasscodeKeyID returns the key id.
func GetEncryptedPasscodeKeyID(encrypted []byte) (keystore.KeyID, error) {
	if len(encrypted) != EncryptedPasscodeLen {
		return keystore.KeyIDNone, ErrInvalidPasscodeLength
	}
	r := wire.NewReader(encrypted[offsetKeyID:])
	return keystore.KeyID(r.U32()), nil
}

// GetEncryptedPasscodeNonce returns the nonce.
func GetEncryptedPasscodeNonce(encrypted []byte) (uint32, error) {
	if len(encrypted) != EncryptedPasscodeLen {
		return 0, ErrInvalidPasscodeLength
	}
	r := wire.NewReader(encrypted[offsetNonce:])
	return r.U32(), nil
}

// GetEncryptedPasscodeFingerprint returns a copy of the fingerprint.
func GetEncryptedPasscodeFingerprint(encrypted []byte) ([]byte, error) {
	if len(encrypted) != EncryptedPasscodeLen {
		return nil, ErrInvalidPasscodeLength
	}
	return append([]byte(nil), encrypted[offsetFingerprint:]...), nil
}

// deriveKeys derives the encryption/authentication key pair from keyID and
// the fingerprint key from its static variant.
func deriveKeys(keyID keystore.KeyID, keys KeyDeriver) (encKeys, fpKey keystore.ApplicationKey, err error) {
	if !keyID.IsAppGroupKey() {
		return encKeys, fpKey, fmt.Errorf("%w: %s", ErrInvalidKeyID, keyID)
	}
	encKeys, err = keys.DeriveApplicationKey(keyID, nil, EncryptionKeyDiversifier, EncryptionKeyLen+AuthenticationKeyLen)
	if err != nil {
		return encKeys, fpKey, err
	}
	fpKey, err = keys.DeriveApplicationKey(keystore.ConvertToStaticAppKeyID(keyID), nil, FingerprintKeyDiversifier, FingerprintKeyLen)
	if err != nil {
		encKeys.Clear()
		return keystore.ApplicationKey{}, fpKey, err
	}
	return encKeys, fpKey, nil
}

func checkKeys(encKey, authKey, fingerprintKey []byte) error {
	if len(encKey) != EncryptionKeyLen || len(authKey) != AuthenticationKeyLen || len(fingerprintKey) != FingerprintKeyLen {
		return ErrInvalidKey
	}
	return nil
}

// authenticator computes the authenticator over config | nonce | passcode
// block of an encoded structure. Config1TestOnly uses an unkeyed SHA-1.
func authenticator(authKey, encoded []byte) []byte {
	msg := make([]byte, 0, 1+4+paddedLen)
	msg = append(msg, encoded[0])
	msg = append(msg, encoded[offsetNonce:offsetAuthenticator]...)
	defer crypto.ClearSecretData(msg)

	if encoded[0] == Config1TestOnly {
		sum := crypto.SHA1(msg)
		return sum[:authenticatorLen]
	}
	sum := crypto.HMACSHA1(authKey, msg)
	return sum[:authenticatorLen]
}

// fingerprint computes the passcode fingerprint.
func fingerprint(config uint8, fingerprintKey, passcode []byte) []byte {
	if config == Config1TestOnly {
		sum := crypto.SHA1(passcode)
		return sum[:fingerprintLen]
	}
	sum := crypto.HMACSHA1(fingerprintKey, passcode)
	return sum[:fingerprintLen]
}
