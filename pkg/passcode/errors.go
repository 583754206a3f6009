package passcode

import "errors"

var (
	// ErrInvalidPasscodeLength is returned for passcodes longer than
	// MaxPasscodeLen or encrypted structures that are not EncryptedPasscodeLen
	// bytes.
	ErrInvalidPasscodeLength = errors.New("passcode: invalid length")

	// ErrUnsupportedConfig is returned for an unknown encryption config.
	ErrUnsupportedConfig = errors.New("passcode: unsupported encryption config")

	// ErrAuthenticationFailed is returned when the authenticator does not
	// match.
	ErrAuthenticationFailed = errors.New("passcode: authentication failed")

	// ErrFingerprintFailed is returned when the fingerprint of the decrypted
	// passcode does not match.
	ErrFingerprintFailed = errors.New("passcode: fingerprint verification failed")

	// ErrInvalidKeyID is returned when the key id is not an application group
	// key.
	ErrInvalidKeyID = errors.New("passcode: invalid key id")

	// ErrInvalidKey is returned when a supplied key has the wrong length.
	ErrInvalidKey = errors.New("passcode: invalid key")
)
