package keystore

import "errors"

var (
	// ErrKeyNotFound is returned when a key is not present in the store.
	ErrKeyNotFound = errors.New("keystore: key not found")

	// ErrInvalidKeyID is returned when a key id has the wrong type for the
	// requested operation.
	ErrInvalidKeyID = errors.New("keystore: invalid key id")

	// ErrInvalidArgument is returned when a retrieved or derived key does not
	// match the expected id or length.
	ErrInvalidArgument = errors.New("keystore: invalid argument")

	// ErrUnsupportedClock is returned by a backend that has no clock.
	ErrUnsupportedClock = errors.New("keystore: unsupported clock")

	// ErrTimeNotSynced is returned by a backend whose clock is not yet synchronized.
	ErrTimeNotSynced = errors.New("keystore: time not synced yet")

	// ErrTooManyKeys is returned when an enumeration exceeds MaxGroupKeys.
	ErrTooManyKeys = errors.New("keystore: too many keys")
)
