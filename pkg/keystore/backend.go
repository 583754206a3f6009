package keystore

// MaxGroupKeys bounds the number of ids returned by EnumerateGroupKeys.
const MaxGroupKeys = 64

// Backend abstracts persistent storage for group keys.
//
// A Backend is shared by every engine that derives keys from it. Methods
// must be safe for concurrent use.
type Backend interface {
	// RetrieveGroupKey returns the stored key with the given id, or
	// ErrKeyNotFound.
	RetrieveGroupKey(id KeyID) (GroupKey, error)

	// StoreGroupKey stores or replaces a key.
	StoreGroupKey(key GroupKey) error

	// DeleteGroupKey removes a key. Deleting a missing key returns ErrKeyNotFound.
	DeleteGroupKey(id KeyID) error

	// DeleteGroupKeysOfAType removes every key of the given type.
	DeleteGroupKeysOfAType(t KeyType) error

	// EnumerateGroupKeys lists the ids of all keys of the given type, at most
	// MaxGroupKeys of them.
	EnumerateGroupKeys(t KeyType) ([]KeyID, error)

	// Clear removes all keys.
	Clear() error

	// CurrentUTCTime returns the current time in seconds since the Unix
	// epoch. It may fail with ErrUnsupportedClock or ErrTimeNotSynced.
	CurrentUTCTime() (uint32, error)

	// RetrieveLastUsedEpochKeyID returns the persisted epoch key selection,
	// or KeyIDNone.
	RetrieveLastUsedEpochKeyID() (KeyID, error)

	// StoreLastUsedEpochKeyID persists the epoch key selection.
	StoreLastUsedEpochKeyID(id KeyID) error
}

// Clock returns the current UTC time in seconds.
type Clock func() (uint32, error)

// NoClock is a Clock for devices without a real-time clock.
func NoClock() (uint32, error) {
	return 0, ErrUnsupportedClock
}

// FixedClock returns a Clock that always reports t.
func FixedClock(t uint32) Clock {
	return func() (uint32, error) { return t, nil }
}
