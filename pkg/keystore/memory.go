package keystore

import (
	"sort"
	"sync"
	"time"
)

// MemoryBackend is an in-memory Backend.
// Useful for testing and development. Data is lost when the process exits.
//
// All methods are safe for concurrent use.
type MemoryBackend struct {
	mu sync.RWMutex

	keys      map[KeyID]GroupKey
	lastEpoch KeyID
	clock     Clock
}

// NewMemoryBackend creates an empty in-memory backend. A nil clock uses the
// system clock.
func NewMemoryBackend(clock Clock) *MemoryBackend {
	if clock == nil {
		clock = SystemClock
	}
	return &MemoryBackend{
		keys:  make(map[KeyID]GroupKey),
		clock: clock,
	}
}

// SystemClock reports the wall-clock time.
func SystemClock() (uint32, error) {
	return uint32(time.Now().Unix()), nil
}

// SetClock replaces the clock.
func (m *MemoryBackend) SetClock(clock Clock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

// RetrieveGroupKey returns a copy of the stored key.
func (m *MemoryBackend) RetrieveGroupKey(id KeyID) (GroupKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k, ok := m.keys[id]
	if !ok {
		return GroupKey{}, ErrKeyNotFound
	}
	return k, nil
}

// StoreGroupKey stores or replaces a key.
func (m *MemoryBackend) StoreGroupKey(key GroupKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.keys[key.KeyID] = key
	return nil
}

// DeleteGroupKey removes a key.
func (m *MemoryBackend) DeleteGroupKey(id KeyID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.keys[id]; !ok {
		return ErrKeyNotFound
	}
	m.wipe(id)
	return nil
}

// DeleteGroupKeysOfAType removes all keys of the given type.
func (m *MemoryBackend) DeleteGroupKeysOfAType(t KeyType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.keys {
		if id.Type() == t {
			m.wipe(id)
		}
	}
	return nil
}

// EnumerateGroupKeys returns the ids of all keys of the given type in
// ascending order.
func (m *MemoryBackend) EnumerateGroupKeys(t KeyType) ([]KeyID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []KeyID
	for id := range m.keys {
		if id.Type() == t {
			ids = append(ids, id)
		}
	}
	if len(ids) > MaxGroupKeys {
		return nil, ErrTooManyKeys
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Clear removes all keys.
func (m *MemoryBackend) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.keys {
		m.wipe(id)
	}
	m.lastEpoch = KeyIDNone
	return nil
}

// CurrentUTCTime returns the backend clock's time.
func (m *MemoryBackend) CurrentUTCTime() (uint32, error) {
	m.mu.RLock()
	clock := m.clock
	m.mu.RUnlock()
	return clock()
}

// RetrieveLastUsedEpochKeyID returns the persisted epoch key selection.
func (m *MemoryBackend) RetrieveLastUsedEpochKeyID() (KeyID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastEpoch, nil
}

// StoreLastUsedEpochKeyID persists the epoch key selection.
func (m *MemoryBackend) StoreLastUsedEpochKeyID(id KeyID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastEpoch = id
	return nil
}

// wipe overwrites the stored record before removing it. Callers hold mu.
func (m *MemoryBackend) wipe(id KeyID) {
	m.keys[id] = GroupKey{}
	delete(m.keys, id)
}
