package keystore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/logging"
)

// Config configures a Store.
type Config struct {
	// Backend is the key storage. Required.
	Backend Backend

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Store resolves key ids to key material on top of a Backend.
//
// It owns the current-epoch cache and invalidates it whenever the set of
// epoch keys changes through its mutation methods. Changes made directly on
// the Backend must be followed by a call to OnEpochKeysChange.
type Store struct {
	backend Backend
	log     logging.LeveledLogger

	mu       sync.Mutex
	epoch    EpochState
	restored bool
}

// NewStore creates a Store and restores the persisted epoch key selection.
func NewStore(config Config) (*Store, error) {
	if config.Backend == nil {
		return nil, fmt.Errorf("%w: backend is required", ErrInvalidArgument)
	}
	s := &Store{
		backend: config.Backend,
		epoch:   UnknownEpochState(),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("keystore")
	}

	last, err := config.Backend.RetrieveLastUsedEpochKeyID()
	if err != nil {
		return nil, err
	}
	if last != KeyIDNone {
		s.epoch = EpochState{LastUsedEpochKeyID: last, NextEpochKeyStartTime: 0}
		s.restored = true
	}
	return s, nil
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// EpochState returns a snapshot of the current-epoch cache.
func (s *Store) EpochState() EpochState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// OnEpochKeysChange resets the current-epoch cache.
func (s *Store) OnEpochKeysChange() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch = UnknownEpochState()
	s.restored = false
}

// RetrieveGroupKey returns a stored key without derivation.
func (s *Store) RetrieveGroupKey(id KeyID) (GroupKey, error) {
	return s.backend.RetrieveGroupKey(id)
}

// StoreGroupKey stores a key.
func (s *Store) StoreGroupKey(key GroupKey) error {
	if !key.KeyID.IsValid() || key.KeyID.UsesCurrentEpochKey() {
		return ErrInvalidKeyID
	}
	if n := expectedKeySize(key.KeyID); n != 0 && int(key.KeyLen) != n {
		return fmt.Errorf("%w: %s must be %d bytes", ErrInvalidArgument, key.KeyID, n)
	}
	if err := s.backend.StoreGroupKey(key); err != nil {
		return err
	}
	if key.KeyID.Type() == KeyTypeAppEpochKey {
		s.OnEpochKeysChange()
	}
	return nil
}

// DeleteGroupKey deletes a stored key.
func (s *Store) DeleteGroupKey(id KeyID) error {
	if err := s.backend.DeleteGroupKey(id); err != nil {
		return err
	}
	if id.Type() == KeyTypeAppEpochKey {
		s.OnEpochKeysChange()
	}
	return nil
}

// DeleteGroupKeysOfAType deletes all stored keys of a type.
func (s *Store) DeleteGroupKeysOfAType(t KeyType) error {
	if err := s.backend.DeleteGroupKeysOfAType(t); err != nil {
		return err
	}
	if t == KeyTypeAppEpochKey {
		s.OnEpochKeysChange()
	}
	return nil
}

// EnumerateGroupKeys lists the ids of stored keys of a type.
func (s *Store) EnumerateGroupKeys(t KeyType) ([]KeyID, error) {
	return s.backend.EnumerateGroupKeys(t)
}

// Clear deletes all stored keys.
func (s *Store) Clear() error {
	if err := s.backend.Clear(); err != nil {
		return err
	}
	s.OnEpochKeysChange()
	return nil
}

// currentTime returns the backend time, mapping an unavailable clock to 0.
func (s *Store) currentTime() (uint32, error) {
	now, err := s.backend.CurrentUTCTime()
	switch {
	case err == nil:
		return now, nil
	case errors.Is(err, ErrUnsupportedClock), errors.Is(err, ErrTimeNotSynced):
		if s.log != nil {
			s.log.Debugf("time unavailable (%v), selecting epoch key for time 0", err)
		}
		return 0, nil
	default:
		return 0, err
	}
}

// GetCurrentAppKeyID resolves a current-epoch placeholder to a concrete key
// id. Ids without the placeholder are returned unchanged.
func (s *Store) GetCurrentAppKeyID(id KeyID) (KeyID, error) {
	if !id.UsesCurrentEpochKey() {
		return id, nil
	}
	epochID, err := s.currentEpochKeyID()
	if err != nil {
		return KeyIDNone, err
	}
	return UpdateEpochKeyID(id, epochID), nil
}

func (s *Store) currentEpochKeyID() (KeyID, error) {
	now, err := s.currentTime()
	if err != nil {
		return KeyIDNone, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.epoch.NeedsRefresh(now) {
		return s.epoch.LastUsedEpochKeyID, nil
	}

	ids, err := s.backend.EnumerateGroupKeys(KeyTypeAppEpochKey)
	if err != nil {
		return KeyIDNone, err
	}

	// With no usable clock a selection restored from the backend is kept
	// while its key still exists.
	if now == 0 && s.restored {
		for _, id := range ids {
			if id == s.epoch.LastUsedEpochKeyID {
				return id, nil
			}
		}
	}

	infos := make([]EpochKeyInfo, 0, len(ids))
	for _, id := range ids {
		k, err := s.backend.RetrieveGroupKey(id)
		if err != nil {
			return KeyIDNone, err
		}
		infos = append(infos, EpochKeyInfo{KeyID: id, StartTime: k.StartTime})
		k.Clear()
	}

	state, err := SelectCurrentEpochKey(now, infos)
	if err != nil {
		return KeyIDNone, err
	}
	changed := state.LastUsedEpochKeyID != s.epoch.LastUsedEpochKeyID
	s.epoch = state
	s.restored = false

	if changed {
		if s.log != nil {
			s.log.Debugf("current epoch key is %s until %d", state.LastUsedEpochKeyID, state.NextEpochKeyStartTime)
		}
		if err := s.backend.StoreLastUsedEpochKeyID(state.LastUsedEpochKeyID); err != nil {
			return KeyIDNone, err
		}
	}
	return state.LastUsedEpochKeyID, nil
}
