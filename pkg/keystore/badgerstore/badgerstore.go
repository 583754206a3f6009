// Package badgerstore implements a persistent keystore.Backend on BadgerDB.
//
// Key records live under "gk/<8 hex digit key id>" and the persisted epoch
// key selection under "meta/last-used-epoch". Values are little-endian:
//
//	keyLen(1) | startTime(4) | globalID(4) | key(keyLen)
package badgerstore

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/pion/logging"

	"github.com/backkem/weave/pkg/crypto"
	"github.com/backkem/weave/pkg/keystore"
	"github.com/backkem/weave/pkg/wire"
)

var (
	prefixGroupKey = []byte("gk/")
	keyLastEpoch   = []byte("meta/last-used-epoch")
)

// recordHeaderSize is the fixed part of a key record.
const recordHeaderSize = 1 + 4 + 4

// ErrCorruptRecord is returned when a stored record cannot be decoded.
var ErrCorruptRecord = errors.New("badgerstore: corrupt record")

// Config configures a Backend opened with Open.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in memory.
	InMemory bool

	// Clock supplies CurrentUTCTime. If nil, the system clock is used.
	Clock keystore.Clock

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Backend is a keystore.Backend stored in BadgerDB.
type Backend struct {
	db    *badger.DB
	owned bool
	clock keystore.Clock
	log   logging.LeveledLogger
}

var _ keystore.Backend = (*Backend)(nil)

// Open opens (or creates) a database and returns a Backend that owns it.
func Open(config Config) (*Backend, error) {
	path := config.Path
	if config.InMemory {
		path = ""
	}
	opts := badger.DefaultOptions(path).WithInMemory(config.InMemory)
	opts.Logger = nil

	var log logging.LeveledLogger
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("badgerstore")
		opts.Logger = badgerLogger{log}
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %q: %w", path, err)
	}
	b := New(db, config.Clock)
	b.owned = true
	b.log = log
	return b, nil
}

// New wraps an open database. The caller keeps ownership of db.
func New(db *badger.DB, clock keystore.Clock) *Backend {
	if clock == nil {
		clock = keystore.SystemClock
	}
	return &Backend{db: db, clock: clock}
}

// Close closes the database if it was opened by Open.
func (b *Backend) Close() error {
	if !b.owned {
		return nil
	}
	return b.db.Close()
}

func groupKeyKey(id keystore.KeyID) []byte {
	return []byte(fmt.Sprintf("%s%08x", prefixGroupKey, uint32(id)))
}

// typePrefix returns the key prefix shared by all stored ids of type t.
// Stored ids never carry flags, so the type occupies hex digits 1-4.
func typePrefix(t keystore.KeyType) []byte {
	return []byte(fmt.Sprintf("%s%08x", prefixGroupKey, uint32(t))[:len(prefixGroupKey)+5])
}

func encodeRecord(key keystore.GroupKey) ([]byte, error) {
	w := wire.NewWriter(recordHeaderSize + int(key.KeyLen))
	w.PutU8(key.KeyLen)
	w.PutU32(key.StartTime)
	w.PutU32(key.GlobalID)
	w.PutBytes(key.Secret())
	return w.Bytes()
}

func decodeRecord(id keystore.KeyID, val []byte) (keystore.GroupKey, error) {
	r := wire.NewReader(val)
	keyLen := r.U8()
	start := r.U32()
	global := r.U32()
	secret := r.Bytes(int(keyLen))
	if err := r.Done(); err != nil {
		return keystore.GroupKey{}, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, id, err)
	}
	key, err := keystore.NewGroupKey(id, secret)
	if err != nil {
		return keystore.GroupKey{}, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, id, err)
	}
	key.StartTime = start
	key.GlobalID = global
	return key, nil
}

// RetrieveGroupKey returns the stored key with the given id.
func (b *Backend) RetrieveGroupKey(id keystore.KeyID) (keystore.GroupKey, error) {
	var key keystore.GroupKey
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(groupKeyKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return keystore.ErrKeyNotFound
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		defer crypto.ClearSecretData(val)
		key, err = decodeRecord(id, val)
		return err
	})
	return key, err
}

// StoreGroupKey stores or replaces a key.
func (b *Backend) StoreGroupKey(key keystore.GroupKey) error {
	val, err := encodeRecord(key)
	if err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(groupKeyKey(key.KeyID), val)
	})
	if err == nil && b.log != nil {
		b.log.Debugf("stored %s", key.KeyID)
	}
	return err
}

// DeleteGroupKey removes a key.
func (b *Backend) DeleteGroupKey(id keystore.KeyID) error {
	k := groupKeyKey(id)
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(k); errors.Is(err, badger.ErrKeyNotFound) {
			return keystore.ErrKeyNotFound
		} else if err != nil {
			return err
		}
		return txn.Delete(k)
	})
}

// DeleteGroupKeysOfAType removes all keys of the given type.
func (b *Backend) DeleteGroupKeysOfAType(t keystore.KeyType) error {
	return b.deletePrefix(typePrefix(t))
}

func (b *Backend) deletePrefix(prefix []byte, extra ...[]byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		var keys [][]byte
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range append(keys, extra...) {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnumerateGroupKeys returns the ids of all keys of the given type in
// ascending order.
func (b *Backend) EnumerateGroupKeys(t keystore.KeyType) ([]keystore.KeyID, error) {
	prefix := typePrefix(t)
	var ids []keystore.KeyID
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := strconv.ParseUint(string(it.Item().Key()[len(prefixGroupKey):]), 16, 32)
			if err != nil {
				return fmt.Errorf("%w: key %q", ErrCorruptRecord, it.Item().Key())
			}
			if len(ids) == keystore.MaxGroupKeys {
				return keystore.ErrTooManyKeys
			}
			ids = append(ids, keystore.KeyID(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Clear removes all keys and the persisted epoch selection.
func (b *Backend) Clear() error {
	return b.deletePrefix(prefixGroupKey, keyLastEpoch)
}

// CurrentUTCTime returns the configured clock's time.
func (b *Backend) CurrentUTCTime() (uint32, error) {
	return b.clock()
}

// RetrieveLastUsedEpochKeyID returns the persisted epoch key selection.
func (b *Backend) RetrieveLastUsedEpochKeyID() (keystore.KeyID, error) {
	id := keystore.KeyIDNone
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyLastEpoch)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			r := wire.NewReader(val)
			v := r.U32()
			if err := r.Done(); err != nil {
				return fmt.Errorf("%w: last used epoch: %v", ErrCorruptRecord, err)
			}
			id = keystore.KeyID(v)
			return nil
		})
	})
	return id, err
}

// StoreLastUsedEpochKeyID persists the epoch key selection.
func (b *Backend) StoreLastUsedEpochKeyID(id keystore.KeyID) error {
	w := wire.NewWriter(4)
	w.PutU32(uint32(id))
	val, err := w.Bytes()
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyLastEpoch, val)
	})
}

// badgerLogger routes badger's log output to a pion logger.
type badgerLogger struct {
	log logging.LeveledLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.log.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.log.Infof(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.log.Debugf(format, args...) }
