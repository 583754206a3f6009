// Package keystoretest provides deterministic key material for tests of
// packages that derive keys from a keystore.Store.
package keystoretest

import (
	"testing"

	"github.com/backkem/weave/pkg/keystore"
)

// Epoch key start times used by Populate.
const (
	Epoch0Start uint32 = 1000
	Epoch1Start uint32 = 2000
	Epoch2Start uint32 = 3000
)

// GroupMaster4GlobalID is the global id of group master key 4.
const GroupMaster4GlobalID uint32 = 0x00A1B2C3

// FabricSecret returns the fixture fabric secret: bytes 0x00..0x23.
func FabricSecret() []byte {
	return seq(0x00, keystore.FabricSecretSize)
}

// EpochKey returns the fixture secret for epoch key n.
func EpochKey(n uint8) []byte {
	return seq(0x10+0x30*n, keystore.EpochKeySize)
}

// GroupMasterKey returns the fixture secret for group master key 4.
func GroupMasterKey() []byte {
	return seq(0x80, keystore.GroupMasterKeySize)
}

func seq(start byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}

// Populate stores the fabric secret, epoch keys 0-2 and group master key 4.
func Populate(tb testing.TB, s *keystore.Store) {
	tb.Helper()

	mustStore(tb, s, keystore.FabricSecret, FabricSecret(), 0, 0)
	starts := []uint32{Epoch0Start, Epoch1Start, Epoch2Start}
	for n, start := range starts {
		mustStore(tb, s, keystore.MakeEpochKeyID(uint8(n)), EpochKey(uint8(n)), start, 0)
	}
	mustStore(tb, s, keystore.MakeGroupMasterKeyID(4), GroupMasterKey(), 0, GroupMaster4GlobalID)
}

func mustStore(tb testing.TB, s *keystore.Store, id keystore.KeyID, secret []byte, start, globalID uint32) {
	tb.Helper()
	k, err := keystore.NewGroupKey(id, secret)
	if err != nil {
		tb.Fatalf("NewGroupKey(%s) failed: %v", id, err)
	}
	k.StartTime = start
	k.GlobalID = globalID
	if err := s.StoreGroupKey(k); err != nil {
		tb.Fatalf("StoreGroupKey(%s) failed: %v", id, err)
	}
}

// NewStore returns a populated in-memory store whose clock reports now.
func NewStore(tb testing.TB, now uint32) *keystore.Store {
	tb.Helper()
	s, err := keystore.NewStore(keystore.Config{
		Backend: keystore.NewMemoryBackend(keystore.FixedClock(now)),
	})
	if err != nil {
		tb.Fatalf("NewStore failed: %v", err)
	}
	Populate(tb, s)
	return s
}
