package keystore

import (
	"github.com/backkem/weave/pkg/crypto"
)

// Key sizes.
const (
	// MaxKeySize is the largest secret a GroupKey can hold.
	MaxKeySize = 36

	FabricSecretSize    = 36
	RootKeySize         = 32
	EpochKeySize        = 32
	GroupMasterKeySize  = 32
	IntermediateKeySize = 32
)

// Key diversifiers.
var (
	FabricRootKeyDiversifier = []byte{0x21, 0xFA, 0x8F, 0x6A}
	ClientRootKeyDiversifier = []byte{0x53, 0xE3, 0xFF, 0xE5}
	IntermediateDiversifier  = []byte{0xBC, 0xAA, 0x95, 0xAD}
)

// GroupKey is a tagged key record. StartTime is meaningful for epoch keys and
// GlobalID for group master keys.
type GroupKey struct {
	KeyID     KeyID
	KeyLen    uint8
	Key       [MaxKeySize]byte
	StartTime uint32
	GlobalID  uint32
}

// NewGroupKey creates a key record holding a copy of secret.
func NewGroupKey(id KeyID, secret []byte) (GroupKey, error) {
	if len(secret) > MaxKeySize {
		return GroupKey{}, ErrInvalidArgument
	}
	k := GroupKey{KeyID: id, KeyLen: uint8(len(secret))}
	copy(k.Key[:], secret)
	return k, nil
}

// Secret returns the live portion of the key buffer. The slice aliases the
// record.
func (k *GroupKey) Secret() []byte {
	return k.Key[:k.KeyLen]
}

// Clear zeroes the whole key buffer.
func (k *GroupKey) Clear() {
	crypto.ClearSecretData(k.Key[:])
	k.KeyLen = 0
}

// expectedKeySize returns the required secret length for a stored or derived
// key type, or 0 if the type has no fixed size.
func expectedKeySize(id KeyID) int {
	switch id.Type() {
	case KeyTypeGeneral:
		if id == FabricSecret {
			return FabricSecretSize
		}
	case KeyTypeAppRootKey:
		return RootKeySize
	case KeyTypeAppEpochKey:
		return EpochKeySize
	case KeyTypeAppGroupMasterKey:
		return GroupMasterKeySize
	case KeyTypeAppIntermediateKey:
		return IntermediateKeySize
	}
	return 0
}

// ApplicationKey is the output of DeriveApplicationKey.
type ApplicationKey struct {
	// KeyID is the concrete key id; a current-epoch placeholder is resolved.
	KeyID KeyID

	// Key is the derived key material.
	Key []byte

	// GroupGlobalID is the global id of the group master key.
	GroupGlobalID uint32
}

// Clear zeroes the key material.
func (k *ApplicationKey) Clear() {
	crypto.ClearSecretData(k.Key)
}
