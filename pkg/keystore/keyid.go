// Package keystore implements Weave group key storage and the group key
// derivation hierarchy.
//
// Keys are addressed by a 32-bit KeyID that encodes the key type and its
// type-specific sub-fields. Root keys are derived from the fabric secret,
// intermediate keys combine a root key with an epoch key, and application
// keys combine a root or intermediate key with a group master key:
//
//	fabric secret --HKDF--> root key --+
//	                                   +--HKDF--> intermediate key --+
//	epoch key -------------------------+                             +--HKDF--> application key
//	group master key ------------------------------------------------+
//
// Only the fabric secret, service root keys, epoch keys and group master
// keys are stored; everything else is derived on demand.
package keystore

import "fmt"

// KeyID identifies a key. The high nibble carries flags, the next 16 bits the
// key type and the low 12 bits type-specific key numbers.
type KeyID uint32

// KeyType is the type portion of a KeyID.
type KeyType uint32

// Key types.
const (
	KeyTypeNone               KeyType = 0x00000000
	KeyTypeGeneral            KeyType = 0x00001000
	KeyTypeSession            KeyType = 0x00002000
	KeyTypeAppStaticKey       KeyType = 0x00004000
	KeyTypeAppRotatingKey     KeyType = 0x00005000
	KeyTypeAppRootKey         KeyType = 0x00010000
	KeyTypeAppEpochKey        KeyType = 0x00020000
	KeyTypeAppGroupMasterKey  KeyType = 0x00030000
	KeyTypeAppIntermediateKey KeyType = 0x00040000
)

const (
	maskFlags            = 0xF0000000
	maskType             = 0x0FFFF000
	maskKeyNumber        = 0x00000FFF
	maskRootKeyNumber    = 0x00000C00
	maskEpochKeyNumber   = 0x00000380
	maskGroupLocalNumber = 0x0000007F

	shiftRootKeyNumber  = 10
	shiftEpochKeyNumber = 7

	typeModifierIncorporatesEpochKey = 0x00001000
)

// FlagUseCurrentEpochKey marks a key id whose epoch key is resolved to the
// current epoch key at lookup time.
const FlagUseCurrentEpochKey KeyID = 0x80000000

// Well-known key ids.
const (
	KeyIDNone KeyID = 0

	// FabricSecret is the root secret of the fabric.
	FabricSecret KeyID = KeyID(KeyTypeGeneral) | 0x001

	FabricRootKey  KeyID = KeyID(KeyTypeAppRootKey) | 0<<shiftRootKeyNumber
	ClientRootKey  KeyID = KeyID(KeyTypeAppRootKey) | 1<<shiftRootKeyNumber
	ServiceRootKey KeyID = KeyID(KeyTypeAppRootKey) | 2<<shiftRootKeyNumber

	// CurrentEpochKey names whichever epoch key is current at lookup time.
	CurrentEpochKey KeyID = KeyID(KeyTypeAppEpochKey) | FlagUseCurrentEpochKey
)

// Limits on key numbers.
const (
	MaxEpochKeyNumber   = 7
	MaxGroupLocalNumber = 127
)

// Type returns the key type.
func (id KeyID) Type() KeyType {
	return KeyType(id & maskType)
}

// IsAppGroupKey reports whether id is an application static or rotating key.
func (id KeyID) IsAppGroupKey() bool {
	t := id.Type()
	return t == KeyTypeAppStaticKey || t == KeyTypeAppRotatingKey
}

// IncorporatesRootKey reports whether id is derived from a root key.
func (id KeyID) IncorporatesRootKey() bool {
	t := id.Type()
	return t == KeyTypeAppStaticKey || t == KeyTypeAppRotatingKey || t == KeyTypeAppIntermediateKey
}

// IncorporatesEpochKey reports whether id is derived from an epoch key.
func (id KeyID) IncorporatesEpochKey() bool {
	t := id.Type()
	return t == KeyTypeAppRotatingKey || t == KeyTypeAppIntermediateKey
}

// IncorporatesGroupMasterKey reports whether id is derived from a group
// master key.
func (id KeyID) IncorporatesGroupMasterKey() bool {
	return id.IsAppGroupKey()
}

// UsesCurrentEpochKey reports whether the epoch key is a placeholder for the
// current epoch key.
func (id KeyID) UsesCurrentEpochKey() bool {
	return id&FlagUseCurrentEpochKey != 0
}

// RootKeyID returns the root key id embedded in id.
func (id KeyID) RootKeyID() KeyID {
	return KeyID(KeyTypeAppRootKey) | id&maskRootKeyNumber
}

// EpochKeyID returns the epoch key id embedded in id.
func (id KeyID) EpochKeyID() KeyID {
	return KeyID(KeyTypeAppEpochKey) | id&maskEpochKeyNumber
}

// GroupMasterKeyID returns the group master key id embedded in id.
func (id KeyID) GroupMasterKeyID() KeyID {
	return KeyID(KeyTypeAppGroupMasterKey) | id&maskGroupLocalNumber
}

// EpochKeyNumber returns the epoch key number (0-7).
func (id KeyID) EpochKeyNumber() uint8 {
	return uint8((id & maskEpochKeyNumber) >> shiftEpochKeyNumber)
}

// GroupLocalNumber returns the group master key local number (0-127).
func (id KeyID) GroupLocalNumber() uint8 {
	return uint8(id & maskGroupLocalNumber)
}

// MakeEpochKeyID returns the id of epoch key n.
func MakeEpochKeyID(n uint8) KeyID {
	return KeyID(KeyTypeAppEpochKey) | KeyID(n)<<shiftEpochKeyNumber&maskEpochKeyNumber
}

// MakeGroupMasterKeyID returns the id of group master key n.
func MakeGroupMasterKeyID(n uint8) KeyID {
	return KeyID(KeyTypeAppGroupMasterKey) | KeyID(n)&maskGroupLocalNumber
}

// MakeAppKeyID builds an application key id from its components. For
// rotating keys either the epoch key number or the current-epoch flag is set.
func MakeAppKeyID(keyType KeyType, rootKeyID, epochKeyID, groupMasterKeyID KeyID, useCurrentEpochKey bool) KeyID {
	id := KeyID(keyType) | rootKeyID&maskRootKeyNumber | groupMasterKeyID&maskGroupLocalNumber
	if keyType == KeyTypeAppRotatingKey {
		if useCurrentEpochKey {
			id |= FlagUseCurrentEpochKey
		} else {
			id |= epochKeyID & maskEpochKeyNumber
		}
	}
	return id
}

// MakeAppRotatingKeyID builds a rotating application key id.
func MakeAppRotatingKeyID(rootKeyID, epochKeyID, groupMasterKeyID KeyID, useCurrentEpochKey bool) KeyID {
	return MakeAppKeyID(KeyTypeAppRotatingKey, rootKeyID, epochKeyID, groupMasterKeyID, useCurrentEpochKey)
}

// MakeAppStaticKeyID builds a static application key id.
func MakeAppStaticKeyID(rootKeyID, groupMasterKeyID KeyID) KeyID {
	return MakeAppKeyID(KeyTypeAppStaticKey, rootKeyID, KeyIDNone, groupMasterKeyID, false)
}

// MakeAppIntermediateKeyID builds an intermediate key id.
func MakeAppIntermediateKeyID(rootKeyID, epochKeyID KeyID, useCurrentEpochKey bool) KeyID {
	id := KeyID(KeyTypeAppIntermediateKey) | rootKeyID&maskRootKeyNumber
	if useCurrentEpochKey {
		id |= FlagUseCurrentEpochKey
	} else {
		id |= epochKeyID & maskEpochKeyNumber
	}
	return id
}

// ConvertToStaticAppKeyID returns the static variant of a rotating key id.
func ConvertToStaticAppKeyID(id KeyID) KeyID {
	return id &^ (typeModifierIncorporatesEpochKey | FlagUseCurrentEpochKey | maskEpochKeyNumber)
}

// UpdateEpochKeyID replaces the epoch key number of id and clears the
// current-epoch flag.
func UpdateEpochKeyID(id, epochKeyID KeyID) KeyID {
	return id&^(FlagUseCurrentEpochKey|maskEpochKeyNumber) | epochKeyID&maskEpochKeyNumber
}

// IsSameKeyOrGroup reports whether two ids name the same key, treating
// rotating keys that differ only in their epoch as the same.
func IsSameKeyOrGroup(a, b KeyID) bool {
	if a == b {
		return true
	}
	const ignoreEpoch = ^KeyID(maskEpochKeyNumber | FlagUseCurrentEpochKey)
	return a.Type() == KeyTypeAppRotatingKey && b.Type() == KeyTypeAppRotatingKey &&
		a&ignoreEpoch == b&ignoreEpoch
}

// IsValid reports whether id is a well-formed key id.
func (id KeyID) IsValid() bool {
	flags := id & maskFlags
	num := id & maskKeyNumber
	switch id.Type() {
	case KeyTypeNone:
		return id == KeyIDNone
	case KeyTypeGeneral, KeyTypeSession:
		return flags == 0
	case KeyTypeAppRootKey:
		return flags == 0 && num&^maskRootKeyNumber == 0 && num>>shiftRootKeyNumber <= 2
	case KeyTypeAppEpochKey:
		if flags&^FlagUseCurrentEpochKey != 0 || num&^maskEpochKeyNumber != 0 {
			return false
		}
		return !id.UsesCurrentEpochKey() || num == 0
	case KeyTypeAppGroupMasterKey:
		return flags == 0 && num&^maskGroupLocalNumber == 0
	case KeyTypeAppStaticKey:
		return flags == 0 && num&maskEpochKeyNumber == 0 && num>>shiftRootKeyNumber <= 2
	case KeyTypeAppRotatingKey:
		if flags&^FlagUseCurrentEpochKey != 0 || num>>shiftRootKeyNumber > 2 {
			return false
		}
		return !id.UsesCurrentEpochKey() || num&maskEpochKeyNumber == 0
	case KeyTypeAppIntermediateKey:
		if flags&^FlagUseCurrentEpochKey != 0 || num&maskGroupLocalNumber != 0 || num>>shiftRootKeyNumber > 2 {
			return false
		}
		return !id.UsesCurrentEpochKey() || num&maskEpochKeyNumber == 0
	}
	return false
}

// String returns a human-readable description of the key id.
func (id KeyID) String() string {
	switch id.Type() {
	case KeyTypeNone:
		return "None"
	case KeyTypeGeneral:
		if id == FabricSecret {
			return "FabricSecret"
		}
		return fmt.Sprintf("General(%#03x)", uint32(id&maskKeyNumber))
	case KeyTypeSession:
		return fmt.Sprintf("Session(%#03x)", uint32(id&maskKeyNumber))
	case KeyTypeAppRootKey:
		switch id {
		case FabricRootKey:
			return "FabricRootKey"
		case ClientRootKey:
			return "ClientRootKey"
		case ServiceRootKey:
			return "ServiceRootKey"
		}
	case KeyTypeAppEpochKey:
		return epochString(id)
	case KeyTypeAppGroupMasterKey:
		return fmt.Sprintf("GroupMasterKey%d", id.GroupLocalNumber())
	case KeyTypeAppStaticKey:
		return fmt.Sprintf("AppStaticKey(%s, GroupMasterKey%d)", id.RootKeyID(), id.GroupLocalNumber())
	case KeyTypeAppRotatingKey:
		return fmt.Sprintf("AppRotatingKey(%s, %s, GroupMasterKey%d)", id.RootKeyID(), epochString(id), id.GroupLocalNumber())
	case KeyTypeAppIntermediateKey:
		return fmt.Sprintf("AppIntermediateKey(%s, %s)", id.RootKeyID(), epochString(id))
	}
	return fmt.Sprintf("KeyID(%#08x)", uint32(id))
}

func epochString(id KeyID) string {
	if id.UsesCurrentEpochKey() {
		return "CurrentEpochKey"
	}
	return fmt.Sprintf("EpochKey%d", id.EpochKeyNumber())
}
