package keystore

import (
	"fmt"

	"github.com/backkem/weave/pkg/crypto"
)

// GetGroupKey returns the key material for id, deriving root and
// intermediate keys on demand.
//
// The caller owns the returned record and should Clear it when done.
func (s *Store) GetGroupKey(id KeyID) (GroupKey, error) {
	var (
		key GroupKey
		err error
	)

	switch id.Type() {
	case KeyTypeAppRootKey:
		if id == FabricRootKey || id == ClientRootKey {
			key, err = s.deriveRootKey(id)
		} else {
			key, err = s.backend.RetrieveGroupKey(id)
		}
	case KeyTypeGeneral, KeyTypeAppGroupMasterKey:
		key, err = s.backend.RetrieveGroupKey(id)
	case KeyTypeAppEpochKey:
		if id, err = s.GetCurrentAppKeyID(id); err != nil {
			return GroupKey{}, err
		}
		key, err = s.backend.RetrieveGroupKey(id)
	case KeyTypeAppIntermediateKey:
		if id, err = s.GetCurrentAppKeyID(id); err != nil {
			return GroupKey{}, err
		}
		key, err = s.deriveIntermediateKey(id)
	default:
		return GroupKey{}, ErrInvalidKeyID
	}
	if err != nil {
		return GroupKey{}, err
	}

	if key.KeyID != id {
		key.Clear()
		return GroupKey{}, fmt.Errorf("%w: got key %s for %s", ErrInvalidArgument, key.KeyID, id)
	}
	if n := expectedKeySize(id); n != 0 && int(key.KeyLen) != n {
		key.Clear()
		return GroupKey{}, fmt.Errorf("%w: %s has length %d", ErrInvalidArgument, id, key.KeyLen)
	}
	return key, nil
}

// deriveRootKey derives the fabric or client root key from the fabric secret.
func (s *Store) deriveRootKey(id KeyID) (GroupKey, error) {
	diversifier := FabricRootKeyDiversifier
	if id == ClientRootKey {
		diversifier = ClientRootKeyDiversifier
	}

	secret, err := s.GetGroupKey(FabricSecret)
	if err != nil {
		return GroupKey{}, err
	}
	defer secret.Clear()

	derived, err := crypto.HKDFSHA1(secret.Secret(), nil, diversifier, RootKeySize)
	if err != nil {
		return GroupKey{}, err
	}
	defer crypto.ClearSecretData(derived)

	return NewGroupKey(id, derived)
}

// deriveIntermediateKey computes
// HKDF-SHA1(salt=none, IKM=root key, info=epoch key || diversifier).
func (s *Store) deriveIntermediateKey(id KeyID) (GroupKey, error) {
	root, err := s.GetGroupKey(id.RootKeyID())
	if err != nil {
		return GroupKey{}, err
	}
	defer root.Clear()

	epoch, err := s.GetGroupKey(id.EpochKeyID())
	if err != nil {
		return GroupKey{}, err
	}
	defer epoch.Clear()

	info := make([]byte, 0, EpochKeySize+len(IntermediateDiversifier))
	info = append(info, epoch.Secret()...)
	info = append(info, IntermediateDiversifier...)
	defer crypto.ClearSecretData(info)

	derived, err := crypto.HKDFSHA1(root.Secret(), nil, info, IntermediateKeySize)
	if err != nil {
		return GroupKey{}, err
	}
	defer crypto.ClearSecretData(derived)

	return NewGroupKey(id, derived)
}

// DeriveApplicationKey derives keyLen bytes of application key material for
// an application static or rotating key id:
//
//	HKDF-SHA1(salt, IKM=root or intermediate key, info=group master key || diversifier)
//
// A current-epoch placeholder in id is resolved first; the concrete id is
// returned with the key. The caller should Clear the result when done.
func (s *Store) DeriveApplicationKey(id KeyID, salt, diversifier []byte, keyLen int) (ApplicationKey, error) {
	if !id.IsAppGroupKey() {
		return ApplicationKey{}, ErrInvalidKeyID
	}

	id, err := s.GetCurrentAppKeyID(id)
	if err != nil {
		return ApplicationKey{}, err
	}

	baseID := id.RootKeyID()
	if id.IncorporatesEpochKey() {
		baseID = MakeAppIntermediateKeyID(id.RootKeyID(), id.EpochKeyID(), false)
	}
	base, err := s.GetGroupKey(baseID)
	if err != nil {
		return ApplicationKey{}, err
	}
	defer base.Clear()

	master, err := s.GetGroupKey(id.GroupMasterKeyID())
	if err != nil {
		return ApplicationKey{}, err
	}
	defer master.Clear()

	info := make([]byte, 0, int(master.KeyLen)+len(diversifier))
	info = append(info, master.Secret()...)
	info = append(info, diversifier...)
	defer crypto.ClearSecretData(info)

	derived, err := crypto.HKDFSHA1(base.Secret(), salt, info, keyLen)
	if err != nil {
		return ApplicationKey{}, err
	}

	if s.log != nil {
		s.log.Debugf("derived %d-byte application key for %s", keyLen, id)
	}
	return ApplicationKey{
		KeyID:         id,
		Key:           derived,
		GroupGlobalID: master.GlobalID,
	}, nil
}
