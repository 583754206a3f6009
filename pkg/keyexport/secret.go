package keyexport

import (
	"github.com/backkem/weave/pkg/crypto"
)

// secretPhase names the single live secret of an exchange.
type secretPhase uint8

const (
	phaseNone secretPhase = iota
	// phaseECDHKey: the ephemeral key pair, between request and response.
	phaseECDHKey
	// phaseSharedSecret: the raw ECDH shared secret.
	phaseSharedSecret
	// phaseKeys: encryption key || authentication key.
	phaseKeys
)

const secretBufferSize = encryptionKeySize + authenticationKeySize

// sessionSecret holds at most one secret representation at a time. Moving
// to a later phase destroys the previous one.
type sessionSecret struct {
	phase secretPhase
	ecdh  *crypto.ECDHKeyPair
	buf   [secretBufferSize]byte
	n     int
}

func (s *sessionSecret) setECDHKey(kp *crypto.ECDHKeyPair) {
	s.clear()
	s.phase = phaseECDHKey
	s.ecdh = kp
}

// deriveSharedSecret replaces the key pair with the shared secret computed
// against peerPublicKey.
func (s *sessionSecret) deriveSharedSecret(peerPublicKey []byte) error {
	if s.phase != phaseECDHKey {
		return ErrIncorrectState
	}
	secret, err := s.ecdh.SharedSecret(peerPublicKey)
	if err != nil {
		s.clear()
		return err
	}
	defer crypto.ClearSecretData(secret)

	s.clear()
	s.phase = phaseSharedSecret
	s.n = copy(s.buf[:], secret)
	return nil
}

// deriveKeys replaces the shared secret with the encryption and
// authentication keys:
//
//	HKDF-SHA1(salt, IKM=shared secret, info=none)
func (s *sessionSecret) deriveKeys(salt []byte) error {
	if s.phase != phaseSharedSecret {
		return ErrIncorrectState
	}
	keys, err := crypto.HKDFSHA1(s.buf[:s.n], salt, nil, secretBufferSize)
	if err != nil {
		s.clear()
		return err
	}
	defer crypto.ClearSecretData(keys)

	s.clear()
	s.phase = phaseKeys
	s.n = copy(s.buf[:], keys)
	return nil
}

func (s *sessionSecret) encryptionKey() []byte {
	return s.buf[:encryptionKeySize]
}

func (s *sessionSecret) authenticationKey() []byte {
	return s.buf[encryptionKeySize:secretBufferSize]
}

func (s *sessionSecret) clear() {
	if s.ecdh != nil {
		s.ecdh.Clear()
		s.ecdh = nil
	}
	crypto.ClearSecretData(s.buf[:])
	s.n = 0
	s.phase = phaseNone
}

// isZero reports whether no secret material is held.
func (s *sessionSecret) isZero() bool {
	return s.phase == phaseNone && s.ecdh == nil && crypto.IsZero(s.buf[:])
}
