package pase

import (
	"github.com/backkem/weave/pkg/crypto"
)

const maxConfirmKeySize = crypto.SHA256LenBytes

// SessionKey is the negotiated AES128CTRSHA1 session key.
type SessionKey struct {
	ID             uint16
	EncryptionType EncryptionType
	Key            [SessionKeySize]byte
}

// EncryptionKey returns the AES-128 key. The slice aliases k.
func (k *SessionKey) EncryptionKey() []byte {
	return k.Key[:EncryptionKeySize]
}

// IntegrityKey returns the HMAC-SHA1 key. The slice aliases k.
func (k *SessionKey) IntegrityKey() []byte {
	return k.Key[EncryptionKeySize:]
}

// Clear zeroes the key.
func (k *SessionKey) Clear() {
	crypto.ClearSecretData(k.Key[:])
}

// sessionKeys holds the derived session key and key confirmation key.
type sessionKeys struct {
	buf        [SessionKeySize + maxConfirmKeySize]byte
	confirmLen int
	derived    bool
}

// derive computes
//
//	HKDF-SHA1(salt = hash(initiator zkpGR) || hash(responder zkpGR), IKM = shared secret)
//
// expanded to the session key followed by confirmLen key confirmation bytes.
func (k *sessionKeys) derive(s suite, sharedSecret, initiatorGR, responderGR []byte, confirmLen int) error {
	salt := append(s.hash(initiatorGR), s.hash(responderGR)...)
	out, err := crypto.HKDFSHA1(sharedSecret, salt, nil, SessionKeySize+confirmLen)
	if err != nil {
		return err
	}
	defer crypto.ClearSecretData(out)

	k.clear()
	copy(k.buf[:], out)
	k.confirmLen = confirmLen
	k.derived = true
	return nil
}

func (k *sessionKeys) sessionKey() []byte {
	return k.buf[:SessionKeySize]
}

func (k *sessionKeys) confirmKey() []byte {
	return k.buf[SessionKeySize : SessionKeySize+k.confirmLen]
}

// responderConfirmHash is hash(confirmKey).
func (k *sessionKeys) responderConfirmHash(s suite) []byte {
	return s.hash(k.confirmKey())
}

// initiatorConfirmHash is hash(hash(confirmKey)).
func (k *sessionKeys) initiatorConfirmHash(s suite) []byte {
	h := k.responderConfirmHash(s)
	defer crypto.ClearSecretData(h)
	return s.hash(h)
}

// dropConfirmKey zeroes the key confirmation key once it is no longer
// needed.
func (k *sessionKeys) dropConfirmKey() {
	crypto.ClearSecretData(k.buf[SessionKeySize:])
	k.confirmLen = 0
}

func (k *sessionKeys) clear() {
	crypto.ClearSecretData(k.buf[:])
	k.confirmLen = 0
	k.derived = false
}

func (k *sessionKeys) isZero() bool {
	return !k.derived && crypto.IsZero(k.buf[:])
}
