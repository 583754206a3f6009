package keyexport

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/pion/logging"

	"github.com/backkem/weave/pkg/crypto"
	"github.com/backkem/weave/pkg/keystore"
	"github.com/backkem/weave/pkg/wire"
)

// KeyStore resolves key ids to key material on the responder.
// *keystore.Store implements it.
type KeyStore interface {
	GetGroupKey(id keystore.KeyID) (keystore.GroupKey, error)
}

// Config configures an Engine.
type Config struct {
	// Delegate supplies credentials and access policy. Required.
	Delegate Delegate

	// KeyStore supplies exported keys. Required for responders.
	KeyStore KeyStore

	// AllowedConfigs lists the configs this node accepts, in order of
	// preference for alternates. If nil, DefaultConfigs is used.
	AllowedConfigs ConfigSet

	// Rand is the randomness source. If nil, crypto/rand is used.
	Rand io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Engine runs one key export exchange at a time, as either initiator or
// responder.
//
// An Engine is not safe for concurrent use; callers serialize calls. Run
// independent exchanges on independent engines.
type Engine struct {
	delegate Delegate
	store    KeyStore
	allowed  ConfigSet
	rand     io.Reader
	log      logging.LeveledLogger

	state          State
	protocolConfig ProtocolConfig
	altConfigs     []ProtocolConfig
	keyID          keystore.KeyID
	signMessages   bool
	reconfigure    bool
	peerPublicKey  []byte
	secret         sessionSecret
}

// New creates an Engine in the Reset state.
func New(config Config) (*Engine, error) {
	allowed := config.AllowedConfigs
	if allowed == nil {
		allowed = DefaultConfigs
	}
	if err := allowed.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		allowed: append(ConfigSet(nil), allowed...),
		rand:    config.Rand,
	}
	if e.rand == nil {
		e.rand = rand.Reader
	}
	if config.LoggerFactory != nil {
		e.log = config.LoggerFactory.NewLogger("keyexport")
	}
	if err := e.Init(config.Delegate, config.KeyStore); err != nil {
		return nil, err
	}
	return e, nil
}

// Init binds the delegate and key store and resets the engine.
func (e *Engine) Init(delegate Delegate, store KeyStore) error {
	if delegate == nil {
		return fmt.Errorf("%w: delegate is required", ErrInvalidArgument)
	}
	e.Reset()
	e.delegate = delegate
	e.store = store
	return nil
}

// Reset abandons the current exchange and zeroes all secret material.
func (e *Engine) Reset() {
	e.secret.clear()
	e.state = StateReset
	e.protocolConfig = ConfigNone
	e.altConfigs = nil
	e.keyID = keystore.KeyIDNone
	e.signMessages = false
	e.reconfigure = false
	e.peerPublicKey = nil
}

// Shutdown resets the engine and releases the delegate and key store.
func (e *Engine) Shutdown() {
	e.Reset()
	e.delegate = nil
	e.store = nil
}

// State returns the current state.
func (e *Engine) State() State {
	return e.state
}

// IsInitiator reports whether the engine is acting as initiator.
func (e *Engine) IsInitiator() bool {
	return e.state.IsInitiator()
}

// ProtocolConfig returns the config of the current exchange. After a
// reconfigure it is the config the next request must propose.
func (e *Engine) ProtocolConfig() ProtocolConfig {
	return e.protocolConfig
}

// AltConfigs returns the alternate configs of the current request.
func (e *Engine) AltConfigs() []ProtocolConfig {
	return append([]ProtocolConfig(nil), e.altConfigs...)
}

// KeyID returns the requested key id.
func (e *Engine) KeyID() keystore.KeyID {
	return e.keyID
}

// SignMessages reports whether the exchange uses signed messages.
func (e *Engine) SignMessages() bool {
	return e.signMessages
}

func (e *Engine) setState(s State) {
	if e.log != nil && s != e.state {
		e.log.Debugf("%s -> %s", e.state, s)
	}
	e.state = s
}

// fail resets the engine after a failed operation.
func (e *Engine) fail(err error) error {
	if e.log != nil {
		e.log.Warnf("key export failed in %s: %v", e.state, err)
	}
	e.Reset()
	return err
}

// selectConfigs returns the config to propose and the alternates, which are
// the allowed configs other than the proposed one. A proposal that is not
// allowed is replaced by the first alternate.
func (e *Engine) selectConfigs(proposed ProtocolConfig) (ProtocolConfig, []ProtocolConfig, error) {
	var alts []ProtocolConfig
	for _, c := range e.allowed {
		if c != proposed {
			alts = append(alts, c)
		}
	}
	if !e.allowed.Contains(proposed) {
		if len(alts) == 0 {
			return ConfigNone, nil, ErrInvalidKeyExportConfiguration
		}
		proposed, alts = alts[0], alts[1:]
	}
	if len(alts) > MaxAltConfigs {
		alts = alts[:MaxAltConfigs]
	}
	return proposed, alts, nil
}

// kdfSalt returns config | altCount | altConfigs | keyID.
func (e *Engine) kdfSalt() ([]byte, error) {
	w := wire.NewWriter(2 + len(e.altConfigs) + 4)
	w.PutU8(uint8(e.protocolConfig))
	w.PutU8(uint8(len(e.altConfigs)))
	for _, c := range e.altConfigs {
		w.PutU8(uint8(c))
	}
	w.PutU32(uint32(e.keyID))
	return w.Bytes()
}

// GenerateKeyExportRequest starts an exchange for keyID. Valid in the Reset
// state or after ProcessKeyExportReconfigure.
func (e *Engine) GenerateKeyExportRequest(proposed ProtocolConfig, keyID keystore.KeyID, signMessages bool) ([]byte, error) {
	if e.state != StateReset && e.state != StateInitiatorReconfigureProcessed {
		return nil, ErrIncorrectState
	}
	if keyID == keystore.KeyIDNone || !keyID.IsValid() {
		return nil, fmt.Errorf("%w: key id %s", ErrInvalidArgument, keyID)
	}
	e.setState(StateInitiatorGeneratingRequest)

	msg, err := e.generateRequest(proposed, keyID, signMessages)
	if err != nil {
		return nil, e.fail(err)
	}
	e.setState(StateInitiatorRequestGenerated)
	return msg, nil
}

func (e *Engine) generateRequest(proposed ProtocolConfig, keyID keystore.KeyID, signMessages bool) ([]byte, error) {
	config, alts, err := e.selectConfigs(proposed)
	if err != nil {
		return nil, err
	}
	e.protocolConfig = config
	e.altConfigs = alts
	e.keyID = keyID
	e.signMessages = signMessages

	curve := config.Curve()
	kp, err := crypto.GenerateECDHKeyPair(curve, e.rand)
	if err != nil {
		return nil, err
	}
	e.secret.setECDHKey(kp)

	ctrl := uint8(len(alts))
	if signMessages {
		ctrl |= ctrlSignMessages
	}
	w := wire.NewWriter(2 + len(alts) + 4 + curve.PointSize())
	w.PutU8(ctrl)
	w.PutU8(uint8(config))
	for _, c := range alts {
		w.PutU8(uint8(c))
	}
	w.PutU32(uint32(keyID))
	w.PutBytes(kp.PublicKey())
	msg, err := w.Bytes()
	if err != nil {
		return nil, err
	}

	if signMessages {
		sig, err := e.signMessage(msg)
		if err != nil {
			return nil, err
		}
		msg = append(msg, sig...)
	}
	if e.log != nil {
		e.log.Debugf("request for %s with %s, alternates %v", keyID, config, alts)
	}
	return msg, nil
}

// ProcessKeyExportRequest parses a request. Valid in the Reset state.
//
// If the proposed config is not allowed but one of the alternates is, the
// engine records that alternate, enters ResponderRequestProcessed and
// returns ErrKeyExportReconfigureRequired; the caller then sends
// GenerateKeyExportReconfigure.
func (e *Engine) ProcessKeyExportRequest(msg []byte) error {
	if e.state != StateReset {
		return ErrIncorrectState
	}
	e.setState(StateResponderProcessingRequest)

	err := e.processRequest(msg)
	switch {
	case err == nil:
		e.setState(StateResponderRequestProcessed)
		return nil
	case errors.Is(err, ErrKeyExportReconfigureRequired):
		e.reconfigure = true
		e.setState(StateResponderRequestProcessed)
		return err
	default:
		return e.fail(err)
	}
}

func (e *Engine) processRequest(msg []byte) error {
	r := wire.NewReader(msg)
	ctrl := r.U8()
	config := ProtocolConfig(r.U8())
	if err := r.Err(); err != nil {
		return err
	}
	if ctrl&ctrlRequestUnusedBits != 0 {
		return fmt.Errorf("%w: control header %#02x", ErrInvalidArgument, ctrl)
	}
	alts := make([]ProtocolConfig, ctrl&ctrlAltConfigCountMask)
	for i := range alts {
		alts[i] = ProtocolConfig(r.U8())
	}
	if err := r.Err(); err != nil {
		return err
	}
	e.signMessages = ctrl&ctrlSignMessages != 0
	e.altConfigs = alts

	if !e.allowed.Contains(config) {
		for _, alt := range alts {
			if e.allowed.Contains(alt) {
				e.protocolConfig = alt
				if e.log != nil {
					e.log.Debugf("proposed %s not allowed, asking for %s", config, alt)
				}
				return ErrKeyExportReconfigureRequired
			}
		}
		return ErrNoCommonKeyExportConfigurations
	}
	e.protocolConfig = config

	curve := config.Curve()
	keyID := keystore.KeyID(r.U32())
	pub := r.Bytes(curve.PointSize())
	if err := r.Err(); err != nil {
		return err
	}
	if keyID == keystore.KeyIDNone || !keyID.IsValid() {
		return fmt.Errorf("%w: key id %s", ErrInvalidArgument, keyID)
	}
	if _, _, err := curve.DecodePoint(pub); err != nil {
		return fmt.Errorf("%w: public key: %v", ErrInvalidArgument, err)
	}

	if err := e.authorize(msg, r, keyID); err != nil {
		return err
	}

	e.keyID = keyID
	e.peerPublicKey = append([]byte(nil), pub...)
	if e.log != nil {
		e.log.Debugf("request for %s with %s", keyID, config)
	}
	return nil
}

// authorize verifies the signature that follows the bytes consumed by r, or
// asks the delegate to accept an unsigned message.
func (e *Engine) authorize(msg []byte, r *wire.Reader, keyID keystore.KeyID) error {
	if e.signMessages {
		return e.verifyMessage(r.Consumed(msg), msg[r.Offset():], keyID)
	}
	if err := r.Done(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return e.delegate.ValidateUnsignedKeyExportMessage(e, keyID)
}

// GenerateKeyExportReconfigure returns the reconfigure message after
// ProcessKeyExportRequest returned ErrKeyExportReconfigureRequired. The
// engine returns to Reset, ready for the next request.
func (e *Engine) GenerateKeyExportReconfigure() ([]byte, error) {
	if e.state != StateResponderRequestProcessed || !e.reconfigure {
		return nil, ErrIncorrectState
	}
	msg := []byte{uint8(e.protocolConfig)}
	e.Reset()
	return msg, nil
}

// ProcessKeyExportReconfigure accepts the responder's config. Valid after
// GenerateKeyExportRequest; the caller then generates a new request with
// ProtocolConfig.
func (e *Engine) ProcessKeyExportReconfigure(msg []byte) error {
	if e.state != StateInitiatorRequestGenerated {
		return ErrIncorrectState
	}
	if len(msg) != ReconfigureMessageSize {
		return e.fail(fmt.Errorf("%w: reconfigure message is %d bytes", ErrInvalidArgument, len(msg)))
	}
	config := ProtocolConfig(msg[0])
	if !e.allowed.Contains(config) || config == e.protocolConfig {
		return e.fail(fmt.Errorf("%w: %s", ErrInvalidKeyExportConfiguration, config))
	}

	e.secret.clear()
	e.protocolConfig = config
	e.setState(StateInitiatorReconfigureProcessed)
	return nil
}

// GenerateKeyExportResponse encrypts the requested key for the initiator.
// Valid after a successful ProcessKeyExportRequest.
func (e *Engine) GenerateKeyExportResponse() ([]byte, error) {
	if e.state != StateResponderRequestProcessed || e.reconfigure {
		return nil, ErrIncorrectState
	}
	if e.store == nil {
		return nil, e.fail(ErrNoKeyStore)
	}

	msg, exported, err := e.generateResponse()
	if err != nil {
		return nil, e.fail(err)
	}
	e.secret.clear()
	e.setState(StateResponderDone)
	if e.log != nil {
		e.log.Infof("exported %s (requested %s) with %s", exported, e.keyID, e.protocolConfig)
	}
	return msg, nil
}

func (e *Engine) generateResponse() ([]byte, keystore.KeyID, error) {
	key, err := e.store.GetGroupKey(e.keyID)
	if err != nil {
		return nil, keystore.KeyIDNone, err
	}
	defer key.Clear()

	curve := e.protocolConfig.Curve()
	kp, err := crypto.GenerateECDHKeyPair(curve, e.rand)
	if err != nil {
		return nil, keystore.KeyIDNone, err
	}
	pub := kp.PublicKey()
	e.secret.setECDHKey(kp)

	encrypted, err := e.wrapKey(key.Secret())
	if err != nil {
		return nil, keystore.KeyIDNone, err
	}
	authenticator := crypto.HMACSHA256(e.secret.authenticationKey(), encrypted)

	var ctrl uint8
	if e.signMessages {
		ctrl |= ctrlSignMessages
	}
	w := wire.NewWriter(1 + 4 + 2 + len(pub) + len(encrypted) + AuthenticatorSize)
	w.PutU8(ctrl)
	w.PutU32(uint32(key.KeyID))
	w.PutU16(uint16(key.KeyLen))
	w.PutBytes(pub)
	w.PutBytes(encrypted)
	w.PutBytes(authenticator[:])
	msg, err := w.Bytes()
	if err != nil {
		return nil, keystore.KeyIDNone, err
	}

	if e.signMessages {
		sig, err := e.signMessage(msg)
		if err != nil {
			return nil, keystore.KeyIDNone, err
		}
		msg = append(msg, sig...)
	}
	return msg, key.KeyID, nil
}

// wrapKey derives the session keys from the peer's public key and encrypts
// key with AES-128-CTR under a zero counter block.
func (e *Engine) wrapKey(key []byte) ([]byte, error) {
	if err := e.secret.deriveSharedSecret(e.peerPublicKey); err != nil {
		return nil, err
	}
	salt, err := e.kdfSalt()
	if err != nil {
		return nil, err
	}
	if err := e.secret.deriveKeys(salt); err != nil {
		return nil, err
	}
	return crypto.AES128CTR(e.secret.encryptionKey(), nil, key)
}

// ProcessKeyExportResponse authenticates and decrypts the exported key.
// Valid after GenerateKeyExportRequest. The caller owns the returned key
// and should clear it after use.
func (e *Engine) ProcessKeyExportResponse(msg []byte) ([]byte, keystore.KeyID, error) {
	if e.state != StateInitiatorRequestGenerated {
		return nil, keystore.KeyIDNone, ErrIncorrectState
	}

	key, keyID, err := e.processResponse(msg)
	if err != nil {
		return nil, keystore.KeyIDNone, e.fail(err)
	}
	e.secret.clear()
	e.setState(StateInitiatorDone)
	if e.log != nil {
		e.log.Infof("received %s with %s", keyID, e.protocolConfig)
	}
	return key, keyID, nil
}

func (e *Engine) processResponse(msg []byte) ([]byte, keystore.KeyID, error) {
	r := wire.NewReader(msg)
	ctrl := r.U8()
	keyID := keystore.KeyID(r.U32())
	keyLen := int(r.U16())
	if err := r.Err(); err != nil {
		return nil, keystore.KeyIDNone, err
	}
	if ctrl&ctrlResponseUnusedBits != 0 {
		return nil, keystore.KeyIDNone, fmt.Errorf("%w: control header %#02x", ErrInvalidArgument, ctrl)
	}
	if (ctrl&ctrlSignMessages != 0) != e.signMessages {
		return nil, keystore.KeyIDNone, fmt.Errorf("%w: signing mode mismatch", ErrInvalidArgument)
	}
	if keyLen > keystore.MaxKeySize {
		return nil, keystore.KeyIDNone, fmt.Errorf("%w: key length %d", ErrInvalidArgument, keyLen)
	}
	if !keyIDMatches(e.keyID, keyID) {
		return nil, keystore.KeyIDNone, fmt.Errorf("%w: exported %s for requested %s", ErrInvalidArgument, keyID, e.keyID)
	}

	pub := r.Bytes(e.protocolConfig.Curve().PointSize())
	encrypted := r.Bytes(keyLen)
	authenticator := r.Bytes(AuthenticatorSize)
	if err := r.Err(); err != nil {
		return nil, keystore.KeyIDNone, err
	}

	if err := e.authorize(msg, r, keyID); err != nil {
		return nil, keystore.KeyIDNone, err
	}

	if err := e.secret.deriveSharedSecret(pub); err != nil {
		return nil, keystore.KeyIDNone, fmt.Errorf("%w: public key: %v", ErrInvalidArgument, err)
	}
	salt, err := e.kdfSalt()
	if err != nil {
		return nil, keystore.KeyIDNone, err
	}
	if err := e.secret.deriveKeys(salt); err != nil {
		return nil, keystore.KeyIDNone, err
	}

	expected := crypto.HMACSHA256(e.secret.authenticationKey(), encrypted)
	if !crypto.ConstantTimeEqual(expected[:], authenticator) {
		return nil, keystore.KeyIDNone, ErrExportedKeyAuthenticationFailed
	}
	key, err := crypto.AES128CTR(e.secret.encryptionKey(), nil, encrypted)
	if err != nil {
		return nil, keystore.KeyIDNone, err
	}
	return key, keyID, nil
}

// keyIDMatches reports whether an exported key id answers a request. A
// request for a current-epoch key id accepts any concrete epoch.
func keyIDMatches(requested, exported keystore.KeyID) bool {
	if requested == exported {
		return true
	}
	if !requested.UsesCurrentEpochKey() || exported.UsesCurrentEpochKey() {
		return false
	}
	return keystore.UpdateEpochKeyID(requested, exported.EpochKeyID()) == exported
}
