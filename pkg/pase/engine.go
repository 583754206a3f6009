package pase

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/pion/logging"

	"github.com/backkem/weave/pkg/crypto"
	"github.com/backkem/weave/pkg/wire"
)

// Config configures an Engine.
type Config struct {
	// LocalNodeID is this node's id, bound into the protocol context.
	LocalNodeID uint64

	// AllowedConfigs lists the configs this node accepts. The initiator
	// proposes the first one unless told otherwise. If nil, DefaultConfigs
	// is used.
	AllowedConfigs ConfigSet

	// Rand is the randomness source. If nil, crypto/rand is used.
	Rand io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// InitiatorParams are the initiator's choices for an exchange.
type InitiatorParams struct {
	PeerNodeID uint64
	Password   []byte

	// ProposedConfig is the config to propose. ConfigUnspecified selects the
	// first allowed config. Ignored after a reconfigure, which fixes the
	// config.
	ProposedConfig ProtocolConfig

	SessionKeyID   uint16
	EncryptionType EncryptionType
	PasswordSource PasswordSource
	ConfirmKey     bool
}

// Engine runs one PASE exchange at a time, as either initiator or
// responder. It is not safe for concurrent use.
type Engine struct {
	localNodeID uint64
	allowed     ConfigSet
	rand        io.Reader
	log         logging.LeveledLogger

	state          State
	suite          suite
	protocolConfig ProtocolConfig
	altConfigs     []ProtocolConfig
	peerNodeID     uint64
	sessionKeyID   uint16
	encryptionType EncryptionType
	passwordSource PasswordSource
	confirmKey     bool
	reconfigure    bool

	// exchange holds the J-PAKE secrets until the session key is derived.
	exchange exchange
	localGR  []byte
	peerGR   []byte
	keys     sessionKeys
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
		localNodeID: config.LocalNodeID,
		allowed:     append(ConfigSet(nil), allowed...),
		rand:        config.Rand,
	}
	if e.rand == nil {
		e.rand = rand.Reader
	}
	if config.LoggerFactory != nil {
		e.log = config.LoggerFactory.NewLogger("pase")
	}
	return e, nil
}

// Reset abandons the current exchange and zeroes all secret material.
func (e *Engine) Reset() {
	if e.exchange != nil {
		e.exchange.clear()
		e.exchange = nil
	}
	e.keys.clear()
	e.state = StateReset
	e.suite = nil
	e.protocolConfig = ConfigUnspecified
	e.altConfigs = nil
	e.peerNodeID = 0
	e.sessionKeyID = 0
	e.encryptionType = EncryptionTypeNone
	e.passwordSource = PasswordSourceNotSpecified
	e.confirmKey = false
	e.reconfigure = false
	e.localGR, e.peerGR = nil, nil
}

// Shutdown resets the engine.
func (e *Engine) Shutdown() {
	e.Reset()
}

// State returns the current state.
func (e *Engine) State() State {
	return e.state
}

// IsInitiator reports whether the engine is acting as initiator.
func (e *Engine) IsInitiator() bool {
	return e.state.IsInitiator()
}

// IsResponder reports whether the engine is acting as responder.
func (e *Engine) IsResponder() bool {
	return e.state.IsResponder()
}

// LocalNodeID returns the node id this engine binds into its context.
func (e *Engine) LocalNodeID() uint64 {
	return e.localNodeID
}

// ProtocolConfig returns the config of the current exchange. After a
// reconfigure it is the config the next step 1 uses.
func (e *Engine) ProtocolConfig() ProtocolConfig {
	return e.protocolConfig
}

// SessionKeyID returns the negotiated session key id.
func (e *Engine) SessionKeyID() uint16 {
	return e.sessionKeyID
}

// PasswordSource returns the password source named by the initiator.
func (e *Engine) PasswordSource() PasswordSource {
	return e.passwordSource
}

// SessionKey returns the negotiated key once the exchange is done. The
// caller owns the copy and should Clear it after use.
func (e *Engine) SessionKey() (SessionKey, error) {
	if e.state != StateInitiatorDone && e.state != StateResponderDone {
		return SessionKey{}, ErrIncorrectState
	}
	k := SessionKey{ID: e.sessionKeyID, EncryptionType: e.encryptionType}
	copy(k.Key[:], e.keys.sessionKey())
	return k, nil
}

func (e *Engine) setState(s State) {
	if e.log != nil && s != e.state {
		e.log.Debugf("%s -> %s", e.state, s)
	}
	e.state = s
}

func (e *Engine) fail(err error) error {
	if e.log != nil {
		e.log.Warnf("PASE failed in %s: %v", e.state, err)
	}
	e.Reset()
	return err
}

// contextParams returns this party's context for the current exchange.
func (e *Engine) contextParams() contextParams {
	role := roleResponder
	if e.state.IsInitiator() {
		role = roleInitiator
	}
	return contextParams{
		role:           role,
		localNodeID:    e.localNodeID,
		peerNodeID:     e.peerNodeID,
		sessionKeyID:   e.sessionKeyID,
		encryptionType: e.encryptionType,
		passwordSource: e.passwordSource,
		confirmKey:     e.confirmKey,
		config:         e.protocolConfig,
		altConfigs:     e.altConfigs,
	}
}

// startExchange creates the J-PAKE computation bound to both contexts.
func (e *Engine) startExchange(password []byte) error {
	local := e.contextParams()
	x, err := e.suite.newExchange(password, e.suite.context(local), e.suite.context(local.peer()), e.rand)
	if err != nil {
		return err
	}
	e.exchange = x
	return nil
}

func (e *Engine) confirmHashLen() int {
	if e.confirmKey {
		return e.suite.hashSize()
	}
	return 0
}

// deriveKeys replaces the J-PAKE state with the session keys.
func (e *Engine) deriveKeys(initiatorGR, responderGR []byte) error {
	secret := e.exchange.sharedSecret()
	defer crypto.ClearSecretData(secret)
	if len(secret) == 0 {
		return ErrIncorrectState
	}
	if err := e.keys.derive(e.suite, secret, initiatorGR, responderGR, e.confirmHashLen()); err != nil {
		return err
	}
	e.exchange.clear()
	e.exchange = nil
	return nil
}

func checkEncryptionType(t EncryptionType) error {
	if t != EncryptionTypeAES128CTRSHA1 {
		return fmt.Errorf("%w: %s", ErrUnsupportedEncryptionType, t)
	}
	return nil
}

// GenerateInitiatorStep1 starts an exchange. Valid in the Reset state or
// after ProcessResponderReconfigure.
func (e *Engine) GenerateInitiatorStep1(p InitiatorParams) ([]byte, error) {
	if e.state != StateReset && e.state != StateResponderReconfigureProcessed {
		return nil, ErrIncorrectState
	}
	if len(p.Password) == 0 {
		return nil, fmt.Errorf("%w: empty password", ErrInvalidArgument)
	}
	if err := checkEncryptionType(p.EncryptionType); err != nil {
		return nil, err
	}
	if p.PasswordSource > PasswordSourcePairingCode {
		return nil, fmt.Errorf("%w: %s", ErrInvalidArgument, p.PasswordSource)
	}

	proposed := p.ProposedConfig
	if e.state == StateResponderReconfigureProcessed {
		proposed = e.protocolConfig
	}
	if proposed == ConfigUnspecified {
		proposed = e.allowed[0]
	}
	if !e.allowed.Contains(proposed) {
		return nil, fmt.Errorf("%w: %s not allowed", ErrInvalidPASEConfiguration, proposed)
	}

	e.Reset()
	e.setState(StateInitiatorStep1Generated)
	msg, err := e.generateInitiatorStep1(p, proposed)
	if err != nil {
		return nil, e.fail(err)
	}
	return msg, nil
}

func (e *Engine) generateInitiatorStep1(p InitiatorParams, proposed ProtocolConfig) ([]byte, error) {
	var alts []ProtocolConfig
	for _, c := range e.allowed {
		if c != proposed && len(alts) < MaxAltConfigs {
			alts = append(alts, c)
		}
	}

	e.suite = suiteFor(proposed)
	e.protocolConfig = proposed
	e.altConfigs = alts
	e.peerNodeID = p.PeerNodeID
	e.sessionKeyID = p.SessionKeyID
	e.encryptionType = p.EncryptionType
	e.passwordSource = p.PasswordSource
	e.confirmKey = p.ConfirmKey

	if err := e.startExchange(p.Password); err != nil {
		return nil, err
	}
	commitments, err := e.exchange.step1()
	if err != nil {
		return nil, err
	}

	ctrl := uint32(e.sessionKeyID) & ctrlSessionKeyIDMask
	ctrl |= uint32(e.encryptionType) << ctrlEncryptionTypeShift & ctrlEncryptionTypeMask
	ctrl |= uint32(e.passwordSource) << ctrlPasswordSourceShift & ctrlPasswordSourceMask
	ctrl |= uint32(len(alts)) << ctrlAltConfigCountShift & ctrlAltConfigCountMask
	if e.confirmKey {
		ctrl |= ctrlKeyConfirmFlag
	}
	size := commitmentSizeHeader(e.suite, 0)
	size.extra = uint8(len(alts))

	w := wire.NewWriter(12 + 4*len(alts) + commitmentsLen(e.suite, 2))
	w.PutU32(ctrl)
	w.PutU32(size.encode())
	w.PutU32(uint32(proposed))
	for _, c := range alts {
		w.PutU32(uint32(c))
	}
	putCommitment(w, commitments[0])
	putCommitment(w, commitments[1])

	if e.log != nil {
		e.log.Debugf("step 1 with %s, alternates %v, key confirmation %t", proposed, alts, e.confirmKey)
	}
	return w.Bytes()
}

// ProcessInitiatorStep1 parses the initiator's step 1 as responder.
// password is the responder's password for the requested password source;
// PeekPasswordSource reads the source before this call.
//
// If the initiator should use a stronger config, the engine records it,
// enters InitiatorStep1Processed and returns ErrPASEReconfigureRequired; the
// caller then sends GenerateResponderReconfigure.
func (e *Engine) ProcessInitiatorStep1(msg []byte, peerNodeID uint64, password []byte) error {
	if e.state != StateReset {
		return ErrIncorrectState
	}
	if len(password) == 0 {
		return fmt.Errorf("%w: empty password", ErrInvalidArgument)
	}
	e.setState(StateInitiatorStep1Processed)
	e.peerNodeID = peerNodeID

	err := e.processInitiatorStep1(msg, password)
	if errors.Is(err, ErrPASEReconfigureRequired) {
		e.reconfigure = true
		return err
	}
	if err != nil {
		return e.fail(err)
	}
	return nil
}

func (e *Engine) processInitiatorStep1(msg, password []byte) error {
	r := wire.NewReader(msg)
	ctrl := r.U32()
	size := decodeSizeHeader(r.U32())
	proposed := ProtocolConfig(r.U32())
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if ctrl&ctrlUnusedBits != 0 {
		return fmt.Errorf("%w: control header %#08x", ErrInvalidMessage, ctrl)
	}
	altCount := int(ctrl & ctrlAltConfigCountMask >> ctrlAltConfigCountShift)
	if int(size.extra) != altCount {
		return fmt.Errorf("%w: alternate count mismatch", ErrInvalidMessage)
	}
	alts := make([]ProtocolConfig, altCount)
	for i := range alts {
		alts[i] = ProtocolConfig(r.U32())
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	e.protocolConfig = proposed
	e.altConfigs = alts
	e.sessionKeyID = uint16(ctrl & ctrlSessionKeyIDMask)
	e.encryptionType = EncryptionType(ctrl & ctrlEncryptionTypeMask >> ctrlEncryptionTypeShift)
	e.passwordSource = PasswordSource(ctrl & ctrlPasswordSourceMask >> ctrlPasswordSourceShift)
	e.confirmKey = ctrl&ctrlKeyConfirmFlag != 0
	if err := checkEncryptionType(e.encryptionType); err != nil {
		return err
	}

	best, ok := e.allowed.strongest(append([]ProtocolConfig{proposed}, alts...))
	if !ok {
		return ErrNoCommonPASEConfigurations
	}
	if !e.allowed.Contains(proposed) || best.SecurityStrength() > proposed.SecurityStrength() {
		if e.log != nil {
			e.log.Debugf("initiator proposed %s, asking for %s", proposed, best)
		}
		e.protocolConfig = best
		return ErrPASEReconfigureRequired
	}

	e.suite = suiteFor(proposed)
	want := commitmentSizeHeader(e.suite, 0)
	want.extra = uint8(altCount)
	if err := checkSizeHeader(size, want); err != nil {
		return err
	}
	c1 := readCommitment(r, e.suite)
	c2 := readCommitment(r, e.suite)
	if err := finish(r); err != nil {
		return err
	}

	if err := e.startExchange(password); err != nil {
		return err
	}
	return e.exchange.processStep1([2]commitment{c1, c2})
}

// PeekPasswordSource returns the password source of an initiator step 1
// message without changing the engine.
func PeekPasswordSource(msg []byte) (PasswordSource, error) {
	r := wire.NewReader(msg)
	ctrl := r.U32()
	if err := r.Err(); err != nil {
		return PasswordSourceNotSpecified, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return PasswordSource(ctrl & ctrlPasswordSourceMask >> ctrlPasswordSourceShift), nil
}

// GenerateResponderReconfigure returns the reconfigure message after
// ProcessInitiatorStep1 returned ErrPASEReconfigureRequired. The engine
// returns to Reset, ready for the next step 1.
func (e *Engine) GenerateResponderReconfigure() ([]byte, error) {
	if e.state != StateInitiatorStep1Processed || !e.reconfigure {
		return nil, ErrIncorrectState
	}
	w := wire.NewWriter(ReconfigureMessageSize)
	w.PutU32(uint32(e.protocolConfig))
	msg, err := w.Bytes()
	e.Reset()
	return msg, err
}

// ProcessResponderReconfigure accepts the responder's config. The config
// must be allowed and differ from the one proposed.
func (e *Engine) ProcessResponderReconfigure(msg []byte) error {
	if e.state != StateInitiatorStep1Generated {
		return ErrIncorrectState
	}
	if len(msg) != ReconfigureMessageSize {
		return e.fail(fmt.Errorf("%w: reconfigure message is %d bytes", ErrInvalidMessage, len(msg)))
	}
	r := wire.NewReader(msg)
	config := ProtocolConfig(r.U32())
	if !e.allowed.Contains(config) || config == e.protocolConfig {
		return e.fail(fmt.Errorf("%w: reconfigure from %s to %s", ErrInvalidPASEConfiguration, e.protocolConfig, config))
	}

	e.Reset()
	e.protocolConfig = config
	e.setState(StateResponderReconfigureProcessed)
	return nil
}

// GenerateResponderStep1 returns the responder's first-round commitments.
func (e *Engine) GenerateResponderStep1() ([]byte, error) {
	if e.state != StateInitiatorStep1Processed || e.reconfigure {
		return nil, ErrIncorrectState
	}
	commitments, err := e.exchange.step1()
	if err != nil {
		return nil, e.fail(err)
	}
	w := wire.NewWriter(4 + commitmentsLen(e.suite, 2))
	w.PutU32(commitmentSizeHeader(e.suite, 0).encode())
	putCommitment(w, commitments[0])
	putCommitment(w, commitments[1])
	msg, err := w.Bytes()
	if err != nil {
		return nil, e.fail(err)
	}
	e.setState(StateResponderStep1Generated)
	return msg, nil
}

// GenerateResponderStep2 returns the responder's second-round commitment.
func (e *Engine) GenerateResponderStep2() ([]byte, error) {
	if e.state != StateResponderStep1Generated {
		return nil, ErrIncorrectState
	}
	c, err := e.exchange.step2()
	if err != nil {
		return nil, e.fail(err)
	}
	e.localGR = c.gr
	w := wire.NewWriter(4 + commitmentsLen(e.suite, 1))
	w.PutU32(commitmentSizeHeader(e.suite, 0).encode())
	putCommitment(w, c)
	msg, err := w.Bytes()
	if err != nil {
		return nil, e.fail(err)
	}
	e.setState(StateResponderStep2Generated)
	return msg, nil
}

// ProcessResponderStep1 verifies the responder's first-round commitments.
func (e *Engine) ProcessResponderStep1(msg []byte) error {
	if e.state != StateInitiatorStep1Generated {
		return ErrIncorrectState
	}
	r := wire.NewReader(msg)
	size := decodeSizeHeader(r.U32())
	if err := r.Err(); err != nil {
		return e.fail(fmt.Errorf("%w: %v", ErrInvalidMessage, err))
	}
	if err := checkSizeHeader(size, commitmentSizeHeader(e.suite, 0)); err != nil {
		return e.fail(err)
	}
	c1 := readCommitment(r, e.suite)
	c2 := readCommitment(r, e.suite)
	if err := finish(r); err != nil {
		return e.fail(err)
	}
	if err := e.exchange.processStep1([2]commitment{c1, c2}); err != nil {
		return e.fail(err)
	}
	e.setState(StateResponderStep1Processed)
	return nil
}

// ProcessResponderStep2 verifies the responder's second-round commitment.
func (e *Engine) ProcessResponderStep2(msg []byte) error {
	if e.state != StateResponderStep1Processed {
		return ErrIncorrectState
	}
	r := wire.NewReader(msg)
	size := decodeSizeHeader(r.U32())
	if err := r.Err(); err != nil {
		return e.fail(fmt.Errorf("%w: %v", ErrInvalidMessage, err))
	}
	if err := checkSizeHeader(size, commitmentSizeHeader(e.suite, 0)); err != nil {
		return e.fail(err)
	}
	c := readCommitment(r, e.suite)
	if err := finish(r); err != nil {
		return e.fail(err)
	}
	if err := e.exchange.processStep2(c); err != nil {
		return e.fail(err)
	}
	e.peerGR = c.gr
	e.setState(StateResponderStep2Processed)
	return nil
}

// GenerateInitiatorStep2 returns the initiator's second-round commitment,
// followed by its key confirmation hash when key confirmation is on. The
// session key is available afterwards.
func (e *Engine) GenerateInitiatorStep2() ([]byte, error) {
	if e.state != StateResponderStep2Processed {
		return nil, ErrIncorrectState
	}
	msg, err := e.generateInitiatorStep2()
	if err != nil {
		return nil, e.fail(err)
	}
	if e.confirmKey {
		e.setState(StateInitiatorStep2Generated)
	} else {
		e.setState(StateInitiatorDone)
		e.logDone()
	}
	return msg, nil
}

func (e *Engine) generateInitiatorStep2() ([]byte, error) {
	c, err := e.exchange.step2()
	if err != nil {
		return nil, err
	}
	e.localGR = c.gr
	if err := e.deriveKeys(e.localGR, e.peerGR); err != nil {
		return nil, err
	}

	hashLen := e.confirmHashLen()
	w := wire.NewWriter(4 + commitmentsLen(e.suite, 1) + hashLen)
	w.PutU32(commitmentSizeHeader(e.suite, hashLen).encode())
	putCommitment(w, c)
	if e.confirmKey {
		w.PutBytes(e.keys.initiatorConfirmHash(e.suite))
	}
	return w.Bytes()
}

// ProcessInitiatorStep2 verifies the initiator's second-round commitment
// and, when key confirmation is on, its key confirmation hash.
func (e *Engine) ProcessInitiatorStep2(msg []byte) error {
	if e.state != StateResponderStep2Generated {
		return ErrIncorrectState
	}
	if err := e.processInitiatorStep2(msg); err != nil {
		return e.fail(err)
	}
	if e.confirmKey {
		e.setState(StateInitiatorStep2Processed)
	} else {
		e.setState(StateResponderDone)
		e.logDone()
	}
	return nil
}

func (e *Engine) processInitiatorStep2(msg []byte) error {
	hashLen := e.confirmHashLen()
	r := wire.NewReader(msg)
	size := decodeSizeHeader(r.U32())
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := checkSizeHeader(size, commitmentSizeHeader(e.suite, hashLen)); err != nil {
		return err
	}
	c := readCommitment(r, e.suite)
	peerHash := r.Bytes(hashLen)
	if err := finish(r); err != nil {
		return err
	}

	if err := e.exchange.processStep2(c); err != nil {
		return err
	}
	e.peerGR = c.gr
	if err := e.deriveKeys(e.peerGR, e.localGR); err != nil {
		return err
	}
	if e.confirmKey {
		want := e.keys.initiatorConfirmHash(e.suite)
		defer crypto.ClearSecretData(want)
		if !crypto.ConstantTimeEqual(want, peerHash) {
			return ErrKeyConfirmationFailed
		}
	}
	return nil
}

// GenerateResponderKeyConfirm returns the responder's key confirmation
// hash.
func (e *Engine) GenerateResponderKeyConfirm() ([]byte, error) {
	if e.state != StateInitiatorStep2Processed {
		return nil, ErrIncorrectState
	}
	hash := e.keys.responderConfirmHash(e.suite)
	w := wire.NewWriter(4 + len(hash))
	w.PutU32(confirmSizeHeader(e.suite).encode())
	w.PutBytes(hash)
	msg, err := w.Bytes()
	if err != nil {
		return nil, e.fail(err)
	}
	e.keys.dropConfirmKey()
	e.setState(StateResponderDone)
	e.logDone()
	return msg, nil
}

// ProcessResponderKeyConfirm verifies the responder's key confirmation
// hash.
func (e *Engine) ProcessResponderKeyConfirm(msg []byte) error {
	if e.state != StateInitiatorStep2Generated {
		return ErrIncorrectState
	}
	r := wire.NewReader(msg)
	size := decodeSizeHeader(r.U32())
	if err := r.Err(); err != nil {
		return e.fail(fmt.Errorf("%w: %v", ErrInvalidMessage, err))
	}
	if err := checkSizeHeader(size, confirmSizeHeader(e.suite)); err != nil {
		return e.fail(err)
	}
	peerHash := r.Bytes(e.suite.hashSize())
	if err := finish(r); err != nil {
		return e.fail(err)
	}

	want := e.keys.responderConfirmHash(e.suite)
	defer crypto.ClearSecretData(want)
	if !crypto.ConstantTimeEqual(want, peerHash) {
		return e.fail(ErrKeyConfirmationFailed)
	}
	e.keys.dropConfirmKey()
	e.setState(StateInitiatorDone)
	e.logDone()
	return nil
}

func (e *Engine) logDone() {
	if e.log != nil {
		e.log.Infof("session key %d established with node %016X using %s", e.sessionKeyID, e.peerNodeID, e.protocolConfig)
	}
}
