package pase

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

const (
	initiatorNodeID uint64 = 0x18B4300000000001
	responderNodeID uint64 = 0x18B4300000000002
)

var allConfigs = []ProtocolConfig{Config0TestOnly, Config1, Config2, Config3, Config4, Config5}

func newTestEngine(t *testing.T, nodeID uint64, allowed ConfigSet) *Engine {
	t.Helper()
	e, err := New(Config{LocalNodeID: nodeID, AllowedConfigs: allowed})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func initiatorParams(password string, confirm bool) InitiatorParams {
	return InitiatorParams{
		PeerNodeID:     responderNodeID,
		Password:       []byte(password),
		SessionKeyID:   0x4A21,
		EncryptionType: EncryptionTypeAES128CTRSHA1,
		PasswordSource: PasswordSourcePairingCode,
		ConfirmKey:     confirm,
	}
}

// runSteps drives a full exchange and returns the first error with the
// step it happened in.
func runSteps(initiator, responder *Engine, p InitiatorParams, responderPassword string) (string, error) {
	msg, err := initiator.GenerateInitiatorStep1(p)
	if err != nil {
		return "GenerateInitiatorStep1", err
	}
	if err := responder.ProcessInitiatorStep1(msg, initiatorNodeID, []byte(responderPassword)); err != nil {
		return "ProcessInitiatorStep1", err
	}
	if msg, err = responder.GenerateResponderStep1(); err != nil {
		return "GenerateResponderStep1", err
	}
	if err := initiator.ProcessResponderStep1(msg); err != nil {
		return "ProcessResponderStep1", err
	}
	if msg, err = responder.GenerateResponderStep2(); err != nil {
		return "GenerateResponderStep2", err
	}
	if err := initiator.ProcessResponderStep2(msg); err != nil {
		return "ProcessResponderStep2", err
	}
	if msg, err = initiator.GenerateInitiatorStep2(); err != nil {
		return "GenerateInitiatorStep2", err
	}
	if err := responder.ProcessInitiatorStep2(msg); err != nil {
		return "ProcessInitiatorStep2", err
	}
	if !p.ConfirmKey {
		return "", nil
	}
	if msg, err = responder.GenerateResponderKeyConfirm(); err != nil {
		return "GenerateResponderKeyConfirm", err
	}
	if err := initiator.ProcessResponderKeyConfirm(msg); err != nil {
		return "ProcessResponderKeyConfirm", err
	}
	return "", nil
}

func TestPASESymmetry(t *testing.T) {
	for _, config := range allConfigs {
		for _, confirm := range []bool{false, true} {
			name := config.String()
			if confirm {
				name += "/confirm"
			}
			t.Run(name, func(t *testing.T) {
				initiator := newTestEngine(t, initiatorNodeID, ConfigSet{config})
				responder := newTestEngine(t, responderNodeID, ConfigSet{config})

				if step, err := runSteps(initiator, responder, initiatorParams("1234567", confirm), "1234567"); err != nil {
					t.Fatalf("%s failed: %v", step, err)
				}
				if initiator.State() != StateInitiatorDone || responder.State() != StateResponderDone {
					t.Fatalf("states = %s, %s", initiator.State(), responder.State())
				}

				ik, err := initiator.SessionKey()
				if err != nil {
					t.Fatalf("initiator SessionKey failed: %v", err)
				}
				rk, err := responder.SessionKey()
				if err != nil {
					t.Fatalf("responder SessionKey failed: %v", err)
				}
				if ik != rk {
					t.Errorf("session keys differ:\n%x\n%x", ik.Key, rk.Key)
				}
				if ik.ID != 0x4A21 || ik.EncryptionType != EncryptionTypeAES128CTRSHA1 {
					t.Errorf("session key = %+v", ik)
				}
				if responder.PasswordSource() != PasswordSourcePairingCode {
					t.Errorf("responder password source = %s", responder.PasswordSource())
				}
				if initiator.exchange != nil || responder.exchange != nil {
					t.Error("J-PAKE state kept after key derivation")
				}

				initiator.Reset()
				responder.Shutdown()
				if !initiator.keys.isZero() || !responder.keys.isZero() {
					t.Error("keys not cleared by Reset")
				}
			})
		}
	}
}

func TestPASEPasswordMismatch(t *testing.T) {
	for _, config := range []ProtocolConfig{Config0TestOnly, Config1, Config2, Config5} {
		t.Run(config.String(), func(t *testing.T) {
			initiator := newTestEngine(t, initiatorNodeID, ConfigSet{config})
			responder := newTestEngine(t, responderNodeID, ConfigSet{config})

			step, err := runSteps(initiator, responder, initiatorParams("1234567", true), "7654321")
			if step != "ProcessInitiatorStep2" || !errors.Is(err, ErrKeyConfirmationFailed) {
				t.Fatalf("%s: expected ErrKeyConfirmationFailed, got %v", step, err)
			}
			if responder.State() != StateReset || !responder.keys.isZero() || responder.exchange != nil {
				t.Error("responder not reset after key confirmation failure")
			}

			initiator.Reset()
			responder.Reset()
			if step, err := runSteps(initiator, responder, initiatorParams("1234567", false), "7654321"); err != nil {
				t.Fatalf("%s failed: %v", step, err)
			}
			ik, _ := initiator.SessionKey()
			rk, _ := responder.SessionKey()
			if ik == rk {
				t.Error("session keys match with different passwords")
			}
		})
	}
}

func TestPASEReconfigure(t *testing.T) {
	initiator := newTestEngine(t, initiatorNodeID, nil)
	responder := newTestEngine(t, responderNodeID, ConfigSet{Config2, Config4})

	p := initiatorParams("24680", true)
	p.ProposedConfig = Config2
	msg, err := initiator.GenerateInitiatorStep1(p)
	if err != nil {
		t.Fatalf("GenerateInitiatorStep1 failed: %v", err)
	}
	if err := responder.ProcessInitiatorStep1(msg, initiatorNodeID, []byte("24680")); !errors.Is(err, ErrPASEReconfigureRequired) {
		t.Fatalf("expected ErrPASEReconfigureRequired, got %v", err)
	}
	if !responder.IsResponder() {
		t.Errorf("responder state = %s", responder.State())
	}
	if _, err := responder.GenerateResponderStep1(); !errors.Is(err, ErrIncorrectState) {
		t.Errorf("step 1 while reconfigure pending: expected ErrIncorrectState, got %v", err)
	}

	reconf, err := responder.GenerateResponderReconfigure()
	if err != nil {
		t.Fatalf("GenerateResponderReconfigure failed: %v", err)
	}
	if len(reconf) != ReconfigureMessageSize || ProtocolConfig(binary.LittleEndian.Uint32(reconf)) != Config4 {
		t.Fatalf("reconfigure = %x", reconf)
	}
	if responder.State() != StateReset {
		t.Errorf("responder state = %s", responder.State())
	}

	if err := initiator.ProcessResponderReconfigure(reconf); err != nil {
		t.Fatalf("ProcessResponderReconfigure failed: %v", err)
	}
	if initiator.State() != StateResponderReconfigureProcessed || initiator.ProtocolConfig() != Config4 {
		t.Fatalf("initiator = %s, %s", initiator.State(), initiator.ProtocolConfig())
	}

	if step, err := runSteps(initiator, responder, p, "24680"); err != nil {
		t.Fatalf("%s failed: %v", step, err)
	}
	if initiator.ProtocolConfig() != Config4 || responder.ProtocolConfig() != Config4 {
		t.Errorf("configs = %s, %s", initiator.ProtocolConfig(), responder.ProtocolConfig())
	}
}

func TestPASEReconfigureToWeakerConfig(t *testing.T) {
	initiator := newTestEngine(t, initiatorNodeID, ConfigSet{Config5, Config4})
	responder := newTestEngine(t, responderNodeID, ConfigSet{Config4})

	p := initiatorParams("13579", true)
	p.ProposedConfig = Config5
	msg, err := initiator.GenerateInitiatorStep1(p)
	if err != nil {
		t.Fatalf("GenerateInitiatorStep1 failed: %v", err)
	}
	if err := responder.ProcessInitiatorStep1(msg, initiatorNodeID, []byte("13579")); !errors.Is(err, ErrPASEReconfigureRequired) {
		t.Fatalf("expected ErrPASEReconfigureRequired, got %v", err)
	}
	reconf, err := responder.GenerateResponderReconfigure()
	if err != nil {
		t.Fatalf("GenerateResponderReconfigure failed: %v", err)
	}
	if err := initiator.ProcessResponderReconfigure(reconf); err != nil {
		t.Fatalf("ProcessResponderReconfigure failed: %v", err)
	}
	if initiator.ProtocolConfig() != Config4 {
		t.Fatalf("initiator config = %s", initiator.ProtocolConfig())
	}

	if step, err := runSteps(initiator, responder, p, "13579"); err != nil {
		t.Fatalf("%s failed: %v", step, err)
	}
	ik, err := initiator.SessionKey()
	if err != nil {
		t.Fatalf("initiator SessionKey failed: %v", err)
	}
	rk, err := responder.SessionKey()
	if err != nil {
		t.Fatalf("responder SessionKey failed: %v", err)
	}
	if ik.Key != rk.Key {
		t.Error("session keys differ")
	}
}

func TestPASEProposedStrongestIsKept(t *testing.T) {
	initiator := newTestEngine(t, initiatorNodeID, ConfigSet{Config1, Config2})
	responder := newTestEngine(t, responderNodeID, ConfigSet{Config2, Config1})

	// Config1 and Config2 share a strength, so the proposal stands.
	if step, err := runSteps(initiator, responder, initiatorParams("99", false), "99"); err != nil {
		t.Fatalf("%s failed: %v", step, err)
	}
	if responder.ProtocolConfig() != Config1 {
		t.Errorf("config = %s", responder.ProtocolConfig())
	}
}

func TestPASENoCommonConfigurations(t *testing.T) {
	initiator := newTestEngine(t, initiatorNodeID, ConfigSet{Config2})
	responder := newTestEngine(t, responderNodeID, ConfigSet{Config5})

	step, err := runSteps(initiator, responder, initiatorParams("1", false), "1")
	if step != "ProcessInitiatorStep1" || !errors.Is(err, ErrNoCommonPASEConfigurations) {
		t.Errorf("%s: expected ErrNoCommonPASEConfigurations, got %v", step, err)
	}
	if responder.State() != StateReset {
		t.Errorf("responder state = %s", responder.State())
	}
}

func TestPASEReconfigureErrors(t *testing.T) {
	encode := func(c ProtocolConfig) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(c))
		return b
	}
	tests := []struct {
		name string
		msg  []byte
		want error
	}{
		{"short", []byte{0x05, 0x00, 0x5A}, ErrInvalidMessage},
		{"same", encode(Config4), ErrInvalidPASEConfiguration},
		{"not allowed", encode(Config0TestOnly), ErrInvalidPASEConfiguration},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(t, initiatorNodeID, nil)
			p := initiatorParams("1", false)
			p.ProposedConfig = Config4
			if _, err := e.GenerateInitiatorStep1(p); err != nil {
				t.Fatalf("GenerateInitiatorStep1 failed: %v", err)
			}
			if err := e.ProcessResponderReconfigure(tc.msg); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
			if e.State() != StateReset || e.exchange != nil {
				t.Errorf("engine not reset: %s", e.State())
			}
		})
	}
}

func TestPASEInitiatorStep1Encoding(t *testing.T) {
	e := newTestEngine(t, initiatorNodeID, ConfigSet{Config5, Config2})
	msg, err := e.GenerateInitiatorStep1(initiatorParams("1", true))
	if err != nil {
		t.Fatalf("GenerateInitiatorStep1 failed: %v", err)
	}

	ctrl := binary.LittleEndian.Uint32(msg[0:])
	size := decodeSizeHeader(binary.LittleEndian.Uint32(msg[4:]))
	if ctrl != 0x81214A21 {
		t.Errorf("control header = %#08x", ctrl)
	}
	if size != (sizeHeader{gx: 16, gr: 16, b: 8, extra: 1}) {
		t.Errorf("size header = %+v", size)
	}
	if got := ProtocolConfig(binary.LittleEndian.Uint32(msg[8:])); got != Config5 {
		t.Errorf("config = %s", got)
	}
	if got := ProtocolConfig(binary.LittleEndian.Uint32(msg[12:])); got != Config2 {
		t.Errorf("alternate = %s", got)
	}
	if len(msg) != 16+2*(64+64+32) {
		t.Errorf("length = %d", len(msg))
	}

	src, err := PeekPasswordSource(msg)
	if err != nil || src != PasswordSourcePairingCode {
		t.Errorf("PeekPasswordSource = %s, %v", src, err)
	}
}

func TestPASEMalformedStep1(t *testing.T) {
	src := newTestEngine(t, initiatorNodeID, ConfigSet{Config3})
	msg, err := src.GenerateInitiatorStep1(initiatorParams("1", false))
	if err != nil {
		t.Fatalf("GenerateInitiatorStep1 failed: %v", err)
	}
	mutate := func(f func(b []byte)) []byte {
		b := append([]byte(nil), msg...)
		f(b)
		return b
	}

	tests := []struct {
		name string
		msg  []byte
		want error
	}{
		{"empty", nil, ErrInvalidMessage},
		{"truncated", msg[:len(msg)-1], ErrInvalidMessage},
		{"trailing data", append(append([]byte(nil), msg...), 0), ErrInvalidMessage},
		{"unused control bits", mutate(func(b []byte) { b[3] |= 0x08 }), ErrInvalidMessage},
		{"alternate count mismatch", mutate(func(b []byte) { b[7] = 1 }), ErrInvalidMessage},
		{"field size", mutate(func(b []byte) { b[4]++ }), ErrInvalidMessage},
		{"encryption type", mutate(func(b []byte) { b[2] = 0x02 }), ErrUnsupportedEncryptionType},
		{"bad proof", mutate(func(b []byte) { b[len(b)-1] ^= 0x01 }), ErrPASEZKPVerificationFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(t, responderNodeID, ConfigSet{Config3})
			if err := e.ProcessInitiatorStep1(tc.msg, initiatorNodeID, []byte("1")); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
			if e.State() != StateReset || e.exchange != nil {
				t.Errorf("engine not reset: %s", e.State())
			}
		})
	}
}

func TestPASEContextBinding(t *testing.T) {
	initiator := newTestEngine(t, initiatorNodeID, ConfigSet{Config5})
	responder := newTestEngine(t, responderNodeID+1, ConfigSet{Config5})

	step, err := runSteps(initiator, responder, initiatorParams("1234", false), "1234")
	if step != "ProcessInitiatorStep1" || !errors.Is(err, ErrPASEZKPVerificationFailed) {
		t.Errorf("%s: expected ErrPASEZKPVerificationFailed, got %v", step, err)
	}
}

func TestPASEConfig0Sentinels(t *testing.T) {
	initiator := newTestEngine(t, initiatorNodeID, ConfigSet{Config0TestOnly})
	msg, err := initiator.GenerateInitiatorStep1(initiatorParams("1", false))
	if err != nil {
		t.Fatalf("GenerateInitiatorStep1 failed: %v", err)
	}
	body := msg[12:]
	if !bytes.Equal(body[:testFieldSize], bytes.Repeat([]byte{'X'}, testFieldSize)) {
		t.Errorf("gx = %x", body[:testFieldSize])
	}

	body[0] = 0
	responder := newTestEngine(t, responderNodeID, ConfigSet{Config0TestOnly})
	if err := responder.ProcessInitiatorStep1(msg, initiatorNodeID, []byte("1")); !errors.Is(err, ErrPASEZKPVerificationFailed) {
		t.Errorf("expected ErrPASEZKPVerificationFailed, got %v", err)
	}
}

func TestPASETamperedKeyConfirm(t *testing.T) {
	initiator := newTestEngine(t, initiatorNodeID, ConfigSet{Config4})
	responder := newTestEngine(t, responderNodeID, ConfigSet{Config4})

	msg, _ := initiator.GenerateInitiatorStep1(initiatorParams("5", true))
	if err := responder.ProcessInitiatorStep1(msg, initiatorNodeID, []byte("5")); err != nil {
		t.Fatalf("ProcessInitiatorStep1 failed: %v", err)
	}
	msg, _ = responder.GenerateResponderStep1()
	if err := initiator.ProcessResponderStep1(msg); err != nil {
		t.Fatalf("ProcessResponderStep1 failed: %v", err)
	}
	msg, _ = responder.GenerateResponderStep2()
	if err := initiator.ProcessResponderStep2(msg); err != nil {
		t.Fatalf("ProcessResponderStep2 failed: %v", err)
	}
	msg, _ = initiator.GenerateInitiatorStep2()
	if err := responder.ProcessInitiatorStep2(msg); err != nil {
		t.Fatalf("ProcessInitiatorStep2 failed: %v", err)
	}
	if _, err := initiator.SessionKey(); !errors.Is(err, ErrIncorrectState) {
		t.Errorf("SessionKey before confirmation: expected ErrIncorrectState, got %v", err)
	}

	msg, err := responder.GenerateResponderKeyConfirm()
	if err != nil {
		t.Fatalf("GenerateResponderKeyConfirm failed: %v", err)
	}
	msg[len(msg)-1] ^= 0x80
	if err := initiator.ProcessResponderKeyConfirm(msg); !errors.Is(err, ErrKeyConfirmationFailed) {
		t.Errorf("expected ErrKeyConfirmationFailed, got %v", err)
	}
	if initiator.State() != StateReset || !initiator.keys.isZero() {
		t.Error("initiator not reset after key confirmation failure")
	}
}

func TestPASEIncorrectState(t *testing.T) {
	e := newTestEngine(t, initiatorNodeID, nil)

	if _, err := e.GenerateResponderStep1(); !errors.Is(err, ErrIncorrectState) {
		t.Errorf("GenerateResponderStep1: expected ErrIncorrectState, got %v", err)
	}
	if _, err := e.GenerateInitiatorStep2(); !errors.Is(err, ErrIncorrectState) {
		t.Errorf("GenerateInitiatorStep2: expected ErrIncorrectState, got %v", err)
	}
	if err := e.ProcessResponderKeyConfirm(nil); !errors.Is(err, ErrIncorrectState) {
		t.Errorf("ProcessResponderKeyConfirm: expected ErrIncorrectState, got %v", err)
	}
	if _, err := e.SessionKey(); !errors.Is(err, ErrIncorrectState) {
		t.Errorf("SessionKey: expected ErrIncorrectState, got %v", err)
	}

	msg, err := e.GenerateInitiatorStep1(initiatorParams("1", false))
	if err != nil {
		t.Fatalf("GenerateInitiatorStep1 failed: %v", err)
	}
	if err := e.ProcessInitiatorStep1(msg, 1, []byte("1")); !errors.Is(err, ErrIncorrectState) {
		t.Errorf("ProcessInitiatorStep1 on initiator: expected ErrIncorrectState, got %v", err)
	}
	if e.State() != StateInitiatorStep1Generated {
		t.Errorf("state = %s", e.State())
	}
}

func TestPASEInvalidArguments(t *testing.T) {
	e := newTestEngine(t, initiatorNodeID, nil)

	p := initiatorParams("", false)
	if _, err := e.GenerateInitiatorStep1(p); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty password: expected ErrInvalidArgument, got %v", err)
	}
	p = initiatorParams("1", false)
	p.EncryptionType = EncryptionTypeNone
	if _, err := e.GenerateInitiatorStep1(p); !errors.Is(err, ErrUnsupportedEncryptionType) {
		t.Errorf("encryption type: expected ErrUnsupportedEncryptionType, got %v", err)
	}
	p = initiatorParams("1", false)
	p.ProposedConfig = Config0TestOnly
	if _, err := e.GenerateInitiatorStep1(p); !errors.Is(err, ErrInvalidPASEConfiguration) {
		t.Errorf("config not allowed: expected ErrInvalidPASEConfiguration, got %v", err)
	}
	if _, err := New(Config{AllowedConfigs: ConfigSet{0x1234}}); !errors.Is(err, ErrInvalidPASEConfiguration) {
		t.Errorf("unknown config: expected ErrInvalidPASEConfiguration, got %v", err)
	}
}

func TestStateRanges(t *testing.T) {
	initiatorStates := []State{
		StateInitiatorStep1Generated, StateResponderReconfigureProcessed, StateResponderStep1Processed,
		StateResponderStep2Processed, StateInitiatorStep2Generated, StateInitiatorDone,
	}
	responderStates := []State{
		StateInitiatorStep1Processed, StateResponderStep1Generated, StateResponderStep2Generated,
		StateInitiatorStep2Processed, StateResponderDone,
	}
	for _, s := range initiatorStates {
		if !s.IsInitiator() || s.IsResponder() {
			t.Errorf("%s: IsInitiator=%v IsResponder=%v", s, s.IsInitiator(), s.IsResponder())
		}
	}
	for _, s := range responderStates {
		if s.IsInitiator() || !s.IsResponder() {
			t.Errorf("%s: IsInitiator=%v IsResponder=%v", s, s.IsInitiator(), s.IsResponder())
		}
	}
	if StateReset.IsInitiator() || StateReset.IsResponder() {
		t.Error("Reset is in a role range")
	}
}

func TestSecurityStrength(t *testing.T) {
	want := map[ProtocolConfig]int{
		Config0TestOnly: 10, Config1: 80, Config2: 80, Config3: 96, Config4: 112, Config5: 128,
		ConfigUnspecified: 0,
	}
	for c, s := range want {
		if got := c.SecurityStrength(); got != s {
			t.Errorf("%s strength = %d, want %d", c, got, s)
		}
	}

	best, ok := ConfigSet{Config1, Config2, Config3}.strongest([]ProtocolConfig{Config2, Config5, Config3, Config1})
	if !ok || best != Config3 {
		t.Errorf("strongest = %s, %v", best, ok)
	}
	if _, ok := (ConfigSet{Config4}).strongest([]ProtocolConfig{Config2}); ok {
		t.Error("strongest found a config outside the set")
	}
}

func TestContextEncoding(t *testing.T) {
	p := contextParams{
		role:           roleInitiator,
		localNodeID:    1,
		peerNodeID:     0xABCD,
		sessionKeyID:   0x0102,
		encryptionType: EncryptionTypeAES128CTRSHA1,
		passwordSource: PasswordSourceSetupCode,
		confirmKey:     true,
		config:         Config1,
		altConfigs:     []ProtocolConfig{Config2},
	}

	want := "PASE:I:0000000000000001:000000000000ABCD:0102:01:01:true:235A0001:235A0002"
	if got := string(p.ascii()); got != want {
		t.Errorf("ascii = %q, want %q", got, want)
	}
	peer := p.peer()
	if peer.role != roleResponder || peer.localNodeID != 0xABCD || peer.peerNodeID != 1 {
		t.Errorf("peer = %+v", peer)
	}
	if got := string(peer.peer().ascii()); got != want {
		t.Errorf("peer of peer = %q", got)
	}

	b := p.binary()
	if len(b) != 27+4 {
		t.Fatalf("binary length = %d", len(b))
	}
	if b[0] != roleInitiator || binary.LittleEndian.Uint64(b[1:]) != 1 || binary.LittleEndian.Uint64(b[9:]) != 0xABCD {
		t.Errorf("binary = %x", b)
	}
	if ProtocolConfig(binary.LittleEndian.Uint32(b[27:])) != Config2 {
		t.Errorf("alternate = %x", b[27:])
	}
}
