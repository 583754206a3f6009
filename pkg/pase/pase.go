// Package pase implements Weave Password-Authenticated Session Establishment.
//
// PASE derives a session key from a password shared by two nodes using
// J-PAKE: finite-field J-PAKE for Config1 and EC J-PAKE for Config2-5.
// Config0 is a test-only config that exchanges fixed sentinel values.
//
// # Protocol Flow
//
//	Initiator                                  Responder
//	---------                                  ---------
//	GenerateInitiatorStep1      ------>        ProcessInitiatorStep1
//	                            <------        GenerateResponderStep1
//	ProcessResponderStep1
//	                            <------        GenerateResponderStep2
//	ProcessResponderStep2
//	GenerateInitiatorStep2      ------>        ProcessInitiatorStep2
//	                            <------        GenerateResponderKeyConfirm
//	ProcessResponderKeyConfirm
//
// The key confirmation message is only sent when the initiator asks for key
// confirmation. If the responder prefers a stronger config than the one
// proposed, it answers step 1 with a reconfigure message instead and the
// initiator starts over with the responder's choice:
//
//	GenerateInitiatorStep1      ------>        ProcessInitiatorStep1 (ErrPASEReconfigureRequired)
//	                            <------        GenerateResponderReconfigure
//	ProcessResponderReconfigure
//	GenerateInitiatorStep1      ------>        ...
//
// # Message Formats
//
// All integers are little-endian. Field sizes in the size header are in
// 32-bit words.
//
//	Initiator step 1:    control(4) | size(4) | config(4) | altConfigs(4*n) | commitment | commitment
//	Responder step 1:    size(4) | commitment | commitment
//	Step 2:              size(4) | commitment [| keyConfirmHash]
//	Key confirm:         size(4) | keyConfirmHash
//	Reconfigure:         config(4)
//
// A commitment is gx | zkpGR | zkpB.
package pase

import (
	"fmt"
)

// ProtocolConfig identifies a PASE protocol configuration.
type ProtocolConfig uint32

// PASE configs.
const (
	ConfigUnspecified ProtocolConfig = 0
	Config0TestOnly   ProtocolConfig = 0x235A0000
	Config1           ProtocolConfig = 0x235A0001 // finite-field J-PAKE, 1024-bit group
	Config2           ProtocolConfig = 0x235A0002 // EC J-PAKE, secp160r1
	Config3           ProtocolConfig = 0x235A0003 // EC J-PAKE, prime192v1
	Config4           ProtocolConfig = 0x235A0004 // EC J-PAKE, secp224r1
	Config5           ProtocolConfig = 0x235A0005 // EC J-PAKE, prime256v1
)

// String returns the config name.
func (c ProtocolConfig) String() string {
	switch c {
	case ConfigUnspecified:
		return "Unspecified"
	case Config0TestOnly:
		return "Config0_TEST_ONLY"
	case Config1:
		return "Config1"
	case Config2:
		return "Config2"
	case Config3:
		return "Config3"
	case Config4:
		return "Config4"
	case Config5:
		return "Config5"
	}
	return fmt.Sprintf("ProtocolConfig(%#08x)", uint32(c))
}

// SecurityStrength returns the config's strength ranking, or 0 if the
// config is unknown.
func (c ProtocolConfig) SecurityStrength() int {
	if s := suiteFor(c); s != nil {
		return s.strength()
	}
	return 0
}

// ConfigSet is an ordered set of allowed configs.
type ConfigSet []ProtocolConfig

// DefaultConfigs allows every production config, strongest first.
var DefaultConfigs = ConfigSet{Config5, Config4, Config3, Config2, Config1}

// Contains reports whether c is in the set.
func (s ConfigSet) Contains(c ProtocolConfig) bool {
	for _, v := range s {
		if v == c {
			return true
		}
	}
	return false
}

// Validate checks that the set is non-empty, has no duplicates and holds
// only known configs.
func (s ConfigSet) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: no configs allowed", ErrInvalidPASEConfiguration)
	}
	for i, c := range s {
		if suiteFor(c) == nil {
			return fmt.Errorf("%w: %s", ErrInvalidPASEConfiguration, c)
		}
		if ConfigSet(s[:i]).Contains(c) {
			return fmt.Errorf("%w: duplicate %s", ErrInvalidPASEConfiguration, c)
		}
	}
	return nil
}

// strongest returns the config of the highest strength in s that is also in
// candidates, preferring the earliest in candidates on ties.
func (s ConfigSet) strongest(candidates []ProtocolConfig) (ProtocolConfig, bool) {
	best, found := ConfigUnspecified, false
	for _, c := range candidates {
		if !s.Contains(c) {
			continue
		}
		if !found || c.SecurityStrength() > best.SecurityStrength() {
			best, found = c, true
		}
	}
	return best, found
}

// EncryptionType is the session encryption scheme the key is derived for.
type EncryptionType uint8

const (
	EncryptionTypeNone          EncryptionType = 0
	EncryptionTypeAES128CTRSHA1 EncryptionType = 1
)

// String returns the encryption type name.
func (t EncryptionType) String() string {
	switch t {
	case EncryptionTypeNone:
		return "None"
	case EncryptionTypeAES128CTRSHA1:
		return "AES128CTRSHA1"
	}
	return fmt.Sprintf("EncryptionType(%d)", uint8(t))
}

// PasswordSource tells the responder which of its passwords to use.
type PasswordSource uint8

const (
	PasswordSourceNotSpecified PasswordSource = 0
	PasswordSourceSetupCode    PasswordSource = 1
	PasswordSourcePairingCode  PasswordSource = 2
)

// String returns the password source name.
func (p PasswordSource) String() string {
	switch p {
	case PasswordSourceNotSpecified:
		return "NotSpecified"
	case PasswordSourceSetupCode:
		return "SetupCode"
	case PasswordSourcePairingCode:
		return "PairingCode"
	}
	return fmt.Sprintf("PasswordSource(%d)", uint8(p))
}

// Protocol constants.
const (
	// MaxAltConfigs is the largest number of alternate configs in step 1.
	MaxAltConfigs = 7

	// ReconfigureMessageSize is the size of a reconfigure message.
	ReconfigureMessageSize = 4

	// AES128CTRSHA1 session key: encryption key followed by integrity key.
	EncryptionKeySize = 16
	IntegrityKeySize  = 20
	SessionKeySize    = EncryptionKeySize + IntegrityKeySize
)

// Control header layout (initiator step 1).
const (
	ctrlSessionKeyIDMask    = 0x0000FFFF
	ctrlEncryptionTypeMask  = 0x000F0000
	ctrlEncryptionTypeShift = 16
	ctrlPasswordSourceMask  = 0x00F00000
	ctrlPasswordSourceShift = 20
	ctrlAltConfigCountMask  = 0x07000000
	ctrlAltConfigCountShift = 24
	ctrlUnusedBits          = 0x78000000
	ctrlKeyConfirmFlag      = 0x80000000
)
