// Package keyexport implements the Weave Key Export protocol.
//
// Key export lets an initiator obtain a group key held by a responder. The
// initiator sends an ephemeral ECDH public key; the responder answers with
// its own ephemeral key and the requested key encrypted under a key derived
// from the ECDH shared secret. Both messages may be signed with the node's
// certificate key.
//
// # Protocol Flow
//
//	Initiator                                Responder
//	---------                                ---------
//	GenerateKeyExportRequest  ------>        ProcessKeyExportRequest
//	                          <------        GenerateKeyExportResponse
//	ProcessKeyExportResponse
//
// If the responder does not support the proposed config it answers with a
// one-byte reconfigure message naming one of the initiator's alternates:
//
//	GenerateKeyExportRequest  ------>        ProcessKeyExportRequest (ErrKeyExportReconfigureRequired)
//	                          <------        GenerateKeyExportReconfigure
//	ProcessKeyExportReconfigure
//	GenerateKeyExportRequest  ------>        ProcessKeyExportRequest
//	...
//
// # Message Formats
//
// All integers are little-endian.
//
//	Request:     ctrl(1) | config(1) | altConfigs(n) | keyID(4) | ecdhPublicKey | [signature]
//	Response:    ctrl(1) | keyID(4) | keyLen(2) | ecdhPublicKey | encryptedKey(keyLen) | authenticator(32) | [signature]
//	Reconfigure: config(1)
//
// The signature block is a TLV structure holding the signer's certificate
// chain and an ECDSA signature over the SHA-256 hash of the preceding bytes.
package keyexport

import (
	"fmt"

	"github.com/backkem/weave/pkg/crypto"
)

// ProtocolConfig selects the ECDH curve of an exchange.
type ProtocolConfig uint8

// Protocol configs.
const (
	ConfigNone ProtocolConfig = 0x00
	Config1    ProtocolConfig = 0x01 // secp224r1
	Config2    ProtocolConfig = 0x02 // prime256v1
)

// Curve returns the ECDH curve for the config, or nil if the config is
// unknown.
func (c ProtocolConfig) Curve() *crypto.Curve {
	switch c {
	case Config1:
		return crypto.SECP224R1
	case Config2:
		return crypto.Prime256V1
	}
	return nil
}

// String returns the config name.
func (c ProtocolConfig) String() string {
	switch c {
	case ConfigNone:
		return "None"
	case Config1:
		return "Config1"
	case Config2:
		return "Config2"
	}
	return fmt.Sprintf("Config(%#02x)", uint8(c))
}

// ConfigSet is an ordered set of allowed configs.
type ConfigSet []ProtocolConfig

// DefaultConfigs allows every supported config.
var DefaultConfigs = ConfigSet{Config1, Config2}

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
// only supported configs.
func (s ConfigSet) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: no configs allowed", ErrInvalidKeyExportConfiguration)
	}
	for i, c := range s {
		if c.Curve() == nil {
			return fmt.Errorf("%w: %s", ErrInvalidKeyExportConfiguration, c)
		}
		if ConfigSet(s[:i]).Contains(c) {
			return fmt.Errorf("%w: duplicate %s", ErrInvalidKeyExportConfiguration, c)
		}
	}
	return nil
}

// Protocol constants.
const (
	// MaxAltConfigs is the largest number of alternate configs in a request.
	MaxAltConfigs = 7

	// AuthenticatorSize is the size of the exported key authenticator.
	AuthenticatorSize = crypto.SHA256LenBytes

	// ReconfigureMessageSize is the size of a reconfigure message.
	ReconfigureMessageSize = 1

	encryptionKeySize     = crypto.AES128KeySize
	authenticationKeySize = crypto.SHA256LenBytes

	ctrlAltConfigCountMask = 0x07
	ctrlSignMessages       = 0x80
	ctrlRequestUnusedBits  = 0x78
	ctrlResponseUnusedBits = 0x7F
)
