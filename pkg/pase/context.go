package pase

import (
	"fmt"
	"strings"

	"github.com/backkem/weave/pkg/wire"
)

// Context roles.
const (
	roleInitiator byte = 'I'
	roleResponder byte = 'R'
)

// contextParams is the negotiated state bound into the J-PAKE proofs. Each
// party encodes one context for itself and one for its peer, so the node ids
// and role are swapped between the two.
//
// Changing either encoding breaks interoperability; a new encoding needs a
// new config.
type contextParams struct {
	role           byte
	localNodeID    uint64
	peerNodeID     uint64
	sessionKeyID   uint16
	encryptionType EncryptionType
	passwordSource PasswordSource
	confirmKey     bool
	config         ProtocolConfig
	altConfigs     []ProtocolConfig
}

// peer returns the context as the other party encodes it for itself.
func (p contextParams) peer() contextParams {
	q := p
	q.localNodeID, q.peerNodeID = p.peerNodeID, p.localNodeID
	if p.role == roleInitiator {
		q.role = roleResponder
	} else {
		q.role = roleInitiator
	}
	return q
}

// binary encodes
//
//	role(1) | localNodeID(8) | peerNodeID(8) | sessionKeyID(2) | encryptionType(1) |
//	passwordSource(1) | confirmKey(1) | config(4) | altCount(1) | altConfigs(4*n)
func (p contextParams) binary() []byte {
	w := wire.NewWriter(27 + 4*len(p.altConfigs))
	w.PutU8(p.role)
	putU64(w, p.localNodeID)
	putU64(w, p.peerNodeID)
	w.PutU16(p.sessionKeyID)
	w.PutU8(uint8(p.encryptionType))
	w.PutU8(uint8(p.passwordSource))
	if p.confirmKey {
		w.PutU8(1)
	} else {
		w.PutU8(0)
	}
	w.PutU32(uint32(p.config))
	w.PutU8(uint8(len(p.altConfigs)))
	for _, c := range p.altConfigs {
		w.PutU32(uint32(c))
	}
	b, err := w.Bytes()
	if err != nil {
		// The writer is sized for the fields above.
		panic(err)
	}
	return b
}

// ascii encodes the context as text, for Config1.
func (p contextParams) ascii() []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "PASE:%c:%016X:%016X:%04X:%02X:%02X:%t:%08X",
		p.role, p.localNodeID, p.peerNodeID, p.sessionKeyID,
		uint8(p.encryptionType), uint8(p.passwordSource), p.confirmKey, uint32(p.config))
	for _, c := range p.altConfigs {
		fmt.Fprintf(&sb, ":%08X", uint32(c))
	}
	return []byte(sb.String())
}

func putU64(w *wire.Writer, v uint64) {
	w.PutU32(uint32(v))
	w.PutU32(uint32(v >> 32))
}
