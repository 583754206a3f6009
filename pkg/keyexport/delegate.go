package keyexport

import (
	gocrypto "crypto"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/backkem/weave/pkg/keystore"
)

// Delegate supplies node credentials and the access policy for an Engine.
//
// Every method receives the calling engine so one delegate can serve
// several engines; e.IsInitiator tells which side of the exchange is asking.
type Delegate interface {
	// NodeCertificates returns the local node's DER certificate chain, leaf
	// first, for signing a message.
	NodeCertificates(e *Engine) ([][]byte, error)

	// ReleaseNodeCertificates is called when the chain is no longer needed.
	ReleaseNodeCertificates(e *Engine)

	// NodePrivateKey returns the signer for the leaf certificate.
	NodePrivateKey(e *Engine) (gocrypto.Signer, error)

	// ReleaseNodePrivateKey is called when the signer is no longer needed.
	ReleaseNodePrivateKey(e *Engine)

	// BeginCertValidation prepares validation of a peer certificate chain.
	BeginCertValidation(e *Engine) (*ValidationContext, error)

	// HandleCertValidationResult applies the access policy to a validated
	// peer. keyID is the requested key on the responder and the exported
	// key on the initiator.
	HandleCertValidationResult(e *Engine, ctx *ValidationContext, peer *x509.Certificate, keyID keystore.KeyID) error

	// EndCertValidation releases ctx.
	EndCertValidation(e *Engine, ctx *ValidationContext)

	// ValidateUnsignedKeyExportMessage authorizes an unsigned request or
	// response.
	ValidateUnsignedKeyExportMessage(e *Engine, keyID keystore.KeyID) error
}

// ValidationContext holds the trust anchors for a peer chain.
type ValidationContext struct {
	// Roots are the trusted root certificates.
	Roots *x509.CertPool

	// CurrentTime is the validation time. Zero means now.
	CurrentTime time.Time

	// KeyUsages restricts the leaf's extended key usages. Empty means any.
	KeyUsages []x509.ExtKeyUsage
}

// verifyChain validates a DER chain, leaf first, against ctx and returns
// the leaf.
func (ctx *ValidationContext) verifyChain(chain [][]byte) (*x509.Certificate, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: empty certificate chain", ErrInvalidSignature)
	}
	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return nil, fmt.Errorf("%w: leaf certificate: %v", ErrInvalidSignature, err)
	}
	intermediates := x509.NewCertPool()
	for i, der := range chain[1:] {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("%w: certificate %d: %v", ErrInvalidSignature, i+1, err)
		}
		intermediates.AddCert(cert)
	}

	usages := ctx.KeyUsages
	if len(usages) == 0 {
		usages = []x509.ExtKeyUsage{x509.ExtKeyUsageAny}
	}
	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:         ctx.Roots,
		Intermediates: intermediates,
		CurrentTime:   ctx.CurrentTime,
		KeyUsages:     usages,
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return leaf, nil
}

// AuthorizeFunc decides whether peer may take part in an export of keyID.
type AuthorizeFunc func(peer *x509.Certificate, keyID keystore.KeyID, isInitiator bool) error

// StaticDelegate is a Delegate backed by fixed credentials.
type StaticDelegate struct {
	// Certificates is the local DER chain, leaf first.
	Certificates [][]byte

	// PrivateKey signs with the leaf key.
	PrivateKey gocrypto.Signer

	// Roots are the trusted roots for peer chains.
	Roots *x509.CertPool

	// Now returns the validation time. If nil, the system time is used.
	Now func() time.Time

	// Authorize applies the key access policy to validated peers. If nil,
	// every validated peer is allowed.
	Authorize AuthorizeFunc

	// AllowUnsigned accepts unsigned messages.
	AllowUnsigned bool
}

var _ Delegate = (*StaticDelegate)(nil)

// NodeCertificates returns the configured chain.
func (d *StaticDelegate) NodeCertificates(e *Engine) ([][]byte, error) {
	if len(d.Certificates) == 0 {
		return nil, fmt.Errorf("%w: no node certificates", ErrInvalidArgument)
	}
	return d.Certificates, nil
}

// ReleaseNodeCertificates does nothing.
func (d *StaticDelegate) ReleaseNodeCertificates(e *Engine) {}

// NodePrivateKey returns the configured signer.
func (d *StaticDelegate) NodePrivateKey(e *Engine) (gocrypto.Signer, error) {
	if d.PrivateKey == nil {
		return nil, fmt.Errorf("%w: no node private key", ErrInvalidArgument)
	}
	return d.PrivateKey, nil
}

// ReleaseNodePrivateKey does nothing.
func (d *StaticDelegate) ReleaseNodePrivateKey(e *Engine) {}

// BeginCertValidation returns a context over the configured roots.
func (d *StaticDelegate) BeginCertValidation(e *Engine) (*ValidationContext, error) {
	if d.Roots == nil {
		return nil, fmt.Errorf("%w: no trusted roots", ErrUnauthorizedKeyExport)
	}
	ctx := &ValidationContext{Roots: d.Roots}
	if d.Now != nil {
		ctx.CurrentTime = d.Now()
	}
	return ctx, nil
}

// HandleCertValidationResult applies Authorize.
func (d *StaticDelegate) HandleCertValidationResult(e *Engine, ctx *ValidationContext, peer *x509.Certificate, keyID keystore.KeyID) error {
	if d.Authorize == nil {
		return nil
	}
	return d.Authorize(peer, keyID, e.IsInitiator())
}

// EndCertValidation does nothing.
func (d *StaticDelegate) EndCertValidation(e *Engine, ctx *ValidationContext) {}

// ValidateUnsignedKeyExportMessage allows unsigned messages only when
// AllowUnsigned is set.
func (d *StaticDelegate) ValidateUnsignedKeyExportMessage(e *Engine, keyID keystore.KeyID) error {
	if !d.AllowUnsigned {
		return fmt.Errorf("%w: unsigned message for %s", ErrUnauthorizedKeyExport, keyID)
	}
	return nil
}
