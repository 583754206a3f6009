package keyexport

import (
	"errors"
	"fmt"
	"io"

	"github.com/backkem/weave/pkg/crypto"
	"github.com/backkem/weave/pkg/keystore"
	"github.com/backkem/weave/pkg/tlv"
)

// Signature block tags.
const (
	tagSignerCertificates = 1
	tagECDSASignature     = 2
)

// encodeSignatureBlock encodes
//
//	{ 1: [ cert, ... ], 2: signature }
func encodeSignatureBlock(certs [][]byte, signature []byte) ([]byte, error) {
	w := tlv.NewWriter()
	w.StartStructure(tlv.Anonymous())
	w.StartArray(tlv.ContextTag(tagSignerCertificates))
	for _, cert := range certs {
		w.PutBytes(tlv.Anonymous(), cert)
	}
	if err := w.EndContainer(); err != nil {
		return nil, err
	}
	w.PutBytes(tlv.ContextTag(tagECDSASignature), signature)
	if err := w.EndContainer(); err != nil {
		return nil, err
	}
	return w.Bytes()
}

// decodeSignatureBlock parses a signature block that must span all of data.
func decodeSignatureBlock(data []byte) (certs [][]byte, signature []byte, err error) {
	r := tlv.NewReader(data)
	if err := r.Next(); err != nil {
		return nil, nil, fmt.Errorf("%w: signature block: %v", ErrInvalidArgument, err)
	}
	if err := r.EnterContainer(); err != nil || r.Type() != tlv.ElementTypeStruct {
		return nil, nil, fmt.Errorf("%w: signature block is not a structure", ErrInvalidArgument)
	}

	for {
		if err := r.Next(); err != nil {
			return nil, nil, fmt.Errorf("%w: signature block: %v", ErrInvalidArgument, err)
		}
		if r.IsEndOfContainer() {
			break
		}
		switch {
		case r.Tag().IsContext(tagSignerCertificates):
			if certs, err = decodeCertificateArray(r); err != nil {
				return nil, nil, err
			}
		case r.Tag().IsContext(tagECDSASignature):
			if signature, err = r.Bytes(); err != nil {
				return nil, nil, fmt.Errorf("%w: signature: %v", ErrInvalidArgument, err)
			}
		}
	}
	if err := r.ExitContainer(); err != nil {
		return nil, nil, fmt.Errorf("%w: signature block: %v", ErrInvalidArgument, err)
	}
	if err := r.Next(); !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: trailing data after signature block", ErrInvalidArgument)
	}
	if len(certs) == 0 || len(signature) == 0 {
		return nil, nil, fmt.Errorf("%w: incomplete signature block", ErrInvalidArgument)
	}
	return certs, signature, nil
}

func decodeCertificateArray(r *tlv.Reader) ([][]byte, error) {
	if r.Type() != tlv.ElementTypeArray {
		return nil, fmt.Errorf("%w: certificates are not an array", ErrInvalidArgument)
	}
	if err := r.EnterContainer(); err != nil {
		return nil, err
	}
	var certs [][]byte
	for {
		if err := r.Next(); err != nil {
			return nil, fmt.Errorf("%w: certificates: %v", ErrInvalidArgument, err)
		}
		if r.IsEndOfContainer() {
			break
		}
		cert, err := r.Bytes()
		if err != nil {
			return nil, fmt.Errorf("%w: certificate: %v", ErrInvalidArgument, err)
		}
		certs = append(certs, cert)
	}
	if err := r.ExitContainer(); err != nil {
		return nil, err
	}
	return certs, nil
}

// signMessage returns the signature block for msg.
func (e *Engine) signMessage(msg []byte) ([]byte, error) {
	certs, err := e.delegate.NodeCertificates(e)
	if err != nil {
		return nil, err
	}
	defer e.delegate.ReleaseNodeCertificates(e)

	signer, err := e.delegate.NodePrivateKey(e)
	if err != nil {
		return nil, err
	}
	defer e.delegate.ReleaseNodePrivateKey(e)

	hash := crypto.SHA256(msg)
	signature, err := crypto.ECDSASignHash(signer, e.rand, hash[:])
	if err != nil {
		return nil, err
	}
	return encodeSignatureBlock(certs, signature)
}

// verifyMessage checks the signature block sigBlock over msg and applies
// the delegate's policy for keyID.
func (e *Engine) verifyMessage(msg, sigBlock []byte, keyID keystore.KeyID) error {
	certs, signature, err := decodeSignatureBlock(sigBlock)
	if err != nil {
		return err
	}

	ctx, err := e.delegate.BeginCertValidation(e)
	if err != nil {
		return err
	}
	defer e.delegate.EndCertValidation(e, ctx)

	leaf, err := ctx.verifyChain(certs)
	if err != nil {
		return err
	}
	hash := crypto.SHA256(msg)
	if !crypto.ECDSAVerifyHash(leaf.PublicKey, hash[:], signature) {
		if e.log != nil {
			e.log.Warnf("signature verification failed for %s", keyID)
		}
		return ErrInvalidSignature
	}
	return e.delegate.HandleCertValidationResult(e, ctx, leaf, keyID)
}
