package handshake

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/backkem/weave/pkg/keyexport"
	"github.com/backkem/weave/pkg/keystore"
	"github.com/backkem/weave/pkg/transport"
)

// KeyExportParams are the initiator's choices for a key export run.
type KeyExportParams struct {
	Config       keyexport.ProtocolConfig
	KeyID        keystore.KeyID
	SignMessages bool
}

// KeyExportResult is the outcome of a key export run.
type KeyExportResult struct {
	// Key is the exported key. The caller should zero it after use.
	Key []byte

	// KeyID is the concrete id of the exported key.
	KeyID keystore.KeyID

	// Config is the config the exchange completed with.
	Config keyexport.ProtocolConfig
}

// RunKeyExport exports a key from responder to initiator. The initiator
// talks on pipe endpoint 0 and the responder on endpoint 1.
func (r *Runner) RunKeyExport(ctx context.Context, initiator, responder *keyexport.Engine, pipe *transport.Pipe, p KeyExportParams) (KeyExportResult, error) {
	if initiator == nil || responder == nil || pipe == nil {
		return KeyExportResult{}, ErrInvalidArgument
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var res KeyExportResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.serveKeyExport(gctx, responder, pipe.Endpoint(1))
	})
	g.Go(func() error {
		key, keyID, err := initiator.ExportKey(gctx, r.tracingRoundTripper("key export request", pipe.Endpoint(0)), p.Config, p.KeyID, p.SignMessages)
		if err != nil {
			return fmt.Errorf("initiator: %w", err)
		}
		res = KeyExportResult{Key: key, KeyID: keyID, Config: initiator.ProtocolConfig()}
		return nil
	})
	if err := g.Wait(); err != nil {
		if r.log != nil {
			r.log.Warnf("key export of %s failed: %v", p.KeyID, err)
		}
		return KeyExportResult{}, err
	}

	if r.log != nil {
		r.log.Infof("exported %s using %s", res.KeyID, res.Config)
	}
	return res, nil
}

// serveKeyExport answers requests until a response has been sent.
func (r *Runner) serveKeyExport(ctx context.Context, e *keyexport.Engine, ep *transport.Endpoint) error {
	for {
		msg, err := ep.Receive(ctx)
		if err != nil {
			return fmt.Errorf("responder: %w", err)
		}
		reply, err := e.HandleRequest(msg)
		if err != nil {
			return fmt.Errorf("responder: %w", err)
		}
		r.tracef("key export reply: %d bytes", len(reply))
		if err := ep.Send(ctx, reply); err != nil {
			return fmt.Errorf("responder: %w", err)
		}
		if e.State() == keyexport.StateResponderDone {
			return nil
		}
	}
}

func (r *Runner) tracingRoundTripper(name string, ep *transport.Endpoint) keyexport.RoundTripper {
	return keyexport.RoundTripFunc(func(ctx context.Context, msg []byte) ([]byte, error) {
		r.tracef("%s: %d bytes", name, len(msg))
		return ep.RoundTrip(ctx, msg)
	})
}
