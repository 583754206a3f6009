package keyexport

import (
	"context"
	"errors"

	"github.com/backkem/weave/pkg/keystore"
)

// RoundTripper delivers a message to the responder and returns its reply.
type RoundTripper interface {
	RoundTrip(ctx context.Context, msg []byte) ([]byte, error)
}

// RoundTripFunc adapts a function to RoundTripper.
type RoundTripFunc func(ctx context.Context, msg []byte) ([]byte, error)

// RoundTrip calls f.
func (f RoundTripFunc) RoundTrip(ctx context.Context, msg []byte) ([]byte, error) {
	return f(ctx, msg)
}

// ExportKey runs a complete initiator exchange over rt, following at most
// one reconfigure. It returns the exported key and its concrete key id.
func (e *Engine) ExportKey(ctx context.Context, rt RoundTripper, config ProtocolConfig, keyID keystore.KeyID, signMessages bool) ([]byte, keystore.KeyID, error) {
	if e.state != StateReset {
		e.Reset()
	}

	reconfigured := false
	for {
		if err := ctx.Err(); err != nil {
			e.Reset()
			return nil, keystore.KeyIDNone, err
		}
		req, err := e.GenerateKeyExportRequest(config, keyID, signMessages)
		if err != nil {
			return nil, keystore.KeyIDNone, err
		}
		reply, err := rt.RoundTrip(ctx, req)
		if err != nil {
			e.Reset()
			return nil, keystore.KeyIDNone, err
		}

		if len(reply) == ReconfigureMessageSize && !reconfigured {
			if err := e.ProcessKeyExportReconfigure(reply); err != nil {
				return nil, keystore.KeyIDNone, err
			}
			reconfigured = true
			config = e.ProtocolConfig()
			continue
		}
		return e.ProcessKeyExportResponse(reply)
	}
}

// HandleRequest answers one request as responder. The reply is either a
// response or, when a different config is required, a reconfigure message.
func (e *Engine) HandleRequest(msg []byte) ([]byte, error) {
	if e.state != StateReset {
		e.Reset()
	}
	err := e.ProcessKeyExportRequest(msg)
	if errors.Is(err, ErrKeyExportReconfigureRequired) {
		return e.GenerateKeyExportReconfigure()
	}
	if err != nil {
		return nil, err
	}
	return e.GenerateKeyExportResponse()
}
