package handshake

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/backkem/weave/pkg/pase"
	"github.com/backkem/weave/pkg/transport"
)

// PasswordFunc returns the responder's password for the source the
// initiator named.
type PasswordFunc func(source pase.PasswordSource) ([]byte, error)

// StaticPassword returns a PasswordFunc that answers every source with pw.
func StaticPassword(pw []byte) PasswordFunc {
	return func(pase.PasswordSource) ([]byte, error) {
		return pw, nil
	}
}

// PASEParams configure a PASE run.
type PASEParams struct {
	// Initiator holds the initiator's choices. PeerNodeID defaults to the
	// responder's local node id.
	Initiator pase.InitiatorParams

	// Password supplies the responder's password. Required.
	Password PasswordFunc
}

// PASEResult is the outcome of a PASE run.
type PASEResult struct {
	// InitiatorKey and ResponderKey are the keys each side derived. They are
	// equal on success. The caller should Clear them after use.
	InitiatorKey pase.SessionKey
	ResponderKey pase.SessionKey

	// Config is the config the exchange completed with.
	Config pase.ProtocolConfig
}

// RunPASE runs a PASE exchange between initiator, on pipe endpoint 0, and
// responder, on endpoint 1.
func (r *Runner) RunPASE(ctx context.Context, initiator, responder *pase.Engine, pipe *transport.Pipe, p PASEParams) (PASEResult, error) {
	if initiator == nil || responder == nil || pipe == nil || p.Password == nil {
		return PASEResult{}, ErrInvalidArgument
	}
	if p.Initiator.PeerNodeID == 0 {
		p.Initiator.PeerNodeID = responder.LocalNodeID()
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.runPASEResponder(gctx, responder, pipe.Endpoint(1), initiator.LocalNodeID(), p.Password); err != nil {
			responder.Reset()
			return fmt.Errorf("responder: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.runPASEInitiator(gctx, initiator, pipe.Endpoint(0), p.Initiator); err != nil {
			initiator.Reset()
			return fmt.Errorf("initiator: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if r.log != nil {
			r.log.Warnf("PASE failed: %v", err)
		}
		return PASEResult{}, err
	}

	var res PASEResult
	var err error
	if res.InitiatorKey, err = initiator.SessionKey(); err != nil {
		return PASEResult{}, err
	}
	if res.ResponderKey, err = responder.SessionKey(); err != nil {
		res.InitiatorKey.Clear()
		return PASEResult{}, err
	}
	res.Config = initiator.ProtocolConfig()
	if res.InitiatorKey != res.ResponderKey {
		res.InitiatorKey.Clear()
		res.ResponderKey.Clear()
		return PASEResult{}, ErrSessionKeyMismatch
	}

	if r.log != nil {
		r.log.Infof("PASE session %d established using %s", res.InitiatorKey.ID, res.Config)
	}
	return res, nil
}

func (r *Runner) runPASEInitiator(ctx context.Context, e *pase.Engine, ep *transport.Endpoint, p pase.InitiatorParams) error {
	reconfigured := false
	for {
		msg, err := e.GenerateInitiatorStep1(p)
		if err != nil {
			return err
		}
		r.tracef("initiator step 1: %d bytes", len(msg))
		reply, err := ep.RoundTrip(ctx, msg)
		if err != nil {
			return err
		}
		if len(reply) != pase.ReconfigureMessageSize {
			if err := e.ProcessResponderStep1(reply); err != nil {
				return err
			}
			break
		}
		if reconfigured {
			return fmt.Errorf("%w: second reconfigure", ErrUnexpectedMessage)
		}
		if err := e.ProcessResponderReconfigure(reply); err != nil {
			return err
		}
		reconfigured = true
	}

	msg, err := ep.Receive(ctx)
	if err != nil {
		return err
	}
	if err := e.ProcessResponderStep2(msg); err != nil {
		return err
	}
	if msg, err = e.GenerateInitiatorStep2(); err != nil {
		return err
	}
	r.tracef("initiator step 2: %d bytes", len(msg))
	if err := ep.Send(ctx, msg); err != nil {
		return err
	}
	if e.State() == pase.StateInitiatorDone {
		return nil
	}

	if msg, err = ep.Receive(ctx); err != nil {
		return err
	}
	return e.ProcessResponderKeyConfirm(msg)
}

func (r *Runner) runPASEResponder(ctx context.Context, e *pase.Engine, ep *transport.Endpoint, peerNodeID uint64, password PasswordFunc) error {
	for {
		msg, err := ep.Receive(ctx)
		if err != nil {
			return err
		}
		source, err := pase.PeekPasswordSource(msg)
		if err != nil {
			return err
		}
		pw, err := password(source)
		if err != nil {
			return err
		}
		err = e.ProcessInitiatorStep1(msg, peerNodeID, pw)
		if err == nil {
			break
		}
		if !errors.Is(err, pase.ErrPASEReconfigureRequired) {
			return err
		}
		reconf, err := e.GenerateResponderReconfigure()
		if err != nil {
			return err
		}
		r.tracef("responder reconfigure to %s", e.ProtocolConfig())
		if err := ep.Send(ctx, reconf); err != nil {
			return err
		}
	}

	for _, generate := range []func() ([]byte, error){e.GenerateResponderStep1, e.GenerateResponderStep2} {
		msg, err := generate()
		if err != nil {
			return err
		}
		r.tracef("responder step: %d bytes", len(msg))
		if err := ep.Send(ctx, msg); err != nil {
			return err
		}
	}

	msg, err := ep.Receive(ctx)
	if err != nil {
		return err
	}
	if err := e.ProcessInitiatorStep2(msg); err != nil {
		return err
	}
	if e.State() == pase.StateResponderDone {
		return nil
	}

	if msg, err = e.GenerateResponderKeyConfirm(); err != nil {
		return err
	}
	return ep.Send(ctx, msg)
}
