// Package handshake drives key export and PASE exchanges between two local
// engines over a transport.Pipe. Every message crosses the pipe as bytes, so
// a run exercises the engines exactly as a remote peer would.
package handshake

import (
	"context"
	"errors"
	"time"

	"github.com/pion/logging"
)

// DefaultTimeout bounds a run when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Handshake errors.
var (
	// ErrUnexpectedMessage is returned when a peer sends a message the
	// exchange does not allow at that point.
	ErrUnexpectedMessage = errors.New("handshake: unexpected message")

	// ErrSessionKeyMismatch is returned when both sides of a PASE run
	// finish with different session keys.
	ErrSessionKeyMismatch = errors.New("handshake: session keys differ")

	// ErrInvalidArgument is returned for missing engines or pipes.
	ErrInvalidArgument = errors.New("handshake: invalid argument")
)

// Config configures a Runner.
type Config struct {
	// Timeout bounds each run. Zero means DefaultTimeout.
	Timeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Runner runs loopback exchanges. It holds no per-run state and may be used
// from several goroutines.
type Runner struct {
	timeout time.Duration
	log     logging.LeveledLogger
}

// New creates a Runner.
func New(config Config) *Runner {
	r := &Runner{timeout: config.Timeout}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("handshake")
	}
	return r
}

func (r *Runner) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Runner) tracef(format string, args ...interface{}) {
	if r.log != nil {
		r.log.Tracef(format, args...)
	}
}
