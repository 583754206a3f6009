package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// MaxMessageSize is the largest message an Endpoint carries.
const MaxMessageSize = 4096

// Endpoint is one side of a Pipe. Each Send is delivered to the peer as one
// message; message boundaries are preserved.
//
// Send and Receive may be called concurrently with each other, but not with
// themselves.
type Endpoint struct {
	pipe *Pipe
	id   int
	conn net.Conn

	recvCh    chan []byte
	done      chan struct{}
	errOnce   sync.Once
	err       error
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

func newEndpoint(p *Pipe, id int, conn net.Conn) *Endpoint {
	ep := &Endpoint{
		pipe:   p,
		id:     id,
		conn:   conn,
		recvCh: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	ep.wg.Add(1)
	go ep.readLoop()
	return ep
}

// readLoop keeps a read pending on the bridge so Tick can always deliver.
func (ep *Endpoint) readLoop() {
	defer ep.wg.Done()
	buf := make([]byte, MaxMessageSize)
	for {
		n, err := ep.conn.Read(buf)
		if err != nil {
			ep.stop(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		msg := append([]byte(nil), buf[:n]...)
		select {
		case ep.recvCh <- msg:
		case <-ep.done:
			return
		}
	}
}

func (ep *Endpoint) stop(err error) {
	ep.errOnce.Do(func() {
		ep.err = err
		close(ep.done)
	})
}

// LocalAddr returns the endpoint's address.
func (ep *Endpoint) LocalAddr() net.Addr {
	return PipeAddr{ID: ep.id}
}

// RemoteAddr returns the peer endpoint's address.
func (ep *Endpoint) RemoteAddr() net.Addr {
	return PipeAddr{ID: 1 - ep.id}
}

// Send queues msg for the peer, subject to the pipe's network condition.
// A dropped message is not an error.
func (ep *Endpoint) Send(ctx context.Context, msg []byte) error {
	if len(msg) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(msg))
	}
	select {
	case <-ep.done:
		return ep.err
	default:
	}

	copies, delay := ep.pipe.sendDecision()
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-ep.done:
			t.Stop()
			return ep.err
		}
	}
	for i := 0; i < copies; i++ {
		if _, err := ep.conn.Write(msg); err != nil {
			return fmt.Errorf("%w: %v", ErrSendFailed, err)
		}
	}
	return nil
}

// Receive waits for the next message from the peer.
func (ep *Endpoint) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-ep.recvCh:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ep.done:
		// Deliver anything that arrived before the close.
		select {
		case msg := <-ep.recvCh:
			return msg, nil
		default:
		}
		return nil, ep.err
	}
}

// RoundTrip sends msg and waits for the peer's reply.
func (ep *Endpoint) RoundTrip(ctx context.Context, msg []byte) ([]byte, error) {
	if err := ep.Send(ctx, msg); err != nil {
		return nil, err
	}
	return ep.Receive(ctx)
}

// Close closes the endpoint. Pending and later Receive calls return
// ErrClosed.
func (ep *Endpoint) Close() error {
	ep.closeOnce.Do(func() {
		ep.stop(ErrClosed)
		ep.closeErr = ep.conn.Close()
		ep.wg.Wait()
	})
	return ep.closeErr
}
