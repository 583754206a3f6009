package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func receiveWithin(t *testing.T, ep *Endpoint, d time.Duration) ([]byte, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return ep.Receive(ctx)
}

// TestPipe_AutoProcess verifies that messages flow automatically by default.
func TestPipe_AutoProcess(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	if !p.AutoProcess() {
		t.Fatal("AutoProcess should be true by default")
	}

	testData := []byte("auto-delivered message")
	if err := p.Endpoint(0).Send(context.Background(), testData); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	got, err := receiveWithin(t, p.Endpoint(1), time.Second)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if !bytes.Equal(got, testData) {
		t.Errorf("received %q, want %q", got, testData)
	}
}

// TestPipe_ManualProcess verifies that nothing is delivered while
// auto-processing is off.
func TestPipe_ManualProcess(t *testing.T) {
	p := NewPipeWithConfig(PipeConfig{AutoProcess: false})
	defer p.Close()

	if p.AutoProcess() {
		t.Fatal("AutoProcess should be false")
	}

	if err := p.Endpoint(1).Send(context.Background(), []byte("held")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := receiveWithin(t, p.Endpoint(0), 20*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected no delivery without processing, got %v", err)
	}

	p.SetAutoProcess(true)
	got, err := receiveWithin(t, p.Endpoint(0), time.Second)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if string(got) != "held" {
		t.Errorf("received %q", got)
	}
}

func TestPipe_MessageBoundaries(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	msgs := [][]byte{{0x01}, bytes.Repeat([]byte{0xAB}, 300), {0x02, 0x03}}
	for _, m := range msgs {
		if err := p.Endpoint(0).Send(context.Background(), m); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	for i, want := range msgs {
		got, err := receiveWithin(t, p.Endpoint(1), time.Second)
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("message %d = %x, want %x", i, got, want)
		}
	}
}

func TestEndpoint_RoundTrip(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		msg, err := p.Endpoint(1).Receive(ctx)
		if err != nil {
			return
		}
		p.Endpoint(1).Send(ctx, append([]byte("echo:"), msg...))
	}()

	reply, err := p.Endpoint(0).RoundTrip(ctx, []byte("ping"))
	if err != nil {
		t.Fatalf("RoundTrip failed: %v", err)
	}
	if string(reply) != "echo:ping" {
		t.Errorf("reply = %q", reply)
	}
}

func TestEndpoint_MessageTooLarge(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	err := p.Endpoint(0).Send(context.Background(), make([]byte, MaxMessageSize+1))
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge, got %v", err)
	}
}

func TestNetworkCondition_DropRate(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	p.SetCondition(NetworkCondition{DropRate: 1.0})
	if p.Condition().DropRate != 1.0 {
		t.Fatalf("Condition() = %+v", p.Condition())
	}

	if err := p.Endpoint(0).Send(context.Background(), []byte("lost")); err != nil {
		t.Fatalf("Send of a dropped message should succeed: %v", err)
	}
	if _, err := receiveWithin(t, p.Endpoint(1), 30*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected dropped message, got %v", err)
	}
}

func TestNetworkCondition_Duplicate(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	p.SetCondition(NetworkCondition{DuplicateRate: 1.0})
	if err := p.Endpoint(0).Send(context.Background(), []byte("twice")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		got, err := receiveWithin(t, p.Endpoint(1), time.Second)
		if err != nil || string(got) != "twice" {
			t.Fatalf("copy %d: %q, %v", i, got, err)
		}
	}
}

func TestNetworkCondition_Delay(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	delay := 20 * time.Millisecond
	p.SetCondition(NetworkCondition{DelayMin: delay, DelayMax: delay})

	start := time.Now()
	if err := p.Endpoint(0).Send(context.Background(), []byte("slow")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := receiveWithin(t, p.Endpoint(1), time.Second); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("delivered after %v, want at least %v", elapsed, delay)
	}
}

func TestNetworkCondition_DelayCanceled(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	p.SetCondition(NetworkCondition{DelayMin: time.Second, DelayMax: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Endpoint(0).Send(ctx, []byte("late")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestPipe_Close(t *testing.T) {
	p := NewPipe()
	ep := p.Endpoint(0)

	errCh := make(chan error, 1)
	go func() {
		_, err := ep.Receive(context.Background())
		errCh <- err
	}()

	p.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("pending Receive: expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive not unblocked by Close")
	}

	if err := ep.Send(context.Background(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close: expected ErrClosed, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestPipe_SetAutoProcess(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	p.SetAutoProcess(false)
	if p.AutoProcess() {
		t.Error("AutoProcess should be false after disabling")
	}
	p.SetAutoProcess(true)
	if !p.AutoProcess() {
		t.Error("AutoProcess should be true after enabling")
	}
}

func TestPipeConfig_Defaults(t *testing.T) {
	c := DefaultPipeConfig()
	if !c.AutoProcess {
		t.Error("AutoProcess should default to true")
	}
	if c.ProcessInterval != time.Millisecond {
		t.Errorf("ProcessInterval = %v, want 1ms", c.ProcessInterval)
	}
}

func TestPipe_Endpoints(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	if p.Endpoint(2) != nil || p.Endpoint(-1) != nil {
		t.Error("Endpoint should be nil for invalid ids")
	}

	tests := []struct {
		id         int
		local      string
		remote     string
		remoteAddr net.Addr
	}{
		{0, "pipe:0", "pipe:1", PipeAddr{ID: 1}},
		{1, "pipe:1", "pipe:0", PipeAddr{ID: 0}},
	}
	for _, tc := range tests {
		ep := p.Endpoint(tc.id)
		if got := ep.LocalAddr().String(); got != tc.local {
			t.Errorf("endpoint %d LocalAddr = %s, want %s", tc.id, got, tc.local)
		}
		if got := ep.RemoteAddr(); got != tc.remoteAddr || got.String() != tc.remote {
			t.Errorf("endpoint %d RemoteAddr = %v", tc.id, got)
		}
		if ep.LocalAddr().Network() != "pipe" {
			t.Errorf("Network = %s", ep.LocalAddr().Network())
		}
	}
}
