package connect

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestBackoff_ExponentialGrowth(t *testing.T) {
	o := Default()
	if got := o.Backoff(1); got != 200*time.Millisecond {
		t.Fatalf("Backoff(1) = %v, want 200ms", got)
	}
	if got := o.Backoff(2); got != 400*time.Millisecond {
		t.Fatalf("Backoff(2) = %v, want 400ms", got)
	}
}

func TestBackoff_LinearGrowth(t *testing.T) {
	o := Default()
	o.Strategy = Linear
	if got := o.Backoff(1); got != 500*time.Millisecond {
		t.Fatalf("Backoff(1) = %v, want 500ms", got)
	}
	if got := o.Backoff(3); got != 1500*time.Millisecond {
		t.Fatalf("Backoff(3) = %v, want 1500ms", got)
	}
}

func TestBackoff_ClampedToMaxBackoff(t *testing.T) {
	o := Default()
	o.MaxBackoff = 300 * time.Millisecond
	if got := o.Backoff(5); got != 300*time.Millisecond {
		t.Fatalf("Backoff(5) = %v, want clamped 300ms", got)
	}
}

func TestJitter_WithinBounds(t *testing.T) {
	o := Default()
	o.Rand = rand.New(rand.NewSource(1))
	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		got := o.jitter(base)
		if got < 80*time.Millisecond || got > 120*time.Millisecond {
			t.Fatalf("jitter(100ms) = %v, want within [80ms,120ms]", got)
		}
	}
}

// TestSupervisor_ScenarioS6_AllAttemptsTimeOut mirrors S6 with the
// timeout shortened to 20ms: maxRetries=3, exponential backoff; exactly
// three timed-out connects (two backoffs between them) yield a terminal
// ConnectFailed error.
func TestSupervisor_ScenarioS6_AllAttemptsTimeOut(t *testing.T) {
	opts := Options{
		Timeout:    20 * time.Millisecond,
		MaxRetries: 3,
		MaxBackoff: 1 * time.Second,
		Strategy:   Exponential,
		Rand:       rand.New(rand.NewSource(1)),
	}
	attempts := 0
	connectFn := func(ctx context.Context) error {
		attempts++
		<-ctx.Done() // never returns before the timeout fires
		return ctx.Err()
	}
	disconnects := 0
	disconnectFn := func() { disconnects++ }

	sup := New(opts, connectFn, disconnectFn)
	err := sup.Run(context.Background(), make(chan struct{}))
	if !IsConnectFailed(err) {
		t.Fatalf("expected ConnectFailed, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3 (maxRetries)", attempts)
	}
	if disconnects != 3 {
		t.Fatalf("disconnects = %d, want 3", disconnects)
	}
}

func TestSupervisor_SucceedsWithoutRetry(t *testing.T) {
	opts := Default()
	opts.Timeout = 50 * time.Millisecond
	sup := New(opts, func(ctx context.Context) error { return nil }, func() {})
	if err := sup.Run(context.Background(), make(chan struct{})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSupervisor_EarlyDisconnectCancelsPendingTimer(t *testing.T) {
	opts := Default()
	opts.Timeout = 5 * time.Second
	opts.MaxRetries = 1
	early := make(chan struct{})
	disconnected := false
	connectFn := func(ctx context.Context) error {
		close(early)
		<-ctx.Done()
		return ctx.Err()
	}
	sup := New(opts, connectFn, func() { disconnected = true })
	start := time.Now()
	err := sup.Run(context.Background(), early)
	if time.Since(start) > 1*time.Second {
		t.Fatalf("expected early disconnect to short-circuit the 5s timeout, took %v", time.Since(start))
	}
	if !disconnected {
		t.Fatal("expected disconnect to be called")
	}
	if !IsConnectFailed(err) {
		t.Fatalf("expected ConnectFailed, got %v", err)
	}
}

func TestIsConnectFailed_FalseForOtherErrors(t *testing.T) {
	if IsConnectFailed(errors.New("unrelated")) {
		t.Fatal("expected false for an unrelated error")
	}
}
