package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/onion/compose"
	"github.com/felixgeelhaar/onion/protocol"
	"github.com/felixgeelhaar/onion/testutil"
)

func TestShutdownManager(t *testing.T) {
	t.Run("defaults timeout", func(t *testing.T) {
		sm := NewShutdownManager(ShutdownConfig{})
		if sm.config.Timeout != 30*time.Second {
			t.Errorf("timeout = %v, want 30s", sm.config.Timeout)
		}
	})

	t.Run("tracks in-flight work", func(t *testing.T) {
		sm := NewShutdownManager(DefaultShutdownConfig())

		if !sm.Track() || !sm.Track() {
			t.Fatal("Track should succeed before shutdown")
		}
		if sm.InFlight() != 2 {
			t.Errorf("InFlight() = %d, want 2", sm.InFlight())
		}
		sm.Complete()
		if sm.InFlight() != 1 {
			t.Errorf("InFlight() = %d, want 1", sm.InFlight())
		}
	})

	t.Run("waits for in-flight work", func(t *testing.T) {
		sm := NewShutdownManager(ShutdownConfig{Timeout: time.Second})
		sm.Track()

		go func() {
			time.Sleep(50 * time.Millisecond)
			sm.Complete()
		}()

		start := time.Now()
		if err := sm.Shutdown(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if time.Since(start) < 40*time.Millisecond {
			t.Error("Shutdown returned before work completed")
		}
		if !sm.IsDraining() {
			t.Error("expected draining after shutdown")
		}
		if sm.Track() {
			t.Error("Track should fail while draining")
		}

		select {
		case <-sm.Done():
		default:
			t.Error("Done should be closed")
		}
	})

	t.Run("times out on stuck work", func(t *testing.T) {
		var completed error
		sm := NewShutdownManager(ShutdownConfig{
			Timeout:            30 * time.Millisecond,
			OnShutdownComplete: func(err error) { completed = err },
		})
		sm.Track()

		err := sm.Shutdown(context.Background())
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want deadline exceeded", err)
		}
		if !errors.Is(completed, context.DeadlineExceeded) {
			t.Errorf("callback err = %v", completed)
		}
	})

	t.Run("drain delay keeps accepting work", func(t *testing.T) {
		var events []string
		sm := NewShutdownManager(ShutdownConfig{
			Timeout:         time.Second,
			DrainDelay:      50 * time.Millisecond,
			OnShutdownStart: func() { events = append(events, "start") },
			OnDrainStart:    func() { events = append(events, "drain") },
		})

		done := make(chan error, 1)
		go func() { done <- sm.Shutdown(context.Background()) }()

		time.Sleep(10 * time.Millisecond)
		if !sm.Track() {
			t.Fatal("Track should succeed during drain delay")
		}
		sm.Complete()

		if err := <-done; err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(events) != 2 || events[0] != "start" || events[1] != "drain" {
			t.Errorf("events = %v", events)
		}
	})
}

func TestDrain(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{Timeout: time.Second})

	var observed atomic.Int64
	p := compose.MustCompose(
		Drain[*testutil.Exchange](sm),
		func(*testutil.Exchange, compose.Next) error {
			observed.Store(sm.InFlight())
			return nil
		},
	)

	if err := p.Run(testutil.NewExchange("op")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if observed.Load() != 1 {
		t.Errorf("in-flight during invocation = %d, want 1", observed.Load())
	}
	if sm.InFlight() != 0 {
		t.Errorf("in-flight after invocation = %d, want 0", sm.InFlight())
	}

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	err := p.Run(testutil.NewExchange("op"))
	if !errors.Is(err, protocol.NewUnavailable("")) {
		t.Errorf("err = %v, want unavailable", err)
	}
}
