package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/onion/compose"
	"github.com/felixgeelhaar/onion/middleware"
	"github.com/felixgeelhaar/onion/protocol"
)

// ShutdownConfig configures graceful shutdown behavior.
type ShutdownConfig struct {
	// Timeout is the maximum time to wait for in-flight invocations.
	// Default: 30 seconds
	Timeout time.Duration

	// DrainDelay is the time to keep accepting work after shutdown starts,
	// so load balancers can take the server out of rotation.
	DrainDelay time.Duration

	// OnShutdownStart is called when shutdown begins.
	OnShutdownStart func()

	// OnDrainStart is called when draining begins (after DrainDelay).
	OnDrainStart func()

	// OnShutdownComplete is called when shutdown is complete.
	OnShutdownComplete func(err error)
}

// DefaultShutdownConfig returns sensible defaults for shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		Timeout: 30 * time.Second,
	}
}

// ShutdownManager tracks in-flight pipeline invocations and coordinates
// graceful shutdown.
type ShutdownManager struct {
	config ShutdownConfig

	draining atomic.Bool
	inFlight atomic.Int64
	// idle receives a token whenever inFlight drops to zero.
	idle      chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewShutdownManager creates a new shutdown manager.
func NewShutdownManager(config ShutdownConfig) *ShutdownManager {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &ShutdownManager{
		config: config,
		idle:   make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}
}

// IsDraining returns true once new work is being rejected.
func (sm *ShutdownManager) IsDraining() bool {
	return sm.draining.Load()
}

// InFlight returns the number of in-flight invocations.
func (sm *ShutdownManager) InFlight() int64 {
	return sm.inFlight.Load()
}

// Track registers a new invocation. It returns false while draining.
func (sm *ShutdownManager) Track() bool {
	if sm.draining.Load() {
		return false
	}
	sm.inFlight.Add(1)
	// Shutdown may have started between the check and the increment.
	if sm.draining.Load() {
		sm.Complete()
		return false
	}
	return true
}

// Complete marks an invocation registered with Track as finished.
func (sm *ShutdownManager) Complete() {
	if sm.inFlight.Add(-1) == 0 {
		select {
		case sm.idle <- struct{}{}:
		default:
		}
	}
}

// Shutdown waits DrainDelay, starts rejecting new work and then waits for
// in-flight invocations. It returns context.DeadlineExceeded if some are
// still running after Timeout.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	if sm.config.OnShutdownStart != nil {
		sm.config.OnShutdownStart()
	}

	if sm.config.DrainDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sm.config.DrainDelay):
		}
	}

	sm.draining.Store(true)
	if sm.config.OnDrainStart != nil {
		sm.config.OnDrainStart()
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, sm.config.Timeout)
	defer cancel()

	err := sm.wait(timeoutCtx)

	sm.closeOnce.Do(func() {
		close(sm.doneCh)
	})

	if sm.config.OnShutdownComplete != nil {
		sm.config.OnShutdownComplete(err)
	}
	return err
}

func (sm *ShutdownManager) wait(ctx context.Context) error {
	for sm.inFlight.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sm.idle:
		}
	}
	return nil
}

// Done returns a channel that is closed when shutdown is complete.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.doneCh
}

// Drain returns a stage that registers each invocation with sm and rejects
// new ones with an unavailable error once draining has begun.
func Drain[C middleware.Carrier](sm *ShutdownManager) compose.Middleware[C] {
	return func(_ C, next compose.Next) error {
		if !sm.Track() {
			return protocol.NewUnavailable("server is shutting down")
		}
		defer sm.Complete()
		return next()
	}
}
