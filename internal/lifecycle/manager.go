// Package lifecycle coordinates the daemon's background goroutines.
package lifecycle

import (
	"context"
	"sync"
	"time"
)

// Manager tracks background goroutines and owns the context that stops
// them. Stop cancels the context and waits for every tracked goroutine.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Manager whose context derives from parent.
func New(parent context.Context) *Manager {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Manager{ctx: ctx, cancel: cancel}
}

// Context returns the manager's context.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Go runs fn on a tracked goroutine. fn must return when ctx is done.
func (m *Manager) Go(fn func(ctx context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn(m.ctx)
	}()
}

// RunTicker runs fn on every tick until the manager stops.
func (m *Manager) RunTicker(interval time.Duration, fn func()) {
	m.Go(func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	})
}

// Stop cancels the context and waits for all tracked goroutines.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

// StopWithTimeout cancels the context and waits up to timeout. Returns
// context.DeadlineExceeded if the goroutines did not finish in time.
func (m *Manager) StopWithTimeout(timeout time.Duration) error {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}
