// Package service implements the Service Manager (C13): a small registry
// of named background services, each spawned on startup and shut down on
// a broadcast signal with a bounded grace window. Grounded on the
// teacher's pkg/cleanup.Service start/stop/done-channel shape, generalized
// from one hardcoded service to an arbitrary registered set.
package service

import (
	"context"
	"log/slog"
	"time"
)

// ShutdownGrace bounds how long Shutdown waits for every service to stop
// on its own before abandoning it (spec §4.13, §5).
const ShutdownGrace = 5 * time.Second

// Service is the two-method contract every managed component implements:
// a name for logging, and a spawn function that runs until shutdown is
// signalled (via ctx) and then returns.
type Service interface {
	Name() string
	Run(ctx context.Context) error
}

// Func adapts a plain function into a Service.
type Func struct {
	ServiceName string
	Fn          func(ctx context.Context) error
}

func (f Func) Name() string                  { return f.ServiceName }
func (f Func) Run(ctx context.Context) error { return f.Fn(ctx) }

// Manager owns the lifecycle of every registered Service.
type Manager struct {
	services []Service
	done     []chan error
	cancel   context.CancelFunc
}

// New constructs an empty Manager.
func New() *Manager {
	return &Manager{}
}

// Register adds a service. Call before SpawnAll; services registered
// after SpawnAll are not started.
func (m *Manager) Register(s Service) {
	m.services = append(m.services, s)
}

// SpawnAll starts every registered service in its own goroutine under a
// context derived from ctx, so a single Shutdown call can signal all of
// them at once.
func (m *Manager) SpawnAll(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make([]chan error, len(m.services))
	for i, s := range m.services {
		done := make(chan error, 1)
		m.done[i] = done
		go func(s Service, done chan error) {
			slog.Info("service starting", "service", s.Name())
			err := s.Run(ctx)
			done <- err
			if err != nil {
				slog.Error("service exited with error", "service", s.Name(), "error", err)
			} else {
				slog.Info("service stopped", "service", s.Name())
			}
		}(s, done)
	}
}

// Shutdown broadcasts cancellation to every service and waits up to
// ShutdownGrace for each to return; any still running after the grace
// window is abandoned (its goroutine may still be unwinding, but Shutdown
// does not wait for it further).
func (m *Manager) Shutdown() {
	if m.cancel == nil {
		return
	}
	m.cancel()

	allDone := make(chan struct{})
	go func() {
		for _, done := range m.done {
			<-done
		}
		close(allDone)
	}()

	select {
	case <-allDone:
	case <-time.After(ShutdownGrace):
		slog.Warn("one or more services did not stop within shutdown grace window, abandoning")
	}
}
