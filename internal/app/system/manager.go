package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrAlreadyStarted is returned when Register or Start is called after the
// manager has started.
var ErrAlreadyStarted = errors.New("system manager already started")

// DefaultStopTimeout bounds how long one service may take to stop.
const DefaultStopTimeout = 15 * time.Second

// Manager starts registered services in order and stops them in reverse
// order, so later services can depend on earlier ones for their whole
// lifetime.
type Manager struct {
	mu          sync.Mutex
	services    []Service
	names       map[string]bool
	started     bool
	stopTimeout time.Duration
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		names:       make(map[string]bool),
		stopTimeout: DefaultStopTimeout,
	}
}

// SetStopTimeout overrides the per-service stop timeout. Call before Start.
func (m *Manager) SetStopTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.stopTimeout = d
	}
}

// Register adds a service. Names must be unique and non-empty.
func (m *Manager) Register(svc Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrAlreadyStarted
	}
	name := svc.Name()
	if name == "" {
		return errors.New("service name required")
	}
	if m.names[name] {
		return fmt.Errorf("service %s already registered", name)
	}

	m.names[name] = true
	m.services = append(m.services, svc)
	return nil
}

// Start starts every service in registration order. On failure the services
// already started are stopped in reverse order before the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	services := append([]Service(nil), m.services...)
	m.mu.Unlock()

	for i, svc := range services {
		if err := svc.Start(ctx); err != nil {
			m.stopServices(services[:i])
			m.mu.Lock()
			m.started = false
			m.mu.Unlock()
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
	}
	return nil
}

// Stop stops every started service in reverse registration order. Each
// service gets its own timeout; one slow or failing service does not keep
// the rest from stopping.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	services := append([]Service(nil), m.services...)
	timeout := m.stopTimeout
	m.mu.Unlock()

	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		stopCtx, cancel := context.WithTimeout(ctx, timeout)
		if err := svc.Stop(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", svc.Name(), err))
		}
		cancel()
	}
	return errors.Join(errs...)
}

func (m *Manager) stopServices(services []Service) {
	m.mu.Lock()
	timeout := m.stopTimeout
	m.mu.Unlock()

	for i := len(services) - 1; i >= 0; i-- {
		stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
		_ = services[i].Stop(stopCtx)
		cancel()
	}
}

// NoopService satisfies Service for modules without background work.
type NoopService struct {
	ServiceName string
}

// Name returns the configured service name.
func (n NoopService) Name() string { return n.ServiceName }

// Start is a no-op.
func (n NoopService) Start(context.Context) error { return nil }

// Stop is a no-op.
func (n NoopService) Stop(context.Context) error { return nil }
