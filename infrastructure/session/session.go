// Package session owns the live backend connections of one assistant: it
// starts them in provider order, registers their operations and tears them
// all down together.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/fsassist/domain/capability"
	"github.com/felixgeelhaar/fsassist/domain/config"
	"github.com/felixgeelhaar/fsassist/infrastructure/backends"
	"github.com/felixgeelhaar/fsassist/infrastructure/logging"
	"github.com/felixgeelhaar/fsassist/infrastructure/registry"
)

// ErrClosed is returned when the session has been torn down.
var ErrClosed = errors.New("session closed")

// ProbeFunc checks a backend's preconditions.
type ProbeFunc func(ctx context.Context, b config.BackendConfig) backends.Availability

// Option configures a session.
type Option func(*Session)

// WithLauncher sets how backends are started.
func WithLauncher(l Launcher) Option {
	return func(s *Session) {
		s.launcher = l
	}
}

// WithProbe replaces the availability probe.
func WithProbe(p ProbeFunc) Option {
	return func(s *Session) {
		s.probe = p
	}
}

// Session is the set of live backends.
type Session struct {
	launcher Launcher
	probe    ProbeFunc
	registry *registry.Registry

	mu       sync.RWMutex
	backends []capability.Backend
	excluded map[string]string
	closed   bool
}

// Start launches every enabled backend in provider order. Backends that
// are unavailable or fail to start are excluded and logged. If ctx ends
// during startup, everything already started is closed and the context
// error is returned.
func Start(ctx context.Context, cfg *config.Config, opts ...Option) (*Session, error) {
	s := &Session{
		launcher: &ProcessLauncher{},
		probe:    backends.Probe,
		registry: registry.New(),
		excluded: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, b := range cfg.EnabledBackends() {
		if err := ctx.Err(); err != nil {
			return nil, s.rollback(err)
		}
		if err := s.startOne(ctx, b); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, s.rollback(ctxErr)
			}
			s.excluded[b.Tag] = err.Error()
			logging.Warn().
				Add(logging.Backend(b.Tag)).
				Add(logging.ErrorField(err)).
				Msg("backend excluded")
		}
	}

	logging.Info().
		Add(logging.Count("backends", len(s.backends))).
		Add(logging.Count("operations", s.registry.Count())).
		Msg("session started")
	return s, nil
}

func (s *Session) startOne(ctx context.Context, b config.BackendConfig) error {
	if avail := s.probe(ctx, b); !avail.Available {
		return fmt.Errorf("%w: %s", capability.ErrBackendUnavailable, avail.Reason)
	}

	backend, err := s.launcher.Launch(ctx, b)
	if err != nil {
		return fmt.Errorf("launch: %w", err)
	}
	if _, err := s.registry.Register(ctx, backend); err != nil {
		if cerr := backend.Close(); cerr != nil {
			logging.Warn().Add(logging.Backend(b.Tag)).Add(logging.ErrorField(cerr)).Msg("close after failed registration")
		}
		return err
	}

	s.backends = append(s.backends, backend)
	logging.Info().Add(logging.Backend(b.Tag)).Msg("backend started")
	return nil
}

func (s *Session) rollback(cause error) error {
	if err := s.Close(); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// Backends returns the live backend tags in provider order.
func (s *Session) Backends() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tags := make([]string, 0, len(s.backends))
	for _, b := range s.backends {
		tags = append(tags, b.Tag())
	}
	return tags
}

// Excluded returns the backends left out at startup with the reason.
func (s *Session) Excluded() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.excluded))
	for k, v := range s.excluded {
		out[k] = v
	}
	return out
}

// Catalog returns the merged operation catalog.
func (s *Session) Catalog() []capability.Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	return s.registry.Catalog()
}

// Describe returns the visible descriptor for name.
func (s *Session) Describe(name string) (capability.Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return capability.Descriptor{}, false
	}
	return s.registry.Describe(name)
}

// OwnerOf returns the backend owning name.
func (s *Session) OwnerOf(name string) (capability.Backend, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false
	}
	return s.registry.OwnerOf(name)
}

// Close tears down every backend in reverse start order. Faults are
// logged and joined; they never stop the remaining teardown.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for i := len(s.backends) - 1; i >= 0; i-- {
		b := s.backends[i]
		s.registry.Unregister(b.Tag())
		if err := b.Close(); err != nil {
			logging.Warn().Add(logging.Backend(b.Tag())).Add(logging.ErrorField(err)).Msg("backend shutdown fault")
			errs = append(errs, fmt.Errorf("%s: %w", b.Tag(), err))
		}
	}
	s.backends = nil
	return errors.Join(errs...)
}
