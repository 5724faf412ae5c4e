package trigger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	logx "watcher/pkg/logx"
)

// Service routes registrations to the engine that owns the trigger type.
//
// Exactly one listener receives every firing from every engine.
type Service struct {
	mu      sync.Mutex
	log     logx.Logger
	engines map[string]Engine
	owners  map[string]string // watch id -> trigger type
	started bool
}

func NewService(log logx.Logger, engines ...Engine) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:     log,
		engines: make(map[string]Engine, len(engines)),
		owners:  map[string]string{},
	}
	for _, e := range engines {
		if e == nil {
			continue
		}
		s.engines[e.Type()] = e
	}
	return s
}

// Engine returns the engine registered for typ.
func (s *Service) Engine(typ string) (Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.engines[typ]
	return e, ok
}

// Types lists supported trigger types, sorted.
func (s *Service) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.engines))
	for t := range s.engines {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Validate checks spec against its engine without registering it.
func (s *Service) Validate(spec Spec) error {
	spec = spec.normalized()
	s.mu.Lock()
	e, ok := s.engines[spec.Type]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidSpec, spec.Type)
	}
	return e.Validate(spec)
}

// Register adds the trigger for watchID, replacing any previous trigger for
// the same watch (even one owned by another engine). A rejected spec leaves
// the previous registration untouched.
func (s *Service) Register(watchID string, spec Spec) error {
	watchID = strings.TrimSpace(watchID)
	if watchID == "" {
		return errors.New("watch id required")
	}
	spec = spec.normalized()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.engines[spec.Type]
	if !ok {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidSpec, spec.Type)
	}
	if err := e.Validate(spec); err != nil {
		return err
	}
	if err := e.Add(watchID, spec); err != nil {
		return err
	}
	if prev, ok := s.owners[watchID]; ok && prev != spec.Type {
		if pe := s.engines[prev]; pe != nil {
			pe.Remove(watchID)
		}
	}
	s.owners[watchID] = spec.Type
	s.log.Debug("trigger registered", logx.String("watch", watchID), logx.String("trigger", spec.String()))
	return nil
}

// Unregister removes every trigger of watchID. No-op if absent.
func (s *Service) Unregister(watchID string) bool {
	watchID = strings.TrimSpace(watchID)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := false
	for _, e := range s.engines {
		if e.Remove(watchID) {
			removed = true
		}
	}
	delete(s.owners, watchID)
	if removed {
		s.log.Debug("trigger unregistered", logx.String("watch", watchID))
	}
	return removed
}

// Registered reports the trigger type owning watchID.
func (s *Service) Registered(watchID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.owners[watchID]
	return t, ok
}

func (s *Service) Start(ctx context.Context, l Listener) error {
	if l == nil {
		return errors.New("trigger listener required")
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	engines := make([]Engine, 0, len(s.engines))
	for _, e := range s.engines {
		engines = append(engines, e)
	}
	s.started = true
	s.mu.Unlock()

	for _, e := range engines {
		if err := e.Start(ctx, l); err != nil {
			return fmt.Errorf("start %s engine: %w", e.Type(), err)
		}
	}
	s.log.Info("trigger service started", logx.Int("engines", len(engines)))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	engines := make([]Engine, 0, len(s.engines))
	for _, e := range s.engines {
		engines = append(engines, e)
	}
	s.started = false
	s.mu.Unlock()

	for _, e := range engines {
		e.Stop(ctx)
	}
	s.log.Info("trigger service stopped")
}

// Counts reports registered triggers per type.
func (s *Service) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.engines))
	for t, e := range s.engines {
		out[t] = e.Count()
	}
	return out
}
