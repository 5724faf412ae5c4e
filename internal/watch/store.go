package watch

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store resolves watch definitions at execution time.
type Store interface {
	Get(ctx context.Context, id string) (Watch, error)
}

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	watches map[string]Watch
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{watches: map[string]Watch{}}
}

func (s *MemoryStore) Get(_ context.Context, id string) (Watch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.watches[id]
	if !ok {
		return Watch{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return w, nil
}

// Put adds or replaces w.
func (s *MemoryStore) Put(w Watch) error {
	if err := w.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.watches[w.ID] = w
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watches[id]; !ok {
		return false
	}
	delete(s.watches, id)
	return true
}

// List returns every watch sorted by id.
func (s *MemoryStore) List() []Watch {
	s.mu.RLock()
	out := make([]Watch, 0, len(s.watches))
	for _, w := range s.watches {
		out = append(out, w)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watches)
}
