package memory

import (
	"context"
	"sync"

	"github.com/BaSui01/askflow/types"
)

// InMemoryStore keeps task memories in a process-local map.
type InMemoryStore struct {
	mu     sync.RWMutex
	tasks  map[string]*types.TaskMemory
	closed bool
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tasks: make(map[string]*types.TaskMemory)}
}

// Get implements Store.
func (s *InMemoryStore) Get(ctx context.Context, taskID string) (*types.TaskMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	mem, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return mem.Clone(), nil
}

// Put implements Store.
func (s *InMemoryStore) Put(ctx context.Context, mem *types.TaskMemory) error {
	if err := validateMemory(mem); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.tasks[mem.Meta.TaskID] = mem.Clone()
	return nil
}

// AppendTrace implements Store.
func (s *InMemoryStore) AppendTrace(ctx context.Context, taskID string, entry types.TraceEntry) (types.TraceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.TraceEntry{}, ErrStoreClosed
	}
	mem, ok := s.tasks[taskID]
	if !ok {
		return types.TraceEntry{}, ErrNotFound
	}
	entry = entry.Clone()
	entry.Seq = len(mem.Trace) + 1
	mem.Trace = append(mem.Trace, entry)
	return entry.Clone(), nil
}

// Close implements Store.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping implements Store.
func (s *InMemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}
