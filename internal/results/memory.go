package results

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps conversion output in process memory. Standalone and
// test deployments only; output is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	outputs map[string]*Output
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{outputs: make(map[string]*Output)}
}

func (s *MemoryStore) Put(ctx context.Context, output *Output) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	output.StoredAt = time.Now().UTC()
	ref := fmt.Sprintf("memory://%s", output.JobID)
	cp := *output
	s.outputs[ref] = &cp
	return ref, nil
}

func (s *MemoryStore) Get(ctx context.Context, ref string) (*Output, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	output, ok := s.outputs[ref]
	if !ok {
		return nil, ErrResultNotFound
	}
	cp := *output
	return &cp, nil
}

func (s *MemoryStore) Delete(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.outputs, ref)
	return nil
}
