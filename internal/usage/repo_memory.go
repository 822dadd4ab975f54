package usage

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory record store for tests and early development.
type MemoryRepo struct {
	mu      sync.Mutex
	Records []Record
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Insert(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Records = append(r.Records, rec)
	return nil
}
