package risk

import (
	"context"
	"sync"

	"trade_engine/internal/core"
)

// MemoryStore is an in-memory MetricsStore for tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	metrics core.PerformanceMetrics
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(ctx context.Context, metrics core.PerformanceMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = metrics
	return nil
}

func (s *MemoryStore) Load(ctx context.Context) (core.PerformanceMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics, nil
}
