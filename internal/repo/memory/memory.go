package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/hamed0406/pushrelay/internal/domain"
	"github.com/hamed0406/pushrelay/internal/repo"
)

// Store keeps targets in insertion order. It backs the monitors listed in
// the configuration file.
type Store struct {
	mu      sync.RWMutex
	targets []domain.Target
}

func New(targets ...domain.Target) *Store {
	return &Store{targets: append([]domain.Target(nil), targets...)}
}

// Add validates t before storing it.
func (m *Store) Add(_ context.Context, t domain.Target) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("target %s: %w", t.Name(), err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets = append(m.targets, t)
	return nil
}

func (m *Store) List(_ context.Context) ([]domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Target(nil), m.targets...), nil
}

var _ repo.TargetSource = (*Store)(nil)
