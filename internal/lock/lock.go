// Package lock provides the run lock that serializes deployments of the
// same graph to the same network.
package lock

import (
	"context"
	"fmt"
	"sync"
)

type (
	// Release frees a held lock. It is safe to call more than once.
	Release func() error

	Locker interface {
		// Acquire blocks until the (network, graph) lock is held or ctx is done.
		Acquire(ctx context.Context, network, graph string) (Release, error)
	}

	// MemoryLocker serializes runs inside one process.
	MemoryLocker struct {
		mu    sync.Mutex
		slots map[string]chan struct{}
	}
)

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]chan struct{})}
}

func (m *MemoryLocker) Acquire(ctx context.Context, network, graph string) (Release, error) {
	slot := m.slot(lockName(network, graph))

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to acquire run lock for %s/%s: %w", network, graph, ctx.Err())
	}

	var once sync.Once
	return func() error {
		once.Do(func() { <-slot })
		return nil
	}, nil
}

func (m *MemoryLocker) slot(name string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[name]
	if !ok {
		slot = make(chan struct{}, 1)
		m.slots[name] = slot
	}
	return slot
}

func lockName(network, graph string) string {
	return network + "/" + graph
}
