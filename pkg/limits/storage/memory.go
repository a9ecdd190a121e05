package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryBackend implements Backend with an in-process map. Nothing survives
// a restart.
type MemoryBackend struct {
	mu     sync.RWMutex
	blocks map[string]Block
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{blocks: make(map[string]Block)}
}

// Save inserts or replaces the block for an IP.
func (m *MemoryBackend) Save(_ context.Context, block *Block) error {
	if block == nil {
		return fmt.Errorf("block cannot be nil")
	}
	if block.IP == "" {
		return fmt.Errorf("ip cannot be empty")
	}

	b := *block
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[b.IP] = b
	return nil
}

// Delete removes the block for an IP.
func (m *MemoryBackend) Delete(_ context.Context, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocks, ip)
	return nil
}

// ListActive returns unexpired blocks ordered by IP.
func (m *MemoryBackend) ListActive(_ context.Context, now time.Time) ([]*Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Block
	for _, b := range m.blocks {
		if b.Active(now) {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out, nil
}

// Cleanup removes expired blocks.
func (m *MemoryBackend) Cleanup(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for ip, b := range m.blocks {
		if !b.Active(now) {
			delete(m.blocks, ip)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds.
func (m *MemoryBackend) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemoryBackend) Close() error {
	return nil
}
