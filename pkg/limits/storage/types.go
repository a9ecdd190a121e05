package storage

import (
	"context"
	"time"
)

// Backend persists block entries. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Save inserts or replaces the block for an IP.
	Save(ctx context.Context, block *Block) error

	// Delete removes the block for an IP. No-op if none exists.
	Delete(ctx context.Context, ip string) error

	// ListActive returns every block whose BlockedUntil is after now.
	ListActive(ctx context.Context, now time.Time) ([]*Block, error)

	// Cleanup removes blocks that expired at or before now and returns how
	// many were deleted.
	Cleanup(ctx context.Context, now time.Time) (int, error)

	// Ping verifies the backend is usable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the backend.
	Close() error
}

// Block is a temporary ban of one client IP.
type Block struct {
	// IP is the client address the block applies to.
	IP string

	// BlockedUntil is when the block expires.
	BlockedUntil time.Time

	// Reason names the threshold that was breached.
	Reason string

	// CreatedAt is when the block was created.
	CreatedAt time.Time
}

// Active reports whether the block is still in force at now.
func (b *Block) Active(now time.Time) bool {
	return now.Before(b.BlockedUntil)
}
