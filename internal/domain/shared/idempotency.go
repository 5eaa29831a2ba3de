package shared

import (
	"context"
	"time"
)

// IdempotencyStore stores processed job keys to prevent duplicate side effects
type IdempotencyStore interface {
	// MarkProcessed returns true if the key was newly marked, false if it was already processed
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been processed
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Unmark removes a key so a failed handler can be retried
	Unmark(ctx context.Context, key string) error

	Close() error
}
