package credentials

import (
	"context"
	"time"
)

// Table is a keyed credential table. Implementations serialize all access
// with a per-table lock; Update and Take are atomic.
type Table interface {
	Get(ctx context.Context, key string) (Bundle, bool, error)
	// GetOrDefault returns the empty bundle for a missing key.
	GetOrDefault(ctx context.Context, key string) (Bundle, error)
	Set(ctx context.Context, key string, b Bundle) error
	Delete(ctx context.Context, key string) error
	// Update applies fn to the current value (empty when missing) and stores
	// the result under the same lock. An error from fn aborts the write.
	Update(ctx context.Context, key string, fn func(Bundle) (Bundle, error)) error
	// Take removes and returns the value for key.
	Take(ctx context.Context, key string) (Bundle, bool, error)
	Len() int
}

// Sweepable tables drop entries whose TTL has passed.
type Sweepable interface {
	Table
	Sweep(ctx context.Context, now time.Time) (int, error)
}
