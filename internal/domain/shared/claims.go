package shared

import (
	"context"
	"time"
)

// ClaimStore hands out exclusive, expiring claims on string keys. A dispatch
// run holds the claim for its campaign so that only one worker sends it.
type ClaimStore interface {
	// Claim takes key for ttl and reports false when someone else holds it.
	// An expired claim can be taken again.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	IsClaimed(ctx context.Context, key string) (bool, error)
	// Release gives a claim back before its ttl runs out
	Release(ctx context.Context, key string) error
	Close() error
}
