package state

import (
	"context"
	"time"
)

// Store is a small durable key/value store. Entries written with SetTTL
// disappear after the given duration; Set entries never expire.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	SetTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
