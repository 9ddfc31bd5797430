package kvstore

import (
	"context"
	"errors"
)

// ErrKeyNotFound indicates no snapshot has been written under the key yet.
// First runs hit this for every store; callers treat it as an empty snapshot.
var ErrKeyNotFound = errors.New("kvstore: key not found")

// Store persists small serialized snapshots under named keys. Writes are
// best-effort from the caller's perspective: stores log failures and move on.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
