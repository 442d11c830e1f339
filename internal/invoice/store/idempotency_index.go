package store

import (
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// IdempotencyIndex binds idempotency keys to invoice ids. The first request
// wins and entries are never evicted.
type IdempotencyIndex struct {
	keys *xsync.MapOf[string, uuid.UUID]
}

func NewIdempotencyIndex() *IdempotencyIndex {
	return &IdempotencyIndex{
		keys: xsync.NewMapOf[string, uuid.UUID](),
	}
}

// GetOrClaim is a single insert-if-absent. commit runs under the key's bucket
// lock, so a concurrent request with the same key blocks until the winner has
// committed and then observes its id.
func (i *IdempotencyIndex) GetOrClaim(key string, id uuid.UUID, commit func()) (uuid.UUID, bool) {
	actual, loaded := i.keys.LoadOrCompute(key, func() uuid.UUID {
		if commit != nil {
			commit()
		}
		return id
	})
	return actual, !loaded
}

func (i *IdempotencyIndex) Lookup(key string) (uuid.UUID, bool) {
	return i.keys.Load(key)
}
