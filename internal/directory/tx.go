package directory

import (
	"context"
	"sync"
)

// StoreTx scopes multi-step directory mutations. A manager patch and its
// approval reroute must commit together, so the service runs both inside
// one RunInTx.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// inMemoryStoreTx serializes transactions with a coarse mutex. Correct
// for the in-memory store; a SQL store replaces it with database
// transactions.
type inMemoryStoreTx struct {
	mu sync.Mutex
}

func NewInMemoryStoreTx() StoreTx {
	return &inMemoryStoreTx{}
}

func (t *inMemoryStoreTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}
