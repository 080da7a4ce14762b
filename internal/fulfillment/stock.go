package fulfillment

import (
	"context"
	"sync"

	"onboard/pkg/platform/sentinel"
)

// Ledger is the device stock boundary. Reservations are atomic and the
// count never goes negative; a reservation against zero stock fails with
// sentinel.ErrOutOfStock instead of queueing.
type Ledger interface {
	Reserve(ctx context.Context, item string, qty int) (remaining int, err error)
	Release(ctx context.Context, item string, qty int) error
	SetStock(ctx context.Context, item string, qty int) error
	Stock(ctx context.Context, item string) (int, error)
}

type stockLine struct {
	available int
	version   int64
}

// MemoryLedger is the in-process stock ledger. Each line carries a
// version bumped on every mutation, mirroring what the Redis ledger gets
// from WATCH.
type MemoryLedger struct {
	mu    sync.Mutex
	lines map[string]*stockLine
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{lines: make(map[string]*stockLine)}
}

func (l *MemoryLedger) Reserve(_ context.Context, item string, qty int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	line, ok := l.lines[item]
	if !ok || line.available < qty {
		return 0, sentinel.ErrOutOfStock
	}
	line.available -= qty
	line.version++
	return line.available, nil
}

func (l *MemoryLedger) Release(_ context.Context, item string, qty int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	line, ok := l.lines[item]
	if !ok {
		line = &stockLine{}
		l.lines[item] = line
	}
	line.available += qty
	line.version++
	return nil
}

func (l *MemoryLedger) SetStock(_ context.Context, item string, qty int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	line, ok := l.lines[item]
	if !ok {
		line = &stockLine{}
		l.lines[item] = line
	}
	line.available = qty
	line.version++
	return nil
}

func (l *MemoryLedger) Stock(_ context.Context, item string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if line, ok := l.lines[item]; ok {
		return line.available, nil
	}
	return 0, nil
}
