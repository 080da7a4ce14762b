package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"onboard/pkg/platform/sentinel"
)

const stockKeyPrefix = "onboard:stock:"

// RedisLedger shares device stock across engine instances. Reservations
// run under WATCH so two instances can never both take the last unit;
// on contention the transaction retries with fresh state.
type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func stockKey(item string) string { return stockKeyPrefix + item }

func (l *RedisLedger) Reserve(ctx context.Context, item string, qty int) (int, error) {
	var remaining int
	key := stockKey(item)

	reserve := func(tx *redis.Tx) error {
		available, err := tx.Get(ctx, key).Int()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrOutOfStock
		}
		if err != nil {
			return fmt.Errorf("read stock for %q: %w", item, err)
		}
		if available < qty {
			return sentinel.ErrOutOfStock
		}
		remaining = available - qty
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, remaining, 0)
			return nil
		})
		return err
	}

	for {
		err := l.client.Watch(ctx, reserve, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return remaining, nil
	}
}

func (l *RedisLedger) Release(ctx context.Context, item string, qty int) error {
	return l.client.IncrBy(ctx, stockKey(item), int64(qty)).Err()
}

func (l *RedisLedger) SetStock(ctx context.Context, item string, qty int) error {
	return l.client.Set(ctx, stockKey(item), strconv.Itoa(qty), 0).Err()
}

func (l *RedisLedger) Stock(ctx context.Context, item string) (int, error) {
	n, err := l.client.Get(ctx, stockKey(item)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
