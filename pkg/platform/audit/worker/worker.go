// Package worker drains the audit outbox into Kafka. The Postgres store
// is the write path; this worker is the only component that talks to the
// broker, so a broker outage never blocks a provisioning transaction.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Source is the outbox side of the worker, implemented by the Postgres
// audit store.
type Source interface {
	FetchUnpublished(ctx context.Context, limit int) ([]Row, error)
	MarkPublished(ctx context.Context, ids []int64) error
}

// Row mirrors postgres.OutboxRow without importing the store package.
type Row struct {
	ID      int64
	Key     string
	Payload []byte
}

// Worker polls the outbox and produces entries to the audit topic.
type Worker struct {
	client    *kgo.Client
	source    Source
	topic     string
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
}

func New(client *kgo.Client, source Source, topic string, logger *slog.Logger) *Worker {
	return &Worker{
		client:    client,
		source:    source,
		topic:     topic,
		batchSize: 100,
		interval:  time.Second,
		logger:    logger,
	}
}

// Run drains the outbox until ctx is cancelled. Rows are marked
// published only after the broker acknowledges, so delivery is
// at-least-once; consumers dedupe on the entry id.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drainOnce(ctx); err != nil {
				w.logger.Error("audit outbox drain failed", "error", err)
			}
		}
	}
}

func (w *Worker) drainOnce(ctx context.Context) error {
	rows, err := w.source.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, &kgo.Record{
			Topic: w.topic,
			Key:   []byte(row.Key),
			Value: row.Payload,
		})
	}

	results := w.client.ProduceSync(ctx, records...)
	if err := results.FirstErr(); err != nil {
		return err
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return w.source.MarkPublished(ctx, ids)
}
