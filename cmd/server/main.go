package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kgo"

	"onboard/internal/approval"
	"onboard/internal/catalog"
	"onboard/internal/directory"
	"onboard/internal/fulfillment"
	"onboard/internal/platform/config"
	"onboard/internal/platform/httpserver"
	"onboard/internal/platform/logger"
	"onboard/internal/platform/metrics"
	platformredis "onboard/internal/platform/redis"
	"onboard/internal/platform/token"
	"onboard/internal/provisioning"
	"onboard/internal/training"
	transport "onboard/internal/transport/http"
	"onboard/pkg/platform/audit"
	auditmem "onboard/pkg/platform/audit/store/memory"
	auditpg "onboard/pkg/platform/audit/store/postgres"
	auditworker "onboard/pkg/platform/audit/worker"
)

// main wires dependencies and owns the process lifecycle. Business rules
// live in the internal packages; nothing here decides anything.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(context.Background(), cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	catalogs := catalog.NewStore(cat)
	if cfg.Catalog.Reload {
		go func() {
			if err := catalogs.Watch(ctx, cfg.Catalog.Path, log); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("catalog watcher stopped", "error", err)
			}
		}()
	}

	// Audit: durable Postgres store with a transactional outbox when a DSN
	// is configured, in-memory otherwise (dev and tests).
	var (
		auditStore audit.Store
		pgStore    *auditpg.Store
	)
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		pgStore = auditpg.New(db)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return err
		}
		auditStore = pgStore
	} else {
		log.Warn("no postgres DSN configured; audit log is in-memory and not durable")
		auditStore = auditmem.New()
	}
	auditPub := audit.NewPublisher(auditStore)

	// The outbox worker needs both a broker and the durable store; without
	// either, entries simply stay queryable locally.
	if len(cfg.Kafka.Brokers) > 0 && pgStore != nil {
		kafkaClient, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Kafka.Brokers...),
			kgo.DefaultProduceTopic(cfg.Kafka.Topic),
		)
		if err != nil {
			return err
		}
		defer kafkaClient.Close()

		w := auditworker.New(kafkaClient, outboxSource{pgStore}, cfg.Kafka.Topic, log)
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit outbox worker stopped", "error", err)
			}
		}()
	}

	// Stock ledger: Redis when configured so replicas share one count,
	// in-process otherwise.
	var ledger fulfillment.Ledger
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		ledger = fulfillment.NewRedisLedger(redisClient.Client)
		log.Info("stock ledger backed by redis")
	} else {
		ledger = fulfillment.NewMemoryLedger()
	}

	runner := fulfillment.NewRunner(
		fulfillment.NewNopAdapter(log),
		fulfillment.NewLogTicketer(log),
		fulfillment.NewLogNotifier(log),
		cfg.Fulfillment,
		auditPub, m, log,
	)

	employees := directory.NewInMemory()
	approvals := approval.NewManager(approval.NewInMemory(), auditPub, log)
	trainings := training.NewService(training.NewInMemory(), catalogs, nil, auditPub, log)
	engine := provisioning.NewService(
		provisioning.NewInMemory(), catalogs, employees, approvals, trainings,
		provisioning.NewFactLedger(), runner, ledger, auditPub, m, log,
	)
	trainings.SetListener(engine)
	directorySvc := directory.NewService(
		employees, directory.NewInMemoryStoreTx(), approvals, engine, auditPub, m, log,
	)

	if cfg.Server.DevSeed {
		for _, d := range cat.DeviceDefaults() {
			if err := ledger.SetStock(ctx, d.Item, 20); err != nil {
				return err
			}
		}
		log.Info("dev seed applied", "devices", len(cat.DeviceDefaults()))
	}

	validator := token.NewValidator(cfg.Server.JWTSigningKey)
	handler := transport.NewHandler(directorySvc, engine, trainings, catalogs, auditPub, log)
	srv := httpserver.New(cfg.Server.Addr, transport.NewRouter(handler, validator, log))

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Server.Addr, "catalog_version", cat.Version)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// outboxSource adapts the Postgres store rows to the worker's view.
type outboxSource struct {
	store *auditpg.Store
}

func (s outboxSource) FetchUnpublished(ctx context.Context, limit int) ([]auditworker.Row, error) {
	rows, err := s.store.FetchUnpublished(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]auditworker.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, auditworker.Row{ID: r.ID, Key: r.EntryID.String(), Payload: r.Payload})
	}
	return out, nil
}

func (s outboxSource) MarkPublished(ctx context.Context, ids []int64) error {
	return s.store.MarkPublished(ctx, ids)
}
