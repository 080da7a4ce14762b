package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "onboard/pkg/platform/audit"
)

// Store implements audit.Store with a transactional outbox. Entries land
// in audit_entries for querying and in the outbox table for the Kafka
// worker to publish downstream.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Schema creates the tables the store needs. Applied at startup and by
// integration tests; production deployments run the same DDL as a
// migration.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id          UUID PRIMARY KEY,
	subject_id  TEXT NOT NULL,
	action      TEXT NOT NULL,
	old_state   TEXT NOT NULL DEFAULT '',
	new_state   TEXT NOT NULL DEFAULT '',
	actor       TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	request_id  TEXT NOT NULL DEFAULT '',
	timestamp   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_entries_subject_ts
	ON audit_entries (subject_id, timestamp);

CREATE TABLE IF NOT EXISTS audit_outbox (
	id           BIGSERIAL PRIMARY KEY,
	entry_id     UUID NOT NULL,
	payload      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	published_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS audit_outbox_unpublished
	ON audit_outbox (id) WHERE published_at IS NULL;
`

// EnsureSchema applies the DDL.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply audit schema: %w", err)
	}
	return nil
}

// Append writes the entry and its outbox row in one transaction, so the
// ledger and the downstream stream can never diverge.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_entries (id, subject_id, action, old_state, new_state, actor, reason, request_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.SubjectID, string(entry.Action), entry.OldState, entry.NewState,
		entry.Actor, entry.Reason, entry.RequestID, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_outbox (entry_id, payload, created_at)
		VALUES ($1, $2, $3)`,
		entry.ID, payload, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox row: %w", err)
	}

	return tx.Commit()
}

func (s *Store) ListBySubject(ctx context.Context, subjectID string) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_id, action, old_state, new_state, actor, reason, request_id, timestamp
		FROM audit_entries
		WHERE subject_id = $1
		ORDER BY timestamp ASC`,
		subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Store) ListBySubjectRange(ctx context.Context, subjectID string, from, to time.Time) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_id, action, old_state, new_state, actor, reason, request_id, timestamp
		FROM audit_entries
		WHERE subject_id = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC`,
		subjectID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry
	for rows.Next() {
		var (
			e      audit.Entry
			action string
		)
		if err := rows.Scan(&e.ID, &e.SubjectID, &action, &e.OldState, &e.NewState, &e.Actor, &e.Reason, &e.RequestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = audit.Action(action)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// OutboxRow is one unpublished outbox record.
type OutboxRow struct {
	ID      int64
	EntryID uuid.UUID
	Payload []byte
}

// FetchUnpublished returns up to limit unpublished rows in append order.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]OutboxRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entry_id, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY id ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var out []OutboxRow
	for rows.Next() {
		var r OutboxRow
		if err := rows.Scan(&r.ID, &r.EntryID, &r.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkPublished stamps outbox rows after the broker acknowledged them.
func (s *Store) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE audit_outbox SET published_at = NOW()
		WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
