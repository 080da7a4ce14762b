//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	audit "onboard/pkg/platform/audit"
	"onboard/pkg/platform/audit/store/postgres"
	"onboard/pkg/testutil/containers"
)

func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	pc := containers.NewPostgresContainer(t)
	store := postgres.New(pc.DB)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func entry(subjectID string, action audit.Action, ts time.Time) audit.Entry {
	return audit.Entry{
		ID:        uuid.New(),
		SubjectID: subjectID,
		Action:    action,
		OldState:  "Draft",
		NewState:  "Eligible",
		Actor:     "hr-bot",
		Reason:    "Email",
		Timestamp: ts,
	}
}

func TestAppendAndListBySubject(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, entry("E1001", audit.ActionEmployeeIngested, base)))
	require.NoError(t, store.Append(ctx, entry("E1001", audit.ActionRequestTransition, base.Add(time.Minute))))
	require.NoError(t, store.Append(ctx, entry("E2002", audit.ActionEmployeeIngested, base)))

	entries, err := store.ListBySubject(ctx, "E1001")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, audit.ActionEmployeeIngested, entries[0].Action)
	require.Equal(t, audit.ActionRequestTransition, entries[1].Action)
	require.Equal(t, "hr-bot", entries[0].Actor)
}

func TestListBySubjectRange(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, entry("E1001", audit.ActionRequestTransition, base.Add(time.Duration(i)*time.Hour))))
	}

	entries, err := store.ListBySubjectRange(ctx, "E1001", base.Add(time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestAppendIsIdempotentOnEntryID(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	e := entry("E1001", audit.ActionEmployeeIngested, time.Now().UTC())
	require.NoError(t, store.Append(ctx, e))
	require.NoError(t, store.Append(ctx, e))

	entries, err := store.ListBySubject(ctx, "E1001")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestOutboxLifecycle(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	first := entry("E1001", audit.ActionEmployeeIngested, base)
	second := entry("E1001", audit.ActionRequestTransition, base.Add(time.Minute))
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))

	rows, err := store.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, first.ID, rows[0].EntryID)
	require.NotEmpty(t, rows[0].Payload)

	require.NoError(t, store.MarkPublished(ctx, []int64{rows[0].ID}))

	rows, err = store.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, second.ID, rows[0].EntryID)

	// Marking nothing is a no-op, not an error.
	require.NoError(t, store.MarkPublished(ctx, nil))
}
