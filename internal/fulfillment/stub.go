package fulfillment

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
)

// NopAdapter acknowledges every action without talking to anything.
// Default wiring for development; production deployments register real
// connectors.
type NopAdapter struct {
	logger *slog.Logger
}

func NewNopAdapter(logger *slog.Logger) *NopAdapter {
	return &NopAdapter{logger: logger}
}

func (a *NopAdapter) CreateAccount(_ context.Context, job Job) error {
	a.logger.Info("account created", "item", job.Item, "employee_id", string(job.EmployeeID))
	return nil
}

func (a *NopAdapter) RevokeAccount(_ context.Context, job Job) error {
	a.logger.Info("account revoked", "item", job.Item, "employee_id", string(job.EmployeeID))
	return nil
}

// LogTicketer mints ticket ids locally and logs them. Stands in for the
// real ITSM connector.
type LogTicketer struct {
	logger *slog.Logger
	count  atomic.Int64
}

func NewLogTicketer(logger *slog.Logger) *LogTicketer {
	return &LogTicketer{logger: logger}
}

func (t *LogTicketer) CreateTicket(_ context.Context, ticket Ticket) (string, error) {
	t.count.Add(1)
	id := "TKT-" + uuid.NewString()[:8]
	t.logger.Warn("fallback ticket created",
		"ticket_id", id,
		"request_id", ticket.RequestID.String(),
		"item", ticket.Item,
		"summary", ticket.Summary,
	)
	return id, nil
}

// Created reports how many tickets have been filed.
func (t *LogTicketer) Created() int64 { return t.count.Load() }

// LogNotifier writes notifications to the log instead of a chat channel.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, audience, message string) error {
	n.logger.Info("notification", "audience", audience, "message", message)
	return nil
}
