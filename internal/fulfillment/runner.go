package fulfillment

import (
	"context"
	"log/slog"

	"github.com/cenkalti/backoff/v4"

	"onboard/internal/platform/config"
	"onboard/internal/platform/metrics"
	"onboard/pkg/platform/audit"
)

// Outcome is what the runner reports back to the state machine.
type Outcome string

const (
	// OutcomeOK: the external system confirmed the action.
	OutcomeOK Outcome = "ok"
	// OutcomeDegraded: retries exhausted; a fallback ticket exists and the
	// request stays Fulfilling with the degraded marker until a human or a
	// later callback completes it.
	OutcomeDegraded Outcome = "degraded"
	// OutcomeFailed: the adapter reported a permanent failure.
	OutcomeFailed Outcome = "failed"
)

// Runner drives one fulfillment job through the retry policy.
type Runner struct {
	adapter  Adapter
	ticketer Ticketer
	notifier Notifier
	cfg      config.Fulfillment
	audit    *audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewRunner(adapter Adapter, ticketer Ticketer, notifier Notifier, cfg config.Fulfillment, auditPub *audit.Publisher, m *metrics.Metrics, logger *slog.Logger) *Runner {
	return &Runner{
		adapter:  adapter,
		ticketer: ticketer,
		notifier: notifier,
		cfg:      cfg,
		audit:    auditPub,
		metrics:  m,
		logger:   logger,
	}
}

// Run executes the job with bounded exponential backoff. A Fatal error
// short-circuits to OutcomeFailed. Exhausting the retry budget files a
// fallback ticket, notifies HR/IT, and reports OutcomeDegraded; the
// caller must not treat that as failure.
func (r *Runner) Run(ctx context.Context, job Job) (Outcome, string, error) {
	attempt := 0
	operation := func() error {
		attempt++
		err := r.call(ctx, job)
		if err == nil {
			return nil
		}
		if IsFatal(err) {
			return backoff.Permanent(err)
		}
		r.metrics.IncFulfillmentRetry()
		r.logger.Warn("fulfillment attempt failed",
			"request_id", job.RequestID.String(),
			"item", job.Item,
			"attempt", attempt,
			"error", err,
		)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.cfg.InitialBackoff
	policy.MaxInterval = r.cfg.MaxBackoff

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, r.cfg.MaxAttempts-1), ctx))
	if err == nil {
		return OutcomeOK, "", nil
	}
	if IsFatal(err) {
		return OutcomeFailed, "", err
	}
	return r.degrade(ctx, job, err)
}

func (r *Runner) call(ctx context.Context, job Job) error {
	if job.Revoke {
		return r.adapter.RevokeAccount(ctx, job)
	}
	return r.adapter.CreateAccount(ctx, job)
}

// degrade files the fallback ticket and alerts the humans. The original
// error is carried in the ticket summary, not returned; from the state
// machine's point of view a degraded request is still in flight.
func (r *Runner) degrade(ctx context.Context, job Job, cause error) (Outcome, string, error) {
	ticketID, ticketErr := r.ticketer.CreateTicket(ctx, Ticket{
		RequestID:  job.RequestID,
		EmployeeID: job.EmployeeID,
		Item:       job.Item,
		Summary:    "automated fulfillment exhausted retries: " + cause.Error(),
	})
	if ticketErr != nil {
		// No ticket and no fulfillment; this is a real failure.
		return OutcomeFailed, "", ticketErr
	}

	r.metrics.IncFallbackTicket()
	if err := r.audit.Emit(ctx, audit.Entry{
		SubjectID: job.RequestID.String(),
		Action:    audit.ActionFallbackTicket,
		Reason:    "ticket " + ticketID,
	}); err != nil {
		return OutcomeFailed, "", err
	}
	if r.notifier != nil {
		if err := r.notifier.Notify(ctx, "hr-it-ops",
			"fulfillment for "+job.Item+" degraded to ticket "+ticketID); err != nil {
			r.logger.Error("degraded-request notification failed", "error", err)
		}
	}
	return OutcomeDegraded, ticketID, nil
}
