package core

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/codes"
)

type ReconcileMode string

const (
	// ReconcileRetry redelivers stale PENDING messages.
	ReconcileRetry ReconcileMode = "retry"
	// ReconcileFlag marks stale PENDING messages FAILED for manual resolution.
	ReconcileFlag ReconcileMode = "flag"

	StaleFlaggedError = "stale pending message flagged for manual resolution"
)

func (m ReconcileMode) Validate() error {
	switch m {
	case ReconcileRetry, ReconcileFlag:
		return nil
	default:
		return fmt.Errorf("unknown reconcile mode %q", m)
	}
}

type ReconcilerConfig struct {
	Mode       ReconcileMode `yaml:"mode" json:"mode" mapstructure:"mode"`
	StaleAfter time.Duration `yaml:"stale_after" json:"stale_after" mapstructure:"stale_after"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size" mapstructure:"batch_size"`
	Schedule   string        `yaml:"schedule" json:"schedule" mapstructure:"schedule"`
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Mode:       ReconcileRetry,
		StaleAfter: 10 * time.Minute,
		BatchSize:  100,
		Schedule:   "@every 5m",
	}
}

// ReconcileReport summarizes one sweep.
type ReconcileReport struct {
	Scanned          int `json:"scanned"`
	Claimed          int `json:"claimed"`
	Redelivered      int `json:"redelivered"`
	AlreadyDelivered int `json:"already_delivered"`
	Flagged          int `json:"flagged"`
}

// Reconciler resolves messages left PENDING by a crash between admission and
// the terminal write.
type Reconciler struct {
	orchestrator *Orchestrator
	store        MessageStore
	router       *Router
	config       ReconcilerConfig
	now          func() time.Time
}

func NewReconciler(orchestrator *Orchestrator, store MessageStore, router *Router, config ReconcilerConfig) *Reconciler {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultReconcilerConfig().BatchSize
	}
	return &Reconciler{
		orchestrator: orchestrator,
		store:        store,
		router:       router,
		config:       config,
		now:          time.Now,
	}
}

// Run performs a single sweep over stale PENDING messages.
func (r *Reconciler) Run(ctx context.Context) (*ReconcileReport, error) {
	ctx, span := tracer.Start(ctx, "Reconciler.Run", withPackage(r))
	defer span.End()
	logger := GetChainLogger("*", "core.reconciler")

	now := r.now().UTC().Truncate(time.Microsecond)
	staleBefore := now.Add(-r.config.StaleAfter)
	pending, err := r.store.ListMessages(ctx, MessageFilter{
		Status:        StatusPending,
		UpdatedBefore: staleBefore,
		Limit:         r.config.BatchSize,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Wrap(err, "failed to list stale messages")
	}

	report := &ReconcileReport{Scanned: len(pending)}
	for _, pm := range pending {
		if ctx.Err() != nil {
			break
		}
		claimed, err := r.store.ClaimPending(ctx, pm.MessageID, staleBefore, now)
		if err != nil {
			logger.ErrorContext(ctx, "failed to claim stale message", err, "message id", pm.MessageID)
			continue
		}
		if !claimed {
			continue
		}
		report.Claimed++
		r.resolve(ctx, pm.Canonical(), report)
	}

	if counts, err := r.store.CountByStatus(ctx); err == nil {
		recordPending(counts[StatusPending])
	}
	logger.InfoContext(ctx, "reconciliation finished",
		"scanned", report.Scanned,
		"claimed", report.Claimed,
		"redelivered", report.Redelivered,
		"already_delivered", report.AlreadyDelivered,
		"flagged", report.Flagged,
	)
	return report, nil
}

func (r *Reconciler) resolve(ctx context.Context, msg *CanonicalMessage, report *ReconcileReport) {
	logger := GetMessageLogger(msg)

	if r.config.Mode == ReconcileFlag {
		outcome := FailureOutcome(msg.MessageID, errors.New(StaleFlaggedError), r.now().UTC().Truncate(time.Microsecond))
		if err := r.store.CompleteMessage(ctx, outcome); err != nil {
			logger.ErrorContext(ctx, "failed to flag stale message", err)
			return
		}
		logger.WarnContext(ctx, "stale message flagged")
		report.Flagged++
		return
	}

	if delivered, err := r.isDelivered(ctx, msg); err != nil {
		logger.WarnContext(ctx, "failed to check destination, redelivering", "error", err.Error())
	} else if delivered {
		outcome := SuccessOutcome(msg.MessageID, "", r.now().UTC().Truncate(time.Microsecond))
		if err := r.store.CompleteMessage(ctx, outcome); err != nil {
			logger.ErrorContext(ctx, "failed to mark message delivered", err)
			return
		}
		logger.InfoContext(ctx, "message already executed on destination")
		report.AlreadyDelivered++
		return
	}

	outcome := r.orchestrator.Deliver(ctx, msg)
	logger.InfoContext(ctx, "stale message redelivered", "success", outcome.Success)
	report.Redelivered++
}

func (r *Reconciler) isDelivered(ctx context.Context, msg *CanonicalMessage) (bool, error) {
	r.router.Prepare(msg)
	e, ok := r.router.Executor(msg.DestinationChain)
	if !ok {
		return false, nil
	}
	checker, ok := e.(DeliveryChecker)
	if !ok {
		return false, nil
	}
	return checker.IsDelivered(ctx, msg)
}
