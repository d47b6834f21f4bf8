package core

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/codes"
)

// ErrInFlight is the outcome error of a duplicate whose first delivery has not finished.
var ErrInFlight = errors.New("message is already being relayed")

// Admission is the result of Orchestrator.Admit.
type Admission struct {
	Message *CanonicalMessage
	// Outcome is set when the message must not be delivered: it was invalid or
	// it had been admitted before.
	Outcome *RelayOutcome
}

// Admitted reports whether the caller now owns the delivery of the message.
func (a *Admission) Admitted() bool {
	return a.Outcome == nil
}

// Orchestrator is the idempotency gate between listeners and executors. It
// guarantees at most one delivery attempt per message id and records exactly
// one terminal state.
type Orchestrator struct {
	validator *Validator
	router    *Router
	store     MessageStore
	sinks     []OutcomeSink
	outcomes  *lru.Cache[string, *RelayOutcome]
	now       func() time.Time
}

type OrchestratorOption func(*Orchestrator) error

// WithOutcomeSinks adds sinks notified of every terminal outcome.
func WithOutcomeSinks(sinks ...OutcomeSink) OrchestratorOption {
	return func(o *Orchestrator) error {
		o.sinks = append(o.sinks, sinks...)
		return nil
	}
}

// WithOutcomeCache keeps the last size terminal outcomes in memory so hot
// duplicates are answered without a store round trip.
func WithOutcomeCache(size int) OrchestratorOption {
	return func(o *Orchestrator) error {
		if size <= 0 {
			o.outcomes = nil
			return nil
		}
		c, err := lru.New[string, *RelayOutcome](size)
		if err != nil {
			return err
		}
		o.outcomes = c
		return nil
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) error {
		o.now = now
		return nil
	}
}

func NewOrchestrator(validator *Validator, router *Router, store MessageStore, opts ...OrchestratorOption) (*Orchestrator, error) {
	o := &Orchestrator{
		validator: validator,
		router:    router,
		store:     store,
		now:       time.Now,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// timestamps are kept at microsecond precision so stored and returned outcomes compare equal
func (o *Orchestrator) timestamp() time.Time {
	return o.now().UTC().Truncate(time.Microsecond)
}

// Relay admits msg and, when it was not seen before, delivers it.
func (o *Orchestrator) Relay(ctx context.Context, msg *CanonicalMessage) *RelayOutcome {
	adm, err := o.Admit(ctx, msg)
	if err != nil {
		id := ""
		if msg != nil {
			id = msg.MessageID
		}
		return FailureOutcome(id, err, o.timestamp())
	}
	if !adm.Admitted() {
		return adm.Outcome
	}
	return o.Deliver(ctx, msg)
}

// Admit validates msg and atomically records it as PENDING. An error is
// returned only when the store could not be reached, in which case the
// message has not been admitted and may be offered again.
func (o *Orchestrator) Admit(ctx context.Context, msg *CanonicalMessage) (*Admission, error) {
	if msg != nil {
		o.router.Prepare(msg)
	}
	if res := o.validator.Validate(msg); !res.Valid {
		id := ""
		if msg != nil {
			id = msg.MessageID
		}
		return &Admission{Message: msg, Outcome: FailureOutcome(id, res.Err(), o.timestamp())}, nil
	}
	logger := GetMessageLogger(msg)

	if o.outcomes != nil {
		if cached, ok := o.outcomes.Get(msg.MessageID); ok {
			logger.DebugContext(ctx, "duplicate message answered from cache")
			return &Admission{Message: msg, Outcome: cached}, nil
		}
	}

	existing, inserted, err := o.store.InsertPending(ctx, NewPendingMessage(msg, o.timestamp()))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to persist message %s", msg.MessageID)
	}
	if inserted {
		recordObserved(ctx, msg.SourceChain)
		return &Admission{Message: msg}, nil
	}

	if outcome := existing.Outcome(); outcome != nil {
		logger.InfoContext(ctx, "duplicate message, returning stored outcome", "status", existing.Status)
		if o.outcomes != nil {
			o.outcomes.Add(msg.MessageID, outcome)
		}
		return &Admission{Message: msg, Outcome: outcome}, nil
	}
	logger.InfoContext(ctx, "duplicate message is still pending")
	return &Admission{Message: msg, Outcome: FailureOutcome(msg.MessageID, Mark(ErrInFlight, ErrDuplicate), o.timestamp())}, nil
}

// Deliver routes an admitted message and persists its terminal state. The
// terminal state is written even when ctx has been cancelled meanwhile.
func (o *Orchestrator) Deliver(ctx context.Context, msg *CanonicalMessage) *RelayOutcome {
	ctx, span := tracer.Start(ctx, "Orchestrator.Deliver", WithMessageAttributes(msg), withPackage(o.router))
	defer span.End()
	logger := GetMessageLogger(msg)

	start := o.now()
	res, err := o.route(ctx, msg)

	var outcome *RelayOutcome
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		outcome = FailureOutcome(msg.MessageID, err, o.timestamp())
	} else {
		outcome = SuccessOutcome(msg.MessageID, res.TransactionHash, o.timestamp())
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := o.store.CompleteMessage(persistCtx, outcome); err != nil {
		if errors.Is(err, ErrAlreadyTerminal) {
			if stored, gerr := o.store.GetMessage(persistCtx, msg.MessageID); gerr == nil && stored.Outcome() != nil {
				logger.WarnContext(ctx, "message was completed concurrently, returning stored outcome")
				outcome = stored.Outcome()
			}
		} else {
			logger.ErrorContext(ctx, "failed to persist terminal state", err)
		}
	}

	if o.outcomes != nil {
		o.outcomes.Add(msg.MessageID, outcome)
	}
	recordOutcome(persistCtx, msg, outcome, o.now().Sub(start))
	for _, s := range o.sinks {
		if err := s.Publish(persistCtx, msg, outcome); err != nil {
			logger.ErrorContext(ctx, "failed to publish outcome", err)
		}
	}
	return outcome
}

func (o *Orchestrator) route(ctx context.Context, msg *CanonicalMessage) (res *ExecutionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("executor panicked: %v", r)
		}
	}()
	res, err = o.router.Route(ctx, msg)
	if err == nil && res == nil {
		err = errors.New("executor returned no result")
	}
	return res, err
}
