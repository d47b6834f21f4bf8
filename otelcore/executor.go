package otelcore

import (
	"context"
	"fmt"

	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/knotx-labs/knotx-relayer/otelcore/semconv"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Executor records a span around every call of the wrapped executor.
type Executor struct {
	core.Executor
	tracer trace.Tracer
}

// CheckingExecutor is the Executor wrapper of executors that are also DeliveryCheckers.
type CheckingExecutor struct {
	*Executor
	checker core.DeliveryChecker
}

// NewExecutor wraps executor. The result implements core.DeliveryChecker
// exactly when executor does.
func NewExecutor(executor core.Executor, tracer trace.Tracer) core.Executor {
	e := &Executor{
		Executor: executor,
		tracer:   tracer,
	}
	if checker, ok := executor.(core.DeliveryChecker); ok {
		return &CheckingExecutor{Executor: e, checker: checker}
	}
	return e
}

func UnwrapExecutor(executor core.Executor) (core.Executor, error) {
	switch e := executor.(type) {
	case *Executor:
		return e.Executor, nil
	case *CheckingExecutor:
		return e.Executor.Executor, nil
	default:
		return nil, fmt.Errorf("executor type is not %T, but %T", &Executor{}, executor)
	}
}

func (e *Executor) Execute(ctx context.Context, msg *core.CanonicalMessage) (*core.ExecutionResult, error) {
	ctx, span := e.tracer.Start(ctx, "Executor.Execute",
		core.WithChainAttributes(e.ChainName()),
		core.WithMessageAttributes(msg),
	)
	defer span.End()

	res, err := e.Executor.Execute(ctx, msg)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(semconv.TxHashKey.String(res.TransactionHash))
	return res, nil
}

func (e *CheckingExecutor) IsDelivered(ctx context.Context, msg *core.CanonicalMessage) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "Executor.IsDelivered",
		core.WithChainAttributes(e.ChainName()),
		core.WithMessageAttributes(msg),
	)
	defer span.End()

	delivered, err := e.checker.IsDelivered(ctx, msg)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return delivered, err
}
