package core

import (
	"context"
	"time"

	"github.com/knotx-labs/knotx-relayer/internal/telemetry"
	"github.com/knotx-labs/knotx-relayer/otelcore/semconv"
	api "go.opentelemetry.io/otel/metric"
)

func recordObserved(ctx context.Context, chain string) {
	telemetry.AddInt64(ctx, telemetry.MessagesObservedCounter, 1,
		api.WithAttributes(semconv.ChainKey.String(chain)))
}

func recordOutcome(ctx context.Context, msg *CanonicalMessage, outcome *RelayOutcome, elapsed time.Duration) {
	status := StatusFailed
	if outcome.Success {
		status = StatusDelivered
	}
	attrs := api.WithAttributes(
		semconv.AttributeGroup("src", semconv.ChainKey.String(msg.SourceChain))[0],
		semconv.AttributeGroup("dst", semconv.ChainKey.String(msg.DestinationChain))[0],
		semconv.StatusKey.String(string(status)),
	)
	telemetry.AddInt64(ctx, telemetry.MessagesRelayedCounter, 1, attrs)
	telemetry.RecordDuration(ctx, telemetry.RelayDurationHistogram, elapsed, attrs)
}

// RecordCursor publishes the cursor position of chain.
func RecordCursor(chain string, position uint64) {
	telemetry.CursorPositionGauge.Set(int64(position), semconv.ChainKey.String(chain))
}

// RecordDeadLetter counts a dead-lettered source record of chain.
func RecordDeadLetter(ctx context.Context, chain string) {
	telemetry.AddInt64(ctx, telemetry.DeadLettersCounter, 1,
		api.WithAttributes(semconv.ChainKey.String(chain)))
}

// RecordFinalityPolls records how many polls an execution result took.
func RecordFinalityPolls(ctx context.Context, chain string, polls int) {
	telemetry.RecordInt64(ctx, telemetry.FinalityPollAttemptsHist, int64(polls),
		api.WithAttributes(semconv.ChainKey.String(chain)))
}

func recordPending(count int64) {
	telemetry.PendingMessagesGauge.Set(count)
}
