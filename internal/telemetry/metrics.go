package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/knotx-labs/knotx-relayer/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	api "go.opentelemetry.io/otel/metric"
)

const (
	namespaceRoot = "relayer"
)

var (
	CursorPositionGauge      *Int64SyncGauge
	PendingMessagesGauge     *Int64SyncGauge
	MessagesObservedCounter  api.Int64Counter
	MessagesRelayedCounter   api.Int64Counter
	DeadLettersCounter       api.Int64Counter
	RelayDurationHistogram   api.Float64Histogram
	FinalityPollAttemptsHist api.Int64Histogram

	meter = otel.Meter(name)
)

func InitializeMetrics() error {
	var err error

	// create the instrument "relayer.cursor_position"
	name := fmt.Sprintf("%s.cursor_position", namespaceRoot)
	if CursorPositionGauge, err = NewInt64SyncGauge(
		meter,
		name,
		api.WithUnit("1"),
		api.WithDescription("persisted cursor of each source chain (next nonce or last processed block)"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.pending_messages"
	name = fmt.Sprintf("%s.pending_messages", namespaceRoot)
	if PendingMessagesGauge, err = NewInt64SyncGauge(
		meter,
		name,
		api.WithUnit("1"),
		api.WithDescription("number of messages persisted as pending"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.messages_observed"
	name = fmt.Sprintf("%s.messages_observed", namespaceRoot)
	if MessagesObservedCounter, err = meter.Int64Counter(
		name,
		api.WithUnit("1"),
		api.WithDescription("number of messages emitted by listeners"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.messages_relayed"
	name = fmt.Sprintf("%s.messages_relayed", namespaceRoot)
	if MessagesRelayedCounter, err = meter.Int64Counter(
		name,
		api.WithUnit("1"),
		api.WithDescription("number of messages that reached a terminal state"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.dead_letters"
	name = fmt.Sprintf("%s.dead_letters", namespaceRoot)
	if DeadLettersCounter, err = meter.Int64Counter(
		name,
		api.WithUnit("1"),
		api.WithDescription("number of source records written to the dead-letter store"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.relay_duration"
	name = fmt.Sprintf("%s.relay_duration", namespaceRoot)
	if RelayDurationHistogram, err = meter.Float64Histogram(
		name,
		api.WithUnit("s"),
		api.WithDescription("time from routing a message to its terminal state"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.finality_poll_attempts"
	name = fmt.Sprintf("%s.finality_poll_attempts", namespaceRoot)
	if FinalityPollAttemptsHist, err = meter.Int64Histogram(
		name,
		api.WithUnit("1"),
		api.WithDescription("number of polls needed to observe an execution result"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	return nil
}

// AddInt64 adds v to c when the instrument has been initialized.
func AddInt64(ctx context.Context, c api.Int64Counter, v int64, opts ...api.AddOption) {
	if c != nil {
		c.Add(ctx, v, opts...)
	}
}

// RecordDuration records d in seconds when the instrument has been initialized.
func RecordDuration(ctx context.Context, h api.Float64Histogram, d time.Duration, opts ...api.RecordOption) {
	if h != nil {
		h.Record(ctx, d.Seconds(), opts...)
	}
}

// RecordInt64 records v when the instrument has been initialized.
func RecordInt64(ctx context.Context, h api.Int64Histogram, v int64, opts ...api.RecordOption) {
	if h != nil {
		h.Record(ctx, v, opts...)
	}
}

func NewPrometheusExporter(addr string) (*prometheus.Exporter, error) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			logger := log.GetLogger().WithModule("telemetry")
			logger.Fatal("Prometheus exporter server failed", err)
		}
	}()

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create the Prometheus Exporter: %v", err)
	}

	return exporter, nil
}
