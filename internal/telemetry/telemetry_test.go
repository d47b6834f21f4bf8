package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInt64SyncGauge(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	g, err := NewInt64SyncGauge(provider.Meter("test"), "relayer.cursor_position")
	require.NoError(t, err)

	casper := attribute.String("chain", "casper-test")
	sepolia := attribute.String("chain", "sepolia")
	g.Set(3, casper)
	g.Set(7, sepolia)
	g.Set(4, casper)

	v, ok := g.Get(casper)
	require.True(t, ok)
	assert.EqualValues(t, 4, v)
	_, ok = g.Get(attribute.String("chain", "other"))
	assert.False(t, ok)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	gauge, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	observed := make(map[string]int64)
	for _, dp := range gauge.DataPoints {
		chain, _ := dp.Attributes.Value("chain")
		observed[chain.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"casper-test": 4, "sepolia": 7}, observed)
}

func TestNilGaugeIsNoop(t *testing.T) {
	var g *Int64SyncGauge
	g.Set(1)
	_, ok := g.Get()
	assert.False(t, ok)
}

func TestSetupOTelSDK(t *testing.T) {
	opts := DefaultOptions()
	opts.MetricsExporter = "none"

	shutdown, err := SetupOTelSDK(context.Background(), opts)
	require.NoError(t, err)
	require.NoError(t, InitializeMetrics())
	AddInt64(context.Background(), MessagesObservedCounter, 1)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupOTelSDKRejectsUnknownExporter(t *testing.T) {
	t.Setenv(tracesExporterKey, "zipkin")
	_, err := SetupOTelSDK(context.Background(), DefaultOptions())
	assert.ErrorContains(t, err, "zipkin")
}

func TestSplitExporters(t *testing.T) {
	assert.Equal(t, []string{"otlp", "console"}, splitExporters(" otlp, ,console "))
	assert.Empty(t, splitExporters(""))
}
