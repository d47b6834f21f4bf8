package cmd

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/knotx-labs/knotx-relayer/config"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/knotx-labs/knotx-relayer/otelcore"
	"github.com/knotx-labs/knotx-relayer/sink/kafka"
	"github.com/knotx-labs/knotx-relayer/store/memory"
	"github.com/knotx-labs/knotx-relayer/store/postgres"
	"go.opentelemetry.io/otel"
)

const tracerName = "github.com/knotx-labs/knotx-relayer/cmd"

// relayer holds every component built from the config.
type relayer struct {
	registry     *core.Registry
	store        core.Store
	router       *core.Router
	orchestrator *core.Orchestrator
	listeners    []core.Listener
	closers      []func() error
}

func (r *relayer) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

func openStore(ctx context.Context, c config.DatabaseConfig) (core.Store, error) {
	switch c.Driver {
	case config.DatabaseDriverMemory:
		return memory.New(), nil
	case config.DatabaseDriverPostgres:
		return postgres.Open(ctx, c.URL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", c.Driver)
	}
}

// newRelayer validates the config and builds the store, the executors and
// (unless withListeners is false) the listeners of every configured chain.
func newRelayer(ctx context.Context, cctx *config.Context, withListeners bool) (*relayer, error) {
	c := cctx.Config
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	registry, err := c.Registry()
	if err != nil {
		return nil, err
	}
	st, err := openStore(ctx, c.Database)
	if err != nil {
		return nil, err
	}
	r := &relayer{
		registry: registry,
		store:    st,
		router:   core.NewRouter(),
		closers:  []func() error{st.Close},
	}

	tracer := otel.Tracer(tracerName)
	for _, entry := range c.Chains {
		_, chainConfig, err := cctx.ChainConfig(entry.Name)
		if err != nil {
			r.Close()
			return nil, err
		}
		comps, err := chainConfig.Build(core.ChainDeps{
			Info:        entry.Info(),
			Registry:    registry,
			Cursors:     st,
			DeadLetters: st,
			Retry:       c.Retry,
		})
		if err != nil {
			r.Close()
			return nil, errors.Wrapf(err, "failed to build chain %s", entry.Name)
		}
		if comps.Executor != nil {
			r.router.Register(otelcore.NewExecutor(comps.Executor, tracer), comps.DefaultGateway)
		}
		if withListeners && comps.Listener != nil {
			r.listeners = append(r.listeners, comps.Listener)
		}
	}

	sinks := []core.OutcomeSink{core.LogSink{}}
	if c.Kafka.Enabled() {
		k := kafka.NewSink(c.Kafka)
		sinks = append(sinks, k)
		r.closers = append(r.closers, k.Close)
	}
	r.orchestrator, err = core.NewOrchestrator(core.NewValidator(registry), r.router, st,
		core.WithOutcomeSinks(sinks...),
		core.WithOutcomeCache(c.OutcomeCacheSize),
	)
	if err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *relayer) reconciler(c core.ReconcilerConfig) *core.Reconciler {
	return core.NewReconciler(r.orchestrator, r.store, r.router, c)
}

// openStoreOnly is used by the read-only commands that need no chain.
func openStoreOnly(ctx context.Context, cctx *config.Context) (core.Store, error) {
	return openStore(ctx, cctx.Config.Database)
}
