package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/knotx-labs/knotx-relayer/config"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/knotx-labs/knotx-relayer/internal/telemetry"
	"github.com/knotx-labs/knotx-relayer/log"
	"github.com/knotx-labs/knotx-relayer/server"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func serviceCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Relay Service Commands",
		Long:  "Commands to manage the relay service",
	}
	cmd.AddCommand(
		startCmd(ctx),
	)
	return cmd
}

func startCmd(ctx *config.Context) *cobra.Command {
	const (
		flagPrometheusAddr  = "prometheus-addr"
		flagAPIAddr         = "api-addr"
		flagEnableTelemetry = "enable-telemetry"
		flagNoReconcile     = "no-reconcile"
	)
	const (
		defaultPrometheusAddr = "localhost:2223"
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the listeners, the orchestrator, the reconciler and the explorer API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := telemetry.DefaultOptions()
			opts.PrometheusAddr = viper.GetString(flagPrometheusAddr)
			shutdown, err := telemetry.SetupOTelSDK(sigCtx, opts)
			if err != nil {
				return fmt.Errorf("failed to set up the telemetry: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(sigCtx), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.GetLogger().Error("failed to shut down the telemetry", err)
				}
			}()
			if err := telemetry.InitializeMetrics(); err != nil {
				return err
			}
			if viper.GetBool(flagEnableTelemetry) {
				c := ctx.Config.Log
				if err := log.InitLogger(c.Level, c.Format, c.Output, true); err != nil {
					return err
				}
			}

			r, err := newRelayer(sigCtx, ctx, true)
			if err != nil {
				return err
			}
			defer r.Close()

			apiAddr := ctx.Config.Server.Addr
			if cmd.Flags().Changed(flagAPIAddr) {
				apiAddr = viper.GetString(flagAPIAddr)
			}
			return runService(sigCtx, ctx.Config, r, apiAddr, !viper.GetBool(flagNoReconcile))
		},
	}
	cmd.Flags().String(flagPrometheusAddr, defaultPrometheusAddr, "host address to which the prometheus exporter listens")
	cmd.Flags().String(flagAPIAddr, "", "host address of the explorer API; overrides server.addr")
	cmd.Flags().Bool(flagEnableTelemetry, false, "also export logs through the OpenTelemetry logs exporter")
	cmd.Flags().Bool(flagNoReconcile, false, "do not run the reconciler")
	for _, f := range []string{flagPrometheusAddr, flagAPIAddr, flagEnableTelemetry, flagNoReconcile} {
		if err := viper.BindPFlag(f, cmd.Flags().Lookup(f)); err != nil {
			panic(err)
		}
	}
	return cmd
}

func runService(ctx context.Context, c *config.Config, r *relayer, apiAddr string, reconcile bool) error {
	logger := log.GetLogger().WithModule("service")
	g, gctx := errgroup.WithContext(ctx)

	if reconcile {
		reconciler := r.reconciler(c.Reconciler)
		// one sweep at startup picks up what a previous run left pending
		if _, err := reconciler.Run(gctx); err != nil {
			logger.Error("startup reconciliation failed", err)
		}
		sched := cron.New()
		if _, err := sched.AddFunc(c.Reconciler.Schedule, func() {
			if _, err := reconciler.Run(gctx); err != nil {
				logger.Error("scheduled reconciliation failed", err)
			}
		}); err != nil {
			return fmt.Errorf("invalid reconciler schedule %q: %w", c.Reconciler.Schedule, err)
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
	}

	if apiAddr != "" {
		api := server.NewAPIServer(r.store)
		g.Go(func() error {
			return api.Start(gctx, apiAddr)
		})
	}

	svc := core.NewRelayService(r.orchestrator, r.listeners, c.Workers, c.GracePeriod)
	g.Go(func() error {
		return svc.Start(gctx)
	})

	logger.Info("relay service started",
		"listeners", len(r.listeners),
		"destinations", r.router.Chains(),
		"api", apiAddr,
	)
	return g.Wait()
}
