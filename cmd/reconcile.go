package cmd

import (
	"github.com/knotx-labs/knotx-relayer/config"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/spf13/cobra"
)

func reconcileCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Resolve messages left pending by an interrupted delivery",
		RunE:  noCommand,
	}
	cmd.AddCommand(reconcileRunCmd(ctx))
	return cmd
}

func reconcileRunCmd(ctx *config.Context) *cobra.Command {
	const flagMode = "mode"

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single reconciliation sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rc := ctx.Config.Reconciler
			if mode, _ := cmd.Flags().GetString(flagMode); mode != "" {
				rc.Mode = core.ReconcileMode(mode)
				if err := rc.Mode.Validate(); err != nil {
					return err
				}
			}

			r, err := newRelayer(cmd.Context(), ctx, false)
			if err != nil {
				return err
			}
			defer r.Close()

			report, err := r.reconciler(rc).Run(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().String(flagMode, "", "retry or flag; overrides reconciler.mode")
	return cmd
}
