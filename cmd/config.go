package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knotx-labs/knotx-relayer/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func configCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Aliases: []string{"cfg"},
		Short:   "manage configuration file",
		RunE:    noCommand,
	}

	cmd.AddCommand(
		configShowCmd(ctx),
		configInitCmd(ctx),
	)

	return cmd
}

// Command for inititalizing an empty config at the --home location
func configInitCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "init",
		Aliases: []string{"i"},
		Short:   "Creates a default config file at the path defined by --config or --home",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := ctx.Config.ConfigPath
			if _, err := os.Stat(cfgPath); !os.IsNotExist(err) {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}
			if err := os.MkdirAll(filepath.Dir(cfgPath), 0o750); err != nil {
				return err
			}
			bz, err := config.MarshalYAML(config.DefaultConfig(cfgPath))
			if err != nil {
				return err
			}
			if err := os.WriteFile(cfgPath, bz, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config written to %s\n", cfgPath)
			return nil
		},
	}
	return cmd
}

// Command for printing current configuration
func configShowCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "show",
		Aliases: []string{"s", "list", "l"},
		Short:   "Prints the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := ctx.Config.Redacted()
			if viper.GetBool(flagJSON) {
				return printJSON(cmd, c)
			}
			out, err := config.MarshalYAML(c)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	return jsonFlag(cmd)
}
