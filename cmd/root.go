package cmd

import (
	"os"
	"path/filepath"

	"github.com/knotx-labs/knotx-relayer/config"
	"github.com/knotx-labs/knotx-relayer/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagHome      = "home"
	flagConfig    = "config"
	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"
)

var defaultHome = filepath.Join(os.Getenv("HOME"), ".knotx")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "knotx",
	Short: "This application relays messages between EVM and Casper gateway contracts",
}

func init() {
	cobra.EnableCommandSorting = false

	rootCmd.SilenceUsage = true
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(modules ...config.ModuleI) error {
	ctx := &config.Context{Modules: modules, Config: &config.Config{}}

	rootCmd.PersistentFlags().String(flagHome, defaultHome, "set home directory")
	rootCmd.PersistentFlags().String(flagConfig, "", "config file (default is <home>/config/config.yaml)")
	rootCmd.PersistentFlags().String(flagLogLevel, "", "log level (debug, info, warn, error); overrides log.level")
	rootCmd.PersistentFlags().String(flagLogFormat, "", "log format (text, json); overrides log.format")
	for _, f := range []string{flagHome, flagConfig, flagLogLevel, flagLogFormat} {
		if err := viper.BindPFlag(f, rootCmd.PersistentFlags().Lookup(f)); err != nil {
			return err
		}
	}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		// reads `homeDir/config/config.yaml` into `ctx.Config` before each command
		return initConfig(ctx, cmd)
	}

	rootCmd.AddCommand(
		configCmd(ctx),
		serviceCmd(ctx),
		dbCmd(ctx),
		messagesCmd(ctx),
		cursorsCmd(ctx),
		deadLettersCmd(ctx),
		transactionCmd(ctx),
		reconcileCmd(ctx),
		modulesCmd(ctx),
	)

	// add module specific commands
	for _, module := range modules {
		if cmd := module.GetCmd(ctx); cmd != nil {
			rootCmd.AddCommand(cmd)
		}
	}

	return rootCmd.Execute()
}

func configPath() string {
	if p := viper.GetString(flagConfig); p != "" {
		return p
	}
	return filepath.Join(viper.GetString(flagHome), "config", "config.yaml")
}

// initConfig reads the config file and the KNOTX_* environment, then sets up the logger.
func initConfig(ctx *config.Context, _ *cobra.Command) error {
	c, err := config.Load(configPath())
	if err != nil {
		return err
	}
	if lvl := viper.GetString(flagLogLevel); lvl != "" {
		c.Log.Level = lvl
	}
	if format := viper.GetString(flagLogFormat); format != "" {
		c.Log.Format = format
	}
	*ctx.Config = *c
	return log.InitLogger(c.Log.Level, c.Log.Format, c.Log.Output, false)
}

func noCommand(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}
