package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagJSON        = "json"
	flagStatus      = "status"
	flagSource      = "source"
	flagDestination = "destination"
	flagChain       = "chain"
	flagLimit       = "limit"
	flagOffset      = "offset"
)

func jsonFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().BoolP(flagJSON, "j", false, "returns the response in json format")
	if err := viper.BindPFlag(flagJSON, cmd.Flags().Lookup(flagJSON)); err != nil {
		panic(err)
	}
	return cmd
}

func statusFlag(cmd *cobra.Command, usage string) *cobra.Command {
	cmd.Flags().String(flagStatus, "", usage)
	return cmd
}

func limitFlags(cmd *cobra.Command, defaultLimit int) *cobra.Command {
	cmd.Flags().Int(flagLimit, defaultLimit, "maximum number of entries to return")
	cmd.Flags().Int(flagOffset, 0, "number of entries to skip")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	bz, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	bz = append(bz, '\n')
	_, err = cmd.OutOrStdout().Write(bz)
	return err
}
