package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/knotx-labs/knotx-relayer/chains/casper"
	"github.com/knotx-labs/knotx-relayer/config"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/spf13/cobra"
)

func CasperCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "casper",
		Short: "manage casper chains",
	}

	cmd.AddCommand(
		keysCmd(ctx),
	)

	return cmd
}

func keysCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys [chain-name]",
		Short: "print the account and relayer public keys of the configured casper chains",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found := false
			for _, ch := range ctx.Config.Chains {
				if ch.Type != string(core.ChainKindCasper) || (len(args) == 1 && ch.Name != args[0]) {
					continue
				}
				found = true
				c := casper.DefaultChainConfig()
				if err := config.DecodeSettings(ch.Settings, &c); err != nil {
					return fmt.Errorf("chain %s: %w", ch.Name, err)
				}
				if c.PrivateKey == "" {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tsource only\n", ch.Name)
					continue
				}
				account, relayer, err := c.Keys()
				if err != nil {
					return fmt.Errorf("chain %s: %w", ch.Name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\taccount=%s\taccount_hash=%s\trelayer=%s\n",
					ch.Name,
					account.PublicKey().Hex(),
					account.PublicKey().AccountHash(),
					hex.EncodeToString(relayer.PublicKey().SerializeCompressed()),
				)
			}
			if !found {
				return fmt.Errorf("no casper chain is configured")
			}
			return nil
		},
	}
	return cmd
}
