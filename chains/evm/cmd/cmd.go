package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/knotx-labs/knotx-relayer/chains/evm"
	"github.com/knotx-labs/knotx-relayer/config"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/spf13/cobra"
)

func EVMCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evm",
		Short: "manage evm chains",
	}

	cmd.AddCommand(
		addressCmd(ctx),
	)

	return cmd
}

func addressCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "address [chain-name]",
		Short: "print the transaction and relayer signer addresses of the configured evm chains",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found := false
			for _, ch := range ctx.Config.Chains {
				if ch.Type != string(core.ChainKindEVM) || (len(args) == 1 && ch.Name != args[0]) {
					continue
				}
				found = true
				c := evm.DefaultChainConfig()
				if err := config.DecodeSettings(ch.Settings, &c); err != nil {
					return fmt.Errorf("chain %s: %w", ch.Name, err)
				}
				if c.PrivateKey == "" {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tsource only\n", ch.Name)
					continue
				}
				signer, txKey, err := c.Keys()
				if err != nil {
					return fmt.Errorf("chain %s: %w", ch.Name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tsender=%s\trelayer=%s\n",
					ch.Name, crypto.PubkeyToAddress(txKey.PublicKey).Hex(), signer.Address().Hex())
			}
			if !found {
				return fmt.Errorf("no evm chain is configured")
			}
			return nil
		},
	}
	return cmd
}
