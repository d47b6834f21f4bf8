package module

import (
	"github.com/knotx-labs/knotx-relayer/chains/evm"
	evmcmd "github.com/knotx-labs/knotx-relayer/chains/evm/cmd"
	"github.com/knotx-labs/knotx-relayer/config"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/spf13/cobra"
)

type Module struct{}

var _ config.ModuleI = (*Module)(nil)

// Name returns the name of the module
func (Module) Name() string {
	return string(core.ChainKindEVM)
}

// DecodeChainConfig decodes the settings of an evm chain over the defaults.
func (Module) DecodeChainConfig(settings map[string]any) (core.ChainConfig, error) {
	c := evm.DefaultChainConfig()
	if err := config.DecodeSettings(settings, &c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetCmd returns the command
func (Module) GetCmd(ctx *config.Context) *cobra.Command {
	return evmcmd.EVMCmd(ctx)
}
