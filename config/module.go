package config

import (
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/spf13/cobra"
)

// ChainConfigI is the typed configuration a module decodes for one chain.
type ChainConfigI = core.ChainConfig

// ModuleI defines an interface of Module
type ModuleI interface {
	// Name returns the name of the module. It matches the type of the chains it serves.
	Name() string

	// DecodeChainConfig decodes the settings of a chain entry over the module defaults.
	DecodeChainConfig(settings map[string]any) (ChainConfigI, error)

	// GetCmd returns the command
	GetCmd(ctx *Context) *cobra.Command
}
