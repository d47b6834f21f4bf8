package config

import (
	"fmt"
)

type Context struct {
	Modules []ModuleI
	Config  *Config
}

// Module returns the module serving chains of the given type.
func (ctx *Context) Module(chainType string) (ModuleI, error) {
	for _, m := range ctx.Modules {
		if m.Name() == chainType {
			return m, nil
		}
	}
	return nil, fmt.Errorf("no module is registered for chain type %q", chainType)
}

// ChainConfig decodes and validates the settings of the named chain.
func (ctx *Context) ChainConfig(name string) (ChainEntry, ChainConfigI, error) {
	for _, ch := range ctx.Config.Chains {
		if ch.Name != name {
			continue
		}
		m, err := ctx.Module(ch.Type)
		if err != nil {
			return ch, nil, err
		}
		c, err := m.DecodeChainConfig(ch.Settings)
		if err != nil {
			return ch, nil, fmt.Errorf("chain %s: %w", ch.Name, err)
		}
		if err := c.Validate(); err != nil {
			return ch, nil, fmt.Errorf("chain %s: %w", ch.Name, err)
		}
		return ch, c, nil
	}
	return ChainEntry{}, nil, fmt.Errorf("chain %q is not configured", name)
}
