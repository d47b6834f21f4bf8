package core

import (
	"fmt"
	"sort"
)

// ChainKind identifies the transaction model of a chain.
type ChainKind string

const (
	ChainKindEVM    ChainKind = "evm"
	ChainKindCasper ChainKind = "casper"
)

// ChainInfo describes a chain known to the relayer
type ChainInfo struct {
	// Name is the identifier used in messages and cursors, e.g. "casper-testnet"
	Name string
	// NumericID is the chain id carried on the wire and in message hashes
	NumericID uint32
	Kind      ChainKind
	// Gateway is the normalized gateway contract address on this chain
	Gateway string
}

// Registry maps chain names and numeric ids to ChainInfo.
type Registry struct {
	byName map[string]ChainInfo
	byID   map[uint32]ChainInfo
}

func NewRegistry(chains ...ChainInfo) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]ChainInfo),
		byID:   make(map[uint32]ChainInfo),
	}
	for _, c := range chains {
		if err := r.Add(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Add(c ChainInfo) error {
	if c.Name == "" {
		return fmt.Errorf("chain name must not be empty")
	}
	if _, ok := r.byName[c.Name]; ok {
		return fmt.Errorf("chain %q is registered twice", c.Name)
	}
	if other, ok := r.byID[c.NumericID]; ok {
		return fmt.Errorf("chain id %d is shared by %q and %q", c.NumericID, other.Name, c.Name)
	}
	r.byName[c.Name] = c
	r.byID[c.NumericID] = c
	return nil
}

func (r *Registry) Get(name string) (ChainInfo, bool) {
	c, ok := r.byName[name]
	return c, ok
}

func (r *Registry) GetByID(id uint32) (ChainInfo, bool) {
	c, ok := r.byID[id]
	return c, ok
}

func (r *Registry) Known(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// NameOf returns the registered name of id, or a placeholder that no
// validator accepts as a known chain.
func (r *Registry) NameOf(id uint32) string {
	if c, ok := r.byID[id]; ok {
		return c.Name
	}
	return fmt.Sprintf("unknown-%d", id)
}

func (r *Registry) Chains() []ChainInfo {
	out := make([]ChainInfo, 0, len(r.byName))
	for _, c := range r.byName {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
