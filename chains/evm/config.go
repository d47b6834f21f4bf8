package evm

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/knotx-labs/knotx-relayer/core"
)

const (
	DefaultBackfillWindow = 1000
	DefaultPollInterval   = 15 * time.Second
	DefaultReceiptTimeout = 5 * time.Minute
)

// ChainConfig holds the settings of an EVM chain.
type ChainConfig struct {
	RPCURL string `yaml:"rpc_url" json:"rpc_url"`
	// WSURL enables live log subscriptions. Without it the listener polls.
	WSURL string `yaml:"ws_url" json:"ws_url"`
	// EVMChainID is the EIP-155 chain id used to sign transactions. Defaults to the numeric chain id.
	EVMChainID uint64 `yaml:"evm_chain_id" json:"evm_chain_id"`
	// PrivateKey is the hex key that pays for executeMessage transactions.
	// Without it the chain is a source only.
	PrivateKey string `yaml:"private_key" json:"private_key"`
	// RelayerKey is the hex key that signs message hashes. Defaults to PrivateKey.
	RelayerKey string `yaml:"relayer_key" json:"relayer_key"`
	// RelayerAddress is the signer registered in the gateway contract.
	RelayerAddress string `yaml:"relayer_address" json:"relayer_address"`

	StartBlock      uint64        `yaml:"start_block" json:"start_block"`
	BackfillWindow  uint64        `yaml:"backfill_window" json:"backfill_window"`
	PollInterval    time.Duration `yaml:"poll_interval" json:"poll_interval"`
	Simulate        bool          `yaml:"simulate" json:"simulate"`
	GasLimit        uint64        `yaml:"gas_limit" json:"gas_limit"`
	ReceiptTimeout  time.Duration `yaml:"receipt_timeout" json:"receipt_timeout"`
	DisableListener bool          `yaml:"disable_listener" json:"disable_listener"`
}

var _ core.ChainConfig = (*ChainConfig)(nil)

func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		BackfillWindow: DefaultBackfillWindow,
		PollInterval:   DefaultPollInterval,
		ReceiptTimeout: DefaultReceiptTimeout,
		Simulate:       true,
	}
}

func (c ChainConfig) Kind() core.ChainKind {
	return core.ChainKindEVM
}

func (c ChainConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.RPCURL) == "" {
		errs = append(errs, fmt.Errorf("config attribute \"rpc_url\" is empty"))
	}
	if c.BackfillWindow == 0 {
		errs = append(errs, fmt.Errorf("config attribute \"backfill_window\" is zero"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("config attribute \"poll_interval\" must be positive: %v", c.PollInterval))
	}
	if c.PrivateKey != "" {
		if _, err := parseKey(c.PrivateKey); err != nil {
			errs = append(errs, fmt.Errorf("config attribute \"private_key\" is invalid: %w", err))
		}
	}
	if c.RelayerKey != "" {
		if _, err := parseKey(c.RelayerKey); err != nil {
			errs = append(errs, fmt.Errorf("config attribute \"relayer_key\" is invalid: %w", err))
		}
	}
	if c.RelayerAddress != "" && !common.IsHexAddress(c.RelayerAddress) {
		errs = append(errs, fmt.Errorf("config attribute \"relayer_address\" is not an address: %s", c.RelayerAddress))
	}
	if c.PrivateKey == "" && c.DisableListener {
		errs = append(errs, fmt.Errorf("chain has neither a listener nor a private key"))
	}
	return errors.Join(errs...)
}

// Build dials the configured endpoints and returns the listener and, when a
// private key is set, the executor of the chain.
func (c ChainConfig) Build(deps core.ChainDeps) (*core.ChainComponents, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	client, err := ethclient.Dial(c.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.RPCURL, err)
	}
	gateway := common.HexToAddress(deps.Info.Gateway)

	comps := &core.ChainComponents{DefaultGateway: deps.Info.Gateway}
	if !c.DisableListener {
		var logs LogBackend = client
		if c.WSURL != "" {
			ws, err := ethclient.Dial(c.WSURL)
			if err != nil {
				return nil, fmt.Errorf("failed to dial %s: %w", c.WSURL, err)
			}
			logs = &splitBackend{LogBackend: client, subscriber: ws}
		}
		comps.Listener = NewListener(deps.Info, gateway, logs, deps.Registry, deps.Cursors, ListenerConfig{
			StartBlock:     c.StartBlock,
			BackfillWindow: c.BackfillWindow,
			PollInterval:   c.PollInterval,
		})
	}

	if c.PrivateKey != "" {
		signer, txKey, err := c.Keys()
		if err != nil {
			return nil, err
		}
		comps.Executor, err = NewExecutor(deps.Info, gateway, client, deps.Registry, signer, txKey, ExecutorConfig{
			EVMChainID:     c.chainID(deps.Info),
			Simulate:       c.Simulate,
			GasLimit:       c.GasLimit,
			ReceiptTimeout: c.ReceiptTimeout,
			Retry:          deps.Retry,
		})
		if err != nil {
			return nil, err
		}
	}
	return comps, nil
}

// Keys returns the message signer and the transaction key.
func (c ChainConfig) Keys() (*Signer, *ecdsa.PrivateKey, error) {
	txKey, err := parseKey(c.PrivateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid private key: %w", err)
	}
	relayerKey := txKey
	if c.RelayerKey != "" {
		if relayerKey, err = parseKey(c.RelayerKey); err != nil {
			return nil, nil, fmt.Errorf("invalid relayer key: %w", err)
		}
	}
	var relayer common.Address
	if c.RelayerAddress != "" {
		relayer = common.HexToAddress(c.RelayerAddress)
	}
	return NewSigner(relayerKey, relayer), txKey, nil
}

func (c ChainConfig) chainID(info core.ChainInfo) *big.Int {
	if c.EVMChainID != 0 {
		return new(big.Int).SetUint64(c.EVMChainID)
	}
	return new(big.Int).SetUint64(uint64(info.NumericID))
}

func parseKey(s string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
}
