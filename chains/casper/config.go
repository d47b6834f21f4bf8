package casper

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/knotx-labs/knotx-relayer/codec"
	"github.com/knotx-labs/knotx-relayer/core"
)

const (
	DefaultPaymentAmount         = 5_000_000_000
	DefaultGasPrice              = 1
	DefaultDeployTTL             = 30 * time.Minute
	DefaultPollInterval          = 10 * time.Second
	DefaultFinalityPollInterval  = 5 * time.Second
	DefaultFinalityMaxPolls      = 60
	DefaultMaxDeadLetterAttempts = 5
)

// ChainConfig holds the settings of a Casper chain.
type ChainConfig struct {
	// RPCURLs are tried in order; a failing endpoint rotates to the next one.
	RPCURLs []string `yaml:"rpc_urls" json:"rpc_urls"`
	// APIKeys pair with RPCURLs by position.
	APIKeys           []string      `yaml:"api_keys" json:"api_keys"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
	// NetworkName is the chain_name of deploys, e.g. "casper-test".
	NetworkName string `yaml:"network_name" json:"network_name"`

	// AccountKeyAlgorithm is "ed25519" or "secp256k1".
	AccountKeyAlgorithm string `yaml:"account_key_algorithm" json:"account_key_algorithm"`
	// PrivateKey is the hex account key that pays for deploys. Without it the chain is a source only.
	PrivateKey string `yaml:"private_key" json:"private_key"`
	// RelayerKey is the hex secp256k1 key that signs messages.
	RelayerKey string `yaml:"relayer_key" json:"relayer_key"`
	// RelayerPublicKey is the key registered in the gateway contract. Defaults to the one of RelayerKey.
	RelayerPublicKey string `yaml:"relayer_public_key" json:"relayer_public_key"`

	PaymentAmount         uint64        `yaml:"payment_amount" json:"payment_amount"`
	GasPrice              uint64        `yaml:"gas_price" json:"gas_price"`
	TTL                   time.Duration `yaml:"ttl" json:"ttl"`
	PollInterval          time.Duration `yaml:"poll_interval" json:"poll_interval"`
	FinalityPollInterval  time.Duration `yaml:"finality_poll_interval" json:"finality_poll_interval"`
	FinalityMaxPolls      uint          `yaml:"finality_max_polls" json:"finality_max_polls"`
	WireMode              string        `yaml:"wire_mode" json:"wire_mode"`
	MaxDeadLetterAttempts int           `yaml:"max_dead_letter_attempts" json:"max_dead_letter_attempts"`
	DisableListener       bool          `yaml:"disable_listener" json:"disable_listener"`
}

var _ core.ChainConfig = (*ChainConfig)(nil)

func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		RequestsPerSecond:     DefaultRequestsPerSecond,
		RequestTimeout:        DefaultRequestTimeout,
		AccountKeyAlgorithm:   AlgorithmEd25519,
		PaymentAmount:         DefaultPaymentAmount,
		GasPrice:              DefaultGasPrice,
		TTL:                   DefaultDeployTTL,
		PollInterval:          DefaultPollInterval,
		FinalityPollInterval:  DefaultFinalityPollInterval,
		FinalityMaxPolls:      DefaultFinalityMaxPolls,
		WireMode:              codec.WireLegacy.String(),
		MaxDeadLetterAttempts: DefaultMaxDeadLetterAttempts,
	}
}

func (c ChainConfig) Kind() core.ChainKind {
	return core.ChainKindCasper
}

func (c ChainConfig) Validate() error {
	var errs []error
	if len(c.RPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("config attribute \"rpc_urls\" is empty"))
	}
	for i, u := range c.RPCURLs {
		if strings.TrimSpace(u) == "" {
			errs = append(errs, fmt.Errorf("config attribute \"rpc_urls[%d]\" is empty", i))
		}
	}
	if len(c.APIKeys) > len(c.RPCURLs) {
		errs = append(errs, fmt.Errorf("config attribute \"api_keys\" has %d entries for %d urls", len(c.APIKeys), len(c.RPCURLs)))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("config attribute \"poll_interval\" must be positive: %v", c.PollInterval))
	}
	if _, err := codec.ParseWireMode(c.WireMode); err != nil {
		errs = append(errs, fmt.Errorf("config attribute \"wire_mode\" is invalid: %w", err))
	}
	if c.PrivateKey != "" {
		if strings.TrimSpace(c.NetworkName) == "" {
			errs = append(errs, fmt.Errorf("config attribute \"network_name\" is empty"))
		}
		if _, err := ParseAccountKey(c.AccountKeyAlgorithm, c.PrivateKey); err != nil {
			errs = append(errs, fmt.Errorf("config attribute \"private_key\" is invalid: %w", err))
		}
		if c.RelayerKey == "" {
			errs = append(errs, fmt.Errorf("config attribute \"relayer_key\" is empty"))
		} else if _, err := ParseRelayerSigner(c.RelayerKey, c.RelayerPublicKey); err != nil {
			errs = append(errs, fmt.Errorf("config attribute \"relayer_key\" is invalid: %w", err))
		}
		if c.PaymentAmount == 0 {
			errs = append(errs, fmt.Errorf("config attribute \"payment_amount\" is zero"))
		}
		if c.FinalityMaxPolls == 0 {
			errs = append(errs, fmt.Errorf("config attribute \"finality_max_polls\" is zero"))
		}
	}
	if c.PrivateKey == "" && c.DisableListener {
		errs = append(errs, fmt.Errorf("chain has neither a listener nor a private key"))
	}
	return errors.Join(errs...)
}

// Build returns the listener and, when a private key is set, the executor of the chain.
func (c ChainConfig) Build(deps core.ChainDeps) (*core.ChainComponents, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	contract, err := ParseContractHash(deps.Info.Gateway)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway of %s: %w", deps.Info.Name, err)
	}
	mode, err := codec.ParseWireMode(c.WireMode)
	if err != nil {
		return nil, err
	}
	client, err := NewClient(PairEndpoints(c.RPCURLs, c.APIKeys), c.RequestsPerSecond, c.RequestTimeout)
	if err != nil {
		return nil, err
	}

	comps := &core.ChainComponents{DefaultGateway: deps.Info.Gateway}
	if !c.DisableListener {
		comps.Listener = NewListener(deps.Info, contract, client, deps.Registry, deps.Cursors, deps.DeadLetters, ListenerConfig{
			PollInterval:          c.PollInterval,
			WireMode:              mode,
			MaxDeadLetterAttempts: c.MaxDeadLetterAttempts,
		})
	}

	if c.PrivateKey != "" {
		account, relayer, err := c.Keys()
		if err != nil {
			return nil, err
		}
		comps.Executor, err = NewExecutor(deps.Info, contract, client, deps.Registry, account, relayer, ExecutorConfig{
			NetworkName:          c.NetworkName,
			PaymentAmount:        new(big.Int).SetUint64(c.PaymentAmount),
			GasPrice:             c.GasPrice,
			TTL:                  c.TTL,
			FinalityPollInterval: c.FinalityPollInterval,
			FinalityMaxPolls:     c.FinalityMaxPolls,
			Retry:                deps.Retry,
		})
		if err != nil {
			return nil, err
		}
	}
	return comps, nil
}

// Keys returns the deploy account key and the message signer.
func (c ChainConfig) Keys() (AccountKey, *RelayerSigner, error) {
	account, err := ParseAccountKey(c.AccountKeyAlgorithm, c.PrivateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid private key: %w", err)
	}
	relayer, err := ParseRelayerSigner(c.RelayerKey, c.RelayerPublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid relayer key: %w", err)
	}
	return account, relayer, nil
}

// ParseContractHash accepts "hash-<hex>", "0x<hex>" or bare hex of 32 bytes.
func ParseContractHash(s string) ([32]byte, error) {
	var h [32]byte
	s = strings.TrimPrefix(strings.TrimSpace(s), "hash-")
	raw, err := decodeHex(s)
	if err != nil {
		return h, err
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("contract hash is %d bytes", len(raw))
	}
	copy(h[:], raw)
	return h, nil
}
