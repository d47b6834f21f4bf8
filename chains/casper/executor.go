package casper

import (
	"context"
	"encoding/hex"
	"math/big"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/cockroachdb/errors"
	"github.com/knotx-labs/knotx-relayer/codec"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/knotx-labs/knotx-relayer/log"
	"golang.org/x/crypto/blake2b"
)

const (
	executeMessageEntryPoint = "execute_message"
	executedDictionary       = "executed_messages"
)

var errNotExecuted = errors.New("deploy is not executed yet")

// DeployClient is the part of a Casper node the executor needs.
type DeployClient interface {
	StateRootHash(ctx context.Context) (string, error)
	DictionaryItem(ctx context.Context, stateRoot string, contract [32]byte, dictionary, key string) ([]byte, error)
	PutDeploy(ctx context.Context, d *Deploy) (string, error)
	GetDeploy(ctx context.Context, hash string) (*DeployStatus, error)
}

type ExecutorConfig struct {
	NetworkName          string
	PaymentAmount        *big.Int
	GasPrice             uint64
	TTL                  time.Duration
	FinalityPollInterval time.Duration
	FinalityMaxPolls     uint
	Retry                core.RetryPolicy
}

// Executor submits execute_message deploys to the gateway contract.
type Executor struct {
	chain    core.ChainInfo
	contract [32]byte
	client   DeployClient
	registry *core.Registry
	account  AccountKey
	relayer  *RelayerSigner
	config   ExecutorConfig
	now      func() time.Time
	logger   *log.RelayLogger
}

var (
	_ core.Executor        = (*Executor)(nil)
	_ core.DeliveryChecker = (*Executor)(nil)
)

func NewExecutor(chain core.ChainInfo, contract [32]byte, client DeployClient, registry *core.Registry, account AccountKey, relayer *RelayerSigner, cfg ExecutorConfig) (*Executor, error) {
	if account == nil || relayer == nil {
		return nil, errors.New("executor needs an account key and a relayer key")
	}
	if cfg.NetworkName == "" {
		return nil, errors.New("executor needs a network name")
	}
	if cfg.PaymentAmount == nil || cfg.PaymentAmount.Sign() <= 0 {
		cfg.PaymentAmount = big.NewInt(DefaultPaymentAmount)
	}
	if cfg.GasPrice == 0 {
		cfg.GasPrice = DefaultGasPrice
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultDeployTTL
	}
	if cfg.FinalityPollInterval <= 0 {
		cfg.FinalityPollInterval = DefaultFinalityPollInterval
	}
	if cfg.FinalityMaxPolls == 0 {
		cfg.FinalityMaxPolls = DefaultFinalityMaxPolls
	}
	return &Executor{
		chain:    chain,
		contract: contract,
		client:   client,
		registry: registry,
		account:  account,
		relayer:  relayer,
		config:   cfg,
		now:      time.Now,
		logger:   core.GetChainLogger(chain.Name, "casper.executor"),
	}, nil
}

func (e *Executor) ChainName() string {
	return e.chain.Name
}

// Execute signs msg with the relayer key, submits an execute_message deploy
// and polls until the deploy has been executed.
func (e *Executor) Execute(ctx context.Context, msg *core.CanonicalMessage) (*core.ExecutionResult, error) {
	logger := e.logger.WithMessage(msg.MessageID, msg.Nonce)

	srcID, raw, err := e.wireBytes(msg)
	if err != nil {
		return nil, err
	}
	sig, err := e.relayer.Sign(raw)
	if err != nil {
		return nil, err
	}
	wire := msg.WireMessage(srcID, e.chain.NumericID)
	deploy := NewDeploy(
		e.account.PublicKey(),
		e.config.NetworkName,
		e.now(),
		e.config.TTL,
		e.config.GasPrice,
		StandardPayment(e.config.PaymentAmount),
		StoredContractByHash{
			Hash:       e.contract,
			EntryPoint: executeMessageEntryPoint,
			Args: RuntimeArgs{
				{Name: "src_chain_id", Value: U32Value(srcID)},
				{Name: "src_gateway", Value: BytesValue(wire.SrcGateway[:])},
				{Name: "receiver", Value: BytesValue(wire.Receiver[:])},
				{Name: "nonce", Value: U64Value(msg.Nonce)},
				{Name: "payload", Value: BytesValue(msg.Payload)},
				{Name: "signature", Value: BytesValue(sig)},
			},
		},
	)
	if err := deploy.Sign(e.account); err != nil {
		return nil, err
	}

	var hash string
	err = e.config.Retry.Do(ctx, func() error {
		var err error
		hash, err = e.client.PutDeploy(ctx, deploy)
		return err
	}, func(n uint, delay time.Duration, err error) {
		logger.Warn("retrying deploy submission", "try", n+1, "delay", delay, "error", err)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to submit deploy")
	}
	if hash != deploy.HashHex() {
		logger.Warn("node returned a different deploy hash", "expected", deploy.HashHex(), "actual", hash)
	}
	logger.Info("submitted deploy", "deploy_hash", hash)

	status, err := e.waitExecuted(ctx, hash)
	if err != nil {
		return nil, err
	}
	if status.ErrorMessage != "" {
		return nil, core.Mark(
			errors.Newf("deploy %s failed: %s", hash, status.ErrorMessage),
			core.ErrExecutionReverted,
		)
	}
	return &core.ExecutionResult{TransactionHash: hash}, nil
}

// waitExecuted polls the deploy at a fixed interval until it has an execution
// result. Lookup errors count as not yet executed.
func (e *Executor) waitExecuted(ctx context.Context, hash string) (*DeployStatus, error) {
	var (
		status *DeployStatus
		polls  int
	)
	err := retry.Do(func() error {
		polls++
		st, err := e.client.GetDeploy(ctx, hash)
		if err != nil {
			return err
		}
		if !st.Executed {
			return errNotExecuted
		}
		status = st
		return nil
	},
		retry.Attempts(e.config.FinalityMaxPolls),
		retry.Delay(e.config.FinalityPollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	core.RecordFinalityPolls(ctx, e.chain.Name, polls)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.Mark(
			errors.Wrapf(err, "deploy %s not executed after %d polls", hash, polls),
			core.ErrFinalityTimeout,
		)
	}
	return status, nil
}

// IsDelivered reports whether the gateway contract has recorded msg as executed.
func (e *Executor) IsDelivered(ctx context.Context, msg *core.CanonicalMessage) (bool, error) {
	_, raw, err := e.wireBytes(msg)
	if err != nil {
		return false, err
	}
	root, err := e.client.StateRootHash(ctx)
	if err != nil {
		return false, err
	}
	_, err = e.client.DictionaryItem(ctx, root, e.contract, executedDictionary, ExecutedKey(raw))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, core.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (e *Executor) wireBytes(msg *core.CanonicalMessage) (uint32, []byte, error) {
	src, ok := e.registry.Get(msg.SourceChain)
	if !ok {
		return 0, nil, errors.Newf("source chain %q is not registered", msg.SourceChain)
	}
	return src.NumericID, codec.Encode(msg.WireMessage(src.NumericID, e.chain.NumericID)), nil
}

// ExecutedKey is the executed_messages dictionary key of a wire record.
func ExecutedKey(raw []byte) string {
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
