package evm

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/knotx-labs/knotx-relayer/log"
)

// Backend is the part of an EVM client the executor needs.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

type ExecutorConfig struct {
	EVMChainID     *big.Int
	Simulate       bool
	GasLimit       uint64
	ReceiptTimeout time.Duration
	Retry          core.RetryPolicy
}

// Executor submits executeMessage transactions to the gateway contract.
type Executor struct {
	chain    core.ChainInfo
	gateway  common.Address
	backend  Backend
	contract *bind.BoundContract
	registry *core.Registry
	signer   *Signer
	txKey    *ecdsa.PrivateKey
	config   ExecutorConfig
	logger   *log.RelayLogger

	// serializes nonce assignment of concurrent submissions
	sendMu sync.Mutex
}

var _ core.Executor = (*Executor)(nil)

func NewExecutor(chain core.ChainInfo, gateway common.Address, backend Backend, registry *core.Registry, signer *Signer, txKey *ecdsa.PrivateKey, cfg ExecutorConfig) (*Executor, error) {
	if cfg.EVMChainID == nil {
		cfg.EVMChainID = new(big.Int).SetUint64(uint64(chain.NumericID))
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = DefaultReceiptTimeout
	}
	if signer == nil || txKey == nil {
		return nil, errors.New("executor needs a signer and a transaction key")
	}
	return &Executor{
		chain:    chain,
		gateway:  gateway,
		backend:  backend,
		contract: bind.NewBoundContract(gateway, GatewayABI, backend, backend, backend),
		registry: registry,
		signer:   signer,
		txKey:    txKey,
		config:   cfg,
		logger:   core.GetChainLogger(chain.Name, "evm.executor"),
	}, nil
}

func (e *Executor) ChainName() string {
	return e.chain.Name
}

// Execute signs msg, optionally simulates the call, submits it and waits for the receipt.
func (e *Executor) Execute(ctx context.Context, msg *core.CanonicalMessage) (*core.ExecutionResult, error) {
	logger := e.logger.WithMessage(msg.MessageID, msg.Nonce)

	src, ok := e.registry.Get(msg.SourceChain)
	if !ok {
		return nil, errors.Newf("source chain %q is not registered", msg.SourceChain)
	}
	hash, err := MessageHash(src.NumericID, e.chain.NumericID, msg.Sender, msg.Receiver, msg.Nonce, msg.Payload)
	if err != nil {
		return nil, err
	}
	sig, err := e.signer.Sign(hash)
	if err != nil {
		return nil, err
	}
	args := []any{src.NumericID, nonNil(msg.Sender), nonNil(msg.Receiver), msg.Nonce, nonNil(msg.Payload), sig}

	if e.config.Simulate {
		if err := e.simulate(ctx, nil, args); err != nil {
			return nil, err
		}
	}

	var tx *types.Transaction
	err = e.config.Retry.Do(ctx, func() error {
		var err error
		tx, err = e.send(ctx, args)
		return err
	}, func(n uint, delay time.Duration, err error) {
		logger.Warn("retrying executeMessage submission", "try", n+1, "delay", delay, "error", err)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to submit executeMessage")
	}
	logger.Info("submitted executeMessage", "tx_hash", tx.Hash().Hex(), "message_hash", hash.Hex())

	waitCtx, cancel := context.WithTimeout(ctx, e.config.ReceiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, e.backend, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, core.Mark(errors.Wrapf(err, "no receipt for %s", tx.Hash().Hex()), core.ErrFinalityTimeout)
		}
		return nil, errors.Wrapf(err, "failed to wait for %s", tx.Hash().Hex())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		reason := "unknown reason"
		if err := e.simulate(ctx, receipt.BlockNumber, args); err != nil {
			reason = err.Error()
		}
		return nil, core.Mark(
			errors.Newf("transaction %s reverted: %s", tx.Hash().Hex(), reason),
			core.ErrExecutionReverted,
		)
	}
	return &core.ExecutionResult{
		TransactionHash: tx.Hash().Hex(),
		BlockNumber:     receipt.BlockNumber.Uint64(),
	}, nil
}

func (e *Executor) send(ctx context.Context, args []any) (*types.Transaction, error) {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	opts, err := bind.NewKeyedTransactorWithChainID(e.txKey, e.config.EVMChainID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create transactor")
	}
	opts.Context = ctx
	opts.GasLimit = e.config.GasLimit
	tx, err := e.contract.Transact(opts, executeMessageMethod, args...)
	if err != nil {
		return nil, classifySendError(err)
	}
	return tx, nil
}

// simulate calls executeMessage read-only at block (nil for latest) and returns
// the decoded revert reason, if any, marked ErrExecutionReverted.
func (e *Executor) simulate(ctx context.Context, block *big.Int, args []any) error {
	opts := &bind.CallOpts{
		Context:     ctx,
		From:        crypto.PubkeyToAddress(e.txKey.PublicKey),
		BlockNumber: block,
	}
	var out []any
	err := e.contract.Call(opts, &out, executeMessageMethod, args...)
	if err == nil {
		return nil
	}
	if core.IsTransient(err) {
		// the node could not simulate; submit anyway
		e.logger.Warn("simulation unavailable", "error", err)
		return nil
	}
	return core.Mark(errors.Newf("simulation failed: %s", revertReason(err)), core.ErrExecutionReverted)
}

// revertReason extracts the Error(string) reason from a call error when the node returned revert data.
func revertReason(err error) string {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if data, derr := hexutil.Decode(s); derr == nil {
				if reason, uerr := abi.UnpackRevert(data); uerr == nil {
					return reason
				}
			}
		}
	}
	return err.Error()
}

func classifySendError(err error) error {
	msg := strings.ToLower(err.Error())
	if core.IsTransient(err) ||
		strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "replacement transaction underpriced") {
		return core.MarkTransient(err)
	}
	return err
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
