package evm_test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/knotx-labs/knotx-relayer/chains/evm"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// revertError mimics the JSON-RPC error a node returns for a reverted call.
type revertError struct {
	data string
}

func (e *revertError) Error() string          { return "execution reverted" }
func (e *revertError) ErrorCode() int         { return 3 }
func (e *revertError) ErrorData() interface{} { return e.data }

func revertData(t *testing.T, reason string) string {
	t.Helper()
	typ, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	enc, err := abi.Arguments{{Type: typ}}.Pack(reason)
	require.NoError(t, err)
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return hexutil.Encode(append(selector, enc...))
}

// contractBackend accepts every transaction and mines it with receiptStatus.
type contractBackend struct {
	*logBackend

	mu            sync.Mutex
	callErr       error
	sendErrs      []error
	sent          []*types.Transaction
	receiptStatus uint64
}

func newContractBackend() *contractBackend {
	return &contractBackend{logBackend: newLogBackend(0, false), receiptStatus: types.ReceiptStatusSuccessful}
}

func (b *contractBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (b *contractBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return nil, b.callErr
}

func (b *contractBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(6)}, nil
}

func (b *contractBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (b *contractBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint64(len(b.sent)), nil
}

func (b *contractBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *contractBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *contractBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 200_000, nil
}

func (b *contractBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sendErrs) > 0 {
		err := b.sendErrs[0]
		b.sendErrs = b.sendErrs[1:]
		return err
	}
	b.sent = append(b.sent, tx)
	return nil
}

func (b *contractBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tx := range b.sent {
		if tx.Hash() == hash {
			return &types.Receipt{Status: b.receiptStatus, TxHash: hash, BlockNumber: big.NewInt(7)}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (b *contractBackend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.sent...)
}

func newTestExecutor(t *testing.T, backend evm.Backend, signer *evm.Signer, key *ecdsa.PrivateKey) *evm.Executor {
	t.Helper()
	e, err := evm.NewExecutor(sepolia, gateway, backend, testRegistry(t), signer, key, evm.ExecutorConfig{
		Simulate: true,
		GasLimit: 300_000,
		Retry:    core.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond, BackoffMultiplier: 2},
	})
	require.NoError(t, err)
	return e
}

func casperMessage(nonce uint64) *core.CanonicalMessage {
	return core.NewCanonicalMessage(casper, sepolia, nonce,
		bytes.Repeat([]byte{0x01}, 32),
		bytes.Repeat([]byte{0x02}, 20),
		[]byte("1"),
		time.Now(),
	)
}

func TestExecutorSubmitsSignedMessage(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	backend := newContractBackend()
	e := newTestExecutor(t, backend, evm.NewSigner(key, common.Address{}), key)

	msg := casperMessage(4)
	res, err := e.Execute(context.Background(), msg)
	require.NoError(t, err)

	sent := backend.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, sent[0].Hash().Hex(), res.TransactionHash)
	assert.Equal(t, uint64(7), res.BlockNumber)
	assert.Equal(t, gateway, *sent[0].To())
	assert.Equal(t, uint64(300_000), sent[0].Gas())

	method := evm.GatewayABI.Methods["executeMessage"]
	assert.Equal(t, method.ID, sent[0].Data()[:4])
	args, err := method.Inputs.Unpack(sent[0].Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, casper.NumericID, args[0])
	assert.Equal(t, msg.Sender, args[1])
	assert.Equal(t, msg.Receiver, args[2])
	assert.Equal(t, uint64(4), args[3])
	assert.Equal(t, msg.Payload, args[4])

	hash, err := evm.MessageHash(casper.NumericID, sepolia.NumericID, msg.Sender, msg.Receiver, msg.Nonce, msg.Payload)
	require.NoError(t, err)
	signer, err := evm.RecoverSigner(hash, args[5].([]byte))
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)
}

func TestExecutorSelfCheckFailure(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	backend := newContractBackend()
	e := newTestExecutor(t, backend, evm.NewSigner(key, common.HexToAddress("0x1111111111111111111111111111111111111111")), key)

	_, err = e.Execute(context.Background(), casperMessage(0))
	assert.ErrorIs(t, err, core.ErrSignatureSelfCheck)
	assert.Empty(t, backend.Sent())
}

func TestExecutorSimulationRevert(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	backend := newContractBackend()
	backend.callErr = &revertError{data: revertData(t, "message already executed")}
	e := newTestExecutor(t, backend, evm.NewSigner(key, common.Address{}), key)

	_, err = e.Execute(context.Background(), casperMessage(0))
	assert.ErrorIs(t, err, core.ErrExecutionReverted)
	assert.Contains(t, err.Error(), "message already executed")
	assert.Empty(t, backend.Sent())
}

func TestExecutorRevertedReceipt(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	backend := newContractBackend()
	backend.receiptStatus = types.ReceiptStatusFailed
	e := newTestExecutor(t, backend, evm.NewSigner(key, common.Address{}), key)

	_, err = e.Execute(context.Background(), casperMessage(0))
	assert.ErrorIs(t, err, core.ErrExecutionReverted)
	assert.Len(t, backend.Sent(), 1)
}

func TestExecutorRetriesTransientSendErrors(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	backend := newContractBackend()
	backend.sendErrs = []error{errors.New("503 Service Unavailable"), errors.New("connection reset by peer")}
	e := newTestExecutor(t, backend, evm.NewSigner(key, common.Address{}), key)

	_, err = e.Execute(context.Background(), casperMessage(0))
	require.NoError(t, err)
	assert.Len(t, backend.Sent(), 1)
}

func TestExecutorDoesNotRetryPermanentSendErrors(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	backend := newContractBackend()
	backend.sendErrs = []error{errors.New("insufficient funds for gas * price + value")}
	e := newTestExecutor(t, backend, evm.NewSigner(key, common.Address{}), key)

	_, err = e.Execute(context.Background(), casperMessage(0))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "insufficient funds"))
	assert.Empty(t, backend.Sent())
}
