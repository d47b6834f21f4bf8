package evm_test

import (
	"bytes"
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/knotx-labs/knotx-relayer/chains/evm"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/stretchr/testify/require"
)

var (
	gateway = common.HexToAddress("0x00000000000000000000000000000000000000ee")

	sepolia = core.ChainInfo{
		Name:      "sepolia",
		NumericID: 11155111,
		Kind:      core.ChainKindEVM,
		Gateway:   gateway.Hex(),
	}
	casper = core.ChainInfo{
		Name:      "casper-test",
		NumericID: 3,
		Kind:      core.ChainKindCasper,
		Gateway:   core.FormatGateway(core.ChainKindCasper, bytes.Repeat([]byte{0xca}, 32)),
	}
)

func testRegistry(t *testing.T) *core.Registry {
	t.Helper()
	reg, err := core.NewRegistry(sepolia, casper)
	require.NoError(t, err)
	return reg
}

func messageSentLog(t *testing.T, block, nonce uint64, dst uint32) types.Log {
	t.Helper()
	ev := evm.GatewayABI.Events["MessageSent"]
	data, err := ev.Inputs.NonIndexed().Pack(
		dst,
		bytes.Repeat([]byte{0x02}, 32),
		bytes.Repeat([]byte{0x01}, 20),
		nonce,
		[]byte("hello"),
	)
	require.NoError(t, err)
	return types.Log{
		Address:     gateway,
		Topics:      []common.Hash{ev.ID, common.BigToHash(new(big.Int).SetUint64(nonce + 1))},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block)),
	}
}

// logBackend serves a fixed set of logs and, when live is set, one subscription.
type logBackend struct {
	mu     sync.Mutex
	head   uint64
	logs   []types.Log
	ranges [][2]uint64
	live   bool

	subscribed chan chan<- types.Log
}

func newLogBackend(head uint64, live bool, logs ...types.Log) *logBackend {
	return &logBackend{head: head, logs: logs, live: live, subscribed: make(chan chan<- types.Log, 1)}
}

func (b *logBackend) BlockNumber(context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head, nil
}

func (b *logBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	b.ranges = append(b.ranges, [2]uint64{from, to})
	var out []types.Log
	for _, lg := range b.logs {
		if lg.BlockNumber >= from && lg.BlockNumber <= to {
			out = append(out, lg)
		}
	}
	return out, nil
}

func (b *logBackend) SubscribeFilterLogs(_ context.Context, _ ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	if !b.live {
		return nil, rpc.ErrNotificationsUnsupported
	}
	b.subscribed <- ch
	return &subscription{err: make(chan error)}, nil
}

func (b *logBackend) Ranges() [][2]uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][2]uint64(nil), b.ranges...)
}

type subscription struct {
	once sync.Once
	err  chan error
}

func (s *subscription) Unsubscribe() { s.once.Do(func() { close(s.err) }) }

func (s *subscription) Err() <-chan error { return s.err }
