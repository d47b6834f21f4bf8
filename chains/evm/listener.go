package evm

import (
	"context"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/knotx-labs/knotx-relayer/log"
)

// LogBackend is the part of an EVM client the listener needs.
type LogBackend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// splitBackend queries over one client and subscribes over another.
type splitBackend struct {
	LogBackend
	subscriber LogBackend
}

func (b *splitBackend) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return b.subscriber.SubscribeFilterLogs(ctx, q, ch)
}

type ListenerConfig struct {
	StartBlock     uint64
	BackfillWindow uint64
	PollInterval   time.Duration
}

// Listener turns MessageSent logs of the gateway contract into messages.
//
// The cursor is the highest block whose logs have all been acknowledged.
type Listener struct {
	chain    core.ChainInfo
	gateway  common.Address
	backend  LogBackend
	registry *core.Registry
	cursors  core.CursorStore
	config   ListenerConfig
	now      func() time.Time
	logger   *log.RelayLogger
}

var _ core.Listener = (*Listener)(nil)

func NewListener(chain core.ChainInfo, gateway common.Address, backend LogBackend, registry *core.Registry, cursors core.CursorStore, cfg ListenerConfig) *Listener {
	if cfg.BackfillWindow == 0 {
		cfg.BackfillWindow = DefaultBackfillWindow
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Listener{
		chain:    chain,
		gateway:  gateway,
		backend:  backend,
		registry: registry,
		cursors:  cursors,
		config:   cfg,
		now:      time.Now,
		logger:   core.GetChainLogger(chain.Name, "evm.listener"),
	}
}

func (l *Listener) ChainName() string {
	return l.chain.Name
}

func (l *Listener) Listen(ctx context.Context) <-chan *core.Emission {
	out := make(chan *core.Emission)
	go func() {
		defer close(out)
		l.run(ctx, out)
	}()
	return out
}

func (l *Listener) run(ctx context.Context, out chan<- *core.Emission) {
	subscribe := true
	for {
		var err error
		if subscribe {
			err = l.watch(ctx, out)
			if errors.Is(err, rpc.ErrNotificationsUnsupported) {
				l.logger.Info("log subscriptions are not supported; falling back to polling")
				subscribe = false
				continue
			}
		} else {
			err = l.backfill(ctx, out)
		}
		if err != nil && ctx.Err() == nil {
			l.logger.Error("failed to process logs", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.config.PollInterval):
		}
	}
}

func (l *Listener) query(from, to *big.Int) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: from,
		ToBlock:   to,
		Addresses: []common.Address{l.gateway},
		Topics:    [][]common.Hash{{GatewayABI.Events[messageSentEvent].ID}},
	}
}

// backfill pages through logs from the cursor to the head in bounded windows
// until the head stops moving.
func (l *Listener) backfill(ctx context.Context, out chan<- *core.Emission) error {
	for {
		cursor, err := l.cursors.LoadCursor(ctx, l.chain.Name)
		if err != nil {
			return err
		}
		from := cursor.Position + 1
		if from < l.config.StartBlock {
			from = l.config.StartBlock
		}
		head, err := l.backend.BlockNumber(ctx)
		if err != nil {
			return core.MarkTransient(errors.Wrap(err, "failed to get head block"))
		}
		if from > head {
			return nil
		}
		for from <= head {
			to := from + l.config.BackfillWindow - 1
			if to > head {
				to = head
			}
			logs, err := l.backend.FilterLogs(ctx, l.query(new(big.Int).SetUint64(from), new(big.Int).SetUint64(to)))
			if err != nil {
				return core.MarkTransient(errors.Wrapf(err, "failed to filter logs [%d, %d]", from, to))
			}
			for _, lg := range logs {
				if err := l.handle(ctx, out, lg); err != nil {
					return err
				}
			}
			if err := l.advance(ctx, to); err != nil {
				return err
			}
			l.logger.Debug("backfilled logs", "from", from, "to", to, "logs", len(logs))
			from = to + 1
		}
	}
}

// watch subscribes to live logs, closes the gap since the cursor and then
// follows the subscription until it fails or ctx is done. Logs that arrive
// during the backfill are buffered by the subscription and may repeat
// backfilled ones.
func (l *Listener) watch(ctx context.Context, out chan<- *core.Emission) error {
	ch := make(chan types.Log)
	sub, err := l.backend.SubscribeFilterLogs(ctx, l.query(nil, nil), ch)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	if err := l.backfill(ctx, out); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			if err == nil {
				return errors.New("log subscription closed")
			}
			return core.MarkTransient(errors.Wrap(err, "log subscription failed"))
		case lg := <-ch:
			if err := l.handleLive(ctx, out, lg); err != nil {
				return err
			}
		}
	}
}

func (l *Listener) handleLive(ctx context.Context, out chan<- *core.Emission, lg types.Log) error {
	if err := l.handle(ctx, out, lg); err != nil {
		return err
	}
	// other logs of the same block may still follow
	if lg.BlockNumber > 0 {
		return l.advance(ctx, lg.BlockNumber-1)
	}
	return nil
}

func (l *Listener) handle(ctx context.Context, out chan<- *core.Emission, lg types.Log) error {
	if lg.Removed {
		l.logger.Warn("skipping removed log", "tx_hash", lg.TxHash.Hex(), "block", lg.BlockNumber)
		return nil
	}
	msg, err := l.decode(lg)
	if err != nil {
		l.logger.Error("failed to decode log", err, "tx_hash", lg.TxHash.Hex(), "block", lg.BlockNumber)
		return nil
	}
	if err := core.Emit(ctx, out, msg); err != nil {
		return errors.Wrapf(err, "message %s was not admitted", msg.MessageID)
	}
	return nil
}

func (l *Listener) decode(lg types.Log) (*core.CanonicalMessage, error) {
	ev, err := DecodeMessageSent(lg)
	if err != nil {
		return nil, err
	}
	dst, ok := l.registry.GetByID(ev.DstChainId)
	if !ok {
		// left for the validator to reject
		dst = core.ChainInfo{Name: l.registry.NameOf(ev.DstChainId)}
	}
	msg := core.NewCanonicalMessage(l.chain, dst, ev.Nonce, ev.Sender, ev.Receiver, ev.Payload, l.now())
	msg.SourceTxHash = lg.TxHash.Hex()
	msg.SourceBlock = lg.BlockNumber
	return msg, nil
}

func (l *Listener) advance(ctx context.Context, block uint64) error {
	if err := l.cursors.AdvanceCursor(ctx, l.chain.Name, block); err != nil {
		return err
	}
	core.RecordCursor(l.chain.Name, block)
	return nil
}

// DecodeMessageSent decodes the typed arguments of a MessageSent log.
func DecodeMessageSent(lg types.Log) (*MessageSent, error) {
	event := GatewayABI.Events[messageSentEvent]
	if len(lg.Topics) != 2 || lg.Topics[0] != event.ID {
		return nil, errors.Newf("log is not a %s event", messageSentEvent)
	}
	var ev MessageSent
	if err := GatewayABI.UnpackIntoInterface(&ev, messageSentEvent, lg.Data); err != nil {
		return nil, errors.Wrap(err, "failed to unpack log data")
	}
	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopics(&ev, indexed, lg.Topics[1:]); err != nil {
		return nil, errors.Wrap(err, "failed to parse log topics")
	}
	return &ev, nil
}
