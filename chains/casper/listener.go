package casper

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/knotx-labs/knotx-relayer/codec"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/knotx-labs/knotx-relayer/log"
)

const (
	nonceNamedKey      = "nonce"
	messagesDictionary = "messages"
)

// StateReader is the part of a Casper node the listener needs.
type StateReader interface {
	StateRootHash(ctx context.Context) (string, error)
	QueryNamedU64(ctx context.Context, stateRoot string, contract [32]byte, name string) (uint64, error)
	DictionaryItem(ctx context.Context, stateRoot string, contract [32]byte, dictionary, key string) ([]byte, error)
}

type ListenerConfig struct {
	PollInterval          time.Duration
	WireMode              codec.WireMode
	MaxDeadLetterAttempts int
}

// Listener polls the outgoing message counter of the gateway contract and
// reads every new record from its messages dictionary.
//
// The cursor is the next nonce to read.
type Listener struct {
	chain       core.ChainInfo
	contract    [32]byte
	state       StateReader
	registry    *core.Registry
	cursors     core.CursorStore
	deadLetters core.DeadLetterStore
	config      ListenerConfig
	now         func() time.Time
	logger      *log.RelayLogger
}

var _ core.Listener = (*Listener)(nil)

func NewListener(chain core.ChainInfo, contract [32]byte, state StateReader, registry *core.Registry, cursors core.CursorStore, deadLetters core.DeadLetterStore, cfg ListenerConfig) *Listener {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxDeadLetterAttempts <= 0 {
		cfg.MaxDeadLetterAttempts = DefaultMaxDeadLetterAttempts
	}
	return &Listener{
		chain:       chain,
		contract:    contract,
		state:       state,
		registry:    registry,
		cursors:     cursors,
		deadLetters: deadLetters,
		config:      cfg,
		now:         time.Now,
		logger:      core.GetChainLogger(chain.Name, "casper.listener"),
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
	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()
	for {
		if err := l.poll(ctx, out); err != nil && ctx.Err() == nil {
			l.logger.Error("failed to poll messages", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll runs one cycle: it retries open dead letters and then reads every
// nonce between the cursor and the contract counter.
func (l *Listener) poll(ctx context.Context, out chan<- *core.Emission) error {
	cursor, err := l.cursors.LoadCursor(ctx, l.chain.Name)
	if err != nil {
		return err
	}
	root, err := l.state.StateRootHash(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get state root hash")
	}
	counter, err := l.state.QueryNamedU64(ctx, root, l.contract, nonceNamedKey)
	if err != nil {
		return errors.Wrap(err, "failed to read message counter")
	}

	if err := l.retryDeadLetters(ctx, out, root); err != nil {
		return err
	}

	if counter > cursor.Position {
		l.logger.Debug("reading messages", "from", cursor.Position, "to", counter)
	}
	for n := cursor.Position; n < counter; n++ {
		msg, raw, err := l.fetch(ctx, root, n)
		switch {
		case err == nil:
			if err := core.Emit(ctx, out, msg); err != nil {
				return errors.Wrapf(err, "message %s was not admitted", msg.MessageID)
			}
		case core.IsTransient(err) || ctx.Err() != nil:
			return err
		default:
			if err := l.deadLetter(ctx, n, raw, err); err != nil {
				return err
			}
		}
		if err := l.advance(ctx, n+1); err != nil {
			return err
		}
	}
	return nil
}

func (l *Listener) retryDeadLetters(ctx context.Context, out chan<- *core.Emission, root string) error {
	open, err := l.deadLetters.ListDeadLetters(ctx, core.DeadLetterFilter{
		Chain:  l.chain.Name,
		Status: core.DeadLetterOpen,
	})
	if err != nil {
		return errors.Wrap(err, "failed to list dead letters")
	}
	for _, dl := range open {
		if dl.Attempts >= l.config.MaxDeadLetterAttempts {
			continue
		}
		msg, raw, err := l.fetch(ctx, root, dl.Nonce)
		if err != nil {
			if core.IsTransient(err) || ctx.Err() != nil {
				return err
			}
			if err := l.deadLetter(ctx, dl.Nonce, raw, err); err != nil {
				return err
			}
			continue
		}
		if err := core.Emit(ctx, out, msg); err != nil {
			return errors.Wrapf(err, "message %s was not admitted", msg.MessageID)
		}
		if err := l.deadLetters.ResolveDeadLetter(ctx, l.chain.Name, dl.Nonce); err != nil {
			return err
		}
		l.logger.Info("recovered dead letter", "nonce", dl.Nonce, "attempts", dl.Attempts)
	}
	return nil
}

// fetch reads and decodes the record of nonce. The raw item bytes are
// returned along with decode errors.
//
// Records are looked up under the decimal nonce. A gateway that keys the
// messages dictionary by hex(blake2b(message)) cannot be enumerated this way,
// since the key depends on the record being looked up; such a contract must
// also index its records by nonce to be relayed.
func (l *Listener) fetch(ctx context.Context, root string, nonce uint64) (*core.CanonicalMessage, []byte, error) {
	item, err := l.state.DictionaryItem(ctx, root, l.contract, messagesDictionary, strconv.FormatUint(nonce, 10))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to fetch message %d", nonce)
	}
	record, err := ParseBytesList(item)
	if err != nil {
		return nil, item, err
	}
	wire, err := codec.Decode(record, l.config.WireMode)
	if err != nil {
		return nil, item, err
	}
	if wire.Nonce != nonce {
		return nil, item, core.Mark(
			errors.Newf("record under key %d carries nonce %d", nonce, wire.Nonce),
			core.ErrMalformedWireRecord,
		)
	}
	dst, ok := l.registry.GetByID(wire.DstChainID)
	if !ok {
		// left for the validator to reject
		dst = core.ChainInfo{Name: l.registry.NameOf(wire.DstChainID)}
	}
	msg := core.NewCanonicalMessage(l.chain, dst, wire.Nonce, wire.SrcGateway[:], wire.Receiver[:], wire.Payload, l.now())
	return msg, item, nil
}

func (l *Listener) deadLetter(ctx context.Context, nonce uint64, raw []byte, cause error) error {
	l.logger.Error("dead-lettering message", cause, "nonce", nonce)
	err := l.deadLetters.PutDeadLetter(ctx, &core.DeadLetter{
		Chain: l.chain.Name,
		Nonce: nonce,
		Raw:   raw,
		Error: cause.Error(),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to store dead letter %d", nonce)
	}
	core.RecordDeadLetter(ctx, l.chain.Name)
	return nil
}

func (l *Listener) advance(ctx context.Context, position uint64) error {
	if err := l.cursors.AdvanceCursor(ctx, l.chain.Name, position); err != nil {
		return err
	}
	core.RecordCursor(l.chain.Name, position)
	return nil
}
