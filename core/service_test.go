package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/knotx-labs/knotx-relayer/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// sliceListener emits msgs in order and advances its cursor after each acknowledged emission.
type sliceListener struct {
	cursors core.CursorStore
	msgs    []*core.CanonicalMessage

	mu   sync.Mutex
	acks []error
	done chan struct{}
}

func (l *sliceListener) ChainName() string { return casperChain.Name }

func (l *sliceListener) Listen(ctx context.Context) <-chan *core.Emission {
	out := make(chan *core.Emission)
	go func() {
		defer close(out)
		l.emit(ctx, out)
		close(l.done)
		<-ctx.Done()
	}()
	return out
}

func (l *sliceListener) emit(ctx context.Context, out chan<- *core.Emission) {
	for _, msg := range l.msgs {
		err := core.Emit(ctx, out, msg)
		l.mu.Lock()
		l.acks = append(l.acks, err)
		l.mu.Unlock()
		if err != nil {
			return
		}
		if err := l.cursors.AdvanceCursor(ctx, l.ChainName(), msg.Nonce+1); err != nil {
			return
		}
	}
}

func TestRelayServiceDeliversAndAdvancesCursor(t *testing.T) {
	ctrl := gomock.NewController(t)
	executor := core.NewMockExecutor(ctrl)
	executor.EXPECT().ChainName().Return(sepoliaChain.Name).AnyTimes()

	var mu sync.Mutex
	var delivered []uint64
	executor.EXPECT().Execute(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, m *core.CanonicalMessage) (*core.ExecutionResult, error) {
			mu.Lock()
			defer mu.Unlock()
			delivered = append(delivered, m.Nonce)
			return &core.ExecutionResult{TransactionHash: "0x01"}, nil
		}).
		Times(3)

	router := core.NewRouter()
	router.Register(executor, sepoliaChain.Gateway)
	st := memory.New()
	orch, err := core.NewOrchestrator(core.NewValidator(testRegistry(t)), router, st)
	require.NoError(t, err)

	invalid := testMessage(1)
	invalid.PayloadHash = "00"
	l := &sliceListener{
		cursors: st,
		// nonce 0 is emitted twice, as after a restart before the cursor was persisted
		msgs: []*core.CanonicalMessage{testMessage(0), testMessage(0), invalid, testMessage(2), testMessage(3)},
		done: make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := core.NewRelayService(orch, []core.Listener{l}, 2, time.Second)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case <-l.done:
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not finish")
	}
	cancel()
	require.NoError(t, <-errCh)

	assert.ElementsMatch(t, []uint64{0, 2, 3}, delivered)
	for _, ack := range l.acks {
		assert.NoError(t, ack)
	}

	c, err := st.LoadCursor(context.Background(), casperChain.Name)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), c.Position)

	counts, err := st.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[core.StatusDelivered])
	assert.Zero(t, counts[core.StatusPending])
}

func TestRelayServiceFinishesInFlightDeliveries(t *testing.T) {
	ctrl := gomock.NewController(t)
	executor := core.NewMockExecutor(ctrl)
	executor.EXPECT().ChainName().Return(sepoliaChain.Name).AnyTimes()

	started := make(chan struct{})
	executor.EXPECT().Execute(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ *core.CanonicalMessage) (*core.ExecutionResult, error) {
			close(started)
			time.Sleep(100 * time.Millisecond)
			// the delivery context outlives the service context
			assert.NoError(t, ctx.Err())
			return &core.ExecutionResult{TransactionHash: "0x02"}, nil
		})

	router := core.NewRouter()
	router.Register(executor, "")
	st := memory.New()
	orch, err := core.NewOrchestrator(core.NewValidator(testRegistry(t)), router, st)
	require.NoError(t, err)

	l := &sliceListener{cursors: st, msgs: []*core.CanonicalMessage{testMessage(0)}, done: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- core.NewRelayService(orch, []core.Listener{l}, 1, 5*time.Second).Start(ctx) }()

	<-started
	cancel()
	require.NoError(t, <-errCh)

	m, err := st.GetMessage(context.Background(), testMessage(0).MessageID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusDelivered, m.Status)
}
