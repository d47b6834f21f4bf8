package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/knotx-labs/knotx-relayer/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRelayIsIdempotent(t *testing.T) {
	for _, cacheSize := range []int{0, 16} {
		h := newHarness(t, core.WithOutcomeCache(cacheSize))
		ctx := context.Background()
		msg := testMessage(0)

		h.executor.EXPECT().Execute(gomock.Any(), gomock.Any()).
			Return(&core.ExecutionResult{TransactionHash: "0xfeed"}, nil).
			Times(1)

		first := h.orchestrator.Relay(ctx, msg)
		second := h.orchestrator.Relay(ctx, testMessage(0))

		require.True(t, first.Success, first.Error)
		assert.Equal(t, first, second)
		assert.Equal(t, "0xfeed", first.TransactionHash)

		rows, err := h.store.ListMessages(ctx, core.MessageFilter{})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, core.StatusDelivered, rows[0].Status)
	}
}

func TestRelayFailureIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.executor.EXPECT().Execute(gomock.Any(), gomock.Any()).
		Return(nil, core.Mark(errors.New("execution reverted: paused"), core.ErrExecutionReverted)).
		Times(1)

	first := h.orchestrator.Relay(ctx, testMessage(4))
	second := h.orchestrator.Relay(ctx, testMessage(4))

	assert.False(t, first.Success)
	assert.Contains(t, first.Error, "paused")
	assert.Equal(t, first, second)

	m, err := h.store.GetMessage(ctx, testMessage(4).MessageID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, m.Status)
}

func TestRelayConcurrentDuplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	release := make(chan struct{})
	h.executor.EXPECT().Execute(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, *core.CanonicalMessage) (*core.ExecutionResult, error) {
			<-release
			return &core.ExecutionResult{TransactionHash: "0xbeef"}, nil
		}).
		Times(1)

	const n = 8
	outcomes := make([]*core.RelayOutcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = h.orchestrator.Relay(ctx, testMessage(9))
		}(i)
	}
	// let the losers observe the PENDING row before the winner finishes
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	delivered := 0
	for _, o := range outcomes {
		if o.Success {
			delivered++
			assert.Equal(t, "0xbeef", o.TransactionHash)
		} else {
			assert.Equal(t, core.ErrInFlight.Error(), o.Error)
		}
	}
	// late goroutines may already see the terminal row
	assert.GreaterOrEqual(t, delivered, 1)

	rows, err := h.store.ListMessages(ctx, core.MessageFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	after := h.orchestrator.Relay(ctx, testMessage(9))
	assert.True(t, after.Success)
}

func TestRelayWithoutExecutor(t *testing.T) {
	reg, err := core.NewRegistry(casperChain, sepoliaChain)
	require.NoError(t, err)
	st := memory.New()
	orch, err := core.NewOrchestrator(core.NewValidator(reg), core.NewRouter(), st)
	require.NoError(t, err)
	ctx := context.Background()

	outcome := orch.Relay(ctx, testMessage(1))
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "no executor registered")

	again := orch.Relay(ctx, testMessage(1))
	assert.Equal(t, outcome, again)

	rows, err := st.ListMessages(ctx, core.MessageFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, core.StatusFailed, rows[0].Status)
}

func TestRelayUnknownDestinationIsNotPersisted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	msg := testMessage(2)
	msg.DestinationChain = "solana"

	outcome := h.orchestrator.Relay(ctx, msg)
	assert.False(t, outcome.Success)
	assert.Equal(t, "Unknown destination chain: solana", outcome.Error)

	rows, err := h.store.ListMessages(ctx, core.MessageFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRelayInvalidMessageIsNotPersisted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	msg := testMessage(3)
	msg.DestinationChain = msg.SourceChain

	outcome := h.orchestrator.Relay(ctx, msg)
	assert.False(t, outcome.Success)
	assert.Equal(t, "Source and destination chains must be different", outcome.Error)

	_, err := h.store.GetMessage(ctx, msg.MessageID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRelayRecoversExecutorPanic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.executor.EXPECT().Execute(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, *core.CanonicalMessage) (*core.ExecutionResult, error) {
			panic("nil pointer")
		})

	outcome := h.orchestrator.Relay(ctx, testMessage(5))
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "executor panicked: nil pointer")

	m, err := h.store.GetMessage(ctx, testMessage(5).MessageID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, m.Status)
}

func TestRelayFillsDefaultGateway(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	msg := testMessage(6)
	msg.DestinationGateway = ""

	h.executor.EXPECT().Execute(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, m *core.CanonicalMessage) (*core.ExecutionResult, error) {
			assert.Equal(t, sepoliaChain.Gateway, m.DestinationGateway)
			return &core.ExecutionResult{TransactionHash: "0x01"}, nil
		})

	assert.True(t, h.orchestrator.Relay(ctx, msg).Success)
}

type failingStore struct {
	*memory.Store
}

func (failingStore) InsertPending(context.Context, *core.PersistedMessage) (*core.PersistedMessage, bool, error) {
	return nil, false, core.MarkTransient(errors.New("connection refused"))
}

func TestAdmitStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	executor := core.NewMockExecutor(ctrl)
	executor.EXPECT().ChainName().Return(sepoliaChain.Name).AnyTimes()
	router := core.NewRouter()
	router.Register(executor, "")

	orch, err := core.NewOrchestrator(core.NewValidator(testRegistry(t)), router, failingStore{memory.New()})
	require.NoError(t, err)

	adm, err := orch.Admit(context.Background(), testMessage(7))
	assert.Nil(t, adm)
	assert.True(t, core.IsTransient(err))

	outcome := orch.Relay(context.Background(), testMessage(7))
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "connection refused")
}

type recordingSink struct {
	mu       sync.Mutex
	outcomes []*core.RelayOutcome
}

func (s *recordingSink) Publish(_ context.Context, _ *core.CanonicalMessage, o *core.RelayOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
	return nil
}

func TestOutcomeSinksAreNotified(t *testing.T) {
	sink := &recordingSink{}
	h := newHarness(t, core.WithOutcomeSinks(core.LogSink{}, sink))
	h.executor.EXPECT().Execute(gomock.Any(), gomock.Any()).
		Return(&core.ExecutionResult{TransactionHash: "0x02"}, nil)

	ctx := context.Background()
	outcome := h.orchestrator.Relay(ctx, testMessage(8))
	h.orchestrator.Relay(ctx, testMessage(8))

	require.Len(t, sink.outcomes, 1)
	assert.Equal(t, outcome, sink.outcomes[0])
}
