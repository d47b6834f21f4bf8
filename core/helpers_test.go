package core_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/knotx-labs/knotx-relayer/store/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	casperChain = core.ChainInfo{
		Name:      "casper-test",
		NumericID: 3,
		Kind:      core.ChainKindCasper,
		Gateway:   core.FormatGateway(core.ChainKindCasper, bytes.Repeat([]byte{0xca}, 32)),
	}
	sepoliaChain = core.ChainInfo{
		Name:      "sepolia",
		NumericID: 11155111,
		Kind:      core.ChainKindEVM,
		Gateway:   core.FormatGateway(core.ChainKindEVM, bytes.Repeat([]byte{0xee}, 20)),
	}
)

func testRegistry(t *testing.T) *core.Registry {
	t.Helper()
	reg, err := core.NewRegistry(casperChain, sepoliaChain)
	require.NoError(t, err)
	return reg
}

func testMessage(nonce uint64) *core.CanonicalMessage {
	return core.NewCanonicalMessage(
		casperChain,
		sepoliaChain,
		nonce,
		bytes.Repeat([]byte{0x01}, 32),
		bytes.Repeat([]byte{0x02}, 20),
		[]byte("1"),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	)
}

type harness struct {
	store        *memory.Store
	router       *core.Router
	executor     *core.MockExecutor
	orchestrator *core.Orchestrator
}

func newHarness(t *testing.T, opts ...core.OrchestratorOption) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	executor := core.NewMockExecutor(ctrl)
	executor.EXPECT().ChainName().Return(sepoliaChain.Name).AnyTimes()

	router := core.NewRouter()
	router.Register(executor, sepoliaChain.Gateway)

	st := memory.New()
	orch, err := core.NewOrchestrator(core.NewValidator(testRegistry(t)), router, st, opts...)
	require.NoError(t, err)
	return &harness{store: st, router: router, executor: executor, orchestrator: orch}
}
