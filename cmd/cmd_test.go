package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/knotx-labs/knotx-relayer/config"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMessageFillsDerivedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"nonce": 7,
		"source_chain": "sepolia",
		"destination_chain": "casper-test",
		"payload": "aGVsbG8="
	}`), 0600))

	msg, err := readMessage(path)
	require.NoError(t, err)
	assert.Equal(t, core.MessageIDFor("sepolia", 7), msg.MessageID)
	assert.Equal(t, []byte("hello"), msg.Payload)
	assert.Equal(t, core.PayloadHash([]byte("hello")), msg.PayloadHash)
	assert.False(t, msg.ObservedAt.IsZero())

	require.NoError(t, os.WriteFile(path, []byte(`{"nonce": "x"}`), 0600))
	_, err = readMessage(path)
	assert.Error(t, err)
}

func TestNewRelayerWithMemoryStore(t *testing.T) {
	c := config.DefaultConfig("")
	c.Database.Driver = config.DatabaseDriverMemory
	ctx := &config.Context{Config: &c}

	r, err := newRelayer(context.Background(), ctx, true)
	require.NoError(t, err)
	defer r.Close()
	assert.Empty(t, r.listeners)
	assert.Empty(t, r.router.Chains())

	// no chain is registered, so the message is rejected before it is persisted
	msg := core.NewCanonicalMessage(
		core.ChainInfo{Name: "sepolia", NumericID: 1},
		core.ChainInfo{Name: "casper-test", NumericID: 3},
		0, []byte{1}, []byte{2}, []byte("hello"), time.Now(),
	)
	outcome := r.orchestrator.Relay(context.Background(), msg)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "Unknown source chain: sepolia")
	_, err = r.store.GetMessage(context.Background(), msg.MessageID)
	assert.Error(t, err)
}

func TestNewRelayerRejectsUnknownModule(t *testing.T) {
	c := config.DefaultConfig("")
	c.Database.Driver = config.DatabaseDriverMemory
	c.Chains = []config.ChainEntry{{Name: "sepolia", ID: 1, Type: "evm", Gateway: "0x01"}}
	ctx := &config.Context{Config: &c}

	_, err := newRelayer(context.Background(), ctx, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no module is registered for chain type "evm"`)
}

func TestCountChains(t *testing.T) {
	c := config.DefaultConfig("")
	c.Chains = []config.ChainEntry{{Type: "evm"}, {Type: "casper"}, {Type: "evm"}}
	assert.Equal(t, 2, countChains(&c, "evm"))
	assert.Equal(t, 1, countChains(&c, "casper"))
}

func TestMessageFilter(t *testing.T) {
	cmd := listMessagesCmd(&config.Context{})
	require.NoError(t, cmd.Flags().Parse([]string{"--status", "failed", "--source", "sepolia", "--limit", "5"}))

	f, err := messageFilter(cmd.Flags())
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, f.Status)
	assert.Equal(t, "sepolia", f.SourceChain)
	assert.Equal(t, 5, f.Limit)
	assert.Zero(t, f.Offset)

	cmd = listMessagesCmd(&config.Context{})
	require.NoError(t, cmd.Flags().Parse([]string{"--status", "lost"}))
	_, err = messageFilter(cmd.Flags())
	assert.Error(t, err)
}
