package casper_test

import (
	"encoding/hex"
	"testing"

	"github.com/knotx-labs/knotx-relayer/chains/casper"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/knotx-labs/knotx-relayer/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainConfigValidate(t *testing.T) {
	c := casper.DefaultChainConfig()
	c.PrivateKey = "zz"
	c.WireMode = "compact"
	err := c.Validate()
	require.Error(t, err)
	for _, attr := range []string{"rpc_urls", "wire_mode", "network_name", "private_key", "relayer_key"} {
		assert.Contains(t, err.Error(), attr)
	}

	c = casper.DefaultChainConfig()
	c.RPCURLs = []string{"http://localhost:7777/rpc"}
	assert.NoError(t, c.Validate(), "a source-only chain needs no keys")

	c.DisableListener = true
	assert.Error(t, c.Validate())

	c.PrivateKey = hex.EncodeToString(make([]byte, 32))
	c.RelayerKey = relayerKeyHex
	c.NetworkName = "casper-test"
	assert.NoError(t, c.Validate())
}

func TestParseContractHash(t *testing.T) {
	want := contractHash
	for _, s := range []string{
		"hash-" + hex.EncodeToString(want[:]),
		"0x" + hex.EncodeToString(want[:]),
		hex.EncodeToString(want[:]),
	} {
		got, err := casper.ParseContractHash(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got)
	}
	_, err := casper.ParseContractHash("0xabcd")
	assert.Error(t, err)
}

func TestChainConfigBuild(t *testing.T) {
	node := newFakeNode()
	srv := node.serve(t)
	st := memory.New()
	deps := core.ChainDeps{
		Info:        casperTest,
		Registry:    testRegistry(t),
		Cursors:     st,
		DeadLetters: st,
		Retry:       core.DefaultRetryPolicy(),
	}

	c := casper.DefaultChainConfig()
	c.RPCURLs = []string{srv.URL}
	comps, err := c.Build(deps)
	require.NoError(t, err)
	assert.NotNil(t, comps.Listener)
	assert.Nil(t, comps.Executor)
	assert.Equal(t, casperTest.Gateway, comps.DefaultGateway)

	c.PrivateKey = hex.EncodeToString(make([]byte, 32))
	c.RelayerKey = relayerKeyHex
	c.NetworkName = "casper-test"
	c.DisableListener = true
	comps, err = c.Build(deps)
	require.NoError(t, err)
	assert.Nil(t, comps.Listener)
	require.NotNil(t, comps.Executor)
	assert.Equal(t, casperTest.Name, comps.Executor.ChainName())
	_, ok := comps.Executor.(core.DeliveryChecker)
	assert.True(t, ok)
}
