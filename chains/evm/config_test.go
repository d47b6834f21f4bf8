package evm_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/knotx-labs/knotx-relayer/chains/evm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestChainConfigValidate(t *testing.T) {
	c := evm.DefaultChainConfig()
	c.RPCURL = "http://localhost:8545"
	c.PrivateKey = testKey
	assert.NoError(t, c.Validate())

	bad := evm.ChainConfig{PrivateKey: "zz", RelayerAddress: "nope", DisableListener: true}
	err := bad.Validate()
	require.Error(t, err)
	for _, attr := range []string{"rpc_url", "backfill_window", "poll_interval", "private_key", "relayer_address"} {
		assert.Contains(t, err.Error(), attr)
	}

	sourceOnly := evm.ChainConfig{RPCURL: "http://localhost:8545", BackfillWindow: 1, PollInterval: time.Second, DisableListener: true}
	assert.Error(t, sourceOnly.Validate())
}

func TestChainConfigKeys(t *testing.T) {
	c := evm.DefaultChainConfig()
	c.PrivateKey = testKey
	signer, txKey, err := c.Keys()
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", crypto.PubkeyToAddress(txKey.PublicKey).Hex())
	assert.Equal(t, crypto.PubkeyToAddress(txKey.PublicKey), signer.Address())

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	c.RelayerKey = hexutil.Encode(crypto.FromECDSA(other))
	signer, _, err = c.Keys()
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(other.PublicKey), signer.Address())
}
