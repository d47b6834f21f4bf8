package casper_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/knotx-labs/knotx-relayer/chains/casper"
	"github.com/knotx-labs/knotx-relayer/codec"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestExecutor(t *testing.T, node *fakeNode, maxPolls uint) *casper.Executor {
	t.Helper()
	account, err := casper.ParseAccountKey(casper.AlgorithmEd25519, hex.EncodeToString(bytes.Repeat([]byte{3}, 32)))
	require.NoError(t, err)
	e, err := casper.NewExecutor(casperTest, contractHash, node.client(t), testRegistry(t), account, relayerSigner(t), casper.ExecutorConfig{
		NetworkName:          "casper-test",
		PaymentAmount:        big.NewInt(5_000_000_000),
		FinalityPollInterval: time.Millisecond,
		FinalityMaxPolls:     maxPolls,
		Retry:                core.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond, BackoffMultiplier: 1},
	})
	require.NoError(t, err)
	return e
}

func inboundMessage(nonce uint64) *core.CanonicalMessage {
	return core.NewCanonicalMessage(
		sepolia, casperTest, nonce,
		bytes.Repeat([]byte{0x01}, 20),
		bytes.Repeat([]byte{0x02}, 32),
		[]byte("hello"),
		time.Now(),
	)
}

func argBytes(t *testing.T, args gjson.Result, name string) []byte {
	t.Helper()
	for _, pair := range args.Array() {
		if pair.Get("0").String() == name {
			b, err := hex.DecodeString(pair.Get("1.bytes").String())
			require.NoError(t, err)
			return b
		}
	}
	t.Fatalf("argument %s not found", name)
	return nil
}

func TestExecutorSubmitsSignedDeploy(t *testing.T) {
	node := newFakeNode()
	node.set(func(n *fakeNode) { n.deployState = deployState{pendingPolls: 2} })
	e := newTestExecutor(t, node, 10)

	msg := inboundMessage(7)
	res, err := e.Execute(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, 3, node.callCount("info_get_deploy"))

	require.Len(t, node.deploys, 1)
	d := node.deploys[0]
	assert.Equal(t, d.Get("hash").String(), res.TransactionHash)
	assert.Equal(t, "casper-test", d.Get("header.chain_name").String())
	assert.Len(t, d.Get("approvals").Array(), 1)

	session := d.Get("session.StoredContractByHash")
	assert.Equal(t, hex.EncodeToString(contractHash[:]), session.Get("hash").String())
	assert.Equal(t, "execute_message", session.Get("entry_point").String())

	var names []string
	for _, pair := range session.Get("args").Array() {
		names = append(names, pair.Get("0").String())
	}
	assert.Equal(t, []string{"src_chain_id", "src_gateway", "receiver", "nonce", "payload", "signature"}, names)

	args := session.Get("args")
	assert.Equal(t, "U32", args.Get("0.1.cl_type").String())
	assert.EqualValues(t, sepolia.NumericID, args.Get("0.1.parsed").Uint())
	assert.EqualValues(t, 7, args.Get("3.1.parsed").Uint())

	// the signature covers the wire record rebuilt with this chain as destination
	wire := codec.Encode(msg.WireMessage(sepolia.NumericID, casperTest.NumericID))
	gw := codec.PadAddress(msg.Sender)
	assert.Equal(t, gw[:], argBytes(t, args, "src_gateway")[4:])
	sig := argBytes(t, args, "signature")[4:]
	assert.True(t, recoverRelayer(t, wire, sig).IsEqual(relayerSigner(t).PublicKey()))
}

func TestExecutorRevertedDeploy(t *testing.T) {
	node := newFakeNode()
	node.set(func(n *fakeNode) { n.deployState = deployState{errorMessage: "User error: 4"} })
	e := newTestExecutor(t, node, 10)

	_, err := e.Execute(context.Background(), inboundMessage(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrExecutionReverted))
	assert.Contains(t, err.Error(), "User error: 4")
}

func TestExecutorFinalityTimeout(t *testing.T) {
	node := newFakeNode()
	node.set(func(n *fakeNode) { n.deployState = deployState{pendingPolls: 100} })
	e := newTestExecutor(t, node, 4)

	_, err := e.Execute(context.Background(), inboundMessage(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrFinalityTimeout))
	assert.Equal(t, 4, node.callCount("info_get_deploy"))
}

func TestExecutorRetriesUnavailableNode(t *testing.T) {
	node := newFakeNode()
	node.set(func(n *fakeNode) { n.unavailable = true })
	e := newTestExecutor(t, node, 2)

	_, err := e.Execute(context.Background(), inboundMessage(1))
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
	assert.Equal(t, 3, node.callCount("account_put_deploy"))
	assert.Equal(t, 0, node.callCount("info_get_deploy"))
}

func TestExecutorUnknownSource(t *testing.T) {
	e := newTestExecutor(t, newFakeNode(), 2)
	msg := inboundMessage(1)
	msg.SourceChain = "unknown-5"

	_, err := e.Execute(context.Background(), msg)
	assert.Error(t, err)
}

func TestExecutorIsDelivered(t *testing.T) {
	node := newFakeNode()
	e := newTestExecutor(t, node, 2)
	msg := inboundMessage(9)

	delivered, err := e.IsDelivered(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, delivered)

	wire := codec.Encode(msg.WireMessage(sepolia.NumericID, casperTest.NumericID))
	node.set(func(n *fakeNode) { n.executed[casper.ExecutedKey(wire)] = true })
	delivered, err = e.IsDelivered(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, delivered)

	node.set(func(n *fakeNode) { n.unavailable = true })
	_, err = e.IsDelivered(context.Background(), msg)
	assert.Error(t, err)
}

func TestNewExecutorRequiresKeys(t *testing.T) {
	_, err := casper.NewExecutor(casperTest, contractHash, newFakeNode().client(t), testRegistry(t), nil, nil, casper.ExecutorConfig{NetworkName: "casper-test"})
	assert.Error(t, err)
}
