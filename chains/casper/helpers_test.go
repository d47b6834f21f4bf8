package casper_test

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/knotx-labs/knotx-relayer/chains/casper"
	"github.com/knotx-labs/knotx-relayer/codec"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var (
	contractHash = [32]byte{0xca, 0xfe}

	casperTest = core.ChainInfo{
		Name:      "casper-test",
		NumericID: 3,
		Kind:      core.ChainKindCasper,
		Gateway:   "0x" + hex.EncodeToString(contractHash[:]),
	}
	sepolia = core.ChainInfo{
		Name:      "sepolia",
		NumericID: 11155111,
		Kind:      core.ChainKindEVM,
		Gateway:   "0x00000000000000000000000000000000000000Ee",
	}
)

func testRegistry(t *testing.T) *core.Registry {
	t.Helper()
	reg, err := core.NewRegistry(casperTest, sepolia)
	require.NoError(t, err)
	return reg
}

// storedRecord returns the dictionary bytes of an outgoing message to dst.
func storedRecord(nonce uint64, dst uint32) []byte {
	m := &codec.Message{
		SrcChainID: casperTest.NumericID,
		DstChainID: dst,
		SrcGateway: contractHash,
		Receiver:   codec.PadAddress(bytes.Repeat([]byte{0x02}, 20)),
		Nonce:      nonce,
		Payload:    []byte("hello"),
	}
	return casper.BytesValue(codec.Encode(m)).Bytes
}

type deployState struct {
	pendingPolls int
	errorMessage string
}

// fakeNode is a Casper JSON-RPC node serving one gateway contract.
type fakeNode struct {
	mu sync.Mutex

	counter  uint64
	messages map[string][]byte
	executed map[string]bool

	// unavailable makes every call answer 503
	unavailable bool
	// failDictionary makes dictionary lookups answer 503
	failDictionary bool

	dictionaryKeys []string
	params         []string

	deploys     []gjson.Result
	deployState deployState
	getDeploys  int
	authHeaders []string
	calls       map[string]int
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		messages: make(map[string][]byte),
		executed: make(map[string]bool),
		calls:    make(map[string]int),
	}
}

func (n *fakeNode) setMessage(nonce uint64, raw []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages[strconv.FormatUint(nonce, 10)] = raw
	if nonce+1 > n.counter {
		n.counter = nonce + 1
	}
}

func (n *fakeNode) set(f func(n *fakeNode)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	f(n)
}

func (n *fakeNode) callCount(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *fakeNode) serve(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(n)
	t.Cleanup(srv.Close)
	return srv
}

func (n *fakeNode) client(t *testing.T, urls ...string) *casper.Client {
	t.Helper()
	if len(urls) == 0 {
		urls = []string{n.serve(t).URL}
	}
	c, err := casper.NewClient(casper.PairEndpoints(urls, nil), 1000, 5*time.Second)
	require.NoError(t, err)
	return c
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	req := gjson.ParseBytes(body)
	method := req.Get("method").String()

	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[method]++
	n.params = append(n.params, method+" "+req.Get("params").Raw)
	n.authHeaders = append(n.authHeaders, r.Header.Get("Authorization"))

	if n.unavailable || (n.failDictionary && method == "state_get_dictionary_item") {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	params := req.Get("params")
	var result any
	switch method {
	case "chain_get_state_root_hash":
		result = map[string]any{"state_root_hash": "0102"}
	case "query_global_state":
		result = map[string]any{"stored_value": map[string]any{"CLValue": map[string]any{
			"cl_type": "U64",
			"bytes":   hex.EncodeToString(binaryLE(n.counter)),
			"parsed":  n.counter,
		}}}
	case "state_get_dictionary_item":
		id := params.Get("1.ContractNamedKey")
		key := id.Get("dictionary_item_key").String()
		n.dictionaryKeys = append(n.dictionaryKeys, id.Get("dictionary_name").String()+"/"+key)
		var raw []byte
		var ok bool
		switch id.Get("dictionary_name").String() {
		case "messages":
			raw, ok = n.messages[key]
		case "executed_messages":
			if n.executed[key] {
				raw, ok = []byte{1}, true
			}
		}
		if !ok {
			writeRPCError(w, -32003, "Query failed", "ValueNotFound(\"Failed to find base key at path\")")
			return
		}
		result = map[string]any{"stored_value": map[string]any{"CLValue": map[string]any{
			"bytes": hex.EncodeToString(raw),
		}}}
	case "account_put_deploy":
		d := params.Get("0")
		n.deploys = append(n.deploys, d)
		result = map[string]any{"deploy_hash": d.Get("hash").String()}
	case "info_get_deploy":
		n.getDeploys++
		if n.getDeploys <= n.deployState.pendingPolls {
			result = map[string]any{"deploy": map[string]any{}, "execution_results": []any{}}
			break
		}
		outcome := map[string]any{"Success": map[string]any{"cost": "1"}}
		if n.deployState.errorMessage != "" {
			outcome = map[string]any{"Failure": map[string]any{"error_message": n.deployState.errorMessage}}
		}
		result = map[string]any{"execution_results": []any{
			map[string]any{"block_hash": "aa", "result": outcome},
		}}
	default:
		writeRPCError(w, -32601, "Method not found", "")
		return
	}
	writeJSON(w, map[string]any{"jsonrpc": "2.0", "id": req.Get("id").Value(), "result": result})
}

func writeRPCError(w http.ResponseWriter, code int, message, data string) {
	writeJSON(w, map[string]any{"jsonrpc": "2.0", "id": 1, "error": map[string]any{
		"code": code, "message": message, "data": data,
	}})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(fmt.Sprintf("failed to encode response: %v", err))
	}
}

func binaryLE(v uint64) []byte {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
