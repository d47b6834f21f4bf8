package casper

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/knotx-labs/knotx-relayer/log"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	DefaultRequestsPerSecond = 10
	DefaultRequestTimeout    = 30 * time.Second
)

// Endpoint is one JSON-RPC URL with the API key sent along with it.
type Endpoint struct {
	URL    string
	APIKey string
}

// PairEndpoints pairs urls with keys by position. Missing keys are empty.
func PairEndpoints(urls, keys []string) []Endpoint {
	out := make([]Endpoint, 0, len(urls))
	for i, u := range urls {
		ep := Endpoint{URL: strings.TrimSpace(u)}
		if i < len(keys) {
			ep.APIKey = strings.TrimSpace(keys[i])
		}
		out = append(out, ep)
	}
	return out
}

type endpoint struct {
	Endpoint
	rpc     *rpc.Client
	limiter *rate.Limiter
}

// Client is a JSON-RPC client of a Casper node. Transport failures and
// throttling responses rotate to the next endpoint.
//
// Params are sent by position, in the field order of the node's request
// types.
type Client struct {
	endpoints []*endpoint
	current   atomic.Uint32
	logger    *log.RelayLogger
}

func NewClient(endpoints []Endpoint, requestsPerSecond float64, timeout time.Duration) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("at least one rpc endpoint is required")
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultRequestsPerSecond
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	hc := &http.Client{Timeout: timeout}
	c := &Client{
		logger: log.GetLogger().WithModule("casper.rpc"),
	}
	for _, ep := range endpoints {
		if ep.URL == "" {
			return nil, errors.New("rpc endpoint url is empty")
		}
		opts := []rpc.ClientOption{rpc.WithHTTPClient(hc)}
		if ep.APIKey != "" {
			opts = append(opts, rpc.WithHeader("Authorization", ep.APIKey))
		}
		client, err := rpc.DialOptions(context.Background(), ep.URL, opts...)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid rpc endpoint %s", ep.URL)
		}
		c.endpoints = append(c.endpoints, &endpoint{
			Endpoint: ep,
			rpc:      client,
			limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), max(1, int(requestsPerSecond))),
		})
	}
	return c, nil
}

func (c *Client) endpoint() (int, *endpoint) {
	i := int(c.current.Load()) % len(c.endpoints)
	return i, c.endpoints[i]
}

func (c *Client) rotate(from int) {
	c.current.CompareAndSwap(uint32(from), uint32((from+1)%len(c.endpoints)))
}

// Call invokes method and returns its result. Every endpoint is tried at most
// once; when all of them fail transiently the last error is returned marked
// ErrTransientRPC. Node errors, other http statuses and unreadable responses
// fail at once.
func (c *Client) Call(ctx context.Context, method string, args ...any) (gjson.Result, error) {
	var lastErr error
	for range c.endpoints {
		i, ep := c.endpoint()
		res, err := c.do(ctx, ep, method, args)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return gjson.Result{}, ctx.Err()
		}
		var nodeErr rpc.Error
		if errors.As(err, &nodeErr) {
			return gjson.Result{}, rpcError(method, nodeErr)
		}
		if !isTransportFailure(err) {
			c.logger.Warn("rpc endpoint rejected the request", "method", method, "endpoint", ep.URL, "error", err)
			return gjson.Result{}, errors.Wrap(err, method)
		}
		lastErr = errors.Wrapf(err, "%s via %s", method, ep.URL)
		c.logger.Warn("rpc endpoint failed; rotating", "method", method, "endpoint", ep.URL, "error", err)
		c.rotate(i)
	}
	return gjson.Result{}, core.MarkTransient(lastErr)
}

func (c *Client) do(ctx context.Context, ep *endpoint, method string, args []any) (gjson.Result, error) {
	if err := ep.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, err
	}
	var raw json.RawMessage
	if err := ep.rpc.CallContext(ctx, &raw, method, args...); err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, errors.Newf("invalid json result: %s", truncate(raw, 200))
	}
	return gjson.ParseBytes(raw), nil
}

// isTransportFailure reports whether err is worth trying on another endpoint:
// network failures, throttling and server errors.
func isTransportFailure(err error) bool {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false
	}
	return core.IsTransient(err)
}

func rpcError(method string, e rpc.Error) error {
	rpcErr := &RPCError{
		Code:    int64(e.ErrorCode()),
		Message: e.Error(),
	}
	var dataErr rpc.DataError
	if errors.As(e, &dataErr) && dataErr.ErrorData() != nil {
		if s, ok := dataErr.ErrorData().(string); ok {
			rpcErr.Data = s
		} else {
			rpcErr.Data = fmt.Sprint(dataErr.ErrorData())
		}
	}
	err := errors.Wrap(rpcErr, method)
	if isNotFound(rpcErr) {
		return core.Mark(err, core.ErrNotFound)
	}
	return err
}

const codeMethodNotFound = -32601

func isNotFound(e *RPCError) bool {
	if e.Code == codeMethodNotFound {
		return false
	}
	s := strings.ToLower(e.Message + " " + e.Data)
	return strings.Contains(s, "not found") ||
		strings.Contains(s, "valuenotfound") ||
		strings.Contains(s, "no such")
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// StateRootHash returns the state root hash of the latest block.
func (c *Client) StateRootHash(ctx context.Context) (string, error) {
	res, err := c.Call(ctx, "chain_get_state_root_hash")
	if err != nil {
		return "", err
	}
	root := res.Get("state_root_hash").String()
	if root == "" {
		return "", errors.New("empty state root hash")
	}
	return root, nil
}

// QueryNamedU64 reads a U64 named key of a contract.
func (c *Client) QueryNamedU64(ctx context.Context, stateRoot string, contract [32]byte, name string) (uint64, error) {
	res, err := c.Call(ctx, "query_global_state",
		map[string]string{"StateRootHash": stateRoot},
		contractKey(contract),
		[]string{name},
	)
	if err != nil {
		return 0, err
	}
	v := res.Get("stored_value.CLValue")
	if !v.Exists() {
		return 0, errors.Newf("named key %s is not a CLValue", name)
	}
	if parsed := v.Get("parsed"); parsed.Exists() {
		return parsed.Uint(), nil
	}
	b, err := hex.DecodeString(v.Get("bytes").String())
	if err != nil || len(b) != 8 {
		return 0, errors.Newf("named key %s is not a U64", name)
	}
	return leUint64(b), nil
}

// DictionaryItem returns the serialized CLValue bytes stored under key in a
// dictionary named by a contract. A missing item is ErrNotFound.
func (c *Client) DictionaryItem(ctx context.Context, stateRoot string, contract [32]byte, dictionary, key string) ([]byte, error) {
	res, err := c.Call(ctx, "state_get_dictionary_item", stateRoot, map[string]any{
		"ContractNamedKey": map[string]string{
			"key":                 contractKey(contract),
			"dictionary_name":     dictionary,
			"dictionary_item_key": key,
		},
	})
	if err != nil {
		return nil, err
	}
	v := res.Get("stored_value.CLValue.bytes")
	if !v.Exists() {
		return nil, errors.Newf("dictionary item %s/%s has no CLValue", dictionary, key)
	}
	b, err := hex.DecodeString(v.String())
	if err != nil {
		return nil, errors.Wrapf(err, "dictionary item %s/%s", dictionary, key)
	}
	return b, nil
}

// PutDeploy submits d and returns its hash as acknowledged by the node.
func (c *Client) PutDeploy(ctx context.Context, d *Deploy) (string, error) {
	res, err := c.Call(ctx, "account_put_deploy", d)
	if err != nil {
		return "", err
	}
	hash := res.Get("deploy_hash").String()
	if hash == "" {
		return "", errors.New("node did not return a deploy hash")
	}
	return hash, nil
}

// DeployStatus is the execution state of a deploy.
type DeployStatus struct {
	Executed     bool
	BlockHash    string
	ErrorMessage string
}

// GetDeploy returns the execution state of a deploy. A deploy that is not yet
// executed has Executed == false.
func (c *Client) GetDeploy(ctx context.Context, hash string) (*DeployStatus, error) {
	res, err := c.Call(ctx, "info_get_deploy", hash)
	if err != nil {
		return nil, err
	}
	return parseDeployStatus(res), nil
}

func parseDeployStatus(res gjson.Result) *DeployStatus {
	// casper 2.x
	if info := res.Get("execution_info"); info.Exists() && info.Type != gjson.Null {
		result := info.Get("execution_result")
		if !result.Exists() || result.Type == gjson.Null {
			return &DeployStatus{}
		}
		st := &DeployStatus{Executed: true, BlockHash: info.Get("block_hash").String()}
		if v2 := result.Get("Version2"); v2.Exists() {
			st.ErrorMessage = v2.Get("error_message").String()
		} else {
			st.ErrorMessage = result.Get("Version1.Failure.error_message").String()
		}
		return st
	}
	// casper 1.x
	results := res.Get("execution_results").Array()
	if len(results) == 0 {
		return &DeployStatus{}
	}
	first := results[0]
	st := &DeployStatus{Executed: true, BlockHash: first.Get("block_hash").String()}
	if failure := first.Get("result.Failure"); failure.Exists() {
		st.ErrorMessage = failure.Get("error_message").String()
		if st.ErrorMessage == "" {
			st.ErrorMessage = "execution failed"
		}
	}
	return st
}

func contractKey(contract [32]byte) string {
	return "hash-" + hex.EncodeToString(contract[:])
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
