// Package rpc is a minimal Ethereum JSON-RPC 2.0 client covering the calls
// the account needs: balance, nonce, gas price, chain id, broadcast and
// receipt lookup.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/OKaluzny/evm-account/pkg/models"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Block tags accepted by eth_getBalance and eth_getTransactionCount.
const (
	BlockLatest  = "latest"
	BlockPending = "pending"
)

const maxResponseSize = 10 << 20

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type response struct {
	Result json.RawMessage  `json:"result"`
	Error  *models.RPCError `json:"error"`
}

// Client talks to one JSON-RPC endpoint. It is safe for concurrent use.
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTimeout bounds every call. Zero leaves deadlines to the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// NewClient returns a client for endpoint, usually config.Config.RPCURL().
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: http.DefaultClient,
		logger:     slog.Default().With("component", "rpc"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL the client posts to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Call posts {jsonrpc, id, method, params} and decodes the result into
// result. A JSON null result leaves result untouched. A JSON-RPC error object
// is returned as *models.RPCError.
func (c *Client) Call(ctx context.Context, method string, params []interface{}, result interface{}) (err error) {
	if params == nil {
		params = []interface{}{}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() { observe(method, start, err) }()

	body, err := json.Marshal(request{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("%w: encode %s request: %v", models.ErrRPC, method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build %s request: %v", models.ErrRPC, method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", method, ctxErr)
		}
		return fmt.Errorf("%w: %s: %v", models.ErrRPC, method, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: read %s response: %v", models.ErrRPC, method, err)
	}

	var out response
	if err := json.Unmarshal(payload, &out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("%w: %s: http status %d", models.ErrRPC, method, resp.StatusCode)
		}
		return fmt.Errorf("%w: decode %s response: %v", models.ErrRPC, method, err)
	}
	if out.Error != nil {
		c.logger.Debug("rpc call rejected", "method", method, "code", out.Error.Code, "message", out.Error.Message)
		return fmt.Errorf("%s: %w", method, out.Error)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s: http status %d", models.ErrRPC, method, resp.StatusCode)
	}

	if result == nil || len(out.Result) == 0 || string(out.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(out.Result, result); err != nil {
		return fmt.Errorf("%w: decode %s result: %v", models.ErrRPC, method, err)
	}
	return nil
}

// GetBalance returns the balance of address in wei at the latest block.
func (c *Client) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	var res hexutil.Big
	if err := c.callRequired(ctx, "eth_getBalance", []interface{}{address, BlockLatest}, &res); err != nil {
		return nil, err
	}
	return res.ToInt(), nil
}

// GetTransactionCount returns the number of transactions sent from address
// at block, which is the next nonce when block is "pending".
func (c *Client) GetTransactionCount(ctx context.Context, address, block string) (uint64, error) {
	var res hexutil.Uint64
	if err := c.callRequired(ctx, "eth_getTransactionCount", []interface{}{address, block}, &res); err != nil {
		return 0, err
	}
	return uint64(res), nil
}

// GetGasPrice returns the node's legacy gas price suggestion in wei.
func (c *Client) GetGasPrice(ctx context.Context) (*big.Int, error) {
	var res hexutil.Big
	if err := c.callRequired(ctx, "eth_gasPrice", nil, &res); err != nil {
		return nil, err
	}
	return res.ToInt(), nil
}

// GetChainID returns the EIP-155 chain id of the endpoint.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	var res hexutil.Big
	if err := c.callRequired(ctx, "eth_chainId", nil, &res); err != nil {
		return nil, err
	}
	return res.ToInt(), nil
}

// SendRawTransaction broadcasts a signed transaction and returns its hash.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	var hash string
	if err := c.callRequired(ctx, "eth_sendRawTransaction", []interface{}{hexutil.Encode(raw)}, &hash); err != nil {
		return "", err
	}
	c.logger.Info("transaction broadcast", "tx_hash", hash)
	return hash, nil
}

// GetTransactionReceipt returns the receipt for hash, or nil while the
// transaction is not mined yet.
func (c *Client) GetTransactionReceipt(ctx context.Context, hash string) (*models.Receipt, error) {
	var receipt *models.Receipt
	if err := c.Call(ctx, "eth_getTransactionReceipt", []interface{}{hash}, &receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

// callRequired is Call for methods that never legitimately return null.
func (c *Client) callRequired(ctx context.Context, method string, params []interface{}, result interface{}) error {
	var raw json.RawMessage
	if err := c.Call(ctx, method, params, &raw); err != nil {
		return err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%w: %s returned no result", models.ErrRPC, method)
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%w: decode %s result: %v", models.ErrRPC, method, err)
	}
	return nil
}
