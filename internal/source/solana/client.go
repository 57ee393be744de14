// Package solana reads bridge activity from a Solana JSON-RPC node.
package solana

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ybbus/jsonrpc"

	"github.com/devblac/bridge-indexer/internal/source"
)

// Commitment used for every read.
const Commitment = "confirmed"

// Signature is one entry of getSignaturesForAddress, newest first.
type Signature struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Err       any    `json:"err"`
}

// SignatureQuery pages signatures of an address. Before and Until are
// exclusive bounds.
type SignatureQuery struct {
	Address string
	Before  string
	Until   string
	Limit   int
}

// Transaction is a getTransaction result in "json" encoding.
type Transaction struct {
	Slot        uint64 `json:"slot"`
	BlockTime   *int64 `json:"blockTime"`
	Meta        *Meta  `json:"meta"`
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    Message  `json:"message"`
	} `json:"transaction"`
}

// Message is the account table and top-level instructions.
type Message struct {
	AccountKeys  []string      `json:"accountKeys"`
	Instructions []Instruction `json:"instructions"`
}

// Instruction data is base58 encoded.
type Instruction struct {
	ProgramIDIndex int    `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"`
}

// InnerInstructions are the CPIs of one top-level instruction.
type InnerInstructions struct {
	Index        int           `json:"index"`
	Instructions []Instruction `json:"instructions"`
}

// TokenBalance is an SPL token account balance before or after execution.
type TokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		Amount   string `json:"amount"`
		Decimals uint8  `json:"decimals"`
	} `json:"uiTokenAmount"`
}

// Meta is the execution status of a transaction.
type Meta struct {
	Err               any                 `json:"err"`
	Fee               uint64              `json:"fee"`
	PreBalances       []uint64            `json:"preBalances"`
	PostBalances      []uint64            `json:"postBalances"`
	PreTokenBalances  []TokenBalance      `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance      `json:"postTokenBalances"`
	InnerInstructions []InnerInstructions `json:"innerInstructions"`
	LogMessages       []string            `json:"logMessages"`
	LoadedAddresses   *struct {
		Writable []string `json:"writable"`
		Readonly []string `json:"readonly"`
	} `json:"loadedAddresses"`
}

// Failed reports whether the transaction was rejected.
func (t *Transaction) Failed() bool {
	return t.Meta != nil && t.Meta.Err != nil
}

// Time is the block time, zero when the node does not know it.
func (t *Transaction) Time() time.Time {
	if t.BlockTime == nil {
		return time.Time{}
	}
	return time.Unix(*t.BlockTime, 0).UTC()
}

// AccountKeys lists static keys followed by keys loaded from lookup tables,
// which is the order instruction indexes refer to.
func (t *Transaction) AccountKeys() []string {
	keys := append([]string(nil), t.Transaction.Message.AccountKeys...)
	if t.Meta != nil && t.Meta.LoadedAddresses != nil {
		keys = append(keys, t.Meta.LoadedAddresses.Writable...)
		keys = append(keys, t.Meta.LoadedAddresses.Readonly...)
	}
	return keys
}

// Client is what the pager and parsers need from Solana.
type Client interface {
	Slot(ctx context.Context) (uint64, error)
	Signatures(ctx context.Context, q SignatureQuery) ([]Signature, error)
	Transaction(ctx context.Context, signature string) (*Transaction, error)
}

// RPCClient is a JSON-RPC client. The underlying library has no context
// support, so calls observe ctx only before they start and rely on the HTTP
// timeout otherwise.
type RPCClient struct {
	endpoint string
	headers  map[string]string
	timeout  time.Duration

	mu  sync.RWMutex
	rpc jsonrpc.RPCClient
}

// NewRPCClient builds a client for endpoint. headers are sent with every
// call, for providers that authenticate by header.
func NewRPCClient(endpoint string, headers map[string]string, timeout time.Duration) *RPCClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &RPCClient{endpoint: endpoint, headers: headers, timeout: timeout}
	_ = c.Reconnect(context.Background())
	return c
}

// Reconnect drops pooled connections by building a fresh HTTP client.
func (c *RPCClient) Reconnect(context.Context) error {
	rpc := jsonrpc.NewClientWithOpts(c.endpoint, &jsonrpc.RPCClientOpts{
		HTTPClient:    &http.Client{Timeout: c.timeout},
		CustomHeaders: c.headers,
	})
	c.mu.Lock()
	c.rpc = rpc
	c.mu.Unlock()
	return nil
}

func (c *RPCClient) call(ctx context.Context, out any, method string, params ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.RLock()
	rpc := c.rpc
	c.mu.RUnlock()
	err := rpc.CallFor(out, method, params...)
	if err == nil {
		return nil
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == invalidParams {
		return fmt.Errorf("%s: %w", method, err)
	}
	return source.Transport(fmt.Errorf("%s: %w", method, err))
}

const invalidParams = -32602

// Ping fetches the slot.
func (c *RPCClient) Ping(ctx context.Context) error {
	_, err := c.Slot(ctx)
	return err
}

// Slot returns the current confirmed slot.
func (c *RPCClient) Slot(ctx context.Context) (uint64, error) {
	var slot uint64
	err := c.call(ctx, &slot, "getSlot", []any{map[string]any{"commitment": Commitment}})
	return slot, err
}

// Signatures lists signatures of an address, newest first.
func (c *RPCClient) Signatures(ctx context.Context, q SignatureQuery) ([]Signature, error) {
	opts := map[string]any{"commitment": Commitment}
	if q.Limit > 0 {
		opts["limit"] = q.Limit
	}
	if q.Before != "" {
		opts["before"] = q.Before
	}
	if q.Until != "" {
		opts["until"] = q.Until
	}
	var out []Signature
	if err := c.call(ctx, &out, "getSignaturesForAddress", q.Address, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// Transaction fetches one transaction. A transaction the node does not
// serve yet is a transport error so the poller retries it.
func (c *RPCClient) Transaction(ctx context.Context, signature string) (*Transaction, error) {
	var out *Transaction
	err := c.call(ctx, &out, "getTransaction", signature, map[string]any{
		"encoding":                       "json",
		"commitment":                     Commitment,
		"maxSupportedTransactionVersion": 0,
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, source.Transport(fmt.Errorf("transaction %s not available", signature))
	}
	return out, nil
}
