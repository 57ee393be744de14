package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/devblac/bridge-indexer/internal/source"
)

// Client captures the subset of an EVM node the pager and parsers use.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockTime(ctx context.Context, number uint64) (time.Time, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// RPCClient wraps go-ethereum's rpc and ethclient and can be redialed
// between retry attempts. Every error it returns is marked as transport.
type RPCClient struct {
	url string

	mu  sync.RWMutex
	rpc *rpc.Client
	eth *ethclient.Client

	tsMu    sync.RWMutex
	tsCache map[uint64]uint64
}

// Dial connects to an EVM node.
func Dial(ctx context.Context, url string) (*RPCClient, error) {
	c := &RPCClient{url: url, tsCache: map[uint64]uint64{}}
	if err := c.Reconnect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Reconnect drops the current connection and dials again.
func (c *RPCClient) Reconnect(ctx context.Context) error {
	rc, err := rpc.DialContext(ctx, c.url)
	if err != nil {
		return source.Transport(fmt.Errorf("dial evm rpc: %w", err))
	}
	c.mu.Lock()
	old := c.rpc
	c.rpc = rc
	c.eth = ethclient.NewClient(rc)
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// Close releases the connection.
func (c *RPCClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc != nil {
		c.rpc.Close()
	}
}

func (c *RPCClient) client() *ethclient.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eth
}

// Ping asks the node for its chain id.
func (c *RPCClient) Ping(ctx context.Context) error {
	_, err := c.client().ChainID(ctx)
	return source.Transport(err)
}

func (c *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.client().BlockNumber(ctx)
	return n, source.Transport(err)
}

// BlockTime returns the block timestamp, cached per height.
func (c *RPCClient) BlockTime(ctx context.Context, number uint64) (time.Time, error) {
	c.tsMu.RLock()
	ts, ok := c.tsCache[number]
	c.tsMu.RUnlock()
	if ok {
		return time.Unix(int64(ts), 0).UTC(), nil
	}
	h, err := c.client().HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return time.Time{}, source.Transport(fmt.Errorf("header %d: %w", number, err))
	}
	c.tsMu.Lock()
	c.tsCache[number] = h.Time
	c.tsMu.Unlock()
	return time.Unix(int64(h.Time), 0).UTC(), nil
}

func (c *RPCClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	logs, err := c.client().FilterLogs(ctx, q)
	return logs, source.Transport(err)
}

func (c *RPCClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	r, err := c.client().TransactionReceipt(ctx, hash)
	return r, source.Transport(err)
}

func (c *RPCClient) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	tx, pending, err := c.client().TransactionByHash(ctx, hash)
	return tx, pending, source.Transport(err)
}
