// Package tron reads bridge activity from the TronGrid HTTP API.
package tron

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/devblac/bridge-indexer/internal/source"
)

// APIKeyHeader authenticates TronGrid requests.
const APIKeyHeader = "TRON-PRO-API-KEY"

// Block is the head block as reported by getnowblock.
type Block struct {
	Number    uint64
	Timestamp uint64
}

// TokenTransfer is one TRC-20 transfer of an account listing.
type TokenTransfer struct {
	TransactionID string `json:"transaction_id"`
	TokenInfo     struct {
		Address  string `json:"address"`
		Symbol   string `json:"symbol"`
		Decimals uint8  `json:"decimals"`
	} `json:"token_info"`
	BlockTimestamp uint64 `json:"block_timestamp"`
	From           string `json:"from"`
	To             string `json:"to"`
	Type           string `json:"type"`
	Value          string `json:"value"`
}

// TransferQuery pages TRC-20 transfers of an account, oldest first.
type TransferQuery struct {
	Address      string
	MinTimestamp uint64
	Limit        int
	Fingerprint  string
}

// TransferList is one page of transfers. Fingerprint is empty on the last
// page.
type TransferList struct {
	Transfers   []TokenTransfer
	Fingerprint string
}

// EventLog is a log entry of gettransactioninfobyid. Address is 20-byte hex
// without the 41 prefix; topics and data are hex without 0x.
type EventLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// TransactionInfo is the execution result of a transaction.
type TransactionInfo struct {
	ID             string `json:"id"`
	Fee            uint64 `json:"fee"`
	BlockNumber    uint64 `json:"blockNumber"`
	BlockTimeStamp uint64 `json:"blockTimeStamp"`
	Receipt        struct {
		Result    string `json:"result"`
		EnergyFee uint64 `json:"energy_fee"`
		NetFee    uint64 `json:"net_fee"`
	} `json:"receipt"`
	Log        []EventLog `json:"log"`
	Result     string     `json:"result"`
	ResMessage string     `json:"resMessage"`
}

// Failed reports whether the virtual machine rejected the transaction.
func (i *TransactionInfo) Failed() bool {
	if i.Result == "FAILED" {
		return true
	}
	return i.Receipt.Result != "" && i.Receipt.Result != "SUCCESS"
}

// Transaction is the signed transaction; raw_data.data holds the memo.
type Transaction struct {
	TxID string `json:"txID"`
	Ret  []struct {
		ContractRet string `json:"contractRet"`
	} `json:"ret"`
	RawData struct {
		Data      string `json:"data"`
		Timestamp int64  `json:"timestamp"`
	} `json:"raw_data"`
}

// Client is what the pager and parsers need from Tron.
type Client interface {
	NowBlock(ctx context.Context) (Block, error)
	Transfers(ctx context.Context, q TransferQuery) (TransferList, error)
	TransactionInfo(ctx context.Context, id string) (*TransactionInfo, error)
	Transaction(ctx context.Context, id string) (*Transaction, error)
}

// HTTPClient talks to a TronGrid compatible endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration

	mu   sync.RWMutex
	http *http.Client
}

// NewHTTPClient builds a client for baseURL, e.g. https://api.trongrid.io.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, timeout: timeout}
	_ = c.Reconnect(context.Background())
	return c
}

// Reconnect drops pooled connections.
func (c *HTTPClient) Reconnect(context.Context) error {
	hc := &http.Client{Timeout: c.timeout}
	c.mu.Lock()
	c.http = hc
	c.mu.Unlock()
	return nil
}

// Ping fetches the head block.
func (c *HTTPClient) Ping(ctx context.Context) error {
	_, err := c.NowBlock(ctx)
	return err
}

// NowBlock returns the latest block number and timestamp.
func (c *HTTPClient) NowBlock(ctx context.Context) (Block, error) {
	var out struct {
		BlockHeader struct {
			RawData struct {
				Number    uint64 `json:"number"`
				Timestamp uint64 `json:"timestamp"`
			} `json:"raw_data"`
		} `json:"block_header"`
	}
	if err := c.post(ctx, "/wallet/getnowblock", struct{}{}, &out); err != nil {
		return Block{}, err
	}
	return Block{Number: out.BlockHeader.RawData.Number, Timestamp: out.BlockHeader.RawData.Timestamp}, nil
}

// Transfers lists TRC-20 transfers of an account in block time order.
func (c *HTTPClient) Transfers(ctx context.Context, q TransferQuery) (TransferList, error) {
	params := url.Values{}
	params.Set("order_by", "block_timestamp,asc")
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.MinTimestamp > 0 {
		params.Set("min_timestamp", strconv.FormatUint(q.MinTimestamp, 10))
	}
	if q.Fingerprint != "" {
		params.Set("fingerprint", q.Fingerprint)
	}
	var out struct {
		Data    []TokenTransfer `json:"data"`
		Success bool            `json:"success"`
		Error   string          `json:"error"`
		Meta    struct {
			Fingerprint string `json:"fingerprint"`
		} `json:"meta"`
	}
	path := "/v1/accounts/" + url.PathEscape(q.Address) + "/transactions/trc20"
	if err := c.get(ctx, path, params, &out); err != nil {
		return TransferList{}, err
	}
	if !out.Success {
		return TransferList{}, source.Transport(fmt.Errorf("list transfers of %s: %s", q.Address, out.Error))
	}
	return TransferList{Transfers: out.Data, Fingerprint: out.Meta.Fingerprint}, nil
}

// TransactionInfo fetches the execution result. A transaction not yet in
// a block is a transport error so the poller retries it.
func (c *HTTPClient) TransactionInfo(ctx context.Context, id string) (*TransactionInfo, error) {
	var out TransactionInfo
	if err := c.post(ctx, "/wallet/gettransactioninfobyid", map[string]string{"value": id}, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, source.Transport(fmt.Errorf("transaction info %s not available", id))
	}
	return &out, nil
}

// Transaction fetches the signed transaction.
func (c *HTTPClient) Transaction(ctx context.Context, id string) (*Transaction, error) {
	var out Transaction
	if err := c.post(ctx, "/wallet/gettransactionbyid", map[string]string{"value": id}, &out); err != nil {
		return nil, err
	}
	if out.TxID == "" {
		return nil, source.Transport(fmt.Errorf("transaction %s not available", id))
	}
	return &out, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}
	c.mu.RLock()
	hc := c.http
	c.mu.RUnlock()

	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return source.Transport(fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return source.Transport(fmt.Errorf("%s %s: read body: %w", req.Method, req.URL.Path, err))
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return source.Transport(fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode))
	case resp.StatusCode >= 300:
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
