// Package algorand reads bridge activity from the Algorand indexer.
package algorand

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/common"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/indexer"

	"github.com/devblac/bridge-indexer/internal/source"
)

// statusGetter models the algod Status() fluent call.
type statusGetter interface {
	Do(ctx context.Context, headers ...*common.Header) (models.NodeStatus, error)
}

// healthGetter models the indexer HealthCheck() fluent call.
type healthGetter interface {
	Do(ctx context.Context, headers ...*common.Header) (models.HealthCheck, error)
}

// Query selects indexer transactions touching one address.
type Query struct {
	Address  string
	MinRound uint64
	Next     string
	Limit    uint64
}

// Client is what the pager and parsers need from Algorand.
type Client interface {
	Head(ctx context.Context) (uint64, error)
	Search(ctx context.Context, q Query) (models.TransactionsResponse, error)
	Transaction(ctx context.Context, id string) (models.Transaction, error)
}

// Endpoints locates the Algorand services.
type Endpoints struct {
	AlgodURL     string
	AlgodToken   string
	IndexerURL   string
	IndexerToken string
}

// SDKClient talks to algod and the indexer through go-algorand-sdk.
type SDKClient struct {
	ep Endpoints

	mu      sync.RWMutex
	algod   *algod.Client
	indexer *indexer.Client
}

// NewClient builds SDK clients for the endpoints. The indexer is required;
// algod is optional and only used for the chain head.
func NewClient(ep Endpoints) (*SDKClient, error) {
	c := &SDKClient{ep: ep}
	if err := c.Reconnect(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// Reconnect rebuilds the SDK clients.
func (c *SDKClient) Reconnect(context.Context) error {
	if c.ep.IndexerURL == "" {
		return errors.New("algorand indexer url is required")
	}
	idx, err := indexer.MakeClient(c.ep.IndexerURL, c.ep.IndexerToken)
	if err != nil {
		return fmt.Errorf("indexer client: %w", err)
	}
	var ad *algod.Client
	if c.ep.AlgodURL != "" {
		ad, err = algod.MakeClient(c.ep.AlgodURL, c.ep.AlgodToken)
		if err != nil {
			return fmt.Errorf("algod client: %w", err)
		}
	}
	c.mu.Lock()
	c.indexer, c.algod = idx, ad
	c.mu.Unlock()
	return nil
}

func (c *SDKClient) clients() (*indexer.Client, *algod.Client) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexer, c.algod
}

func (c *SDKClient) status() statusGetter {
	_, ad := c.clients()
	if ad == nil {
		return nil
	}
	return ad.Status()
}

func (c *SDKClient) health() healthGetter {
	idx, _ := c.clients()
	return idx.HealthCheck()
}

// Head returns the last round, from algod when configured and the indexer
// otherwise.
func (c *SDKClient) Head(ctx context.Context) (uint64, error) {
	if st := c.status(); st != nil {
		s, err := st.Do(ctx)
		if err != nil {
			return 0, source.Transport(fmt.Errorf("algod status: %w", err))
		}
		return s.LastRound, nil
	}
	h, err := c.health().Do(ctx)
	if err != nil {
		return 0, source.Transport(fmt.Errorf("indexer health: %w", err))
	}
	return h.Round, nil
}

// Ping checks both services.
func (c *SDKClient) Ping(ctx context.Context) error {
	if _, err := c.health().Do(ctx); err != nil {
		return fmt.Errorf("indexer health: %w", err)
	}
	if st := c.status(); st != nil {
		if _, err := st.Do(ctx); err != nil {
			return fmt.Errorf("algod status: %w", err)
		}
	}
	return nil
}

// Search lists transactions of an address in round order.
func (c *SDKClient) Search(ctx context.Context, q Query) (models.TransactionsResponse, error) {
	idx, _ := c.clients()
	req := idx.SearchForTransactions().Address(q.Address).MinRound(q.MinRound)
	if q.Limit > 0 {
		req = req.Limit(q.Limit)
	}
	if q.Next != "" {
		req = req.NextToken(q.Next)
	}
	resp, err := req.Do(ctx)
	if err != nil {
		return models.TransactionsResponse{}, source.Transport(fmt.Errorf("search %s: %w", q.Address, err))
	}
	return resp, nil
}

// Transaction looks up one confirmed transaction.
func (c *SDKClient) Transaction(ctx context.Context, id string) (models.Transaction, error) {
	idx, _ := c.clients()
	resp, err := idx.LookupTransaction(id).Do(ctx)
	if err != nil {
		return models.Transaction{}, source.Transport(fmt.Errorf("lookup %s: %w", id, err))
	}
	return resp.Transaction, nil
}
