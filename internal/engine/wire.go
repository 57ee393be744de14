package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/devblac/bridge-indexer/internal/config"
	"github.com/devblac/bridge-indexer/internal/health"
	"github.com/devblac/bridge-indexer/internal/metrics"
	"github.com/devblac/bridge-indexer/internal/model"
	"github.com/devblac/bridge-indexer/internal/registry"
	"github.com/devblac/bridge-indexer/internal/source"
	"github.com/devblac/bridge-indexer/internal/source/algorand"
	"github.com/devblac/bridge-indexer/internal/source/evm"
	"github.com/devblac/bridge-indexer/internal/source/solana"
	"github.com/devblac/bridge-indexer/internal/source/tron"
)

// Components are the domain objects a config describes.
type Components struct {
	Networks *model.Networks
	Tokens   *registry.Tokens
	Assets   *registry.Assets
	Roles    model.RoleBook
	Pollers  map[string]*source.Poller
	Pingers  map[string]health.Pinger

	closers []func()
}

// Close releases the connectors.
func (c *Components) Close() {
	for _, fn := range c.closers {
		fn()
	}
}

// connector is what each chain client offers besides its chain API.
type connector interface {
	source.Reconnector
	health.Pinger
}

// Build resolves the registries and dials one connector per configured
// network.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger, m *metrics.Metrics) (*Components, error) {
	nets, err := cfg.Directory()
	if err != nil {
		return nil, err
	}
	tokens, assets, err := cfg.Registries(nets)
	if err != nil {
		return nil, err
	}
	roles, err := cfg.RoleBook()
	if err != nil {
		return nil, err
	}
	comp := &Components{
		Networks: nets,
		Tokens:   tokens,
		Assets:   assets,
		Roles:    roles,
		Pollers:  map[string]*source.Poller{},
		Pingers:  map[string]health.Pinger{},
	}

	for _, n := range cfg.Networks {
		net, _ := nets.Get(n.Name)
		pager, table, conn, err := comp.dial(ctx, net, n)
		if err != nil {
			comp.Close()
			return nil, fmt.Errorf("network %s: %w", n.Name, err)
		}
		poller, err := source.NewPoller(source.PollerConfig{
			Network:  net,
			Networks: nets,
			Pager:    pager,
			Parsers:  table,
			Roles:    roles,
			Conn:     conn,
			Retry: source.RetryPolicy{
				Attempts: cfg.Global.RetryAttempts,
				Backoff:  cfg.Global.RetryBackoff,
			},
			FanOut:   cfg.Global.FanOut,
			Logger:   log,
			Observer: m,
		})
		if err != nil {
			comp.Close()
			return nil, err
		}
		comp.Pollers[net.Name] = poller
		comp.Pingers[net.Name] = conn
	}
	return comp, nil
}

func (c *Components) dial(ctx context.Context, net model.Network, n config.Network) (source.Pager, source.Table, connector, error) {
	table := source.Table{}
	switch net.Kind {
	case model.KindEVM:
		client, err := evm.Dial(ctx, n.RPCURL)
		if err != nil {
			return nil, nil, nil, err
		}
		c.closers = append(c.closers, client.Close)
		err = evm.Register(table, evm.Deps{Client: client, Tokens: c.Tokens, Assets: c.Assets})
		return evm.NewPager(client, n.BlockSpan), table, client, err
	case model.KindAlgorand:
		client, err := algorand.NewClient(algorand.Endpoints{
			AlgodURL:     n.AlgodURL,
			AlgodToken:   n.AlgodToken,
			IndexerURL:   n.IndexerURL,
			IndexerToken: n.IndexerToken,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		err = algorand.Register(table, algorand.Deps{Client: client, Tokens: c.Tokens})
		return algorand.NewPager(client), table, client, err
	case model.KindSolana:
		var headers map[string]string
		if n.APIKey != "" {
			headers = map[string]string{"x-api-key": n.APIKey}
		}
		client := solana.NewRPCClient(n.RPCURL, headers, n.Timeout)
		err := solana.Register(table, solana.Deps{Client: client, Tokens: c.Tokens, Assets: c.Assets})
		return solana.NewPager(client), table, client, err
	case model.KindTron:
		client := tron.NewHTTPClient(n.APIURL, n.APIKey, n.Timeout)
		err := tron.Register(table, tron.Deps{Client: client, Tokens: c.Tokens, Assets: c.Assets})
		return tron.NewPager(client), table, client, err
	default:
		return nil, nil, nil, fmt.Errorf("%w: unsupported chain kind %s", model.ErrConfig, strings.ToLower(string(net.Kind)))
	}
}

// PollerSet exposes the pollers to a Runner.
func (c *Components) PollerSet() map[string]Poller {
	out := make(map[string]Poller, len(c.Pollers))
	for name, p := range c.Pollers {
		out[name] = p
	}
	return out
}
