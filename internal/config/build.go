package config

import (
	"fmt"
	"strings"

	"github.com/devblac/bridge-indexer/internal/cursor"
	"github.com/devblac/bridge-indexer/internal/model"
	"github.com/devblac/bridge-indexer/internal/registry"
)

// Directory merges the configured networks over the built-in bridge chain
// table and applies per-network confirmation overrides.
func (c *Config) Directory() (*model.Networks, error) {
	byName := map[string]model.Network{}
	var order []string
	add := func(n model.Network) {
		name := strings.ToLower(n.Name)
		if _, ok := byName[name]; !ok {
			order = append(order, name)
		}
		byName[name] = n
	}
	for _, n := range model.DefaultNetworks() {
		add(n)
	}
	for _, n := range c.Networks {
		kind, err := model.ParseChainKind(n.Kind)
		if err != nil {
			return nil, err
		}
		net, known := byName[strings.ToLower(n.Name)]
		if known && net.Kind != kind {
			return nil, fmt.Errorf("%w: network %s is %s, configured as %s", model.ErrConfig, n.Name, net.Kind, kind)
		}
		net.Name, net.Kind = n.Name, kind
		if n.BridgeID != 0 {
			net.BridgeID = n.BridgeID
		}
		add(net)
	}
	for name, confs := range c.Global.Confirmations {
		net, ok := byName[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("%w: confirmations for unknown network %s", model.ErrConfig, name)
		}
		net.Confirmations = confs
		add(net)
	}

	list := make([]model.Network, 0, len(order))
	for _, name := range order {
		list = append(list, byName[name])
	}
	return model.NewNetworks(list...)
}

// Registries loads the legacy token lists and, when assets are configured,
// the bridge-v2 asset registry. Assets is nil without v2 configuration.
func (c *Config) Registries(nets *model.Networks) (*registry.Tokens, *registry.Assets, error) {
	tokens := registry.NewTokens(nets)
	for network, list := range c.Tokens {
		if err := tokens.LoadConfig(network, list); err != nil {
			return nil, nil, fmt.Errorf("tokens: %w", err)
		}
	}
	if len(c.Assets) == 0 {
		return tokens, nil, nil
	}
	assets, err := registry.NewAssets(nets, c.Assets)
	if err != nil {
		return nil, nil, fmt.Errorf("assets: %w", err)
	}
	return tokens, assets, nil
}

// RoleBook collects the bridge roles of every configured network.
func (c *Config) RoleBook() (model.RoleBook, error) {
	book := model.RoleBook{}
	for _, n := range c.Networks {
		for name, r := range n.Bridges {
			bridge, err := model.ParseBridgeType(name)
			if err != nil {
				return nil, fmt.Errorf("network %s: %w", n.Name, err)
			}
			book.Set(n.Name, bridge, model.Roles{
				Deposit:     r.Deposit,
				Release:     r.Release,
				FeeReceiver: r.FeeReceiver,
				Contract:    r.Contract,
				Program:     r.Program,
				Vaults:      r.Vaults,
			})
		}
	}
	return book, nil
}

// Seeds returns a fresh cursor per configured address. Callers replace a
// seed with its persisted state when one exists.
func (c *Config) Seeds(nets *model.Networks) ([]cursor.Cursor, error) {
	out := make([]cursor.Cursor, 0, len(c.Cursors))
	for _, cc := range c.Cursors {
		net, ok := nets.Get(cc.Network)
		if !ok {
			return nil, fmt.Errorf("%w: cursor %s: unknown network", model.ErrConfig, cc.Key())
		}
		bridge, err := model.ParseBridgeType(cc.BridgeType)
		if err != nil {
			return nil, fmt.Errorf("cursor %s: %w", cc.Key(), err)
		}
		cur := cursor.ForNetwork(net, bridge, cc.Address, cc.Limit)
		cur.Start = cc.Start
		if cc.Filter != nil {
			f, err := cc.Filter.build()
			if err != nil {
				return nil, fmt.Errorf("cursor %s: %w", cc.Key(), err)
			}
			cur.Filter = f
		}
		out = append(out, cur)
	}
	return out, nil
}

func (f Filter) build() (*cursor.Filter, error) {
	out := &cursor.Filter{}
	for _, t := range f.Types {
		tt, ok := txnTypes[strings.ToLower(t)]
		if !ok {
			return nil, fmt.Errorf("%w: unknown txn type %q", model.ErrConfig, t)
		}
		out.Types = append(out.Types, tt)
	}
	for _, s := range f.Statuses {
		st, ok := statuses[strings.ToLower(s)]
		if !ok {
			return nil, fmt.Errorf("%w: unknown chain status %q", model.ErrConfig, s)
		}
		out.Statuses = append(out.Statuses, st)
	}
	return out, nil
}

var txnTypes = map[string]model.TxnType{}

var statuses = map[string]model.ChainStatus{}

func init() {
	for _, t := range []model.TxnType{
		model.TxnDeposit, model.TxnRelease, model.TxnRefund, model.TxnTransfer,
		model.TxnFeeTransfer, model.TxnFinalize, model.TxnError, model.TxnUnknown,
		model.TxnBadRouting,
	} {
		txnTypes[strings.ToLower(string(t))] = t
	}
	for _, s := range []model.ChainStatus{model.StatusPending, model.StatusCompleted, model.StatusFailed} {
		statuses[strings.ToLower(string(s))] = s
	}
}
