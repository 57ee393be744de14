package registry

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/devblac/bridge-indexer/internal/model"
)

// VaultType says how a bridge-v2 vault holds its asset.
type VaultType string

const (
	// VaultIncoming vaults mint and burn a wrapped asset; the counterparty
	// of their transfers is the zero address.
	VaultIncoming VaultType = "incoming"
	// VaultOutgoing vaults lock the asset; the vault itself is the
	// counterparty.
	VaultOutgoing VaultType = "outgoing"
)

// ChainToken is the representation of a base asset on one chain.
type ChainToken struct {
	Chain        string    `yaml:"chain" json:"chain" validate:"required"`
	Symbol       string    `yaml:"symbol" json:"symbol" validate:"required"`
	Decimals     uint8     `yaml:"decimals" json:"decimals"`
	Address      string    `yaml:"address,omitempty" json:"address,omitempty"`
	AssetID      uint64    `yaml:"asset_id,omitempty" json:"asset_id,omitempty"`
	VaultAddress string    `yaml:"vault_address,omitempty" json:"vault_address,omitempty"`
	VaultID      uint64    `yaml:"vault_id,omitempty" json:"vault_id,omitempty"`
	VaultType    VaultType `yaml:"vault_type,omitempty" json:"vault_type,omitempty"`
	MinAmount    string    `yaml:"min_amount,omitempty" json:"min_amount,omitempty"`
}

// Key identifies a chain token independently of its contents.
func (c ChainToken) Key() ChainKey {
	return ChainKey{Chain: strings.ToLower(c.Chain), Symbol: c.Symbol}
}

// Minimum returns the parsed minimum transfer amount, zero when unset.
func (c ChainToken) Minimum() decimal.Decimal {
	return parseMinimum(c.MinAmount)
}

// BaseAsset is a logical asset and its ordered per-chain children.
type BaseAsset struct {
	AssetID     string       `yaml:"asset_id" json:"asset_id" validate:"required"`
	AssetName   string       `yaml:"asset_name" json:"asset_name"`
	AssetSymbol string       `yaml:"asset_symbol" json:"asset_symbol" validate:"required"`
	Chains      []ChainToken `yaml:"chains" json:"chains" validate:"dive"`
}

// ChainKey is the (chain, local symbol) identity of a child record.
type ChainKey struct {
	Chain  string
	Symbol string
}

type vaultKey struct {
	chain string
	id    uint64
}

// Assets is the bridge-v2 registry. It is built once and read-only.
type Assets struct {
	nets   *model.Networks
	bases  []BaseAsset
	byBase map[string]int
	// parent maps each child to the index of its base asset.
	parent    map[ChainKey]int
	children  map[ChainKey]ChainToken
	byVaultID map[vaultKey]ChainKey
}

// NewAssets indexes base assets and their children.
func NewAssets(nets *model.Networks, bases []BaseAsset) (*Assets, error) {
	a := &Assets{
		nets:      nets,
		byBase:    make(map[string]int, len(bases)),
		parent:    map[ChainKey]int{},
		children:  map[ChainKey]ChainToken{},
		byVaultID: map[vaultKey]ChainKey{},
	}
	for i, b := range bases {
		b.Chains = append([]ChainToken(nil), b.Chains...)
		sym := strings.ToLower(strings.TrimSpace(b.AssetSymbol))
		if sym == "" {
			return nil, fmt.Errorf("%w: asset %q has no asset_symbol", model.ErrConfig, b.AssetID)
		}
		if _, dup := a.byBase[sym]; dup {
			return nil, fmt.Errorf("%w: duplicate asset %s", model.ErrConfig, b.AssetSymbol)
		}
		a.byBase[sym] = i
		for j := range b.Chains {
			c := &b.Chains[j]
			net, ok := nets.Get(c.Chain)
			if !ok {
				return nil, fmt.Errorf("%w: asset %s: unknown chain %q", model.ErrConfig, b.AssetSymbol, c.Chain)
			}
			c.Chain = net.Name
			if err := checkChild(*c); err != nil {
				return nil, fmt.Errorf("asset %s on %s: %w", b.AssetSymbol, c.Chain, err)
			}
			key := c.Key()
			if _, dup := a.children[key]; dup {
				return nil, fmt.Errorf("%w: %s %s belongs to two assets", model.ErrConfig, key.Chain, key.Symbol)
			}
			a.children[key] = *c
			a.parent[key] = i
			if c.VaultID != 0 {
				vk := vaultKey{chain: key.Chain, id: c.VaultID}
				if _, dup := a.byVaultID[vk]; dup {
					return nil, fmt.Errorf("%w: vault id %d reused on %s", model.ErrConfig, c.VaultID, key.Chain)
				}
				a.byVaultID[vk] = key
			}
		}
		a.bases = append(a.bases, b)
	}
	return a, nil
}

func checkChild(c ChainToken) error {
	if strings.TrimSpace(c.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", model.ErrConfig)
	}
	switch c.VaultType {
	case "", VaultIncoming, VaultOutgoing:
	default:
		return fmt.Errorf("%w: unsupported vault_type %q", model.ErrConfig, c.VaultType)
	}
	if c.VaultType == VaultOutgoing && c.VaultAddress == "" {
		return fmt.Errorf("%w: outgoing vault needs vault_address", model.ErrConfig)
	}
	if _, err := decimalOrZero(c.MinAmount); err != nil {
		return fmt.Errorf("%w: min_amount: %v", model.ErrConfig, err)
	}
	return nil
}

// BaseAsset matches a base asset by its asset symbol.
func (a *Assets) BaseAsset(assetSymbol string) (BaseAsset, error) {
	if a == nil {
		return BaseAsset{}, fmt.Errorf("%w: asset registry not loaded", model.ErrConfig)
	}
	i, ok := a.byBase[strings.ToLower(assetSymbol)]
	if !ok {
		return BaseAsset{}, fmt.Errorf("%w: no asset %s", model.ErrTokenUnresolved, assetSymbol)
	}
	return a.bases[i], nil
}

// Token requires an exact (chain, local symbol) match.
func (a *Assets) Token(network, localSymbol string) (ChainToken, error) {
	if a == nil {
		return ChainToken{}, fmt.Errorf("%w: asset registry not loaded", model.ErrConfig)
	}
	c, ok := a.children[ChainKey{Chain: strings.ToLower(network), Symbol: localSymbol}]
	if !ok {
		return ChainToken{}, fmt.Errorf("%w: %s has no token %s", model.ErrTokenUnresolved, network, localSymbol)
	}
	return c, nil
}

// Child returns the representation of a base asset on a network.
func (a *Assets) Child(base BaseAsset, network string) (ChainToken, error) {
	for _, c := range base.Chains {
		if strings.EqualFold(c.Chain, network) {
			return c, nil
		}
	}
	return ChainToken{}, fmt.Errorf("%w: asset %s is not bridged to %s", model.ErrTokenUnresolved, base.AssetSymbol, network)
}

// ByVault resolves a child by its vault address.
func (a *Assets) ByVault(network, vault string) (ChainToken, error) {
	return a.find(network, "vault "+vault, func(kind model.ChainKind, c ChainToken) bool {
		return kind.SameAddress(c.VaultAddress, vault)
	})
}

// ByAddress resolves a child by token contract or mint address.
func (a *Assets) ByAddress(network, address string) (ChainToken, error) {
	return a.find(network, "address "+address, func(kind model.ChainKind, c ChainToken) bool {
		return kind.SameAddress(c.Address, address)
	})
}

// ByAssetID resolves a child by Algorand asset id.
func (a *Assets) ByAssetID(network string, id uint64) (ChainToken, error) {
	return a.find(network, fmt.Sprintf("asset id %d", id), func(_ model.ChainKind, c ChainToken) bool {
		return c.AssetID == id && c.Address == ""
	})
}

// ByVaultID resolves a child by the numeric vault id emitted by v2 bridges.
func (a *Assets) ByVaultID(network string, id uint64) (ChainToken, error) {
	if a == nil {
		return ChainToken{}, fmt.Errorf("%w: asset registry not loaded", model.ErrConfig)
	}
	key, ok := a.byVaultID[vaultKey{chain: strings.ToLower(network), id: id}]
	if !ok {
		return ChainToken{}, fmt.Errorf("%w: %s has no vault %d", model.ErrTokenUnresolved, network, id)
	}
	return a.children[key], nil
}

// Parent returns the base asset owning a child, through the index built at
// load time.
func (a *Assets) Parent(child ChainToken) (BaseAsset, error) {
	if a == nil {
		return BaseAsset{}, fmt.Errorf("%w: asset registry not loaded", model.ErrConfig)
	}
	i, ok := a.parent[child.Key()]
	if !ok {
		return BaseAsset{}, fmt.Errorf("%w: %s %s has no parent", model.ErrTokenUnresolved, child.Chain, child.Symbol)
	}
	return a.bases[i], nil
}

// AreDerivatives reports whether two children share a parent.
func (a *Assets) AreDerivatives(x, y ChainToken) bool {
	if a == nil {
		return false
	}
	px, okx := a.parent[x.Key()]
	py, oky := a.parent[y.Key()]
	return okx && oky && px == py
}

// Bases returns the configured base assets.
func (a *Assets) Bases() []BaseAsset {
	if a == nil {
		return nil
	}
	return append([]BaseAsset(nil), a.bases...)
}

func (a *Assets) find(network, what string, match func(model.ChainKind, ChainToken) bool) (ChainToken, error) {
	if a == nil {
		return ChainToken{}, fmt.Errorf("%w: asset registry not loaded", model.ErrConfig)
	}
	net, ok := a.nets.Get(network)
	if !ok {
		return ChainToken{}, fmt.Errorf("%w: unknown network %q", model.ErrConfig, network)
	}
	for _, b := range a.bases {
		for _, c := range b.Chains {
			if c.Chain == net.Name && match(net.Kind, c) {
				return c, nil
			}
		}
	}
	return ChainToken{}, fmt.Errorf("%w: %s has no token for %s", model.ErrTokenUnresolved, network, what)
}
