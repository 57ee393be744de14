package registry

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/devblac/bridge-indexer/internal/model"
)

// Token is a legacy bridge token on one network.
type Token struct {
	Symbol string `yaml:"symbol" json:"symbol" validate:"required"`
	// Address is the contract (EVM, Tron) or mint (Solana).
	Address string `yaml:"address,omitempty" json:"address,omitempty"`
	// AssetID is the Algorand ASA id; zero means the native coin.
	AssetID   uint64 `yaml:"asset_id,omitempty" json:"asset_id,omitempty"`
	Decimals  uint8  `yaml:"decimals" json:"decimals"`
	MinAmount string `yaml:"min_amount,omitempty" json:"min_amount,omitempty"`
}

// Minimum returns the parsed minimum transfer amount, zero when unset.
func (t Token) Minimum() decimal.Decimal {
	return parseMinimum(t.MinAmount)
}

// Tokens is the legacy registry: per network, a set of tokens keyed by
// case-insensitive symbol.
type Tokens struct {
	nets *model.Networks

	mu    sync.RWMutex
	byNet map[string][]Token
}

// NewTokens builds an empty registry over a network directory.
func NewTokens(nets *model.Networks) *Tokens {
	return &Tokens{nets: nets, byNet: map[string][]Token{}}
}

// LoadConfig replaces the token list of a network.
func (r *Tokens) LoadConfig(network string, tokens []Token) error {
	name, err := r.network(network)
	if err != nil {
		return err
	}
	list := make([]Token, 0, len(tokens))
	if err := appendUnique(&list, tokens); err != nil {
		return fmt.Errorf("network %s: %w", name, err)
	}
	r.mu.Lock()
	r.byNet[name] = list
	r.mu.Unlock()
	return nil
}

// Add merges tokens into a network. Symbols already present are kept, so
// repeated calls with the same input leave the registry unchanged.
func (r *Tokens) Add(network string, tokens []Token) error {
	name, err := r.network(network)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byNet[name]
	if err := appendUnique(&list, tokens); err != nil {
		return fmt.Errorf("network %s: %w", name, err)
	}
	r.byNet[name] = list
	return nil
}

// GetToken resolves a token by symbol.
func (r *Tokens) GetToken(network, symbol string) (Token, error) {
	list, err := r.loaded(network)
	if err != nil {
		return Token{}, err
	}
	for _, t := range list {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, nil
		}
	}
	return Token{}, fmt.Errorf("%w: %s has no token %s", model.ErrTokenUnresolved, network, symbol)
}

// GetFromAddress resolves a token by its on-chain reference: contract or
// mint address, or a decimal Algorand asset id.
func (r *Tokens) GetFromAddress(network, ref string) (Token, error) {
	list, err := r.loaded(network)
	if err != nil {
		return Token{}, err
	}
	net, _ := r.nets.Get(network)
	id, idErr := strconv.ParseUint(ref, 10, 64)
	for _, t := range list {
		if net.Kind.SameAddress(t.Address, ref) {
			return t, nil
		}
		if net.Kind == model.KindAlgorand && idErr == nil && t.Address == "" && t.AssetID == id {
			return t, nil
		}
	}
	return Token{}, fmt.Errorf("%w: %s has no token at %s", model.ErrTokenUnresolved, network, ref)
}

// List returns a copy of the tokens of a network.
func (r *Tokens) List(network string) []Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Token(nil), r.byNet[strings.ToLower(network)]...)
}

func (r *Tokens) network(network string) (string, error) {
	net, ok := r.nets.Get(network)
	if !ok {
		return "", fmt.Errorf("%w: unknown network %q", model.ErrConfig, network)
	}
	return net.Name, nil
}

func (r *Tokens) loaded(network string) ([]Token, error) {
	name, err := r.network(network)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	list, ok := r.byNet[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: token registry not loaded for %s", model.ErrConfig, name)
	}
	return list, nil
}

func appendUnique(list *[]Token, tokens []Token) error {
	for _, t := range tokens {
		if strings.TrimSpace(t.Symbol) == "" {
			return fmt.Errorf("%w: token symbol is required", model.ErrConfig)
		}
		if _, err := decimalOrZero(t.MinAmount); err != nil {
			return fmt.Errorf("%w: token %s min_amount: %v", model.ErrConfig, t.Symbol, err)
		}
		exists := false
		for _, have := range *list {
			if strings.EqualFold(have.Symbol, t.Symbol) {
				exists = true
				break
			}
		}
		if !exists {
			*list = append(*list, t)
		}
	}
	return nil
}

func decimalOrZero(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.TrimSpace(s))
}

func parseMinimum(s string) decimal.Decimal {
	d, err := decimalOrZero(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
