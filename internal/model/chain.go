package model

import (
	"fmt"
	"strings"
)

// ChainKind groups networks that share a transport, address encoding and
// pagination primitive.
type ChainKind string

const (
	KindEVM      ChainKind = "evm"
	KindAlgorand ChainKind = "algorand"
	KindSolana   ChainKind = "solana"
	KindTron     ChainKind = "tron"
)

// ParseChainKind normalises a configured chain kind.
func ParseChainKind(s string) (ChainKind, error) {
	switch k := ChainKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindEVM, KindAlgorand, KindSolana, KindTron:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unsupported chain kind %q", ErrConfig, s)
	}
}

// SameAddress compares two native addresses. EVM hex is case-insensitive;
// every other encoding is compared exactly.
func (k ChainKind) SameAddress(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if k == KindEVM {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// Network is one configured ledger.
type Network struct {
	Name string
	Kind ChainKind
	// BridgeID is the numeric chain id bridge contracts use for routing.
	BridgeID      uint16
	Confirmations uint64
}

// Networks is a read-only directory of configured networks.
type Networks struct {
	byName map[string]Network
	byID   map[uint16]Network
}

// NewNetworks indexes networks by name and bridge id.
func NewNetworks(list ...Network) (*Networks, error) {
	n := &Networks{
		byName: make(map[string]Network, len(list)),
		byID:   make(map[uint16]Network, len(list)),
	}
	for _, net := range list {
		name := strings.ToLower(net.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: network name is required", ErrConfig)
		}
		if _, dup := n.byName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate network %s", ErrConfig, name)
		}
		net.Name = name
		n.byName[name] = net
		if net.BridgeID == 0 {
			continue
		}
		if other, dup := n.byID[net.BridgeID]; dup {
			return nil, fmt.Errorf("%w: bridge id %d used by %s and %s", ErrConfig, net.BridgeID, other.Name, name)
		}
		n.byID[net.BridgeID] = net
	}
	return n, nil
}

// Get returns the network with the given name.
func (n *Networks) Get(name string) (Network, bool) {
	if n == nil {
		return Network{}, false
	}
	net, ok := n.byName[strings.ToLower(name)]
	return net, ok
}

// ByBridgeID resolves the numeric chain id carried in bridge payloads.
func (n *Networks) ByBridgeID(id uint16) (Network, bool) {
	if n == nil {
		return Network{}, false
	}
	net, ok := n.byID[id]
	return net, ok
}

// Names lists configured network names.
func (n *Networks) Names() []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.byName))
	for name := range n.byName {
		out = append(out, name)
	}
	return out
}

// DefaultNetworks is the bridge chain id table used when the config does not
// override it.
func DefaultNetworks() []Network {
	return []Network{
		{Name: "ethereum", Kind: KindEVM, BridgeID: 1, Confirmations: 12},
		{Name: "bsc", Kind: KindEVM, BridgeID: 2, Confirmations: 15},
		{Name: "polygon", Kind: KindEVM, BridgeID: 3, Confirmations: 64},
		{Name: "avalanche", Kind: KindEVM, BridgeID: 4, Confirmations: 1},
		{Name: "algorand", Kind: KindAlgorand, BridgeID: 5},
		{Name: "solana", Kind: KindSolana, BridgeID: 6, Confirmations: 32},
		{Name: "tron", Kind: KindTron, BridgeID: 7, Confirmations: 19},
		{Name: "arbitrum", Kind: KindEVM, BridgeID: 8, Confirmations: 1},
		{Name: "base", Kind: KindEVM, BridgeID: 9, Confirmations: 1},
	}
}
