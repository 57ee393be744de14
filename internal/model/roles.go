package model

import (
	"fmt"
	"strings"
)

// Roles are the well-known bridge addresses of one (network, bridge type).
type Roles struct {
	Deposit     string
	Release     string
	FeeReceiver string
	// Contract is the bridge contract emitting events on EVM and Tron.
	Contract string
	// Program is the bridge program id on Solana.
	Program string
	Vaults  []string
}

// IsVault reports whether addr is one of the configured vaults.
func (r Roles) IsVault(kind ChainKind, addr string) bool {
	for _, v := range r.Vaults {
		if kind.SameAddress(v, addr) {
			return true
		}
	}
	return false
}

// RoleKey selects a role set.
type RoleKey struct {
	Network string
	Bridge  BridgeType
}

// RoleBook maps (network, bridge type) to its roles.
type RoleBook map[RoleKey]Roles

// Lookup returns the roles for a network and bridge generation.
func (b RoleBook) Lookup(network string, bridge BridgeType) (Roles, error) {
	r, ok := b[RoleKey{Network: strings.ToLower(network), Bridge: bridge}]
	if !ok {
		return Roles{}, fmt.Errorf("%w: no %s bridge roles for %s", ErrConfig, bridge, network)
	}
	return r, nil
}

// Set registers roles for a network and bridge generation.
func (b RoleBook) Set(network string, bridge BridgeType, r Roles) {
	b[RoleKey{Network: strings.ToLower(network), Bridge: bridge}] = r
}
