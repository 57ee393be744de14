package health

import (
	"context"
	"fmt"
	"sort"
)

// Pinger is a chain connector that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RPCChecker combines the connector checks of every configured network.
type RPCChecker struct {
	clients map[string]Pinger
}

// NewRPCChecker creates a checker over connectors keyed by network name.
func NewRPCChecker(clients map[string]Pinger) *RPCChecker {
	return &RPCChecker{clients: clients}
}

// Ping checks all connectors and returns the last failure.
func (c *RPCChecker) Ping(ctx context.Context) error {
	var lastErr error
	for _, res := range c.Each(ctx) {
		if res.Err != nil {
			lastErr = fmt.Errorf("network %s: %w", res.Network, res.Err)
		}
	}
	return lastErr
}

// Result is the outcome of one connector check.
type Result struct {
	Network string
	Err     error
}

// Each pings every connector, in network name order.
func (c *RPCChecker) Each(ctx context.Context) []Result {
	names := make([]string, 0, len(c.clients))
	for name := range c.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Result, 0, len(names))
	for _, name := range names {
		out = append(out, Result{Network: name, Err: c.clients[name].Ping(ctx)})
	}
	return out
}
