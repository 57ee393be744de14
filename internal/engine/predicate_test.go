package engine

import (
	"math/big"
	"testing"
	"time"
)

func TestCompilePredicates_NumericComparisons(t *testing.T) {
	preds, err := CompilePredicates([]string{"amount > 10", "amount < 20", "amount >= 12.5"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	fields := map[string]any{"amount": "12.5"}
	for _, p := range preds {
		ok, err := p(fields)
		if err != nil {
			t.Fatalf("eval: %v", err)
		}
		if !ok {
			t.Fatalf("expected predicate to pass")
		}
	}
}

func TestCompilePredicates_ExactLargeUnits(t *testing.T) {
	// 2^64 + 1 is not representable as a float64.
	units := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(1))
	preds, err := CompilePredicates([]string{"units > 18446744073709551616"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ok, err := preds[0](map[string]any{"units": units.String()})
	if err != nil || !ok {
		t.Fatalf("expected exact comparison to pass, got %v err=%v", ok, err)
	}
}

func TestCompilePredicates_InAndContains(t *testing.T) {
	preds, err := CompilePredicates([]string{"to_network in tron,solana", "referral contains partner"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	fields := map[string]any{"to_network": "Solana", "referral": "partner-42"}
	for _, p := range preds {
		ok, err := p(fields)
		if err != nil {
			t.Fatalf("eval: %v", err)
		}
		if !ok {
			t.Fatalf("expected predicate to pass")
		}
	}
}

func TestCompilePredicates_StringEquality(t *testing.T) {
	preds, err := CompilePredicates([]string{"txn_type == deposit", "chain_status != Failed"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	fields := map[string]any{"txn_type": "Deposit", "chain_status": "Completed"}
	for _, p := range preds {
		ok, err := p(fields)
		if err != nil || !ok {
			t.Fatalf("expected true, got %v err=%v", ok, err)
		}
	}
}

func TestCompilePredicates_MissingFieldFails(t *testing.T) {
	preds, err := CompilePredicates([]string{"to_network == tron"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if ok, _ := preds[0](map[string]any{}); ok {
		t.Fatalf("expected missing field to fail the predicate")
	}
	if _, err := CompilePredicates([]string{"amount"}); err == nil {
		t.Fatalf("expected unsupported expression to fail")
	}
}

func TestEvaluateNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1_000_000", "1000000"},
		{"1e6", "1000000"},
		{"wei(1e18)", "1000000000000000000"},
		{"microAlgos(5)", "5"},
		{"1_000 * 1e6", "1000000000"},
	}
	for _, tc := range tests {
		got, ok := evaluateNumber(tc.in)
		if !ok || got.String() != tc.want {
			t.Fatalf("evaluateNumber(%q) = %s %v, want %s", tc.in, got, ok, tc.want)
		}
	}
	if _, ok := evaluateNumber("1 * 2 * 3"); ok {
		t.Fatalf("expected chained multiplication to be rejected")
	}
}

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(2, 1) // capacity=2, 1 token/sec
	now := time.Now()

	if !tb.Allow(now) || !tb.Allow(now) {
		t.Fatalf("expected initial tokens available")
	}
	if tb.Allow(now) {
		t.Fatalf("expected third to be rate-limited")
	}

	// Refill after 1.5s -> should allow one
	now = now.Add(1500 * time.Millisecond)
	if !tb.Allow(now) {
		t.Fatalf("expected token after refill")
	}
}
