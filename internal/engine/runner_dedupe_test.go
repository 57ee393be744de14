package engine

import (
	"testing"
)

func TestBuildDedupeKey(t *testing.T) {
	fields := map[string]any{
		"txn_id_hashed": "0xabc",
		"txn_type":      "Deposit",
		"to_network":    "tron",
	}

	key := buildDedupeKey("txn_id_hashed:to_network:v1", fields)
	if key != "0xabc:tron:v1" {
		t.Fatalf("unexpected key: %s", key)
	}

	key = buildDedupeKey("", fields)
	if key != "0xabc:Deposit" {
		t.Fatalf("default key mismatch: %s", key)
	}
}
