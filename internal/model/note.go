package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DepositNote is the routing metadata a user attaches to a deposit, as an
// Algorand note or a Tron memo.
type DepositNote struct {
	Network    string `json:"network" codec:"network"`
	Address    string `json:"address" codec:"address"`
	Referral   string `json:"referral,omitempty" codec:"referral,omitempty"`
	Protocol   string `json:"protocol,omitempty" codec:"protocol,omitempty"`
	DepositTxn string `json:"deposit_txn,omitempty" codec:"deposit_txn,omitempty"`
}

// Empty reports whether the note names no destination.
func (n DepositNote) Empty() bool {
	return strings.TrimSpace(n.Network) == "" && strings.TrimSpace(n.Address) == ""
}

// ParseDepositNote decodes a JSON note. A blank payload yields an empty note
// and no error.
func ParseDepositNote(raw []byte) (DepositNote, error) {
	var n DepositNote
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return n, nil
	}
	if raw[0] != '{' {
		return n, fmt.Errorf("note is not a json object")
	}
	if err := json.Unmarshal(raw, &n); err != nil {
		return DepositNote{}, fmt.Errorf("decode note: %w", err)
	}
	return n, nil
}
