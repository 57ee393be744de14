package model

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// RoutingPoint is one end of a transfer leg.
type RoutingPoint struct {
	Network            string `json:"network"`
	Address            string `json:"address"`
	Symbol             string `json:"symbol"`
	BaseUnits          *uint8 `json:"base_units,omitempty"`
	TxnSignature       string `json:"txn_signature,omitempty"`
	TxnSignatureHashed string `json:"txn_signature_hashed,omitempty"`
}

// Routing describes a leg whose two ends share one decimal scale.
type Routing struct {
	From   RoutingPoint    `json:"from"`
	To     RoutingPoint    `json:"to"`
	Amount decimal.Decimal `json:"amount"`
	Units  *big.Int        `json:"units"`
}

// NewRouting derives the human amount from units and decimals.
func NewRouting(from, to RoutingPoint, units *big.Int, decimals uint8) *Routing {
	return &Routing{
		From:   from,
		To:     to,
		Amount: FromBaseUnits(units, decimals),
		Units:  new(big.Int).Set(units),
	}
}

// Check verifies amount == units / 10^decimals.
func (r Routing) Check(decimals uint8) error {
	if r.Units == nil {
		return fmt.Errorf("routing: units missing")
	}
	if want := FromBaseUnits(r.Units, decimals); !want.Equal(r.Amount) {
		return fmt.Errorf("routing: amount %s does not match %s units at %d decimals", r.Amount, r.Units, decimals)
	}
	return nil
}

// Routing2Point carries its own decimal scale because bridge v2 moves one
// logical asset between chains with different decimal counts.
type Routing2Point struct {
	Network            string   `json:"network"`
	Address            string   `json:"address"`
	Symbol             string   `json:"symbol"`
	BaseUnits          uint8    `json:"base_units"`
	Units              *big.Int `json:"units"`
	TxnSignature       string   `json:"txn_signature,omitempty"`
	TxnSignatureHashed string   `json:"txn_signature_hashed,omitempty"`
}

// Routing2 is the per-point-scale revision of Routing.
type Routing2 struct {
	From   Routing2Point   `json:"from"`
	To     Routing2Point   `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// NewRouting2 builds a leg from the observed units on the source side. The
// destination units are the same amount expressed at the destination scale.
func NewRouting2(from, to Routing2Point, units *big.Int) *Routing2 {
	amount := FromBaseUnits(units, from.BaseUnits)
	from.Units = new(big.Int).Set(units)
	to.Units = ToBaseUnits(amount, to.BaseUnits)
	return &Routing2{From: from, To: to, Amount: amount}
}
