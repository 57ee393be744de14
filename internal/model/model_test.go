package model

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoutingAmount(t *testing.T) {
	r := NewRouting(
		RoutingPoint{Network: "ethereum", Address: "0xabc", Symbol: "USDC"},
		RoutingPoint{Network: "algorand", Address: "ALGO", Symbol: "USDCa"},
		big.NewInt(2_500_000), 6,
	)
	assert.Equal(t, "2.5", r.Amount.String())
	require.NoError(t, r.Check(6))
	assert.Error(t, r.Check(18))
}

func TestNewRouting2ScalesPerPoint(t *testing.T) {
	units, _ := new(big.Int).SetString("1000000000000000000", 10)
	r := NewRouting2(
		Routing2Point{Network: "ethereum", Symbol: "WETH", BaseUnits: 18},
		Routing2Point{Network: "tron", Symbol: "WETHt", BaseUnits: 8},
		units,
	)
	assert.Equal(t, "1", r.Amount.String())
	assert.Equal(t, units.String(), r.From.Units.String())
	assert.Equal(t, "100000000", r.To.Units.String())
}

func TestSettled(t *testing.T) {
	tx := PartialBridgeTxn{TxnType: TxnDeposit, ChainStatus: StatusCompleted}
	assert.True(t, tx.Settled())

	tx.TxnType = TxnError
	assert.False(t, tx.Settled())

	tx = PartialBridgeTxn{TxnType: TxnRelease, ChainStatus: StatusFailed}
	assert.False(t, tx.Settled())
}

func TestSetStatus(t *testing.T) {
	tx := PartialBridgeTxn{Confirmations: 3}
	tx.SetStatus(false, 12)
	assert.Equal(t, StatusPending, tx.ChainStatus)

	tx.Confirmations = 12
	tx.SetStatus(false, 12)
	assert.Equal(t, StatusCompleted, tx.ChainStatus)

	tx.SetStatus(true, 12)
	assert.Equal(t, StatusFailed, tx.ChainStatus)
}

func TestFieldsCarryRouting(t *testing.T) {
	tx := PartialBridgeTxn{
		TxnType: TxnDeposit,
		Network: "ethereum",
		Routing2: &Routing2{
			From: Routing2Point{Network: "ethereum", Address: "0x1"},
			To:   Routing2Point{Network: "tron", Address: "TX"},
		},
	}
	f := tx.Fields()
	assert.Equal(t, "Deposit", f["txn_type"])
	assert.Equal(t, "tron", f["to_network"])
	assert.Equal(t, "0x1", f["from_address"])
}

func TestRoleBookLookup(t *testing.T) {
	book := RoleBook{}
	book.Set("Ethereum", BridgeV2, Roles{Contract: "0xbridge", Vaults: []string{"0xVault"}})

	r, err := book.Lookup("ethereum", BridgeV2)
	require.NoError(t, err)
	assert.True(t, r.IsVault(KindEVM, "0xvault"))
	assert.False(t, r.IsVault(KindSolana, "0xvault"))

	_, err = book.Lookup("ethereum", BridgeLegacy)
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestParseEnums(t *testing.T) {
	b, err := ParseBridgeType(" V2 ")
	require.NoError(t, err)
	assert.Equal(t, BridgeV2, b)
	_, err = ParseBridgeType("wormhole")
	assert.ErrorIs(t, err, ErrConfig)

	k, err := ParseChainKind("Tron")
	require.NoError(t, err)
	assert.Equal(t, KindTron, k)
	_, err = ParseChainKind("cosmos")
	assert.ErrorIs(t, err, ErrConfig)
}

func TestNetworksDirectory(t *testing.T) {
	nets, err := NewNetworks(DefaultNetworks()...)
	require.NoError(t, err)

	tron, ok := nets.ByBridgeID(7)
	require.True(t, ok)
	assert.Equal(t, "tron", tron.Name)

	_, err = NewNetworks(Network{Name: "a", BridgeID: 1}, Network{Name: "b", BridgeID: 1})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestParseDepositNote(t *testing.T) {
	n, err := ParseDepositNote([]byte(` {"network":"ethereum","address":"0xabc","referral":"r1"} `))
	require.NoError(t, err)
	assert.Equal(t, "ethereum", n.Network)
	assert.Equal(t, "r1", n.Referral)
	assert.False(t, n.Empty())

	n, err = ParseDepositNote(nil)
	require.NoError(t, err)
	assert.True(t, n.Empty())

	_, err = ParseDepositNote([]byte("hello"))
	assert.Error(t, err)
}
