package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devblac/bridge-indexer/internal/model"
)

func testNetworks(t *testing.T) *model.Networks {
	t.Helper()
	nets, err := model.NewNetworks(model.DefaultNetworks()...)
	require.NoError(t, err)
	return nets
}

func testAssets(t *testing.T) *Assets {
	t.Helper()
	a, err := NewAssets(testNetworks(t), []BaseAsset{
		{
			AssetID: "weth", AssetName: "Wrapped Ether", AssetSymbol: "WETH",
			Chains: []ChainToken{
				{Chain: "ethereum", Symbol: "WETH", Decimals: 18, Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", VaultAddress: "0x00000000000000000000000000000000000000aa", VaultID: 4, VaultType: VaultOutgoing},
				{Chain: "tron", Symbol: "WETHt", Decimals: 18, Address: "TXYZopYRdj2D9XRtbG411XZZ3kM5VkAeBf", VaultID: 4, VaultType: VaultIncoming},
			},
		},
		{
			AssetID: "usdc", AssetName: "USD Coin", AssetSymbol: "USDC",
			Chains: []ChainToken{
				{Chain: "ethereum", Symbol: "USDC", Decimals: 6, Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", VaultID: 1, VaultAddress: "0x00000000000000000000000000000000000000bb", VaultType: VaultOutgoing},
				{Chain: "algorand", Symbol: "USDCa", Decimals: 6, AssetID: 31566704, VaultType: VaultIncoming, MinAmount: "5"},
			},
		},
	})
	require.NoError(t, err)
	return a
}

func TestTokensLookup(t *testing.T) {
	r := NewTokens(testNetworks(t))
	require.NoError(t, r.LoadConfig("ethereum", []Token{
		{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
	}))
	require.NoError(t, r.LoadConfig("algorand", []Token{{Symbol: "USDC", AssetID: 31566704, Decimals: 6}}))

	tok, err := r.GetToken("ethereum", "usdc")
	require.NoError(t, err)
	assert.Equal(t, uint8(6), tok.Decimals)

	tok, err = r.GetFromAddress("ethereum", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	require.NoError(t, err)
	assert.Equal(t, "USDC", tok.Symbol)

	tok, err = r.GetFromAddress("algorand", "31566704")
	require.NoError(t, err)
	assert.Equal(t, "USDC", tok.Symbol)

	_, err = r.GetToken("ethereum", "DAI")
	assert.ErrorIs(t, err, model.ErrTokenUnresolved)

	_, err = r.GetToken("solana", "USDC")
	assert.ErrorIs(t, err, model.ErrConfig)

	_, err = r.GetToken("cosmos", "USDC")
	assert.ErrorIs(t, err, model.ErrConfig)
}

func TestTokensAddIsIdempotentUnion(t *testing.T) {
	r := NewTokens(testNetworks(t))
	require.NoError(t, r.LoadConfig("ethereum", []Token{{Symbol: "USDC", Decimals: 6}}))

	extra := []Token{{Symbol: "usdc", Decimals: 18}, {Symbol: "DAI", Decimals: 18}}
	require.NoError(t, r.Add("ethereum", extra))
	require.NoError(t, r.Add("ethereum", extra))

	list := r.List("ethereum")
	require.Len(t, list, 2)
	usdc, err := r.GetToken("ethereum", "USDC")
	require.NoError(t, err)
	assert.Equal(t, uint8(6), usdc.Decimals)
}

func TestAssetsLookups(t *testing.T) {
	a := testAssets(t)

	base, err := a.BaseAsset("weth")
	require.NoError(t, err)
	assert.Equal(t, "Wrapped Ether", base.AssetName)

	child, err := a.Child(base, "tron")
	require.NoError(t, err)
	assert.Equal(t, "WETHt", child.Symbol)

	_, err = a.Token("tron", "wetht")
	assert.ErrorIs(t, err, model.ErrTokenUnresolved)

	byVault, err := a.ByVaultID("ethereum", 4)
	require.NoError(t, err)
	assert.Equal(t, "WETH", byVault.Symbol)

	byAddr, err := a.ByVault("ethereum", "0x00000000000000000000000000000000000000AA")
	require.NoError(t, err)
	assert.Equal(t, "WETH", byAddr.Symbol)

	asa, err := a.ByAssetID("algorand", 31566704)
	require.NoError(t, err)
	assert.Equal(t, "USDCa", asa.Symbol)
	assert.Equal(t, "5", asa.Minimum().String())

	parent, err := a.Parent(asa)
	require.NoError(t, err)
	assert.Equal(t, "USDC", parent.AssetSymbol)
}

func TestParentUsesIdentityNotContents(t *testing.T) {
	twin := ChainToken{Chain: "ethereum", Symbol: "A", Decimals: 6}
	a, err := NewAssets(testNetworks(t), []BaseAsset{
		{AssetID: "a", AssetSymbol: "A", Chains: []ChainToken{twin}},
		{AssetID: "b", AssetSymbol: "B", Chains: []ChainToken{{Chain: "tron", Symbol: "A", Decimals: 6}}},
	})
	require.NoError(t, err)

	p, err := a.Parent(ChainToken{Chain: "tron", Symbol: "A", Decimals: 6})
	require.NoError(t, err)
	assert.Equal(t, "B", p.AssetSymbol)
}

func TestAreDerivativesSymmetric(t *testing.T) {
	a := testAssets(t)
	weth, _ := a.Token("ethereum", "WETH")
	wetht, _ := a.Token("tron", "WETHt")
	usdc, _ := a.Token("ethereum", "USDC")

	assert.True(t, a.AreDerivatives(weth, weth))
	assert.True(t, a.AreDerivatives(weth, wetht))
	assert.Equal(t, a.AreDerivatives(weth, wetht), a.AreDerivatives(wetht, weth))
	assert.False(t, a.AreDerivatives(weth, usdc))
	assert.Equal(t, a.AreDerivatives(weth, usdc), a.AreDerivatives(usdc, weth))
}

func TestNewAssetsRejectsBadConfig(t *testing.T) {
	nets := testNetworks(t)
	_, err := NewAssets(nets, []BaseAsset{{AssetID: "x", AssetSymbol: "X", Chains: []ChainToken{{Chain: "mars", Symbol: "X"}}}})
	assert.ErrorIs(t, err, model.ErrConfig)

	_, err = NewAssets(nets, []BaseAsset{{AssetID: "x", AssetSymbol: "X", Chains: []ChainToken{{Chain: "ethereum", Symbol: "X", VaultType: VaultOutgoing}}}})
	assert.ErrorIs(t, err, model.ErrConfig)

	var nilAssets *Assets
	_, err = nilAssets.ByVaultID("ethereum", 1)
	assert.ErrorIs(t, err, model.ErrConfig)
}
