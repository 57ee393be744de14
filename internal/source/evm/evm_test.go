package evm

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devblac/bridge-indexer/internal/codec"
	"github.com/devblac/bridge-indexer/internal/cursor"
	"github.com/devblac/bridge-indexer/internal/model"
	"github.com/devblac/bridge-indexer/internal/registry"
	"github.com/devblac/bridge-indexer/internal/source"
)

var (
	bridgeContract = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	vault          = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	weth           = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc           = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	sender         = common.HexToAddress("0x2222222222222222222222222222222222222222")
	depositWallet  = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

const tronDest = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

type fakeClient struct {
	head     uint64
	receipts map[common.Hash]*types.Receipt
	txs      map[common.Hash]*types.Transaction
	logs     []types.Log
	queries  []ethereum.FilterQuery
}

func (f *fakeClient) BlockNumber(context.Context) (uint64, error) { return f.head, nil }

func (f *fakeClient) BlockTime(_ context.Context, n uint64) (time.Time, error) {
	return time.Unix(1_700_000_000+int64(n), 0).UTC(), nil
}

func (f *fakeClient) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.queries = append(f.queries, q)
	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber < q.FromBlock.Uint64() || lg.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && lg.Address != q.Addresses[0] {
			continue
		}
		if !topicsMatch(q.Topics, lg.Topics) {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func topicsMatch(filter [][]common.Hash, topics []common.Hash) bool {
	for i, want := range filter {
		if len(want) == 0 {
			continue
		}
		if i >= len(topics) || topics[i] != want[0] {
			return false
		}
	}
	return true
}

func (f *fakeClient) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	r, ok := f.receipts[h]
	if !ok {
		return nil, source.Transport(fmt.Errorf("receipt %s not found", h))
	}
	return r, nil
}

func (f *fakeClient) TransactionByHash(_ context.Context, h common.Hash) (*types.Transaction, bool, error) {
	return f.txs[h], false, nil
}

func addrTopic(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))
}

func transferLog(t *testing.T, token, from, to common.Address, value *big.Int) *types.Log {
	t.Helper()
	ev, err := V2Events()
	require.NoError(t, err)
	data, err := ev.ABI.Events[EventTransfer].Inputs.NonIndexed().Pack(value)
	require.NoError(t, err)
	return &types.Log{
		Address: token,
		Topics:  []common.Hash{ev.Topic(EventTransfer), addrTopic(from), addrTopic(to)},
		Data:    data,
	}
}

func v2DepositLog(t *testing.T, vaultID uint64, from common.Address, amount *big.Int, chainID uint16, dest [32]byte) *types.Log {
	t.Helper()
	ev, err := V2Events()
	require.NoError(t, err)
	data, err := ev.ABI.Events[EventDeposit].Inputs.NonIndexed().Pack(amount, chainID, dest)
	require.NoError(t, err)
	return &types.Log{
		Address: bridgeContract,
		Topics:  []common.Hash{ev.Topic(EventDeposit), common.BigToHash(new(big.Int).SetUint64(vaultID)), addrTopic(from)},
		Data:    data,
	}
}

func testTarget(t *testing.T, network string, bridge model.BridgeType, roles model.Roles, head uint64) source.Target {
	t.Helper()
	nets, err := model.NewNetworks(model.DefaultNetworks()...)
	require.NoError(t, err)
	net, ok := nets.Get(network)
	require.True(t, ok)
	return source.Target{Network: net, Networks: nets, Bridge: bridge, Address: roles.Contract, Roles: roles, Head: head}
}

func testAssets(t *testing.T) *registry.Assets {
	t.Helper()
	nets, err := model.NewNetworks(model.DefaultNetworks()...)
	require.NoError(t, err)
	a, err := registry.NewAssets(nets, []registry.BaseAsset{{
		AssetID: "weth", AssetName: "Wrapped Ether", AssetSymbol: "WETH",
		Chains: []registry.ChainToken{
			{Chain: "ethereum", Symbol: "WETH", Decimals: 18, Address: weth.Hex(), VaultID: 4, VaultType: registry.VaultOutgoing, VaultAddress: vault.Hex()},
			{Chain: "tron", Symbol: "WETHt", Decimals: 18, VaultID: 4, VaultType: registry.VaultIncoming},
		},
	}})
	require.NoError(t, err)
	return a
}

func receiptWith(block uint64, status uint64, logs ...*types.Log) *types.Receipt {
	return &types.Receipt{
		Status:            status,
		BlockNumber:       new(big.Int).SetUint64(block),
		GasUsed:           21000,
		EffectiveGasPrice: big.NewInt(2_000_000_000),
		Logs:              logs,
	}
}

func TestV2DepositToTron(t *testing.T) {
	hash := common.HexToHash("0x01")
	dest, err := codec.SerializeAddress(model.KindTron, tronDest)
	require.NoError(t, err)
	var dest32 [32]byte
	copy(dest32[:], dest)
	oneEther, _ := new(big.Int).SetString("1000000000000000000", 10)

	client := &fakeClient{receipts: map[common.Hash]*types.Receipt{
		hash: receiptWith(100, types.ReceiptStatusSuccessful,
			v2DepositLog(t, 4, sender, oneEther, 7, dest32),
			transferLog(t, weth, sender, vault, oneEther),
		),
	}}
	p, err := NewV2Parser(client, testAssets(t))
	require.NoError(t, err)

	target := testTarget(t, "ethereum", model.BridgeV2, model.Roles{Contract: bridgeContract.Hex()}, 130)
	rec, err := p.Process(context.Background(), target, source.Item{ID: hash.Hex(), Block: 100})
	require.NoError(t, err)

	assert.Equal(t, model.TxnDeposit, rec.TxnType)
	assert.Equal(t, "WETH", rec.TokenSymbol)
	assert.True(t, rec.Amount.Equal(decimal.NewFromInt(1)), rec.Amount.String())
	require.NotNil(t, rec.Routing2)
	assert.Equal(t, "tron", rec.Routing2.To.Network)
	assert.Equal(t, tronDest, rec.Routing2.To.Address)
	assert.Equal(t, "WETHt", rec.Routing2.To.Symbol)
	assert.Equal(t, sender.Hex(), rec.Routing2.From.Address)
	assert.Equal(t, model.StatusCompleted, rec.ChainStatus)
	assert.Equal(t, uint64(30), rec.Confirmations)
	assert.Equal(t, "42000000000000", rec.GasPaid.String())
}

func TestV2DepositRejectsWrongVaultCounterparty(t *testing.T) {
	hash := common.HexToHash("0x02")
	var dest32 [32]byte
	dest32[31] = 1
	amount := big.NewInt(5)
	client := &fakeClient{receipts: map[common.Hash]*types.Receipt{
		hash: receiptWith(100, types.ReceiptStatusSuccessful,
			v2DepositLog(t, 4, sender, amount, 7, dest32),
			transferLog(t, weth, sender, depositWallet, amount),
		),
	}}
	p, err := NewV2Parser(client, testAssets(t))
	require.NoError(t, err)

	target := testTarget(t, "ethereum", model.BridgeV2, model.Roles{Contract: bridgeContract.Hex()}, 100)
	_, err = p.Process(context.Background(), target, source.Item{ID: hash.Hex()})
	assert.ErrorIs(t, err, model.ErrVaultCounterparty)
}

func TestV2DepositUnknownChainIsBadRouting(t *testing.T) {
	hash := common.HexToHash("0x03")
	var dest32 [32]byte
	dest32[31] = 9
	amount := big.NewInt(5)
	client := &fakeClient{receipts: map[common.Hash]*types.Receipt{
		hash: receiptWith(100, types.ReceiptStatusSuccessful,
			v2DepositLog(t, 4, sender, amount, 4242, dest32),
			transferLog(t, weth, sender, vault, amount),
		),
	}}
	p, err := NewV2Parser(client, testAssets(t))
	require.NoError(t, err)

	rec, err := p.Process(context.Background(), testTarget(t, "ethereum", model.BridgeV2, model.Roles{Contract: bridgeContract.Hex()}, 100), source.Item{ID: hash.Hex()})
	require.NoError(t, err)
	assert.Equal(t, model.TxnBadRouting, rec.TxnType)
	assert.False(t, rec.Settled())
}

func TestV2MalformedBridgeEventIsError(t *testing.T) {
	hash := common.HexToHash("0x04")
	lg := v2DepositLog(t, 4, sender, big.NewInt(1), 7, [32]byte{})
	lg.Data = lg.Data[:10]
	client := &fakeClient{receipts: map[common.Hash]*types.Receipt{
		hash: receiptWith(100, types.ReceiptStatusSuccessful, lg),
	}}
	p, err := NewV2Parser(client, testAssets(t))
	require.NoError(t, err)

	rec, err := p.Process(context.Background(), testTarget(t, "ethereum", model.BridgeV2, model.Roles{Contract: bridgeContract.Hex()}, 100), source.Item{ID: hash.Hex()})
	require.NoError(t, err)
	assert.Equal(t, model.TxnError, rec.TxnType)
	assert.NotEmpty(t, rec.Reason)
}

func TestLegacyTransferIntoDepositIsTransfer(t *testing.T) {
	hash := common.HexToHash("0x05")
	client := &fakeClient{receipts: map[common.Hash]*types.Receipt{
		hash: receiptWith(50, types.ReceiptStatusSuccessful, transferLog(t, usdc, sender, depositWallet, big.NewInt(2_500_000))),
	}}
	nets, err := model.NewNetworks(model.DefaultNetworks()...)
	require.NoError(t, err)
	tokens := registry.NewTokens(nets)
	require.NoError(t, tokens.LoadConfig("ethereum", []registry.Token{{Symbol: "USDC", Address: usdc.Hex(), Decimals: 6}}))

	p, err := NewLegacyParser(client, tokens)
	require.NoError(t, err)
	roles := model.Roles{Deposit: depositWallet.Hex()}
	rec, err := p.Process(context.Background(), testTarget(t, "ethereum", model.BridgeLegacy, roles, 51), source.Item{ID: hash.Hex()})
	require.NoError(t, err)

	assert.Equal(t, model.TxnTransfer, rec.TxnType)
	assert.Equal(t, "USDC", rec.TokenSymbol)
	assert.Equal(t, "2.5", rec.Amount.String())
	assert.Equal(t, model.StatusPending, rec.ChainStatus)
}

func TestLegacyFailedReceipt(t *testing.T) {
	hash := common.HexToHash("0x06")
	r := receiptWith(50, types.ReceiptStatusFailed)
	r.EffectiveGasPrice = nil
	tx := types.NewTx(&types.LegacyTx{GasPrice: big.NewInt(7), Gas: 21000})
	client := &fakeClient{
		receipts: map[common.Hash]*types.Receipt{hash: r},
		txs:      map[common.Hash]*types.Transaction{hash: tx},
	}
	nets, _ := model.NewNetworks(model.DefaultNetworks()...)
	tokens := registry.NewTokens(nets)
	require.NoError(t, tokens.LoadConfig("bsc", nil))
	p, err := NewLegacyParser(client, tokens)
	require.NoError(t, err)

	rec, err := p.Process(context.Background(), testTarget(t, "bsc", model.BridgeLegacy, model.Roles{}, 100), source.Item{ID: hash.Hex()})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, rec.ChainStatus)
	assert.Equal(t, "147000", rec.GasPaid.String())
}

func TestPagerKeepsBlocksWhole(t *testing.T) {
	contract := bridgeContract
	mk := func(block uint64, tx byte, idx uint) types.Log {
		return types.Log{Address: contract, BlockNumber: block, TxHash: common.BytesToHash([]byte{tx}), Index: idx, Topics: []common.Hash{{0x01}}}
	}
	client := &fakeClient{head: 100, logs: []types.Log{
		mk(10, 1, 0), mk(10, 1, 1), mk(11, 2, 0), mk(11, 3, 1), mk(12, 4, 0),
	}}
	p := NewPager(client, 1000)

	c := cursor.New("ethereum", model.BridgeV2, contract.Hex(), 2)
	c.Start = "10"
	page, err := p.Page(context.Background(), c)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3, "block 11 is kept whole")
	assert.Equal(t, uint64(11), page.MaxBlock)
	assert.Zero(t, page.Scanned)

	c = cursor.Advance(c, page.IDs(), page.MaxBlock, page.Token)
	page, err = p.Page(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, uint64(12), page.Items[0].Block)
	assert.Equal(t, uint64(100), page.Scanned)
}

func TestPagerStartsAtLatestMinusN(t *testing.T) {
	client := &fakeClient{head: 100}
	p := NewPager(client, 5)

	c := cursor.New("ethereum", model.BridgeV2, bridgeContract.Hex(), 10)
	c.Start = "latest-10"
	page, err := p.Page(context.Background(), c)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	require.NotEmpty(t, client.queries)
	assert.Equal(t, uint64(90), client.queries[0].FromBlock.Uint64())
	assert.Equal(t, uint64(94), page.Scanned)
}

func TestRegisterSkipsMissingRegistries(t *testing.T) {
	table := source.Table{}
	require.NoError(t, Register(table, Deps{Client: &fakeClient{}, Assets: testAssets(t)}))
	_, err := table.Lookup(model.KindEVM, model.BridgeV2)
	assert.NoError(t, err)
	_, err = table.Lookup(model.KindEVM, model.BridgeLegacy)
	assert.ErrorIs(t, err, model.ErrConfig)
}

func eventLog(t *testing.T, ev *Events, name string, indexed []common.Hash, values ...any) *types.Log {
	t.Helper()
	data, err := ev.ABI.Events[name].Inputs.NonIndexed().Pack(values...)
	require.NoError(t, err)
	return &types.Log{
		Address: bridgeContract,
		Topics:  append([]common.Hash{ev.Topic(name)}, indexed...),
		Data:    data,
	}
}

func legacyTokens(t *testing.T) *registry.Tokens {
	t.Helper()
	nets, err := model.NewNetworks(model.DefaultNetworks()...)
	require.NoError(t, err)
	tokens := registry.NewTokens(nets)
	require.NoError(t, tokens.LoadConfig("ethereum", []registry.Token{{Symbol: "USDC", Address: usdc.Hex(), Decimals: 6}}))
	return tokens
}

func legacyProcess(t *testing.T, hash common.Hash, head uint64, logs ...*types.Log) model.PartialBridgeTxn {
	t.Helper()
	client := &fakeClient{receipts: map[common.Hash]*types.Receipt{
		hash: receiptWith(100, types.ReceiptStatusSuccessful, logs...),
	}}
	p, err := NewLegacyParser(client, legacyTokens(t))
	require.NoError(t, err)
	roles := model.Roles{Contract: bridgeContract.Hex(), Deposit: depositWallet.Hex()}
	rec, err := p.Process(context.Background(), testTarget(t, "ethereum", model.BridgeLegacy, roles, head), source.Item{ID: hash.Hex()})
	require.NoError(t, err)
	return rec
}

func TestLegacyBridgeDepositRoutesToSolana(t *testing.T) {
	events, err := LegacyEvents()
	require.NoError(t, err)
	var dest [32]byte
	for i := range dest {
		dest[i] = byte(i + 1)
	}
	amount := big.NewInt(7_500_000)

	rec := legacyProcess(t, common.HexToHash("0x10"), 200,
		eventLog(t, events, EventDeposit, []common.Hash{addrTopic(sender), addrTopic(usdc)}, amount, uint16(6), dest),
		transferLog(t, usdc, sender, depositWallet, amount),
	)

	assert.Equal(t, model.TxnDeposit, rec.TxnType)
	assert.Equal(t, "USDC", rec.TokenSymbol)
	assert.Equal(t, "7.5", rec.Amount.String())
	require.NotNil(t, rec.Routing)
	assert.Equal(t, sender.Hex(), rec.Routing.From.Address)
	assert.Equal(t, rec.TxnID, rec.Routing.From.TxnSignature)
	assert.Equal(t, "solana", rec.Routing.To.Network)
	wantAddr, err := codec.DeserializeAddress(model.KindSolana, dest[:])
	require.NoError(t, err)
	assert.Equal(t, wantAddr, rec.Routing.To.Address)
	assert.Equal(t, "USDC", rec.Routing.To.Symbol)
	assert.Equal(t, model.StatusCompleted, rec.ChainStatus)
}

func TestLegacyBridgeDepositWideKeyToEVMIsBadRouting(t *testing.T) {
	events, err := LegacyEvents()
	require.NoError(t, err)
	var dest [32]byte
	for i := range dest {
		dest[i] = byte(i + 1)
	}

	rec := legacyProcess(t, common.HexToHash("0x11"), 200,
		eventLog(t, events, EventDeposit, []common.Hash{addrTopic(sender), addrTopic(usdc)}, big.NewInt(1_000_000), uint16(1), dest),
	)
	assert.Equal(t, model.TxnBadRouting, rec.TxnType)
	assert.Nil(t, rec.Routing)
	assert.NotEmpty(t, rec.Reason)
}

func TestLegacyBridgeReleaseAndRefundCarryOriginHash(t *testing.T) {
	events, err := LegacyEvents()
	require.NoError(t, err)
	origin := common.HexToHash("0xabcdef")

	cases := []struct {
		event string
		want  model.TxnType
	}{
		{EventRelease, model.TxnRelease},
		{EventRefund, model.TxnRefund},
	}
	for i, tc := range cases {
		t.Run(tc.event, func(t *testing.T) {
			rec := legacyProcess(t, common.BigToHash(big.NewInt(int64(0x20+i))), 200,
				eventLog(t, events, tc.event, []common.Hash{addrTopic(sender), addrTopic(usdc)}, big.NewInt(3_000_000), [32]byte(origin)),
			)
			assert.Equal(t, tc.want, rec.TxnType)
			assert.Equal(t, "3", rec.Amount.String())
			require.NotNil(t, rec.Routing)
			assert.Equal(t, origin.Hex(), rec.Routing.From.TxnSignature)
			assert.Equal(t, sender.Hex(), rec.Routing.To.Address)
			assert.Equal(t, rec.TxnID, rec.Routing.To.TxnSignature)
		})
	}
}

func TestLegacyBridgeEventUnknownTokenFails(t *testing.T) {
	events, err := LegacyEvents()
	require.NoError(t, err)
	hash := common.HexToHash("0x12")
	client := &fakeClient{receipts: map[common.Hash]*types.Receipt{
		hash: receiptWith(100, types.ReceiptStatusSuccessful,
			eventLog(t, events, EventRelease, []common.Hash{addrTopic(sender), addrTopic(weth)}, big.NewInt(1), [32]byte{}),
		),
	}}
	p, err := NewLegacyParser(client, legacyTokens(t))
	require.NoError(t, err)
	roles := model.Roles{Contract: bridgeContract.Hex()}
	_, err = p.Process(context.Background(), testTarget(t, "ethereum", model.BridgeLegacy, roles, 200), source.Item{ID: hash.Hex()})
	assert.ErrorIs(t, err, model.ErrTokenUnresolved)
}

// usdcAssets has different scales on each chain so origin units rescale.
func usdcAssets(t *testing.T) *registry.Assets {
	t.Helper()
	nets, err := model.NewNetworks(model.DefaultNetworks()...)
	require.NoError(t, err)
	a, err := registry.NewAssets(nets, []registry.BaseAsset{{
		AssetID: "usdc", AssetSymbol: "USDC",
		Chains: []registry.ChainToken{
			{Chain: "ethereum", Symbol: "USDC", Decimals: 6, Address: usdc.Hex(), VaultID: 2, VaultType: registry.VaultOutgoing, VaultAddress: vault.Hex()},
			{Chain: "tron", Symbol: "USDCt", Decimals: 18, VaultID: 2, VaultType: registry.VaultIncoming},
		},
	}})
	require.NoError(t, err)
	return a
}

func v2Process(t *testing.T, hash common.Hash, logs ...*types.Log) (model.PartialBridgeTxn, error) {
	t.Helper()
	client := &fakeClient{receipts: map[common.Hash]*types.Receipt{
		hash: receiptWith(100, types.ReceiptStatusSuccessful, logs...),
	}}
	p, err := NewV2Parser(client, usdcAssets(t))
	require.NoError(t, err)
	target := testTarget(t, "ethereum", model.BridgeV2, model.Roles{Contract: bridgeContract.Hex()}, 200)
	return p.Process(context.Background(), target, source.Item{ID: hash.Hex()})
}

func vaultTopic(id uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(id))
}

func TestV2ReleaseRescalesOriginUnits(t *testing.T) {
	events, err := V2Events()
	require.NoError(t, err)
	srcHash := common.HexToHash("0x5151")
	amount := big.NewInt(2_500_000)

	rec, err := v2Process(t, common.HexToHash("0x30"),
		eventLog(t, events, EventRelease, []common.Hash{vaultTopic(2), addrTopic(sender)}, amount, uint16(7), [32]byte(srcHash)),
		transferLog(t, usdc, vault, sender, amount),
	)
	require.NoError(t, err)

	assert.Equal(t, model.TxnRelease, rec.TxnType)
	assert.Equal(t, "USDC", rec.TokenSymbol)
	assert.Equal(t, "2.5", rec.Amount.String())
	require.NotNil(t, rec.Routing2)
	assert.Equal(t, "tron", rec.Routing2.From.Network)
	assert.Equal(t, "USDCt", rec.Routing2.From.Symbol)
	assert.Equal(t, uint8(18), rec.Routing2.From.BaseUnits)
	assert.Equal(t, "2500000000000000000", rec.Routing2.From.Units.String())
	assert.Equal(t, srcHash.Hex(), rec.Routing2.From.TxnSignature)
	assert.Equal(t, sender.Hex(), rec.Routing2.To.Address)
	assert.Equal(t, "2500000", rec.Routing2.To.Units.String())
}

func TestV2ReleaseFromUnknownChainKeepsOriginEmpty(t *testing.T) {
	events, err := V2Events()
	require.NoError(t, err)
	amount := big.NewInt(1_000_000)

	rec, err := v2Process(t, common.HexToHash("0x31"),
		eventLog(t, events, EventRelease, []common.Hash{vaultTopic(2), addrTopic(sender)}, amount, uint16(4242), [32]byte{}),
		transferLog(t, usdc, vault, sender, amount),
	)
	require.NoError(t, err)
	assert.Equal(t, model.TxnRelease, rec.TxnType)
	assert.Empty(t, rec.Routing2.From.Network)
}

func TestV2RefundStaysOnOwnNetwork(t *testing.T) {
	events, err := V2Events()
	require.NoError(t, err)
	depositHash := common.HexToHash("0x6161")
	amount := big.NewInt(4_000_000)

	rec, err := v2Process(t, common.HexToHash("0x32"),
		eventLog(t, events, EventRefund, []common.Hash{vaultTopic(2), addrTopic(sender)}, amount, [32]byte(depositHash)),
		transferLog(t, usdc, vault, sender, amount),
	)
	require.NoError(t, err)

	assert.Equal(t, model.TxnRefund, rec.TxnType)
	require.NotNil(t, rec.Routing2)
	assert.Equal(t, "ethereum", rec.Routing2.From.Network)
	assert.Equal(t, "USDC", rec.Routing2.From.Symbol)
	assert.Equal(t, depositHash.Hex(), rec.Routing2.From.TxnSignature)
	assert.Equal(t, "4000000", rec.Routing2.From.Units.String())
	assert.Equal(t, sender.Hex(), rec.Routing2.To.Address)
}

func TestV2ReleaseOutgoingVaultCounterparty(t *testing.T) {
	events, err := V2Events()
	require.NoError(t, err)
	amount := big.NewInt(1_000_000)
	release := func() *types.Log {
		return eventLog(t, events, EventRelease, []common.Hash{vaultTopic(2), addrTopic(sender)}, amount, uint16(7), [32]byte{})
	}

	_, err = v2Process(t, common.HexToHash("0x33"), release(), transferLog(t, usdc, depositWallet, sender, amount))
	assert.ErrorIs(t, err, model.ErrVaultCounterparty, "tokens must leave the outgoing vault")

	_, err = v2Process(t, common.HexToHash("0x34"), release())
	assert.ErrorIs(t, err, model.ErrVaultCounterparty, "a release needs its paired transfer")
}
