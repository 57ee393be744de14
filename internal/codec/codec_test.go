package codec

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devblac/bridge-indexer/internal/model"
)

func TestTronAddressStripsVersionAndPads(t *testing.T) {
	const usdt = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

	neutral, err := SerializeAddress(model.KindTron, usdt)
	require.NoError(t, err)
	require.Len(t, neutral, NeutralSize)
	assert.Equal(t, make([]byte, 12), neutral[:12])

	h, err := TronHex(usdt)
	require.NoError(t, err)
	assert.Equal(t, "41a614f803b6fd780986a42c78ec9c7f77e6ded13c", h)

	back, err := DeserializeAddress(model.KindTron, neutral)
	require.NoError(t, err)
	assert.Equal(t, usdt, back)

	fromHex, err := SerializeAddress(model.KindTron, h)
	require.NoError(t, err)
	assert.Equal(t, neutral, fromHex)
}

func TestEVMAddressIsUnpadded(t *testing.T) {
	const addr = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	neutral, err := SerializeAddress(model.KindEVM, addr)
	require.NoError(t, err)
	assert.Len(t, neutral, 20)

	back, err := DeserializeAddress(model.KindEVM, neutral)
	require.NoError(t, err)
	assert.Equal(t, addr, back)

	padded := append(make([]byte, 12), neutral...)
	back, err = DeserializeAddress(model.KindEVM, padded)
	require.NoError(t, err)
	assert.Equal(t, addr, back)

	_, err = SerializeAddress(model.KindEVM, "0x1234")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestWideKeyIsNotAnEVMOrTronAddress(t *testing.T) {
	key := make([]byte, NeutralSize)
	for i := range key {
		key[i] = byte(i + 1)
	}
	for _, kind := range []model.ChainKind{model.KindEVM, model.KindTron} {
		_, err := DeserializeAddress(kind, key)
		assert.ErrorIs(t, err, ErrInvalidAddress, kind)
	}

	native, err := DeserializeAddress(model.KindSolana, key)
	require.NoError(t, err)
	assert.NotEmpty(t, native)
}

func TestSolanaAndAlgorandRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{7}, NeutralSize)
	for _, kind := range []model.ChainKind{model.KindSolana, model.KindAlgorand} {
		native, err := DeserializeAddress(kind, key)
		require.NoError(t, err, kind)
		neutral, err := SerializeAddress(kind, native)
		require.NoError(t, err, kind)
		assert.Equal(t, key, neutral, kind)
	}

	_, err := DeserializeAddress(model.KindSolana, key[:20])
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestZeroAddresses(t *testing.T) {
	assert.Equal(t, "11111111111111111111111111111111", ZeroAddress(model.KindSolana))
	assert.Equal(t, "0x0000000000000000000000000000000000000000", ZeroAddress(model.KindEVM))
	for _, kind := range []model.ChainKind{model.KindEVM, model.KindTron, model.KindSolana, model.KindAlgorand} {
		assert.True(t, IsZeroAddress(kind, ZeroAddress(kind)), kind)
		assert.True(t, IsZeroAddress(kind, ""), kind)
	}
	assert.False(t, IsZeroAddress(model.KindTron, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"))
}

func TestHashedTransactionID(t *testing.T) {
	evmID := "0x" + "ab" + string(bytes.Repeat([]byte("cd"), 31))
	a, err := HashedTransactionID("ethereum", model.KindEVM, evmID)
	require.NoError(t, err)
	assert.Len(t, a, 66)

	b, err := HashedTransactionID("bsc", model.KindEVM, evmID)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "network must qualify the digest")

	again, err := HashedTransactionID("Ethereum", model.KindEVM, evmID[2:])
	require.NoError(t, err)
	assert.Equal(t, a, again)

	sig := base58.Encode(bytes.Repeat([]byte{9}, 64))
	_, err = HashedTransactionID("solana", model.KindSolana, sig)
	require.NoError(t, err)

	algoID := algoTxnEncoding.EncodeToString(bytes.Repeat([]byte{3}, 32))
	_, err = HashedTransactionID("algorand", model.KindAlgorand, algoID)
	require.NoError(t, err)

	_, err = HashedTransactionID("solana", model.KindSolana, "not-base58-0OIl")
	assert.ErrorIs(t, err, ErrInvalidTxnID)
}
