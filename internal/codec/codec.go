// Package codec converts addresses and transaction ids between native chain
// encodings and a neutral 32-byte form.
package codec

import (
	"bytes"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/devblac/bridge-indexer/internal/model"
)

// NeutralSize is the width of a serialized address.
const NeutralSize = 32

// TronVersion is the address version byte of Tron mainnet.
const TronVersion byte = 0x41

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidTxnID   = errors.New("invalid transaction id")
)

var algoTxnEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// SerializeAddress converts a native address to its neutral form. Tron drops
// the version byte and is left padded to 32 bytes; Solana and Algorand keys
// are 32 bytes already. EVM addresses pass through as 20 bytes.
func SerializeAddress(kind model.ChainKind, native string) ([]byte, error) {
	native = strings.TrimSpace(native)
	switch kind {
	case model.KindEVM:
		if !common.IsHexAddress(native) {
			return nil, fmt.Errorf("%w: evm %q", ErrInvalidAddress, native)
		}
		return common.HexToAddress(native).Bytes(), nil
	case model.KindTron:
		raw, err := tronBytes(native)
		if err != nil {
			return nil, err
		}
		return common.LeftPadBytes(raw, NeutralSize), nil
	case model.KindSolana:
		raw := base58.Decode(native)
		if len(raw) == 0 || len(raw) > NeutralSize {
			return nil, fmt.Errorf("%w: solana %q", ErrInvalidAddress, native)
		}
		return common.LeftPadBytes(raw, NeutralSize), nil
	case model.KindAlgorand:
		addr, err := types.DecodeAddress(native)
		if err != nil {
			return nil, fmt.Errorf("%w: algorand %q: %v", ErrInvalidAddress, native, err)
		}
		return addr[:], nil
	default:
		return nil, fmt.Errorf("%w: chain kind %q", model.ErrConfig, kind)
	}
}

// DeserializeAddress renders neutral bytes in the chain's native encoding.
// EVM and Tron accept either 20 bytes or a 32-byte left padded word.
func DeserializeAddress(kind model.ChainKind, neutral []byte) (string, error) {
	switch kind {
	case model.KindEVM:
		b, err := last20(neutral)
		if err != nil {
			return "", err
		}
		return common.BytesToAddress(b).Hex(), nil
	case model.KindTron:
		b, err := last20(neutral)
		if err != nil {
			return "", err
		}
		return base58.CheckEncode(b, TronVersion), nil
	case model.KindSolana:
		if len(neutral) != NeutralSize {
			return "", fmt.Errorf("%w: solana key has %d bytes", ErrInvalidAddress, len(neutral))
		}
		return base58.Encode(neutral), nil
	case model.KindAlgorand:
		if len(neutral) != NeutralSize {
			return "", fmt.Errorf("%w: algorand key has %d bytes", ErrInvalidAddress, len(neutral))
		}
		var addr types.Address
		copy(addr[:], neutral)
		return addr.String(), nil
	default:
		return "", fmt.Errorf("%w: chain kind %q", model.ErrConfig, kind)
	}
}

// TronHex renders a Tron address as 41-prefixed hex, the form used by the
// node HTTP API.
func TronHex(native string) (string, error) {
	raw, err := tronBytes(native)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(append([]byte{TronVersion}, raw...)), nil
}

// ZeroAddress is the null counterparty of mint and burn transfers.
func ZeroAddress(kind model.ChainKind) string {
	s, _ := DeserializeAddress(kind, make([]byte, NeutralSize))
	return s
}

// IsZeroAddress reports whether addr is empty or decodes to all zero bytes.
func IsZeroAddress(kind model.ChainKind, addr string) bool {
	if strings.TrimSpace(addr) == "" {
		return true
	}
	b, err := SerializeAddress(kind, addr)
	if err != nil {
		return false
	}
	return bytes.Equal(b, make([]byte, len(b)))
}

// HashedTransactionID qualifies a native transaction id with its network and
// hashes it, so legs on different chains can be correlated by one format.
func HashedTransactionID(network string, kind model.ChainKind, txnID string) (string, error) {
	raw, err := txnIDBytes(kind, txnID)
	if err != nil {
		return "", err
	}
	digest := crypto.Keccak256([]byte(strings.ToLower(network)), raw)
	return "0x" + hex.EncodeToString(digest), nil
}

func txnIDBytes(kind model.ChainKind, id string) ([]byte, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTxnID)
	}
	switch kind {
	case model.KindEVM, model.KindTron:
		raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(id, "0x"), "0X"))
		if err != nil || len(raw) != common.HashLength {
			return nil, fmt.Errorf("%w: %s hash %q", ErrInvalidTxnID, kind, id)
		}
		return raw, nil
	case model.KindSolana:
		raw := base58.Decode(id)
		if len(raw) != 64 {
			return nil, fmt.Errorf("%w: solana signature %q", ErrInvalidTxnID, id)
		}
		return raw, nil
	case model.KindAlgorand:
		raw, err := algoTxnEncoding.DecodeString(id)
		if err != nil || len(raw) != 32 {
			return nil, fmt.Errorf("%w: algorand txid %q", ErrInvalidTxnID, id)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: chain kind %q", model.ErrConfig, kind)
	}
}

func tronBytes(native string) ([]byte, error) {
	switch {
	case strings.HasPrefix(native, "T"):
		raw, version, err := base58.CheckDecode(native)
		if err != nil || version != TronVersion || len(raw) != common.AddressLength {
			return nil, fmt.Errorf("%w: tron %q", ErrInvalidAddress, native)
		}
		return raw, nil
	case len(native) == 42 && strings.HasPrefix(native, "41"):
		raw, err := hex.DecodeString(native[2:])
		if err != nil {
			return nil, fmt.Errorf("%w: tron %q", ErrInvalidAddress, native)
		}
		return raw, nil
	case common.IsHexAddress(native):
		return common.HexToAddress(native).Bytes(), nil
	}
	return nil, fmt.Errorf("%w: tron %q", ErrInvalidAddress, native)
}

func last20(b []byte) ([]byte, error) {
	switch len(b) {
	case common.AddressLength:
		return b, nil
	case NeutralSize:
		pad := NeutralSize - common.AddressLength
		if !bytes.Equal(b[:pad], make([]byte, pad)) {
			return nil, fmt.Errorf("%w: 32-byte word is not a left-padded 20-byte address", ErrInvalidAddress)
		}
		return b[pad:], nil
	}
	return nil, fmt.Errorf("%w: %d bytes", ErrInvalidAddress, len(b))
}
