package evm

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const legacyBridgeABIJSON = `[
  {"type":"event","name":"BridgeDeposit","anonymous":false,"inputs":[
    {"name":"sender","type":"address","indexed":true},
    {"name":"token","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"destinationChainId","type":"uint16","indexed":false},
    {"name":"destinationAddress","type":"bytes32","indexed":false}
  ]},
  {"type":"event","name":"BridgeRelease","anonymous":false,"inputs":[
    {"name":"recipient","type":"address","indexed":true},
    {"name":"token","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"sourceTxnHash","type":"bytes32","indexed":false}
  ]},
  {"type":"event","name":"BridgeRefund","anonymous":false,"inputs":[
    {"name":"recipient","type":"address","indexed":true},
    {"name":"token","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"depositTxnHash","type":"bytes32","indexed":false}
  ]},
  {"type":"event","name":"Transfer","anonymous":false,"inputs":[
    {"name":"from","type":"address","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"value","type":"uint256","indexed":false}
  ]}
]`

const v2BridgeABIJSON = `[
  {"type":"event","name":"BridgeDeposit","anonymous":false,"inputs":[
    {"name":"vaultId","type":"uint64","indexed":true},
    {"name":"sender","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"destinationChainId","type":"uint16","indexed":false},
    {"name":"destinationAddress","type":"bytes32","indexed":false}
  ]},
  {"type":"event","name":"BridgeRelease","anonymous":false,"inputs":[
    {"name":"vaultId","type":"uint64","indexed":true},
    {"name":"recipient","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"sourceChainId","type":"uint16","indexed":false},
    {"name":"sourceTxnHash","type":"bytes32","indexed":false}
  ]},
  {"type":"event","name":"BridgeRefund","anonymous":false,"inputs":[
    {"name":"vaultId","type":"uint64","indexed":true},
    {"name":"recipient","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"depositTxnHash","type":"bytes32","indexed":false}
  ]},
  {"type":"event","name":"Transfer","anonymous":false,"inputs":[
    {"name":"from","type":"address","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"value","type":"uint256","indexed":false}
  ]}
]`

// Event names shared by both bridge generations.
const (
	EventDeposit  = "BridgeDeposit"
	EventRelease  = "BridgeRelease"
	EventRefund   = "BridgeRefund"
	EventTransfer = "Transfer"
)

// Events is a parsed bridge ABI indexed by topic0.
type Events struct {
	ABI     abi.ABI
	byTopic map[common.Hash]abi.Event
}

var (
	legacyOnce   sync.Once
	legacyEvents *Events
	legacyErr    error

	v2Once   sync.Once
	v2Events *Events
	v2Err    error
)

// LegacyEvents returns the legacy and circle bridge event set.
func LegacyEvents() (*Events, error) {
	legacyOnce.Do(func() {
		legacyEvents, legacyErr = parseEvents(legacyBridgeABIJSON)
	})
	return legacyEvents, legacyErr
}

// V2Events returns the vault bridge event set.
func V2Events() (*Events, error) {
	v2Once.Do(func() {
		v2Events, v2Err = parseEvents(v2BridgeABIJSON)
	})
	return v2Events, v2Err
}

func parseEvents(raw string) (*Events, error) {
	a, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse bridge abi: %w", err)
	}
	e := &Events{ABI: a, byTopic: make(map[common.Hash]abi.Event, len(a.Events))}
	for _, ev := range a.Events {
		e.byTopic[ev.ID] = ev
	}
	return e, nil
}

// Topic returns topic0 of a named event.
func (e *Events) Topic(name string) common.Hash {
	return e.ABI.Events[name].ID
}

// Decode matches a log against the event set. ok is false when topic0 is
// not a known event; err is set when it is known but the payload does not
// decode.
func (e *Events) Decode(topics []common.Hash, data []byte) (name string, args map[string]any, ok bool, err error) {
	if len(topics) == 0 {
		return "", nil, false, nil
	}
	ev, found := e.byTopic[topics[0]]
	if !found {
		return "", nil, false, nil
	}
	args = map[string]any{}
	indexed, nonIndexed := splitIndexed(ev.Inputs)
	if len(topics)-1 != len(indexed) {
		return ev.Name, nil, true, fmt.Errorf("%s: want %d indexed topics, got %d", ev.Name, len(indexed), len(topics)-1)
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, topics[1:]); err != nil {
		return ev.Name, nil, true, fmt.Errorf("%s: parse topics: %w", ev.Name, err)
	}
	if err := nonIndexed.UnpackIntoMap(args, data); err != nil {
		return ev.Name, nil, true, fmt.Errorf("%s: unpack data: %w", ev.Name, err)
	}
	return ev.Name, args, true, nil
}

func splitIndexed(args abi.Arguments) (indexed abi.Arguments, nonIndexed abi.Arguments) {
	for _, a := range args {
		if a.Indexed {
			indexed = append(indexed, a)
		} else {
			nonIndexed = append(nonIndexed, a)
		}
	}
	return indexed, nonIndexed
}

// Arg readers for decoded event maps.

func ArgAddress(args map[string]any, key string) (common.Address, error) {
	switch v := args[key].(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	}
	return common.Address{}, fmt.Errorf("arg %s: unsupported address type %T", key, args[key])
}

func ArgBigInt(args map[string]any, key string) (*big.Int, error) {
	switch v := args[key].(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	}
	return nil, fmt.Errorf("arg %s: unsupported integer type %T", key, args[key])
}

func ArgUint64(args map[string]any, key string) (uint64, error) {
	n, err := ArgBigInt(args, key)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("arg %s: %s overflows uint64", key, n)
	}
	return n.Uint64(), nil
}

func ArgUint16(args map[string]any, key string) (uint16, error) {
	n, err := ArgUint64(args, key)
	if err != nil {
		return 0, err
	}
	if n > 0xffff {
		return 0, fmt.Errorf("arg %s: %d overflows uint16", key, n)
	}
	return uint16(n), nil
}

func ArgBytes32(args map[string]any, key string) ([32]byte, error) {
	switch v := args[key].(type) {
	case [32]byte:
		return v, nil
	case common.Hash:
		return v, nil
	}
	return [32]byte{}, fmt.Errorf("arg %s: unsupported bytes32 type %T", key, args[key])
}
