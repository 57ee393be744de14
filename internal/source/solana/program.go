package solana

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"

	"github.com/devblac/bridge-indexer/internal/model"
)

// Instruction tags of the legacy bridge program.
const (
	TagDeposit byte = 1
	TagRelease byte = 2
	TagRefund  byte = 3
)

// LegacyInstructionSize is tag, amount, chain id and a 32-byte reference.
const LegacyInstructionSize = 1 + 8 + 2 + 32

// LegacyInstruction is a decoded legacy bridge instruction. For deposits
// Chain and Ref name the destination network and address; for releases and
// refunds they name the origin network and the hashed origin transaction.
type LegacyInstruction struct {
	Tag    byte
	Amount uint64
	Chain  uint16
	Ref    [32]byte
}

// DecodeLegacyInstruction reads instruction data. ok is false for tags the
// bridge does not index.
func DecodeLegacyInstruction(data []byte) (ins LegacyInstruction, ok bool, err error) {
	if len(data) == 0 {
		return ins, false, fmt.Errorf("%w: empty bridge instruction", model.ErrMalformed)
	}
	switch data[0] {
	case TagDeposit, TagRelease, TagRefund:
	default:
		return ins, false, nil
	}
	if len(data) != LegacyInstructionSize {
		return ins, false, fmt.Errorf("%w: bridge instruction %d has %d bytes, want %d", model.ErrMalformed, data[0], len(data), LegacyInstructionSize)
	}
	ins.Tag = data[0]
	ins.Amount = binary.LittleEndian.Uint64(data[1:9])
	ins.Chain = binary.LittleEndian.Uint16(data[9:11])
	copy(ins.Ref[:], data[11:])
	return ins, true, nil
}

// Encode renders the instruction data.
func (ins LegacyInstruction) Encode() []byte {
	out := make([]byte, LegacyInstructionSize)
	out[0] = ins.Tag
	binary.LittleEndian.PutUint64(out[1:9], ins.Amount)
	binary.LittleEndian.PutUint16(out[9:11], ins.Chain)
	copy(out[11:], ins.Ref[:])
	return out
}

// programInstructions returns the data of every instruction, top level or
// inner, that invokes program.
func programInstructions(tx *Transaction, program string) [][]byte {
	keys := tx.AccountKeys()
	var out [][]byte
	pick := func(list []Instruction) {
		for _, ins := range list {
			if ins.ProgramIDIndex < 0 || ins.ProgramIDIndex >= len(keys) || keys[ins.ProgramIDIndex] != program {
				continue
			}
			out = append(out, base58.Decode(ins.Data))
		}
	}
	pick(tx.Transaction.Message.Instructions)
	if tx.Meta != nil {
		for _, inner := range tx.Meta.InnerInstructions {
			pick(inner.Instructions)
		}
	}
	return out
}

// Event names emitted by the v2 bridge program.
const (
	EventDeposit  = "BridgeDeposit"
	EventRelease  = "BridgeRelease"
	EventRefund   = "BridgeRefund"
	EventFinalize = "BridgeFinalize"
)

// Discriminator is the 8-byte event tag: sha256("event:<Name>")[:8].
func Discriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("event:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

var eventNames = map[[8]byte]string{
	Discriminator(EventDeposit):  EventDeposit,
	Discriminator(EventRelease):  EventRelease,
	Discriminator(EventRefund):   EventRefund,
	Discriminator(EventFinalize): EventFinalize,
}

// Event is a decoded v2 bridge event. Fields a given event lacks are zero.
type Event struct {
	Name    string
	VaultID uint64
	Amount  uint64
	// Chain is the destination chain of a deposit or the source chain of a
	// release.
	Chain uint16
	// Address is the destination of a deposit or the recipient of a
	// release or refund.
	Address [32]byte
	Sender  [32]byte
}

var eventSizes = map[string]int{
	EventDeposit:  8 + 8 + 2 + 32 + 32,
	EventRelease:  8 + 8 + 2 + 32,
	EventRefund:   8 + 8 + 32,
	EventFinalize: 8 + 8,
}

// DecodeEvent reads a "Program data:" payload. ok is false when the
// discriminator is not a bridge event.
func DecodeEvent(data []byte) (ev Event, ok bool, err error) {
	if len(data) < 8 {
		return ev, false, nil
	}
	var d [8]byte
	copy(d[:], data[:8])
	name, ok := eventNames[d]
	if !ok {
		return ev, false, nil
	}
	body := data[8:]
	if len(body) < eventSizes[name] {
		return ev, false, fmt.Errorf("%w: %s payload has %d bytes, want %d", model.ErrMalformed, name, len(body), eventSizes[name])
	}
	ev.Name = name
	ev.VaultID = binary.LittleEndian.Uint64(body[0:8])
	ev.Amount = binary.LittleEndian.Uint64(body[8:16])
	switch name {
	case EventDeposit:
		ev.Chain = binary.LittleEndian.Uint16(body[16:18])
		copy(ev.Address[:], body[18:50])
		copy(ev.Sender[:], body[50:82])
	case EventRelease:
		ev.Chain = binary.LittleEndian.Uint16(body[16:18])
		copy(ev.Address[:], body[18:50])
	case EventRefund:
		copy(ev.Address[:], body[16:48])
	}
	return ev, true, nil
}

// Encode renders the event as the program logs it.
func (ev Event) Encode() []byte {
	d := Discriminator(ev.Name)
	out := append([]byte(nil), d[:]...)
	out = binary.LittleEndian.AppendUint64(out, ev.VaultID)
	out = binary.LittleEndian.AppendUint64(out, ev.Amount)
	switch ev.Name {
	case EventDeposit:
		out = binary.LittleEndian.AppendUint16(out, ev.Chain)
		out = append(out, ev.Address[:]...)
		out = append(out, ev.Sender[:]...)
	case EventRelease:
		out = binary.LittleEndian.AppendUint16(out, ev.Chain)
		out = append(out, ev.Address[:]...)
	case EventRefund:
		out = append(out, ev.Address[:]...)
	}
	return out
}

// programData collects "Program data:" payloads logged while program is the
// innermost running program.
func programData(logs []string, program string) ([][]byte, error) {
	var stack []string
	var out [][]byte
	for _, line := range logs {
		rest, ok := strings.CutPrefix(line, "Program ")
		if !ok {
			continue
		}
		if b64, ok := strings.CutPrefix(rest, "data: "); ok {
			if len(stack) == 0 || stack[len(stack)-1] != program {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
			if err != nil {
				return nil, fmt.Errorf("%w: program data: %v", model.ErrMalformed, err)
			}
			out = append(out, raw)
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 2 {
			continue
		}
		switch {
		case fields[1] == "invoke":
			stack = append(stack, fields[0])
		case fields[1] == "success" || strings.HasPrefix(fields[1], "failed"):
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return out, nil
}
