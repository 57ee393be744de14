package algorand

import (
	"bytes"
	"fmt"

	"github.com/algorand/go-codec/codec"

	"github.com/devblac/bridge-indexer/internal/model"
)

// NotePrefix is the ARC-2 dapp name of bridge notes.
const NotePrefix = "bridge:"

// DecodeNote reads a deposit note. Notes follow ARC-2: "bridge:j" plus JSON,
// "bridge:m" plus msgpack, or "bridge:u" plus UTF-8 JSON. A bare JSON object
// is accepted too. Notes of other dapps and free text carry no routing and
// decode to an empty note; a bridge note that does not decode is malformed.
func DecodeNote(raw []byte) (model.DepositNote, error) {
	raw = bytes.TrimSpace(raw)
	if !bytes.HasPrefix(raw, []byte(NotePrefix)) {
		if len(raw) == 0 || raw[0] != '{' {
			return model.DepositNote{}, nil
		}
		return parseJSON(raw)
	}
	body := raw[len(NotePrefix):]
	if len(body) == 0 {
		return model.DepositNote{}, fmt.Errorf("%w: empty bridge note", model.ErrMalformed)
	}
	switch body[0] {
	case 'j', 'u':
		return parseJSON(body[1:])
	case 'm':
		var n model.DepositNote
		if err := codec.NewDecoderBytes(body[1:], &codec.MsgpackHandle{}).Decode(&n); err != nil {
			return model.DepositNote{}, fmt.Errorf("%w: msgpack note: %v", model.ErrMalformed, err)
		}
		return n, nil
	default:
		return model.DepositNote{}, fmt.Errorf("%w: unsupported note format %q", model.ErrMalformed, body[0])
	}
}

// EncodeNote renders a note in the ARC-2 msgpack form.
func EncodeNote(n model.DepositNote) ([]byte, error) {
	out := []byte(NotePrefix + "m")
	var body []byte
	if err := codec.NewEncoderBytes(&body, &codec.MsgpackHandle{}).Encode(n); err != nil {
		return nil, fmt.Errorf("encode note: %w", err)
	}
	return append(out, body...), nil
}

func parseJSON(raw []byte) (model.DepositNote, error) {
	n, err := model.ParseDepositNote(raw)
	if err != nil {
		return model.DepositNote{}, fmt.Errorf("%w: %v", model.ErrMalformed, err)
	}
	return n, nil
}
