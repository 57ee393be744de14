package cursor

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/devblac/bridge-indexer/internal/model"
)

type wire struct {
	Network       string           `json:"network"`
	Bridge        model.BridgeType `json:"bridge_type"`
	Address       string           `json:"address"`
	Limit         int              `json:"limit"`
	Order         Order            `json:"order,omitempty"`
	Filter        *Filter          `json:"filter,omitempty"`
	Start         string           `json:"start,omitempty"`
	Beginning     *Position        `json:"beginning,omitempty"`
	End           *Position        `json:"end,omitempty"`
	Batch         *Batch           `json:"batch,omitempty"`
	LastBatchTxns []string         `json:"last_batch_txns,omitempty"`
}

// MarshalJSON flattens the state into optional beginning/end/batch fields.
func (c Cursor) MarshalJSON() ([]byte, error) {
	w := wire{
		Network:       c.Network,
		Bridge:        c.Bridge,
		Address:       c.Address,
		Limit:         c.Limit,
		Order:         c.Order,
		Filter:        c.Filter,
		Start:         c.Start,
		End:           c.End(),
		LastBatchTxns: c.LastBatchTxns,
	}
	if p, ok := c.State.(Paging); ok {
		begin, batch := p.Beginning, p.Batch
		w.Beginning = &begin
		w.Batch = &batch
	}
	return json.Marshal(w)
}

// UnmarshalJSON rebuilds the state, rejecting a batch without a beginning
// and the reverse.
func (c *Cursor) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if (w.Batch == nil) != (w.Beginning == nil) {
		return errors.New("cursor: beginning and batch must be set together")
	}
	if w.Limit < 0 {
		return fmt.Errorf("cursor: negative limit %d", w.Limit)
	}
	*c = Cursor{
		Network:       w.Network,
		Bridge:        w.Bridge,
		Address:       w.Address,
		Limit:         w.Limit,
		Order:         w.Order,
		Filter:        w.Filter,
		Start:         w.Start,
		LastBatchTxns: w.LastBatchTxns,
		State:         AtHead{End: w.End},
	}
	if c.Order == "" {
		c.Order = Ascending
	}
	if w.Batch != nil {
		c.State = Paging{Beginning: *w.Beginning, Batch: *w.Batch, End: w.End}
	}
	return nil
}
