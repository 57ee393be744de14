package solana

import (
	"math/big"
)

// NativeMint stands for lamports in balance lookups; native SOL has no
// mint account.
const NativeMint = ""

// Delta is the net change of one mint for one owner, with the owner on the
// other side of the largest opposite change.
type Delta struct {
	Owner        string
	Mint         string
	Change       *big.Int
	Counterparty string
}

type ownerMint struct {
	owner string
	mint  string
}

// changes nets post minus pre token balances per (owner, mint). Accounts
// created or closed by the transaction count as zero on the missing side.
func (t *Transaction) changes() map[ownerMint]*big.Int {
	out := map[ownerMint]*big.Int{}
	if t.Meta == nil {
		return out
	}
	add := func(list []TokenBalance, sign int) {
		for _, b := range list {
			v, ok := new(big.Int).SetString(b.UITokenAmount.Amount, 10)
			if !ok {
				continue
			}
			k := ownerMint{owner: b.Owner, mint: b.Mint}
			acc, ok := out[k]
			if !ok {
				acc = new(big.Int)
				out[k] = acc
			}
			if sign < 0 {
				acc.Sub(acc, v)
			} else {
				acc.Add(acc, v)
			}
		}
	}
	add(t.Meta.PreTokenBalances, -1)
	add(t.Meta.PostTokenBalances, 1)
	t.lamportChanges(out)
	return out
}

// lamportChanges nets lamport balances per account key under NativeMint.
// The fee is added back for the fee payer so only transfers remain.
func (t *Transaction) lamportChanges(out map[ownerMint]*big.Int) {
	keys := t.AccountKeys()
	pre, post := t.Meta.PreBalances, t.Meta.PostBalances
	if len(pre) != len(post) || len(pre) > len(keys) {
		return
	}
	for i := range pre {
		v := new(big.Int).SetUint64(post[i])
		v.Sub(v, new(big.Int).SetUint64(pre[i]))
		if i == 0 {
			v.Add(v, new(big.Int).SetUint64(t.Meta.Fee))
		}
		if v.Sign() == 0 {
			continue
		}
		k := ownerMint{owner: keys[i], mint: NativeMint}
		if acc, ok := out[k]; ok {
			acc.Add(acc, v)
		} else {
			out[k] = v
		}
	}
}

// BalanceDelta returns how much of mint owner gained or lost. When no token
// account of owner holds mint the result has an empty counterparty and a
// zero change.
func BalanceDelta(tx *Transaction, owner, mint string) Delta {
	d := Delta{Owner: owner, Mint: mint, Change: new(big.Int)}
	all := tx.changes()
	change, ok := all[ownerMint{owner: owner, mint: mint}]
	if !ok || change.Sign() == 0 {
		return d
	}
	d.Change.Set(change)
	best := new(big.Int)
	for k, v := range all {
		if k.mint != mint || k.owner == owner || v.Sign() == change.Sign() || v.Sign() == 0 {
			continue
		}
		abs := new(big.Int).Abs(v)
		if abs.Cmp(best) > 0 {
			best, d.Counterparty = abs, k.owner
		}
	}
	return d
}

// MintFlow returns the owners with the largest loss and the largest gain of
// mint. Minted or burnt amounts leave the matching side empty.
func MintFlow(tx *Transaction, mint string) (from, to string) {
	lost, gained := new(big.Int), new(big.Int)
	for k, v := range tx.changes() {
		if k.mint != mint {
			continue
		}
		switch v.Sign() {
		case -1:
			if abs := new(big.Int).Abs(v); abs.Cmp(lost) > 0 {
				lost, from = abs, k.owner
			}
		case 1:
			if v.Cmp(gained) > 0 {
				gained, to = new(big.Int).Set(v), k.owner
			}
		}
	}
	return from, to
}
