package token

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Ledger is a serializable image of an ERC20, entries sorted by address.
type Ledger struct {
	Address     common.Address
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *uint256.Int
	Balances    []Balance
	Allowances  []Allowance
}

type Balance struct {
	Owner  common.Address
	Amount *uint256.Int
}

type Allowance struct {
	Owner   common.Address
	Spender common.Address
	Amount  *uint256.Int
}

// Export returns the ledger's current state. Zero balances and allowances
// are omitted.
func (t *ERC20) Export() *Ledger {
	l := &Ledger{
		Address:     t.address,
		Name:        t.name,
		Symbol:      t.symbol,
		Decimals:    t.decimals,
		TotalSupply: t.totalSupply.Clone(),
		Balances:    []Balance{},
		Allowances:  []Allowance{},
	}
	for _, owner := range t.Holders() {
		if b := t.balances[owner]; !b.IsZero() {
			l.Balances = append(l.Balances, Balance{Owner: owner, Amount: b.Clone()})
		}
	}
	for owner, m := range t.allowances {
		for spender, a := range m {
			if !a.IsZero() {
				l.Allowances = append(l.Allowances, Allowance{Owner: owner, Spender: spender, Amount: a.Clone()})
			}
		}
	}
	sort.Slice(l.Allowances, func(i, j int) bool {
		if c := bytes.Compare(l.Allowances[i].Owner[:], l.Allowances[j].Owner[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(l.Allowances[i].Spender[:], l.Allowances[j].Spender[:]) < 0
	})
	return l
}

// Import rebuilds an ERC20 from a ledger image with an empty journal.
func Import(l *Ledger) *ERC20 {
	t := NewERC20(l.Address, l.Name, l.Symbol, l.Decimals)
	if l.TotalSupply != nil {
		t.totalSupply = l.TotalSupply.Clone()
	}
	for _, b := range l.Balances {
		t.balances[b.Owner] = b.Amount.Clone()
	}
	for _, a := range l.Allowances {
		m, ok := t.allowances[a.Owner]
		if !ok {
			m = make(map[common.Address]*uint256.Int)
			t.allowances[a.Owner] = m
		}
		m[a.Spender] = a.Amount.Clone()
	}
	return t
}
