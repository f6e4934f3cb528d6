// Package token provides the fungible-asset capability the order book escrows
// against: an ERC20-shaped interface and an in-memory ledger implementing it.
package token

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrZeroAddress           = errors.New("zero address")
)

// Token is the subset of ERC20 the order book consumes. The from argument of
// Transfer and the spender of TransferFrom are the calling contract, i.e.
// what msg.sender would be on chain.
type Token interface {
	Address() common.Address
	Decimals() uint8
	BalanceOf(owner common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
}

// Journal is implemented by tokens whose state can be rolled back to a point
// taken before a call, the way a ledger reverts a failed transaction.
type Journal interface {
	Snapshot() int
	RevertToSnapshot(id int)
}

type entryKind uint8

const (
	balanceEntry entryKind = iota
	allowanceEntry
	supplyEntry
)

// journalEntry records the value a slot held before a write; prev == nil
// means the slot did not exist.
type journalEntry struct {
	kind    entryKind
	owner   common.Address
	spender common.Address
	prev    *uint256.Int
}

// ERC20 is an in-memory fungible token ledger. It is not safe for concurrent
// use; the host serializes calls.
type ERC20 struct {
	address  common.Address
	name     string
	symbol   string
	decimals uint8

	totalSupply *uint256.Int
	balances    map[common.Address]*uint256.Int
	allowances  map[common.Address]map[common.Address]*uint256.Int

	journal []journalEntry
}

var (
	_ Token   = (*ERC20)(nil)
	_ Journal = (*ERC20)(nil)
)

// NewERC20 creates an empty token deployed at address.
func NewERC20(address common.Address, name, symbol string, decimals uint8) *ERC20 {
	return &ERC20{
		address:     address,
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		totalSupply: new(uint256.Int),
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

func (t *ERC20) Address() common.Address { return t.address }
func (t *ERC20) Name() string            { return t.name }
func (t *ERC20) Symbol() string          { return t.symbol }
func (t *ERC20) Decimals() uint8         { return t.decimals }

// TotalSupply returns a copy of the minted supply.
func (t *ERC20) TotalSupply() *uint256.Int { return t.totalSupply.Clone() }

// BalanceOf returns a copy of owner's balance (zero if unknown).
func (t *ERC20) BalanceOf(owner common.Address) *uint256.Int {
	if b, ok := t.balances[owner]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

// Allowance returns how much spender may still move out of owner's balance.
func (t *ERC20) Allowance(owner, spender common.Address) *uint256.Int {
	if a, ok := t.allowances[owner][spender]; ok {
		return a.Clone()
	}
	return new(uint256.Int)
}

// Holders returns every address that ever held a balance, sorted bytewise.
func (t *ERC20) Holders() []common.Address {
	out := make([]common.Address, 0, len(t.balances))
	for addr := range t.balances {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Mint credits amount to to and grows the supply.
func (t *ERC20) Mint(to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("mint: %w", ErrZeroAddress)
	}
	supply, overflow := new(uint256.Int).AddOverflow(t.totalSupply, amount)
	if overflow {
		return fmt.Errorf("mint %s: total supply overflow", amount.Dec())
	}
	t.setSupply(supply)
	t.setBalance(to, new(uint256.Int).Add(t.balanceRef(to), amount))
	return nil
}

// Approve sets spender's allowance over owner's balance.
func (t *ERC20) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if spender == (common.Address{}) {
		return fmt.Errorf("approve: %w", ErrZeroAddress)
	}
	t.setAllowance(owner, spender, amount.Clone())
	return nil
}

// Transfer moves amount from from to to.
func (t *ERC20) Transfer(from, to common.Address, amount *uint256.Int) error {
	return t.move(from, to, amount)
}

// TransferFrom moves amount from from to to on behalf of spender, consuming allowance.
func (t *ERC20) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	allowed := t.Allowance(from, spender)
	if allowed.Lt(amount) {
		return fmt.Errorf("%s transferFrom %s: allowance %s, need %s: %w",
			t.symbol, from.Hex(), allowed.Dec(), amount.Dec(), ErrInsufficientAllowance)
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	t.setAllowance(from, spender, allowed.Sub(allowed, amount))
	return nil
}

func (t *ERC20) move(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("%s transfer: %w", t.symbol, ErrZeroAddress)
	}
	have := t.balanceRef(from)
	if have.Lt(amount) {
		return fmt.Errorf("%s transfer from %s: have %s, need %s: %w",
			t.symbol, from.Hex(), have.Dec(), amount.Dec(), ErrInsufficientBalance)
	}
	t.setBalance(from, new(uint256.Int).Sub(have, amount))
	t.setBalance(to, new(uint256.Int).Add(t.balanceRef(to), amount))
	return nil
}

// Snapshot returns an id usable with RevertToSnapshot.
func (t *ERC20) Snapshot() int {
	return len(t.journal)
}

// RevertToSnapshot undoes every write made after the snapshot was taken.
func (t *ERC20) RevertToSnapshot(id int) {
	if id < 0 || id > len(t.journal) {
		panic(fmt.Sprintf("token %s: invalid snapshot id %d (journal length %d)", t.symbol, id, len(t.journal)))
	}
	for i := len(t.journal) - 1; i >= id; i-- {
		e := t.journal[i]
		switch e.kind {
		case balanceEntry:
			if e.prev == nil {
				delete(t.balances, e.owner)
			} else {
				t.balances[e.owner] = e.prev
			}
		case allowanceEntry:
			if e.prev == nil {
				delete(t.allowances[e.owner], e.spender)
			} else {
				t.allowances[e.owner][e.spender] = e.prev
			}
		case supplyEntry:
			t.totalSupply = e.prev
		}
	}
	t.journal = t.journal[:id]
}

// Finalise drops the journal; earlier snapshots become invalid.
func (t *ERC20) Finalise() {
	t.journal = t.journal[:0]
}

func (t *ERC20) balanceRef(owner common.Address) *uint256.Int {
	if b, ok := t.balances[owner]; ok {
		return b
	}
	return new(uint256.Int)
}

func (t *ERC20) setBalance(owner common.Address, v *uint256.Int) {
	t.journal = append(t.journal, journalEntry{kind: balanceEntry, owner: owner, prev: t.balances[owner]})
	t.balances[owner] = v
}

func (t *ERC20) setAllowance(owner, spender common.Address, v *uint256.Int) {
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]*uint256.Int)
		t.allowances[owner] = m
	}
	t.journal = append(t.journal, journalEntry{kind: allowanceEntry, owner: owner, spender: spender, prev: m[spender]})
	m[spender] = v
}

func (t *ERC20) setSupply(v *uint256.Int) {
	t.journal = append(t.journal, journalEntry{kind: supplyEntry, prev: t.totalSupply})
	t.totalSupply = v
}
