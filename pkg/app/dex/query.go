package dex

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperbook/pkg/storage"
)

// PairInfo is the static and summary view of the book.
type PairInfo struct {
	Symbol      string
	Book        common.Address
	AssetA      common.Address
	AssetB      common.Address
	TickerA     string
	TickerB     string
	DecimalsA   uint8
	DecimalsB   uint8
	LotSize     *uint256.Int
	TickSize    *uint256.Int
	Precision   uint64
	NextOrderID uint64
	LastPrice   uint64
	Spread      uint64
	Height      uint64
}

func (a *App) Pair() PairInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p := a.book.Pair()
	return PairInfo{
		Symbol:      p.Symbol(),
		Book:        a.book.Address(),
		AssetA:      a.book.AssetA(),
		AssetB:      a.book.AssetB(),
		TickerA:     p.TickerA,
		TickerB:     p.TickerB,
		DecimalsA:   p.DecimalsA,
		DecimalsB:   p.DecimalsB,
		LotSize:     a.book.LotSize(),
		TickSize:    a.book.TickSize(),
		Precision:   a.book.Precision(),
		NextOrderID: a.book.NextOrderID(),
		LastPrice:   a.book.LastPrice(),
		Spread:      a.book.Spread(),
		Height:      a.last.Height,
	}
}

// BookView is the full book at the last finalized height.
type BookView struct {
	Height uint64
	Bids   []orderbook.Order
	Asks   []orderbook.Order
	Stops  []orderbook.StopOrder
}

func (a *App) Book() BookView {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return BookView{
		Height: a.last.Height,
		Bids:   a.book.Bids(),
		Asks:   a.book.Asks(),
		Stops:  a.book.Stops(),
	}
}

// UserOrders returns owner's resting and pending orders.
func (a *App) UserOrders(owner common.Address) BookView {
	a.mu.RLock()
	defer a.mu.RUnlock()
	bids, asks, stops := a.book.UserOrders(owner)
	return BookView{Height: a.last.Height, Bids: bids, Asks: asks, Stops: stops}
}

// Account is one address's balances, book allowances and last nonce.
type Account struct {
	Address    common.Address
	Nonce      uint64
	BalanceA   *uint256.Int
	BalanceB   *uint256.Int
	AllowanceA *uint256.Int
	AllowanceB *uint256.Int
}

func (a *App) Account(addr common.Address) Account {
	a.mu.RLock()
	defer a.mu.RUnlock()
	book := a.book.Address()
	return Account{
		Address:    addr,
		Nonce:      a.nonces[addr],
		BalanceA:   a.tokenA.BalanceOf(addr),
		BalanceB:   a.tokenB.BalanceOf(addr),
		AllowanceA: a.tokenA.Allowance(addr, book),
		AllowanceB: a.tokenB.Allowance(addr, book),
	}
}

// RecentTrades returns up to limit trades, newest first.
func (a *App) RecentTrades(limit int) []storage.TradeRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if limit <= 0 || limit > len(a.recent) {
		limit = len(a.recent)
	}
	out := make([]storage.TradeRecord, 0, limit)
	for i := len(a.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, a.recent[i])
	}
	return out
}
