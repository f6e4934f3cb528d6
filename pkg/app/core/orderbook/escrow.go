package orderbook

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperbook/pkg/app/core/token"
)

// escrow pulls amount of tok from owner into the book. The balance is checked
// up front so an underfunded caller gets ErrInsufficientBalance rather than
// whatever the token reports.
func (ob *OrderBook) escrow(tok token.Token, owner common.Address, amount *uint256.Int) error {
	if have := tok.BalanceOf(owner); have.Lt(amount) {
		return fmt.Errorf("escrow %s from %s: have %s, need %s: %w",
			tok.Address().Hex(), owner.Hex(), have.Dec(), amount.Dec(), ErrInsufficientBalance)
	}
	if err := tok.TransferFrom(ob.self, owner, ob.self, amount); err != nil {
		return fmt.Errorf("escrow from %s: %w", owner.Hex(), err)
	}
	return nil
}

// pay sends amount of tok from escrow to to. Zero amounts are skipped.
func (ob *OrderBook) pay(tok token.Token, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := tok.Transfer(ob.self, to, amount); err != nil {
		return fmt.Errorf("pay %s to %s: %w", amount.Dec(), to.Hex(), err)
	}
	return nil
}

func (ob *OrderBook) escrowA(owner common.Address, lots uint64) error {
	return ob.escrow(ob.tokenA, owner, ob.pair.ToRawA(lots))
}

func (ob *OrderBook) escrowB(owner common.Address, amount *uint256.Int) error {
	return ob.escrow(ob.tokenB, owner, amount)
}

func (ob *OrderBook) payA(to common.Address, lots uint64) error {
	return ob.pay(ob.tokenA, to, ob.pair.ToRawA(lots))
}

func (ob *OrderBook) payB(to common.Address, amount *uint256.Int) error {
	return ob.pay(ob.tokenB, to, amount)
}

// bidRelease is the asset-B escrow freed when a bid at price goes from
// before to after remaining lots. A resting bid always backs exactly
// Quote(remaining, price).
func (ob *OrderBook) bidRelease(before, after, price uint64) *uint256.Int {
	released := ob.pair.Quote(before, price)
	return released.Sub(released, ob.pair.Quote(after, price))
}

// settleBid pays the seller of a fill against a bid and refunds the part of
// the released escrow the trade price did not consume back to the bid owner.
func (ob *OrderBook) settleBid(bid Order, seller common.Address, fill, tradePrice uint64) (*uint256.Int, error) {
	quote := ob.pair.Quote(fill, tradePrice)
	released := ob.bidRelease(bid.Remaining, bid.Remaining-fill, bid.Price)
	if released.Lt(quote) {
		ob.log.Panic("bid escrow below trade quote",
			zap.Uint64("order", bid.ID), zap.String("released", released.Dec()), zap.String("quote", quote.Dec()))
	}
	if err := ob.payB(seller, quote); err != nil {
		return nil, err
	}
	if err := ob.payA(bid.Owner, fill); err != nil {
		return nil, err
	}
	if err := ob.payB(bid.Owner, released.Sub(released, quote)); err != nil {
		return nil, err
	}
	return quote, nil
}

// stopRefund is what cancelling s returns to its owner.
func (ob *OrderBook) stopRefund(s StopOrder) error {
	switch {
	case s.Side == Bid && s.Kind == StopLimit:
		return ob.payB(s.Owner, ob.pair.Quote(s.Remaining, s.Price))
	case s.Side == Bid:
		return ob.payB(s.Owner, ob.pair.ToRawB(s.Remaining))
	default:
		return ob.payA(s.Owner, s.Remaining)
	}
}
