package orderbook

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

func validate(lots, price uint64) error {
	if lots == 0 {
		return ErrInvalidAmount
	}
	if price == 0 {
		return ErrInvalidPrice
	}
	return nil
}

func validateStop(stop uint64) error {
	if stop == 0 {
		return ErrInvalidStop
	}
	return nil
}

// place allocates the next order id and runs fn atomically with a fresh
// execution for call. The returned trades include any the call triggered.
func (ob *OrderBook) place(op string, call Call, fn func(ex *execution, o Order) error) ([]Trade, error) {
	ex := &execution{call: call}
	err := ob.atomic(func() error {
		o := Order{
			ID:        ob.nextOrderID,
			CreatedAt: call.Timestamp,
			Owner:     call.Caller,
			Seq:       ob.nextSeq(),
		}
		ob.nextOrderID++
		if err := fn(ex, o); err != nil {
			return err
		}
		ob.updateSpread()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ex.trades, nil
}

// NewLimitBid escrows Quote(lots, price) of asset B, matches against asks at
// or below price and rests any remainder.
func (ob *OrderBook) NewLimitBid(call Call, lots, price uint64) ([]Trade, error) {
	if err := validate(lots, price); err != nil {
		return nil, fmt.Errorf("limit bid: %w", err)
	}
	return ob.place("limit bid", call, func(ex *execution, o Order) error {
		o.Remaining, o.Price = lots, price
		if err := ob.escrowB(o.Owner, ob.pair.Quote(lots, price)); err != nil {
			return err
		}
		return ob.matchLimitBid(ex, o)
	})
}

// NewLimitAsk escrows lots of asset A, matches against bids at or above
// price and rests any remainder.
func (ob *OrderBook) NewLimitAsk(call Call, lots, price uint64) ([]Trade, error) {
	if err := validate(lots, price); err != nil {
		return nil, fmt.Errorf("limit ask: %w", err)
	}
	return ob.place("limit ask", call, func(ex *execution, o Order) error {
		o.Remaining, o.Price = lots, price
		if err := ob.escrowA(o.Owner, lots); err != nil {
			return err
		}
		return ob.matchLimitAsk(ex, o)
	})
}

// NewMarketBuy spends up to budget ticks of asset B on the ask side. Unspent
// budget is returned; the order never rests.
func (ob *OrderBook) NewMarketBuy(call Call, budget uint64) ([]Trade, error) {
	if budget == 0 {
		return nil, fmt.Errorf("market buy: %w", ErrInvalidAmount)
	}
	return ob.place("market buy", call, func(ex *execution, o Order) error {
		o.Remaining = budget
		if err := ob.escrowB(o.Owner, ob.pair.ToRawB(budget)); err != nil {
			return err
		}
		return ob.matchMarketBuy(ex, o)
	})
}

// NewMarketSell sells lots into the bid side at any price. Unsold lots are
// returned; the order never rests.
func (ob *OrderBook) NewMarketSell(call Call, lots uint64) ([]Trade, error) {
	if lots == 0 {
		return nil, fmt.Errorf("market sell: %w", ErrInvalidAmount)
	}
	return ob.place("market sell", call, func(ex *execution, o Order) error {
		o.Remaining = lots
		if err := ob.escrowA(o.Owner, lots); err != nil {
			return err
		}
		return ob.matchMarketSell(ex, o)
	})
}

// NewStopLimitBid escrows like a limit bid and waits for the last trade
// price to cross stop.
func (ob *OrderBook) NewStopLimitBid(call Call, lots, price, stop uint64) ([]Trade, error) {
	if err := validateStopLimit(lots, price, stop); err != nil {
		return nil, fmt.Errorf("stop limit bid: %w", err)
	}
	return ob.place("stop limit bid", call, func(_ *execution, o Order) error {
		o.Remaining, o.Price = lots, price
		if err := ob.escrowB(o.Owner, ob.pair.Quote(lots, price)); err != nil {
			return err
		}
		ob.addStop(o, stop, Bid, StopLimit)
		return nil
	})
}

// NewStopLimitAsk escrows like a limit ask and waits for the last trade
// price to cross stop.
func (ob *OrderBook) NewStopLimitAsk(call Call, lots, price, stop uint64) ([]Trade, error) {
	if err := validateStopLimit(lots, price, stop); err != nil {
		return nil, fmt.Errorf("stop limit ask: %w", err)
	}
	return ob.place("stop limit ask", call, func(_ *execution, o Order) error {
		o.Remaining, o.Price = lots, price
		if err := ob.escrowA(o.Owner, lots); err != nil {
			return err
		}
		ob.addStop(o, stop, Ask, StopLimit)
		return nil
	})
}

// NewStopMarketBuy escrows budget ticks of asset B; once triggered it runs
// as a market buy.
func (ob *OrderBook) NewStopMarketBuy(call Call, budget, stop uint64) ([]Trade, error) {
	if budget == 0 {
		return nil, fmt.Errorf("stop market buy: %w", ErrInvalidAmount)
	}
	if err := validateStop(stop); err != nil {
		return nil, fmt.Errorf("stop market buy: %w", err)
	}
	return ob.place("stop market buy", call, func(_ *execution, o Order) error {
		o.Remaining = budget
		if err := ob.escrowB(o.Owner, ob.pair.ToRawB(budget)); err != nil {
			return err
		}
		ob.addStop(o, stop, Bid, StopMarket)
		return nil
	})
}

// NewStopMarketSell escrows lots of asset A; once triggered it runs as a
// market sell.
func (ob *OrderBook) NewStopMarketSell(call Call, lots, stop uint64) ([]Trade, error) {
	if lots == 0 {
		return nil, fmt.Errorf("stop market sell: %w", ErrInvalidAmount)
	}
	if err := validateStop(stop); err != nil {
		return nil, fmt.Errorf("stop market sell: %w", err)
	}
	return ob.place("stop market sell", call, func(_ *execution, o Order) error {
		o.Remaining = lots
		if err := ob.escrowA(o.Owner, lots); err != nil {
			return err
		}
		ob.addStop(o, stop, Ask, StopMarket)
		return nil
	})
}

func validateStopLimit(lots, price, stop uint64) error {
	if err := validate(lots, price); err != nil {
		return err
	}
	return validateStop(stop)
}

func (ob *OrderBook) addStop(o Order, stop uint64, side Side, kind Kind) {
	ob.stops.ReplaceOrInsert(StopOrder{Order: o, Stop: stop, Side: side, Kind: kind})
}

// CancelLimitBid removes the caller's resting bid or pending stop-limit bid
// with id and refunds its asset-B escrow.
func (ob *OrderBook) CancelLimitBid(call Call, id uint64) error {
	return ob.cancel("cancel limit bid", call, id, Bid, StopLimit, true)
}

// CancelLimitAsk removes the caller's resting ask or pending stop-limit ask
// with id and refunds its asset-A escrow.
func (ob *OrderBook) CancelLimitAsk(call Call, id uint64) error {
	return ob.cancel("cancel limit ask", call, id, Ask, StopLimit, true)
}

// CancelMarketBuy removes the caller's pending stop-market buy with id.
func (ob *OrderBook) CancelMarketBuy(call Call, id uint64) error {
	return ob.cancel("cancel market buy", call, id, Bid, StopMarket, false)
}

// CancelMarketSell removes the caller's pending stop-market sell with id.
func (ob *OrderBook) CancelMarketSell(call Call, id uint64) error {
	return ob.cancel("cancel market sell", call, id, Ask, StopMarket, false)
}

func requireOwner(owner, caller common.Address, id uint64) error {
	if owner != caller {
		return fmt.Errorf("order %d owned by %s: %w", id, owner.Hex(), ErrNotOwner)
	}
	return nil
}

func (ob *OrderBook) cancel(op string, call Call, id uint64, side Side, kind Kind, resting bool) error {
	err := ob.atomic(func() error {
		found := false
		if resting {
			tree := ob.book(side)
			if o, ok := findOrder(tree, id); ok {
				if err := requireOwner(o.Owner, call.Caller, id); err != nil {
					return err
				}
				tree.Delete(o)
				var err error
				if side == Bid {
					err = ob.payB(o.Owner, ob.pair.Quote(o.Remaining, o.Price))
				} else {
					err = ob.payA(o.Owner, o.Remaining)
				}
				if err != nil {
					return err
				}
				found = true
			}
		}
		if s, ok := findStop(ob.stops, id, side, kind); ok {
			if err := requireOwner(s.Owner, call.Caller, id); err != nil {
				return err
			}
			ob.stops.Delete(s)
			if err := ob.stopRefund(s); err != nil {
				return err
			}
			found = true
		}
		if !found {
			return fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
		}
		ob.updateSpread()
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ob.log.Info("order cancelled",
		zap.Uint64("order", id),
		zap.Stringer("side", side),
		zap.Stringer("kind", kind),
		zap.Stringer("owner", call.Caller))
	return nil
}
