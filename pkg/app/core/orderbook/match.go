package orderbook

import (
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// execution is the state of one public call as it flows through matching
// and the stop cascade.
type execution struct {
	call   Call
	trades []Trade
	// dispatching is set while triggered stops run; matching routines
	// invoked from the cascade do not start another one.
	dispatching bool
}

func (ex *execution) record(ob *OrderBook, taker Order, side Side, maker Order, lots uint64, quote *uint256.Int) {
	ex.trades = append(ex.trades, Trade{
		TakerID:   taker.ID,
		MakerID:   maker.ID,
		Taker:     taker.Owner,
		Maker:     maker.Owner,
		TakerSide: side,
		Price:     maker.Price,
		Lots:      lots,
		Quote:     quote,
		Timestamp: ex.call.Timestamp,
	})
	ob.log.Debug("fill",
		zap.Uint64("taker", taker.ID),
		zap.Uint64("maker", maker.ID),
		zap.Stringer("side", side),
		zap.Uint64("price", maker.Price),
		zap.Uint64("lots", lots))
}

// reduce takes fill lots off a resting order, removing it once empty.
func (ob *OrderBook) reduce(side Side, o Order, fill uint64) {
	tree := ob.book(side)
	o.Remaining -= fill
	if o.Remaining == 0 {
		if _, ok := tree.Delete(o); !ok {
			ob.log.Panic("filled order missing from book", zap.Uint64("order", o.ID), zap.Stringer("side", side))
		}
		return
	}
	if _, replaced := tree.ReplaceOrInsert(o); !replaced {
		ob.log.Panic("partially filled order missing from book", zap.Uint64("order", o.ID), zap.Stringer("side", side))
	}
}

// matchLimitBid crosses bid against asks priced at or below bid.Price and
// rests whatever is left. The bid's escrow must already be held.
func (ob *OrderBook) matchLimitBid(ex *execution, bid Order) error {
	prev, last := ob.lastTradePrice, ob.lastTradePrice
	for bid.Remaining > 0 {
		ask, ok := ob.asks.Min()
		if !ok || ask.Price > bid.Price {
			break
		}
		fill := min(bid.Remaining, ask.Remaining)
		quote, err := ob.settleBid(bid, ask.Owner, fill, ask.Price)
		if err != nil {
			return err
		}
		bid.Remaining -= fill
		ob.reduce(Ask, ask, fill)
		ex.record(ob, bid, Bid, ask, fill, quote)
		last = ask.Price
	}
	if bid.Remaining > 0 {
		ob.bids.ReplaceOrInsert(bid)
	}
	return ob.settlePrice(ex, prev, last)
}

// matchLimitAsk crosses ask against bids priced at or above ask.Price and
// rests whatever is left. The ask's lots must already be escrowed.
func (ob *OrderBook) matchLimitAsk(ex *execution, ask Order) error {
	prev, last := ob.lastTradePrice, ob.lastTradePrice
	for ask.Remaining > 0 {
		bid, ok := ob.bids.Min()
		if !ok || bid.Price < ask.Price {
			break
		}
		fill := min(ask.Remaining, bid.Remaining)
		quote, err := ob.settleBid(bid, ask.Owner, fill, bid.Price)
		if err != nil {
			return err
		}
		ask.Remaining -= fill
		ob.reduce(Bid, bid, fill)
		ex.record(ob, ask, Ask, bid, fill, quote)
		last = bid.Price
	}
	if ask.Remaining > 0 {
		ob.asks.ReplaceOrInsert(ask)
	}
	return ob.settlePrice(ex, prev, last)
}

// matchMarketBuy spends a quote budget of o.Remaining ticks against asks
// from the lowest price up. The budget is tracked in raw asset-B units so no
// rounding is lost between fills; whatever is left is refunded.
func (ob *OrderBook) matchMarketBuy(ex *execution, o Order) error {
	prev, last := ob.lastTradePrice, ob.lastTradePrice
	budget := ob.pair.ToRawB(o.Remaining)
	for !budget.IsZero() {
		ask, ok := ob.asks.Min()
		if !ok {
			break
		}
		fill := min(ob.pair.MaxLots(budget, ask.Price), ask.Remaining)
		if fill == 0 {
			break
		}
		quote := ob.pair.Quote(fill, ask.Price)
		if err := ob.payB(ask.Owner, quote); err != nil {
			return err
		}
		if err := ob.payA(o.Owner, fill); err != nil {
			return err
		}
		budget.Sub(budget, quote)
		ob.reduce(Ask, ask, fill)
		ex.record(ob, o, Bid, ask, fill, quote)
		last = ask.Price
	}
	if err := ob.payB(o.Owner, budget); err != nil {
		return err
	}
	return ob.settlePrice(ex, prev, last)
}

// matchMarketSell sells o.Remaining lots into bids from the highest price
// down, with no price limit. Unsold lots are refunded.
func (ob *OrderBook) matchMarketSell(ex *execution, o Order) error {
	prev, last := ob.lastTradePrice, ob.lastTradePrice
	for o.Remaining > 0 {
		bid, ok := ob.bids.Min()
		if !ok {
			break
		}
		fill := min(o.Remaining, bid.Remaining)
		quote, err := ob.settleBid(bid, o.Owner, fill, bid.Price)
		if err != nil {
			return err
		}
		o.Remaining -= fill
		ob.reduce(Bid, bid, fill)
		ex.record(ob, o, Ask, bid, fill, quote)
		last = bid.Price
	}
	if err := ob.payA(o.Owner, o.Remaining); err != nil {
		return err
	}
	return ob.settlePrice(ex, prev, last)
}

// settlePrice moves lastTradePrice to the final fill price of a walk and,
// outside of a dispatch, runs the stop cascade over the move.
func (ob *OrderBook) settlePrice(ex *execution, prev, last uint64) error {
	if last == prev {
		return nil
	}
	ob.lastTradePrice = last
	if ex.dispatching {
		return nil
	}
	return ob.triggerStops(ex, prev, last)
}
