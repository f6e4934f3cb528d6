package orderbook

import (
	"math"

	"go.uber.org/zap"
)

// crossed reports whether a move of the last trade price from prev to cur
// passes through threshold. The starting price itself never triggers.
func crossed(prev, cur, threshold uint64) bool {
	return (prev > threshold && threshold >= cur) || (prev < threshold && threshold <= cur)
}

// triggerStops fires every stop whose threshold lies in the price move
// prev -> cur, as one batch, then repeats for the move the batch itself
// caused. Each round removes at least one stop from the book, so a call
// dispatches each pending stop at most once.
func (ob *OrderBook) triggerStops(ex *execution, prev, cur uint64) error {
	for prev != cur {
		batch := ob.takeTriggered(prev, cur)
		if len(batch) == 0 {
			return nil
		}
		before := ob.lastTradePrice

		ex.dispatching = true
		for _, s := range batch {
			if err := ob.dispatch(ex, s); err != nil {
				ex.dispatching = false
				return err
			}
		}
		ex.dispatching = false

		prev, cur = before, ob.lastTradePrice
	}
	return nil
}

// takeTriggered removes and returns the stops crossed by prev -> cur, in scan
// order: ascending thresholds on an up move, descending on a down move.
func (ob *OrderBook) takeTriggered(prev, cur uint64) []StopOrder {
	var batch []StopOrder
	if cur > prev {
		ob.stops.AscendGreaterOrEqual(StopOrder{Stop: prev + 1}, func(s StopOrder) bool {
			if s.Stop > cur {
				return false
			}
			if crossed(prev, cur, s.Stop) {
				batch = append(batch, s)
			}
			return true
		})
	} else {
		last := StopOrder{Stop: prev - 1, Order: Order{CreatedAt: math.MaxUint64, Seq: math.MaxUint64}}
		ob.stops.DescendLessOrEqual(last, func(s StopOrder) bool {
			if s.Stop < cur {
				return false
			}
			if crossed(prev, cur, s.Stop) {
				batch = append(batch, s)
			}
			return true
		})
	}
	for _, s := range batch {
		if _, ok := ob.stops.Delete(s); !ok {
			ob.log.Panic("triggered stop missing from book", zap.Uint64("order", s.ID))
		}
	}
	return batch
}

// dispatch runs a triggered stop as a fresh order stamped with the current
// call's timestamp.
func (ob *OrderBook) dispatch(ex *execution, s StopOrder) error {
	o := Order{
		ID:        s.ID,
		CreatedAt: ex.call.Timestamp,
		Owner:     s.Owner,
		Remaining: s.Remaining,
		Price:     s.Price,
		Seq:       ob.nextSeq(),
	}
	ob.log.Debug("stop triggered",
		zap.Uint64("order", s.ID),
		zap.Stringer("side", s.Side),
		zap.Stringer("kind", s.Kind),
		zap.Uint64("stop", s.Stop),
		zap.Uint64("last_price", ob.lastTradePrice))

	switch {
	case s.Side == Bid && s.Kind == StopLimit:
		return ob.matchLimitBid(ex, o)
	case s.Side == Bid && s.Kind == StopMarket:
		return ob.matchMarketBuy(ex, o)
	case s.Side == Ask && s.Kind == StopLimit:
		return ob.matchLimitAsk(ex, o)
	case s.Side == Ask && s.Kind == StopMarket:
		return ob.matchMarketSell(ex, o)
	}
	ob.log.Panic("unknown stop order", zap.Uint64("order", s.ID), zap.Stringer("side", s.Side), zap.Stringer("kind", s.Kind))
	return nil
}
