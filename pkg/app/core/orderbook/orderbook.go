// Package orderbook implements a deterministic single-pair limit order book
// with price-time priority, market orders and a stop-order trigger cascade.
//
// All funds are escrowed in the book's own token accounts at placement and
// paid out on fill or cancellation. The book is not safe for concurrent use;
// the host serializes calls.
package orderbook

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/btree"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperbook/pkg/app/core/market"
	"github.com/uhyunpark/hyperbook/pkg/app/core/token"
)

type OrderBook struct {
	log *zap.Logger

	// self is the address holding escrow in both tokens.
	self   common.Address
	tokenA token.Token
	tokenB token.Token
	pair   *market.Pair

	nextOrderID    uint64
	seq            uint64
	lastTradePrice uint64
	spread         uint64

	bids  *btree.BTreeG[Order]
	asks  *btree.BTreeG[Order]
	stops *btree.BTreeG[StopOrder]
}

type Option func(*OrderBook)

// WithLogger sets the logger used for fills, triggers and invariant failures.
func WithLogger(l *zap.Logger) Option {
	return func(ob *OrderBook) {
		if l != nil {
			ob.log = l
		}
	}
}

// New creates an empty book trading assetA (base, counted in lots) against
// assetB (quote, priced in ticks). self is the address the book escrows into.
func New(self common.Address, assetA token.Token, tickerA string, assetB token.Token, tickerB string, opts ...Option) (*OrderBook, error) {
	if assetA.Address() == assetB.Address() {
		return nil, fmt.Errorf("new order book %s/%s: %w", tickerA, tickerB, ErrSameAsset)
	}
	pair, err := market.NewPair(tickerA, assetA.Decimals(), tickerB, assetB.Decimals())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecimals, err)
	}
	ob := &OrderBook{
		log:    zap.NewNop(),
		self:   self,
		tokenA: assetA,
		tokenB: assetB,
		pair:   pair,
		bids:   newBidTree(),
		asks:   newAskTree(),
		stops:  newStopTree(),
	}
	for _, opt := range opts {
		opt(ob)
	}
	ob.log = ob.log.With(zap.String("pair", pair.Symbol()))
	return ob, nil
}

func (ob *OrderBook) Address() common.Address { return ob.self }
func (ob *OrderBook) Pair() *market.Pair      { return ob.pair }
func (ob *OrderBook) AssetA() common.Address  { return ob.tokenA.Address() }
func (ob *OrderBook) AssetB() common.Address  { return ob.tokenB.Address() }
func (ob *OrderBook) TickerA() string         { return ob.pair.TickerA }
func (ob *OrderBook) TickerB() string         { return ob.pair.TickerB }
func (ob *OrderBook) LotSize() *uint256.Int   { return ob.pair.LotSize() }
func (ob *OrderBook) TickSize() *uint256.Int  { return ob.pair.TickSize() }
func (ob *OrderBook) Precision() uint64       { return market.Precision }

// NextOrderID is the id the next placement will receive.
func (ob *OrderBook) NextOrderID() uint64 { return ob.nextOrderID }

// LastPrice is the price of the most recent trade, or 0 before any trade.
func (ob *OrderBook) LastPrice() uint64 { return ob.lastTradePrice }

// Spread is |bestBid - bestAsk| as of the last placement or cancellation,
// or 0 when either side is empty.
func (ob *OrderBook) Spread() uint64 { return ob.spread }

// Bids returns resting bids, best first.
func (ob *OrderBook) Bids() []Order { return dump(ob.bids) }

// Asks returns resting asks, best first.
func (ob *OrderBook) Asks() []Order { return dump(ob.asks) }

// Stops returns pending stop orders by ascending threshold.
func (ob *OrderBook) Stops() []StopOrder { return dump(ob.stops) }

// UserOrders returns owner's resting bids, asks and pending stops, each in
// book order.
func (ob *OrderBook) UserOrders(owner common.Address) (bids, asks []Order, stops []StopOrder) {
	bids, asks, stops = []Order{}, []Order{}, []StopOrder{}
	ob.bids.Ascend(func(o Order) bool {
		if o.Owner == owner {
			bids = append(bids, o)
		}
		return true
	})
	ob.asks.Ascend(func(o Order) bool {
		if o.Owner == owner {
			asks = append(asks, o)
		}
		return true
	})
	ob.stops.Ascend(func(s StopOrder) bool {
		if s.Owner == owner {
			stops = append(stops, s)
		}
		return true
	})
	return bids, asks, stops
}

// BestBid returns the highest resting bid price.
func (ob *OrderBook) BestBid() (uint64, bool) {
	o, ok := ob.bids.Min()
	return o.Price, ok
}

// BestAsk returns the lowest resting ask price.
func (ob *OrderBook) BestAsk() (uint64, bool) {
	o, ok := ob.asks.Min()
	return o.Price, ok
}

func (ob *OrderBook) updateSpread() {
	bid, okBid := ob.BestBid()
	ask, okAsk := ob.BestAsk()
	switch {
	case !okBid || !okAsk:
		ob.spread = 0
	case ask >= bid:
		ob.spread = ask - bid
	default:
		ob.spread = bid - ask
	}
}

func (ob *OrderBook) book(side Side) *btree.BTreeG[Order] {
	if side == Bid {
		return ob.bids
	}
	return ob.asks
}

func (ob *OrderBook) nextSeq() uint64 {
	s := ob.seq
	ob.seq++
	return s
}

// checkpoint is everything a failed call must put back.
type checkpoint struct {
	bids, asks                               *btree.BTreeG[Order]
	stops                                    *btree.BTreeG[StopOrder]
	nextOrderID, seq, lastTradePrice, spread uint64
	snapA, snapB                             int
}

// atomic runs fn as one all-or-nothing call. If fn fails or panics the book
// and every journaled token are restored to their state before the call.
func (ob *OrderBook) atomic(fn func() error) (err error) {
	cp := checkpoint{
		bids:           ob.bids.Clone(),
		asks:           ob.asks.Clone(),
		stops:          ob.stops.Clone(),
		nextOrderID:    ob.nextOrderID,
		seq:            ob.seq,
		lastTradePrice: ob.lastTradePrice,
		spread:         ob.spread,
		snapA:          -1,
		snapB:          -1,
	}
	if j, ok := ob.tokenA.(token.Journal); ok {
		cp.snapA = j.Snapshot()
	}
	if j, ok := ob.tokenB.(token.Journal); ok {
		cp.snapB = j.Snapshot()
	}

	defer func() {
		if r := recover(); r != nil {
			ob.rollback(&cp)
			panic(r)
		}
		if err != nil {
			ob.rollback(&cp)
		}
	}()
	return fn()
}

func (ob *OrderBook) rollback(cp *checkpoint) {
	ob.bids, ob.asks, ob.stops = cp.bids, cp.asks, cp.stops
	ob.nextOrderID = cp.nextOrderID
	ob.seq = cp.seq
	ob.lastTradePrice = cp.lastTradePrice
	ob.spread = cp.spread
	if cp.snapB >= 0 {
		ob.tokenB.(token.Journal).RevertToSnapshot(cp.snapB)
	}
	if cp.snapA >= 0 {
		ob.tokenA.(token.Journal).RevertToSnapshot(cp.snapA)
	}
}
