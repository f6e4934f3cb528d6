package orderbook

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// Kind distinguishes the two stop order flavours. A triggered StopLimit
// enters the book as a limit order, a StopMarket walks it as a market order.
type Kind uint8

const (
	StopLimit Kind = iota
	StopMarket
)

func (k Kind) String() string {
	switch k {
	case StopLimit:
		return "stop_limit"
	case StopMarket:
		return "stop_market"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Order is a resting or in-flight order. Amounts are in lots, prices in
// ticks. For a stop-market buy, Remaining holds the quote budget in ticks.
//
// Orders are stored by value; the sort key (Price, CreatedAt, Seq) never
// changes while an order rests, so reducing Remaining is an in-place replace.
type Order struct {
	ID        uint64
	CreatedAt uint64
	Owner     common.Address
	Remaining uint64
	Price     uint64
	// Seq is the book-wide insertion counter; it orders orders created
	// within the same timestamp.
	Seq uint64
}

// StopOrder is an inert order waiting for the last trade price to cross Stop.
type StopOrder struct {
	Order
	Stop uint64
	Side Side
	Kind Kind
}

// Trade is one fill between an incoming (taker) order and a resting (maker)
// order. Price is always the maker's price; Quote is the raw asset-B amount
// paid to the seller.
type Trade struct {
	TakerID   uint64
	MakerID   uint64
	Taker     common.Address
	Maker     common.Address
	TakerSide Side
	Price     uint64
	Lots      uint64
	Quote     *uint256.Int
	Timestamp uint64
}

// Call carries what the execution environment provides to every mutating
// operation: the authenticated caller and the logical block timestamp.
type Call struct {
	Caller    common.Address
	Timestamp uint64
}
