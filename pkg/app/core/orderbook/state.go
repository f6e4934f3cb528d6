package orderbook

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/btree"

	"github.com/uhyunpark/hyperbook/pkg/app/core/token"
)

// State is a complete, serializable image of a book. Orders are listed in
// book order.
type State struct {
	AssetA         common.Address
	AssetB         common.Address
	TickerA        string
	TickerB        string
	NextOrderID    uint64
	Seq            uint64
	LastTradePrice uint64
	Spread         uint64
	Bids           []Order
	Asks           []Order
	Stops          []StopOrder
}

// Export captures the book's state.
func (ob *OrderBook) Export() *State {
	return &State{
		AssetA:         ob.AssetA(),
		AssetB:         ob.AssetB(),
		TickerA:        ob.pair.TickerA,
		TickerB:        ob.pair.TickerB,
		NextOrderID:    ob.nextOrderID,
		Seq:            ob.seq,
		LastTradePrice: ob.lastTradePrice,
		Spread:         ob.spread,
		Bids:           ob.Bids(),
		Asks:           ob.Asks(),
		Stops:          ob.Stops(),
	}
}

// Restore rebuilds a book from st over the given tokens, which must be the
// ones st was exported with. Escrow is not re-checked: the token balances are
// assumed to be restored alongside.
func Restore(self common.Address, assetA, assetB token.Token, st *State, opts ...Option) (*OrderBook, error) {
	if st.AssetA != assetA.Address() || st.AssetB != assetB.Address() {
		return nil, fmt.Errorf("restore %s/%s: state is for assets %s/%s", st.TickerA, st.TickerB, st.AssetA.Hex(), st.AssetB.Hex())
	}
	ob, err := New(self, assetA, st.TickerA, assetB, st.TickerB, opts...)
	if err != nil {
		return nil, err
	}
	for _, o := range st.Bids {
		if err := restoreOrder(ob.bids, o, st); err != nil {
			return nil, err
		}
	}
	for _, o := range st.Asks {
		if err := restoreOrder(ob.asks, o, st); err != nil {
			return nil, err
		}
	}
	for _, s := range st.Stops {
		if s.Stop == 0 || (s.Kind == StopLimit && s.Price == 0) {
			return nil, fmt.Errorf("restore stop %d: %w", s.ID, ErrInvalidStop)
		}
		if err := checkRestored(s.Order, st); err != nil {
			return nil, err
		}
		if _, dup := ob.stops.ReplaceOrInsert(s); dup {
			return nil, fmt.Errorf("restore stop %d: duplicate key", s.ID)
		}
	}
	ob.nextOrderID = st.NextOrderID
	ob.seq = st.Seq
	ob.lastTradePrice = st.LastTradePrice
	ob.updateSpread()
	if ob.spread != st.Spread {
		return nil, fmt.Errorf("restore: spread %d does not match book (%d)", st.Spread, ob.spread)
	}
	return ob, nil
}

func restoreOrder(tree *btree.BTreeG[Order], o Order, st *State) error {
	if o.Price == 0 {
		return fmt.Errorf("restore order %d: %w", o.ID, ErrInvalidPrice)
	}
	if err := checkRestored(o, st); err != nil {
		return err
	}
	if _, dup := tree.ReplaceOrInsert(o); dup {
		return fmt.Errorf("restore order %d: duplicate key", o.ID)
	}
	return nil
}

func checkRestored(o Order, st *State) error {
	if o.Remaining == 0 {
		return fmt.Errorf("restore order %d: %w", o.ID, ErrInvalidAmount)
	}
	if o.ID >= st.NextOrderID || o.Seq >= st.Seq {
		return fmt.Errorf("restore order %d: id or sequence ahead of counters", o.ID)
	}
	return nil
}
