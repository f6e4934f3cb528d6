package orderbook

import (
	"github.com/google/btree"
)

const btreeDegree = 32

// bidLess orders bids best first: highest price, then oldest.
func bidLess(a, b Order) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	return olderThan(a, b)
}

// askLess orders asks best first: lowest price, then oldest.
func askLess(a, b Order) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return olderThan(a, b)
}

// stopLess orders stops by threshold ascending, then creation.
func stopLess(a, b StopOrder) bool {
	if a.Stop != b.Stop {
		return a.Stop < b.Stop
	}
	return olderThan(a.Order, b.Order)
}

func olderThan(a, b Order) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	return a.Seq < b.Seq
}

func newBidTree() *btree.BTreeG[Order]      { return btree.NewG(btreeDegree, bidLess) }
func newAskTree() *btree.BTreeG[Order]      { return btree.NewG(btreeDegree, askLess) }
func newStopTree() *btree.BTreeG[StopOrder] { return btree.NewG(btreeDegree, stopLess) }

// findOrder scans tree for id. Ids are not part of the sort key, so this is linear.
func findOrder(tree *btree.BTreeG[Order], id uint64) (found Order, ok bool) {
	tree.Ascend(func(o Order) bool {
		if o.ID == id {
			found, ok = o, true
			return false
		}
		return true
	})
	return found, ok
}

func findStop(tree *btree.BTreeG[StopOrder], id uint64, side Side, kind Kind) (found StopOrder, ok bool) {
	tree.Ascend(func(s StopOrder) bool {
		if s.ID == id && s.Side == side && s.Kind == kind {
			found, ok = s, true
			return false
		}
		return true
	})
	return found, ok
}

func dump[T any](tree *btree.BTreeG[T]) []T {
	out := make([]T, 0, tree.Len())
	tree.Ascend(func(item T) bool {
		out = append(out, item)
		return true
	})
	return out
}
