package orderbook

import (
	"encoding/binary"
	"hash"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// StateHash returns a keccak256 digest of the complete book state: counters,
// last price, spread and every order in book order. Two books that executed
// the same calls from the same state hash equal.
func (ob *OrderBook) StateHash() common.Hash {
	h := sha3.NewLegacyKeccak256()
	writeUint(h, ob.nextOrderID)
	writeUint(h, ob.seq)
	writeUint(h, ob.lastTradePrice)
	writeUint(h, ob.spread)

	writeUint(h, uint64(ob.bids.Len()))
	ob.bids.Ascend(func(o Order) bool {
		writeOrder(h, o)
		return true
	})
	writeUint(h, uint64(ob.asks.Len()))
	ob.asks.Ascend(func(o Order) bool {
		writeOrder(h, o)
		return true
	})
	writeUint(h, uint64(ob.stops.Len()))
	ob.stops.Ascend(func(s StopOrder) bool {
		writeOrder(h, s.Order)
		writeUint(h, s.Stop)
		h.Write([]byte{byte(s.Side), byte(s.Kind)})
		return true
	})
	return common.BytesToHash(h.Sum(nil))
}

func writeOrder(h hash.Hash, o Order) {
	writeUint(h, o.ID)
	writeUint(h, o.CreatedAt)
	writeUint(h, o.Seq)
	h.Write(o.Owner[:])
	writeUint(h, o.Remaining)
	writeUint(h, o.Price)
}

func writeUint(h hash.Hash, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}
