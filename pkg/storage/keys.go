package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema:
//
//	meta                                → committed height, app hash and nonces
//	book:{symbol}                       → orderbook.State
//	tok:{address}                       → token.Ledger
//	trade:{symbol}:{height}:{index}     → TradeRecord
const (
	prefixBook  = "book:"
	prefixToken = "tok:"
	prefixTrade = "trade:"
)

func metaKey() []byte { return []byte("meta") }

// bookKey returns "book:{symbol}"
func bookKey(symbol string) []byte {
	return []byte(prefixBook + symbol)
}

// tokenKey returns "tok:{address}"
func tokenKey(addr common.Address) []byte {
	return []byte(prefixToken + addr.Hex())
}

func tokenPrefix() []byte { return []byte(prefixToken) }

// tradeKey returns "trade:{symbol}:{height}:{index}". Height and index are
// zero-padded so keys sort in execution order.
func tradeKey(symbol string, height, index uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%010d", prefixTrade, symbol, height, index))
}

// tradePrefix returns "trade:{symbol}:"
func tradePrefix(symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, symbol))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
