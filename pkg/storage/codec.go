package storage

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/uhyunpark/hyperbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperbook/pkg/app/core/token"
)

// Snapshot is everything needed to resume execution after a restart: the
// book and the ledgers holding its escrow, as of a committed height.
type Snapshot struct {
	Height  uint64
	AppHash common.Hash
	Book    *orderbook.State
	Tokens  []*token.Ledger
	Nonces  []AccountNonce
}

// AccountNonce is the highest transaction nonce an account has used.
type AccountNonce struct {
	Address common.Address
	Nonce   uint64
}

// TradeRecord is a trade with its position in the chain.
type TradeRecord struct {
	Height uint64
	Index  uint64
	Trade  orderbook.Trade
}

type meta struct {
	Height  uint64
	AppHash common.Hash
	Nonces  []AccountNonce
}

func encode(v any) ([]byte, error) {
	return rlp.EncodeToBytes(v)
}

func decode(b []byte, v any) error {
	return rlp.DecodeBytes(b, v)
}
