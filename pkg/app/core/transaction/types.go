package transaction

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// TxType names the operation a transaction invokes.
type TxType string

const (
	TxLimitBid       TxType = "limit_bid"
	TxLimitAsk       TxType = "limit_ask"
	TxMarketBuy      TxType = "market_buy"
	TxMarketSell     TxType = "market_sell"
	TxStopLimitBid   TxType = "stop_limit_bid"
	TxStopLimitAsk   TxType = "stop_limit_ask"
	TxStopMarketBuy  TxType = "stop_market_buy"
	TxStopMarketSell TxType = "stop_market_sell"

	TxCancelLimitBid   TxType = "cancel_limit_bid"
	TxCancelLimitAsk   TxType = "cancel_limit_ask"
	TxCancelMarketBuy  TxType = "cancel_market_buy"
	TxCancelMarketSell TxType = "cancel_market_sell"

	TxApprove TxType = "approve" // let the book pull Amount of Token from From
	TxFaucet  TxType = "faucet"  // mint the configured faucet amount of both assets
)

// Class buckets transactions for block ordering.
type Class int

const (
	ClassNonOrder Class = iota
	ClassCancel
	ClassOrder
)

var classes = map[TxType]Class{
	TxLimitBid:         ClassOrder,
	TxLimitAsk:         ClassOrder,
	TxMarketBuy:        ClassOrder,
	TxMarketSell:       ClassOrder,
	TxStopLimitBid:     ClassOrder,
	TxStopLimitAsk:     ClassOrder,
	TxStopMarketBuy:    ClassOrder,
	TxStopMarketSell:   ClassOrder,
	TxCancelLimitBid:   ClassCancel,
	TxCancelLimitAsk:   ClassCancel,
	TxCancelMarketBuy:  ClassCancel,
	TxCancelMarketSell: ClassCancel,
	TxApprove:          ClassNonOrder,
	TxFaucet:           ClassNonOrder,
}

// Class returns the bucket of t and whether t is a known type.
func (t TxType) Class() (Class, bool) {
	c, ok := classes[t]
	return c, ok
}

var ErrUnknownType = errors.New("unknown transaction type")

// Tx is a signed call into the exchange. Only the fields its Type uses are
// set; the rest stay zero and are still covered by the signature.
//
//	{
//	  "type": "limit_bid",
//	  "from": "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
//	  "nonce": 4,
//	  "lots": 20000,
//	  "price": 92382385,
//	  "signature": "0x..."
//	}
type Tx struct {
	Type      TxType         `json:"type"`
	From      common.Address `json:"from"`
	Nonce     uint64         `json:"nonce"`
	Lots      uint64         `json:"lots,omitempty"`
	Price     uint64         `json:"price,omitempty"`
	Stop      uint64         `json:"stop,omitempty"`
	Budget    uint64         `json:"budget,omitempty"`
	OrderID   uint64         `json:"orderId,omitempty"`
	Token     common.Address `json:"token"`
	Amount    *uint256.Int   `json:"amount,omitempty"`
	Signature hexutil.Bytes  `json:"signature"`
}

// Serialize converts Tx to JSON bytes
func (tx *Tx) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// Validate checks the envelope: a known type, a sender, a signature and the
// fields the type requires. Amount limits are the book's business.
func (tx *Tx) Validate() error {
	if tx.Type == "" {
		return fmt.Errorf("missing transaction type")
	}
	if _, ok := tx.Type.Class(); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, tx.Type)
	}
	if tx.From == (common.Address{}) {
		return fmt.Errorf("missing sender")
	}
	if len(tx.Signature) == 0 {
		return fmt.Errorf("missing signature")
	}
	if tx.Type == TxApprove {
		if tx.Token == (common.Address{}) {
			return fmt.Errorf("approve requires a token")
		}
		if tx.Amount == nil {
			return fmt.Errorf("approve requires an amount")
		}
	}
	return nil
}

// Parse decodes and validates a JSON transaction. It does not check the
// signature; see Verifier.
func Parse(data []byte) (*Tx, error) {
	var tx Tx
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	return &tx, nil
}
