package api

// API response types for REST endpoints and WebSocket messages.
//
// Lots and ticks are carried as integers with 4 implied decimals; the
// *Display fields render them, e.g. 56512 -> "5.6512". Raw token amounts
// are decimal strings.

// PairInfo is the market's configuration and summary.
type PairInfo struct {
	Symbol      string `json:"symbol"` // e.g., "WETH/USDX"
	Book        string `json:"book"`   // escrow address
	AssetA      string `json:"assetA"`
	AssetB      string `json:"assetB"`
	TickerA     string `json:"tickerA"`
	TickerB     string `json:"tickerB"`
	DecimalsA   uint8  `json:"decimalsA"`
	DecimalsB   uint8  `json:"decimalsB"`
	LotSize     string `json:"lotSize"`  // raw asset-A units per lot
	TickSize    string `json:"tickSize"` // raw asset-B units per tick
	Precision   uint64 `json:"precision"`
	NextOrderID uint64 `json:"nextOrderId"`
	LastPrice   uint64 `json:"lastPrice"`
	Spread      uint64 `json:"spread"`
	Height      uint64 `json:"height"`
}

// PriceLevel aggregates the resting lots at one price.
type PriceLevel struct {
	Price        uint64 `json:"price"`
	PriceDisplay string `json:"priceDisplay"`
	Lots         uint64 `json:"lots"`
	LotsDisplay  string `json:"lotsDisplay"`
	Orders       int    `json:"orders"`
}

// OrderbookSnapshot is the book at Height.
type OrderbookSnapshot struct {
	Symbol string       `json:"symbol"`
	Height uint64       `json:"height"`
	Bids   []PriceLevel `json:"bids"` // best (highest) first
	Asks   []PriceLevel `json:"asks"` // best (lowest) first
	Stops  int          `json:"stops"`
}

// OrderInfo is one resting or pending order.
type OrderInfo struct {
	ID        uint64 `json:"id"`
	Side      string `json:"side"` // "bid" or "ask"
	Type      string `json:"type"` // "limit", "stop_limit" or "stop_market"
	Owner     string `json:"owner"`
	Price     uint64 `json:"price,omitempty"`
	Stop      uint64 `json:"stop,omitempty"`
	Remaining uint64 `json:"remaining"` // lots, or ticks for a stop-market buy
	CreatedAt uint64 `json:"createdAt"` // Unix milliseconds
}

type AccountOrders struct {
	Address string      `json:"address"`
	Height  uint64      `json:"height"`
	Orders  []OrderInfo `json:"orders"`
}

// AccountInfo is an address's balances and the allowances it gave the book.
type AccountInfo struct {
	Address    string `json:"address"`
	Nonce      uint64 `json:"nonce"` // last used; the next tx must be greater
	BalanceA   string `json:"balanceA"`
	BalanceB   string `json:"balanceB"`
	AllowanceA string `json:"allowanceA"`
	AllowanceB string `json:"allowanceB"`
}

// TradeInfo is one fill.
type TradeInfo struct {
	Height    uint64 `json:"height"`
	Index     uint64 `json:"index"`
	TakerID   uint64 `json:"takerId"`
	MakerID   uint64 `json:"makerId"`
	Taker     string `json:"taker"`
	Maker     string `json:"maker"`
	Side      string `json:"side"` // taker side
	Price     uint64 `json:"price"`
	Lots      uint64 `json:"lots"`
	Quote     string `json:"quote"` // raw asset-B paid to the seller
	Timestamp uint64 `json:"timestamp"`
}

type ChainStatus struct {
	Height      uint64 `json:"height"`
	AppHash     string `json:"appHash"`
	MempoolSize int    `json:"mempoolSize"`
}

type SubmitTxResponse struct {
	Status string `json:"status"`
	Hash   string `json:"hash"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by clients:
//
//	{"op": "subscribe", "channels": ["orderbook:WETH/USDX", "trades:WETH/USDX"]}
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

type OrderbookUpdate struct {
	Type string `json:"type"` // "orderbook"
	OrderbookSnapshot
}

type TradesUpdate struct {
	Type   string      `json:"type"` // "trades"
	Symbol string      `json:"symbol"`
	Height uint64      `json:"height"`
	Trades []TradeInfo `json:"trades"`
}
