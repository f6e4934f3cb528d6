package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperbook/pkg/app/core/market"
	"github.com/uhyunpark/hyperbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperbook/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperbook/pkg/app/dex"
	"github.com/uhyunpark/hyperbook/pkg/storage"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 500
	maxTxBytes        = 64 << 10
)

// Backend is the read and submit surface of the exchange the API serves.
type Backend interface {
	Pair() dex.PairInfo
	Book() dex.BookView
	UserOrders(owner common.Address) dex.BookView
	Account(addr common.Address) dex.Account
	RecentTrades(limit int) []storage.TradeRecord
	LastBlock() dex.Block
	PushTx(b []byte)
	PendingTxs() int
}

// Server handles REST API and WebSocket connections.
type Server struct {
	app    Backend
	router *mux.Router
	hub    *Hub
	log    *zap.Logger
	http   *http.Server

	AllowedOrigins []string
}

func NewServer(app Backend, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		app:            app,
		router:         mux.NewRouter(),
		hub:            NewHub(logger.Named("ws")),
		log:            logger,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/pair", s.handleGetPair).Methods("GET")
	api.HandleFunc("/book", s.handleGetBook).Methods("GET")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")

	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{address}/orders", s.handleGetOrders).Methods("GET")

	api.HandleFunc("/chain/status", s.handleGetChainStatus).Methods("GET")

	api.HandleFunc("/txs", s.handleSubmitTx).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped router.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("api server starting", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetPair(w http.ResponseWriter, r *http.Request) {
	p := s.app.Pair()
	respondJSON(w, PairInfo{
		Symbol:      p.Symbol,
		Book:        p.Book.Hex(),
		AssetA:      p.AssetA.Hex(),
		AssetB:      p.AssetB.Hex(),
		TickerA:     p.TickerA,
		TickerB:     p.TickerB,
		DecimalsA:   p.DecimalsA,
		DecimalsB:   p.DecimalsB,
		LotSize:     p.LotSize.Dec(),
		TickSize:    p.TickSize.Dec(),
		Precision:   p.Precision,
		NextOrderID: p.NextOrderID,
		LastPrice:   p.LastPrice,
		Spread:      p.Spread,
		Height:      p.Height,
	})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.snapshot())
}

func (s *Server) snapshot() OrderbookSnapshot {
	book := s.app.Book()
	return OrderbookSnapshot{
		Symbol: s.app.Pair().Symbol,
		Height: book.Height,
		Bids:   levels(book.Bids),
		Asks:   levels(book.Asks),
		Stops:  len(book.Stops),
	}
}

// levels folds orders, already in book order, into price levels.
func levels(orders []orderbook.Order) []PriceLevel {
	out := []PriceLevel{}
	for _, o := range orders {
		if n := len(out); n > 0 && out[n-1].Price == o.Price {
			out[n-1].Lots += o.Remaining
			out[n-1].Orders++
			continue
		}
		out = append(out, PriceLevel{Price: o.Price, Lots: o.Remaining, Orders: 1})
	}
	for i := range out {
		out[i].PriceDisplay = market.FormatScaled(out[i].Price)
		out[i].LotsDisplay = market.FormatScaled(out[i].Lots)
	}
	return out
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit := defaultTradeLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = min(n, maxTradeLimit)
	}
	respondJSON(w, tradeInfos(s.app.RecentTrades(limit)))
}

func tradeInfos(records []storage.TradeRecord) []TradeInfo {
	out := make([]TradeInfo, 0, len(records))
	for _, tr := range records {
		out = append(out, TradeInfo{
			Height:    tr.Height,
			Index:     tr.Index,
			TakerID:   tr.Trade.TakerID,
			MakerID:   tr.Trade.MakerID,
			Taker:     tr.Trade.Taker.Hex(),
			Maker:     tr.Trade.Maker.Hex(),
			Side:      tr.Trade.TakerSide.String(),
			Price:     tr.Trade.Price,
			Lots:      tr.Trade.Lots,
			Quote:     tr.Trade.Quote.Dec(),
			Timestamp: tr.Trade.Timestamp,
		})
	}
	return out
}

func parseAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	s := mux.Vars(r)["address"]
	if !common.IsHexAddress(s) {
		respondError(w, http.StatusBadRequest, "invalid address", s)
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	acc := s.app.Account(addr)
	respondJSON(w, AccountInfo{
		Address:    acc.Address.Hex(),
		Nonce:      acc.Nonce,
		BalanceA:   acc.BalanceA.Dec(),
		BalanceB:   acc.BalanceB.Dec(),
		AllowanceA: acc.AllowanceA.Dec(),
		AllowanceB: acc.AllowanceB.Dec(),
	})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	view := s.app.UserOrders(addr)
	orders := make([]OrderInfo, 0, len(view.Bids)+len(view.Asks)+len(view.Stops))
	for _, o := range view.Bids {
		orders = append(orders, orderInfo(o, orderbook.Bid, "limit", 0))
	}
	for _, o := range view.Asks {
		orders = append(orders, orderInfo(o, orderbook.Ask, "limit", 0))
	}
	for _, st := range view.Stops {
		orders = append(orders, orderInfo(st.Order, st.Side, st.Kind.String(), st.Stop))
	}
	respondJSON(w, AccountOrders{Address: addr.Hex(), Height: view.Height, Orders: orders})
}

func orderInfo(o orderbook.Order, side orderbook.Side, typ string, stop uint64) OrderInfo {
	return OrderInfo{
		ID:        o.ID,
		Side:      side.String(),
		Type:      typ,
		Owner:     o.Owner.Hex(),
		Price:     o.Price,
		Stop:      stop,
		Remaining: o.Remaining,
		CreatedAt: o.CreatedAt,
	}
}

func (s *Server) handleGetChainStatus(w http.ResponseWriter, r *http.Request) {
	last := s.app.LastBlock()
	respondJSON(w, ChainStatus{
		Height:      last.Height,
		AppHash:     last.AppHash.Hex(),
		MempoolSize: s.app.PendingTxs(),
	})
}

// handleSubmitTx queues a signed transaction. Only the envelope is checked
// here; signature, nonce and execution errors surface when the block runs.
func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTxBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}
	if len(body) > maxTxBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "transaction too large", "")
		return
	}
	tx, err := transaction.Parse(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid transaction", err.Error())
		return
	}

	s.app.PushTx(body)
	hash := crypto.Keccak256Hash(body)
	s.log.Info("tx submitted",
		zap.String("type", string(tx.Type)),
		zap.Stringer("from", tx.From),
		zap.Uint64("nonce", tx.Nonce),
		zap.Stringer("hash", hash))

	respondJSONStatus(w, http.StatusAccepted, SubmitTxResponse{Status: "submitted", Hash: hash.Hex()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods (called after each committed block)
// ==============================

// BroadcastBlock pushes the book and the block's trades to subscribers.
func (s *Server) BroadcastBlock(height uint64) {
	snap := s.snapshot()
	s.hub.BroadcastToChannel("orderbook:"+snap.Symbol, OrderbookUpdate{Type: "orderbook", OrderbookSnapshot: snap})

	last := s.app.LastBlock()
	if last.Height != height || len(last.Trades) == 0 {
		return
	}
	s.hub.BroadcastToChannel("trades:"+snap.Symbol, TradesUpdate{
		Type:   "trades",
		Symbol: snap.Symbol,
		Height: height,
		Trades: tradeInfos(last.Trades),
	})
}

// ==============================
// Helper Functions
// ==============================

func respondJSON(w http.ResponseWriter, data any) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	respondJSONStatus(w, status, ErrorResponse{
		Error:   error,
		Message: message,
	})
}
