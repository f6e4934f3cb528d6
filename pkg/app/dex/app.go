// Package dex hosts one order book as a block-driven application: it owns the
// two token ledgers, authenticates signed transactions, executes blocks in
// mempool order and commits the result.
package dex

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperbook/params"
	"github.com/uhyunpark/hyperbook/pkg/abci"
	"github.com/uhyunpark/hyperbook/pkg/app/core/mempool"
	"github.com/uhyunpark/hyperbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperbook/pkg/app/core/token"
	"github.com/uhyunpark/hyperbook/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperbook/pkg/crypto"
	"github.com/uhyunpark/hyperbook/pkg/storage"
)

// recentTradesCap bounds the in-memory trade history served to readers.
const recentTradesCap = 500

// Block describes the last finalized block.
type Block struct {
	Height    uint64
	Timestamp uint64
	AppHash   common.Hash
	Trades    []storage.TradeRecord
}

type App struct {
	mu sync.RWMutex

	cfg      params.Config
	log      *zap.Logger
	mempool  *mempool.Mempool
	verifier *transaction.Verifier
	store    storage.Store
	wal      storage.WAL

	tokenA *token.ERC20
	tokenB *token.ERC20
	book   *orderbook.OrderBook
	nonces map[common.Address]uint64

	last   Block
	recent []storage.TradeRecord
}

var _ abci.Application = (*App)(nil)

type Option func(*App)

func WithLogger(l *zap.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.log = l
		}
	}
}

// WithStore persists every committed block to s and resumes from its last
// snapshot.
func WithStore(s storage.Store) Option {
	return func(a *App) { a.store = s }
}

// WithWAL journals every executed transaction and its result.
func WithWAL(w storage.WAL) Option {
	return func(a *App) { a.wal = w }
}

// New creates the application for cfg.Pair. With a store holding a snapshot
// for the pair, state resumes from it; otherwise both tokens and the book
// start empty.
func New(cfg params.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		log:     zap.NewNop(),
		mempool: mempool.NewMempool(),
		wal:     storage.NewNopWAL(),
		nonces:  make(map[common.Address]uint64),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.verifier = transaction.NewVerifier(Domain(cfg))

	var snap *storage.Snapshot
	if a.store != nil {
		var err error
		if snap, err = a.store.LoadSnapshot(a.symbol()); err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
	}
	if snap != nil {
		if err := a.restore(snap); err != nil {
			return nil, err
		}
		return a, nil
	}

	a.tokenA = token.NewERC20(cfg.Pair.AssetA, cfg.Pair.TickerA, cfg.Pair.TickerA, cfg.Pair.DecimalsA)
	a.tokenB = token.NewERC20(cfg.Pair.AssetB, cfg.Pair.TickerB, cfg.Pair.TickerB, cfg.Pair.DecimalsB)
	book, err := orderbook.New(cfg.Pair.Book, a.tokenA, cfg.Pair.TickerA, a.tokenB, cfg.Pair.TickerB,
		orderbook.WithLogger(a.log.Named("book")))
	if err != nil {
		return nil, err
	}
	a.book = book
	a.log.Info("genesis", zap.String("pair", a.symbol()), zap.Stringer("book", cfg.Pair.Book))
	return a, nil
}

// Domain is the EIP-712 domain transactions for cfg must be signed under.
func Domain(cfg params.Config) crypto.EIP712Domain {
	domain := crypto.DefaultDomain()
	domain.ChainID = big.NewInt(cfg.Node.ChainID)
	domain.VerifyingContract = cfg.Pair.Book
	return domain
}

func (a *App) restore(snap *storage.Snapshot) error {
	for _, l := range snap.Tokens {
		switch l.Address {
		case a.cfg.Pair.AssetA:
			a.tokenA = token.Import(l)
		case a.cfg.Pair.AssetB:
			a.tokenB = token.Import(l)
		}
	}
	if a.tokenA == nil || a.tokenB == nil {
		return fmt.Errorf("snapshot at height %d is missing a %s ledger", snap.Height, a.symbol())
	}
	book, err := orderbook.Restore(a.cfg.Pair.Book, a.tokenA, a.tokenB, snap.Book,
		orderbook.WithLogger(a.log.Named("book")))
	if err != nil {
		return fmt.Errorf("restore book: %w", err)
	}
	a.book = book
	for _, n := range snap.Nonces {
		a.nonces[n.Address] = n.Nonce
	}
	a.last = Block{Height: snap.Height, AppHash: snap.AppHash}

	trades, err := a.store.RecentTrades(a.symbol(), recentTradesCap)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}
	for i := len(trades) - 1; i >= 0; i-- {
		a.recent = append(a.recent, trades[i])
	}

	a.log.Info("state restored",
		zap.Uint64("height", snap.Height),
		zap.Stringer("app_hash", snap.AppHash),
		zap.Int("bids", len(snap.Book.Bids)),
		zap.Int("asks", len(snap.Book.Asks)),
		zap.Int("stops", len(snap.Book.Stops)))
	return nil
}

func (a *App) symbol() string {
	return a.cfg.Pair.TickerA + "/" + a.cfg.Pair.TickerB
}

// Height returns the last finalized height.
func (a *App) Height() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last.Height
}

// PushTx queues a raw transaction for the next block. Transactions are only
// authenticated when executed.
func (a *App) PushTx(b []byte) { a.mempool.PushRaw(b) }

func (a *App) PendingTxs() int { return a.mempool.Len() }

func (a *App) PrepareProposal(req abci.RequestPrepareProposal) abci.ResponsePrepareProposal {
	return abci.ResponsePrepareProposal{Txs: a.mempool.SelectForProposal(req.MaxTxBytes)}
}

func (a *App) ProcessProposal(_ abci.RequestProcessProposal) abci.ResponseProcessProposal {
	return abci.ResponseProcessProposal{Accept: true}
}

// FinalizeBlock executes txs in order. A failing transaction is reported in
// its result and leaves no trace in the book or the ledgers.
func (a *App) FinalizeBlock(req abci.RequestFinalizeBlock) abci.ResponseFinalizeBlock {
	a.mu.Lock()
	defer a.mu.Unlock()

	results := make([]abci.TxResult, 0, len(req.Txs))
	var trades []storage.TradeRecord
	for _, raw := range req.Txs {
		res, fills := a.deliverTx(raw, req.Timestamp)
		for _, tr := range fills {
			trades = append(trades, storage.TradeRecord{Height: req.Height, Index: uint64(len(trades)), Trade: tr})
		}
		results = append(results, res)
	}
	a.tokenA.Finalise()
	a.tokenB.Finalise()

	appHash := a.computeStateHash(req.Height, req.Timestamp)
	a.last = Block{Height: req.Height, Timestamp: req.Timestamp, AppHash: appHash, Trades: trades}

	a.recent = append(a.recent, trades...)
	if n := len(a.recent) - recentTradesCap; n > 0 {
		a.recent = append([]storage.TradeRecord(nil), a.recent[n:]...)
	}

	if len(req.Txs) > 0 {
		a.log.Debug("block finalized",
			zap.Uint64("height", req.Height),
			zap.Int("txs", len(req.Txs)),
			zap.Int("trades", len(trades)),
			zap.Stringer("app_hash", appHash))
	}
	return abci.ResponseFinalizeBlock{TxResults: results, AppHash: appHash}
}

// Commit writes the last finalized block to the store, if any.
func (a *App) Commit() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.store == nil {
		return nil
	}
	return a.store.Commit(a.snapshot(), a.last.Trades)
}

func (a *App) snapshot() *storage.Snapshot {
	return &storage.Snapshot{
		Height:  a.last.Height,
		AppHash: a.last.AppHash,
		Book:    a.book.Export(),
		Tokens:  []*token.Ledger{a.tokenA.Export(), a.tokenB.Export()},
		Nonces:  a.sortedNonces(),
	}
}

// LastBlock returns the last finalized block.
func (a *App) LastBlock() Block {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b := a.last
	b.Trades = append([]storage.TradeRecord(nil), a.last.Trades...)
	return b
}
