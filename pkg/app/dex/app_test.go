package dex

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperbook/params"
	"github.com/uhyunpark/hyperbook/pkg/abci"
	"github.com/uhyunpark/hyperbook/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperbook/pkg/crypto"
	"github.com/uhyunpark/hyperbook/pkg/storage"
)

// price 100.0000
const mid = 1_000_000

type trader struct {
	key   *crypto.Signer
	nonce uint64
}

func newTrader(t *testing.T, hexKey string) *trader {
	t.Helper()
	key, err := crypto.FromPrivateKeyHex(hexKey)
	require.NoError(t, err)
	return &trader{key: key}
}

func (tr *trader) sign(t *testing.T, cfg params.Config, tx transaction.Tx) []byte {
	t.Helper()
	tr.nonce++
	tx.Nonce = tr.nonce
	require.NoError(t, transaction.Sign(&tx, tr.key, Domain(cfg)))
	raw, err := tx.Serialize()
	require.NoError(t, err)
	return raw
}

type harness struct {
	t      *testing.T
	cfg    params.Config
	app    *App
	height uint64
	alice  *trader
	bob    *trader
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	cfg := params.Default()
	app, err := New(cfg, opts...)
	require.NoError(t, err)
	return &harness{
		t:     t,
		cfg:   cfg,
		app:   app,
		alice: newTrader(t, "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"),
		bob:   newTrader(t, "8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f"),
	}
}

// block finalizes and commits txs as the next height at timestamp height*1000.
func (h *harness) block(txs ...[]byte) abci.ResponseFinalizeBlock {
	h.t.Helper()
	h.height++
	resp := h.app.FinalizeBlock(abci.RequestFinalizeBlock{Height: h.height, Timestamp: h.height * 1000, Txs: txs})
	require.NoError(h.t, h.app.Commit())
	require.Len(h.t, resp.TxResults, len(txs))
	return resp
}

func (h *harness) requireOK(resp abci.ResponseFinalizeBlock) {
	h.t.Helper()
	for i, r := range resp.TxResults {
		require.True(h.t, r.IsOK(), "tx %d: code %d %s", i, r.Code, r.Log)
	}
}

// fund runs faucet and unlimited approvals of both assets for tr.
func (h *harness) fund(tr *trader) {
	h.t.Helper()
	all := new(uint256.Int).SetAllOne()
	h.requireOK(h.block(
		tr.sign(h.t, h.cfg, transaction.Tx{Type: transaction.TxFaucet}),
		tr.sign(h.t, h.cfg, transaction.Tx{Type: transaction.TxApprove, Token: h.cfg.Pair.AssetA, Amount: all}),
		tr.sign(h.t, h.cfg, transaction.Tx{Type: transaction.TxApprove, Token: h.cfg.Pair.AssetB, Amount: all}),
	))
}

func tokens(n uint64) *uint256.Int {
	return wholeTokens(n, 18)
}

func TestFaucetAndApprove(t *testing.T) {
	h := newHarness(t)
	h.fund(h.alice)

	acc := h.app.Account(h.alice.key.Address())
	assert.Equal(t, tokens(1000), acc.BalanceA)
	assert.Equal(t, tokens(1000), acc.BalanceB)
	assert.True(t, acc.AllowanceA.Eq(new(uint256.Int).SetAllOne()))
	assert.Equal(t, uint64(3), acc.Nonce)
}

func TestLimitOrdersMatch(t *testing.T) {
	h := newHarness(t)
	h.fund(h.alice)
	h.fund(h.bob)

	resp := h.block(
		h.alice.sign(t, h.cfg, transaction.Tx{Type: transaction.TxLimitBid, Lots: 20000, Price: mid}),
		h.bob.sign(t, h.cfg, transaction.Tx{Type: transaction.TxLimitAsk, Lots: 5000, Price: mid}),
	)
	h.requireOK(resp)
	assert.Equal(t, 1, resp.TxResults[1].Trades)

	info := h.app.Pair()
	assert.Equal(t, "WETH/USDX", info.Symbol)
	assert.Equal(t, uint64(mid), info.LastPrice)
	assert.Equal(t, uint64(2), info.NextOrderID)

	book := h.app.Book()
	require.Len(t, book.Bids, 1)
	assert.Equal(t, uint64(15000), book.Bids[0].Remaining)
	assert.Empty(t, book.Asks)

	// 0.5 WETH at 100 USDX
	bob := h.app.Account(h.bob.key.Address())
	assert.Equal(t, new(uint256.Int).Add(tokens(1000), tokens(50)), bob.BalanceB)
	alice := h.app.Account(h.alice.key.Address())
	assert.Equal(t, new(uint256.Int).Sub(tokens(1000), tokens(200)), alice.BalanceB)

	trades := h.app.RecentTrades(10)
	require.Len(t, trades, 1)
	assert.Equal(t, h.height, trades[0].Height)
	assert.Equal(t, uint64(5000), trades[0].Trade.Lots)
	assert.Equal(t, h.alice.key.Address(), trades[0].Trade.Maker)

	last := h.app.LastBlock()
	assert.Equal(t, resp.AppHash, last.AppHash)
	assert.Len(t, last.Trades, 1)
}

func TestCancelThroughTx(t *testing.T) {
	h := newHarness(t)
	h.fund(h.alice)
	h.requireOK(h.block(h.alice.sign(t, h.cfg, transaction.Tx{Type: transaction.TxLimitAsk, Lots: 10000, Price: mid})))

	// bob cannot cancel alice's order
	resp := h.block(h.bob.sign(t, h.cfg, transaction.Tx{Type: transaction.TxCancelLimitAsk, OrderID: 0}))
	assert.Equal(t, abci.CodeRejected, resp.TxResults[0].Code)
	assert.Contains(t, resp.TxResults[0].Log, "not the order owner")

	h.requireOK(h.block(h.alice.sign(t, h.cfg, transaction.Tx{Type: transaction.TxCancelLimitAsk, OrderID: 0})))
	assert.Empty(t, h.app.Book().Asks)
	assert.Equal(t, tokens(1000), h.app.Account(h.alice.key.Address()).BalanceA)
}

func TestReplayRejected(t *testing.T) {
	h := newHarness(t)
	faucet := h.alice.sign(t, h.cfg, transaction.Tx{Type: transaction.TxFaucet})

	h.requireOK(h.block(faucet))
	resp := h.block(faucet)
	assert.Equal(t, abci.CodeBadNonce, resp.TxResults[0].Code)
	assert.Equal(t, tokens(1000), h.app.Account(h.alice.key.Address()).BalanceA)
}

func TestRejectedTxConsumesNonce(t *testing.T) {
	h := newHarness(t)
	h.requireOK(h.block(h.alice.sign(t, h.cfg, transaction.Tx{Type: transaction.TxFaucet})))

	// no allowance yet
	bid := h.alice.sign(t, h.cfg, transaction.Tx{Type: transaction.TxLimitBid, Lots: 1, Price: mid})
	resp := h.block(bid)
	assert.Equal(t, abci.CodeRejected, resp.TxResults[0].Code)
	assert.Equal(t, uint64(2), h.app.Account(h.alice.key.Address()).Nonce)
	assert.Equal(t, uint64(0), h.app.Pair().NextOrderID)

	resp = h.block(bid)
	assert.Equal(t, abci.CodeBadNonce, resp.TxResults[0].Code)
}

func TestSignatureChecks(t *testing.T) {
	h := newHarness(t)

	t.Run("tampered", func(t *testing.T) {
		raw := h.alice.sign(t, h.cfg, transaction.Tx{Type: transaction.TxLimitBid, Lots: 1, Price: mid})
		tx, err := transaction.Parse(raw)
		require.NoError(t, err)
		tx.Lots = 2
		raw, err = tx.Serialize()
		require.NoError(t, err)

		resp := h.block(raw)
		assert.Equal(t, abci.CodeBadSignature, resp.TxResults[0].Code)
	})

	t.Run("other domain", func(t *testing.T) {
		tx := &transaction.Tx{Type: transaction.TxFaucet, Nonce: 100}
		require.NoError(t, transaction.Sign(tx, h.bob.key, crypto.DefaultDomain()))
		raw, err := tx.Serialize()
		require.NoError(t, err)

		resp := h.block(raw)
		assert.Equal(t, abci.CodeBadSignature, resp.TxResults[0].Code)
		assert.True(t, h.app.Account(h.bob.key.Address()).BalanceA.IsZero())
	})

	t.Run("garbage", func(t *testing.T) {
		resp := h.block([]byte("O:GTC:BTC-USDT:BUY:price=1:qty=1"))
		assert.Equal(t, abci.CodeInvalidTx, resp.TxResults[0].Code)
	})
}

func TestApproveUnknownToken(t *testing.T) {
	h := newHarness(t)
	resp := h.block(h.alice.sign(t, h.cfg, transaction.Tx{
		Type: transaction.TxApprove, Token: h.cfg.Pair.Book, Amount: uint256.NewInt(1),
	}))
	assert.Equal(t, abci.CodeRejected, resp.TxResults[0].Code)
	assert.Contains(t, resp.TxResults[0].Log, ErrUnknownToken.Error())
}

func TestStopCascadeThroughBlocks(t *testing.T) {
	h := newHarness(t)
	h.fund(h.alice)
	h.fund(h.bob)

	h.requireOK(h.block(
		h.alice.sign(t, h.cfg, transaction.Tx{Type: transaction.TxLimitAsk, Lots: 100, Price: mid}),
		h.alice.sign(t, h.cfg, transaction.Tx{Type: transaction.TxLimitAsk, Lots: 100, Price: mid + 10}),
		h.bob.sign(t, h.cfg, transaction.Tx{Type: transaction.TxStopMarketBuy, Budget: 2 * mid, Stop: mid}),
	))
	require.Len(t, h.app.Book().Stops, 1)

	resp := h.block(h.bob.sign(t, h.cfg, transaction.Tx{Type: transaction.TxMarketBuy, Budget: 100 * mid / 10000}))
	h.requireOK(resp)
	// the market buy fills at mid and triggers the stop, which buys the rest
	assert.Equal(t, 2, resp.TxResults[0].Trades)
	assert.Empty(t, h.app.Book().Stops)
	assert.Empty(t, h.app.Book().Asks)
	assert.Equal(t, uint64(mid+10), h.app.Pair().LastPrice)
}

func TestStateHashDeterministic(t *testing.T) {
	run := func() []abci.ResponseFinalizeBlock {
		h := newHarness(t)
		h.fund(h.alice)
		h.fund(h.bob)
		return []abci.ResponseFinalizeBlock{
			h.block(h.alice.sign(t, h.cfg, transaction.Tx{Type: transaction.TxLimitBid, Lots: 300, Price: mid})),
			h.block(h.bob.sign(t, h.cfg, transaction.Tx{Type: transaction.TxMarketSell, Lots: 100})),
		}
	}
	first, second := run(), run()
	for i := range first {
		assert.Equal(t, first[i].AppHash, second[i].AppHash)
	}
	assert.NotEqual(t, first[0].AppHash, first[1].AppHash)
}

func TestRestoreFromStore(t *testing.T) {
	store := storage.NewMemStore()
	h := newHarness(t, WithStore(store))
	h.fund(h.alice)
	h.fund(h.bob)
	h.requireOK(h.block(
		h.alice.sign(t, h.cfg, transaction.Tx{Type: transaction.TxLimitBid, Lots: 300, Price: mid}),
		h.bob.sign(t, h.cfg, transaction.Tx{Type: transaction.TxLimitAsk, Lots: 100, Price: mid}),
		h.bob.sign(t, h.cfg, transaction.Tx{Type: transaction.TxStopMarketSell, Lots: 50, Stop: mid - 100}),
	))

	restored, err := New(h.cfg, WithStore(store))
	require.NoError(t, err)

	assert.Equal(t, h.app.Height(), restored.Height())
	assert.Equal(t, h.app.LastBlock().AppHash, restored.LastBlock().AppHash)
	assert.Equal(t, h.app.Book(), restored.Book())
	assert.Equal(t, h.app.Pair(), restored.Pair())
	assert.Equal(t, h.app.Account(h.bob.key.Address()), restored.Account(h.bob.key.Address()))
	assert.Equal(t, h.app.RecentTrades(10), restored.RecentTrades(10))

	// both continue identically
	next := h.alice.sign(t, h.cfg, transaction.Tx{Type: transaction.TxMarketSell, Lots: 10})
	req := abci.RequestFinalizeBlock{Height: h.height + 1, Timestamp: 99_000, Txs: [][]byte{next}}
	assert.Equal(t, h.app.FinalizeBlock(req).AppHash, restored.FinalizeBlock(req).AppHash)
}

func TestPrepareProposalOrdersClasses(t *testing.T) {
	h := newHarness(t)
	bid := h.alice.sign(t, h.cfg, transaction.Tx{Type: transaction.TxLimitBid, Lots: 1, Price: mid})
	cancel := h.bob.sign(t, h.cfg, transaction.Tx{Type: transaction.TxCancelLimitBid, OrderID: 7})
	faucet := h.bob.sign(t, h.cfg, transaction.Tx{Type: transaction.TxFaucet})

	h.app.PushTx(bid)
	h.app.PushTx(cancel)
	h.app.PushTx(faucet)
	assert.Equal(t, 3, h.app.PendingTxs())

	prop := h.app.PrepareProposal(abci.RequestPrepareProposal{Height: 1})
	assert.Equal(t, [][]byte{faucet, cancel, bid}, prop.Txs)
	assert.Equal(t, 0, h.app.PendingTxs())
}

func TestTxGeneratorTrafficExecutes(t *testing.T) {
	h := newHarness(t)
	gen, err := NewTxGenerator(5, h.app.Pair(), Domain(h.cfg), 42)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		batch, err := gen.GenerateBatch(10)
		require.NoError(t, err)
		for _, raw := range batch {
			h.app.PushTx(raw)
		}
		prop := h.app.PrepareProposal(abci.RequestPrepareProposal{Height: h.height + 1})
		resp := h.block(prop.Txs...)
		for _, r := range resp.TxResults {
			// orders may run out of funds, but never fail authentication
			assert.Contains(t, []uint32{abci.CodeOK, abci.CodeRejected}, r.Code, r.Log)
		}
	}
	assert.NotZero(t, h.app.Pair().NextOrderID)
}
