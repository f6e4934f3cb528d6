package tests

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/uhyunpark/hyperbook/pkg/abci"
	"github.com/uhyunpark/hyperbook/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperbook/pkg/app/dex"
	"github.com/uhyunpark/hyperbook/pkg/storage"
)

func TestProducerSkipsEmptyBlocks(t *testing.T) {
	c := newChain(t, testConfig())
	ok, err := c.producer.Step()
	if err != nil {
		t.Fatal(err)
	}
	if ok || c.producer.Height() != 0 || c.app.Height() != 0 {
		t.Fatalf("empty mempool produced a block: ok=%v height=%d", ok, c.producer.Height())
	}

	alice := newTrader(t)
	c.fund(alice)
	if c.producer.Height() != 1 || c.app.LastBlock().Height != 1 {
		t.Fatalf("height = %d, want 1", c.producer.Height())
	}
	if c.app.LastBlock().Timestamp != c.nowMilli() {
		t.Errorf("block timestamp = %d, want %d", c.app.LastBlock().Timestamp, c.nowMilli())
	}
}

func TestProducerRunLoop(t *testing.T) {
	c := newChain(t, testConfig())
	committed := make(chan uint64, 16)
	c.producer.OnCommit = func(height uint64, _ abci.ResponseFinalizeBlock) { committed <- height }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.producer.Run(ctx) }()

	alice := newTrader(t)
	c.submit(alice, transaction.Tx{Type: transaction.TxFaucet})

	deadline := time.After(5 * time.Second)
	for height := uint64(0); height == 0; {
		// Run may not be waiting yet; keep nudging the clock until it commits
		c.clock.Advance(blockTime)
		select {
		case height = <-committed:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatal("no block committed")
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := c.app.Account(alice.key.Address()); got.Nonce != 1 || got.BalanceA.IsZero() {
		t.Errorf("account after faucet = %+v", got)
	}
}

func TestNonceRules(t *testing.T) {
	c := newChain(t, testConfig())
	alice := newTrader(t)
	c.fund(alice)

	// a rejected order still uses up its nonce
	c.submit(alice, transaction.Tx{Type: transaction.TxLimitBid, Lots: 0, Price: 1000})
	resp := c.produce()
	if resp.TxResults[0].Code != abci.CodeRejected {
		t.Fatalf("code = %d, want rejected", resp.TxResults[0].Code)
	}
	if n := c.app.Account(alice.key.Address()).Nonce; n != 4 {
		t.Fatalf("nonce = %d, want 4", n)
	}

	// reusing it is rejected, skipping ahead is not
	alice.nonce = 3
	c.submit(alice, transaction.Tx{Type: transaction.TxLimitBid, Lots: 1, Price: 1000})
	alice.nonce = 9
	c.submit(alice, transaction.Tx{Type: transaction.TxLimitBid, Lots: 1, Price: 1000})
	resp = c.produce()
	if resp.TxResults[0].Code != abci.CodeBadNonce {
		t.Errorf("reused nonce: code = %d", resp.TxResults[0].Code)
	}
	if !resp.TxResults[1].IsOK() {
		t.Errorf("skipped nonce: %s", resp.TxResults[1].Log)
	}
	if n := len(c.app.Book().Bids); n != 1 {
		t.Errorf("bids = %d, want 1", n)
	}
}

func TestRestartFromPebble(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	cfg := testConfig()
	alice, bob := newTrader(t), newTrader(t)

	store := openPebble(t, dir)
	c := newChain(t, cfg, dex.WithStore(store))
	c.fund(alice, bob)
	c.submit(alice, transaction.Tx{Type: transaction.TxLimitBid, Lots: 300, Price: 1_000_000})
	c.submit(bob, transaction.Tx{Type: transaction.TxLimitAsk, Lots: 100, Price: 1_000_000})
	c.submit(bob, transaction.Tx{Type: transaction.TxStopMarketSell, Lots: 50, Stop: 900_000})
	c.produceOK()

	height := c.app.Height()
	book := c.app.Book()
	pair := c.app.Pair()
	hash := c.app.LastBlock().AppHash
	trades := c.app.RecentTrades(10)
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	store = openPebble(t, dir)
	defer store.Close()
	r := newChain(t, cfg, dex.WithStore(store))
	r.clock.Advance(c.clock.Now().Sub(genesisTime))

	if r.app.Height() != height || r.producer.Height() != height {
		t.Fatalf("restored height = %d, want %d", r.app.Height(), height)
	}
	if r.app.LastBlock().AppHash != hash {
		t.Errorf("app hash = %s, want %s", r.app.LastBlock().AppHash, hash)
	}
	if !reflect.DeepEqual(r.app.Book(), book) {
		t.Errorf("book differs after restart")
	}
	if !reflect.DeepEqual(r.app.Pair(), pair) {
		t.Errorf("pair = %+v, want %+v", r.app.Pair(), pair)
	}
	if !reflect.DeepEqual(r.app.RecentTrades(10), trades) {
		t.Errorf("recent trades differ after restart")
	}
	if n := r.app.Account(bob.key.Address()).Nonce; n != bob.nonce {
		t.Errorf("bob nonce = %d, want %d", n, bob.nonce)
	}

	// the chain continues where it stopped
	r.submit(bob, transaction.Tx{Type: transaction.TxMarketSell, Lots: 200})
	resp := r.produceOK()
	if r.producer.Height() != height+1 {
		t.Errorf("height = %d, want %d", r.producer.Height(), height+1)
	}
	if resp.TxResults[0].Trades != 1 {
		t.Errorf("trades = %d, want 1", resp.TxResults[0].Trades)
	}
	if bids := r.app.Book().Bids; len(bids) != 0 {
		t.Errorf("bids = %+v, want filled", bids)
	}

	got, err := store.RecentTrades(pair.Symbol, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(trades)+1 || got[0].Height != height+1 {
		t.Errorf("stored trades = %+v", got)
	}
}

func TestWALRecordsOutcomes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txs.wal")
	wal, err := storage.NewFileWAL(path)
	if err != nil {
		t.Fatal(err)
	}
	c := newChain(t, testConfig(), dex.WithWAL(wal))
	alice := newTrader(t)
	c.fund(alice)
	c.submit(alice, transaction.Tx{Type: transaction.TxCancelLimitAsk, OrderID: 7})
	c.produce()
	if err := wal.Close(); err != nil {
		t.Fatal(err)
	}

	lines := readLines(t, path)
	if len(lines) != 4 {
		t.Fatalf("wal lines = %d, want 4:\n%v", len(lines), lines)
	}
	for _, l := range lines[:3] {
		if !strings.HasPrefix(l, "ok ") {
			t.Errorf("line %q, want ok", l)
		}
	}
	if !strings.HasPrefix(lines[3], "err ") {
		t.Errorf("line %q, want err", lines[3])
	}
}
