package tests

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperbook/params"
	"github.com/uhyunpark/hyperbook/pkg/abci"
	"github.com/uhyunpark/hyperbook/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperbook/pkg/app/dex"
	"github.com/uhyunpark/hyperbook/pkg/crypto"
	"github.com/uhyunpark/hyperbook/pkg/storage"
	"github.com/uhyunpark/hyperbook/pkg/util"
)

const blockTime = 200 * time.Millisecond

var genesisTime = time.UnixMilli(1_700_000_000_000)

type trader struct {
	key   *crypto.Signer
	nonce uint64
}

func newTrader(t *testing.T) *trader {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &trader{key: key}
}

// chain is a single node driven block by block through the producer.
type chain struct {
	t        *testing.T
	cfg      params.Config
	app      *dex.App
	clock    *util.ManualClock
	producer *abci.Producer
	last     abci.ResponseFinalizeBlock
}

func newChain(t *testing.T, cfg params.Config, opts ...dex.Option) *chain {
	t.Helper()
	app, err := dex.New(cfg, opts...)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	c := &chain{t: t, cfg: cfg, app: app, clock: util.NewManualClock(genesisTime)}
	c.producer = abci.NewProducer(app, c.clock, blockTime, cfg.Node.MaxBlockBytes, app.Height(), nil)
	c.producer.OnCommit = func(_ uint64, resp abci.ResponseFinalizeBlock) { c.last = resp }
	return c
}

func testConfig() params.Config {
	cfg := params.Default()
	cfg.Faucet.Amount = 100_000
	return cfg
}

// submit signs tx with tr's next nonce and queues it.
func (c *chain) submit(tr *trader, tx transaction.Tx) {
	c.t.Helper()
	tr.nonce++
	tx.Nonce = tr.nonce
	if err := transaction.Sign(&tx, tr.key, dex.Domain(c.cfg)); err != nil {
		c.t.Fatalf("sign: %v", err)
	}
	raw, err := tx.Serialize()
	if err != nil {
		c.t.Fatalf("serialize: %v", err)
	}
	c.app.PushTx(raw)
}

// produce advances the clock one block and commits everything pending.
func (c *chain) produce() abci.ResponseFinalizeBlock {
	c.t.Helper()
	c.clock.Advance(blockTime)
	ok, err := c.producer.Step()
	if err != nil {
		c.t.Fatalf("step: %v", err)
	}
	if !ok {
		c.t.Fatal("no block produced")
	}
	return c.last
}

// produceOK is produce failing the test on any rejected tx.
func (c *chain) produceOK() abci.ResponseFinalizeBlock {
	c.t.Helper()
	resp := c.produce()
	for i, r := range resp.TxResults {
		if !r.IsOK() {
			c.t.Fatalf("height %d tx %d: code %d: %s", c.producer.Height(), i, r.Code, r.Log)
		}
	}
	return resp
}

// fund mints the faucet amount to every trader and approves the book.
func (c *chain) fund(traders ...*trader) {
	c.t.Helper()
	all := new(uint256.Int).SetAllOne()
	for _, tr := range traders {
		c.submit(tr, transaction.Tx{Type: transaction.TxFaucet})
		c.submit(tr, transaction.Tx{Type: transaction.TxApprove, Token: c.cfg.Pair.AssetA, Amount: all})
		c.submit(tr, transaction.Tx{Type: transaction.TxApprove, Token: c.cfg.Pair.AssetB, Amount: all})
	}
	c.produceOK()
}

func (c *chain) nowMilli() uint64 {
	return uint64(c.clock.Now().UnixMilli())
}

func openPebble(t *testing.T, dir string) *storage.PebbleStore {
	t.Helper()
	store, err := storage.NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	return store
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(b)), "\n")
}
