package storage

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperbook/pkg/app/core/token"
)

var (
	owner = common.HexToAddress("0x1000000000000000000000000000000000000001")
	book  = common.HexToAddress("0x000000000000000000000000000000000000b00c")
)

func testSnapshot(height uint64) *Snapshot {
	a := token.NewERC20(common.HexToAddress("0xaa"), "Wrapped Ether", "WETH", 18)
	_ = a.Mint(owner, uint256.NewInt(1_000_000))
	_ = a.Approve(owner, book, uint256.NewInt(500))
	b := token.NewERC20(common.HexToAddress("0xbb"), "USD Stable", "USDX", 18)

	return &Snapshot{
		Height:  height,
		AppHash: common.HexToHash("0x01"),
		Book: &orderbook.State{
			AssetA:         a.Address(),
			AssetB:         b.Address(),
			TickerA:        "WETH",
			TickerB:        "USDX",
			NextOrderID:    3,
			Seq:            3,
			LastTradePrice: 1000,
			Spread:         0,
			Bids:           []orderbook.Order{{ID: 0, CreatedAt: 1, Owner: owner, Remaining: 5, Price: 990, Seq: 0}},
			Asks:           []orderbook.Order{},
			Stops: []orderbook.StopOrder{{
				Order: orderbook.Order{ID: 2, CreatedAt: 2, Owner: owner, Remaining: 7, Seq: 2},
				Stop:  1200,
				Side:  orderbook.Bid,
				Kind:  orderbook.StopMarket,
			}},
		},
		Tokens: []*token.Ledger{a.Export(), b.Export()},
		Nonces: []AccountNonce{{Address: owner, Nonce: 4}},
	}
}

func testTrades(height uint64, n int) []TradeRecord {
	out := make([]TradeRecord, n)
	for i := range out {
		out[i] = TradeRecord{
			Height: height,
			Index:  uint64(i),
			Trade: orderbook.Trade{
				TakerID: uint64(i + 10), MakerID: uint64(i), Taker: owner, Maker: book,
				TakerSide: orderbook.Ask, Price: 1000 + uint64(i), Lots: 1,
				Quote: uint256.NewInt(uint64(i) * 7), Timestamp: height * 1000,
			},
		}
	}
	return out
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("pebble", func(t *testing.T) {
		s, err := NewPebbleStore(t.TempDir())
		require.NoError(t, err)
		defer s.Close()
		fn(t, s)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemStore())
	})
}

func TestLoadSnapshotEmpty(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		snap, err := s.LoadSnapshot("WETH/USDX")
		require.NoError(t, err)
		assert.Nil(t, snap)
	})
}

func TestCommitAndLoadSnapshot(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		want := testSnapshot(7)
		require.NoError(t, s.Commit(want, testTrades(7, 2)))

		got, err := s.LoadSnapshot("WETH/USDX")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want.Height, got.Height)
		assert.Equal(t, want.AppHash, got.AppHash)
		assert.Equal(t, want.Book.Bids, got.Book.Bids)
		assert.Equal(t, want.Book.Stops, got.Book.Stops)
		assert.Empty(t, got.Book.Asks)
		assert.Equal(t, want.Book.NextOrderID, got.Book.NextOrderID)
		assert.Equal(t, want.Nonces, got.Nonces)

		require.Len(t, got.Tokens, 2)
		restored := token.Import(got.Tokens[0])
		assert.Equal(t, uint64(1_000_000), restored.BalanceOf(owner).Uint64())
		assert.Equal(t, uint64(500), restored.Allowance(owner, book).Uint64())
	})
}

func TestRecentTradesNewestFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		require.NoError(t, s.Commit(testSnapshot(1), testTrades(1, 3)))
		require.NoError(t, s.Commit(testSnapshot(2), testTrades(2, 2)))

		trades, err := s.RecentTrades("WETH/USDX", 4)
		require.NoError(t, err)
		require.Len(t, trades, 4)
		assert.Equal(t, uint64(2), trades[0].Height)
		assert.Equal(t, uint64(1), trades[0].Index)
		assert.Equal(t, uint64(1), trades[2].Height)
		assert.Equal(t, uint64(2), trades[2].Index)
		assert.Equal(t, uint64(14), trades[2].Trade.Quote.Uint64())

		none, err := s.RecentTrades("OTHER/PAIR", 10)
		require.NoError(t, err)
		assert.Empty(t, none)

		snap, err := s.LoadSnapshot("WETH/USDX")
		require.NoError(t, err)
		assert.Equal(t, uint64(2), snap.Height)
	})
}

func TestTradeKeysSortByHeight(t *testing.T) {
	assert.Less(t, string(tradeKey("A/B", 9, 99)), string(tradeKey("A/B", 10, 0)))
	assert.Equal(t, []byte("trade:A/B;"), keyUpperBound(tradePrefix("A/B")))
}
