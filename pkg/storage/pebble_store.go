package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/hyperbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperbook/pkg/app/core/token"
)

// Store persists committed state and the trade log.
type Store interface {
	// Commit writes snap and the trades of its height atomically.
	Commit(snap *Snapshot, trades []TradeRecord) error
	// LoadSnapshot returns the last committed snapshot for symbol, or nil if
	// nothing was committed yet.
	LoadSnapshot(symbol string) (*Snapshot, error)
	// RecentTrades returns up to limit trades for symbol, newest first.
	RecentTrades(symbol string, limit int) ([]TradeRecord, error)
	Close() error
}

type PebbleStore struct {
	db *pebble.DB
}

var _ Store = (*PebbleStore)(nil)

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func symbolOf(st *orderbook.State) string {
	return st.TickerA + "/" + st.TickerB
}

func (s *PebbleStore) Commit(snap *Snapshot, trades []TradeRecord) error {
	symbol := symbolOf(snap.Book)
	b := s.db.NewBatch()
	defer b.Close()

	val, err := encode(meta{Height: snap.Height, AppHash: snap.AppHash, Nonces: snap.Nonces})
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := b.Set(metaKey(), val, nil); err != nil {
		return err
	}

	if val, err = encode(snap.Book); err != nil {
		return fmt.Errorf("encode book: %w", err)
	}
	if err := b.Set(bookKey(symbol), val, nil); err != nil {
		return err
	}

	for _, l := range snap.Tokens {
		if val, err = encode(l); err != nil {
			return fmt.Errorf("encode ledger %s: %w", l.Symbol, err)
		}
		if err := b.Set(tokenKey(l.Address), val, nil); err != nil {
			return err
		}
	}

	for _, tr := range trades {
		if val, err = encode(tr); err != nil {
			return fmt.Errorf("encode trade: %w", err)
		}
		if err := b.Set(tradeKey(symbol, tr.Height, tr.Index), val, nil); err != nil {
			return err
		}
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit height %d: %w", snap.Height, err)
	}
	return nil
}

func (s *PebbleStore) get(key []byte, v any) (bool, error) {
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()
	if err := decode(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *PebbleStore) LoadSnapshot(symbol string) (*Snapshot, error) {
	var m meta
	ok, err := s.get(metaKey(), &m)
	if err != nil || !ok {
		return nil, err
	}
	snap := &Snapshot{Height: m.Height, AppHash: m.AppHash, Nonces: m.Nonces, Book: new(orderbook.State)}
	ok, err = s.get(bookKey(symbol), snap.Book)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("height %d committed without a %s book", m.Height, symbol)
	}

	prefix := tokenPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		l := new(token.Ledger)
		if err := decode(iter.Value(), l); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		snap.Tokens = append(snap.Tokens, l)
	}
	return snap, nil
}

func (s *PebbleStore) RecentTrades(symbol string, limit int) ([]TradeRecord, error) {
	prefix := tradePrefix(symbol)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	trades := []TradeRecord{}
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var tr TradeRecord
		if err := decode(iter.Value(), &tr); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		trades = append(trades, tr)
	}
	return trades, nil
}
