package storage

import (
	"fmt"
	"sync"

	"github.com/uhyunpark/hyperbook/pkg/app/core/token"
)

// MemStore is a Store kept in memory. Values go through the same codec as
// PebbleStore so callers never share state with it.
type MemStore struct {
	mu     sync.Mutex
	meta   []byte
	books  map[string][]byte
	tokens [][]byte
	trades map[string][][]byte
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		books:  make(map[string][]byte),
		trades: make(map[string][][]byte),
	}
}

func (s *MemStore) Commit(snap *Snapshot, trades []TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbol := symbolOf(snap.Book)
	m, err := encode(meta{Height: snap.Height, AppHash: snap.AppHash, Nonces: snap.Nonces})
	if err != nil {
		return err
	}
	book, err := encode(snap.Book)
	if err != nil {
		return err
	}
	tokens := make([][]byte, 0, len(snap.Tokens))
	for _, l := range snap.Tokens {
		val, err := encode(l)
		if err != nil {
			return err
		}
		tokens = append(tokens, val)
	}
	log := s.trades[symbol]
	for _, tr := range trades {
		val, err := encode(tr)
		if err != nil {
			return err
		}
		log = append(log, val)
	}

	s.meta, s.books[symbol], s.tokens, s.trades[symbol] = m, book, tokens, log
	return nil
}

func (s *MemStore) LoadSnapshot(symbol string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta == nil {
		return nil, nil
	}
	var m meta
	if err := decode(s.meta, &m); err != nil {
		return nil, err
	}
	book, ok := s.books[symbol]
	if !ok {
		return nil, fmt.Errorf("height %d committed without a %s book", m.Height, symbol)
	}
	snap := &Snapshot{Height: m.Height, AppHash: m.AppHash, Nonces: m.Nonces}
	if err := decode(book, &snap.Book); err != nil {
		return nil, err
	}
	for _, val := range s.tokens {
		var l *token.Ledger
		if err := decode(val, &l); err != nil {
			return nil, err
		}
		snap.Tokens = append(snap.Tokens, l)
	}
	return snap, nil
}

func (s *MemStore) RecentTrades(symbol string, limit int) ([]TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.trades[symbol]
	out := []TradeRecord{}
	for i := len(log) - 1; i >= 0 && len(out) < limit; i-- {
		var tr TradeRecord
		if err := decode(log[i], &tr); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, nil
}

func (s *MemStore) Close() error { return nil }
