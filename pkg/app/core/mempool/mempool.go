package mempool

import (
	"encoding/json"
	"sync"

	"github.com/uhyunpark/hyperbook/pkg/app/core/transaction"
)

// ClassifyRaw buckets a raw transaction by the "type" of its JSON envelope:
//
//	approve, faucet          -> ClassNonOrder
//	cancel_*                 -> ClassCancel
//	placements               -> ClassOrder
//
// Anything unreadable is treated as an order; execution rejects it later.
func ClassifyRaw(b []byte) transaction.Class {
	if len(b) == 0 || b[0] != '{' {
		return transaction.ClassOrder
	}

	var txEnvelope struct {
		Type transaction.TxType `json:"type"`
	}
	if err := json.Unmarshal(b, &txEnvelope); err != nil {
		return transaction.ClassOrder
	}

	if c, ok := txEnvelope.Type.Class(); ok {
		return c
	}
	return transaction.ClassOrder
}

// Mempool keeps three FIFO queues and drains them in block order:
// (1) non-order, (2) cancel, (3) orders. Funding and approvals land before
// the orders that need them, and cancels before the orders that could fill
// against what is being cancelled.
type Mempool struct {
	mu       sync.Mutex
	nonOrder [][]byte
	cancel   [][]byte
	orders   [][]byte
}

func NewMempool() *Mempool {
	return &Mempool{}
}

// PushRaw classifies and enqueues a tx.
func (m *Mempool) PushRaw(b []byte) {
	cp := append([]byte(nil), b...)
	m.mu.Lock()
	defer m.mu.Unlock()
	switch ClassifyRaw(b) {
	case transaction.ClassNonOrder:
		m.nonOrder = append(m.nonOrder, cp)
	case transaction.ClassCancel:
		m.cancel = append(m.cancel, cp)
	default:
		m.orders = append(m.orders, cp)
	}
}

// SelectForProposal returns up to maxBytes worth of txs in block order,
// removing them from the mempool. maxBytes <= 0 means no limit.
func (m *Mempool) SelectForProposal(maxBytes int64) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out [][]byte
	var used int64
	full := false

	pull := func(q *[][]byte) {
		for !full && len(*q) > 0 {
			tx := (*q)[0]
			n := int64(len(tx))
			if maxBytes > 0 && used+n > maxBytes {
				full = true
				return
			}
			out = append(out, tx)
			used += n
			*q = (*q)[1:]
		}
	}

	pull(&m.nonOrder)
	pull(&m.cancel)
	pull(&m.orders)

	return out
}

// Len returns total pending txs.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nonOrder) + len(m.cancel) + len(m.orders)
}
