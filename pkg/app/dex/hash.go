package dex

import (
	"bytes"
	"encoding/binary"
	"hash"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/hyperbook/pkg/app/core/token"
	"github.com/uhyunpark/hyperbook/pkg/storage"
)

// computeStateHash digests the whole application state after a block:
//
//  1. height and timestamp
//  2. the book's own state hash
//  3. each ledger's supply, balances and allowances, sorted by address
//  4. account nonces, sorted by address
func (a *App) computeStateHash(height, timestamp uint64) common.Hash {
	h := sha3.NewLegacyKeccak256()

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], timestamp)
	h.Write(buf[:])

	h.Write(a.book.StateHash().Bytes())

	writeLedger(h, a.tokenA.Export())
	writeLedger(h, a.tokenB.Export())

	for _, n := range a.sortedNonces() {
		h.Write(n.Address.Bytes())
		binary.BigEndian.PutUint64(buf[:], n.Nonce)
		h.Write(buf[:])
	}
	return common.BytesToHash(h.Sum(nil))
}

func writeLedger(h hash.Hash, l *token.Ledger) {
	h.Write(l.Address.Bytes())
	h.Write(l.TotalSupply.PaddedBytes(32))
	for _, b := range l.Balances {
		h.Write(b.Owner.Bytes())
		h.Write(b.Amount.PaddedBytes(32))
	}
	for _, al := range l.Allowances {
		h.Write(al.Owner.Bytes())
		h.Write(al.Spender.Bytes())
		h.Write(al.Amount.PaddedBytes(32))
	}
}

func (a *App) sortedNonces() []storage.AccountNonce {
	out := make([]storage.AccountNonce, 0, len(a.nonces))
	for addr, n := range a.nonces {
		out = append(out, storage.AccountNonce{Address: addr, Nonce: n})
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0 })
	return out
}
