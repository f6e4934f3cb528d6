package dex

import (
	"fmt"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperbook/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperbook/pkg/crypto"
)

// TxGenerator signs random trading traffic from a fixed set of accounts.
// Each account first funds itself through the faucet and approves the book
// for both assets, then trades around MidPrice until its funds run out.
//
// Setup happens once per account: a later faucet would sort ahead of the
// account's pending orders in the mempool and invalidate their nonces.
type TxGenerator struct {
	// MidPrice is the tick price orders cluster around.
	MidPrice uint64

	signers []*crypto.Signer
	nonces  map[common.Address]uint64
	funded  map[common.Address]bool
	domain  crypto.EIP712Domain
	assetA  common.Address
	assetB  common.Address
	rng     *rand.Rand
}

func NewTxGenerator(numAccounts int, info PairInfo, domain crypto.EIP712Domain, seed int64) (*TxGenerator, error) {
	g := &TxGenerator{
		MidPrice: 100 * info.Precision,
		nonces:   make(map[common.Address]uint64),
		funded:   make(map[common.Address]bool),
		domain:   domain,
		assetA:   info.AssetA,
		assetB:   info.AssetB,
		rng:      rand.New(rand.NewSource(seed)),
	}
	for i := 0; i < numAccounts; i++ {
		s, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		g.signers = append(g.signers, s)
	}
	return g, nil
}

func (g *TxGenerator) Signers() []*crypto.Signer { return g.signers }

// GenerateBatch returns n signed transactions. Setup transactions for an
// account that has not traded yet are emitted before its first order and
// count towards n.
func (g *TxGenerator) GenerateBatch(n int) ([][]byte, error) {
	out := make([][]byte, 0, n)
	for len(out) < n {
		txs, err := g.next()
		if err != nil {
			return nil, err
		}
		out = append(out, txs...)
	}
	return out, nil
}

func (g *TxGenerator) next() ([][]byte, error) {
	s := g.signers[g.rng.Intn(len(g.signers))]
	addr := s.Address()

	var txs []*transaction.Tx
	if !g.funded[addr] {
		all := new(uint256.Int).SetAllOne()
		txs = append(txs,
			&transaction.Tx{Type: transaction.TxFaucet},
			&transaction.Tx{Type: transaction.TxApprove, Token: g.assetA, Amount: all},
			&transaction.Tx{Type: transaction.TxApprove, Token: g.assetB, Amount: all},
		)
		g.funded[addr] = true
	}
	txs = append(txs, g.randomOrder())

	out := make([][]byte, 0, len(txs))
	for _, tx := range txs {
		g.nonces[addr]++
		tx.Nonce = g.nonces[addr]
		if err := transaction.Sign(tx, s, g.domain); err != nil {
			return nil, err
		}
		b, err := tx.Serialize()
		if err != nil {
			return nil, fmt.Errorf("serialize %s: %w", tx.Type, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// randomOrder: 60% limit, 25% market, 15% stop, each side equally likely;
// prices within 2% of MidPrice.
func (g *TxGenerator) randomOrder() *transaction.Tx {
	spread := g.MidPrice / 50
	price := g.MidPrice - spread + uint64(g.rng.Int63n(int64(2*spread)+1))
	lots := uint64(g.rng.Intn(5000) + 1)
	buy := g.rng.Intn(2) == 0

	switch r := g.rng.Intn(100); {
	case r < 60:
		if buy {
			return &transaction.Tx{Type: transaction.TxLimitBid, Lots: lots, Price: price}
		}
		return &transaction.Tx{Type: transaction.TxLimitAsk, Lots: lots, Price: price}
	case r < 85:
		if buy {
			return &transaction.Tx{Type: transaction.TxMarketBuy, Budget: lots * price / 10000}
		}
		return &transaction.Tx{Type: transaction.TxMarketSell, Lots: lots}
	default:
		if buy {
			return &transaction.Tx{Type: transaction.TxStopLimitBid, Lots: lots, Price: price + spread/2, Stop: price}
		}
		return &transaction.Tx{Type: transaction.TxStopLimitAsk, Lots: lots, Price: price - spread/2, Stop: price}
	}
}
