package dex

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperbook/pkg/abci"
	"github.com/uhyunpark/hyperbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperbook/pkg/app/core/token"
	"github.com/uhyunpark/hyperbook/pkg/app/core/transaction"
)

var (
	ErrNonceTooLow  = errors.New("nonce too low")
	ErrUnknownToken = errors.New("token is not traded by this book")
)

// deliverTx authenticates and executes one raw transaction at timestamp.
//
// The nonce must exceed the sender's last used nonce. Once signature and
// nonce check out the nonce is consumed, even if execution then fails, so a
// rejected transaction cannot be replayed into a later block.
func (a *App) deliverTx(raw []byte, timestamp uint64) (abci.TxResult, []orderbook.Trade) {
	tx, err := transaction.Parse(raw)
	if err != nil {
		return a.reject(nil, abci.CodeInvalidTx, err), nil
	}
	if err := a.verifier.Verify(tx); err != nil {
		return a.reject(tx, abci.CodeBadSignature, err), nil
	}
	if last := a.nonces[tx.From]; tx.Nonce <= last {
		return a.reject(tx, abci.CodeBadNonce, fmt.Errorf("%w: got %d, last used %d", ErrNonceTooLow, tx.Nonce, last)), nil
	}
	a.nonces[tx.From] = tx.Nonce

	call := orderbook.Call{Caller: tx.From, Timestamp: timestamp}
	trades, err := a.execute(tx, call)
	if err != nil {
		return a.reject(tx, abci.CodeRejected, err), nil
	}

	a.wal.Append(fmt.Sprintf("ok %s from=%s nonce=%d trades=%d", tx.Type, tx.From.Hex(), tx.Nonce, len(trades)))
	for _, tr := range trades {
		a.log.Debug("fill",
			zap.Uint64("taker", tr.TakerID),
			zap.Uint64("maker", tr.MakerID),
			zap.Stringer("side", tr.TakerSide),
			zap.Uint64("price", tr.Price),
			zap.Uint64("lots", tr.Lots))
	}
	return abci.TxResult{Code: abci.CodeOK, Trades: len(trades)}, trades
}

func (a *App) reject(tx *transaction.Tx, code uint32, err error) abci.TxResult {
	if tx == nil {
		a.wal.Append(fmt.Sprintf("err code=%d %v", code, err))
		a.log.Info("tx rejected", zap.Uint32("code", code), zap.Error(err))
	} else {
		a.wal.Append(fmt.Sprintf("err code=%d %s from=%s nonce=%d %v", code, tx.Type, tx.From.Hex(), tx.Nonce, err))
		a.log.Info("tx rejected",
			zap.Uint32("code", code),
			zap.String("type", string(tx.Type)),
			zap.Stringer("from", tx.From),
			zap.Uint64("nonce", tx.Nonce),
			zap.Error(err))
	}
	return abci.TxResult{Code: code, Log: err.Error()}
}

func (a *App) execute(tx *transaction.Tx, call orderbook.Call) ([]orderbook.Trade, error) {
	switch tx.Type {
	case transaction.TxLimitBid:
		return a.book.NewLimitBid(call, tx.Lots, tx.Price)
	case transaction.TxLimitAsk:
		return a.book.NewLimitAsk(call, tx.Lots, tx.Price)
	case transaction.TxMarketBuy:
		return a.book.NewMarketBuy(call, tx.Budget)
	case transaction.TxMarketSell:
		return a.book.NewMarketSell(call, tx.Lots)
	case transaction.TxStopLimitBid:
		return a.book.NewStopLimitBid(call, tx.Lots, tx.Price, tx.Stop)
	case transaction.TxStopLimitAsk:
		return a.book.NewStopLimitAsk(call, tx.Lots, tx.Price, tx.Stop)
	case transaction.TxStopMarketBuy:
		return a.book.NewStopMarketBuy(call, tx.Budget, tx.Stop)
	case transaction.TxStopMarketSell:
		return a.book.NewStopMarketSell(call, tx.Lots, tx.Stop)

	case transaction.TxCancelLimitBid:
		return nil, a.book.CancelLimitBid(call, tx.OrderID)
	case transaction.TxCancelLimitAsk:
		return nil, a.book.CancelLimitAsk(call, tx.OrderID)
	case transaction.TxCancelMarketBuy:
		return nil, a.book.CancelMarketBuy(call, tx.OrderID)
	case transaction.TxCancelMarketSell:
		return nil, a.book.CancelMarketSell(call, tx.OrderID)

	case transaction.TxApprove:
		tok, err := a.tokenAt(tx)
		if err != nil {
			return nil, err
		}
		return nil, tok.Approve(tx.From, a.book.Address(), tx.Amount)
	case transaction.TxFaucet:
		return nil, a.faucet(tx)
	}
	return nil, fmt.Errorf("%w: %s", transaction.ErrUnknownType, tx.Type)
}

func (a *App) tokenAt(tx *transaction.Tx) (*token.ERC20, error) {
	switch tx.Token {
	case a.tokenA.Address():
		return a.tokenA, nil
	case a.tokenB.Address():
		return a.tokenB, nil
	}
	return nil, fmt.Errorf("%s %s: %w", tx.Type, tx.Token.Hex(), ErrUnknownToken)
}

// faucet mints the configured whole-token amount of both assets to the
// sender, or nothing.
func (a *App) faucet(tx *transaction.Tx) error {
	snapA, snapB := a.tokenA.Snapshot(), a.tokenB.Snapshot()
	for _, tok := range []*token.ERC20{a.tokenA, a.tokenB} {
		if err := tok.Mint(tx.From, wholeTokens(a.cfg.Faucet.Amount, tok.Decimals())); err != nil {
			a.tokenA.RevertToSnapshot(snapA)
			a.tokenB.RevertToSnapshot(snapB)
			return fmt.Errorf("faucet: %w", err)
		}
	}
	return nil
}

func wholeTokens(n uint64, decimals uint8) *uint256.Int {
	unit := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	return unit.Mul(unit, uint256.NewInt(n))
}
