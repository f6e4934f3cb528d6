// Package abci is the boundary between block production and the exchange
// application, shaped after the ABCI++ proposal/finalize flow.
package abci

import "github.com/ethereum/go-ethereum/common"

type RequestPrepareProposal struct {
	Height     uint64
	MaxTxBytes int64
}

type ResponsePrepareProposal struct{ Txs [][]byte }

type RequestProcessProposal struct {
	Height uint64
	Txs    [][]byte
}

type ResponseProcessProposal struct{ Accept bool }

type RequestFinalizeBlock struct {
	Height uint64
	// Timestamp is the block time in Unix milliseconds. Every order created
	// in the block carries it.
	Timestamp uint64
	Txs       [][]byte
}

// Result codes of a delivered transaction.
const (
	CodeOK uint32 = iota
	CodeInvalidTx
	CodeBadSignature
	CodeBadNonce
	CodeRejected
)

// TxResult is the outcome of one transaction. A non-zero Code means the
// transaction changed nothing except, past signature and nonce checks, the
// sender's nonce.
type TxResult struct {
	Code   uint32
	Log    string
	Trades int
}

func (r TxResult) IsOK() bool { return r.Code == CodeOK }

type ResponseFinalizeBlock struct {
	TxResults []TxResult
	AppHash   common.Hash
}

// Application executes ordered blocks of raw transactions.
type Application interface {
	PrepareProposal(RequestPrepareProposal) ResponsePrepareProposal
	ProcessProposal(RequestProcessProposal) ResponseProcessProposal
	FinalizeBlock(RequestFinalizeBlock) ResponseFinalizeBlock
	// Commit persists the state produced by the last FinalizeBlock.
	Commit() error
}
