package abci

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/hyperbook/pkg/util"
)

// Producer drives a single-node chain: every BlockTime it asks the
// application for a proposal and, if there is anything to execute,
// finalizes and commits it as the next height. Empty blocks are skipped.
type Producer struct {
	App        Application
	Clock      util.Clock
	BlockTime  time.Duration
	MaxTxBytes int64
	Logger     *zap.Logger

	// OnCommit runs after each committed block.
	OnCommit func(height uint64, resp ResponseFinalizeBlock)

	height uint64
}

// NewProducer continues the chain after lastHeight.
func NewProducer(app Application, clock util.Clock, blockTime time.Duration, maxTxBytes int64, lastHeight uint64, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{
		App:        app,
		Clock:      clock,
		BlockTime:  blockTime,
		MaxTxBytes: maxTxBytes,
		Logger:     logger,
		height:     lastHeight,
	}
}

func (p *Producer) Height() uint64 { return p.height }

// Run produces blocks until ctx is done.
func (p *Producer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.Clock.After(p.BlockTime):
			if _, err := p.Step(); err != nil {
				return err
			}
		}
	}
}

// Step produces at most one block and reports whether it did.
func (p *Producer) Step() (bool, error) {
	next := p.height + 1
	prop := p.App.PrepareProposal(RequestPrepareProposal{Height: next, MaxTxBytes: p.MaxTxBytes})
	if len(prop.Txs) == 0 {
		return false, nil
	}
	if !p.App.ProcessProposal(RequestProcessProposal{Height: next, Txs: prop.Txs}).Accept {
		p.Logger.Warn("proposal rejected", zap.Uint64("height", next), zap.Int("txs", len(prop.Txs)))
		return false, nil
	}

	resp := p.App.FinalizeBlock(RequestFinalizeBlock{
		Height:    next,
		Timestamp: util.UnixMilli(p.Clock),
		Txs:       prop.Txs,
	})
	if err := p.App.Commit(); err != nil {
		return false, fmt.Errorf("commit height %d: %w", next, err)
	}
	p.height = next

	failed := 0
	for _, r := range resp.TxResults {
		if !r.IsOK() {
			failed++
		}
	}
	p.Logger.Info("block committed",
		zap.Uint64("height", next),
		zap.Int("txs", len(prop.Txs)),
		zap.Int("failed", failed),
		zap.Stringer("app_hash", resp.AppHash))

	if p.OnCommit != nil {
		p.OnCommit(next, resp)
	}
	return true, nil
}
