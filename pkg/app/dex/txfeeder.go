package dex

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TxFeederConfig controls synthetic load.
type TxFeederConfig struct {
	BatchSize   int           // txs per batch
	Interval    time.Duration // how often a batch is pushed
	NumAccounts int           // simulated traders
	Seed        int64
}

func DefaultFeederConfig() TxFeederConfig {
	return TxFeederConfig{
		BatchSize:   10,
		Interval:    100 * time.Millisecond,
		NumAccounts: 20,
		Seed:        1,
	}
}

// HighLoadConfig pushes roughly 1000 tx/s.
func HighLoadConfig() TxFeederConfig {
	return TxFeederConfig{
		BatchSize:   100,
		Interval:    100 * time.Millisecond,
		NumAccounts: 200,
		Seed:        1,
	}
}

// FeederConfigFor maps a TXGEN_MODE value to a feeder config. Unknown modes
// get the default.
func FeederConfigFor(mode string) TxFeederConfig {
	if mode == "high" {
		return HighLoadConfig()
	}
	return DefaultFeederConfig()
}

// StartTxFeeder pushes generated batches into app's mempool until ctx is
// done or the returned cancel func is called.
func StartTxFeeder(ctx context.Context, app *App, cfg TxFeederConfig) (context.CancelFunc, error) {
	gen, err := NewTxGenerator(cfg.NumAccounts, app.Pair(), Domain(app.cfg), cfg.Seed)
	if err != nil {
		return nil, err
	}
	log := app.log.Named("txfeeder")
	feedCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		start := time.Now()
		total := 0
		statsEvery := 10 * time.Second
		lastStats := start

		log.Info("started", zap.Int("batch", cfg.BatchSize), zap.Duration("interval", cfg.Interval), zap.Int("accounts", cfg.NumAccounts))
		for {
			select {
			case <-feedCtx.Done():
				log.Info("stopped", zap.Int("total", total), zap.Duration("elapsed", time.Since(start).Round(time.Second)))
				return
			case now := <-ticker.C:
				batch, err := gen.GenerateBatch(cfg.BatchSize)
				if err != nil {
					log.Error("generate batch", zap.Error(err))
					continue
				}
				for _, tx := range batch {
					app.PushTx(tx)
				}
				total += len(batch)

				if now.Sub(lastStats) >= statsEvery {
					elapsed := now.Sub(start).Seconds()
					log.Info("stats",
						zap.Int("total", total),
						zap.Float64("tx_per_sec", float64(total)/elapsed),
						zap.Int("pending", app.PendingTxs()))
					lastStats = now
				}
			}
		}
	}()

	return cancel, nil
}
