package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/uhyunpark/hyperbook/params"
	"github.com/uhyunpark/hyperbook/pkg/abci"
	"github.com/uhyunpark/hyperbook/pkg/api"
	"github.com/uhyunpark/hyperbook/pkg/app/dex"
	"github.com/uhyunpark/hyperbook/pkg/storage"
	"github.com/uhyunpark/hyperbook/pkg/util"
	"go.uber.org/zap"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
		sugar.Fatalw("data_dir_failed", "dir", cfg.Node.DataDir, "err", err)
	}

	opts := []dex.Option{dex.WithLogger(logger.Named("dex"))}

	// ---- Storage ----
	if cfg.Node.PersistBook {
		store, err := storage.NewPebbleStore(filepath.Join(cfg.Node.DataDir, "db"))
		if err != nil {
			sugar.Fatalw("store_open_failed", "err", err)
		}
		defer store.Close()
		opts = append(opts, dex.WithStore(store))
	}
	wal, err := storage.NewFileWAL(filepath.Join(cfg.Node.DataDir, "txs.wal"))
	if err != nil {
		sugar.Fatalw("wal_open_failed", "err", err)
	}
	defer wal.Close()
	opts = append(opts, dex.WithWAL(wal))

	// ---- App ----
	app, err := dex.New(cfg, opts...)
	if err != nil {
		sugar.Fatalw("app_init_failed", "err", err)
	}
	pair := app.Pair()
	sugar.Infow("node_starting",
		"pair", pair.Symbol,
		"book", pair.Book.Hex(),
		"height", app.Height(),
		"chain_id", cfg.Node.ChainID,
		"block_time_ms", cfg.Node.BlockTime.Milliseconds(),
		"persist", cfg.Node.PersistBook)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	apiServer := api.NewServer(app, logger.Named("api"))
	go func() {
		if err := apiServer.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	// ---- Transaction Feeder (optional) ----
	// Enable with: ENABLE_TXGEN=true TXGEN_MODE=default|high
	if cfg.TxGen.Enabled {
		txCfg := dex.FeederConfigFor(cfg.TxGen.Mode)
		cancelFeeder, err := dex.StartTxFeeder(ctx, app, txCfg)
		if err != nil {
			sugar.Fatalw("txgen_failed", "err", err)
		}
		defer cancelFeeder()
		sugar.Infow("txgen_enabled", "mode", cfg.TxGen.Mode, "batch", txCfg.BatchSize, "interval", txCfg.Interval)
	}

	// ---- Block production ----
	producer := abci.NewProducer(app, util.RealClock{}, cfg.Node.BlockTime, cfg.Node.MaxBlockBytes, app.Height(), logger.Named("producer"))
	producer.OnCommit = func(height uint64, _ abci.ResponseFinalizeBlock) {
		apiServer.BroadcastBlock(height)
	}
	if err := producer.Run(ctx); err != nil {
		sugar.Errorw("producer_failed", "height", producer.Height(), "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("api_shutdown", "err", err)
	}
	sugar.Infow("node_stopped", "height", producer.Height())
}

func newLogger(cfg params.Config) (*zap.Logger, error) {
	if cfg.Node.LogFile == "" {
		return util.NewLogger(cfg.Node.LogLevel)
	}
	return util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.LogLevel)
}
