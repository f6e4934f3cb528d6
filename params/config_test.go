package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	def := Default()
	if cfg.Pair != def.Pair {
		t.Errorf("pair = %+v, want %+v", cfg.Pair, def.Pair)
	}
	if cfg.Node.BlockTime != 200*time.Millisecond {
		t.Errorf("block time = %v", cfg.Node.BlockTime)
	}
}

func TestLoadFromEnvPriority(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "PAIR_TICKER_A=WBTC\nPAIR_DECIMALS_A=8\nNODE_BLOCK_TIME_MS=50\nAPI_ADDR=:9000\n"
	if err := os.WriteFile(envFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	// the process environment wins over the file
	t.Setenv("API_ADDR", ":7000")
	t.Setenv("PERSIST_BOOK", "false")
	t.Setenv("FAUCET_AMOUNT", "25")
	t.Setenv("BOOK_ADDRESS", "0x00000000000000000000000000000000000000b1")
	t.Setenv("PAIR_DECIMALS_B", "not-a-number")

	cfg := LoadFromEnv(envFile)
	t.Cleanup(func() {
		for _, k := range []string{"PAIR_TICKER_A", "PAIR_DECIMALS_A", "NODE_BLOCK_TIME_MS"} {
			os.Unsetenv(k)
		}
	})

	if cfg.Pair.TickerA != "WBTC" {
		t.Errorf("ticker A = %s, want WBTC", cfg.Pair.TickerA)
	}
	if cfg.Pair.DecimalsA != 8 {
		t.Errorf("decimals A = %d, want 8", cfg.Pair.DecimalsA)
	}
	if cfg.Pair.DecimalsB != 18 {
		t.Errorf("decimals B = %d, want default 18", cfg.Pair.DecimalsB)
	}
	if cfg.Node.BlockTime != 50*time.Millisecond {
		t.Errorf("block time = %v, want 50ms", cfg.Node.BlockTime)
	}
	if cfg.API.Addr != ":7000" {
		t.Errorf("api addr = %s, want :7000", cfg.API.Addr)
	}
	if cfg.Node.PersistBook {
		t.Error("persist book should be disabled")
	}
	if cfg.Faucet.Amount != 25 {
		t.Errorf("faucet = %d, want 25", cfg.Faucet.Amount)
	}
	if cfg.Pair.Book != common.HexToAddress("0xb1") {
		t.Errorf("book = %s", cfg.Pair.Book.Hex())
	}
}

func TestLoadFromEnvTxGen(t *testing.T) {
	t.Setenv("ENABLE_TXGEN", "true")
	t.Setenv("TXGEN_MODE", "high")

	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	if !cfg.TxGen.Enabled {
		t.Error("txgen should be enabled")
	}
	if cfg.TxGen.Mode != "high" {
		t.Errorf("txgen mode = %s, want high", cfg.TxGen.Mode)
	}
}
