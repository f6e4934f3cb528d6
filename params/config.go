package params

import (
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Pair configures the one market the node runs. The asset addresses are the
// in-memory token contracts the node deploys at genesis.
type Pair struct {
	TickerA   string
	TickerB   string
	DecimalsA uint8
	DecimalsB uint8
	AssetA    common.Address
	AssetB    common.Address
	// Book is the address holding escrow for the pair.
	Book common.Address
}

type Node struct {
	// BlockTime is the interval between produced blocks. Empty blocks are
	// skipped, so it bounds latency rather than throughput.
	BlockTime     time.Duration
	MaxBlockBytes int64
	DataDir       string
	LogFile       string
	LogLevel      string
	// PersistBook commits the book, ledgers and trades to pebble after
	// every block and restores them on start.
	PersistBook bool
	ChainID     int64
}

type API struct {
	Addr string
}

// Faucet is the amount of each asset, in whole tokens, a faucet tx mints.
type Faucet struct {
	Amount uint64
}

// TxGen drives the synthetic trader load used for local runs.
type TxGen struct {
	Enabled bool
	Mode    string // "default" or "high"
}

type Config struct {
	Pair   Pair
	Node   Node
	API    API
	Faucet Faucet
	TxGen  TxGen
}

func Default() Config {
	return Config{
		Pair: Pair{
			TickerA:   "WETH",
			TickerB:   "USDX",
			DecimalsA: 18,
			DecimalsB: 18,
			AssetA:    common.HexToAddress("0x00000000000000000000000000000000000a55e7"),
			AssetB:    common.HexToAddress("0x00000000000000000000000000000000000b55e7"),
			Book:      common.HexToAddress("0x000000000000000000000000000000000000b00c"),
		},
		Node: Node{
			BlockTime:     200 * time.Millisecond,
			MaxBlockBytes: 1 << 20,
			DataDir:       "./data",
			LogFile:       "",
			LogLevel:      "info",
			PersistBook:   true,
			ChainID:       1337,
		},
		API: API{
			Addr: ":8080",
		},
		Faucet: Faucet{
			Amount: 1000,
		},
		TxGen: TxGen{
			Mode: "default",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Pair.TickerA = getEnv("PAIR_TICKER_A", cfg.Pair.TickerA)
	cfg.Pair.TickerB = getEnv("PAIR_TICKER_B", cfg.Pair.TickerB)
	if dec, ok := getUint(os.Getenv("PAIR_DECIMALS_A"), 8); ok {
		cfg.Pair.DecimalsA = uint8(dec)
	}
	if dec, ok := getUint(os.Getenv("PAIR_DECIMALS_B"), 8); ok {
		cfg.Pair.DecimalsB = uint8(dec)
	}
	if addr := os.Getenv("PAIR_ASSET_A"); common.IsHexAddress(addr) {
		cfg.Pair.AssetA = common.HexToAddress(addr)
	}
	if addr := os.Getenv("PAIR_ASSET_B"); common.IsHexAddress(addr) {
		cfg.Pair.AssetB = common.HexToAddress(addr)
	}
	if addr := os.Getenv("BOOK_ADDRESS"); common.IsHexAddress(addr) {
		cfg.Pair.Book = common.HexToAddress(addr)
	}

	if ms, ok := getUint(os.Getenv("NODE_BLOCK_TIME_MS"), 32); ok {
		cfg.Node.BlockTime = time.Duration(ms) * time.Millisecond
	}
	if n, ok := getUint(os.Getenv("NODE_MAX_BLOCK_BYTES"), 63); ok {
		cfg.Node.MaxBlockBytes = int64(n)
	}
	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)
	if persist := os.Getenv("PERSIST_BOOK"); persist != "" {
		cfg.Node.PersistBook = persist == "true"
	}
	if id, ok := getUint(os.Getenv("CHAIN_ID"), 63); ok {
		cfg.Node.ChainID = int64(id)
	}

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)

	if amount, ok := getUint(os.Getenv("FAUCET_AMOUNT"), 64); ok {
		cfg.Faucet.Amount = amount
	}

	cfg.TxGen.Enabled = os.Getenv("ENABLE_TXGEN") == "true"
	cfg.TxGen.Mode = getEnv("TXGEN_MODE", cfg.TxGen.Mode)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getUint(s string, bits int) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, bits)
	return v, err == nil
}
