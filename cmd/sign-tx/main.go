// Command sign-tx builds and signs an exchange transaction, prints it as the
// JSON body for POST /api/v1/txs and checks the signature recovers.
//
//	sign-tx --type limit_bid --nonce 2 --lots 100 --price 990000 --key 0x...
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"

	"github.com/uhyunpark/hyperbook/params"
	"github.com/uhyunpark/hyperbook/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperbook/pkg/app/dex"
	"github.com/uhyunpark/hyperbook/pkg/crypto"
)

func main() {
	app := &cli.App{
		Name:  "sign-tx",
		Usage: "sign an exchange transaction with EIP-712",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Usage: "transaction type, e.g. limit_bid, cancel_limit_ask, approve, faucet", Required: true},
			&cli.Uint64Flag{Name: "nonce", Usage: "must exceed the sender's last used nonce", Required: true},
			&cli.StringFlag{Name: "key", Usage: "hex private key; a fresh key is generated when empty", EnvVars: []string{"SIGNER_KEY"}},
			&cli.StringFlag{Name: "env", Usage: "path to a .env file with the node's pair and chain config"},
			&cli.Uint64Flag{Name: "lots", Usage: "order size in lots"},
			&cli.Uint64Flag{Name: "price", Usage: "limit price in ticks"},
			&cli.Uint64Flag{Name: "stop", Usage: "stop price in ticks"},
			&cli.Uint64Flag{Name: "budget", Usage: "market buy budget in ticks"},
			&cli.Uint64Flag{Name: "order-id", Usage: "order to cancel"},
			&cli.StringFlag{Name: "token", Usage: "asset address to approve; defaults to asset A"},
			&cli.StringFlag{Name: "amount", Usage: "raw amount to approve; \"max\" for 2^256-1", Value: "max"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := params.LoadFromEnv(c.String("env"))

	signer, err := loadSigner(c.String("key"))
	if err != nil {
		return err
	}

	tx, err := buildTx(c, cfg)
	if err != nil {
		return err
	}
	if err := transaction.Sign(tx, signer, dex.Domain(cfg)); err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	if err := tx.Validate(); err != nil {
		return err
	}

	out, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Address: %s\n", signer.Address().Hex())
	fmt.Println(string(out))

	if err := transaction.NewVerifier(dex.Domain(cfg)).Verify(tx); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Signature valid. Submit with:\n  curl -X POST http://localhost%s/api/v1/txs -d @tx.json\n", cfg.API.Addr)
	return nil
}

func loadSigner(key string) (*crypto.Signer, error) {
	if key != "" {
		return crypto.FromPrivateKeyHex(strings.TrimPrefix(key, "0x"))
	}
	signer, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "Generated key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
	return signer, nil
}

func buildTx(c *cli.Context, cfg params.Config) (*transaction.Tx, error) {
	tx := &transaction.Tx{
		Type:    transaction.TxType(c.String("type")),
		Nonce:   c.Uint64("nonce"),
		Lots:    c.Uint64("lots"),
		Price:   c.Uint64("price"),
		Stop:    c.Uint64("stop"),
		Budget:  c.Uint64("budget"),
		OrderID: c.Uint64("order-id"),
	}
	if _, ok := tx.Type.Class(); !ok {
		return nil, fmt.Errorf("%w: %s", transaction.ErrUnknownType, tx.Type)
	}
	if tx.Type != transaction.TxApprove {
		return tx, nil
	}

	tx.Token = cfg.Pair.AssetA
	if s := c.String("token"); s != "" {
		switch s {
		case cfg.Pair.TickerA:
		case cfg.Pair.TickerB:
			tx.Token = cfg.Pair.AssetB
		default:
			if !common.IsHexAddress(s) {
				return nil, fmt.Errorf("invalid token %q", s)
			}
			tx.Token = common.HexToAddress(s)
		}
	}

	if s := c.String("amount"); s == "max" {
		tx.Amount = new(uint256.Int).SetAllOne()
	} else {
		amount, err := uint256.FromDecimal(s)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", s, err)
		}
		tx.Amount = amount
	}
	return tx, nil
}
