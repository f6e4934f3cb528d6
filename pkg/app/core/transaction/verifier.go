package transaction

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/uhyunpark/hyperbook/pkg/crypto"
)

var ErrBadSignature = errors.New("signature does not match sender")

var txFields = []apitypes.Type{
	{Name: "type", Type: "string"},
	{Name: "from", Type: "address"},
	{Name: "nonce", Type: "uint256"},
	{Name: "lots", Type: "uint256"},
	{Name: "price", Type: "uint256"},
	{Name: "stop", Type: "uint256"},
	{Name: "budget", Type: "uint256"},
	{Name: "orderId", Type: "uint256"},
	{Name: "token", Type: "address"},
	{Name: "amount", Type: "uint256"},
}

// TypedMessage returns the EIP-712 message a wallet signs for tx.
func (tx *Tx) TypedMessage() crypto.TypedMessage {
	amount := "0"
	if tx.Amount != nil {
		amount = tx.Amount.Dec()
	}
	return crypto.TypedMessage{
		PrimaryType: "Tx",
		Fields:      txFields,
		Values: apitypes.TypedDataMessage{
			"type":    string(tx.Type),
			"from":    tx.From.Hex(),
			"nonce":   strconv.FormatUint(tx.Nonce, 10),
			"lots":    strconv.FormatUint(tx.Lots, 10),
			"price":   strconv.FormatUint(tx.Price, 10),
			"stop":    strconv.FormatUint(tx.Stop, 10),
			"budget":  strconv.FormatUint(tx.Budget, 10),
			"orderId": strconv.FormatUint(tx.OrderID, 10),
			"token":   tx.Token.Hex(),
			"amount":  amount,
		},
	}
}

// Verifier authenticates transactions against their From address.
type Verifier struct {
	eip712Signer *crypto.EIP712Signer
}

func NewVerifier(domain crypto.EIP712Domain) *Verifier {
	return &Verifier{eip712Signer: crypto.NewEIP712Signer(domain)}
}

// Verify checks that tx was signed by tx.From.
func (v *Verifier) Verify(tx *Tx) error {
	signer, err := v.eip712Signer.Recover(tx.TypedMessage(), tx.Signature)
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	if signer != tx.From {
		return fmt.Errorf("%w: signed by %s, sent as %s", ErrBadSignature, signer.Hex(), tx.From.Hex())
	}
	return nil
}

// Sign fills tx.From and tx.Signature using signer.
func Sign(tx *Tx, signer *crypto.Signer, domain crypto.EIP712Domain) error {
	tx.From = signer.Address()
	sig, err := crypto.NewEIP712Signer(domain).Sign(signer, tx.TypedMessage())
	if err != nil {
		return fmt.Errorf("sign %s: %w", tx.Type, err)
	}
	tx.Signature = sig
	return nil
}
