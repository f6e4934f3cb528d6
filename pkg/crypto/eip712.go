package crypto

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain is the domain separator of every signed message; it keeps a
// signature for one chain or deployment from being replayed on another.
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// DefaultDomain is the local development domain.
func DefaultDomain() EIP712Domain {
	return EIP712Domain{
		Name:              "Hyperbook",
		Version:           "1",
		ChainID:           big.NewInt(1337),
		VerifyingContract: common.Address{},
	}
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// TypedMessage is one struct to sign: its EIP-712 type name, field layout
// and values (integers as decimal strings, addresses as hex).
type TypedMessage struct {
	PrimaryType string
	Fields      []apitypes.Type
	Values      apitypes.TypedDataMessage
}

// EIP712Signer hashes, signs and verifies typed messages under one domain.
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

func (e *EIP712Signer) Domain() EIP712Domain { return e.domain }

// Hash returns keccak256("\x19\x01" || domainSeparator || hashStruct(msg)).
func (e *EIP712Signer) Hash(msg TypedMessage) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain":  domainType,
			msg.PrimaryType: msg.Fields,
		},
		PrimaryType: msg.PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: msg.Values,
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", msg.PrimaryType, err)
	}

	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256(rawData), nil
}

// Sign hashes msg and signs the digest with signer.
func (e *EIP712Signer) Sign(signer *Signer, msg TypedMessage) ([]byte, error) {
	hash, err := e.Hash(msg)
	if err != nil {
		return nil, err
	}
	return signer.Sign(hash)
}

// Recover returns the address that signed msg.
func (e *EIP712Signer) Recover(msg TypedMessage, signature []byte) (common.Address, error) {
	hash, err := e.Hash(msg)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddress(hash, signature)
}
