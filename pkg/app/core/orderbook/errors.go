package orderbook

import "errors"

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidPrice        = errors.New("price must be positive")
	ErrInvalidStop         = errors.New("stop price must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotOwner            = errors.New("caller is not the order owner")
	ErrOrderNotFound       = errors.New("order not found")
	ErrDecimals            = errors.New("unsupported token decimals")
	ErrSameAsset           = errors.New("base and quote asset must differ")
)
