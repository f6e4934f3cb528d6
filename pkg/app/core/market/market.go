package market

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Precision is the fixed scale shared by lots and ticks: user-facing amounts
// and prices carry 4 implicit decimal digits regardless of the assets' own
// decimals.
const Precision = 10000

const precisionDigits = 4

const (
	// MinDecimals is the smallest native decimal count an asset may report.
	// Below it the 4-digit scale would leave less than one raw unit per lot.
	MinDecimals = 9
	// MaxDecimals bounds lotSize/tickSize so lots*price*tickSize fits in 256 bits.
	MaxDecimals = 36
)

var precision = uint256.NewInt(Precision)

// Pair is the fixed-point configuration of a trading pair (e.g., WETH/USDX).
//
// Asset A is the base asset, counted in lots. Asset B is the quote asset,
// priced in ticks. Both sizes are computed once at construction:
//
//	lotSize  = 10^(decimalsA - 4)
//	tickSize = 10^(decimalsB - 4)
//
// Every quantity conversion in the engine goes through ToRawA, ToRawB and
// Quote so the rounding order stays reproducible.
type Pair struct {
	TickerA   string
	TickerB   string
	DecimalsA uint8
	DecimalsB uint8

	lotSize  *uint256.Int
	tickSize *uint256.Int
}

// NewPair creates the pair configuration, failing unless both assets report
// more than 8 decimals.
func NewPair(tickerA string, decimalsA uint8, tickerB string, decimalsB uint8) (*Pair, error) {
	p := &Pair{
		TickerA:   tickerA,
		TickerB:   tickerB,
		DecimalsA: decimalsA,
		DecimalsB: decimalsB,
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pair %s/%s: %w", tickerA, tickerB, err)
	}
	p.lotSize = pow10(decimalsA - precisionDigits)
	p.tickSize = pow10(decimalsB - precisionDigits)
	return p, nil
}

// Validate checks the decimal bounds of both assets.
func (p *Pair) Validate() error {
	if p.DecimalsA < MinDecimals || p.DecimalsB < MinDecimals {
		return fmt.Errorf("token decimals must be greater than 8: got %d and %d", p.DecimalsA, p.DecimalsB)
	}
	if p.DecimalsA > MaxDecimals || p.DecimalsB > MaxDecimals {
		return fmt.Errorf("token decimals must not exceed %d: got %d and %d", MaxDecimals, p.DecimalsA, p.DecimalsB)
	}
	return nil
}

// Symbol returns "A/B".
func (p *Pair) Symbol() string {
	return p.TickerA + "/" + p.TickerB
}

// LotSize returns a copy of the raw asset-A units per lot.
func (p *Pair) LotSize() *uint256.Int { return p.lotSize.Clone() }

// TickSize returns a copy of the raw asset-B units per tick.
func (p *Pair) TickSize() *uint256.Int { return p.tickSize.Clone() }

// ToRawA converts lots to raw asset-A units.
func (p *Pair) ToRawA(lots uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(lots), p.lotSize)
}

// ToRawB converts ticks to raw asset-B units.
func (p *Pair) ToRawB(ticks uint64) *uint256.Int {
	return p.toRawB(uint256.NewInt(ticks))
}

func (p *Pair) toRawB(ticks *uint256.Int) *uint256.Int {
	return new(uint256.Int).Mul(ticks, p.tickSize)
}

// Quote returns the raw asset-B cost of lots at price:
//
//	ToRawB(lots * price) / Precision
//
// Multiply, then convert, then divide. Reordering changes rounding.
func (p *Pair) Quote(lots, price uint64) *uint256.Int {
	product := new(uint256.Int).Mul(uint256.NewInt(lots), uint256.NewInt(price))
	raw := p.toRawB(product)
	return raw.Div(raw, precision)
}

// MaxLots returns how many whole lots a raw asset-B budget buys at price,
// i.e. budget * Precision / ToRawB(price), saturating at MaxUint64.
func (p *Pair) MaxLots(budget *uint256.Int, price uint64) uint64 {
	if price == 0 {
		return 0
	}
	n := new(uint256.Int).Mul(budget, precision)
	n.Div(n, p.ToRawB(price))
	if !n.IsUint64() {
		return ^uint64(0)
	}
	return n.Uint64()
}

// LotsFromRawA is the exact inverse of ToRawA for whole lots; any sub-lot
// remainder is truncated.
func (p *Pair) LotsFromRawA(raw *uint256.Int) uint64 {
	return new(uint256.Int).Div(raw, p.lotSize).Uint64()
}

// FormatScaled renders a lot or tick count as a decimal string, e.g. 56512 -> "5.6512".
func FormatScaled(v uint64) string {
	return fmt.Sprintf("%d.%04d", v/Precision, v%Precision)
}

func pow10(exp uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(exp)))
}
