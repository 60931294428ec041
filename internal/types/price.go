package types

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Price is a fixed-point price in hundredths of the quote currency.
// All kernel arithmetic stays on int64; decimal conversion happens only
// at the wire boundary.
type Price int64

const (
	// MaxPrice is 999999.99: at most six integer digits and two decimals.
	MaxPrice Price = 99999999
	// MaxQuantity bounds a single order's size.
	MaxQuantity int64 = 1000000
)

var (
	ErrPriceNotPositive = errors.New("price must be positive")
	ErrPriceTooLarge    = errors.New("price exceeds maximum value")
	ErrPricePrecision   = errors.New("price must be a multiple of 0.01")
)

var hundred = decimal.NewFromInt(100)

// ParsePrice converts a decimal into hundredths, rejecting values that are
// non-positive, out of range, or carry more than two fractional digits.
func ParsePrice(d decimal.Decimal) (Price, error) {
	if d.LessThanOrEqual(decimal.Zero) {
		return 0, ErrPriceNotPositive
	}
	if !d.Equal(d.Round(2)) {
		return 0, ErrPricePrecision
	}
	p := Price(d.Mul(hundred).IntPart())
	if p > MaxPrice {
		return 0, ErrPriceTooLarge
	}
	return p, nil
}

// Decimal converts the price back to a two-decimal value.
func (p Price) Decimal() decimal.Decimal {
	return decimal.New(int64(p), -2)
}

func (p Price) String() string {
	return p.Decimal().StringFixed(2)
}

// MarshalJSON emits the price as a fixed two-decimal string so clients never
// see binary floating point artifacts.
func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts either a JSON number or a decimal string.
func (p *Price) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ErrPricePrecision
	}
	parsed, err := ParsePrice(d)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
