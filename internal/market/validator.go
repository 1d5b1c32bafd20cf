package market

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/evanmiller2112/spacetraders-cc/internal/goods"
)

// PriceOutOfBandError reports an offer priced outside the acceptable
// window for its good. It is a planning skip, never a fatal failure.
type PriceOutOfBandError struct {
	Good      string
	UnitPrice int64
	Min       decimal.Decimal
	Max       decimal.Decimal
}

func (e *PriceOutOfBandError) Error() string {
	return fmt.Sprintf("price %d for %s outside acceptable band [%s, %s]",
		e.UnitPrice, e.Good, e.Min.StringFixed(0), e.Max.StringFixed(0))
}

// Validator checks offer prices against the knowledge base's reference
// bands. Acceptance is band-relative with configurable margins; it is
// deliberately independent of the contract's payment, so a rich contract
// cannot talk the engine into a scalper's price.
type Validator struct {
	catalog      *goods.Catalog
	lowTolerance decimal.Decimal
	safetyMargin decimal.Decimal
}

// Default margins: tolerate prices down to half the reference minimum
// (cheaper is suspicious but acceptable), and up to 10% over the
// reference maximum.
const (
	DefaultLowTolerance = 0.5
	DefaultSafetyMargin = 1.1
)

// NewValidator creates a validator with the default margins.
func NewValidator(catalog *goods.Catalog) *Validator {
	return NewValidatorWithMargins(catalog, DefaultLowTolerance, DefaultSafetyMargin)
}

// NewValidatorWithMargins creates a validator with explicit margins.
// Margins at or below zero fall back to the defaults.
func NewValidatorWithMargins(catalog *goods.Catalog, lowTolerance, safetyMargin float64) *Validator {
	if lowTolerance <= 0 {
		lowTolerance = DefaultLowTolerance
	}
	if safetyMargin <= 0 {
		safetyMargin = DefaultSafetyMargin
	}
	return &Validator{
		catalog:      catalog,
		lowTolerance: decimal.NewFromFloat(lowTolerance),
		safetyMargin: decimal.NewFromFloat(safetyMargin),
	}
}

// Bounds returns the acceptable [min, max] price window for a good.
func (v *Validator) Bounds(good string) (decimal.Decimal, decimal.Decimal) {
	info, _ := v.catalog.Lookup(good)
	min := decimal.NewFromInt(info.Band.Min).Mul(v.lowTolerance)
	max := decimal.NewFromInt(info.Band.Max).Mul(v.safetyMargin)
	return min, max
}

// Check accepts or rejects a unit price for a good. A rejection is a
// *PriceOutOfBandError; callers skip the offer and move on.
func (v *Validator) Check(good string, unitPrice int64) error {
	min, max := v.Bounds(good)
	price := decimal.NewFromInt(unitPrice)
	if price.LessThan(min) || price.GreaterThan(max) {
		return &PriceOutOfBandError{Good: good, UnitPrice: unitPrice, Min: min, Max: max}
	}
	return nil
}
