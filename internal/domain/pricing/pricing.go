// Package pricing derives the price breakdown of a basket.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/tiffin/internal/domain/basket"
)

// DefaultDeliveryFee is charged on every non-empty basket.
const DefaultDeliveryFee int64 = 40

// DefaultTaxRate is the tax fraction applied to the subtotal.
var DefaultTaxRate = decimal.RequireFromString("0.05")

// Config holds the pricing parameters. Amounts are in minor currency units.
type Config struct {
	DeliveryFee int64
	TaxRate     decimal.Decimal
}

// Breakdown is the derived price of a basket.
type Breakdown struct {
	Subtotal    int64
	DeliveryFee int64
	Tax         int64
	Discount    int64
	Total       int64
}

// Calculator computes price breakdowns. It holds no mutable state.
type Calculator struct {
	deliveryFee int64
	taxRate     decimal.Decimal
}

// NewCalculator returns a Calculator, filling unset parameters with defaults.
func NewCalculator(cfg Config) *Calculator {
	c := &Calculator{deliveryFee: cfg.DeliveryFee, taxRate: cfg.TaxRate}
	if c.deliveryFee <= 0 {
		c.deliveryFee = DefaultDeliveryFee
	}
	if c.taxRate.IsZero() {
		c.taxRate = DefaultTaxRate
	}
	return c
}

// Subtotal returns the sum of unit price times quantity over all lines.
func (c *Calculator) Subtotal(lines []basket.Line) int64 {
	var sum int64
	for _, l := range lines {
		sum += l.Amount()
	}
	return sum
}

// DeliveryFeeFor returns the delivery fee charged for subtotal.
func (c *Calculator) DeliveryFeeFor(subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}
	return c.deliveryFee
}

// Tax returns subtotal * rate rounded half-up to a whole minor unit.
func (c *Calculator) Tax(subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}
	return RoundHalfUp(decimal.NewFromInt(subtotal).Mul(c.taxRate))
}

// Breakdown prices lines with the given discount. A negative discount is
// treated as zero and the total never drops below zero.
func (c *Calculator) Breakdown(lines []basket.Line, discount int64) Breakdown {
	b := Breakdown{Subtotal: c.Subtotal(lines)}
	b.DeliveryFee = c.DeliveryFeeFor(b.Subtotal)
	b.Tax = c.Tax(b.Subtotal)
	b.Discount = max(discount, 0)
	b.Total = max(b.Subtotal+b.DeliveryFee+b.Tax-b.Discount, 0)
	return b
}

// RoundHalfUp rounds a non-negative amount to the nearest integer, halves up.
func RoundHalfUp(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
