package coupon

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// NormalizeCode returns the lookup key for a user-supplied coupon code.
// It is idempotent: " save10 ", "save10" and "SAVE10" all map to "SAVE10".
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ParseValue parses a stored discount magnitude. Values that are not finite
// numbers (empty, "NaN", garbage) yield an invalid NullDecimal.
func ParseValue(raw string) decimal.NullDecimal {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// Evaluate applies the rules of c to the given pre-discount, pre-shipping
// subtotal at instant now. c is nil when no coupon matched the code.
//
// Checks run in a fixed order and the first failing one decides the
// *Rejection returned: not found, inactive, expired, usage limit, minimum
// order value. Evaluate performs no I/O and never mutates c.
func Evaluate(code string, subtotal decimal.Decimal, c *Coupon, now time.Time) (Discount, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Discount{}, rejectEmpty()
	}
	if subtotal.IsNegative() {
		return Discount{}, ErrNegativeSubtotal
	}
	if c == nil {
		return Discount{}, rejectNotFound(code)
	}
	if !c.IsActive {
		return Discount{}, rejectInactive(code)
	}
	if c.ValidUntil != nil && !now.Before(*c.ValidUntil) {
		return Discount{}, rejectExpired(code)
	}
	if c.Exhausted() {
		return Discount{}, rejectExhausted(code)
	}
	if subtotal.LessThan(c.MinOrderValue) {
		return Discount{}, rejectBelowMinimum(code, c.MinOrderValue)
	}

	amount := rawAmount(c, subtotal)
	if c.MaxDiscount.Valid && c.MaxDiscount.Decimal.IsPositive() && amount.GreaterThan(c.MaxDiscount.Decimal) {
		amount = c.MaxDiscount.Decimal
	}
	// Rounding happens before the subtotal cap so it cannot push the
	// discount past a sub-cent subtotal.
	amount = decimal.Min(floorAtZero(amount).Round(2), subtotal)

	canonical := NormalizeCode(c.Code)
	if canonical == "" {
		canonical = code
	}
	return Discount{
		Amount: amount,
		Code:   canonical,
		Type:   c.DiscountType,
	}, nil
}

// rawAmount computes the uncapped discount. A malformed stored value
// discounts nothing.
func rawAmount(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	if !c.Value.Valid {
		return zero
	}
	switch c.DiscountType {
	case DiscountPercent:
		return subtotal.Mul(c.Value.Decimal).Div(hundred)
	default:
		return c.Value.Decimal
	}
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
