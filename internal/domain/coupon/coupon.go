package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercent applies a percentage of the subtotal.
	DiscountPercent DiscountType = "percent"
	// DiscountFixed subtracts a flat amount from the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// Label returns the name reported to clients for the discount type.
func (t DiscountType) Label() string {
	if t == DiscountPercent {
		return "percentage"
	}
	return "fixed"
}

// ParseDiscountType parses admin input strictly.
func ParseDiscountType(raw string) (DiscountType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "percent", "percentage", "%":
		return DiscountPercent, nil
	case "fixed", "flat", "amount":
		return DiscountFixed, nil
	default:
		return "", errors.Errorf("unknown discount type %q", raw)
	}
}

// NormalizeDiscountType maps a stored discount type onto the canonical enum.
// Anything mentioning "cent" or "%" is a percentage, everything else
// (including an empty value) is fixed.
func NormalizeDiscountType(raw string) DiscountType {
	s := strings.ToLower(strings.TrimSpace(raw))
	if strings.Contains(s, "cent") || strings.Contains(s, "%") {
		return DiscountPercent
	}
	return DiscountFixed
}

// Coupon is a discount code together with the rules governing its
// eligibility and magnitude.
type Coupon struct {
	Code         string
	DiscountType DiscountType
	// Value is percentage points for percent coupons and a currency amount
	// for fixed ones. An invalid value means the stored magnitude could not
	// be parsed; such coupons discount nothing.
	Value         decimal.NullDecimal
	MinOrderValue decimal.Decimal
	// MaxDiscount caps the computed discount when valid.
	MaxDiscount decimal.NullDecimal
	ValidUntil  *time.Time
	IsActive    bool
	// UsageLimit is nil for unlimited coupons.
	UsageLimit *int
	// TimesUsed is derived by counting non-cancelled orders carrying the code.
	TimesUsed int
	CreatedAt time.Time
}

// Exhausted reports whether the coupon has no uses left.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit != nil && c.TimesUsed >= *c.UsageLimit
}

// Discount is the outcome of a successful validation.
type Discount struct {
	Amount decimal.Decimal
	// Code is the canonical (uppercased) coupon code.
	Code string
	Type DiscountType
}

// Repository provides coupon persistence. FindByCode expects an already
// normalized code and returns ErrNotFound when no coupon matches.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	CountUsage(ctx context.Context, code string) (int, error)
}

// AdminRepository extends Repository with the mutations used by the back-office.
type AdminRepository interface {
	Repository
	List(ctx context.Context) ([]Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	SetActive(ctx context.Context, code string, active bool) error
	Delete(ctx context.Context, code string) error
}
