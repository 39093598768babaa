package coupon

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidInput wraps every admin input validation failure.
var ErrInvalidInput = errors.New("invalid coupon")

const (
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	generatedLength = 8
	generateRetries = 5
)

// CreateInput holds the admin-supplied fields of a new coupon.
type CreateInput struct {
	Code          string
	DiscountType  string
	Value         decimal.Decimal
	MinOrderValue decimal.Decimal
	MaxDiscount   decimal.NullDecimal
	ValidUntil    *time.Time
	UsageLimit    *int
}

// Manager implements the back-office coupon operations.
type Manager struct {
	repo   AdminRepository
	now    func() time.Time
	random func() (string, error)
}

// NewManager creates a Manager backed by the given AdminRepository.
func NewManager(repo AdminRepository) *Manager {
	return &Manager{repo: repo, now: time.Now, random: randomCode}
}

// List returns all coupons, newest first, with TimesUsed populated.
func (m *Manager) List(ctx context.Context) ([]Coupon, error) {
	coupons, err := m.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

// Create validates in and persists a new active coupon.
func (m *Manager) Create(ctx context.Context, in CreateInput) (*Coupon, error) {
	c, err := m.build(in)
	if err != nil {
		return nil, err
	}
	if err := m.repo.Create(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create coupon")
	}
	return c, nil
}

func (m *Manager) build(in CreateInput) (*Coupon, error) {
	code := NormalizeCode(in.Code)
	if code == "" || in.ValidUntil == nil {
		return nil, invalid("code and expiry date are required")
	}
	if in.ValidUntil.Before(m.now()) {
		return nil, invalid("expiry date cannot be in the past")
	}

	typ, err := ParseDiscountType(in.DiscountType)
	if err != nil {
		return nil, invalid(err.Error())
	}
	if !in.Value.IsPositive() {
		return nil, invalid("discount value must be positive")
	}
	if typ == DiscountPercent && in.Value.GreaterThan(hundred) {
		return nil, invalid("percentage cannot exceed 100")
	}
	if in.MinOrderValue.IsNegative() {
		return nil, invalid("minimum order value cannot be negative")
	}
	if in.UsageLimit != nil && *in.UsageLimit <= 0 {
		return nil, invalid("usage limit must be positive")
	}

	maxDiscount := in.MaxDiscount
	switch {
	case typ == DiscountFixed:
		// A fixed value already is its own cap.
		maxDiscount = decimal.NullDecimal{}
	case maxDiscount.Valid && !maxDiscount.Decimal.IsPositive():
		return nil, invalid("max discount must be positive")
	}

	validUntil := in.ValidUntil.UTC()
	return &Coupon{
		Code:          code,
		DiscountType:  typ,
		Value:         decimal.NewNullDecimal(in.Value),
		MinOrderValue: in.MinOrderValue,
		MaxDiscount:   maxDiscount,
		ValidUntil:    &validUntil,
		IsActive:      true,
		UsageLimit:    in.UsageLimit,
	}, nil
}

// SetActive enables or disables the coupon identified by code.
func (m *Manager) SetActive(ctx context.Context, code string, active bool) error {
	code = NormalizeCode(code)
	if code == "" {
		return invalid("code is required")
	}
	if err := m.repo.SetActive(ctx, code, active); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return errors.Wrapf(err, "set coupon %s active=%t", code, active)
	}
	return nil
}

// Delete removes the coupon identified by code. Orders keep their snapshot
// of the code.
func (m *Manager) Delete(ctx context.Context, code string) error {
	code = NormalizeCode(code)
	if code == "" {
		return invalid("code is required")
	}
	if err := m.repo.Delete(ctx, code); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return errors.Wrapf(err, "delete coupon %s", code)
	}
	return nil
}

// GenerateCode returns a random 8 character code that no existing coupon uses.
func (m *Manager) GenerateCode(ctx context.Context) (string, error) {
	for range generateRetries {
		code, err := m.random()
		if err != nil {
			return "", errors.Wrap(err, "generate code")
		}
		_, err = m.repo.FindByCode(ctx, code)
		switch {
		case errors.Is(err, ErrNotFound):
			return code, nil
		case err != nil:
			return "", errors.Wrap(err, "check generated code")
		}
	}
	return "", errors.Errorf("no free code after %d attempts", generateRetries)
}

func randomCode() (string, error) { return codeFrom(rand.Reader) }

// codeFrom draws generatedLength symbols from r. Bytes at or above
// rejectAbove are discarded so every symbol is equally likely.
func codeFrom(r io.Reader) (string, error) {
	const rejectAbove = 256 - 256%len(codeAlphabet)
	code := make([]byte, 0, generatedLength)
	buf := make([]byte, generatedLength)
	for len(code) < generatedLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", errors.Wrap(err, "read random")
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			code = append(code, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(code) == generatedLength {
				break
			}
		}
	}
	return string(code), nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
