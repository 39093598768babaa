package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator validates a coupon code against a cart subtotal and returns the
// computed discount.
type Validator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Discount, error)
}

var _ Validator = (*RepoValidator)(nil)

// RepoValidator implements Validator by fetching the coupon and its usage
// count from a Repository and handing them to Evaluate.
//
// Usage is read, never reserved: two checkouts racing for the last use of a
// limited coupon can both pass.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate returns a *Rejection for business-rule failures and an error
// matching ErrUnavailable when the repository could not be queried.
func (v *RepoValidator) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Discount, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, rejectEmpty()
	}

	c, err := v.repo.FindByCode(ctx, normalized)
	switch {
	case errors.Is(err, ErrNotFound):
		c = nil
	case err != nil:
		return nil, &UnavailableError{Err: errors.Wrapf(err, "find %q", normalized)}
	}

	if c != nil && c.UsageLimit != nil {
		used, err := v.repo.CountUsage(ctx, normalized)
		if err != nil {
			return nil, &UnavailableError{Err: errors.Wrapf(err, "count usage of %q", normalized)}
		}
		c.TimesUsed = used
	}

	d, err := Evaluate(normalized, subtotal, c, v.now())
	if err != nil {
		return nil, err
	}
	return &d, nil
}
