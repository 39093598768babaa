package coupon

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Rejection reasons. Every Rejection wraps exactly one of these.
var (
	ErrEmptyCode         = errors.New("coupon code is empty")
	ErrNotFound          = errors.New("coupon not found")
	ErrInactive          = errors.New("coupon inactive")
	ErrExpired           = errors.New("coupon expired")
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	ErrBelowMinimum      = errors.New("minimum order value not met")
)

var (
	// ErrUnavailable marks an infrastructure failure while looking a coupon
	// up. It is never a statement about the coupon itself.
	ErrUnavailable = errors.New("coupon lookup unavailable")
	// ErrNegativeSubtotal is returned for a subtotal below zero.
	ErrNegativeSubtotal = errors.New("subtotal must not be negative")
	// ErrDuplicateCode is returned by repositories on a code collision.
	ErrDuplicateCode = errors.New("coupon code already exists")
)

// UnavailableError carries the repository failure behind ErrUnavailable.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return ErrUnavailable.Error() + ": " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Rejection is a business-rule refusal of a coupon. Message is meant to be
// shown to the customer verbatim.
type Rejection struct {
	Reason  error
	Code    string
	Message string
}

func (r *Rejection) Error() string { return r.Message }

func (r *Rejection) Unwrap() error { return r.Reason }

// IsRejection reports whether err is a business rejection rather than an
// infrastructure failure.
func IsRejection(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}

func reject(reason error, code, msg string) *Rejection {
	return &Rejection{Reason: reason, Code: code, Message: msg}
}

func rejectEmpty() *Rejection {
	return reject(ErrEmptyCode, "", "Please enter a coupon code.")
}

func rejectNotFound(code string) *Rejection {
	return reject(ErrNotFound, code, fmt.Sprintf("Coupon '%s' is invalid.", code))
}

func rejectInactive(code string) *Rejection {
	return reject(ErrInactive, code, fmt.Sprintf("Coupon '%s' is inactive.", code))
}

func rejectExpired(code string) *Rejection {
	return reject(ErrExpired, code, fmt.Sprintf("Coupon '%s' has expired.", code))
}

func rejectExhausted(code string) *Rejection {
	return reject(ErrUsageLimitReached, code, fmt.Sprintf("Coupon '%s' has reached its usage limit.", code))
}

func rejectBelowMinimum(code string, min decimal.Decimal) *Rejection {
	return reject(ErrBelowMinimum, code,
		fmt.Sprintf("This coupon requires a minimum order of %s", min.String()))
}
