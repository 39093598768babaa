package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for order operations.
var (
	ErrNotFound          = errors.New("order not found")
	ErrEmptyItems        = errors.New("items required")
	ErrInvalidQuantity   = errors.New("quantity must be greater than 0")
	ErrInvalidCustomer   = errors.New("invalid customer details")
	ErrMaintenance       = errors.New("store is in maintenance mode")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrStatusConflict    = errors.New("order status changed concurrently")
	ErrItemInCart        = errors.New("item already in cart")
	ErrItemNotInCart     = errors.New("item not in cart")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// OutOfStockError indicates the catalog cannot cover a line item.
type OutOfStockError struct {
	ProductID string
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %s has only %d in stock", e.ProductID, e.Available)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

func (e *InvalidQuantityError) Unwrap() error { return ErrInvalidQuantity }

// TransitionError describes a rejected status change.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }
