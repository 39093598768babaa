package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is a placed customer order. Amounts are computed once at checkout and
// never recomputed.
type Order struct {
	ID       string
	Customer Customer
	Items    []Item
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Shipping decimal.Decimal
	// Total is Subtotal - Discount + Shipping.
	Total decimal.Decimal
	// CouponCode is a snapshot, not a reference; the coupon may since be gone.
	CouponCode string
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Customer holds the shipping details entered at checkout.
type Customer struct {
	Name    string
	Email   string
	Address string
	City    string
	Zip     string
}

// Item is an order line. PriceAtPurchase is the catalog price when the order
// was placed.
type Item struct {
	ProductID       string
	Title           string
	Quantity        int
	PriceAtPurchase decimal.Decimal
}

// LineTotal returns price times quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ListFilter narrows an admin order listing.
type ListFilter struct {
	// Status restricts results to one status when non-empty.
	Status Status
	// Search matches an order ID prefix or a customer name substring.
	Search string
	Limit  int
	Offset int
}

// Repository defines persistence operations for orders. Implementations
// return statuses already normalized.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, error)
	// UpdateStatus moves the order from status from to status to only if its
	// stored status still equals from. It returns ErrNotFound for an unknown
	// ID and ErrStatusConflict when the stored status differs.
	UpdateStatus(ctx context.Context, id string, from, to Status) (*Order, error)
}

// Publisher receives order lifecycle notifications after they are committed.
type Publisher interface {
	OrderPlaced(ctx context.Context, o *Order) error
	StatusChanged(ctx context.Context, o *Order, from Status) error
}
