package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	Title       string
	Description string
	Price       decimal.Decimal
	Category    string
	ImageURL    string
	Stock       int
	IsFeatured  bool
}

// InStock reports whether at least qty units are available.
func (p Product) InStock(qty int) bool {
	return p.Stock >= qty
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
