package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/shopkart/internal/domain/coupon"
	"github.com/xenking/shopkart/internal/domain/product"
	"github.com/xenking/shopkart/internal/domain/settings"
)

// SettingsReader provides the current store settings.
type SettingsReader interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// Service encapsulates checkout business logic.
type Service struct {
	products  product.Repository
	coupons   coupon.Validator
	orders    Repository
	settings  SettingsReader
	shipping  settings.ShippingPolicy
	publisher Publisher
	now       func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	coupons coupon.Validator,
	orders Repository,
	store SettingsReader,
	shipping settings.ShippingPolicy,
	publisher Publisher,
) *Service {
	return &Service{
		products:  products,
		coupons:   coupons,
		orders:    orders,
		settings:  store,
		shipping:  shipping,
		publisher: publisher,
		now:       time.Now,
	}
}

// PlaceOrder turns cart into a pending order for customer.
//
// Prices come from the live catalog, the cart's coupon is validated again
// against the catalog subtotal, and the order is persisted before cart is
// cleared. On error cart is left as it was.
func (s *Service) PlaceOrder(ctx context.Context, customer Customer, cart *Cart) (*Order, error) {
	if cart == nil || len(cart.Items) == 0 {
		return nil, ErrEmptyItems
	}
	customer = customer.normalize()
	if err := customer.validate(); err != nil {
		return nil, err
	}

	st, err := s.settings.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get settings")
	}
	if st.MaintenanceMode {
		return nil, ErrMaintenance
	}

	ids := make([]string, len(cart.Items))
	for i, item := range cart.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	// Batch fetch all products in a single query.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	items := make([]Item, 0, len(cart.Items))
	subtotal := decimal.Zero
	for _, ci := range cart.Items {
		p, ok := productMap[ci.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: ci.ProductID}
		}
		if !p.InStock(ci.Quantity) {
			return nil, &OutOfStockError{ProductID: p.ID, Available: p.Stock}
		}
		it := Item{
			ProductID:       p.ID,
			Title:           p.Title,
			Quantity:        ci.Quantity,
			PriceAtPurchase: p.Price,
		}
		items = append(items, it)
		subtotal = subtotal.Add(it.LineTotal())
	}

	discount := decimal.Zero
	code := cart.CouponCode()
	if code != "" {
		d, err := s.coupons.Validate(ctx, code, subtotal)
		if err != nil {
			return nil, fmt.Errorf("validate coupon: %w", err)
		}
		discount = d.Amount
		code = d.Code
	}

	shipping := s.shipping.Fee(subtotal)
	total := subtotal.Sub(discount).Add(shipping)
	if total.IsNegative() {
		total = decimal.Zero
	}

	now := s.now().UTC()
	o := &Order{
		ID:         uuid.New().String(),
		Customer:   customer,
		Items:      items,
		Subtotal:   subtotal.Round(2),
		Discount:   discount.Round(2),
		Shipping:   shipping.Round(2),
		Total:      total.Round(2),
		CouponCode: code,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := s.publisher.OrderPlaced(ctx, o); err != nil {
		zctx.From(ctx).Warn("Publish order placed",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}

	cart.Clear()
	return o, nil
}

func (c Customer) normalize() Customer {
	return Customer{
		Name:    strings.TrimSpace(c.Name),
		Email:   strings.TrimSpace(c.Email),
		Address: strings.TrimSpace(c.Address),
		City:    strings.TrimSpace(c.City),
		Zip:     strings.TrimSpace(c.Zip),
	}
}

func (c Customer) validate() error {
	switch {
	case c.Name == "":
		return errors.Wrap(ErrInvalidCustomer, "name is required")
	case !settings.ValidEmail(c.Email):
		return errors.Wrap(ErrInvalidCustomer, "invalid email address")
	case c.Address == "", c.City == "", c.Zip == "":
		return errors.Wrap(ErrInvalidCustomer, "address, city and zip are required")
	}
	return nil
}
