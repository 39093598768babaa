package order

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/shopkart/internal/domain/coupon"
)

// CartItem is one product in a cart. Price is the price shown to the
// customer; checkout re-reads it from the catalog.
type CartItem struct {
	ProductID string
	Title     string
	Price     decimal.Decimal
	Quantity  int
}

// Cart is the customer's pending purchase and applied coupon. It is plain
// state owned by the caller and carried into Service.PlaceOrder.
type Cart struct {
	Items  []CartItem
	Coupon *coupon.Discount
}

// Add appends item with quantity floored at 1. A product can be added once.
func (c *Cart) Add(item CartItem) error {
	if c.index(item.ProductID) >= 0 {
		return ErrItemInCart
	}
	item.Quantity = max(item.Quantity, 1)
	c.Items = append(c.Items, item)
	return nil
}

// Remove drops the product from the cart and reports whether it was present.
func (c *Cart) Remove(productID string) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return true
}

// UpdateQuantity sets the quantity of a product, never below 1.
func (c *Cart) UpdateQuantity(productID string, quantity int) error {
	i := c.index(productID)
	if i < 0 {
		return ErrItemNotInCart
	}
	c.Items[i].Quantity = max(quantity, 1)
	return nil
}

// Subtotal sums price times quantity over all items.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.Items {
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// ApplyCoupon validates code against the current subtotal and attaches the
// resulting discount. On any error the cart is left untouched.
func (c *Cart) ApplyCoupon(ctx context.Context, v coupon.Validator, code string) error {
	d, err := v.Validate(ctx, code, c.Subtotal())
	if err != nil {
		return err
	}
	c.Coupon = d
	return nil
}

// RemoveCoupon detaches the applied coupon, if any.
func (c *Cart) RemoveCoupon() {
	c.Coupon = nil
}

// Clear empties the cart and drops the coupon.
func (c *Cart) Clear() {
	c.Items = nil
	c.Coupon = nil
}

// CouponCode returns the code of the applied coupon or "".
func (c *Cart) CouponCode() string {
	if c.Coupon == nil {
		return ""
	}
	return c.Coupon.Code
}

func (c *Cart) index(productID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}
