// Package events publishes order lifecycle events.
package events

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/shopkart/internal/domain/order"
)

// Event types, also sent as the "event-type" message header.
const (
	TypeOrderPlaced   = "order.placed"
	TypeStatusChanged = "order.status_changed"
)

// encodeOrderPlaced renders the order.placed payload.
func encodeOrderPlaced(e *jx.Encoder, o *order.Order, at time.Time) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(TypeOrderPlaced) })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(o.Status.String()) })
		e.Field("email", func(e *jx.Encoder) { e.Str(o.Customer.Email) })
		e.Field("subtotal", func(e *jx.Encoder) { e.Str(o.Subtotal.StringFixed(2)) })
		e.Field("discount_amount", func(e *jx.Encoder) { e.Str(o.Discount.StringFixed(2)) })
		e.Field("shipping", func(e *jx.Encoder) { e.Str(o.Shipping.StringFixed(2)) })
		e.Field("total_amount", func(e *jx.Encoder) { e.Str(o.Total.StringFixed(2)) })
		if o.CouponCode != "" {
			e.Field("coupon_code", func(e *jx.Encoder) { e.Str(o.CouponCode) })
		}
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("price_at_purchase", func(e *jx.Encoder) { e.Str(it.PriceAtPurchase.StringFixed(2)) })
					})
				}
			})
		})
		e.Field("occurred_at", func(e *jx.Encoder) { e.Str(at.UTC().Format(time.RFC3339Nano)) })
	})
}

// encodeStatusChanged renders the order.status_changed payload.
func encodeStatusChanged(e *jx.Encoder, o *order.Order, from order.Status, at time.Time) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(TypeStatusChanged) })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("from", func(e *jx.Encoder) { e.Str(from.String()) })
		e.Field("to", func(e *jx.Encoder) { e.Str(o.Status.String()) })
		e.Field("occurred_at", func(e *jx.Encoder) { e.Str(at.UTC().Format(time.RFC3339Nano)) })
	})
}
