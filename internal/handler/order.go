package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/shopkart/internal/domain/coupon"
	"github.com/xenking/shopkart/internal/domain/order"
	"github.com/xenking/shopkart/internal/domain/settings"
)

type placeOrderRequest struct {
	Customer   order.Customer
	Items      []order.CartItem
	CouponCode string
}

func (req *placeOrderRequest) decode(r *http.Request) error {
	return decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "customer":
			return d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				c := &req.Customer
				switch key {
				case "name":
					c.Name, err = d.Str()
				case "email":
					c.Email, err = d.Str()
				case "address":
					c.Address, err = d.Str()
				case "city":
					c.City, err = d.Str()
				case "zip", "zip_code":
					c.Zip, err = d.Str()
				default:
					err = d.Skip()
				}
				return err
			})
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var it order.CartItem
				err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "productId", "product_id":
						it.ProductID, err = d.Str()
					case "quantity":
						it.Quantity, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				})
				req.Items = append(req.Items, it)
				return err
			})
		case "couponCode", "coupon_code":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Str()
			req.CouponCode = v
			return err
		default:
			return d.Skip()
		}
	})
}

// cart rebuilds the customer's cart. Lines for the same product are merged
// once each has been checked on its own.
// The coupon is attached by code only; checkout validates it again.
func (req *placeOrderRequest) cart() (*order.Cart, error) {
	cart := &order.Cart{}
	index := make(map[string]int, len(req.Items))
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return nil, &order.InvalidQuantityError{ProductID: it.ProductID}
		}
		if i, ok := index[it.ProductID]; ok {
			cart.Items[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(cart.Items)
		cart.Items = append(cart.Items, it)
	}
	if code := coupon.NormalizeCode(req.CouponCode); code != "" {
		cart.Coupon = &coupon.Discount{Code: code}
	}
	return cart, nil
}

// PlaceOrder serves POST /order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req placeOrderRequest
	if err := req.decode(r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var o *order.Order
	cart, err := req.cart()
	if err == nil {
		o, err = h.Checkout.PlaceOrder(ctx, req.Customer, cart)
	}
	if err != nil {
		status, msg := placeOrderError(err)
		if status == http.StatusInternalServerError {
			internalError(ctx, w, err)
			return
		}
		writeError(w, status, msg)
		return
	}

	h.metrics.orderPlaced(ctx, o.CouponCode != "")
	st := h.storeSettings(ctx)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o, st, false) })
}

// placeOrderError maps checkout errors to a status and client message.
func placeOrderError(err error) (int, string) {
	var (
		rej        *coupon.Rejection
		quantity   *order.InvalidQuantityError
		notFound   *order.ProductNotFoundError
		outOfStock *order.OutOfStockError
	)
	switch {
	case errors.Is(err, order.ErrEmptyItems), errors.Is(err, order.ErrInvalidCustomer):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &rej):
		return http.StatusUnprocessableEntity, rej.Message
	case errors.As(err, &quantity), errors.As(err, &notFound), errors.As(err, &outOfStock):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, order.ErrMaintenance):
		return http.StatusServiceUnavailable, "The store is under maintenance. Please try again later."
	case errors.Is(err, coupon.ErrUnavailable):
		return http.StatusServiceUnavailable, "Coupon service is unavailable, please try again."
	default:
		return http.StatusInternalServerError, ""
	}
}

// GetOrder serves GET /order/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.Orders.Get(ctx, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		internalError(ctx, w, err)
		return
	}
	st := h.storeSettings(ctx)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o, st, false) })
}

// encodeOrder writes o. The back-office view also lists the statuses o may
// move to next.
func encodeOrder(e *jx.Encoder, o *order.Order, st settings.Settings, admin bool) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(o.Status.String()) })
		e.Field("customer", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("name", func(e *jx.Encoder) { e.Str(o.Customer.Name) })
				e.Field("email", func(e *jx.Encoder) { e.Str(o.Customer.Email) })
				e.Field("address", func(e *jx.Encoder) { e.Str(o.Customer.Address) })
				e.Field("city", func(e *jx.Encoder) { e.Str(o.Customer.City) })
				e.Field("zip", func(e *jx.Encoder) { e.Str(o.Customer.Zip) })
			})
		})
		if o.Items != nil {
			e.Field("items", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, it := range o.Items {
						e.Obj(func(e *jx.Encoder) {
							e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
							e.Field("title", func(e *jx.Encoder) { e.Str(it.Title) })
							e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
							e.Field("price_at_purchase", func(e *jx.Encoder) { encodeDecimal(e, it.PriceAtPurchase) })
						})
					}
				})
			})
		}
		e.Field("subtotal", func(e *jx.Encoder) { encodeDecimal(e, o.Subtotal) })
		e.Field("discount_amount", func(e *jx.Encoder) { encodeDecimal(e, o.Discount) })
		e.Field("shipping", func(e *jx.Encoder) { encodeDecimal(e, o.Shipping) })
		e.Field("total_amount", func(e *jx.Encoder) { encodeDecimal(e, o.Total) })
		e.Field("total_display", func(e *jx.Encoder) { e.Str(st.FormatMoney(o.Total)) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(st.Currency) })
		if o.CouponCode != "" {
			e.Field("coupon_code", func(e *jx.Encoder) { e.Str(o.CouponCode) })
		}
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
		e.Field("updated_at", func(e *jx.Encoder) { encodeTime(e, o.UpdatedAt) })
		if admin {
			e.Field("allowed_statuses", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, s := range o.Status.Targets() {
						e.Str(s.String())
					}
				})
			})
		}
	})
}
