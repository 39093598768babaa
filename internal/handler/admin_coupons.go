package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/shopkart/internal/domain/coupon"
)

// AdminListCoupons serves GET /admin/coupons.
func (h *Handler) AdminListCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	coupons, err := h.Coupons.List(ctx)
	if err != nil {
		internalError(ctx, w, err)
		return
	}
	now := time.Now()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range coupons {
				encodeCoupon(e, &coupons[i], now)
			}
		})
	})
}

// AdminCreateCoupon serves POST /admin/coupons.
func (h *Handler) AdminCreateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in coupon.CreateInput
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			in.Code, err = d.Str()
		case "discount_type":
			in.DiscountType, err = d.Str()
		case "discount_value":
			in.Value, err = decodeDecimal(d)
		case "min_order_value":
			in.MinOrderValue, err = decodeDecimal(d)
		case "max_discount":
			in.MaxDiscount, err = decodeNullDecimal(d)
		case "valid_until":
			in.ValidUntil, err = decodeTime(d)
		case "usage_limit":
			in.UsageLimit, err = decodeOptInt(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.Coupons.Create(ctx, in)
	switch {
	case errors.Is(err, coupon.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, coupon.ErrDuplicateCode):
		writeError(w, http.StatusConflict, "Coupon code already exists.")
		return
	case err != nil:
		internalError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCoupon(e, c, time.Now()) })
}

// AdminSetCouponActive serves POST /admin/coupon/{code}/active {active}.
func (h *Handler) AdminSetCouponActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		active bool
		seen   bool
	)
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "active" {
			return d.Skip()
		}
		seen = true
		var err error
		active, err = d.Bool()
		return err
	})
	if err == nil && !seen {
		err = errors.New("active is required")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.Coupons.SetActive(ctx, chi.URLParam(r, "code"), active); err != nil {
		writeCouponAdminError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminDeleteCoupon serves DELETE /admin/coupon/{code}.
func (h *Handler) AdminDeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.Coupons.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		writeCouponAdminError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminGenerateCouponCode serves POST /admin/coupons/generate.
func (h *Handler) AdminGenerateCouponCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.Coupons.GenerateCode(r.Context())
	if err != nil {
		internalError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Str(code) })
		})
	})
}

func writeCouponAdminError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, coupon.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, coupon.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		internalError(r.Context(), w, err)
	}
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon, now time.Time) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Str(c.Code) })
		e.Field("discount_type", func(e *jx.Encoder) { e.Str(string(c.DiscountType)) })
		e.Field("discount_value", func(e *jx.Encoder) {
			if c.Value.Valid {
				encodeDecimal(e, c.Value.Decimal)
				return
			}
			e.Null()
		})
		e.Field("min_order_value", func(e *jx.Encoder) { encodeDecimal(e, c.MinOrderValue) })
		e.Field("max_discount", func(e *jx.Encoder) {
			if c.MaxDiscount.Valid {
				encodeDecimal(e, c.MaxDiscount.Decimal)
				return
			}
			e.Null()
		})
		e.Field("valid_until", func(e *jx.Encoder) {
			if c.ValidUntil != nil {
				encodeTime(e, *c.ValidUntil)
				return
			}
			e.Null()
		})
		e.Field("is_active", func(e *jx.Encoder) { e.Bool(c.IsActive) })
		e.Field("expired", func(e *jx.Encoder) { e.Bool(c.ValidUntil != nil && !now.Before(*c.ValidUntil)) })
		e.Field("usage_limit", func(e *jx.Encoder) {
			if c.UsageLimit != nil {
				e.Int(*c.UsageLimit)
				return
			}
			e.Null()
		})
		e.Field("times_used", func(e *jx.Encoder) { e.Int(c.TimesUsed) })
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, c.CreatedAt) })
	})
}
