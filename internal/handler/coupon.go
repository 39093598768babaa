package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/shopkart/internal/domain/coupon"
)

// ValidateCoupon serves POST /coupon/validate {code, subtotal}.
//
// Rejections answer 422 with the customer-facing message, lookup failures
// answer 503 so clients can retry.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		code     string
		subtotal decimal.Decimal
	)
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = d.Str()
		case "subtotal":
			subtotal, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	discount, err := h.Validator.Validate(ctx, code, subtotal)
	if err != nil {
		var rej *coupon.Rejection
		switch {
		case errors.As(err, &rej):
			h.metrics.couponValidated(ctx, "rejected")
			zctx.From(ctx).Debug("Coupon rejected", zap.String("code", rej.Code), zap.Error(rej.Reason))
			writeCouponFailure(w, http.StatusUnprocessableEntity, rej.Message)
		case errors.Is(err, coupon.ErrNegativeSubtotal):
			writeCouponFailure(w, http.StatusBadRequest, err.Error())
		default:
			h.metrics.couponValidated(ctx, "unavailable")
			zctx.From(ctx).Error("Coupon validation failed", zap.Error(err))
			writeCouponFailure(w, http.StatusServiceUnavailable, "Coupon service is unavailable, please try again.")
		}
		return
	}

	h.metrics.couponValidated(ctx, "accepted")
	st := h.storeSettings(ctx)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("success", func(e *jx.Encoder) { e.Bool(true) })
			e.Field("discount", func(e *jx.Encoder) { encodeDecimal(e, discount.Amount) })
			e.Field("code", func(e *jx.Encoder) { e.Str(discount.Code) })
			e.Field("type", func(e *jx.Encoder) { e.Str(discount.Type.Label()) })
			e.Field("display", func(e *jx.Encoder) { e.Str(st.FormatMoney(discount.Amount.Neg())) })
		})
	})
}

func writeCouponFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("success", func(e *jx.Encoder) { e.Bool(false) })
			e.Field("error", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}
