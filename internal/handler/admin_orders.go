package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shopkart/internal/domain/order"
)

// AdminListOrders serves GET /admin/orders?status=&q=&limit=&offset=.
func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	f := order.ListFilter{
		Status: order.Status(q.Get("status")),
		Search: q.Get("q"),
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if raw := q.Get(name); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid "+name)
				return
			}
			*dst = v
		}
	}

	orders, err := h.Orders.List(ctx, f)
	switch {
	case errors.Is(err, order.ErrUnknownStatus):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		internalError(ctx, w, err)
		return
	}

	st := h.storeSettings(ctx)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				encodeOrder(e, &orders[i], st, true)
			}
		})
	})
}

// AdminGetOrder serves GET /admin/order/{id}.
func (h *Handler) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o, st, true) })
}

// AdminUpdateOrderStatus serves POST /admin/order/{id}/status {status}.
//
// The response carries the stored order; on any error nothing was changed.
func (h *Handler) AdminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var target string
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		target, err = d.Str()
		return err
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Metric label: bounded to the known statuses.
	to := "unknown"
	if st, perr := order.ParseStatus(target); perr == nil {
		to = st.String()
	}

	o, err := h.Orders.UpdateStatus(ctx, chi.URLParam(r, "id"), target)
	if err != nil {
		var status int
		switch {
		case errors.Is(err, order.ErrUnknownStatus):
			status = http.StatusBadRequest
		case errors.Is(err, order.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, order.ErrIllegalTransition):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, order.ErrStatusConflict):
			status = http.StatusConflict
		default:
			h.metrics.statusChanged(ctx, to, "error")
			internalError(ctx, w, err)
			return
		}
		h.metrics.statusChanged(ctx, to, "refused")
		writeError(w, status, err.Error())
		return
	}

	h.metrics.statusChanged(ctx, to, "changed")
	if key, ok := APIKeyFromContext(ctx); ok {
		zctx.From(ctx).Info("Order status changed",
			zap.String("order_id", o.ID),
			zap.Stringer("status", o.Status),
			zap.String("changed_by", key.Name),
		)
	}
	st := h.storeSettings(ctx)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o, st, true) })
}
