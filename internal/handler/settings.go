package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/shopkart/internal/domain/settings"
)

// GetPublicSettings serves GET /settings with the fields the storefront
// needs.
func (h *Handler) GetPublicSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.Settings.Get(r.Context())
	if err != nil {
		internalError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field(settings.KeyStoreName, func(e *jx.Encoder) { e.Str(st.StoreName) })
			e.Field(settings.KeyStoreCurrency, func(e *jx.Encoder) { e.Str(st.Currency) })
			e.Field(settings.KeySupportEmail, func(e *jx.Encoder) { e.Str(st.SupportEmail) })
			e.Field(settings.KeyMaintenanceMode, func(e *jx.Encoder) { e.Bool(st.MaintenanceMode) })
		})
	})
}

// AdminGetSettings serves GET /admin/settings.
func (h *Handler) AdminGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.Settings.Get(r.Context())
	if err != nil {
		internalError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSettings(e, *st) })
}

// AdminSaveSettings serves PUT /admin/settings. Keys missing from the body
// keep their current value.
func (h *Handler) AdminSaveSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	current, err := h.Settings.Get(ctx)
	if err != nil {
		internalError(ctx, w, err)
		return
	}
	values := current.ToMap()
	err = decodeObject(r, func(d *jx.Decoder, key string) error {
		if _, ok := values[key]; !ok {
			return d.Skip()
		}
		switch d.Next() {
		case jx.Bool:
			v, err := d.Bool()
			values[key] = strconv.FormatBool(v)
			return err
		case jx.String:
			v, err := d.Str()
			values[key] = v
			return err
		default:
			return errors.Errorf("%s: expected a string", key)
		}
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st := settings.FromMap(values)
	// FromMap restores defaults for blanks; an explicit blank name must fail.
	if values[settings.KeyStoreName] == "" {
		st.StoreName = ""
	}
	if err := h.Settings.Save(ctx, st); err != nil {
		if errors.Is(err, settings.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		internalError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSettings(e, st) })
}

func encodeSettings(e *jx.Encoder, st settings.Settings) {
	e.Obj(func(e *jx.Encoder) {
		e.Field(settings.KeyStoreName, func(e *jx.Encoder) { e.Str(st.StoreName) })
		e.Field(settings.KeySupportEmail, func(e *jx.Encoder) { e.Str(st.SupportEmail) })
		e.Field(settings.KeyStorePhone, func(e *jx.Encoder) { e.Str(st.Phone) })
		e.Field(settings.KeyStoreCurrency, func(e *jx.Encoder) { e.Str(st.Currency) })
		e.Field(settings.KeyStoreTaxID, func(e *jx.Encoder) { e.Str(st.TaxID) })
		e.Field(settings.KeyStoreAddress, func(e *jx.Encoder) { e.Str(st.Address) })
		e.Field(settings.KeyMaintenanceMode, func(e *jx.Encoder) { e.Bool(st.MaintenanceMode) })
	})
}
