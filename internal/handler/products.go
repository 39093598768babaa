package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/shopkart/internal/domain/product"
)

// ListProducts serves GET /products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Products.List(r.Context())
	if err != nil {
		internalError(r.Context(), w, errors.Wrap(err, "list products"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, p := range products {
				h.encodeProduct(e, p)
			}
		})
	})
}

// GetProduct serves GET /product/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.GetByID(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		internalError(r.Context(), w, errors.Wrap(err, "get product"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, *p) })
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("title", func(e *jx.Encoder) { e.Str(p.Title) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("price", func(e *jx.Encoder) { encodeDecimal(e, p.Price) })
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		e.Field("image_url", func(e *jx.Encoder) { e.Str(h.imageURL(p.ImageURL)) })
		e.Field("stock", func(e *jx.Encoder) { e.Int(p.Stock) })
		e.Field("is_featured", func(e *jx.Encoder) { e.Bool(p.IsFeatured) })
	})
}

// imageURL prefixes relative paths with the configured base URL.
func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || path == "" ||
		strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(h.imageBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
