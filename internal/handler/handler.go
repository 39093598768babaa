// Package handler exposes the storefront and back-office HTTP API.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/shopkart/internal/domain/auth"
	"github.com/xenking/shopkart/internal/domain/coupon"
	"github.com/xenking/shopkart/internal/domain/order"
	"github.com/xenking/shopkart/internal/domain/product"
	"github.com/xenking/shopkart/internal/domain/settings"
)

// Checkout places orders.
type Checkout interface {
	PlaceOrder(ctx context.Context, customer order.Customer, cart *order.Cart) (*order.Order, error)
}

// Orders is the back-office order service.
type Orders interface {
	List(ctx context.Context, f order.ListFilter) ([]order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	UpdateStatus(ctx context.Context, id, target string) (*order.Order, error)
}

// Coupons is the back-office coupon service.
type Coupons interface {
	List(ctx context.Context) ([]coupon.Coupon, error)
	Create(ctx context.Context, in coupon.CreateInput) (*coupon.Coupon, error)
	SetActive(ctx context.Context, code string, active bool) error
	Delete(ctx context.Context, code string) error
	GenerateCode(ctx context.Context) (string, error)
}

// Settings reads and stores the store settings.
type Settings interface {
	Get(ctx context.Context) (*settings.Settings, error)
	Save(ctx context.Context, st settings.Settings) error
}

// Authenticator resolves an admin API key.
type Authenticator interface {
	Authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	ImageBaseURL string
}

// Deps lists the services the Handler delegates to.
type Deps struct {
	Products  product.Repository
	Validator coupon.Validator
	Checkout  Checkout
	Orders    Orders
	Coupons   Coupons
	Settings  Settings
	Auth      Authenticator
}

// Handler serves the JSON API.
type Handler struct {
	Deps
	imageBaseURL string
	metrics      *metrics
}

// New constructs a Handler. mp may be a no-op provider.
func New(cfg Config, deps Deps, mp metric.MeterProvider) (*Handler, error) {
	m, err := newMetrics(mp)
	if err != nil {
		return nil, errors.Wrap(err, "init metrics")
	}
	return &Handler{
		Deps:         deps,
		imageBaseURL: cfg.ImageBaseURL,
		metrics:      m,
	}, nil
}

// Routes returns the API router, meant to be mounted under /api.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/products", h.ListProducts)
	r.Get("/product/{id}", h.GetProduct)
	r.Post("/coupon/validate", h.ValidateCoupon)
	r.Post("/order", h.PlaceOrder)
	r.Get("/order/{id}", h.GetOrder)
	r.Get("/settings", h.GetPublicSettings)

	r.Route("/admin", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.RequireScope(auth.ScopeOrders))
			r.Get("/orders", h.AdminListOrders)
			r.Get("/order/{id}", h.AdminGetOrder)
			r.Post("/order/{id}/status", h.AdminUpdateOrderStatus)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.RequireScope(auth.ScopeCoupons))
			r.Get("/coupons", h.AdminListCoupons)
			r.Post("/coupons", h.AdminCreateCoupon)
			r.Post("/coupons/generate", h.AdminGenerateCouponCode)
			r.Post("/coupon/{code}/active", h.AdminSetCouponActive)
			r.Delete("/coupon/{code}", h.AdminDeleteCoupon)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.RequireScope(auth.ScopeSettings))
			r.Get("/settings", h.AdminGetSettings)
			r.Put("/settings", h.AdminSaveSettings)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// storeSettings returns the current settings, falling back to defaults when
// they cannot be read. Only used for display formatting.
func (h *Handler) storeSettings(ctx context.Context) settings.Settings {
	st, err := h.Settings.Get(ctx)
	if err != nil {
		zctx.From(ctx).Warn("Settings unavailable, using defaults", zap.Error(err))
		return settings.Defaults()
	}
	return *st
}
