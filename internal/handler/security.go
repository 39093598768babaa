package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/shopkart/internal/domain/auth"
)

// APIKeyHeader carries the admin API key.
const APIKeyHeader = "api_key"

type apiKeyCtxKey struct{}

// APIKeyFromContext returns the authenticated key of an admin request.
func APIKeyFromContext(ctx context.Context) (*auth.APIKeyInfo, bool) {
	info, ok := ctx.Value(apiKeyCtxKey{}).(*auth.APIKeyInfo)
	return info, ok
}

// RequireScope authenticates the api_key header and checks that the key
// carries scope.
func (h *Handler) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			info, err := h.Auth.Authenticate(ctx, r.Header.Get(APIKeyHeader))
			switch {
			case errors.Is(err, auth.ErrUnauthorized):
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			case err != nil:
				zctx.From(ctx).Error("Authenticate", zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "authentication unavailable")
				return
			case !info.HasScope(scope):
				writeError(w, http.StatusForbidden, auth.ErrForbidden.Error())
				return
			}

			trace.SpanFromContext(ctx).SetAttributes(attribute.String("shopkart.api_key.id", info.ID))
			ctx = zctx.With(ctx, zap.String("api_key_id", info.ID))
			ctx = context.WithValue(ctx, apiKeyCtxKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
