package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/shopkart/internal/domain/auth"
	"github.com/xenking/shopkart/internal/domain/coupon"
	"github.com/xenking/shopkart/internal/domain/order"
	"github.com/xenking/shopkart/internal/domain/settings"
)

func TestMetrics_CouponValidations(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	validator := &fakeValidator{
		err: &coupon.Rejection{Reason: coupon.ErrNotFound, Code: "NOPE", Message: "Coupon 'NOPE' is invalid."},
	}
	h, err := New(Config{}, Deps{Validator: validator, Settings: &fakeSettings{}}, mp)
	require.NoError(t, err)
	router := h.Routes()

	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/coupon/validate", strings.NewReader(`{"code":"nope","subtotal":10}`))
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "shopkart.coupon.validations" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			require.Len(t, sum.DataPoints, 1)
			dp := sum.DataPoints[0]
			assert.Equal(t, int64(2), dp.Value)
			outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
			assert.Equal(t, "rejected", outcome.AsString())
			found = true
		}
	}
	assert.True(t, found, "coupon validation counter not recorded")
}

func TestMetrics_StatusChangeLabelsAreBounded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	orders := &fakeOrders{orders: map[string]*order.Order{"ord-1": testOrder("ord-1", order.StatusPending)}}
	h, err := New(Config{}, Deps{
		Orders:   orders,
		Settings: &fakeSettings{st: settings.Defaults()},
		Auth:     &fakeAuth{scopes: []string{auth.ScopeOrders}},
	}, mp)
	require.NoError(t, err)
	router := h.Routes()

	for _, body := range []string{`{"status":"lost-in-transit"}`, `{"status":"x9"}`, `{"status":" Shipped "}`} {
		req := httptest.NewRequest(http.MethodPost, "/admin/order/ord-1/status", strings.NewReader(body))
		req.Header.Set(APIKeyHeader, adminKey)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "shopkart.orders.status_changes" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				to, _ := dp.Attributes.Value("to")
				outcome, _ := dp.Attributes.Value("outcome")
				got[to.AsString()+"/"+outcome.AsString()] = dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"unknown/refused": 2, "shipped/changed": 1}, got)
}

func TestAdminUpdateOrderStatus_LogsKeyName(t *testing.T) {
	env := newTestEnv(t)
	env.orders.orders["ord-1"] = testOrder("ord-1", order.StatusPending)
	core, logs := observer.New(zap.InfoLevel)

	req := httptest.NewRequest(http.MethodPost, "/admin/order/ord-1/status", strings.NewReader(`{"status":"processing"}`))
	req.Header.Set(APIKeyHeader, adminKey)
	req = req.WithContext(zctx.Base(req.Context(), zap.New(core)))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	entries := logs.FilterMessage("Order status changed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "ord-1", fields["order_id"])
	assert.Equal(t, "processing", fields["status"])
	assert.Equal(t, "Back office", fields["changed_by"])
	assert.Equal(t, "admin", fields["api_key_id"])
}
