package events

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/xenking/shopkart/internal/domain/order"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func newTestPublisher(w Writer) (*Publisher, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	p := NewPublisher(w, "orders", tp, propagation.TraceContext{})
	p.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	return p, rec
}

func testOrder() *order.Order {
	return &order.Order{
		ID:         "ord-1",
		Customer:   order.Customer{Name: "Asha", Email: "asha@example.com"},
		Items:      []order.Item{{ProductID: "p1", Title: "Kettle", Quantity: 2, PriceAtPurchase: decimal.RequireFromString("600")}},
		Subtotal:   decimal.RequireFromString("1200"),
		Discount:   decimal.RequireFromString("200"),
		Shipping:   decimal.Zero,
		Total:      decimal.RequireFromString("1000"),
		CouponCode: "WELCOME20",
		Status:     order.StatusPending,
	}
}

func header(msg kafka.Message, key string) string {
	return headerCarrier{msg: &msg}.Get(key)
}

func TestPublisher_OrderPlaced(t *testing.T) {
	w := &fakeWriter{}
	p, rec := newTestPublisher(w)

	require.NoError(t, p.OrderPlaced(context.Background(), testOrder()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "ord-1", string(msg.Key))
	assert.Equal(t, TypeOrderPlaced, header(msg, "event-type"))
	assert.NotEmpty(t, header(msg, "traceparent"))

	fields := map[string]string{}
	var items int
	err := jx.DecodeBytes(msg.Value).Obj(func(d *jx.Decoder, key string) error {
		if key == "items" {
			return d.Arr(func(d *jx.Decoder) error {
				items++
				return d.Skip()
			})
		}
		v, err := d.Str()
		fields[key] = v
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, items)
	assert.Equal(t, map[string]string{
		"type":            TypeOrderPlaced,
		"order_id":        "ord-1",
		"status":          "pending",
		"email":           "asha@example.com",
		"subtotal":        "1200.00",
		"discount_amount": "200.00",
		"shipping":        "0.00",
		"total_amount":    "1000.00",
		"coupon_code":     "WELCOME20",
		"occurred_at":     "2026-03-01T10:00:00Z",
	}, fields)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "send orders", spans[0].Name())
}

func TestPublisher_StatusChanged(t *testing.T) {
	w := &fakeWriter{}
	p, _ := newTestPublisher(w)

	o := testOrder()
	o.Status = order.StatusShipped
	require.NoError(t, p.StatusChanged(context.Background(), o, order.StatusProcessing))
	require.Len(t, w.msgs, 1)

	assert.Equal(t, TypeStatusChanged, header(w.msgs[0], "event-type"))
	assert.JSONEq(t,
		`{"type":"order.status_changed","order_id":"ord-1","from":"processing","to":"shipped","occurred_at":"2026-03-01T10:00:00Z"}`,
		string(w.msgs[0].Value))
}

func TestPublisher_WriteFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	p, rec := newTestPublisher(w)

	err := p.OrderPlaced(context.Background(), testOrder())
	require.ErrorContains(t, err, "broker unavailable")

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	p, _ := newTestPublisher(w)
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestHeaderCarrier(t *testing.T) {
	msg := kafka.Message{}
	c := headerCarrier{msg: &msg}

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("a", "3")

	assert.Equal(t, "3", c.Get("a"))
	assert.Equal(t, "", c.Get("missing"))
	assert.Equal(t, []string{"a", "b"}, c.Keys())
	assert.Len(t, msg.Headers, 2)
}

func TestNop(t *testing.T) {
	var p order.Publisher = Nop{}
	assert.NoError(t, p.OrderPlaced(context.Background(), testOrder()))
	assert.NoError(t, p.StatusChanged(context.Background(), testOrder(), order.StatusPending))
}

func TestPing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.ErrorContains(t, Ping(Config{})(ctx), "no brokers configured")
	require.ErrorContains(t, Ping(Config{Brokers: []string{"127.0.0.1:1"}})(ctx), "dial kafka")
}
