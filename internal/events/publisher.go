package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/shopkart/internal/domain/order"
)

// Config configures the Kafka publisher.
type Config struct {
	Brokers []string      `usage:"Kafka brokers; events are disabled when empty"`
	Topic   string        `default:"shopkart.orders" usage:"Topic for order events"`
	Timeout time.Duration `default:"5s" usage:"Write timeout"`
}

// Enabled reports whether brokers are configured.
func (c Config) Enabled() bool { return len(c.Brokers) > 0 }

// Writer is the subset of *kafka.Writer used by Publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ order.Publisher = (*Publisher)(nil)

// Publisher writes order events to Kafka keyed by order ID, so events of one
// order stay in one partition.
type Publisher struct {
	w          Writer
	topic      string
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	now        func() time.Time
}

// NewWriter returns a Kafka writer for cfg.
func NewWriter(cfg Config) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           cfg.Timeout,
		RequiredAcks:           kafka.RequireOne,
	}
}

// Ping returns a readiness check that dials any configured broker.
func Ping(cfg Config) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		err := errors.New("no brokers configured")
		for _, broker := range cfg.Brokers {
			var conn *kafka.Conn
			if conn, err = kafka.DialContext(ctx, "tcp", broker); err == nil {
				return conn.Close()
			}
		}
		return errors.Wrap(err, "dial kafka")
	}
}

// NewPublisher returns a Publisher writing to w.
func NewPublisher(w Writer, topic string, tp trace.TracerProvider, propagator propagation.TextMapPropagator) *Publisher {
	return &Publisher{
		w:          w,
		topic:      topic,
		tracer:     tp.Tracer("shopkart/events"),
		propagator: propagator,
		now:        time.Now,
	}
}

// OrderPlaced publishes an order.placed event.
func (p *Publisher) OrderPlaced(ctx context.Context, o *order.Order) error {
	var e jx.Encoder
	encodeOrderPlaced(&e, o, p.now())
	return p.publish(ctx, TypeOrderPlaced, o.ID, e.Bytes())
}

// StatusChanged publishes an order.status_changed event.
func (p *Publisher) StatusChanged(ctx context.Context, o *order.Order, from order.Status) error {
	var e jx.Encoder
	encodeStatusChanged(&e, o, from, p.now())
	return p.publish(ctx, TypeStatusChanged, o.ID, e.Bytes())
}

func (p *Publisher) publish(ctx context.Context, eventType, key string, value []byte) error {
	ctx, span := p.tracer.Start(ctx, "send "+p.topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("send"),
			semconv.MessagingOperationTypePublish,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingKafkaMessageKey(key),
		),
	)
	defer span.End()

	msg := kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: "event-type", Value: []byte(eventType)}},
	}
	p.propagator.Inject(ctx, headerCarrier{msg: &msg})

	if err := p.w.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrapf(err, "write %s", eventType)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}

var _ order.Publisher = Nop{}

// Nop drops every event. Used when Kafka is not configured.
type Nop struct{}

func (Nop) OrderPlaced(context.Context, *order.Order) error { return nil }

func (Nop) StatusChanged(context.Context, *order.Order, order.Status) error { return nil }
