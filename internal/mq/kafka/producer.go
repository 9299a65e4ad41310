package kafka

import (
	"context"
	"errors"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Producer 封装 kafka-go Writer，发送时注入 W3C trace 上下文
type Producer struct {
	*kafkaGo.Writer
	brokers []string
}

func NewProducer(cfg Config) *Producer {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	w := &kafkaGo.Writer{
		Addr:         kafkaGo.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkaGo.Hash{},
		RequiredAcks: kafkaGo.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &Producer{Writer: w, brokers: cfg.Brokers}
}

func (p *Producer) startSpan(ctx context.Context) (context.Context, trace.Span) {
	tr := otel.GetTracerProvider().Tracer("kafka-producer")
	attrs := []attribute.KeyValue{
		semconv.MessagingSystem("kafka"),
		semconv.MessagingDestinationName(p.Topic),
		attribute.String("messaging.destination_kind", "topic"),
	}
	return tr.Start(ctx, "kafka.produce", trace.WithSpanKind(trace.SpanKindProducer), trace.WithAttributes(attrs...))
}

func injectHeaders(ctx context.Context, headers []kafkaGo.Header) []kafkaGo.Header {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	// 已存在同名 header 时不覆盖
	existing := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		existing[h.Key] = struct{}{}
	}
	for k, v := range carrier {
		if _, ok := existing[k]; ok {
			continue
		}
		headers = append(headers, kafkaGo.Header{Key: k, Value: []byte(v)})
	}
	return headers
}

// Send writes one message; headers may be nil.
func (p *Producer) Send(ctx context.Context, key, value []byte, headers map[string]string) error {
	ctx, span := p.startSpan(ctx)
	defer span.End()
	hs := make([]kafkaGo.Header, 0, len(headers)+2)
	for k, v := range headers {
		hs = append(hs, kafkaGo.Header{Key: k, Value: []byte(v)})
	}
	msg := kafkaGo.Message{Key: key, Value: value, Time: time.Now(), Headers: injectHeaders(ctx, hs)}
	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return err
	}
	return nil
}

// Ping dials the first reachable broker.
func (p *Producer) Ping(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	var last error
	for _, b := range p.brokers {
		conn, err := kafkaGo.DialContext(ctx, "tcp", b)
		if err != nil {
			last = err
			continue
		}
		return conn.Close()
	}
	return last
}

func (p *Producer) Close() error { return p.Writer.Close() }
