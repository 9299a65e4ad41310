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
	"go.uber.org/zap"
)

type ConsumerConfig struct {
	Brokers        []string
	GroupID        string
	Topics         []string
	MinBytes       int
	MaxBytes       int
	CommitInterval time.Duration
}

type MessageHandler func(ctx context.Context, msg kafkaGo.Message) error

type Consumer struct {
	reader *kafkaGo.Reader
	log    *zap.Logger
}

func NewConsumer(cfg ConsumerConfig, log *zap.Logger) *Consumer {
	if cfg.MinBytes == 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.CommitInterval == 0 {
		cfg.CommitInterval = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		GroupTopics:    cfg.Topics,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		CommitInterval: cfg.CommitInterval,
	})
	return &Consumer{reader: reader, log: log}
}

// Start 消费循环：
// 1. 从 headers 提取 W3C traceparent / baggage
// 2. 创建 kafka.consume Span (SpanKindConsumer)
// 3. 调用 handler，错误记录到 Span 与日志后继续消费
// ctx 取消时返回 nil。
func (c *Consumer) Start(ctx context.Context, handler MessageHandler) error {
	if c.reader == nil {
		return errors.New("nil reader")
	}
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.dispatch(ctx, m, handler)
	}
}

func (c *Consumer) dispatch(ctx context.Context, m kafkaGo.Message, handler MessageHandler) {
	carrier := propagation.MapCarrier{}
	for _, h := range m.Headers {
		carrier[h.Key] = string(h.Value)
	}
	msgCtx := otel.GetTextMapPropagator().Extract(ctx, carrier)
	attrs := []attribute.KeyValue{
		semconv.MessagingSystem("kafka"),
		semconv.MessagingDestinationName(m.Topic),
		attribute.String("messaging.destination_kind", "topic"),
		attribute.Int("messaging.kafka.partition", m.Partition),
		attribute.Int64("messaging.kafka.offset", m.Offset),
		attribute.Int("messaging.message.size", len(m.Value)),
	}
	msgCtx, span := otel.Tracer("kafka-consumer").Start(msgCtx, "kafka.consume", trace.WithSpanKind(trace.SpanKindConsumer), trace.WithAttributes(attrs...))
	defer span.End()
	if err := handler(msgCtx, m); err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		c.log.Error("kafka_handler_error", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

func (c *Consumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
