package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"feeindex/internal/domain"
	"feeindex/internal/infrastructure/telemetry"
	"feeindex/internal/streaming"
)

// Producer publishes collected fee transfers to one topic per network so
// downstream consumers can subscribe to a single chain.
type Producer struct {
	writer *kafka.Writer
	prefix string
}

type ProducerConfig struct {
	Brokers     []string
	TopicPrefix string
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.TopicPrefix) == "" {
		cfg.TopicPrefix = "feeindex-transfers"
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 500 * time.Millisecond,
	}
	return &Producer{writer: writer, prefix: cfg.TopicPrefix}, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) PublishTransfers(ctx context.Context, transactions []domain.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}
	tracer := otel.Tracer("feeindex/kafka")
	messages := make([]kafka.Message, 0, len(transactions))
	spans := make([]trace.Span, 0, len(transactions))
	for _, tx := range transactions {
		msgCtx, span := tracer.Start(ctx, "collector.publish_transfer", trace.WithSpanKind(trace.SpanKindProducer))
		span.SetAttributes(
			attribute.String("network", string(tx.Network)),
			attribute.Int64("block.number", int64(tx.BlockNumber)),
			attribute.String("tx.hash", tx.Hash),
			attribute.String("token.symbol", tx.TokenSymbol),
		)

		payload, err := streaming.Encode(streaming.FromTransaction(tx))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return err
		}
		headers := make([]kafka.Header, 0, 2)
		telemetry.InjectKafkaHeaders(msgCtx, &headers)
		messages = append(messages, kafka.Message{
			Topic:   p.topicForNetwork(tx.Network),
			Key:     []byte(tx.Hash),
			Value:   payload,
			Headers: headers,
		})
		spans = append(spans, span)
	}

	err := p.writer.WriteMessages(ctx, messages...)
	for _, span := range spans {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
	return err
}

func (p *Producer) topicForNetwork(network domain.Network) string {
	return fmt.Sprintf("%s-%s", p.prefix, network)
}
