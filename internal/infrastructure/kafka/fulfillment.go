// Package kafka hands placed orders to downstream fulfillment over Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"

	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic = "orders.placed"
	peerKafka    = "kafka"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	var out []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// FulfillmentPublisher writes one JSON message per placed order, keyed by
// order number so every message for an order lands on one partition.
type FulfillmentPublisher struct {
	writer       MessageWriter
	topic        string
	log          observability.Logger
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

var _ apporder.Fulfillment = (*FulfillmentPublisher)(nil)

func NewFulfillmentPublisher(writer MessageWriter, topic string, tel observability.Observability) *FulfillmentPublisher {
	tel = observability.Or(tel)
	if topic == "" {
		topic = DefaultTopic
	}
	return &FulfillmentPublisher{
		writer:       writer,
		topic:        topic,
		log:          tel.Logger().With(observability.F("component", "kafka_fulfillment")),
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

func (p *FulfillmentPublisher) Fulfill(ctx context.Context, e domorder.OrderPlacedEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("kafka: encode %s: %w", e.OrderNumber, err)
	}
	start := time.Now()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.EventKey()),
		Value: data,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(e.EventName())},
		},
	})
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	p.extCounter.Add(1,
		observability.L("peer", peerKafka),
		observability.L("endpoint", p.topic),
		observability.L("outcome", outcome),
	)
	p.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peerKafka),
		observability.L("endpoint", p.topic),
	)
	if err != nil {
		return fmt.Errorf("kafka: write %s: %w", e.OrderNumber, err)
	}
	logctx.FromOr(ctx, p.log).Debug("fulfillment_published",
		observability.F("topic", p.topic),
		observability.F("order_number", e.OrderNumber),
	)
	return nil
}

func (p *FulfillmentPublisher) Close() error { return p.writer.Close() }

// LogFulfillment stands in when no brokers are configured.
type LogFulfillment struct {
	log observability.Logger
}

var _ apporder.Fulfillment = LogFulfillment{}

func NewLogFulfillment(log observability.Logger) LogFulfillment {
	if log == nil {
		log = observability.NopLogger()
	}
	return LogFulfillment{log: log}
}

func (f LogFulfillment) Fulfill(ctx context.Context, e domorder.OrderPlacedEvent) error {
	logctx.FromOr(ctx, f.log).Info("fulfillment_skipped_no_broker",
		observability.F("order_number", e.OrderNumber),
		observability.F("total", e.Total.String()),
		observability.F("currency", e.Currency),
	)
	return nil
}
