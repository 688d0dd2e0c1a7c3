// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/food-orders/internal/domain/order"
)

// Writer is the subset of kafka.Writer used by Publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes order events as JSON messages keyed by order id, so all
// events of one order land on the same partition in order.
type Publisher struct {
	w Writer
}

var _ order.EventPublisher = (*Publisher)(nil)

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	var brokers []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewWriter returns a kafka.Writer for topic.
func NewWriter(brokers []string, topic string, async bool) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		Async:                  async,
		AllowAutoTopicCreation: true,
	}
}

// NewPublisher wraps w.
func NewPublisher(w Writer) *Publisher {
	return &Publisher{w: w}
}

// Publish encodes e and writes it.
func (p *Publisher) Publish(ctx context.Context, e order.Event) error {
	msg := kafka.Message{
		Key:   []byte(e.OrderID),
		Value: Encode(e),
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write %s", e.Type)
	}
	return nil
}

// Close flushes pending messages.
func (p *Publisher) Close() error {
	return p.w.Close()
}

// Encode renders e as JSON.
func Encode(e order.Event) []byte {
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("type")
	enc.Str(string(e.Type))
	enc.FieldStart("order_id")
	enc.Str(e.OrderID)
	enc.FieldStart("restaurant_id")
	enc.Str(e.RestaurantID)
	enc.FieldStart("user_id")
	enc.Str(e.UserID)
	enc.FieldStart("state")
	enc.Str(string(e.State))
	if e.PrevState != "" {
		enc.FieldStart("prev_state")
		enc.Str(string(e.PrevState))
	}
	enc.FieldStart("total_sum")
	enc.Num(jx.Num(e.TotalSum.StringFixed(2)))
	if e.Ratings != nil {
		enc.FieldStart("ratings")
		enc.ArrStart()
		for _, r := range e.Ratings {
			enc.ObjStart()
			enc.FieldStart("food_id")
			enc.Str(r.FoodID)
			enc.FieldStart("rating")
			enc.Float64(r.Value)
			enc.ObjEnd()
		}
		enc.ArrEnd()
	}
	enc.FieldStart("occurred_at")
	enc.Str(e.OccurredAt.UTC().Format(time.RFC3339Nano))
	enc.ObjEnd()
	return enc.Bytes()
}
