package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventType names an order lifecycle event.
type EventType string

const (
	EventCreated      EventType = "order.created"
	EventStateChanged EventType = "order.state_changed"
	EventRated        EventType = "order.rated"
)

// Event is published after an order change has been durably written.
type Event struct {
	Type         EventType
	OrderID      string
	RestaurantID string
	UserID       string
	State        State
	// PrevState is set on EventStateChanged.
	PrevState State
	TotalSum  decimal.Decimal
	// Ratings is set on EventRated.
	Ratings    []FoodRating
	OccurredAt time.Time
}

// EventPublisher delivers order events to interested consumers.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
