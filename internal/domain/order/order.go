package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/food-orders/internal/domain/access"
	"github.com/xenking/food-orders/internal/domain/catalog"
)

// Order is a placed food-delivery order. TotalPrice and TotalSum are frozen
// from the catalog at creation time.
type Order struct {
	ID             string
	RestaurantID   string
	UserID         string
	Items          []LineItem
	Address        string
	PhoneToContact string
	TotalPrice     decimal.Decimal
	TotalSum       decimal.Decimal
	State          State
	IsRated        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LineItem is a single food and how many of it were ordered.
type LineItem struct {
	FoodID string `json:"food_id"`
	Count  int    `json:"count"`
}

// Ownership returns the parties that own the order.
func (o *Order) Ownership() access.Ownership {
	return access.Ownership{RestaurantID: o.RestaurantID, UserID: o.UserID}
}

// HasFood reports whether foodID appears among the order's line items.
func (o *Order) HasFood(foodID string) bool {
	for _, item := range o.Items {
		if item.FoodID == foodID {
			return true
		}
	}
	return false
}

// Details is an order joined with the catalog records it references.
// Restaurant and line foods reflect the catalog at read time; the totals on
// Order do not.
type Details struct {
	Order      *Order
	Restaurant *catalog.Restaurant
	Lines      []Line
}

// Line is a line item with its food resolved. Food is nil when the food has
// since been removed from the catalog.
type Line struct {
	LineItem
	Food *catalog.Food
}

// Filter selects orders for listing. Empty fields match everything.
type Filter struct {
	RestaurantID string
	UserID       string
	State        State
}

// Page is a normalized window over a sorted result set.
type Page struct {
	Limit     int
	Skip      int
	SortBy    SortField
	SortOrder SortOrder
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	// FindByID returns ErrNotFound when no order has the given id.
	FindByID(ctx context.Context, id string) (*Order, error)
	Find(ctx context.Context, filter Filter, page Page) ([]Order, error)
	Count(ctx context.Context, filter Filter) (int, error)
	// UpdateState moves the order from one state to another in a single
	// conditional write. It returns ErrStateConflict when the stored state is
	// no longer from.
	UpdateState(ctx context.Context, id string, from, to State) (*Order, error)
	// MarkRated flips IsRated on a delivered, unrated order. It returns
	// ErrAlreadyRated or ErrNotRatable when the condition does not hold.
	MarkRated(ctx context.Context, id string) error
}

// Transactor runs fn inside a single storage transaction. Repositories called
// with the context passed to fn take part in that transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
