// Package catalog describes the restaurant and food records an order is built
// from, and the rating counters that ratings feed back into.
package catalog

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested restaurant or food does not exist.
var ErrNotFound = errors.New("catalog entry not found")

// Food is a dish offered by a single restaurant.
type Food struct {
	ID                 string
	RestaurantID       string
	Name               string
	Ingredients        string
	Category           string
	Image              string
	Price              decimal.Decimal
	DiscountPercentage decimal.Decimal
	Rating             Rating
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// DiscountedPrice returns the unit price after the food's discount.
func (f Food) DiscountedPrice() decimal.Decimal {
	return f.Price.Mul(hundred.Sub(f.DiscountPercentage)).Div(hundred)
}

// Restaurant is owned by exactly one admin.
type Restaurant struct {
	ID        string
	AdminID   string
	Name      string
	City      string
	Address   string
	Image     string
	Rating    Rating
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Gateway is the read side of the catalog plus the two atomic rating
// increments. Implementations must apply increments as a single
// read-modify-write at the storage boundary.
type Gateway interface {
	GetFood(ctx context.Context, id string) (*Food, error)
	GetFoods(ctx context.Context, ids []string) ([]Food, error)
	GetRestaurant(ctx context.Context, id string) (*Restaurant, error)

	// IncrementFoodRating folds one rating value into the food's mean.
	IncrementFoodRating(ctx context.Context, id string, value float64) (*Food, error)
	// IncrementRestaurantRating folds count values summing to sum into the
	// restaurant's mean.
	IncrementRestaurantRating(ctx context.Context, id string, sum float64, count int) (*Restaurant, error)
}

var hundred = decimal.NewFromInt(100)
