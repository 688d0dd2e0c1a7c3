// Package party resolves the admins and users that act on orders.
package party

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when an admin or user does not exist.
	ErrNotFound = errors.New("party not found")
	// ErrNoRestaurant is returned when an admin does not own a restaurant.
	ErrNoRestaurant = errors.New("admin owns no restaurant")
)

// Admin manages a single restaurant.
type Admin struct {
	ID    string
	Name  string
	Email string
}

// User places and rates orders.
type User struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// Directory provides identity lookups for admins and users.
type Directory interface {
	// RestaurantOfAdmin returns the id of the restaurant owned by adminID,
	// or ErrNoRestaurant.
	RestaurantOfAdmin(ctx context.Context, adminID string) (string, error)
	GetUser(ctx context.Context, userID string) (*User, error)
	IsKnownAdmin(ctx context.Context, id string) (bool, error)
	IsKnownUser(ctx context.Context, id string) (bool, error)
}
