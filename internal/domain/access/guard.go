package access

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/food-orders/internal/domain/party"
)

// Ownership names the two parties attached to an order.
type Ownership struct {
	RestaurantID string
	UserID       string
}

// Guard applies the ownership rules:
//   - read: the admin owning the restaurant, or the user who placed the order;
//   - state transition: the owning admin only;
//   - rating: the placing user only.
type Guard struct {
	parties party.Directory
}

// NewGuard creates a Guard.
func NewGuard(parties party.Directory) *Guard {
	return &Guard{parties: parties}
}

// CanRead reports whether id may read a resource with the given ownership.
func (g *Guard) CanRead(ctx context.Context, id Identity, o Ownership) error {
	switch id.Kind {
	case KindAdmin:
		return g.ownsRestaurant(ctx, id.ID, o.RestaurantID)
	case KindUser:
		if id.ID != o.UserID {
			return ErrForbidden
		}
		return nil
	default:
		return ErrUnauthorized
	}
}

// CanRate reports whether id may rate the resource.
func (g *Guard) CanRate(id Identity, o Ownership) error {
	switch id.Kind {
	case KindUser:
		if id.ID != o.UserID {
			return ErrForbidden
		}
		return nil
	case KindAdmin:
		return ErrForbidden
	default:
		return ErrUnauthorized
	}
}

// RestaurantOf returns the restaurant owned by an admin identity.
// Non-admins and admins without a restaurant get ErrForbidden.
func (g *Guard) RestaurantOf(ctx context.Context, id Identity) (string, error) {
	switch id.Kind {
	case KindAdmin:
	case KindUser:
		return "", ErrForbidden
	default:
		return "", ErrUnauthorized
	}

	restaurantID, err := g.parties.RestaurantOfAdmin(ctx, id.ID)
	if err != nil {
		if errors.Is(err, party.ErrNoRestaurant) {
			return "", ErrForbidden
		}
		return "", errors.Wrap(err, "resolve admin restaurant")
	}
	return restaurantID, nil
}

func (g *Guard) ownsRestaurant(ctx context.Context, adminID, restaurantID string) error {
	owned, err := g.RestaurantOf(ctx, Admin(adminID))
	if err != nil {
		return err
	}
	if owned != restaurantID {
		return ErrForbidden
	}
	return nil
}
