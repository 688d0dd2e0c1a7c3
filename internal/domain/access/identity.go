// Package access decides which caller may read or mutate an order.
//
// Callers are resolved once, at the request boundary, into an Identity. The
// Guard then only deals with typed identities and never probes the directory
// to guess what kind of party an id belongs to.
package access

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/food-orders/internal/domain/party"
)

var (
	// ErrUnauthorized is returned when the caller cannot be resolved to a
	// known admin or user.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when a resolved caller lacks ownership of the
	// requested resource.
	ErrForbidden = errors.New("permission required")
)

// Kind tags an Identity.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAdmin
	KindUser
)

func (k Kind) String() string {
	switch k {
	case KindAdmin:
		return "admin"
	case KindUser:
		return "user"
	default:
		return "unknown"
	}
}

// Identity is a resolved caller.
type Identity struct {
	Kind Kind
	ID   string
}

// Admin returns an admin identity.
func Admin(id string) Identity { return Identity{Kind: KindAdmin, ID: id} }

// User returns a user identity.
func User(id string) Identity { return Identity{Kind: KindUser, ID: id} }

// Unknown returns the identity of an unresolvable caller.
func Unknown() Identity { return Identity{Kind: KindUnknown} }

// Resolver turns a raw caller id into an Identity.
type Resolver struct {
	parties party.Directory
}

// NewResolver creates a Resolver backed by the party directory.
func NewResolver(parties party.Directory) *Resolver {
	return &Resolver{parties: parties}
}

// Resolve looks the id up as an admin first, then as a user. The expected
// kind narrows the lookup when the route already implies one; pass
// KindUnknown to accept either.
func (r *Resolver) Resolve(ctx context.Context, id string, expected Kind) (Identity, error) {
	if id == "" {
		return Unknown(), nil
	}

	if expected != KindUser {
		ok, err := r.parties.IsKnownAdmin(ctx, id)
		if err != nil {
			return Unknown(), errors.Wrap(err, "lookup admin")
		}
		if ok {
			return Admin(id), nil
		}
	}

	if expected != KindAdmin {
		ok, err := r.parties.IsKnownUser(ctx, id)
		if err != nil {
			return Unknown(), errors.Wrap(err, "lookup user")
		}
		if ok {
			return User(id), nil
		}
	}

	return Unknown(), nil
}
