package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/food-orders/internal/domain/party"
)

const (
	restaurantOfAdminSQL = `SELECT a.id, r.id
		FROM admins a LEFT JOIN restaurants r ON r.admin_id = a.id
		WHERE a.id = $1`

	getUserSQL = `SELECT id, name, email, phone FROM users WHERE id = $1`

	adminExistsSQL = `SELECT EXISTS (SELECT 1 FROM admins WHERE id = $1)`

	userExistsSQL = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`

	upsertAdminSQL = `INSERT INTO admins (id, name, email) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email`

	upsertUserSQL = `INSERT INTO users (id, name, email, phone) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, phone = EXCLUDED.phone`
)

var _ party.Directory = (*PartyRepository)(nil)

// PartyRepository implements party.Directory backed by PostgreSQL.
type PartyRepository struct {
	pool *pgxpool.Pool
}

// NewPartyRepository returns a PartyRepository that uses the given pool.
func NewPartyRepository(pool *pgxpool.Pool) *PartyRepository {
	return &PartyRepository{pool: pool}
}

// RestaurantOfAdmin returns the restaurant owned by adminID.
func (r *PartyRepository) RestaurantOfAdmin(ctx context.Context, adminID string) (string, error) {
	var (
		id           string
		restaurantID *string
	)
	err := conn(ctx, r.pool).QueryRow(ctx, restaurantOfAdminSQL, adminID).Scan(&id, &restaurantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", party.ErrNotFound
		}
		return "", fmt.Errorf("finding restaurant of admin %q: %w", adminID, err)
	}
	if restaurantID == nil {
		return "", party.ErrNoRestaurant
	}
	return *restaurantID, nil
}

// GetUser returns a single user by identifier.
func (r *PartyRepository) GetUser(ctx context.Context, userID string) (*party.User, error) {
	var u party.User
	err := conn(ctx, r.pool).QueryRow(ctx, getUserSQL, userID).Scan(&u.ID, &u.Name, &u.Email, &u.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, party.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", userID, err)
	}
	return &u, nil
}

// IsKnownAdmin reports whether an admin with the given id exists.
func (r *PartyRepository) IsKnownAdmin(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := conn(ctx, r.pool).QueryRow(ctx, adminExistsSQL, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking admin %q: %w", id, err)
	}
	return ok, nil
}

// IsKnownUser reports whether a user with the given id exists.
func (r *PartyRepository) IsKnownUser(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := conn(ctx, r.pool).QueryRow(ctx, userExistsSQL, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking user %q: %w", id, err)
	}
	return ok, nil
}

// UpsertAdmin inserts or updates an admin.
func (r *PartyRepository) UpsertAdmin(ctx context.Context, a *party.Admin) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, upsertAdminSQL, a.ID, a.Name, a.Email); err != nil {
		return fmt.Errorf("upserting admin %q: %w", a.ID, err)
	}
	return nil
}

// UpsertUser inserts or updates a user.
func (r *PartyRepository) UpsertUser(ctx context.Context, u *party.User) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, upsertUserSQL, u.ID, u.Name, u.Email, u.Phone); err != nil {
		return fmt.Errorf("upserting user %q: %w", u.ID, err)
	}
	return nil
}

// CachedDirectory memoizes identity lookups of another party.Directory for a
// bounded time. Only positive existence answers are cached, so a newly
// registered party is visible on its first request. Restaurant ownership is
// always read from next.
type CachedDirectory struct {
	next   party.Directory
	admins *expirable.LRU[string, struct{}]
	users  *expirable.LRU[string, *party.User]
}

var _ party.Directory = (*CachedDirectory)(nil)

// NewCachedDirectory wraps next with LRU caches of the given size whose
// entries expire after ttl.
func NewCachedDirectory(next party.Directory, size int, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		next:   next,
		admins: expirable.NewLRU[string, struct{}](size, nil, ttl),
		users:  expirable.NewLRU[string, *party.User](size, nil, ttl),
	}
}

func (c *CachedDirectory) RestaurantOfAdmin(ctx context.Context, adminID string) (string, error) {
	return c.next.RestaurantOfAdmin(ctx, adminID)
}

func (c *CachedDirectory) GetUser(ctx context.Context, userID string) (*party.User, error) {
	if u, ok := c.users.Get(userID); ok {
		cp := *u
		return &cp, nil
	}

	u, err := c.next.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	cp := *u
	c.users.Add(userID, &cp)
	return u, nil
}

func (c *CachedDirectory) IsKnownAdmin(ctx context.Context, id string) (bool, error) {
	if _, ok := c.admins.Get(id); ok {
		return true, nil
	}

	ok, err := c.next.IsKnownAdmin(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	c.admins.Add(id, struct{}{})
	return true, nil
}

func (c *CachedDirectory) IsKnownUser(ctx context.Context, id string) (bool, error) {
	if _, ok := c.users.Get(id); ok {
		return true, nil
	}

	u, err := c.next.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, party.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	c.users.Add(id, u)
	return true, nil
}
