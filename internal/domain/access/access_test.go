package access

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/food-orders/internal/domain/party"
)

type mockDirectory struct {
	restaurants map[string]string // admin -> restaurant
	admins      map[string]bool
	users       map[string]bool
	err         error
}

func (m *mockDirectory) RestaurantOfAdmin(_ context.Context, adminID string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	r, ok := m.restaurants[adminID]
	if !ok {
		return "", party.ErrNoRestaurant
	}
	return r, nil
}

func (m *mockDirectory) GetUser(_ context.Context, userID string) (*party.User, error) {
	if !m.users[userID] {
		return nil, party.ErrNotFound
	}
	return &party.User{ID: userID}, nil
}

func (m *mockDirectory) IsKnownAdmin(_ context.Context, id string) (bool, error) {
	return m.admins[id], m.err
}

func (m *mockDirectory) IsKnownUser(_ context.Context, id string) (bool, error) {
	return m.users[id], m.err
}

func newDirectory() *mockDirectory {
	return &mockDirectory{
		restaurants: map[string]string{"admin-r1": "r1", "admin-r2": "r2"},
		admins:      map[string]bool{"admin-r1": true, "admin-r2": true, "admin-none": true},
		users:       map[string]bool{"u1": true, "u2": true},
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(newDirectory())
	ctx := context.Background()

	tests := []struct {
		name     string
		id       string
		expected Kind
		want     Identity
	}{
		{name: "admin", id: "admin-r1", expected: KindUnknown, want: Admin("admin-r1")},
		{name: "user", id: "u1", expected: KindUnknown, want: User("u1")},
		{name: "unknown id", id: "ghost", expected: KindUnknown, want: Unknown()},
		{name: "empty id", id: "", expected: KindUnknown, want: Unknown()},
		{name: "admin on user route", id: "admin-r1", expected: KindUser, want: Unknown()},
		{name: "user on admin route", id: "u1", expected: KindAdmin, want: Unknown()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.id, tt.expected)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_DirectoryError(t *testing.T) {
	dir := newDirectory()
	dir.err = errors.New("db down")

	_, err := NewResolver(dir).Resolve(context.Background(), "u1", KindUnknown)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup admin")
}

func TestGuard_CanRead(t *testing.T) {
	g := NewGuard(newDirectory())
	ctx := context.Background()
	owned := Ownership{RestaurantID: "r1", UserID: "u1"}

	tests := []struct {
		name    string
		id      Identity
		wantErr error
	}{
		{name: "owning admin", id: Admin("admin-r1")},
		{name: "placing user", id: User("u1")},
		{name: "admin of another restaurant", id: Admin("admin-r2"), wantErr: ErrForbidden},
		{name: "admin without restaurant", id: Admin("admin-none"), wantErr: ErrForbidden},
		{name: "other user", id: User("u2"), wantErr: ErrForbidden},
		{name: "unknown caller", id: Unknown(), wantErr: ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.CanRead(ctx, tt.id, owned)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGuard_CanRate(t *testing.T) {
	g := NewGuard(newDirectory())
	owned := Ownership{RestaurantID: "r1", UserID: "u1"}

	require.NoError(t, g.CanRate(User("u1"), owned))
	require.ErrorIs(t, g.CanRate(User("u2"), owned), ErrForbidden)
	require.ErrorIs(t, g.CanRate(Admin("admin-r1"), owned), ErrForbidden)
	require.ErrorIs(t, g.CanRate(Unknown(), owned), ErrUnauthorized)
}

func TestGuard_RestaurantOf(t *testing.T) {
	g := NewGuard(newDirectory())
	ctx := context.Background()

	r, err := g.RestaurantOf(ctx, Admin("admin-r2"))
	require.NoError(t, err)
	assert.Equal(t, "r2", r)

	_, err = g.RestaurantOf(ctx, Admin("admin-none"))
	require.ErrorIs(t, err, ErrForbidden)

	_, err = g.RestaurantOf(ctx, User("u1"))
	require.ErrorIs(t, err, ErrForbidden)

	_, err = g.RestaurantOf(ctx, Unknown())
	require.ErrorIs(t, err, ErrUnauthorized)
}
