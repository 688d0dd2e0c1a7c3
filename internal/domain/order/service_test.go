package order

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/food-orders/internal/domain/access"
	"github.com/xenking/food-orders/internal/domain/catalog"
	"github.com/xenking/food-orders/internal/domain/party"
)

// --- Mock implementations ---

type mockCatalog struct {
	mu          sync.Mutex
	foods       map[string]*catalog.Food
	restaurants map[string]*catalog.Restaurant
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{
		foods:       make(map[string]*catalog.Food),
		restaurants: make(map[string]*catalog.Restaurant),
	}
}

func (m *mockCatalog) GetFood(_ context.Context, id string) (*catalog.Food, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.foods[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *mockCatalog) GetFoods(_ context.Context, ids []string) ([]catalog.Food, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.Food
	for _, id := range ids {
		if f, ok := m.foods[id]; ok {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *mockCatalog) GetRestaurant(_ context.Context, id string) (*catalog.Restaurant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.restaurants[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockCatalog) IncrementFoodRating(_ context.Context, id string, value float64) (*catalog.Food, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.foods[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	f.Rating = f.Rating.Add(value, 1)
	cp := *f
	return &cp, nil
}

func (m *mockCatalog) IncrementRestaurantRating(_ context.Context, id string, sum float64, count int) (*catalog.Restaurant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.restaurants[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	r.Rating = r.Rating.Add(sum, count)
	cp := *r
	return &cp, nil
}

func (m *mockCatalog) food(id string) catalog.Food {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.foods[id]
}

func (m *mockCatalog) restaurant(id string) catalog.Restaurant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.restaurants[id]
}

type mockDirectory struct {
	restaurantOf map[string]string // admin id -> restaurant id
	admins       map[string]bool
	users        map[string]bool
}

func (m *mockDirectory) RestaurantOfAdmin(_ context.Context, adminID string) (string, error) {
	if !m.admins[adminID] {
		return "", party.ErrNotFound
	}
	r, ok := m.restaurantOf[adminID]
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
	return m.admins[id], nil
}

func (m *mockDirectory) IsKnownUser(_ context.Context, id string) (bool, error) {
	return m.users[id], nil
}

type mockOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]*Order
	seq       []string
	createErr error
	// beforeUpdate runs inside UpdateState before the conditional check.
	beforeUpdate func(o *Order)
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]*Order)}
}

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.Items = append([]LineItem(nil), o.Items...)
	return &cp
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = cloneOrder(o)
	m.seq = append(m.seq, o.ID)
	return nil
}

func (m *mockOrderRepo) FindByID(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *mockOrderRepo) match(o *Order, f Filter) bool {
	return (f.RestaurantID == "" || o.RestaurantID == f.RestaurantID) &&
		(f.UserID == "" || o.UserID == f.UserID) &&
		(f.State == "" || o.State == f.State)
}

func (m *mockOrderRepo) Find(_ context.Context, f Filter, p Page) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	skipped := 0
	for _, id := range m.seq {
		o := m.orders[id]
		if !m.match(o, f) {
			continue
		}
		if skipped < p.Skip {
			skipped++
			continue
		}
		if len(out) == p.Limit {
			break
		}
		out = append(out, *cloneOrder(o))
	}
	return out, nil
}

func (m *mockOrderRepo) Count(_ context.Context, f Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.orders {
		if m.match(o, f) {
			n++
		}
	}
	return n, nil
}

func (m *mockOrderRepo) UpdateState(_ context.Context, id string, from, to State) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if m.beforeUpdate != nil {
		m.beforeUpdate(o)
	}
	if o.State != from {
		return nil, ErrStateConflict
	}
	o.State = to
	return cloneOrder(o), nil
}

func (m *mockOrderRepo) MarkRated(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	switch {
	case !ok:
		return ErrNotFound
	case o.IsRated:
		return ErrAlreadyRated
	case o.State != StateDelivered:
		return ErrNotRatable
	}
	o.IsRated = true
	return nil
}

func (m *mockOrderRepo) get(id string) *Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneOrder(m.orders[id])
}

type mockTx struct{ calls atomic.Int64 }

func (m *mockTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls.Add(1)
	return fn(ctx)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

// --- Helpers ---

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	catalog   *mockCatalog
	parties   *mockDirectory
	orders    *mockOrderRepo
	tx        *mockTx
	published *recordingPublisher
}

// newFixture seeds two restaurants, r1 owned by admin a1 and r2 owned by a2.
// Admin a3 owns nothing. Users u1 and u2 exist.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	cat := newMockCatalog()
	cat.restaurants["r1"] = &catalog.Restaurant{ID: "r1", AdminID: "a1", Name: "Pasta Place"}
	cat.restaurants["r2"] = &catalog.Restaurant{ID: "r2", AdminID: "a2", Name: "Sushi Spot"}
	cat.foods["f1"] = &catalog.Food{
		ID: "f1", RestaurantID: "r1", Name: "Carbonara",
		Price: decimal.NewFromInt(100), DiscountPercentage: decimal.NewFromInt(10),
	}
	cat.foods["f2"] = &catalog.Food{
		ID: "f2", RestaurantID: "r1", Name: "Tiramisu",
		Price: decimal.NewFromInt(50), DiscountPercentage: decimal.Zero,
	}
	cat.foods["f3"] = &catalog.Food{
		ID: "f3", RestaurantID: "r2", Name: "Nigiri",
		Price: decimal.NewFromInt(30), DiscountPercentage: decimal.Zero,
	}

	dir := &mockDirectory{
		restaurantOf: map[string]string{"a1": "r1", "a2": "r2"},
		admins:       map[string]bool{"a1": true, "a2": true, "a3": true},
		users:        map[string]bool{"u1": true, "u2": true},
	}

	f := &fixture{
		catalog:   cat,
		parties:   dir,
		orders:    newMockOrderRepo(),
		tx:        &mockTx{},
		published: &recordingPublisher{},
	}

	var n int
	var idMu sync.Mutex
	svc, err := NewService(cat, dir, f.orders, f.tx,
		WithPublisher(f.published),
		WithClock(func() time.Time { return testNow }),
		WithPageLimits(PageLimits{Default: 2, Max: 5}),
		WithIDGenerator(func() string {
			idMu.Lock()
			defer idMu.Unlock()
			n++
			return fmt.Sprintf("o%d", n)
		}),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

// seedOrder stores an order of f1 for u1 at r1 in the given state.
func (f *fixture) seedOrder(t *testing.T, id string, state State) *Order {
	t.Helper()
	o := &Order{
		ID:             id,
		RestaurantID:   "r1",
		UserID:         "u1",
		Items:          []LineItem{{FoodID: "f1", Count: 1}, {FoodID: "f2", Count: 2}},
		Address:        "1 Main St",
		PhoneToContact: "+10000000000",
		TotalPrice:     decimal.NewFromInt(200),
		TotalSum:       decimal.NewFromInt(190),
		State:          state,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}
	require.NoError(t, f.orders.Create(context.Background(), o))
	return o
}

func validRequest() CreateRequest {
	return CreateRequest{
		RestaurantID:   "r1",
		UserID:         "u1",
		Items:          []LineItem{{FoodID: "f1", Count: 2}, {FoodID: "f2", Count: 1}},
		Address:        "1 Main St",
		PhoneToContact: "+10000000000",
	}
}

// --- Tests ---

func TestCreateOrder_Totals(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.CreateOrder(context.Background(), validRequest())
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(250).Equal(d.Order.TotalPrice), "total price %s", d.Order.TotalPrice)
	assert.True(t, decimal.NewFromInt(230).Equal(d.Order.TotalSum), "total sum %s", d.Order.TotalSum)
	assert.Equal(t, StatePreparing, d.Order.State)
	assert.False(t, d.Order.IsRated)
	assert.Equal(t, testNow, d.Order.CreatedAt)
	assert.Equal(t, "r1", d.Restaurant.ID)
	require.Len(t, d.Lines, 2)
	assert.Equal(t, "Carbonara", d.Lines[0].Food.Name)
	assert.Equal(t, 2, d.Lines[0].Count)

	stored := f.orders.get(d.Order.ID)
	assert.True(t, decimal.NewFromInt(230).Equal(stored.TotalSum))

	require.Len(t, f.published.events, 1)
	assert.Equal(t, EventCreated, f.published.events[0].Type)
	assert.Equal(t, d.Order.ID, f.published.events[0].OrderID)
}

func TestCreateOrder_TotalsIgnoreLaterPriceChanges(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.CreateOrder(context.Background(), validRequest())
	require.NoError(t, err)

	f.catalog.mu.Lock()
	f.catalog.foods["f1"].Price = decimal.NewFromInt(1000)
	f.catalog.mu.Unlock()

	got, err := f.svc.GetOrder(context.Background(), access.User("u1"), d.Order.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(230).Equal(got.Order.TotalSum))
	assert.True(t, decimal.NewFromInt(1000).Equal(got.Lines[0].Food.Price))
}

func TestCreateOrder_InvalidBasket(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *CreateRequest)
		foodID string
	}{
		{
			name:   "unknown food",
			mutate: func(r *CreateRequest) { r.Items = append(r.Items, LineItem{FoodID: "nope", Count: 1}) },
			foodID: "nope",
		},
		{
			name:   "food of another restaurant",
			mutate: func(r *CreateRequest) { r.Items[1] = LineItem{FoodID: "f3", Count: 1} },
			foodID: "f3",
		},
		{
			name:   "zero count",
			mutate: func(r *CreateRequest) { r.Items[0].Count = 0 },
			foodID: "f1",
		},
		{
			name:   "negative count",
			mutate: func(r *CreateRequest) { r.Items[1].Count = -3 },
			foodID: "f2",
		},
		{
			name:   "empty basket",
			mutate: func(r *CreateRequest) { r.Items = nil },
		},
		{
			name:   "missing address",
			mutate: func(r *CreateRequest) { r.Address = "  " },
		},
		{
			name:   "missing phone",
			mutate: func(r *CreateRequest) { r.PhoneToContact = "" },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := validRequest()
			tt.mutate(&req)

			_, err := f.svc.CreateOrder(context.Background(), req)
			require.ErrorIs(t, err, ErrInvalidOrder)

			var ioErr *InvalidOrderError
			require.ErrorAs(t, err, &ioErr)
			assert.Equal(t, tt.foodID, ioErr.FoodID)

			n, err := f.orders.Count(context.Background(), Filter{})
			require.NoError(t, err)
			assert.Zero(t, n, "nothing must be persisted")
			assert.Empty(t, f.published.events)
		})
	}
}

func TestCreateOrder_UnknownRestaurant(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	req.RestaurantID = "missing"

	_, err := f.svc.CreateOrder(context.Background(), req)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestCreateOrder_UnknownUser(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	req.UserID = "ghost"

	_, err := f.svc.CreateOrder(context.Background(), req)
	require.ErrorIs(t, err, party.ErrNotFound)
}

func TestCreateOrder_CreateError(t *testing.T) {
	f := newFixture(t)
	f.orders.createErr = errors.New("db write failed")

	_, err := f.svc.CreateOrder(context.Background(), validRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.Empty(t, f.published.events)
}

func TestCreateOrder_PublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.published.err = errors.New("broker down")

	d, err := f.svc.CreateOrder(context.Background(), validRequest())
	require.NoError(t, err)
	assert.NotNil(t, f.orders.get(d.Order.ID))
}

func TestGetOrder_Access(t *testing.T) {
	tests := []struct {
		name    string
		caller  access.Identity
		id      string
		wantErr error
	}{
		{name: "owning admin", caller: access.Admin("a1"), id: "o1"},
		{name: "placing user", caller: access.User("u1"), id: "o1"},
		{name: "other admin", caller: access.Admin("a2"), id: "o1", wantErr: access.ErrForbidden},
		{name: "admin without restaurant", caller: access.Admin("a3"), id: "o1", wantErr: access.ErrForbidden},
		{name: "other user", caller: access.User("u2"), id: "o1", wantErr: access.ErrForbidden},
		{name: "unknown caller", caller: access.Unknown(), id: "o1", wantErr: access.ErrUnauthorized},
		{name: "missing order", caller: access.Admin("a1"), id: "nope", wantErr: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedOrder(t, "o1", StatePreparing)

			d, err := f.svc.GetOrder(context.Background(), tt.caller, tt.id)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "o1", d.Order.ID)
			assert.Equal(t, "Pasta Place", d.Restaurant.Name)
			require.Len(t, d.Lines, 2)
			assert.Equal(t, "Tiramisu", d.Lines[1].Food.Name)
		})
	}
}

func TestListOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedOrder(t, "o1", StatePreparing)
	f.seedOrder(t, "o2", StateDelivered)
	f.seedOrder(t, "o3", StatePreparing)
	require.NoError(t, f.orders.Create(ctx, &Order{
		ID: "o4", RestaurantID: "r2", UserID: "u2", State: StatePreparing,
		Items: []LineItem{{FoodID: "f3", Count: 1}},
	}))

	t.Run("admin sees restaurant orders paged", func(t *testing.T) {
		res, err := f.svc.ListOrders(ctx, access.Admin("a1"), ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, 3, res.Count)
		require.Len(t, res.Orders, 2, "default page size")
		assert.Equal(t, "o1", res.Orders[0].Order.ID)
		assert.Equal(t, "Pasta Place", res.Orders[0].Restaurant.Name)
	})

	t.Run("skip", func(t *testing.T) {
		res, err := f.svc.ListOrders(ctx, access.Admin("a1"), ListOptions{Skip: 2, Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, 3, res.Count)
		require.Len(t, res.Orders, 1)
		assert.Equal(t, "o3", res.Orders[0].Order.ID)
	})

	t.Run("state filter", func(t *testing.T) {
		res, err := f.svc.ListOrders(ctx, access.Admin("a1"), ListOptions{State: StateDelivered})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Count)
		require.Len(t, res.Orders, 1)
		assert.Equal(t, "o2", res.Orders[0].Order.ID)
	})

	t.Run("user sees own orders", func(t *testing.T) {
		res, err := f.svc.ListOrders(ctx, access.User("u2"), ListOptions{Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Count)
		require.Len(t, res.Orders, 1)
		assert.Equal(t, "o4", res.Orders[0].Order.ID)
		assert.Equal(t, "Sushi Spot", res.Orders[0].Restaurant.Name)
	})

	t.Run("empty listing", func(t *testing.T) {
		res, err := f.svc.ListOrders(ctx, access.Admin("a1"), ListOptions{State: StateCanceled})
		require.NoError(t, err)
		assert.Zero(t, res.Count)
		assert.Empty(t, res.Orders)
	})

	t.Run("admin without restaurant", func(t *testing.T) {
		_, err := f.svc.ListOrders(ctx, access.Admin("a3"), ListOptions{})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown caller", func(t *testing.T) {
		_, err := f.svc.ListOrders(ctx, access.Unknown(), ListOptions{})
		require.ErrorIs(t, err, access.ErrUnauthorized)
	})

	t.Run("invalid query", func(t *testing.T) {
		for _, opts := range []ListOptions{
			{SortBy: "price"},
			{SortOrder: "sideways"},
			{State: "lost"},
		} {
			_, err := f.svc.ListOrders(ctx, access.User("u1"), opts)
			require.ErrorIs(t, err, ErrInvalidQuery, "%+v", opts)
		}
	})
}

func TestTransitionState_AllPairs(t *testing.T) {
	for _, from := range States {
		for _, to := range States {
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				f := newFixture(t)
				f.seedOrder(t, "o1", from)

				d, err := f.svc.TransitionState(context.Background(), access.Admin("a1"), "o1", to)
				if from.CanTransitionTo(to) {
					require.NoError(t, err)
					assert.Equal(t, to, d.Order.State)
					assert.Equal(t, to, f.orders.get("o1").State)
					require.Len(t, f.published.events, 1)
					assert.Equal(t, EventStateChanged, f.published.events[0].Type)
					assert.Equal(t, from, f.published.events[0].PrevState)
					return
				}

				require.ErrorIs(t, err, ErrInvalidStateTransition)
				var stErr *StateTransitionError
				require.ErrorAs(t, err, &stErr)
				assert.Equal(t, from, stErr.From)
				assert.Equal(t, to, stErr.To)
				assert.Equal(t, from, f.orders.get("o1").State, "state must be unchanged")
				assert.Empty(t, f.published.events)
			})
		}
	}
}

func TestTransitionState_Access(t *testing.T) {
	tests := []struct {
		name    string
		caller  access.Identity
		id      string
		wantErr error
	}{
		{name: "admin of another restaurant", caller: access.Admin("a2"), id: "o1", wantErr: access.ErrForbidden},
		{name: "admin without restaurant", caller: access.Admin("a3"), id: "o1", wantErr: access.ErrForbidden},
		{name: "placing user", caller: access.User("u1"), id: "o1", wantErr: access.ErrForbidden},
		{name: "unknown caller", caller: access.Unknown(), id: "o1", wantErr: access.ErrUnauthorized},
		{name: "missing order", caller: access.Admin("a1"), id: "nope", wantErr: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedOrder(t, "o1", StatePreparing)

			_, err := f.svc.TransitionState(context.Background(), tt.caller, tt.id, StateDelivering)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, StatePreparing, f.orders.get("o1").State)
		})
	}
}

func TestTransitionState_LostRace(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1", StateDelivering)
	f.orders.beforeUpdate = func(o *Order) { o.State = StateDelivered }

	_, err := f.svc.TransitionState(context.Background(), access.Admin("a1"), "o1", StateCanceled)

	var stErr *StateTransitionError
	require.ErrorAs(t, err, &stErr)
	assert.Equal(t, StateDelivered, stErr.From)
	assert.Equal(t, StateCanceled, stErr.To)
	assert.Equal(t, StateDelivered, f.orders.get("o1").State)
}

func TestTransitionState_ConcurrentOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1", StateDelivering)

	targets := []State{StateDelivered, StateCanceled, StateDelivered, StateCanceled}
	errs := make([]error, len(targets))

	var wg sync.WaitGroup
	for i, to := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.TransitionState(context.Background(), access.Admin("a1"), "o1", to)
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, ErrInvalidStateTransition)
	}
	assert.Equal(t, 1, ok)
	assert.Contains(t, []State{StateDelivered, StateCanceled}, f.orders.get("o1").State)
}

func TestRateOrder_OneValidOneUnknown(t *testing.T) {
	f := newFixture(t)
	f.catalog.foods["f1"].Rating = catalog.Rating{Mean: 4.0, Count: 3}
	f.seedOrder(t, "o1", StateDelivered)

	res, err := f.svc.RateOrder(context.Background(), access.User("u1"), "o1", []FoodRating{
		{FoodID: "f1", Value: 5},
		{FoodID: "f3", Value: 5},
	})
	require.NoError(t, err)

	assert.Equal(t, []FoodRating{{FoodID: "f1", Value: 5}}, res.Applied)
	assert.Equal(t, 1, res.Discarded)

	food := f.catalog.food("f1")
	assert.InDelta(t, 4.25, food.Rating.Mean, 1e-9)
	assert.Equal(t, 4, food.Rating.Count)
	assert.Zero(t, f.catalog.food("f3").Rating.Count)

	r := f.catalog.restaurant("r1")
	assert.InDelta(t, 5.0, r.Rating.Mean, 1e-9)
	assert.Equal(t, 1, r.Rating.Count)
	assert.Equal(t, r.Rating, res.Restaurant)

	assert.True(t, f.orders.get("o1").IsRated)
	require.Len(t, f.published.events, 1)
	assert.Equal(t, EventRated, f.published.events[0].Type)
}

func TestRateOrder_AppliesEveryRatingOfOrderedFoods(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1", StateDelivered)

	res, err := f.svc.RateOrder(context.Background(), access.User("u1"), "o1", []FoodRating{
		{FoodID: "f1", Value: 5},
		{FoodID: "f1", Value: 3},
		{FoodID: "f2", Value: 0},
		{FoodID: "f3", Value: 4},
	})
	require.NoError(t, err)

	assert.Equal(t, []FoodRating{
		{FoodID: "f1", Value: 5},
		{FoodID: "f1", Value: 3},
		{FoodID: "f2", Value: 0},
	}, res.Applied)
	assert.Equal(t, 1, res.Discarded)
	assert.Equal(t, catalog.Rating{Mean: 4, Count: 2}, f.catalog.food("f1").Rating)
	assert.Equal(t, catalog.Rating{Mean: 0, Count: 1}, f.catalog.food("f2").Rating)
	assert.Zero(t, f.catalog.food("f3").Rating.Count)

	r := f.catalog.restaurant("r1").Rating
	assert.InDelta(t, 8.0/3.0, r.Mean, 1e-9)
	assert.Equal(t, 3, r.Count)
}

func TestRateOrder_NoValidRatingsLeavesRestaurant(t *testing.T) {
	f := newFixture(t)
	f.catalog.restaurants["r1"].Rating = catalog.Rating{Mean: 3.5, Count: 2}
	f.seedOrder(t, "o1", StateDelivered)

	res, err := f.svc.RateOrder(context.Background(), access.User("u1"), "o1", []FoodRating{
		{FoodID: "f3", Value: 4},
	})
	require.NoError(t, err)

	assert.Empty(t, res.Applied)
	assert.Equal(t, 1, res.Discarded)
	assert.Equal(t, catalog.Rating{Mean: 3.5, Count: 2}, f.catalog.restaurant("r1").Rating)
	assert.True(t, f.orders.get("o1").IsRated)
}

func TestRateOrder_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		caller  access.Identity
		state   State
		rated   bool
		wantErr error
	}{
		{name: "already rated", caller: access.User("u1"), state: StateDelivered, rated: true, wantErr: ErrAlreadyRated},
		{name: "not delivered", caller: access.User("u1"), state: StateDelivering, wantErr: ErrNotRatable},
		{name: "canceled", caller: access.User("u1"), state: StateCanceled, wantErr: ErrNotRatable},
		{name: "other user", caller: access.User("u2"), state: StateDelivered, wantErr: ErrNotFound},
		{name: "admin", caller: access.Admin("a1"), state: StateDelivered, wantErr: access.ErrForbidden},
		{name: "unknown caller", caller: access.Unknown(), state: StateDelivered, wantErr: access.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			o := f.seedOrder(t, "o1", tt.state)
			if tt.rated {
				f.orders.orders[o.ID].IsRated = true
			}

			_, err := f.svc.RateOrder(context.Background(), tt.caller, "o1", []FoodRating{{FoodID: "f1", Value: 5}})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, f.catalog.food("f1").Rating.Count)
			assert.Zero(t, f.catalog.restaurant("r1").Rating.Count)
		})
	}
}

func TestRateOrder_TwiceRejected(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "o1", StateDelivered)

	_, err := f.svc.RateOrder(context.Background(), access.User("u1"), "o1", []FoodRating{{FoodID: "f1", Value: 5}})
	require.NoError(t, err)
	_, err = f.svc.RateOrder(context.Background(), access.User("u1"), "o1", []FoodRating{{FoodID: "f1", Value: 1}})
	require.ErrorIs(t, err, ErrAlreadyRated)

	assert.Equal(t, catalog.Rating{Mean: 5, Count: 1}, f.catalog.food("f1").Rating)
}

func TestRateOrder_ConcurrentNoLostUpdates(t *testing.T) {
	const n = 50

	f := newFixture(t)
	for i := range n {
		f.seedOrder(t, fmt.Sprintf("o%d", i), StateDelivered)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value := float64(i%5 + 1)
			_, errs[i] = f.svc.RateOrder(context.Background(), access.User("u1"), fmt.Sprintf("o%d", i), []FoodRating{
				{FoodID: "f1", Value: value},
			})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	// Values cycle 1..5 evenly, so the mean is 3.
	food := f.catalog.food("f1")
	assert.Equal(t, n, food.Rating.Count)
	assert.InDelta(t, 3.0, food.Rating.Mean, 1e-9)

	r := f.catalog.restaurant("r1")
	assert.Equal(t, n, r.Rating.Count)
	assert.InDelta(t, 3.0, r.Rating.Mean, 1e-9)
	assert.EqualValues(t, n, f.tx.calls.Load())
}
