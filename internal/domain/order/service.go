// Package order implements placement, lifecycle and rating of food-delivery
// orders.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/food-orders/internal/domain/access"
	"github.com/xenking/food-orders/internal/domain/catalog"
	"github.com/xenking/food-orders/internal/domain/party"
)

const meterName = "github.com/xenking/food-orders/internal/domain/order"

// Service encapsulates order business logic.
type Service struct {
	catalog catalog.Gateway
	parties party.Directory
	orders  Repository
	tx      Transactor
	guard   *access.Guard

	events  EventPublisher
	limits  PageLimits
	meter   metric.Meter
	metrics *serviceMetrics
	now     func() time.Time
	newID   func() string
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the destination of order events.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithMeterProvider records service counters with mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter(meterName) }
}

// WithPageLimits overrides the default and maximum listing page size.
func WithPageLimits(l PageLimits) Option {
	return func(s *Service) { s.limits = l }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides how new order ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService creates an order Service with the required collaborators.
func NewService(
	gw catalog.Gateway,
	parties party.Directory,
	orders Repository,
	tx Transactor,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		catalog: gw,
		parties: parties,
		orders:  orders,
		tx:      tx,
		guard:   access.NewGuard(parties),
		events:  nopPublisher{},
		limits:  PageLimits{Default: 20, Max: 100},
		meter:   noop.NewMeterProvider().Meter(meterName),
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}

	m, err := newServiceMetrics(s.meter)
	if err != nil {
		return nil, errors.Wrap(err, "create metrics")
	}
	s.metrics = m

	return s, nil
}

// CreateOrder validates the basket against the restaurant's catalog, freezes
// prices into totals and persists the order in the preparing state. Nothing is
// written unless every line item is valid.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (*Details, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	restaurant, err := s.catalog.GetRestaurant(ctx, req.RestaurantID)
	if err != nil {
		return nil, errors.Wrap(err, "get restaurant")
	}
	if _, err := s.parties.GetUser(ctx, req.UserID); err != nil {
		return nil, errors.Wrap(err, "get user")
	}

	items := make([]LineItem, len(req.Items))
	copy(items, req.Items)

	foods, err := resolveBasket(ctx, s.catalog, restaurant.ID, items)
	if err != nil {
		return nil, err
	}
	totalPrice, totalSum := priceBasket(items, foods)

	now := s.now().UTC()
	o := &Order{
		ID:             s.newID(),
		RestaurantID:   restaurant.ID,
		UserID:         req.UserID,
		Items:          items,
		Address:        req.Address,
		PhoneToContact: req.PhoneToContact,
		TotalPrice:     totalPrice,
		TotalSum:       totalSum,
		State:          StatePreparing,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	s.metrics.created.Add(ctx, 1)
	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("restaurant_id", o.RestaurantID),
		zap.Stringer("total_sum", o.TotalSum),
	)
	s.publish(ctx, Event{
		Type:         EventCreated,
		OrderID:      o.ID,
		RestaurantID: o.RestaurantID,
		UserID:       o.UserID,
		State:        o.State,
		TotalSum:     o.TotalSum,
	})

	lines := make([]Line, len(items))
	for i, item := range items {
		lines[i] = Line{LineItem: item, Food: &foods[i]}
	}
	return &Details{Order: o, Restaurant: restaurant, Lines: lines}, nil
}

// GetOrder returns an order to the admin owning its restaurant or the user
// who placed it.
func (s *Service) GetOrder(ctx context.Context, caller access.Identity, id string) (*Details, error) {
	if caller.Kind == access.KindUnknown {
		return nil, access.ErrUnauthorized
	}

	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "find order")
	}
	if err := s.guard.CanRead(ctx, caller, o.Ownership()); err != nil {
		return nil, err
	}
	return s.populateOne(ctx, o)
}

// ListOrders returns a page of the caller's orders: those of the admin's
// restaurant, or those the user placed.
func (s *Service) ListOrders(ctx context.Context, caller access.Identity, opts ListOptions) (*ListResult, error) {
	var filter Filter
	switch caller.Kind {
	case access.KindAdmin:
		restaurantID, err := s.parties.RestaurantOfAdmin(ctx, caller.ID)
		if err != nil {
			if errors.Is(err, party.ErrNoRestaurant) {
				return nil, ErrNotFound
			}
			return nil, errors.Wrap(err, "resolve admin restaurant")
		}
		filter.RestaurantID = restaurantID
	case access.KindUser:
		filter.UserID = caller.ID
	default:
		return nil, access.ErrUnauthorized
	}

	if opts.State != "" && !opts.State.Valid() {
		return nil, errors.Wrapf(ErrInvalidQuery, "state %q", opts.State)
	}
	if _, err := ParseSortField(string(opts.SortBy)); err != nil {
		return nil, errors.Wrap(ErrInvalidQuery, err.Error())
	}
	if _, err := ParseSortOrder(string(opts.SortOrder)); err != nil {
		return nil, errors.Wrap(ErrInvalidQuery, err.Error())
	}
	filter.State = opts.State
	page := s.limits.page(opts)

	var (
		orders []Order
		count  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if orders, err = s.orders.Find(gctx, filter, page); err != nil {
			return errors.Wrap(err, "find orders")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if count, err = s.orders.Count(gctx, filter); err != nil {
			return errors.Wrap(err, "count orders")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	details, err := s.populate(ctx, orders)
	if err != nil {
		return nil, err
	}
	return &ListResult{Orders: details, Count: count}, nil
}

// TransitionState advances an order along the lifecycle. Only the admin
// owning the order's restaurant may do so, and only along an allowed edge.
func (s *Service) TransitionState(ctx context.Context, caller access.Identity, id string, next State) (*Details, error) {
	restaurantID, err := s.guard.RestaurantOf(ctx, caller)
	if err != nil {
		return nil, err
	}

	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "find order")
	}
	if o.RestaurantID != restaurantID {
		return nil, access.ErrForbidden
	}
	if !o.State.CanTransitionTo(next) {
		return nil, &StateTransitionError{From: o.State, To: next}
	}

	updated, err := s.orders.UpdateState(ctx, o.ID, o.State, next)
	if err != nil {
		if !errors.Is(err, ErrStateConflict) {
			return nil, errors.Wrap(err, "update order state")
		}
		// Lost the race: report against the state that won.
		current, ferr := s.orders.FindByID(ctx, o.ID)
		if ferr != nil {
			return nil, errors.Wrap(ferr, "reload order")
		}
		return nil, &StateTransitionError{From: current.State, To: next}
	}

	s.metrics.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(o.State)),
		attribute.String("to", string(next)),
	))
	zctx.From(ctx).Info("Order state changed",
		zap.String("order_id", o.ID),
		zap.Stringer("from", o.State),
		zap.Stringer("to", next),
	)
	s.publish(ctx, Event{
		Type:         EventStateChanged,
		OrderID:      updated.ID,
		RestaurantID: updated.RestaurantID,
		UserID:       updated.UserID,
		State:        updated.State,
		PrevState:    o.State,
		TotalSum:     updated.TotalSum,
	})

	return s.populateOne(ctx, updated)
}

// RateOrder folds the user's per-food ratings into the catalog means and
// marks the order rated. Ratings for foods outside the order or out of range
// are dropped. The flag and every increment commit together.
func (s *Service) RateOrder(ctx context.Context, caller access.Identity, id string, ratings []FoodRating) (*RateResult, error) {
	switch caller.Kind {
	case access.KindUser:
	case access.KindAdmin:
		return nil, access.ErrForbidden
	default:
		return nil, access.ErrUnauthorized
	}

	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "find order")
	}
	if err := s.guard.CanRate(caller, o.Ownership()); err != nil {
		// Someone else's order is reported as absent.
		return nil, ErrNotFound
	}
	if o.IsRated {
		return nil, ErrAlreadyRated
	}
	if o.State != StateDelivered {
		return nil, ErrNotRatable
	}

	restaurant, err := s.catalog.GetRestaurant(ctx, o.RestaurantID)
	if err != nil {
		return nil, errors.Wrap(err, "get restaurant")
	}

	valid, discarded := partitionRatings(o, ratings)
	result := &RateResult{Restaurant: restaurant.Rating}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.orders.MarkRated(ctx, o.ID); err != nil {
			return errors.Wrap(err, "mark rated")
		}

		applied := make([]FoodRating, 0, len(valid))
		for _, r := range valid {
			if _, err := s.catalog.IncrementFoodRating(ctx, r.FoodID, r.Value); err != nil {
				if errors.Is(err, catalog.ErrNotFound) {
					continue
				}
				return errors.Wrapf(err, "rate food %s", r.FoodID)
			}
			applied = append(applied, r)
		}
		result.Applied = applied
		result.Discarded = discarded + len(valid) - len(applied)

		if len(applied) == 0 {
			return nil
		}
		updated, err := s.catalog.IncrementRestaurantRating(ctx, restaurant.ID, sumRatings(applied), len(applied))
		if err != nil {
			return errors.Wrap(err, "rate restaurant")
		}
		result.Restaurant = updated.Rating
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ratings.Add(ctx, int64(len(result.Applied)))
	s.metrics.discarded.Add(ctx, int64(result.Discarded))
	zctx.From(ctx).Info("Order rated",
		zap.String("order_id", o.ID),
		zap.Int("applied", len(result.Applied)),
		zap.Int("discarded", result.Discarded),
	)
	s.publish(ctx, Event{
		Type:         EventRated,
		OrderID:      o.ID,
		RestaurantID: o.RestaurantID,
		UserID:       o.UserID,
		State:        o.State,
		TotalSum:     o.TotalSum,
		Ratings:      result.Applied,
	})

	return result, nil
}

func (s *Service) publish(ctx context.Context, e Event) {
	e.OccurredAt = s.now().UTC()
	if err := s.events.Publish(ctx, e); err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.String("type", string(e.Type)),
			zap.String("order_id", e.OrderID),
			zap.Error(err),
		)
	}
}

func (s *Service) populateOne(ctx context.Context, o *Order) (*Details, error) {
	details, err := s.populate(ctx, []Order{*o})
	if err != nil {
		return nil, err
	}
	return &details[0], nil
}

// populate joins orders with their restaurants and foods as they currently
// stand in the catalog.
func (s *Service) populate(ctx context.Context, orders []Order) ([]Details, error) {
	if len(orders) == 0 {
		return []Details{}, nil
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, o := range orders {
		for _, item := range o.Items {
			if _, ok := seen[item.FoodID]; ok {
				continue
			}
			seen[item.FoodID] = struct{}{}
			ids = append(ids, item.FoodID)
		}
	}

	foods, err := s.catalog.GetFoods(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get foods")
	}
	foodByID := make(map[string]*catalog.Food, len(foods))
	for i := range foods {
		foodByID[foods[i].ID] = &foods[i]
	}

	restaurants := make(map[string]*catalog.Restaurant)
	details := make([]Details, len(orders))
	for i := range orders {
		o := &orders[i]

		r, ok := restaurants[o.RestaurantID]
		if !ok {
			r, err = s.catalog.GetRestaurant(ctx, o.RestaurantID)
			if err != nil && !errors.Is(err, catalog.ErrNotFound) {
				return nil, errors.Wrapf(err, "get restaurant %s", o.RestaurantID)
			}
			restaurants[o.RestaurantID] = r
		}

		lines := make([]Line, len(o.Items))
		for j, item := range o.Items {
			lines[j] = Line{LineItem: item, Food: foodByID[item.FoodID]}
		}
		details[i] = Details{Order: o, Restaurant: r, Lines: lines}
	}
	return details, nil
}
