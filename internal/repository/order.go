package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/food-orders/internal/domain/order"
)

const (
	orderColumns = `id, restaurant_id, user_id, items, address, phone_to_contact,
		total_price, total_sum, state, is_rated, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (id, restaurant_id, user_id, items, address, phone_to_contact,
		total_price, total_sum, state, is_rated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	updateOrderStateSQL = `UPDATE orders SET state = $3, updated_at = now()
		WHERE id = $1 AND state = $2
		RETURNING ` + orderColumns

	markOrderRatedSQL = `UPDATE orders SET is_rated = TRUE, updated_at = now()
		WHERE id = $1 AND state = 'delivered' AND NOT is_rated`

	orderRatableSQL = `SELECT state, is_rated FROM orders WHERE id = $1`
)

// sortColumns maps listing sort fields onto columns. Only these values are
// ever interpolated into SQL.
var sortColumns = map[order.SortField]string{
	order.SortByCreatedAt: "created_at",
	order.SortByUpdatedAt: "updated_at",
	order.SortByTotalSum:  "total_sum",
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The line items are serialized to JSON for
// storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	_, err = conn(ctx, r.pool).Exec(ctx, createOrderSQL,
		o.ID, o.RestaurantID, o.UserID, itemsJSON, o.Address, o.PhoneToContact,
		o.TotalPrice, o.TotalSum, string(o.State), o.IsRated, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	return nil
}

// FindByID returns a single order.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// Find returns one page of orders matching filter.
func (r *OrderRepository) Find(ctx context.Context, filter order.Filter, page order.Page) ([]order.Order, error) {
	where, args := whereClause(filter)

	column, ok := sortColumns[page.SortBy]
	if !ok {
		column = sortColumns[order.SortByCreatedAt]
	}
	direction := "ASC"
	if page.SortOrder == order.SortDesc {
		direction = "DESC"
	}

	args = append(args, page.Limit, page.Skip)
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`,
		orderColumns, where, column, direction, direction, len(args)-1, len(args))

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// Count returns the number of orders matching filter.
func (r *OrderRepository) Count(ctx context.Context, filter order.Filter) (int, error) {
	where, args := whereClause(filter)

	var n int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT count(*) FROM orders`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting orders: %w", err)
	}
	return n, nil
}

// UpdateState moves an order from one state to another only if it is still in
// from.
func (r *OrderRepository) UpdateState(ctx context.Context, id string, from, to order.State) (*order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, updateOrderStateSQL, id, string(from), string(to))
	if err != nil {
		return nil, fmt.Errorf("updating order %q state: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err == nil {
		return &o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("updating order %q state: %w", id, err)
	}

	if _, err := r.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, order.ErrStateConflict
}

// MarkRated sets the rated flag on a delivered order that has not been rated.
func (r *OrderRepository) MarkRated(ctx context.Context, id string) error {
	q := conn(ctx, r.pool)

	tag, err := q.Exec(ctx, markOrderRatedSQL, id)
	if err != nil {
		return fmt.Errorf("marking order %q rated: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var (
		state string
		rated bool
	)
	if err := q.QueryRow(ctx, orderRatableSQL, id).Scan(&state, &rated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return fmt.Errorf("checking order %q: %w", id, err)
	}
	if rated {
		return order.ErrAlreadyRated
	}
	return order.ErrNotRatable
}

func whereClause(f order.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.RestaurantID != "" {
		add("restaurant_id = $%d", f.RestaurantID)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.State != "" {
		add("state = $%d", string(f.State))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		itemsJSON []byte
		state     string
	)
	err := row.Scan(
		&o.ID, &o.RestaurantID, &o.UserID, &itemsJSON, &o.Address, &o.PhoneToContact,
		&o.TotalPrice, &o.TotalSum, &state, &o.IsRated, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.State = order.State(state)
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items of order %q: %w", o.ID, err)
	}
	return o, nil
}
