package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/food-orders/internal/domain/catalog"
)

const (
	foodColumns = `id, restaurant_id, name, ingredients, category, image,
		price, discount_percentage, rating, rating_count, created_at, updated_at`

	restaurantColumns = `id, admin_id, name, city, address, image,
		rating, rating_count, created_at, updated_at`

	getFoodSQL = `SELECT ` + foodColumns + ` FROM foods WHERE id = $1`

	getFoodsSQL = `SELECT ` + foodColumns + ` FROM foods WHERE id = ANY($1)`

	getRestaurantSQL = `SELECT ` + restaurantColumns + ` FROM restaurants WHERE id = $1`

	// Both increments read the current mean and count under the row lock
	// taken by UPDATE, so concurrent raters never overwrite each other.
	incrementFoodRatingSQL = `UPDATE foods
		SET rating = (rating * rating_count + $2) / (rating_count + 1),
			rating_count = rating_count + 1,
			updated_at = now()
		WHERE id = $1
		RETURNING ` + foodColumns

	incrementRestaurantRatingSQL = `UPDATE restaurants
		SET rating = (rating * rating_count + $2) / (rating_count + $3),
			rating_count = rating_count + $3,
			updated_at = now()
		WHERE id = $1
		RETURNING ` + restaurantColumns

	upsertFoodSQL = `INSERT INTO foods (id, restaurant_id, name, ingredients, category, image, price, discount_percentage)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			restaurant_id = EXCLUDED.restaurant_id,
			name = EXCLUDED.name,
			ingredients = EXCLUDED.ingredients,
			category = EXCLUDED.category,
			image = EXCLUDED.image,
			price = EXCLUDED.price,
			discount_percentage = EXCLUDED.discount_percentage,
			updated_at = now()`

	upsertRestaurantSQL = `INSERT INTO restaurants (id, admin_id, name, city, address, image)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			admin_id = EXCLUDED.admin_id,
			name = EXCLUDED.name,
			city = EXCLUDED.city,
			address = EXCLUDED.address,
			image = EXCLUDED.image,
			updated_at = now()`
)

var _ catalog.Gateway = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Gateway backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetFood returns a single food by its identifier.
func (r *CatalogRepository) GetFood(ctx context.Context, id string) (*catalog.Food, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getFoodSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting food %q: %w", id, err)
	}

	f, err := pgx.CollectExactlyOneRow(rows, scanFood)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting food %q: %w", id, err)
	}
	return &f, nil
}

// GetFoods returns the foods matching any of the given IDs. Unknown IDs are
// skipped.
func (r *CatalogRepository) GetFoods(ctx context.Context, ids []string) ([]catalog.Food, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := conn(ctx, r.pool).Query(ctx, getFoodsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting foods by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanFood)
}

// GetRestaurant returns a single restaurant by its identifier.
func (r *CatalogRepository) GetRestaurant(ctx context.Context, id string) (*catalog.Restaurant, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getRestaurantSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting restaurant %q: %w", id, err)
	}

	rest, err := pgx.CollectExactlyOneRow(rows, scanRestaurant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting restaurant %q: %w", id, err)
	}
	return &rest, nil
}

// IncrementFoodRating folds value into the food's running mean in one
// statement.
func (r *CatalogRepository) IncrementFoodRating(ctx context.Context, id string, value float64) (*catalog.Food, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, incrementFoodRatingSQL, id, value)
	if err != nil {
		return nil, fmt.Errorf("rating food %q: %w", id, err)
	}

	f, err := pgx.CollectExactlyOneRow(rows, scanFood)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("rating food %q: %w", id, err)
	}
	return &f, nil
}

// IncrementRestaurantRating folds count values summing to sum into the
// restaurant's running mean in one statement.
func (r *CatalogRepository) IncrementRestaurantRating(ctx context.Context, id string, sum float64, count int) (*catalog.Restaurant, error) {
	if count <= 0 {
		return r.GetRestaurant(ctx, id)
	}

	rows, err := conn(ctx, r.pool).Query(ctx, incrementRestaurantRatingSQL, id, sum, count)
	if err != nil {
		return nil, fmt.Errorf("rating restaurant %q: %w", id, err)
	}

	rest, err := pgx.CollectExactlyOneRow(rows, scanRestaurant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("rating restaurant %q: %w", id, err)
	}
	return &rest, nil
}

// UpsertRestaurant inserts or replaces a restaurant's descriptive fields.
// Ratings are left untouched.
func (r *CatalogRepository) UpsertRestaurant(ctx context.Context, rest *catalog.Restaurant) error {
	_, err := conn(ctx, r.pool).Exec(ctx, upsertRestaurantSQL,
		rest.ID, rest.AdminID, rest.Name, rest.City, rest.Address, rest.Image,
	)
	if err != nil {
		return fmt.Errorf("upserting restaurant %q: %w", rest.ID, err)
	}
	return nil
}

// UpsertFoods inserts or replaces foods in a single batch. Ratings are left
// untouched.
func (r *CatalogRepository) UpsertFoods(ctx context.Context, foods []catalog.Food) error {
	if len(foods) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range foods {
		f := &foods[i]
		batch.Queue(upsertFoodSQL,
			f.ID, f.RestaurantID, f.Name, f.Ingredients, f.Category, f.Image,
			f.Price, f.DiscountPercentage,
		)
	}

	br := conn(ctx, r.pool).SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	for i := range foods {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upserting food %q: %w", foods[i].ID, err)
		}
	}
	return nil
}

func scanFood(row pgx.CollectableRow) (catalog.Food, error) {
	var f catalog.Food
	err := row.Scan(
		&f.ID, &f.RestaurantID, &f.Name, &f.Ingredients, &f.Category, &f.Image,
		&f.Price, &f.DiscountPercentage, &f.Rating.Mean, &f.Rating.Count,
		&f.CreatedAt, &f.UpdatedAt,
	)
	return f, err
}

func scanRestaurant(row pgx.CollectableRow) (catalog.Restaurant, error) {
	var rest catalog.Restaurant
	err := row.Scan(
		&rest.ID, &rest.AdminID, &rest.Name, &rest.City, &rest.Address, &rest.Image,
		&rest.Rating.Mean, &rest.Rating.Count, &rest.CreatedAt, &rest.UpdatedAt,
	)
	return rest, err
}
