package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/food-orders/internal/domain/catalog"
	"github.com/xenking/food-orders/internal/domain/party"
	"github.com/xenking/food-orders/internal/repository"
)

type seedFile struct {
	Admins      []adminJSON      `json:"admins"`
	Users       []userJSON       `json:"users"`
	Restaurants []restaurantJSON `json:"restaurants"`
}

type adminJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type userJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type restaurantJSON struct {
	ID      string     `json:"id"`
	Admin   string     `json:"admin"`
	Name    string     `json:"name"`
	City    string     `json:"city"`
	Address string     `json:"address"`
	Image   string     `json:"image"`
	Foods   []foodJSON `json:"foods"`
}

type foodJSON struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Ingredients        string          `json:"ingredients"`
	Category           string          `json:"category"`
	Image              string          `json:"image"`
	Price              decimal.Decimal `json:"price"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
}

func main() {
	var (
		databaseURL string
		seedPath    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/seed.json", "path to seed JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath string) error {
	seed, err := readSeed(seedPath)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if _, err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	parties := repository.NewPartyRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)

	// One transaction: a half-seeded catalog is worse than none.
	return repository.NewTxManager(pool).InTx(ctx, func(ctx context.Context) error {
		if err := seedParties(ctx, parties, seed); err != nil {
			return errors.Wrap(err, "seed parties")
		}
		if err := seedCatalog(ctx, catalogRepo, seed); err != nil {
			return errors.Wrap(err, "seed catalog")
		}
		return nil
	})
}

func readSeed(path string) (*seedFile, error) {
	slog.Info("reading seed file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, errors.Wrap(err, "parse seed JSON")
	}
	if err := seed.validate(); err != nil {
		return nil, errors.Wrap(err, "validate seed")
	}
	return &seed, nil
}

// validate checks references inside the file: every restaurant names a
// declared admin, no admin owns two restaurants and food names are unique.
func (s *seedFile) validate() error {
	admins := make(map[string]bool, len(s.Admins))
	for _, a := range s.Admins {
		if a.ID == "" {
			return errors.New("admin without id")
		}
		admins[a.ID] = false
	}

	foodNames := make(map[string]string)
	for _, r := range s.Restaurants {
		owned, ok := admins[r.Admin]
		switch {
		case r.ID == "":
			return errors.New("restaurant without id")
		case !ok:
			return errors.Errorf("restaurant %s: unknown admin %q", r.ID, r.Admin)
		case owned:
			return errors.Errorf("restaurant %s: admin %s already owns a restaurant", r.ID, r.Admin)
		}
		admins[r.Admin] = true

		for _, f := range r.Foods {
			if f.ID == "" || f.Name == "" {
				return errors.Errorf("restaurant %s: food without id or name", r.ID)
			}
			if other, dup := foodNames[f.Name]; dup {
				return errors.Errorf("food name %q used by %s and %s", f.Name, other, f.ID)
			}
			foodNames[f.Name] = f.ID
			if f.Price.IsNegative() {
				return errors.Errorf("food %s: negative price", f.ID)
			}
			if f.DiscountPercentage.IsNegative() || f.DiscountPercentage.GreaterThan(decimal.NewFromInt(100)) {
				return errors.Errorf("food %s: discount out of range", f.ID)
			}
		}
	}
	return nil
}

func seedParties(ctx context.Context, repo *repository.PartyRepository, seed *seedFile) error {
	slog.Info("upserting parties", slog.Int("admins", len(seed.Admins)), slog.Int("users", len(seed.Users)))

	for _, a := range seed.Admins {
		if err := repo.UpsertAdmin(ctx, &party.Admin{ID: a.ID, Name: a.Name, Email: a.Email}); err != nil {
			return err
		}
	}
	for _, u := range seed.Users {
		if err := repo.UpsertUser(ctx, &party.User{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}); err != nil {
			return err
		}
	}
	return nil
}

func seedCatalog(ctx context.Context, repo *repository.CatalogRepository, seed *seedFile) error {
	for _, r := range seed.Restaurants {
		if err := repo.UpsertRestaurant(ctx, &catalog.Restaurant{
			ID:      r.ID,
			AdminID: r.Admin,
			Name:    r.Name,
			City:    r.City,
			Address: r.Address,
			Image:   r.Image,
		}); err != nil {
			return err
		}

		foods := make([]catalog.Food, 0, len(r.Foods))
		for _, f := range r.Foods {
			foods = append(foods, catalog.Food{
				ID:                 f.ID,
				RestaurantID:       r.ID,
				Name:               f.Name,
				Ingredients:        f.Ingredients,
				Category:           f.Category,
				Image:              f.Image,
				Price:              f.Price,
				DiscountPercentage: f.DiscountPercentage,
			})
		}
		if err := repo.UpsertFoods(ctx, foods); err != nil {
			return err
		}

		slog.Info("upserted restaurant",
			slog.String("id", r.ID),
			slog.String("name", r.Name),
			slog.Int("foods", len(foods)),
		)
	}
	return nil
}
