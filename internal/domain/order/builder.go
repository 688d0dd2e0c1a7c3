package order

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/food-orders/internal/domain/catalog"
)

// foodLookupConcurrency bounds parallel catalog lookups per basket.
const foodLookupConcurrency = 8

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	RestaurantID   string
	UserID         string
	Items          []LineItem
	Address        string
	PhoneToContact string
}

func (r CreateRequest) validate() error {
	switch {
	case strings.TrimSpace(r.RestaurantID) == "":
		return &InvalidOrderError{Reason: "restaurant is required"}
	case strings.TrimSpace(r.UserID) == "":
		return &InvalidOrderError{Reason: "user is required"}
	case strings.TrimSpace(r.Address) == "":
		return &InvalidOrderError{Reason: "address is required"}
	case strings.TrimSpace(r.PhoneToContact) == "":
		return &InvalidOrderError{Reason: "phone to contact is required"}
	case len(r.Items) == 0:
		return &InvalidOrderError{Reason: "items required"}
	}
	for _, item := range r.Items {
		if item.FoodID == "" {
			return &InvalidOrderError{Reason: "food is required for every item"}
		}
		if item.Count <= 0 {
			return &InvalidOrderError{FoodID: item.FoodID, Reason: "count must be greater than 0"}
		}
	}
	return nil
}

// resolveBasket fetches every requested food and checks that it is served by
// restaurantID. Any failing line rejects the whole basket. The returned foods
// are aligned with items.
func resolveBasket(ctx context.Context, gw catalog.Gateway, restaurantID string, items []LineItem) ([]catalog.Food, error) {
	foods := make([]catalog.Food, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(foodLookupConcurrency)
	for i, item := range items {
		g.Go(func() error {
			f, err := gw.GetFood(gctx, item.FoodID)
			if err != nil {
				if errors.Is(err, catalog.ErrNotFound) {
					return &InvalidOrderError{FoodID: item.FoodID, Reason: "does not exist"}
				}
				return errors.Wrapf(err, "get food %s", item.FoodID)
			}
			if f.RestaurantID != restaurantID {
				return &InvalidOrderError{FoodID: item.FoodID, Reason: "is not served by this restaurant"}
			}
			foods[i] = *f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return foods, nil
}

// priceBasket computes the pre-discount and post-discount totals of a basket
// from a snapshot of its foods:
//
//	totalPrice = Σ price*count
//	totalSum   = Σ price*count*(100-discount)/100
func priceBasket(items []LineItem, foods []catalog.Food) (totalPrice, totalSum decimal.Decimal) {
	totalPrice = decimal.Zero
	totalSum = decimal.Zero
	for i, item := range items {
		count := decimal.NewFromInt(int64(item.Count))
		totalPrice = totalPrice.Add(foods[i].Price.Mul(count))
		totalSum = totalSum.Add(foods[i].DiscountedPrice().Mul(count))
	}
	return totalPrice.Round(2), totalSum.Round(2)
}
