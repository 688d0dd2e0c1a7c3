package order

import "github.com/xenking/food-orders/internal/domain/catalog"

// FoodRating is a customer's score for one food of an order.
type FoodRating struct {
	FoodID string
	Value  float64
}

// RateResult reports what a rating submission changed.
type RateResult struct {
	Applied    []FoodRating
	Discarded  int
	Restaurant catalog.Rating
}

// partitionRatings keeps every rating whose food is part of o, in submission
// order. Ratings for other foods are counted as discarded.
func partitionRatings(o *Order, ratings []FoodRating) (valid []FoodRating, discarded int) {
	for _, r := range ratings {
		if !o.HasFood(r.FoodID) {
			discarded++
			continue
		}
		valid = append(valid, r)
	}
	return valid, discarded
}

func sumRatings(ratings []FoodRating) float64 {
	var sum float64
	for _, r := range ratings {
		sum += r.Value
	}
	return sum
}
