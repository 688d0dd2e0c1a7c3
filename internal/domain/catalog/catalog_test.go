package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRatingAdd(t *testing.T) {
	tests := []struct {
		name      string
		start     Rating
		sum       float64
		n         int
		wantMean  float64
		wantCount int
	}{
		{name: "first rating", start: Rating{}, sum: 4, n: 1, wantMean: 4, wantCount: 1},
		{name: "single value into existing mean", start: Rating{Mean: 4, Count: 3}, sum: 5, n: 1, wantMean: 4.25, wantCount: 4},
		{name: "batch of values", start: Rating{Mean: 3, Count: 2}, sum: 9, n: 2, wantMean: 3.75, wantCount: 4},
		{name: "empty batch is a no-op", start: Rating{Mean: 2.5, Count: 8}, sum: 0, n: 0, wantMean: 2.5, wantCount: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.start.Add(tt.sum, tt.n)
			assert.InDelta(t, tt.wantMean, got.Mean, 1e-9)
			assert.Equal(t, tt.wantCount, got.Count)
		})
	}
}

func TestRatingAdd_OrderIndependent(t *testing.T) {
	values := []float64{5, 1, 3, 4, 2}

	forward := Rating{Mean: 3, Count: 10}
	for _, v := range values {
		forward = forward.Add(v, 1)
	}

	backward := Rating{Mean: 3, Count: 10}
	for i := len(values) - 1; i >= 0; i-- {
		backward = backward.Add(values[i], 1)
	}

	batch := Rating{Mean: 3, Count: 10}.Add(15, len(values))

	assert.InDelta(t, forward.Mean, backward.Mean, 1e-9)
	assert.InDelta(t, forward.Mean, batch.Mean, 1e-9)
	assert.Equal(t, 15, batch.Count)
}

func TestFoodDiscountedPrice(t *testing.T) {
	f := Food{
		Price:              decimal.NewFromInt(100),
		DiscountPercentage: decimal.NewFromInt(10),
	}
	assert.True(t, decimal.NewFromInt(90).Equal(f.DiscountedPrice()))

	f.DiscountPercentage = decimal.Zero
	assert.True(t, decimal.NewFromInt(100).Equal(f.DiscountedPrice()))
}
