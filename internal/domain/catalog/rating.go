package catalog

// Rating is a running arithmetic mean over Count historical values.
type Rating struct {
	Mean  float64
	Count int
}

// Add returns the rating after folding in n values that sum to sum:
//
//	mean' = (mean*count + sum) / (count + n)
//
// A zero or negative n leaves the rating unchanged.
func (r Rating) Add(sum float64, n int) Rating {
	if n <= 0 {
		return r
	}
	total := r.Mean*float64(r.Count) + sum
	count := r.Count + n
	return Rating{
		Mean:  total / float64(count),
		Count: count,
	}
}
