// Package rating aggregates user ratings into a running average that damps
// the effect of statistically unusual submissions.
package rating

import "sort"

// DefaultOutlierWeight is the contribution an outlier rating makes relative to
// a normal one. An older test suite asserted 0.7; production has always used
// 0.5, so callers that need the other value configure it on Aggregator.
const DefaultOutlierWeight = 0.5

const (
	// minHistory is the smallest history that can produce a usable IQR.
	minHistory      = 4
	fenceMultiplier = 1.5
)

// History is a read-only snapshot of a subject's rating statistics.
// Nil Average and Count are treated as zero.
type History struct {
	Ratings []float64
	Average *float64
	Count   *int
}

func (h History) average() float64 {
	if h.Average == nil {
		return 0
	}
	return *h.Average
}

func (h History) count() int {
	if h.Count == nil {
		return 0
	}
	return *h.Count
}

// Result carries the new running average and whether the submitted value was
// treated as an outlier.
type Result struct {
	Average float64
	Outlier bool
}

// Aggregator computes running-average updates. The zero value uses
// DefaultOutlierWeight.
type Aggregator struct {
	Weight float64
}

// New returns an Aggregator with the given outlier weight, falling back to
// DefaultOutlierWeight when weight is outside (0, 1].
func New(weight float64) Aggregator {
	if weight <= 0 || weight > 1 {
		weight = DefaultOutlierWeight
	}
	return Aggregator{Weight: weight}
}

func (a Aggregator) weight() float64 {
	if a.Weight <= 0 || a.Weight > 1 {
		return DefaultOutlierWeight
	}
	return a.Weight
}

// Update folds value into the running average described by h. The count is not
// incremented; persisting count+1 is the caller's job.
func (a Aggregator) Update(h History, value float64) Result {
	outlier := IsOutlier(h.Ratings, value)
	count := h.count()
	if count == 0 {
		return Result{Average: value, Outlier: outlier}
	}

	total := h.average() * float64(count)
	if !outlier {
		return Result{Average: (total + value) / float64(count+1)}
	}
	w := a.weight()
	return Result{Average: (total + w*value) / (float64(count) + w), Outlier: true}
}

// UpdateAverage is Update with DefaultOutlierWeight, returning only the average.
func UpdateAverage(h History, value float64) float64 {
	return Aggregator{}.Update(h, value).Average
}

// IsOutlier reports whether value falls strictly outside the Tukey fences of
// ratings. Histories shorter than four entries never produce outliers.
func IsOutlier(ratings []float64, value float64) bool {
	lower, upper, ok := Fences(ratings)
	if !ok {
		return false
	}
	return value < lower || value > upper
}

// Fences returns the lower and upper Tukey fences for ratings. Quartiles are
// the medians of the lower and upper halves of the sorted values; for an odd
// count the middle element belongs to neither half. ok is false when the
// history is too short.
func Fences(ratings []float64) (lower, upper float64, ok bool) {
	n := len(ratings)
	if n < minHistory {
		return 0, 0, false
	}

	sorted := make([]float64, n)
	copy(sorted, ratings)
	sort.Float64s(sorted)

	q1 := median(sorted[:n/2])
	q3 := median(sorted[(n+1)/2:])
	iqr := q3 - q1
	return q1 - fenceMultiplier*iqr, q3 + fenceMultiplier*iqr, true
}

// median expects sorted, non-empty input.
func median(xs []float64) float64 {
	mid := len(xs) / 2
	if len(xs)%2 == 0 {
		return (xs[mid-1] + xs[mid]) / 2
	}
	return xs[mid]
}
