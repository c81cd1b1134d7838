// Package aggregate folds raw rows into fixed-width buckets in memory.
package aggregate

import (
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
)

// Series maintains running statistics of one value series.
// It supports optional percentile calculation using DDSketch.
// Series is not safe for concurrent use.
type Series struct {
	count int64
	sum   float64
	min   float64
	max   float64

	// DDSketch for percentiles (nil if disabled)
	sketch *ddsketch.DDSketch
}

// NewSeries creates an empty series without percentiles.
func NewSeries() *Series {
	return &Series{
		min: math.MaxFloat64,
		max: -math.MaxFloat64,
	}
}

// NewSeriesWithAccuracy creates an empty series that tracks percentiles
// with the given relative accuracy.
func NewSeriesWithAccuracy(accuracy float64) *Series {
	s := NewSeries()

	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err == nil {
		s.sketch = sketch
	}

	return s
}

// Add adds a value to the series.
func (s *Series) Add(value float64) {
	s.count++
	s.sum += value

	if value < s.min {
		s.min = value
	}
	if value > s.max {
		s.max = value
	}

	if s.sketch != nil {
		_ = s.sketch.Add(value)
	}
}

// Count returns the number of values added.
func (s *Series) Count() int64 {
	return s.count
}

// Min returns the smallest value, or 0 for an empty series.
func (s *Series) Min() float64 {
	if s.count == 0 {
		return 0
	}
	return s.min
}

// Max returns the largest value, or 0 for an empty series.
func (s *Series) Max() float64 {
	if s.count == 0 {
		return 0
	}
	return s.max
}

// Avg returns the mean, or 0 for an empty series.
func (s *Series) Avg() float64 {
	if s.count == 0 {
		return 0
	}
	return s.sum / float64(s.count)
}

// Quantile returns the value at quantile q. ok is false when percentiles
// are disabled or the series is empty.
func (s *Series) Quantile(q float64) (value float64, ok bool) {
	if s.sketch == nil || s.count == 0 {
		return 0, false
	}
	v, err := s.sketch.GetValueAtQuantile(q)
	if err != nil {
		return 0, false
	}
	return v, true
}
