// Package otsu selects a binary threshold for an integer-valued field by
// maximising between-class variance over its histogram.
//
// See "A Threshold Selection Method from Gray-Level Histograms", N. Otsu,
// doi:10.1109/TSMC.1979.4310076.
package otsu

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"hessianshape/internal/models"
)

// Tolerances for the per-threshold consistency checks
const (
	RelTol = 1e-6
	AbsTol = 1e-8
)

// ErrInvariantViolated indicates the class statistics at some threshold are
// inconsistent with the global statistics
var ErrInvariantViolated = errors.New("otsu: class statistics invariant violated")

// Histogram counts occurrences of each distinct integer value. Only values
// present in the field are stored, so wide 16-bit ranges stay small.
type Histogram struct {
	// Values holds the distinct values in ascending order
	Values []int64

	// Counts holds the occurrences of Values[i]
	Counts []int64

	// N is the total number of samples
	N int64
}

// NewHistogram builds the histogram of field with values truncated to int64
func NewHistogram(field *models.ScalarField) (*Histogram, error) {
	if field == nil || field.Len() == 0 {
		return nil, fmt.Errorf("%w: empty field", models.ErrInvalidParameter)
	}

	counts := make(map[int64]int64)
	for idx, v := range field.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: value %v at voxel %d", models.ErrInvalidParameter, v, idx)
		}
		counts[int64(v)]++
	}

	h := &Histogram{
		Values: make([]int64, 0, len(counts)),
		Counts: make([]int64, 0, len(counts)),
		N:      int64(field.Len()),
	}
	for v := range counts {
		h.Values = append(h.Values, v)
	}
	sort.Slice(h.Values, func(i, j int) bool { return h.Values[i] < h.Values[j] })
	for _, v := range h.Values {
		h.Counts = append(h.Counts, counts[v])
	}
	return h, nil
}

// Min returns the smallest value
func (h *Histogram) Min() int64 {
	return h.Values[0]
}

// Max returns the largest value
func (h *Histogram) Max() int64 {
	return h.Values[len(h.Values)-1]
}

// Prob returns the probability of Values[i]
func (h *Histogram) Prob(i int) float64 {
	return float64(h.Counts[i]) / float64(h.N)
}

// Mean returns the global mean sum(i * p_i)
func (h *Histogram) Mean() float64 {
	mean := 0.0
	for i, v := range h.Values {
		mean += float64(v) * h.Prob(i)
	}
	return mean
}

// Stats describes the two-class split at threshold K: class 0 holds values
// <= K, class 1 values > K.
type Stats struct {
	K int64

	// W0 and W1 are the class probabilities
	W0, W1 float64

	// U0 and U1 are the class means
	U0, U1 float64

	// Var0 and Var1 are the within-class variances
	Var0, Var1 float64

	// Within is W0*Var0 + W1*Var1
	Within float64

	// Between is W0*W1*(U1-U0)^2
	Between float64
}

// Sweep computes the split statistics at every candidate threshold, in
// ascending order. Candidates are every present value except the largest;
// integers between present values give the same split as the present value
// below them. Each split is checked against the global mean and variance.
func (h *Histogram) Sweep() ([]Stats, error) {
	n := len(h.Values)
	if n < 2 {
		return nil, nil
	}

	uT := h.Mean()

	// Moments are accumulated about the global mean to limit cancellation.
	total := 0.0
	for i, v := range h.Values {
		d := float64(v) - uT
		total += d * d * h.Prob(i)
	}

	// Suffix sums for class 1, built independently of the prefix sums so the
	// w0+w1 check is meaningful.
	w1s := make([]float64, n+1)
	m1s := make([]float64, n+1)
	q1s := make([]float64, n+1)
	for i := n - 1; i >= 0; i-- {
		p := h.Prob(i)
		d := float64(h.Values[i]) - uT
		w1s[i] = w1s[i+1] + p
		m1s[i] = m1s[i+1] + d*p
		q1s[i] = q1s[i+1] + d*d*p
	}

	out := make([]Stats, 0, n-1)
	var w0, m0, q0 float64
	for i := 0; i < n-1; i++ {
		p := h.Prob(i)
		d := float64(h.Values[i]) - uT
		w0 += p
		m0 += d * p
		q0 += d * d * p

		w1, m1, q1 := w1s[i+1], m1s[i+1], q1s[i+1]

		s := Stats{K: h.Values[i], W0: w0, W1: w1}
		c0, c1 := m0/w0, m1/w1
		s.U0, s.U1 = uT+c0, uT+c1
		s.Var0 = math.Max(0, q0/w0-c0*c0)
		s.Var1 = math.Max(0, q1/w1-c1*c1)
		s.Within = w0*s.Var0 + w1*s.Var1
		s.Between = w0 * w1 * (s.U1 - s.U0) * (s.U1 - s.U0)

		if err := s.check(uT, total); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (s Stats) check(uT, total float64) error {
	switch {
	case !isClose(s.W0+s.W1, 1):
		return fmt.Errorf("%w: k=%d w0+w1 = %v", ErrInvariantViolated, s.K, s.W0+s.W1)
	case !isClose(s.W0*s.U0+s.W1*s.U1, uT):
		return fmt.Errorf("%w: k=%d w0*u0+w1*u1 = %v, mean %v", ErrInvariantViolated, s.K, s.W0*s.U0+s.W1*s.U1, uT)
	case !isClose(s.Within+s.Between, total):
		return fmt.Errorf("%w: k=%d within+between = %v, total variance %v", ErrInvariantViolated, s.K, s.Within+s.Between, total)
	}
	return nil
}

// isClose reports |a-b| <= AbsTol + RelTol*|b|
func isClose(a, b float64) bool {
	return math.Abs(a-b) <= AbsTol+RelTol*math.Abs(b)
}

// Result is the selected threshold
type Result struct {
	// K is the threshold: class 0 holds values <= K
	K int64

	// Variance is the between-class variance at K
	Variance float64

	// Min and Max are the field's extrema after truncation
	Min, Max int64

	// Degenerate is set when K is the lowest bin, which includes fields
	// with a single distinct value
	Degenerate bool
}

// Err returns a wrapped ErrDegenerateThreshold for a degenerate result and
// nil otherwise
func (r Result) Err() error {
	if r.Degenerate {
		return fmt.Errorf("%w: k=%d is the lowest bin of [%d, %d]", models.ErrDegenerateThreshold, r.K, r.Min, r.Max)
	}
	return nil
}

// Threshold returns the Otsu threshold of field and the between-class
// variance there. Values are truncated to integers first. A degenerate
// result is logged and flagged but still returned.
func Threshold(field *models.ScalarField) (Result, error) {
	h, err := NewHistogram(field)
	if err != nil {
		return Result{}, err
	}
	sweep, err := h.Sweep()
	if err != nil {
		return Result{}, err
	}

	r := Result{K: h.Min(), Min: h.Min(), Max: h.Max()}
	for _, s := range sweep {
		if s.Between > r.Variance {
			r.Variance = s.Between
			r.K = s.K
		}
	}
	r.Degenerate = r.K == r.Min

	if r.Degenerate {
		log.Warn().Err(r.Err()).Int("distinct_values", len(h.Values)).
			Msg("otsu threshold at the lowest bin, few values above it?")
	}
	log.Debug().Int64("k", r.K).Float64("variance", r.Variance).Msg("otsu threshold")
	return r, nil
}

// Mask returns a copy of field with every voxel whose truncated value is
// <= k set to zero
func Mask(field *models.ScalarField, k int64) *models.ScalarField {
	out := field.Clone()
	for idx, v := range out.Data {
		if int64(v) <= k {
			out.Data[idx] = 0
		}
	}
	return out
}
