// Package shape scores how tube-like (vesselness) and blob-like
// (clumpiness) each voxel of a volume is, across several Gaussian scales.
package shape

import (
	"fmt"
	"math"
	"runtime"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"hessianshape/internal/models"
	"hessianshape/internal/parallel"
	"hessianshape/pkg/hessian"
)

// Default response shaping constants (Frangi et al.)
const (
	DefaultAlpha = 2.0
	DefaultBeta  = 2.0
)

// belowOne is the largest float64 less than 1
var belowOne = math.Nextafter(1, 0)

// Options controls the classifier
type Options struct {
	// Alpha shapes the eigenvalue-ratio term
	Alpha float64

	// Beta shapes the normalised Frobenius term
	Beta float64

	// Workers is the number of goroutines per pass; below one uses every core
	Workers int
}

// DefaultOptions returns alpha = beta = 2 using every core
func DefaultOptions() Options {
	return Options{
		Alpha:   DefaultAlpha,
		Beta:    DefaultBeta,
		Workers: runtime.NumCPU(),
	}
}

func (o Options) validate() error {
	if !(o.Alpha > 0) || math.IsInf(o.Alpha, 0) {
		return fmt.Errorf("%w: alpha %v must be positive", models.ErrInvalidParameter, o.Alpha)
	}
	if !(o.Beta > 0) || math.IsInf(o.Beta, 0) {
		return fmt.Errorf("%w: beta %v must be positive", models.ErrInvalidParameter, o.Beta)
	}
	return nil
}

// GuardCounts records how often a zero denominator or the background rule
// forced a response to zero at one scale
type GuardCounts struct {
	// Background counts voxels with e3 == 0 or intensity below the mean
	Background int64

	// ZeroE2 counts voxels whose vesselness ratio |e1/e2| was undefined
	ZeroE2 int64

	// ZeroMaxFrob is set when the whole scale had no second-derivative energy
	ZeroMaxFrob bool
}

// Response holds the per-scale classifier output
type Response struct {
	Sigma      float64
	Vesselness *models.ScalarField
	Clumpiness *models.ScalarField

	// MaxFrob is the field-wide maximum Frobenius norm at this scale
	MaxFrob float64

	Guards GuardCounts
}

// FrobAccumulator tracks the running maximum Frobenius norm of one scale.
// It is not safe for concurrent use; give each worker its own and Merge.
type FrobAccumulator struct {
	max float64
}

// Observe folds one voxel's norm into the maximum
func (a *FrobAccumulator) Observe(f float64) {
	if f > a.max {
		a.max = f
	}
}

// Merge folds another accumulator into this one
func (a *FrobAccumulator) Merge(other FrobAccumulator) {
	a.Observe(other.max)
}

// Max returns the largest norm observed, or 0 if none
func (a *FrobAccumulator) Max() float64 {
	return a.max
}

// Voxel carries the inputs needed to score one voxel
type Voxel struct {
	Eigen     hessian.EigenTriple
	Intensity float64
}

// Scorer holds the scale-wide quantities needed to score voxels
type Scorer struct {
	Alpha, Beta float64

	// Mean is the global mean intensity of the analysed field
	Mean float64

	// MaxFrob is the maximum Frobenius norm at this scale
	MaxFrob float64
}

// Outcome reports which guards fired for a voxel; zero means none did
type Outcome uint8

const (
	// OutcomeBackground: e3 == 0 or the voxel is darker than the mean
	OutcomeBackground Outcome = 1 << iota
	// OutcomeZeroE2: |e1/e2| was undefined
	OutcomeZeroE2
	// OutcomeZeroMaxFrob: the scale has no second-derivative energy
	OutcomeZeroMaxFrob
)

// Score computes vesselness and clumpiness for one voxel. Every guard
// resolves to a zero response; the result never holds NaN or Inf and both
// values lie in [0, 1).
func (s Scorer) Score(v Voxel) (vesselness, clumpiness float64, outcome Outcome) {
	if s.MaxFrob == 0 {
		return 0, 0, OutcomeZeroMaxFrob
	}

	e1, e2, e3 := v.Eigen.Values[0], v.Eigen.Values[1], v.Eigen.Values[2]
	if e3 == 0 || v.Intensity < s.Mean {
		return 0, 0, OutcomeBackground
	}

	fnorm := v.Eigen.Frobenius() / s.MaxFrob
	energy := 1 - math.Exp(-s.Beta*fnorm*fnorm)

	if e2 == 0 {
		outcome |= OutcomeZeroE2
	} else {
		rc := math.Abs(e1 / e2)
		vesselness = clampUnit((1 - math.Exp(-s.Alpha*rc*rc)) * energy)
	}

	// e3 != 0 past the background rule
	rd := math.Abs(e1 / e3)
	clumpiness = clampUnit((1 - math.Exp(-s.Alpha*rd*rd)) * energy)

	return vesselness, clumpiness, outcome
}

func clampUnit(x float64) float64 {
	switch {
	case !(x > 0):
		return 0
	case x >= 1:
		return belowOne
	}
	return x
}

// Classifier turns Hessian components into per-scale shape responses
type Classifier struct {
	opts Options
}

// NewClassifier creates a classifier after validating opts
func NewClassifier(opts Options) (*Classifier, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.Workers = parallel.Workers(opts.Workers)
	return &Classifier{opts: opts}, nil
}

// Classify scores every voxel of field at the scale of comp.
//
// The first pass decomposes every Hessian and reduces the maximum Frobenius
// norm; scoring starts only after that reduction is complete.
func (c *Classifier) Classify(comp *hessian.Components, field *models.ScalarField) (*Response, error) {
	if comp == nil || field == nil {
		return nil, fmt.Errorf("%w: nil components or field", models.ErrInvalidParameter)
	}
	for _, f := range []*models.ScalarField{comp.Dxx, comp.Dxy, comp.Dxz, comp.Dyy, comp.Dyz, comp.Dzz} {
		if !field.SameShape(f) {
			return nil, fmt.Errorf("%w: component shape %v does not match field shape %v",
				models.ErrShapeMismatch, f.Shape, field.Shape)
		}
	}
	return c.classify(comp, field, stat.Mean(field.Data, nil))
}

func (c *Classifier) classify(comp *hessian.Components, field *models.ScalarField, mean float64) (*Response, error) {
	n := field.Len()
	eigen := make([]hessian.EigenTriple, n)

	// Pass one: eigenvalues and per-worker Frobenius maxima
	partial := make([]FrobAccumulator, c.opts.Workers)
	parallel.For(n, c.opts.Workers, func(worker, start, end int) {
		acc := &partial[worker]
		for idx := start; idx < end; idx++ {
			eigen[idx] = hessian.Eigen(comp.At(idx))
			acc.Observe(eigen[idx].Frobenius())
		}
	})

	var acc FrobAccumulator
	for _, p := range partial {
		acc.Merge(p)
	}

	scorer := Scorer{
		Alpha:   c.opts.Alpha,
		Beta:    c.opts.Beta,
		Mean:    mean,
		MaxFrob: acc.Max(),
	}

	resp := &Response{
		Sigma:      comp.Sigma,
		Vesselness: field.NewLike(),
		Clumpiness: field.NewLike(),
		MaxFrob:    scorer.MaxFrob,
	}

	if scorer.MaxFrob == 0 {
		resp.Guards.ZeroMaxFrob = true
		log.Debug().Err(models.ErrNumericGuard).Float64("sigma", comp.Sigma).
			Msg("zero maximum Frobenius norm, all responses are zero")
		return resp, nil
	}

	// Pass two: scores
	var background, zeroE2 atomic.Int64
	parallel.For(n, c.opts.Workers, func(_, start, end int) {
		var bg, z2 int64
		for idx := start; idx < end; idx++ {
			v, cl, outcome := scorer.Score(Voxel{Eigen: eigen[idx], Intensity: field.Data[idx]})
			resp.Vesselness.Data[idx] = v
			resp.Clumpiness.Data[idx] = cl
			if outcome&OutcomeBackground != 0 {
				bg++
			}
			if outcome&OutcomeZeroE2 != 0 {
				z2++
			}
		}
		background.Add(bg)
		zeroE2.Add(z2)
	})

	resp.Guards.Background = background.Load()
	resp.Guards.ZeroE2 = zeroE2.Load()

	if resp.Guards.ZeroE2 > 0 {
		log.Debug().Err(models.ErrNumericGuard).
			Float64("sigma", comp.Sigma).
			Int64("zero_e2", resp.Guards.ZeroE2).
			Msg("undefined vesselness ratios scored as zero")
	}

	return resp, nil
}
