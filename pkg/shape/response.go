package shape

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"hessianshape/internal/models"
	"hessianshape/pkg/hessian"
)

// ComputeVesselAndClumpResponse runs the multi-scale shape analysis on a 3D
// field. For each scale, in order, it assembles the Hessian, scores every
// voxel and folds the result into the running best. ctx is checked between
// scales; a scale that has started always runs to completion.
func ComputeVesselAndClumpResponse(ctx context.Context, scales []float64, field *models.ScalarField, opts Options) (*models.ResultSet, error) {
	if err := ValidateScales(scales); err != nil {
		return nil, err
	}
	if field == nil {
		return nil, fmt.Errorf("%w: nil field", models.ErrInvalidParameter)
	}
	if field.Dims() != 3 {
		return nil, fmt.Errorf("%w: shape analysis needs a 3D field, got shape %v", models.ErrShapeMismatch, field.Shape)
	}

	classifier, err := NewClassifier(opts)
	if err != nil {
		return nil, err
	}
	assembler := hessian.NewAssembler(classifier.opts.Workers)

	selector, err := NewSelector(field.Shape...)
	if err != nil {
		return nil, err
	}

	mean := stat.Mean(field.Data, nil)

	for _, sigma := range scales {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("shape analysis stopped before sigma %v: %w", sigma, err)
		}

		start := time.Now()
		comp, err := assembler.Assemble(field, sigma)
		if err != nil {
			return nil, fmt.Errorf("sigma %v: %w", sigma, err)
		}

		resp, err := classifier.classify(comp, field, mean)
		if err != nil {
			return nil, fmt.Errorf("sigma %v: %w", sigma, err)
		}

		if err := selector.Fold(resp); err != nil {
			return nil, err
		}

		log.Debug().
			Float64("sigma", sigma).
			Float64("max_frob", resp.MaxFrob).
			Int64("background", resp.Guards.Background).
			Dur("elapsed", time.Since(start)).
			Msg("scale complete")
	}

	return selector.Result(), nil
}

// ValidateScales checks that scales is non-empty and every scale is a
// positive finite number
func ValidateScales(scales []float64) error {
	if len(scales) == 0 {
		return fmt.Errorf("%w: no scales given", models.ErrInvalidParameter)
	}
	for i, s := range scales {
		if math.IsNaN(s) || math.IsInf(s, 0) || s <= 0 {
			return fmt.Errorf("%w: scale %d is %v, must be positive and finite", models.ErrInvalidParameter, i, s)
		}
	}
	return nil
}
