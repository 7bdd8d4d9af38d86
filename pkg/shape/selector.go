package shape

import (
	"fmt"

	"hessianshape/internal/models"
)

// Selector reduces per-scale responses into a ResultSet by keeping, per
// voxel, the scale with the largest response. Responses are folded one at
// a time so only the running best needs to stay in memory.
//
// Ties keep the earlier scale: a later scale replaces the current best only
// when strictly greater.
type Selector struct {
	result *models.ResultSet
	folds  int
}

// NewSelector creates a selector for fields of the given shape
func NewSelector(shape ...int) (*Selector, error) {
	vessel, err := models.NewScalarField(shape...)
	if err != nil {
		return nil, err
	}
	return &Selector{
		result: &models.ResultSet{
			Vesselness:  vessel,
			VesselScale: vessel.NewLike(),
			Clumpiness:  vessel.NewLike(),
			ClumpScale:  vessel.NewLike(),
		},
	}, nil
}

// Fold merges the response of one scale
func (s *Selector) Fold(resp *Response) error {
	if resp == nil {
		return fmt.Errorf("%w: nil response", models.ErrInvalidParameter)
	}
	r := s.result
	if !r.Vesselness.SameShape(resp.Vesselness) || !r.Clumpiness.SameShape(resp.Clumpiness) {
		return fmt.Errorf("%w: response at sigma %v has shape %v, selector expects %v",
			models.ErrShapeMismatch, resp.Sigma, resp.Vesselness.Shape, r.Vesselness.Shape)
	}

	first := s.folds == 0
	for idx, v := range resp.Vesselness.Data {
		if first || v > r.Vesselness.Data[idx] {
			r.Vesselness.Data[idx] = v
			r.VesselScale.Data[idx] = resp.Sigma
		}
	}
	for idx, c := range resp.Clumpiness.Data {
		if first || c > r.Clumpiness.Data[idx] {
			r.Clumpiness.Data[idx] = c
			r.ClumpScale.Data[idx] = resp.Sigma
		}
	}

	r.Scales = append(r.Scales, resp.Sigma)
	s.folds++
	return nil
}

// Folds returns how many scales have been merged
func (s *Selector) Folds() int {
	return s.folds
}

// Result returns the reduced ResultSet. The selector must not be folded
// into after calling Result.
func (s *Selector) Result() *models.ResultSet {
	return s.result
}
