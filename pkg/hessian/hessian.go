// Package hessian assembles per-voxel Hessian matrices of a volume from
// Gaussian derivatives and decomposes them into eigenvalues.
package hessian

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"hessianshape/internal/models"
	"hessianshape/pkg/derivative"
)

// Axis indices used for the second partials
const (
	AxisX = 0
	AxisY = 1
	AxisZ = 2
)

// Matrix is a symmetric 3x3 Hessian
type Matrix [3][3]float64

// Sym converts the matrix to a gonum symmetric matrix
func (m Matrix) Sym() *mat.SymDense {
	return mat.NewSymDense(3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
}

// Components holds the six independent second partials of a volume at one
// scale. Dyx, Dzx and Dzy equal Dxy, Dxz and Dyz and are not stored.
type Components struct {
	Sigma float64

	Dxx, Dxy, Dxz *models.ScalarField
	Dyy, Dyz      *models.ScalarField
	Dzz           *models.ScalarField
}

// At builds the Hessian at a flat voxel index
func (c *Components) At(idx int) Matrix {
	xy, xz, yz := c.Dxy.Data[idx], c.Dxz.Data[idx], c.Dyz.Data[idx]
	return Matrix{
		{c.Dxx.Data[idx], xy, xz},
		{xy, c.Dyy.Data[idx], yz},
		{xz, yz, c.Dzz.Data[idx]},
	}
}

// Len returns the number of voxels covered
func (c *Components) Len() int {
	return c.Dxx.Len()
}

// Assembler computes Hessian components with a shared Deriver
type Assembler struct {
	deriver *derivative.Deriver
}

// NewAssembler creates an Assembler using the given number of workers
func NewAssembler(workers int) *Assembler {
	return &Assembler{deriver: derivative.New(workers)}
}

// Assemble computes the Hessian components of field at sigma using every core
func Assemble(field *models.ScalarField, sigma float64) (*Components, error) {
	return NewAssembler(0).Assemble(field, sigma)
}

// Assemble computes the Hessian components of a 3D field at sigma. Each
// second partial is a derivative of a first derivative; the three first
// derivatives are computed once and shared.
func (a *Assembler) Assemble(field *models.ScalarField, sigma float64) (*Components, error) {
	if field == nil {
		return nil, fmt.Errorf("%w: nil field", models.ErrInvalidParameter)
	}
	if field.Dims() != 3 {
		return nil, fmt.Errorf("%w: Hessian assembly needs a 3D field, got shape %v", models.ErrShapeMismatch, field.Shape)
	}

	first := make([]*models.ScalarField, 3)
	for axis := range first {
		d, err := a.deriver.Apply(field, axis, sigma)
		if err != nil {
			return nil, fmt.Errorf("first derivative along axis %d: %w", axis, err)
		}
		first[axis] = d
	}

	second := func(from, along int) (*models.ScalarField, error) {
		d, err := a.deriver.Apply(first[from], along, sigma)
		if err != nil {
			return nil, fmt.Errorf("second derivative d%d/d%d: %w", from, along, err)
		}
		return d, nil
	}

	c := &Components{Sigma: sigma}
	var err error
	pairs := []struct {
		dst        **models.ScalarField
		from, axis int
	}{
		{&c.Dxx, AxisX, AxisX},
		{&c.Dxy, AxisX, AxisY},
		{&c.Dxz, AxisX, AxisZ},
		{&c.Dyy, AxisY, AxisY},
		{&c.Dyz, AxisY, AxisZ},
		{&c.Dzz, AxisZ, AxisZ},
	}
	for _, p := range pairs {
		if *p.dst, err = second(p.from, p.axis); err != nil {
			return nil, err
		}
	}

	log.Debug().Float64("sigma", sigma).Ints("shape", field.Shape).Msg("assembled hessian components")
	return c, nil
}
