// Package derivative differentiates scalar fields along one axis by
// convolving with a derivative-of-Gaussian kernel.
package derivative

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"hessianshape/internal/models"
	"hessianshape/internal/parallel"
	"hessianshape/pkg/kernel"
)

// Deriver applies axis derivatives using a fixed number of workers
type Deriver struct {
	workers int
}

// New creates a Deriver. A worker count below one uses every core.
func New(workers int) *Deriver {
	return &Deriver{workers: parallel.Workers(workers)}
}

// Apply differentiates field along axis at scale sigma using every core
func Apply(field *models.ScalarField, axis int, sigma float64) (*models.ScalarField, error) {
	return New(0).Apply(field, axis, sigma)
}

// Apply differentiates field along axis at scale sigma
func (d *Deriver) Apply(field *models.ScalarField, axis int, sigma float64) (*models.ScalarField, error) {
	k, err := kernel.Build(sigma)
	if err != nil {
		return nil, err
	}
	return d.ApplyKernel(field, axis, k)
}

// ApplyKernel convolves every line of field along axis with k.
//
// For each position p the window chunk[j] = field[p-c+j] is extracted, with
// taps that fall before the start or past the end of the axis set to zero,
// and combined as sum_j chunk[j]*k[N-1-j]. The result has the same shape
// as field; field itself is not modified.
func (d *Deriver) ApplyKernel(field *models.ScalarField, axis int, k kernel.Kernel) (*models.ScalarField, error) {
	if field == nil {
		return nil, fmt.Errorf("%w: nil field", models.ErrInvalidParameter)
	}
	if axis < 0 || axis >= field.Dims() {
		return nil, fmt.Errorf("%w: axis %d for a %d-dimensional field", models.ErrInvalidAxis, axis, field.Dims())
	}
	if err := kernel.Validate(k); err != nil {
		return nil, err
	}

	// Reversed once so each output is a plain dot product with the chunk.
	flipped := make([]float64, len(k))
	for i := range k {
		flipped[len(k)-1-i] = k[i]
	}

	out := field.NewLike()
	extent := field.Shape[axis]
	stride := field.Stride(axis)
	lines := field.Len() / extent

	parallel.For(lines, d.workers, func(_, start, end int) {
		chunk := make([]float64, len(k))
		for line := start; line < end; line++ {
			// Lines are numbered by the coordinates before and after axis.
			base := (line/stride)*extent*stride + line%stride
			for p := 0; p < extent; p++ {
				fillChunk(chunk, field.Data, base, stride, extent, p)
				out.Data[base+p*stride] = floats.Dot(chunk, flipped)
			}
		}
	})

	return out, nil
}

// fillChunk copies the window centered at p from the line starting at base
// into chunk, zero-filling leading taps below 0 and trailing taps past extent.
func fillChunk(chunk, data []float64, base, stride, extent, p int) {
	c := len(chunk) / 2
	for j := range chunk {
		q := p - c + j
		if q < 0 || q >= extent {
			chunk[j] = 0
			continue
		}
		chunk[j] = data[base+q*stride]
	}
}
