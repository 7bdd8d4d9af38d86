package synthetic

import (
	"fmt"
	"math"

	"hessianshape/internal/models"
)

// Tube returns a 3D volume holding a bright cylinder along axis through the
// center of the other two axes. The cross-section is a Gaussian with the
// given radius as its standard deviation, peaking at intensity.
func Tube(shape [3]int, axis int, radius, intensity float64) (*models.ScalarField, error) {
	if axis < 0 || axis > 2 {
		return nil, fmt.Errorf("%w: tube axis %d", models.ErrInvalidAxis, axis)
	}
	if !(radius > 0) {
		return nil, fmt.Errorf("%w: tube radius %v must be positive", models.ErrInvalidParameter, radius)
	}
	center := centerOf(shape)
	return gaussianField(shape, radius, intensity, func(c [3]float64) float64 {
		r2 := 0.0
		for a := 0; a < 3; a++ {
			if a == axis {
				continue
			}
			d := c[a] - center[a]
			r2 += d * d
		}
		return r2
	})
}

// Blob returns a 3D volume holding a bright Gaussian ball at the center
func Blob(shape [3]int, radius, intensity float64) (*models.ScalarField, error) {
	if !(radius > 0) {
		return nil, fmt.Errorf("%w: blob radius %v must be positive", models.ErrInvalidParameter, radius)
	}
	center := centerOf(shape)
	return gaussianField(shape, radius, intensity, func(c [3]float64) float64 {
		r2 := 0.0
		for a := 0; a < 3; a++ {
			d := c[a] - center[a]
			r2 += d * d
		}
		return r2
	})
}

func centerOf(shape [3]int) [3]float64 {
	return [3]float64{
		float64(shape[0]-1) / 2,
		float64(shape[1]-1) / 2,
		float64(shape[2]-1) / 2,
	}
}

func gaussianField(shape [3]int, radius, intensity float64, dist2 func(c [3]float64) float64) (*models.ScalarField, error) {
	f, err := models.NewScalarField(shape[0], shape[1], shape[2])
	if err != nil {
		return nil, err
	}
	for i := 0; i < shape[0]; i++ {
		for j := 0; j < shape[1]; j++ {
			for k := 0; k < shape[2]; k++ {
				r2 := dist2([3]float64{float64(i), float64(j), float64(k)})
				f.Data[f.Index(i, j, k)] = intensity * math.Exp(-r2/(2*radius*radius))
			}
		}
	}
	return f, nil
}
