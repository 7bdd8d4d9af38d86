// Package kernel builds discrete first-derivative-of-Gaussian kernels.
package kernel

import (
	"fmt"
	"math"

	"hessianshape/internal/models"
)

// NumSigma is how many standard deviations the kernel extends on each side
// of its center.
const NumSigma = 3

// Kernel holds the derivative of a Gaussian sampled at integer offsets from
// its center. The length is always odd so the center is well defined.
type Kernel []float64

// Length returns the number of taps used for sigma: round(2*NumSigma*sigma)+1,
// rounding halves away from zero. The length is even exactly when 6*sigma
// rounds to an odd integer, e.g. sigma 0.5, 0.75, 1.5 or 2.5; Build rejects
// those.
func Length(sigma float64) int {
	return int(math.Round(2*NumSigma*sigma)) + 1
}

// Center returns the index of the kernel's central tap
func (k Kernel) Center() int {
	return len(k) / 2
}

// Build returns the derivative-of-Gaussian kernel for sigma.
//
// Tap i holds (c-i) / (sigma^3 * sqrt(2*pi)) * exp(-(i-c)^2 / (2*sigma^2))
// with c the center index. Sigma must be positive and finite, and the
// computed length must be odd; the kernel is never silently truncated.
func Build(sigma float64) (Kernel, error) {
	if math.IsNaN(sigma) || math.IsInf(sigma, 0) || sigma <= 0 {
		return nil, fmt.Errorf("%w: sigma %v must be positive and finite", models.ErrInvalidParameter, sigma)
	}

	n := Length(sigma)
	if err := validateLength(n); err != nil {
		return nil, fmt.Errorf("sigma %v: %w", sigma, err)
	}

	k := make(Kernel, n)
	c := n / 2
	norm := 1 / (sigma * sigma * sigma * math.Sqrt(2*math.Pi))
	for i := range k {
		d := float64(i - c)
		k[i] = -d * norm * math.Exp(-d*d/(2*sigma*sigma))
	}
	return k, nil
}

// Validate checks that an externally supplied kernel has an odd length
func Validate(k Kernel) error {
	return validateLength(len(k))
}

func validateLength(n int) error {
	if n < 1 || n%2 == 0 {
		return fmt.Errorf("%w: kernel length %d must be odd", models.ErrInvalidParameter, n)
	}
	return nil
}
