package hessian

import (
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"hessianshape/internal/models"
)

func volume(t *testing.T, n int, fn func(i, j, k float64) float64) *models.ScalarField {
	t.Helper()
	f, err := models.NewScalarField(n, n, n)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				f.Data[f.Index(i, j, k)] = fn(float64(i), float64(j), float64(k))
			}
		}
	}
	return f
}

func TestAssembleQuadraticVolume(t *testing.T) {
	const n = 16
	f := volume(t, n, func(i, j, k float64) float64 {
		return 1.5*i*i + 0.5*j*j - k*k + 2*i*j - 0.75*j*k
	})

	c, err := Assemble(f, 1)
	require.NoError(t, err)

	// Each pass scales the exact derivative by the kernel's discrete second
	// moment, just under one for sigma=1.
	want := Matrix{
		{3, 2, 0},
		{2, 1, -0.75},
		{0, -0.75, -2},
	}
	for i := 6; i < n-6; i++ {
		for j := 6; j < n-6; j++ {
			for k := 6; k < n-6; k++ {
				h := c.At(f.Index(i, j, k))
				for r := 0; r < 3; r++ {
					for s := 0; s < 3; s++ {
						assert.InDeltaf(t, want[r][s], h[r][s], 0.02*math.Max(1, math.Abs(want[r][s])),
							"entry (%d,%d) at (%d,%d,%d)", r, s, i, j, k)
					}
				}
			}
		}
	}
}

func TestAssembleSymmetricAt(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	f := volume(t, 8, func(_, _, _ float64) float64 { return rng.Float64() })

	c, err := NewAssembler(2).Assemble(f, 1)
	require.NoError(t, err)
	assert.Equal(t, f.Len(), c.Len())
	assert.Equal(t, 1.0, c.Sigma)

	for idx := 0; idx < c.Len(); idx++ {
		h := c.At(idx)
		assert.Equal(t, h[0][1], h[1][0])
		assert.Equal(t, h[0][2], h[2][0])
		assert.Equal(t, h[1][2], h[2][1])
	}
}

func TestAssembleRejectsNonVolume(t *testing.T) {
	f, err := models.NewScalarField(8, 8)
	require.NoError(t, err)

	_, err = Assemble(f, 1)
	assert.ErrorIs(t, err, models.ErrShapeMismatch)
}

func TestAssembleInvalidSigma(t *testing.T) {
	f := volume(t, 4, func(_, _, _ float64) float64 { return 0 })
	_, err := Assemble(f, 0)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
}

func TestEigenDiagonal(t *testing.T) {
	e := Eigen(Matrix{{-5, 0, 0}, {0, 1, 0}, {0, 0, 3}})
	assert.Equal(t, [3]float64{1, 3, -5}, e.Values)
	assert.InDelta(t, math.Sqrt(35), e.Frobenius(), 1e-12)
}

func TestEigenZeroMatrix(t *testing.T) {
	e := Eigen(Matrix{})
	assert.Equal(t, [3]float64{}, e.Values)
	assert.Equal(t, 0.0, e.Frobenius())
}

func TestEigenMatchesGonum(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 99))

	for trial := 0; trial < 200; trial++ {
		var m Matrix
		for r := 0; r < 3; r++ {
			for s := r; s < 3; s++ {
				m[r][s] = rng.NormFloat64() * 10
				m[s][r] = m[r][s]
			}
		}

		e := Eigen(m)

		var es mat.EigenSym
		require.True(t, es.Factorize(m.Sym(), false))
		want := es.Values(nil)
		sort.Slice(want, func(i, j int) bool { return math.Abs(want[i]) < math.Abs(want[j]) })

		for i := 0; i < 3; i++ {
			assert.InDeltaf(t, want[i], e.Values[i], 1e-9, "trial %d value %d", trial, i)
		}

		// Ascending absolute order
		assert.LessOrEqual(t, math.Abs(e.Values[0]), math.Abs(e.Values[1]))
		assert.LessOrEqual(t, math.Abs(e.Values[1]), math.Abs(e.Values[2]))

		// m v = lambda v with unit v
		for i := 0; i < 3; i++ {
			v := e.Vectors[i]
			assert.InDelta(t, 1, v[0]*v[0]+v[1]*v[1]+v[2]*v[2], 1e-9)
			for r := 0; r < 3; r++ {
				mv := m[r][0]*v[0] + m[r][1]*v[1] + m[r][2]*v[2]
				assert.InDeltaf(t, e.Values[i]*v[r], mv, 1e-8, "trial %d vector %d row %d", trial, i, r)
			}
		}
	}
}
