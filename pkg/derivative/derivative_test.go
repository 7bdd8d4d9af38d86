package derivative

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hessianshape/internal/models"
	"hessianshape/pkg/kernel"
)

// newField fills a field of the given shape from fn(coords)
func newField(t testing.TB, fn func(c []int) float64, shape ...int) *models.ScalarField {
	t.Helper()
	f, err := models.NewScalarField(shape...)
	require.NoError(t, err)

	coords := make([]int, len(shape))
	for idx := range f.Data {
		rem := idx
		for a := len(shape) - 1; a >= 0; a-- {
			coords[a] = rem % shape[a]
			rem /= shape[a]
		}
		f.Data[idx] = fn(coords)
	}
	return f
}

// reference differentiates one voxel by walking the window explicitly
func reference(f *models.ScalarField, axis int, k kernel.Kernel, coords []int) float64 {
	c := k.Center()
	sum := 0.0
	pos := append([]int(nil), coords...)
	for j := range k {
		q := coords[axis] - c + j
		if q < 0 || q >= f.Shape[axis] {
			continue
		}
		pos[axis] = q
		sum += f.At(pos...) * k[len(k)-1-j]
	}
	return sum
}

func TestApplyLinearRecoversSlope(t *testing.T) {
	tests := []struct {
		sigma float64
		tol   float64
	}{
		{1, 0.01},
		{2, 0.05},
	}
	const m = 3.5
	const n = 40

	for _, tc := range tests {
		f := newField(t, func(c []int) float64 { return m * float64(c[0]) }, n)
		out, err := Apply(f, 0, tc.sigma)
		require.NoError(t, err)

		c := kernel.Length(tc.sigma) / 2
		for i := c; i < n-c; i++ {
			assert.InEpsilonf(t, m, out.Data[i], tc.tol, "sigma %v position %d", tc.sigma, i)
		}
	}
}

func TestApplyZeroPaddingIsSymmetric(t *testing.T) {
	const n = 20
	f := newField(t, func([]int) float64 { return 1 }, n)

	out, err := Apply(f, 0, 1)
	require.NoError(t, err)

	// Constant interior has zero derivative.
	for i := 3; i < n-3; i++ {
		assert.InDelta(t, 0, out.Data[i], 1e-12)
	}

	// The low edge sees a step up, the high edge a step down.
	for d := 0; d < 3; d++ {
		assert.Greater(t, out.Data[d], 0.0)
		assert.InDelta(t, -out.Data[d], out.Data[n-1-d], 1e-12)
	}
}

func TestApplyMatchesReferenceOnEveryAxis(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	shapes := [][]int{{9}, {6, 8}, {5, 7, 9}}

	for _, shape := range shapes {
		f := newField(t, func([]int) float64 { return rng.Float64()*10 - 5 }, shape...)
		k, err := kernel.Build(1)
		require.NoError(t, err)

		for axis := range shape {
			out, err := New(3).ApplyKernel(f, axis, k)
			require.NoError(t, err)
			require.True(t, out.SameShape(f))

			for idx := range out.Data {
				coords := make([]int, len(shape))
				rem := idx
				for a := len(shape) - 1; a >= 0; a-- {
					coords[a] = rem % shape[a]
					rem /= shape[a]
				}
				assert.InDeltaf(t, reference(f, axis, k, coords), out.Data[idx], 1e-12,
					"shape %v axis %d coords %v", shape, axis, coords)
			}
		}
	}
}

func TestApplyPolynomialVolume(t *testing.T) {
	const n = 10
	f := newField(t, func(c []int) float64 {
		i, j, k := float64(c[0]), float64(c[1]), float64(c[2])
		return 2*i + j*j + 3*k*k*k
	}, n, n, n)

	analytic := []func(i, j, k float64) float64{
		func(_, _, _ float64) float64 { return 2 },
		func(_, j, _ float64) float64 { return 2 * j },
		func(_, _, k float64) float64 { return 9 * k * k },
	}

	worstRel := make([]float64, 3)
	for axis := 0; axis < 3; axis++ {
		out, err := Apply(f, axis, 1)
		require.NoError(t, err)

		for i := 3; i < n-3; i++ {
			for j := 3; j < n-3; j++ {
				for k := 3; k < n-3; k++ {
					got := out.At(i, j, k)
					want := analytic[axis](float64(i), float64(j), float64(k))
					require.Greaterf(t, got, 0.0, "axis %d at (%d,%d,%d)", axis, i, j, k)

					rel := math.Abs(got-want) / want
					worstRel[axis] = math.Max(worstRel[axis], rel)
				}
			}
		}
	}

	assert.Less(t, worstRel[0], 0.01)
	assert.Less(t, worstRel[1], 0.01)
	// z changes fastest, so the finite kernel resolves it worst
	assert.Greater(t, worstRel[2], worstRel[0])
	assert.Greater(t, worstRel[2], worstRel[1])
}

func TestApplyInvalidAxis(t *testing.T) {
	cases := []struct {
		shape []int
		axis  int
	}{
		{[]int{5}, 1},
		{[]int{5}, -1},
		{[]int{4, 4}, 2},
		{[]int{3, 3, 3}, 3},
	}
	for _, tc := range cases {
		f := newField(t, func([]int) float64 { return 0 }, tc.shape...)
		_, err := Apply(f, tc.axis, 1)
		assert.ErrorIsf(t, err, models.ErrInvalidAxis, "shape %v axis %d", tc.shape, tc.axis)
	}
}

func TestApplyInvalidSigma(t *testing.T) {
	f := newField(t, func([]int) float64 { return 0 }, 5)
	_, err := Apply(f, 0, -2)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
}

func TestApplyKernelRejectsEvenKernel(t *testing.T) {
	f := newField(t, func([]int) float64 { return 0 }, 5)
	_, err := New(1).ApplyKernel(f, 0, kernel.Kernel{1, -1})
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
}

func BenchmarkApplyVolume(b *testing.B) {
	f := newField(b, func(c []int) float64 { return float64(c[0] * c[1] * c[2]) }, 64, 64, 64)
	d := New(0)
	b.ResetTimer()
	for b.Loop() {
		if _, err := d.Apply(f, 2, 2); err != nil {
			b.Fatal(err)
		}
	}
}
