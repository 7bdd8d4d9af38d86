package hessian

import (
	"math"
	"sort"
)

const (
	jacobiMaxSweeps = 50
	jacobiTolerance = 1e-12
)

// EigenTriple holds the eigen-decomposition of a symmetric 3x3 matrix.
// Values are ordered by ascending absolute value, |Values[0]| <= |Values[1]|
// <= |Values[2]|, and Vectors[i] is the unit eigenvector for Values[i].
type EigenTriple struct {
	Values  [3]float64
	Vectors [3][3]float64
}

// Frobenius returns sqrt(e1^2 + e2^2 + e3^2)
func (e EigenTriple) Frobenius() float64 {
	return math.Sqrt(e.Values[0]*e.Values[0] + e.Values[1]*e.Values[1] + e.Values[2]*e.Values[2])
}

// Eigen decomposes a symmetric matrix with cyclic Jacobi rotations. Only the
// upper triangle of m is read.
func Eigen(m Matrix) EigenTriple {
	a := m
	a[1][0], a[2][0], a[2][1] = a[0][1], a[0][2], a[1][2]

	v := Matrix{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

	norm2 := 0.0
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			norm2 += a[i][j] * a[i][j]
		}
	}

	for sweep := 0; sweep < jacobiMaxSweeps && norm2 > 0; sweep++ {
		off := a[0][1]*a[0][1] + a[0][2]*a[0][2] + a[1][2]*a[1][2]
		if off <= jacobiTolerance*jacobiTolerance*norm2 {
			break
		}
		for p := 0; p < 2; p++ {
			for q := p + 1; q < 3; q++ {
				rotate(&a, &v, p, q)
			}
		}
	}

	var e EigenTriple
	order := []int{0, 1, 2}
	sort.SliceStable(order, func(i, j int) bool {
		return math.Abs(a[order[i]][order[i]]) < math.Abs(a[order[j]][order[j]])
	})
	for i, col := range order {
		e.Values[i] = a[col][col]
		for r := 0; r < 3; r++ {
			e.Vectors[i][r] = v[r][col]
		}
	}
	return e
}

// rotate applies the Jacobi rotation that annihilates a[p][q]:
// a <- P^T a P and v <- v P.
func rotate(a, v *Matrix, p, q int) {
	apq := a[p][q]
	if apq == 0 {
		return
	}

	theta := (a[q][q] - a[p][p]) / (2 * apq)
	t := 1 / (math.Abs(theta) + math.Hypot(theta, 1))
	if theta < 0 {
		t = -t
	}
	c := 1 / math.Sqrt(t*t+1)
	s := t * c

	rot := Matrix{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	rot[p][p], rot[q][q] = c, c
	rot[p][q], rot[q][p] = s, -s

	*a = mul(transpose(rot), mul(*a, rot))
	a[p][q], a[q][p] = 0, 0
	*v = mul(*v, rot)
}

func mul(x, y Matrix) Matrix {
	var out Matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = x[i][0]*y[0][j] + x[i][1]*y[1][j] + x[i][2]*y[2][j]
		}
	}
	return out
}

func transpose(x Matrix) Matrix {
	return Matrix{
		{x[0][0], x[1][0], x[2][0]},
		{x[0][1], x[1][1], x[2][1]},
		{x[0][2], x[1][2], x[2][2]},
	}
}
