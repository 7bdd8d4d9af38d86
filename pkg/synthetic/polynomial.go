// Package synthetic generates test volumes: separable polynomial fields and
// smooth tube and blob phantoms.
package synthetic

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"hessianshape/internal/models"
)

// Term is coeff * x^power
type Term struct {
	Coeff float64
	Power int
}

// Polynomial is a sum of terms in one variable. A nil polynomial is zero.
type Polynomial []Term

// Eval evaluates the polynomial at x
func (p Polynomial) Eval(x float64) float64 {
	sum := 0.0
	for _, t := range p {
		sum += t.Coeff * math.Pow(x, float64(t.Power))
	}
	return sum
}

// String renders the polynomial in the form accepted by ParsePolynomial
func (p Polynomial) String() string {
	if len(p) == 0 {
		return "0"
	}
	var b strings.Builder
	for i, t := range p {
		coeff := t.Coeff
		if i > 0 {
			if coeff < 0 {
				b.WriteString(" - ")
				coeff = -coeff
			} else {
				b.WriteString(" + ")
			}
		}
		b.WriteString(strconv.FormatFloat(coeff, 'g', -1, 64))
		switch {
		case t.Power == 1:
			b.WriteString("x")
		case t.Power > 1:
			b.WriteString("x**" + strconv.Itoa(t.Power))
		}
	}
	return b.String()
}

// ParsePolynomial parses expressions such as "2x + 3x**2 - 4" in the
// variable x. Powers may be written with ** or ^ and must be non-negative
// integers. An empty string or "n/a" yields the zero polynomial.
func ParsePolynomial(s string) (Polynomial, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" || strings.EqualFold(s, "n/a") {
		return nil, nil
	}

	var terms []string
	start := 0
	for i := 1; i < len(s); i++ {
		if (s[i] == '+' || s[i] == '-') && s[i-1] != '*' && s[i-1] != '^' {
			terms = append(terms, s[start:i])
			start = i
		}
	}
	terms = append(terms, s[start:])

	p := make(Polynomial, 0, len(terms))
	for _, raw := range terms {
		t, err := parseTerm(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: polynomial %q: %v", models.ErrInvalidParameter, s, err)
		}
		p = append(p, t)
	}
	return p, nil
}

func parseTerm(raw string) (Term, error) {
	body := strings.TrimPrefix(raw, "+")
	if body == "" || body == "-" {
		return Term{}, fmt.Errorf("empty term in %q", raw)
	}

	x := strings.IndexByte(body, 'x')
	if x < 0 {
		c, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return Term{}, fmt.Errorf("bad constant %q", raw)
		}
		return Term{Coeff: c}, nil
	}

	t := Term{Coeff: 1, Power: 1}
	switch coeff := strings.TrimSuffix(body[:x], "*"); coeff {
	case "":
	case "-":
		t.Coeff = -1
	default:
		c, err := strconv.ParseFloat(coeff, 64)
		if err != nil {
			return Term{}, fmt.Errorf("bad coefficient in %q", raw)
		}
		t.Coeff = c
	}

	power := body[x+1:]
	if power == "" {
		return t, nil
	}
	switch {
	case strings.HasPrefix(power, "**"):
		power = power[2:]
	case strings.HasPrefix(power, "^"):
		power = power[1:]
	default:
		return Term{}, fmt.Errorf("bad power in %q", raw)
	}
	n, err := strconv.Atoi(power)
	if err != nil || n < 0 {
		return Term{}, fmt.Errorf("bad power in %q", raw)
	}
	t.Power = n
	return t, nil
}

// FromPolynomials builds a separable field f = P0(i) + P1(j) + P2(k), with
// one polynomial per axis of shape
func FromPolynomials(shape []int, polys ...Polynomial) (*models.ScalarField, error) {
	if len(polys) != len(shape) {
		return nil, fmt.Errorf("%w: %d polynomials for %d axes", models.ErrInvalidParameter, len(polys), len(shape))
	}
	f, err := models.NewScalarField(shape...)
	if err != nil {
		return nil, err
	}

	// Tabulate each axis once
	tables := make([][]float64, len(shape))
	for axis, extent := range shape {
		tables[axis] = make([]float64, extent)
		for i := range tables[axis] {
			tables[axis][i] = polys[axis].Eval(float64(i))
		}
	}

	for idx := range f.Data {
		rem := idx
		sum := 0.0
		for axis := len(shape) - 1; axis >= 0; axis-- {
			sum += tables[axis][rem%shape[axis]]
			rem /= shape[axis]
		}
		f.Data[idx] = sum
	}
	return f, nil
}
