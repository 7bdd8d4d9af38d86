package models

import (
	"fmt"
	"math"
)

// MaxDims is the highest dimensionality a ScalarField supports.
const MaxDims = 3

// ScalarField represents a 1D, 2D or 3D grid of real values
type ScalarField struct {
	// Data holds the values as a flat array in row-major order:
	// the last axis varies fastest.
	Data []float64

	// Shape is the extent of each axis. Axis 0 is "x", axis 1 is "y"
	// and axis 2 is "z".
	Shape []int
}

// NewScalarField allocates a zero-valued field with the given shape
func NewScalarField(shape ...int) (*ScalarField, error) {
	n, err := volumeOf(shape)
	if err != nil {
		return nil, err
	}
	return &ScalarField{
		Data:  make([]float64, n),
		Shape: append([]int(nil), shape...),
	}, nil
}

// FromData wraps existing data in a field after checking that its length
// matches the shape. The slice is not copied.
func FromData(data []float64, shape ...int) (*ScalarField, error) {
	n, err := volumeOf(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: %d values for shape %v (want %d)", ErrShapeMismatch, len(data), shape, n)
	}
	return &ScalarField{
		Data:  data,
		Shape: append([]int(nil), shape...),
	}, nil
}

// VoxelCount returns the number of voxels in a field of the given shape,
// or ErrShapeMismatch if the shape is invalid or its volume overflows int
func VoxelCount(shape ...int) (int, error) {
	return volumeOf(shape)
}

func volumeOf(shape []int) (int, error) {
	if len(shape) == 0 || len(shape) > MaxDims {
		return 0, fmt.Errorf("%w: %d dimensions (want 1..%d)", ErrShapeMismatch, len(shape), MaxDims)
	}
	n := 1
	for axis, extent := range shape {
		if extent <= 0 {
			return 0, fmt.Errorf("%w: axis %d has extent %d", ErrShapeMismatch, axis, extent)
		}
		if n > math.MaxInt/extent {
			return 0, fmt.Errorf("%w: shape %v has too many voxels", ErrShapeMismatch, shape)
		}
		n *= extent
	}
	return n, nil
}

// Dims returns the number of axes
func (f *ScalarField) Dims() int {
	return len(f.Shape)
}

// Len returns the number of voxels
func (f *ScalarField) Len() int {
	return len(f.Data)
}

// Stride returns the distance in Data between neighbours along axis
func (f *ScalarField) Stride(axis int) int {
	stride := 1
	for a := len(f.Shape) - 1; a > axis; a-- {
		stride *= f.Shape[a]
	}
	return stride
}

// Index converts per-axis coordinates into a position in Data.
// It panics if the number of coordinates does not match the field.
func (f *ScalarField) Index(coords ...int) int {
	if len(coords) != len(f.Shape) {
		panic(fmt.Sprintf("models: %d coordinates for a %d-dimensional field", len(coords), len(f.Shape)))
	}
	idx := 0
	for axis, c := range coords {
		idx = idx*f.Shape[axis] + c
	}
	return idx
}

// At returns the value at the given coordinates
func (f *ScalarField) At(coords ...int) float64 {
	return f.Data[f.Index(coords...)]
}

// SameShape reports whether both fields have identical shapes
func (f *ScalarField) SameShape(other *ScalarField) bool {
	if other == nil || len(f.Shape) != len(other.Shape) {
		return false
	}
	for i := range f.Shape {
		if f.Shape[i] != other.Shape[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the field
func (f *ScalarField) Clone() *ScalarField {
	return &ScalarField{
		Data:  append([]float64(nil), f.Data...),
		Shape: append([]int(nil), f.Shape...),
	}
}

// NewLike allocates a zero-valued field with the same shape as f
func (f *ScalarField) NewLike() *ScalarField {
	return &ScalarField{
		Data:  make([]float64, len(f.Data)),
		Shape: append([]int(nil), f.Shape...),
	}
}

// ResultSet holds the multi-scale shape analysis output. All four fields
// share the shape of the analysed input.
type ResultSet struct {
	// Vesselness is the best tube/ribbon response over all scales
	Vesselness *ScalarField

	// VesselScale records the scale that produced Vesselness at each voxel
	VesselScale *ScalarField

	// Clumpiness is the best blob/cluster response over all scales
	Clumpiness *ScalarField

	// ClumpScale records the scale that produced Clumpiness at each voxel
	ClumpScale *ScalarField

	// Scales lists the evaluated scales in caller order
	Scales []float64
}
