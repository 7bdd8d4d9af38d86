// Package visualization renders planes of a volume, such as a vesselness or
// clumpiness map, as grayscale images and binary masks.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/floats"

	"hessianshape/internal/models"
)

// Viewer extracts and saves 2D slices of a 3D scalar field. Intensities are
// normalised to the field-wide range so every slice shares one gray scale.
type Viewer struct {
	field *models.ScalarField

	// lo and hi are the field-wide extrema used for normalisation
	lo, hi float64

	// scale is the integer upsampling factor applied when saving
	scale int
}

// NewViewer creates a viewer over a 3D field
func NewViewer(field *models.ScalarField) (*Viewer, error) {
	if field == nil || field.Dims() != 3 {
		return nil, fmt.Errorf("%w: viewer needs a 3D field", models.ErrShapeMismatch)
	}
	return &Viewer{
		field: field,
		lo:    floats.Min(field.Data),
		hi:    floats.Max(field.Data),
		scale: 1,
	}, nil
}

// SetScale sets the upsampling factor used by SaveSlice; values below one
// are treated as one
func (v *Viewer) SetScale(scale int) {
	v.scale = max(1, scale)
}

// axisOf maps an axis name to its field axis
func axisOf(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return 0, nil
	case "y", "Y":
		return 1, nil
	case "z", "Z":
		return 2, nil
	}
	return 0, fmt.Errorf("%w: %q (must be x, y, or z)", models.ErrInvalidAxis, axis)
}

// gray normalises a value to the 16-bit range
func (v *Viewer) gray(value float64) color.Gray16 {
	if v.hi <= v.lo {
		return color.Gray16{}
	}
	t := (value - v.lo) / (v.hi - v.lo)
	return color.Gray16{Y: uint16(math.Round(math.Max(0, math.Min(1, t)) * 65535))}
}

// Level maps a field value to the 8-bit threshold level used by
// SaveMaskSequence
func (v *Viewer) Level(value float64) uint8 {
	if v.hi <= v.lo {
		return 0
	}
	t := (value - v.lo) / (v.hi - v.lo)
	return uint8(math.Round(math.Max(0, math.Min(1, t)) * 255))
}

// ExtractSlice extracts the plane at position along axis. The image's
// horizontal and vertical directions are (z, y) for an x slice, (x, z) for
// a y slice and (x, y) for a z slice.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	a, err := axisOf(axis)
	if err != nil {
		return nil, err
	}
	shape := v.field.Shape
	if position < 0 || position >= shape[a] {
		return nil, fmt.Errorf("%w: position %d outside [0, %d) along %s", models.ErrInvalidParameter, position, shape[a], axis)
	}

	var img *image.Gray16
	switch a {
	case 0:
		img = image.NewGray16(image.Rect(0, 0, shape[2], shape[1]))
		for y := 0; y < shape[1]; y++ {
			for z := 0; z < shape[2]; z++ {
				img.SetGray16(z, y, v.gray(v.field.At(position, y, z)))
			}
		}
	case 1:
		img = image.NewGray16(image.Rect(0, 0, shape[0], shape[2]))
		for z := 0; z < shape[2]; z++ {
			for x := 0; x < shape[0]; x++ {
				img.SetGray16(x, z, v.gray(v.field.At(x, position, z)))
			}
		}
	default:
		img = image.NewGray16(image.Rect(0, 0, shape[0], shape[1]))
		for y := 0; y < shape[1]; y++ {
			for x := 0; x < shape[0]; x++ {
				img.SetGray16(x, y, v.gray(v.field.At(x, y, position)))
			}
		}
	}
	return img, nil
}

// ExtractRegion copies a box of the volume into a new field
func (v *Viewer) ExtractRegion(start, size [3]int) (*models.ScalarField, error) {
	for a := 0; a < 3; a++ {
		if start[a] < 0 {
			return nil, fmt.Errorf("%w: start coordinates must be non-negative", models.ErrInvalidParameter)
		}
		if size[a] <= 0 {
			return nil, fmt.Errorf("%w: size dimensions must be positive", models.ErrInvalidParameter)
		}
		if start[a]+size[a] > v.field.Shape[a] {
			return nil, fmt.Errorf("%w: region extends beyond volume boundaries", models.ErrInvalidParameter)
		}
	}

	region, err := models.NewScalarField(size[:]...)
	if err != nil {
		return nil, err
	}
	for x := 0; x < size[0]; x++ {
		for y := 0; y < size[1]; y++ {
			for z := 0; z < size[2]; z++ {
				region.Data[region.Index(x, y, z)] = v.field.At(start[0]+x, start[1]+y, start[2]+z)
			}
		}
	}
	return region, nil
}

// SaveSlice saves an image, upsampled by the viewer's scale. The format
// follows the file extension.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	if v.scale > 1 {
		b := img.Bounds()
		img = imaging.Resize(img, b.Dx()*v.scale, b.Dy()*v.scale, imaging.NearestNeighbor)
	}
	return imaging.Save(img, filename)
}

// SaveSliceSequence extracts and saves every slice along axis as PNG
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	return v.saveSequence(axis, outputDir, "slice", func(img *image.Gray16) image.Image {
		return img
	})
}

// SaveMaskSequence saves every slice along axis as a binary PNG mask: white
// where the normalised value is at or above level
func (v *Viewer) SaveMaskSequence(axis string, outputDir string, level uint8) error {
	return v.saveSequence(axis, outputDir, "mask", func(img *image.Gray16) image.Image {
		return segment.Threshold(img, level)
	})
}

func (v *Viewer) saveSequence(axis, outputDir, prefix string, render func(*image.Gray16) image.Image) error {
	a, err := axisOf(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < v.field.Shape[a]; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s_%03d.png", prefix, axis, pos))
		if err := v.SaveSlice(render(img), filename); err != nil {
			return err
		}
	}
	return nil
}
