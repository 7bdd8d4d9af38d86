package pipeline

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"hessianshape/internal/models"
)

// ErrNoSlices indicates an input directory without slice images
var ErrNoSlices = errors.New("pipeline: no slice images found")

// loadSlices stacks the 2D images in dir into a volume: the image's
// horizontal and vertical directions become x and y and the slice order
// becomes z. Files are ordered by the number in their name; every image
// must have the same size. Intensities are 16-bit luminance.
func loadSlices(dir string) (*models.ScalarField, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var imageFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".tif", ".tiff", ".bmp":
			imageFiles = append(imageFiles, entry.Name())
		}
	}
	if len(imageFiles) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSlices, dir)
	}

	// Slice order follows the number in each file name
	sort.SliceStable(imageFiles, func(i, j int) bool {
		return extractNumber(imageFiles[i]) < extractNumber(imageFiles[j])
	})

	var field *models.ScalarField
	var width, height int
	for z, name := range imageFiles {
		img, err := imaging.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", name, err)
		}

		bounds := img.Bounds()
		if field == nil {
			width, height = bounds.Dx(), bounds.Dy()
			field, err = models.NewScalarField(width, height, len(imageFiles))
			if err != nil {
				return nil, err
			}
		} else if bounds.Dx() != width || bounds.Dy() != height {
			return nil, fmt.Errorf("%w: slice %s is %dx%d, expected %dx%d",
				models.ErrShapeMismatch, name, bounds.Dx(), bounds.Dy(), width, height)
		}

		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
				field.Data[field.Index(x, y, z)] = float64(g.Y)
			}
		}
	}

	log.Info().Int("slices", len(imageFiles)).Int("width", width).Int("height", height).Msg("Loaded slice stack")
	return field, nil
}

// extractNumber extracts the digits of a file name as an integer, or -1 if
// there are none
func extractNumber(filename string) int {
	var digits strings.Builder
	for _, c := range filepath.Base(filename) {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return -1
	}
	return n
}
