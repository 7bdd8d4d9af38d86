package pipeline

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hessianshape/internal/models"
	"hessianshape/pkg/config"
	"hessianshape/pkg/synthetic"
	"hessianshape/pkg/volumeio"
)

func testParams(t *testing.T) *Params {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Analysis.Scales = []float64{1, 2}
	cfg.Analysis.NumCores = 2
	cfg.Synthetic.Shape = []int{12, 12, 12}
	cfg.Output.Dir = t.TempDir()
	cfg.Output.Compress = false

	p, err := ParamsFromConfig(cfg, "")
	require.NoError(t, err)
	return p
}

func TestParamsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Output.Dir = "out"
	p, err := ParamsFromConfig(cfg, "in.vol")
	require.NoError(t, err)

	assert.Equal(t, "in.vol", p.InputPath)
	assert.Equal(t, []float64{1, 2, 3}, p.Scales)
	assert.Equal(t, [3]int{32, 32, 32}, p.Synthetic.Shape)
	assert.Equal(t, filepath.Join("out", "slices"), p.SlicesDir)

	cfg.Analysis.Scales = nil
	_, err = ParamsFromConfig(cfg, "")
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
}

func TestGenerate(t *testing.T) {
	base := SyntheticParams{Shape: [3]int{6, 6, 6}, Radius: 1.5, Intensity: 10, Axis: 0, X: "2x", Y: "x**2", Z: "3x**3"}

	for _, kind := range []string{config.SyntheticTube, config.SyntheticBlob, config.SyntheticPolynomial} {
		p := base
		p.Kind = kind
		f, err := generate(p)
		require.NoError(t, err, kind)
		assert.Equal(t, []int{6, 6, 6}, f.Shape, kind)
	}

	p := base
	p.Kind = config.SyntheticPolynomial
	f, err := generate(p)
	require.NoError(t, err)
	assert.Equal(t, 2.0*1+4+3*27, f.At(1, 2, 3))

	p.X = "2y"
	_, err = generate(p)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)

	p.Kind = "torus"
	_, err = generate(p)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
}

func TestProcessSynthetic(t *testing.T) {
	p := testParams(t)
	a := NewAnalyzer(p)
	require.NoError(t, a.Process(context.Background()))

	r := a.Result()
	require.NotNil(t, r)
	assert.Equal(t, []int{12, 12, 12}, r.Vesselness.Shape)
	assert.Equal(t, p.Scales, r.Scales)

	s := a.Summary()
	assert.Nil(t, s.Threshold)
	assert.Len(t, s.Shares, 2)
	var vessel, clump float64
	for _, share := range s.Shares {
		vessel += share.Vessel
		clump += share.Clump
	}
	assert.InDelta(t, 1, vessel, 1e-12)
	assert.InDelta(t, 1, clump, 1e-12)
	assert.GreaterOrEqual(t, s.VesselMax, s.VesselMean)
	assert.Less(t, s.ClumpMax, 1.0)

	saved, meta, err := volumeio.LoadResultSet(s.Sidecar)
	require.NoError(t, err)
	assert.Equal(t, r.Clumpiness.Data, saved.Clumpiness.Data)
	assert.Nil(t, meta.Otsu)
}

func TestProcessWithOtsuAndExport(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	p := testParams(t)
	p.Otsu = true
	p.ExportSlices = true
	p.Compress = true

	blob, err := synthetic.Blob([3]int{10, 10, 10}, 2, 200)
	require.NoError(t, err)

	a := NewAnalyzer(p)
	a.SetField(blob)
	require.NoError(t, a.Process(context.Background()))

	s := a.Summary()
	require.NotNil(t, s.Threshold)
	for idx, v := range a.Field().Data {
		if int64(blob.Data[idx]) <= s.Threshold.K {
			assert.Zero(t, v)
		}
	}

	_, meta, err := volumeio.LoadResultSet(s.Sidecar)
	require.NoError(t, err)
	require.NotNil(t, meta.Otsu)
	assert.Equal(t, s.Threshold.K, meta.Otsu.K)

	for _, rel := range []string{
		filepath.Join("vessel", "x", "slice_x_000.png"),
		filepath.Join("clump", "z", "slice_z_009.png"),
		filepath.Join("mask", "mask_z_005.png"),
	} {
		_, err := os.Stat(filepath.Join(p.SlicesDir, rel))
		assert.NoError(t, err, rel)
	}
}

func TestProcessRejectsFlatField(t *testing.T) {
	flat, _ := models.NewScalarField(8, 8)
	a := NewAnalyzer(testParams(t))
	a.SetField(flat)
	assert.ErrorIs(t, a.Process(context.Background()), models.ErrShapeMismatch)
}

func TestProcessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewAnalyzer(testParams(t))
	assert.ErrorIs(t, a.Process(ctx), context.Canceled)
}

func TestProcessVolumeFile(t *testing.T) {
	p := testParams(t)
	tube, err := synthetic.Tube([3]int{8, 8, 8}, 2, 1.5, 50)
	require.NoError(t, err)

	p.InputPath = filepath.Join(t.TempDir(), "tube.vol.zst")
	require.NoError(t, volumeio.WriteFile(p.InputPath, tube))

	a := NewAnalyzer(p)
	require.NoError(t, a.Process(context.Background()))
	assert.Equal(t, tube.Data, a.Field().Data)
}

func TestLoadSlices(t *testing.T) {
	dir := t.TempDir()
	// Written out of order; slice_10 must come last
	for _, n := range []struct {
		name  string
		value uint16
	}{
		{"slice_10.png", 3000},
		{"slice_2.png", 2000},
		{"slice_1.png", 1000},
	} {
		img := image.NewGray16(image.Rect(0, 0, 4, 3))
		for y := 0; y < 3; y++ {
			for x := 0; x < 4; x++ {
				img.SetGray16(x, y, color.Gray16{Y: n.value + uint16(x)})
			}
		}
		require.NoError(t, imaging.Save(img, filepath.Join(dir, n.name)))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	f, err := loadSlices(dir)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3, 3}, f.Shape)
	assert.Equal(t, 1000.0, f.At(0, 0, 0))
	assert.Equal(t, 2003.0, f.At(3, 2, 1))
	assert.Equal(t, 3001.0, f.At(1, 0, 2))
}

func TestLoadSlicesErrors(t *testing.T) {
	_, err := loadSlices(t.TempDir())
	assert.ErrorIs(t, err, ErrNoSlices)

	dir := t.TempDir()
	require.NoError(t, imaging.Save(image.NewGray(image.Rect(0, 0, 4, 4)), filepath.Join(dir, "a1.png")))
	require.NoError(t, imaging.Save(image.NewGray(image.Rect(0, 0, 5, 4)), filepath.Join(dir, "a2.png")))
	_, err = loadSlices(dir)
	assert.ErrorIs(t, err, models.ErrShapeMismatch)
}

func TestExtractNumber(t *testing.T) {
	testCases := []struct {
		filename string
		expected int
	}{
		{"slice_1.jpg", 1},
		{"slice_023.jpg", 23},
		{"img456.jpg", 456},
		{"not_a_number.jpg", -1},
		{"mixed123text456.jpg", 123456},
		{filepath.Join("dir7", "s9.png"), 9},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, extractNumber(tc.filename), tc.filename)
	}
}
