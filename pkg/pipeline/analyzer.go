// Package pipeline runs the end-to-end shape analysis: load or generate a
// volume, optionally suppress background with an Otsu threshold, compute
// multi-scale vesselness and clumpiness, save the results and summarise
// them.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"hessianshape/internal/models"
	"hessianshape/pkg/config"
	"hessianshape/pkg/otsu"
	"hessianshape/pkg/shape"
	"hessianshape/pkg/synthetic"
	"hessianshape/pkg/visualization"
	"hessianshape/pkg/volumeio"
)

// SyntheticParams describes the generated volume used when no input is given
type SyntheticParams struct {
	Kind      string
	Shape     [3]int
	X, Y, Z   string
	Radius    float64
	Intensity float64
	Axis      int
}

// Params holds the analysis parameters
type Params struct {
	// InputPath is a volume file written by volumeio, or a directory of 2D
	// slice images stacked along z. Empty means generate Synthetic.
	InputPath string

	// OutputDir and Stem place the saved results
	OutputDir string
	Stem      string

	// Scales lists the Gaussian sigmas in evaluation order
	Scales []float64

	// NumCores specifies how many CPU cores to use for parallel processing
	NumCores int

	Alpha, Beta float64

	// Otsu zeroes voxels at or below the Otsu threshold before analysis
	Otsu bool

	// Compress writes zstd-compressed volumes
	Compress bool

	// ExportSlices saves PNG slices of both responses under SlicesDir
	ExportSlices bool
	SlicesDir    string

	Synthetic SyntheticParams
}

// ParamsFromConfig builds Params from a validated configuration. input
// overrides the synthetic volume when non-empty.
func ParamsFromConfig(cfg *config.Config, input string) (*Params, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Params{
		InputPath:    input,
		OutputDir:    cfg.Output.Dir,
		Stem:         cfg.Output.Stem,
		Scales:       append([]float64(nil), cfg.Analysis.Scales...),
		NumCores:     cfg.Analysis.NumCores,
		Alpha:        cfg.Analysis.Alpha,
		Beta:         cfg.Analysis.Beta,
		Otsu:         cfg.Otsu.Enabled,
		Compress:     cfg.Output.Compress,
		ExportSlices: cfg.Output.ExportSlices,
		SlicesDir:    filepath.Join(cfg.Output.Dir, cfg.Output.SlicesDir),
		Synthetic: SyntheticParams{
			Kind:      cfg.Synthetic.Kind,
			X:         cfg.Synthetic.X,
			Y:         cfg.Synthetic.Y,
			Z:         cfg.Synthetic.Z,
			Radius:    cfg.Synthetic.Radius,
			Intensity: cfg.Synthetic.Intensity,
			Axis:      cfg.Synthetic.Axis,
		},
	}
	copy(p.Synthetic.Shape[:], cfg.Synthetic.Shape)
	return p, nil
}

// ScaleShare is the fraction of voxels whose best response came from Sigma
type ScaleShare struct {
	Sigma  float64
	Vessel float64
	Clump  float64
}

// Summary describes a completed run
type Summary struct {
	Shape []int

	// Threshold is set when Otsu pre-cleaning ran
	Threshold *otsu.Result

	VesselMean, VesselMax float64
	ClumpMean, ClumpMax   float64

	// Shares holds one entry per distinct scale, in evaluation order
	Shares []ScaleShare

	// Sidecar is the metadata file of the saved results
	Sidecar string

	Elapsed time.Duration
}

// Analyzer runs the shape analysis pipeline:
// 1. Loading or generating the input volume
// 2. Optional Otsu background suppression
// 3. Multi-scale vesselness and clumpiness
// 4. Saving results with a metadata sidecar
// 5. Optional slice export
// 6. Summary statistics
type Analyzer struct {
	params *Params

	// field is the analysed volume, after any Otsu masking
	field *models.ScalarField

	threshold *otsu.Result
	result    *models.ResultSet
	summary   Summary
}

// NewAnalyzer creates an analyzer with the provided parameters
func NewAnalyzer(params *Params) *Analyzer {
	return &Analyzer{params: params}
}

// SetField supplies the input volume directly, skipping the load step
func (a *Analyzer) SetField(field *models.ScalarField) {
	a.field = field
}

// Field returns the analysed volume
func (a *Analyzer) Field() *models.ScalarField {
	return a.field
}

// Result returns the analysis output once Process has succeeded
func (a *Analyzer) Result() *models.ResultSet {
	return a.result
}

// Summary returns the run summary once Process has succeeded
func (a *Analyzer) Summary() Summary {
	return a.summary
}

// Process runs the complete pipeline
func (a *Analyzer) Process(ctx context.Context) error {
	start := time.Now()

	// Step 1: Load or generate the input volume
	if a.field == nil {
		log.Info().Msg("Step 1: Loading input volume...")
		field, err := a.loadField()
		if err != nil {
			return fmt.Errorf("failed to load input: %w", err)
		}
		a.field = field
	}
	if a.field.Dims() != 3 {
		return fmt.Errorf("%w: input must be a 3D volume, got shape %v", models.ErrShapeMismatch, a.field.Shape)
	}
	log.Info().Ints("shape", a.field.Shape).Msg("Input volume ready")

	// Step 2: Otsu background suppression
	if a.params.Otsu {
		log.Info().Msg("Step 2: Applying Otsu background suppression...")
		r, err := otsu.Threshold(a.field)
		if err != nil {
			return fmt.Errorf("failed to compute otsu threshold: %w", err)
		}
		a.threshold = &r
		a.field = otsu.Mask(a.field, r.K)
		log.Info().Int64("k", r.K).Float64("variance", r.Variance).Bool("degenerate", r.Degenerate).
			Msg("Otsu threshold applied")
	}

	// Step 3: Multi-scale analysis
	log.Info().Floats64("scales", a.params.Scales).Msg("Step 3: Computing vesselness and clumpiness...")
	opts := shape.Options{Alpha: a.params.Alpha, Beta: a.params.Beta, Workers: a.params.NumCores}
	result, err := shape.ComputeVesselAndClumpResponse(ctx, a.params.Scales, a.field, opts)
	if err != nil {
		return fmt.Errorf("failed to compute shape responses: %w", err)
	}
	a.result = result

	// Step 4: Save results
	log.Info().Str("dir", a.params.OutputDir).Msg("Step 4: Saving results...")
	meta := volumeio.Metadata{Alpha: a.params.Alpha, Beta: a.params.Beta}
	if a.threshold != nil {
		meta.Otsu = &volumeio.OtsuMetadata{
			K:          a.threshold.K,
			Variance:   a.threshold.Variance,
			Degenerate: a.threshold.Degenerate,
		}
	}
	sidecar, err := volumeio.SaveResultSet(a.params.OutputDir, a.params.Stem, result, meta, a.params.Compress)
	if err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	// Step 5: Slice export
	if a.params.ExportSlices {
		log.Info().Str("dir", a.params.SlicesDir).Msg("Step 5: Exporting slices...")
		if err := a.exportSlices(); err != nil {
			return fmt.Errorf("failed to export slices: %w", err)
		}
	}

	// Step 6: Summary
	a.summary = a.summarize()
	a.summary.Sidecar = sidecar
	a.summary.Elapsed = time.Since(start)
	return nil
}

// loadField reads InputPath, or generates the synthetic volume when it is
// empty
func (a *Analyzer) loadField() (*models.ScalarField, error) {
	if a.params.InputPath == "" {
		return generate(a.params.Synthetic)
	}

	info, err := os.Stat(a.params.InputPath)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return loadSlices(a.params.InputPath)
	}
	return volumeio.ReadFile(a.params.InputPath)
}

// generate builds the configured synthetic volume
func generate(p SyntheticParams) (*models.ScalarField, error) {
	log.Debug().Str("kind", p.Kind).Ints("shape", p.Shape[:]).Msg("generating synthetic volume")

	switch p.Kind {
	case config.SyntheticTube:
		return synthetic.Tube(p.Shape, p.Axis, p.Radius, p.Intensity)
	case config.SyntheticBlob:
		return synthetic.Blob(p.Shape, p.Radius, p.Intensity)
	case config.SyntheticPolynomial:
		polys := make([]synthetic.Polynomial, 3)
		for axis, src := range []string{p.X, p.Y, p.Z} {
			poly, err := synthetic.ParsePolynomial(src)
			if err != nil {
				return nil, fmt.Errorf("axis %d: %w", axis, err)
			}
			polys[axis] = poly
		}
		return synthetic.FromPolynomials(p.Shape[:], polys...)
	}
	return nil, fmt.Errorf("%w: unknown synthetic kind %q", models.ErrInvalidParameter, p.Kind)
}

// exportSlices saves every slice of both responses along each axis, plus
// the Otsu mask of the analysed volume when one was computed
func (a *Analyzer) exportSlices() error {
	for _, out := range []struct {
		name  string
		field *models.ScalarField
	}{
		{volumeio.Vesselness, a.result.Vesselness},
		{volumeio.Clumpiness, a.result.Clumpiness},
	} {
		viewer, err := visualization.NewViewer(out.field)
		if err != nil {
			return err
		}
		for _, axis := range []string{"x", "y", "z"} {
			dir := filepath.Join(a.params.SlicesDir, out.name, axis)
			if err := viewer.SaveSliceSequence(axis, dir); err != nil {
				// A failed axis does not invalidate the saved results
				log.Warn().Err(err).Str("result", out.name).Str("axis", axis).Msg("failed to save slices")
			}
		}
	}

	if a.threshold == nil {
		return nil
	}
	viewer, err := visualization.NewViewer(a.field)
	if err != nil {
		return err
	}
	level := viewer.Level(float64(a.threshold.K + 1))
	if err := viewer.SaveMaskSequence("z", filepath.Join(a.params.SlicesDir, "mask"), level); err != nil {
		log.Warn().Err(err).Msg("failed to save otsu mask slices")
	}
	return nil
}

// summarize computes response statistics and the share of voxels won by
// each scale
func (a *Analyzer) summarize() Summary {
	r := a.result
	s := Summary{
		Shape:      append([]int(nil), r.Vesselness.Shape...),
		Threshold:  a.threshold,
		VesselMean: stat.Mean(r.Vesselness.Data, nil),
		VesselMax:  floats.Max(r.Vesselness.Data),
		ClumpMean:  stat.Mean(r.Clumpiness.Data, nil),
		ClumpMax:   floats.Max(r.Clumpiness.Data),
	}

	n := float64(r.VesselScale.Len())
	seen := make(map[float64]bool)
	for _, sigma := range r.Scales {
		if seen[sigma] {
			continue
		}
		seen[sigma] = true
		share := ScaleShare{Sigma: sigma}
		for idx := range r.VesselScale.Data {
			if r.VesselScale.Data[idx] == sigma {
				share.Vessel++
			}
			if r.ClumpScale.Data[idx] == sigma {
				share.Clump++
			}
		}
		share.Vessel /= n
		share.Clump /= n
		s.Shares = append(s.Shares, share)
	}
	return s
}
