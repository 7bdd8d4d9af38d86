package volumeio

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"hessianshape/internal/models"
)

// Metadata describes a saved ResultSet
type Metadata struct {
	Shape  []int     `yaml:"shape"`
	Scales []float64 `yaml:"scales"`
	Alpha  float64   `yaml:"alpha"`
	Beta   float64   `yaml:"beta"`

	// Otsu is set when the input was pre-cleaned with an Otsu threshold
	Otsu *OtsuMetadata `yaml:"otsu,omitempty"`

	// Files maps each result name to its file name, relative to the sidecar
	Files map[string]string `yaml:"files"`
}

// OtsuMetadata records the threshold applied before analysis
type OtsuMetadata struct {
	K          int64   `yaml:"k"`
	Variance   float64 `yaml:"variance"`
	Degenerate bool    `yaml:"degenerate"`
}

// Result names used as Metadata.Files keys
const (
	Vesselness  = "vessel"
	VesselScale = "vSigma"
	Clumpiness  = "clump"
	ClumpScale  = "cSigma"
)

// SaveResultSet writes the four result fields as dir/<stem>_<name>.vol
// (plus CompressedExt when compress is set) and the metadata as
// dir/<stem>_meta.yaml. It returns the sidecar path.
func SaveResultSet(dir, stem string, rs *models.ResultSet, meta Metadata, compress bool) (string, error) {
	if rs == nil {
		return "", fmt.Errorf("%w: nil result set", models.ErrInvalidParameter)
	}

	ext := ".vol"
	if compress {
		ext += CompressedExt
	}

	meta.Shape = append([]int(nil), rs.Vesselness.Shape...)
	meta.Scales = append([]float64(nil), rs.Scales...)
	meta.Files = make(map[string]string)

	for _, out := range []struct {
		name  string
		field *models.ScalarField
	}{
		{Vesselness, rs.Vesselness},
		{VesselScale, rs.VesselScale},
		{Clumpiness, rs.Clumpiness},
		{ClumpScale, rs.ClumpScale},
	} {
		file := fmt.Sprintf("%s_%s%s", stem, out.name, ext)
		if err := WriteFile(filepath.Join(dir, file), out.field); err != nil {
			return "", fmt.Errorf("error writing %s: %w", out.name, err)
		}
		meta.Files[out.name] = file
	}

	data, err := yaml.Marshal(&meta)
	if err != nil {
		return "", fmt.Errorf("error marshaling metadata: %w", err)
	}
	sidecar := filepath.Join(dir, stem+"_meta.yaml")
	if err := os.WriteFile(sidecar, data, 0644); err != nil {
		return "", fmt.Errorf("error writing metadata: %w", err)
	}
	return sidecar, nil
}

// LoadResultSet reads a ResultSet saved by SaveResultSet from its sidecar
func LoadResultSet(sidecar string) (*models.ResultSet, Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(sidecar)
	if err != nil {
		return nil, meta, err
	}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, meta, fmt.Errorf("error parsing metadata: %w", err)
	}

	dir := filepath.Dir(sidecar)
	load := func(name string) (*models.ScalarField, error) {
		file, ok := meta.Files[name]
		if !ok {
			return nil, fmt.Errorf("%w: metadata lists no %s file", ErrBadContainer, name)
		}
		f, err := ReadFile(filepath.Join(dir, file))
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", name, err)
		}
		return f, nil
	}

	rs := &models.ResultSet{Scales: meta.Scales}
	for _, out := range []struct {
		name string
		dst  **models.ScalarField
	}{
		{Vesselness, &rs.Vesselness},
		{VesselScale, &rs.VesselScale},
		{Clumpiness, &rs.Clumpiness},
		{ClumpScale, &rs.ClumpScale},
	} {
		f, err := load(out.name)
		if err != nil {
			return nil, meta, err
		}
		*out.dst = f
	}
	return rs, meta, nil
}
