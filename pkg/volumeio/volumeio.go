// Package volumeio reads and writes scalar fields in a small binary
// container, optionally zstd-compressed, and saves analysis results with a
// YAML metadata sidecar.
package volumeio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"hessianshape/internal/models"
)

// Container layout, little endian:
//
//	magic   [4]byte "HSVF"
//	version uint16
//	ndim    uint16
//	dims    [ndim]uint32
//	data    [prod(dims)]float64
const (
	magic   = "HSVF"
	version = 1

	// CompressedExt marks files written through zstd
	CompressedExt = ".zst"

	// MaxVoxels bounds the voxel count Read accepts from a header (8 GiB
	// of float64 data)
	MaxVoxels = 1 << 30

	readChunk = 1 << 16
)

// ErrBadContainer indicates a stream that is not a valid field container
var ErrBadContainer = errors.New("volumeio: bad container")

// Write encodes field to w
func Write(w io.Writer, field *models.ScalarField) error {
	if field == nil {
		return fmt.Errorf("%w: nil field", models.ErrInvalidParameter)
	}
	bw := bufio.NewWriter(w)

	header := make([]byte, 0, 8+4*field.Dims())
	header = append(header, magic...)
	header = binary.LittleEndian.AppendUint16(header, version)
	header = binary.LittleEndian.AppendUint16(header, uint16(field.Dims()))
	for _, extent := range field.Shape {
		header = binary.LittleEndian.AppendUint32(header, uint32(extent))
	}
	if _, err := bw.Write(header); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	var buf [8]byte
	for _, v := range field.Data {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		if _, err := bw.Write(buf[:]); err != nil {
			return fmt.Errorf("error writing data: %w", err)
		}
	}
	return bw.Flush()
}

// Read decodes a field from r
func Read(r io.Reader) (*models.ScalarField, error) {
	br := bufio.NewReader(r)

	var fixed [8]byte
	if _, err := io.ReadFull(br, fixed[:]); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrBadContainer, err)
	}
	if string(fixed[:4]) != magic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadContainer, fixed[:4])
	}
	if v := binary.LittleEndian.Uint16(fixed[4:6]); v != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadContainer, v)
	}
	ndim := int(binary.LittleEndian.Uint16(fixed[6:8]))
	if ndim < 1 || ndim > models.MaxDims {
		return nil, fmt.Errorf("%w: %d dimensions", ErrBadContainer, ndim)
	}

	dims := make([]byte, 4*ndim)
	if _, err := io.ReadFull(br, dims); err != nil {
		return nil, fmt.Errorf("%w: short shape: %v", ErrBadContainer, err)
	}
	shape := make([]int, ndim)
	for i := range shape {
		shape[i] = int(binary.LittleEndian.Uint32(dims[4*i:]))
	}

	n, err := models.VoxelCount(shape...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadContainer, err)
	}
	if n > MaxVoxels {
		return nil, fmt.Errorf("%w: %d voxels exceeds the limit of %d", ErrBadContainer, n, MaxVoxels)
	}

	// The header is not trusted for the allocation size; data grows as it
	// is read so a truncated stream fails before a large allocation.
	data := make([]float64, 0, min(n, readChunk))
	var buf [8]byte
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return nil, fmt.Errorf("%w: truncated data at value %d: %v", ErrBadContainer, i, err)
		}
		data = append(data, math.Float64frombits(binary.LittleEndian.Uint64(buf[:])))
	}
	return models.FromData(data, shape...)
}

// WriteFile writes field to path, compressing with zstd when the path ends
// in CompressedExt
func WriteFile(path string, field *models.ScalarField) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	if !strings.HasSuffix(path, CompressedExt) {
		return Write(file, field)
	}

	enc, err := zstd.NewWriter(file)
	if err != nil {
		return fmt.Errorf("error creating zstd encoder: %w", err)
	}
	if err := Write(enc, field); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadFile reads a field written by WriteFile
func ReadFile(path string) (*models.ScalarField, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if !strings.HasSuffix(path, CompressedExt) {
		return Read(file)
	}

	dec, err := zstd.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("error creating zstd decoder: %w", err)
	}
	defer dec.Close()
	return Read(dec)
}
