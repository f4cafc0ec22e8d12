package reader

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Raw file names inside a dataset directory.
const (
	projFile = "proj.bin"
	flatFile = "flat.bin"
	darkFile = "dark.bin"
)

// FileSource reads a raw little-endian float32 dataset from a directory:
// proj.bin holds the projection volume, flat.bin and dark.bin hold the
// calibration stacks. Reads on disjoint ranges are safe concurrently.
type FileSource struct {
	proj, flat, dark *os.File
	rowElems         int
}

// OpenFileSource opens the dataset under dir. rows and width fix the
// detector geometry of every frame.
func OpenFileSource(dir string, rows, width int) (*FileSource, error) {
	s := &FileSource{rowElems: rows * width}
	var err error
	for _, f := range []struct {
		name string
		dst  **os.File
	}{
		{projFile, &s.proj},
		{flatFile, &s.flat},
		{darkFile, &s.dark},
	} {
		*f.dst, err = os.Open(filepath.Join(dir, f.name))
		if err != nil {
			s.Close() //nolint:errcheck
			return nil, fmt.Errorf("open dataset: %w", err)
		}
	}
	return s, nil
}

// Close releases the underlying files.
func (s *FileSource) Close() error {
	var first error
	for _, f := range []*os.File{s.proj, s.flat, s.dark} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *FileSource) ReadProjections(ctx context.Context, dst []float32, start, end int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if want := (end - start) * s.rowElems; len(dst) != want {
		return fmt.Errorf("projection read: buffer holds %d elements, range needs %d", len(dst), want)
	}
	return readFloatsAt(s.proj, dst, int64(start)*int64(s.rowElems)*4)
}

func (s *FileSource) ReadCalibration(ctx context.Context, flat, dark []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := readFloatsAt(s.flat, flat, 0); err != nil {
		return fmt.Errorf("flat frames: %w", err)
	}
	if err := readFloatsAt(s.dark, dark, 0); err != nil {
		return fmt.Errorf("dark frames: %w", err)
	}
	return nil
}

func readFloatsAt(f *os.File, dst []float32, off int64) error {
	raw := make([]byte, len(dst)*4)
	if _, err := f.ReadAt(raw, off); err != nil {
		return fmt.Errorf("read %s at %d: %w", f.Name(), off, err)
	}
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return nil
}
