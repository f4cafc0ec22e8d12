package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/charlievieth/fastwalk"
)

const (
	metaFile  = "meta.json"
	chunkExt  = ".bin"
	elemBytes = 4
)

// storeMeta is the JSON metadata document written next to the chunk files.
type storeMeta struct {
	Shape    [3]int `json:"shape"`
	DType    string `json:"dtype"`
	ChunkLen int    `json:"chunk_len"`
}

// Store is an out-of-core Array backed by a directory of uncompressed chunk
// files split along axis 0. Chunk files are created lazily on first write;
// an unwritten chunk reads as zeros. Because chunks are raw little-endian
// float32, a slice maps to plain file ranges with no decode step between
// storage and device buffers.
type Store struct {
	dir      string
	shape    Shape
	chunkLen int
}

// CreateStore initializes an empty store directory for the given shape,
// chunked along axis 0 with the given chunk length.
func CreateStore(dir string, shape Shape, chunkLen int) (*Store, error) {
	if chunkLen <= 0 || chunkLen > shape[0] {
		chunkLen = shape[0]
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrStore, dir, err)
	}
	meta := storeMeta{Shape: shape, DType: "float32", ChunkLen: chunkLen}
	raw, err := sonic.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encode metadata: %v", ErrStore, err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFile), raw, 0o644); err != nil {
		return nil, fmt.Errorf("%w: write metadata: %v", ErrStore, err)
	}
	return &Store{dir: dir, shape: shape, chunkLen: chunkLen}, nil
}

// OpenStore opens an existing store directory, validating its metadata and
// chunk-file inventory.
func OpenStore(dir string) (*Store, error) {
	raw, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return nil, fmt.Errorf("%w: read metadata: %v", ErrStore, err)
	}
	var meta storeMeta
	if err := sonic.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: decode metadata: %v", ErrStore, err)
	}
	if meta.DType != "float32" {
		return nil, fmt.Errorf("%w: unsupported dtype %q", ErrStore, meta.DType)
	}
	s := &Store{dir: dir, shape: meta.Shape, chunkLen: meta.ChunkLen}
	if s.chunkLen <= 0 || s.shape.Elems() <= 0 {
		return nil, fmt.Errorf("%w: malformed metadata in %s", ErrStore, dir)
	}

	nchunks := (s.shape[0] + s.chunkLen - 1) / s.chunkLen
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, chunkExt) {
			return nil
		}
		idx, err := strconv.Atoi(strings.TrimSuffix(name, chunkExt))
		if err != nil || idx < 0 || idx >= nchunks {
			return fmt.Errorf("stray chunk file %s", name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: inventory %s: %v", ErrStore, dir, err)
	}
	return s, nil
}

func (s *Store) Shape() Shape { return s.shape }

func (s *Store) Mode() Mode { return OutOfCore }

// Remove deletes the store directory and all chunk files.
func (s *Store) Remove() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("%w: remove %s: %v", ErrStore, s.dir, err)
	}
	return nil
}

// chunkRows returns the row count held by chunk file i.
func (s *Store) chunkRows(i int) int {
	rows := s.shape[0] - i*s.chunkLen
	if rows > s.chunkLen {
		rows = s.chunkLen
	}
	return rows
}

func (s *Store) chunkPath(i int) string {
	return filepath.Join(s.dir, strconv.Itoa(i)+chunkExt)
}

func (s *Store) ReadSlice(dst []float32, axis, off, n int) error {
	if err := checkSlice(s.shape, dst, axis, off, n); err != nil {
		return err
	}
	if axis == 0 {
		return s.readAxis0(dst, off, n)
	}
	return s.readAxis1(dst, off, n)
}

func (s *Store) WriteSlice(src []float32, axis, off, n int) error {
	if err := checkSlice(s.shape, src, axis, off, n); err != nil {
		return err
	}
	if axis == 0 {
		return s.writeAxis0(src, off, n)
	}
	return s.writeAxis1(src, off, n)
}

// readAxis0 reads rows [off, off+n), which may straddle chunk-file
// boundaries; each intersected file contributes one contiguous range.
func (s *Store) readAxis0(dst []float32, off, n int) error {
	rowElems := s.shape[1] * s.shape[2]
	for pos := off; pos < off+n; {
		ci := pos / s.chunkLen
		local := pos - ci*s.chunkLen
		rows := s.chunkRows(ci) - local
		if rem := off + n - pos; rows > rem {
			rows = rem
		}
		out := dst[(pos-off)*rowElems : (pos-off+rows)*rowElems]
		if err := s.readRange(ci, local*rowElems, out); err != nil {
			return err
		}
		pos += rows
	}
	return nil
}

func (s *Store) writeAxis0(src []float32, off, n int) error {
	rowElems := s.shape[1] * s.shape[2]
	for pos := off; pos < off+n; {
		ci := pos / s.chunkLen
		local := pos - ci*s.chunkLen
		rows := s.chunkRows(ci) - local
		if rem := off + n - pos; rows > rem {
			rows = rem
		}
		in := src[(pos-off)*rowElems : (pos-off+rows)*rowElems]
		if err := s.writeRange(ci, local*rowElems, in); err != nil {
			return err
		}
		pos += rows
	}
	return nil
}

// readAxis1 reads the middle-axis range [off, off+n) across every leading
// row. Within one row the range is a single contiguous run.
func (s *Store) readAxis1(dst []float32, off, n int) error {
	d1, d2 := s.shape[1], s.shape[2]
	nchunks := (s.shape[0] + s.chunkLen - 1) / s.chunkLen
	for ci := 0; ci < nchunks; ci++ {
		base := ci * s.chunkLen
		for r := 0; r < s.chunkRows(ci); r++ {
			run := dst[(base+r)*n*d2 : ((base+r)*n+n)*d2]
			if err := s.readRange(ci, (r*d1+off)*d2, run); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) writeAxis1(src []float32, off, n int) error {
	d1, d2 := s.shape[1], s.shape[2]
	nchunks := (s.shape[0] + s.chunkLen - 1) / s.chunkLen
	for ci := 0; ci < nchunks; ci++ {
		base := ci * s.chunkLen
		for r := 0; r < s.chunkRows(ci); r++ {
			run := src[(base+r)*n*d2 : ((base+r)*n+n)*d2]
			if err := s.writeRange(ci, (r*d1+off)*d2, run); err != nil {
				return err
			}
		}
	}
	return nil
}

// readRange fills out from chunk file ci starting at element elemOff.
// Missing or short files read as zeros.
func (s *Store) readRange(ci, elemOff int, out []float32) error {
	f, err := os.Open(s.chunkPath(ci))
	if os.IsNotExist(err) {
		zero(out)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: open chunk %d: %v", ErrStore, ci, err)
	}
	defer f.Close()

	buf := make([]byte, len(out)*elemBytes)
	nr, err := f.ReadAt(buf, int64(elemOff)*elemBytes)
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: read chunk %d: %v", ErrStore, ci, err)
	}
	for i := nr; i < len(buf); i++ {
		buf[i] = 0
	}
	bytesToFloats(out, buf)
	return nil
}

// writeRange stores in into chunk file ci at element elemOff, sizing the
// file to its full chunk extent on first touch so later partial reads see
// zeros rather than a short file.
func (s *Store) writeRange(ci, elemOff int, in []float32) error {
	f, err := os.OpenFile(s.chunkPath(ci), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open chunk %d: %v", ErrStore, ci, err)
	}
	defer f.Close()

	full := int64(s.chunkRows(ci)*s.shape[1]*s.shape[2]) * elemBytes
	if st, err := f.Stat(); err == nil && st.Size() < full {
		if err := f.Truncate(full); err != nil {
			return fmt.Errorf("%w: size chunk %d: %v", ErrStore, ci, err)
		}
	}

	buf := make([]byte, len(in)*elemBytes)
	floatsToBytes(buf, in)
	if _, err := f.WriteAt(buf, int64(elemOff)*elemBytes); err != nil {
		return fmt.Errorf("%w: write chunk %d: %v", ErrStore, ci, err)
	}
	return nil
}

func zero(s []float32) {
	for i := range s {
		s[i] = 0
	}
}
