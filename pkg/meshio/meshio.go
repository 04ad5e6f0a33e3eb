// Package meshio reads and writes hybrid meshes.
//
// Supported formats:
//
//   - JSON: the canonical encoding. Output is deterministic, so equal
//     meshes encode to equal bytes and hash equally.
//   - MSH: Gmsh MSH 2.2 ASCII with boundary lines (type 1), triangles
//     (type 2) and quadrilaterals (type 3). Physical and elementary tags
//     are the model surface or edge id plus one, as MSH tags are positive.
//   - GeoJSON: a feature collection with one polygon per element.
//
// [WriteFile] and [ReadFile] pick the format from the file extension and
// transparently handle a trailing ".zst" (zstd compression).
package meshio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/mesh"
)

// Format identifies a mesh file format.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMSH     Format = "msh"
	FormatGeoJSON Format = "geojson"
)

// zstdExt marks compressed files.
const zstdExt = ".zst"

// FormatOf infers the format from a file name, ignoring a trailing ".zst".
// It returns false for unknown extensions.
func FormatOf(path string) (Format, bool) {
	path = strings.TrimSuffix(strings.ToLower(path), zstdExt)
	switch filepath.Ext(path) {
	case ".json":
		return FormatJSON, true
	case ".msh":
		return FormatMSH, true
	case ".geojson":
		return FormatGeoJSON, true
	}
	return "", false
}

// =============================================================================
// JSON
// =============================================================================

// MarshalJSON encodes h canonically.
func MarshalJSON(h *mesh.HybridMesh) ([]byte, error) {
	if h == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "nil mesh")
	}
	return json.Marshal(h)
}

// UnmarshalJSON decodes a mesh written by MarshalJSON and checks that
// element references are in range. Triangle adjacency is rebuilt.
func UnmarshalJSON(data []byte) (*mesh.HybridMesh, error) {
	var h mesh.HybridMesh
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode mesh")
	}
	if err := checkRefs(&h); err != nil {
		return nil, err
	}
	mesh.BuildAdjacency(h.Triangles)
	return &h, nil
}

// WriteJSON writes the canonical encoding of h to w.
func WriteJSON(w io.Writer, h *mesh.HybridMesh) error {
	data, err := MarshalJSON(h)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadJSON reads a mesh written by WriteJSON.
func ReadJSON(r io.Reader) (*mesh.HybridMesh, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return UnmarshalJSON(data)
}

func checkRefs(h *mesh.HybridMesh) error {
	n := len(h.Vertices)
	for i, v := range h.Vertices {
		if v.ID != i {
			return errors.New(errors.ErrCodeInvalidFormat, "vertex %d has id %d", i, v.ID)
		}
	}
	ok := func(v int) bool { return v >= 0 && v < n }
	for _, t := range h.Triangles {
		for _, v := range t.V {
			if !ok(v) {
				return errors.New(errors.ErrCodeInvalidFormat, "triangle %d references vertex %d", t.ID, v).
					On(errors.Triangle(t.ID))
			}
		}
	}
	for _, q := range h.Quads {
		for _, v := range q.V {
			if !ok(v) {
				return errors.New(errors.ErrCodeInvalidFormat, "quad %d references vertex %d", q.ID, v).
					On(errors.Quad(q.ID))
			}
		}
	}
	for _, s := range h.Boundary {
		if !ok(s.V[0]) || !ok(s.V[1]) {
			return errors.New(errors.ErrCodeInvalidFormat, "boundary segment references vertex out of range")
		}
	}
	return nil
}

// =============================================================================
// Files
// =============================================================================

// Write encodes h to w in the given format.
func Write(w io.Writer, h *mesh.HybridMesh, format Format) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, h)
	case FormatMSH:
		return WriteMSH(w, h)
	case FormatGeoJSON:
		return WriteGeoJSON(w, h)
	}
	return errors.New(errors.ErrCodeInvalidFormat, "unsupported mesh format %q", format)
}

// Read decodes a mesh in the given format.
func Read(r io.Reader, format Format) (*mesh.HybridMesh, error) {
	switch format {
	case FormatJSON:
		return ReadJSON(r)
	case FormatMSH:
		return ReadMSH(r)
	case FormatGeoJSON:
		return ReadGeoJSON(r)
	}
	return nil, errors.New(errors.ErrCodeInvalidFormat, "cannot read mesh format %q", format)
}

// WriteFile writes h to path in the format implied by its extension.
func WriteFile(path string, h *mesh.HybridMesh) error {
	format, ok := FormatOf(path)
	if !ok {
		return errors.New(errors.ErrCodeInvalidFormat, "unknown mesh file extension: %s", path)
	}
	var buf bytes.Buffer
	if err := Write(&buf, h, format); err != nil {
		return err
	}
	data := buf.Bytes()
	if strings.HasSuffix(strings.ToLower(path), zstdExt) {
		var err error
		if data, err = compress(data); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadFile reads a mesh file written by WriteFile.
func ReadFile(path string) (*mesh.HybridMesh, error) {
	format, ok := FormatOf(path)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "unknown mesh file extension: %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), zstdExt) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "zstd")
		}
		defer dec.Close()
		r = dec
	}
	return Read(r, format)
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return buf.Bytes(), nil
}
