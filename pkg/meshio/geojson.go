package meshio

import (
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/mesh"
)

// GeoJSON builds a feature collection with one polygon feature per element
// followed by one line string per boundary segment.
// Element properties: "kind" ("triangle" or "quad"), "id", "surface",
// "quality". Segment properties: "kind" ("boundary"), "edge".
func GeoJSON(h *mesh.HybridMesh) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	point := func(id int) orb.Point {
		v := h.Vertices[id]
		return orb.Point{v.X, v.Y}
	}
	ring := func(ids ...int) orb.Polygon {
		r := make(orb.Ring, 0, len(ids)+1)
		for _, id := range ids {
			r = append(r, point(id))
		}
		return orb.Polygon{append(r, r[0])}
	}

	for _, t := range h.Triangles {
		f := geojson.NewFeature(ring(t.V[0], t.V[1], t.V[2]))
		f.Properties["kind"] = "triangle"
		f.Properties["id"] = t.ID
		f.Properties["surface"] = t.Surface
		f.Properties["quality"] = mesh.TriangleQuality(h.Vertices, t.V[0], t.V[1], t.V[2])
		fc.Append(f)
	}
	for _, q := range h.Quads {
		f := geojson.NewFeature(ring(q.V[0], q.V[1], q.V[2], q.V[3]))
		f.Properties["kind"] = "quad"
		f.Properties["id"] = q.ID
		f.Properties["surface"] = q.Surface
		f.Properties["quality"] = mesh.QuadQuality(h.Vertices, q.V[0], q.V[1], q.V[2], q.V[3])
		fc.Append(f)
	}
	for _, s := range h.Boundary {
		f := geojson.NewFeature(orb.LineString{point(s.V[0]), point(s.V[1])})
		f.Properties["kind"] = "boundary"
		f.Properties["edge"] = s.Edge
		fc.Append(f)
	}
	return fc
}

// WriteGeoJSON writes GeoJSON(h) to w.
func WriteGeoJSON(w io.Writer, h *mesh.HybridMesh) error {
	data, err := GeoJSON(h).MarshalJSON()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// FromGeoJSON rebuilds a mesh from a collection written by GeoJSON.
// Vertices are shared by exact coordinate and numbered in order of first
// use, so IDs may differ from the mesh that was written. Quality
// properties are ignored.
func FromGeoJSON(fc *geojson.FeatureCollection) (*mesh.HybridMesh, error) {
	h := &mesh.HybridMesh{}
	index := make(map[orb.Point]int)
	vertex := func(p orb.Point) int {
		if id, ok := index[p]; ok {
			return id
		}
		id := len(h.Vertices)
		index[p] = id
		h.Vertices = append(h.Vertices, mesh.Vertex{ID: id, X: p[0], Y: p[1]})
		return id
	}
	corners := func(i int, g orb.Geometry, n int) ([]int, error) {
		poly, ok := g.(orb.Polygon)
		if !ok || len(poly) != 1 || len(poly[0]) != n+1 || !poly[0].Closed() {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "feature %d: want a closed ring of %d corners", i, n)
		}
		ids := make([]int, n)
		for k := range ids {
			ids[k] = vertex(poly[0][k])
		}
		return ids, nil
	}

	for i, f := range fc.Features {
		switch kind := f.Properties.MustString("kind", ""); kind {
		case "triangle":
			v, err := corners(i, f.Geometry, 3)
			if err != nil {
				return nil, err
			}
			h.Triangles = append(h.Triangles, mesh.Triangle{
				ID:      f.Properties.MustInt("id", len(h.Triangles)),
				V:       [3]int{v[0], v[1], v[2]},
				Surface: f.Properties.MustInt("surface", 0),
			})
		case "quad":
			v, err := corners(i, f.Geometry, 4)
			if err != nil {
				return nil, err
			}
			h.Quads = append(h.Quads, mesh.Quad{
				ID:      f.Properties.MustInt("id", len(h.Quads)),
				V:       [4]int{v[0], v[1], v[2], v[3]},
				Surface: f.Properties.MustInt("surface", 0),
			})
		case "boundary":
			ls, ok := f.Geometry.(orb.LineString)
			if !ok || len(ls) != 2 {
				return nil, errors.New(errors.ErrCodeInvalidFormat, "feature %d: boundary needs a two-point line", i)
			}
			h.Boundary = append(h.Boundary, mesh.Segment{
				V:    [2]int{vertex(ls[0]), vertex(ls[1])},
				Edge: f.Properties.MustInt("edge", 0),
			})
		default:
			return nil, errors.New(errors.ErrCodeInvalidFormat, "feature %d: unknown kind %q", i, kind)
		}
	}
	mesh.BuildAdjacency(h.Triangles)
	return h, nil
}

// ReadGeoJSON reads a mesh written by WriteGeoJSON.
func ReadGeoJSON(r io.Reader) (*mesh.HybridMesh, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode geojson")
	}
	return FromGeoJSON(fc)
}
