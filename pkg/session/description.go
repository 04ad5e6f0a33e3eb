package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/quadmesh/pkg/cache"
	"github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/field"
	"github.com/matzehuels/quadmesh/pkg/geom"
)

// Description is the serializable form of a session. Entities carry user
// tags; references between entities use those tags. Loops may list lines
// with a negative tag to denote the reversed line, as in .geo files; the
// sign is accepted but orientation is recomputed.
//
// A minimal TOML description:
//
//	name = "square"
//	background = 1
//
//	[[points]]
//	id = 1
//	x = 0.0
//	y = 0.0
//	# ... points 2..4, lines 1..4
//
//	[[loops]]
//	id = 1
//	lines = [1, 2, 3, 4]
//
//	[[surfaces]]
//	id = 1
//	loops = [1]
//	recombine = true
//
//	[[fields]]
//	id = 1
//	kind = "math"
//	expr = "0.05 + 0.1*x"
//
//	[options]
//	"Mesh.Algorithm" = 8
type Description struct {
	Name       string         `toml:"name,omitempty" json:"name,omitempty"`
	Background *int           `toml:"background,omitempty" json:"background,omitempty"`
	Fallback   float64        `toml:"fallback,omitempty" json:"fallback,omitempty"`
	Points     []Point        `toml:"points,omitempty" json:"points,omitempty"`
	Lines      []Line         `toml:"lines,omitempty" json:"lines,omitempty"`
	Loops      []Loop         `toml:"loops,omitempty" json:"loops,omitempty"`
	Surfaces   []Surface      `toml:"surfaces,omitempty" json:"surfaces,omitempty"`
	Rectangles []Rectangle    `toml:"rectangles,omitempty" json:"rectangles,omitempty"`
	Fields     []FieldSpec    `toml:"fields,omitempty" json:"fields,omitempty"`
	Options    map[string]any `toml:"options,omitempty" json:"options,omitempty"`
}

// Point declares a model vertex. Size is its characteristic length.
type Point struct {
	ID   int     `toml:"id" json:"id"`
	X    float64 `toml:"x" json:"x"`
	Y    float64 `toml:"y" json:"y"`
	Size float64 `toml:"lc,omitempty" json:"lc,omitempty"`
}

// Line declares a straight model edge between two points.
type Line struct {
	ID   int `toml:"id" json:"id"`
	From int `toml:"from" json:"from"`
	To   int `toml:"to" json:"to"`
}

// Loop declares a closed curve loop.
type Loop struct {
	ID    int   `toml:"id" json:"id"`
	Lines []int `toml:"lines" json:"lines"`
}

// Surface declares a plane surface: an outer loop followed by holes.
type Surface struct {
	ID        int   `toml:"id" json:"id"`
	Loops     []int `toml:"loops" json:"loops"`
	Recombine bool  `toml:"recombine,omitempty" json:"recombine,omitempty"`
}

// Rectangle declares an axis-aligned rectangular surface. Its tag shares
// the namespace of Surface tags.
type Rectangle struct {
	ID        int     `toml:"id" json:"id"`
	X         float64 `toml:"x" json:"x"`
	Y         float64 `toml:"y" json:"y"`
	DX        float64 `toml:"dx" json:"dx"`
	DY        float64 `toml:"dy" json:"dy"`
	Recombine bool    `toml:"recombine,omitempty" json:"recombine,omitempty"`
}

// Field kinds.
const (
	KindMath     = "math"
	KindConstant = "constant"
	KindPos      = "pos"
	KindSamples  = "samples"
)

// FieldSpec declares a size field.
//
// Kind selects the variant: "math" compiles Expr; "constant" uses Value;
// "pos" reads a .pos view from File (relative paths resolve against the
// description's directory); "samples" interpolates Samples. Clamp is the
// size returned outside a background field's sampled region.
type FieldSpec struct {
	ID      int          `toml:"id" json:"id"`
	Kind    string       `toml:"kind" json:"kind"`
	Expr    string       `toml:"expr,omitempty" json:"expr,omitempty"`
	Value   float64      `toml:"value,omitempty" json:"value,omitempty"`
	File    string       `toml:"file,omitempty" json:"file,omitempty"`
	Clamp   float64      `toml:"clamp,omitempty" json:"clamp,omitempty"`
	Samples []SampleSpec `toml:"samples,omitempty" json:"samples,omitempty"`
}

// SampleSpec is one entry of a sample table. Tensor, when present, is
// [h1, h2, theta]: length h1 along the direction at angle theta (radians)
// and h2 across it.
type SampleSpec struct {
	X      float64   `toml:"x" json:"x"`
	Y      float64   `toml:"y" json:"y"`
	Size   float64   `toml:"size,omitempty" json:"size,omitempty"`
	Tensor []float64 `toml:"tensor,omitempty" json:"tensor,omitempty"`
}

// =============================================================================
// Decoding
// =============================================================================

// Format is a description encoding.
type Format string

// Supported formats.
const (
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatOf infers the format from a file name. Anything but .json is TOML.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatTOML
}

// Parse decodes a description. Unknown keys are rejected.
func Parse(data []byte, format Format) (*Description, error) {
	var d Description
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&d); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode JSON description")
		}
	case FormatTOML, "":
		md, err := toml.Decode(string(data), &d)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode TOML description")
		}
		if keys := md.Undecoded(); len(keys) > 0 {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "unknown key %q", keys[0].String())
		}
	default:
		return nil, errors.New(errors.ErrCodeInvalidFormat, "unsupported description format %q", format)
	}
	return &d, nil
}

// Encode writes d in the given format.
func (d *Description) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	case FormatTOML, "":
		return toml.NewEncoder(w).Encode(d)
	default:
		return errors.New(errors.ErrCodeInvalidFormat, "unsupported description format %q", format)
	}
}

// Load reads a description file and builds its session.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNotFound, err, "read %s", path)
	}
	d, err := Parse(data, FormatOf(path))
	if err != nil {
		return nil, err
	}
	return Build(d, filepath.Dir(path))
}

// Files returns the paths of files referenced by field declarations.
func (d *Description) Files() []string {
	var out []string
	for _, f := range d.Fields {
		if f.File != "" {
			out = append(out, f.File)
		}
	}
	return out
}

// =============================================================================
// Building
// =============================================================================

// builder maps user tags to model identifiers while a description is
// turned into a session.
type builder struct {
	s       *Session
	baseDir string

	points   map[int]geom.VertexID
	lines    map[int]geom.EdgeID
	loops    map[int]geom.LoopID
	surfaces map[int]geom.SurfaceID

	// files holds the hashes of referenced files, by path.
	files map[string]string
}

// Build creates a session from d. Relative field files resolve against
// baseDir. The model is left open; the pipeline finalizes it.
func Build(d *Description, baseDir string) (*Session, error) {
	b := &builder{
		s:        New(d.Name),
		baseDir:  baseDir,
		points:   make(map[int]geom.VertexID),
		lines:    make(map[int]geom.EdgeID),
		loops:    make(map[int]geom.LoopID),
		surfaces: make(map[int]geom.SurfaceID),
		files:    make(map[string]string),
	}
	steps := []func(*Description) error{b.addPoints, b.addLines, b.addLoops, b.addSurfaces, b.addFields}
	for _, step := range steps {
		if err := step(d); err != nil {
			return nil, err
		}
	}

	s := b.s
	if d.Background != nil {
		if err := s.SetBackground(*d.Background); err != nil {
			return nil, err
		}
	}
	if d.Fallback > 0 {
		s.Fields.SetFallback(d.Fallback)
	}
	for k, v := range d.Options {
		s.SetOption(k, v)
	}

	canon := *d
	canon.Name, canon.Options = "", nil
	fp, err := cache.HashJSON(struct {
		Description Description       `json:"description"`
		Files       map[string]string `json:"files,omitempty"`
	}{canon, b.files})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "fingerprint session")
	}
	s.desc, s.fingerprint = d, fp
	return s, nil
}

// tagged re-attributes a model error to the user tag of the entity being
// declared, keeping its code.
func tagged(err error, ent errors.Entity, stage errors.Stage) error {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	return errors.Wrap(code, err, "declared as %s", ent).On(ent).At(stage)
}

func duplicate(ent errors.Entity) error {
	return errors.DegenerateGeometry(ent, "tag declared twice")
}

func (b *builder) addPoints(d *Description) error {
	for _, p := range d.Points {
		ent := errors.Vertex(p.ID)
		if _, ok := b.points[p.ID]; ok {
			return duplicate(ent)
		}
		id, err := b.s.Model.AddVertexWithSize(p.X, p.Y, p.Size)
		if err != nil {
			return tagged(err, ent, errors.StageGeometry)
		}
		b.points[p.ID] = id
	}
	return nil
}

func (b *builder) addLines(d *Description) error {
	for _, l := range d.Lines {
		ent := errors.Edge(l.ID)
		if _, ok := b.lines[l.ID]; ok {
			return duplicate(ent)
		}
		v1, ok := b.points[l.From]
		if !ok {
			return errors.UnknownEntity(errors.Vertex(l.From))
		}
		v2, ok := b.points[l.To]
		if !ok {
			return errors.UnknownEntity(errors.Vertex(l.To))
		}
		id, err := b.s.Model.AddEdge(v1, v2)
		if err != nil {
			return tagged(err, ent, errors.StageGeometry)
		}
		b.lines[l.ID] = id
	}
	return nil
}

func (b *builder) addLoops(d *Description) error {
	for _, l := range d.Loops {
		ent := errors.Loop(l.ID)
		if _, ok := b.loops[l.ID]; ok {
			return duplicate(ent)
		}
		edges := make([]geom.EdgeID, len(l.Lines))
		for i, tag := range l.Lines {
			e, ok := b.lines[abs(tag)]
			if !ok {
				return errors.UnknownEntity(errors.Edge(abs(tag)))
			}
			edges[i] = e
		}
		id, err := b.s.Model.AddLoop(edges...)
		if err != nil {
			return tagged(err, ent, errors.StageGeometry)
		}
		b.loops[l.ID] = id
	}
	return nil
}

func (b *builder) addSurfaces(d *Description) error {
	for _, sd := range d.Surfaces {
		ent := errors.Surface(sd.ID)
		if _, ok := b.surfaces[sd.ID]; ok {
			return duplicate(ent)
		}
		loops := make([]geom.LoopID, len(sd.Loops))
		for i, tag := range sd.Loops {
			l, ok := b.loops[abs(tag)]
			if !ok {
				return errors.UnknownEntity(errors.Loop(abs(tag)))
			}
			loops[i] = l
		}
		id, err := b.s.Model.AddSurface(loops...)
		if err != nil {
			return tagged(err, ent, errors.StageGeometry)
		}
		if err := b.surface(sd.ID, id, sd.Recombine); err != nil {
			return err
		}
	}
	for _, r := range d.Rectangles {
		ent := errors.Surface(r.ID)
		if _, ok := b.surfaces[r.ID]; ok {
			return duplicate(ent)
		}
		id, err := b.s.Model.AddRectangle(r.X, r.Y, r.DX, r.DY)
		if err != nil {
			return tagged(err, ent, errors.StageGeometry)
		}
		if err := b.surface(r.ID, id, r.Recombine); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) surface(tag int, id geom.SurfaceID, recombine bool) error {
	b.surfaces[tag] = id
	if recombine {
		return b.s.SetRecombine(id)
	}
	return nil
}

func (b *builder) addFields(d *Description) error {
	for _, fs := range d.Fields {
		f, err := b.field(fs)
		if err != nil {
			return tagged(err, errors.Field(fs.ID), errors.StageField)
		}
		if err := b.s.Fields.Add(fs.ID, f); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) field(fs FieldSpec) (field.Field, error) {
	switch strings.ToLower(fs.Kind) {
	case KindMath, "matheval":
		return field.NewAnalytic(fs.Expr)
	case KindConstant:
		return field.Constant(fs.Value), nil
	case KindPos:
		return b.posField(fs)
	case KindSamples:
		samples := make([]field.Sample, len(fs.Samples))
		for i, sp := range fs.Samples {
			s, err := sampleOf(sp)
			if err != nil {
				return nil, fmt.Errorf("sample %d: %w", i, err)
			}
			samples[i] = s
		}
		return field.NewBackground(samples, nil, fs.Clamp)
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown field kind %q", fs.Kind)
	}
}

func (b *builder) posField(fs FieldSpec) (field.Field, error) {
	path := fs.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(b.baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNotFound, err, "read view")
	}
	b.files[fs.File] = cache.Hash(data)
	view, err := field.ParsePos(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return view.Background(fs.Clamp)
}

func sampleOf(sp SampleSpec) (field.Sample, error) {
	s := field.Sample{X: sp.X, Y: sp.Y, Size: sp.Size}
	switch len(sp.Tensor) {
	case 0:
	case 3:
		m := geom.Anisotropic(sp.Tensor[0], sp.Tensor[1], sp.Tensor[2])
		s.Tensor = &m
		if s.Size == 0 {
			s.Size, _ = m.Sizes()
		}
	default:
		return s, errors.New(errors.ErrCodeInvalidInput, "tensor needs 3 values [h1, h2, theta], got %d", len(sp.Tensor))
	}
	return s, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
