package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/quadmesh/pkg/errors"
)

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions(map[string]any{
		"Mesh.RecombineAll":                true,
		"algorithm":                        8,
		"Mesh.RecombinationAlgorithm":      int64(0),
		"SubdivisionAlgorithm":             "1",
		"Mesh.Smoothing":                   json.Number("5"),
		"SmoothRatio":                      1.3,
		"Mesh.AnisoMax":                    10,
		"Mesh.CharacteristicLengthFactor":  0.5,
		"MESH.MESHSIZEMIN":                 0.01,
		"CharacteristicLengthMax":          2,
		"Mesh.RecombineMinimumQuality":     0.2,
		"Mesh.MaxVertices":                 1000.0,
		"General.Terminal":                 "off",
		"General.Verbosity":                99,
	})
	if err != nil {
		t.Fatalf("ParseOptions() error: %v", err)
	}
	want := Options{
		RecombineAll:           true,
		Algorithm:              AlgorithmFrontalQuads,
		RecombinationAlgorithm: RecombinationSimple,
		SubdivisionAlgorithm:   1,
		Smoothing:              5,
		SmoothRatio:            1.3,
		AnisoMax:               10,
		SizeFactor:             0.5,
		SizeMin:                0.01,
		SizeMax:                2,
		MinQuality:             0.2,
		MaxVertices:            1000,
		Terminal:               false,
	}
	if opts.Verbosity == nil || *opts.Verbosity != 99 {
		t.Errorf("Verbosity = %v, want 99", opts.Verbosity)
	}
	opts.Verbosity = nil
	if opts != want {
		t.Errorf("ParseOptions() = %+v\nwant %+v", opts, want)
	}
}

func TestParseOptionsEmpty(t *testing.T) {
	opts, err := ParseOptions(nil)
	if err != nil {
		t.Fatalf("ParseOptions(nil) error: %v", err)
	}
	if opts != DefaultOptions() {
		t.Errorf("ParseOptions(nil) = %+v, want defaults", opts)
	}
}

func TestParseOptionsUnknown(t *testing.T) {
	for _, name := range []string{"Mesh.Foo", "Foo", "General.Algorithm", "Geometry.Tolerance", ""} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseOptions(map[string]any{name: 1})
			if !errors.Is(err, errors.ErrCodeUnknownOption) {
				t.Fatalf("err = %v, want OPTION_UNKNOWN", err)
			}
			if errors.StageOf(err) != errors.StageOptions {
				t.Errorf("stage = %q, want options", errors.StageOf(err))
			}
			if ent, ok := errors.EntityOf(err); !ok || ent.Kind != errors.KindOption || ent.Name != name {
				t.Errorf("entity = %v, want option %q", ent, name)
			}
		})
	}
}

func TestParseOptionsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"Mesh.RecombineAll", 2},
		{"Mesh.RecombineAll", "maybe"},
		{"Mesh.Algorithm", 3},
		{"Mesh.Algorithm", 6.5},
		{"Mesh.RecombinationAlgorithm", 4},
		{"Mesh.SubdivisionAlgorithm", 2},
		{"Mesh.Smoothing", -1},
		{"Mesh.Smoothing", 101},
		{"Mesh.SmoothRatio", 0.5},
		{"Mesh.AnisoMax", 0},
		{"Mesh.MeshSizeFactor", 0},
		{"Mesh.MeshSizeMin", -1},
		{"Mesh.MeshSizeMax", 0},
		{"Mesh.RecombineMinimumQuality", 1},
		{"Mesh.MaxVertices", 2},
		{"General.Verbosity", 100},
		{"Mesh.Algorithm", "frontal"},
		{"Mesh.AnisoMax", []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOptions(map[string]any{tt.name: tt.value})
			if !errors.Is(err, errors.ErrCodeInvalidOptionValue) {
				t.Fatalf("%s=%v: err = %v, want OPTION_INVALID_VALUE", tt.name, tt.value, err)
			}
			if errors.CategoryOf(err) != errors.CategoryOption {
				t.Errorf("category = %s, want %s", errors.CategoryOf(err), errors.CategoryOption)
			}
			if ent, ok := errors.EntityOf(err); !ok || ent.Name != tt.name {
				t.Errorf("entity = %v, want option %s", ent, tt.name)
			}
		})
	}
}

func TestParseOptionsSizeBounds(t *testing.T) {
	_, err := ParseOptions(map[string]any{"MeshSizeMin": 2, "MeshSizeMax": 1})
	if !errors.Is(err, errors.ErrCodeInvalidOptionValue) {
		t.Errorf("min > max: err = %v, want OPTION_INVALID_VALUE", err)
	}
}

func TestParseOptionsFirstErrorIsDeterministic(t *testing.T) {
	raw := map[string]any{"Zeta": 1, "Mesh.Algorithm": 3, "Alpha": 1}
	for i := 0; i < 20; i++ {
		_, err := ParseOptions(raw)
		ent, _ := errors.EntityOf(err)
		if ent.Name != "Alpha" {
			t.Fatalf("first error names %q, want Alpha", ent.Name)
		}
	}
}

func TestOptionNames(t *testing.T) {
	names := OptionNames()
	seen := make(map[string]bool)
	for _, n := range names {
		if seen[n] {
			t.Errorf("duplicate name %s", n)
		}
		seen[n] = true
	}
	for _, n := range []string{"Mesh.RecombineAll", "Mesh.Algorithm", "Mesh.SubdivisionAlgorithm",
		"Mesh.RecombinationAlgorithm", "Mesh.SmoothRatio", "Mesh.AnisoMax", "General.Verbosity"} {
		if !seen[n] {
			t.Errorf("OptionNames() lacks %s", n)
		}
	}
	if seen["Mesh.CharacteristicLengthFactor"] {
		t.Error("aliases should not be listed")
	}
}

func TestOptionsMap(t *testing.T) {
	m := DefaultOptions().Map()
	names := OptionNames()
	if len(m) != len(names) {
		t.Errorf("Map() has %d entries, OptionNames() %d", len(m), len(names))
	}
	for _, n := range names {
		if _, ok := m[n]; !ok {
			t.Errorf("Map() lacks %s", n)
		}
	}
	if m["General.Verbosity"] != DefaultVerbosity {
		t.Errorf("Map()[General.Verbosity] = %v, want %d", m["General.Verbosity"], DefaultVerbosity)
	}
	if m["Mesh.Algorithm"] != DefaultAlgorithm {
		t.Errorf("Map()[Mesh.Algorithm] = %v, want %d", m["Mesh.Algorithm"], DefaultAlgorithm)
	}
}

func TestLogLevel(t *testing.T) {
	level := func(v int) *int { return &v }
	tests := []struct {
		name      string
		opts      Options
		wantLevel log.Level
		wantOn    bool
	}{
		{"default", DefaultOptions(), log.InfoLevel, true},
		{"no terminal", Options{Terminal: false}, log.InfoLevel, false},
		{"silent", Options{Terminal: true, Verbosity: level(0)}, log.InfoLevel, false},
		{"errors", Options{Terminal: true, Verbosity: level(1)}, log.ErrorLevel, true},
		{"warnings", Options{Terminal: true, Verbosity: level(2)}, log.WarnLevel, true},
		{"info", Options{Terminal: true, Verbosity: level(5)}, log.InfoLevel, true},
		{"debug", Options{Terminal: true, Verbosity: level(99)}, log.DebugLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, on := tt.opts.LogLevel()
			if on != tt.wantOn || (on && got != tt.wantLevel) {
				t.Errorf("LogLevel() = %v, %v, want %v, %v", got, on, tt.wantLevel, tt.wantOn)
			}
		})
	}
}

func TestParseAssignment(t *testing.T) {
	tests := []struct {
		in    string
		name  string
		value any
		err   bool
	}{
		{"Mesh.Algorithm=8", "Mesh.Algorithm", 8.0, false},
		{" RecombineAll = 1 ", "RecombineAll", 1.0, false},
		{"General.Terminal=off", "General.Terminal", "off", false},
		{"SmoothRatio=1.5", "SmoothRatio", 1.5, false},
		{"Algorithm", "", nil, true},
		{"=3", "", nil, true},
	}
	for _, tt := range tests {
		name, value, err := ParseAssignment(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseAssignment(%q) error = %v, wantErr %v", tt.in, err, tt.err)
			continue
		}
		if name != tt.name || value != tt.value {
			t.Errorf("ParseAssignment(%q) = %q, %v, want %q, %v", tt.in, name, value, tt.name, tt.value)
		}
	}
}

func TestFormatValue(t *testing.T) {
	if got := FormatValue(true); got != "1" {
		t.Errorf("FormatValue(true) = %q, want 1", got)
	}
	if got := FormatValue(0.25); got != "0.25" {
		t.Errorf("FormatValue(0.25) = %q", got)
	}
	if got := FormatValue("x"); got != "x" {
		t.Errorf("FormatValue(x) = %q", got)
	}
}
