package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/quadmesh/pkg/errors"
)

// option binds a canonical option name to its setter.
type option struct {
	name string
	set  func(o *Options, name string, v any) error
}

// options lists every recognized name, keyed by lower-case canonical name.
// Mesh options are registered without their prefix.
var options = map[string]option{}

func register(name string, set func(o *Options, name string, v any) error, aliases ...string) {
	opt := option{name: name, set: set}
	options[strings.ToLower(name)] = opt
	for _, a := range aliases {
		options[strings.ToLower(a)] = opt
	}
}

func init() {
	register("Mesh.RecombineAll", func(o *Options, name string, v any) error {
		b, err := boolValue(name, v)
		o.RecombineAll = b
		return err
	})
	register("Mesh.Algorithm", intOption(func(o *Options) *int { return &o.Algorithm },
		AlgorithmMeshAdapt, AlgorithmAutomatic, AlgorithmDelaunay, AlgorithmFrontalDelaunay, AlgorithmBAMG, AlgorithmFrontalQuads))
	register("Mesh.RecombinationAlgorithm", intOption(func(o *Options) *int { return &o.RecombinationAlgorithm },
		RecombinationSimple, RecombinationBlossom, RecombinationSimpleFullQuad, RecombinationBlossomFull))
	register("Mesh.SubdivisionAlgorithm", intOption(func(o *Options) *int { return &o.SubdivisionAlgorithm }, 0, 1))
	register("Mesh.Smoothing", func(o *Options, name string, v any) error {
		n, err := intValue(name, v)
		if err != nil {
			return err
		}
		if err := errors.ValidateRange(name, float64(n), 0, 100); err != nil {
			return err
		}
		o.Smoothing = n
		return nil
	})
	register("Mesh.SmoothRatio", floatOption(func(o *Options) *float64 { return &o.SmoothRatio }, 1, math.Inf(1)))
	register("Mesh.AnisoMax", floatOption(func(o *Options) *float64 { return &o.AnisoMax }, 1, math.Inf(1)))
	register("Mesh.MeshSizeFactor", func(o *Options, name string, v any) error {
		f, err := floatValue(name, v)
		if err != nil {
			return err
		}
		if err := errors.ValidatePositive(name, f); err != nil {
			return err
		}
		o.SizeFactor = f
		return nil
	}, "Mesh.CharacteristicLengthFactor")
	register("Mesh.MeshSizeMin", floatOption(func(o *Options) *float64 { return &o.SizeMin }, 0, math.Inf(1)),
		"Mesh.CharacteristicLengthMin")
	register("Mesh.MeshSizeMax", func(o *Options, name string, v any) error {
		f, err := floatValue(name, v)
		if err != nil {
			return err
		}
		if err := errors.ValidatePositive(name, f); err != nil {
			return err
		}
		o.SizeMax = f
		return nil
	}, "Mesh.CharacteristicLengthMax")
	register("Mesh.RecombineMinimumQuality", func(o *Options, name string, v any) error {
		f, err := floatValue(name, v)
		if err != nil {
			return err
		}
		if math.IsNaN(f) || f < 0 || f >= 1 {
			return errors.InvalidOptionValue(name, f, "must be within [0, 1)")
		}
		o.MinQuality = f
		return nil
	})
	register("Mesh.MaxVertices", func(o *Options, name string, v any) error {
		n, err := intValue(name, v)
		if err != nil {
			return err
		}
		if n < 3 {
			return errors.InvalidOptionValue(name, n, "must be >= 3")
		}
		o.MaxVertices = n
		return nil
	})
	register("General.Terminal", func(o *Options, name string, v any) error {
		b, err := boolValue(name, v)
		o.Terminal = b
		return err
	})
	register("General.Verbosity", func(o *Options, name string, v any) error {
		n, err := intValue(name, v)
		if err != nil {
			return err
		}
		if err := errors.ValidateRange(name, float64(n), 0, 99); err != nil {
			return err
		}
		o.Verbosity = &n
		return nil
	})
}

// ParseOptions validates a raw option map and returns the resulting option
// set. Names are case-insensitive; mesh options may omit the "Mesh."
// prefix. Keys are applied in sorted order, so the first error reported
// for a map with several bad entries is deterministic.
func ParseOptions(raw map[string]any) (Options, error) {
	opts := DefaultOptions()
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		opt, ok := lookup(name)
		if !ok {
			return Options{}, errors.UnknownOption(name)
		}
		if err := opt.set(&opts, opt.name, raw[name]); err != nil {
			return Options{}, err
		}
	}
	if opts.SizeMax > 0 && opts.SizeMin > opts.SizeMax {
		return Options{}, errors.InvalidOptionValue("Mesh.MeshSizeMin", opts.SizeMin,
			"exceeds Mesh.MeshSizeMax (%g)", opts.SizeMax)
	}
	return opts, nil
}

// OptionNames returns the canonical names of all recognized options.
func OptionNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, opt := range options {
		if !seen[opt.name] {
			seen[opt.name] = true
			names = append(names, opt.name)
		}
	}
	sort.Strings(names)
	return names
}

// Map returns the option set keyed by canonical name. Verbosity is
// reported as DefaultVerbosity when unset.
func (o Options) Map() map[string]any {
	verbosity := DefaultVerbosity
	if o.Verbosity != nil {
		verbosity = *o.Verbosity
	}
	return map[string]any{
		"Mesh.RecombineAll":            o.RecombineAll,
		"Mesh.Algorithm":               o.Algorithm,
		"Mesh.RecombinationAlgorithm":  o.RecombinationAlgorithm,
		"Mesh.SubdivisionAlgorithm":    o.SubdivisionAlgorithm,
		"Mesh.Smoothing":               o.Smoothing,
		"Mesh.SmoothRatio":             o.SmoothRatio,
		"Mesh.AnisoMax":                o.AnisoMax,
		"Mesh.MeshSizeFactor":          o.SizeFactor,
		"Mesh.MeshSizeMin":             o.SizeMin,
		"Mesh.MeshSizeMax":             o.SizeMax,
		"Mesh.RecombineMinimumQuality": o.MinQuality,
		"Mesh.MaxVertices":             o.MaxVertices,
		"General.Terminal":             o.Terminal,
		"General.Verbosity":            verbosity,
	}
}

func lookup(name string) (option, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if opt, ok := options[key]; ok {
		return opt, true
	}
	if strings.Contains(key, ".") {
		return option{}, false
	}
	opt, ok := options["mesh."+key]
	return opt, ok
}

// LogLevel maps the run's verbosity onto a logger level. The boolean is
// false when output should be silenced entirely.
func (o Options) LogLevel() (log.Level, bool) {
	if !o.Terminal {
		return log.InfoLevel, false
	}
	if o.Verbosity == nil {
		return log.InfoLevel, true
	}
	switch v := *o.Verbosity; {
	case v == 0:
		return log.InfoLevel, false
	case v == 1:
		return log.ErrorLevel, true
	case v == 2:
		return log.WarnLevel, true
	case v >= 99:
		return log.DebugLevel, true
	default:
		return log.InfoLevel, true
	}
}

// =============================================================================
// Value conversion
// =============================================================================

func intOption(field func(o *Options) *int, allowed ...int) func(*Options, string, any) error {
	return func(o *Options, name string, v any) error {
		n, err := intValue(name, v)
		if err != nil {
			return err
		}
		if err := errors.ValidateIntChoice(name, n, allowed...); err != nil {
			return err
		}
		*field(o) = n
		return nil
	}
}

func floatOption(field func(o *Options) *float64, lo, hi float64) func(*Options, string, any) error {
	return func(o *Options, name string, v any) error {
		f, err := floatValue(name, v)
		if err != nil {
			return err
		}
		if err := errors.ValidateRange(name, f, lo, hi); err != nil {
			return err
		}
		*field(o) = f
		return nil
	}
}

func floatValue(name string, v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case float64:
		f = x
	case json.Number:
		var err error
		if f, err = x.Float64(); err != nil {
			return 0, errors.InvalidOptionValue(name, v, "not a number")
		}
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(x), 64); err != nil {
			return 0, errors.InvalidOptionValue(name, v, "not a number")
		}
	default:
		return 0, errors.InvalidOptionValue(name, v, "not a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.InvalidOptionValue(name, v, "not a finite number")
	}
	return f, nil
}

func intValue(name string, v any) (int, error) {
	if b, ok := v.(bool); ok {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	f, err := floatValue(name, v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, errors.InvalidOptionValue(name, v, "must be an integer")
	}
	return int(f), nil
}

func boolValue(name string, v any) (bool, error) {
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "on", "yes":
			return true, nil
		case "false", "off", "no":
			return false, nil
		}
	}
	n, err := intValue(name, v)
	if err != nil {
		return false, err
	}
	if n != 0 && n != 1 {
		return false, errors.InvalidOptionValue(name, v, "must be 0 or 1")
	}
	return n == 1, nil
}

// FormatValue renders an option value the way it is written on the
// command line.
func FormatValue(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// ParseAssignment splits a "Name=Value" command-line assignment. Numeric
// values become float64, everything else stays a string.
func ParseAssignment(s string) (string, any, error) {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", nil, errors.New(errors.ErrCodeInvalidInput, "expected Name=Value, got %q", s)
	}
	value = strings.TrimSpace(value)
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return name, f, nil
	}
	return name, value, nil
}
