package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/matzehuels/quadmesh/pkg/cache"
	"github.com/matzehuels/quadmesh/pkg/pipeline"
)

// extensions maps output formats to file suffixes. Mesh JSON gets a double
// suffix so it never overwrites a JSON session file of the same name.
var extensions = map[string]string{
	pipeline.FormatJSON:    ".mesh.json",
	pipeline.FormatMSH:     ".msh",
	pipeline.FormatGeoJSON: ".geojson",
	pipeline.FormatPNG:     ".png",
	pipeline.FormatDOT:     ".dot",
	pipeline.FormatSVG:     ".svg",
}

// compressible lists the formats meshio can read back from a .zst file.
var compressible = map[string]bool{
	pipeline.FormatJSON:    true,
	pipeline.FormatMSH:     true,
	pipeline.FormatGeoJSON: true,
}

// outputBase derives the output path prefix from an input file name.
func outputBase(input string) string {
	base := filepath.Base(input)
	for _, ext := range []string{".zst", ".json", ".toml", ".msh", ".geojson"} {
		base = strings.TrimSuffix(base, ext)
	}
	base = strings.TrimSuffix(base, ".mesh")
	if base == "" || base == "." {
		base = "mesh"
	}
	return base
}

// outputPaths maps each format to a file path. A single format written to
// an explicit path with an extension keeps that path as is; otherwise the
// output is treated as a prefix.
func outputPaths(output, defaultBase string, formats []string, compress bool) map[string]string {
	paths := make(map[string]string, len(formats))
	if len(formats) == 1 && output != "" && filepath.Ext(output) != "" {
		paths[formats[0]] = output
		return paths
	}
	base := output
	if base == "" {
		base = defaultBase
	} else if info, err := os.Stat(base); err == nil && info.IsDir() {
		base = filepath.Join(base, filepath.Base(defaultBase))
	}
	for _, f := range formats {
		path := base + extensions[f]
		if compress && compressible[f] {
			path += ".zst"
		}
		paths[f] = path
	}
	return paths
}

// writeArtifacts writes rendered artifacts and returns the written paths in
// sorted order. Paths ending in .zst are zstd-compressed.
func writeArtifacts(artifacts map[string][]byte, paths map[string]string) ([]string, error) {
	formats := make([]string, 0, len(artifacts))
	for f := range artifacts {
		formats = append(formats, f)
	}
	sort.Strings(formats)

	var written []string
	for _, f := range formats {
		path, ok := paths[f]
		if !ok {
			continue
		}
		data := artifacts[f]
		if strings.HasSuffix(path, ".zst") {
			var err error
			if data, err = cache.Compress(data); err != nil {
				return written, fmt.Errorf("compress %s: %w", path, err)
			}
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return written, fmt.Errorf("create %s: %w", dir, err)
			}
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
