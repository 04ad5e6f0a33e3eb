// Package session holds the state of one meshing session.
//
// A [Session] owns a geometry model, a registry of size fields, the raw
// option map and the set of surfaces opted into recombination. It replaces
// the ambient global state of a scripting front end: every pipeline run
// receives its session explicitly.
//
// Sessions are built either programmatically:
//
//	s := session.New("square")
//	sid, _ := s.Model.AddRectangle(0, 0, 1, 1)
//	_ = s.Fields.Add(1, field.Constant(0.1))
//	_ = s.SetBackground(1)
//	_ = s.SetRecombine(sid)
//	s.SetOption("Mesh.Algorithm", 8)
//
// or from a [Description] (see [Load] and [Build]), which also gives the
// session a [Session.Fingerprint] that pipeline caches key on.
//
// Sessions are stored by a [Store]: [FileStore] keeps descriptions as TOML
// files for the CLI, [MemoryStore] keeps them in process for the HTTP
// server.
package session

import (
	"errors"
	"maps"
	"sort"
	"time"

	"github.com/google/uuid"

	qerrors "github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/field"
	"github.com/matzehuels/quadmesh/pkg/geom"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when a stored session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExpired is returned when a stored session has exceeded its TTL.
	ErrExpired = errors.New("expired")
)

// Session is the explicit state of a meshing session.
type Session struct {
	ID      string
	Name    string
	Created time.Time

	Model  *geom.Model
	Fields *field.Registry

	// Options is the raw option map, validated when a pipeline run starts.
	Options map[string]any

	recombine   map[geom.SurfaceID]bool
	desc        *Description
	fingerprint string
}

// New creates an empty session with a fresh ID.
func New(name string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Name:      name,
		Created:   time.Now(),
		Model:     geom.NewModel(),
		Fields:    field.NewRegistry(),
		Options:   make(map[string]any),
		recombine: make(map[geom.SurfaceID]bool),
	}
}

// SetRecombine opts surface id into recombination.
func (s *Session) SetRecombine(id geom.SurfaceID) error {
	if _, ok := s.Model.Surface(id); !ok {
		return qerrors.UnknownEntity(qerrors.Surface(int(id)))
	}
	s.recombine[id] = true
	return nil
}

// Recombine reports whether surface id was opted into recombination.
func (s *Session) Recombine(id geom.SurfaceID) bool { return s.recombine[id] }

// RecombineSurfaces returns the opted-in surfaces in ascending order.
func (s *Session) RecombineSurfaces() []geom.SurfaceID {
	ids := make([]geom.SurfaceID, 0, len(s.recombine))
	for id := range s.recombine {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SetOption records a raw option value. Names and values are checked when
// the pipeline parses the option map.
func (s *Session) SetOption(name string, value any) {
	s.Options[name] = value
}

// SetBackground makes field id the active size field.
func (s *Session) SetBackground(id int) error {
	return s.Fields.SetAsBackground(id)
}

// OptionMap returns a copy of the raw options.
func (s *Session) OptionMap() map[string]any {
	return maps.Clone(s.Options)
}

// Description returns the description the session was built from.
func (s *Session) Description() (*Description, bool) {
	return s.desc, s.desc != nil
}

// Fingerprint returns a hash of everything that determines the geometry
// and the size field: the description without its name and options, plus
// the contents of referenced files. Sessions built programmatically have
// no fingerprint.
func (s *Session) Fingerprint() (string, bool) {
	return s.fingerprint, s.fingerprint != ""
}
