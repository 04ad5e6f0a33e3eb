// Package errors provides structured error types for the quadmesh engine.
//
// Every failure raised while building geometry, evaluating size fields,
// generating meshes or parsing options is an *Error carrying:
//   - A machine-readable Code
//   - The Stage of the pipeline that failed
//   - The offending Entity (vertex, edge, triangle, field, option, ...)
//   - An optional Cause for wrapped errors
//
// # Error Categories
//
// Codes are grouped into the four categories of the meshing taxonomy:
//   - GEOMETRY_*: malformed or self-intersecting input, fatal, never retried
//   - FIELD_*: size-field domain or conflict errors
//   - MESHING_*: triangulation or recombination could not satisfy invariants
//   - OPTION_*: bad configuration, rejected before the pipeline starts
//
// A small set of generic codes (INVALID_*, NOT_FOUND, INTERNAL_ERROR) covers
// the CLI, storage and transport layers.
//
// # Usage
//
//	err := errors.DegenerateGeometry(errors.Edge(3), "vertices %d and %d coincide", v1, v2)
//	if errors.Is(err, errors.ErrCodeDegenerateGeometry) {
//	    // Handle degenerate input
//	}
//
//	// Attach the pipeline stage on the way out
//	return errors.WithStage(err, errors.StageGeometry)
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code represents a machine-readable error code.
type Code string

// Error codes, grouped by category.
const (
	// Geometry errors
	ErrCodeDegenerateGeometry Code = "GEOMETRY_DEGENERATE"
	ErrCodeOpenLoop           Code = "GEOMETRY_OPEN_LOOP"
	ErrCodeSelfIntersection   Code = "GEOMETRY_SELF_INTERSECTION"
	ErrCodeUnknownEntity      Code = "GEOMETRY_UNKNOWN_ENTITY"
	ErrCodeModelFinalized     Code = "GEOMETRY_FINALIZED"

	// Size field errors
	ErrCodeDomain           Code = "FIELD_DOMAIN"
	ErrCodeConflictingField Code = "FIELD_CONFLICT"
	ErrCodeUnknownField     Code = "FIELD_UNKNOWN"
	ErrCodeExpression       Code = "FIELD_EXPRESSION"

	// Meshing failures
	ErrCodeUnmeshable     Code = "MESHING_UNMESHABLE"
	ErrCodeMeshingFailed  Code = "MESHING_FAILED"
	ErrCodeVertexBudget   Code = "MESHING_VERTEX_BUDGET"
	ErrCodeMatchingFailed Code = "MESHING_MATCHING"

	// Option errors
	ErrCodeUnknownOption      Code = "OPTION_UNKNOWN"
	ErrCodeInvalidOptionValue Code = "OPTION_INVALID_VALUE"

	// Generic errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidFormat Code = "INVALID_FORMAT"
	ErrCodeInvalidPath   Code = "INVALID_PATH"
	ErrCodeNotFound      Code = "NOT_FOUND"
	ErrCodeAborted       Code = "ABORTED"
	ErrCodeInternal      Code = "INTERNAL_ERROR"
)

// Category is one of the top-level failure classes.
type Category string

// Error categories.
const (
	CategoryGeometry Category = "GeometryError"
	CategoryField    Category = "FieldError"
	CategoryMeshing  Category = "MeshingFailure"
	CategoryOption   Category = "OptionError"
	CategoryGeneric  Category = "Error"
)

// Category returns the category the code belongs to, derived from its prefix.
func (c Code) Category() Category {
	switch {
	case strings.HasPrefix(string(c), "GEOMETRY_"):
		return CategoryGeometry
	case strings.HasPrefix(string(c), "FIELD_"):
		return CategoryField
	case strings.HasPrefix(string(c), "MESHING_"):
		return CategoryMeshing
	case strings.HasPrefix(string(c), "OPTION_"):
		return CategoryOption
	}
	return CategoryGeneric
}

// Stage names the pipeline stage that raised an error.
type Stage string

// Pipeline stages.
const (
	StageOptions     Stage = "options"
	StageGeometry    Stage = "geometry"
	StageField       Stage = "field"
	StageTriangulate Stage = "triangulate"
	StageRecombine   Stage = "recombine"
	StageSubdivide   Stage = "subdivide"
	StageSmooth      Stage = "smooth"
	StageValidate    Stage = "validate"
	StageOutput      Stage = "output"
)

// EntityKind identifies the kind of model or mesh entity an error refers to.
type EntityKind string

// Entity kinds.
const (
	KindVertex   EntityKind = "vertex"
	KindEdge     EntityKind = "edge"
	KindLoop     EntityKind = "loop"
	KindSurface  EntityKind = "surface"
	KindTriangle EntityKind = "triangle"
	KindQuad     EntityKind = "quad"
	KindMeshEdge EntityKind = "mesh edge"
	KindMesh     EntityKind = "mesh"
	KindField    EntityKind = "field"
	KindOption   EntityKind = "option"
)

// Entity references the offending entity. Options are referenced by name,
// everything else by numeric id.
type Entity struct {
	Kind EntityKind
	ID   int
	Name string
}

// String renders the entity as "kind id" or "kind name".
func (e Entity) String() string {
	if e.Name != "" {
		return fmt.Sprintf("%s %q", e.Kind, e.Name)
	}
	return fmt.Sprintf("%s %d", e.Kind, e.ID)
}

// Vertex returns an entity reference to a vertex.
func Vertex(id int) Entity { return Entity{Kind: KindVertex, ID: id} }

// Edge returns an entity reference to an edge.
func Edge(id int) Entity { return Entity{Kind: KindEdge, ID: id} }

// Loop returns an entity reference to a loop.
func Loop(id int) Entity { return Entity{Kind: KindLoop, ID: id} }

// Surface returns an entity reference to a surface.
func Surface(id int) Entity { return Entity{Kind: KindSurface, ID: id} }

// Triangle returns an entity reference to a mesh triangle.
func Triangle(id int) Entity { return Entity{Kind: KindTriangle, ID: id} }

// Quad returns a quadrilateral element reference.
func Quad(id int) Entity { return Entity{Kind: KindQuad, ID: id} }

// Field returns an entity reference to a size field.
func Field(id int) Entity { return Entity{Kind: KindField, ID: id} }

// Option returns an entity reference to a named option.
func Option(name string) Entity { return Entity{Kind: KindOption, Name: name} }

// Error is a structured error with a code, location and optional cause.
type Error struct {
	Code    Code    // Machine-readable error code
	Message string  // Human-readable message
	Stage   Stage   // Pipeline stage (optional until surfaced by the pipeline)
	Entity  *Entity // Offending entity (optional)
	Cause   error   // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Stage != "" {
		fmt.Fprintf(&b, " [%s]", e.Stage)
	}
	if e.Entity != nil {
		fmt.Fprintf(&b, " %s", e.Entity)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Category returns the taxonomy category of the error.
func (e *Error) Category() Category {
	return e.Code.Category()
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// At sets the stage on e and returns it.
func (e *Error) At(stage Stage) *Error {
	e.Stage = stage
	return e
}

// On sets the offending entity on e and returns it.
func (e *Error) On(ent Entity) *Error {
	e.Entity = &ent
	return e
}

// WithStage attaches stage to err. An *Error that already names a stage is
// returned unchanged; any other error is wrapped as INTERNAL_ERROR. When the
// *Error sits under other wrappers, their text and chain are kept and the
// staged copy is what errors.As finds.
func WithStage(err error, stage Stage) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Stage != "" {
			return err
		}
		cp := *e
		cp.Stage = stage
		if err == error(e) {
			return &cp
		}
		return &stagedError{err: err, staged: &cp}
	}
	return Wrap(ErrCodeInternal, err, "%s failed", stage).At(stage)
}

// stagedError keeps an outer wrapper around a staged copy of its *Error.
type stagedError struct {
	err    error
	staged *Error
}

func (s *stagedError) Error() string { return s.err.Error() }
func (s *stagedError) Unwrap() error { return s.err }

func (s *stagedError) As(target any) bool {
	if p, ok := target.(**Error); ok {
		*p = s.staged
		return true
	}
	return false
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// CategoryOf returns the taxonomy category of err, or empty for non-*Error values.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category()
	}
	return ""
}

// StageOf returns the stage recorded on err, if any.
func StageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// EntityOf returns the entity recorded on err, if any.
func EntityOf(err error) (Entity, bool) {
	var e *Error
	if errors.As(err, &e) && e.Entity != nil {
		return *e.Entity, true
	}
	return Entity{}, false
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Entity != nil {
			return fmt.Sprintf("%s: %s", e.Entity, e.Message)
		}
		return e.Message
	}
	return err.Error()
}

// =============================================================================
// Taxonomy constructors
// =============================================================================

// DegenerateGeometry reports zero-length edges, coincident vertices or
// duplicate entities.
func DegenerateGeometry(ent Entity, format string, args ...any) *Error {
	return New(ErrCodeDegenerateGeometry, format, args...).On(ent).At(StageGeometry)
}

// OpenLoop reports a loop whose edges do not form a closed cycle.
func OpenLoop(ent Entity, format string, args ...any) *Error {
	return New(ErrCodeOpenLoop, format, args...).On(ent).At(StageGeometry)
}

// SelfIntersection reports crossing loop edges.
func SelfIntersection(ent Entity, format string, args ...any) *Error {
	return New(ErrCodeSelfIntersection, format, args...).On(ent).At(StageGeometry)
}

// UnknownEntity reports a reference to an entity that was never registered.
func UnknownEntity(ent Entity) *Error {
	return New(ErrCodeUnknownEntity, "%s is not registered", ent).On(ent).At(StageGeometry)
}

// ModelFinalized reports a mutation attempted after Finalize.
func ModelFinalized() *Error {
	return New(ErrCodeModelFinalized, "geometry model is read-only after finalize").At(StageGeometry)
}

// Domain reports a size-field query outside the field's domain.
func Domain(x, y float64) *Error {
	return New(ErrCodeDomain, "point (%g, %g) lies outside the field domain", x, y).At(StageField)
}

// ConflictingField reports an attempt to activate a second background field.
func ConflictingField(active, requested int) *Error {
	return New(ErrCodeConflictingField, "field %d is already the background field", active).
		On(Field(requested)).At(StageField)
}

// UnknownField reports a reference to a field tag that does not exist.
func UnknownField(id int) *Error {
	return New(ErrCodeUnknownField, "field is not registered").On(Field(id)).At(StageField)
}

// Expression reports a malformed analytic size expression.
func Expression(pos int, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return New(ErrCodeExpression, "at offset %d: %s", pos, msg).At(StageField)
}

// Unmeshable reports geometry or sizing that cannot produce a valid mesh.
func Unmeshable(ent Entity, format string, args ...any) *Error {
	return New(ErrCodeUnmeshable, format, args...).On(ent).At(StageTriangulate)
}

// MeshingFailed reports a violated mesh invariant.
func MeshingFailed(stage Stage, ent Entity, format string, args ...any) *Error {
	return New(ErrCodeMeshingFailed, format, args...).On(ent).At(stage)
}

// VertexBudgetExceeded reports refinement that would exceed the vertex cap.
func VertexBudgetExceeded(ent Entity, limit int) *Error {
	return New(ErrCodeVertexBudget, "refinement exceeds %d vertices", limit).On(ent).At(StageTriangulate)
}

// MatchingFailed reports an internal inconsistency in the matching search.
func MatchingFailed(format string, args ...any) *Error {
	return New(ErrCodeMatchingFailed, format, args...).At(StageRecombine)
}

// Aborted reports a run cancelled by its caller before stage started.
func Aborted(stage Stage, cause error) *Error {
	return Wrap(ErrCodeAborted, cause, "run aborted").At(stage)
}

// UnknownOption reports an unrecognized option name.
func UnknownOption(name string) *Error {
	return New(ErrCodeUnknownOption, "unrecognized option").On(Option(name)).At(StageOptions)
}

// InvalidOptionValue reports a recognized option with an out-of-range value.
func InvalidOptionValue(name string, value any, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return New(ErrCodeInvalidOptionValue, "value %v: %s", value, msg).On(Option(name)).At(StageOptions)
}
