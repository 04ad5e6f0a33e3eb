package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/pipeline"
	"github.com/matzehuels/quadmesh/pkg/session"
	"github.com/matzehuels/quadmesh/pkg/store"
)

// contentTypes maps output formats to response content types.
var contentTypes = map[string]string{
	pipeline.FormatJSON:    "application/json",
	pipeline.FormatMSH:     "text/plain; charset=utf-8",
	pipeline.FormatGeoJSON: "application/geo+json",
	pipeline.FormatPNG:     "image/png",
	pipeline.FormatDOT:     "text/vnd.graphviz",
	pipeline.FormatSVG:     "image/svg+xml",
}

// sessionResponse is returned for stored descriptions.
type sessionResponse struct {
	ID          string               `json:"id"`
	CreatedAt   time.Time            `json:"created_at"`
	ExpiresAt   time.Time            `json:"expires_at"`
	Description *session.Description `json:"description,omitempty"`
}

// meshResponse is returned for meshing runs and mesh lookups.
type meshResponse struct {
	ID       string              `json:"id"`
	Name     string              `json:"name,omitempty"`
	RunID    string              `json:"run_id"`
	MeshHash string              `json:"mesh_hash"`
	Stats    *pipeline.Stats     `json:"stats,omitempty"`
	Cache    *pipeline.CacheInfo `json:"cache,omitempty"`
	Links    map[string]string   `json:"links"`
}

func links(id string) map[string]string {
	out := make(map[string]string, len(pipeline.ValidFormats))
	for f := range pipeline.ValidFormats {
		out[f] = "/v1/meshes/" + id + "/" + f
	}
	return out
}

// =============================================================================
// Sessions
// =============================================================================

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	d, err := s.readDescription(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	// Building validates the description before it is stored.
	if _, err := session.Build(d, ""); err != nil {
		writeError(w, err)
		return
	}
	rec := session.NewRecord(d, s.cfg.SessionTTL)
	if err := s.cfg.Sessions.Set(r.Context(), rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionSummary(rec, false))
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.cfg.Sessions.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	rec, err := s.cfg.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionSummary(rec, true))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) meshSession(w http.ResponseWriter, r *http.Request) {
	rec, err := s.cfg.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := rec.Session("")
	if err != nil {
		writeError(w, err)
		return
	}
	s.mesh(w, r, sess)
}

func sessionSummary(rec *session.Record, withDescription bool) sessionResponse {
	resp := sessionResponse{
		ID:        rec.ID,
		CreatedAt: rec.CreatedAt.UTC(),
		ExpiresAt: rec.ExpiresAt.UTC(),
	}
	if withDescription {
		resp.Description = rec.Description
	}
	return resp
}

// =============================================================================
// Meshing
// =============================================================================

func (s *Server) meshDescription(w http.ResponseWriter, r *http.Request) {
	d, err := s.readDescription(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := session.Build(d, "")
	if err != nil {
		writeError(w, err)
		return
	}
	s.mesh(w, r, sess)
}

// mesh runs the pipeline on sess, stores the result and responds with its
// summary. Options may be overridden with repeated ?set=Name=Value
// parameters.
func (s *Server) mesh(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	for _, a := range r.URL.Query()["set"] {
		name, value, err := pipeline.ParseAssignment(a)
		if err != nil {
			writeError(w, err)
			return
		}
		sess.SetOption(name, value)
	}

	res, err := s.cfg.Runner.Run(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}

	name := sess.Name
	if q := r.URL.Query().Get("name"); q != "" {
		name = q
	}
	rec, err := store.NewRecord(name, res)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.cfg.Meshes.Put(r.Context(), rec); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, meshResponse{
		ID:       rec.ID,
		Name:     rec.Name,
		RunID:    res.RunID,
		MeshHash: res.MeshHash,
		Stats:    &res.Stats,
		Cache:    &res.CacheInfo,
		Links:    links(rec.ID),
	})
}

// readDescription decodes a bounded request body as TOML when the content
// type says so and as JSON otherwise. Descriptions referencing files are
// rejected.
func (s *Server) readDescription(w http.ResponseWriter, r *http.Request) (*session.Description, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBody))
	if err != nil {
		return nil, err
	}
	format := session.FormatJSON
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil &&
		(mt == "application/toml" || mt == "text/toml") {
		format = session.FormatTOML
	}
	d, err := session.Parse(data, format)
	if err != nil {
		return nil, err
	}
	if files := d.Files(); len(files) > 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "field files are not supported over HTTP: %s", strings.Join(files, ", "))
	}
	return d, nil
}

// =============================================================================
// Meshes
// =============================================================================

func (s *Server) listMeshes(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid limit %q", q))
			return
		}
		limit = n
	}
	recs, err := s.cfg.Meshes.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []*store.Record{}
	}
	writeJSON(w, http.StatusOK, map[string][]*store.Record{"meshes": recs})
}

func (s *Server) getMesh(w http.ResponseWriter, r *http.Request) {
	rec, err := s.cfg.Meshes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := rec.Result()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meshResponse{
		ID:       rec.ID,
		Name:     rec.Name,
		RunID:    rec.RunID,
		MeshHash: rec.MeshHash,
		Stats:    &res.Stats,
		Links:    links(rec.ID),
	})
}

// renderMesh renders a stored mesh. PNG size and shading follow the width,
// height and quality query parameters.
func (s *Server) renderMesh(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")
	if err := pipeline.ValidateFormat(format); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidFormat, err, "render"))
		return
	}
	opts, err := renderOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rec, err := s.cfg.Meshes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := rec.Result()
	if err != nil {
		writeError(w, err)
		return
	}
	artifacts, err := s.cfg.Runner.RenderArtifacts(r.Context(), res, []string{format}, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	w.WriteHeader(http.StatusOK)
	w.Write(artifacts[format])
}

func renderOptions(r *http.Request) (pipeline.RenderOptions, error) {
	opts := pipeline.RenderOptions{Width: pipeline.DefaultWidth, Height: pipeline.DefaultHeight}
	q := r.URL.Query()
	for name, dst := range map[string]*int{"width": &opts.Width, "height": &opts.Height} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 8192 {
			return opts, errors.New(errors.ErrCodeInvalidInput, "invalid %s %q", name, v)
		}
		*dst = n
	}
	if v := q.Get("quality"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, errors.New(errors.ErrCodeInvalidInput, "invalid quality %q", v)
		}
		opts.ShowQuality = b
	}
	return opts, nil
}

func (s *Server) deleteMesh(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Meshes.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Responses
// =============================================================================

// errorBody is the JSON shape of a failure.
type errorBody struct {
	Code     string `json:"code"`
	Category string `json:"category"`
	Stage    string `json:"stage,omitempty"`
	Entity   string `json:"entity,omitempty"`
	Message  string `json:"message"`
}

// statusOf maps an error onto an HTTP status.
func statusOf(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case stderrors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case stderrors.Is(err, store.ErrNotFound), stderrors.Is(err, session.ErrNotFound),
		errors.Is(err, errors.ErrCodeNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, session.ErrExpired):
		return http.StatusGone
	case errors.Is(err, errors.ErrCodeAborted), stderrors.Is(err, context.DeadlineExceeded),
		stderrors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.Is(err, errors.ErrCodeInvalidInput), errors.Is(err, errors.ErrCodeInvalidFormat),
		errors.Is(err, errors.ErrCodeInvalidPath):
		return http.StatusBadRequest
	}
	switch errors.CategoryOf(err) {
	case errors.CategoryGeometry, errors.CategoryField, errors.CategoryMeshing, errors.CategoryOption:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	body := errorBody{
		Code:     string(errors.GetCode(err)),
		Category: string(errors.CategoryOf(err)),
		Stage:    string(errors.StageOf(err)),
		Message:  errors.UserMessage(err),
	}
	if body.Code == "" {
		body.Code = strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
		body.Category = string(errors.CategoryGeneric)
	}
	if ent, ok := errors.EntityOf(err); ok {
		body.Entity = ent.String()
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
