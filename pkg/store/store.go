// Package store persists finished pipeline results.
//
// A [Record] holds the summary of one meshing run (name, hash, element
// counts) next to the zstd-compressed JSON of the full [pipeline.Result],
// so listings stay cheap while the mesh itself can still be reloaded and
// rendered.
//
// Backends:
//   - [FileStore]: one JSON file per record, for the CLI
//   - [MongoStore]: a MongoDB collection, for the HTTP server
//   - [MemoryStore]: in process, for tests and single-instance servers
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/quadmesh/pkg/cache"
	"github.com/matzehuels/quadmesh/pkg/pipeline"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("mesh not found")

// Record is one stored mesh.
type Record struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	RunID     string    `json:"run_id" bson:"run_id"`
	MeshHash  string    `json:"mesh_hash" bson:"mesh_hash"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`

	Vertices  int `json:"vertices" bson:"vertices"`
	Triangles int `json:"triangles" bson:"triangles"`
	Quads     int `json:"quads" bson:"quads"`

	// Payload is the compressed JSON of the pipeline result. List leaves
	// it empty.
	Payload []byte `json:"payload,omitempty" bson:"payload,omitempty"`
}

// NewRecord wraps res in a record with a fresh ID.
func NewRecord(name string, res *pipeline.Result) (*Record, error) {
	if res == nil || res.Mesh == nil {
		return nil, fmt.Errorf("store: result has no mesh")
	}
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	payload, err := cache.Compress(data)
	if err != nil {
		return nil, err
	}
	return &Record{
		ID:        uuid.NewString(),
		Name:      name,
		RunID:     res.RunID,
		MeshHash:  res.MeshHash,
		CreatedAt: time.Now().UTC(),
		Vertices:  res.Stats.Vertices,
		Triangles: res.Stats.Triangles,
		Quads:     res.Stats.Quads,
		Payload:   payload,
	}, nil
}

// Result decodes the stored pipeline result.
func (r *Record) Result() (*pipeline.Result, error) {
	if len(r.Payload) == 0 {
		return nil, fmt.Errorf("record %s carries no payload", r.ID)
	}
	data, err := cache.Decompress(r.Payload)
	if err != nil {
		return nil, err
	}
	var res pipeline.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &res, nil
}

// summary returns r without its payload.
func (r *Record) summary() *Record {
	cp := *r
	cp.Payload = nil
	return &cp
}

// Store is the interface for result storage backends.
type Store interface {
	// Put stores a record, replacing one with the same ID.
	Put(ctx context.Context, rec *Record) error

	// Get returns the record with its payload, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns up to limit records without payload, newest first.
	// A non-positive limit returns all records.
	List(ctx context.Context, limit int) ([]*Record, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// Close releases the backend's resources.
	Close() error
}

// newestFirst orders records by creation time, then ID, and applies limit.
func newestFirst(recs []*Record, limit int) []*Record {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}

// =============================================================================
// Memory store
// =============================================================================

// MemoryStore keeps records in process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec.summary())
	}
	return newestFirst(recs, limit), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
