package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	qerrors "github.com/matzehuels/quadmesh/pkg/errors"
	"github.com/matzehuels/quadmesh/pkg/mesh"
	"github.com/matzehuels/quadmesh/pkg/pipeline"
)

func result(t *testing.T) *pipeline.Result {
	t.Helper()
	h := &mesh.HybridMesh{
		Vertices: []mesh.Vertex{
			{ID: 0, X: 0, Y: 0}, {ID: 1, X: 1, Y: 0}, {ID: 2, X: 1, Y: 1}, {ID: 3, X: 0, Y: 1},
		},
		Quads: []mesh.Quad{{ID: 0, V: [4]int{0, 1, 2, 3}, Source: []int{0, 1}}},
	}
	res := &pipeline.Result{RunID: "run-1", Mesh: h, MeshHash: "abc", Options: pipeline.DefaultOptions()}
	res.Stats.Stats = mesh.ComputeStats(h)
	return res
}

func TestRecord(t *testing.T) {
	rec, err := NewRecord("square", result(t))
	if err != nil {
		t.Fatalf("NewRecord() error: %v", err)
	}
	if rec.ID == "" || rec.Quads != 1 || rec.Vertices != 4 || rec.MeshHash != "abc" {
		t.Errorf("NewRecord() = %+v", rec)
	}
	res, err := rec.Result()
	if err != nil {
		t.Fatalf("Result() error: %v", err)
	}
	if res.RunID != "run-1" || len(res.Mesh.Quads) != 1 || res.Mesh.Quads[0].V != [4]int{0, 1, 2, 3} {
		t.Errorf("Result() = %+v", res)
	}

	if _, err := NewRecord("empty", &pipeline.Result{}); err == nil {
		t.Error("NewRecord(no mesh) succeeded")
	}
	if _, err := rec.summary().Result(); err == nil {
		t.Error("Result() of a summary succeeded")
	}
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := NewRecord("mesh", result(t))
		if err != nil {
			t.Fatal(err)
		}
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.Put(ctx, rec); err != nil {
			t.Fatalf("Put() error: %v", err)
		}
		ids = append(ids, rec.ID)
	}

	got, err := s.Get(ctx, ids[1])
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if _, err := got.Result(); err != nil {
		t.Errorf("stored payload: %v", err)
	}

	list, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(list) != 2 || list[0].ID != ids[2] || list[1].ID != ids[1] {
		t.Errorf("List(2) = %v, want newest two", list)
	}
	for _, rec := range list {
		if len(rec.Payload) != 0 {
			t.Error("List() returned a payload")
		}
	}
	if all, _ := s.List(ctx, 0); len(all) != 3 {
		t.Errorf("List(0) returned %d records, want 3", len(all))
	}

	if err := s.Delete(ctx, ids[0]); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := s.Delete(ctx, ids[0]); err != nil {
		t.Errorf("second Delete() error: %v", err)
	}
	if _, err := s.Get(ctx, ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if s.Dir() != dir {
		t.Errorf("Dir() = %s, want %s", s.Dir(), dir)
	}
	testStore(t, s)
}

func TestFileStoreSkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	list, err := s.List(context.Background(), 0)
	if err != nil || len(list) != 0 {
		t.Errorf("List() = %v, %v, want empty", list, err)
	}
}

func TestFileStoreRejectsBadIDs(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, id := range []string{"", "../escape", "a/b"} {
		if _, err := s.Get(ctx, id); !qerrors.Is(err, qerrors.ErrCodeInvalidInput) {
			t.Errorf("Get(%q) error = %v, want INVALID_INPUT", id, err)
		}
		if err := s.Put(ctx, &Record{ID: id}); !qerrors.Is(err, qerrors.ErrCodeInvalidInput) {
			t.Errorf("Put(%q) error = %v, want INVALID_INPUT", id, err)
		}
	}
}
