package session

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	qerrors "github.com/matzehuels/quadmesh/pkg/errors"
)

// DefaultTTL is how long stored sessions are kept.
const DefaultTTL = 30 * 24 * time.Hour

// Record is a stored session description.
type Record struct {
	ID          string       `toml:"id" json:"id"`
	CreatedAt   time.Time    `toml:"created_at" json:"created_at"`
	ExpiresAt   time.Time    `toml:"expires_at" json:"expires_at"`
	Description *Description `toml:"description" json:"description"`
}

// NewRecord wraps d in a record with a fresh ID.
func NewRecord(d *Description, ttl time.Duration) *Record {
	now := time.Now()
	return &Record{ID: uuid.NewString(), CreatedAt: now, ExpiresAt: now.Add(ttl), Description: d}
}

// IsExpired reports whether the record has exceeded its TTL.
func (r *Record) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// Session builds the session described by the record. The session takes
// the record's ID.
func (r *Record) Session(baseDir string) (*Session, error) {
	s, err := Build(r.Description, baseDir)
	if err != nil {
		return nil, err
	}
	s.ID, s.Created = r.ID, r.CreatedAt
	return s, nil
}

// Store is the interface for session storage backends.
type Store interface {
	// Get retrieves a record by ID. It returns ErrNotFound for unknown IDs
	// and ErrExpired for records past their TTL.
	Get(ctx context.Context, id string) (*Record, error)

	// Set stores a record.
	Set(ctx context.Context, rec *Record) error

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of all unexpired records in ascending order.
	List(ctx context.Context) ([]string, error)

	// Cleanup removes expired records.
	Cleanup(ctx context.Context) error
}

// =============================================================================
// File store
// =============================================================================

// FileStore keeps records as TOML files in a directory.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileStore creates a file store. If baseDir is empty, it defaults to
// ~/.config/quadmesh/sessions/.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		baseDir = filepath.Join(home, ".config", "quadmesh", "sessions")
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) recordPath(id string) string {
	return filepath.Join(s.baseDir, id+".toml")
}

func (s *FileStore) read(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var rec Record
	if _, err := toml.Decode(string(data), &rec); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	return &rec, nil
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, id string) (*Record, error) {
	if err := qerrors.ValidateID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.read(s.recordPath(id))
	if err != nil {
		return nil, err
	}
	if rec.IsExpired() {
		return nil, ErrExpired
	}
	return rec, nil
}

// Set implements Store.
func (s *FileStore) Set(ctx context.Context, rec *Record) error {
	if err := qerrors.ValidateID(rec.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(rec); err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	path := s.recordPath(rec.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := qerrors.ValidateID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.recordPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// List implements Store.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	err := s.each(func(path string, rec *Record) {
		if !rec.IsExpired() {
			ids = append(ids, rec.ID)
		}
	})
	sort.Strings(ids)
	return ids, err
}

// Cleanup implements Store.
func (s *FileStore) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.each(func(path string, rec *Record) {
		if rec.IsExpired() {
			os.Remove(path)
		}
	})
}

// each calls fn for every readable record file.
func (s *FileStore) each(fn func(path string, rec *Record)) error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("read session dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		path := filepath.Join(s.baseDir, entry.Name())
		rec, err := s.read(path)
		if err != nil {
			continue
		}
		fn(path, rec)
	}
	return nil
}

// Path returns the base directory for session files.
func (s *FileStore) Path() string {
	return s.baseDir
}

var _ Store = (*FileStore)(nil)

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

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.IsExpired() {
		return nil, ErrExpired
	}
	return rec, nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id, rec := range s.records {
		if !rec.IsExpired() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Cleanup implements Store.
func (s *MemoryStore) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.records {
		if rec.IsExpired() {
			delete(s.records, id)
		}
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
