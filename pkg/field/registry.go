package field

import (
	"sort"
	"sync"

	"github.com/matzehuels/quadmesh/pkg/errors"
)

// Registry holds the size fields of a meshing session, keyed by integer
// tag, and remembers which one is the active background field.
//
// At most one field can be active. Activating the active field again is a
// no-op; activating a different one fails with ConflictingField. Registry is
// safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	fields     map[int]Field
	background int
	active     bool
	fallback   float64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{fields: make(map[int]Field)}
}

// Add registers f under tag id.
func (r *Registry) Add(id int, f Field) error {
	if f == nil {
		return errors.New(errors.ErrCodeInvalidInput, "field is nil").On(errors.Field(id)).At(errors.StageField)
	}
	if id < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "field tag must be non-negative").On(errors.Field(id)).At(errors.StageField)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fields[id]; ok {
		return errors.New(errors.ErrCodeInvalidInput, "field tag already in use").On(errors.Field(id)).At(errors.StageField)
	}
	r.fields[id] = f
	return nil
}

// NextID returns the smallest tag greater than every registered tag.
func (r *Registry) NextID() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	next := 0
	for id := range r.fields {
		if id >= next {
			next = id + 1
		}
	}
	return next
}

// Get returns the field registered under id.
func (r *Registry) Get(id int) (Field, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fields[id]
	return f, ok
}

// IDs returns the registered tags in ascending order.
func (r *Registry) IDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.fields))
	for id := range r.fields {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// SetAsBackground makes field id the active background field.
func (r *Registry) SetAsBackground(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fields[id]; !ok {
		return errors.UnknownField(id)
	}
	if r.active {
		if r.background == id {
			return nil
		}
		return errors.ConflictingField(r.background, id)
	}
	r.background, r.active = id, true
	return nil
}

// SetFallback configures the size returned for queries outside the active
// field's domain. A non-positive size disables the fallback.
func (r *Registry) SetFallback(size float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = size
}

// Background returns the active field, wrapped with the fallback size when
// one is configured.
func (r *Registry) Background() (Field, int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.active {
		return nil, 0, false
	}
	return WithFallback(r.fields[r.background], r.fallback), r.background, true
}

// Fallback returns the configured fallback size, or zero.
func (r *Registry) Fallback() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}
