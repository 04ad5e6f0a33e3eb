// Package cache stores pipeline results keyed by content hashes.
//
// A [Cache] is a byte-oriented key/value store with per-entry TTLs. Three
// backends are provided: [FileCache] for the CLI, [RedisCache] for shared
// deployments and [NullCache] to disable caching. [Compressed] wraps any
// backend with zstd compression.
//
// Keys come from a [Keyer], which hashes the canonical inputs of a stage:
//
//	keyer := cache.NewDefaultKeyer()
//	key := keyer.MeshKey(sessionHash, cache.MeshKeyOpts{OptionsHash: optsHash})
//	if data, hit, err := c.Get(ctx, key); err == nil && hit {
//	    // decode cached mesh
//	}
package cache

import (
	"context"
	"time"
)

// Cache is the interface implemented by all cache backends.
type Cache interface {
	// Get returns the value for key. A missing or expired entry is reported
	// as a miss, not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Default TTLs.
const (
	// TTLMesh is how long generated meshes stay cached.
	TTLMesh = 7 * 24 * time.Hour

	// TTLArtifact is how long rendered artifacts stay cached.
	TTLArtifact = 7 * 24 * time.Hour
)

// =============================================================================
// Keys
// =============================================================================

// MeshKeyOpts holds the inputs besides the session that determine a mesh.
type MeshKeyOpts struct {
	// OptionsHash is the hash of the canonical option set.
	OptionsHash string `json:"options"`
	// Version is the generator version; results of other versions miss.
	Version string `json:"version,omitempty"`
}

// ArtifactKeyOpts holds the inputs that determine a rendered artifact.
type ArtifactKeyOpts struct {
	Format  string `json:"format"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Quality bool   `json:"quality,omitempty"`
}

// Keyer builds cache keys.
type Keyer interface {
	// MeshKey returns the key of the mesh generated from a session.
	MeshKey(sessionHash string, opts MeshKeyOpts) string

	// ArtifactKey returns the key of an artifact rendered from a mesh.
	ArtifactKey(meshHash string, opts ArtifactKeyOpts) string
}

// DefaultKeyer hashes key inputs under fixed prefixes.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// MeshKey implements Keyer.
func (DefaultKeyer) MeshKey(sessionHash string, opts MeshKeyOpts) string {
	return hashKey("mesh", sessionHash, opts)
}

// ArtifactKey implements Keyer.
func (DefaultKeyer) ArtifactKey(meshHash string, opts ArtifactKeyOpts) string {
	return hashKey("artifact", meshHash, opts)
}
