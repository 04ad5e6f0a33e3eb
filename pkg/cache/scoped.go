package cache

// ScopedKeyer wraps a Keyer with a prefix so that several tenants or
// projects can share one backend without colliding.
//
//	projectKeyer := NewScopedKeyer(NewDefaultKeyer(), "project:wing:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// MeshKey generates a prefixed mesh key.
func (k *ScopedKeyer) MeshKey(sessionHash string, opts MeshKeyOpts) string {
	return k.prefix + k.inner.MeshKey(sessionHash, opts)
}

// ArtifactKey generates a prefixed artifact key.
func (k *ScopedKeyer) ArtifactKey(meshHash string, opts ArtifactKeyOpts) string {
	return k.prefix + k.inner.ArtifactKey(meshHash, opts)
}
