package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"time"
)

// fileMagic prefixes every cache file.
var fileMagic = []byte("QMC1")

// FileCache implements a file-based cache for CLI usage. Each entry is one
// file holding a header with the expiry time followed by the zstd-compressed
// value.
type FileCache struct {
	dir string
}

// NewFileCache creates a file-based cache in the given directory.
// The directory will be created if it doesn't exist.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *FileCache) Dir() string { return c.dir }

// Get retrieves a value from the cache.
func (c *FileCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	path := c.path(key)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	expires, payload, ok := decodeEntry(data)
	if !ok || (!expires.IsZero() && time.Now().After(expires)) {
		_ = os.Remove(path)
		return nil, false, nil
	}
	out, err := Decompress(payload)
	if err != nil {
		_ = os.Remove(path)
		return nil, false, nil
	}
	return out, true, nil
}

// Set stores a value in the cache.
func (c *FileCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	payload, err := Compress(data)
	if err != nil {
		return err
	}

	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encodeEntry(expires, payload), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Delete removes a value from the cache.
func (c *FileCache) Delete(ctx context.Context, key string) error {
	err := os.Remove(c.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Clear removes every entry.
func (c *FileCache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(c.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Close does nothing for file cache.
func (c *FileCache) Close() error {
	return nil
}

// path converts a cache key to a file path.
// The first two hash characters name a subdirectory to keep directories small.
func (c *FileCache) path(key string) string {
	hash := Hash([]byte(key))
	return filepath.Join(c.dir, hash[:2], hash[2:]+".zst")
}

func encodeEntry(expires time.Time, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(fileMagic) + 8 + len(payload))
	buf.Write(fileMagic)
	var ts int64
	if !expires.IsZero() {
		ts = expires.UnixNano()
	}
	_ = binary.Write(&buf, binary.BigEndian, ts)
	buf.Write(payload)
	return buf.Bytes()
}

func decodeEntry(data []byte) (time.Time, []byte, bool) {
	if len(data) < len(fileMagic)+8 || !bytes.Equal(data[:len(fileMagic)], fileMagic) {
		return time.Time{}, nil, false
	}
	ts := int64(binary.BigEndian.Uint64(data[len(fileMagic):]))
	var expires time.Time
	if ts != 0 {
		expires = time.Unix(0, ts)
	}
	return expires, data[len(fileMagic)+8:], true
}

// Ensure FileCache implements Cache.
var _ Cache = (*FileCache)(nil)
