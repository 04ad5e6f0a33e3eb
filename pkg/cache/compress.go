package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec, zstdErr
}

// Compress returns data compressed with zstd.
func Compress(data []byte) ([]byte, error) {
	enc, _, err := codecs()
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return enc.EncodeAll(data, make([]byte, 0, len(data)/4)), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	_, dec, err := codecs()
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return out, nil
}

// compressed stores zstd-compressed values in an inner cache.
type compressed struct {
	inner Cache
}

// Compressed wraps c so that values are compressed before they are stored.
// Entries that fail to decompress are reported as misses.
func Compressed(c Cache) Cache {
	return &compressed{inner: c}
}

func (c *compressed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, hit, err := c.inner.Get(ctx, key)
	if err != nil || !hit {
		return nil, false, err
	}
	out, err := Decompress(data)
	if err != nil {
		_ = c.inner.Delete(ctx, key)
		return nil, false, nil
	}
	return out, true, nil
}

func (c *compressed) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	z, err := Compress(data)
	if err != nil {
		return err
	}
	return c.inner.Set(ctx, key, z, ttl)
}

func (c *compressed) Delete(ctx context.Context, key string) error {
	return c.inner.Delete(ctx, key)
}

func (c *compressed) Close() error { return c.inner.Close() }

var _ Cache = (*compressed)(nil)
