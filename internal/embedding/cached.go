package embedding

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"
)

// Cached wraps an Embedder with an in-memory LRU and an optional DiskCache.
type Cached struct {
	inner  Embedder
	mem    *EmbeddingCache
	disk   *DiskCache
	logger *zap.Logger
}

// NewCached returns inner behind an LRU of the given size. disk may be nil.
func NewCached(inner Embedder, size int, disk *DiskCache, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{inner: inner, mem: NewEmbeddingCache(size), disk: disk, logger: logger}
}

func digest(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// EmbedText returns the cached embedding for text or computes and stores it.
func (c *Cached) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return c.lookup(ctx, BucketText, digest([]byte(text)), func() ([]float32, error) {
		return c.inner.EmbedText(ctx, text)
	})
}

// EmbedImage returns the cached embedding for data or computes and stores it.
func (c *Cached) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	return c.lookup(ctx, BucketImage, digest(data), func() ([]float32, error) {
		return c.inner.EmbedImage(ctx, data)
	})
}

func (c *Cached) lookup(ctx context.Context, bucket, key string, compute func() ([]float32, error)) ([]float32, error) {
	memKey := bucket + ":" + key
	if v, ok := c.mem.Get(memKey); ok {
		return cloneVector(v), nil
	}
	if c.disk != nil {
		if v, ok := c.disk.Get(bucket, key); ok {
			c.mem.Set(memKey, v)
			return cloneVector(v), nil
		}
	}

	v, err := compute()
	if err != nil {
		return nil, err
	}
	c.mem.Set(memKey, cloneVector(v))
	if c.disk != nil {
		if err := c.disk.Put(bucket, key, v); err != nil {
			c.logger.Warn("failed to write embedding cache", zap.String("bucket", bucket), zap.Error(err))
		}
	}
	return v, nil
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// Available forwards the wrapped embedder's health.
func (c *Cached) Available() bool {
	return Available(c.inner)
}

// Probe forwards to the wrapped embedder when it supports probing.
func (c *Cached) Probe(ctx context.Context) error {
	if p, ok := c.inner.(interface{ Probe(context.Context) error }); ok {
		return p.Probe(ctx)
	}
	return nil
}

// ClearCache drops the cached embeddings in the named buckets from memory and
// disk. It returns the number of distinct entries removed per bucket.
func (c *Cached) ClearCache(buckets ...string) (map[string]int, error) {
	out := make(map[string]int, len(buckets))
	for _, bucket := range buckets {
		if bucket != BucketText && bucket != BucketImage {
			return out, fmt.Errorf("unknown cache bucket %q", bucket)
		}
		n := c.mem.RemovePrefix(bucket + ":")
		if c.disk != nil {
			onDisk, err := c.disk.Clear(bucket)
			if err != nil {
				return out, err
			}
			if onDisk > n {
				n = onDisk
			}
		}
		out[bucket] = n
		c.logger.Info("cleared embedding cache", zap.String("bucket", bucket), zap.Int("entries", n))
	}
	return out, nil
}

// Stats returns LRU hit and miss counts.
func (c *Cached) Stats() (hits, misses uint64) {
	return c.mem.Stats()
}

// Dimensions returns the embedding dimension.
func (c *Cached) Dimensions() int {
	return c.inner.Dimensions()
}

// Close closes the disk cache and the wrapped embedder.
func (c *Cached) Close() error {
	if c.disk != nil {
		if err := c.disk.Close(); err != nil {
			c.logger.Warn("failed to close embedding cache", zap.Error(err))
		}
	}
	return c.inner.Close()
}
