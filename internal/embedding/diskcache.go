package embedding

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names for the two embedding namespaces.
const (
	BucketText  = "text"
	BucketImage = "image"
)

// DiskCache persists embeddings in a bbolt file so restarts do not re-embed.
type DiskCache struct {
	db         *bolt.DB
	dimensions int
}

// OpenDiskCache opens (or creates) the cache file embeddings.db inside dir.
func OpenDiskCache(dir string, dimensions int) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	db, err := bolt.Open(filepath.Join(dir, "embeddings.db"), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{BucketText, BucketImage} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache buckets: %w", err)
	}
	return &DiskCache{db: db, dimensions: dimensions}, nil
}

// Get returns the embedding stored under key in bucket. Entries of the wrong
// dimension (from a previous model) are treated as misses.
func (d *DiskCache) Get(bucket, key string) ([]float32, bool) {
	var out []float32
	_ = d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(key))
		if raw == nil || len(raw) != 4*d.dimensions {
			return nil
		}
		out = decodeVector(raw)
		return nil
	})
	return out, out != nil
}

// Put stores vec under key in bucket.
func (d *DiskCache) Put(bucket, key string, vec []float32) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("unknown cache bucket %q", bucket)
		}
		return b.Put([]byte(key), encodeVector(vec))
	})
}

// Clear empties bucket and returns the number of entries it held.
func (d *DiskCache) Clear(bucket string) (int, error) {
	var n int
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("unknown cache bucket %q", bucket)
		}
		n = b.Stats().KeyN
		if err := tx.DeleteBucket([]byte(bucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucket))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clear embedding cache: %w", err)
	}
	return n, nil
}

// Close closes the underlying file.
func (d *DiskCache) Close() error {
	return d.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector copies out of raw; bbolt values are only valid inside the transaction.
func decodeVector(raw []byte) []float32 {
	v := make([]float32, len(raw)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return v
}
