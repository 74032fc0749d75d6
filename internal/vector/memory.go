package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

// indexMagic opens every persisted MemoryIndex file.
var indexMagic = [4]byte{'S', 'I', 'F', 'V'}

const (
	indexVersion    = 1
	indexHeaderSize = 4 + 4 + 4 + 8
)

// MemoryIndex is an in-memory vector index using brute-force inner product search.
type MemoryIndex struct {
	dimensions int
	data       []float32 // slot i occupies data[i*dimensions : (i+1)*dimensions]
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{dimensions: dimensions}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Add appends a copy of vec and returns its slot.
func (m *MemoryIndex) Add(ctx context.Context, vec []float32) (int64, error) {
	if len(vec) != m.dimensions {
		return -1, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), m.dimensions)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	slot := int64(len(m.data) / m.dimensions)
	m.data = append(m.data, vec...)
	return slot, nil
}

// Search returns the top-k slots by inner product. Equal scores keep slot order.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.data) / m.dimensions
	if k <= 0 || n == 0 {
		return nil, nil
	}
	scores := make([]*VectorResult, n)
	for i := 0; i < n; i++ {
		vec := m.data[i*m.dimensions : (i+1)*m.dimensions]
		scores[i] = &VectorResult{Slot: int64(i), Score: InnerProduct(query, vec)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if k > n {
		k = n
	}
	return scores[:k], nil
}

// Reconstruct returns a copy of the vector at slot.
func (m *MemoryIndex) Reconstruct(slot int64) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := int64(len(m.data) / m.dimensions)
	if slot < 0 || slot >= n {
		return nil, fmt.Errorf("%w: slot %d, size %d", ErrSlotOutOfRange, slot, n)
	}
	out := make([]float32, m.dimensions)
	copy(out, m.data[slot*int64(m.dimensions):])
	return out, nil
}

// Save persists the index to path through a temp file and rename. Format: magic (4),
// version (4), dimensions (4), count (8), count*dimensions little-endian float32,
// then a CRC32 (IEEE) of everything before it.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	err := utils.WriteFileAtomic(path, func(w io.Writer) error {
		crc := crc32.NewIEEE()
		out := io.MultiWriter(w, crc)

		header := make([]byte, indexHeaderSize)
		copy(header, indexMagic[:])
		binary.LittleEndian.PutUint32(header[4:], indexVersion)
		binary.LittleEndian.PutUint32(header[8:], uint32(m.dimensions))
		binary.LittleEndian.PutUint64(header[12:], uint64(len(m.data)/m.dimensions))
		if _, err := out.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		if _, err := out.Write(float32SliceToBytes(m.data)); err != nil {
			return fmt.Errorf("write vectors: %w", err)
		}
		return binary.Write(w, binary.LittleEndian, crc.Sum32())
	})
	if err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents.
// A missing file leaves the index unchanged. Truncated, checksum-failing or
// wrong-dimension files return an error wrapping ErrCorrupt.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	crc := crc32.NewIEEE()
	r := io.TeeReader(bufio.NewReader(f), crc)

	header := make([]byte, indexHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("%w: read header: %v", ErrCorrupt, err)
	}
	if [4]byte{header[0], header[1], header[2], header[3]} != indexMagic {
		return fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint32(header[4:]); v != indexVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	if dim := int(binary.LittleEndian.Uint32(header[8:])); dim != m.dimensions {
		return fmt.Errorf("%w: file has dimension %d, index expects %d", ErrCorrupt, dim, m.dimensions)
	}
	count := binary.LittleEndian.Uint64(header[12:])

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat index file: %w", err)
	}
	want := int64(indexHeaderSize) + int64(count)*int64(m.dimensions)*4 + 4
	if st.Size() != want {
		return fmt.Errorf("%w: size %d, expected %d", ErrCorrupt, st.Size(), want)
	}

	buf := make([]byte, int(count)*m.dimensions*4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("%w: read vectors: %v", ErrCorrupt, err)
	}
	sum := crc.Sum32()
	var stored uint32
	if err := binary.Read(r, binary.LittleEndian, &stored); err != nil {
		return fmt.Errorf("%w: read checksum: %v", ErrCorrupt, err)
	}
	if stored != sum {
		return fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	m.mu.Lock()
	m.data = bytesToFloat32Slice(buf)
	m.mu.Unlock()
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// Size returns the number of slots in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data) / m.dimensions
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
