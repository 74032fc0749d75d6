// Package vectorstore composes the per-field vector indices and the identity map
// into record-level operations. Manager is the only writer of index state.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/embedding"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/identity"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/vector"
	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

var (
	// ErrNotPersisted wraps a checkpoint failure after an in-memory mutation succeeded.
	ErrNotPersisted = errors.New("index state not persisted")
	// ErrNoVector is returned when a record has no vector for the requested field.
	ErrNoVector = errors.New("record has no vector for field")
	// ErrUnknownField is returned for a field name outside title, description and image.
	ErrUnknownField = errors.New("unknown vector field")
)

// Paths locates the four files that make up one checkpoint.
type Paths struct {
	Title       string
	Description string
	Image       string
	IdentityMap string
}

func (p Paths) index(f identity.Field) string {
	switch f {
	case identity.FieldTitle:
		return p.Title
	case identity.FieldDescription:
		return p.Description
	default:
		return p.Image
	}
}

// Input is the raw content for one field: Text for title and description, Image for image.
type Input struct {
	Text  string
	Image []byte
}

// IsEmpty reports whether there is nothing to embed.
func (in Input) IsEmpty() bool {
	return utils.IsBlank(in.Text) && len(in.Image) == 0
}

// Hit is one resolved search result.
type Hit struct {
	UUID  string
	Score float64
	Slot  int64
}

// Manager owns the three indices and the identity map behind one RWMutex.
// Searches take the read lock; mutations, checkpoints and compaction take the write lock.
type Manager struct {
	indexType  string
	dimensions int
	paths      Paths
	embedder   embedding.Embedder
	logger     *zap.Logger

	mu      sync.RWMutex
	indices map[identity.Field]vector.VectorIndex
	ids     *identity.Map

	persistMu   sync.Mutex
	dirty       atomic.Bool
	lastPersist atomic.Int64 // unix nanos
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithEmbedder sets the embedding provider used for raw-input operations.
func WithEmbedder(e embedding.Embedder) Option {
	return func(m *Manager) {
		m.embedder = e
	}
}

// NewManager creates a Manager with empty indices. Call Load to restore a checkpoint.
func NewManager(indexType string, dimensions int, paths Paths, opts ...Option) (*Manager, error) {
	m := &Manager{
		indexType:  indexType,
		dimensions: dimensions,
		paths:      paths,
		indices:    make(map[identity.Field]vector.VectorIndex, len(identity.Fields)),
		ids:        identity.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = utils.OrNop(m.logger)
	for _, f := range identity.Fields {
		idx, err := vector.NewVectorIndex(indexType, dimensions)
		if err != nil {
			m.closeIndices()
			return nil, fmt.Errorf("failed to create %s index: %w", f, err)
		}
		m.indices[f] = idx
	}
	return m, nil
}

// Embedder returns the configured embedding provider, which may be nil.
func (m *Manager) Embedder() embedding.Embedder {
	return m.embedder
}

// Dimensions returns the vector dimension of every index.
func (m *Manager) Dimensions() int {
	return m.dimensions
}

// Load restores the last checkpoint. Unreadable index files become empty indices, and
// map entries pointing past the end of their index are dropped; those records then
// show up as missing vectors.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	loaded := make(map[identity.Field]vector.VectorIndex, len(identity.Fields))
	for _, f := range identity.Fields {
		idx, _, err := vector.Open(m.indexType, m.dimensions, m.paths.index(f), m.logger)
		if err != nil {
			for _, l := range loaded {
				_ = l.Close()
			}
			return fmt.Errorf("failed to open %s index: %w", f, err)
		}
		loaded[f] = idx
	}

	ids := identity.New()
	if m.paths.IdentityMap != "" {
		if err := ids.Load(m.paths.IdentityMap); err != nil {
			m.logger.Warn("identity map unreadable, starting empty",
				zap.String("path", m.paths.IdentityMap),
				zap.Error(err))
			ids = identity.New()
		}
	}

	dropped := ids.Prune(func(f identity.Field, slot int64) bool {
		return slot < int64(loaded[f].Size())
	})
	if dropped > 0 {
		m.logger.Warn("dropped identity entries beyond index size", zap.Int("dropped", dropped))
		m.dirty.Store(true)
	}

	m.closeIndices()
	m.indices = loaded
	m.ids = ids
	m.logger.Info("vector store loaded",
		zap.Int("records", ids.Len()),
		zap.Int("title_vectors", loaded[identity.FieldTitle].Size()),
		zap.Int("description_vectors", loaded[identity.FieldDescription].Size()),
		zap.Int("image_vectors", loaded[identity.FieldImage].Size()))
	return nil
}

// Embed embeds one field's input. Text fields use EmbedText and the image field uses EmbedImage.
func (m *Manager) Embed(ctx context.Context, field identity.Field, in Input) ([]float32, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if m.embedder == nil {
		return nil, embedding.ErrUnavailable
	}
	if field == identity.FieldImage {
		return m.embedder.EmbedImage(ctx, in.Image)
	}
	return m.embedder.EmbedText(ctx, in.Text)
}

// EmbedFields embeds every non-empty input without holding the lock. It stops at
// the first failure so the caller can apply all of a record's vectors or none.
func (m *Manager) EmbedFields(ctx context.Context, inputs map[identity.Field]Input) (map[identity.Field][]float32, error) {
	out := make(map[identity.Field][]float32, len(inputs))
	for _, f := range identity.Fields {
		in, ok := inputs[f]
		if !ok || in.IsEmpty() {
			continue
		}
		vec, err := m.Embed(ctx, f, in)
		if err != nil {
			return nil, fmt.Errorf("failed to embed %s: %w", f, err)
		}
		out[f] = vec
	}
	return out, nil
}

// AddFieldVector embeds in and appends it to field's index for uuid. Blank input is a
// no-op and returns added=false.
func (m *Manager) AddFieldVector(ctx context.Context, uuid string, field identity.Field, in Input) (slot int64, added bool, err error) {
	if in.IsEmpty() {
		return -1, false, nil
	}
	vec, err := m.Embed(ctx, field, in)
	if err != nil {
		return -1, false, err
	}
	slots, err := m.SetVectors(ctx, uuid, map[identity.Field][]float32{field: vec})
	if err != nil {
		return -1, false, err
	}
	return slots[field], true, nil
}

// SetVectors appends every vector and points uuid's fields at the new slots under one
// write lock. Dimension and field errors abort before anything is appended. Slots the
// record previously held for these fields become orphaned.
func (m *Manager) SetVectors(ctx context.Context, uuid string, vecs map[identity.Field][]float32) (map[identity.Field]int64, error) {
	if uuid == "" {
		return nil, fmt.Errorf("uuid is required")
	}
	for f, v := range vecs {
		if !f.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, f)
		}
		if len(v) != m.dimensions {
			return nil, fmt.Errorf("%s: %w: got %d, expected %d", f, vector.ErrDimensionMismatch, len(v), m.dimensions)
		}
	}
	if len(vecs) == 0 {
		return map[identity.Field]int64{}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	slots := make(map[identity.Field]int64, len(vecs))
	for _, f := range identity.Fields {
		v, ok := vecs[f]
		if !ok {
			continue
		}
		slot, err := m.indices[f].Add(ctx, v)
		if err != nil {
			// Vectors already appended for this record stay unreachable orphans.
			return nil, fmt.Errorf("failed to append %s vector: %w", f, err)
		}
		slots[f] = slot
	}
	for f, slot := range slots {
		m.ids.Set(uuid, f, slot)
	}
	m.dirty.Store(true)
	return slots, nil
}

// SearchField embeds a text query and searches field's index.
func (m *Manager) SearchField(ctx context.Context, field identity.Field, query string, limit int) ([]Hit, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if m.embedder == nil {
		return nil, embedding.ErrUnavailable
	}
	vec, err := m.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, err
	}
	return m.SearchFieldByVector(ctx, field, vec, limit, "")
}

// SearchFieldByImage embeds image bytes and searches field's index.
func (m *Manager) SearchFieldByImage(ctx context.Context, field identity.Field, data []byte, limit int) ([]Hit, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if m.embedder == nil {
		return nil, embedding.ErrUnavailable
	}
	vec, err := m.embedder.EmbedImage(ctx, data)
	if err != nil {
		return nil, err
	}
	return m.SearchFieldByVector(ctx, field, vec, limit, "")
}

// SearchFieldByExistingUUID searches field's index with uuid's own stored vector,
// excluding uuid from the results. It returns ErrNoVector when uuid has no slot there.
func (m *Manager) SearchFieldByExistingUUID(ctx context.Context, field identity.Field, uuid string, limit int) ([]Hit, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.ids.Get(uuid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoVector, field)
	}
	slot, ok := e.Slot(field)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoVector, field)
	}
	vec, err := m.indices[field].Reconstruct(slot)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct %s slot %d: %w", field, slot, err)
	}
	return m.searchLocked(ctx, field, vec, limit, uuid)
}

// SearchFieldByVector searches field's index with vec, dropping orphaned slots and
// exclude. Results are ordered by descending score.
func (m *Manager) SearchFieldByVector(ctx context.Context, field identity.Field, vec []float32, limit int, exclude string) ([]Hit, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.searchLocked(ctx, field, vec, limit, exclude)
}

func (m *Manager) searchLocked(ctx context.Context, field identity.Field, vec []float32, limit int, exclude string) ([]Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	idx := m.indices[field]
	size := idx.Size()
	if size == 0 {
		return nil, nil
	}

	// Orphans can outrank live slots, so ask for enough to still fill limit.
	k := limit + (size - m.ids.LiveCount(field))
	if exclude != "" {
		k++
	}
	if k > size {
		k = size
	}
	raw, err := idx.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("%s index search failed: %w", field, err)
	}

	hits := make([]Hit, 0, limit)
	for _, r := range raw {
		uuid, ok := m.ids.FindUUIDBySlot(field, r.Slot)
		if !ok || uuid == exclude {
			continue
		}
		hits = append(hits, Hit{UUID: uuid, Score: r.Score, Slot: r.Slot})
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

// Entry returns uuid's slots.
func (m *Manager) Entry(uuid string) (identity.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ids.Get(uuid)
}

// Vector returns the stored vector for uuid's field.
func (m *Manager) Vector(uuid string, field identity.Field) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.ids.Get(uuid)
	if !ok {
		return nil, ErrNoVector
	}
	slot, ok := e.Slot(field)
	if !ok {
		return nil, ErrNoVector
	}
	return m.indices[field].Reconstruct(slot)
}

// Delete removes uuid from the identity map. Its slots stay in the indices as orphans
// until the next compaction. It reports whether uuid had any vectors.
func (m *Manager) Delete(uuid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ids.Remove(uuid) {
		return false
	}
	m.dirty.Store(true)
	return true
}

// RemoveField orphans uuid's vector for field. It reports whether there was one.
func (m *Manager) RemoveField(uuid string, field identity.Field) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ids.RemoveField(uuid, field) {
		return false
	}
	m.dirty.Store(true)
	return true
}

// Dirty reports whether there are mutations since the last successful checkpoint.
func (m *Manager) Dirty() bool {
	return m.dirty.Load()
}

// LastPersist returns the time of the last successful checkpoint, or zero.
func (m *Manager) LastPersist() time.Time {
	n := m.lastPersist.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Close closes every index.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeIndices()
	return nil
}

func (m *Manager) closeIndices() {
	for _, idx := range m.indices {
		_ = idx.Close()
	}
}
