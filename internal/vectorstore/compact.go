package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/identity"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/vector"
)

// FieldStats describes one index.
type FieldStats struct {
	Size    int     `json:"size"`
	Live    int     `json:"live"`
	Orphans int     `json:"orphans"`
	Ratio   float64 `json:"orphan_ratio"`
}

// Stats describes the whole store.
type Stats struct {
	Records     int                           `json:"records"`
	Fields      map[identity.Field]FieldStats `json:"fields"`
	OrphanRatio float64                       `json:"orphan_ratio"`
	Dirty       bool                          `json:"dirty"`
	IndexType   string                        `json:"index_type"`
	Dimensions  int                           `json:"dimensions"`
}

// Stats returns per-field size, live and orphan counts.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{
		Records:    m.ids.Len(),
		Fields:     make(map[identity.Field]FieldStats, len(identity.Fields)),
		Dirty:      m.dirty.Load(),
		IndexType:  m.indexType,
		Dimensions: m.dimensions,
	}
	var size, orphans int
	for _, f := range identity.Fields {
		fs := FieldStats{Size: m.indices[f].Size(), Live: m.ids.LiveCount(f)}
		fs.Orphans = fs.Size - fs.Live
		if fs.Size > 0 {
			fs.Ratio = float64(fs.Orphans) / float64(fs.Size)
		}
		st.Fields[f] = fs
		size += fs.Size
		orphans += fs.Orphans
	}
	if size > 0 {
		st.OrphanRatio = float64(orphans) / float64(size)
	}
	return st
}

// OrphanRatio returns orphaned slots over total slots across all indices.
func (m *Manager) OrphanRatio() float64 {
	return m.Stats().OrphanRatio
}

// CompactResult reports what a compaction reclaimed.
type CompactResult struct {
	Reclaimed map[identity.Field]int `json:"reclaimed"`
	Persisted bool                   `json:"persisted"`
}

// Compact rebuilds each index from its live slots in ascending slot order and remaps
// the identity map, then checkpoints. It is the only operation that reassigns slots.
// Searches wait on the lock. Cancellation before the swap leaves everything unchanged.
func (m *Manager) Compact(ctx context.Context) (*CompactResult, error) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	rebuilt := make(map[identity.Field]vector.VectorIndex, len(identity.Fields))
	remaps := make(map[identity.Field]map[int64]int64, len(identity.Fields))
	discard := func() {
		for _, idx := range rebuilt {
			_ = idx.Close()
		}
	}

	for _, f := range identity.Fields {
		idx, err := vector.NewVectorIndex(m.indexType, m.dimensions)
		if err != nil {
			discard()
			return nil, fmt.Errorf("failed to create %s index: %w", f, err)
		}
		rebuilt[f] = idx
		remap := make(map[int64]int64)
		for _, old := range m.ids.LiveSlots(f) {
			if err := ctx.Err(); err != nil {
				discard()
				return nil, err
			}
			vec, err := m.indices[f].Reconstruct(old)
			if err != nil {
				discard()
				return nil, fmt.Errorf("failed to reconstruct %s slot %d: %w", f, old, err)
			}
			slot, err := idx.Add(ctx, vec)
			if err != nil {
				discard()
				return nil, fmt.Errorf("failed to rebuild %s index: %w", f, err)
			}
			remap[old] = slot
		}
		remaps[f] = remap
	}

	res := &CompactResult{Reclaimed: make(map[identity.Field]int, len(identity.Fields))}
	for _, f := range identity.Fields {
		res.Reclaimed[f] = m.indices[f].Size() - rebuilt[f].Size()
		_ = m.indices[f].Close()
		m.indices[f] = rebuilt[f]
		m.ids.Remap(f, remaps[f])
	}
	m.dirty.Store(true)
	m.logger.Info("vector indices compacted",
		zap.Int("title_reclaimed", res.Reclaimed[identity.FieldTitle]),
		zap.Int("description_reclaimed", res.Reclaimed[identity.FieldDescription]),
		zap.Int("image_reclaimed", res.Reclaimed[identity.FieldImage]))

	if err := m.persistLocked(); err != nil {
		return res, err
	}
	res.Persisted = true
	return res, nil
}

// MaybeCompact compacts only when the global orphan ratio exceeds threshold.
func (m *Manager) MaybeCompact(ctx context.Context, threshold float64) (*CompactResult, bool, error) {
	ratio := m.OrphanRatio()
	if ratio <= threshold {
		return nil, false, nil
	}
	m.logger.Info("orphan ratio above threshold, compacting",
		zap.Float64("ratio", ratio),
		zap.Float64("threshold", threshold))
	res, err := m.Compact(ctx)
	return res, true, err
}
