package vectorstore

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/identity"
)

const nextSuffix = ".next"

// PersistAll checkpoints the three indices and the identity map together. Each file
// is first written to "<path>.next"; the renames happen only after all four writes
// succeed, so a failure leaves the previous checkpoint intact. Failures wrap
// ErrNotPersisted. Searches may run during a checkpoint; mutations wait.
func (m *Manager) PersistAll() error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.persistLocked()
}

// persistLocked requires m.mu (read or write) and m.persistMu.
func (m *Manager) persistLocked() error {
	if m.paths.IdentityMap == "" {
		return nil
	}
	start := time.Now()

	type pending struct{ next, final string }
	var written []pending
	cleanup := func() {
		for _, p := range written {
			_ = os.Remove(p.next)
		}
	}

	for _, f := range identity.Fields {
		path := m.paths.index(f)
		if path == "" {
			continue
		}
		next := path + nextSuffix
		if err := m.indices[f].Save(next); err != nil {
			cleanup()
			m.logger.Warn("checkpoint failed", zap.String("field", string(f)), zap.Error(err))
			return fmt.Errorf("%w: %s index: %v", ErrNotPersisted, f, err)
		}
		written = append(written, pending{next: next, final: path})
	}
	mapNext := m.paths.IdentityMap + nextSuffix
	if err := m.ids.Save(mapNext); err != nil {
		cleanup()
		m.logger.Warn("checkpoint failed", zap.String("field", "identity_map"), zap.Error(err))
		return fmt.Errorf("%w: identity map: %v", ErrNotPersisted, err)
	}
	written = append(written, pending{next: mapNext, final: m.paths.IdentityMap})

	for i, p := range written {
		if err := os.Rename(p.next, p.final); err != nil {
			for _, rest := range written[i:] {
				_ = os.Remove(rest.next)
			}
			m.logger.Error("checkpoint rename failed, files may be out of step",
				zap.String("path", p.final),
				zap.Error(err))
			return fmt.Errorf("%w: rename %s: %v", ErrNotPersisted, p.final, err)
		}
	}

	m.dirty.Store(false)
	m.lastPersist.Store(time.Now().UnixNano())
	m.logger.Debug("checkpoint written", zap.Duration("took", time.Since(start)))
	return nil
}
