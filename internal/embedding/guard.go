package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Guarded is a circuit breaker around an Embedder. After threshold consecutive
// failures it fails fast with ErrUnavailable for cooldown, then lets one probe through.
type Guarded struct {
	inner     Embedder
	threshold int
	cooldown  time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewGuarded wraps inner. threshold <= 0 means 1.
func NewGuarded(inner Embedder, threshold int, cooldown time.Duration, logger *zap.Logger) *Guarded {
	if threshold <= 0 {
		threshold = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guarded{inner: inner, threshold: threshold, cooldown: cooldown, logger: logger, now: time.Now}
}

// EmbedText embeds text unless the breaker is open.
func (g *Guarded) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return g.call(func() ([]float32, error) { return g.inner.EmbedText(ctx, text) })
}

// EmbedImage embeds data unless the breaker is open.
func (g *Guarded) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	return g.call(func() ([]float32, error) { return g.inner.EmbedImage(ctx, data) })
}

func (g *Guarded) call(fn func() ([]float32, error)) ([]float32, error) {
	if err := g.acquire(); err != nil {
		return nil, err
	}
	v, err := fn()
	g.record(err)
	return v, err
}

func (g *Guarded) acquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case breakerOpen:
		if g.now().Sub(g.openedAt) < g.cooldown {
			return ErrUnavailable
		}
		g.state = breakerHalfOpen
		g.probing = true
		return nil
	case breakerHalfOpen:
		if g.probing {
			return ErrUnavailable
		}
		g.probing = true
	}
	return nil
}

func (g *Guarded) record(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	wasProbe := g.state == breakerHalfOpen
	if wasProbe {
		g.probing = false
	}
	if !countsAsFailure(err) {
		if err == nil && g.state != breakerClosed {
			g.logger.Info("embedding provider recovered")
		}
		if err == nil || wasProbe {
			g.state = breakerClosed
			g.failures = 0
		}
		return
	}

	g.failures++
	if wasProbe || g.failures >= g.threshold {
		if g.state != breakerOpen {
			g.logger.Warn("embedding provider unavailable, opening circuit",
				zap.Int("failures", g.failures),
				zap.Duration("cooldown", g.cooldown),
				zap.Error(err))
		}
		g.state = breakerOpen
		g.openedAt = g.now()
	}
}

// Available reports whether a call would be attempted now.
func (g *Guarded) Available() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case breakerOpen:
		return g.now().Sub(g.openedAt) >= g.cooldown
	case breakerHalfOpen:
		return !g.probing
	}
	return true
}

// State returns "closed", "open" or "half-open".
func (g *Guarded) State() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.String()
}

// Probe embeds a short text to check the provider, typically once at startup.
func (g *Guarded) Probe(ctx context.Context) error {
	if _, err := g.EmbedText(ctx, "probe"); err != nil {
		return fmt.Errorf("embedding probe failed: %w", err)
	}
	return nil
}

// Dimensions returns the embedding dimension.
func (g *Guarded) Dimensions() int {
	return g.inner.Dimensions()
}

// Close closes the wrapped embedder.
func (g *Guarded) Close() error {
	return g.inner.Close()
}
