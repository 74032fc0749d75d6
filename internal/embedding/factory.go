package embedding

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/config"
)

// New builds the configured provider wrapped as Cached(Guarded(provider)), so cache
// hits are served even while the breaker is open. It returns nil, nil when embeddings
// are disabled.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if !cfg.EnabledOrDefault() {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var provider Embedder
	switch cfg.Provider {
	case "mock":
		provider = NewMockEmbedder(cfg.Dimensions)
	case "onnx":
		e, err := NewONNXEmbedder(ONNXOptions{
			TextModelPath:   cfg.ModelPath,
			VisionModelPath: cfg.VisionModelPath,
			Dimensions:      cfg.Dimensions,
			MaxTokens:       cfg.MaxTokens,
			ImageSize:       cfg.ImageSize,
		})
		if err != nil {
			return nil, err
		}
		provider = e
	case "remote":
		e, err := NewRemoteEmbedder(RemoteOptions{
			BaseURL:    cfg.APIBase,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		provider = e
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	guarded := NewGuarded(provider, cfg.FailureThreshold, time.Duration(cfg.CooldownSeconds)*time.Second, logger)

	var disk *DiskCache
	if cfg.CacheDir != "" {
		d, err := OpenDiskCache(cfg.CacheDir, cfg.Dimensions)
		if err != nil {
			logger.Warn("embedding disk cache disabled", zap.String("dir", cfg.CacheDir), zap.Error(err))
		} else {
			disk = d
		}
	}
	return NewCached(guarded, cfg.CacheSize, disk, logger), nil
}
