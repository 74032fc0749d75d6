// Package embedding provides text and image embeddings via ONNX or a remote API,
// with in-memory and on-disk caching and a circuit breaker.
package embedding

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable is returned while the provider is considered down.
	ErrUnavailable = errors.New("embedding provider unavailable")
	// ErrUnsupported is returned when the provider cannot embed the requested modality.
	ErrUnsupported = errors.New("embedding modality not supported")
	// ErrInvalidInput is returned for input that no provider could embed (undecodable image, empty text).
	ErrInvalidInput = errors.New("invalid embedding input")
)

// Embedder produces unit-length vector embeddings for text and images.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, data []byte) ([]float32, error)
	Dimensions() int
	Close() error
}

// availability is implemented by embedders that track provider health.
type availability interface {
	Available() bool
}

// Available reports whether e can currently serve requests. A nil embedder is unavailable;
// embedders that do not track health are always available.
func Available(e Embedder) bool {
	if e == nil {
		return false
	}
	if a, ok := e.(availability); ok {
		return a.Available()
	}
	return true
}

// countsAsFailure reports whether err says something about provider health.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, ErrUnsupported) &&
		!errors.Is(err, ErrInvalidInput)
}
