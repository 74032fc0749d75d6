//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

// ONNXOptions configures an ONNXEmbedder.
type ONNXOptions struct {
	TextModelPath   string
	VisionModelPath string // optional; EmbedImage returns ErrUnsupported without it
	Dimensions      int
	MaxTokens       int
	ImageSize       int
}

// ONNXEmbedder runs a CLIP-style text encoder and, optionally, a vision encoder
// through ONNX Runtime. It requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	opts      ONNXOptions
	tokenizer Tokenizer

	textMu              sync.Mutex
	textSession         *ort.AdvancedSession
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	textOutput          *ort.Tensor[float32]

	visionMu      sync.Mutex
	visionSession *ort.AdvancedSession
	pixelTensor   *ort.Tensor[float32]
	visionOutput  *ort.Tensor[float32]
}

// NewONNXEmbedder creates an ONNX embedder. InitializeEnvironment is called if not already done.
func NewONNXEmbedder(opts ONNXOptions) (*ONNXEmbedder, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	e := &ONNXEmbedder{opts: opts, tokenizer: &HashTokenizer{}}
	if err := e.initText(); err != nil {
		e.Close()
		return nil, err
	}
	if opts.VisionModelPath != "" {
		if err := e.initVision(); err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

func (e *ONNXEmbedder) initText() error {
	inputIDs, attentionMask := e.tokenizer.Tokenize("", e.opts.MaxTokens)
	shape := ort.NewShape(1, int64(len(inputIDs)))

	var err error
	if e.inputIDsTensor, err = ort.NewTensor(shape, inputIDs); err != nil {
		return fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if e.attentionMaskTensor, err = ort.NewTensor(shape, attentionMask); err != nil {
		return fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if e.textOutput, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.opts.Dimensions))); err != nil {
		return fmt.Errorf("failed to create text output tensor: %w", err)
	}
	e.textSession, err = ort.NewAdvancedSession(
		e.opts.TextModelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"text_embeds"},
		[]ort.ArbitraryTensor{e.inputIDsTensor, e.attentionMaskTensor},
		[]ort.ArbitraryTensor{e.textOutput},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create text session: %w", err)
	}
	return nil
}

func (e *ONNXEmbedder) initVision() error {
	size := int64(e.opts.ImageSize)
	var err error
	if e.pixelTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size)); err != nil {
		return fmt.Errorf("failed to create pixel_values tensor: %w", err)
	}
	if e.visionOutput, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.opts.Dimensions))); err != nil {
		return fmt.Errorf("failed to create image output tensor: %w", err)
	}
	e.visionSession, err = ort.NewAdvancedSession(
		e.opts.VisionModelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		[]ort.ArbitraryTensor{e.pixelTensor},
		[]ort.ArbitraryTensor{e.visionOutput},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create vision session: %w", err)
	}
	return nil
}

// EmbedText returns the unit-length text embedding.
func (e *ONNXEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inputIDs, attentionMask := e.tokenizer.Tokenize(text, e.opts.MaxTokens)

	e.textMu.Lock()
	defer e.textMu.Unlock()

	copy(e.inputIDsTensor.GetData(), inputIDs)
	copy(e.attentionMaskTensor.GetData(), attentionMask)
	if err := e.textSession.Run(); err != nil {
		return nil, fmt.Errorf("text inference failed: %w", err)
	}
	return e.collect(e.textOutput), nil
}

// EmbedImage returns the unit-length image embedding, or ErrUnsupported without a vision model.
func (e *ONNXEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	if e.visionSession == nil {
		return nil, ErrUnsupported
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pixels, err := PixelValues(data, e.opts.ImageSize)
	if err != nil {
		return nil, err
	}

	e.visionMu.Lock()
	defer e.visionMu.Unlock()

	copy(e.pixelTensor.GetData(), pixels)
	if err := e.visionSession.Run(); err != nil {
		return nil, fmt.Errorf("image inference failed: %w", err)
	}
	return e.collect(e.visionOutput), nil
}

func (e *ONNXEmbedder) collect(t *ort.Tensor[float32]) []float32 {
	emb := make([]float32, e.opts.Dimensions)
	copy(emb, t.GetData())
	utils.NormalizeL2(emb)
	return emb
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.opts.Dimensions
}

// Close destroys the sessions and tensors.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.textSession != nil {
		err = e.textSession.Destroy()
		e.textSession = nil
	}
	if e.visionSession != nil {
		if verr := e.visionSession.Destroy(); err == nil {
			err = verr
		}
		e.visionSession = nil
	}
	for _, t := range []*ort.Tensor[int64]{e.inputIDsTensor, e.attentionMaskTensor} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	for _, t := range []*ort.Tensor[float32]{e.textOutput, e.pixelTensor, e.visionOutput} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	e.inputIDsTensor, e.attentionMaskTensor, e.textOutput = nil, nil, nil
	e.pixelTensor, e.visionOutput = nil, nil
	return err
}
