package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/kozaktomas/attendance/internal/capture"
)

// Capturer is a mock capture collaborator. By default it returns an image
// whose data is the method string, so Extractor can key results on it.
// The "upload" method returns the bytes attached with capture.WithUpload.
type Capturer struct {
	mu    sync.Mutex
	calls int

	// Error injection
	CaptureError error
	// Block, when set, makes Capture wait until it is closed or ctx ends.
	Block chan struct{}
}

// Capture implements checkin.Capturer.
func (m *Capturer) Capture(ctx context.Context, method string) (capture.Image, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return capture.Image{}, ctx.Err()
		}
	}
	if m.CaptureError != nil {
		return capture.Image{}, m.CaptureError
	}
	if method == capture.MethodUpload {
		if data, ok := capture.UploadFrom(ctx); ok {
			return capture.Image{Data: data, Format: "jpeg"}, nil
		}
	}
	return capture.Image{Data: []byte(method), Format: "jpeg"}, nil
}

// Calls returns how many times Capture was invoked.
func (m *Capturer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Extractor is a mock embedding extractor returning preset vectors keyed by
// image data (the capture method when used with Capturer).
type Extractor struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int

	// Default is returned for unknown images when set.
	Default []float32

	// Error injection
	ExtractError error
}

// NewExtractor creates an extractor with no preset vectors.
func NewExtractor() *Extractor {
	return &Extractor{vectors: make(map[string][]float32)}
}

// Set registers the vector returned for images with the given data.
func (m *Extractor) Set(data string, vector []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[data] = vector
}

// Extract implements checkin.Extractor.
func (m *Extractor) Extract(ctx context.Context, img capture.Image) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.ExtractError != nil {
		return nil, m.ExtractError
	}
	if v, ok := m.vectors[string(img.Data)]; ok {
		return v, nil
	}
	if m.Default != nil {
		return m.Default, nil
	}
	return nil, errNoFace
}

// Calls returns how many times Extract was invoked.
func (m *Extractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var errNoFace = errors.New("mock extractor: no face")
