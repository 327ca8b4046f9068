// Package capture acquires face images for check-in and enrollment.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Method kinds accepted by Source.Capture.
const (
	MethodFile     = "file"
	MethodSnapshot = "snapshot"
	MethodUpload   = "upload"
)

// maxDownloadSize caps snapshot responses.
const maxDownloadSize = 20 << 20

var (
	ErrUnknownMethod = errors.New("unknown capture method")
	ErrNoUpload      = errors.New("no uploaded image in request")
)

// Method is a parsed capture selector such as "file:/tmp/a.jpg" or "snapshot".
type Method struct {
	Kind string
	Arg  string
}

func (m Method) String() string {
	if m.Arg == "" {
		return m.Kind
	}
	return m.Kind + ":" + m.Arg
}

// ParseMethod splits a selector into kind and argument.
func ParseMethod(s string) (Method, error) {
	kind, arg, _ := strings.Cut(strings.TrimSpace(s), ":")
	m := Method{Kind: strings.ToLower(kind), Arg: arg}
	switch m.Kind {
	case MethodFile:
		if m.Arg == "" {
			return Method{}, fmt.Errorf("%w: file method needs a path", ErrUnknownMethod)
		}
	case MethodSnapshot, MethodUpload:
	default:
		return Method{}, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
	return m, nil
}

type uploadKey struct{}

// WithUpload attaches uploaded image bytes to ctx for the "upload" method.
func WithUpload(ctx context.Context, data []byte) context.Context {
	return context.WithValue(ctx, uploadKey{}, data)
}

// UploadFrom returns bytes attached with WithUpload.
func UploadFrom(ctx context.Context) ([]byte, bool) {
	data, ok := ctx.Value(uploadKey{}).([]byte)
	return data, ok
}

// Source captures images from files, an IP camera snapshot URL, or a request upload.
type Source struct {
	maxSize     int
	snapshotURL string
	client      *http.Client
}

// NewSource creates a capture source. snapshotURL may be empty when
// "snapshot" selectors always carry their own URL.
func NewSource(maxSize int, snapshotURL string) *Source {
	return &Source{
		maxSize:     maxSize,
		snapshotURL: snapshotURL,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

// Capture acquires one image using the given selector and normalizes it.
func (s *Source) Capture(ctx context.Context, method string) (Image, error) {
	m, err := ParseMethod(method)
	if err != nil {
		return Image{}, err
	}

	var data []byte
	switch m.Kind {
	case MethodFile:
		data, err = os.ReadFile(m.Arg) //nolint:gosec // path is chosen by the operator
	case MethodSnapshot:
		data, err = s.snapshot(ctx, m.Arg)
	case MethodUpload:
		var ok bool
		if data, ok = UploadFrom(ctx); !ok {
			err = ErrNoUpload
		}
	}
	if err != nil {
		return Image{}, fmt.Errorf("capture %s: %w", m.Kind, err)
	}

	img, err := Normalize(data, s.maxSize)
	if err != nil {
		return Image{}, fmt.Errorf("capture %s: %w", m.Kind, err)
	}
	return img, nil
}

func (s *Source) snapshot(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		url = s.snapshotURL
	}
	if url == "" {
		return nil, errors.New("no snapshot URL configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("camera error (status %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return body, nil
}
