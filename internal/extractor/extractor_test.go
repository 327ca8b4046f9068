package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/attendance/internal/capture"
	"github.com/kozaktomas/attendance/internal/database"
)

func faceServer(t *testing.T, resp FaceResponse, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/embed/face" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file field: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if string(data) != "jpeg-bytes" {
				t.Errorf("unexpected upload %q", data)
			}
		}

		w.WriteHeader(status)
		if status == http.StatusOK {
			json.NewEncoder(w).Encode(resp)
		} else {
			w.Write([]byte("model not loaded"))
		}
	}))
}

var testImage = capture.Image{Data: []byte("jpeg-bytes"), Format: "jpeg"}

func TestExtractPicksMostConfidentFace(t *testing.T) {
	server := faceServer(t, FaceResponse{
		FacesCount: 2,
		Faces: []FaceDetection{
			{FaceIndex: 0, Dim: 3, Embedding: []float32{1, 0, 0}, DetScore: 0.7},
			{FaceIndex: 1, Dim: 3, Embedding: []float32{0, 1, 0}, DetScore: 0.95},
		},
	}, http.StatusOK)
	defer server.Close()

	got, err := New(server.URL, 3).Extract(context.Background(), testImage)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got[1] != 1 {
		t.Errorf("expected face 1 embedding, got %v", got)
	}
}

func TestExtractErrors(t *testing.T) {
	tests := []struct {
		name   string
		resp   FaceResponse
		status int
		dim    int
		want   error
	}{
		{"no face", FaceResponse{}, http.StatusOK, 3, ErrNoFace},
		{"wrong dim", FaceResponse{Faces: []FaceDetection{{Embedding: []float32{1, 2}}}}, http.StatusOK, 3, database.ErrDimensionMismatch},
		{"server error", FaceResponse{}, http.StatusInternalServerError, 3, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := faceServer(t, tc.resp, tc.status)
			defer server.Close()

			_, err := New(server.URL, tc.dim).Extract(context.Background(), testImage)
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNewDefaultURL(t *testing.T) {
	c := New("", 128)
	if c.baseURL != defaultEmbeddingURL {
		t.Errorf("baseURL = %q, want %q", c.baseURL, defaultEmbeddingURL)
	}
	c = New("http://embed:8000/", 128)
	if c.baseURL != "http://embed:8000" {
		t.Errorf("trailing slash not trimmed: %q", c.baseURL)
	}
}
