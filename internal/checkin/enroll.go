package checkin

import (
	"context"
	"fmt"

	"github.com/kozaktomas/attendance/internal/database"
)

// Enroller registers face embeddings for a student from captured images.
type Enroller struct {
	store     database.RecordStore
	capturer  Capturer
	extractor Extractor
}

// NewEnroller creates an enroller sharing the check-in collaborators.
func NewEnroller(store database.RecordStore, c Capturer, e Extractor) *Enroller {
	return &Enroller{store: store, capturer: c, extractor: e}
}

// Embed captures an image and extracts its embedding without storing it.
func (e *Enroller) Embed(ctx context.Context, method string) ([]float32, error) {
	img, err := e.capturer.Capture(ctx, method)
	if err != nil {
		return nil, collaboratorError(ctx, database.ErrCaptureFailed, err)
	}
	vec, err := e.extractor.Extract(ctx, img)
	if err != nil {
		return nil, collaboratorError(ctx, database.ErrExtractionFailed, err)
	}
	return vec, nil
}

// AddFace appends one embedding captured with method to the student.
// Collaborators run before any write; only AddEmbedding touches storage.
func (e *Enroller) AddFace(ctx context.Context, studentID int64, method string) (*database.Embedding, error) {
	if _, err := e.store.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	vec, err := e.Embed(ctx, method)
	if err != nil {
		return nil, fmt.Errorf("enroll student %d from %s: %w", studentID, method, err)
	}
	return e.store.AddEmbedding(ctx, studentID, vec)
}

// ReplaceFaces captures every method first and then swaps the student's
// embeddings in one transaction. Any capture failure leaves the old set.
func (e *Enroller) ReplaceFaces(ctx context.Context, studentID int64, methods []string) ([]database.Embedding, error) {
	if len(methods) == 0 {
		return nil, database.Invalid("at least one image is required")
	}
	vectors := make([][]float32, 0, len(methods))
	for _, m := range methods {
		vec, err := e.Embed(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("enroll student %d from %s: %w", studentID, m, err)
		}
		vectors = append(vectors, vec)
	}
	return database.ReplaceEmbeddings(ctx, e.store, studentID, vectors)
}
