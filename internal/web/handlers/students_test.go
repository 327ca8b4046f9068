package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/kozaktomas/attendance/internal/capture"
	"github.com/kozaktomas/attendance/internal/database"
)

// fakeEnroller records the upload it was given.
type fakeEnroller struct {
	store    database.RecordStore
	vector   []float32
	err      error
	uploaded []byte
}

func (f *fakeEnroller) AddFace(ctx context.Context, studentID int64, method string) (*database.Embedding, error) {
	if method != capture.MethodUpload {
		return nil, errors.New("unexpected method " + method)
	}
	f.uploaded, _ = capture.UploadFrom(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return f.store.AddEmbedding(ctx, studentID, f.vector)
}

func studentParams(r *http.Request, id int64) *http.Request {
	return requestWithChiParams(r, map[string]string{"id": strconv.FormatInt(id, 10)})
}

func TestStudentsHandler_Create(t *testing.T) {
	store, class, _ := testStore(t)
	h := NewStudentsHandler(store, nil)

	rec := httptest.NewRecorder()
	h.Create(rec, jsonRequest(t, http.MethodPost, "/api/v1/students", StudentRequest{Name: "Bob", ClassIDs: []int64{class.ID}}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp StudentResponse
	decodeBody(t, rec, &resp)
	if resp.Name != "Bob" || len(resp.ClassIDs) != 1 || resp.ClassIDs[0] != class.ID {
		t.Errorf("unexpected student %+v", resp)
	}
}

func TestStudentsHandler_CreateUnknownClass(t *testing.T) {
	store, _, _ := testStore(t)
	h := NewStudentsHandler(store, nil)

	rec := httptest.NewRecorder()
	h.Create(rec, jsonRequest(t, http.MethodPost, "/api/v1/students", StudentRequest{Name: "Bob", ClassIDs: []int64{999}}))

	assertError(t, rec, http.StatusConflict, database.KindReferentialViolation)

	students, err := store.ListStudents(context.Background())
	if err != nil {
		t.Fatalf("ListStudents: %v", err)
	}
	if len(students) != 1 {
		t.Errorf("expected the failed create to leave 1 student, got %d", len(students))
	}
}

func TestStudentsHandler_ListByName(t *testing.T) {
	store, _, alice := testStore(t)
	if err := store.CreateStudent(context.Background(), &database.Student{Name: "Zoë Novák"}); err != nil {
		t.Fatalf("CreateStudent: %v", err)
	}
	h := NewStudentsHandler(store, nil)

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?name=alice", 1},
		{"?name=zoe%20novak", 1},
		{"?name=nobody", 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/students"+tt.query, nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rec.Code)
			}
			var resp []StudentResponse
			decodeBody(t, rec, &resp)
			if len(resp) != tt.want {
				t.Errorf("expected %d students, got %d", tt.want, len(resp))
			}
			if tt.query == "?name=alice" && len(resp) == 1 && resp[0].ID != alice.ID {
				t.Errorf("expected Alice, got %+v", resp[0])
			}
		})
	}
}

func TestStudentsHandler_UpdateAndDelete(t *testing.T) {
	store, _, alice := testStore(t)
	h := NewStudentsHandler(store, nil)

	rec := httptest.NewRecorder()
	h.Update(rec, studentParams(jsonRequest(t, http.MethodPut, "/", StudentRequest{Name: "Alicia"}), alice.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp StudentResponse
	decodeBody(t, rec, &resp)
	if resp.Name != "Alicia" {
		t.Errorf("expected 'Alicia', got %q", resp.Name)
	}

	rec = httptest.NewRecorder()
	h.Delete(rec, studentParams(httptest.NewRequest(http.MethodDelete, "/", nil), alice.ID))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Get(rec, studentParams(httptest.NewRequest(http.MethodGet, "/", nil), alice.ID))
	assertError(t, rec, http.StatusNotFound, database.KindNotFound)
}

func TestStudentsHandler_Enrollment(t *testing.T) {
	store, class, alice := testStore(t)
	h := NewStudentsHandler(store, nil)
	params := map[string]string{
		"id":      strconv.FormatInt(alice.ID, 10),
		"classId": strconv.FormatInt(class.ID, 10),
	}

	rec := httptest.NewRecorder()
	h.Unenroll(rec, requestWithChiParams(httptest.NewRequest(http.MethodDelete, "/", nil), params))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", rec.Code, rec.Body.String())
	}
	roster, _ := store.ListEnrolled(context.Background(), class.ID)
	if len(roster) != 0 {
		t.Errorf("expected empty roster, got %d", len(roster))
	}

	rec = httptest.NewRecorder()
	h.Enroll(rec, requestWithChiParams(httptest.NewRequest(http.MethodPost, "/", nil), params))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", rec.Code, rec.Body.String())
	}
	roster, _ = store.ListEnrolled(context.Background(), class.ID)
	if len(roster) != 1 {
		t.Errorf("expected 1 enrolled student, got %d", len(roster))
	}

	params["classId"] = "999"
	rec = httptest.NewRecorder()
	h.Enroll(rec, requestWithChiParams(httptest.NewRequest(http.MethodPost, "/", nil), params))
	assertError(t, rec, http.StatusConflict, database.KindReferentialViolation)
}

func TestStudentsHandler_AddEmbeddingVector(t *testing.T) {
	store, _, alice := testStore(t)
	h := NewStudentsHandler(store, nil)

	rec := httptest.NewRecorder()
	h.AddEmbedding(rec, studentParams(jsonRequest(t, http.MethodPost, "/", EmbeddingRequest{Vector: testFace}), alice.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp EmbeddingResponse
	decodeBody(t, rec, &resp)
	if resp.Dim != testDim || resp.StudentID != alice.ID {
		t.Errorf("unexpected embedding %+v", resp)
	}

	rec = httptest.NewRecorder()
	h.AddEmbedding(rec, studentParams(jsonRequest(t, http.MethodPost, "/", EmbeddingRequest{Vector: []float32{1, 2}}), alice.ID))
	assertError(t, rec, http.StatusBadRequest, database.KindDimensionMismatch)

	rec = httptest.NewRecorder()
	h.CountEmbeddings(rec, studentParams(httptest.NewRequest(http.MethodGet, "/", nil), alice.ID))
	var count map[string]int
	decodeBody(t, rec, &count)
	if count["count"] != 1 || count["dim"] != testDim {
		t.Errorf("unexpected count %v", count)
	}
}

func TestStudentsHandler_AddEmbeddingUpload(t *testing.T) {
	store, _, alice := testStore(t)
	enroller := &fakeEnroller{store: store, vector: testFace}
	h := NewStudentsHandler(store, enroller)

	rec := httptest.NewRecorder()
	h.AddEmbedding(rec, studentParams(multipartRequest(t, "/", []byte("jpeg bytes"), nil), alice.ID))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if string(enroller.uploaded) != "jpeg bytes" {
		t.Errorf("enroller got upload %q", enroller.uploaded)
	}
	if n, _ := store.CountEmbeddings(context.Background(), alice.ID); n != 1 {
		t.Errorf("expected 1 embedding, got %d", n)
	}
}

func TestStudentsHandler_AddEmbeddingUploadErrors(t *testing.T) {
	store, _, alice := testStore(t)

	rec := httptest.NewRecorder()
	NewStudentsHandler(store, nil).AddEmbedding(rec, studentParams(multipartRequest(t, "/", []byte("x"), nil), alice.ID))
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("expected status 501 without enroller, got %d", rec.Code)
	}

	enroller := &fakeEnroller{store: store, err: database.ErrExtractionFailed}
	rec = httptest.NewRecorder()
	NewStudentsHandler(store, enroller).AddEmbedding(rec, studentParams(multipartRequest(t, "/", []byte("x"), nil), alice.ID))
	assertError(t, rec, http.StatusBadGateway, database.KindExtractionFailed)
}

func TestStudentsHandler_ReplaceAndDeleteEmbeddings(t *testing.T) {
	store, _, alice := testStore(t)
	h := NewStudentsHandler(store, nil)
	ctx := context.Background()
	if _, err := store.AddEmbedding(ctx, alice.ID, testFace); err != nil {
		t.Fatalf("AddEmbedding: %v", err)
	}

	body := ReplaceEmbeddingsRequest{Vectors: [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}}
	rec := httptest.NewRecorder()
	h.ReplaceEmbeddings(rec, studentParams(jsonRequest(t, http.MethodPut, "/", body), alice.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if n, _ := store.CountEmbeddings(ctx, alice.ID); n != 2 {
		t.Errorf("expected 2 embeddings after replace, got %d", n)
	}

	bad := ReplaceEmbeddingsRequest{Vectors: [][]float32{{1, 0, 0, 0}, {1}}}
	rec = httptest.NewRecorder()
	h.ReplaceEmbeddings(rec, studentParams(jsonRequest(t, http.MethodPut, "/", bad), alice.ID))
	assertError(t, rec, http.StatusBadRequest, database.KindDimensionMismatch)
	if n, _ := store.CountEmbeddings(ctx, alice.ID); n != 2 {
		t.Errorf("failed replace changed embeddings: got %d", n)
	}

	rec = httptest.NewRecorder()
	h.DeleteEmbeddings(rec, studentParams(httptest.NewRequest(http.MethodDelete, "/", nil), alice.ID))
	var resp map[string]int
	decodeBody(t, rec, &resp)
	if resp["deleted"] != 2 {
		t.Errorf("expected 2 deleted, got %v", resp)
	}
}
