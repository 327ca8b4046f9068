package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/database/mock"
)

const testDim = 4

var testFace = []float32{0.1, -0.2, 0.37, 0.05}

// testStore creates a mock store holding one class with one enrolled student.
func testStore(t *testing.T) (*mock.RecordStore, *database.Class, *database.Student) {
	t.Helper()
	ctx := context.Background()

	store := mock.NewRecordStore(testDim)
	class := &database.Class{
		Name:        "Math 101",
		RoomNumber:  "101",
		StartDate:   time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC),
		MeetingTime: "09:00",
	}
	if err := store.CreateClass(ctx, class); err != nil {
		t.Fatalf("CreateClass: %v", err)
	}
	student := &database.Student{Name: "Alice", ClassIDs: []int64{class.ID}}
	if err := store.CreateStudent(ctx, student); err != nil {
		t.Fatalf("CreateStudent: %v", err)
	}
	return store, class, student
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// jsonRequest creates a request with body encoded as JSON.
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest creates a request uploading data in the "file" field.
func multipartRequest(t *testing.T, path string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	fw, err := mw.CreateFormFile("file", "face.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// decodeBody unmarshals a recorded JSON response.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", rec.Body.String(), err)
	}
}

// assertError checks the status and kind of an error response.
func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, kind database.ErrorKind) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	if kind != "" && database.ErrorKind(resp.Kind) != kind {
		t.Errorf("expected kind %q, got %q", kind, resp.Kind)
	}
}
