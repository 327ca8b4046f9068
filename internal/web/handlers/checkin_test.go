package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/attendance/internal/checkin"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/database/mock"
	"github.com/kozaktomas/attendance/internal/matcher"
)

// recordingRunner captures the request instead of running a check-in.
type recordingRunner struct {
	got checkin.Request
	err error
}

func (r *recordingRunner) Run(ctx context.Context, req checkin.Request) (*checkin.Result, error) {
	r.got = req
	return &checkin.Result{ClassID: req.ClassID, State: checkin.StateDone}, r.err
}

func newTestOrchestrator(t *testing.T, store *mock.RecordStore) (*checkin.Orchestrator, *mock.Extractor) {
	t.Helper()
	m, err := matcher.New(config.MatcherConfig{Metric: "euclidean", Threshold: matcher.DefaultThreshold}, testDim)
	if err != nil {
		t.Fatalf("matcher.New: %v", err)
	}
	extractor := mock.NewExtractor()
	orch := checkin.New(store, &mock.Capturer{}, extractor,
		m, checkin.WithLocation(time.UTC),
		checkin.WithClock(func() time.Time { return time.Date(2022, 3, 15, 9, 0, 0, 0, time.UTC) }))
	return orch, extractor
}

func classParams(r *http.Request, id int64) *http.Request {
	return requestWithChiParams(r, map[string]string{"id": strconv.FormatInt(id, 10)})
}

func TestCheckinHandler_Upload(t *testing.T) {
	store, class, alice := testStore(t)
	if _, err := store.AddEmbedding(context.Background(), alice.ID, testFace); err != nil {
		t.Fatalf("AddEmbedding: %v", err)
	}
	orch, extractor := newTestOrchestrator(t, store)
	extractor.Set("alice.jpg", testFace)
	h := NewCheckinHandler(orch)

	rec := httptest.NewRecorder()
	h.Checkin(rec, classParams(multipartRequest(t, "/", []byte("alice.jpg"), nil), class.ID))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp CheckinResponse
	decodeBody(t, rec, &resp)
	if resp.Result == nil || resp.StudentID != alice.ID || resp.State != checkin.StateDone {
		t.Fatalf("unexpected result %s", rec.Body.String())
	}

	events, err := database.Collect(store.QueryByClass(context.Background(), class.ID))
	if err != nil {
		t.Fatalf("QueryByClass: %v", err)
	}
	if len(events) != 1 || events[0].StudentID != alice.ID {
		t.Errorf("expected one attendance event for Alice, got %+v", events)
	}

	rec = httptest.NewRecorder()
	h.Checkin(rec, classParams(multipartRequest(t, "/", []byte("alice.jpg"), nil), class.ID))
	assertError(t, rec, http.StatusConflict, database.KindDuplicateAttendance)
}

func TestCheckinHandler_NoMatch(t *testing.T) {
	store, class, alice := testStore(t)
	if _, err := store.AddEmbedding(context.Background(), alice.ID, testFace); err != nil {
		t.Fatalf("AddEmbedding: %v", err)
	}
	orch, extractor := newTestOrchestrator(t, store)
	extractor.Set("stranger.jpg", []float32{-0.4, 0.3, 0.1, 0.2})
	h := NewCheckinHandler(orch)

	rec := httptest.NewRecorder()
	h.Checkin(rec, classParams(multipartRequest(t, "/", []byte("stranger.jpg"), nil), class.ID))

	assertError(t, rec, http.StatusUnprocessableEntity, database.KindNoMatch)
	var resp CheckinResponse
	decodeBody(t, rec, &resp)
	if resp.Result == nil || resp.FailedIn != checkin.StateMatching {
		t.Errorf("expected failure in matching, got %s", rec.Body.String())
	}
	if store.RecordCalls != 0 {
		t.Errorf("expected no attendance writes, got %d", store.RecordCalls)
	}
}

func TestCheckinHandler_ParsesRequest(t *testing.T) {
	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
		wantMethod string
		wantDate   string
		wantRecord database.Status
	}{
		{
			name:       "upload with fields",
			req:        multipartRequest(t, "/", []byte("img"), map[string]string{"date": "2022-03-01", "status": "absent"}),
			wantStatus: http.StatusCreated,
			wantMethod: "upload",
			wantDate:   "2022-03-01",
			wantRecord: database.StatusAbsent,
		},
		{
			name:       "json snapshot",
			req:        jsonRequest(t, http.MethodPost, "/", CheckinRequest{Method: "snapshot"}),
			wantStatus: http.StatusCreated,
			wantMethod: "snapshot",
		},
		{
			name:       "json file method rejected",
			req:        jsonRequest(t, http.MethodPost, "/", CheckinRequest{Method: "file:/etc/passwd"}),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "snapshot with url rejected",
			req:        jsonRequest(t, http.MethodPost, "/", CheckinRequest{Method: "snapshot:http://internal/"}),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad status",
			req:        jsonRequest(t, http.MethodPost, "/", CheckinRequest{Method: "snapshot", Status: "late"}),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "multipart without file",
			req:        multipartWithoutFile(t),
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &recordingRunner{}
			rec := httptest.NewRecorder()
			NewCheckinHandler(runner).Checkin(rec, classParams(tt.req, 7))

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantStatus != http.StatusCreated {
				return
			}
			if runner.got.ClassID != 7 || runner.got.Method != tt.wantMethod {
				t.Errorf("unexpected request %+v", runner.got)
			}
			if tt.wantDate != "" && runner.got.Date.Format(database.DateLayout) != tt.wantDate {
				t.Errorf("expected date %s, got %v", tt.wantDate, runner.got.Date)
			}
			if runner.got.Status != tt.wantRecord {
				t.Errorf("expected status %q, got %q", tt.wantRecord, runner.got.Status)
			}
		})
	}
}

func multipartWithoutFile(t *testing.T) *http.Request {
	t.Helper()
	body := "--x\r\nContent-Disposition: form-data; name=\"date\"\r\n\r\n2022-03-01\r\n--x--\r\n"
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	return req
}

func TestWithCheckinTimeout(t *testing.T) {
	var deadline time.Time
	handler := WithCheckinTimeout(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, _ = r.Context().Deadline()
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))

	if deadline.IsZero() {
		t.Error("expected a deadline on the request context")
	}
}
