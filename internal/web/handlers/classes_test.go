package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
)

func TestClassesHandler_Create(t *testing.T) {
	store, _, _ := testStore(t)
	h := NewClassesHandler(store)

	rec := httptest.NewRecorder()
	h.Create(rec, jsonRequest(t, http.MethodPost, "/api/v1/classes", ClassRequest{
		Name:       "  Physics  ",
		RoomNumber: "B2",
		StartDate:  "2022-02-01",
		EndDate:    "2022-06-30",
		Time:       "13:30:00",
	}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ClassResponse
	decodeBody(t, rec, &resp)
	if resp.ID == 0 {
		t.Error("expected an ID")
	}
	if resp.Name != "Physics" {
		t.Errorf("expected trimmed name 'Physics', got %q", resp.Name)
	}
	if resp.Time != "13:30" {
		t.Errorf("expected time '13:30', got %q", resp.Time)
	}
	if resp.StartDate != "2022-02-01" || resp.EndDate != "2022-06-30" {
		t.Errorf("unexpected dates %s..%s", resp.StartDate, resp.EndDate)
	}
}

func TestClassesHandler_CreateInvalid(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"end before start", ClassRequest{Name: "X", StartDate: "2022-06-01", EndDate: "2022-01-01", Time: "09:00"}},
		{"bad date", ClassRequest{Name: "X", StartDate: "01/02/2022", EndDate: "2022-06-01", Time: "09:00"}},
		{"missing name", ClassRequest{StartDate: "2022-01-01", EndDate: "2022-06-01", Time: "09:00"}},
		{"bad time", ClassRequest{Name: "X", StartDate: "2022-01-01", EndDate: "2022-06-01", Time: "9am"}},
		{"malformed json", `{"name":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _, _ := testStore(t)
			h := NewClassesHandler(store)

			rec := httptest.NewRecorder()
			h.Create(rec, jsonRequest(t, http.MethodPost, "/api/v1/classes", tt.body))

			assertError(t, rec, http.StatusBadRequest, database.KindValidation)
		})
	}
}

func TestClassesHandler_Get(t *testing.T) {
	store, class, _ := testStore(t)
	h := NewClassesHandler(store)

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{"existing", strconv.FormatInt(class.ID, 10), http.StatusOK},
		{"missing", "999", http.StatusNotFound},
		{"invalid", "abc", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/classes/"+tt.id, nil), map[string]string{"id": tt.id})
			rec := httptest.NewRecorder()
			h.Get(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus == http.StatusOK {
				var resp ClassResponse
				decodeBody(t, rec, &resp)
				if resp.Name != "Math 101" {
					t.Errorf("expected 'Math 101', got %q", resp.Name)
				}
			}
		})
	}
}

func TestClassesHandler_List(t *testing.T) {
	store, _, _ := testStore(t)
	h := NewClassesHandler(store)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/classes", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp []ClassResponse
	decodeBody(t, rec, &resp)
	if len(resp) != 1 {
		t.Errorf("expected 1 class, got %d", len(resp))
	}
}

func TestClassesHandler_Update(t *testing.T) {
	store, class, _ := testStore(t)
	h := NewClassesHandler(store)
	id := strconv.FormatInt(class.ID, 10)

	req := jsonRequest(t, http.MethodPut, "/api/v1/classes/"+id, ClassRequest{
		Name: "Math 102", RoomNumber: "202", StartDate: "2022-01-01", EndDate: "2022-05-01", Time: "10:00",
	})
	rec := httptest.NewRecorder()
	h.Update(rec, requestWithChiParams(req, map[string]string{"id": id}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got, err := store.GetClass(context.Background(), class.ID)
	if err != nil {
		t.Fatalf("GetClass: %v", err)
	}
	if got.Name != "Math 102" || got.RoomNumber != "202" || got.MeetingTime != "10:00" {
		t.Errorf("class not updated: %+v", got)
	}
}

func TestClassesHandler_Delete(t *testing.T) {
	store, class, student := testStore(t)
	h := NewClassesHandler(store)
	id := strconv.FormatInt(class.ID, 10)

	if _, err := store.RecordAttendance(context.Background(), class.ID, student.ID,
		time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC), database.StatusPresent); err != nil {
		t.Fatalf("RecordAttendance: %v", err)
	}

	rec := httptest.NewRecorder()
	h.Delete(rec, requestWithChiParams(httptest.NewRequest(http.MethodDelete, "/", nil), map[string]string{"id": id}))
	assertError(t, rec, http.StatusConflict, database.KindReferentialViolation)

	empty := &database.Class{
		Name: "Empty", StartDate: class.StartDate, EndDate: class.EndDate, MeetingTime: "08:00",
	}
	if err := store.CreateClass(context.Background(), empty); err != nil {
		t.Fatalf("CreateClass: %v", err)
	}
	emptyID := strconv.FormatInt(empty.ID, 10)

	rec = httptest.NewRecorder()
	h.Delete(rec, requestWithChiParams(httptest.NewRequest(http.MethodDelete, "/", nil), map[string]string{"id": emptyID}))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, err := store.GetClass(context.Background(), empty.ID); err == nil {
		t.Error("expected class to be deleted")
	}
}

func TestClassesHandler_Roster(t *testing.T) {
	store, class, student := testStore(t)
	h := NewClassesHandler(store)

	rec := httptest.NewRecorder()
	h.Roster(rec, requestWithChiParams(httptest.NewRequest(http.MethodGet, "/", nil),
		map[string]string{"id": strconv.FormatInt(class.ID, 10)}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp []StudentResponse
	decodeBody(t, rec, &resp)
	if len(resp) != 1 || resp[0].ID != student.ID {
		t.Errorf("expected roster with student %d, got %+v", student.ID, resp)
	}

	rec = httptest.NewRecorder()
	h.Roster(rec, requestWithChiParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "999"}))
	assertError(t, rec, http.StatusNotFound, database.KindNotFound)
}
