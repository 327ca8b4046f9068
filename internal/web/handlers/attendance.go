package handlers

import (
	"iter"
	"net/http"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
)

// AttendanceHandler serves the attendance ledger.
type AttendanceHandler struct {
	store    database.RecordStore
	location *time.Location
	now      func() time.Time
}

// NewAttendanceHandler creates an attendance handler. loc decides "today"
// for requests without an explicit date.
func NewAttendanceHandler(store database.RecordStore, loc *time.Location) *AttendanceHandler {
	if loc == nil {
		loc = time.Local
	}
	return &AttendanceHandler{store: store, location: loc, now: time.Now}
}

// AttendanceRequest records attendance manually.
type AttendanceRequest struct {
	ClassID   int64  `json:"class_id"`
	StudentID int64  `json:"student_id"`
	Date      string `json:"date"`
	Status    string `json:"status"`
}

// AttendanceUpdateRequest changes the status of an event.
type AttendanceUpdateRequest struct {
	Status string `json:"status"`
}

// AttendanceResponse represents an attendance event in API responses
type AttendanceResponse struct {
	ID        int64           `json:"id"`
	ClassID   int64           `json:"class_id"`
	StudentID int64           `json:"student_id"`
	Date      string          `json:"date"`
	Status    database.Status `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func attendanceToResponse(ev *database.AttendanceEvent) AttendanceResponse {
	return AttendanceResponse{
		ID:        ev.ID,
		ClassID:   ev.ClassID,
		StudentID: ev.StudentID,
		Date:      ev.Date.Format(database.DateLayout),
		Status:    ev.Status,
		CreatedAt: ev.CreatedAt,
		UpdatedAt: ev.UpdatedAt,
	}
}

func (h *AttendanceHandler) respondEvents(w http.ResponseWriter, r *http.Request, seq iter.Seq2[database.AttendanceEvent, error]) {
	events, err := database.Collect(seq)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	response := make([]AttendanceResponse, len(events))
	for i := range events {
		response[i] = attendanceToResponse(&events[i])
	}
	respondJSON(w, http.StatusOK, response)
}

// ByClass lists attendance for a class.
func (h *AttendanceHandler) ByClass(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	h.respondEvents(w, r, h.store.QueryByClass(r.Context(), id))
}

// ByStudent lists attendance for a student.
func (h *AttendanceHandler) ByStudent(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	h.respondEvents(w, r, h.store.QueryByStudent(r.Context(), id))
}

// ByDateRange lists attendance between ?from and ?to inclusive. A missing
// bound defaults to today.
func (h *AttendanceHandler) ByDateRange(w http.ResponseWriter, r *http.Request) {
	from, err := h.dateOrToday(r.URL.Query().Get("from"))
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	to, err := h.dateOrToday(r.URL.Query().Get("to"))
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	h.respondEvents(w, r, h.store.QueryByDateRange(r.Context(), from, to))
}

// Record adds an attendance event without face recognition.
func (h *AttendanceHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req AttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondStoreError(w, r, err)
		return
	}
	date, err := h.dateOrToday(req.Date)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	status := database.StatusPresent
	if req.Status != "" {
		if status, err = database.ParseStatus(req.Status); err != nil {
			respondStoreError(w, r, err)
			return
		}
	}

	ev, err := h.store.RecordAttendance(r.Context(), req.ClassID, req.StudentID, date, status)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, attendanceToResponse(ev))
}

// Get returns a single attendance event.
func (h *AttendanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	ev, err := h.store.GetAttendance(r.Context(), id)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, attendanceToResponse(ev))
}

// Update changes the status of an attendance event.
func (h *AttendanceHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	var req AttendanceUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondStoreError(w, r, err)
		return
	}
	status, err := database.ParseStatus(req.Status)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	if err := h.store.UpdateAttendance(r.Context(), id, status); err != nil {
		respondStoreError(w, r, err)
		return
	}
	ev, err := h.store.GetAttendance(r.Context(), id)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, attendanceToResponse(ev))
}

func (h *AttendanceHandler) dateOrToday(s string) (time.Time, error) {
	if s == "" {
		return database.DateOf(h.now().In(h.location)), nil
	}
	return database.ParseDate(s)
}
