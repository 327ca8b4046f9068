package handlers

import (
	"net/http"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
)

// ClassesHandler serves class CRUD and rosters.
type ClassesHandler struct {
	store database.RecordStore
}

// NewClassesHandler creates a classes handler.
func NewClassesHandler(store database.RecordStore) *ClassesHandler {
	return &ClassesHandler{store: store}
}

// ClassRequest is the body of create and update requests.
type ClassRequest struct {
	Name        string `json:"name"`
	RoomNumber  string `json:"room_number"`
	Description string `json:"description"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Time        string `json:"time"`
}

// ClassResponse represents a class in API responses
type ClassResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	RoomNumber  string    `json:"room_number"`
	Description string    `json:"description"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date"`
	Time        string    `json:"time"`
	CreatedAt   time.Time `json:"created_at"`
}

func classToResponse(c *database.Class) ClassResponse {
	return ClassResponse{
		ID:          c.ID,
		Name:        c.Name,
		RoomNumber:  c.RoomNumber,
		Description: c.Description,
		StartDate:   c.StartDate.Format(database.DateLayout),
		EndDate:     c.EndDate.Format(database.DateLayout),
		Time:        c.MeetingTime,
		CreatedAt:   c.CreatedAt,
	}
}

func (req *ClassRequest) toClass() (*database.Class, error) {
	start, err := database.ParseDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := database.ParseDate(req.EndDate)
	if err != nil {
		return nil, err
	}
	return &database.Class{
		Name:        req.Name,
		RoomNumber:  req.RoomNumber,
		Description: req.Description,
		StartDate:   start,
		EndDate:     end,
		MeetingTime: req.Time,
	}, nil
}

// List returns all classes.
func (h *ClassesHandler) List(w http.ResponseWriter, r *http.Request) {
	classes, err := h.store.ListClasses(r.Context())
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	response := make([]ClassResponse, len(classes))
	for i := range classes {
		response[i] = classToResponse(&classes[i])
	}
	respondJSON(w, http.StatusOK, response)
}

// Get returns a single class.
func (h *ClassesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	class, err := h.store.GetClass(r.Context(), id)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, classToResponse(class))
}

// Create adds a class.
func (h *ClassesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ClassRequest
	if err := decodeJSON(r, &req); err != nil {
		respondStoreError(w, r, err)
		return
	}
	class, err := req.toClass()
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	if err := h.store.CreateClass(r.Context(), class); err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, classToResponse(class))
}

// Update replaces a class.
func (h *ClassesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	var req ClassRequest
	if err := decodeJSON(r, &req); err != nil {
		respondStoreError(w, r, err)
		return
	}
	class, err := req.toClass()
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	class.ID = id
	if err := h.store.UpdateClass(r.Context(), class); err != nil {
		respondStoreError(w, r, err)
		return
	}
	updated, err := h.store.GetClass(r.Context(), id)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, classToResponse(updated))
}

// Delete removes a class. Classes with attendance history are kept (409).
func (h *ClassesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	if err := h.store.DeleteClass(r.Context(), id); err != nil {
		respondStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Roster lists the students enrolled in a class.
func (h *ClassesHandler) Roster(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	students, err := h.store.ListEnrolled(r.Context(), id)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, studentsToResponse(students))
}
