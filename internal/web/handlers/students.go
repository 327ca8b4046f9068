package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/kozaktomas/attendance/internal/capture"
	"github.com/kozaktomas/attendance/internal/database"
)

// FaceEnroller adds embeddings from captured images.
type FaceEnroller interface {
	AddFace(ctx context.Context, studentID int64, method string) (*database.Embedding, error)
}

// StudentsHandler serves student CRUD, enrollments and embeddings.
type StudentsHandler struct {
	store    database.RecordStore
	enroller FaceEnroller
}

// NewStudentsHandler creates a students handler. enroller may be nil, which
// disables image uploads for embeddings.
func NewStudentsHandler(store database.RecordStore, enroller FaceEnroller) *StudentsHandler {
	return &StudentsHandler{store: store, enroller: enroller}
}

// StudentRequest is the body of create and update requests.
type StudentRequest struct {
	Name     string  `json:"name"`
	ClassIDs []int64 `json:"class_ids"`
}

// StudentResponse represents a student in API responses
type StudentResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ClassIDs  []int64   `json:"class_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func studentsToResponse(students []database.Student) []StudentResponse {
	response := make([]StudentResponse, len(students))
	for i, s := range students {
		response[i] = StudentResponse{ID: s.ID, Name: s.Name, ClassIDs: s.ClassIDs, CreatedAt: s.CreatedAt}
	}
	return response
}

// EmbeddingRequest adds an embedding from a raw vector.
type EmbeddingRequest struct {
	Vector []float32 `json:"vector"`
}

// EmbeddingResponse describes a stored embedding without its vector.
type EmbeddingResponse struct {
	ID        int64     `json:"id"`
	StudentID int64     `json:"student_id"`
	Dim       int       `json:"dim"`
	CreatedAt time.Time `json:"created_at"`
}

// List returns all students, or those matching ?name=.
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		students []database.Student
		err      error
	)
	if name := r.URL.Query().Get("name"); name != "" {
		students, err = h.store.FindStudentsByName(r.Context(), name)
	} else {
		students, err = h.store.ListStudents(r.Context())
	}
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, studentsToResponse(students))
}

// Get returns a single student with its classes.
func (h *StudentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	student, err := h.store.GetStudent(r.Context(), id)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, studentsToResponse([]database.Student{*student})[0])
}

// Create adds a student and enrolls it in class_ids.
func (h *StudentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req StudentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondStoreError(w, r, err)
		return
	}
	student := &database.Student{Name: req.Name, ClassIDs: req.ClassIDs}
	if err := h.store.CreateStudent(r.Context(), student); err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, studentsToResponse([]database.Student{*student})[0])
}

// Update renames a student.
func (h *StudentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	var req StudentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondStoreError(w, r, err)
		return
	}
	if err := h.store.UpdateStudent(r.Context(), &database.Student{ID: id, Name: req.Name}); err != nil {
		respondStoreError(w, r, err)
		return
	}
	student, err := h.store.GetStudent(r.Context(), id)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, studentsToResponse([]database.Student{*student})[0])
}

// Delete removes a student. Students with attendance history are kept (409).
func (h *StudentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	if err := h.store.DeleteStudent(r.Context(), id); err != nil {
		respondStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StudentsHandler) enrollmentParams(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	studentID, err := parseIDParam(r, "id")
	if err != nil {
		respondStoreError(w, r, err)
		return 0, 0, false
	}
	classID, err := parseIDParam(r, "classId")
	if err != nil {
		respondStoreError(w, r, err)
		return 0, 0, false
	}
	return studentID, classID, true
}

// Enroll adds the student to a class.
func (h *StudentsHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	studentID, classID, ok := h.enrollmentParams(w, r)
	if !ok {
		return
	}
	if err := h.store.Enroll(r.Context(), studentID, classID); err != nil {
		respondStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unenroll removes the student from a class.
func (h *StudentsHandler) Unenroll(w http.ResponseWriter, r *http.Request) {
	studentID, classID, ok := h.enrollmentParams(w, r)
	if !ok {
		return
	}
	if err := h.store.Unenroll(r.Context(), studentID, classID); err != nil {
		respondStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddEmbedding stores an embedding from a JSON vector or an uploaded image.
func (h *StudentsHandler) AddEmbedding(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondStoreError(w, r, err)
		return
	}

	var emb *database.Embedding
	if isMultipart(r) {
		if h.enroller == nil {
			respondError(w, http.StatusNotImplemented, "image enrollment is not configured")
			return
		}
		data, err := readUpload(w, r)
		if err != nil {
			respondStoreError(w, r, err)
			return
		}
		emb, err = h.enroller.AddFace(capture.WithUpload(r.Context(), data), id, capture.MethodUpload)
		if err != nil {
			respondStoreError(w, r, err)
			return
		}
	} else {
		var req EmbeddingRequest
		if err := decodeJSON(r, &req); err != nil {
			respondStoreError(w, r, err)
			return
		}
		emb, err = h.store.AddEmbedding(r.Context(), id, req.Vector)
		if err != nil {
			respondStoreError(w, r, err)
			return
		}
	}

	log.Printf("Enrolled embedding %d for student %d", emb.ID, id)
	respondJSON(w, http.StatusCreated, EmbeddingResponse{
		ID: emb.ID, StudentID: emb.StudentID, Dim: len(emb.Vector), CreatedAt: emb.CreatedAt,
	})
}

// CountEmbeddings reports how many embeddings a student has.
func (h *StudentsHandler) CountEmbeddings(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	if _, err := h.store.GetStudent(r.Context(), id); err != nil {
		respondStoreError(w, r, err)
		return
	}
	count, err := h.store.CountEmbeddings(r.Context(), id)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"count": count, "dim": h.store.Dim()})
}

// DeleteEmbeddings removes all embeddings of a student.
func (h *StudentsHandler) DeleteEmbeddings(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	n, err := h.store.DeleteEmbeddings(r.Context(), id)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// ReplaceEmbeddingsRequest replaces every embedding of a student.
type ReplaceEmbeddingsRequest struct {
	Vectors [][]float32 `json:"vectors"`
}

// ReplaceEmbeddings swaps all embeddings of a student in one transaction.
func (h *StudentsHandler) ReplaceEmbeddings(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	var req ReplaceEmbeddingsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondStoreError(w, r, err)
		return
	}
	embeddings, err := database.ReplaceEmbeddings(r.Context(), h.store, id, req.Vectors)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	response := make([]EmbeddingResponse, len(embeddings))
	for i, emb := range embeddings {
		response[i] = EmbeddingResponse{ID: emb.ID, StudentID: emb.StudentID, Dim: len(emb.Vector), CreatedAt: emb.CreatedAt}
	}
	respondJSON(w, http.StatusOK, response)
}
