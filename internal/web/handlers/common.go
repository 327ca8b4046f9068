package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance/internal/database"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// maxUploadSize caps multipart image uploads.
const maxUploadSize = 20 << 20

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// ErrorResponse is the body of every failed request that reached the store.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind database.ErrorKind) int {
	switch kind {
	case database.KindValidation, database.KindDimensionMismatch:
		return http.StatusBadRequest
	case database.KindNotFound:
		return http.StatusNotFound
	case database.KindReferentialViolation, database.KindUniqueConstraint, database.KindDuplicateAttendance:
		return http.StatusConflict
	case database.KindNoMatch, database.KindAmbiguousMatch:
		return http.StatusUnprocessableEntity
	case database.KindCaptureFailed, database.KindExtractionFailed:
		return http.StatusBadGateway
	case database.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	case database.KindCanceled:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// respondStoreError maps err onto a status code. Unknown errors are logged
// and hidden from the client.
func respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	kind := database.KindOf(err)
	status := statusFor(kind)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("Error: %s %s: %v", r.Method, sanitizeForLog(r.URL.Path), err)
		message = "internal server error"
	}
	respondJSON(w, status, ErrorResponse{Error: message, Kind: string(kind)})
}

// parseIDParam reads a positive integer URL parameter.
func parseIDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", database.ErrValidation, name, raw)
	}
	return id, nil
}

// decodeJSON decodes the request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %s: %s", database.ErrValidation, errInvalidRequestBody, err.Error())
	}
	return nil
}

// readUpload returns the bytes of the multipart "file" field.
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, fmt.Errorf("%w: invalid multipart form: %s", database.ErrValidation, err.Error())
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: missing file field", database.ErrValidation)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
