package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/kozaktomas/attendance/internal/capture"
	"github.com/kozaktomas/attendance/internal/checkin"
	"github.com/kozaktomas/attendance/internal/database"
)

// CheckinRunner runs one check-in.
type CheckinRunner interface {
	Run(ctx context.Context, req checkin.Request) (*checkin.Result, error)
}

// CheckinHandler exposes face check-in for a class.
type CheckinHandler struct {
	orch CheckinRunner
}

// NewCheckinHandler creates a check-in handler.
func NewCheckinHandler(orch CheckinRunner) *CheckinHandler {
	return &CheckinHandler{orch: orch}
}

// CheckinRequest is the JSON form of a check-in. Only the camera snapshot
// method is accepted; images are sent as multipart uploads instead.
type CheckinRequest struct {
	Method string `json:"method"`
	Date   string `json:"date"`
	Status string `json:"status"`
}

// CheckinResponse wraps the check-in result with the failure, if any.
type CheckinResponse struct {
	*checkin.Result
	Error string             `json:"error,omitempty"`
	Kind  database.ErrorKind `json:"kind,omitempty"`
}

// Checkin identifies the face in the request and records attendance.
//
// Multipart requests carry the image in the "file" field with optional
// "date" and "status" fields. JSON requests trigger the configured camera.
func (h *CheckinHandler) Checkin(w http.ResponseWriter, r *http.Request) {
	classID, err := parseIDParam(r, "id")
	if err != nil {
		respondStoreError(w, r, err)
		return
	}

	ctx := r.Context()
	var body CheckinRequest
	if isMultipart(r) {
		data, err := readUpload(w, r)
		if err != nil {
			respondStoreError(w, r, err)
			return
		}
		ctx = capture.WithUpload(ctx, data)
		body = CheckinRequest{
			Method: capture.MethodUpload,
			Date:   r.FormValue("date"),
			Status: r.FormValue("status"),
		}
	} else {
		if err := decodeJSON(r, &body); err != nil {
			respondStoreError(w, r, err)
			return
		}
		if body.Method != capture.MethodSnapshot {
			respondStoreError(w, r, database.Invalid("method must be %q or a multipart image upload", capture.MethodSnapshot))
			return
		}
	}

	req, err := body.toRequest(classID)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}

	result, err := h.orch.Run(ctx, req)
	if err != nil {
		kind := database.KindOf(err)
		status := statusFor(kind)
		message := err.Error()
		if status == http.StatusInternalServerError {
			log.Printf("Error: check-in for class %d: %v", classID, err)
			message = "internal server error"
		}
		respondJSON(w, status, CheckinResponse{Result: result, Error: message, Kind: kind})
		return
	}
	respondJSON(w, http.StatusCreated, CheckinResponse{Result: result})
}

func (b *CheckinRequest) toRequest(classID int64) (checkin.Request, error) {
	req := checkin.Request{ClassID: classID, Method: b.Method}
	if b.Date != "" {
		date, err := database.ParseDate(b.Date)
		if err != nil {
			return req, err
		}
		req.Date = date
	}
	if b.Status != "" {
		status, err := database.ParseStatus(b.Status)
		if err != nil {
			return req, err
		}
		req.Status = status
	}
	return req, nil
}

// checkinTimeout bounds a single check-in including collaborator calls.
const checkinTimeout = 30 * time.Second

// WithCheckinTimeout limits how long a check-in request may run.
func WithCheckinTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkinTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
