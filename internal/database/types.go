package database

import (
	"fmt"
	"strings"
	"time"
)

// Status is the attendance state recorded for a student in a class on a day.
type Status string

const (
	StatusPresent Status = "Present"
	StatusAbsent  Status = "Absent"
)

// ParseStatus parses a status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "present":
		return StatusPresent, nil
	case "absent":
		return StatusAbsent, nil
	}
	return "", fmt.Errorf("%w: invalid status %q, must be Present or Absent", ErrValidation, s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusPresent || s == StatusAbsent
}

// Class is a scheduled course that students enroll in and check into.
type Class struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name" validate:"required,max=255"`
	RoomNumber  string    `db:"room_number" json:"room_number" validate:"max=64"`
	Description string    `db:"description" json:"description"`
	StartDate   time.Time `db:"start_date" json:"start_date" validate:"required"`
	EndDate     time.Time `db:"end_date" json:"end_date" validate:"required,gtefield=StartDate"`
	MeetingTime string    `db:"time" json:"time" validate:"required,datetime=15:04"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Student is an enrolled person. ClassIDs is populated on single reads.
type Student struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name" validate:"required,max=255"`
	ClassIDs  []int64   `db:"-" json:"class_ids"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Embedding is a face embedding owned by exactly one student.
type Embedding struct {
	ID        int64
	StudentID int64
	Vector    []float32
	CreatedAt time.Time
}

// AttendanceEvent records one student's status for one class on one day.
type AttendanceEvent struct {
	ID        int64     `db:"id" json:"id"`
	ClassID   int64     `db:"class_id" json:"class_id"`
	StudentID int64     `db:"student_id" json:"student_id"`
	Date      time.Time `db:"date" json:"date"`
	Status    Status    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DateLayout is the calendar day format used for attendance and class dates.
const DateLayout = "2006-01-02"

// DateOf truncates t to its calendar day, keeping the day as seen in t's location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", ErrValidation, s)
	}
	return t, nil
}

// NormalizeMeetingTime accepts HH:MM or HH:MM:SS and returns HH:MM.
func NormalizeMeetingTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04"), nil
		}
	}
	return "", fmt.Errorf("%w: invalid meeting time %q, expected HH:MM", ErrValidation, s)
}
