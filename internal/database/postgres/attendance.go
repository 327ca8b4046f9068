package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
)

const attendanceColumns = "id, class_id, student_id, date, status, created_at, updated_at"

// RecordAttendance inserts an attendance event. A second event for the same
// class, student and day fails with database.ErrDuplicateAttendance; the
// unique constraint decides the winner between concurrent callers.
func (s *stores) RecordAttendance(ctx context.Context, classID, studentID int64, date time.Time, status database.Status) (*database.AttendanceEvent, error) {
	if err := database.ValidateStatus(status); err != nil {
		return nil, err
	}
	day := database.DateOf(date)

	ev := database.AttendanceEvent{ClassID: classID, StudentID: studentID, Date: day, Status: status}
	err := s.q.QueryRowxContext(ctx, `
		INSERT INTO attendance (class_id, student_id, date, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (class_id, student_id, date) DO NOTHING
		RETURNING id, created_at, updated_at
	`, classID, studentID, day.Format(database.DateLayout), string(status)).Scan(&ev.ID, &ev.CreatedAt, &ev.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("class %d, student %d, %s: %w",
			classID, studentID, day.Format(database.DateLayout), database.ErrDuplicateAttendance)
	}
	if err != nil {
		return nil, classify("record attendance", err)
	}
	return &ev, nil
}

// UpdateAttendance changes the status of an existing event.
func (s *stores) UpdateAttendance(ctx context.Context, id int64, status database.Status) error {
	if err := database.ValidateStatus(status); err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx,
		"UPDATE attendance SET status = $2, updated_at = NOW() WHERE id = $1", id, string(status))
	if err != nil {
		return classify(fmt.Sprintf("update attendance %d", id), err)
	}
	return expectAffected(res, fmt.Sprintf("attendance %d", id))
}

// GetAttendance retrieves one event.
func (s *stores) GetAttendance(ctx context.Context, id int64) (*database.AttendanceEvent, error) {
	var ev database.AttendanceEvent
	if err := s.q.GetContext(ctx, &ev, "SELECT "+attendanceColumns+" FROM attendance WHERE id = $1", id); err != nil {
		return nil, classify(fmt.Sprintf("get attendance %d", id), err)
	}
	ev.Date = database.DateOf(ev.Date)
	return &ev, nil
}

// QueryByClass yields the attendance of a class.
func (s *stores) QueryByClass(ctx context.Context, classID int64) iter.Seq2[database.AttendanceEvent, error] {
	return s.queryEvents(ctx, "class", classID, "WHERE class_id = $1", classID)
}

// QueryByStudent yields the attendance of a student.
func (s *stores) QueryByStudent(ctx context.Context, studentID int64) iter.Seq2[database.AttendanceEvent, error] {
	return s.queryEvents(ctx, "student", studentID, "WHERE student_id = $1", studentID)
}

// QueryByDateRange yields events with start <= date <= end.
func (s *stores) QueryByDateRange(ctx context.Context, start, end time.Time) iter.Seq2[database.AttendanceEvent, error] {
	start, end = database.DateOf(start), database.DateOf(end)
	if start.After(end) {
		return func(yield func(database.AttendanceEvent, error) bool) {
			yield(database.AttendanceEvent{}, database.Invalid("date range start %s is after end %s",
				start.Format(database.DateLayout), end.Format(database.DateLayout)))
		}
	}
	return s.queryEvents(ctx, "", 0, "WHERE date BETWEEN $1 AND $2",
		start.Format(database.DateLayout), end.Format(database.DateLayout))
}

// queryEvents builds a sequence that runs the query each time it is ranged
// over. When owner is set, a missing owner row yields ErrNotFound.
func (s *stores) queryEvents(ctx context.Context, owner string, ownerID int64, where string, args ...any) iter.Seq2[database.AttendanceEvent, error] {
	query := "SELECT " + attendanceColumns + " FROM attendance " + where + " ORDER BY date, id"

	return func(yield func(database.AttendanceEvent, error) bool) {
		if owner != "" {
			ok, err := exists(ctx, s.q, owner, ownerID)
			if err != nil {
				yield(database.AttendanceEvent{}, err)
				return
			}
			if !ok {
				yield(database.AttendanceEvent{}, fmt.Errorf("%s %d: %w", owner, ownerID, database.ErrNotFound))
				return
			}
		}

		rows, err := s.q.QueryxContext(ctx, query, args...)
		if err != nil {
			yield(database.AttendanceEvent{}, classify("query attendance", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var ev database.AttendanceEvent
			if err := rows.StructScan(&ev); err != nil {
				yield(database.AttendanceEvent{}, classify("scan attendance", err))
				return
			}
			ev.Date = database.DateOf(ev.Date)
			if !yield(ev, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(database.AttendanceEvent{}, classify("iterate attendance", err))
		}
	}
}
