package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/lib/pq"
)

const studentColumns = "id, name, created_at"

// CreateStudent inserts a student and its enrollments in one transaction.
func (s *stores) CreateStudent(ctx context.Context, st *database.Student) error {
	if err := database.ValidateStudent(st); err != nil {
		return err
	}

	return s.atomic(ctx, func(q queryer) error {
		err := q.QueryRowxContext(ctx, `
			INSERT INTO student (name, name_key) VALUES ($1, $2)
			RETURNING id, created_at
		`, st.Name, database.NormalizeName(st.Name)).Scan(&st.ID, &st.CreatedAt)
		if err != nil {
			return classify("insert student", err)
		}

		for _, classID := range st.ClassIDs {
			if err := enroll(ctx, q, st.ID, classID); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetStudent retrieves a student with its class IDs.
func (s *stores) GetStudent(ctx context.Context, id int64) (*database.Student, error) {
	var st database.Student
	if err := s.q.GetContext(ctx, &st, "SELECT "+studentColumns+" FROM student WHERE id = $1", id); err != nil {
		return nil, classify(fmt.Sprintf("get student %d", id), err)
	}

	var classIDs []int64
	if err := s.q.SelectContext(ctx, &classIDs,
		"SELECT class_id FROM enrollment WHERE student_id = $1 ORDER BY class_id", id); err != nil {
		return nil, classify(fmt.Sprintf("get enrollments of student %d", id), err)
	}
	st.ClassIDs = classIDs
	return &st, nil
}

// ListStudents returns all students ordered by ID, without class IDs.
func (s *stores) ListStudents(ctx context.Context) ([]database.Student, error) {
	var students []database.Student
	if err := s.q.SelectContext(ctx, &students, "SELECT "+studentColumns+" FROM student ORDER BY id"); err != nil {
		return nil, classify("list students", err)
	}
	return students, nil
}

// FindStudentsByName matches on the normalized name key.
func (s *stores) FindStudentsByName(ctx context.Context, name string) ([]database.Student, error) {
	var students []database.Student
	err := s.q.SelectContext(ctx, &students,
		"SELECT "+studentColumns+" FROM student WHERE name_key = $1 ORDER BY id", database.NormalizeName(name))
	if err != nil {
		return nil, classify("find students by name", err)
	}
	return students, nil
}

// UpdateStudent renames a student.
func (s *stores) UpdateStudent(ctx context.Context, st *database.Student) error {
	if err := database.ValidateStudent(st); err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx, "UPDATE student SET name = $2, name_key = $3 WHERE id = $1",
		st.ID, st.Name, database.NormalizeName(st.Name))
	if err != nil {
		return classify(fmt.Sprintf("update student %d", st.ID), err)
	}
	return expectAffected(res, fmt.Sprintf("update student %d", st.ID))
}

// DeleteStudent removes a student with its embeddings and enrollments.
// Attendance history blocks deletion.
func (s *stores) DeleteStudent(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM student WHERE id = $1", id)
	if err != nil {
		return classify(fmt.Sprintf("delete student %d", id), err)
	}
	return expectAffected(res, fmt.Sprintf("delete student %d", id))
}

func enroll(ctx context.Context, q queryer, studentID, classID int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO enrollment (student_id, class_id) VALUES ($1, $2)
		ON CONFLICT (student_id, class_id) DO NOTHING
	`, studentID, classID)
	if err != nil {
		return classify(fmt.Sprintf("enroll student %d in class %d", studentID, classID), err)
	}
	return nil
}

// Enroll adds a student to a class. Enrolling twice is a no-op.
func (s *stores) Enroll(ctx context.Context, studentID, classID int64) error {
	return enroll(ctx, s.q, studentID, classID)
}

// Unenroll removes a student from a class.
func (s *stores) Unenroll(ctx context.Context, studentID, classID int64) error {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM enrollment WHERE student_id = $1 AND class_id = $2", studentID, classID)
	if err != nil {
		return classify(fmt.Sprintf("unenroll student %d from class %d", studentID, classID), err)
	}
	return expectAffected(res, fmt.Sprintf("enrollment of student %d in class %d", studentID, classID))
}

// ListEnrolled returns the roster of a class.
func (s *stores) ListEnrolled(ctx context.Context, classID int64) ([]database.Student, error) {
	ok, err := exists(ctx, s.q, "class", classID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("class %d: %w", classID, database.ErrNotFound)
	}

	var students []database.Student
	err = s.q.SelectContext(ctx, &students, `
		SELECT s.id, s.name, s.created_at
		FROM student s
		JOIN enrollment e ON e.student_id = s.id
		WHERE e.class_id = $1
		ORDER BY s.id
	`, classID)
	if err != nil {
		return nil, classify(fmt.Sprintf("list roster of class %d", classID), err)
	}
	for i := range students {
		students[i].ClassIDs = []int64{classID}
	}
	return students, nil
}

// studentIDArray adapts a slice of IDs for "= ANY($1)".
func studentIDArray(ids []int64) any {
	return pq.Array(ids)
}
