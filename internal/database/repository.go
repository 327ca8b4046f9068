package database

import (
	"context"
	"iter"
	"time"
)

// ClassStore persists classes.
type ClassStore interface {
	// CreateClass inserts c and sets its ID and CreatedAt.
	CreateClass(ctx context.Context, c *Class) error
	GetClass(ctx context.Context, id int64) (*Class, error)
	ListClasses(ctx context.Context) ([]Class, error)
	// UpdateClass rewrites the row with c.ID.
	UpdateClass(ctx context.Context, c *Class) error
	// DeleteClass fails with ErrReferentialViolation while attendance references the class.
	DeleteClass(ctx context.Context, id int64) error
}

// StudentStore persists students and their class enrollments.
type StudentStore interface {
	// CreateStudent inserts s and enrolls it in s.ClassIDs atomically.
	CreateStudent(ctx context.Context, s *Student) error
	GetStudent(ctx context.Context, id int64) (*Student, error)
	ListStudents(ctx context.Context) ([]Student, error)
	// FindStudentsByName matches names after NormalizeName on both sides.
	FindStudentsByName(ctx context.Context, name string) ([]Student, error)
	// UpdateStudent renames the student; enrollments are changed with Enroll/Unenroll.
	UpdateStudent(ctx context.Context, s *Student) error
	// DeleteStudent fails with ErrReferentialViolation while attendance references the student.
	DeleteStudent(ctx context.Context, id int64) error
	// Enroll is idempotent.
	Enroll(ctx context.Context, studentID, classID int64) error
	Unenroll(ctx context.Context, studentID, classID int64) error
	// ListEnrolled returns the class roster ordered by student ID.
	ListEnrolled(ctx context.Context, classID int64) ([]Student, error)
}

// EmbeddingStore persists face embeddings, the matcher's search space.
type EmbeddingStore interface {
	// Dim is the configured embedding dimension.
	Dim() int
	AddEmbedding(ctx context.Context, studentID int64, vector []float32) (*Embedding, error)
	// ListEmbeddings returns all embeddings of the given students ordered by student then ID.
	ListEmbeddings(ctx context.Context, studentIDs []int64) ([]Embedding, error)
	CountEmbeddings(ctx context.Context, studentID int64) (int, error)
	// DeleteEmbeddings removes all embeddings of a student and returns how many were removed.
	DeleteEmbeddings(ctx context.Context, studentID int64) (int, error)
}

// AttendanceStore is the attendance ledger.
//
// Query methods return lazy sequences: nothing is read until the sequence is
// ranged over, and each range re-runs the query. Events are ordered by date,
// then by insertion order.
type AttendanceStore interface {
	// RecordAttendance fails with ErrDuplicateAttendance if (classID, studentID, date) exists.
	RecordAttendance(ctx context.Context, classID, studentID int64, date time.Time, status Status) (*AttendanceEvent, error)
	UpdateAttendance(ctx context.Context, id int64, status Status) error
	GetAttendance(ctx context.Context, id int64) (*AttendanceEvent, error)
	QueryByClass(ctx context.Context, classID int64) iter.Seq2[AttendanceEvent, error]
	QueryByStudent(ctx context.Context, studentID int64) iter.Seq2[AttendanceEvent, error]
	// QueryByDateRange includes both start and end days.
	QueryByDateRange(ctx context.Context, start, end time.Time) iter.Seq2[AttendanceEvent, error]
}

// Stores is the full set of typed operations, available both outside and
// inside a transaction.
type Stores interface {
	ClassStore
	StudentStore
	EmbeddingStore
	AttendanceStore
}

// RecordStore is the single gateway to persistence.
type RecordStore interface {
	Stores

	// WithTransaction runs fn in one storage transaction. It commits when fn
	// returns nil and rolls back when fn returns an error or panics.
	// Sequences obtained from tx must be consumed before fn returns.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error

	// ReadSnapshot runs fn read-only against one consistent snapshot, so
	// several reads in fn see the same committed state.
	ReadSnapshot(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error

	Close() error
}
