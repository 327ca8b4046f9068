package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/pgvector/pgvector-go"
)

type embeddingRow struct {
	ID        int64           `db:"id"`
	StudentID int64           `db:"student_id"`
	Vector    pgvector.Vector `db:"vector"`
	CreatedAt time.Time       `db:"created_at"`
}

func (r *embeddingRow) toEmbedding() database.Embedding {
	return database.Embedding{
		ID:        r.ID,
		StudentID: r.StudentID,
		Vector:    r.Vector.Slice(),
		CreatedAt: r.CreatedAt,
	}
}

// AddEmbedding appends an embedding for a student.
// pgvector stores float4 values, so float32 input round-trips exactly.
func (s *stores) AddEmbedding(ctx context.Context, studentID int64, vector []float32) (*database.Embedding, error) {
	if err := database.ValidateVector(vector, s.dim); err != nil {
		return nil, err
	}

	stored := make([]float32, len(vector))
	copy(stored, vector)

	emb := database.Embedding{StudentID: studentID, Vector: stored}
	err := s.q.QueryRowxContext(ctx, `
		INSERT INTO embedding (student_id, vector, dim) VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, studentID, pgvector.NewVector(stored), len(stored)).Scan(&emb.ID, &emb.CreatedAt)
	if err != nil {
		return nil, classify(fmt.Sprintf("insert embedding for student %d", studentID), err)
	}
	return &emb, nil
}

// ListEmbeddings returns every embedding owned by the given students.
func (s *stores) ListEmbeddings(ctx context.Context, studentIDs []int64) ([]database.Embedding, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}

	var rows []embeddingRow
	err := s.q.SelectContext(ctx, &rows, `
		SELECT id, student_id, vector, created_at
		FROM embedding
		WHERE student_id = ANY($1)
		ORDER BY student_id, id
	`, studentIDArray(studentIDs))
	if err != nil {
		return nil, classify("list embeddings", err)
	}

	out := make([]database.Embedding, len(rows))
	for i := range rows {
		out[i] = rows[i].toEmbedding()
	}
	return out, nil
}

// CountEmbeddings returns how many embeddings a student owns.
func (s *stores) CountEmbeddings(ctx context.Context, studentID int64) (int, error) {
	var count int
	if err := s.q.GetContext(ctx, &count, "SELECT COUNT(*) FROM embedding WHERE student_id = $1", studentID); err != nil {
		return 0, classify(fmt.Sprintf("count embeddings of student %d", studentID), err)
	}
	return count, nil
}

// DeleteEmbeddings removes all embeddings of a student.
func (s *stores) DeleteEmbeddings(ctx context.Context, studentID int64) (int, error) {
	ok, err := exists(ctx, s.q, "student", studentID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("student %d: %w", studentID, database.ErrNotFound)
	}

	res, err := s.q.ExecContext(ctx, "DELETE FROM embedding WHERE student_id = $1", studentID)
	if err != nil {
		return 0, classify(fmt.Sprintf("delete embeddings of student %d", studentID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
