package database

import (
	"context"
	"fmt"
	"iter"
)

// ReplaceEmbeddings swaps all embeddings of a student for vectors in one transaction.
func ReplaceEmbeddings(ctx context.Context, rs RecordStore, studentID int64, vectors [][]float32) ([]Embedding, error) {
	for _, v := range vectors {
		if err := ValidateVector(v, rs.Dim()); err != nil {
			return nil, err
		}
	}

	var out []Embedding
	err := rs.WithTransaction(ctx, func(ctx context.Context, tx Stores) error {
		if _, err := tx.GetStudent(ctx, studentID); err != nil {
			return err
		}
		if _, err := tx.DeleteEmbeddings(ctx, studentID); err != nil {
			return err
		}
		out = make([]Embedding, 0, len(vectors))
		for _, v := range vectors {
			emb, err := tx.AddEmbedding(ctx, studentID, v)
			if err != nil {
				return err
			}
			out = append(out, *emb)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace embeddings for student %d: %w", studentID, err)
	}
	return out, nil
}

// CandidatePool loads the embeddings of every student enrolled in a class.
// The roster and the embeddings are read from the same snapshot.
func CandidatePool(ctx context.Context, rs RecordStore, classID int64) ([]Embedding, error) {
	var embeddings []Embedding
	err := rs.ReadSnapshot(ctx, func(ctx context.Context, tx Stores) error {
		roster, err := tx.ListEnrolled(ctx, classID)
		if err != nil {
			return fmt.Errorf("load roster for class %d: %w", classID, err)
		}
		if len(roster) == 0 {
			return nil
		}
		ids := make([]int64, len(roster))
		for i := range roster {
			ids[i] = roster[i].ID
		}
		embeddings, err = tx.ListEmbeddings(ctx, ids)
		if err != nil {
			return fmt.Errorf("load embeddings for class %d: %w", classID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return embeddings, nil
}

// Collect drains an attendance sequence into a slice, stopping at the first error.
func Collect(seq iter.Seq2[AttendanceEvent, error]) ([]AttendanceEvent, error) {
	var events []AttendanceEvent
	for ev, err := range seq {
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
