package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/attendance/internal/database"
)

const classColumns = `id, name, room_number, description, start_date, end_date, "time", created_at`

// normalizeClassDates strips the driver's zone from DATE columns.
func normalizeClassDates(c *database.Class) {
	c.StartDate = database.DateOf(c.StartDate)
	c.EndDate = database.DateOf(c.EndDate)
}

// CreateClass inserts a class and sets its ID.
func (s *stores) CreateClass(ctx context.Context, c *database.Class) error {
	if err := database.ValidateClass(c); err != nil {
		return err
	}

	err := s.q.QueryRowxContext(ctx, `
		INSERT INTO class (name, room_number, description, start_date, end_date, "time")
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, c.Name, c.RoomNumber, c.Description,
		c.StartDate.Format(database.DateLayout), c.EndDate.Format(database.DateLayout), c.MeetingTime,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return classify("insert class", err)
	}
	return nil
}

// GetClass retrieves a class by ID.
func (s *stores) GetClass(ctx context.Context, id int64) (*database.Class, error) {
	var c database.Class
	if err := s.q.GetContext(ctx, &c, "SELECT "+classColumns+" FROM class WHERE id = $1", id); err != nil {
		return nil, classify(fmt.Sprintf("get class %d", id), err)
	}
	normalizeClassDates(&c)
	return &c, nil
}

// ListClasses returns all classes ordered by ID.
func (s *stores) ListClasses(ctx context.Context) ([]database.Class, error) {
	var classes []database.Class
	if err := s.q.SelectContext(ctx, &classes, "SELECT "+classColumns+" FROM class ORDER BY id"); err != nil {
		return nil, classify("list classes", err)
	}
	for i := range classes {
		normalizeClassDates(&classes[i])
	}
	return classes, nil
}

// UpdateClass rewrites a single class row by primary key.
func (s *stores) UpdateClass(ctx context.Context, c *database.Class) error {
	if err := database.ValidateClass(c); err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE class
		SET name = $2, room_number = $3, description = $4, start_date = $5, end_date = $6, "time" = $7
		WHERE id = $1
	`, c.ID, c.Name, c.RoomNumber, c.Description,
		c.StartDate.Format(database.DateLayout), c.EndDate.Format(database.DateLayout), c.MeetingTime)
	if err != nil {
		return classify(fmt.Sprintf("update class %d", c.ID), err)
	}
	return expectAffected(res, fmt.Sprintf("update class %d", c.ID))
}

// DeleteClass removes a class and its enrollments. Attendance history blocks deletion.
func (s *stores) DeleteClass(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM class WHERE id = $1", id)
	if err != nil {
		return classify(fmt.Sprintf("delete class %d", id), err)
	}
	return expectAffected(res, fmt.Sprintf("delete class %d", id))
}
