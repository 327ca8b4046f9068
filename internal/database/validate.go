package database

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// describeValidation flattens validator errors into one readable message.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "gtefield":
			parts = append(parts, fe.Field()+" must not be before "+fe.Param())
		case "datetime":
			parts = append(parts, fe.Field()+" must be formatted as HH:MM")
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// ValidateClass trims and checks a class before it is written.
func ValidateClass(c *Class) error {
	c.Name = strings.TrimSpace(c.Name)
	c.RoomNumber = strings.TrimSpace(c.RoomNumber)
	if c.MeetingTime != "" {
		if t, err := NormalizeMeetingTime(c.MeetingTime); err == nil {
			c.MeetingTime = t
		}
	}
	c.StartDate = DateOf(c.StartDate)
	c.EndDate = DateOf(c.EndDate)
	if err := validate.Struct(c); err != nil {
		return Invalid("class: %s", describeValidation(err))
	}
	return nil
}

// ValidateStudent trims and checks a student before it is written.
func ValidateStudent(s *Student) error {
	s.Name = strings.TrimSpace(s.Name)
	if err := validate.Struct(s); err != nil {
		return Invalid("student: %s", describeValidation(err))
	}
	return nil
}

// ValidateVector checks an embedding against the configured dimension.
func ValidateVector(vector []float32, dim int) error {
	if len(vector) != dim {
		return fmt.Errorf("%w: got %d values, want %d", ErrDimensionMismatch, len(vector), dim)
	}
	for i, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Invalid("embedding value %d is not finite", i)
		}
	}
	return nil
}

// ValidateStatus rejects unknown attendance statuses.
func ValidateStatus(s Status) error {
	if !s.Valid() {
		return Invalid("invalid status %q, must be Present or Absent", s)
	}
	return nil
}
