package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/lib/pq"
)

// SQLSTATE codes mapped onto the store's error taxonomy.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeNotNullViolation    = "23502"
	codeInvalidText         = "22P02"
	codeStringTooLong       = "22001"
	codeAdminShutdown       = "57P01"
	codeCannotConnectNow    = "57P03"
	classConnectionFailure  = "08"
)

// classify wraps a driver error with the matching database sentinel so callers
// can branch with errors.Is. The original error stays in the chain.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, database.ErrNotFound)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, database.ErrUniqueConstraint, pqErr.Constraint)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, database.ErrReferentialViolation, pqErr.Detail)
		case codeCheckViolation, codeNotNullViolation, codeInvalidText, codeStringTooLong:
			return fmt.Errorf("%s: %w: %s", op, database.ErrValidation, pqErr.Message)
		case codeAdminShutdown, codeCannotConnectNow:
			return fmt.Errorf("%s: %w: %w", op, database.ErrStorageUnavailable, err)
		}
		if pqErr.Code.Class() == classConnectionFailure {
			return fmt.Errorf("%s: %w: %w", op, database.ErrStorageUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %w", op, database.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
