package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with a unique constraint.
var ErrConflict = errors.New("conflict")

const (
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"
)

func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation, foreignKeyViolation:
			return ErrConflict
		}
	}
	return err
}
