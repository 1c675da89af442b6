package postgres

import (
	"errors"
	"fmt"

	"fila/ticket-service/internal/store"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// mapPgError translates PostgreSQL error codes into the store's sentinel
// errors. Anything unrecognized is returned as-is.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case "queues_company_id_prefix_key":
			return store.ErrDuplicatePrefix
		case "users_email_key":
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("unique violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: %s", store.ErrQueueNotFound, pgErr.Detail)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		// No automatic retry; callers surface this as an internal error.
		return fmt.Errorf("transaction conflict: %w", err)

	default:
		return err
	}
}
