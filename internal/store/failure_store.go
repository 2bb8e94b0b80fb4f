package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/everkeep/email-retry-system/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrConflict is returned when a conditional update matched no row: the
// record was resolved or retried by someone else since it was read.
var ErrConflict = errors.New("store: failure record changed since read")

const failureColumns = `id, email_type, provider, recipient, subject, error_message, retry_count, created_at, resolved_at`

// FailureRecord holds data for inserting a new email failure.
type FailureRecord struct {
	EmailType    domain.EmailType
	Provider     string
	Recipient    string
	Subject      string
	ErrorMessage string
}

// InsertFailure records a freshly failed send with a zero retry count.
func (s *PostgresStore) InsertFailure(ctx context.Context, rec FailureRecord) (*domain.EmailFailure, error) {
	id := uuid.NewString()

	var f domain.EmailFailure
	err := s.pool.QueryRow(ctx, `
		INSERT INTO email_failures (id, email_type, provider, recipient, subject, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+failureColumns+`
	`, id, rec.EmailType, rec.Provider, rec.Recipient, rec.Subject, rec.ErrorMessage).Scan(
		&f.ID, &f.EmailType, &f.Provider, &f.Recipient, &f.Subject,
		&f.ErrorMessage, &f.RetryCount, &f.CreatedAt, &f.ResolvedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting email failure: %w", err)
	}
	return &f, nil
}

// GetFailure returns a single failure record by ID, or nil when absent.
func (s *PostgresStore) GetFailure(ctx context.Context, id string) (*domain.EmailFailure, error) {
	var f domain.EmailFailure
	err := s.pool.QueryRow(ctx, `
		SELECT `+failureColumns+` FROM email_failures WHERE id = $1
	`, id).Scan(
		&f.ID, &f.EmailType, &f.Provider, &f.Recipient, &f.Subject,
		&f.ErrorMessage, &f.RetryCount, &f.CreatedAt, &f.ResolvedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying email failure: %w", err)
	}
	return &f, nil
}

// ListUnresolved returns outstanding failures, oldest first, optionally
// filtered to one email type. Resolved records are never returned, so they
// can never re-enter a retry run.
func (s *PostgresStore) ListUnresolved(ctx context.Context, emailType domain.EmailType) ([]domain.EmailFailure, error) {
	query := `SELECT ` + failureColumns + ` FROM email_failures WHERE resolved_at IS NULL`
	args := []interface{}{}

	if emailType != "" {
		query += " AND email_type = $1"
		args = append(args, emailType)
	}

	query += " ORDER BY created_at ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying unresolved failures: %w", err)
	}
	defer rows.Close()

	return scanFailures(rows)
}

// ListFailures returns failure records with optional filtering for the API.
func (s *PostgresStore) ListFailures(ctx context.Context, emailType domain.EmailType, resolved bool, limit int) ([]domain.EmailFailure, error) {
	query := `SELECT ` + failureColumns + ` FROM email_failures`
	args := []interface{}{}
	argIdx := 1
	conditions := []string{}

	if emailType != "" {
		conditions = append(conditions, fmt.Sprintf("email_type = $%d", argIdx))
		args = append(args, emailType)
		argIdx++
	}

	if resolved {
		conditions = append(conditions, "resolved_at IS NOT NULL")
	} else {
		conditions = append(conditions, "resolved_at IS NULL")
	}

	if len(conditions) > 0 {
		query += " WHERE "
		for i, c := range conditions {
			if i > 0 {
				query += " AND "
			}
			query += c
		}
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying email failures: %w", err)
	}
	defer rows.Close()

	return scanFailures(rows)
}

// MarkResolved sets resolved_at on a successful retry. The update is
// conditioned on the retry count observed when the record was read; if
// another run got there first, ErrConflict is returned and nothing changes.
func (s *PostgresStore) MarkResolved(ctx context.Context, id string, prevRetryCount int) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE email_failures SET resolved_at = NOW()
		WHERE id = $1 AND retry_count = $2 AND resolved_at IS NULL
	`, id, prevRetryCount)
	if err != nil {
		return fmt.Errorf("resolving email failure: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// RecordRetryFailure bumps the retry count by one and stores the latest
// provider error. Conditioned the same way as MarkResolved.
func (s *PostgresStore) RecordRetryFailure(ctx context.Context, id string, prevRetryCount int, errorMessage string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE email_failures SET retry_count = $2 + 1, error_message = $3
		WHERE id = $1 AND retry_count = $2 AND resolved_at IS NULL
	`, id, prevRetryCount, errorMessage)
	if err != nil {
		return fmt.Errorf("recording retry failure: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func scanFailures(rows pgx.Rows) ([]domain.EmailFailure, error) {
	var failures []domain.EmailFailure
	for rows.Next() {
		var f domain.EmailFailure
		err := rows.Scan(
			&f.ID, &f.EmailType, &f.Provider, &f.Recipient, &f.Subject,
			&f.ErrorMessage, &f.RetryCount, &f.CreatedAt, &f.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning email failure: %w", err)
		}
		failures = append(failures, f)
	}

	if failures == nil {
		failures = []domain.EmailFailure{}
	}

	return failures, nil
}
