package store

import (
	"context"
	"fmt"

	"github.com/everkeep/email-retry-system/internal/domain"
)

// FailureMetrics holds aggregated failure-record statistics.
type FailureMetrics struct {
	TotalFailures     int            `json:"total_failures"`
	Outstanding       int            `json:"outstanding"`
	Resolved          int            `json:"resolved"`
	Exhausted         int            `json:"exhausted"`
	AvgRetryCount     float64        `json:"avg_retry_count"`
	OutstandingByType map[string]int `json:"outstanding_by_type"`
}

// GetFailureMetrics returns aggregate statistics over the failure table.
// Exhaustion is a function of the retry policy, so the per-type limits are
// passed in rather than baked into SQL.
func (s *PostgresStore) GetFailureMetrics(ctx context.Context, limits map[domain.EmailType]int) (*FailureMetrics, error) {
	m := FailureMetrics{OutstandingByType: map[string]int{}}

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE resolved_at IS NULL) AS outstanding,
			COUNT(*) FILTER (WHERE resolved_at IS NOT NULL) AS resolved,
			COALESCE(AVG(retry_count), 0) AS avg_retry_count
		FROM email_failures
	`).Scan(&m.TotalFailures, &m.Outstanding, &m.Resolved, &m.AvgRetryCount)
	if err != nil {
		return nil, fmt.Errorf("querying failure metrics: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT email_type, COUNT(*)
		FROM email_failures
		WHERE resolved_at IS NULL
		GROUP BY email_type
	`)
	if err != nil {
		return nil, fmt.Errorf("querying outstanding by type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var emailType string
		var count int
		if err := rows.Scan(&emailType, &count); err != nil {
			return nil, fmt.Errorf("scanning outstanding by type: %w", err)
		}
		m.OutstandingByType[emailType] = count
	}

	for emailType, limit := range limits {
		var count int
		err := s.pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM email_failures
			WHERE resolved_at IS NULL AND email_type = $1 AND retry_count >= $2
		`, emailType, limit).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("querying exhausted count for %s: %w", emailType, err)
		}
		m.Exhausted += count
	}

	return &m, nil
}
