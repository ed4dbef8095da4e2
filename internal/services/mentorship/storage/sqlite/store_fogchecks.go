package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/ascentlabs/ascentledger/internal/services/mentorship/domain"
)

// PutFogCheck persists one immutable AI feedback record.
func (s *Store) PutFogCheck(ctx context.Context, check domain.FogCheck) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(check.ID) == "" {
		return fmt.Errorf("fog check id is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO fog_checks (id, user_id, observation, strategic_question, check_type, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`,
		check.ID,
		check.UserID,
		check.Observation,
		check.StrategicQuestion,
		string(check.CheckType),
		toMillis(check.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert fog check: %w", err)
	}
	return nil
}

// ListFogChecks returns the most recent fog checks for a user.
func (s *Store) ListFogChecks(ctx context.Context, userID string, limit int) ([]domain.FogCheck, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, user_id, observation, strategic_question, check_type, created_at
FROM fog_checks
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list fog checks: %w", err)
	}
	defer rows.Close()

	var checks []domain.FogCheck
	for rows.Next() {
		var (
			check     domain.FogCheck
			checkType string
			createdAt int64
		)
		if err := rows.Scan(&check.ID, &check.UserID, &check.Observation, &check.StrategicQuestion, &checkType, &createdAt); err != nil {
			return nil, fmt.Errorf("scan fog check: %w", err)
		}
		check.CheckType = domain.FogCheckType(checkType)
		check.CreatedAt = fromMillis(createdAt)
		checks = append(checks, check)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fog checks: %w", err)
	}
	return checks, nil
}
