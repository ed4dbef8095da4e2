package sqlite

import (
	"context"
	"fmt"
	"time"
)

// CountEvents returns how many limiter events fall inside the window.
func (s *Store) CountEvents(ctx context.Context, userID string, action string, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var count int
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(*) FROM rate_limit_events
WHERE user_id = ? AND action = ? AND created_at >= ?
`, userID, action, toMillis(since))
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count rate limit events: %w", err)
	}
	return count, nil
}

// RecordEvent stores one limiter event and prunes entries older than a day.
func (s *Store) RecordEvent(ctx context.Context, userID string, action string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO rate_limit_events (user_id, action, created_at) VALUES (?, ?, ?)
`, userID, action, toMillis(at)); err != nil {
		return fmt.Errorf("record rate limit event: %w", err)
	}

	cutoff := at.Add(-24 * time.Hour)
	if _, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM rate_limit_events WHERE created_at < ?
`, toMillis(cutoff)); err != nil {
		return fmt.Errorf("prune rate limit events: %w", err)
	}
	return nil
}
