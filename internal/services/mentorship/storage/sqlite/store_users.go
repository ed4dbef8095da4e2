package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ascentlabs/ascentledger/internal/services/mentorship/domain"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/storage"
)

// PutUser inserts or replaces a user row.
func (s *Store) PutUser(ctx context.Context, user domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(user.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	if !user.Mode.Valid() {
		return fmt.Errorf("user mode %q is invalid", user.Mode)
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, mode, recovery_started_at, token_balance, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    mode = excluded.mode,
    recovery_started_at = excluded.recovery_started_at,
    token_balance = excluded.token_balance,
    updated_at = excluded.updated_at
`,
		user.ID,
		string(user.Mode),
		nullMillis(user.RecoveryStartedAt),
		user.TokenBalance,
		toMillis(user.CreatedAt),
		toMillis(user.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// GetUser fetches a user record by ID.
func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.User{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, mode, recovery_started_at, token_balance, created_at, updated_at
FROM users WHERE id = ?
`, userID)
	return scanUserRow(row)
}

// EnsureUser provisions a default ASCENT account when the id is unseen.
func (s *Store) EnsureUser(ctx context.Context, userID string, now time.Time) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.User{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.User{}, fmt.Errorf("user id is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, mode, recovery_started_at, token_balance, created_at, updated_at)
VALUES (?, ?, NULL, 0, ?, ?)
ON CONFLICT (id) DO NOTHING
`, userID, string(domain.ModeAscent), toMillis(now), toMillis(now)); err != nil {
		return domain.User{}, fmt.Errorf("ensure user: %w", err)
	}
	return s.GetUser(ctx, userID)
}

func scanUserRow(row *sql.Row) (domain.User, error) {
	var (
		user              domain.User
		mode              string
		recoveryStartedAt sql.NullInt64
		createdAt         int64
		updatedAt         int64
	)
	err := row.Scan(&user.ID, &mode, &recoveryStartedAt, &user.TokenBalance, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("scan user: %w", err)
	}
	user.Mode = domain.Mode(mode)
	user.RecoveryStartedAt = millisPtr(recoveryStartedAt)
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return user, nil
}
