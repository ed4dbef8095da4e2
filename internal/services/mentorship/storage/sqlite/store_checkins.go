package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ascentlabs/ascentledger/internal/services/mentorship/domain"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/storage"
)

// CreateCheckin inserts a weekly check-in, refreshes the protocol's oxygen
// levels, and appends the reward ledger row, all in one transaction. The
// UNIQUE(user, protocol, week) constraint rejects a second report for the
// same week; that surfaces as storage.ErrAlreadyExists with no partial write.
func (s *Store) CreateCheckin(ctx context.Context, checkin domain.RecoveryCheckin, reward storage.CheckinReward) (domain.TokenTransaction, error) {
	if err := ctx.Err(); err != nil {
		return domain.TokenTransaction{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.TokenTransaction{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(checkin.ID) == "" {
		return domain.TokenTransaction{}, fmt.Errorf("checkin id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TokenTransaction{}, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO recovery_checkins (
    id, user_id, protocol_id, week_of,
    protocol_completed, oxygen_connected, oxygen_level_current, notes, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		checkin.ID,
		checkin.UserID,
		checkin.ProtocolID,
		toMillis(checkin.WeekOf),
		nullBool(checkin.ProtocolCompleted),
		nullBool(checkin.OxygenConnected),
		nullInt(checkin.OxygenLevelCurrent),
		checkin.Notes,
		toMillis(checkin.CreatedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return domain.TokenTransaction{}, storage.ErrAlreadyExists
		}
		return domain.TokenTransaction{}, fmt.Errorf("insert checkin: %w", err)
	}

	if checkin.OxygenLevelCurrent != nil {
		// Start level is written once; the first reported oxygen wins.
		if _, err := tx.ExecContext(ctx, `
UPDATE crisis_protocols SET
    oxygen_level_current = ?,
    oxygen_level_start = COALESCE(oxygen_level_start, ?),
    updated_at = ?
WHERE id = ?
`,
			nullInt(checkin.OxygenLevelCurrent),
			nullInt(checkin.OxygenLevelCurrent),
			toMillis(checkin.CreatedAt),
			checkin.ProtocolID,
		); err != nil {
			return domain.TokenTransaction{}, fmt.Errorf("refresh protocol oxygen: %w", err)
		}
	}

	txn, err := appendTransactionTx(ctx, tx, domain.TokenTransaction{
		ID:          reward.TransactionID,
		UserID:      checkin.UserID,
		Amount:      reward.Amount,
		Type:        reward.Type,
		Description: reward.Description,
		CreatedAt:   checkin.CreatedAt,
	})
	if err != nil {
		return domain.TokenTransaction{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.TokenTransaction{}, fmt.Errorf("commit checkin: %w", err)
	}
	return txn, nil
}

// ListCheckins returns check-ins for a protocol, most recent week first.
func (s *Store) ListCheckins(ctx context.Context, protocolID string, limit int) ([]domain.RecoveryCheckin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 52
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, user_id, protocol_id, week_of,
       protocol_completed, oxygen_connected, oxygen_level_current, notes, created_at
FROM recovery_checkins
WHERE protocol_id = ?
ORDER BY week_of DESC
LIMIT ?
`, protocolID, limit)
	if err != nil {
		return nil, fmt.Errorf("list checkins: %w", err)
	}
	defer rows.Close()

	var checkins []domain.RecoveryCheckin
	for rows.Next() {
		checkin, err := scanCheckinRows(rows)
		if err != nil {
			return nil, err
		}
		checkins = append(checkins, checkin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkins: %w", err)
	}
	return checkins, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckinRows(row rowScanner) (domain.RecoveryCheckin, error) {
	var (
		checkin            domain.RecoveryCheckin
		weekOf             int64
		protocolCompleted  sql.NullBool
		oxygenConnected    sql.NullBool
		oxygenLevelCurrent sql.NullInt64
		createdAt          int64
	)
	if err := row.Scan(
		&checkin.ID,
		&checkin.UserID,
		&checkin.ProtocolID,
		&weekOf,
		&protocolCompleted,
		&oxygenConnected,
		&oxygenLevelCurrent,
		&checkin.Notes,
		&createdAt,
	); err != nil {
		return domain.RecoveryCheckin{}, fmt.Errorf("scan checkin: %w", err)
	}
	checkin.WeekOf = fromMillis(weekOf)
	checkin.ProtocolCompleted = boolPtr(protocolCompleted)
	checkin.OxygenConnected = boolPtr(oxygenConnected)
	checkin.OxygenLevelCurrent = intPtr(oxygenLevelCurrent)
	checkin.CreatedAt = fromMillis(createdAt)
	return checkin, nil
}
