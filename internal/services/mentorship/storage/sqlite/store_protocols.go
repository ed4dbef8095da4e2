package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ascentlabs/ascentledger/internal/services/mentorship/domain"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/storage"
)

// CreateProtocol inserts a protocol and moves the owner into RECOVERY in one
// transaction. The partial unique index on (user_id) rejects a second active
// protocol; that surfaces as storage.ErrAlreadyExists.
func (s *Store) CreateProtocol(ctx context.Context, protocol domain.CrisisProtocol) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(protocol.ID) == "" {
		return fmt.Errorf("protocol id is required")
	}
	if strings.TrimSpace(protocol.UserID) == "" {
		return fmt.Errorf("user id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO crisis_protocols (
    id, user_id, crisis_type, burden_to_cut, oxygen_source,
    burden_cut, oxygen_connected, oxygen_level_start, oxygen_level_current,
    completed_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		protocol.ID,
		protocol.UserID,
		string(protocol.CrisisType),
		protocol.BurdenToCut,
		protocol.OxygenSource,
		protocol.BurdenCut,
		protocol.OxygenConnected,
		nullInt(protocol.OxygenLevelStart),
		nullInt(protocol.OxygenLevelCurrent),
		nullMillis(protocol.CompletedAt),
		toMillis(protocol.CreatedAt),
		toMillis(protocol.UpdatedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("insert protocol: %w", err)
	}

	// Opening an episode starts the time-lock only when one is not already
	// running; a re-entry into crisis keeps the original start date.
	if _, err := tx.ExecContext(ctx, `
UPDATE users SET
    mode = ?,
    recovery_started_at = COALESCE(recovery_started_at, ?),
    updated_at = ?
WHERE id = ?
`, string(domain.ModeRecovery), toMillis(protocol.CreatedAt), toMillis(protocol.CreatedAt), protocol.UserID); err != nil {
		return fmt.Errorf("mark user in recovery: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit protocol: %w", err)
	}
	return nil
}

// GetProtocol fetches a protocol by id.
func (s *Store) GetProtocol(ctx context.Context, protocolID string) (domain.CrisisProtocol, error) {
	if err := ctx.Err(); err != nil {
		return domain.CrisisProtocol{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.CrisisProtocol{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, selectProtocolSQL+" WHERE id = ?", protocolID)
	return scanProtocolRow(row)
}

// GetActiveProtocol fetches the single open protocol for a user.
func (s *Store) GetActiveProtocol(ctx context.Context, userID string) (domain.CrisisProtocol, error) {
	if err := ctx.Err(); err != nil {
		return domain.CrisisProtocol{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.CrisisProtocol{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, selectProtocolSQL+" WHERE user_id = ? AND completed_at IS NULL", userID)
	return scanProtocolRow(row)
}

// UpdateProtocol applies a partial update to an active protocol and returns
// the stored row.
func (s *Store) UpdateProtocol(ctx context.Context, protocolID string, update storage.ProtocolUpdate) (domain.CrisisProtocol, error) {
	if err := ctx.Err(); err != nil {
		return domain.CrisisProtocol{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.CrisisProtocol{}, fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE crisis_protocols SET
    burden_cut = COALESCE(?, burden_cut),
    oxygen_connected = COALESCE(?, oxygen_connected),
    oxygen_level_current = COALESCE(?, oxygen_level_current),
    oxygen_level_start = COALESCE(oxygen_level_start, ?),
    updated_at = ?
WHERE id = ? AND completed_at IS NULL
`,
		nullBool(update.BurdenCut),
		nullBool(update.OxygenConnected),
		nullInt(update.OxygenLevelCurrent),
		nullInt(update.OxygenLevelCurrent),
		toMillis(update.UpdatedAt),
		protocolID,
	)
	if err != nil {
		return domain.CrisisProtocol{}, fmt.Errorf("update protocol: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.CrisisProtocol{}, fmt.Errorf("update protocol rows: %w", err)
	}
	if affected == 0 {
		return domain.CrisisProtocol{}, storage.ErrNotFound
	}
	return s.GetProtocol(ctx, protocolID)
}

const selectProtocolSQL = `
SELECT id, user_id, crisis_type, burden_to_cut, oxygen_source,
       burden_cut, oxygen_connected, oxygen_level_start, oxygen_level_current,
       completed_at, created_at, updated_at
FROM crisis_protocols`

func scanProtocolRow(row *sql.Row) (domain.CrisisProtocol, error) {
	var (
		protocol           domain.CrisisProtocol
		crisisType         string
		oxygenLevelStart   sql.NullInt64
		oxygenLevelCurrent sql.NullInt64
		completedAt        sql.NullInt64
		createdAt          int64
		updatedAt          int64
	)
	err := row.Scan(
		&protocol.ID,
		&protocol.UserID,
		&crisisType,
		&protocol.BurdenToCut,
		&protocol.OxygenSource,
		&protocol.BurdenCut,
		&protocol.OxygenConnected,
		&oxygenLevelStart,
		&oxygenLevelCurrent,
		&completedAt,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CrisisProtocol{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.CrisisProtocol{}, fmt.Errorf("scan protocol: %w", err)
	}
	protocol.CrisisType = domain.CrisisType(crisisType)
	protocol.OxygenLevelStart = intPtr(oxygenLevelStart)
	protocol.OxygenLevelCurrent = intPtr(oxygenLevelCurrent)
	protocol.CompletedAt = millisPtr(completedAt)
	protocol.CreatedAt = fromMillis(createdAt)
	protocol.UpdatedAt = fromMillis(updatedAt)
	return protocol, nil
}
