package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/ascentlabs/ascentledger/internal/services/mentorship/domain"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/storage"
)

// CompleteTransition performs the recovery exit as one transaction: close the
// protocol, flip the owner back to ASCENT with the time-lock cleared, and
// append the reward ledger row. A failure at any step leaves the user in
// RECOVERY with the protocol still active and no partial reward.
func (s *Store) CompleteTransition(ctx context.Context, input storage.TransitionInput) (domain.TokenTransaction, error) {
	if err := ctx.Err(); err != nil {
		return domain.TokenTransaction{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.TokenTransaction{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(input.UserID) == "" {
		return domain.TokenTransaction{}, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(input.ProtocolID) == "" {
		return domain.TokenTransaction{}, fmt.Errorf("protocol id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TokenTransaction{}, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
UPDATE crisis_protocols SET completed_at = ?, updated_at = ?
WHERE id = ? AND user_id = ? AND completed_at IS NULL
`, toMillis(input.CompletedAt), toMillis(input.CompletedAt), input.ProtocolID, input.UserID)
	if err != nil {
		return domain.TokenTransaction{}, fmt.Errorf("complete protocol: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.TokenTransaction{}, fmt.Errorf("complete protocol rows: %w", err)
	}
	if affected == 0 {
		return domain.TokenTransaction{}, storage.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE users SET mode = ?, recovery_started_at = NULL, updated_at = ?
WHERE id = ?
`, string(domain.ModeAscent), toMillis(input.CompletedAt), input.UserID); err != nil {
		return domain.TokenTransaction{}, fmt.Errorf("flip user mode: %w", err)
	}

	txn, err := appendTransactionTx(ctx, tx, domain.TokenTransaction{
		ID:          input.TransactionID,
		UserID:      input.UserID,
		Amount:      input.RewardAmount,
		Type:        domain.TxTransitionReward,
		Description: input.Description,
		CreatedAt:   input.CompletedAt,
	})
	if err != nil {
		return domain.TokenTransaction{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.TokenTransaction{}, fmt.Errorf("commit transition: %w", err)
	}
	return txn, nil
}
