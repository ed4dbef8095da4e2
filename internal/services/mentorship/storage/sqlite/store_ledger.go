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

// AppendTransaction appends a ledger row and bumps the owner's balance in a
// single transaction. The returned row carries the balance snapshot.
func (s *Store) AppendTransaction(ctx context.Context, txn domain.TokenTransaction) (domain.TokenTransaction, error) {
	if err := ctx.Err(); err != nil {
		return domain.TokenTransaction{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.TokenTransaction{}, fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TokenTransaction{}, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stored, err := appendTransactionTx(ctx, tx, txn)
	if err != nil {
		return domain.TokenTransaction{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.TokenTransaction{}, fmt.Errorf("commit ledger append: %w", err)
	}
	return stored, nil
}

// ListTransactions returns the most recent ledger rows for a user.
func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.TokenTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, user_id, amount, tx_type, description, balance_after, created_at
FROM token_transactions
WHERE user_id = ?
ORDER BY created_at DESC, rowid DESC
LIMIT ?
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []domain.TokenTransaction
	for rows.Next() {
		var (
			txn       domain.TokenTransaction
			txType    string
			createdAt int64
		)
		if err := rows.Scan(&txn.ID, &txn.UserID, &txn.Amount, &txType, &txn.Description, &txn.BalanceAfter, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txn.Type = domain.TransactionType(txType)
		txn.CreatedAt = fromMillis(createdAt)
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return transactions, nil
}

// appendTransactionTx applies one ledger row inside the caller's transaction:
// bump the balance, read the result, write the snapshot row.
func appendTransactionTx(ctx context.Context, tx *sql.Tx, txn domain.TokenTransaction) (domain.TokenTransaction, error) {
	if strings.TrimSpace(txn.ID) == "" {
		return domain.TokenTransaction{}, fmt.Errorf("transaction id is required")
	}
	if strings.TrimSpace(txn.UserID) == "" {
		return domain.TokenTransaction{}, fmt.Errorf("user id is required")
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}

	result, err := tx.ExecContext(ctx, `
UPDATE users SET token_balance = token_balance + ?, updated_at = ? WHERE id = ?
`, txn.Amount, toMillis(txn.CreatedAt), txn.UserID)
	if err != nil {
		return domain.TokenTransaction{}, fmt.Errorf("bump balance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.TokenTransaction{}, fmt.Errorf("bump balance rows: %w", err)
	}
	if affected == 0 {
		return domain.TokenTransaction{}, storage.ErrNotFound
	}

	var balance int64
	row := tx.QueryRowContext(ctx, "SELECT token_balance FROM users WHERE id = ?", txn.UserID)
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TokenTransaction{}, storage.ErrNotFound
		}
		return domain.TokenTransaction{}, fmt.Errorf("read balance: %w", err)
	}
	txn.BalanceAfter = balance

	if _, err := tx.ExecContext(ctx, `
INSERT INTO token_transactions (id, user_id, amount, tx_type, description, balance_after, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		txn.ID,
		txn.UserID,
		txn.Amount,
		string(txn.Type),
		txn.Description,
		txn.BalanceAfter,
		toMillis(txn.CreatedAt),
	); err != nil {
		return domain.TokenTransaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	return txn, nil
}
