// Package ledger reads the token reward ledger: the live balance and recent
// transactions for a user.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ascentlabs/ascentledger/internal/platform/id"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/domain"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/storage"
)

// Store is the persistence surface the ledger needs.
type Store interface {
	storage.UserStore
	storage.LedgerStore
}

// Service reads and adjusts the token ledger.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService builds the ledger service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Summary is a user's balance with their most recent transactions.
type Summary struct {
	Balance      int64
	Transactions []domain.TokenTransaction
}

// Summarize returns the caller's balance and recent transactions, newest
// first. An unknown user has a zero balance and no history.
func (s *Service) Summarize(ctx context.Context, userID string, limit int) (Summary, error) {
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return Summary{}, nil
	}
	if err != nil {
		return Summary{}, fmt.Errorf("load user: %w", err)
	}
	transactions, err := s.store.ListTransactions(ctx, userID, limit)
	if err != nil {
		return Summary{}, fmt.Errorf("list transactions: %w", err)
	}
	return Summary{Balance: user.TokenBalance, Transactions: transactions}, nil
}

// Adjust appends a manual signed adjustment and returns the resulting row.
func (s *Service) Adjust(ctx context.Context, userID string, amount int64, description string) (domain.TokenTransaction, error) {
	txnID, err := id.NewID()
	if err != nil {
		return domain.TokenTransaction{}, fmt.Errorf("generate transaction id: %w", err)
	}
	txn, err := s.store.AppendTransaction(ctx, domain.TokenTransaction{
		ID:          txnID,
		UserID:      userID,
		Amount:      amount,
		Type:        domain.TxManualAdjustment,
		Description: description,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return domain.TokenTransaction{}, fmt.Errorf("append adjustment: %w", err)
	}
	return txn, nil
}
