// Package storage defines persistence contracts for mentorship state.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ascentlabs/ascentledger/internal/services/mentorship/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
var ErrAlreadyExists = errors.New("record already exists")

// UserStore persists mentorship user accounts.
type UserStore interface {
	PutUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, userID string) (domain.User, error)
	// EnsureUser provisions a default ASCENT account on first sight of an
	// authenticated user id and returns the stored row either way.
	EnsureUser(ctx context.Context, userID string, now time.Time) (domain.User, error)
}

// ProtocolUpdate carries the mutable protocol fields for a patch. Nil fields
// are left unchanged.
type ProtocolUpdate struct {
	BurdenCut          *bool
	OxygenConnected    *bool
	OxygenLevelCurrent *int
	UpdatedAt          time.Time
}

// ProtocolStore persists crisis protocols. At most one active protocol per
// user is enforced by the schema; CreateProtocol returns ErrAlreadyExists
// when an active protocol is already open.
type ProtocolStore interface {
	// CreateProtocol inserts the protocol and, in the same transaction, moves
	// the owner into RECOVERY and sets the recovery time-lock when absent.
	CreateProtocol(ctx context.Context, protocol domain.CrisisProtocol) error
	GetProtocol(ctx context.Context, protocolID string) (domain.CrisisProtocol, error)
	GetActiveProtocol(ctx context.Context, userID string) (domain.CrisisProtocol, error)
	UpdateProtocol(ctx context.Context, protocolID string, update ProtocolUpdate) (domain.CrisisProtocol, error)
}

// CheckinReward couples a check-in insert with its ledger side effects.
type CheckinReward struct {
	TransactionID string
	Amount        int64
	Type          domain.TransactionType
	Description   string
}

// CheckinStore persists weekly recovery check-ins. One check-in per
// (user, protocol, week) is enforced by the schema; CreateCheckin returns
// ErrAlreadyExists when the week is already reported.
type CheckinStore interface {
	// CreateCheckin atomically inserts the check-in, refreshes the protocol's
	// oxygen levels (start level only when unset), and appends the reward
	// ledger row.
	CreateCheckin(ctx context.Context, checkin domain.RecoveryCheckin, reward CheckinReward) (domain.TokenTransaction, error)
	ListCheckins(ctx context.Context, protocolID string, limit int) ([]domain.RecoveryCheckin, error)
}

// FogCheckStore persists immutable AI feedback artifacts.
type FogCheckStore interface {
	PutFogCheck(ctx context.Context, check domain.FogCheck) error
	ListFogChecks(ctx context.Context, userID string, limit int) ([]domain.FogCheck, error)
}

// LedgerStore appends reward transactions and reads ledger history. Appends
// bump the user's balance and snapshot it on the row in one transaction.
type LedgerStore interface {
	AppendTransaction(ctx context.Context, txn domain.TokenTransaction) (domain.TokenTransaction, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]domain.TokenTransaction, error)
}

// TransitionInput names the rows touched by a recovery exit.
type TransitionInput struct {
	UserID        string
	ProtocolID    string
	CompletedAt   time.Time
	TransactionID string
	RewardAmount  int64
	Description   string
}

// TransitionStore performs the atomic recovery exit: protocol completion,
// mode flip with time-lock clear, and reward append commit together or not
// at all.
type TransitionStore interface {
	CompleteTransition(ctx context.Context, input TransitionInput) (domain.TokenTransaction, error)
}

// RateLimitStore backs the fixed-window request limiter.
type RateLimitStore interface {
	CountEvents(ctx context.Context, userID string, action string, since time.Time) (int, error)
	RecordEvent(ctx context.Context, userID string, action string, at time.Time) error
}
