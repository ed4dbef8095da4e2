package domain

import "time"

// TransactionType tags the business reason for a ledger entry.
type TransactionType string

const (
	TxProtocolCreated  TransactionType = "PROTOCOL_CREATED"
	TxCheckinReward    TransactionType = "CHECKIN_REWARD"
	TxTransitionReward TransactionType = "TRANSITION_REWARD"
	TxManualAdjustment TransactionType = "MANUAL_ADJUSTMENT"
)

// Fixed reward amounts credited by workflow side effects.
const (
	RewardProtocolCreated int64 = 25
	RewardCheckin         int64 = 50
	RewardTransition      int64 = 150
)

// TokenTransaction is one append-only reward ledger row. BalanceAfter is the
// user's balance snapshot taken in the same transaction that applied Amount.
type TokenTransaction struct {
	ID           string
	UserID       string
	Amount       int64
	Type         TransactionType
	Description  string
	BalanceAfter int64
	CreatedAt    time.Time
}
