package recovery

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ascentlabs/ascentledger/internal/platform/apperrors"
	"github.com/ascentlabs/ascentledger/internal/platform/id"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/domain"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/feedback"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/storage"
)

// TransitionResult reports a successful recovery exit.
type TransitionResult struct {
	TokensAwarded int64
	NewBalance    int64
	Message       string
}

// ExecuteTransition moves a user from RECOVERY back to ASCENT. Ownership and
// eligibility are re-checked server-side; a stale client decision is never
// trusted. Protocol completion, mode flip, and the reward append commit in
// one storage transaction.
func (s *Service) ExecuteTransition(ctx context.Context, userID string, protocolID string) (TransitionResult, error) {
	protocol, err := s.store.GetProtocol(ctx, protocolID)
	if errors.Is(err, storage.ErrNotFound) {
		return TransitionResult{}, apperrors.E(apperrors.KindNotFound, "Protocol not found.")
	}
	if err != nil {
		log.Printf("[TRANSITION] load protocol %s: %v", protocolID, err)
		return TransitionResult{}, fmt.Errorf("load protocol: %w", err)
	}
	if protocol.UserID != userID || !protocol.Active() {
		// Same response as a missing protocol; existence of another user's
		// data is never disclosed.
		return TransitionResult{}, apperrors.E(apperrors.KindNotFound, "Protocol not found.")
	}

	eligibility, err := s.CheckEligibility(ctx, userID)
	if err != nil {
		log.Printf("[TRANSITION] eligibility check for %s: %v", userID, err)
		return TransitionResult{}, fmt.Errorf("check eligibility: %w", err)
	}
	if !eligibility.IsEligible {
		return TransitionResult{}, apperrors.E(apperrors.KindInvalidInput, eligibility.Message)
	}

	txnID, err := id.NewID()
	if err != nil {
		log.Printf("[TRANSITION] generate transaction id: %v", err)
		return TransitionResult{}, fmt.Errorf("generate transaction id: %w", err)
	}

	now := s.now().UTC()
	txn, err := s.store.CompleteTransition(ctx, storage.TransitionInput{
		UserID:        userID,
		ProtocolID:    protocolID,
		CompletedAt:   now,
		TransactionID: txnID,
		RewardAmount:  domain.RewardTransition,
		Description:   "Completed recovery and returned to Ascent mode",
	})
	if err != nil {
		log.Printf("[TRANSITION] complete transition user=%s protocol=%s: %v", userID, protocolID, err)
		return TransitionResult{}, fmt.Errorf("complete transition: %w", err)
	}

	s.generateTransitionFogCheck(ctx, userID, protocol)

	return TransitionResult{
		TokensAwarded: domain.RewardTransition,
		NewBalance:    txn.BalanceAfter,
		Message:       "Welcome back to Ascent mode. The climb continues.",
	}, nil
}

// generateTransitionFogCheck is best-effort: a failure is logged and the
// transition stays successful.
func (s *Service) generateTransitionFogCheck(ctx context.Context, userID string, protocol domain.CrisisProtocol) {
	if !s.feedback.Enabled() {
		return
	}
	fb, err := s.feedback.Generate(ctx, feedback.Context{
		CrisisType:      string(protocol.CrisisType),
		BurdenToCut:     protocol.BurdenToCut,
		OxygenSource:    protocol.OxygenSource,
		BurdenCut:       protocol.BurdenCut,
		OxygenConnected: protocol.OxygenConnected,
	})
	if err != nil {
		log.Printf("[TRANSITION] fog check generation for %s: %v", userID, err)
		return
	}
	checkID, err := id.NewID()
	if err != nil {
		log.Printf("[TRANSITION] generate fog check id: %v", err)
		return
	}
	check := domain.FogCheck{
		ID:                checkID,
		UserID:            userID,
		Observation:       fb.Observation,
		StrategicQuestion: fb.StrategicQuestion,
		CheckType:         domain.FogCheckTransition,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.store.PutFogCheck(ctx, check); err != nil {
		log.Printf("[TRANSITION] persist fog check for %s: %v", userID, err)
	}
}
