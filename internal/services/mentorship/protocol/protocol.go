// Package protocol manages crisis protocols: opening a recovery episode,
// reading the active protocol with its check-in history, and patching
// commitments.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ascentlabs/ascentledger/internal/platform/apperrors"
	"github.com/ascentlabs/ascentledger/internal/platform/id"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/domain"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/feedback"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/ratelimit"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/storage"
)

// Rate limit for opening protocols.
const (
	CreateLimit  = 5
	CreateWindow = time.Hour
	createAction = "protocol.create"
)

// Store is the persistence surface protocol operations need.
type Store interface {
	storage.ProtocolStore
	storage.CheckinStore
	storage.LedgerStore
	storage.FogCheckStore
}

// Service manages crisis protocols.
type Service struct {
	store    Store
	limiter  *ratelimit.Limiter
	feedback *feedback.Generator
	now      func() time.Time
}

// NewService builds the protocol service.
func NewService(store Store, limiter *ratelimit.Limiter, gen *feedback.Generator) *Service {
	return &Service{
		store:    store,
		limiter:  limiter,
		feedback: gen,
		now:      time.Now,
	}
}

// NewLimiter builds the protocol-creation limiter over a rate limit store.
func NewLimiter(store storage.RateLimitStore) *ratelimit.Limiter {
	return ratelimit.New(store, CreateLimit, CreateWindow)
}

// CreateResult is a freshly opened protocol and its reward.
type CreateResult struct {
	Protocol      domain.CrisisProtocol
	TokensAwarded int64
	NewBalance    int64
	FogCheck      *domain.FogCheck
}

// ProtocolView is the active protocol with its check-in history, most recent
// week first.
type ProtocolView struct {
	Protocol domain.CrisisProtocol
	Checkins []domain.RecoveryCheckin
}

// Create opens a crisis episode for the caller: the protocol row, the mode
// flip into RECOVERY, and the time-lock are written together; the creation
// reward and the crisis fog check follow.
func (s *Service) Create(ctx context.Context, userID string, input domain.NewProtocolInput) (CreateResult, error) {
	res, err := s.limiter.Allow(ctx, userID, createAction)
	if err != nil {
		log.Printf("[PROTOCOL] rate limit check for %s: %v", userID, err)
		return CreateResult{}, fmt.Errorf("rate limit check: %w", err)
	}
	if !res.Allowed {
		return CreateResult{}, apperrors.E(apperrors.KindRateLimited, "Too many protocols created. Try again later.")
	}

	if err := input.Validate(); err != nil {
		return CreateResult{}, err
	}

	protocolID, err := id.NewID()
	if err != nil {
		return CreateResult{}, fmt.Errorf("generate protocol id: %w", err)
	}
	now := s.now().UTC()
	protocol := domain.CrisisProtocol{
		ID:                 protocolID,
		UserID:             userID,
		CrisisType:         input.CrisisType,
		BurdenToCut:        input.BurdenToCut,
		OxygenSource:       input.OxygenSource,
		OxygenLevelStart:   input.OxygenLevelStart,
		OxygenLevelCurrent: input.OxygenLevelStart,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.CreateProtocol(ctx, protocol); errors.Is(err, storage.ErrAlreadyExists) {
		return CreateResult{}, apperrors.E(apperrors.KindInvalidInput, "You already have an active recovery protocol.")
	} else if err != nil {
		log.Printf("[PROTOCOL] create protocol for %s: %v", userID, err)
		return CreateResult{}, fmt.Errorf("create protocol: %w", err)
	}

	txnID, err := id.NewID()
	if err != nil {
		return CreateResult{}, fmt.Errorf("generate transaction id: %w", err)
	}
	txn, err := s.store.AppendTransaction(ctx, domain.TokenTransaction{
		ID:          txnID,
		UserID:      userID,
		Amount:      domain.RewardProtocolCreated,
		Type:        domain.TxProtocolCreated,
		Description: "Opened a crisis recovery protocol",
		CreatedAt:   now,
	})
	if err != nil {
		log.Printf("[PROTOCOL] append creation reward for %s: %v", userID, err)
		return CreateResult{}, fmt.Errorf("append creation reward: %w", err)
	}

	result := CreateResult{
		Protocol:      protocol,
		TokensAwarded: domain.RewardProtocolCreated,
		NewBalance:    txn.BalanceAfter,
	}
	result.FogCheck = s.generateCrisisFogCheck(ctx, userID, protocol)
	return result, nil
}

// GetActive returns the caller's active protocol with its check-ins.
func (s *Service) GetActive(ctx context.Context, userID string) (ProtocolView, error) {
	protocol, err := s.store.GetActiveProtocol(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return ProtocolView{}, apperrors.E(apperrors.KindNotFound, "No active recovery protocol.")
	}
	if err != nil {
		log.Printf("[PROTOCOL] load active protocol for %s: %v", userID, err)
		return ProtocolView{}, fmt.Errorf("load active protocol: %w", err)
	}
	checkins, err := s.store.ListCheckins(ctx, protocol.ID, 0)
	if err != nil {
		log.Printf("[PROTOCOL] load checkins for %s: %v", protocol.ID, err)
		return ProtocolView{}, fmt.Errorf("load checkins: %w", err)
	}
	return ProtocolView{Protocol: protocol, Checkins: checkins}, nil
}

// PatchInput carries the mutable protocol fields. Nil fields stay unchanged.
type PatchInput struct {
	ProtocolID         string
	BurdenCut          *bool
	OxygenConnected    *bool
	OxygenLevelCurrent *int
}

// Patch updates commitments and oxygen levels on the caller's own active
// protocol.
func (s *Service) Patch(ctx context.Context, userID string, input PatchInput) (domain.CrisisProtocol, error) {
	if input.OxygenLevelCurrent != nil {
		if err := domain.ValidateOxygenLevel(*input.OxygenLevelCurrent); err != nil {
			return domain.CrisisProtocol{}, err
		}
	}

	protocol, err := s.store.GetProtocol(ctx, input.ProtocolID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.CrisisProtocol{}, apperrors.E(apperrors.KindNotFound, "Protocol not found.")
	}
	if err != nil {
		log.Printf("[PROTOCOL] load protocol %s: %v", input.ProtocolID, err)
		return domain.CrisisProtocol{}, fmt.Errorf("load protocol: %w", err)
	}
	if protocol.UserID != userID || !protocol.Active() {
		return domain.CrisisProtocol{}, apperrors.E(apperrors.KindNotFound, "Protocol not found.")
	}

	updated, err := s.store.UpdateProtocol(ctx, protocol.ID, storage.ProtocolUpdate{
		BurdenCut:          input.BurdenCut,
		OxygenConnected:    input.OxygenConnected,
		OxygenLevelCurrent: input.OxygenLevelCurrent,
		UpdatedAt:          s.now().UTC(),
	})
	if errors.Is(err, storage.ErrNotFound) {
		return domain.CrisisProtocol{}, apperrors.E(apperrors.KindNotFound, "Protocol not found.")
	}
	if err != nil {
		log.Printf("[PROTOCOL] update protocol %s: %v", protocol.ID, err)
		return domain.CrisisProtocol{}, fmt.Errorf("update protocol: %w", err)
	}
	return updated, nil
}

// generateCrisisFogCheck is best-effort: a failure is logged and creation
// stays successful.
func (s *Service) generateCrisisFogCheck(ctx context.Context, userID string, protocol domain.CrisisProtocol) *domain.FogCheck {
	if !s.feedback.Enabled() {
		return nil
	}
	fb, err := s.feedback.Generate(ctx, feedback.Context{
		CrisisType:         string(protocol.CrisisType),
		BurdenToCut:        protocol.BurdenToCut,
		OxygenSource:       protocol.OxygenSource,
		OxygenLevelCurrent: protocol.OxygenLevelStart,
	})
	if err != nil {
		log.Printf("[PROTOCOL] fog check generation for %s: %v", userID, err)
		return nil
	}
	checkID, err := id.NewID()
	if err != nil {
		log.Printf("[PROTOCOL] generate fog check id: %v", err)
		return nil
	}
	check := domain.FogCheck{
		ID:                checkID,
		UserID:            userID,
		Observation:       fb.Observation,
		StrategicQuestion: fb.StrategicQuestion,
		CheckType:         domain.FogCheckCrisis,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.store.PutFogCheck(ctx, check); err != nil {
		log.Printf("[PROTOCOL] persist fog check for %s: %v", userID, err)
		return nil
	}
	return &check
}
