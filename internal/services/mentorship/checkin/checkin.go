// Package checkin handles weekly recovery check-ins: validation, the
// one-per-week insert, the token reward, the stability flag, and best-effort
// fog check generation.
package checkin

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
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/storage"
)

// Store is the persistence surface the check-in workflow needs.
type Store interface {
	storage.ProtocolStore
	storage.CheckinStore
	storage.FogCheckStore
}

// Service processes weekly check-ins.
type Service struct {
	store    Store
	feedback *feedback.Generator
	now      func() time.Time
}

// NewService builds the check-in service. The feedback generator may be
// disabled; fog checks are then skipped and responses carry none.
func NewService(store Store, gen *feedback.Generator) *Service {
	return &Service{
		store:    store,
		feedback: gen,
		now:      time.Now,
	}
}

// Input is one weekly self-report. Optional fields stay nil when the user
// did not answer them.
type Input struct {
	ProtocolID         string
	ProtocolCompleted  *bool
	OxygenConnected    *bool
	OxygenLevelCurrent *int
	Notes              string
}

// Result is a persisted check-in plus its derived extras.
type Result struct {
	Checkin  domain.RecoveryCheckin
	FogCheck *domain.FogCheck
	IsStable bool
}

// Submit validates and persists one weekly check-in for the caller. The
// insert, the protocol oxygen refresh, and the token reward commit together;
// a duplicate week is rejected with no partial write.
func (s *Service) Submit(ctx context.Context, userID string, input Input) (Result, error) {
	if input.OxygenLevelCurrent != nil {
		if err := domain.ValidateOxygenLevel(*input.OxygenLevelCurrent); err != nil {
			return Result{}, err
		}
	}

	protocol, err := s.store.GetProtocol(ctx, input.ProtocolID)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{}, apperrors.E(apperrors.KindNotFound, "Protocol not found.")
	}
	if err != nil {
		log.Printf("[CHECKIN] load protocol %s: %v", input.ProtocolID, err)
		return Result{}, fmt.Errorf("load protocol: %w", err)
	}
	if protocol.UserID != userID || !protocol.Active() {
		return Result{}, apperrors.E(apperrors.KindNotFound, "Protocol not found.")
	}

	checkinID, err := id.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate checkin id: %w", err)
	}
	txnID, err := id.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate transaction id: %w", err)
	}

	now := s.now().UTC()
	checkin := domain.RecoveryCheckin{
		ID:                 checkinID,
		UserID:             userID,
		ProtocolID:         protocol.ID,
		WeekOf:             domain.WeekStart(now),
		ProtocolCompleted:  input.ProtocolCompleted,
		OxygenConnected:    input.OxygenConnected,
		OxygenLevelCurrent: input.OxygenLevelCurrent,
		Notes:              input.Notes,
		CreatedAt:          now,
	}
	if _, err := s.store.CreateCheckin(ctx, checkin, storage.CheckinReward{
		TransactionID: txnID,
		Amount:        domain.RewardCheckin,
		Type:          domain.TxCheckinReward,
		Description:   "Weekly recovery check-in",
	}); errors.Is(err, storage.ErrAlreadyExists) {
		return Result{}, apperrors.E(apperrors.KindInvalidInput, "You already checked in this week.")
	} else if err != nil {
		log.Printf("[CHECKIN] create checkin user=%s protocol=%s: %v", userID, protocol.ID, err)
		return Result{}, fmt.Errorf("create checkin: %w", err)
	}

	history, err := s.store.ListCheckins(ctx, protocol.ID, 0)
	if err != nil {
		log.Printf("[CHECKIN] load history for %s: %v", protocol.ID, err)
		return Result{}, fmt.Errorf("load checkin history: %w", err)
	}

	result := Result{
		Checkin:  checkin,
		IsStable: domain.StableStreak(history),
	}
	result.FogCheck = s.generateFogCheck(ctx, userID, protocol, checkin, len(history))
	return result, nil
}

// generateFogCheck is best-effort: any failure is logged and the check-in
// response simply carries no fog check.
func (s *Service) generateFogCheck(ctx context.Context, userID string, protocol domain.CrisisProtocol, checkin domain.RecoveryCheckin, weekNumber int) *domain.FogCheck {
	if !s.feedback.Enabled() {
		return nil
	}
	fb, err := s.feedback.Generate(ctx, feedback.Context{
		CrisisType:         string(protocol.CrisisType),
		BurdenToCut:        protocol.BurdenToCut,
		OxygenSource:       protocol.OxygenSource,
		BurdenCut:          protocol.BurdenCut,
		OxygenConnected:    protocol.OxygenConnected,
		WeekNumber:         weekNumber,
		OxygenLevelCurrent: checkin.OxygenLevelCurrent,
		Notes:              checkin.Notes,
	})
	if err != nil {
		log.Printf("[CHECKIN] fog check generation for %s: %v", userID, err)
		return nil
	}

	checkType := domain.FogCheckWeekly
	if weekNumber <= 1 {
		checkType = domain.FogCheckWeek1
	}
	checkID, err := id.NewID()
	if err != nil {
		log.Printf("[CHECKIN] generate fog check id: %v", err)
		return nil
	}
	check := domain.FogCheck{
		ID:                checkID,
		UserID:            userID,
		Observation:       fb.Observation,
		StrategicQuestion: fb.StrategicQuestion,
		CheckType:         checkType,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.store.PutFogCheck(ctx, check); err != nil {
		log.Printf("[CHECKIN] persist fog check for %s: %v", userID, err)
		return nil
	}
	return &check
}
