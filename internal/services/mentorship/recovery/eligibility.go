package recovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/ascentlabs/ascentledger/internal/services/mentorship/domain"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/storage"
)

// Eligibility is the full result of a transition eligibility check. Blockers
// are independently computed and may co-occur.
type Eligibility struct {
	IsEligible         bool
	WeeksStable        int
	CurrentOxygenLevel int
	DaysInRecovery     int
	Has14DaysPassed    bool
	Message            string
	Blockers           []string
	ProtocolID         string
}

// Messages for the two eligibility outcomes.
const (
	eligibleMessage = "You are ready to transition back to Ascent mode. The climb continues."
	blockedMessage  = "Not yet. Recovery is not a detour, it is part of the route."
	noProtocolBlock = "No active recovery protocol."
)

// CheckEligibility evaluates whether a user may transition out of RECOVERY.
// Read-only; a missing user or missing active protocol is an ordinary
// not-eligible result, not an error.
func (s *Service) CheckEligibility(ctx context.Context, userID string) (Eligibility, error) {
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return notEligibleNoProtocol(), nil
	}
	if err != nil {
		return Eligibility{}, fmt.Errorf("load user: %w", err)
	}

	protocol, err := s.store.GetActiveProtocol(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return notEligibleNoProtocol(), nil
	}
	if err != nil {
		return Eligibility{}, fmt.Errorf("load active protocol: %w", err)
	}

	checkins, err := s.store.ListCheckins(ctx, protocol.ID, 0)
	if err != nil {
		return Eligibility{}, fmt.Errorf("load check-ins: %w", err)
	}

	now := s.now().UTC()
	result := Eligibility{ProtocolID: protocol.ID}

	if user.RecoveryStartedAt == nil {
		// Accounts that predate time-locks pass the day gate.
		result.DaysInRecovery = LegacyDaysSentinel
		result.Has14DaysPassed = true
	} else {
		result.DaysInRecovery = int(now.Sub(user.RecoveryStartedAt.UTC()).Hours() / 24)
		if result.DaysInRecovery < 0 {
			result.DaysInRecovery = 0
		}
		result.Has14DaysPassed = result.DaysInRecovery >= MinRecoveryDays
	}

	result.WeeksStable = domain.CountQualifying(checkins)
	if protocol.OxygenLevelCurrent != nil {
		result.CurrentOxygenLevel = *protocol.OxygenLevelCurrent
	}
	stable := result.WeeksStable >= MinStableWeeks &&
		result.CurrentOxygenLevel >= domain.StableOxygenThreshold

	if !result.Has14DaysPassed {
		result.Blockers = append(result.Blockers, fmt.Sprintf(
			"%d more days in recovery required (minimum %d).",
			MinRecoveryDays-result.DaysInRecovery, MinRecoveryDays))
	}
	if result.WeeksStable < MinStableWeeks {
		result.Blockers = append(result.Blockers, fmt.Sprintf(
			"%d more stable weeks required (%d check-ins with oxygen %d or higher).",
			MinStableWeeks-result.WeeksStable, MinStableWeeks, domain.StableOxygenThreshold))
	}
	if result.WeeksStable >= MinStableWeeks && result.CurrentOxygenLevel < domain.StableOxygenThreshold {
		result.Blockers = append(result.Blockers, fmt.Sprintf(
			"Current oxygen level must be %d or higher.", domain.StableOxygenThreshold))
	}

	result.IsEligible = result.Has14DaysPassed && stable
	if result.IsEligible {
		result.Message = eligibleMessage
	} else {
		result.Message = blockedMessage
	}
	return result, nil
}

func notEligibleNoProtocol() Eligibility {
	return Eligibility{
		Message:  blockedMessage,
		Blockers: []string{noProtocolBlock},
	}
}
