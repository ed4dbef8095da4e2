// Package recovery implements the crisis recovery state machine: the
// read-only transition eligibility checker and the atomic transition
// executor that moves a user from RECOVERY back to ASCENT.
package recovery

import (
	"time"

	"github.com/ascentlabs/ascentledger/internal/services/mentorship/feedback"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/storage"
)

// Gate thresholds for leaving RECOVERY.
const (
	// MinRecoveryDays is the minimum days since the recovery episode began.
	MinRecoveryDays = 14
	// MinStableWeeks is the minimum count of qualifying weekly check-ins.
	MinStableWeeks = 3
	// LegacyDaysSentinel is reported as the day count for accounts that
	// entered RECOVERY before time-locks existed; their day-lock is treated
	// as satisfied.
	LegacyDaysSentinel = 999
)

// Store is the persistence surface the recovery workflow needs.
type Store interface {
	storage.UserStore
	storage.ProtocolStore
	storage.CheckinStore
	storage.TransitionStore
	storage.FogCheckStore
}

// Service evaluates and executes recovery transitions.
type Service struct {
	store    Store
	feedback *feedback.Generator
	now      func() time.Time
}

// NewService builds the recovery service. The feedback generator may be
// disabled; transition fog checks are then skipped.
func NewService(store Store, gen *feedback.Generator) *Service {
	return &Service{
		store:    store,
		feedback: gen,
		now:      time.Now,
	}
}
