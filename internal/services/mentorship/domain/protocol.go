package domain

import (
	"strings"
	"time"

	"github.com/ascentlabs/ascentledger/internal/platform/apperrors"
)

// CrisisType classifies the crisis episode a protocol responds to.
type CrisisType string

const (
	CrisisOverwhelm     CrisisType = "OVERWHELM"
	CrisisBurnout       CrisisType = "BURNOUT"
	CrisisDisconnection CrisisType = "DISCONNECTION"
	CrisisStagnation    CrisisType = "STAGNATION"
)

// Valid reports whether the crisis type is one of the four known values.
func (c CrisisType) Valid() bool {
	switch c {
	case CrisisOverwhelm, CrisisBurnout, CrisisDisconnection, CrisisStagnation:
		return true
	}
	return false
}

// OxygenLevel bounds for the 1-10 self-reported wellbeing scale.
const (
	OxygenLevelMin = 1
	OxygenLevelMax = 10
)

// StableOxygenThreshold is the minimum oxygen level counted toward stability.
const StableOxygenThreshold = 6

// ValidateOxygenLevel rejects oxygen levels outside [1,10]. Both bounds are
// inclusive.
func ValidateOxygenLevel(level int) error {
	if level < OxygenLevelMin || level > OxygenLevelMax {
		return apperrors.E(apperrors.KindInvalidInput, "Oxygen level must be between 1 and 10.")
	}
	return nil
}

// CrisisProtocol is a user's committed crisis-response plan: one burden to
// cut and one oxygen/support source. CompletedAt is nil while the protocol is
// active; at most one active protocol exists per user.
type CrisisProtocol struct {
	ID                 string
	UserID             string
	CrisisType         CrisisType
	BurdenToCut        string
	OxygenSource       string
	BurdenCut          bool
	OxygenConnected    bool
	OxygenLevelStart   *int
	OxygenLevelCurrent *int
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Active reports whether the protocol episode is still open.
func (p CrisisProtocol) Active() bool {
	return p.CompletedAt == nil
}

// NewProtocolInput carries the fields needed to open a crisis episode.
type NewProtocolInput struct {
	CrisisType       CrisisType
	BurdenToCut      string
	OxygenSource     string
	OxygenLevelStart *int
}

// Validate checks required commitments and bounds before a protocol is opened.
func (in NewProtocolInput) Validate() error {
	if !in.CrisisType.Valid() {
		return apperrors.E(apperrors.KindInvalidInput, "Crisis type is required.")
	}
	if strings.TrimSpace(in.BurdenToCut) == "" {
		return apperrors.E(apperrors.KindInvalidInput, "A burden to cut is required.")
	}
	if strings.TrimSpace(in.OxygenSource) == "" {
		return apperrors.E(apperrors.KindInvalidInput, "An oxygen source is required.")
	}
	if in.OxygenLevelStart != nil {
		if err := ValidateOxygenLevel(*in.OxygenLevelStart); err != nil {
			return err
		}
	}
	return nil
}
