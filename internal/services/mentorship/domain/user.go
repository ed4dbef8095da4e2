// Package domain holds the mentorship core types and business rules: user
// operating modes, crisis protocols, weekly recovery check-ins, fog checks,
// and the token reward ledger.
package domain

import "time"

// Mode is a user's operating mode.
type Mode string

const (
	// ModeAscent is the forward operating state.
	ModeAscent Mode = "ASCENT"
	// ModeRecovery is the crisis operating state, gated by a minimum-duration
	// lock and a stability requirement before exit.
	ModeRecovery Mode = "RECOVERY"
)

// Valid reports whether the mode is a known operating mode.
func (m Mode) Valid() bool {
	return m == ModeAscent || m == ModeRecovery
}

// User is an account in the mentorship service. RecoveryStartedAt is nil when
// no recovery time-lock is active; legacy accounts may be in RECOVERY with a
// nil start, which bypasses the day-lock.
type User struct {
	ID                string
	Mode              Mode
	RecoveryStartedAt *time.Time
	TokenBalance      int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
