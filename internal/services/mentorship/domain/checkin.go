package domain

import "time"

// RecoveryCheckin is one weekly self-report against an active protocol.
// WeekOf is the ISO-week Monday at 00:00 UTC; one check-in exists per
// (user, protocol, week).
type RecoveryCheckin struct {
	ID                 string
	UserID             string
	ProtocolID         string
	WeekOf             time.Time
	ProtocolCompleted  *bool
	OxygenConnected    *bool
	OxygenLevelCurrent *int
	Notes              string
	CreatedAt          time.Time
}

// Qualifying reports whether this check-in counts toward stability.
func (c RecoveryCheckin) Qualifying() bool {
	return c.OxygenLevelCurrent != nil && *c.OxygenLevelCurrent >= StableOxygenThreshold
}

// WeekStart returns the ISO-week Monday at 00:00 UTC containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	// time.Weekday numbers Sunday as 0; ISO weeks start on Monday.
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}

// StableStreak reports whether the most recent three check-ins all qualify.
// Check-ins must be ordered most recent first. Fewer than three check-ins is
// never stable.
func StableStreak(checkins []RecoveryCheckin) bool {
	if len(checkins) < 3 {
		return false
	}
	for _, c := range checkins[:3] {
		if !c.Qualifying() {
			return false
		}
	}
	return true
}

// CountQualifying returns how many check-ins meet the stability threshold.
func CountQualifying(checkins []RecoveryCheckin) int {
	count := 0
	for _, c := range checkins {
		if c.Qualifying() {
			count++
		}
	}
	return count
}
