package domain

import "time"

// FogCheckType tags the context a fog check was generated in.
type FogCheckType string

const (
	FogCheckCrisis     FogCheckType = "CRISIS"
	FogCheckWeek1      FogCheckType = "WEEK_1"
	FogCheckWeekly     FogCheckType = "WEEKLY"
	FogCheckTransition FogCheckType = "TRANSITION"
)

// FogCheck is an immutable AI-generated feedback artifact: one observation
// and one strategic question shown to the user.
type FogCheck struct {
	ID                string
	UserID            string
	Observation       string
	StrategicQuestion string
	CheckType         FogCheckType
	CreatedAt         time.Time
}
