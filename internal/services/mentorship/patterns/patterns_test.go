package patterns

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/parse"

	"github.com/ascentlabs/ascentledger/internal/services/mentorship/domain"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/storage"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/storage/sqlite"
)

var testNow = time.Date(2026, 4, 8, 10, 0, 0, 0, time.UTC)

func protocolFixture(burdenCut bool) domain.CrisisProtocol {
	return domain.CrisisProtocol{
		ID:           "protocol-1",
		UserID:       "user-1",
		CrisisType:   domain.CrisisBurnout,
		BurdenToCut:  "answering mail at midnight",
		OxygenSource: "slow mornings",
		BurdenCut:    burdenCut,
	}
}

// checkinsWithOxygen builds one check-in per level, oldest week first.
func checkinsWithOxygen(levels []int) []domain.RecoveryCheckin {
	checkins := make([]domain.RecoveryCheckin, 0, len(levels))
	for i, level := range levels {
		level := level
		checkins = append(checkins, domain.RecoveryCheckin{
			ID:                 fmt.Sprintf("checkin-%d", i),
			UserID:             "user-1",
			ProtocolID:         "protocol-1",
			WeekOf:             testNow.AddDate(0, 0, 7*i),
			OxygenLevelCurrent: &level,
		})
	}
	return checkins
}

func names(detected []Detected) map[string]bool {
	set := make(map[string]bool, len(detected))
	for _, d := range detected {
		set[d.Name] = true
	}
	return set
}

// TestRulesParseAndAnalyze pins the program to the declaration and infix
// comparison forms the engine accepts; a syntax regression here would
// otherwise surface only as empty pattern lists.
func TestRulesParseAndAnalyze(t *testing.T) {
	t.Parallel()

	unit, err := parse.Unit(strings.NewReader(rules))
	if err != nil {
		t.Fatalf("parse rules: %v", err)
	}
	if _, err := analysis.AnalyzeOneUnit(unit, nil); err != nil {
		t.Fatalf("analyze rules: %v", err)
	}
}

func TestEvaluateDecliningOxygen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		levels []int
		want   bool
	}{
		{"two consecutive drops", []int{8, 6, 4}, true},
		{"drops spread out", []int{8, 6, 7, 5}, false},
		{"single drop", []int{8, 6, 6}, false},
		{"rising", []int{4, 6, 8}, false},
		{"too short", []int{8, 4}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			detected, err := Evaluate(protocolFixture(true), checkinsWithOxygen(tc.levels))
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got := names(detected)[PatternDecliningOxygen]; got != tc.want {
				t.Fatalf("declining_oxygen = %v, want %v (levels %v)", got, tc.want, tc.levels)
			}
		})
	}
}

func TestEvaluateStalledCommitment(t *testing.T) {
	t.Parallel()

	// Three reports with the burden still uncut.
	detected, err := Evaluate(protocolFixture(false), checkinsWithOxygen([]int{5, 5, 5}))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !names(detected)[PatternStalledCommitment] {
		t.Fatal("stalled_commitment not derived")
	}

	// Cutting the burden clears the pattern.
	detected, err = Evaluate(protocolFixture(true), checkinsWithOxygen([]int{5, 5, 5}))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if names(detected)[PatternStalledCommitment] {
		t.Fatal("stalled_commitment derived with burden cut")
	}

	// Two reports are not enough.
	detected, err = Evaluate(protocolFixture(false), checkinsWithOxygen([]int{5, 5}))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if names(detected)[PatternStalledCommitment] {
		t.Fatal("stalled_commitment derived after two check-ins")
	}
}

func TestEvaluateStableStreak(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		levels []int
		want   bool
	}{
		{"three recent stable", []int{3, 6, 7, 8}, true},
		{"dip in recent three", []int{7, 8, 4, 9}, false},
		{"only two checkins", []int{8, 9}, false},
		{"boundary sixes", []int{6, 6, 6}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			detected, err := Evaluate(protocolFixture(true), checkinsWithOxygen(tc.levels))
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got := names(detected)[PatternStableStreak]; got != tc.want {
				t.Fatalf("stable_streak = %v, want %v (levels %v)", got, tc.want, tc.levels)
			}
		})
	}
}

func TestEvaluateEmptyHistory(t *testing.T) {
	t.Parallel()

	detected, err := Evaluate(protocolFixture(false), nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(detected) != 0 {
		t.Fatalf("detected = %v, want none", detected)
	}
}

func TestDetectReadsStore(t *testing.T) {
	t.Parallel()

	store, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if _, err := store.EnsureUser(context.Background(), "user-1", testNow); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	protocol := domain.CrisisProtocol{
		ID:           "protocol-1",
		UserID:       "user-1",
		CrisisType:   domain.CrisisOverwhelm,
		BurdenToCut:  "back-to-back meetings",
		OxygenSource: "afternoon walks",
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	if err := store.CreateProtocol(context.Background(), protocol); err != nil {
		t.Fatalf("create protocol: %v", err)
	}
	for i, level := range []int{8, 6, 4} {
		level := level
		at := testNow.AddDate(0, 0, 7*i)
		if _, err := store.CreateCheckin(context.Background(), domain.RecoveryCheckin{
			ID:                 fmt.Sprintf("checkin-%d", i),
			UserID:             "user-1",
			ProtocolID:         protocol.ID,
			WeekOf:             domain.WeekStart(at),
			OxygenLevelCurrent: &level,
			CreatedAt:          at,
		}, storage.CheckinReward{
			TransactionID: fmt.Sprintf("txn-%d", i),
			Amount:        domain.RewardCheckin,
			Type:          domain.TxCheckinReward,
		}); err != nil {
			t.Fatalf("create checkin %d: %v", i, err)
		}
	}

	detector := NewDetector(store)
	detected, err := detector.Detect(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	set := names(detected)
	if !set[PatternDecliningOxygen] {
		t.Fatal("declining_oxygen not derived from stored history")
	}
	if !set[PatternStalledCommitment] {
		t.Fatal("stalled_commitment not derived from stored history")
	}
}

func TestDetectNoActiveProtocol(t *testing.T) {
	t.Parallel()

	store, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	detector := NewDetector(store)
	detected, err := detector.Detect(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if detected != nil {
		t.Fatalf("detected = %v, want nil", detected)
	}
}
