// Package patterns derives behavioral patterns from check-in history with a
// datalog program: week-over-week oxygen decline, stalled commitments, and
// stable streaks. Evaluation is a read-only side-channel over stored rows;
// nothing here is persisted.
package patterns

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"github.com/ascentlabs/ascentledger/internal/services/mentorship/domain"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/storage"
)

// Pattern names surfaced to the API.
const (
	PatternDecliningOxygen   = "declining_oxygen"
	PatternStalledCommitment = "stalled_commitment"
	PatternStableStreak      = "stable_streak"
)

// rules is the datalog program. Base facts are asserted per evaluation:
// checkin(P, Week, Oxygen), next_checkin(P, W1, W2) for consecutive reports,
// recent(P, Week, Rank) for the three most recent weeks, commitment(P, Kind,
// Done) and checkin_count(P, N).
const rules = `
Decl checkin(Protocol, Week, Oxygen) bound [/string, /number, /number].
Decl next_checkin(Protocol, Week1, Week2) bound [/string, /number, /number].
Decl recent(Protocol, Week, Rank) bound [/string, /number, /number].
Decl commitment(Protocol, Kind, Done) bound [/string, /string, /number].
Decl checkin_count(Protocol, Count) bound [/string, /number].

# A week whose reported oxygen fell below the previous report.
Decl oxygen_drop(Protocol, Week) bound [/string, /number].
oxygen_drop(P, W2) :-
    next_checkin(P, W1, W2),
    checkin(P, W1, O1),
    checkin(P, W2, O2),
    O2 < O1.

# Two consecutive week-over-week drops.
Decl declining_oxygen(Protocol) bound [/string].
declining_oxygen(P) :-
    oxygen_drop(P, W2),
    oxygen_drop(P, W3),
    next_checkin(P, W2, W3).

# Three or more reports with the burden commitment still open.
Decl stalled_commitment(Protocol) bound [/string].
stalled_commitment(P) :-
    checkin_count(P, N),
    N >= 3,
    commitment(P, "burden", 0).

# The three most recent reports all at oxygen 6 or higher.
Decl stable_streak(Protocol) bound [/string].
stable_streak(P) :-
    recent(P, W1, 1), checkin(P, W1, O1), O1 >= 6,
    recent(P, W2, 2), checkin(P, W2, O2), O2 >= 6,
    recent(P, W3, 3), checkin(P, W3, O3), O3 >= 6.
`

// Detected is one derived pattern for a protocol.
type Detected struct {
	Name        string
	ProtocolID  string
	Description string
}

// Store is the persistence surface pattern detection reads.
type Store interface {
	storage.ProtocolStore
	storage.CheckinStore
}

// Detector evaluates the datalog program over a user's check-in history.
type Detector struct {
	store Store
}

// NewDetector builds a pattern detector.
func NewDetector(store Store) *Detector {
	return &Detector{store: store}
}

// Detect derives patterns for the caller's active protocol. No active
// protocol means no patterns, not an error.
func (d *Detector) Detect(ctx context.Context, userID string) ([]Detected, error) {
	protocol, err := d.store.GetActiveProtocol(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load active protocol: %w", err)
	}
	checkins, err := d.store.ListCheckins(ctx, protocol.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("load checkins: %w", err)
	}
	return Evaluate(protocol, checkins)
}

// Evaluate runs the datalog program over one protocol's history.
func Evaluate(protocol domain.CrisisProtocol, checkins []domain.RecoveryCheckin) ([]Detected, error) {
	unit, err := parse.Unit(strings.NewReader(rules))
	if err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("analyze rules: %w", err)
	}

	store := factstore.NewSimpleInMemoryStore()
	assertFacts(store, protocol, checkins)

	if _, err := engine.EvalProgramWithStats(programInfo, store); err != nil {
		return nil, fmt.Errorf("evaluate rules: %w", err)
	}

	var detected []Detected
	for _, q := range []struct {
		name        string
		description string
	}{
		{PatternDecliningOxygen, "Oxygen level has dropped two weeks in a row."},
		{PatternStalledCommitment, "The burden commitment is still open after three or more check-ins."},
		{PatternStableStreak, "The three most recent check-ins all report oxygen 6 or higher."},
	} {
		query := ast.NewQuery(ast.PredicateSym{Symbol: q.name, Arity: 1})
		err := store.GetFacts(query, func(atom ast.Atom) error {
			constant, ok := atom.Args[0].(ast.Constant)
			if !ok {
				return fmt.Errorf("unexpected term %v", atom.Args[0])
			}
			detected = append(detected, Detected{
				Name:        q.name,
				ProtocolID:  constant.Symbol,
				Description: q.description,
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.name, err)
		}
	}
	return detected, nil
}

// assertFacts writes base facts for one protocol. Weeks are indexed by their
// chronological order, oldest first.
func assertFacts(store factstore.FactStore, protocol domain.CrisisProtocol, checkins []domain.RecoveryCheckin) {
	ordered := make([]domain.RecoveryCheckin, 0, len(checkins))
	for _, c := range checkins {
		if c.OxygenLevelCurrent != nil {
			ordered = append(ordered, c)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].WeekOf.Before(ordered[j].WeekOf)
	})

	pid := ast.String(protocol.ID)
	for i, c := range ordered {
		week := int64(i + 1)
		store.Add(ast.NewAtom("checkin", pid, ast.Number(week), ast.Number(int64(*c.OxygenLevelCurrent))))
		if i > 0 {
			store.Add(ast.NewAtom("next_checkin", pid, ast.Number(week-1), ast.Number(week)))
		}
	}
	for rank := 1; rank <= 3 && rank <= len(ordered); rank++ {
		week := int64(len(ordered) - rank + 1)
		store.Add(ast.NewAtom("recent", pid, ast.Number(week), ast.Number(int64(rank))))
	}
	store.Add(ast.NewAtom("checkin_count", pid, ast.Number(int64(len(checkins)))))
	store.Add(ast.NewAtom("commitment", pid, ast.String("burden"), boolFact(protocol.BurdenCut)))
	store.Add(ast.NewAtom("commitment", pid, ast.String("oxygen"), boolFact(protocol.OxygenConnected)))
}

func boolFact(v bool) ast.BaseTerm {
	if v {
		return ast.Number(1)
	}
	return ast.Number(0)
}
