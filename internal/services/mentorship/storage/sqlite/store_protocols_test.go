package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ascentlabs/ascentledger/internal/services/mentorship/domain"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/storage"
)

func TestCreateProtocolMovesUserIntoRecovery(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	now := time.Date(2026, 4, 6, 10, 0, 0, 0, time.UTC)
	seedUser(t, store, "user-1", now)
	seedProtocol(t, store, "user-1", "proto-1", now)

	user, err := store.GetUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.Mode != domain.ModeRecovery {
		t.Fatalf("mode = %s, want RECOVERY", user.Mode)
	}
	if user.RecoveryStartedAt == nil || !user.RecoveryStartedAt.Equal(now) {
		t.Fatalf("recovery started = %v, want %v", user.RecoveryStartedAt, now)
	}
}

func TestCreateProtocolKeepsExistingTimeLock(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	started := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedUser(t, store, "user-1", started)
	seedProtocol(t, store, "user-1", "proto-1", started)

	// Complete the episode, then open a fresh one; the old lock was cleared
	// so the new episode starts its own.
	completed := started.Add(20 * 24 * time.Hour)
	if _, err := store.CompleteTransition(context.Background(), storage.TransitionInput{
		UserID:        "user-1",
		ProtocolID:    "proto-1",
		CompletedAt:   completed,
		TransactionID: "txn-1",
		RewardAmount:  domain.RewardTransition,
		Description:   "Recovery complete",
	}); err != nil {
		t.Fatalf("complete transition: %v", err)
	}

	reopened := completed.Add(30 * 24 * time.Hour)
	seedProtocol(t, store, "user-1", "proto-2", reopened)
	user, err := store.GetUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.RecoveryStartedAt == nil || !user.RecoveryStartedAt.Equal(reopened) {
		t.Fatalf("recovery started = %v, want %v", user.RecoveryStartedAt, reopened)
	}
}

func TestCreateProtocolRejectsSecondActive(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	now := time.Date(2026, 4, 6, 10, 0, 0, 0, time.UTC)
	seedUser(t, store, "user-1", now)
	seedProtocol(t, store, "user-1", "proto-1", now)

	err := store.CreateProtocol(context.Background(), domain.CrisisProtocol{
		ID:           "proto-2",
		UserID:       "user-1",
		CrisisType:   domain.CrisisOverwhelm,
		BurdenToCut:  "another burden",
		OxygenSource: "another source",
		CreatedAt:    now.Add(time.Hour),
		UpdatedAt:    now.Add(time.Hour),
	})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
	if got := queryCount(t, store, "SELECT COUNT(*) FROM crisis_protocols WHERE user_id = ?", "user-1"); got != 1 {
		t.Fatalf("protocol rows = %d, want 1", got)
	}
}

func TestGetActiveProtocolSkipsCompleted(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	now := time.Date(2026, 4, 6, 10, 0, 0, 0, time.UTC)
	seedUser(t, store, "user-1", now)
	seedProtocol(t, store, "user-1", "proto-1", now)

	if _, err := store.CompleteTransition(context.Background(), storage.TransitionInput{
		UserID: "user-1", ProtocolID: "proto-1", CompletedAt: now.Add(15 * 24 * time.Hour),
		TransactionID: "txn-1", RewardAmount: domain.RewardTransition,
	}); err != nil {
		t.Fatalf("complete transition: %v", err)
	}

	_, err := store.GetActiveProtocol(context.Background(), "user-1")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateProtocolAppliesPartialChanges(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	now := time.Date(2026, 4, 6, 10, 0, 0, 0, time.UTC)
	seedUser(t, store, "user-1", now)
	seedProtocol(t, store, "user-1", "proto-1", now)

	burdenCut := true
	seven := 7
	updated, err := store.UpdateProtocol(context.Background(), "proto-1", storage.ProtocolUpdate{
		BurdenCut:          &burdenCut,
		OxygenLevelCurrent: &seven,
		UpdatedAt:          now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("update protocol: %v", err)
	}
	if !updated.BurdenCut {
		t.Fatal("burden cut not applied")
	}
	if updated.OxygenConnected {
		t.Fatal("oxygen connected should be untouched")
	}
	if updated.OxygenLevelCurrent == nil || *updated.OxygenLevelCurrent != 7 {
		t.Fatalf("oxygen current = %v, want 7", updated.OxygenLevelCurrent)
	}
	if updated.OxygenLevelStart == nil || *updated.OxygenLevelStart != 7 {
		t.Fatalf("oxygen start = %v, want first-write 7", updated.OxygenLevelStart)
	}

	nine := 9
	updated, err = store.UpdateProtocol(context.Background(), "proto-1", storage.ProtocolUpdate{
		OxygenLevelCurrent: &nine,
		UpdatedAt:          now.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if updated.OxygenLevelStart == nil || *updated.OxygenLevelStart != 7 {
		t.Fatalf("oxygen start = %v, want unchanged 7", updated.OxygenLevelStart)
	}
	if updated.OxygenLevelCurrent == nil || *updated.OxygenLevelCurrent != 9 {
		t.Fatalf("oxygen current = %v, want 9", updated.OxygenLevelCurrent)
	}
}

func TestUpdateProtocolRejectsCompletedEpisode(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	now := time.Date(2026, 4, 6, 10, 0, 0, 0, time.UTC)
	seedUser(t, store, "user-1", now)
	seedProtocol(t, store, "user-1", "proto-1", now)
	if _, err := store.CompleteTransition(context.Background(), storage.TransitionInput{
		UserID: "user-1", ProtocolID: "proto-1", CompletedAt: now.Add(15 * 24 * time.Hour),
		TransactionID: "txn-1", RewardAmount: domain.RewardTransition,
	}); err != nil {
		t.Fatalf("complete transition: %v", err)
	}

	burdenCut := true
	_, err := store.UpdateProtocol(context.Background(), "proto-1", storage.ProtocolUpdate{
		BurdenCut: &burdenCut,
		UpdatedAt: now,
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for completed protocol", err)
	}
}
