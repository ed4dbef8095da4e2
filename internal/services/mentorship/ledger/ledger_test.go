package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/ascentlabs/ascentledger/internal/services/mentorship/domain"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/storage/sqlite"
)

var testNow = time.Date(2026, 4, 8, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc := NewService(store)
	svc.now = func() time.Time { return testNow }
	return svc, store
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	if _, err := store.EnsureUser(context.Background(), "user-1", testNow); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	if _, err := svc.Adjust(context.Background(), "user-1", 120, "migration credit"); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if _, err := svc.Adjust(context.Background(), "user-1", -20, "correction"); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	got, err := svc.Summarize(context.Background(), "user-1", 10)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got.Balance != 100 {
		t.Fatalf("balance = %d, want 100", got.Balance)
	}
	if len(got.Transactions) != 2 {
		t.Fatalf("transactions = %d, want 2", len(got.Transactions))
	}
	if got.Transactions[0].Type != domain.TxManualAdjustment {
		t.Fatalf("type = %s, want %s", got.Transactions[0].Type, domain.TxManualAdjustment)
	}
	if got.Transactions[0].BalanceAfter != 100 {
		t.Fatalf("latest balance snapshot = %d, want 100", got.Transactions[0].BalanceAfter)
	}
}

func TestSummarizeUnknownUser(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	got, err := svc.Summarize(context.Background(), "ghost", 10)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got.Balance != 0 || len(got.Transactions) != 0 {
		t.Fatalf("got %+v, want empty summary", got)
	}
}
