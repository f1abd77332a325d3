package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"divvy/internal/core"
	"divvy/internal/ledger"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "divvy.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestExpenseRoundTrip(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	ada, err := repo.CreateMember(ctx, "Ada", "ada@example.com")
	if err != nil {
		t.Fatal(err)
	}
	ben, err := repo.CreateMember(ctx, "Ben", "ben@example.com")
	if err != nil {
		t.Fatal(err)
	}
	group, err := repo.CreateGroup(ctx, "flat", []core.MemberID{ada.ID, ben.ID})
	if err != nil {
		t.Fatal(err)
	}

	weights := map[core.MemberID]int64{ada.ID: 6000, ben.ID: 4000}
	policy := core.PercentagePolicy(weights)
	splits, err := core.ComputeSplits(core.Money{Cents: 5000}, policy, []core.MemberID{ada.ID, ben.ID})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := repo.AppendExpense(ctx, core.ExpenseRecord{
		GroupID:     group.ID,
		Description: "groceries",
		Total:       core.Money{Cents: 5000},
		PaidBy:      ada.ID,
		Policy:      policy,
		Splits:      splits,
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID == 0 {
		t.Fatal("append did not assign an ID")
	}

	list, err := repo.ExpensesOf(ctx, group.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 expense, got %d", len(list))
	}
	got := list[0]
	if got.Total.Cents != 5000 || got.PaidBy != ada.ID || got.Policy.Type != core.SplitPercentage {
		t.Fatalf("record mismatch: %+v", got)
	}
	if got.Splits[ada.ID].Cents != 3000 || got.Splits[ben.ID].Cents != 2000 {
		t.Fatalf("splits mismatch: %+v", got.Splits)
	}
	if got.Policy.Weights[ada.ID] != 6000 || got.Policy.Weights[ben.ID] != 4000 {
		t.Fatalf("weights mismatch: %+v", got.Policy.Weights)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("stored record fails validation: %v", err)
	}
}

func TestMembershipQueries(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	ada, _ := repo.CreateMember(ctx, "Ada", "ada@example.com")
	ben, _ := repo.CreateMember(ctx, "Ben", "ben@example.com")
	cam, _ := repo.CreateMember(ctx, "Cam", "cam@example.com")
	flat, err := repo.CreateGroup(ctx, "flat", []core.MemberID{ada.ID, ben.ID})
	if err != nil {
		t.Fatal(err)
	}
	trip, err := repo.CreateGroup(ctx, "trip", []core.MemberID{ada.ID, cam.ID})
	if err != nil {
		t.Fatal(err)
	}

	members, err := repo.MembersOf(ctx, flat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 || members[0].ID != ada.ID || members[1].ID != ben.ID {
		t.Fatalf("MembersOf: %+v", members)
	}

	groups, err := repo.GroupsOf(ctx, ada.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 || groups[0].ID != flat.ID || groups[1].ID != trip.ID {
		t.Fatalf("GroupsOf: %+v", groups)
	}

	if _, err := repo.MembersOf(ctx, 999); !errors.Is(err, core.ErrUnknownGroup) {
		t.Fatalf("expected ErrUnknownGroup, got %v", err)
	}
	if _, err := repo.GroupsOf(ctx, 999); !errors.Is(err, core.ErrUnknownMember) {
		t.Fatalf("expected ErrUnknownMember, got %v", err)
	}
	if _, err := repo.CreateGroup(ctx, "ghosts", []core.MemberID{999}); !errors.Is(err, core.ErrUnknownMember) {
		t.Fatalf("expected ErrUnknownMember, got %v", err)
	}
	if _, err := repo.CreateMember(ctx, "Dup", "ada@example.com"); !errors.Is(err, ledger.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestAuditFlow(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	ada, _ := repo.CreateMember(ctx, "Ada", "ada@example.com")
	ben, _ := repo.CreateMember(ctx, "Ben", "ben@example.com")
	group, _ := repo.CreateGroup(ctx, "flat", []core.MemberID{ada.ID, ben.ID})

	splits, _ := core.ComputeSplits(core.Money{Cents: 1000}, core.EqualPolicy(), []core.MemberID{ada.ID, ben.ID})
	rec, err := repo.AppendExpense(ctx, core.ExpenseRecord{
		GroupID: group.ID, Description: "wifi", Total: core.Money{Cents: 1000},
		PaidBy: ada.ID, Policy: core.EqualPolicy(), Splits: splits,
	})
	if err != nil {
		t.Fatal(err)
	}

	pending, err := repo.UnauditedExpenses(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0] != rec.ID {
		t.Fatalf("unaudited: %v", pending)
	}

	err = repo.AppendAudit(ctx, AuditEntry{
		ID:         "audit-1",
		ExpenseID:  rec.ID,
		GroupID:    rec.GroupID,
		Amount:     rec.Total,
		RecordedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}

	pending, err = repo.UnauditedExpenses(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected empty sweep after audit, got %v", pending)
	}

	loaded, err := repo.GetExpense(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Total.Cents != 1000 || len(loaded.Splits) != 2 {
		t.Fatalf("loaded expense mismatch: %+v", loaded)
	}
}
