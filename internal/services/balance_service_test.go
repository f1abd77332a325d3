package services

import (
	"context"
	"testing"

	"divvy/internal/core"
)

func TestGroupBalancesNetsOppositeDebts(t *testing.T) {
	f := setup(t)
	expenses := NewExpenseService(f.store, nil)
	balances := NewBalanceService(f.store)
	ctx := context.Background()

	// Ada pays $30 split with Ben only; Ben pays $15 split back. The pair
	// nets to Ben owing Ada $7.50.
	if _, err := expenses.Record(ctx, RecordExpenseInput{
		GroupID: f.flat.ID, Description: "groceries", Total: core.Money{Cents: 3000},
		PaidBy: f.ada.ID, SplitType: core.SplitEqual,
		Participants: []core.MemberID{f.ada.ID, f.ben.ID},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := expenses.Record(ctx, RecordExpenseInput{
		GroupID: f.flat.ID, Description: "pizza", Total: core.Money{Cents: 1500},
		PaidBy: f.ben.ID, SplitType: core.SplitEqual,
		Participants: []core.MemberID{f.ada.ID, f.ben.ID},
	}); err != nil {
		t.Fatal(err)
	}

	view, err := balances.GroupBalances(ctx, f.flat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(view) != 3 {
		t.Fatalf("expected 3 members in view, got %d", len(view))
	}

	byMember := make(map[core.MemberID]core.MemberBalance, len(view))
	for _, mb := range view {
		byMember[mb.Member] = mb
	}

	ada := byMember[f.ada.ID]
	if ada.Net.Cents != 750 {
		t.Errorf("ada net = %d, want 750", ada.Net.Cents)
	}
	if len(ada.OwedBy) != 1 || ada.OwedBy[0].Member != f.ben.ID || ada.OwedBy[0].Amount.Cents != 750 {
		t.Errorf("ada owed-by = %+v", ada.OwedBy)
	}

	ben := byMember[f.ben.ID]
	if ben.Net.Cents != -750 {
		t.Errorf("ben net = %d, want -750", ben.Net.Cents)
	}

	// Cam took part in nothing and shows a clean slate.
	cam := byMember[f.cam.ID]
	if cam.Net.Cents != 0 || len(cam.OwesTo) != 0 || len(cam.OwedBy) != 0 {
		t.Errorf("cam should be settled, got %+v", cam)
	}

	// Conservation: nets sum to zero.
	var sum int64
	for _, mb := range view {
		sum += mb.Net.Cents
	}
	if sum != 0 {
		t.Errorf("nets sum to %d, want 0", sum)
	}
}

func TestUserBalancesKeepsGroupsSeparate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	trip, err := f.store.CreateGroup(ctx, "trip", []core.MemberID{f.ada.ID, f.cam.ID})
	if err != nil {
		t.Fatal(err)
	}

	expenses := NewExpenseService(f.store, nil)
	balances := NewBalanceService(f.store)

	// In flat: Ada is owed $10 by Ben.
	if _, err := expenses.Record(ctx, RecordExpenseInput{
		GroupID: f.flat.ID, Description: "wifi", Total: core.Money{Cents: 2000},
		PaidBy: f.ada.ID, SplitType: core.SplitEqual,
		Participants: []core.MemberID{f.ada.ID, f.ben.ID},
	}); err != nil {
		t.Fatal(err)
	}
	// In trip: Ada owes Cam $4.
	if _, err := expenses.Record(ctx, RecordExpenseInput{
		GroupID: trip.ID, Description: "fuel", Total: core.Money{Cents: 800},
		PaidBy: f.cam.ID, SplitType: core.SplitEqual,
	}); err != nil {
		t.Fatal(err)
	}

	view, err := balances.UserBalances(ctx, f.ada.ID)
	if err != nil {
		t.Fatal(err)
	}
	if view.Member != f.ada.ID {
		t.Fatalf("view member = %d, want %d", view.Member, f.ada.ID)
	}
	if len(view.PerGroup) != 2 {
		t.Fatalf("expected 2 group summaries, got %d", len(view.PerGroup))
	}
	// Ordered by group ID; debts stay inside their group.
	if view.PerGroup[0].Group.ID != f.flat.ID || view.PerGroup[0].Net.Cents != 1000 {
		t.Errorf("flat summary = %+v", view.PerGroup[0])
	}
	if view.PerGroup[1].Group.ID != trip.ID || view.PerGroup[1].Net.Cents != -400 {
		t.Errorf("trip summary = %+v", view.PerGroup[1])
	}
	if view.Total.Cents != 600 {
		t.Errorf("total = %d, want 600", view.Total.Cents)
	}
}

func TestUserBalancesUnknownMember(t *testing.T) {
	f := setup(t)
	balances := NewBalanceService(f.store)

	if _, err := balances.UserBalances(context.Background(), 999); err == nil {
		t.Fatal("expected error for unknown member")
	}
}

func TestGroupBalancesViewsAreIdempotent(t *testing.T) {
	f := setup(t)
	expenses := NewExpenseService(f.store, nil)
	balances := NewBalanceService(f.store)
	ctx := context.Background()

	if _, err := expenses.Record(ctx, RecordExpenseInput{
		GroupID: f.flat.ID, Description: "drinks", Total: core.Money{Cents: 1001},
		PaidBy: f.ben.ID, SplitType: core.SplitEqual,
	}); err != nil {
		t.Fatal(err)
	}

	first, err := balances.GroupBalances(ctx, f.flat.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := balances.GroupBalances(ctx, f.flat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("view sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Member != second[i].Member || first[i].Net != second[i].Net {
			t.Errorf("replay diverged at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}
