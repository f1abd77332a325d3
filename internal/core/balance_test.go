package core

import (
	"math/rand"
	"reflect"
	"testing"
)

func record(t *testing.T, group GroupID, total int64, payer MemberID, policy SplitPolicy, participants []MemberID) ExpenseRecord {
	t.Helper()
	splits, err := ComputeSplits(Money{Cents: total}, policy, participants)
	if err != nil {
		t.Fatalf("compute splits: %v", err)
	}
	return ExpenseRecord{
		GroupID:     group,
		Description: "test",
		Total:       Money{Cents: total},
		PaidBy:      payer,
		Policy:      policy,
		Splits:      splits,
	}
}

func TestPairBalancesNetting(t *testing.T) {
	// A(1) pays $30 split equally with B(2): B owes A $15. Later B pays
	// $15 split equally with A: A owes B $7.50. Net: A is owed $7.50.
	ledger := []ExpenseRecord{
		record(t, 1, 3000, 1, EqualPolicy(), []MemberID{1, 2}),
		record(t, 1, 1500, 2, EqualPolicy(), []MemberID{1, 2}),
	}
	pairs, err := PairBalances(ledger)
	if err != nil {
		t.Fatal(err)
	}
	key := PairKey{First: 1, Second: 2}
	if len(pairs) != 1 {
		t.Fatalf("expected one pair, got %v", pairs)
	}
	if pairs[key].Cents != 750 {
		t.Fatalf("net = %s, want 7.50 owed to member 1", pairs[key])
	}
}

func TestPairBalancesCanonicalOrientation(t *testing.T) {
	// Payer with the higher ID: positive net still means the lower ID is
	// owed, so here the sign flips.
	ledger := []ExpenseRecord{
		record(t, 1, 1000, 2, EqualPolicy(), []MemberID{1, 2}),
	}
	pairs, err := PairBalances(ledger)
	if err != nil {
		t.Fatal(err)
	}
	if got := pairs[PairKey{First: 1, Second: 2}]; got.Cents != -500 {
		t.Fatalf("net = %s, want -5.00 (member 2 owed by member 1)", got)
	}
}

func TestGroupBalanceViewReshape(t *testing.T) {
	ledger := []ExpenseRecord{
		record(t, 1, 10000, 1, EqualPolicy(), []MemberID{1, 2, 3}),
	}
	pairs, err := PairBalances(ledger)
	if err != nil {
		t.Fatal(err)
	}
	view, err := GroupBalanceView([]MemberID{1, 2, 3}, pairs)
	if err != nil {
		t.Fatal(err)
	}
	want := []MemberBalance{
		{
			Member: 1,
			OwedBy: []BalanceEntry{
				{Member: 2, Amount: Money{Cents: 3333}},
				{Member: 3, Amount: Money{Cents: 3333}},
			},
			Net: Money{Cents: 6666},
		},
		{
			Member: 2,
			OwesTo: []BalanceEntry{{Member: 1, Amount: Money{Cents: 3333}}},
			Net:    Money{Cents: -3333},
		},
		{
			Member: 3,
			OwesTo: []BalanceEntry{{Member: 1, Amount: Money{Cents: 3333}}},
			Net:    Money{Cents: -3333},
		},
	}
	if !reflect.DeepEqual(view, want) {
		t.Fatalf("view mismatch:\n got %+v\nwant %+v", view, want)
	}
}

func TestSettledPairOmitted(t *testing.T) {
	// Two mirrored expenses settle the pair exactly; neither member may
	// list the other afterwards.
	ledger := []ExpenseRecord{
		record(t, 1, 2000, 1, EqualPolicy(), []MemberID{1, 2}),
		record(t, 1, 2000, 2, EqualPolicy(), []MemberID{1, 2}),
	}
	pairs, err := PairBalances(ledger)
	if err != nil {
		t.Fatal(err)
	}
	view, err := GroupBalanceView([]MemberID{1, 2}, pairs)
	if err != nil {
		t.Fatal(err)
	}
	for _, mb := range view {
		if len(mb.OwesTo) != 0 || len(mb.OwedBy) != 0 {
			t.Fatalf("member %d still lists debts: %+v", mb.Member, mb)
		}
		if !mb.Net.IsZero() {
			t.Fatalf("member %d net = %s, want zero", mb.Member, mb.Net)
		}
	}
}

func TestConservationProperty(t *testing.T) {
	// For any sequence of valid expenses, the members' nets sum to exactly
	// zero. Random ledgers, fixed seed.
	rng := rand.New(rand.NewSource(7))
	members := []MemberID{1, 2, 3, 4, 5}
	for iter := 0; iter < 200; iter++ {
		var ledger []ExpenseRecord
		n := rng.Intn(20) + 1
		for i := 0; i < n; i++ {
			// Random subset of at least two participants.
			perm := rng.Perm(len(members))
			k := rng.Intn(len(members)-1) + 2
			participants := make([]MemberID, k)
			for j := 0; j < k; j++ {
				participants[j] = members[perm[j]]
			}
			payer := participants[rng.Intn(k)]
			total := rng.Int63n(1_000_000) + 1

			var policy SplitPolicy
			if rng.Intn(2) == 0 {
				policy = EqualPolicy()
			} else {
				policy = PercentagePolicy(randomWeights(rng, participants))
			}
			ledger = append(ledger, record(t, 1, total, payer, policy, participants))
		}

		pairs, err := PairBalances(ledger)
		if err != nil {
			t.Fatalf("iter %d: %v", iter, err)
		}
		view, err := GroupBalanceView(members, pairs)
		if err != nil {
			t.Fatalf("iter %d: %v", iter, err)
		}
		sum := Money{}
		for _, mb := range view {
			if sum, err = sum.Add(mb.Net); err != nil {
				t.Fatalf("iter %d: %v", iter, err)
			}
		}
		if !sum.IsZero() {
			t.Fatalf("iter %d: nets sum to %s, want exactly zero", iter, sum)
		}
	}
}

func TestBalanceDeterminism(t *testing.T) {
	ledger := []ExpenseRecord{
		record(t, 1, 10000, 1, EqualPolicy(), []MemberID{1, 2, 3}),
		record(t, 1, 777, 3, PercentagePolicy(map[MemberID]int64{1: 5000, 2: 2500, 3: 2500}), []MemberID{1, 2, 3}),
	}
	first, err := PairBalances(ledger)
	if err != nil {
		t.Fatal(err)
	}
	firstView, err := GroupBalanceView([]MemberID{1, 2, 3}, first)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		pairs, err := PairBalances(ledger)
		if err != nil {
			t.Fatal(err)
		}
		view, err := GroupBalanceView([]MemberID{1, 2, 3}, pairs)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(pairs, first) || !reflect.DeepEqual(view, firstView) {
			t.Fatalf("run %d diverged", i)
		}
	}
}

func TestComposeUserView(t *testing.T) {
	// Net +10.00 in one group, -4.00 in another: total +6.00, both entries
	// kept unmodified and ordered by group ID.
	summaries := []GroupBalanceSummary{
		{Group: Group{ID: 9, Name: "trip"}, Net: Money{Cents: -400}},
		{Group: Group{ID: 2, Name: "flat"}, Net: Money{Cents: 1000}},
	}
	view, err := ComposeUserView(1, summaries)
	if err != nil {
		t.Fatal(err)
	}
	if view.Total.Cents != 600 {
		t.Fatalf("total = %s, want 6.00", view.Total)
	}
	if len(view.PerGroup) != 2 || view.PerGroup[0].Group.ID != 2 || view.PerGroup[1].Group.ID != 9 {
		t.Fatalf("per-group ordering wrong: %+v", view.PerGroup)
	}
	if view.PerGroup[0].Net.Cents != 1000 || view.PerGroup[1].Net.Cents != -400 {
		t.Fatalf("per-group nets modified: %+v", view.PerGroup)
	}
}
