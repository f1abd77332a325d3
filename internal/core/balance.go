package core

import (
	"fmt"
	"sort"
)

// settlementThresholdCents: pairs whose |net| falls below one minor unit are
// settled and omitted from every view.
const settlementThresholdCents int64 = 1

type (
	// PairKey identifies an unordered member pair in canonical orientation:
	// First < Second always.
	PairKey struct {
		First  MemberID
		Second MemberID
	}

	// BalanceEntry is one directional debt inside a member's view.
	// Amount is always positive.
	BalanceEntry struct {
		Member MemberID
		Amount Money
	}

	// MemberBalance is one member's slice of the group balance view.
	// Net = sum(OwedBy) - sum(OwesTo).
	MemberBalance struct {
		Member MemberID
		OwesTo []BalanceEntry
		OwedBy []BalanceEntry
		Net    Money
	}

	// GroupBalanceSummary is one group's line in a member's cross-group
	// view. Debts never offset across groups.
	GroupBalanceSummary struct {
		Group  Group
		Net    Money
		OwesTo []BalanceEntry
		OwedBy []BalanceEntry
	}

	// UserBalanceView aggregates one member's balances across all their
	// groups. Total is informational only.
	UserBalanceView struct {
		Member   MemberID
		PerGroup []GroupBalanceSummary
		Total    Money
	}
)

// pairKeyFor orients a (debtor, creditor) edge canonically and returns the
// sign to apply: positive net means First is owed by Second.
func pairKeyFor(debtor, creditor MemberID) (PairKey, int64) {
	if creditor < debtor {
		return PairKey{First: creditor, Second: debtor}, 1
	}
	return PairKey{First: debtor, Second: creditor}, -1
}

// PairBalances folds a group's ledger into signed net amounts per unordered
// member pair. For each record every participant other than the payer owes
// their share to the payer; opposite-direction debts cancel algebraically.
// The fold conserves money: over all members, owed-to minus owes sums to
// exactly zero for any ledger state.
func PairBalances(records []ExpenseRecord) (map[PairKey]Money, error) {
	pairs := make(map[PairKey]Money)
	for _, rec := range records {
		for debtor, share := range rec.Splits {
			if debtor == rec.PaidBy || share.IsZero() {
				continue
			}
			key, sign := pairKeyFor(debtor, rec.PaidBy)
			delta := Money{Cents: share.Cents}
			if sign < 0 {
				var err error
				delta, err = delta.Neg()
				if err != nil {
					return nil, err
				}
			}
			net, err := pairs[key].Add(delta)
			if err != nil {
				return nil, fmt.Errorf("pair %d/%d: %w", key.First, key.Second, err)
			}
			pairs[key] = net
		}
	}
	return pairs, nil
}

// GroupBalanceView reshapes a pair map into per-member owes/owed lists.
// It never recomputes amounts, so it cannot disagree with PairBalances.
// Settled pairs are dropped; members with no live pairs appear with empty
// lists and a zero net. Output ordering is fixed: members and entry lists
// ascend by member ID.
func GroupBalanceView(members []MemberID, pairs map[PairKey]Money) ([]MemberBalance, error) {
	byMember := make(map[MemberID]*MemberBalance, len(members))
	for _, id := range members {
		byMember[id] = &MemberBalance{Member: id}
	}

	for key, net := range pairs {
		owed, err := net.Abs()
		if err != nil {
			return nil, err
		}
		if owed.Cents < settlementThresholdCents {
			continue
		}
		creditor, debtor := key.First, key.Second
		if net.IsNegative() {
			creditor, debtor = key.Second, key.First
		}
		// Expenses can reference members who have since only historical
		// standing in the pair map; surface them anyway.
		for _, id := range []MemberID{creditor, debtor} {
			if _, ok := byMember[id]; !ok {
				byMember[id] = &MemberBalance{Member: id}
			}
		}
		byMember[creditor].OwedBy = append(byMember[creditor].OwedBy, BalanceEntry{Member: debtor, Amount: owed})
		byMember[debtor].OwesTo = append(byMember[debtor].OwesTo, BalanceEntry{Member: creditor, Amount: owed})
	}

	view := make([]MemberBalance, 0, len(byMember))
	for _, mb := range byMember {
		sortEntries(mb.OwesTo)
		sortEntries(mb.OwedBy)
		net, err := netOf(mb.OwedBy, mb.OwesTo)
		if err != nil {
			return nil, err
		}
		mb.Net = net
		view = append(view, *mb)
	}
	sort.Slice(view, func(i, j int) bool { return view[i].Member < view[j].Member })
	return view, nil
}

func sortEntries(entries []BalanceEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Member < entries[j].Member })
}

func netOf(owedBy, owesTo []BalanceEntry) (Money, error) {
	net := Money{}
	var err error
	for _, e := range owedBy {
		if net, err = net.Add(e.Amount); err != nil {
			return Money{}, err
		}
	}
	for _, e := range owesTo {
		if net, err = net.Sub(e.Amount); err != nil {
			return Money{}, err
		}
	}
	return net, nil
}

// ComposeUserView assembles the cross-group view from already-built group
// summaries. Summaries are ordered by group ID; Total is the checked sum of
// the per-group nets.
func ComposeUserView(member MemberID, summaries []GroupBalanceSummary) (UserBalanceView, error) {
	ordered := make([]GroupBalanceSummary, len(summaries))
	copy(ordered, summaries)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Group.ID < ordered[j].Group.ID })

	total := Money{}
	var err error
	for _, s := range ordered {
		if total, err = total.Add(s.Net); err != nil {
			return UserBalanceView{}, fmt.Errorf("member %d total: %w", member, err)
		}
	}
	return UserBalanceView{Member: member, PerGroup: ordered, Total: total}, nil
}
