package core

import (
	"fmt"
	"sort"
)

// ComputeSplits divides total among participants according to policy. The
// returned shares always sum exactly to total; there is no path that leaks
// or invents a cent. Leftover minor units are assigned deterministically, so
// repeated runs over the same input are bit-identical:
//
//   - equal split: floor shares, the remainder goes one cent each to the
//     first participants in ascending member-ID order;
//   - percentage split: floor shares over the validated weight sum, the
//     leftover goes one cent each by descending fractional remainder
//     (largest-remainder method), ties broken by ascending member ID.
func ComputeSplits(total Money, policy SplitPolicy, participants []MemberID) (map[MemberID]Money, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("no participants: %w", ErrInvalidSplit)
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("total %s must be positive: %w", total, ErrInvalidSplit)
	}
	seen := make(map[MemberID]bool, len(participants))
	for _, id := range participants {
		if seen[id] {
			return nil, fmt.Errorf("duplicate participant %d: %w", id, ErrInvalidSplit)
		}
		seen[id] = true
	}
	if err := policy.Validate(participants); err != nil {
		return nil, err
	}

	switch policy.Type {
	case SplitEqual:
		return splitEqual(total, participants)
	case SplitPercentage:
		return splitPercentage(total, policy.Weights, participants)
	default:
		return nil, fmt.Errorf("unknown split type %q: %w", policy.Type, ErrInvalidSplit)
	}
}

func splitEqual(total Money, participants []MemberID) (map[MemberID]Money, error) {
	ordered := sortedMembersAscending(participants)
	n := int64(len(ordered))
	base := total.Cents / n
	remainder := total.Cents % n

	splits := make(map[MemberID]Money, len(ordered))
	for i, id := range ordered {
		share := base
		if int64(i) < remainder {
			share++
		}
		splits[id] = Money{Cents: share}
	}
	return splits, nil
}

func splitPercentage(total Money, weights map[MemberID]int64, participants []MemberID) (map[MemberID]Money, error) {
	ordered := sortedMembersAscending(participants)

	// Floor shares are computed against the actual weight sum, not the
	// nominal 10000 bp. Within the validated 0.01% tolerance this keeps the
	// leftover non-negative and below the participant count.
	var weightSum int64
	for _, id := range ordered {
		weightSum += weights[id]
	}

	type fractional struct {
		id  MemberID
		rem int64
	}
	splits := make(map[MemberID]Money, len(ordered))
	fracs := make([]fractional, 0, len(ordered))
	assigned := Money{}
	for _, id := range ordered {
		share, rem, err := total.scaleFloor(weights[id], weightSum)
		if err != nil {
			return nil, err
		}
		splits[id] = share
		fracs = append(fracs, fractional{id: id, rem: rem})
		assigned, err = assigned.Add(share)
		if err != nil {
			return nil, err
		}
	}

	leftover, err := total.Sub(assigned)
	if err != nil {
		return nil, err
	}
	if leftover.IsNegative() || leftover.Cents >= int64(len(ordered)) {
		return nil, fmt.Errorf("leftover %s outside [0,%d): %w",
			leftover, len(ordered), ErrInvalidSplit)
	}

	sort.Slice(fracs, func(i, j int) bool {
		if fracs[i].rem != fracs[j].rem {
			return fracs[i].rem > fracs[j].rem
		}
		return fracs[i].id < fracs[j].id
	})
	for i := int64(0); i < leftover.Cents; i++ {
		id := fracs[i].id
		splits[id] = Money{Cents: splits[id].Cents + 1}
	}
	return splits, nil
}

// sortedMembersAscending is the single tie-break ordering used everywhere a
// leftover minor unit needs a deterministic home.
func sortedMembersAscending(ids []MemberID) []MemberID {
	out := make([]MemberID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
