package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	SplitEqual      SplitType = "equal"
	SplitPercentage SplitType = "percentage"
)

type (
	SplitType string

	MemberID int64

	GroupID int64

	// Member is an opaque identity owned by the membership subsystem.
	// The engine treats the ID as an immutable key.
	Member struct {
		ID        MemberID
		Name      string
		Email     string
		CreatedAt time.Time
	}

	Group struct {
		ID        GroupID
		Name      string
		CreatedAt time.Time
	}

	// SplitPolicy is a closed tagged variant. Weights is set only for
	// SplitPercentage and maps each participant to basis points
	// (BasisPointsTotal = 100.00%).
	SplitPolicy struct {
		Type    SplitType
		Weights map[MemberID]int64
	}

	// ExpenseRecord is immutable once created. Splits always sum exactly
	// to Total; corrections are new records, never mutations.
	ExpenseRecord struct {
		ID          int64
		GroupID     GroupID
		Description string
		Total       Money
		PaidBy      MemberID
		Policy      SplitPolicy
		Splits      map[MemberID]Money
		CreatedAt   time.Time
	}
)

var (
	ErrInvalidSplit     = errors.New("invalid split")
	ErrUnknownMember    = errors.New("unknown member")
	ErrUnknownGroup     = errors.New("unknown group")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
)

// EqualPolicy returns the parameterless equal-split policy.
func EqualPolicy() SplitPolicy {
	return SplitPolicy{Type: SplitEqual}
}

// PercentagePolicy returns a percentage policy over the given weights.
// Validation happens in Validate, not here.
func PercentagePolicy(weights map[MemberID]int64) SplitPolicy {
	return SplitPolicy{Type: SplitPercentage, Weights: weights}
}

// weightTolerance is the allowed deviation of a percentage weight sum from
// 100.00%, in basis points (0.01%).
const weightTolerance int64 = 1

// Validate checks the policy against the participant set. For percentage
// policies every participant needs a positive weight, no weight may name a
// non-participant, and the sum must be within 0.01% of 100%. This runs
// before any Money is allocated; a failing policy never produces splits.
func (p SplitPolicy) Validate(participants []MemberID) error {
	switch p.Type {
	case SplitEqual:
		if len(p.Weights) != 0 {
			return fmt.Errorf("equal split carries weights: %w", ErrInvalidSplit)
		}
		return nil
	case SplitPercentage:
		if len(p.Weights) == 0 {
			return fmt.Errorf("percentage split without weights: %w", ErrInvalidSplit)
		}
		present := make(map[MemberID]bool, len(participants))
		for _, id := range participants {
			present[id] = true
		}
		var sum int64
		for id, w := range p.Weights {
			if !present[id] {
				return fmt.Errorf("weight for non-participant %d: %w", id, ErrInvalidSplit)
			}
			if w <= 0 {
				return fmt.Errorf("non-positive weight for member %d: %w", id, ErrInvalidSplit)
			}
			sum += w
		}
		for _, id := range participants {
			if _, ok := p.Weights[id]; !ok {
				return fmt.Errorf("missing weight for member %d: %w", id, ErrInvalidSplit)
			}
		}
		if sum < BasisPointsTotal-weightTolerance || sum > BasisPointsTotal+weightTolerance {
			return fmt.Errorf("weights sum to %d bp, want %d±%d: %w",
				sum, BasisPointsTotal, weightTolerance, ErrInvalidSplit)
		}
		return nil
	default:
		return fmt.Errorf("unknown split type %q: %w", p.Type, ErrInvalidSplit)
	}
}

// ParseSplitType converts the wire value of a split type into the closed
// variant, rejecting anything outside it. Downstream code branches on the
// tag only, never on ad-hoc payload fields.
func ParseSplitType(s string) (SplitType, error) {
	switch SplitType(strings.ToLower(strings.TrimSpace(s))) {
	case SplitEqual:
		return SplitEqual, nil
	case SplitPercentage:
		return SplitPercentage, nil
	default:
		return "", fmt.Errorf("unknown split type %q: %w", s, ErrInvalidSplit)
	}
}

func (m Member) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("member name cannot be empty")
	}
	if !strings.Contains(m.Email, "@") {
		return errors.New("member email is not an address")
	}
	return nil
}

func (g Group) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return errors.New("group name cannot be empty")
	}
	if len(g.Name) > 200 {
		return errors.New("group name too long (max 200 characters)")
	}
	return nil
}

// Validate checks the record invariants: non-empty description, positive
// total, payer present, and splits that sum exactly to the total.
func (r ExpenseRecord) Validate() error {
	if len(strings.TrimSpace(r.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(r.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if !r.Total.IsPositive() {
		return fmt.Errorf("total %s: %w", r.Total, ErrInvalidSplit)
	}
	if r.PaidBy == 0 {
		return fmt.Errorf("missing payer: %w", ErrUnknownMember)
	}
	if len(r.Splits) == 0 {
		return fmt.Errorf("no splits: %w", ErrInvalidSplit)
	}
	sum := Money{}
	for id, share := range r.Splits {
		if share.IsNegative() {
			return fmt.Errorf("negative share for member %d: %w", id, ErrInvalidSplit)
		}
		var err error
		sum, err = sum.Add(share)
		if err != nil {
			return err
		}
	}
	if sum != r.Total {
		return fmt.Errorf("splits sum %s != total %s: %w", sum, r.Total, ErrInvalidSplit)
	}
	return nil
}
