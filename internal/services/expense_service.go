package services

import (
	"context"
	"fmt"
	"log/slog"

	"divvy/internal/amqp"
	"divvy/internal/core"
	"divvy/internal/ledger"
	"divvy/internal/log"
)

// ExpenseService orchestrates expense recording across the ledger store and
// AMQP. The store append is authoritative; the publish is best-effort.
type ExpenseService struct {
	store      ledger.Store
	amqpClient *amqp.Client
}

// NewExpenseService builds the service. amqpClient may be nil, in which case
// recorded expenses are picked up by the worker's catch-up sweep instead of
// the queue.
func NewExpenseService(store ledger.Store, amqpClient *amqp.Client) *ExpenseService {
	return &ExpenseService{
		store:      store,
		amqpClient: amqpClient,
	}
}

// RecordExpenseInput is the service-level request for a new expense.
// Participants defaults to the group's full membership when empty; Weights
// is read only for percentage splits.
type RecordExpenseInput struct {
	GroupID      core.GroupID
	Description  string
	Total        core.Money
	PaidBy       core.MemberID
	SplitType    core.SplitType
	Weights      map[core.MemberID]int64
	Participants []core.MemberID
}

// Record validates the request against group membership, computes the exact
// splits, appends the record and publishes the recorded event. Nothing is
// appended unless the whole record validates.
func (s *ExpenseService) Record(ctx context.Context, in RecordExpenseInput) (core.ExpenseRecord, error) {
	if _, err := s.store.GetGroup(ctx, in.GroupID); err != nil {
		return core.ExpenseRecord{}, err
	}

	members, err := s.store.MembersOf(ctx, in.GroupID)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	inGroup := make(map[core.MemberID]bool, len(members))
	for _, m := range members {
		inGroup[m.ID] = true
	}

	if !inGroup[in.PaidBy] {
		return core.ExpenseRecord{}, fmt.Errorf(
			"payer %d not in group %d: %w", in.PaidBy, in.GroupID, core.ErrUnknownMember)
	}

	participants := in.Participants
	if len(participants) == 0 {
		participants = make([]core.MemberID, 0, len(members))
		for _, m := range members {
			participants = append(participants, m.ID)
		}
	} else {
		for _, id := range participants {
			if !inGroup[id] {
				return core.ExpenseRecord{}, fmt.Errorf(
					"participant %d not in group %d: %w", id, in.GroupID, core.ErrUnknownMember)
			}
		}
	}

	policy, err := policyFor(in.SplitType, in.Weights)
	if err != nil {
		return core.ExpenseRecord{}, err
	}

	splits, err := core.ComputeSplits(in.Total, policy, participants)
	if err != nil {
		return core.ExpenseRecord{}, err
	}

	rec := core.ExpenseRecord{
		GroupID:     in.GroupID,
		Description: in.Description,
		Total:       in.Total,
		PaidBy:      in.PaidBy,
		Policy:      policy,
		Splits:      splits,
	}
	if err := rec.Validate(); err != nil {
		return core.ExpenseRecord{}, err
	}

	saved, err := s.store.AppendExpense(ctx, rec)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("append expense: %w", err)
	}

	logger := log.NewStructuredLogger(log.FromContext(ctx))
	logger.LogExpenseRecorded(ctx,
		int64(saved.GroupID), saved.ID, saved.Total.Cents, string(saved.Policy.Type))

	// Publish async recorded event (non-blocking for the caller's outcome)
	if err := s.publishRecorded(ctx, saved); err != nil {
		logger.LogError(ctx, "Failed to publish expense recorded message",
			err, log.ComponentAMQP, log.OpAppend,
			log.NewFields().WithExpense(int64(saved.GroupID), saved.ID, saved.Total.Cents, string(saved.Policy.Type)))
		// Don't fail the request - the expense is durable in the ledger
	}

	return saved, nil
}

// ListExpenses replays a group's ledger in insertion order.
func (s *ExpenseService) ListExpenses(ctx context.Context, groupID core.GroupID) ([]core.ExpenseRecord, error) {
	return s.store.ExpensesOf(ctx, groupID)
}

func policyFor(t core.SplitType, weights map[core.MemberID]int64) (core.SplitPolicy, error) {
	switch t {
	case core.SplitEqual:
		if len(weights) != 0 {
			return core.SplitPolicy{}, fmt.Errorf("equal split carries weights: %w", core.ErrInvalidSplit)
		}
		return core.EqualPolicy(), nil
	case core.SplitPercentage:
		return core.PercentagePolicy(weights), nil
	default:
		return core.SplitPolicy{}, fmt.Errorf("unknown split type %q: %w", t, core.ErrInvalidSplit)
	}
}

func (s *ExpenseService) publishRecorded(ctx context.Context, rec core.ExpenseRecord) error {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping recorded message",
			"expense_id", rec.ID)
		return nil
	}
	return s.amqpClient.PublishExpenseRecorded(ctx, rec.ID, int64(rec.GroupID))
}
