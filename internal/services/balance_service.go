package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"divvy/internal/core"
	"divvy/internal/ledger"
)

// maxConcurrentGroups bounds the fan-out when assembling a member's
// cross-group view.
const maxConcurrentGroups = 4

// BalanceService derives balance views from the ledger. It holds no state of
// its own: every view is a fresh replay, so it can never disagree with the
// recorded expenses.
type BalanceService struct {
	store ledger.Store
}

func NewBalanceService(store ledger.Store) *BalanceService {
	return &BalanceService{store: store}
}

// GroupBalances replays one group's ledger into the per-member view.
func (s *BalanceService) GroupBalances(ctx context.Context, groupID core.GroupID) ([]core.MemberBalance, error) {
	members, err := s.store.MembersOf(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return s.viewFor(ctx, groupID, members)
}

// UserBalances assembles a member's balances across every group they belong
// to, one independent replay per group. Groups never offset each other.
func (s *BalanceService) UserBalances(ctx context.Context, memberID core.MemberID) (core.UserBalanceView, error) {
	if _, err := s.store.GetMember(ctx, memberID); err != nil {
		return core.UserBalanceView{}, err
	}

	groups, err := s.store.GroupsOf(ctx, memberID)
	if err != nil {
		return core.UserBalanceView{}, err
	}

	summaries := make([]core.GroupBalanceSummary, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentGroups)
	for i, group := range groups {
		g.Go(func() error {
			summary, err := s.summaryFor(gctx, memberID, group)
			if err != nil {
				return fmt.Errorf("group %d: %w", group.ID, err)
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.UserBalanceView{}, err
	}

	return core.ComposeUserView(memberID, summaries)
}

func (s *BalanceService) viewFor(ctx context.Context, groupID core.GroupID, members []core.Member) ([]core.MemberBalance, error) {
	records, err := s.store.ExpensesOf(ctx, groupID)
	if err != nil {
		return nil, err
	}
	pairs, err := core.PairBalances(records)
	if err != nil {
		return nil, fmt.Errorf("fold ledger of group %d: %w", groupID, err)
	}
	ids := make([]core.MemberID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return core.GroupBalanceView(ids, pairs)
}

func (s *BalanceService) summaryFor(ctx context.Context, memberID core.MemberID, group core.Group) (core.GroupBalanceSummary, error) {
	members, err := s.store.MembersOf(ctx, group.ID)
	if err != nil {
		return core.GroupBalanceSummary{}, err
	}
	view, err := s.viewFor(ctx, group.ID, members)
	if err != nil {
		return core.GroupBalanceSummary{}, err
	}
	summary := core.GroupBalanceSummary{Group: group}
	for _, mb := range view {
		if mb.Member == memberID {
			summary.Net = mb.Net
			summary.OwesTo = mb.OwesTo
			summary.OwedBy = mb.OwedBy
			break
		}
	}
	return summary, nil
}
