// Package memory implements the ledger ports on in-process maps. It backs
// the default DATA_BACKEND and keeps unit tests independent of SQLite.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"divvy/internal/core"
	"divvy/internal/ledger"
)

type Store struct {
	mu sync.Mutex

	members    map[core.MemberID]core.Member
	groups     map[core.GroupID]core.Group
	membership map[core.GroupID][]core.MemberID
	ledgers    map[core.GroupID][]core.ExpenseRecord

	nextMemberID  core.MemberID
	nextGroupID   core.GroupID
	nextExpenseID int64
}

func New() *Store {
	return &Store{
		members:    make(map[core.MemberID]core.Member),
		groups:     make(map[core.GroupID]core.Group),
		membership: make(map[core.GroupID][]core.MemberID),
		ledgers:    make(map[core.GroupID][]core.ExpenseRecord),
	}
}

func (s *Store) CreateMember(_ context.Context, name, email string) (core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.Email == email {
			return core.Member{}, fmt.Errorf("email %q: %w", email, ledger.ErrDuplicateEmail)
		}
	}
	s.nextMemberID++
	m := core.Member{ID: s.nextMemberID, Name: name, Email: email, CreatedAt: time.Now().UTC()}
	if err := m.Validate(); err != nil {
		s.nextMemberID--
		return core.Member{}, err
	}
	s.members[m.ID] = m
	return m, nil
}

func (s *Store) CreateGroup(_ context.Context, name string, members []core.MemberID) (core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range members {
		if _, ok := s.members[id]; !ok {
			return core.Group{}, fmt.Errorf("member %d: %w", id, core.ErrUnknownMember)
		}
	}
	s.nextGroupID++
	g := core.Group{ID: s.nextGroupID, Name: name, CreatedAt: time.Now().UTC()}
	if err := g.Validate(); err != nil {
		s.nextGroupID--
		return core.Group{}, err
	}
	s.groups[g.ID] = g
	ids := dedupeSortedIDs(members)
	s.membership[g.ID] = ids
	return g, nil
}

func (s *Store) GetMember(_ context.Context, id core.MemberID) (core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return core.Member{}, fmt.Errorf("member %d: %w", id, core.ErrUnknownMember)
	}
	return m, nil
}

func (s *Store) GetGroup(_ context.Context, id core.GroupID) (core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return core.Group{}, fmt.Errorf("group %d: %w", id, core.ErrUnknownGroup)
	}
	return g, nil
}

func (s *Store) ListMembers(_ context.Context) ([]core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListGroups(_ context.Context) ([]core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MembersOf(_ context.Context, id core.GroupID) ([]core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return nil, fmt.Errorf("group %d: %w", id, core.ErrUnknownGroup)
	}
	ids := s.membership[id]
	out := make([]core.Member, 0, len(ids))
	for _, mid := range ids {
		out = append(out, s.members[mid])
	}
	return out, nil
}

func (s *Store) GroupsOf(_ context.Context, id core.MemberID) ([]core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return nil, fmt.Errorf("member %d: %w", id, core.ErrUnknownMember)
	}
	var out []core.Group
	for gid, ids := range s.membership {
		for _, mid := range ids {
			if mid == id {
				out = append(out, s.groups[gid])
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AppendExpense assigns the record ID and timestamp under the store lock,
// which also serializes appends per group.
func (s *Store) AppendExpense(_ context.Context, rec core.ExpenseRecord) (core.ExpenseRecord, error) {
	if err := rec.Validate(); err != nil {
		return core.ExpenseRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[rec.GroupID]; !ok {
		return core.ExpenseRecord{}, fmt.Errorf("group %d: %w", rec.GroupID, core.ErrUnknownGroup)
	}
	s.nextExpenseID++
	rec.ID = s.nextExpenseID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.ledgers[rec.GroupID] = append(s.ledgers[rec.GroupID], rec)
	return rec, nil
}

func (s *Store) ExpensesOf(_ context.Context, id core.GroupID) ([]core.ExpenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return nil, fmt.Errorf("group %d: %w", id, core.ErrUnknownGroup)
	}
	// Copy so callers can replay without observing later appends.
	out := make([]core.ExpenseRecord, len(s.ledgers[id]))
	copy(out, s.ledgers[id])
	return out, nil
}

func dedupeSortedIDs(in []core.MemberID) []core.MemberID {
	seen := map[core.MemberID]struct{}{}
	out := make([]core.MemberID, 0, len(in))
	for _, id := range in {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
