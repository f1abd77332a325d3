// Package cached decorates a ledger store with read-through caches for
// group lookups. Group name and membership are fixed at creation, so a
// cached entry can never go stale; only successful lookups are cached.
package cached

import (
	"context"
	"strconv"
	"time"

	"divvy/internal/cache"
	"divvy/internal/core"
	"divvy/internal/ledger"
)

const (
	maxCachedGroups = 256
	entryTTL        = 10 * time.Minute
	sweepInterval   = 5 * time.Minute
)

// Store wraps a ledger.Store, answering GetGroup and MembersOf from an
// LRU cache when possible. All other operations pass through unchanged.
type Store struct {
	ledger.Store

	groups  *cache.LRUCache[core.Group]
	members *cache.LRUCache[[]core.Member]
	manager *cache.Manager
}

func New(inner ledger.Store) *Store {
	s := &Store{
		Store:   inner,
		groups:  cache.NewLRUCache[core.Group](maxCachedGroups, entryTTL),
		members: cache.NewLRUCache[[]core.Member](maxCachedGroups, entryTTL),
		manager: cache.NewManager(),
	}
	s.manager.Register(s.groups)
	s.manager.Register(s.members)
	s.manager.StartCleanup(sweepInterval)
	return s
}

// Close stops the background expiry sweep. The inner store is not closed.
func (s *Store) Close() {
	s.manager.Stop()
}

func (s *Store) GetGroup(ctx context.Context, id core.GroupID) (core.Group, error) {
	key := groupKey(id)
	if g, ok := s.groups.Get(key); ok {
		return g, nil
	}
	g, err := s.Store.GetGroup(ctx, id)
	if err != nil {
		return core.Group{}, err
	}
	s.groups.Set(key, g)
	return g, nil
}

func (s *Store) MembersOf(ctx context.Context, id core.GroupID) ([]core.Member, error) {
	key := groupKey(id)
	if ms, ok := s.members.Get(key); ok {
		// Copy so callers cannot mutate the cached slice.
		return append([]core.Member(nil), ms...), nil
	}
	ms, err := s.Store.MembersOf(ctx, id)
	if err != nil {
		return nil, err
	}
	s.members.Set(key, append([]core.Member(nil), ms...))
	return ms, nil
}

func groupKey(id core.GroupID) string {
	return strconv.FormatInt(int64(id), 10)
}
