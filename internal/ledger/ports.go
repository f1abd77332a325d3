// Package ledger declares the outbound ports of the settlement engine:
// membership lookups and the append-only expense ledger. Implementations
// live in ledger/memory and storage.
package ledger

import (
	"context"
	"errors"

	"divvy/internal/core"
)

// ErrDuplicateEmail reports a CreateMember with an email that is already
// registered. Emails are unique across the whole store.
var ErrDuplicateEmail = errors.New("email already registered")

type (
	// MembershipReader answers the engine's referential questions. A group
	// or member that does not exist surfaces as core.ErrUnknownGroup /
	// core.ErrUnknownMember from the Get methods.
	MembershipReader interface {
		GetMember(ctx context.Context, id core.MemberID) (core.Member, error)
		GetGroup(ctx context.Context, id core.GroupID) (core.Group, error)
		// MembersOf returns the group's current members, ascending by ID.
		MembersOf(ctx context.Context, id core.GroupID) ([]core.Member, error)
		// GroupsOf returns every group the member belongs to, ascending by ID.
		GroupsOf(ctx context.Context, id core.MemberID) ([]core.Group, error)
	}

	// MembershipWriter creates identities. Group members are fixed at
	// creation; membership changes do not retroactively re-split history.
	MembershipWriter interface {
		CreateMember(ctx context.Context, name, email string) (core.Member, error)
		CreateGroup(ctx context.Context, name string, members []core.MemberID) (core.Group, error)
		ListMembers(ctx context.Context) ([]core.Member, error)
		ListGroups(ctx context.Context) ([]core.Group, error)
	}

	// ExpenseAppender appends one validated, immutable record. The append
	// is atomic: a record becomes visible in full or not at all, and
	// concurrent appends to the same group are serialized by the store.
	ExpenseAppender interface {
		AppendExpense(ctx context.Context, rec core.ExpenseRecord) (core.ExpenseRecord, error)
	}

	// ExpenseLister replays a group's ledger in insertion order, any
	// number of times.
	ExpenseLister interface {
		ExpensesOf(ctx context.Context, id core.GroupID) ([]core.ExpenseRecord, error)
	}

	// Store bundles every port a backend must provide.
	Store interface {
		MembershipReader
		MembershipWriter
		ExpenseAppender
		ExpenseLister
	}
)
