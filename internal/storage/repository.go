// Package storage implements the ledger ports on SQLite. One repository
// instance owns the database handle; appends run in a transaction so a
// record becomes visible in full or not at all.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"divvy/internal/core"
	"divvy/internal/ledger"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) CreateMember(ctx context.Context, name, email string) (core.Member, error) {
	m := core.Member{Name: name, Email: email, CreatedAt: time.Now().UTC()}
	if err := m.Validate(); err != nil {
		return core.Member{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO members (name, email, created_at) VALUES (?, ?, ?)`,
		m.Name, m.Email, m.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: members.email") {
			return core.Member{}, fmt.Errorf("email %q: %w", email, ledger.ErrDuplicateEmail)
		}
		return core.Member{}, fmt.Errorf("insert member: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Member{}, fmt.Errorf("member id: %w", err)
	}
	m.ID = core.MemberID(id)
	return m, nil
}

func (r *SQLiteRepository) CreateGroup(ctx context.Context, name string, members []core.MemberID) (core.Group, error) {
	g := core.Group{Name: name, CreatedAt: time.Now().UTC()}
	if err := g.Validate(); err != nil {
		return core.Group{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Group{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, id := range members {
		if err := memberExistsTx(ctx, tx, id); err != nil {
			return core.Group{}, err
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO groups (name, created_at) VALUES (?, ?)`, g.Name, g.CreatedAt)
	if err != nil {
		return core.Group{}, fmt.Errorf("insert group: %w", err)
	}
	gid, err := res.LastInsertId()
	if err != nil {
		return core.Group{}, fmt.Errorf("group id: %w", err)
	}
	g.ID = core.GroupID(gid)

	for _, id := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO group_members (group_id, member_id) VALUES (?, ?)`,
			g.ID, id); err != nil {
			return core.Group{}, fmt.Errorf("insert group member %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return core.Group{}, fmt.Errorf("commit group: %w", err)
	}
	return g, nil
}

func (r *SQLiteRepository) GetMember(ctx context.Context, id core.MemberID) (core.Member, error) {
	var m core.Member
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, created_at FROM members WHERE id = ?`, id).
		Scan(&m.ID, &m.Name, &m.Email, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Member{}, fmt.Errorf("member %d: %w", id, core.ErrUnknownMember)
	}
	if err != nil {
		return core.Member{}, fmt.Errorf("get member %d: %w", id, err)
	}
	return m, nil
}

func (r *SQLiteRepository) GetGroup(ctx context.Context, id core.GroupID) (core.Group, error) {
	var g core.Group
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Group{}, fmt.Errorf("group %d: %w", id, core.ErrUnknownGroup)
	}
	if err != nil {
		return core.Group{}, fmt.Errorf("get group %d: %w", id, err)
	}
	return g, nil
}

func (r *SQLiteRepository) ListMembers(ctx context.Context) ([]core.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, email, created_at FROM members ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []core.Member
	for rows.Next() {
		var m core.Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListGroups(ctx context.Context) ([]core.Group, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var out []core.Group
	for rows.Next() {
		var g core.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MembersOf(ctx context.Context, id core.GroupID) ([]core.Member, error) {
	if _, err := r.GetGroup(ctx, id); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.name, m.email, m.created_at
		 FROM members m
		 JOIN group_members gm ON gm.member_id = m.id
		 WHERE gm.group_id = ?
		 ORDER BY m.id`, id)
	if err != nil {
		return nil, fmt.Errorf("members of group %d: %w", id, err)
	}
	defer rows.Close()

	var out []core.Member
	for rows.Next() {
		var m core.Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GroupsOf(ctx context.Context, id core.MemberID) ([]core.Group, error) {
	if _, err := r.GetMember(ctx, id); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.id, g.name, g.created_at
		 FROM groups g
		 JOIN group_members gm ON gm.group_id = g.id
		 WHERE gm.member_id = ?
		 ORDER BY g.id`, id)
	if err != nil {
		return nil, fmt.Errorf("groups of member %d: %w", id, err)
	}
	defer rows.Close()

	var out []core.Group
	for rows.Next() {
		var g core.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// AppendExpense writes the record and its splits in one transaction.
func (r *SQLiteRepository) AppendExpense(ctx context.Context, rec core.ExpenseRecord) (core.ExpenseRecord, error) {
	if err := rec.Validate(); err != nil {
		return core.ExpenseRecord{}, err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM groups WHERE id = ?`, rec.GroupID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExpenseRecord{}, fmt.Errorf("group %d: %w", rec.GroupID, core.ErrUnknownGroup)
	}
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("check group %d: %w", rec.GroupID, err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO expenses (group_id, description, amount_cents, paid_by, split_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.GroupID, rec.Description, rec.Total.Cents, rec.PaidBy, string(rec.Policy.Type), rec.CreatedAt)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("expense id: %w", err)
	}
	rec.ID = id

	for memberID, share := range rec.Splits {
		var weight any
		if rec.Policy.Type == core.SplitPercentage {
			weight = rec.Policy.Weights[memberID]
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO expense_splits (expense_id, member_id, amount_cents, weight_bps)
			 VALUES (?, ?, ?, ?)`,
			rec.ID, memberID, share.Cents, weight); err != nil {
			return core.ExpenseRecord{}, fmt.Errorf("insert split for member %d: %w", memberID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("commit expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense appended",
		"expense_id", rec.ID,
		"group_id", rec.GroupID,
		"amount_cents", rec.Total.Cents,
		"split_type", rec.Policy.Type)
	return rec, nil
}

// ExpensesOf replays a group's ledger in insertion order.
func (r *SQLiteRepository) ExpensesOf(ctx context.Context, id core.GroupID) ([]core.ExpenseRecord, error) {
	if _, err := r.GetGroup(ctx, id); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, group_id, description, amount_cents, paid_by, split_type, created_at
		 FROM expenses WHERE group_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("expenses of group %d: %w", id, err)
	}
	defer rows.Close()

	var out []core.ExpenseRecord
	index := make(map[int64]int)
	for rows.Next() {
		var rec core.ExpenseRecord
		var splitType string
		if err := rows.Scan(&rec.ID, &rec.GroupID, &rec.Description,
			&rec.Total.Cents, &rec.PaidBy, &splitType, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		rec.Policy = core.SplitPolicy{Type: core.SplitType(splitType)}
		rec.Splits = make(map[core.MemberID]core.Money)
		index[rec.ID] = len(out)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	srows, err := r.db.QueryContext(ctx,
		`SELECT s.expense_id, s.member_id, s.amount_cents, s.weight_bps
		 FROM expense_splits s
		 JOIN expenses e ON e.id = s.expense_id
		 WHERE e.group_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("splits of group %d: %w", id, err)
	}
	defer srows.Close()

	for srows.Next() {
		var expenseID int64
		var memberID core.MemberID
		var cents int64
		var weight sql.NullInt64
		if err := srows.Scan(&expenseID, &memberID, &cents, &weight); err != nil {
			return nil, fmt.Errorf("scan split: %w", err)
		}
		i, ok := index[expenseID]
		if !ok {
			continue
		}
		out[i].Splits[memberID] = core.Money{Cents: cents}
		if weight.Valid {
			if out[i].Policy.Weights == nil {
				out[i].Policy.Weights = make(map[core.MemberID]int64)
			}
			out[i].Policy.Weights[memberID] = weight.Int64
		}
	}
	return out, srows.Err()
}

// GetExpense loads a single record with its splits. The audit worker uses
// this to resolve thin queue messages.
func (r *SQLiteRepository) GetExpense(ctx context.Context, id int64) (core.ExpenseRecord, error) {
	var rec core.ExpenseRecord
	var splitType string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, group_id, description, amount_cents, paid_by, split_type, created_at
		 FROM expenses WHERE id = ?`, id).
		Scan(&rec.ID, &rec.GroupID, &rec.Description, &rec.Total.Cents,
			&rec.PaidBy, &splitType, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExpenseRecord{}, fmt.Errorf("expense %d: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	rec.Policy = core.SplitPolicy{Type: core.SplitType(splitType)}
	rec.Splits = make(map[core.MemberID]core.Money)

	rows, err := r.db.QueryContext(ctx,
		`SELECT member_id, amount_cents, weight_bps FROM expense_splits WHERE expense_id = ?`, id)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("splits of expense %d: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var memberID core.MemberID
		var cents int64
		var weight sql.NullInt64
		if err := rows.Scan(&memberID, &cents, &weight); err != nil {
			return core.ExpenseRecord{}, fmt.Errorf("scan split: %w", err)
		}
		rec.Splits[memberID] = core.Money{Cents: cents}
		if weight.Valid {
			if rec.Policy.Weights == nil {
				rec.Policy.Weights = make(map[core.MemberID]int64)
			}
			rec.Policy.Weights[memberID] = weight.Int64
		}
	}
	return rec, rows.Err()
}

// AuditEntry is one row of the audit trail the worker maintains.
type AuditEntry struct {
	ID         string
	ExpenseID  int64
	GroupID    core.GroupID
	Amount     core.Money
	RecordedAt time.Time
}

// AppendAudit writes the audit row and flips the expense's audited flag in
// one transaction so the catch-up sweep never double-audits.
func (r *SQLiteRepository) AppendAudit(ctx context.Context, entry AuditEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO audit_log (id, expense_id, group_id, amount_cents, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.ExpenseID, entry.GroupID, entry.Amount.Cents, entry.RecordedAt); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE expenses SET audited = 1 WHERE id = ?`, entry.ExpenseID); err != nil {
		return fmt.Errorf("mark expense audited: %w", err)
	}
	return tx.Commit()
}

// UnauditedExpenses returns up to limit expense IDs that have no audit row
// yet, oldest first. The worker's periodic sweep uses this to recover from
// missed queue messages.
func (r *SQLiteRepository) UnauditedExpenses(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM expenses WHERE audited = 0 ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unaudited expenses: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expense id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func memberExistsTx(ctx context.Context, tx *sql.Tx, id core.MemberID) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM members WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("member %d: %w", id, core.ErrUnknownMember)
	}
	if err != nil {
		return fmt.Errorf("check member %d: %w", id, err)
	}
	return nil
}
