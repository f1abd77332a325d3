package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"divvy/internal/amqp"
	"divvy/internal/storage"
)

// AuditWorker writes one audit-log row per recorded expense. The queue is
// the fast path; the periodic sweep over unaudited expenses is the safety
// net for lost messages and worker downtime.
type AuditWorker struct {
	storage   *storage.SQLiteRepository
	batchSize int
}

func NewAuditWorker(storage *storage.SQLiteRepository, batchSize int) *AuditWorker {
	return &AuditWorker{
		storage:   storage,
		batchSize: batchSize,
	}
}

// HandleRecordedMessage processes a single expense-recorded message. The
// message carries IDs only; the authoritative amounts come from the ledger.
func (w *AuditWorker) HandleRecordedMessage(ctx context.Context, msg *amqp.ExpenseRecordedMessage) error {
	slog.InfoContext(ctx, "Processing recorded message",
		"expense_id", msg.ExpenseID,
		"group_id", msg.GroupID)

	return w.auditExpense(ctx, msg.ExpenseID)
}

// ProcessUnaudited audits any expenses the queue missed. Safe to call
// repeatedly: auditing is idempotent per expense.
func (w *AuditWorker) ProcessUnaudited(ctx context.Context) error {
	pending, err := w.storage.UnauditedExpenses(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list unaudited expenses: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing unaudited expenses", "count", len(pending))

	errorCount := 0
	for _, id := range pending {
		if err := w.auditExpense(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to audit expense", "expense_id", id, "error", err)
			errorCount++
		}
	}
	if errorCount > 0 {
		return fmt.Errorf("audit sweep: %d of %d expenses failed", errorCount, len(pending))
	}
	return nil
}

// StartupCheck runs a larger sweep at worker startup to recover from
// downtime.
func (w *AuditWorker) StartupCheck(ctx context.Context) error {
	pending, err := w.storage.UnauditedExpenses(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list unaudited expenses for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No unaudited expenses found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found unaudited expenses on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0
	for _, id := range pending {
		if err := w.auditExpense(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to audit expense during startup",
				"expense_id", id, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup audit completed",
		"total", len(pending),
		"audited", successCount,
		"errors", errorCount)

	return nil
}

func (w *AuditWorker) auditExpense(ctx context.Context, id int64) error {
	rec, err := w.storage.GetExpense(ctx, id)
	if err != nil {
		return fmt.Errorf("get expense from storage: %w", err)
	}

	entry := storage.AuditEntry{
		ID:         uuid.NewString(),
		ExpenseID:  rec.ID,
		GroupID:    rec.GroupID,
		Amount:     rec.Total,
		RecordedAt: time.Now().UTC(),
	}
	if err := w.storage.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}

	slog.InfoContext(ctx, "Audited expense",
		"expense_id", rec.ID,
		"group_id", rec.GroupID,
		"audit_id", entry.ID,
		"amount_cents", rec.Total.Cents)

	return nil
}
