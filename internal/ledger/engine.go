// Package ledger turns expenses, payments and settlements into pairwise
// debt rows and keeps those rows consistent across edits, deletions and
// partial payments.
//
// Every mutating operation runs its whole balance pass inside a single
// store transaction, so a failure leaves the ledger exactly as it was.
// Audit entries are written afterwards on a best-effort basis.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// Engine is the entry point for every ledger-affecting operation. The
// caller's user ID is passed explicitly to each method.
type Engine struct {
	store    Store
	recorder Recorder
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over store. A nil recorder discards audit entries.
func NewEngine(store Store, recorder Recorder, opts ...Option) *Engine {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	e := &Engine{store: store, recorder: recorder, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// runPass executes fn in one store transaction and records the outcome.
func (e *Engine) runPass(ctx context.Context, op string, fn func(tx storage.Tx) error) error {
	err := e.store.RunInTx(ctx, fn)
	err = consistency(op, err)

	outcome := "ok"
	if err != nil {
		outcome = CodeOf(err)
	}
	metrics.LedgerPasses.WithLabelValues(op, outcome).Inc()
	return err
}

// bestEffort runs an audit write and logs its failure. It never returns an error.
func (e *Engine) bestEffort(ctx context.Context, what string, fn func(ctx context.Context) error) {
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		metrics.AuditFailures.WithLabelValues(what).Inc()
		slog.Warn("Failed to write transaction history", "event", what, "error", err)
	}
}

// memberGroup loads the group and checks that userID belongs to it.
func memberGroup(ctx context.Context, tx storage.Tx, groupID, userID string) (*models.Group, error) {
	group, err := tx.GetGroup(ctx, groupID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, withDetail(ErrGroupNotFound, "%s", groupID)
	}
	if err != nil {
		return nil, err
	}
	if !group.HasMember(userID) {
		return nil, ErrAccessDenied
	}
	return group, nil
}

// loadExpense maps a missing expense to EXPENSE_NOT_FOUND.
func loadExpense(ctx context.Context, tx storage.Tx, expenseID string) (*models.Expense, error) {
	expense, err := tx.GetExpense(ctx, expenseID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, withDetail(ErrExpenseNotFound, "%s", expenseID)
	}
	return expense, err
}

// newTransaction builds an audit entry with a fresh TXN identifier.
func (e *Engine) newTransaction(txType models.TransactionType, createdBy string) *models.TransactionHistory {
	now := e.now()
	return &models.TransactionHistory{
		ID:              fmt.Sprintf("TXN-%d-%s", now.UnixNano(), strings.ToUpper(uuid.NewString()[:8])),
		Type:            txType,
		Status:          models.TransactionConfirmed,
		PaymentMethod:   "N/A",
		TransactionDate: now.Unix(),
		CreatedAt:       now.Unix(),
		UpdatedAt:       now.Unix(),
		CreatedBy:       createdBy,
	}
}
