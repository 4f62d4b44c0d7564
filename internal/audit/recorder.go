// Package audit provides the sinks that receive transaction history
// entries: the SQL history table, an AMQP event stream, and a fan-out that
// feeds several sinks at once.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/models"
)

// HistoryStore is the subset of storage.Store the SQL recorder writes to.
type HistoryStore interface {
	CreateTransaction(ctx context.Context, entry *models.TransactionHistory) error
	CancelExpenseTransactions(ctx context.Context, expenseID, updatedBy string) (int64, error)
}

// StoreRecorder writes entries to the transaction_history table.
type StoreRecorder struct {
	store HistoryStore
}

var _ ledger.Recorder = (*StoreRecorder)(nil)

func NewStoreRecorder(store HistoryStore) *StoreRecorder {
	return &StoreRecorder{store: store}
}

func (r *StoreRecorder) Record(ctx context.Context, entry *models.TransactionHistory) error {
	if err := r.store.CreateTransaction(ctx, entry); err != nil {
		return fmt.Errorf("failed to record %s transaction: %w", entry.Type, err)
	}
	return nil
}

func (r *StoreRecorder) CancelExpense(ctx context.Context, expenseID, cancelledBy string) error {
	n, err := r.store.CancelExpenseTransactions(ctx, expenseID, cancelledBy)
	if err != nil {
		return fmt.Errorf("failed to cancel transactions for expense %s: %w", expenseID, err)
	}
	slog.Debug("Cancelled expense transactions", "expense_id", expenseID, "count", n)
	return nil
}

// Fanout forwards every call to each recorder in order. All recorders are
// called even if one fails; the failures are joined.
type Fanout []ledger.Recorder

var _ ledger.Recorder = Fanout(nil)

func (f Fanout) Record(ctx context.Context, entry *models.TransactionHistory) error {
	var errs []error
	for _, r := range f {
		if err := r.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) CancelExpense(ctx context.Context, expenseID, cancelledBy string) error {
	var errs []error
	for _, r := range f {
		if err := r.CancelExpense(ctx, expenseID, cancelledBy); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
