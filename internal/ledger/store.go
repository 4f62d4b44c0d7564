package ledger

import (
	"context"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// Store is the persistence the engine needs: plain reads plus atomic
// passes. storage.Store satisfies it.
type Store interface {
	storage.Tx
	RunInTx(ctx context.Context, fn func(tx storage.Tx) error) error
}

// Recorder receives audit entries for ledger-affecting events. Calls are
// made after the ledger pass has committed; a failing Recorder is logged
// and never rolls anything back.
type Recorder interface {
	Record(ctx context.Context, entry *models.TransactionHistory) error
	CancelExpense(ctx context.Context, expenseID, cancelledBy string) error
}

// NopRecorder discards every entry.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *models.TransactionHistory) error { return nil }
func (NopRecorder) CancelExpense(context.Context, string, string) error     { return nil }
