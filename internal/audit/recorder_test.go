package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/models"
)

type fakeHistory struct {
	entries   []*models.TransactionHistory
	cancelled []string
	err       error
}

func (h *fakeHistory) CreateTransaction(_ context.Context, entry *models.TransactionHistory) error {
	if h.err != nil {
		return h.err
	}
	h.entries = append(h.entries, entry)
	return nil
}

func (h *fakeHistory) CancelExpenseTransactions(_ context.Context, expenseID, _ string) (int64, error) {
	if h.err != nil {
		return 0, h.err
	}
	h.cancelled = append(h.cancelled, expenseID)
	return 1, nil
}

func TestStoreRecorder(t *testing.T) {
	ctx := context.Background()
	history := &fakeHistory{}
	r := NewStoreRecorder(history)

	entry := &models.TransactionHistory{ID: "TXN-1", Type: models.TransactionExpense}
	require.NoError(t, r.Record(ctx, entry))
	require.NoError(t, r.CancelExpense(ctx, "exp-1", "alice"))
	assert.Equal(t, []*models.TransactionHistory{entry}, history.entries)
	assert.Equal(t, []string{"exp-1"}, history.cancelled)

	boom := errors.New("disk full")
	history.err = boom
	err := r.Record(ctx, entry)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "expense")
}

func TestFanout(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("broker down")
	failing := &fakeHistory{err: boom}
	ok := &fakeHistory{}
	ch := &fakeChannel{}

	f := Fanout{NewStoreRecorder(failing), NewStoreRecorder(ok), newPublisherWithChannel(ch, "x", "k")}

	err := f.Record(ctx, &models.TransactionHistory{ID: "TXN-2", Type: models.TransactionPayment})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, ok.entries, 1, "later recorders still run")
	assert.Len(t, ch.sent, 1)

	err = f.CancelExpense(ctx, "exp-2", "bob")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"exp-2"}, ok.cancelled)

	assert.NoError(t, Fanout{ledger.NopRecorder{}}.Record(ctx, &models.TransactionHistory{}))
}
