package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/groupledger/internal/models"
)

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakeChannel struct {
	mu     sync.Mutex
	sent   []published
	err    error
	closed bool
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestPublisherRecord(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisherWithChannel(ch, "ledger", "history")

	entry := &models.TransactionHistory{
		ID:       "TXN-1-ABCDEF12",
		Type:     models.TransactionSettlement,
		PayerID:  "bob",
		GroupID:  "g1",
		Amount:   decimal.RequireFromString("12.5"),
		Status:   models.TransactionConfirmed,
		Metadata: map[string]any{"confirmation_code": "GC-1"},
	}
	require.NoError(t, p.Record(context.Background(), entry))

	require.Len(t, ch.sent, 1)
	sent := ch.sent[0]
	assert.Equal(t, "ledger", sent.exchange)
	assert.Equal(t, "history", sent.key)
	assert.Equal(t, "application/json", sent.msg.ContentType)
	assert.Equal(t, amqp091.Persistent, sent.msg.DeliveryMode)
	assert.Equal(t, EventTransactionRecorded, sent.msg.Type)

	event, err := EventFromJSON(sent.msg.Body)
	require.NoError(t, err)
	require.NotNil(t, event.Transaction)
	assert.Equal(t, "TXN-1-ABCDEF12", event.Transaction.ID)
	assert.Equal(t, "settlement", event.Transaction.Type)
	assert.Equal(t, "12.50", event.Transaction.Amount)
	assert.Equal(t, "GC-1", event.Transaction.Metadata["confirmation_code"])
}

func TestPublisherCancelExpense(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisherWithChannel(ch, "ledger", "history")

	require.NoError(t, p.CancelExpense(context.Background(), "exp-1", "alice"))

	require.Len(t, ch.sent, 1)
	event, err := EventFromJSON(ch.sent[0].msg.Body)
	require.NoError(t, err)
	assert.Equal(t, EventExpenseCancelled, event.Kind)
	assert.Equal(t, "exp-1", event.ExpenseID)
	assert.Equal(t, "alice", event.CancelledBy)
	assert.Nil(t, event.Transaction)
}

func TestPublisherError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := newPublisherWithChannel(ch, "ledger", "history")

	err := p.CancelExpense(context.Background(), "exp-1", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), EventExpenseCancelled)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestPublisherReopensClosedChannel(t *testing.T) {
	broken := &fakeChannel{err: amqp091.ErrClosed}
	fresh := &fakeChannel{}
	p := newPublisherWithChannel(broken, "ledger", "history")
	opened := 0
	p.open = func() (channel, error) {
		opened++
		return fresh, nil
	}

	require.NoError(t, p.CancelExpense(context.Background(), "exp-1", "alice"))
	assert.True(t, broken.closed)
	assert.Empty(t, broken.sent)
	assert.Len(t, fresh.sent, 1)

	require.NoError(t, p.CancelExpense(context.Background(), "exp-2", "alice"))
	assert.Equal(t, 1, opened)
	assert.Len(t, fresh.sent, 2)
}

func TestPublisherRetriesOpenOnNextPublish(t *testing.T) {
	p := newPublisherWithChannel(&fakeChannel{err: amqp091.ErrClosed}, "ledger", "history")
	fresh := &fakeChannel{}
	attempts := 0
	p.open = func() (channel, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("connection refused")
		}
		return fresh, nil
	}

	err := p.CancelExpense(context.Background(), "exp-1", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	require.NoError(t, p.CancelExpense(context.Background(), "exp-1", "alice"))
	assert.Equal(t, 2, attempts)
	assert.Len(t, fresh.sent, 1)

	require.NoError(t, p.Close())
	assert.True(t, fresh.closed)
}
