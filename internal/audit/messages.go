package audit

import (
	"encoding/json"
	"time"

	"github.com/mmynk/groupledger/internal/models"
)

// Event kinds published on the exchange.
const (
	EventTransactionRecorded = "transaction.recorded"
	EventExpenseCancelled    = "expense.cancelled"
)

// Event is the JSON message published for every audit call.
type Event struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	Transaction *TransactionMessage `json:"transaction,omitempty"`

	// Set for expense.cancelled.
	ExpenseID   string `json:"expense_id,omitempty"`
	CancelledBy string `json:"cancelled_by,omitempty"`
}

// TransactionMessage is the wire form of a history entry.
type TransactionMessage struct {
	ID               string         `json:"id"`
	Type             string         `json:"type"`
	PayerID          string         `json:"payer_id"`
	ReceiverID       string         `json:"receiver_id,omitempty"`
	GroupID          string         `json:"group_id"`
	Amount           string         `json:"amount"`
	Status           string         `json:"status"`
	PaymentMethod    string         `json:"payment_method"`
	RelatedExpenseID string         `json:"related_expense_id,omitempty"`
	RelatedPaymentID string         `json:"related_payment_id,omitempty"`
	Description      string         `json:"description"`
	Category         string         `json:"category,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	TransactionDate  int64          `json:"transaction_date"`
	CreatedBy        string         `json:"created_by"`
}

// NewTransactionEvent wraps a history entry.
func NewTransactionEvent(entry *models.TransactionHistory) *Event {
	return &Event{
		Kind:      EventTransactionRecorded,
		Timestamp: time.Now(),
		Transaction: &TransactionMessage{
			ID:               entry.ID,
			Type:             string(entry.Type),
			PayerID:          entry.PayerID,
			ReceiverID:       entry.ReceiverID,
			GroupID:          entry.GroupID,
			Amount:           entry.Amount.StringFixed(2),
			Status:           string(entry.Status),
			PaymentMethod:    entry.PaymentMethod,
			RelatedExpenseID: entry.RelatedExpenseID,
			RelatedPaymentID: entry.RelatedPaymentID,
			Description:      entry.Description,
			Category:         entry.Category,
			Metadata:         entry.Metadata,
			TransactionDate:  entry.TransactionDate,
			CreatedBy:        entry.CreatedBy,
		},
	}
}

// NewCancelEvent announces that an expense's history was cancelled.
func NewCancelEvent(expenseID, cancelledBy string) *Event {
	return &Event{
		Kind:        EventExpenseCancelled,
		Timestamp:   time.Now(),
		ExpenseID:   expenseID,
		CancelledBy: cancelledBy,
	}
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes an event published by Publisher.
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
