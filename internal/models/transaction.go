package models

import "github.com/shopspring/decimal"

// TransactionType classifies an audit entry.
type TransactionType string

const (
	TransactionExpense           TransactionType = "expense"
	TransactionPayment           TransactionType = "payment"
	TransactionSettlement        TransactionType = "settlement"
	TransactionExpenseCompletion TransactionType = "expense_completion"
	TransactionExpenseDeletion   TransactionType = "expense_deletion"
)

// TransactionStatus is the status of an audit entry.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionConfirmed TransactionStatus = "confirmed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionCancelled TransactionStatus = "cancelled"
)

// TransactionHistory is an append-only record of a ledger-affecting event.
// It is observational: balances are never derived from it. The only
// mutation ever applied is marking it cancelled when its expense is deleted.
type TransactionHistory struct {
	// ID is a human-readable identifier (TXN-<unix-nanos>-<random>).
	ID string

	Type TransactionType

	// PayerID is who paid: the expense payer or the debtor of a payment.
	PayerID string

	// ReceiverID is the creditor for payments and settlements.
	ReceiverID string

	GroupID string

	// Amount is the snapshot amount for this entry. Never negative.
	Amount decimal.Decimal

	Status TransactionStatus

	// PaymentMethod is "N/A" for expense entries.
	PaymentMethod string

	RelatedExpenseID string
	RelatedPaymentID string

	Description string
	Category    string

	// Metadata holds event-specific details (split breakdown, update
	// delta, settlement percentages). Serialized as JSON.
	Metadata map[string]any

	TransactionDate int64
	CreatedAt       int64
	UpdatedAt       int64
	CreatedBy       string
	UpdatedBy       string
}

// TransactionStats summarizes a user's confirmed history entries.
type TransactionStats struct {
	// TotalSpent sums expenses the user paid for.
	TotalSpent decimal.Decimal
	// TotalReceived sums payments and settlements the user received.
	TotalReceived decimal.Decimal
	// TotalPaid sums payments and settlements the user made.
	TotalPaid decimal.Decimal
	ByType    []*TypeTotal
}

// NetBalance is what the user received minus what they paid.
func (s *TransactionStats) NetBalance() decimal.Decimal {
	return s.TotalReceived.Sub(s.TotalPaid)
}

// TypeTotal counts and sums entries of one type.
type TypeTotal struct {
	Type  TransactionType
	Count int
	Total decimal.Decimal
}
