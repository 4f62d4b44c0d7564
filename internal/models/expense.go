package models

import "github.com/shopspring/decimal"

// ExpenseStatus is the lifecycle status of an expense.
type ExpenseStatus string

const (
	ExpensePending ExpenseStatus = "pending"
	ExpensePaid    ExpenseStatus = "paid"
)

// Valid reports whether s is a known expense status.
func (s ExpenseStatus) Valid() bool {
	return s == ExpensePending || s == ExpensePaid
}

// Expense records an amount fronted by one or more payers and split
// between a subset of group members.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// GroupID is the group that owns the expense.
	GroupID string

	// Description is the human-readable label (e.g., "Groceries").
	Description string

	// Category is an optional grouping label; defaults to "General".
	Category string

	// Amount is the total cost of the expense. Always positive.
	Amount decimal.Decimal

	// PaidBy lists the payer user IDs in the order they were given.
	// The first payer is the implied creditor for expense-tied payments.
	PaidBy []string

	// SplitBetween lists the member IDs the cost is divided across.
	// Defaults to every group member at creation time.
	SplitBetween []string

	// Status is pending until the expense is marked paid.
	Status ExpenseStatus

	// Date is the Unix timestamp the expense occurred.
	Date int64

	// CreatedBy is the user ID that recorded the expense.
	CreatedBy string

	CreatedAt int64
	UpdatedAt int64
}

// IsPayer reports whether userID fronted part of the expense.
func (e *Expense) IsPayer(userID string) bool {
	for _, p := range e.PaidBy {
		if p == userID {
			return true
		}
	}
	return false
}

// PrimaryPayer returns the first payer, or "" when there is none.
func (e *Expense) PrimaryPayer() string {
	if len(e.PaidBy) == 0 {
		return ""
	}
	return e.PaidBy[0]
}
