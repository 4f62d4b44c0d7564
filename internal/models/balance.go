package models

import "github.com/shopspring/decimal"

// BalanceStatus is the settlement status of a balance row.
type BalanceStatus string

const (
	BalanceUnpaid BalanceStatus = "unpaid"
	BalancePaid   BalanceStatus = "paid"
)

// BalanceKey identifies a ledger row. At most one row exists per key.
type BalanceKey struct {
	GroupID    string
	DebtorID   string
	CreditorID string
}

// Balance is a single directional debt: DebtorID owes CreditorID Amount
// within GroupID. Rows that decay to the epsilon are deleted, never kept at zero.
type Balance struct {
	// ID is the unique identifier for the row (UUID format).
	ID string

	GroupID    string
	DebtorID   string
	CreditorID string

	// Amount is the outstanding magnitude. Never negative.
	Amount decimal.Decimal

	Status BalanceStatus

	// UpdatedAt is the Unix timestamp of the last mutation.
	UpdatedAt int64
}

// Key returns the row's identity triple.
func (b *Balance) Key() BalanceKey {
	return BalanceKey{GroupID: b.GroupID, DebtorID: b.DebtorID, CreditorID: b.CreditorID}
}
