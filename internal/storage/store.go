// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/groupledger/internal/models"
)

// ErrNotFound is returned (wrapped) when a group, expense or payment does
// not exist.
var ErrNotFound = errors.New("not found")

// Tx is the set of operations a ledger pass may perform. Every method is
// available both on a Store (auto-committed) and inside RunInTx, where all
// calls share one database transaction.
type Tx interface {
	// GetGroup retrieves a group with its members in join order.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// RemoveGroupMember deletes a membership. Removing a non-member is a no-op.
	RemoveGroupMember(ctx context.Context, groupID, userID string) error

	// GetUsersByIDs returns a map of user ID to user. Unknown IDs are omitted.
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)

	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)
	CreateExpense(ctx context.Context, expense *models.Expense) error
	UpdateExpense(ctx context.Context, expense *models.Expense) error
	DeleteExpense(ctx context.Context, expenseID string) error

	CreatePayment(ctx context.Context, payment *models.Payment) error

	// GetBalance returns the row for key, or nil and no error if absent.
	GetBalance(ctx context.Context, key models.BalanceKey) (*models.Balance, error)

	// SaveBalance inserts the row or overwrites the amount and status of the
	// existing row with the same key.
	SaveBalance(ctx context.Context, balance *models.Balance) error

	// DeleteBalance removes the row for key. Deleting a missing row is a no-op.
	DeleteBalance(ctx context.Context, key models.BalanceKey) error

	// ListDebtorBalances returns the rows where debtorID owes someone in
	// the group, in storage order.
	ListDebtorBalances(ctx context.Context, groupID, debtorID string) ([]*models.Balance, error)

	// ListMemberBalances returns every row in the group where userID is
	// either debtor or creditor.
	ListMemberBalances(ctx context.Context, groupID, userID string) ([]*models.Balance, error)
}

// TransactionFilter narrows a transaction history listing. Empty fields
// match everything.
type TransactionFilter struct {
	// UserID matches entries where the user is payer, receiver or creator.
	UserID  string
	GroupID string
	Type    models.TransactionType
	Status  models.TransactionStatus

	// From and To bound the transaction date (Unix seconds, inclusive).
	From int64
	To   int64

	Limit  int
	Offset int
}

// Store defines the interface for ledger storage operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the service layer.
type Store interface {
	Tx

	// RunInTx runs fn inside one transaction. If fn returns an error the
	// transaction is rolled back and the error is returned unchanged.
	// Transactions run one at a time.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	// Users. Lookups return nil and no error when the user does not exist.
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserDisplayName(ctx context.Context, id, displayName string) error

	// Groups
	CreateGroup(ctx context.Context, group *models.Group) error
	AddGroupMembers(ctx context.Context, groupID string, userIDs []string) error
	ListGroupsForUser(ctx context.Context, userID string) ([]*models.Group, error)

	// Expenses
	ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error)

	// Payments
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	ListPaymentsByGroup(ctx context.Context, groupID string) ([]*models.Payment, error)

	// Balances
	ListGroupBalances(ctx context.Context, groupID string) ([]*models.Balance, error)
	ListUserBalances(ctx context.Context, userID string) ([]*models.Balance, error)

	// Transaction history
	CreateTransaction(ctx context.Context, entry *models.TransactionHistory) error
	CancelExpenseTransactions(ctx context.Context, expenseID, updatedBy string) (int64, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*models.TransactionHistory, int, error)
	GetTransaction(ctx context.Context, id string) (*models.TransactionHistory, error)
	TransactionStats(ctx context.Context, userID string, from, to int64) (*models.TransactionStats, error)

	// Close releases any resources held by the store.
	Close() error
}
