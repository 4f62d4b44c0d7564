package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/groupledger/internal/models"
)

const balanceColumns = `id, group_id, debtor_id, creditor_id, amount, status, updated_at`

// GetBalance returns the row for key, or nil if none exists.
func (q queries) GetBalance(ctx context.Context, key models.BalanceKey) (*models.Balance, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM balances WHERE group_id = ? AND debtor_id = ? AND creditor_id = ?`,
		key.GroupID, key.DebtorID, key.CreditorID,
	)
	balance, err := scanBalance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// SaveBalance upserts a row keyed by (group, debtor, creditor). The unique
// constraint guarantees a second row for the same key is never created.
func (q queries) SaveBalance(ctx context.Context, balance *models.Balance) error {
	if balance.ID == "" {
		balance.ID = uuid.New().String()
	}
	if balance.Status == "" {
		balance.Status = models.BalanceUnpaid
	}
	balance.UpdatedAt = time.Now().Unix()

	_, err := q.q.ExecContext(ctx,
		`INSERT INTO balances (`+balanceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (group_id, debtor_id, creditor_id)
		 DO UPDATE SET amount = excluded.amount, status = excluded.status, updated_at = excluded.updated_at`,
		balance.ID, balance.GroupID, balance.DebtorID, balance.CreditorID,
		balance.Amount, string(balance.Status), balance.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	return nil
}

// DeleteBalance removes the row for key.
func (q queries) DeleteBalance(ctx context.Context, key models.BalanceKey) error {
	_, err := q.q.ExecContext(ctx,
		"DELETE FROM balances WHERE group_id = ? AND debtor_id = ? AND creditor_id = ?",
		key.GroupID, key.DebtorID, key.CreditorID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete balance: %w", err)
	}
	return nil
}

// ListDebtorBalances returns the rows where debtorID owes someone in the group.
func (q queries) ListDebtorBalances(ctx context.Context, groupID, debtorID string) ([]*models.Balance, error) {
	return q.listBalances(ctx,
		`SELECT `+balanceColumns+` FROM balances WHERE group_id = ? AND debtor_id = ? ORDER BY rowid`,
		groupID, debtorID,
	)
}

// ListMemberBalances returns the rows in the group that involve userID on either side.
func (q queries) ListMemberBalances(ctx context.Context, groupID, userID string) ([]*models.Balance, error) {
	return q.listBalances(ctx,
		`SELECT `+balanceColumns+` FROM balances
		 WHERE group_id = ? AND (debtor_id = ? OR creditor_id = ?) ORDER BY rowid`,
		groupID, userID, userID,
	)
}

// ListGroupBalances returns every row in the group.
func (s *SQLiteStore) ListGroupBalances(ctx context.Context, groupID string) ([]*models.Balance, error) {
	return s.listBalances(ctx,
		`SELECT `+balanceColumns+` FROM balances WHERE group_id = ? ORDER BY rowid`,
		groupID,
	)
}

// ListUserBalances returns every row, across groups, that involves userID.
func (s *SQLiteStore) ListUserBalances(ctx context.Context, userID string) ([]*models.Balance, error) {
	return s.listBalances(ctx,
		`SELECT `+balanceColumns+` FROM balances WHERE debtor_id = ? OR creditor_id = ? ORDER BY group_id, rowid`,
		userID, userID,
	)
}

func (q queries) listBalances(ctx context.Context, query string, args ...any) ([]*models.Balance, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	defer rows.Close()

	var balances []*models.Balance
	for rows.Next() {
		balance, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances = append(balances, balance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate balances: %w", err)
	}
	return balances, nil
}

func scanBalance(row scanner) (*models.Balance, error) {
	balance := &models.Balance{}
	var status string
	err := row.Scan(
		&balance.ID,
		&balance.GroupID,
		&balance.DebtorID,
		&balance.CreditorID,
		&balance.Amount,
		&status,
		&balance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	balance.Status = models.BalanceStatus(status)
	return balance, nil
}
