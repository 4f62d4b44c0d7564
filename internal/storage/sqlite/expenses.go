package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

const expenseColumns = `id, group_id, description, category, amount, status, date, created_by, created_at, updated_at`

// CreateExpense persists a new expense with its payers and split members.
func (q queries) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	if expense.CreatedAt == 0 {
		expense.CreatedAt = now
	}
	if expense.UpdatedAt == 0 {
		expense.UpdatedAt = expense.CreatedAt
	}
	if expense.Date == 0 {
		expense.Date = expense.CreatedAt
	}

	_, err := q.q.ExecContext(ctx,
		`INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.GroupID, expense.Description, expense.Category, expense.Amount,
		string(expense.Status), expense.Date, expense.CreatedBy, expense.CreatedAt, expense.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	return q.insertExpenseMembers(ctx, expense)
}

func (q queries) insertExpenseMembers(ctx context.Context, expense *models.Expense) error {
	for i, userID := range expense.PaidBy {
		_, err := q.q.ExecContext(ctx,
			"INSERT INTO expense_payers (expense_id, user_id, position) VALUES (?, ?, ?)",
			expense.ID, userID, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense payer: %w", err)
		}
	}
	for i, userID := range expense.SplitBetween {
		_, err := q.q.ExecContext(ctx,
			"INSERT INTO expense_splits (expense_id, user_id, position) VALUES (?, ?, ?)",
			expense.ID, userID, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense split: %w", err)
		}
	}
	return nil
}

// GetExpense retrieves an expense by ID, including payers and split members.
func (q queries) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, expenseID)
	expense, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	if err := q.loadExpenseMembers(ctx, expense); err != nil {
		return nil, err
	}
	return expense, nil
}

func (q queries) loadExpenseMembers(ctx context.Context, expense *models.Expense) error {
	payers, err := q.userColumn(ctx,
		"SELECT user_id FROM expense_payers WHERE expense_id = ? ORDER BY position", expense.ID)
	if err != nil {
		return fmt.Errorf("failed to get expense payers: %w", err)
	}
	splits, err := q.userColumn(ctx,
		"SELECT user_id FROM expense_splits WHERE expense_id = ? ORDER BY position", expense.ID)
	if err != nil {
		return fmt.Errorf("failed to get expense splits: %w", err)
	}
	expense.PaidBy = payers
	expense.SplitBetween = splits
	return nil
}

func (q queries) userColumn(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateExpense overwrites the mutable fields of an expense and replaces
// its payer and split lists.
func (q queries) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	expense.UpdatedAt = time.Now().Unix()

	res, err := q.q.ExecContext(ctx,
		`UPDATE expenses SET description = ?, category = ?, amount = ?, status = ?, date = ?, updated_at = ?
		 WHERE id = ?`,
		expense.Description, expense.Category, expense.Amount, string(expense.Status),
		expense.Date, expense.UpdatedAt, expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %s: %w", expense.ID, storage.ErrNotFound)
	}

	if _, err := q.q.ExecContext(ctx, "DELETE FROM expense_payers WHERE expense_id = ?", expense.ID); err != nil {
		return fmt.Errorf("failed to clear expense payers: %w", err)
	}
	if _, err := q.q.ExecContext(ctx, "DELETE FROM expense_splits WHERE expense_id = ?", expense.ID); err != nil {
		return fmt.Errorf("failed to clear expense splits: %w", err)
	}

	return q.insertExpenseMembers(ctx, expense)
}

// DeleteExpense removes an expense. Payers and splits cascade.
func (q queries) DeleteExpense(ctx context.Context, expenseID string) error {
	res, err := q.q.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", expenseID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}
	return nil
}

// ListExpensesByGroup returns the group's expenses, most recent first.
func (s *SQLiteStore) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE group_id = ? ORDER BY date DESC, created_at DESC, id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}

	var expenses []*models.Expense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, expense)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	for _, expense := range expenses {
		if err := s.loadExpenseMembers(ctx, expense); err != nil {
			return nil, err
		}
	}

	return expenses, nil
}

func scanExpense(row scanner) (*models.Expense, error) {
	expense := &models.Expense{}
	var status string
	err := row.Scan(
		&expense.ID,
		&expense.GroupID,
		&expense.Description,
		&expense.Category,
		&expense.Amount,
		&status,
		&expense.Date,
		&expense.CreatedBy,
		&expense.CreatedAt,
		&expense.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	expense.Status = models.ExpenseStatus(status)
	return expense, nil
}
