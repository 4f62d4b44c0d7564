package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

const transactionColumns = `id, transaction_type, payer_id, receiver_id, group_id, amount, status,
	payment_method, related_expense_id, related_payment_id, description, category, metadata_json,
	transaction_date, created_at, updated_at, created_by, updated_by`

// CreateTransaction appends an entry to the transaction history.
func (s *SQLiteStore) CreateTransaction(ctx context.Context, entry *models.TransactionHistory) error {
	metadata := []byte("{}")
	if len(entry.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode transaction metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transaction_history (`+transactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.Type), entry.PayerID, entry.ReceiverID, entry.GroupID,
		entry.Amount, string(entry.Status), entry.PaymentMethod,
		entry.RelatedExpenseID, entry.RelatedPaymentID, entry.Description, entry.Category,
		string(metadata), entry.TransactionDate, entry.CreatedAt, entry.UpdatedAt,
		entry.CreatedBy, entry.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// CancelExpenseTransactions marks every entry related to the expense as
// cancelled and returns how many entries changed.
func (s *SQLiteStore) CancelExpenseTransactions(ctx context.Context, expenseID, updatedBy string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transaction_history
		 SET status = ?, updated_at = ?, updated_by = ?, description = '[CANCELLED] ' || description
		 WHERE related_expense_id = ? AND status != ?`,
		string(models.TransactionCancelled), time.Now().Unix(), updatedBy,
		expenseID, string(models.TransactionCancelled),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel transactions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cancelled transactions: %w", err)
	}
	return n, nil
}

// ListTransactions returns the entries matching filter, newest first, and
// the total number of matches ignoring pagination.
func (s *SQLiteStore) ListTransactions(ctx context.Context, filter storage.TransactionFilter) ([]*models.TransactionHistory, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		where = append(where, "(payer_id = ? OR receiver_id = ? OR created_by = ?)")
		args = append(args, filter.UserID, filter.UserID, filter.UserID)
	}
	if filter.GroupID != "" {
		where = append(where, "group_id = ?")
		args = append(args, filter.GroupID)
	}
	if filter.Type != "" {
		where = append(where, "transaction_type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.From > 0 {
		where = append(where, "transaction_date >= ?")
		args = append(args, filter.From)
	}
	if filter.To > 0 {
		where = append(where, "transaction_date <= ?")
		args = append(args, filter.To)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transaction_history"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	query := "SELECT " + transactionColumns + " FROM transaction_history" + clause +
		" ORDER BY transaction_date DESC, created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var entries []*models.TransactionHistory
	for rows.Next() {
		entry, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return entries, total, nil
}

// GetTransaction retrieves a single history entry.
func (s *SQLiteStore) GetTransaction(ctx context.Context, id string) (*models.TransactionHistory, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transaction_history WHERE id = ?", id)
	entry, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// TransactionStats totals the confirmed entries where userID is payer or
// receiver, optionally bounded by transaction date (Unix seconds,
// inclusive; zero means unbounded).
func (s *SQLiteStore) TransactionStats(ctx context.Context, userID string, from, to int64) (*models.TransactionStats, error) {
	where := "status = ? AND (payer_id = ? OR receiver_id = ?)"
	args := []any{string(models.TransactionConfirmed), userID, userID}
	if from > 0 {
		where += " AND transaction_date >= ?"
		args = append(args, from)
	}
	if to > 0 {
		where += " AND transaction_date <= ?"
		args = append(args, to)
	}

	// Amounts are decimal TEXT; SQLite's SUM would coerce them to REAL, so
	// the query only groups and counts and the totals are added up here.
	rows, err := s.db.QueryContext(ctx,
		`SELECT transaction_type, payer_id = ?, receiver_id = ?, COUNT(*), group_concat(amount, ' ')
		 FROM transaction_history WHERE `+where+`
		 GROUP BY transaction_type, payer_id = ?, receiver_id = ?
		 ORDER BY transaction_type`,
		append(append([]any{userID, userID}, args...), userID, userID)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate transactions: %w", err)
	}
	defer rows.Close()

	stats := &models.TransactionStats{
		TotalSpent:    decimal.Zero,
		TotalReceived: decimal.Zero,
		TotalPaid:     decimal.Zero,
	}
	byType := map[models.TransactionType]*models.TypeTotal{}
	for rows.Next() {
		var (
			txType          string
			isPayer, isRecv bool
			count           int
			amounts         string
		)
		if err := rows.Scan(&txType, &isPayer, &isRecv, &count, &amounts); err != nil {
			return nil, fmt.Errorf("failed to scan transaction totals: %w", err)
		}

		total := decimal.Zero
		for _, a := range strings.Fields(amounts) {
			d, err := decimal.NewFromString(a)
			if err != nil {
				return nil, fmt.Errorf("failed to parse transaction amount %q: %w", a, err)
			}
			total = total.Add(d)
		}

		t := models.TransactionType(txType)
		tt, ok := byType[t]
		if !ok {
			tt = &models.TypeTotal{Type: t, Total: decimal.Zero}
			byType[t] = tt
			stats.ByType = append(stats.ByType, tt)
		}
		tt.Count += count
		tt.Total = tt.Total.Add(total)

		switch {
		case t == models.TransactionExpense && isPayer:
			stats.TotalSpent = stats.TotalSpent.Add(total)
		case t == models.TransactionPayment || t == models.TransactionSettlement:
			if isPayer {
				stats.TotalPaid = stats.TotalPaid.Add(total)
			}
			if isRecv {
				stats.TotalReceived = stats.TotalReceived.Add(total)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transaction totals: %w", err)
	}

	return stats, nil
}

func scanTransaction(row scanner) (*models.TransactionHistory, error) {
	entry := &models.TransactionHistory{}
	var txType, status, metadata string
	if err := row.Scan(
		&entry.ID, &txType, &entry.PayerID, &entry.ReceiverID, &entry.GroupID,
		&entry.Amount, &status, &entry.PaymentMethod,
		&entry.RelatedExpenseID, &entry.RelatedPaymentID, &entry.Description, &entry.Category,
		&metadata, &entry.TransactionDate, &entry.CreatedAt, &entry.UpdatedAt,
		&entry.CreatedBy, &entry.UpdatedBy,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	entry.Type = models.TransactionType(txType)
	entry.Status = models.TransactionStatus(status)
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode transaction metadata: %w", err)
		}
	}
	return entry, nil
}
