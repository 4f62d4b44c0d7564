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

const paymentColumns = `id, group_id, expense_id, payer_id, creditor_id, amount, method, confirmation_code,
	proof_filename, proof_original_name, proof_mime_type, proof_size, proof_path,
	status, created_at, updated_at`

// CreatePayment persists a new payment to the database.
func (q queries) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	if payment.CreatedAt == 0 {
		payment.CreatedAt = time.Now().Unix()
	}
	if payment.UpdatedAt == 0 {
		payment.UpdatedAt = payment.CreatedAt
	}

	var (
		filename, originalName, mimeType, path sql.NullString
		size                                   sql.NullInt64
	)
	if p := payment.Proof; p != nil {
		filename = nullString(p.Filename)
		originalName = nullString(p.OriginalName)
		mimeType = nullString(p.MimeType)
		path = nullString(p.Path)
		size = sql.NullInt64{Int64: p.Size, Valid: true}
	}

	_, err := q.q.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID, payment.GroupID, nullString(payment.ExpenseID), payment.PayerID, payment.CreditorID,
		payment.Amount, string(payment.Method), payment.ConfirmationCode,
		filename, originalName, mimeType, size, path,
		string(payment.Status), payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	return nil
}

// GetPayment retrieves a payment by ID.
func (s *SQLiteStore) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, paymentID)
	payment, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment %s: %w", paymentID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

// ListPaymentsByGroup retrieves all payments for a group, newest first.
func (s *SQLiteStore) ListPaymentsByGroup(ctx context.Context, groupID string) ([]*models.Payment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE group_id = ? ORDER BY created_at DESC, rowid DESC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments by group: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}

	return payments, nil
}

func scanPayment(row scanner) (*models.Payment, error) {
	payment := &models.Payment{}
	var (
		expenseID, filename, originalName, mimeType, path sql.NullString
		size                                              sql.NullInt64
		method, status                                    string
	)
	err := row.Scan(
		&payment.ID, &payment.GroupID, &expenseID, &payment.PayerID, &payment.CreditorID,
		&payment.Amount, &method, &payment.ConfirmationCode,
		&filename, &originalName, &mimeType, &size, &path,
		&status, &payment.CreatedAt, &payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	payment.ExpenseID = expenseID.String
	payment.Method = models.PaymentMethod(method)
	payment.Status = models.PaymentStatus(status)
	if filename.Valid {
		payment.Proof = &models.ProofFile{
			Filename:     filename.String,
			OriginalName: originalName.String,
			MimeType:     mimeType.String,
			Size:         size.Int64,
			Path:         path.String,
		}
	}

	return payment, nil
}
