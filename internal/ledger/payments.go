package ledger

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// NewPayment is the input for CreatePayment: the caller pays toward the
// implied creditor of an expense.
type NewPayment struct {
	ExpenseID        string
	Amount           decimal.Decimal
	Method           string
	ConfirmationCode string
	Proof            *models.ProofFile
}

// NewSettlement is the input for SettleDebt: the caller pays a creditor
// named by display name.
type NewSettlement struct {
	GroupID          string
	CreditorName     string
	Amount           decimal.Decimal
	Method           string
	ConfirmationCode string
	Proof            *models.ProofFile
}

// PaymentResult is the recorded payment plus what it did to the ledger.
type PaymentResult struct {
	Payment *models.Payment
	Changes []BalanceChange

	// Remaining is the part of the payment no outstanding balance absorbed.
	// It is reported, not refunded.
	Remaining decimal.Decimal
}

// validatePayment checks the amount and method and returns the parsed method.
func validatePayment(amount decimal.Decimal, method, code string) (models.PaymentMethod, error) {
	if !amount.IsPositive() {
		return "", ErrInvalidAmount
	}
	m, ok := models.ParsePaymentMethod(method)
	if !ok {
		return "", withDetail(ErrInvalidPaymentMethod, "%q", method)
	}
	if m.RequiresConfirmationCode() && strings.TrimSpace(code) == "" {
		return "", withDetail(ErrPaymentRequiresCode, "%s", m)
	}
	return m, nil
}

// CreatePayment records a payment toward an expense's first payer and
// greedily reduces the caller's debts in the expense's group, starting with
// the row owed to that payer. The payment row and every reduction commit
// together.
func (e *Engine) CreatePayment(ctx context.Context, callerID string, in NewPayment) (*PaymentResult, error) {
	method, err := validatePayment(in.Amount, in.Method, in.ConfirmationCode)
	if err != nil {
		return nil, err
	}

	result := &PaymentResult{}
	err = e.runPass(ctx, "create_payment", func(tx storage.Tx) error {
		expense, err := loadExpense(ctx, tx, in.ExpenseID)
		if err != nil {
			return err
		}
		if _, err := memberGroup(ctx, tx, expense.GroupID, callerID); err != nil {
			return err
		}

		now := e.now().Unix()
		payment := &models.Payment{
			GroupID:          expense.GroupID,
			ExpenseID:        expense.ID,
			PayerID:          callerID,
			CreditorID:       expense.PrimaryPayer(),
			Amount:           in.Amount,
			Method:           method,
			ConfirmationCode: strings.TrimSpace(in.ConfirmationCode),
			Proof:            in.Proof,
			Status:           models.PaymentConfirmed,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}

		changes, remaining, err := reduceDebts(ctx, tx, expense.GroupID, callerID, payment.CreditorID, in.Amount)
		if err != nil {
			return err
		}

		result.Payment = payment
		result.Changes = changes
		result.Remaining = remaining
		return nil
	})
	if err != nil {
		return nil, err
	}

	p := result.Payment
	slog.Info("Payment recorded",
		"payment_id", p.ID,
		"expense_id", p.ExpenseID,
		"group_id", p.GroupID,
		"amount", p.Amount.StringFixed(2),
		"balances_reduced", len(result.Changes),
		"remaining", result.Remaining.StringFixed(2),
	)

	entry := e.newTransaction(models.TransactionPayment, callerID)
	entry.PayerID = p.PayerID
	entry.ReceiverID = p.CreditorID
	entry.GroupID = p.GroupID
	entry.Amount = p.Amount
	entry.PaymentMethod = string(p.Method)
	entry.RelatedExpenseID = p.ExpenseID
	entry.RelatedPaymentID = p.ID
	entry.Description = "Payment"
	entry.Category = "Payment"
	entry.Metadata = map[string]any{
		"confirmation_code": p.ConfirmationCode,
		"balances_reduced":  len(result.Changes),
		"unapplied_amount":  result.Remaining.StringFixed(2),
	}
	if p.Proof != nil {
		entry.Metadata["proof_filename"] = p.Proof.Filename
	}
	e.bestEffort(ctx, "payment", func(ctx context.Context) error {
		return e.recorder.Record(ctx, entry)
	})

	return result, nil
}

// SettleDebt pays down the single row the caller owes to the creditor
// named creditorName in the group. A row reduced to Epsilon or below is
// deleted; any overpayment is reported as Remaining.
func (e *Engine) SettleDebt(ctx context.Context, callerID string, in NewSettlement) (*PaymentResult, error) {
	method, err := validatePayment(in.Amount, in.Method, in.ConfirmationCode)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.CreditorName)
	if name == "" {
		return nil, withDetail(ErrInvalidInput, "creditor name is required")
	}

	var (
		result   = &PaymentResult{}
		creditor *models.User
	)
	err = e.runPass(ctx, "settle_debt", func(tx storage.Tx) error {
		group, err := memberGroup(ctx, tx, in.GroupID, callerID)
		if err != nil {
			return err
		}

		creditor, err = findMemberByName(ctx, tx, group, name, callerID)
		if err != nil {
			return err
		}

		key := models.BalanceKey{GroupID: group.ID, DebtorID: callerID, CreditorID: creditor.ID}
		row, err := tx.GetBalance(ctx, key)
		if err != nil {
			return err
		}
		if row == nil || row.Amount.LessThanOrEqual(Epsilon) {
			return withDetail(ErrNoOutstandingDebt, "%s", creditor.DisplayName)
		}

		now := e.now().Unix()
		payment := &models.Payment{
			GroupID:          group.ID,
			PayerID:          callerID,
			CreditorID:       creditor.ID,
			Amount:           in.Amount,
			Method:           method,
			ConfirmationCode: strings.TrimSpace(in.ConfirmationCode),
			Proof:            in.Proof,
			Status:           models.PaymentConfirmed,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}

		applied := decimal.Min(row.Amount, in.Amount)
		change, err := reduceRow(ctx, tx, row, applied)
		if err != nil {
			return err
		}

		result.Payment = payment
		result.Changes = []BalanceChange{change}
		result.Remaining = in.Amount.Sub(applied)
		return nil
	})
	if err != nil {
		return nil, err
	}

	p := result.Payment
	change := result.Changes[0]
	slog.Info("Debt settled",
		"payment_id", p.ID,
		"group_id", p.GroupID,
		"creditor_id", p.CreditorID,
		"amount", p.Amount.StringFixed(2),
		"remaining_debt", change.After.StringFixed(2),
	)

	percentage := change.Applied.Div(change.Before).Mul(decimal.NewFromInt(100))
	entry := e.newTransaction(models.TransactionSettlement, callerID)
	entry.PayerID = p.PayerID
	entry.ReceiverID = p.CreditorID
	entry.GroupID = p.GroupID
	entry.Amount = p.Amount
	entry.PaymentMethod = string(p.Method)
	entry.RelatedPaymentID = p.ID
	entry.Description = "Debt settlement to " + creditor.DisplayName
	entry.Category = "Settlement"
	entry.Metadata = map[string]any{
		"settlement_details": map[string]any{
			"original_debt":      change.Before.StringFixed(2),
			"amount_paid":        p.Amount.StringFixed(2),
			"remaining_debt":     change.After.StringFixed(2),
			"percentage_settled": percentage.StringFixed(2),
			"overpayment":        result.Remaining.StringFixed(2),
		},
		"confirmation_code": p.ConfirmationCode,
	}
	e.bestEffort(ctx, "settlement", func(ctx context.Context) error {
		return e.recorder.Record(ctx, entry)
	})

	return result, nil
}

// findMemberByName resolves a display name (case-insensitive) to a member
// of group other than callerID. Ties go to the earliest member.
func findMemberByName(ctx context.Context, tx storage.Tx, group *models.Group, name, callerID string) (*models.User, error) {
	users, err := tx.GetUsersByIDs(ctx, group.Members)
	if err != nil {
		return nil, err
	}
	for _, id := range group.Members {
		if id == callerID {
			continue
		}
		if u, ok := users[id]; ok && strings.EqualFold(strings.TrimSpace(u.DisplayName), name) {
			return u, nil
		}
	}
	return nil, withDetail(ErrCreditorNotInGroup, "%q", name)
}
