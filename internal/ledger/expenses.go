package ledger

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmynk/groupledger/internal/calculator"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

const defaultCategory = "General"

// NewExpense is the input for CreateExpense.
type NewExpense struct {
	GroupID     string
	Description string
	Category    string
	Amount      decimal.Decimal

	// PaidBy lists the payer IDs. The first is the implied creditor for
	// expense-tied payments.
	PaidBy []string

	// SplitBetween defaults to every group member when empty.
	SplitBetween []string

	// Status defaults to pending.
	Status models.ExpenseStatus

	// Date defaults to now (Unix seconds).
	Date int64
}

// ExpenseUpdate holds the fields to change. Nil fields are left as they are.
// A non-nil empty SplitBetween resets the split to every group member.
type ExpenseUpdate struct {
	Description  *string
	Category     *string
	Amount       *decimal.Decimal
	SplitBetween []string
	Status       *models.ExpenseStatus
	Date         *int64
}

// CreateExpense validates the expense against its group, records the debts
// it creates and persists it, all in one transaction.
func (e *Engine) CreateExpense(ctx context.Context, callerID string, in NewExpense) (*models.Expense, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if in.Status == "" {
		in.Status = models.ExpensePending
	}
	if !in.Status.Valid() {
		return nil, withDetail(ErrInvalidStatus, "%q", in.Status)
	}

	var expense *models.Expense
	err := e.runPass(ctx, "create_expense", func(tx storage.Tx) error {
		group, err := memberGroup(ctx, tx, in.GroupID, callerID)
		if err != nil {
			return err
		}

		payers := uniqueIDs(in.PaidBy)
		if len(payers) == 0 {
			return ErrInvalidSplit
		}
		for _, p := range payers {
			if !group.HasMember(p) {
				return withDetail(ErrPayorNotMember, "%s", p)
			}
		}

		split, err := resolveSplit(group, in.SplitBetween)
		if err != nil {
			return err
		}

		contributions, err := calculator.CalculateContributions(in.Amount, payers, split)
		if err != nil {
			return ErrInvalidSplit
		}
		if err := applyContributions(ctx, tx, group.ID, contributions, payers); err != nil {
			return err
		}

		now := e.now().Unix()
		expense = &models.Expense{
			GroupID:      group.ID,
			Description:  strings.TrimSpace(in.Description),
			Category:     orDefault(strings.TrimSpace(in.Category), defaultCategory),
			Amount:       in.Amount,
			PaidBy:       payers,
			SplitBetween: split,
			Status:       in.Status,
			Date:         in.Date,
			CreatedBy:    callerID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if expense.Date == 0 {
			expense.Date = now
		}
		return tx.CreateExpense(ctx, expense)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Expense created",
		"expense_id", expense.ID,
		"group_id", expense.GroupID,
		"amount", expense.Amount.StringFixed(2),
		"payers", len(expense.PaidBy),
		"split", len(expense.SplitBetween),
	)

	e.recordExpenseCreated(ctx, callerID, expense)
	return expense, nil
}

// UpdateExpense changes an expense. Only a payer may do this. When the
// amount or split set changes, the original effect is reverted and the
// new one applied in the same transaction; otherwise balances are untouched.
func (e *Engine) UpdateExpense(ctx context.Context, callerID, expenseID string, upd ExpenseUpdate) (*models.Expense, error) {
	if upd.Amount != nil && !upd.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, withDetail(ErrInvalidStatus, "%q", *upd.Status)
	}

	var (
		expense   *models.Expense
		original  models.Expense
		recompute bool
	)
	err := e.runPass(ctx, "update_expense", func(tx storage.Tx) error {
		var err error
		expense, err = loadExpense(ctx, tx, expenseID)
		if err != nil {
			return err
		}
		group, err := memberGroup(ctx, tx, expense.GroupID, callerID)
		if err != nil {
			return err
		}
		if !expense.IsPayer(callerID) {
			return ErrNotAuthorized
		}

		// Captured before any field changes so the revert is the exact
		// inverse of what was applied.
		original = *expense
		original.PaidBy = append([]string(nil), expense.PaidBy...)
		original.SplitBetween = append([]string(nil), expense.SplitBetween...)

		newAmount := expense.Amount
		if upd.Amount != nil {
			newAmount = *upd.Amount
		}
		newSplit := original.SplitBetween
		if upd.SplitBetween != nil {
			newSplit, err = resolveSplit(group, upd.SplitBetween)
			if err != nil {
				return err
			}
		}

		recompute = !newAmount.Equal(original.Amount) || !sameMembers(newSplit, original.SplitBetween)
		if recompute {
			oldContributions, err := calculator.CalculateContributions(original.Amount, original.PaidBy, original.SplitBetween)
			if err != nil {
				return ErrInvalidSplit
			}
			newContributions, err := calculator.CalculateContributions(newAmount, original.PaidBy, newSplit)
			if err != nil {
				return ErrInvalidSplit
			}
			if err := revertContributions(ctx, tx, expense.GroupID, oldContributions, original.PaidBy); err != nil {
				return err
			}
			if err := applyContributions(ctx, tx, expense.GroupID, newContributions, original.PaidBy); err != nil {
				return err
			}
		}

		expense.Amount = newAmount
		expense.SplitBetween = newSplit
		if upd.Description != nil {
			expense.Description = strings.TrimSpace(*upd.Description)
		}
		if upd.Category != nil {
			expense.Category = orDefault(strings.TrimSpace(*upd.Category), defaultCategory)
		}
		if upd.Status != nil {
			expense.Status = *upd.Status
		}
		if upd.Date != nil && *upd.Date > 0 {
			expense.Date = *upd.Date
		}
		return tx.UpdateExpense(ctx, expense)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Expense updated",
		"expense_id", expense.ID,
		"group_id", expense.GroupID,
		"amount", expense.Amount.StringFixed(2),
		"balances_recomputed", recompute,
	)

	e.recordExpenseUpdated(ctx, callerID, &original, expense, upd, recompute)
	return expense, nil
}

// DeleteExpense reverts an expense's ledger effect and removes it. Only a
// payer may do this. Related history entries are marked cancelled afterwards.
func (e *Engine) DeleteExpense(ctx context.Context, callerID, expenseID string) error {
	var expense *models.Expense
	err := e.runPass(ctx, "delete_expense", func(tx storage.Tx) error {
		var err error
		expense, err = loadExpense(ctx, tx, expenseID)
		if err != nil {
			return err
		}
		if _, err := memberGroup(ctx, tx, expense.GroupID, callerID); err != nil {
			return err
		}
		if !expense.IsPayer(callerID) {
			return ErrNotAuthorized
		}

		// The revert reads the expense's own payer and split fields, so it
		// must happen before the record is removed.
		contributions, err := calculator.CalculateContributions(expense.Amount, expense.PaidBy, expense.SplitBetween)
		if err != nil {
			return ErrInvalidSplit
		}
		if err := revertContributions(ctx, tx, expense.GroupID, contributions, expense.PaidBy); err != nil {
			return err
		}
		return tx.DeleteExpense(ctx, expense.ID)
	})
	if err != nil {
		return err
	}

	slog.Info("Expense deleted", "expense_id", expense.ID, "group_id", expense.GroupID)

	e.bestEffort(ctx, "expense_deletion", func(ctx context.Context) error {
		return e.recorder.CancelExpense(ctx, expense.ID, callerID)
	})
	return nil
}

// resolveSplit validates requested split members against the group, or
// returns every member when none are requested.
func resolveSplit(group *models.Group, requested []string) ([]string, error) {
	split := uniqueIDs(requested)
	if len(split) == 0 {
		return append([]string(nil), group.Members...), nil
	}
	for _, m := range split {
		if !group.HasMember(m) {
			return nil, withDetail(ErrSplitMemberNotInGroup, "%s", m)
		}
	}
	return split, nil
}

// sameMembers reports whether a and b hold the same set of IDs.
func sameMembers(a, b []string) bool {
	a, b = uniqueIDs(a), uniqueIDs(b)
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (e *Engine) recordExpenseCreated(ctx context.Context, callerID string, expense *models.Expense) {
	share := expense.Amount.Div(decimal.NewFromInt(int64(len(expense.SplitBetween))))
	fronted := expense.Amount.Div(decimal.NewFromInt(int64(len(expense.PaidBy))))
	percentage := share.Div(expense.Amount).Mul(decimal.NewFromInt(100))

	splitDetails := make([]map[string]any, 0, len(expense.SplitBetween))
	for _, m := range expense.SplitBetween {
		splitDetails = append(splitDetails, map[string]any{
			"user_id":    m,
			"amount":     share.StringFixed(2),
			"percentage": percentage.StringFixed(2),
		})
	}

	for _, payer := range expense.PaidBy {
		entry := e.newTransaction(models.TransactionExpense, callerID)
		entry.PayerID = payer
		entry.GroupID = expense.GroupID
		entry.Amount = fronted
		entry.RelatedExpenseID = expense.ID
		entry.Description = orDefault(expense.Description, "Expense")
		entry.Category = expense.Category
		entry.TransactionDate = expense.Date
		entry.Metadata = map[string]any{
			"expense_split_details": splitDetails,
			"total_expense_amount":  expense.Amount.StringFixed(2),
			"number_of_payors":      len(expense.PaidBy),
			"payor_contribution":    fronted.StringFixed(2),
		}

		e.bestEffort(ctx, "expense", func(ctx context.Context) error {
			return e.recorder.Record(ctx, entry)
		})
	}
}

func (e *Engine) recordExpenseUpdated(ctx context.Context, callerID string, original, updated *models.Expense, upd ExpenseUpdate, recomputed bool) {
	var fields []string
	if upd.Description != nil {
		fields = append(fields, "description")
	}
	if upd.Category != nil {
		fields = append(fields, "category")
	}
	if upd.Amount != nil {
		fields = append(fields, "amount")
	}
	if upd.SplitBetween != nil {
		fields = append(fields, "split_between")
	}
	if upd.Status != nil {
		fields = append(fields, "status")
	}
	if upd.Date != nil {
		fields = append(fields, "date")
	}

	entry := e.newTransaction(models.TransactionExpense, callerID)
	entry.PayerID = updated.PrimaryPayer()
	entry.GroupID = updated.GroupID
	entry.Amount = updated.Amount
	entry.RelatedExpenseID = updated.ID
	entry.Description = "[UPDATED] " + orDefault(updated.Description, "Expense")
	entry.Category = updated.Category
	entry.Metadata = map[string]any{
		"update_details": map[string]any{
			"original_amount":      original.Amount.StringFixed(2),
			"new_amount":           updated.Amount.StringFixed(2),
			"original_description": original.Description,
			"new_description":      updated.Description,
			"original_split":       original.SplitBetween,
			"new_split":            updated.SplitBetween,
			"updated_fields":       fields,
			"balances_recomputed":  recomputed,
		},
	}

	e.bestEffort(ctx, "expense_update", func(ctx context.Context) error {
		return e.recorder.Record(ctx, entry)
	})
}
