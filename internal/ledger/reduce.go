package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// BalanceChange describes what a payment did to one balance row.
type BalanceChange struct {
	Key     models.BalanceKey
	Before  decimal.Decimal
	After   decimal.Decimal
	Applied decimal.Decimal

	// Closed is true when the row fell to Epsilon or below and was deleted.
	Closed bool
}

// reduceDebts greedily applies amount against every row where debtorID
// owes someone in the group. The row owed to preferredCreditor (if any) is
// reduced first, then the rest in storage order. Each row is reduced by
// min(row, remaining) and deleted once it reaches Epsilon.
//
// Whatever is left after the last row is returned as remaining. It is not
// an error.
func reduceDebts(ctx context.Context, tx storage.Tx, groupID, debtorID, preferredCreditor string, amount decimal.Decimal) ([]BalanceChange, decimal.Decimal, error) {
	rows, err := tx.ListDebtorBalances(ctx, groupID, debtorID)
	if err != nil {
		return nil, amount, err
	}

	ordered := make([]*models.Balance, 0, len(rows))
	for _, row := range rows {
		if row.CreditorID == preferredCreditor {
			ordered = append(ordered, row)
		}
	}
	for _, row := range rows {
		if row.CreditorID != preferredCreditor {
			ordered = append(ordered, row)
		}
	}

	var changes []BalanceChange
	remaining := amount
	for _, row := range ordered {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		if row.Status == models.BalancePaid {
			continue
		}

		applied := decimal.Min(row.Amount, remaining)
		change, err := reduceRow(ctx, tx, row, applied)
		if err != nil {
			return nil, amount, err
		}
		changes = append(changes, change)
		remaining = remaining.Sub(applied)
	}

	return changes, remaining, nil
}

// reduceRow subtracts applied from row, deleting it when what is left is
// at or below Epsilon.
func reduceRow(ctx context.Context, tx storage.Tx, row *models.Balance, applied decimal.Decimal) (BalanceChange, error) {
	change := BalanceChange{
		Key:     row.Key(),
		Before:  row.Amount,
		After:   row.Amount.Sub(applied),
		Applied: applied,
	}

	if change.After.LessThanOrEqual(Epsilon) {
		change.Closed = true
		metrics.BalanceMutations.WithLabelValues("delete").Inc()
		return change, tx.DeleteBalance(ctx, change.Key)
	}

	row.Amount = change.After
	row.Status = models.BalanceUnpaid
	metrics.BalanceMutations.WithLabelValues("update").Inc()
	return change, tx.SaveBalance(ctx, row)
}
