package ledger

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mmynk/groupledger/internal/calculator"
	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// Epsilon is the amount at or below which a balance row is treated as settled.
var Epsilon = calculator.Epsilon

// applyContributions records the debts an expense creates: every net
// debtor m owes each payer p != m an equal share of m's contribution.
// Members at or below Epsilon get no debtor-side row.
func applyContributions(ctx context.Context, tx storage.Tx, groupID string, contributions calculator.Contributions, payers []string) error {
	payers = uniqueIDs(payers)
	if len(payers) == 0 {
		return ErrInvalidSplit
	}
	perPayer := decimal.NewFromInt(int64(len(payers)))

	for _, member := range contributions.Members() {
		contribution := contributions[member]
		if contribution.LessThanOrEqual(Epsilon) {
			continue
		}
		share := contribution.Div(perPayer)

		for _, payer := range payers {
			if payer == member {
				continue
			}
			key := models.BalanceKey{GroupID: groupID, DebtorID: member, CreditorID: payer}
			if err := adjustBalance(ctx, tx, key, share); err != nil {
				return err
			}
		}
	}

	return nil
}

// revertContributions undoes applyContributions for the same map and
// payers. Only the debtor-side rows apply wrote are touched, so an apply
// followed by a revert leaves the ledger as it was.
//
// A row missing or smaller than the share means a payment already settled
// part of this expense. The row is then deleted rather than driven negative.
func revertContributions(ctx context.Context, tx storage.Tx, groupID string, contributions calculator.Contributions, payers []string) error {
	payers = uniqueIDs(payers)
	if len(payers) == 0 {
		return ErrInvalidSplit
	}
	perPayer := decimal.NewFromInt(int64(len(payers)))

	for _, member := range contributions.Members() {
		contribution := contributions[member]
		if contribution.LessThanOrEqual(Epsilon) {
			continue
		}
		share := contribution.Div(perPayer)

		for _, payer := range payers {
			if payer == member {
				continue
			}
			key := models.BalanceKey{GroupID: groupID, DebtorID: member, CreditorID: payer}
			if err := adjustBalance(ctx, tx, key, share.Neg()); err != nil {
				return err
			}
		}
	}

	return nil
}

// adjustBalance adds delta to the row for key, creating it when absent.
// A result at or below Epsilon deletes the row, and a negative delta
// never creates one.
func adjustBalance(ctx context.Context, tx storage.Tx, key models.BalanceKey, delta decimal.Decimal) error {
	row, err := tx.GetBalance(ctx, key)
	if err != nil {
		return err
	}

	current := decimal.Zero
	if row != nil {
		current = row.Amount
	}
	next := current.Add(delta)

	if delta.IsNegative() && next.LessThan(Epsilon.Neg()) {
		slog.Warn("Balance smaller than reverted share, clearing row",
			"group_id", key.GroupID,
			"debtor_id", key.DebtorID,
			"creditor_id", key.CreditorID,
			"balance", current.StringFixed(2),
			"delta", delta.StringFixed(2),
		)
	}

	if next.LessThanOrEqual(Epsilon) {
		if row == nil {
			return nil
		}
		metrics.BalanceMutations.WithLabelValues("delete").Inc()
		return tx.DeleteBalance(ctx, key)
	}

	kind := "update"
	if row == nil {
		kind = "create"
		row = &models.Balance{GroupID: key.GroupID, DebtorID: key.DebtorID, CreditorID: key.CreditorID}
	}
	row.Amount = next
	row.Status = models.BalanceUnpaid

	metrics.BalanceMutations.WithLabelValues(kind).Inc()
	return tx.SaveBalance(ctx, row)
}

// uniqueIDs drops empty and repeated IDs, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
