package ledger

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// Debt is one outstanding row seen from a member's side.
type Debt struct {
	UserID      string
	DisplayName string
	Amount      decimal.Decimal
}

// LeaveCheck is the result of CanLeaveGroup.
type LeaveCheck struct {
	CanLeave bool

	// TotalDebt is what the member owes others (rows at or below Epsilon ignored).
	TotalDebt decimal.Decimal

	// TotalOwed is what others owe the member. It does not block leaving.
	TotalOwed decimal.Decimal

	Debts []Debt
	Owed  []Debt
}

// Group returns the group if userID is a member of it. Read-only
// operations outside the engine use it for their access check.
func (e *Engine) Group(ctx context.Context, groupID, userID string) (*models.Group, error) {
	return memberGroup(ctx, e.store, groupID, userID)
}

// CanLeaveGroup reports whether userID may leave the group: only when their
// unpaid debtor-side total is at or below Epsilon. Read-only.
func (e *Engine) CanLeaveGroup(ctx context.Context, groupID, userID string) (*LeaveCheck, error) {
	group, err := memberGroup(ctx, e.store, groupID, userID)
	if err != nil {
		return nil, err
	}
	return leaveCheck(ctx, e.store, group, userID)
}

// LeaveGroup removes userID from the group. The creator can never leave,
// and nobody can leave while owing more than Epsilon. Amounts still owed
// to the member are returned so the caller can warn about them.
func (e *Engine) LeaveGroup(ctx context.Context, groupID, userID string) (*LeaveCheck, error) {
	var check *LeaveCheck
	err := e.runPass(ctx, "leave_group", func(tx storage.Tx) error {
		group, err := memberGroup(ctx, tx, groupID, userID)
		if err != nil {
			return err
		}
		if group.CreatedBy == userID {
			return ErrCreatorCannotLeave
		}

		check, err = leaveCheck(ctx, tx, group, userID)
		if err != nil {
			return err
		}
		if !check.CanLeave {
			return &CannotLeaveError{GroupID: groupID, UserID: userID, TotalDebt: check.TotalDebt}
		}

		return tx.RemoveGroupMember(ctx, groupID, userID)
	})
	if err != nil {
		return nil, err
	}

	if check.TotalOwed.GreaterThan(Epsilon) {
		slog.Warn("Member left group while still owed money",
			"group_id", groupID,
			"user_id", userID,
			"total_owed", check.TotalOwed.StringFixed(2),
		)
	} else {
		slog.Info("Member left group", "group_id", groupID, "user_id", userID)
	}
	return check, nil
}

func leaveCheck(ctx context.Context, tx storage.Tx, group *models.Group, userID string) (*LeaveCheck, error) {
	rows, err := tx.ListMemberBalances(ctx, group.ID, userID)
	if err != nil {
		return nil, err
	}

	check := &LeaveCheck{TotalDebt: decimal.Zero, TotalOwed: decimal.Zero}
	var counterparties []string
	for _, row := range rows {
		if row.Status != models.BalanceUnpaid || row.Amount.LessThan(Epsilon) {
			continue
		}
		if row.DebtorID == userID {
			check.TotalDebt = check.TotalDebt.Add(row.Amount)
			check.Debts = append(check.Debts, Debt{UserID: row.CreditorID, Amount: row.Amount})
			counterparties = append(counterparties, row.CreditorID)
		} else {
			check.TotalOwed = check.TotalOwed.Add(row.Amount)
			check.Owed = append(check.Owed, Debt{UserID: row.DebtorID, Amount: row.Amount})
			counterparties = append(counterparties, row.DebtorID)
		}
	}
	check.CanLeave = check.TotalDebt.LessThanOrEqual(Epsilon)

	if len(counterparties) > 0 {
		users, err := tx.GetUsersByIDs(ctx, uniqueIDs(counterparties))
		if err != nil {
			return nil, err
		}
		for i := range check.Debts {
			if u, ok := users[check.Debts[i].UserID]; ok {
				check.Debts[i].DisplayName = u.DisplayName
			}
		}
		for i := range check.Owed {
			if u, ok := users[check.Owed[i].UserID]; ok {
				check.Owed[i].DisplayName = u.DisplayName
			}
		}
	}

	return check, nil
}
