package calculator

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DebtRow is the minimal view of a ledger row needed for summaries.
type DebtRow struct {
	DebtorID   string
	CreditorID string
	Amount     decimal.Decimal
}

// MemberBalance represents the balance information for one group member.
type MemberBalance struct {
	MemberID   string
	NetBalance decimal.Decimal // Positive = owed money, Negative = owes money
	TotalOwed  decimal.Decimal // What others owe this member
	TotalOwing decimal.Decimal // What this member owes others
}

// Status describes the member's position: "owes", "owed" or "settled".
func (b MemberBalance) Status() string {
	switch {
	case b.NetBalance.LessThan(Epsilon.Neg()):
		return "owes"
	case b.NetBalance.GreaterThan(Epsilon):
		return "owed"
	default:
		return "settled"
	}
}

// DebtEdge represents a debt from one person to another.
type DebtEdge struct {
	From   string // Person who owes
	To     string // Person who is owed
	Amount decimal.Decimal
}

// SummarizeBalances aggregates ledger rows into per-member net balances and
// a simplified set of debts that settles the group in as few transfers as
// the greedy matching allows.
//
// Every member listed in members appears in the result even with no rows.
// Rows below Epsilon are ignored.
//
// Algorithm:
// - For each row: debtor's TotalOwing grows, creditor's TotalOwed grows
// - Aggregate: net_balance = total_owed - total_owing
// - Debt list: largest debtor matched with largest creditor until settled
func SummarizeBalances(members []string, rows []DebtRow) ([]MemberBalance, []DebtEdge) {
	balances := make(map[string]*MemberBalance)
	order := make([]string, 0, len(members))

	ensure := func(id string) *MemberBalance {
		if b, ok := balances[id]; ok {
			return b
		}
		b := &MemberBalance{MemberID: id}
		balances[id] = b
		order = append(order, id)
		return b
	}

	for _, m := range members {
		ensure(m)
	}

	for _, row := range rows {
		if row.Amount.LessThan(Epsilon) {
			continue
		}
		debtor := ensure(row.DebtorID)
		creditor := ensure(row.CreditorID)
		debtor.TotalOwing = debtor.TotalOwing.Add(row.Amount)
		creditor.TotalOwed = creditor.TotalOwed.Add(row.Amount)
	}

	memberBalances := make([]MemberBalance, 0, len(order))
	var creditors, debtors []MemberBalance
	for _, id := range order {
		bal := balances[id]
		bal.NetBalance = bal.TotalOwed.Sub(bal.TotalOwing)
		memberBalances = append(memberBalances, *bal)

		if bal.NetBalance.GreaterThan(decimal.Zero) {
			creditors = append(creditors, *bal)
		} else if bal.NetBalance.LessThan(decimal.Zero) {
			debtors = append(debtors, *bal)
		}
	}

	// Largest positions first
	sort.SliceStable(creditors, func(i, j int) bool {
		return creditors[i].NetBalance.GreaterThan(creditors[j].NetBalance)
	})
	sort.SliceStable(debtors, func(i, j int) bool {
		return debtors[i].NetBalance.LessThan(debtors[j].NetBalance)
	})

	debtorBalance := make(map[string]decimal.Decimal, len(debtors))
	creditorBalance := make(map[string]decimal.Decimal, len(creditors))
	for _, d := range debtors {
		debtorBalance[d.MemberID] = d.NetBalance.Neg()
	}
	for _, c := range creditors {
		creditorBalance[c.MemberID] = c.NetBalance
	}

	var edges []DebtEdge
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		debtor := debtors[i].MemberID
		creditor := creditors[j].MemberID

		amount := decimal.Min(debtorBalance[debtor], creditorBalance[creditor])
		if amount.GreaterThan(Epsilon) {
			edges = append(edges, DebtEdge{From: debtor, To: creditor, Amount: amount})
		}

		debtorBalance[debtor] = debtorBalance[debtor].Sub(amount)
		creditorBalance[creditor] = creditorBalance[creditor].Sub(amount)

		if debtorBalance[debtor].LessThan(Epsilon) {
			i++
		}
		if creditorBalance[creditor].LessThan(Epsilon) {
			j++
		}
	}

	return memberBalances, edges
}
