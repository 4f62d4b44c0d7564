package calculator

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// Epsilon is the 0.01 currency-unit threshold below which a debt is
// treated as settled.
var Epsilon = decimal.New(1, -2)

// ErrInvalidSplit is returned when an expense has no payers or nobody to
// split the cost between.
var ErrInvalidSplit = errors.New("expense needs at least one payer and one split member")

// Contributions maps a member ID to their signed net position for one
// expense: what they owe toward it minus what they fronted.
// Positive means net debtor, negative means net creditor.
type Contributions map[string]decimal.Decimal

// Members returns the member IDs in sorted order so callers iterate
// deterministically.
func (c Contributions) Members() []string {
	members := make([]string, 0, len(c))
	for m := range c {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}

// Sum returns the total of all contributions. For a well-formed expense
// this is zero up to division precision.
func (c Contributions) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range c {
		sum = sum.Add(v)
	}
	return sum
}

// CalculateContributions computes each member's signed contribution for an
// expense of total paid by payers and split equally among splitAmong.
//
// Algorithm:
//   - every split member is assigned +total/|splitAmong|
//   - every payer has total/|payers| subtracted (created at zero first if
//     the payer is not a split member)
//
// No rounding happens here; epsilon handling belongs to the ledger.
// Duplicate IDs in either list are ignored.
func CalculateContributions(total decimal.Decimal, payers, splitAmong []string) (Contributions, error) {
	payers = unique(payers)
	splitAmong = unique(splitAmong)
	if len(payers) == 0 || len(splitAmong) == 0 {
		return nil, ErrInvalidSplit
	}

	share := total.Div(decimal.NewFromInt(int64(len(splitAmong))))
	fronted := total.Div(decimal.NewFromInt(int64(len(payers))))

	contributions := make(Contributions, len(splitAmong)+len(payers))
	for _, m := range splitAmong {
		contributions[m] = share
	}
	for _, p := range payers {
		contributions[p] = contributions[p].Sub(fronted)
	}

	return contributions, nil
}

func unique(ids []string) []string {
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
