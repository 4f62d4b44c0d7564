package service

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/models"
)

// Wire messages. Amounts travel as decimal strings ("30.00"); timestamps
// are Unix seconds.

type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	CreatedAt   int64  `json:"created_at,omitempty"`
}

type RegisterRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by Register and Login.
type AuthResponse struct {
	User      *User  `json:"user"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

type GetCurrentUserRequest struct{}

type GetCurrentUserResponse struct {
	User *User `json:"user"`
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

type UpdateProfileResponse struct {
	User *User `json:"user"`
}

type Group struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	CreatedBy   string  `json:"created_by"`
	Members     []*User `json:"members"`
	CreatedAt   int64   `json:"created_at"`

	// TotalExpenses is only filled in by ListGroups.
	TotalExpenses *decimal.Decimal `json:"total_expenses,omitempty"`
}

type CreateGroupRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	MemberEmails []string `json:"member_emails"`
}

type GroupResponse struct {
	Group *Group `json:"group"`

	// NotFound lists member emails that matched no registered user.
	NotFound []string `json:"not_found,omitempty"`
}

type GetGroupRequest struct {
	GroupID string `json:"group_id"`
}

type ListGroupsRequest struct{}

type ListGroupsResponse struct {
	Groups []*Group `json:"groups"`
}

type AddMembersRequest struct {
	GroupID string   `json:"group_id"`
	Emails  []string `json:"emails"`
}

type LeaveGroupRequest struct {
	GroupID string `json:"group_id"`
}

type Debt struct {
	UserID      string          `json:"user_id"`
	DisplayName string          `json:"display_name"`
	Amount      decimal.Decimal `json:"amount"`
}

type LeaveGroupResponse struct {
	CanLeave  bool            `json:"can_leave"`
	TotalDebt decimal.Decimal `json:"total_debt"`
	TotalOwed decimal.Decimal `json:"total_owed"`
	Debts     []*Debt         `json:"debts,omitempty"`
	Owed      []*Debt         `json:"owed,omitempty"`

	// Warning is set when the member left while others still owe them.
	Warning string `json:"warning,omitempty"`
}

type Expense struct {
	ID           string          `json:"id"`
	GroupID      string          `json:"group_id"`
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	Amount       decimal.Decimal `json:"amount"`
	PaidBy       []string        `json:"paid_by"`
	SplitBetween []string        `json:"split_between"`
	Status       string          `json:"status"`
	Date         int64           `json:"date"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    int64           `json:"created_at"`
	UpdatedAt    int64           `json:"updated_at"`
}

type CreateExpenseRequest struct {
	GroupID     string          `json:"group_id"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`

	// PaidBy defaults to the caller.
	PaidBy       []string `json:"paid_by"`
	SplitBetween []string `json:"split_between"`
	Status       string   `json:"status"`
	Date         int64    `json:"date"`
}

// UpdateExpenseRequest changes only the fields that are present.
type UpdateExpenseRequest struct {
	ExpenseID    string           `json:"expense_id"`
	Description  *string          `json:"description,omitempty"`
	Category     *string          `json:"category,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	SplitBetween []string         `json:"split_between,omitempty"`
	Status       *string          `json:"status,omitempty"`
	Date         *int64           `json:"date,omitempty"`
}

type ExpenseResponse struct {
	Expense *Expense `json:"expense"`
}

type GetExpenseRequest struct {
	ExpenseID string `json:"expense_id"`
}

type DeleteExpenseRequest struct {
	ExpenseID string `json:"expense_id"`
}

type DeleteExpenseResponse struct{}

type ListExpensesRequest struct {
	GroupID string `json:"group_id"`
}

type ListExpensesResponse struct {
	Expenses []*Expense `json:"expenses"`
}

type Proof struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	Size         int64  `json:"size,omitempty"`
	Path         string `json:"path,omitempty"`
}

type Payment struct {
	ID               string          `json:"id"`
	GroupID          string          `json:"group_id"`
	ExpenseID        string          `json:"expense_id,omitempty"`
	PayerID          string          `json:"payer_id"`
	CreditorID       string          `json:"creditor_id"`
	Amount           decimal.Decimal `json:"amount"`
	Method           string          `json:"method"`
	ConfirmationCode string          `json:"confirmation_code,omitempty"`
	Proof            *Proof          `json:"proof,omitempty"`
	Status           string          `json:"status"`
	CreatedAt        int64           `json:"created_at"`
}

type CreatePaymentRequest struct {
	ExpenseID        string          `json:"expense_id"`
	Amount           decimal.Decimal `json:"amount"`
	Method           string          `json:"method"`
	ConfirmationCode string          `json:"confirmation_code"`
	Proof            *Proof          `json:"proof,omitempty"`
}

type SettleDebtRequest struct {
	GroupID          string          `json:"group_id"`
	CreditorName     string          `json:"creditor_name"`
	Amount           decimal.Decimal `json:"amount"`
	Method           string          `json:"method"`
	ConfirmationCode string          `json:"confirmation_code"`
	Proof            *Proof          `json:"proof,omitempty"`
}

type BalanceChange struct {
	DebtorID   string          `json:"debtor_id"`
	CreditorID string          `json:"creditor_id"`
	Before     decimal.Decimal `json:"before"`
	After      decimal.Decimal `json:"after"`
	Applied    decimal.Decimal `json:"applied"`
	Closed     bool            `json:"closed"`
}

type PaymentResponse struct {
	Payment *Payment         `json:"payment"`
	Changes []*BalanceChange `json:"changes"`

	// Remaining is the part of the amount no outstanding debt absorbed.
	Remaining decimal.Decimal `json:"remaining"`
}

type ListPaymentsRequest struct {
	GroupID string `json:"group_id"`
}

type ListPaymentsResponse struct {
	Payments []*Payment `json:"payments"`
}

type Balance struct {
	DebtorID     string          `json:"debtor_id"`
	DebtorName   string          `json:"debtor_name"`
	CreditorID   string          `json:"creditor_id"`
	CreditorName string          `json:"creditor_name"`
	Amount       decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
	UpdatedAt    int64           `json:"updated_at"`
}

type MemberBalance struct {
	UserID      string          `json:"user_id"`
	DisplayName string          `json:"display_name"`
	NetBalance  decimal.Decimal `json:"net_balance"`
	TotalOwed   decimal.Decimal `json:"total_owed"`
	TotalOwing  decimal.Decimal `json:"total_owing"`
	Status      string          `json:"status"`
}

type Transfer struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

type GetGroupBalancesRequest struct {
	GroupID string `json:"group_id"`
}

type GetGroupBalancesResponse struct {
	Balances []*Balance       `json:"balances"`
	Members  []*MemberBalance `json:"members"`

	// SuggestedTransfers settles every net position with the fewest
	// greedy transfers. Informational only.
	SuggestedTransfers []*Transfer `json:"suggested_transfers"`
}

type GetUserSummaryRequest struct{}

type GroupSummary struct {
	GroupID    string          `json:"group_id"`
	GroupName  string          `json:"group_name"`
	TotalOwed  decimal.Decimal `json:"total_owed"`
	TotalOwing decimal.Decimal `json:"total_owing"`
	NetBalance decimal.Decimal `json:"net_balance"`
}

type GetUserSummaryResponse struct {
	TotalOwed  decimal.Decimal `json:"total_owed"`
	TotalOwing decimal.Decimal `json:"total_owing"`
	NetBalance decimal.Decimal `json:"net_balance"`
	Groups     []*GroupSummary `json:"groups"`
}

type Transaction struct {
	ID               string         `json:"id"`
	Type             string         `json:"type"`
	PayerID          string         `json:"payer_id,omitempty"`
	ReceiverID       string         `json:"receiver_id,omitempty"`
	GroupID          string         `json:"group_id"`
	Amount           string         `json:"amount"`
	Status           string         `json:"status"`
	PaymentMethod    string         `json:"payment_method"`
	RelatedExpenseID string         `json:"related_expense_id,omitempty"`
	RelatedPaymentID string         `json:"related_payment_id,omitempty"`
	Description      string         `json:"description"`
	Category         string         `json:"category,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	TransactionDate  int64          `json:"transaction_date"`
	CreatedBy        string         `json:"created_by"`
	UpdatedBy        string         `json:"updated_by,omitempty"`
}

type ListTransactionsRequest struct {
	GroupID string `json:"group_id"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	From    int64  `json:"from"`
	To      int64  `json:"to"`

	// Page is 1-based. Limit defaults to 20.
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type ListTransactionsResponse struct {
	Transactions []*Transaction `json:"transactions"`
	Total        int            `json:"total"`
	Page         int            `json:"page"`
	Pages        int            `json:"pages"`
}

type GetTransactionRequest struct {
	TransactionID string `json:"transaction_id"`
}

type GetTransactionResponse struct {
	Transaction *Transaction `json:"transaction"`
}

// GetTransactionStatsRequest bounds the stats by transaction date (Unix
// seconds). Zero means unbounded.
type GetTransactionStatsRequest struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type TypeStats struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
	Total string `json:"total"`
}

type GetTransactionStatsResponse struct {
	TotalSpent    string       `json:"total_spent"`
	TotalReceived string       `json:"total_received"`
	TotalPaid     string       `json:"total_paid"`
	NetBalance    string       `json:"net_balance"`
	ByType        []*TypeStats `json:"by_type"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toUser(u *models.User) *User {
	return &User{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName, CreatedAt: u.CreatedAt}
}

// toGroup resolves member IDs against users. Members with no user record
// are listed by ID only.
func toGroup(g *models.Group, users map[string]*models.User) *Group {
	out := &Group{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		CreatedBy:   g.CreatedBy,
		Members:     make([]*User, 0, len(g.Members)),
		CreatedAt:   g.CreatedAt,
	}
	for _, id := range g.Members {
		if u, ok := users[id]; ok {
			out.Members = append(out.Members, toUser(u))
			continue
		}
		out.Members = append(out.Members, &User{ID: id})
	}
	return out
}

func toExpense(e *models.Expense) *Expense {
	return &Expense{
		ID:           e.ID,
		GroupID:      e.GroupID,
		Description:  e.Description,
		Category:     e.Category,
		Amount:       e.Amount,
		PaidBy:       e.PaidBy,
		SplitBetween: e.SplitBetween,
		Status:       string(e.Status),
		Date:         e.Date,
		CreatedBy:    e.CreatedBy,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func toProofFile(p *Proof) *models.ProofFile {
	if p == nil || p.Filename == "" {
		return nil
	}
	return &models.ProofFile{
		Filename:     p.Filename,
		OriginalName: p.OriginalName,
		MimeType:     p.MimeType,
		Size:         p.Size,
		Path:         p.Path,
	}
}

func toPayment(p *models.Payment) *Payment {
	out := &Payment{
		ID:               p.ID,
		GroupID:          p.GroupID,
		ExpenseID:        p.ExpenseID,
		PayerID:          p.PayerID,
		CreditorID:       p.CreditorID,
		Amount:           p.Amount,
		Method:           string(p.Method),
		ConfirmationCode: p.ConfirmationCode,
		Status:           string(p.Status),
		CreatedAt:        p.CreatedAt,
	}
	if p.Proof != nil {
		out.Proof = &Proof{
			Filename:     p.Proof.Filename,
			OriginalName: p.Proof.OriginalName,
			MimeType:     p.Proof.MimeType,
			Size:         p.Proof.Size,
			Path:         p.Proof.Path,
		}
	}
	return out
}

func toPaymentResponse(r *ledger.PaymentResult) *PaymentResponse {
	resp := &PaymentResponse{
		Payment:   toPayment(r.Payment),
		Changes:   make([]*BalanceChange, 0, len(r.Changes)),
		Remaining: r.Remaining,
	}
	for _, c := range r.Changes {
		resp.Changes = append(resp.Changes, &BalanceChange{
			DebtorID:   c.Key.DebtorID,
			CreditorID: c.Key.CreditorID,
			Before:     c.Before,
			After:      c.After,
			Applied:    c.Applied,
			Closed:     c.Closed,
		})
	}
	return resp
}

func toDebts(debts []ledger.Debt) []*Debt {
	out := make([]*Debt, 0, len(debts))
	for _, d := range debts {
		out = append(out, &Debt{UserID: d.UserID, DisplayName: d.DisplayName, Amount: d.Amount})
	}
	return out
}

func toLeaveResponse(c *ledger.LeaveCheck) *LeaveGroupResponse {
	return &LeaveGroupResponse{
		CanLeave:  c.CanLeave,
		TotalDebt: c.TotalDebt,
		TotalOwed: c.TotalOwed,
		Debts:     toDebts(c.Debts),
		Owed:      toDebts(c.Owed),
	}
}

func toTransaction(t *models.TransactionHistory) *Transaction {
	return &Transaction{
		ID:               t.ID,
		Type:             string(t.Type),
		PayerID:          t.PayerID,
		ReceiverID:       t.ReceiverID,
		GroupID:          t.GroupID,
		Amount:           t.Amount.StringFixed(2),
		Status:           string(t.Status),
		PaymentMethod:    t.PaymentMethod,
		RelatedExpenseID: t.RelatedExpenseID,
		RelatedPaymentID: t.RelatedPaymentID,
		Description:      t.Description,
		Category:         t.Category,
		Metadata:         t.Metadata,
		TransactionDate:  t.TransactionDate,
		CreatedBy:        t.CreatedBy,
		UpdatedBy:        t.UpdatedBy,
	}
}

func toTransactionStats(st *models.TransactionStats) *GetTransactionStatsResponse {
	resp := &GetTransactionStatsResponse{
		TotalSpent:    st.TotalSpent.StringFixed(2),
		TotalReceived: st.TotalReceived.StringFixed(2),
		TotalPaid:     st.TotalPaid.StringFixed(2),
		NetBalance:    st.NetBalance().StringFixed(2),
		ByType:        make([]*TypeStats, 0, len(st.ByType)),
	}
	for _, t := range st.ByType {
		resp.ByType = append(resp.ByType, &TypeStats{
			Type:  string(t.Type),
			Count: t.Count,
			Total: t.Total.StringFixed(2),
		})
	}
	return resp
}
