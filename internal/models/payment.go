package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how the funds were transferred.
type PaymentMethod string

const (
	MethodCash  PaymentMethod = "Cash"
	MethodGCash PaymentMethod = "GCash"
	MethodBank  PaymentMethod = "Bank"
)

// ParsePaymentMethod matches s case-insensitively against the known methods.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	for _, m := range []PaymentMethod{MethodCash, MethodGCash, MethodBank} {
		if strings.EqualFold(strings.TrimSpace(s), string(m)) {
			return m, true
		}
	}
	return "", false
}

// RequiresConfirmationCode reports whether a payment by this method must
// carry a confirmation code.
func (m PaymentMethod) RequiresConfirmationCode() bool {
	return m == MethodGCash || m == MethodBank
}

// PaymentStatus is the processing status of a payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

// ProofFile is metadata about an uploaded proof of payment. The file
// itself is stored elsewhere.
type ProofFile struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	Size         int64  `json:"size,omitempty"`
	Path         string `json:"path,omitempty"`
}

// Payment is an immutable record of funds moving from PayerID toward
// CreditorID. ExpenseID is empty for free-form settlements.
type Payment struct {
	// ID is the unique identifier for the payment (UUID format).
	ID string

	GroupID string

	// ExpenseID is the expense this payment was made toward, if any.
	ExpenseID string

	// PayerID is the user who paid (debtor settling up).
	PayerID string

	// CreditorID is the user who received the payment.
	CreditorID string

	Amount decimal.Decimal
	Method PaymentMethod

	// ConfirmationCode is the reference from the transfer provider.
	// Required for GCash and Bank.
	ConfirmationCode string

	Proof *ProofFile

	Status PaymentStatus

	CreatedAt int64
	UpdatedAt int64
}

// IsSettlement reports whether the payment was made against a named
// creditor rather than an expense.
func (p *Payment) IsSettlement() bool {
	return p.ExpenseID == ""
}
