package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind classifies an error by how the caller should react to it.
type Kind string

const (
	// KindValidation: malformed or missing input, fixable by the caller.
	KindValidation Kind = "validation"
	// KindAuthorization: the caller lacks standing (not a member, not a payer).
	KindAuthorization Kind = "authorization"
	// KindNotFound: a referenced group, expense or payment does not exist.
	KindNotFound Kind = "not_found"
	// KindConsistency: a ledger pass failed part way and was rolled back.
	KindConsistency Kind = "consistency"
)

// Error is a ledger failure carrying a stable reason code. Two Errors
// match under errors.Is when their codes are equal, so callers compare
// against the sentinels below regardless of the message.
type Error struct {
	Code    string
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrGroupNotFound   = &Error{Code: "GROUP_NOT_FOUND", Kind: KindNotFound, Message: "group not found"}
	ErrExpenseNotFound = &Error{Code: "EXPENSE_NOT_FOUND", Kind: KindNotFound, Message: "expense not found"}

	ErrPayorNotMember        = &Error{Code: "PAYOR_NOT_MEMBER", Kind: KindValidation, Message: "payer is not a member of the group"}
	ErrSplitMemberNotInGroup = &Error{Code: "SPLIT_MEMBER_NOT_IN_GROUP", Kind: KindValidation, Message: "split member is not in the group"}
	ErrInvalidAmount         = &Error{Code: "INVALID_AMOUNT", Kind: KindValidation, Message: "amount must be greater than zero"}
	ErrInvalidSplit          = &Error{Code: "INVALID_SPLIT", Kind: KindValidation, Message: "expense needs at least one payer and one split member"}
	ErrInvalidStatus         = &Error{Code: "INVALID_STATUS", Kind: KindValidation, Message: "unknown expense status"}
	ErrInvalidInput          = &Error{Code: "INVALID_INPUT", Kind: KindValidation, Message: "invalid input"}
	ErrPaymentRequiresCode   = &Error{Code: "PAYMENT_METHOD_REQUIRES_CODE", Kind: KindValidation, Message: "payment method requires a confirmation code"}
	ErrInvalidPaymentMethod  = &Error{Code: "INVALID_PAYMENT_METHOD", Kind: KindValidation, Message: "invalid payment method"}
	ErrCreditorNotInGroup    = &Error{Code: "CREDITOR_NOT_IN_GROUP", Kind: KindValidation, Message: "creditor not found in group"}
	ErrNoOutstandingDebt     = &Error{Code: "NO_OUTSTANDING_DEBT", Kind: KindValidation, Message: "no outstanding debt to this creditor"}
	ErrCannotLeaveWithDebt   = &Error{Code: "CANNOT_LEAVE_WITH_DEBT", Kind: KindValidation, Message: "cannot leave group with outstanding debt"}
	ErrCreatorCannotLeave    = &Error{Code: "CREATOR_CANNOT_LEAVE", Kind: KindValidation, Message: "group creator cannot leave the group"}
	ErrNotAuthorized         = &Error{Code: "NOT_AUTHORIZED", Kind: KindAuthorization, Message: "only a payer of the expense can change it"}
	ErrAccessDenied          = &Error{Code: "ACCESS_DENIED", Kind: KindAuthorization, Message: "not a member of this group"}
	ErrLedgerConsistency     = &Error{Code: "LEDGER_CONSISTENCY", Kind: KindConsistency, Message: "ledger update failed"}
)

// withDetail returns a copy of base with a more specific message.
func withDetail(base *Error, format string, args ...any) error {
	return &Error{
		Code:    base.Code,
		Kind:    base.Kind,
		Message: fmt.Sprintf("%s: %s", base.Message, fmt.Sprintf(format, args...)),
	}
}

// consistency wraps a storage failure from inside a ledger pass. Ledger
// errors raised by validation inside the pass are returned unchanged.
func consistency(op string, err error) error {
	if err == nil {
		return nil
	}
	var lerr *Error
	if errors.As(err, &lerr) {
		return err
	}
	return &Error{
		Code:    ErrLedgerConsistency.Code,
		Kind:    KindConsistency,
		Message: op + " failed",
		Err:     err,
	}
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// CannotLeaveError reports the outstanding debt blocking a member from
// leaving a group.
type CannotLeaveError struct {
	GroupID   string
	UserID    string
	TotalDebt decimal.Decimal
}

func (e *CannotLeaveError) Error() string {
	return fmt.Sprintf("cannot leave group with outstanding debt of %s", e.TotalDebt.StringFixed(2))
}

func (e *CannotLeaveError) Unwrap() error {
	return ErrCannotLeaveWithDebt
}

// =============================================================================
// HELPERS
// =============================================================================

// CodeOf returns the reason code of the first ledger Error in err's chain,
// or "" if there is none.
func CodeOf(err error) string {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Code
	}
	return ""
}

// KindOf returns the kind of the first ledger Error in err's chain, or ""
// if there is none.
func KindOf(err error) Kind {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	return ""
}

func IsValidation(err error) bool    { return KindOf(err) == KindValidation }
func IsAuthorization(err error) bool { return KindOf(err) == KindAuthorization }
func IsNotFound(err error) bool      { return KindOf(err) == KindNotFound }
func IsConsistency(err error) bool   { return KindOf(err) == KindConsistency }
