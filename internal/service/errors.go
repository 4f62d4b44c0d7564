package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/groupledger/internal/auth"
	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/middleware"
)

// TotalDebtHeader carries the outstanding debt on CANNOT_LEAVE_WITH_DEBT errors.
const TotalDebtHeader = "Ledger-Total-Debt"

var (
	errUnauthenticated = errors.New("not authenticated")
	errMissingGroupID  = errors.New("group_id is required")
	errMissingExpense  = errors.New("expense_id is required")
	errMissingName     = errors.New("group name is required")

	errMissingTransaction  = errors.New("transaction_id is required")
	errTransactionNotFound = errors.New("transaction not found")
	errTransactionAccess   = errors.New("not a party to this transaction")
)

// toConnectError maps a ledger or auth failure onto a Connect error. The
// ledger reason code is attached as a response header so clients can
// branch on it without parsing the message.
func toConnectError(err error) error {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}

	switch {
	case errors.Is(err, auth.ErrEmailExists):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrDisplayNameMissing):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return connect.NewError(connect.CodeUnauthenticated, err)
	}

	code := ledger.CodeOf(err)
	if code == "" {
		return connect.NewError(connect.CodeInternal, err)
	}

	var ce *connect.Error
	switch ledger.KindOf(err) {
	case ledger.KindValidation:
		if errors.Is(err, ledger.ErrCannotLeaveWithDebt) || errors.Is(err, ledger.ErrCreatorCannotLeave) {
			ce = connect.NewError(connect.CodeFailedPrecondition, err)
		} else {
			ce = connect.NewError(connect.CodeInvalidArgument, err)
		}
	case ledger.KindAuthorization:
		ce = connect.NewError(connect.CodePermissionDenied, err)
	case ledger.KindNotFound:
		ce = connect.NewError(connect.CodeNotFound, err)
	default:
		slog.Error("Ledger consistency failure", "code", code, "error", err)
		ce = connect.NewError(connect.CodeInternal, err)
	}

	ce.Meta().Set(middleware.ErrorCodeHeader, code)
	var leaveErr *ledger.CannotLeaveError
	if errors.As(err, &leaveErr) {
		ce.Meta().Set(TotalDebtHeader, leaveErr.TotalDebt.StringFixed(2))
	}
	return ce
}

// callerID returns the authenticated user or an Unauthenticated error.
func callerID(ctx context.Context) (string, error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, errUnauthenticated)
	}
	return userID, nil
}
