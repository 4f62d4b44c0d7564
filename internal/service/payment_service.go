package service

import (
	"context"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/storage"
)

// PaymentService implements the PaymentService RPC interface.
type PaymentService struct {
	store  storage.Store
	engine *ledger.Engine
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(store storage.Store, engine *ledger.Engine) *PaymentService {
	return &PaymentService{store: store, engine: engine}
}

// CreatePayment records the caller paying toward an expense.
func (s *PaymentService) CreatePayment(ctx context.Context, req *connect.Request[CreatePaymentRequest]) (*connect.Response[PaymentResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("CreatePayment request received",
		"expense_id", req.Msg.ExpenseID,
		"amount", req.Msg.Amount.String(),
		"method", req.Msg.Method,
	)

	if strings.TrimSpace(req.Msg.ExpenseID) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errMissingExpense)
	}

	result, err := s.engine.CreatePayment(ctx, userID, ledger.NewPayment{
		ExpenseID:        req.Msg.ExpenseID,
		Amount:           req.Msg.Amount,
		Method:           req.Msg.Method,
		ConfirmationCode: req.Msg.ConfirmationCode,
		Proof:            toProofFile(req.Msg.Proof),
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(toPaymentResponse(result)), nil
}

// SettleDebt pays down what the caller owes a creditor named by display name.
func (s *PaymentService) SettleDebt(ctx context.Context, req *connect.Request[SettleDebtRequest]) (*connect.Response[PaymentResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("SettleDebt request received",
		"group_id", req.Msg.GroupID,
		"creditor_name", req.Msg.CreditorName,
		"amount", req.Msg.Amount.String(),
		"method", req.Msg.Method,
	)

	if err := requireGroupID(req.Msg.GroupID); err != nil {
		return nil, err
	}

	result, err := s.engine.SettleDebt(ctx, userID, ledger.NewSettlement{
		GroupID:          req.Msg.GroupID,
		CreditorName:     req.Msg.CreditorName,
		Amount:           req.Msg.Amount,
		Method:           req.Msg.Method,
		ConfirmationCode: req.Msg.ConfirmationCode,
		Proof:            toProofFile(req.Msg.Proof),
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(toPaymentResponse(result)), nil
}

// ListPayments returns a group's payments, newest first.
func (s *PaymentService) ListPayments(ctx context.Context, req *connect.Request[ListPaymentsRequest]) (*connect.Response[ListPaymentsResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("ListPayments request received", "group_id", req.Msg.GroupID)

	if err := requireGroupID(req.Msg.GroupID); err != nil {
		return nil, err
	}
	if _, err := s.engine.Group(ctx, req.Msg.GroupID, userID); err != nil {
		return nil, toConnectError(err)
	}

	payments, err := s.store.ListPaymentsByGroup(ctx, req.Msg.GroupID)
	if err != nil {
		slog.Error("ListPayments failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	resp := &ListPaymentsResponse{Payments: make([]*Payment, 0, len(payments))}
	for _, p := range payments {
		resp.Payments = append(resp.Payments, toPayment(p))
	}
	return connect.NewResponse(resp), nil
}
