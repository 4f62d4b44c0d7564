package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// ExpenseService implements the ExpenseService RPC interface. Every
// mutation goes through the ledger engine.
type ExpenseService struct {
	store  storage.Store
	engine *ledger.Engine
}

// NewExpenseService creates a new ExpenseService.
func NewExpenseService(store storage.Store, engine *ledger.Engine) *ExpenseService {
	return &ExpenseService{store: store, engine: engine}
}

// CreateExpense records an expense and the debts it creates.
func (s *ExpenseService) CreateExpense(ctx context.Context, req *connect.Request[CreateExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("CreateExpense request received",
		"group_id", req.Msg.GroupID,
		"amount", req.Msg.Amount.String(),
		"payers_count", len(req.Msg.PaidBy),
		"split_count", len(req.Msg.SplitBetween),
	)

	if err := requireGroupID(req.Msg.GroupID); err != nil {
		return nil, err
	}

	paidBy := req.Msg.PaidBy
	if len(paidBy) == 0 {
		paidBy = []string{userID}
	}

	expense, err := s.engine.CreateExpense(ctx, userID, ledger.NewExpense{
		GroupID:      req.Msg.GroupID,
		Description:  req.Msg.Description,
		Category:     req.Msg.Category,
		Amount:       req.Msg.Amount,
		PaidBy:       paidBy,
		SplitBetween: req.Msg.SplitBetween,
		Status:       models.ExpenseStatus(strings.ToLower(strings.TrimSpace(req.Msg.Status))),
		Date:         req.Msg.Date,
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&ExpenseResponse{Expense: toExpense(expense)}), nil
}

// UpdateExpense changes an expense. Only its payers may call this.
func (s *ExpenseService) UpdateExpense(ctx context.Context, req *connect.Request[UpdateExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("UpdateExpense request received", "expense_id", req.Msg.ExpenseID)

	if strings.TrimSpace(req.Msg.ExpenseID) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errMissingExpense)
	}

	upd := ledger.ExpenseUpdate{
		Description:  req.Msg.Description,
		Category:     req.Msg.Category,
		Amount:       req.Msg.Amount,
		SplitBetween: req.Msg.SplitBetween,
		Date:         req.Msg.Date,
	}
	if req.Msg.Status != nil {
		status := models.ExpenseStatus(strings.ToLower(strings.TrimSpace(*req.Msg.Status)))
		upd.Status = &status
	}

	expense, err := s.engine.UpdateExpense(ctx, userID, req.Msg.ExpenseID, upd)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&ExpenseResponse{Expense: toExpense(expense)}), nil
}

// DeleteExpense reverts an expense's debts and removes it.
func (s *ExpenseService) DeleteExpense(ctx context.Context, req *connect.Request[DeleteExpenseRequest]) (*connect.Response[DeleteExpenseResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("DeleteExpense request received", "expense_id", req.Msg.ExpenseID)

	if strings.TrimSpace(req.Msg.ExpenseID) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errMissingExpense)
	}

	if err := s.engine.DeleteExpense(ctx, userID, req.Msg.ExpenseID); err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&DeleteExpenseResponse{}), nil
}

// GetExpense returns an expense in a group the caller belongs to.
func (s *ExpenseService) GetExpense(ctx context.Context, req *connect.Request[GetExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("GetExpense request received", "expense_id", req.Msg.ExpenseID)

	expense, err := s.store.GetExpense(ctx, req.Msg.ExpenseID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, toConnectError(ledger.ErrExpenseNotFound)
	}
	if err != nil {
		slog.Error("GetExpense failed", "expense_id", req.Msg.ExpenseID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if _, err := s.engine.Group(ctx, expense.GroupID, userID); err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&ExpenseResponse{Expense: toExpense(expense)}), nil
}

// ListExpenses returns a group's expenses, newest first.
func (s *ExpenseService) ListExpenses(ctx context.Context, req *connect.Request[ListExpensesRequest]) (*connect.Response[ListExpensesResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("ListExpenses request received", "group_id", req.Msg.GroupID)

	if err := requireGroupID(req.Msg.GroupID); err != nil {
		return nil, err
	}
	if _, err := s.engine.Group(ctx, req.Msg.GroupID, userID); err != nil {
		return nil, toConnectError(err)
	}

	expenses, err := s.store.ListExpensesByGroup(ctx, req.Msg.GroupID)
	if err != nil {
		slog.Error("ListExpenses failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	resp := &ListExpensesResponse{Expenses: make([]*Expense, 0, len(expenses))}
	for _, e := range expenses {
		resp.Expenses = append(resp.Expenses, toExpense(e))
	}
	return connect.NewResponse(resp), nil
}
