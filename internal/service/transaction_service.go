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

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxPage         = 1_000_000
)

// TransactionService implements the TransactionService RPC interface. The
// history it serves is observational; balances never come from it.
type TransactionService struct {
	store  storage.Store
	engine *ledger.Engine
}

// NewTransactionService creates a new TransactionService.
func NewTransactionService(store storage.Store, engine *ledger.Engine) *TransactionService {
	return &TransactionService{store: store, engine: engine}
}

// ListTransactions returns the caller's history entries (as payer, receiver
// or creator), optionally narrowed to one group, type, status or date range.
func (s *TransactionService) ListTransactions(ctx context.Context, req *connect.Request[ListTransactionsRequest]) (*connect.Response[ListTransactionsResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("ListTransactions request received",
		"group_id", req.Msg.GroupID,
		"type", req.Msg.Type,
		"page", req.Msg.Page,
	)

	if req.Msg.GroupID != "" {
		if _, err := s.engine.Group(ctx, req.Msg.GroupID, userID); err != nil {
			return nil, toConnectError(err)
		}
	}

	page, limit, offset := paginate(req.Msg.Page, req.Msg.Limit)

	entries, total, err := s.store.ListTransactions(ctx, storage.TransactionFilter{
		UserID:  userID,
		GroupID: req.Msg.GroupID,
		Type:    models.TransactionType(strings.ToLower(strings.TrimSpace(req.Msg.Type))),
		Status:  models.TransactionStatus(strings.ToLower(strings.TrimSpace(req.Msg.Status))),
		From:    req.Msg.From,
		To:      req.Msg.To,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		slog.Error("ListTransactions failed", "user_id", userID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	resp := &ListTransactionsResponse{
		Transactions: make([]*Transaction, 0, len(entries)),
		Total:        total,
		Page:         page,
		Pages:        (total + limit - 1) / limit,
	}
	for _, e := range entries {
		resp.Transactions = append(resp.Transactions, toTransaction(e))
	}
	return connect.NewResponse(resp), nil
}

// GetTransaction returns one history entry. Only its payer, receiver or
// creator may read it.
func (s *TransactionService) GetTransaction(ctx context.Context, req *connect.Request[GetTransactionRequest]) (*connect.Response[GetTransactionResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	if req.Msg.TransactionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errMissingTransaction)
	}

	entry, err := s.store.GetTransaction(ctx, req.Msg.TransactionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, connect.NewError(connect.CodeNotFound, errTransactionNotFound)
	}
	if err != nil {
		slog.Error("GetTransaction failed", "transaction_id", req.Msg.TransactionID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	if entry.PayerID != userID && entry.ReceiverID != userID && entry.CreatedBy != userID {
		return nil, connect.NewError(connect.CodePermissionDenied, errTransactionAccess)
	}

	return connect.NewResponse(&GetTransactionResponse{Transaction: toTransaction(entry)}), nil
}

// GetTransactionStats totals the caller's confirmed history: expenses they
// paid for, payments and settlements they made and received, and a per-type
// breakdown.
func (s *TransactionService) GetTransactionStats(ctx context.Context, req *connect.Request[GetTransactionStatsRequest]) (*connect.Response[GetTransactionStatsResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	stats, err := s.store.TransactionStats(ctx, userID, req.Msg.From, req.Msg.To)
	if err != nil {
		slog.Error("GetTransactionStats failed", "user_id", userID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(toTransactionStats(stats)), nil
}

// paginate normalizes a 1-based page and a page size into a SQL offset.
// The page is capped so the offset stays well inside int range.
func paginate(page, limit int) (int, int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)
	page = min(max(page, 1), maxPage)
	return page, limit, (page - 1) * limit
}
