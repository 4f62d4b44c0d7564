package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/mmynk/groupledger/internal/calculator"
	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// BalanceService implements the read-only BalanceService RPC interface.
type BalanceService struct {
	store  storage.Store
	engine *ledger.Engine
}

// NewBalanceService creates a new BalanceService.
func NewBalanceService(store storage.Store, engine *ledger.Engine) *BalanceService {
	return &BalanceService{store: store, engine: engine}
}

// GetGroupBalances returns the group's pairwise rows, each member's net
// position, and a suggested set of transfers that would settle everyone.
func (s *BalanceService) GetGroupBalances(ctx context.Context, req *connect.Request[GetGroupBalancesRequest]) (*connect.Response[GetGroupBalancesResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("GetGroupBalances request received", "group_id", req.Msg.GroupID)

	if err := requireGroupID(req.Msg.GroupID); err != nil {
		return nil, err
	}
	group, err := s.engine.Group(ctx, req.Msg.GroupID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	rows, err := s.store.ListGroupBalances(ctx, group.ID)
	if err != nil {
		slog.Error("GetGroupBalances failed", "group_id", group.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	// Former members can still appear on rows they were owed.
	ids := append([]string(nil), group.Members...)
	for _, row := range rows {
		ids = append(ids, row.DebtorID, row.CreditorID)
	}
	users, err := s.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		slog.Error("GetGroupBalances failed", "group_id", group.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	name := func(id string) string {
		if u, ok := users[id]; ok {
			return u.DisplayName
		}
		return ""
	}

	resp := &GetGroupBalancesResponse{Balances: make([]*Balance, 0, len(rows))}
	for _, row := range rows {
		resp.Balances = append(resp.Balances, &Balance{
			DebtorID:     row.DebtorID,
			DebtorName:   name(row.DebtorID),
			CreditorID:   row.CreditorID,
			CreditorName: name(row.CreditorID),
			Amount:       row.Amount,
			Status:       string(row.Status),
			UpdatedAt:    row.UpdatedAt,
		})
	}

	members, edges := calculator.SummarizeBalances(group.Members, debtRows(unpaidRows(rows)))
	for _, m := range members {
		resp.Members = append(resp.Members, &MemberBalance{
			UserID:      m.MemberID,
			DisplayName: name(m.MemberID),
			NetBalance:  m.NetBalance,
			TotalOwed:   m.TotalOwed,
			TotalOwing:  m.TotalOwing,
			Status:      m.Status(),
		})
	}
	for _, e := range edges {
		resp.SuggestedTransfers = append(resp.SuggestedTransfers, &Transfer{From: e.From, To: e.To, Amount: e.Amount})
	}

	return connect.NewResponse(resp), nil
}

// GetUserSummary totals what the caller owes and is owed, per group and
// overall.
func (s *BalanceService) GetUserSummary(ctx context.Context, req *connect.Request[GetUserSummaryRequest]) (*connect.Response[GetUserSummaryResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("GetUserSummary request received", "user_id", userID)

	rows, err := s.store.ListUserBalances(ctx, userID)
	if err != nil {
		slog.Error("GetUserSummary failed", "user_id", userID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	groups, err := s.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		slog.Error("GetUserSummary failed", "user_id", userID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	resp := &GetUserSummaryResponse{
		TotalOwed:  decimal.Zero,
		TotalOwing: decimal.Zero,
		Groups:     make([]*GroupSummary, 0, len(groups)),
	}
	byGroup := make(map[string]*GroupSummary, len(groups))
	for _, g := range groups {
		gs := &GroupSummary{GroupID: g.ID, GroupName: g.Name, TotalOwed: decimal.Zero, TotalOwing: decimal.Zero}
		byGroup[g.ID] = gs
		resp.Groups = append(resp.Groups, gs)
	}

	for _, row := range unpaidRows(rows) {
		gs, ok := byGroup[row.GroupID]
		if !ok {
			// Owed money in a group the user has left.
			gs = &GroupSummary{GroupID: row.GroupID, TotalOwed: decimal.Zero, TotalOwing: decimal.Zero}
			byGroup[row.GroupID] = gs
			resp.Groups = append(resp.Groups, gs)
		}
		if row.DebtorID == userID {
			gs.TotalOwing = gs.TotalOwing.Add(row.Amount)
			resp.TotalOwing = resp.TotalOwing.Add(row.Amount)
		} else {
			gs.TotalOwed = gs.TotalOwed.Add(row.Amount)
			resp.TotalOwed = resp.TotalOwed.Add(row.Amount)
		}
	}

	for _, gs := range resp.Groups {
		gs.NetBalance = gs.TotalOwed.Sub(gs.TotalOwing)
	}
	resp.NetBalance = resp.TotalOwed.Sub(resp.TotalOwing)

	return connect.NewResponse(resp), nil
}

// unpaidRows drops paid rows and rows below the epsilon.
func unpaidRows(rows []*models.Balance) []*models.Balance {
	out := make([]*models.Balance, 0, len(rows))
	for _, row := range rows {
		if row.Status != models.BalanceUnpaid || row.Amount.LessThan(ledger.Epsilon) {
			continue
		}
		out = append(out, row)
	}
	return out
}

func debtRows(rows []*models.Balance) []calculator.DebtRow {
	out := make([]calculator.DebtRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, calculator.DebtRow{DebtorID: row.DebtorID, CreditorID: row.CreditorID, Amount: row.Amount})
	}
	return out
}
