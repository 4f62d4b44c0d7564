package service

import (
	"context"
	"log/slog"
	"strings"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// GroupService implements the GroupService RPC interface.
type GroupService struct {
	store  storage.Store
	engine *ledger.Engine
}

// NewGroupService creates a new GroupService.
func NewGroupService(store storage.Store, engine *ledger.Engine) *GroupService {
	return &GroupService{store: store, engine: engine}
}

// CreateGroup creates a group with the caller as creator. Members are given
// by email; unknown emails are reported back, not rejected.
func (s *GroupService) CreateGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[GroupResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("CreateGroup request received",
		"name", req.Msg.Name,
		"members_count", len(req.Msg.MemberEmails),
	)

	name := strings.TrimSpace(req.Msg.Name)
	if name == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errMissingName)
	}

	memberIDs, notFound, err := s.resolveEmails(ctx, req.Msg.MemberEmails)
	if err != nil {
		slog.Error("CreateGroup failed", "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	group := &models.Group{
		Name:        name,
		Description: strings.TrimSpace(req.Msg.Description),
		CreatedBy:   userID,
		Members:     memberIDs,
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		slog.Error("CreateGroup failed", "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	slog.Info("Group created", "group_id", group.ID, "members", len(group.Members))

	out, err := s.describe(ctx, group)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&GroupResponse{Group: out, NotFound: notFound}), nil
}

// GetGroup returns a group the caller belongs to.
func (s *GroupService) GetGroup(ctx context.Context, req *connect.Request[GetGroupRequest]) (*connect.Response[GroupResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("GetGroup request received", "group_id", req.Msg.GroupID)

	if err := requireGroupID(req.Msg.GroupID); err != nil {
		return nil, err
	}

	group, err := s.engine.Group(ctx, req.Msg.GroupID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	out, err := s.describe(ctx, group)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&GroupResponse{Group: out}), nil
}

// ListGroups returns every group the caller belongs to with its expense total.
func (s *GroupService) ListGroups(ctx context.Context, req *connect.Request[ListGroupsRequest]) (*connect.Response[ListGroupsResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("ListGroups request received", "user_id", userID)

	groups, err := s.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		slog.Error("ListGroups failed", "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	resp := &ListGroupsResponse{Groups: make([]*Group, 0, len(groups))}
	for _, group := range groups {
		out, err := s.describe(ctx, group)
		if err != nil {
			return nil, err
		}

		expenses, err := s.store.ListExpensesByGroup(ctx, group.ID)
		if err != nil {
			slog.Error("ListGroups failed", "group_id", group.ID, "error", err)
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		total := decimal.Zero
		for _, e := range expenses {
			total = total.Add(e.Amount)
		}
		out.TotalExpenses = &total

		resp.Groups = append(resp.Groups, out)
	}

	return connect.NewResponse(resp), nil
}

// AddMembers adds registered users to a group by email. Only members may
// add members; existing members and unknown emails are skipped.
func (s *GroupService) AddMembers(ctx context.Context, req *connect.Request[AddMembersRequest]) (*connect.Response[GroupResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("AddMembers request received",
		"group_id", req.Msg.GroupID,
		"emails_count", len(req.Msg.Emails),
	)

	if _, err := s.engine.Group(ctx, req.Msg.GroupID, userID); err != nil {
		return nil, toConnectError(err)
	}

	memberIDs, notFound, err := s.resolveEmails(ctx, req.Msg.Emails)
	if err != nil {
		slog.Error("AddMembers failed", "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if len(memberIDs) > 0 {
		if err := s.store.AddGroupMembers(ctx, req.Msg.GroupID, memberIDs); err != nil {
			slog.Error("AddMembers failed", "group_id", req.Msg.GroupID, "error", err)
			return nil, connect.NewError(connect.CodeInternal, err)
		}
	}

	group, err := s.store.GetGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	slog.Info("Members added", "group_id", group.ID, "added", len(memberIDs), "not_found", len(notFound))

	out, err := s.describe(ctx, group)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&GroupResponse{Group: out, NotFound: notFound}), nil
}

// CanLeaveGroup reports whether the caller could leave the group now.
func (s *GroupService) CanLeaveGroup(ctx context.Context, req *connect.Request[LeaveGroupRequest]) (*connect.Response[LeaveGroupResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("CanLeaveGroup request received", "group_id", req.Msg.GroupID, "user_id", userID)

	check, err := s.engine.CanLeaveGroup(ctx, req.Msg.GroupID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toLeaveResponse(check)), nil
}

// LeaveGroup removes the caller from the group.
func (s *GroupService) LeaveGroup(ctx context.Context, req *connect.Request[LeaveGroupRequest]) (*connect.Response[LeaveGroupResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("LeaveGroup request received", "group_id", req.Msg.GroupID, "user_id", userID)

	check, err := s.engine.LeaveGroup(ctx, req.Msg.GroupID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := toLeaveResponse(check)
	if check.TotalOwed.GreaterThan(ledger.Epsilon) {
		resp.Warning = "you left the group while other members still owe you " + check.TotalOwed.StringFixed(2)
	}
	return connect.NewResponse(resp), nil
}

// resolveEmails maps emails to user IDs, returning the emails that matched
// no user.
func (s *GroupService) resolveEmails(ctx context.Context, emails []string) ([]string, []string, error) {
	var ids, notFound []string
	seen := map[string]bool{}
	for _, raw := range emails {
		email := strings.ToLower(strings.TrimSpace(raw))
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true

		user, err := s.store.GetUserByEmail(ctx, email)
		if err != nil {
			return nil, nil, err
		}
		if user == nil {
			notFound = append(notFound, email)
			continue
		}
		ids = append(ids, user.ID)
	}
	return ids, notFound, nil
}

// describe loads member profiles for the wire form of group.
func (s *GroupService) describe(ctx context.Context, group *models.Group) (*Group, error) {
	users, err := s.store.GetUsersByIDs(ctx, group.Members)
	if err != nil {
		slog.Error("Failed to load group members", "group_id", group.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return toGroup(group, users), nil
}

// requireGroupID rejects requests with no group.
func requireGroupID(groupID string) error {
	if strings.TrimSpace(groupID) == "" {
		return connect.NewError(connect.CodeInvalidArgument, errMissingGroupID)
	}
	return nil
}
