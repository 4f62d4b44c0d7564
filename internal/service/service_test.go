package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/groupledger/internal/audit"
	"github.com/mmynk/groupledger/internal/auth"
	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/middleware"
	"github.com/mmynk/groupledger/internal/storage/sqlite"
)

type testServer struct {
	url string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := ledger.NewEngine(store, audit.NewStoreRecorder(store))
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	authenticator := auth.NewPasswordAuthenticatorWithCost(store, bcrypt.MinCost)

	interceptors := connect.WithInterceptors(
		middleware.RequireAuth(jwtManager, PublicProcedures...),
		middleware.LoggingInterceptor(),
	)

	mux := http.NewServeMux()
	mux.Handle(NewAuthServiceHandler(NewAuthService(authenticator, jwtManager, store, slog.Default()), interceptors))
	mux.Handle(NewGroupServiceHandler(NewGroupService(store, engine), interceptors))
	mux.Handle(NewExpenseServiceHandler(NewExpenseService(store, engine), interceptors))
	mux.Handle(NewPaymentServiceHandler(NewPaymentService(store, engine), interceptors))
	mux.Handle(NewBalanceServiceHandler(NewBalanceService(store, engine), interceptors))
	mux.Handle(NewTransactionServiceHandler(NewTransactionService(store, engine), interceptors))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{url: srv.URL}
}

// call invokes procedure as the holder of token. An empty token sends no
// Authorization header.
func call[Req, Res any](t *testing.T, s *testServer, procedure, token string, msg *Req) (*Res, error) {
	t.Helper()
	client := connect.NewClient[Req, Res](http.DefaultClient, s.url+procedure, connect.WithCodec(JSONCodec()))
	req := connect.NewRequest(msg)
	if token != "" {
		req.Header().Set("Authorization", "Bearer "+token)
	}
	resp, err := client.CallUnary(context.Background(), req)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (s *testServer) register(t *testing.T, email, name string) *AuthResponse {
	t.Helper()
	resp, err := call[RegisterRequest, AuthResponse](t, s, AuthServiceRegisterProcedure, "", &RegisterRequest{
		Email: email, DisplayName: name, Password: "password123",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)
	return resp
}

// assertCode checks the connect code and, when reason is set, the ledger reason header.
func assertCode(t *testing.T, err error, code connect.Code, reason string) {
	t.Helper()
	require.Error(t, err)
	var ce *connect.Error
	require.True(t, errors.As(err, &ce), "not a connect error: %v", err)
	assert.Equal(t, code, ce.Code(), "message: %s", ce.Message())
	if reason != "" {
		assert.Equal(t, reason, ce.Meta().Get(middleware.ErrorCodeHeader))
	}
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAuthService(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice@example.com", "Alice")
	assert.Equal(t, "Alice", alice.User.DisplayName)
	assert.Greater(t, alice.ExpiresAt, time.Now().Unix())

	t.Run("duplicate email", func(t *testing.T) {
		_, err := call[RegisterRequest, AuthResponse](t, s, AuthServiceRegisterProcedure, "", &RegisterRequest{
			Email: "ALICE@example.com", DisplayName: "Alice 2", Password: "password123",
		})
		assertCode(t, err, connect.CodeAlreadyExists, "")
	})

	t.Run("weak password", func(t *testing.T) {
		_, err := call[RegisterRequest, AuthResponse](t, s, AuthServiceRegisterProcedure, "", &RegisterRequest{
			Email: "bob@example.com", DisplayName: "Bob", Password: "short",
		})
		assertCode(t, err, connect.CodeInvalidArgument, "")
	})

	t.Run("login", func(t *testing.T) {
		resp, err := call[LoginRequest, AuthResponse](t, s, AuthServiceLoginProcedure, "", &LoginRequest{
			Email: "Alice@Example.com", Password: "password123",
		})
		require.NoError(t, err)
		assert.Equal(t, alice.User.ID, resp.User.ID)

		_, err = call[LoginRequest, AuthResponse](t, s, AuthServiceLoginProcedure, "", &LoginRequest{
			Email: "alice@example.com", Password: "wrong-password",
		})
		assertCode(t, err, connect.CodeUnauthenticated, "")
	})

	t.Run("current user", func(t *testing.T) {
		resp, err := call[GetCurrentUserRequest, GetCurrentUserResponse](t, s, AuthServiceGetCurrentUserProcedure, alice.Token, &GetCurrentUserRequest{})
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", resp.User.Email)

		_, err = call[GetCurrentUserRequest, GetCurrentUserResponse](t, s, AuthServiceGetCurrentUserProcedure, "", &GetCurrentUserRequest{})
		assertCode(t, err, connect.CodeUnauthenticated, "")
	})

	t.Run("update profile", func(t *testing.T) {
		resp, err := call[UpdateProfileRequest, UpdateProfileResponse](t, s, AuthServiceUpdateProfileProcedure, alice.Token, &UpdateProfileRequest{DisplayName: "  Ally  "})
		require.NoError(t, err)
		assert.Equal(t, "Ally", resp.User.DisplayName)

		current, err := call[GetCurrentUserRequest, GetCurrentUserResponse](t, s, AuthServiceGetCurrentUserProcedure, alice.Token, &GetCurrentUserRequest{})
		require.NoError(t, err)
		assert.Equal(t, "Ally", current.User.DisplayName)

		_, err = call[UpdateProfileRequest, UpdateProfileResponse](t, s, AuthServiceUpdateProfileProcedure, alice.Token, &UpdateProfileRequest{DisplayName: " "})
		assertCode(t, err, connect.CodeInvalidArgument, "")

		_, err = call[UpdateProfileRequest, UpdateProfileResponse](t, s, AuthServiceUpdateProfileProcedure, "", &UpdateProfileRequest{DisplayName: "Eve"})
		assertCode(t, err, connect.CodeUnauthenticated, "")
	})
}

func TestSettleByUpdatedName(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice@example.com", "Alice")
	bob := s.register(t, "bob@example.com", "Bob")

	created, err := call[CreateGroupRequest, GroupResponse](t, s, GroupServiceCreateGroupProcedure, alice.Token, &CreateGroupRequest{
		Name: "Flat", MemberEmails: []string{"bob@example.com"},
	})
	require.NoError(t, err)
	_, err = call[CreateExpenseRequest, ExpenseResponse](t, s, ExpenseServiceCreateExpenseProcedure, alice.Token, &CreateExpenseRequest{
		GroupID: created.Group.ID, Description: "Rent", Amount: d("100"),
	})
	require.NoError(t, err)

	_, err = call[UpdateProfileRequest, UpdateProfileResponse](t, s, AuthServiceUpdateProfileProcedure, alice.Token, &UpdateProfileRequest{DisplayName: "Landlady"})
	require.NoError(t, err)

	_, err = call[SettleDebtRequest, PaymentResponse](t, s, PaymentServiceSettleDebtProcedure, bob.Token, &SettleDebtRequest{
		GroupID: created.Group.ID, CreditorName: "Alice", Amount: d("50"), Method: "Cash",
	})
	assertCode(t, err, connect.CodeInvalidArgument, "CREDITOR_NOT_IN_GROUP")

	settled, err := call[SettleDebtRequest, PaymentResponse](t, s, PaymentServiceSettleDebtProcedure, bob.Token, &SettleDebtRequest{
		GroupID: created.Group.ID, CreditorName: "landlady", Amount: d("50"), Method: "Cash",
	})
	require.NoError(t, err)
	assert.True(t, settled.Remaining.IsZero())
}

func TestLedgerFlow(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice@example.com", "Alice")
	bob := s.register(t, "bob@example.com", "Bob")
	carol := s.register(t, "carol@example.com", "Carol")
	dave := s.register(t, "dave@example.com", "Dave")

	created, err := call[CreateGroupRequest, GroupResponse](t, s, GroupServiceCreateGroupProcedure, alice.Token, &CreateGroupRequest{
		Name:         "Trip",
		MemberEmails: []string{"bob@example.com", "CAROL@example.com", "ghost@example.com"},
	})
	require.NoError(t, err)
	groupID := created.Group.ID
	assert.Equal(t, []string{"ghost@example.com"}, created.NotFound)
	require.Len(t, created.Group.Members, 3)
	assert.Equal(t, alice.User.ID, created.Group.Members[0].ID)

	expense, err := call[CreateExpenseRequest, ExpenseResponse](t, s, ExpenseServiceCreateExpenseProcedure, alice.Token, &CreateExpenseRequest{
		GroupID:     groupID,
		Description: "Dinner",
		Amount:      d("90"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{alice.User.ID}, expense.Expense.PaidBy, "payer defaults to the caller")
	assert.Len(t, expense.Expense.SplitBetween, 3)

	t.Run("balances", func(t *testing.T) {
		resp, err := call[GetGroupBalancesRequest, GetGroupBalancesResponse](t, s, BalanceServiceGetGroupBalancesProcedure, bob.Token, &GetGroupBalancesRequest{GroupID: groupID})
		require.NoError(t, err)
		require.Len(t, resp.Balances, 2)
		for _, b := range resp.Balances {
			assert.Equal(t, "Alice", b.CreditorName)
			assert.True(t, b.Amount.Equal(d("30")))
		}
		assert.Len(t, resp.SuggestedTransfers, 2)
	})

	t.Run("outsiders are denied", func(t *testing.T) {
		_, err := call[GetGroupRequest, GroupResponse](t, s, GroupServiceGetGroupProcedure, dave.Token, &GetGroupRequest{GroupID: groupID})
		assertCode(t, err, connect.CodePermissionDenied, "ACCESS_DENIED")

		_, err = call[GetGroupRequest, GroupResponse](t, s, GroupServiceGetGroupProcedure, dave.Token, &GetGroupRequest{GroupID: "missing"})
		assertCode(t, err, connect.CodeNotFound, "GROUP_NOT_FOUND")
	})

	t.Run("only payers edit", func(t *testing.T) {
		amount := d("60")
		_, err := call[UpdateExpenseRequest, ExpenseResponse](t, s, ExpenseServiceUpdateExpenseProcedure, carol.Token, &UpdateExpenseRequest{
			ExpenseID: expense.Expense.ID,
			Amount:    &amount,
		})
		assertCode(t, err, connect.CodePermissionDenied, "NOT_AUTHORIZED")
	})

	t.Run("validation", func(t *testing.T) {
		_, err := call[CreateExpenseRequest, ExpenseResponse](t, s, ExpenseServiceCreateExpenseProcedure, alice.Token, &CreateExpenseRequest{
			GroupID: groupID, Amount: d("-1"),
		})
		assertCode(t, err, connect.CodeInvalidArgument, "INVALID_AMOUNT")

		_, err = call[CreatePaymentRequest, PaymentResponse](t, s, PaymentServiceCreatePaymentProcedure, bob.Token, &CreatePaymentRequest{
			ExpenseID: expense.Expense.ID, Amount: d("5"), Method: "Bank",
		})
		assertCode(t, err, connect.CodeInvalidArgument, "PAYMENT_METHOD_REQUIRES_CODE")

		_, err = call[GetGroupBalancesRequest, GetGroupBalancesResponse](t, s, BalanceServiceGetGroupBalancesProcedure, bob.Token, &GetGroupBalancesRequest{})
		assertCode(t, err, connect.CodeInvalidArgument, "")
	})

	t.Run("debtor cannot leave", func(t *testing.T) {
		check, err := call[LeaveGroupRequest, LeaveGroupResponse](t, s, GroupServiceCanLeaveGroupProcedure, bob.Token, &LeaveGroupRequest{GroupID: groupID})
		require.NoError(t, err)
		assert.False(t, check.CanLeave)
		assert.True(t, check.TotalDebt.Equal(d("30")))

		_, err = call[LeaveGroupRequest, LeaveGroupResponse](t, s, GroupServiceLeaveGroupProcedure, bob.Token, &LeaveGroupRequest{GroupID: groupID})
		assertCode(t, err, connect.CodeFailedPrecondition, "CANNOT_LEAVE_WITH_DEBT")
		var ce *connect.Error
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "30.00", ce.Meta().Get(TotalDebtHeader))

		_, err = call[LeaveGroupRequest, LeaveGroupResponse](t, s, GroupServiceLeaveGroupProcedure, alice.Token, &LeaveGroupRequest{GroupID: groupID})
		assertCode(t, err, connect.CodeFailedPrecondition, "CREATOR_CANNOT_LEAVE")
	})

	t.Run("settle then leave", func(t *testing.T) {
		settled, err := call[SettleDebtRequest, PaymentResponse](t, s, PaymentServiceSettleDebtProcedure, bob.Token, &SettleDebtRequest{
			GroupID: groupID, CreditorName: "alice", Amount: d("35"), Method: "cash",
		})
		require.NoError(t, err)
		assert.True(t, settled.Remaining.Equal(d("5")))
		require.Len(t, settled.Changes, 1)
		assert.True(t, settled.Changes[0].Closed)

		_, err = call[SettleDebtRequest, PaymentResponse](t, s, PaymentServiceSettleDebtProcedure, bob.Token, &SettleDebtRequest{
			GroupID: groupID, CreditorName: "Alice", Amount: d("1"), Method: "Cash",
		})
		assertCode(t, err, connect.CodeInvalidArgument, "NO_OUTSTANDING_DEBT")

		left, err := call[LeaveGroupRequest, LeaveGroupResponse](t, s, GroupServiceLeaveGroupProcedure, bob.Token, &LeaveGroupRequest{GroupID: groupID})
		require.NoError(t, err)
		assert.True(t, left.CanLeave)
		assert.Empty(t, left.Warning)
	})

	t.Run("payments listed", func(t *testing.T) {
		resp, err := call[ListPaymentsRequest, ListPaymentsResponse](t, s, PaymentServiceListPaymentsProcedure, alice.Token, &ListPaymentsRequest{GroupID: groupID})
		require.NoError(t, err)
		require.Len(t, resp.Payments, 1)
		assert.Equal(t, bob.User.ID, resp.Payments[0].PayerID)
		assert.Empty(t, resp.Payments[0].ExpenseID)
	})

	t.Run("summary", func(t *testing.T) {
		resp, err := call[GetUserSummaryRequest, GetUserSummaryResponse](t, s, BalanceServiceGetUserSummaryProcedure, alice.Token, &GetUserSummaryRequest{})
		require.NoError(t, err)
		assert.True(t, resp.TotalOwed.Equal(d("30")), "only carol still owes: %s", resp.TotalOwed)
		assert.True(t, resp.TotalOwing.IsZero())
		require.Len(t, resp.Groups, 1)
		assert.Equal(t, "Trip", resp.Groups[0].GroupName)
	})

	t.Run("history", func(t *testing.T) {
		resp, err := call[ListTransactionsRequest, ListTransactionsResponse](t, s, TransactionServiceListTransactionsProcedure, alice.Token, &ListTransactionsRequest{GroupID: groupID})
		require.NoError(t, err)
		assert.Equal(t, 2, resp.Total, "expense and settlement")
		assert.Equal(t, 1, resp.Page)
		assert.Equal(t, 1, resp.Pages)

		typed, err := call[ListTransactionsRequest, ListTransactionsResponse](t, s, TransactionServiceListTransactionsProcedure, alice.Token, &ListTransactionsRequest{Type: "Settlement"})
		require.NoError(t, err)
		require.Len(t, typed.Transactions, 1)
		assert.Equal(t, "35.00", typed.Transactions[0].Amount)
		assert.Equal(t, alice.User.ID, typed.Transactions[0].ReceiverID)
	})

	t.Run("single entry is visible to its parties", func(t *testing.T) {
		typed, err := call[ListTransactionsRequest, ListTransactionsResponse](t, s, TransactionServiceListTransactionsProcedure, bob.Token, &ListTransactionsRequest{Type: "settlement"})
		require.NoError(t, err)
		require.Len(t, typed.Transactions, 1)
		id := typed.Transactions[0].ID

		for _, token := range []string{alice.Token, bob.Token} {
			resp, err := call[GetTransactionRequest, GetTransactionResponse](t, s, TransactionServiceGetTransactionProcedure, token, &GetTransactionRequest{TransactionID: id})
			require.NoError(t, err)
			assert.Equal(t, "35.00", resp.Transaction.Amount)
			assert.Equal(t, bob.User.ID, resp.Transaction.PayerID)
		}

		_, err = call[GetTransactionRequest, GetTransactionResponse](t, s, TransactionServiceGetTransactionProcedure, carol.Token, &GetTransactionRequest{TransactionID: id})
		assertCode(t, err, connect.CodePermissionDenied, "")

		_, err = call[GetTransactionRequest, GetTransactionResponse](t, s, TransactionServiceGetTransactionProcedure, alice.Token, &GetTransactionRequest{TransactionID: "TXN-missing"})
		assertCode(t, err, connect.CodeNotFound, "")

		_, err = call[GetTransactionRequest, GetTransactionResponse](t, s, TransactionServiceGetTransactionProcedure, alice.Token, &GetTransactionRequest{})
		assertCode(t, err, connect.CodeInvalidArgument, "")
	})

	t.Run("stats", func(t *testing.T) {
		resp, err := call[GetTransactionStatsRequest, GetTransactionStatsResponse](t, s, TransactionServiceGetTransactionStatsProcedure, alice.Token, &GetTransactionStatsRequest{})
		require.NoError(t, err)
		assert.Equal(t, "90.00", resp.TotalSpent)
		assert.Equal(t, "35.00", resp.TotalReceived)
		assert.Equal(t, "0.00", resp.TotalPaid)
		assert.Equal(t, "35.00", resp.NetBalance)
		require.Len(t, resp.ByType, 2)
		assert.Equal(t, &TypeStats{Type: "expense", Count: 1, Total: "90.00"}, resp.ByType[0])
		assert.Equal(t, &TypeStats{Type: "settlement", Count: 1, Total: "35.00"}, resp.ByType[1])

		bobStats, err := call[GetTransactionStatsRequest, GetTransactionStatsResponse](t, s, TransactionServiceGetTransactionStatsProcedure, bob.Token, &GetTransactionStatsRequest{})
		require.NoError(t, err)
		assert.Equal(t, "0.00", bobStats.TotalSpent)
		assert.Equal(t, "35.00", bobStats.TotalPaid)
		assert.Equal(t, "-35.00", bobStats.NetBalance)

		future, err := call[GetTransactionStatsRequest, GetTransactionStatsResponse](t, s, TransactionServiceGetTransactionStatsProcedure, alice.Token, &GetTransactionStatsRequest{
			From: time.Now().Add(time.Hour).Unix(),
		})
		require.NoError(t, err)
		assert.Equal(t, "0.00", future.TotalSpent)
		assert.Empty(t, future.ByType)
	})

	t.Run("delete cancels history", func(t *testing.T) {
		_, err := call[DeleteExpenseRequest, DeleteExpenseResponse](t, s, ExpenseServiceDeleteExpenseProcedure, alice.Token, &DeleteExpenseRequest{ExpenseID: expense.Expense.ID})
		require.NoError(t, err)

		balances, err := call[GetGroupBalancesRequest, GetGroupBalancesResponse](t, s, BalanceServiceGetGroupBalancesProcedure, alice.Token, &GetGroupBalancesRequest{GroupID: groupID})
		require.NoError(t, err)
		assert.Empty(t, balances.Balances)

		resp, err := call[ListTransactionsRequest, ListTransactionsResponse](t, s, TransactionServiceListTransactionsProcedure, alice.Token, &ListTransactionsRequest{Type: "expense"})
		require.NoError(t, err)
		require.Len(t, resp.Transactions, 1)
		assert.Equal(t, "cancelled", resp.Transactions[0].Status)

		_, err = call[GetExpenseRequest, ExpenseResponse](t, s, ExpenseServiceGetExpenseProcedure, alice.Token, &GetExpenseRequest{ExpenseID: expense.Expense.ID})
		assertCode(t, err, connect.CodeNotFound, "EXPENSE_NOT_FOUND")
	})
}
