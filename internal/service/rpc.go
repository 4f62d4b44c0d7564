package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// Fully-qualified service names. Each is served under "/<name>/".
const (
	AuthServiceName        = "groupledger.v1.AuthService"
	GroupServiceName       = "groupledger.v1.GroupService"
	ExpenseServiceName     = "groupledger.v1.ExpenseService"
	PaymentServiceName     = "groupledger.v1.PaymentService"
	BalanceServiceName     = "groupledger.v1.BalanceService"
	TransactionServiceName = "groupledger.v1.TransactionService"
)

// Procedure paths.
const (
	AuthServiceRegisterProcedure       = "/" + AuthServiceName + "/Register"
	AuthServiceLoginProcedure          = "/" + AuthServiceName + "/Login"
	AuthServiceGetCurrentUserProcedure = "/" + AuthServiceName + "/GetCurrentUser"
	AuthServiceUpdateProfileProcedure  = "/" + AuthServiceName + "/UpdateProfile"

	GroupServiceCreateGroupProcedure   = "/" + GroupServiceName + "/CreateGroup"
	GroupServiceGetGroupProcedure      = "/" + GroupServiceName + "/GetGroup"
	GroupServiceListGroupsProcedure    = "/" + GroupServiceName + "/ListGroups"
	GroupServiceAddMembersProcedure    = "/" + GroupServiceName + "/AddMembers"
	GroupServiceCanLeaveGroupProcedure = "/" + GroupServiceName + "/CanLeaveGroup"
	GroupServiceLeaveGroupProcedure    = "/" + GroupServiceName + "/LeaveGroup"

	ExpenseServiceCreateExpenseProcedure = "/" + ExpenseServiceName + "/CreateExpense"
	ExpenseServiceUpdateExpenseProcedure = "/" + ExpenseServiceName + "/UpdateExpense"
	ExpenseServiceDeleteExpenseProcedure = "/" + ExpenseServiceName + "/DeleteExpense"
	ExpenseServiceGetExpenseProcedure    = "/" + ExpenseServiceName + "/GetExpense"
	ExpenseServiceListExpensesProcedure  = "/" + ExpenseServiceName + "/ListExpenses"

	PaymentServiceCreatePaymentProcedure = "/" + PaymentServiceName + "/CreatePayment"
	PaymentServiceSettleDebtProcedure    = "/" + PaymentServiceName + "/SettleDebt"
	PaymentServiceListPaymentsProcedure  = "/" + PaymentServiceName + "/ListPayments"

	BalanceServiceGetGroupBalancesProcedure = "/" + BalanceServiceName + "/GetGroupBalances"
	BalanceServiceGetUserSummaryProcedure   = "/" + BalanceServiceName + "/GetUserSummary"

	TransactionServiceListTransactionsProcedure    = "/" + TransactionServiceName + "/ListTransactions"
	TransactionServiceGetTransactionProcedure      = "/" + TransactionServiceName + "/GetTransaction"
	TransactionServiceGetTransactionStatsProcedure = "/" + TransactionServiceName + "/GetTransactionStats"
)

// PublicProcedures can be called without a bearer token.
var PublicProcedures = []string{
	AuthServiceRegisterProcedure,
	AuthServiceLoginProcedure,
}

// jsonCodec marshals plain Go structs with encoding/json. It is registered
// under the "json" name, so both the Connect protocol's application/json and
// gRPC's application/grpc+json content types use it.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}

// JSONCodec returns the codec used by every handler. Clients must use it too:
//
//	connect.NewClient[Req, Res](httpClient, url, connect.WithCodec(service.JSONCodec()))
func JSONCodec() connect.Codec {
	return jsonCodec{}
}

// procedureMux routes requests for one service to its unary handlers.
type procedureMux map[string]http.Handler

func (m procedureMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h, ok := m[r.URL.Path]; ok {
		h.ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

func unary[Req, Res any](
	procedure string,
	fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error),
	opts []connect.HandlerOption,
) http.Handler {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	return connect.NewUnaryHandler(procedure, fn, opts...)
}

func servicePath(name string) string {
	return "/" + strings.TrimPrefix(name, "/") + "/"
}

// NewAuthServiceHandler returns the mount path and handler for AuthService.
func NewAuthServiceHandler(svc *AuthService, opts ...connect.HandlerOption) (string, http.Handler) {
	return servicePath(AuthServiceName), procedureMux{
		AuthServiceRegisterProcedure:       unary(AuthServiceRegisterProcedure, svc.Register, opts),
		AuthServiceLoginProcedure:          unary(AuthServiceLoginProcedure, svc.Login, opts),
		AuthServiceGetCurrentUserProcedure: unary(AuthServiceGetCurrentUserProcedure, svc.GetCurrentUser, opts),
		AuthServiceUpdateProfileProcedure:  unary(AuthServiceUpdateProfileProcedure, svc.UpdateProfile, opts),
	}
}

// NewGroupServiceHandler returns the mount path and handler for GroupService.
func NewGroupServiceHandler(svc *GroupService, opts ...connect.HandlerOption) (string, http.Handler) {
	return servicePath(GroupServiceName), procedureMux{
		GroupServiceCreateGroupProcedure:   unary(GroupServiceCreateGroupProcedure, svc.CreateGroup, opts),
		GroupServiceGetGroupProcedure:      unary(GroupServiceGetGroupProcedure, svc.GetGroup, opts),
		GroupServiceListGroupsProcedure:    unary(GroupServiceListGroupsProcedure, svc.ListGroups, opts),
		GroupServiceAddMembersProcedure:    unary(GroupServiceAddMembersProcedure, svc.AddMembers, opts),
		GroupServiceCanLeaveGroupProcedure: unary(GroupServiceCanLeaveGroupProcedure, svc.CanLeaveGroup, opts),
		GroupServiceLeaveGroupProcedure:    unary(GroupServiceLeaveGroupProcedure, svc.LeaveGroup, opts),
	}
}

// NewExpenseServiceHandler returns the mount path and handler for ExpenseService.
func NewExpenseServiceHandler(svc *ExpenseService, opts ...connect.HandlerOption) (string, http.Handler) {
	return servicePath(ExpenseServiceName), procedureMux{
		ExpenseServiceCreateExpenseProcedure: unary(ExpenseServiceCreateExpenseProcedure, svc.CreateExpense, opts),
		ExpenseServiceUpdateExpenseProcedure: unary(ExpenseServiceUpdateExpenseProcedure, svc.UpdateExpense, opts),
		ExpenseServiceDeleteExpenseProcedure: unary(ExpenseServiceDeleteExpenseProcedure, svc.DeleteExpense, opts),
		ExpenseServiceGetExpenseProcedure:    unary(ExpenseServiceGetExpenseProcedure, svc.GetExpense, opts),
		ExpenseServiceListExpensesProcedure:  unary(ExpenseServiceListExpensesProcedure, svc.ListExpenses, opts),
	}
}

// NewPaymentServiceHandler returns the mount path and handler for PaymentService.
func NewPaymentServiceHandler(svc *PaymentService, opts ...connect.HandlerOption) (string, http.Handler) {
	return servicePath(PaymentServiceName), procedureMux{
		PaymentServiceCreatePaymentProcedure: unary(PaymentServiceCreatePaymentProcedure, svc.CreatePayment, opts),
		PaymentServiceSettleDebtProcedure:    unary(PaymentServiceSettleDebtProcedure, svc.SettleDebt, opts),
		PaymentServiceListPaymentsProcedure:  unary(PaymentServiceListPaymentsProcedure, svc.ListPayments, opts),
	}
}

// NewBalanceServiceHandler returns the mount path and handler for BalanceService.
func NewBalanceServiceHandler(svc *BalanceService, opts ...connect.HandlerOption) (string, http.Handler) {
	return servicePath(BalanceServiceName), procedureMux{
		BalanceServiceGetGroupBalancesProcedure: unary(BalanceServiceGetGroupBalancesProcedure, svc.GetGroupBalances, opts),
		BalanceServiceGetUserSummaryProcedure:   unary(BalanceServiceGetUserSummaryProcedure, svc.GetUserSummary, opts),
	}
}

// NewTransactionServiceHandler returns the mount path and handler for TransactionService.
func NewTransactionServiceHandler(svc *TransactionService, opts ...connect.HandlerOption) (string, http.Handler) {
	return servicePath(TransactionServiceName), procedureMux{
		TransactionServiceListTransactionsProcedure:    unary(TransactionServiceListTransactionsProcedure, svc.ListTransactions, opts),
		TransactionServiceGetTransactionProcedure:      unary(TransactionServiceGetTransactionProcedure, svc.GetTransaction, opts),
		TransactionServiceGetTransactionStatsProcedure: unary(TransactionServiceGetTransactionStatsProcedure, svc.GetTransactionStats, opts),
	}
}
