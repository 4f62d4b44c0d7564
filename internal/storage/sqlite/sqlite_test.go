package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createUser(t *testing.T, store *SQLiteStore, email, name string) *models.User {
	t.Helper()

	user := models.NewUser(email, name, "hash")
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user
}

func TestUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, store, "Alice@Example.com", "Alice")

	t.Run("email lookup is case-insensitive", func(t *testing.T) {
		got, err := store.GetUserByEmail(ctx, "ALICE@example.COM")
		if err != nil {
			t.Fatalf("GetUserByEmail failed: %v", err)
		}
		if got == nil || got.ID != alice.ID {
			t.Fatalf("got %+v, want user %s", got, alice.ID)
		}
	})

	t.Run("missing user returns nil", func(t *testing.T) {
		got, err := store.GetUserByID(ctx, "nope")
		if err != nil {
			t.Fatalf("GetUserByID failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil user, got %+v", got)
		}
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		dup := models.NewUser("alice@example.com", "Other", "hash")
		if err := store.CreateUser(ctx, dup); err == nil {
			t.Error("expected unique constraint error")
		}
	})

	t.Run("update display name", func(t *testing.T) {
		if err := store.UpdateUserDisplayName(ctx, alice.ID, "Ally"); err != nil {
			t.Fatalf("UpdateUserDisplayName failed: %v", err)
		}
		got, err := store.GetUserByID(ctx, alice.ID)
		if err != nil {
			t.Fatalf("GetUserByID failed: %v", err)
		}
		if got.DisplayName != "Ally" {
			t.Errorf("display name = %q, want Ally", got.DisplayName)
		}

		err = store.UpdateUserDisplayName(ctx, "ghost", "Nobody")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("GetUsersByIDs omits unknown IDs", func(t *testing.T) {
		users, err := store.GetUsersByIDs(ctx, []string{alice.ID, "ghost"})
		if err != nil {
			t.Fatalf("GetUsersByIDs failed: %v", err)
		}
		if len(users) != 1 || users[alice.ID] == nil {
			t.Errorf("got %v, want only alice", users)
		}
	})
}

func TestGroups(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, store, "alice@example.com", "Alice")
	bob := createUser(t, store, "bob@example.com", "Bob")
	carol := createUser(t, store, "carol@example.com", "Carol")

	group := &models.Group{Name: "Trip", CreatedBy: alice.ID, Members: []string{bob.ID, alice.ID}}
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	t.Run("creator is first member and duplicates dropped", func(t *testing.T) {
		got, err := store.GetGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if len(got.Members) != 2 || got.Members[0] != alice.ID || got.Members[1] != bob.ID {
			t.Errorf("members = %v, want [alice bob]", got.Members)
		}
	})

	t.Run("add and remove members", func(t *testing.T) {
		if err := store.AddGroupMembers(ctx, group.ID, []string{carol.ID, bob.ID}); err != nil {
			t.Fatalf("AddGroupMembers failed: %v", err)
		}
		got, _ := store.GetGroup(ctx, group.ID)
		if len(got.Members) != 3 || got.Members[2] != carol.ID {
			t.Fatalf("members = %v, want carol appended", got.Members)
		}

		if err := store.RemoveGroupMember(ctx, group.ID, bob.ID); err != nil {
			t.Fatalf("RemoveGroupMember failed: %v", err)
		}
		got, _ = store.GetGroup(ctx, group.ID)
		if got.HasMember(bob.ID) {
			t.Error("bob should have been removed")
		}
	})

	t.Run("ListGroupsForUser", func(t *testing.T) {
		groups, err := store.ListGroupsForUser(ctx, carol.ID)
		if err != nil {
			t.Fatalf("ListGroupsForUser failed: %v", err)
		}
		if len(groups) != 1 || groups[0].ID != group.ID {
			t.Errorf("got %d groups, want the trip", len(groups))
		}
	})

	t.Run("missing group wraps ErrNotFound", func(t *testing.T) {
		_, err := store.GetGroup(ctx, "missing")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestExpenses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, store, "alice@example.com", "Alice")
	bob := createUser(t, store, "bob@example.com", "Bob")
	group := &models.Group{Name: "Flat", CreatedBy: alice.ID, Members: []string{bob.ID}}
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	expense := &models.Expense{
		GroupID:      group.ID,
		Description:  "Groceries",
		Category:     "Food",
		Amount:       decimal.RequireFromString("42.50"),
		PaidBy:       []string{bob.ID, alice.ID},
		SplitBetween: []string{alice.ID, bob.ID},
		Status:       models.ExpensePending,
		CreatedBy:    bob.ID,
	}
	if err := store.CreateExpense(ctx, expense); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	t.Run("round trip keeps payer order and exact amount", func(t *testing.T) {
		got, err := store.GetExpense(ctx, expense.ID)
		if err != nil {
			t.Fatalf("GetExpense failed: %v", err)
		}
		if !got.Amount.Equal(expense.Amount) {
			t.Errorf("amount = %s, want %s", got.Amount, expense.Amount)
		}
		if got.PrimaryPayer() != bob.ID {
			t.Errorf("primary payer = %s, want bob", got.PrimaryPayer())
		}
		if len(got.SplitBetween) != 2 {
			t.Errorf("split = %v, want 2 members", got.SplitBetween)
		}
	})

	t.Run("update replaces split", func(t *testing.T) {
		expense.SplitBetween = []string{alice.ID}
		expense.Amount = decimal.NewFromInt(10)
		if err := store.UpdateExpense(ctx, expense); err != nil {
			t.Fatalf("UpdateExpense failed: %v", err)
		}
		got, _ := store.GetExpense(ctx, expense.ID)
		if len(got.SplitBetween) != 1 || got.SplitBetween[0] != alice.ID {
			t.Errorf("split = %v, want [alice]", got.SplitBetween)
		}
		if !got.Amount.Equal(decimal.NewFromInt(10)) {
			t.Errorf("amount = %s, want 10", got.Amount)
		}
	})

	t.Run("list and delete", func(t *testing.T) {
		list, err := store.ListExpensesByGroup(ctx, group.ID)
		if err != nil || len(list) != 1 {
			t.Fatalf("ListExpensesByGroup = %d, %v; want 1", len(list), err)
		}

		if err := store.DeleteExpense(ctx, expense.ID); err != nil {
			t.Fatalf("DeleteExpense failed: %v", err)
		}
		if _, err := store.GetExpense(ctx, expense.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
		if err := store.DeleteExpense(ctx, expense.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("second delete error = %v, want ErrNotFound", err)
		}
	})
}

func TestBalances(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, store, "alice@example.com", "Alice")
	bob := createUser(t, store, "bob@example.com", "Bob")
	carol := createUser(t, store, "carol@example.com", "Carol")
	group := &models.Group{Name: "Flat", CreatedBy: alice.ID, Members: []string{bob.ID, carol.ID}}
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	key := models.BalanceKey{GroupID: group.ID, DebtorID: bob.ID, CreditorID: alice.ID}

	t.Run("missing row is nil", func(t *testing.T) {
		got, err := store.GetBalance(ctx, key)
		if err != nil || got != nil {
			t.Fatalf("GetBalance = %+v, %v; want nil, nil", got, err)
		}
	})

	t.Run("save upserts a single row per key", func(t *testing.T) {
		for _, amount := range []string{"30", "12.345"} {
			err := store.SaveBalance(ctx, &models.Balance{
				GroupID: key.GroupID, DebtorID: key.DebtorID, CreditorID: key.CreditorID,
				Amount: decimal.RequireFromString(amount),
			})
			if err != nil {
				t.Fatalf("SaveBalance failed: %v", err)
			}
		}

		rows, err := store.ListGroupBalances(ctx, group.ID)
		if err != nil {
			t.Fatalf("ListGroupBalances failed: %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("got %d rows, want 1", len(rows))
		}
		if !rows[0].Amount.Equal(decimal.RequireFromString("12.345")) {
			t.Errorf("amount = %s, want 12.345", rows[0].Amount)
		}
		if rows[0].Status != models.BalanceUnpaid {
			t.Errorf("status = %s, want unpaid", rows[0].Status)
		}
	})

	t.Run("debtor and member listings", func(t *testing.T) {
		err := store.SaveBalance(ctx, &models.Balance{
			GroupID: group.ID, DebtorID: alice.ID, CreditorID: carol.ID, Amount: decimal.NewFromInt(5),
		})
		if err != nil {
			t.Fatalf("SaveBalance failed: %v", err)
		}

		debts, _ := store.ListDebtorBalances(ctx, group.ID, bob.ID)
		if len(debts) != 1 || debts[0].CreditorID != alice.ID {
			t.Errorf("bob's debts = %+v", debts)
		}
		involving, _ := store.ListMemberBalances(ctx, group.ID, alice.ID)
		if len(involving) != 2 {
			t.Errorf("alice involved in %d rows, want 2", len(involving))
		}
		all, _ := store.ListUserBalances(ctx, carol.ID)
		if len(all) != 1 {
			t.Errorf("carol involved in %d rows, want 1", len(all))
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := store.DeleteBalance(ctx, key); err != nil {
			t.Fatalf("DeleteBalance failed: %v", err)
		}
		if got, _ := store.GetBalance(ctx, key); got != nil {
			t.Errorf("row still present: %+v", got)
		}
	})
}

func TestRunInTxRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, store, "alice@example.com", "Alice")
	bob := createUser(t, store, "bob@example.com", "Bob")
	group := &models.Group{Name: "Flat", CreatedBy: alice.ID, Members: []string{bob.ID}}
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(tx storage.Tx) error {
		err := tx.SaveBalance(ctx, &models.Balance{
			GroupID: group.ID, DebtorID: bob.ID, CreditorID: alice.ID, Amount: decimal.NewFromInt(30),
		})
		if err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx error = %v, want boom", err)
	}

	rows, err := store.ListGroupBalances(ctx, group.ID)
	if err != nil {
		t.Fatalf("ListGroupBalances failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows after rollback, want 0", len(rows))
	}
}

func TestPayments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, store, "alice@example.com", "Alice")
	bob := createUser(t, store, "bob@example.com", "Bob")
	group := &models.Group{Name: "Flat", CreatedBy: alice.ID, Members: []string{bob.ID}}
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	withProof := &models.Payment{
		GroupID:          group.ID,
		PayerID:          bob.ID,
		CreditorID:       alice.ID,
		Amount:           decimal.RequireFromString("15.25"),
		Method:           models.MethodGCash,
		ConfirmationCode: "REF123",
		Proof:            &models.ProofFile{Filename: "receipt.png", MimeType: "image/png", Size: 2048},
		Status:           models.PaymentConfirmed,
	}
	plain := &models.Payment{
		GroupID:    group.ID,
		PayerID:    bob.ID,
		CreditorID: alice.ID,
		Amount:     decimal.NewFromInt(5),
		Method:     models.MethodCash,
		Status:     models.PaymentConfirmed,
	}
	for _, p := range []*models.Payment{withProof, plain} {
		if err := store.CreatePayment(ctx, p); err != nil {
			t.Fatalf("CreatePayment failed: %v", err)
		}
	}

	got, err := store.GetPayment(ctx, withProof.ID)
	if err != nil {
		t.Fatalf("GetPayment failed: %v", err)
	}
	if got.Proof == nil || got.Proof.Filename != "receipt.png" || got.Proof.Size != 2048 {
		t.Errorf("proof = %+v, want receipt.png", got.Proof)
	}
	if !got.IsSettlement() {
		t.Error("payment without expense should be a settlement")
	}

	got, _ = store.GetPayment(ctx, plain.ID)
	if got.Proof != nil {
		t.Errorf("expected no proof, got %+v", got.Proof)
	}

	list, err := store.ListPaymentsByGroup(ctx, group.ID)
	if err != nil || len(list) != 2 {
		t.Errorf("ListPaymentsByGroup = %d, %v; want 2", len(list), err)
	}

	if _, err := store.GetPayment(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestTransactions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []*models.TransactionHistory{
		{ID: "TXN-1", Type: models.TransactionExpense, PayerID: "alice", GroupID: "g1", Amount: decimal.NewFromInt(90),
			Status: models.TransactionConfirmed, PaymentMethod: "N/A", RelatedExpenseID: "e1", Description: "Dinner",
			Metadata: map[string]any{"number_of_payors": 1}, TransactionDate: 100, CreatedBy: "alice"},
		{ID: "TXN-2", Type: models.TransactionPayment, PayerID: "bob", ReceiverID: "alice", GroupID: "g1",
			Amount: decimal.NewFromInt(30), Status: models.TransactionConfirmed, PaymentMethod: "Cash",
			RelatedExpenseID: "e1", Description: "Payment", TransactionDate: 200, CreatedBy: "bob"},
		{ID: "TXN-3", Type: models.TransactionSettlement, PayerID: "carol", ReceiverID: "dave", GroupID: "g2",
			Amount: decimal.NewFromInt(5), Status: models.TransactionConfirmed, PaymentMethod: "Cash",
			Description: "Settlement", TransactionDate: 300, CreatedBy: "carol"},
	}
	for _, e := range entries {
		if err := store.CreateTransaction(ctx, e); err != nil {
			t.Fatalf("CreateTransaction failed: %v", err)
		}
	}

	t.Run("user filter matches payer or receiver", func(t *testing.T) {
		got, total, err := store.ListTransactions(ctx, storage.TransactionFilter{UserID: "alice"})
		if err != nil {
			t.Fatalf("ListTransactions failed: %v", err)
		}
		if total != 2 || len(got) != 2 {
			t.Fatalf("got %d of %d, want 2 of 2", len(got), total)
		}
		if got[0].ID != "TXN-2" {
			t.Errorf("first = %s, want newest TXN-2", got[0].ID)
		}
		if got[1].Metadata["number_of_payors"] != float64(1) {
			t.Errorf("metadata = %v", got[1].Metadata)
		}
	})

	t.Run("pagination keeps total", func(t *testing.T) {
		got, total, err := store.ListTransactions(ctx, storage.TransactionFilter{Limit: 1, Offset: 1})
		if err != nil {
			t.Fatalf("ListTransactions failed: %v", err)
		}
		if total != 3 || len(got) != 1 || got[0].ID != "TXN-2" {
			t.Errorf("got %d of %d, want TXN-2 of 3", len(got), total)
		}
	})

	t.Run("date range and type", func(t *testing.T) {
		got, _, _ := store.ListTransactions(ctx, storage.TransactionFilter{From: 150, To: 250})
		if len(got) != 1 || got[0].ID != "TXN-2" {
			t.Errorf("range got %d entries", len(got))
		}
		got, _, _ = store.ListTransactions(ctx, storage.TransactionFilter{Type: models.TransactionSettlement})
		if len(got) != 1 || got[0].ID != "TXN-3" {
			t.Errorf("type got %d entries", len(got))
		}
	})

	t.Run("get by id", func(t *testing.T) {
		got, err := store.GetTransaction(ctx, "TXN-2")
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}
		if got.PayerID != "bob" || got.ReceiverID != "alice" || !got.Amount.Equal(decimal.NewFromInt(30)) {
			t.Errorf("got %+v", got)
		}

		_, err = store.GetTransaction(ctx, "TXN-404")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := store.TransactionStats(ctx, "alice", 0, 0)
		if err != nil {
			t.Fatalf("TransactionStats failed: %v", err)
		}
		if !stats.TotalSpent.Equal(decimal.NewFromInt(90)) ||
			!stats.TotalReceived.Equal(decimal.NewFromInt(30)) ||
			!stats.TotalPaid.IsZero() {
			t.Errorf("spent %s received %s paid %s", stats.TotalSpent, stats.TotalReceived, stats.TotalPaid)
		}
		if len(stats.ByType) != 2 {
			t.Fatalf("by type = %+v, want expense and payment", stats.ByType)
		}
		if stats.ByType[0].Type != models.TransactionExpense || stats.ByType[0].Count != 1 ||
			stats.ByType[1].Type != models.TransactionPayment || !stats.ByType[1].Total.Equal(decimal.NewFromInt(30)) {
			t.Errorf("by type = %+v %+v", stats.ByType[0], stats.ByType[1])
		}

		bob, _ := store.TransactionStats(ctx, "bob", 0, 0)
		if !bob.TotalPaid.Equal(decimal.NewFromInt(30)) || !bob.NetBalance().Equal(decimal.NewFromInt(-30)) {
			t.Errorf("bob paid %s net %s", bob.TotalPaid, bob.NetBalance())
		}

		ranged, _ := store.TransactionStats(ctx, "alice", 150, 0)
		if !ranged.TotalSpent.IsZero() || !ranged.TotalReceived.Equal(decimal.NewFromInt(30)) {
			t.Errorf("ranged spent %s received %s", ranged.TotalSpent, ranged.TotalReceived)
		}
	})

	t.Run("cancel expense entries", func(t *testing.T) {
		n, err := store.CancelExpenseTransactions(ctx, "e1", "alice")
		if err != nil {
			t.Fatalf("CancelExpenseTransactions failed: %v", err)
		}
		if n != 2 {
			t.Errorf("cancelled %d, want 2", n)
		}

		got, _, _ := store.ListTransactions(ctx, storage.TransactionFilter{Status: models.TransactionCancelled})
		if len(got) != 2 {
			t.Fatalf("got %d cancelled entries, want 2", len(got))
		}
		for _, e := range got {
			if e.UpdatedBy != "alice" || e.Description[:12] != "[CANCELLED] " {
				t.Errorf("entry %s not marked: %+v", e.ID, e)
			}
		}

		n, _ = store.CancelExpenseTransactions(ctx, "e1", "alice")
		if n != 0 {
			t.Errorf("second cancel changed %d entries, want 0", n)
		}

		stats, _ := store.TransactionStats(ctx, "alice", 0, 0)
		if !stats.TotalSpent.IsZero() || len(stats.ByType) != 0 {
			t.Errorf("cancelled entries counted: %+v", stats)
		}
	})
}

func TestTransactionStatsKeepsCents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, amount := range []string{"0.10", "0.20", "33.33"} {
		err := store.CreateTransaction(ctx, &models.TransactionHistory{
			ID: fmt.Sprintf("TXN-%d", i), Type: models.TransactionPayment, PayerID: "bob", ReceiverID: "alice",
			GroupID: "g1", Amount: decimal.RequireFromString(amount), Status: models.TransactionConfirmed,
			PaymentMethod: "Cash", TransactionDate: int64(i + 1), CreatedBy: "bob",
		})
		if err != nil {
			t.Fatalf("CreateTransaction failed: %v", err)
		}
	}

	stats, err := store.TransactionStats(ctx, "alice", 0, 0)
	if err != nil {
		t.Fatalf("TransactionStats failed: %v", err)
	}
	if want := decimal.RequireFromString("33.63"); !stats.TotalReceived.Equal(want) {
		t.Errorf("received = %s, want %s", stats.TotalReceived, want)
	}
	if len(stats.ByType) != 1 || stats.ByType[0].Count != 3 {
		t.Errorf("by type = %+v", stats.ByType)
	}
}
