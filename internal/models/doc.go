// Package models defines the core domain models for the group ledger.
//
// # Models
//
//   - User: registered account; members are referenced by user ID everywhere
//   - Group: named set of members plus the creator (always a member)
//   - Expense: an amount fronted by one or more payers and split between members
//   - Balance: one directional debt row per (group, debtor, creditor)
//   - Payment: a recorded transfer, either tied to an expense or a free-form settlement
//   - TransactionHistory: append-only audit entry, never authoritative for balances
//
// # Design Principles
//
// 1. **IDs, not pointers**: relationships use ID strings to avoid circular references
// 2. **Decimal money**: every amount is a decimal.Decimal; no float arithmetic on money
// 3. **Unix timestamps**: CreatedAt/UpdatedAt are Unix seconds
//
// Balance rows are owned by the ledger engine (internal/ledger). No other
// package writes them.
package models
