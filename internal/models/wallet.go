package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet ledger directions.
const (
	LedgerDirectionCredit = "CREDIT"
	LedgerDirectionDebit  = "DEBIT"
)

// Wallet ledger entry types.
const (
	LedgerEntryJobEarning      = "JOB_EARNING"
	LedgerEntryPlatformRevenue = "PLATFORM_REVENUE"
	LedgerEntryWithdrawal      = "WITHDRAWAL"
)

// Withdrawal request statuses.
const (
	WithdrawalStatusPending   = "PENDING"
	WithdrawalStatusProcessed = "PROCESSED"
	WithdrawalStatusRejected  = "REJECTED"
)

// WalletLedgerEntry is an immutable append-only record against an account's
// wallet. Balance is always derived by summing entries, never stored as
// mutable truth.
type WalletLedgerEntry struct {
	ID           uuid.UUID  `json:"id"`
	AccountID    uuid.UUID  `json:"account_id"`
	JobID        *uuid.UUID `json:"job_id,omitempty"`
	WithdrawalID *uuid.UUID `json:"withdrawal_id,omitempty"`
	Direction    string     `json:"direction"`
	EntryType    string     `json:"entry_type"`
	AmountCents  int64      `json:"amount_cents"`
	CreatedAt    time.Time  `json:"created_at"`
}

// WithdrawalRequest draws from the same wallet ledger as job settlements.
type WithdrawalRequest struct {
	ID          uuid.UUID  `json:"id"`
	WorkerID    uuid.UUID  `json:"worker_id"`
	AmountCents int64      `json:"amount_cents"`
	BankDetails string     `json:"bank_details"`
	Status      string     `json:"status"`
	ResolvedBy  *uuid.UUID `json:"resolved_by,omitempty"`
	Reason      *string    `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}
