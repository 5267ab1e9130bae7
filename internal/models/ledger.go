package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger entry sides; debit increases the owning institution's available
// balance, credit decreases it.
const (
	LedgerSideDebit  = "debit"
	LedgerSideCredit = "credit"
)

// Ledger entry types
const (
	LedgerEntryTransfer       = "transfer"
	LedgerEntryReserveDeposit = "reserve_deposit"
)

// LedgerEntry is an immutable double-entry journal row. InstitutionID is
// empty for pseudo-counterparties such as the system reserve pool.
type LedgerEntry struct {
	EntryID          int64           `json:"entry_id" db:"entry_id"`
	TransferID       string          `json:"transfer_id,omitempty" db:"transfer_id"`
	ReserveDepositID string          `json:"reserve_deposit_id,omitempty" db:"reserve_deposit_id"`
	InstitutionID    string          `json:"institution_id,omitempty" db:"institution_id"`
	LegalName        string          `json:"legal_name,omitempty" db:"legal_name"`
	PseudonymousID   string          `json:"pseudonymous_id,omitempty" db:"pseudonymous_id"`
	AccountRef       string          `json:"account_ref" db:"account_ref"`
	CounterpartyRef  string          `json:"counterparty_ref" db:"counterparty_ref"`
	EntryType        string          `json:"entry_type" db:"entry_type"`
	Side             string          `json:"side" db:"side"`
	Currency         string          `json:"currency" db:"currency"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	Description      string          `json:"description" db:"description"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// Balance is one row of the materialized projection, joined with the owning
// institution for display.
type Balance struct {
	InstitutionID    string          `json:"institution_id" db:"institution_id"`
	LegalName        string          `json:"legal_name" db:"legal_name"`
	CVRNumber        string          `json:"cvr_number" db:"cvr_number"`
	Country          string          `json:"country" db:"country"`
	Status           string          `json:"status" db:"status"`
	PseudonymousID   string          `json:"pseudonymous_id" db:"pseudonymous_id"`
	IsFrozen         bool            `json:"is_frozen" db:"is_frozen"`
	Currency         string          `json:"currency" db:"currency"`
	AvailableBalance decimal.Decimal `json:"available_balance" db:"available_balance"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// ReserveDeposit records external capital entering an institution's balance
type ReserveDeposit struct {
	DepositID     string          `json:"deposit_id" db:"deposit_id"`
	InstitutionID string          `json:"institution_id" db:"institution_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Currency      string          `json:"currency" db:"currency"`
	Reference     string          `json:"reference" db:"reference"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
}

// ReserveDepositRequest is the capital-injection payload
type ReserveDepositRequest struct {
	InstitutionID string          `json:"institution_id" validate:"required,min=4,max=32"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	Currency      string          `json:"currency" validate:"required,min=3,max=8"`
	Reference     string          `json:"reference" validate:"required,min=3,max=120"`
}

// ReplayResult summarizes a ledger-replay reconciliation run
type ReplayResult struct {
	Status           string `json:"status"`
	LedgerEntryCount int64  `json:"ledger_entry_count"`
	BalanceCount     int64  `json:"balance_count"`
}
