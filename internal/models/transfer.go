package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transfer statuses; settled and failed are terminal
const (
	TransferStatusSubmitted = "submitted"
	TransferStatusSettled   = "settled"
	TransferStatusFailed    = "failed"
)

// Transfer is the settlement engine's result record, joined with both
// parties' directory data.
type Transfer struct {
	TransferID               string           `json:"transfer_id" db:"transfer_id"`
	Amount                   decimal.Decimal  `json:"amount" db:"amount"`
	Currency                 string           `json:"currency" db:"currency"`
	Note                     string           `json:"note,omitempty" db:"note"`
	Status                   string           `json:"status" db:"status"`
	FailureReason            string           `json:"failure_reason,omitempty" db:"failure_reason"`
	SettlementLayer          string           `json:"settlement_layer,omitempty" db:"settlement_layer"`
	SettlementTxID           string           `json:"settlement_tx_id,omitempty" db:"settlement_tx_id"`
	SubmittedAt              time.Time        `json:"submitted_at" db:"submitted_at"`
	SettledAt                *time.Time       `json:"settled_at,omitempty" db:"settled_at"`
	SenderInstitutionID      string           `json:"sender_institution_id" db:"sender_institution_id"`
	SenderLegalName          string           `json:"sender_legal_name" db:"sender_legal_name"`
	SenderCVRNumber          string           `json:"sender_cvr_number" db:"sender_cvr_number"`
	SenderPseudonymousID     string           `json:"sender_pseudonymous_id" db:"sender_pseudonymous_id"`
	RecipientInstitutionID   string           `json:"recipient_institution_id" db:"recipient_institution_id"`
	RecipientLegalName       string           `json:"recipient_legal_name" db:"recipient_legal_name"`
	RecipientCVRNumber       string           `json:"recipient_cvr_number" db:"recipient_cvr_number"`
	RecipientPseudonymousID  string           `json:"recipient_pseudonymous_id" db:"recipient_pseudonymous_id"`
	SenderBalanceAfter       *decimal.Decimal `json:"sender_balance_after,omitempty"`
	RecipientBalanceAfter    *decimal.Decimal `json:"recipient_balance_after,omitempty"`
}

// TransferCreateRequest is the transfer submission payload
type TransferCreateRequest struct {
	SenderInstitutionID    string          `json:"sender_institution_id" validate:"required,min=4,max=32"`
	RecipientInstitutionID string          `json:"recipient_institution_id" validate:"required,min=4,max=32"`
	Amount                 decimal.Decimal `json:"amount" validate:"required"`
	Currency               string          `json:"currency" validate:"required,min=3,max=8"`
	Note                   string          `json:"note" validate:"max=300"`
}

// NetworkActivityEntry is the pseudonymized global activity row. Amount is
// withheld unless the caller asked for it; AmountBand is always disclosed.
type NetworkActivityEntry struct {
	TransferID              string           `json:"transfer_id"`
	SenderPseudonymousID    string           `json:"sender_pseudonymous_id"`
	RecipientPseudonymousID string           `json:"recipient_pseudonymous_id"`
	Currency                string           `json:"currency"`
	Status                  string           `json:"status"`
	Timestamp               time.Time        `json:"timestamp"`
	SettlementLayer         string           `json:"settlement_layer,omitempty"`
	Amount                  *decimal.Decimal `json:"amount"`
	AmountBand              string           `json:"amount_band"`
}

// InstitutionActivityEntry is one transfer seen from a single institution's
// perspective, with the counterparty's legal identity disclosed.
type InstitutionActivityEntry struct {
	TransferID                  string          `json:"transfer_id"`
	Amount                      decimal.Decimal `json:"amount"`
	Currency                    string          `json:"currency"`
	Status                      string          `json:"status"`
	Note                        string          `json:"note,omitempty"`
	SubmittedAt                 time.Time       `json:"submitted_at"`
	Direction                   string          `json:"direction"`
	CounterpartyInstitutionID   string          `json:"counterparty_institution_id"`
	CounterpartyLegalName       string          `json:"counterparty_legal_name"`
	CounterpartyCVRNumber       string          `json:"counterparty_cvr_number"`
	CounterpartyCountry         string          `json:"counterparty_country"`
	CounterpartyPseudonymousID  string          `json:"counterparty_pseudonymous_id"`
}
