package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Institution statuses
const (
	InstitutionStatusPending   = "pending"
	InstitutionStatusApproved  = "approved"
	InstitutionStatusSuspended = "suspended"
)

// Institution is the directory record returned by onboarding and listing.
// EURBalance carries the default-currency balance joined in for display.
type Institution struct {
	InstitutionID  string          `json:"institution_id" db:"institution_id"`
	LegalName      string          `json:"legal_name" db:"legal_name"`
	CVRNumber      string          `json:"cvr_number" db:"cvr_number"`
	Country        string          `json:"country" db:"country"`
	Status         string          `json:"status" db:"status"`
	PseudonymousID string          `json:"pseudonymous_id" db:"pseudonymous_id"`
	IsFrozen       bool            `json:"is_frozen" db:"is_frozen"`
	EURBalance     decimal.Decimal `json:"eur_balance" db:"eur_balance"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// InstitutionCreateRequest is the onboarding payload
type InstitutionCreateRequest struct {
	InstitutionID string `json:"institution_id" validate:"omitempty,min=4,max=32"`
	LegalName     string `json:"legal_name" validate:"required,min=2,max=180"`
	CVRNumber     string `json:"cvr_number" validate:"required,min=3,max=64"`
	Country       string `json:"country" validate:"required,min=2,max=3"`
	Reason        string `json:"reason" validate:"max=300"`
}

// InstitutionActionRequest covers approve/suspend/freeze/unfreeze
type InstitutionActionRequest struct {
	Reason string `json:"reason" validate:"max=300"`
}
