package services

import (
	"database/sql"
	"log"
	"net/http"
	"strings"

	"github.com/eupaygrid/backend/internal/models"
)

// ReserveService records external capital entering the network. Deposits
// are the only way value is created inside the system.
type ReserveService struct {
	db        *sql.DB
	validator *ValidationHelper
	publisher *OutboxService
}

func NewReserveService(db *sql.DB, publisher *OutboxService) *ReserveService {
	return &ReserveService{
		db:        db,
		validator: NewValidationHelper(),
		publisher: publisher,
	}
}

// RecordDeposit credits an approved institution from the reserve pool,
// writing both ledger sides and the balance update atomically.
func (s *ReserveService) RecordDeposit(req models.ReserveDepositRequest, actor string) (*models.ReserveDeposit, error) {
	amount, err := NormalizeAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	currency, err := NormalizeCurrency(req.Currency, AllowedCurrencies())
	if err != nil {
		return nil, err
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return nil, ValidationError("invalid_reference", "reference is required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	institution, err := fetchInstitutionWithWallet(tx, strings.ToUpper(strings.TrimSpace(req.InstitutionID)), true)
	if err != nil {
		return nil, err
	}
	if institution == nil {
		return nil, NotFoundError("institution_not_found", "Institution not found")
	}
	if institution.Status != models.InstitutionStatusApproved {
		return nil, ValidationError("institution_not_approved", "Only approved institutions can receive reserve deposits")
	}

	var depositID string
	err = tx.QueryRow(`
		INSERT INTO reserve_deposits (institution_id, amount, currency, reference, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		institution.ID, amount, currency, reference, actor).Scan(&depositID)
	if err != nil {
		return nil, err
	}

	if err := insertLedgerEntry(tx, ledgerInsert{
		ReserveDepositID: &depositID,
		InstitutionID:    &institution.ID,
		WalletID:         &institution.WalletID,
		AccountRef:       institution.PseudonymousID,
		CounterpartyRef:  SystemReserveAccountRef,
		EntryType:        models.LedgerEntryReserveDeposit,
		Side:             models.LedgerSideDebit,
		Currency:         currency,
		Amount:           amount,
		Description:      "Reserve deposit " + reference,
	}); err != nil {
		return nil, err
	}
	if err := insertLedgerEntry(tx, ledgerInsert{
		ReserveDepositID:     &depositID,
		CounterpartyWalletID: &institution.WalletID,
		AccountRef:           SystemReserveAccountRef,
		CounterpartyRef:      institution.PseudonymousID,
		EntryType:            models.LedgerEntryReserveDeposit,
		Side:                 models.LedgerSideCredit,
		Currency:             currency,
		Amount:               amount,
		Description:          "Reserve liability for " + institution.InstitutionID,
	}); err != nil {
		return nil, err
	}

	delta, err := SignedAmount(models.LedgerSideDebit, amount)
	if err != nil {
		return nil, err
	}
	balance, err := applyBalanceDelta(tx, institution.ID, currency, delta)
	if err != nil {
		return nil, err
	}

	if err := logAdminAction(tx, "reserve_deposit_recorded", actor, &institution.ID,
		"Reserve deposit reference "+reference,
		models.Metadata{
			"institution_id": institution.InstitutionID,
			"amount":         amount.String(),
			"currency":       currency,
			"reference":      reference,
		}); err != nil {
		return nil, err
	}

	deposit := &models.ReserveDeposit{
		DepositID:     depositID,
		InstitutionID: institution.InstitutionID,
		Amount:        amount,
		Currency:      currency,
		Reference:     reference,
		Balance:       balance,
	}
	if _, err := appendOutboxEvent(tx, "reserve_deposit.recorded", deposit); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[RESERVE] Deposited %s %s to %s", amount.String(), currency, institution.InstitutionID)
	return deposit, nil
}

// HandleDeposit serves POST /reserve/deposits
func (s *ReserveService) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	var req models.ReserveDepositRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendDomainError(w, err)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	deposit, err := s.RecordDeposit(req, actorFromRequest(r))
	if err != nil {
		SendDomainError(w, err)
		return
	}

	s.publisher.Publish("reserve_deposit.recorded", deposit)
	SendJSON(w, http.StatusCreated, deposit)
}
