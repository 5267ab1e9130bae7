package services

import (
	"database/sql"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/eupaygrid/backend/internal/models"
)

// Transfer failure reasons recorded on committed failed transfers
const (
	FailureSelfTransfer         = "self_transfer"
	FailureSenderNotApproved    = "sender_not_approved"
	FailureRecipientNotApproved = "recipient_not_approved"
	FailureSenderWalletFrozen   = "sender_wallet_frozen"
	FailureInsufficientBalance  = "insufficient_balance"
)

func settlementLayer() string {
	viper.SetDefault("app.settlement_layer", "simulated-solana")
	return viper.GetString("app.settlement_layer")
}

// TransferService is the settlement engine: it turns submissions into
// settled or failed transfers atomically with their ledger entries.
type TransferService struct {
	db        *sql.DB
	validator *ValidationHelper
	publisher *OutboxService
}

func NewTransferService(db *sql.DB, publisher *OutboxService) *TransferService {
	return &TransferService{
		db:        db,
		validator: NewValidationHelper(),
		publisher: publisher,
	}
}

// CreateTransfer runs the full settlement attempt. Business precondition
// failures produce a committed failed transfer; malformed input and unknown
// parties abort without a transfer record.
//
// Both parties are locked in lexicographic code order regardless of transfer
// direction, so concurrent opposite-direction transfers cannot deadlock.
func (s *TransferService) CreateTransfer(req models.TransferCreateRequest) (*models.Transfer, error) {
	amount, err := NormalizeAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	currency, err := NormalizeCurrency(req.Currency, AllowedCurrencies())
	if err != nil {
		return nil, err
	}
	note := strings.TrimSpace(req.Note)
	senderCode := strings.ToUpper(strings.TrimSpace(req.SenderInstitutionID))
	recipientCode := strings.ToUpper(strings.TrimSpace(req.RecipientInstitutionID))

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sender, recipient, err := lockTransferParties(tx, senderCode, recipientCode)
	if err != nil {
		return nil, err
	}

	var transferDBID string
	err = tx.QueryRow(`
		INSERT INTO transfers (sender_institution_id, recipient_institution_id, amount, currency, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		sender.ID, recipient.ID, amount, currency, note).Scan(&transferDBID)
	if err != nil {
		return nil, err
	}

	failureReason := ""
	switch {
	case senderCode == recipientCode:
		failureReason = FailureSelfTransfer
	case sender.Status != models.InstitutionStatusApproved:
		failureReason = FailureSenderNotApproved
	case recipient.Status != models.InstitutionStatusApproved:
		failureReason = FailureRecipientNotApproved
	case sender.IsFrozen:
		failureReason = FailureSenderWalletFrozen
	}

	// locked unconditionally so even a failed transfer lazily creates the
	// sender's balance row for this currency
	senderBalance, err := lockBalance(tx, sender.ID, currency)
	if err != nil {
		return nil, err
	}
	if failureReason == "" && senderBalance.LessThan(amount) {
		failureReason = FailureInsufficientBalance
	}
	if failureReason != "" {
		return s.failTransfer(tx, transferDBID, failureReason)
	}

	settlementTxID := GenerateSettlementTxID()
	layer := settlementLayer()

	if _, err := tx.Exec(`
		INSERT INTO settlement_events (transfer_id, settlement_layer, settlement_tx_id, status)
		VALUES ($1, $2, $3, 'recorded')`,
		transferDBID, layer, settlementTxID); err != nil {
		return nil, err
	}

	description := normalizeReason(note, "Interbank transfer")
	if err := insertLedgerEntry(tx, ledgerInsert{
		TransferID:           &transferDBID,
		InstitutionID:        &sender.ID,
		WalletID:             &sender.WalletID,
		CounterpartyWalletID: &recipient.WalletID,
		AccountRef:           sender.PseudonymousID,
		CounterpartyRef:      recipient.PseudonymousID,
		EntryType:            models.LedgerEntryTransfer,
		Side:                 models.LedgerSideCredit,
		Currency:             currency,
		Amount:               amount,
		Description:          description,
	}); err != nil {
		return nil, err
	}
	if err := insertLedgerEntry(tx, ledgerInsert{
		TransferID:           &transferDBID,
		InstitutionID:        &recipient.ID,
		WalletID:             &recipient.WalletID,
		CounterpartyWalletID: &sender.WalletID,
		AccountRef:           recipient.PseudonymousID,
		CounterpartyRef:      sender.PseudonymousID,
		EntryType:            models.LedgerEntryTransfer,
		Side:                 models.LedgerSideDebit,
		Currency:             currency,
		Amount:               amount,
		Description:          description,
	}); err != nil {
		return nil, err
	}

	senderDelta, err := SignedAmount(models.LedgerSideCredit, amount)
	if err != nil {
		return nil, err
	}
	senderAfter, err := applyBalanceDelta(tx, sender.ID, currency, senderDelta)
	if err != nil {
		return nil, err
	}
	recipientDelta, err := SignedAmount(models.LedgerSideDebit, amount)
	if err != nil {
		return nil, err
	}
	recipientAfter, err := applyBalanceDelta(tx, recipient.ID, currency, recipientDelta)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(`
		UPDATE transfers
		SET status = 'settled', settlement_layer = $2, settlement_tx_id = $3, settled_at = NOW()
		WHERE id = $1`,
		transferDBID, layer, settlementTxID); err != nil {
		return nil, err
	}

	transfer, err := fetchTransferRow(tx, transferDBID)
	if err != nil {
		return nil, err
	}
	transfer.SenderBalanceAfter = &senderAfter
	transfer.RecipientBalanceAfter = &recipientAfter

	if _, err := appendOutboxEvent(tx, "transfer.settled", transfer); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[TRANSFER] Settled %s %s %s -> %s (%s)",
		amount.String(), currency, senderCode, recipientCode, transfer.TransferID)
	return transfer, nil
}

// lockTransferParties fetches and row-locks both institutions in canonical
// lexicographic code order. Unknown parties are reported against their role,
// not their lock position.
func lockTransferParties(tx *sql.Tx, senderCode, recipientCode string) (*institutionRow, *institutionRow, error) {
	if senderCode == recipientCode {
		row, err := fetchInstitutionWithWallet(tx, senderCode, true)
		if err != nil {
			return nil, nil, err
		}
		if row == nil {
			return nil, nil, NotFoundError("sender_not_found", "Sender institution not found")
		}
		return row, row, nil
	}

	firstCode, secondCode := senderCode, recipientCode
	if firstCode > secondCode {
		firstCode, secondCode = secondCode, firstCode
	}

	first, err := fetchInstitutionWithWallet(tx, firstCode, true)
	if err != nil {
		return nil, nil, err
	}
	second, err := fetchInstitutionWithWallet(tx, secondCode, true)
	if err != nil {
		return nil, nil, err
	}

	sender, recipient := first, second
	if firstCode != senderCode {
		sender, recipient = second, first
	}
	if sender == nil {
		return nil, nil, NotFoundError("sender_not_found", "Sender institution not found")
	}
	if recipient == nil {
		return nil, nil, NotFoundError("recipient_not_found", "Recipient institution not found")
	}
	return sender, recipient, nil
}

// failTransfer commits the transfer in terminal failed state. The failed
// record is the legitimate outcome of the request, not an error.
func (s *TransferService) failTransfer(tx *sql.Tx, transferDBID, reason string) (*models.Transfer, error) {
	if _, err := tx.Exec(`
		UPDATE transfers SET status = 'failed', failure_reason = $2 WHERE id = $1`,
		transferDBID, reason); err != nil {
		return nil, err
	}

	transfer, err := fetchTransferRow(tx, transferDBID)
	if err != nil {
		return nil, err
	}
	if _, err := appendOutboxEvent(tx, "transfer.failed", transfer); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[TRANSFER] Failed %s: %s", transfer.TransferID, reason)
	return transfer, nil
}

const transferSelect = `
	SELECT
		t.id,
		t.amount,
		t.currency,
		COALESCE(t.note, ''),
		t.status,
		COALESCE(t.failure_reason, ''),
		COALESCE(t.settlement_layer, ''),
		COALESCE(t.settlement_tx_id, ''),
		t.submitted_at,
		t.settled_at,
		si.institution_id,
		si.legal_name,
		si.cvr_number,
		sw.pseudonymous_id,
		ri.institution_id,
		ri.legal_name,
		ri.cvr_number,
		rw.pseudonymous_id
	FROM transfers t
	JOIN institutions si ON si.id = t.sender_institution_id
	JOIN wallets sw ON sw.institution_id = si.id
	JOIN institutions ri ON ri.id = t.recipient_institution_id
	JOIN wallets rw ON rw.institution_id = ri.id`

func scanTransfer(scan func(dest ...any) error) (*models.Transfer, error) {
	var t models.Transfer
	var settledAt sql.NullTime
	err := scan(
		&t.TransferID, &t.Amount, &t.Currency, &t.Note, &t.Status,
		&t.FailureReason, &t.SettlementLayer, &t.SettlementTxID,
		&t.SubmittedAt, &settledAt,
		&t.SenderInstitutionID, &t.SenderLegalName, &t.SenderCVRNumber, &t.SenderPseudonymousID,
		&t.RecipientInstitutionID, &t.RecipientLegalName, &t.RecipientCVRNumber, &t.RecipientPseudonymousID,
	)
	if err != nil {
		return nil, err
	}
	if settledAt.Valid {
		t.SettledAt = &settledAt.Time
	}
	return &t, nil
}

func fetchTransferRow(tx *sql.Tx, transferDBID string) (*models.Transfer, error) {
	row := tx.QueryRow(transferSelect+` WHERE t.id = $1`, transferDBID)
	return scanTransfer(row.Scan)
}

// ListTransfers returns the full admin view, newest first, filtered by
// status and a case-insensitive substring over both parties, the note and
// the settlement reference.
func (s *TransferService) ListTransfers(status, query string, limit int) ([]models.Transfer, error) {
	var statusFilter *string
	if trimmed := strings.TrimSpace(status); trimmed != "" {
		statusFilter = &trimmed
	}

	rows, err := s.db.Query(transferSelect+`
		WHERE
			($1::text IS NULL OR t.status = $1)
			AND ($2::text = '' OR (
				si.legal_name ILIKE '%' || $2 || '%' OR
				si.cvr_number ILIKE '%' || $2 || '%' OR
				si.institution_id ILIKE '%' || $2 || '%' OR
				ri.legal_name ILIKE '%' || $2 || '%' OR
				ri.cvr_number ILIKE '%' || $2 || '%' OR
				ri.institution_id ILIKE '%' || $2 || '%' OR
				COALESCE(t.note, '') ILIKE '%' || $2 || '%' OR
				COALESCE(t.settlement_tx_id, '') ILIKE '%' || $2 || '%'
			))
		ORDER BY t.submitted_at DESC
		LIMIT $3`,
		statusFilter, strings.TrimSpace(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transfers := []models.Transfer{}
	for rows.Next() {
		t, err := scanTransfer(rows.Scan)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}

// ListNetworkActivity returns the pseudonymized global view. Exact amounts
// are withheld unless revealAmounts is set; the band is always present.
func (s *TransferService) ListNetworkActivity(revealAmounts bool, limit int) ([]models.NetworkActivityEntry, error) {
	rows, err := s.db.Query(`
		SELECT
			t.id,
			sw.pseudonymous_id,
			rw.pseudonymous_id,
			t.currency,
			t.status,
			t.submitted_at,
			COALESCE(t.settlement_layer, ''),
			t.amount
		FROM transfers t
		JOIN wallets sw ON sw.institution_id = t.sender_institution_id
		JOIN wallets rw ON rw.institution_id = t.recipient_institution_id
		ORDER BY t.submitted_at DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.NetworkActivityEntry{}
	for rows.Next() {
		var e models.NetworkActivityEntry
		var amount decimal.Decimal
		if err := rows.Scan(
			&e.TransferID, &e.SenderPseudonymousID, &e.RecipientPseudonymousID,
			&e.Currency, &e.Status, &e.Timestamp, &e.SettlementLayer, &amount,
		); err != nil {
			return nil, err
		}
		e.AmountBand = AmountBand(amount)
		if revealAmounts {
			e.Amount = &amount
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListInstitutionActivity returns transfers touching one institution, with
// the counterparty's legal identity disclosed to that party.
func (s *TransferService) ListInstitutionActivity(institutionCode string, limit int) ([]models.InstitutionActivityEntry, error) {
	var institutionID string
	err := s.db.QueryRow(`SELECT id FROM institutions WHERE institution_id = $1`,
		strings.ToUpper(strings.TrimSpace(institutionCode))).Scan(&institutionID)
	if err == sql.ErrNoRows {
		return nil, NotFoundError("institution_not_found", "Institution not found")
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT
			t.id,
			t.amount,
			t.currency,
			t.status,
			COALESCE(t.note, ''),
			t.submitted_at,
			CASE WHEN t.sender_institution_id = $1 THEN 'outgoing' ELSE 'incoming' END,
			ci.institution_id,
			ci.legal_name,
			ci.cvr_number,
			ci.country,
			cw.pseudonymous_id
		FROM transfers t
		JOIN institutions ci ON ci.id = CASE
			WHEN t.sender_institution_id = $1 THEN t.recipient_institution_id
			ELSE t.sender_institution_id
		END
		JOIN wallets cw ON cw.institution_id = ci.id
		WHERE t.sender_institution_id = $1 OR t.recipient_institution_id = $1
		ORDER BY t.submitted_at DESC
		LIMIT $2`,
		institutionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.InstitutionActivityEntry{}
	for rows.Next() {
		var e models.InstitutionActivityEntry
		if err := rows.Scan(
			&e.TransferID, &e.Amount, &e.Currency, &e.Status, &e.Note,
			&e.SubmittedAt, &e.Direction, &e.CounterpartyInstitutionID,
			&e.CounterpartyLegalName, &e.CounterpartyCVRNumber,
			&e.CounterpartyCountry, &e.CounterpartyPseudonymousID,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HandleCreate serves POST /transfers
func (s *TransferService) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.TransferCreateRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendDomainError(w, err)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	transfer, err := s.CreateTransfer(req)
	if err != nil {
		SendDomainError(w, err)
		return
	}

	eventType := "transfer.settled"
	if transfer.Status == models.TransferStatusFailed {
		eventType = "transfer.failed"
	}
	s.publisher.Publish(eventType, transfer)
	SendJSON(w, http.StatusCreated, transfer)
}

// HandleList serves GET /transfers
func (s *TransferService) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100, 1000)

	transfers, err := s.ListTransfers(r.URL.Query().Get("status"), r.URL.Query().Get("q"), limit)
	if err != nil {
		log.Printf("[TRANSFER] Failed to list transfers: %v", err)
		SendDomainError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, transfers)
}

// HandleNetworkActivity serves GET /network/activity
func (s *TransferService) HandleNetworkActivity(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100, 1000)
	revealAmounts := r.URL.Query().Get("reveal_amounts") == "true"

	entries, err := s.ListNetworkActivity(revealAmounts, limit)
	if err != nil {
		log.Printf("[TRANSFER] Failed to list network activity: %v", err)
		SendDomainError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, entries)
}

// HandleInstitutionActivity serves GET /institutions/{institutionId}/activity
func (s *TransferService) HandleInstitutionActivity(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100, 1000)

	entries, err := s.ListInstitutionActivity(chi.URLParam(r, "institutionId"), limit)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, entries)
}
