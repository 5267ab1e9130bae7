package services

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/eupaygrid/backend/internal/models"
)

// DefaultCurrency gets a zero balance row on onboarding
const DefaultCurrency = "EUR"

// DefaultActor attributes operations with no caller identity
const DefaultActor = "admin@eupaygrid.local"

const codeGenerationAttempts = 20

// institutionRow is the locked directory row joined with its wallet and
// default-currency balance, used inside transactions.
type institutionRow struct {
	ID             string
	InstitutionID  string
	LegalName      string
	CVRNumber      string
	Country        string
	Status         string
	CreatedAt      sql.NullTime
	WalletID       string
	WalletAddress  string
	PseudonymousID string
	IsFrozen       bool
	EURBalance     decimal.Decimal
}

func (r *institutionRow) toModel() *models.Institution {
	inst := &models.Institution{
		InstitutionID:  r.InstitutionID,
		LegalName:      r.LegalName,
		CVRNumber:      r.CVRNumber,
		Country:        r.Country,
		Status:         r.Status,
		PseudonymousID: r.PseudonymousID,
		IsFrozen:       r.IsFrozen,
		EURBalance:     r.EURBalance,
	}
	if r.CreatedAt.Valid {
		inst.CreatedAt = r.CreatedAt.Time
	}
	return inst
}

// fetchInstitutionWithWallet loads one institution and its wallet by code.
// With forUpdate it takes exclusive row locks on both for the remainder of
// the transaction. Returns (nil, nil) when the code is unknown.
func fetchInstitutionWithWallet(tx *sql.Tx, institutionCode string, forUpdate bool) (*institutionRow, error) {
	query := `
		SELECT
			i.id,
			i.institution_id,
			i.legal_name,
			i.cvr_number,
			i.country,
			i.status,
			i.created_at,
			w.id,
			w.wallet_address,
			w.pseudonymous_id,
			w.is_frozen,
			COALESCE(b.available_balance, 0)
		FROM institutions i
		JOIN wallets w ON w.institution_id = i.id
		LEFT JOIN balances b ON b.institution_id = i.id AND b.currency = 'EUR'
		WHERE i.institution_id = $1`
	if forUpdate {
		query += " FOR UPDATE OF i, w"
	}

	var row institutionRow
	err := tx.QueryRow(query, institutionCode).Scan(
		&row.ID, &row.InstitutionID, &row.LegalName, &row.CVRNumber,
		&row.Country, &row.Status, &row.CreatedAt, &row.WalletID,
		&row.WalletAddress, &row.PseudonymousID, &row.IsFrozen, &row.EURBalance,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// InstitutionService is the directory: onboarding, status transitions and
// wallet freezes.
type InstitutionService struct {
	db        *sql.DB
	validator *ValidationHelper
	publisher *OutboxService
}

func NewInstitutionService(db *sql.DB, publisher *OutboxService) *InstitutionService {
	return &InstitutionService{
		db:        db,
		validator: NewValidationHelper(),
		publisher: publisher,
	}
}

// CreateInstitution onboards a new institution with its wallet and a zero
// default-currency balance, atomically.
func (s *InstitutionService) CreateInstitution(req models.InstitutionCreateRequest, actor string) (*models.Institution, error) {
	legalName := strings.TrimSpace(req.LegalName)
	cvrNumber := strings.TrimSpace(req.CVRNumber)
	country := strings.ToUpper(strings.TrimSpace(req.Country))
	if legalName == "" {
		return nil, ValidationError("invalid_legal_name", "legal_name is required")
	}
	if cvrNumber == "" {
		return nil, ValidationError("invalid_cvr", "cvr_number is required")
	}
	if country == "" {
		return nil, ValidationError("invalid_country", "country is required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var cvrExists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM institutions WHERE cvr_number = $1)`, cvrNumber).Scan(&cvrExists); err != nil {
		return nil, err
	}
	if cvrExists {
		return nil, ConflictError("cvr_exists", fmt.Sprintf("Institution with CVR '%s' already exists", cvrNumber))
	}

	requestedCode := strings.ToUpper(strings.TrimSpace(req.InstitutionID))
	code, err := s.resolveCode(tx, requestedCode)
	if err != nil {
		return nil, err
	}

	var institutionID, status string
	var createdAt sql.NullTime
	err = tx.QueryRow(`
		INSERT INTO institutions (institution_id, legal_name, cvr_number, country)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, created_at`,
		code, legalName, cvrNumber, country).Scan(&institutionID, &status, &createdAt)
	if err != nil {
		return nil, err
	}

	pseudonymousID := GeneratePseudonymousID(code)
	var walletID string
	err = tx.QueryRow(`
		INSERT INTO wallets (institution_id, wallet_address, pseudonymous_id)
		VALUES ($1, $2, $3)
		RETURNING id`,
		institutionID, GenerateWalletAddress(), pseudonymousID).Scan(&walletID)
	if err != nil {
		return nil, err
	}

	if err := ensureBalanceRow(tx, institutionID, DefaultCurrency); err != nil {
		return nil, err
	}

	if err := logAdminAction(tx, "institution_created", actor, &institutionID,
		normalizeReason(req.Reason, "Institution created"),
		models.Metadata{"institution_id": code, "country": country}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[INSTITUTION] Onboarded %s (%s)", code, legalName)

	inst := &models.Institution{
		InstitutionID:  code,
		LegalName:      legalName,
		CVRNumber:      cvrNumber,
		Country:        country,
		Status:         status,
		PseudonymousID: pseudonymousID,
		IsFrozen:       false,
		EURBalance:     decimal.Zero,
	}
	if createdAt.Valid {
		inst.CreatedAt = createdAt.Time
	}
	return inst, nil
}

// resolveCode returns a globally unique identity code: the requested one if
// free, otherwise a freshly generated candidate with bounded retries.
func (s *InstitutionService) resolveCode(tx *sql.Tx, requestedCode string) (string, error) {
	for i := 0; i < codeGenerationAttempts; i++ {
		candidate := requestedCode
		if candidate == "" {
			candidate = GenerateInstitutionCode()
		}

		var exists bool
		if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM institutions WHERE institution_id = $1)`, candidate).Scan(&exists); err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		if requestedCode != "" {
			return "", ConflictError("institution_id_exists", fmt.Sprintf("institution_id '%s' already exists", requestedCode))
		}
	}
	return "", SystemError("institution_id_generation_failed", "Could not generate a unique institution code")
}

// ListInstitutions filters by case-insensitive substring over name, CVR and
// code, newest first.
func (s *InstitutionService) ListInstitutions(query, status string, limit int) ([]models.Institution, error) {
	var statusFilter *string
	if trimmed := strings.TrimSpace(status); trimmed != "" {
		statusFilter = &trimmed
	}

	rows, err := s.db.Query(`
		SELECT
			i.institution_id,
			i.legal_name,
			i.cvr_number,
			i.country,
			i.status,
			i.created_at,
			w.pseudonymous_id,
			w.is_frozen,
			COALESCE(b.available_balance, 0)
		FROM institutions i
		JOIN wallets w ON w.institution_id = i.id
		LEFT JOIN balances b ON b.institution_id = i.id AND b.currency = 'EUR'
		WHERE
			($1::text = '' OR (
				i.legal_name ILIKE '%' || $1 || '%' OR
				i.cvr_number ILIKE '%' || $1 || '%' OR
				i.institution_id ILIKE '%' || $1 || '%'
			))
			AND ($2::text IS NULL OR i.status = $2)
		ORDER BY i.created_at DESC
		LIMIT $3`,
		strings.TrimSpace(query), statusFilter, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	institutions := []models.Institution{}
	for rows.Next() {
		var inst models.Institution
		if err := rows.Scan(
			&inst.InstitutionID, &inst.LegalName, &inst.CVRNumber, &inst.Country,
			&inst.Status, &inst.CreatedAt, &inst.PseudonymousID, &inst.IsFrozen,
			&inst.EURBalance,
		); err != nil {
			return nil, err
		}
		institutions = append(institutions, inst)
	}
	return institutions, rows.Err()
}

// SetStatus unconditionally moves an institution to the target status.
// There is deliberately no transition guard: a suspended institution may be
// re-approved, a pending one suspended.
func (s *InstitutionService) SetStatus(institutionCode, targetStatus, actor, reason string) (*models.Institution, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row, err := fetchInstitutionWithWallet(tx, strings.ToUpper(strings.TrimSpace(institutionCode)), true)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, NotFoundError("institution_not_found", "Institution not found")
	}

	if _, err := tx.Exec(`UPDATE institutions SET status = $2 WHERE id = $1`, row.ID, targetStatus); err != nil {
		return nil, err
	}

	if err := logAdminAction(tx, "institution_"+targetStatus, actor, &row.ID,
		normalizeReason(reason, "Institution "+targetStatus),
		models.Metadata{"institution_id": row.InstitutionID}); err != nil {
		return nil, err
	}

	updated, err := fetchInstitutionWithWallet(tx, row.InstitutionID, false)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, SystemError("institution_missing_post_update", "Institution missing after update")
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated.toModel(), nil
}

// SetWalletFrozen toggles the wallet's frozen flag, independent of the
// institution status.
func (s *InstitutionService) SetWalletFrozen(institutionCode string, frozen bool, actor, reason string) (*models.Institution, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row, err := fetchInstitutionWithWallet(tx, strings.ToUpper(strings.TrimSpace(institutionCode)), true)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, NotFoundError("institution_not_found", "Institution not found")
	}

	if _, err := tx.Exec(`UPDATE wallets SET is_frozen = $2 WHERE institution_id = $1`, row.ID, frozen); err != nil {
		return nil, err
	}

	action := "wallet_unfrozen"
	if frozen {
		action = "wallet_frozen"
	}
	if err := logAdminAction(tx, action, actor, &row.ID,
		normalizeReason(reason, strings.ReplaceAll(action, "_", " ")),
		models.Metadata{"institution_id": row.InstitutionID, "is_frozen": frozen}); err != nil {
		return nil, err
	}

	updated, err := fetchInstitutionWithWallet(tx, row.InstitutionID, false)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, SystemError("wallet_update_failed", "Wallet update failed")
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated.toModel(), nil
}

// actorFromRequest resolves the acting identity set by the actor middleware
func actorFromRequest(r *http.Request) string {
	if actor, ok := r.Context().Value("actor").(string); ok && actor != "" {
		return actor
	}
	return DefaultActor
}

// HandleCreate serves POST /institutions
func (s *InstitutionService) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.InstitutionCreateRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendDomainError(w, err)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	institution, err := s.CreateInstitution(req, actorFromRequest(r))
	if err != nil {
		SendDomainError(w, err)
		return
	}

	s.publisher.Publish("institution.created", institution)
	SendJSON(w, http.StatusCreated, institution)
}

// HandleList serves GET /institutions
func (s *InstitutionService) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100, 500)

	institutions, err := s.ListInstitutions(r.URL.Query().Get("q"), r.URL.Query().Get("status"), limit)
	if err != nil {
		log.Printf("[INSTITUTION] Failed to list institutions: %v", err)
		SendDomainError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, institutions)
}

func (s *InstitutionService) handleStatusChange(w http.ResponseWriter, r *http.Request, targetStatus, eventType string) {
	// body is optional on admin actions; absent body means no reason given
	var req models.InstitutionActionRequest
	if r.ContentLength > 0 {
		if err := DecodeJSONBody(w, r, &req); err != nil {
			SendDomainError(w, err)
			return
		}
	}

	institution, err := s.SetStatus(chi.URLParam(r, "institutionId"), targetStatus, actorFromRequest(r), req.Reason)
	if err != nil {
		SendDomainError(w, err)
		return
	}

	s.publisher.Publish(eventType, institution)
	SendJSON(w, http.StatusOK, institution)
}

// HandleApprove serves PATCH /institutions/{institutionId}/approve
func (s *InstitutionService) HandleApprove(w http.ResponseWriter, r *http.Request) {
	s.handleStatusChange(w, r, models.InstitutionStatusApproved, "institution.approved")
}

// HandleSuspend serves PATCH /institutions/{institutionId}/suspend
func (s *InstitutionService) HandleSuspend(w http.ResponseWriter, r *http.Request) {
	s.handleStatusChange(w, r, models.InstitutionStatusSuspended, "institution.suspended")
}

func (s *InstitutionService) handleFreezeChange(w http.ResponseWriter, r *http.Request, frozen bool, eventType string) {
	var req models.InstitutionActionRequest
	if r.ContentLength > 0 {
		if err := DecodeJSONBody(w, r, &req); err != nil {
			SendDomainError(w, err)
			return
		}
	}

	institution, err := s.SetWalletFrozen(chi.URLParam(r, "institutionId"), frozen, actorFromRequest(r), req.Reason)
	if err != nil {
		SendDomainError(w, err)
		return
	}

	s.publisher.Publish(eventType, institution)
	SendJSON(w, http.StatusOK, institution)
}

// HandleFreeze serves PATCH /institutions/{institutionId}/freeze
func (s *InstitutionService) HandleFreeze(w http.ResponseWriter, r *http.Request) {
	s.handleFreezeChange(w, r, true, "wallet.frozen")
}

// HandleUnfreeze serves PATCH /institutions/{institutionId}/unfreeze
func (s *InstitutionService) HandleUnfreeze(w http.ResponseWriter, r *http.Request) {
	s.handleFreezeChange(w, r, false, "wallet.unfrozen")
}
