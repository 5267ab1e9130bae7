package services

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/eupaygrid/backend/internal/models"
)

// pgCheckViolation is the Postgres error code raised when the non-negative
// balance constraint rejects a delta.
const pgCheckViolation = "23514"

// LedgerService owns the append-only journal, the balance projection and the
// replay reconciliation path.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// ensureBalanceRow creates the zero balance row if absent. Safe under
// concurrent first-touch.
func ensureBalanceRow(tx *sql.Tx, institutionID, currency string) error {
	_, err := tx.Exec(`
		INSERT INTO balances (institution_id, currency, available_balance)
		VALUES ($1, $2, 0)
		ON CONFLICT (institution_id, currency) DO NOTHING`,
		institutionID, currency)
	return err
}

// lockBalance acquires an exclusive row lock on the balance for the rest of
// the enclosing transaction and returns the current value. Must precede any
// balance-dependent decision in the same transaction.
func lockBalance(tx *sql.Tx, institutionID, currency string) (decimal.Decimal, error) {
	if err := ensureBalanceRow(tx, institutionID, currency); err != nil {
		return decimal.Zero, err
	}

	var balance decimal.Decimal
	err := tx.QueryRow(`
		SELECT available_balance
		FROM balances
		WHERE institution_id = $1 AND currency = $2
		FOR UPDATE`,
		institutionID, currency).Scan(&balance)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	return balance, err
}

// applyBalanceDelta adds the signed delta under lock and returns the new
// value. The storage-layer non-negativity constraint is the last-line
// defense; callers that checked sufficiency via lockBalance should never
// trip it.
func applyBalanceDelta(tx *sql.Tx, institutionID, currency string, delta decimal.Decimal) (decimal.Decimal, error) {
	if err := ensureBalanceRow(tx, institutionID, currency); err != nil {
		return decimal.Zero, err
	}

	var balance decimal.Decimal
	err := tx.QueryRow(`
		UPDATE balances
		SET available_balance = available_balance + $3, updated_at = NOW()
		WHERE institution_id = $1 AND currency = $2
		RETURNING available_balance`,
		institutionID, currency, delta).Scan(&balance)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == pgCheckViolation {
			return decimal.Zero, ValidationError("insufficient_balance", "Insufficient balance for requested operation")
		}
		if err == sql.ErrNoRows {
			return decimal.Zero, SystemError("balance_update_failed", "Could not update balance row")
		}
		return decimal.Zero, err
	}
	return balance, nil
}

// ledgerInsert is one side of a double entry. Nullable references are nil
// for pseudo-counterparties such as the reserve pool.
type ledgerInsert struct {
	TransferID           *string
	ReserveDepositID     *string
	InstitutionID        *string
	WalletID             *string
	CounterpartyWalletID *string
	AccountRef           string
	CounterpartyRef      string
	EntryType            string
	Side                 string
	Currency             string
	Amount               decimal.Decimal
	Description          string
}

// insertLedgerEntry appends one immutable journal row. There is no update or
// delete path for ledger entries anywhere in the system.
func insertLedgerEntry(tx *sql.Tx, e ledgerInsert) error {
	_, err := tx.Exec(`
		INSERT INTO ledger_entries (
			transfer_id, reserve_deposit_id, institution_id, wallet_id,
			counterparty_wallet_id, account_ref, counterparty_ref,
			entry_type, side, currency, amount, description
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.TransferID, e.ReserveDepositID, e.InstitutionID, e.WalletID,
		e.CounterpartyWalletID, e.AccountRef, e.CounterpartyRef,
		e.EntryType, e.Side, e.Currency, e.Amount, e.Description)
	return err
}

// ListLedgerEntries returns the newest journal rows for audit display
func (s *LedgerService) ListLedgerEntries(limit int) ([]models.LedgerEntry, error) {
	rows, err := s.db.Query(`
		SELECT
			le.entry_id,
			COALESCE(le.transfer_id::text, ''),
			COALESCE(le.reserve_deposit_id::text, ''),
			COALESCE(i.institution_id, ''),
			COALESCE(i.legal_name, ''),
			COALESCE(w.pseudonymous_id, ''),
			le.account_ref,
			le.counterparty_ref,
			le.entry_type,
			le.side,
			le.currency,
			le.amount,
			le.description,
			le.created_at
		FROM ledger_entries le
		LEFT JOIN institutions i ON i.id = le.institution_id
		LEFT JOIN wallets w ON w.id = le.wallet_id
		ORDER BY le.entry_id DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(
			&e.EntryID, &e.TransferID, &e.ReserveDepositID, &e.InstitutionID,
			&e.LegalName, &e.PseudonymousID, &e.AccountRef, &e.CounterpartyRef,
			&e.EntryType, &e.Side, &e.Currency, &e.Amount, &e.Description,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListBalances returns the projection joined with directory data
func (s *LedgerService) ListBalances(currency string, limit int) ([]models.Balance, error) {
	var currencyFilter *string
	if trimmed := strings.ToUpper(strings.TrimSpace(currency)); trimmed != "" {
		currencyFilter = &trimmed
	}

	rows, err := s.db.Query(`
		SELECT
			i.institution_id,
			i.legal_name,
			i.cvr_number,
			i.country,
			i.status,
			w.pseudonymous_id,
			w.is_frozen,
			b.currency,
			b.available_balance,
			b.updated_at
		FROM balances b
		JOIN institutions i ON i.id = b.institution_id
		JOIN wallets w ON w.institution_id = i.id
		WHERE ($1::text IS NULL OR b.currency = $1)
		ORDER BY b.available_balance DESC, i.legal_name ASC
		LIMIT $2`,
		currencyFilter, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := []models.Balance{}
	for rows.Next() {
		var b models.Balance
		if err := rows.Scan(
			&b.InstitutionID, &b.LegalName, &b.CVRNumber, &b.Country,
			&b.Status, &b.PseudonymousID, &b.IsFrozen, &b.Currency,
			&b.AvailableBalance, &b.UpdatedAt,
		); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// ReplayBalances rebuilds the projection from the journal inside one atomic
// transaction: the journal is the source of truth, the projection a cache.
// Entries with no institution reference (reserve-pool sides) are excluded.
func (s *LedgerService) ReplayBalances() (*models.ReplayResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`TRUNCATE TABLE balances`); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(`
		INSERT INTO balances (institution_id, currency, available_balance, updated_at)
		SELECT
			institution_id,
			currency,
			SUM(CASE WHEN side = 'debit' THEN amount ELSE -amount END),
			NOW()
		FROM ledger_entries
		WHERE institution_id IS NOT NULL
		GROUP BY institution_id, currency`); err != nil {
		return nil, err
	}

	result := &models.ReplayResult{Status: "ok"}
	if err := tx.QueryRow(`SELECT COUNT(*) FROM ledger_entries`).Scan(&result.LedgerEntryCount); err != nil {
		return nil, err
	}
	if err := tx.QueryRow(`SELECT COUNT(*) FROM balances`).Scan(&result.BalanceCount); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[LEDGER] Replayed %d balances from %d ledger entries", result.BalanceCount, result.LedgerEntryCount)
	return result, nil
}

// HandleListEntries serves GET /ledger/entries
func (s *LedgerService) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 200, 2000)

	entries, err := s.ListLedgerEntries(limit)
	if err != nil {
		log.Printf("[LEDGER] Failed to list entries: %v", err)
		SendDomainError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, entries)
}

// HandleListBalances serves GET /balances
func (s *LedgerService) HandleListBalances(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 200, 2000)

	balances, err := s.ListBalances(r.URL.Query().Get("currency"), limit)
	if err != nil {
		log.Printf("[LEDGER] Failed to list balances: %v", err)
		SendDomainError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, balances)
}

// HandleReplay serves POST /ledger/replay
func (s *LedgerService) HandleReplay(w http.ResponseWriter, r *http.Request) {
	result, err := s.ReplayBalances()
	if err != nil {
		log.Printf("[LEDGER] Replay failed: %v", err)
		SendDomainError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, result)
}

func parseLimit(r *http.Request, fallback, max int) int {
	limit := fallback
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > max {
		limit = max
	}
	return limit
}
