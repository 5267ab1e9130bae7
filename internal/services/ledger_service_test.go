package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestApplyBalanceDelta(t *testing.T) {
	institutionID := "11111111-1111-1111-1111-111111111111"

	t.Run("returns the new balance", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO balances").
			WithArgs(institutionID, "EUR").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("UPDATE balances").
			WillReturnRows(sqlmock.NewRows([]string{"available_balance"}).AddRow("1500"))

		tx, err := db.Begin()
		assert.NoError(t, err)

		balance, err := applyBalanceDelta(tx, institutionID, "EUR", decimal.NewFromInt(500))
		assert.NoError(t, err)
		assert.Equal(t, "1500", balance.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps the non-negativity violation to insufficient_balance", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO balances").
			WithArgs(institutionID, "EUR").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("UPDATE balances").
			WillReturnError(&pq.Error{Code: pq.ErrorCode(pgCheckViolation)})

		tx, err := db.Begin()
		assert.NoError(t, err)

		_, err = applyBalanceDelta(tx, institutionID, "EUR", decimal.NewFromInt(-9000))
		domainErr, ok := err.(*DomainError)
		assert.True(t, ok)
		assert.Equal(t, "insufficient_balance", domainErr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLockBalance_MissingRowReadsZero(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	institutionID := "11111111-1111-1111-1111-111111111111"

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO balances").
		WithArgs(institutionID, "EUR").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT available_balance").
		WithArgs(institutionID, "EUR").
		WillReturnRows(sqlmock.NewRows([]string{"available_balance"}))

	tx, err := db.Begin()
	assert.NoError(t, err)

	balance, err := lockBalance(tx, institutionID, "EUR")
	assert.NoError(t, err)
	assert.True(t, balance.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerService_ReplayBalances(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	mock.ExpectBegin()
	mock.ExpectExec("TRUNCATE TABLE balances").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO balances").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM ledger_entries").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(8))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM balances").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectCommit()

	result, err := service.ReplayBalances()
	assert.NoError(t, err)
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, int64(8), result.LedgerEntryCount)
	assert.Equal(t, int64(3), result.BalanceCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerService_ListBalances(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	mock.ExpectQuery("FROM balances b").
		WithArgs(nil, 200).
		WillReturnRows(sqlmock.NewRows([]string{
			"institution_id", "legal_name", "cvr_number", "country", "status",
			"pseudonymous_id", "is_frozen", "currency", "available_balance", "updated_at",
		}).AddRow("EUPG-AAAA1111", "Nordic Clearing Bank A/S", "DK10020030", "DK",
			"approved", "INST-AAAAAAAAAA", false, "EUR", "5000", time.Now()))

	balances, err := service.ListBalances("", 200)
	assert.NoError(t, err)
	assert.Len(t, balances, 1)
	assert.Equal(t, "EUPG-AAAA1111", balances[0].InstitutionID)
	assert.Equal(t, "5000", balances[0].AvailableBalance.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
