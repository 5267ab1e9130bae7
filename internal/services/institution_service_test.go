package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/eupaygrid/backend/internal/models"
)

func TestInstitutionService_CreateInstitution(t *testing.T) {
	institutionID := "11111111-1111-1111-1111-111111111111"

	t.Run("onboards with wallet and zero balance", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewInstitutionService(db, NewOutboxService(db, nil, nil))

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("DK10020030").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery("SELECT EXISTS").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery("INSERT INTO institutions").
			WillReturnRows(sqlmock.NewRows([]string{"id", "status", "created_at"}).
				AddRow(institutionID, "pending", time.Now()))
		mock.ExpectQuery("INSERT INTO wallets").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("w1"))
		mock.ExpectExec("INSERT INTO balances").
			WithArgs(institutionID, "EUR").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO admin_actions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		institution, err := service.CreateInstitution(models.InstitutionCreateRequest{
			LegalName: "Nordic Clearing Bank A/S",
			CVRNumber: "DK10020030",
			Country:   "dk",
		}, "ops@example.com")
		assert.NoError(t, err)
		assert.Equal(t, models.InstitutionStatusPending, institution.Status)
		assert.Equal(t, "DK", institution.Country)
		assert.True(t, institution.EURBalance.IsZero())
		assert.Contains(t, institution.InstitutionID, "EUPG-")
		assert.Contains(t, institution.PseudonymousID, "INST-")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects duplicate CVR", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewInstitutionService(db, NewOutboxService(db, nil, nil))

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("DK10020030").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		_, err = service.CreateInstitution(models.InstitutionCreateRequest{
			LegalName: "Nordic Clearing Bank A/S",
			CVRNumber: "DK10020030",
			Country:   "DK",
		}, "ops@example.com")
		domainErr, ok := err.(*DomainError)
		assert.True(t, ok)
		assert.Equal(t, "cvr_exists", domainErr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects a taken explicit code", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewInstitutionService(db, NewOutboxService(db, nil, nil))

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("DK10020030").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("EUPG-TAKEN001").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		_, err = service.CreateInstitution(models.InstitutionCreateRequest{
			InstitutionID: "EUPG-TAKEN001",
			LegalName:     "Nordic Clearing Bank A/S",
			CVRNumber:     "DK10020030",
			Country:       "DK",
		}, "ops@example.com")
		domainErr, ok := err.(*DomainError)
		assert.True(t, ok)
		assert.Equal(t, "institution_id_exists", domainErr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInstitutionService_SetStatus(t *testing.T) {
	institutionID := "11111111-1111-1111-1111-111111111111"

	t.Run("approves and audits", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewInstitutionService(db, NewOutboxService(db, nil, nil))

		mock.ExpectBegin()
		mock.ExpectQuery("FROM institutions i").
			WithArgs("EUPG-AAAA1111").
			WillReturnRows(institutionRows().AddRow(
				institutionID, "EUPG-AAAA1111", "Nordic Clearing Bank A/S", "DK10020030", "DK",
				"pending", time.Now(), "w1", "wl_aa", "INST-AAAAAAAAAA", false, "0"))
		mock.ExpectExec("UPDATE institutions").
			WithArgs(institutionID, "approved").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO admin_actions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("FROM institutions i").
			WithArgs("EUPG-AAAA1111").
			WillReturnRows(institutionRows().AddRow(
				institutionID, "EUPG-AAAA1111", "Nordic Clearing Bank A/S", "DK10020030", "DK",
				"approved", time.Now(), "w1", "wl_aa", "INST-AAAAAAAAAA", false, "0"))
		mock.ExpectCommit()

		institution, err := service.SetStatus("eupg-aaaa1111", models.InstitutionStatusApproved, "ops@example.com", "KYC complete")
		assert.NoError(t, err)
		assert.Equal(t, models.InstitutionStatusApproved, institution.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown institution", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewInstitutionService(db, NewOutboxService(db, nil, nil))

		mock.ExpectBegin()
		mock.ExpectQuery("FROM institutions i").
			WithArgs("EUPG-ZZZZ9999").
			WillReturnRows(institutionRows())
		mock.ExpectRollback()

		_, err = service.SetStatus("EUPG-ZZZZ9999", models.InstitutionStatusApproved, "ops@example.com", "")
		domainErr, ok := err.(*DomainError)
		assert.True(t, ok)
		assert.Equal(t, "institution_not_found", domainErr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInstitutionService_SetWalletFrozen(t *testing.T) {
	institutionID := "11111111-1111-1111-1111-111111111111"

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewInstitutionService(db, NewOutboxService(db, nil, nil))

	mock.ExpectBegin()
	mock.ExpectQuery("FROM institutions i").
		WithArgs("EUPG-AAAA1111").
		WillReturnRows(institutionRows().AddRow(
			institutionID, "EUPG-AAAA1111", "Nordic Clearing Bank A/S", "DK10020030", "DK",
			"approved", time.Now(), "w1", "wl_aa", "INST-AAAAAAAAAA", false, "0"))
	mock.ExpectExec("UPDATE wallets").
		WithArgs(institutionID, true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO admin_actions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("FROM institutions i").
		WithArgs("EUPG-AAAA1111").
		WillReturnRows(institutionRows().AddRow(
			institutionID, "EUPG-AAAA1111", "Nordic Clearing Bank A/S", "DK10020030", "DK",
			"approved", time.Now(), "w1", "wl_aa", "INST-AAAAAAAAAA", true, "0"))
	mock.ExpectCommit()

	institution, err := service.SetWalletFrozen("EUPG-AAAA1111", true, "ops@example.com", "Sanctions review")
	assert.NoError(t, err)
	assert.True(t, institution.IsFrozen)
	assert.NoError(t, mock.ExpectationsWereMet())
}
