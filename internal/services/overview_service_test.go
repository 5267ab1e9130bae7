package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestOverviewService_TopInstitutions(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewOverviewService(db)

	// Quiet institutions still rank, with a zero count
	mock.ExpectQuery("LEFT JOIN activity").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"institution_id", "legal_name", "tx_count"}).
			AddRow("EUPG-AAAA1111", "Nordic Clearing Bank A/S", 4).
			AddRow("EUPG-BBBB2222", "Hansa Payments GmbH", 0))

	ranking, err := service.TopInstitutions(10)
	assert.NoError(t, err)
	assert.Len(t, ranking, 2)
	assert.Equal(t, 4, ranking[0].TxCount)
	assert.Equal(t, "EUPG-BBBB2222", ranking[1].InstitutionID)
	assert.Equal(t, 0, ranking[1].TxCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOverviewService_Metrics(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewOverviewService(db)

	mock.ExpectQuery("FROM institutions GROUP BY status").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("approved", 4).
			AddRow("pending", 1))
	mock.ExpectQuery("FROM transfers").
		WillReturnRows(sqlmock.NewRows([]string{"count", "settled", "failed", "volume", "latency"}).
			AddRow(6, 5, 1, "337500", 0.42))
	mock.ExpectQuery("FROM balances").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("9500000"))

	metrics, err := service.Metrics()
	assert.NoError(t, err)
	assert.Equal(t, 4, metrics.Institutions.Approved)
	assert.Equal(t, 1, metrics.Institutions.Pending)
	assert.Equal(t, 0, metrics.Institutions.Suspended)
	assert.Equal(t, 6, metrics.Transfers24h)
	assert.Equal(t, "337500", metrics.Volume24h)
	assert.Equal(t, "9500000", metrics.NetworkBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}
