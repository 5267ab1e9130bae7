package services

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"

	"github.com/eupaygrid/backend/internal/models"
)

// OverviewService computes the read-only dashboard aggregates
type OverviewService struct {
	db *sql.DB
}

func NewOverviewService(db *sql.DB) *OverviewService {
	return &OverviewService{db: db}
}

// Metrics returns the network-wide snapshot over the trailing 24 hours
func (s *OverviewService) Metrics() (*models.OverviewMetrics, error) {
	metrics := &models.OverviewMetrics{}

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM institutions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		switch status {
		case models.InstitutionStatusApproved:
			metrics.Institutions.Approved = count
		case models.InstitutionStatusPending:
			metrics.Institutions.Pending = count
		case models.InstitutionStatusSuspended:
			metrics.Institutions.Suspended = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'settled'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COALESCE(SUM(amount) FILTER (WHERE status = 'settled'), 0)::text,
			COALESCE(AVG(EXTRACT(EPOCH FROM settled_at - submitted_at)) FILTER (WHERE status = 'settled'), 0)
		FROM transfers
		WHERE submitted_at >= NOW() - INTERVAL '24 hours'`).Scan(
		&metrics.Transfers24h, &metrics.Settled24h, &metrics.Failed24h,
		&metrics.Volume24h, &metrics.AvgSettlementLatencySeconds)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRow(`SELECT COALESCE(SUM(available_balance), 0)::text FROM balances`).Scan(&metrics.NetworkBalance)
	if err != nil {
		return nil, err
	}

	return metrics, nil
}

// VolumeSeries returns hourly settled volume over the trailing window
func (s *OverviewService) VolumeSeries(hours int) ([]models.VolumeBucket, error) {
	rows, err := s.db.Query(`
		SELECT
			date_trunc('hour', settled_at) AS bucket,
			COALESCE(SUM(amount), 0)::text,
			COUNT(*)
		FROM transfers
		WHERE status = 'settled' AND settled_at >= NOW() - make_interval(hours => $1)
		GROUP BY bucket
		ORDER BY bucket ASC`,
		hours)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := []models.VolumeBucket{}
	for rows.Next() {
		var b models.VolumeBucket
		if err := rows.Scan(&b.Bucket, &b.Volume, &b.TransferCount); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// TopInstitutions ranks institutions by transfers touched in 24 hours,
// counting both sides. Institutions with no activity rank with a zero count.
func (s *OverviewService) TopInstitutions(limit int) ([]models.InstitutionActivity, error) {
	rows, err := s.db.Query(`
		WITH activity AS (
			SELECT sender_institution_id AS institution_id, COUNT(*)::int AS tx_count
			FROM transfers
			WHERE submitted_at >= NOW() - INTERVAL '24 hours'
			GROUP BY sender_institution_id
			UNION ALL
			SELECT recipient_institution_id AS institution_id, COUNT(*)::int AS tx_count
			FROM transfers
			WHERE submitted_at >= NOW() - INTERVAL '24 hours'
			GROUP BY recipient_institution_id
		)
		SELECT
			i.institution_id,
			i.legal_name,
			COALESCE(SUM(a.tx_count), 0)::int AS tx_count
		FROM institutions i
		LEFT JOIN activity a ON a.institution_id = i.id
		GROUP BY i.id, i.institution_id, i.legal_name
		ORDER BY tx_count DESC, i.legal_name ASC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ranking := []models.InstitutionActivity{}
	for rows.Next() {
		var a models.InstitutionActivity
		if err := rows.Scan(&a.InstitutionID, &a.LegalName, &a.TxCount); err != nil {
			return nil, err
		}
		ranking = append(ranking, a)
	}
	return ranking, rows.Err()
}

// HandleMetrics serves GET /overview/metrics
func (s *OverviewService) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.Metrics()
	if err != nil {
		log.Printf("[OVERVIEW] Failed to compute metrics: %v", err)
		SendDomainError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, metrics)
}

// HandleVolumeSeries serves GET /overview/volume-series
func (s *OverviewService) HandleVolumeSeries(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if hoursStr := r.URL.Query().Get("hours"); hoursStr != "" {
		if h, err := strconv.Atoi(hoursStr); err == nil {
			hours = h
		}
	}
	if hours < 1 {
		hours = 1
	}
	if hours > 168 {
		hours = 168
	}

	buckets, err := s.VolumeSeries(hours)
	if err != nil {
		log.Printf("[OVERVIEW] Failed to compute volume series: %v", err)
		SendDomainError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, buckets)
}

// HandleTopInstitutions serves GET /overview/top-institutions
func (s *OverviewService) HandleTopInstitutions(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 10, 20)

	ranking, err := s.TopInstitutions(limit)
	if err != nil {
		log.Printf("[OVERVIEW] Failed to rank institutions: %v", err)
		SendDomainError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, ranking)
}
