package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"

	"github.com/eupaygrid/backend/internal/models"
)

// logAdminAction appends one administrative audit row inside the caller's
// transaction and mirrors it to the process log.
func logAdminAction(tx *sql.Tx, actionType, actor string, targetInstitutionID *string, reason string, metadata models.Metadata) error {
	_, err := tx.Exec(`
		INSERT INTO admin_actions (action_type, actor, target_institution_id, reason, metadata)
		VALUES ($1, $2, $3, $4, $5)`,
		actionType, actor, targetInstitutionID, reason, metadata)
	if err != nil {
		return err
	}

	line, _ := json.Marshal(map[string]any{
		"action_type": actionType,
		"actor":       actor,
		"reason":      reason,
	})
	log.Printf("AUDIT: %s", string(line))
	return nil
}

// AdminService exposes the append-only audit trail for display
type AdminService struct {
	db *sql.DB
}

func NewAdminService(db *sql.DB) *AdminService {
	return &AdminService{db: db}
}

// ListAdminActions returns the newest audit records
func (s *AdminService) ListAdminActions(limit int) ([]models.AdminAction, error) {
	rows, err := s.db.Query(`
		SELECT
			aa.id,
			aa.action_type,
			aa.actor,
			COALESCE(i.institution_id, ''),
			aa.reason,
			aa.metadata,
			aa.timestamp
		FROM admin_actions aa
		LEFT JOIN institutions i ON i.id = aa.target_institution_id
		ORDER BY aa.timestamp DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	actions := []models.AdminAction{}
	for rows.Next() {
		var a models.AdminAction
		if err := rows.Scan(&a.ID, &a.ActionType, &a.Actor, &a.TargetInstitution, &a.Reason, &a.Metadata, &a.Timestamp); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// HandleAuditLog serves GET /admin/audit-log
func (s *AdminService) HandleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 200, 2000)

	actions, err := s.ListAdminActions(limit)
	if err != nil {
		log.Printf("[ADMIN] Failed to list audit log: %v", err)
		SendDomainError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, actions)
}
