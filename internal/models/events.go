package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Metadata type for JSONB fields
type Metadata map[string]any

// Value implements driver.Valuer for Metadata
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(Metadata{})
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for Metadata
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, m)
}

// OutboxEvent is the durable, at-least-once record of an externally
// relevant state change. PublishedAt is nil until a consumer acknowledges.
type OutboxEvent struct {
	ID          int64      `json:"id" db:"id"`
	EventType   string     `json:"event_type" db:"event_type"`
	Payload     Metadata   `json:"payload" db:"payload"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	PublishedAt *time.Time `json:"published_at" db:"published_at"`
}

// AdminAction is an append-only administrative audit record
type AdminAction struct {
	ID                int64     `json:"id" db:"id"`
	ActionType        string    `json:"action_type" db:"action_type"`
	Actor             string    `json:"actor" db:"actor"`
	TargetInstitution string    `json:"target_institution,omitempty" db:"target_institution"`
	Reason            string    `json:"reason" db:"reason"`
	Metadata          Metadata  `json:"metadata" db:"metadata"`
	Timestamp         time.Time `json:"timestamp" db:"timestamp"`
}

// InstitutionCounts groups directory totals by status
type InstitutionCounts struct {
	Approved  int `json:"approved"`
	Pending   int `json:"pending"`
	Suspended int `json:"suspended"`
}

// OverviewMetrics is the network-wide dashboard snapshot
type OverviewMetrics struct {
	Institutions                InstitutionCounts `json:"institutions"`
	Transfers24h                int               `json:"transfers_24h"`
	Settled24h                  int               `json:"settled_24h"`
	Failed24h                   int               `json:"failed_24h"`
	Volume24h                   string            `json:"volume_24h"`
	NetworkBalance              string            `json:"network_balance"`
	AvgSettlementLatencySeconds float64           `json:"avg_settlement_latency_seconds"`
}

// VolumeBucket is one hour of settled transfer volume
type VolumeBucket struct {
	Bucket        time.Time `json:"bucket"`
	Volume        string    `json:"volume"`
	TransferCount int       `json:"transfer_count"`
}

// InstitutionActivity ranks an institution by 24h transfer count
type InstitutionActivity struct {
	InstitutionID string `json:"institution_id"`
	LegalName     string `json:"legal_name"`
	TxCount       int    `json:"tx_count"`
}
