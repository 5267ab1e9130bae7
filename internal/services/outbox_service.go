package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"

	"github.com/eupaygrid/backend/internal/models"
)

// Broadcaster pushes committed events to live viewers. Delivery is
// best-effort and must never influence the outcome of the mutation that
// produced the event.
type Broadcaster interface {
	BroadcastJSON(payload any)
}

// appendOutboxEvent writes the durable event record inside the caller's
// transaction; the event exists exactly when the business mutation commits.
func appendOutboxEvent(tx *sql.Tx, eventType string, payload any) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	var outboxID int64
	err = tx.QueryRow(`
		INSERT INTO outbox_events (event_type, payload)
		VALUES ($1, $2)
		RETURNING id`,
		eventType, data).Scan(&outboxID)
	return outboxID, err
}

// OutboxService reads the durable event log and runs the best-effort
// post-commit fan-out (websocket hub plus a Redis side channel).
type OutboxService struct {
	db       *sql.DB
	redis    *redis.Client
	hub      Broadcaster
	queueKey string
}

func NewOutboxService(db *sql.DB, redisClient *redis.Client, hub Broadcaster) *OutboxService {
	return &OutboxService{
		db:       db,
		redis:    redisClient,
		hub:      hub,
		queueKey: "outbox_stream",
	}
}

// Publish fans a committed event out to live subscribers and the Redis side
// channel. Both legs are best-effort: failures are logged, never returned.
func (s *OutboxService) Publish(eventType string, payload any) {
	if s.hub != nil {
		s.hub.BroadcastJSON(map[string]any{"type": eventType, "data": payload})
	}

	if s.redis == nil {
		return
	}
	data, err := json.Marshal(map[string]any{"type": eventType, "data": payload})
	if err != nil {
		log.Printf("[OUTBOX] Failed to encode event %s: %v", eventType, err)
		return
	}
	if err := s.redis.RPush(context.Background(), s.queueKey, data).Err(); err != nil {
		log.Printf("[OUTBOX] Failed to push event %s to redis: %v", eventType, err)
	}
}

// LatestEvents returns the newest durable events
func (s *OutboxService) LatestEvents(limit int) ([]models.OutboxEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, event_type, payload, created_at, published_at
		FROM outbox_events
		ORDER BY id DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.OutboxEvent{}
	for rows.Next() {
		var e models.OutboxEvent
		var publishedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.CreatedAt, &publishedAt); err != nil {
			return nil, err
		}
		if publishedAt.Valid {
			e.PublishedAt = &publishedAt.Time
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MarkPublished stamps an event as acknowledged by a guaranteed-delivery
// consumer.
func (s *OutboxService) MarkPublished(outboxID int64) error {
	_, err := s.db.Exec(`UPDATE outbox_events SET published_at = NOW() WHERE id = $1`, outboxID)
	return err
}

// PublishCustomEvent appends an event outside any business mutation
func (s *OutboxService) PublishCustomEvent(eventType string, payload any) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	outboxID, err := appendOutboxEvent(tx, eventType, payload)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return outboxID, nil
}

// HandleLatestEvents serves GET /events
func (s *OutboxService) HandleLatestEvents(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100, 500)

	events, err := s.LatestEvents(limit)
	if err != nil {
		log.Printf("[OUTBOX] Failed to list events: %v", err)
		SendDomainError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, events)
}

// HandleMarkPublished serves POST /events/{eventId}/published
func (s *OutboxService) HandleMarkPublished(w http.ResponseWriter, r *http.Request) {
	outboxID, err := strconv.ParseInt(chi.URLParam(r, "eventId"), 10, 64)
	if err != nil {
		SendDomainError(w, ValidationError("invalid_event_id", "eventId must be an integer"))
		return
	}

	if err := s.MarkPublished(outboxID); err != nil {
		log.Printf("[OUTBOX] Failed to mark event %d published: %v", outboxID, err)
		SendDomainError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
