// Package audit keeps an append-only log of state transitions.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/medivault/internal/db"
)

const (
	AggregateAccessRequest = "access_request"
	AggregateAppointment   = "appointment"
	AggregatePayment       = "payment"
	AggregateConsultation  = "consultation"
)

type EventLog struct {
	ID            int64
	EventType     string
	AggregateType string
	AggregateID   uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type Store interface {
	InsertEvent(ctx context.Context, ev EventLog) error
}

// Recorder writes events and never fails the caller: an insert error is logged.
type Recorder struct {
	store  Store
	logger *zap.Logger
}

func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, aggregateType string, id uuid.UUID, eventType string, payload map[string]any) {
	if r == nil || r.store == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warn("marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   id,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := r.store.InsertEvent(ctx, ev); err != nil {
		r.logger.Warn("insert event log",
			zap.String("event_type", eventType),
			zap.String("aggregate_id", id.String()),
			zap.Error(err))
	}
}

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// InsertEvent joins the caller's transaction when ctx carries one. The insert
// runs in its own savepoint there, so a failed event write never aborts the
// state change it describes.
func (s *PgStore) InsertEvent(ctx context.Context, ev EventLog) error {
	err := db.Savepoint(ctx, s.pool, func(q db.DBTX) error {
		_, err := q.Exec(ctx, `
			INSERT INTO event_logs (event_type, aggregate_type, aggregate_id, payload, created_at)
			VALUES ($1, $2, $3, $4, COALESCE($5, now()))
		`, ev.EventType, ev.AggregateType, ev.AggregateID, ev.Payload, nullableTime(ev.CreatedAt))
		return err
	})
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
