package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"BeliefMarket/internal/event"
)

// execer is satisfied by both *sql.DB and *sql.Tx so batches can be written
// standalone or inside the worker's flush transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// EventRow is one row in event_log.events. The event ID doubles as the
// dedup key: replayed batches are idempotent via ON CONFLICT DO NOTHING.
type EventRow struct {
	EventID   string
	EventType string
	MarketKey string
	Actor     string
	Payload   []byte // JSON-encoded event payload
	Timestamp time.Time
}

// RowFromEnvelope flattens a telemetry envelope into its storage shape.
func RowFromEnvelope(env event.Envelope) (EventRow, error) {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return EventRow{}, fmt.Errorf("marshal payload: %w", err)
	}
	return EventRow{
		EventID:   env.EventID.String(),
		EventType: env.TypeName,
		MarketKey: env.MarketKey,
		Actor:     env.Actor,
		Payload:   payload,
		Timestamp: env.Timestamp,
	}, nil
}

// EventLogWriter appends event rows to Postgres with multi-row INSERTs.
type EventLogWriter struct {
	db *sql.DB
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteBatch writes a batch of events through ex, a transaction during
// worker flushes or the raw connection otherwise.
func (w *EventLogWriter) WriteBatch(ctx context.Context, ex execer, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(event_id, event_type, market_key, actor, payload, occurred_at)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*6)
	for i, r := range rows {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args, r.EventID, r.EventType, r.MarketKey, r.Actor, r.Payload, r.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (event_id) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// Events reads back the log for one market in append order. Used by the
// query surface for market history.
func (w *EventLogWriter) Events(ctx context.Context, marketKey string, limit int) ([]EventRow, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT event_id, event_type, market_key, actor, payload, occurred_at
		FROM event_log.events
		WHERE market_key = $1
		ORDER BY occurred_at ASC, event_id ASC
		LIMIT $2
	`, marketKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var r EventRow
		if err := rows.Scan(&r.EventID, &r.EventType, &r.MarketKey, &r.Actor, &r.Payload, &r.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
