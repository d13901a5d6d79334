package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"plug_sync/internal/models"
	"plug_sync/internal/repository/db"
)

type EventSQLite struct {
	db *sql.DB
}

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

const insertEventSQL = `
		INSERT INTO sync_events (id, occurred_at, type, device_id, state, description)
		VALUES (?, ?, ?, ?, ?, ?)
	`

// Append inserts a new event. If EventID or OccurredAt are empty, they're set.
func (r *EventSQLite) Append(ctx context.Context, e models.SyncEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, insertEventSQL,
		e.EventID,
		e.OccurredAt.UTC().Format(db.TimeLayout),
		strings.ToUpper(strings.TrimSpace(e.Type)),
		e.DeviceID,
		string(e.State),
		e.Description,
	)
	return err
}

// List returns events inside [From, To] (inclusive) matching Type and
// DeviceID, oldest first.
func (r *EventSQLite) List(ctx context.Context, f EventFilter) ([]models.SyncEvent, error) {
	var (
		conds []string
		args  []any
	)

	if !f.From.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, f.From.UTC().Format(db.TimeLayout))
	}
	if !f.To.IsZero() {
		conds = append(conds, "occurred_at <= ?")
		args = append(args, f.To.UTC().Format(db.TimeLayout))
	}
	if typ := strings.ToUpper(strings.TrimSpace(f.Type)); typ != "" {
		conds = append(conds, "type = ?")
		args = append(args, typ)
	}
	if dev := strings.TrimSpace(f.DeviceID); dev != "" {
		conds = append(conds, "device_id = ?")
		args = append(args, dev)
	}

	q := `SELECT id, occurred_at, type, device_id, state, description FROM sync_events`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY occurred_at ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.SyncEvent, 0, 64)
	for rows.Next() {
		var (
			ev         models.SyncEvent
			occurredAt string
			state      string
		)
		if err := rows.Scan(&ev.EventID, &occurredAt, &ev.Type, &ev.DeviceID, &state, &ev.Description); err != nil {
			return nil, err
		}
		ev.OccurredAt, err = time.ParseInLocation(db.TimeLayout, occurredAt, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("event %s: bad occurred_at %q: %w", ev.EventID, occurredAt, err)
		}
		ev.State = models.PlugState(state)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
