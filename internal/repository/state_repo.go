package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"plug_sync/internal/models"
	"plug_sync/internal/repository/db"
)

type StateSQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewStateSQLite(db *sql.DB) *StateSQLite {
	return &StateSQLite{db: db, now: time.Now}
}

const (
	desiredStateRowID = 1

	upsertStateSQL = `
		INSERT INTO desired_state (id, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			value=excluded.value,
			updated_at=excluded.updated_at
	`

	selectStateSQL = `SELECT value FROM desired_state WHERE id=?`
)

// Save writes the desired state into row 1.
func (r *StateSQLite) Save(ctx context.Context, s models.PlugState) error {
	if !s.Valid() {
		return fmt.Errorf("save desired state: invalid value %q", s)
	}
	_, err := r.db.ExecContext(ctx, upsertStateSQL,
		desiredStateRowID,
		string(s),
		r.now().UTC().Format(db.TimeLayout),
	)
	return err
}

// Load returns the persisted desired state, or DefaultState if nothing was saved.
func (r *StateSQLite) Load(ctx context.Context) (models.PlugState, error) {
	var v string
	if err := r.db.QueryRowContext(ctx, selectStateSQL, desiredStateRowID).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultState, nil
		}
		return "", err
	}
	s, err := models.ParsePlugState(v)
	if err != nil {
		return "", fmt.Errorf("load desired state: %w", err)
	}
	return s, nil
}
