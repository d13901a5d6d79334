package repository

import (
	"context"
	"database/sql"
	"time"

	"plug_sync/internal/models"
)

// StateRepo persists the single desired-state value.
type StateRepo interface {
	Save(ctx context.Context, s models.PlugState) error
	Load(ctx context.Context) (models.PlugState, error)
}

// EventFilter narrows List. Zero values mean "no filter".
type EventFilter struct {
	From     time.Time
	To       time.Time
	Type     string
	DeviceID string
}

// EventRepo stores the sync journal.
type EventRepo interface {
	Append(ctx context.Context, e models.SyncEvent) error
	List(ctx context.Context, f EventFilter) ([]models.SyncEvent, error)
}

type Repository struct {
	StateRepo StateRepo
	EventRepo EventRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		StateRepo: NewStateSQLite(db),
		EventRepo: NewEventSQLite(db),
	}
}
