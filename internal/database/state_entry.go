package database

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/logang-di/dsx-connect/internal/dcctx"
)

const StateEntriesTable = "state_entries"

// StateEntry is a connector-scoped key/value pair. Connectors use these to persist
// cursors and bookmarks between scans. Keys are namespaced so different concerns on the
// same connector do not collide.
type StateEntry struct {
	ConnectorId uuid.UUID `gorm:"column:connector_id;primaryKey"`
	Namespace   string    `gorm:"column:namespace;primaryKey"`
	Key         string    `gorm:"column:key;primaryKey"`
	Value       string    `gorm:"column:value"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

// UpsertStateEntry writes a state value, replacing any existing value for the key.
// Reads and writes on this path skip gorm; it is the hottest table for busy connectors.
func (s *service) UpsertStateEntry(ctx context.Context, e *StateEntry) error {
	now := dcctx.GetClock(ctx).Now().UTC()

	_, err := s.sq.
		Insert(StateEntriesTable).
		Columns("connector_id", "namespace", "key", "value", "created_at", "updated_at").
		Values(e.ConnectorId, e.Namespace, e.Key, e.Value, now, now).
		Suffix("ON CONFLICT (connector_id, namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to upsert state entry")
	}

	return nil
}

func (s *service) GetStateEntry(ctx context.Context, connectorId uuid.UUID, namespace, key string) (*StateEntry, error) {
	e := StateEntry{
		ConnectorId: connectorId,
		Namespace:   namespace,
		Key:         key,
	}

	err := s.sq.
		Select("value", "created_at", "updated_at").
		From(StateEntriesTable).
		Where(sq.Eq{
			"connector_id": connectorId,
			"namespace":    namespace,
			"key":          key,
		}).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&e.Value, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get state entry")
	}

	return &e, nil
}

func (s *service) DeleteStateEntriesForConnector(ctx context.Context, connectorId uuid.UUID) error {
	_, err := s.sq.
		Delete(StateEntriesTable).
		Where(sq.Eq{"connector_id": connectorId}).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to delete state entries")
	}

	return nil
}
