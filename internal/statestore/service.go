package statestore

import (
	"context"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/logang-di/dsx-connect/internal/api_common"
	"github.com/logang-di/dsx-connect/internal/database"
)

// MaxValueSize caps a single state value. The store holds cursors and watermarks, not
// content; anything bigger belongs in the connector's own backend.
const MaxValueSize = 8 * 1024

// S is the durable per-connector key/value store connectors use for resumable cursors.
// Values are opaque strings scoped by (connector, namespace, key).
type S interface {
	// Put upserts a value. Values over MaxValueSize are rejected.
	Put(ctx context.Context, connectorId uuid.UUID, namespace, key, value string) error

	// Get returns the value, or nil when the key has never been written.
	Get(ctx context.Context, connectorId uuid.UUID, namespace, key string) (*string, error)

	// Clear drops all state for a connector, typically on unregister.
	Clear(ctx context.Context, connectorId uuid.UUID) error
}

type service struct {
	db database.DB
}

func NewStateStore(db database.DB) S {
	return &service{db: db}
}

func (s *service) Put(ctx context.Context, connectorId uuid.UUID, namespace, key, value string) error {
	if namespace == "" || key == "" {
		return api_common.NewHttpStatusErrorBuilder().
			WithStatusBadRequest().
			WithResponseMsg("namespace and key are required").
			Build()
	}

	if len(value) > MaxValueSize {
		return api_common.NewHttpStatusErrorBuilder().
			WithStatus(http.StatusRequestEntityTooLarge).
			WithResponseMsgf("state value is %s; the limit is %s",
				humanize.Bytes(uint64(len(value))), humanize.Bytes(MaxValueSize)).
			Build()
	}

	return s.db.UpsertStateEntry(ctx, &database.StateEntry{
		ConnectorId: connectorId,
		Namespace:   namespace,
		Key:         key,
		Value:       value,
	})
}

func (s *service) Get(ctx context.Context, connectorId uuid.UUID, namespace, key string) (*string, error) {
	entry, err := s.db.GetStateEntry(ctx, connectorId, namespace, key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load state entry")
	}

	if entry == nil {
		return nil, nil
	}

	return &entry.Value, nil
}

func (s *service) Clear(ctx context.Context, connectorId uuid.UUID) error {
	return s.db.DeleteStateEntriesForConnector(ctx, connectorId)
}
