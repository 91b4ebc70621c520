package statestore

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logang-di/dsx-connect/internal/api_common"
	"github.com/logang-di/dsx-connect/internal/database"
)

func TestStateStore(t *testing.T) {
	ctx := context.Background()
	_, db := database.MustApplyBlankTestDbConfig(t, nil)
	s := NewStateStore(db)

	connectorId := uuid.New()

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, connectorId, "cursors", "last", "2026-01-01T00:00:00Z/item-4812"))

		val, err := s.Get(ctx, connectorId, "cursors", "last")
		require.NoError(t, err)
		require.NotNil(t, val)
		assert.Equal(t, "2026-01-01T00:00:00Z/item-4812", *val)
	})

	t.Run("put replaces", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, connectorId, "cursors", "last", "second"))

		val, err := s.Get(ctx, connectorId, "cursors", "last")
		require.NoError(t, err)
		require.NotNil(t, val)
		assert.Equal(t, "second", *val)
	})

	t.Run("missing key is nil", func(t *testing.T) {
		val, err := s.Get(ctx, connectorId, "cursors", "never-written")
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("value at the cap is accepted", func(t *testing.T) {
		assert.NoError(t, s.Put(ctx, connectorId, "cursors", "big", strings.Repeat("x", MaxValueSize)))
	})

	t.Run("value over the cap is rejected with 413", func(t *testing.T) {
		err := s.Put(ctx, connectorId, "cursors", "too-big", strings.Repeat("x", MaxValueSize+1))
		require.Error(t, err)
		assert.True(t, api_common.HttpStatusErrorIsStatusCode(err, http.StatusRequestEntityTooLarge))
		assert.True(t, api_common.HttpStatusErrorContains(err, "8.2 kB"))
	})

	t.Run("empty namespace or key is rejected", func(t *testing.T) {
		err := s.Put(ctx, connectorId, "", "k", "v")
		require.Error(t, err)
		assert.True(t, api_common.HttpStatusErrorIsStatusCode(err, http.StatusBadRequest))

		err = s.Put(ctx, connectorId, "ns", "", "v")
		require.Error(t, err)
		assert.True(t, api_common.HttpStatusErrorIsStatusCode(err, http.StatusBadRequest))
	})

	t.Run("clear drops only the connector's state", func(t *testing.T) {
		other := uuid.New()
		require.NoError(t, s.Put(ctx, other, "cursors", "last", "other-value"))

		require.NoError(t, s.Clear(ctx, connectorId))

		val, err := s.Get(ctx, connectorId, "cursors", "last")
		require.NoError(t, err)
		assert.Nil(t, val)

		val, err = s.Get(ctx, other, "cursors", "last")
		require.NoError(t, err)
		require.NotNil(t, val)
		assert.Equal(t, "other-value", *val)
	})
}
