package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/logang-di/dsx-connect/internal/api_common"
	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/database"
)

// parseUuidParam pulls a UUID path parameter, writing a 400 response itself when the
// value is missing or malformed.
func parseUuidParam(cfg config.C, gctx *gin.Context, name string) (uuid.UUID, bool) {
	raw := gctx.Param(name)
	if raw == "" {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusBadRequest().
			WithResponseMsgf("%s is required", name).
			BuildStatusError().
			WriteGinResponse(cfg, gctx)
		return uuid.Nil, false
	}

	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusBadRequest().
			WithResponseMsgf("failed to parse %s as UUID", name).
			BuildStatusError().
			WriteGinResponse(cfg, gctx)
		return uuid.Nil, false
	}

	return id, true
}

// writeDbError maps a storage error to a response: not-found becomes a 404 naming the
// entity, anything else is a 500 with the cause kept internal.
func writeDbError(cfg config.C, gctx *gin.Context, err error, entity string, id uuid.UUID) {
	if errors.Is(err, database.ErrNotFound) {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusNotFound().
			WithResponseMsgf("%s '%s' not found", entity, id).
			BuildStatusError().
			WriteGinResponse(cfg, gctx)
		return
	}

	api_common.NewHttpStatusErrorBuilder().
		WithStatusInternalServerError().
		WithInternalErr(err).
		BuildStatusError().
		WriteGinResponse(cfg, gctx)
}
