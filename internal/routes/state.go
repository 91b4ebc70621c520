package routes

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/logang-di/dsx-connect/internal/api_common"
	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/hmacsig"
	"github.com/logang-di/dsx-connect/internal/statestore"
)

// StateRoutes exposes the per-connector key/value store. Values travel as raw bodies,
// not JSON, so connectors can stash whatever encoding suits them.
type StateRoutes struct {
	cfg    config.C
	state  statestore.S
	signed gin.HandlerFunc
}

// ownedConnectorId resolves the path uuid and enforces that the authenticated connector
// is operating on its own state.
func (r *StateRoutes) ownedConnectorId(gctx *gin.Context) (uuid.UUID, bool) {
	connectorId, ok := parseUuidParam(r.cfg, gctx, "uuid")
	if !ok {
		return uuid.Nil, false
	}

	if hmacsig.MustGetConnectorId(gctx) != connectorId {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusForbidden().
			WithResponseMsg("connector does not own this state").
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return uuid.Nil, false
	}

	return connectorId, true
}

func (r *StateRoutes) put(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	connectorId, ok := r.ownedConnectorId(gctx)
	if !ok {
		return
	}

	body, err := io.ReadAll(gctx.Request.Body)
	if err != nil {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusBadRequest().
			WithResponseMsg("failed to read request body").
			WithInternalErr(err).
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return
	}

	err = r.state.Put(ctx, connectorId, gctx.Param("namespace"), gctx.Param("key"), string(body))
	if err != nil {
		api_common.AsHttpStatusError(err).WriteGinResponse(r.cfg, gctx)
		return
	}

	gctx.Status(http.StatusNoContent)
}

func (r *StateRoutes) get(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	connectorId, ok := r.ownedConnectorId(gctx)
	if !ok {
		return
	}

	value, err := r.state.Get(ctx, connectorId, gctx.Param("namespace"), gctx.Param("key"))
	if err != nil {
		api_common.AsHttpStatusError(err).WriteGinResponse(r.cfg, gctx)
		return
	}

	if value == nil {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusNotFound().
			WithResponseMsg("state key not found").
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return
	}

	gctx.Data(http.StatusOK, "application/octet-stream", []byte(*value))
}

func (r *StateRoutes) Register(g gin.IRouter) {
	g.PUT("/connectors/state/:uuid/:namespace/:key", r.signed, r.put)
	g.GET("/connectors/state/:uuid/:namespace/:key", r.signed, r.get)
}

func NewStateRoutes(cfg config.C, state statestore.S, signed gin.HandlerFunc) *StateRoutes {
	return &StateRoutes{
		cfg:    cfg,
		state:  state,
		signed: signed,
	}
}
