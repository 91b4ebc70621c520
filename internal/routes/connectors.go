package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/logang-di/dsx-connect/internal/api_common"
	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/database"
	"github.com/logang-di/dsx-connect/internal/hmacsig"
	"github.com/logang-di/dsx-connect/internal/pipeline"
	"github.com/logang-di/dsx-connect/internal/registry"
	"github.com/logang-di/dsx-connect/internal/statestore"
)

// EnrollmentTokenHeader carries the operator-distributed bootstrap token on the
// registration call, the only connector-facing route that is not HMAC signed.
const EnrollmentTokenHeader = "X-Enrollment-Token"

type RegisterRequestJson struct {
	ConnectorUuid      *uuid.UUID            `json:"connector_uuid,omitempty"`
	DisplayName        string                `json:"display_name"`
	BaseUrl            string                `json:"base_url"`
	Capabilities       database.Capabilities `json:"capabilities"`
	ReissueCredentials bool                  `json:"reissue_credentials,omitempty"`
}

// RegisterResponseJson is the only place the HMAC secret ever appears.
type RegisterResponseJson struct {
	ConnectorUuid uuid.UUID `json:"connector_uuid"`
	HmacKeyId     string    `json:"hmac_key_id,omitempty"`
	HmacSecret    string    `json:"hmac_secret,omitempty"`
}

type ConnectorJson struct {
	Id           uuid.UUID                `json:"id"`
	DisplayName  string                   `json:"display_name"`
	BaseUrl      string                   `json:"base_url"`
	Capabilities database.Capabilities    `json:"capabilities"`
	Status       database.ConnectorStatus `json:"status"`
	LastSeenAt   *time.Time               `json:"last_seen_at,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

func ConnectorToJson(c *database.Connector) ConnectorJson {
	return ConnectorJson{
		Id:           c.ID,
		DisplayName:  c.DisplayName,
		BaseUrl:      c.BaseUrl,
		Capabilities: c.Capabilities,
		Status:       c.Status,
		LastSeenAt:   c.LastSeenAt,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

type FullScanJson struct {
	Id             uuid.UUID              `json:"id"`
	ConnectorId    uuid.UUID              `json:"connector_id"`
	Filter         string                 `json:"filter,omitempty"`
	State          database.FullScanState `json:"state"`
	TotalItems     int64                  `json:"total_items"`
	CompletedItems int64                  `json:"completed_items"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

func FullScanToJson(f *database.FullScan) FullScanJson {
	return FullScanJson{
		Id:             f.ID,
		ConnectorId:    f.ConnectorId,
		Filter:         f.Filter,
		State:          f.State,
		TotalItems:     f.TotalItems,
		CompletedItems: f.CompletedItems,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

type TriggerFullScanRequestJson struct {
	Filter string `json:"filter,omitempty"`
}

type ConnectorsRoutes struct {
	cfg      config.C
	db       database.DB
	registry registry.R
	enqueuer pipeline.Enqueuer
	state    statestore.S
	signed   gin.HandlerFunc
}

func (r *ConnectorsRoutes) register(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	token := gctx.GetHeader(EnrollmentTokenHeader)
	if err := r.registry.ValidateEnrollmentToken(ctx, token); err != nil {
		// Same opaque rejection for a missing and an invalid token.
		api_common.NewHttpStatusErrorBuilder().
			WithStatusUnauthorized().
			WithResponseMsg("authentication failed").
			WithInternalErr(err).
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return
	}

	var req RegisterRequestJson
	if err := gctx.ShouldBindJSON(&req); err != nil {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusBadRequest().
			WithResponseMsg("invalid request body").
			WithInternalErr(err).
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return
	}

	resp, err := r.registry.Register(ctx, &registry.RegisterRequest{
		ConnectorUuid:      req.ConnectorUuid,
		DisplayName:        req.DisplayName,
		BaseUrl:            req.BaseUrl,
		Capabilities:       req.Capabilities,
		ReissueCredentials: req.ReissueCredentials,
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			api_common.NewHttpStatusErrorBuilder().
				WithStatusNotFound().
				WithResponseMsgf("connector '%s' not found", req.ConnectorUuid).
				BuildStatusError().
				WriteGinResponse(r.cfg, gctx)
			return
		}

		api_common.NewHttpStatusErrorBuilder().
			WithStatusBadRequest().
			WithResponseMsg(err.Error()).
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return
	}

	gctx.PureJSON(http.StatusOK, RegisterResponseJson{
		ConnectorUuid: resp.ConnectorUuid,
		HmacKeyId:     resp.HmacKeyId,
		HmacSecret:    resp.HmacSecret,
	})
}

func (r *ConnectorsRoutes) unregister(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	connectorId, ok := parseUuidParam(r.cfg, gctx, "uuid")
	if !ok {
		return
	}

	// A connector may only unregister itself.
	if hmacsig.MustGetConnectorId(gctx) != connectorId {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusForbidden().
			WithResponseMsg("connector does not own this registration").
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return
	}

	if err := r.registry.Unregister(ctx, connectorId); err != nil {
		writeDbError(r.cfg, gctx, err, "connector", connectorId)
		return
	}

	if err := r.state.Clear(ctx, connectorId); err != nil {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusInternalServerError().
			WithInternalErr(err).
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return
	}

	gctx.Status(http.StatusNoContent)
}

func (r *ConnectorsRoutes) get(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	connectorId, ok := parseUuidParam(r.cfg, gctx, "uuid")
	if !ok {
		return
	}

	c, err := r.registry.Lookup(ctx, connectorId)
	if err != nil {
		writeDbError(r.cfg, gctx, err, "connector", connectorId)
		return
	}

	gctx.PureJSON(http.StatusOK, ConnectorToJson(c))
}

func (r *ConnectorsRoutes) triggerFullScan(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	connectorId, ok := parseUuidParam(r.cfg, gctx, "uuid")
	if !ok {
		return
	}

	var req TriggerFullScanRequestJson
	if gctx.Request.ContentLength > 0 {
		if err := gctx.ShouldBindJSON(&req); err != nil {
			api_common.NewHttpStatusErrorBuilder().
				WithStatusBadRequest().
				WithResponseMsg("invalid request body").
				WithInternalErr(err).
				BuildStatusError().
				WriteGinResponse(r.cfg, gctx)
			return
		}
	}

	fullScan, err := r.enqueuer.TriggerFullScan(ctx, connectorId, req.Filter)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeDbError(r.cfg, gctx, database.ErrNotFound, "connector", connectorId)
			return
		}

		api_common.NewHttpStatusErrorBuilder().
			WithStatusBadGateway().
			WithResponseMsg(err.Error()).
			WithInternalErr(err).
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return
	}

	gctx.PureJSON(http.StatusAccepted, FullScanToJson(fullScan))
}

func (r *ConnectorsRoutes) getFullScan(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	fullScanId, ok := parseUuidParam(r.cfg, gctx, "id")
	if !ok {
		return
	}

	fullScan, err := r.db.GetFullScan(ctx, fullScanId)
	if err != nil {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusInternalServerError().
			WithInternalErr(err).
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return
	}

	if fullScan == nil {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusNotFound().
			WithResponseMsgf("full scan '%s' not found", fullScanId).
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return
	}

	gctx.PureJSON(http.StatusOK, FullScanToJson(fullScan))
}

func (r *ConnectorsRoutes) Register(g gin.IRouter) {
	g.POST("/connectors/register", r.register)
	g.DELETE("/connectors/unregister/:uuid", r.signed, r.unregister)
	g.GET("/connectors/:uuid", r.get)
	g.POST("/connectors/:uuid/full_scan", r.triggerFullScan)
	g.GET("/scan/full_scans/:id", r.getFullScan)
}

func NewConnectorsRoutes(
	cfg config.C,
	db database.DB,
	reg registry.R,
	enqueuer pipeline.Enqueuer,
	state statestore.S,
	signed gin.HandlerFunc,
) *ConnectorsRoutes {
	return &ConnectorsRoutes{
		cfg:      cfg,
		db:       db,
		registry: reg,
		enqueuer: enqueuer,
		state:    state,
		signed:   signed,
	}
}
