package routes

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/logang-di/dsx-connect/internal/api_common"
	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/database"
	"github.com/logang-di/dsx-connect/internal/hmacsig"
	"github.com/logang-di/dsx-connect/internal/pipeline"
	"github.com/logang-di/dsx-connect/internal/results"
)

type ScanRequestJson struct {
	Location   string     `json:"location"`
	Metainfo   string     `json:"metainfo,omitempty"`
	FullScanId *uuid.UUID `json:"full_scan_id,omitempty"`
}

type ScanJobJson struct {
	Id          uuid.UUID              `json:"id"`
	ConnectorId uuid.UUID              `json:"connector_id"`
	FullScanId  *uuid.UUID             `json:"full_scan_id,omitempty"`
	Location    string                 `json:"location"`
	Stage       database.JobStage      `json:"stage"`
	Verdict     database.Verdict       `json:"verdict"`
	ActionTaken string                 `json:"action_taken,omitempty"`
	LastError   string                 `json:"last_error,omitempty"`
	History     database.FailureHistory `json:"history,omitempty"`
	SubmittedAt time.Time              `json:"submitted_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

func ScanJobToJson(j *database.ScanJob) ScanJobJson {
	return ScanJobJson{
		Id:          j.ID,
		ConnectorId: j.ConnectorId,
		FullScanId:  j.FullScanId,
		Location:    j.ItemPath,
		Stage:       j.Stage,
		Verdict:     j.Verdict,
		ActionTaken: j.ActionTaken,
		LastError:   j.LastError,
		History:     j.History,
		SubmittedAt: j.SubmittedAt,
		CompletedAt: j.CompletedAt,
	}
}

type EnqueueDoneRequestJson struct {
	Total int64 `json:"total"`
}

type DeadLetterJson struct {
	Id          uuid.UUID               `json:"id"`
	JobId       uuid.UUID               `json:"job_id"`
	ConnectorId uuid.UUID               `json:"connector_id"`
	Stage       database.JobStage       `json:"stage"`
	Class       database.FailureClass   `json:"class"`
	History     database.FailureHistory `json:"history,omitempty"`
	RequeuedAt  *time.Time              `json:"requeued_at,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
}

func DeadLetterToJson(d *database.DeadLetter) DeadLetterJson {
	return DeadLetterJson{
		Id:          d.ID,
		JobId:       d.JobId,
		ConnectorId: d.ConnectorId,
		Stage:       d.Stage,
		Class:       d.Class,
		History:     d.History,
		RequeuedAt:  d.RequeuedAt,
		CreatedAt:   d.CreatedAt,
	}
}

type ListDeadLettersResponseJson struct {
	Items []DeadLetterJson `json:"items"`
}

type ScanResultJson struct {
	Id          uuid.UUID        `json:"id"`
	JobId       uuid.UUID        `json:"job_id"`
	ConnectorId uuid.UUID        `json:"connector_id"`
	Location    string           `json:"location"`
	Verdict     database.Verdict `json:"verdict"`
	Action      string           `json:"action,omitempty"`
	Status      string           `json:"status"`
	ScannedAt   time.Time        `json:"scanned_at"`
}

func ScanResultToJson(r *database.ScanResult) ScanResultJson {
	return ScanResultJson{
		Id:          r.ID,
		JobId:       r.JobId,
		ConnectorId: r.ConnectorId,
		Location:    r.ItemPath,
		Verdict:     r.Verdict,
		Action:      r.Action,
		Status:      r.Status,
		ScannedAt:   r.ScannedAt,
	}
}

type ListScanResultsResponseJson struct {
	Items []ScanResultJson `json:"items"`
}

type ScanRoutes struct {
	cfg      config.C
	db       database.DB
	enqueuer pipeline.Enqueuer
	results  results.R
	signed   gin.HandlerFunc
}

func (r *ScanRoutes) submit(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	connectorId := hmacsig.MustGetConnectorId(gctx)

	var req ScanRequestJson
	if err := gctx.ShouldBindJSON(&req); err != nil {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusBadRequest().
			WithResponseMsg("invalid request body").
			WithInternalErr(err).
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return
	}

	job, err := r.enqueuer.SubmitScanRequest(ctx, connectorId, &pipeline.ScanRequest{
		Location:   req.Location,
		Metainfo:   req.Metainfo,
		FullScanId: req.FullScanId,
	})
	if err != nil {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusBadRequest().
			WithResponseMsg(err.Error()).
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return
	}

	gctx.PureJSON(http.StatusAccepted, ScanJobToJson(job))
}

func (r *ScanRoutes) enqueueDone(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	fullScanId, ok := parseUuidParam(r.cfg, gctx, "job_id")
	if !ok {
		return
	}

	var req EnqueueDoneRequestJson
	if err := gctx.ShouldBindJSON(&req); err != nil {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusBadRequest().
			WithResponseMsg("invalid request body").
			WithInternalErr(err).
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return
	}

	if req.Total < 0 {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusBadRequest().
			WithResponseMsg("total must not be negative").
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return
	}

	// Only the connector running the enumeration may close it.
	fullScan, err := r.db.GetFullScan(ctx, fullScanId)
	if err != nil {
		writeDbError(r.cfg, gctx, err, "full scan", fullScanId)
		return
	}

	if fullScan == nil {
		writeDbError(r.cfg, gctx, database.ErrNotFound, "full scan", fullScanId)
		return
	}

	if fullScan.ConnectorId != hmacsig.MustGetConnectorId(gctx) {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusForbidden().
			WithResponseMsg("connector does not own this full scan").
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return
	}

	if err := r.enqueuer.ReportEnqueueDone(ctx, fullScanId, req.Total); err != nil {
		writeDbError(r.cfg, gctx, err, "full scan", fullScanId)
		return
	}

	gctx.Status(http.StatusNoContent)
}

func (r *ScanRoutes) getJob(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	jobId, ok := parseUuidParam(r.cfg, gctx, "job_id")
	if !ok {
		return
	}

	job, err := r.db.GetScanJob(ctx, jobId)
	if err != nil {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusInternalServerError().
			WithInternalErr(err).
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return
	}

	if job == nil {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusNotFound().
			WithResponseMsgf("scan job '%s' not found", jobId).
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return
	}

	gctx.PureJSON(http.StatusOK, ScanJobToJson(job))
}

func (r *ScanRoutes) listDeadLetters(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	limit, ok := parseLimitQuery(r.cfg, gctx, 100)
	if !ok {
		return
	}

	dls, err := r.db.ListDeadLetters(ctx, limit)
	if err != nil {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusInternalServerError().
			WithInternalErr(err).
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return
	}

	resp := ListDeadLettersResponseJson{Items: make([]DeadLetterJson, 0, len(dls))}
	for _, d := range dls {
		resp.Items = append(resp.Items, DeadLetterToJson(d))
	}

	gctx.PureJSON(http.StatusOK, resp)
}

func (r *ScanRoutes) requeueDeadLetter(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	deadLetterId, ok := parseUuidParam(r.cfg, gctx, "id")
	if !ok {
		return
	}

	if err := r.enqueuer.RequeueDeadLetter(ctx, deadLetterId); err != nil {
		writeDbError(r.cfg, gctx, err, "dead letter", deadLetterId)
		return
	}

	gctx.Status(http.StatusNoContent)
}

func (r *ScanRoutes) listResults(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	limit, ok := parseLimitQuery(r.cfg, gctx, 100)
	if !ok {
		return
	}

	var connectorId *uuid.UUID
	if raw := gctx.Query("connector_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			api_common.NewHttpStatusErrorBuilder().
				WithStatusBadRequest().
				WithResponseMsg("failed to parse connector_id as UUID").
				BuildStatusError().
				WriteGinResponse(r.cfg, gctx)
			return
		}
		connectorId = &id
	}

	rs, err := r.results.List(ctx, connectorId, limit)
	if err != nil {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusInternalServerError().
			WithInternalErr(err).
			BuildStatusError().
			WriteGinResponse(r.cfg, gctx)
		return
	}

	resp := ListScanResultsResponseJson{Items: make([]ScanResultJson, 0, len(rs))}
	for _, result := range rs {
		resp.Items = append(resp.Items, ScanResultToJson(result))
	}

	gctx.PureJSON(http.StatusOK, resp)
}

func parseLimitQuery(cfg config.C, gctx *gin.Context, fallback int) (int, bool) {
	raw := gctx.Query("limit")
	if raw == "" {
		return fallback, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		api_common.NewHttpStatusErrorBuilder().
			WithStatusBadRequest().
			WithResponseMsg("limit must be a positive integer").
			BuildStatusError().
			WriteGinResponse(cfg, gctx)
		return 0, false
	}

	return limit, true
}

func (r *ScanRoutes) Register(g gin.IRouter) {
	g.POST("/scan/request", r.signed, r.submit)
	g.POST("/scan/jobs/:job_id/enqueue_done", r.signed, r.enqueueDone)
	g.GET("/scan/jobs/:job_id", r.getJob)
	g.GET("/scan/results", r.listResults)
	g.GET("/scan/deadletters", r.listDeadLetters)
	g.POST("/scan/deadletters/:id/requeue", r.requeueDeadLetter)
}

func NewScanRoutes(
	cfg config.C,
	db database.DB,
	enqueuer pipeline.Enqueuer,
	res results.R,
	signed gin.HandlerFunc,
) *ScanRoutes {
	return &ScanRoutes{
		cfg:      cfg,
		db:       db,
		enqueuer: enqueuer,
		results:  res,
		signed:   signed,
	}
}
