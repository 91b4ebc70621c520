package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/connectorapi"
	"github.com/logang-di/dsx-connect/internal/database"
	"github.com/logang-di/dsx-connect/internal/dcasynq"
	"github.com/logang-di/dsx-connect/internal/dcctx"
	"github.com/logang-di/dsx-connect/internal/filter"
)

// ScanRequest is one item submitted by a connector for scanning.
type ScanRequest struct {
	Location string `json:"location"`
	Metainfo string `json:"metainfo,omitempty"`

	// FullScanId ties the item to a full-scan sweep for progress bookkeeping.
	FullScanId *uuid.UUID `json:"full_scan_id,omitempty"`
}

// Enqueuer is the submission side of the pipeline: it creates durable job state and
// feeds the first queue. The worker side drains the queues.
type Enqueuer interface {
	// SubmitScanRequest creates a ScanJob and enqueues the scan stage.
	SubmitScanRequest(ctx context.Context, connectorId uuid.UUID, req *ScanRequest) (*database.ScanJob, error)

	// ReportEnqueueDone records the total enumerated count for a full scan, moving it
	// from "enumerating" to "processing".
	ReportEnqueueDone(ctx context.Context, fullScanId uuid.UUID, total int64) error

	// TriggerFullScan validates the filter, creates the FullScan record, and asks the
	// connector to start enumerating.
	TriggerFullScan(ctx context.Context, connectorId uuid.UUID, filterExpr string) (*database.FullScan, error)

	// RequeueDeadLetter re-enqueues a dead-lettered job exactly once, resetting the job
	// to the stage it died in.
	RequeueDeadLetter(ctx context.Context, deadLetterId uuid.UUID) error
}

type enqueuer struct {
	cfg     config.C
	db      database.DB
	asynq   dcasynq.Client
	clients connectorapi.F
	logger  *slog.Logger
}

func NewEnqueuer(
	cfg config.C,
	db database.DB,
	asynqClient dcasynq.Client,
	clients connectorapi.F,
	logger *slog.Logger,
) Enqueuer {
	return &enqueuer{
		cfg:     cfg,
		db:      db,
		asynq:   asynqClient,
		clients: clients,
		logger:  logger,
	}
}

func (e *enqueuer) SubmitScanRequest(ctx context.Context, connectorId uuid.UUID, req *ScanRequest) (*database.ScanJob, error) {
	if req == nil || req.Location == "" {
		return nil, errors.New("location is required")
	}

	job := &database.ScanJob{
		ID:          dcctx.GetUuidGenerator(ctx).New(),
		ConnectorId: connectorId,
		FullScanId:  req.FullScanId,
		ItemPath:    req.Location,
		Metainfo:    req.Metainfo,
		Stage:       database.JobStageSubmitted,
		Verdict:     database.VerdictPending,
		SubmittedAt: dcctx.GetClock(ctx).Now().UTC(),
	}

	if err := e.db.CreateScanJob(ctx, job); err != nil {
		return nil, errors.Wrap(err, "failed to persist scan job")
	}

	if _, err := e.asynq.EnqueueContext(ctx, newScanTask(scanTaskPayload{JobId: job.ID})); err != nil {
		return nil, errors.Wrap(err, "failed to enqueue scan task")
	}

	e.logger.Debug("scan job submitted",
		"job_id", job.ID,
		"connector_id", connectorId,
		"location", req.Location)

	return job, nil
}

func (e *enqueuer) ReportEnqueueDone(ctx context.Context, fullScanId uuid.UUID, total int64) error {
	if total < 0 {
		return errors.New("total must not be negative")
	}

	if err := e.db.SetFullScanTotal(ctx, fullScanId, total); err != nil {
		return err
	}

	e.logger.Info("full scan enumeration complete",
		"full_scan_id", fullScanId,
		"total_items", total)

	return nil
}

func (e *enqueuer) TriggerFullScan(ctx context.Context, connectorId uuid.UUID, filterExpr string) (*database.FullScan, error) {
	// A malformed filter fails here, before anything durable happens.
	if _, err := filter.Parse(filterExpr); err != nil {
		return nil, err
	}

	connector, err := e.db.GetConnector(ctx, connectorId)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load connector")
	}

	if connector == nil || connector.Status == database.ConnectorStatusUnregistered {
		return nil, database.ErrNotFound
	}

	fullScan := &database.FullScan{
		ID:          dcctx.GetUuidGenerator(ctx).New(),
		ConnectorId: connectorId,
		Filter:      filterExpr,
		State:       database.FullScanStateEnumerating,
	}

	if err := e.db.CreateFullScan(ctx, fullScan); err != nil {
		return nil, errors.Wrap(err, "failed to persist full scan")
	}

	client, err := e.clients.ForConnector(ctx, connector)
	if err == nil {
		err = client.TriggerFullScan(ctx, connectorapi.FullScanRequest{
			FullScanId: fullScan.ID,
			Filter:     filterExpr,
		})
	}
	if err != nil {
		if serr := e.db.SetFullScanState(ctx, fullScan.ID, database.FullScanStateFailed); serr != nil {
			e.logger.Error("failed to mark full scan failed", "full_scan_id", fullScan.ID, "error", serr)
		}
		return nil, errors.Wrap(err, "failed to dispatch full scan to connector")
	}

	e.logger.Info("full scan triggered",
		"full_scan_id", fullScan.ID,
		"connector_id", connectorId,
		"filter", filterExpr)

	return fullScan, nil
}

func (e *enqueuer) RequeueDeadLetter(ctx context.Context, deadLetterId uuid.UUID) error {
	dl, err := e.db.GetDeadLetter(ctx, deadLetterId)
	if err != nil {
		return errors.Wrap(err, "failed to load dead letter")
	}

	if dl == nil {
		return database.ErrNotFound
	}

	var captured deadLetterPayload
	if err := json.Unmarshal(dl.Payload, &captured); err != nil {
		return errors.Wrap(err, "dead letter payload is unreadable")
	}

	task, ok := taskForType(captured.TaskType, captured.Payload)
	if !ok {
		return errors.Errorf("dead letter captured unknown task type '%s'", captured.TaskType)
	}

	// The requeued-at guard makes requeue once-only even under concurrent operators.
	if err := e.db.MarkDeadLetterRequeued(ctx, deadLetterId); err != nil {
		return err
	}

	if err := e.db.ResetJobForRequeue(ctx, dl.JobId, resumeStageForTaskType[captured.TaskType]); err != nil {
		return errors.Wrap(err, "failed to reset job for requeue")
	}

	if _, err := e.asynq.EnqueueContext(ctx, task); err != nil {
		return errors.Wrap(err, "failed to enqueue requeued task")
	}

	e.logger.Info("dead letter requeued",
		"dead_letter_id", deadLetterId,
		"job_id", dl.JobId,
		"task_type", captured.TaskType)

	return nil
}
