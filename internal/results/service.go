package results

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/connectorapi"
	"github.com/logang-di/dsx-connect/internal/database"
	"github.com/logang-di/dsx-connect/internal/dcctx"
)

// ScanRequestInfo echoes the original submission in the emitted event.
type ScanRequestInfo struct {
	ConnectorId uuid.UUID `json:"connector_id"`
	Location    string    `json:"location"`
	Metainfo    string    `json:"metainfo,omitempty"`
}

// VerdictInfo is the scanner's classification in the emitted event.
type VerdictInfo struct {
	Outcome        database.Verdict `json:"outcome"`
	Classification string           `json:"classification,omitempty"`
	Reason         string           `json:"reason,omitempty"`
}

// Event is the structured record emitted per completed job. This shape is the external
// contract for SIEM ingestion.
type Event struct {
	Event       string                         `json:"event"`
	JobId       uuid.UUID                      `json:"job_id"`
	Status      string                         `json:"status"`
	ScanRequest ScanRequestInfo                `json:"scan_request"`
	Verdict     VerdictInfo                    `json:"verdict"`
	ItemAction  *connectorapi.ItemActionResult `json:"item_action,omitempty"`
}

// R persists scan results and forwards them to the configured sink.
type R interface {
	// Record persists the result (pruning to the retention cap) and emits the event.
	// Sink failures are logged but never returned; persistence failures are returned.
	Record(ctx context.Context, job *database.ScanJob, verdict VerdictInfo, action *connectorapi.ItemActionResult) (*database.ScanResult, error)

	// Get returns the persisted record for a job.
	Get(ctx context.Context, jobId uuid.UUID) (*database.ScanResult, error)

	// List returns recent records, optionally scoped to a connector.
	List(ctx context.Context, connectorId *uuid.UUID, limit int) ([]*database.ScanResult, error)
}

type service struct {
	cfg     config.C
	db      database.DB
	emitter Emitter
	logger  *slog.Logger
}

func NewService(cfg config.C, db database.DB, emitter Emitter, logger *slog.Logger) R {
	return &service{
		cfg:     cfg,
		db:      db,
		emitter: emitter,
		logger:  logger,
	}
}

// StatusFor renders the human-readable outcome persisted with each record.
func StatusFor(verdict database.Verdict, action *connectorapi.ItemActionResult) string {
	if action == nil {
		switch verdict {
		case database.VerdictMalicious:
			return "malicious, no action taken"
		case database.VerdictError:
			return "scan error"
		default:
			return "benign"
		}
	}

	switch action.Outcome {
	case connectorapi.ActionOutcomeSucceeded:
		return "action succeeded"
	case connectorapi.ActionOutcomeNotImplemented:
		return "action not implemented"
	default:
		return "action failed"
	}
}

func (s *service) Record(ctx context.Context, job *database.ScanJob, verdict VerdictInfo, action *connectorapi.ItemActionResult) (*database.ScanResult, error) {
	if job == nil {
		return nil, errors.New("job is required")
	}

	status := StatusFor(verdict.Outcome, action)

	record := &database.ScanResult{
		ID:          dcctx.GetUuidGenerator(ctx).New(),
		JobId:       job.ID,
		ConnectorId: job.ConnectorId,
		ItemPath:    job.ItemPath,
		Verdict:     verdict.Outcome,
		Status:      status,
		ScannedAt:   dcctx.GetClock(ctx).Now().UTC(),
	}
	if action != nil {
		record.Action = string(action.Action)
	}
	if job.ScannedAt != nil {
		record.ScannedAt = *job.ScannedAt
	}

	if err := s.db.InsertScanResult(ctx, record, s.cfg.GetRoot().Results.Retention()); err != nil {
		return nil, errors.Wrap(err, "failed to persist scan result")
	}

	// Best effort. The persisted record is the durable copy; the emitter already
	// logged the failure detail.
	_ = s.emitter.Emit(ctx, BuildEvent(job, verdict, action))

	return record, nil
}

// BuildEvent renders the external event for a job. The same shape goes to the syslog
// sink and the notification fan-out.
func BuildEvent(job *database.ScanJob, verdict VerdictInfo, action *connectorapi.ItemActionResult) *Event {
	return &Event{
		Event:  "scan_result",
		JobId:  job.ID,
		Status: StatusFor(verdict.Outcome, action),
		ScanRequest: ScanRequestInfo{
			ConnectorId: job.ConnectorId,
			Location:    job.ItemPath,
			Metainfo:    job.Metainfo,
		},
		Verdict:    verdict,
		ItemAction: action,
	}
}

func (s *service) Get(ctx context.Context, jobId uuid.UUID) (*database.ScanResult, error) {
	return s.db.GetScanResultForJob(ctx, jobId)
}

func (s *service) List(ctx context.Context, connectorId *uuid.UUID, limit int) ([]*database.ScanResult, error) {
	return s.db.ListScanResults(ctx, connectorId, limit)
}
