package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"

	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/connectorapi"
	"github.com/logang-di/dsx-connect/internal/database"
	"github.com/logang-di/dsx-connect/internal/dcasynq"
	"github.com/logang-di/dsx-connect/internal/dcctx"
	"github.com/logang-di/dsx-connect/internal/notify"
	"github.com/logang-di/dsx-connect/internal/results"
	"github.com/logang-di/dsx-connect/internal/scanner"
)

// TaskRegistrar interface for registering tasks and providing cron configs.
type TaskRegistrar interface {
	RegisterTasks(mux *asynq.ServeMux)
	GetCronTasks() []*asynq.PeriodicTaskConfig
}

type taskHandler struct {
	cfg      config.C
	db       database.DB
	asynq    dcasynq.Client
	clients  connectorapi.F
	scanner  scanner.S
	results  results.R
	notifier notify.N
	logger   *slog.Logger
}

// NewTaskHandler creates the handler set for the four pipeline stage queues.
func NewTaskHandler(
	cfg config.C,
	db database.DB,
	asynqClient dcasynq.Client,
	clients connectorapi.F,
	sc scanner.S,
	res results.R,
	notifier notify.N,
	logger *slog.Logger,
) TaskRegistrar {
	return &taskHandler{
		cfg:      cfg,
		db:       db,
		asynq:    asynqClient,
		clients:  clients,
		scanner:  sc,
		results:  res,
		notifier: notifier,
		logger:   logger,
	}
}

func (th *taskHandler) RegisterTasks(mux *asynq.ServeMux) {
	mux.HandleFunc(taskTypeScan, th.handleScan)
	mux.HandleFunc(taskTypeVerdictAction, th.handleVerdictAction)
	mux.HandleFunc(taskTypeResult, th.handleResult)
	mux.HandleFunc(taskTypeNotify, th.handleNotify)
}

// The pipeline has no periodic tasks of its own; sweeps live with the registry.
func (th *taskHandler) GetCronTasks() []*asynq.PeriodicTaskConfig {
	return nil
}

// classify buckets an error from a connector or scanner call.
func classify(err error) database.FailureClass {
	switch {
	case scanner.IsUnavailable(err):
		return database.FailureClassScannerUnavailable
	case connectorapi.IsAuthentication(err):
		return database.FailureClassAuthentication
	case connectorapi.IsUnavailable(err):
		return database.FailureClassConnectorUnavailable
	default:
		return database.FailureClassMalformedPayload
	}
}

func (th *taskHandler) budgetFor(class database.FailureClass) (int, bool) {
	p := th.cfg.GetRoot().Pipeline
	switch class {
	case database.FailureClassConnectorUnavailable:
		return p.MaxConnectorRetries(), true
	case database.FailureClassScannerUnavailable:
		return p.MaxScannerRetries(), true
	default:
		return 0, false
	}
}

// failJob applies the retry taxonomy to a stage failure. Transient classes burn their
// budget and come back through asynq; everything else dead-letters immediately. The
// returned error is what the asynq handler must return.
func (th *taskHandler) failJob(ctx context.Context, job *database.ScanJob, task *asynq.Task, class database.FailureClass, cause error) error {
	budget, budgeted := th.budgetFor(class)

	if budgeted {
		count, err := th.db.IncrementJobAttempts(ctx, job.ID, class, cause.Error())
		if err != nil {
			th.logger.Error("failed to record job attempt", "job_id", job.ID, "error", err)
			return cause
		}

		if count < budget {
			th.logger.Warn("stage failed; will retry",
				"job_id", job.ID,
				"class", class,
				"attempt", count,
				"budget", budget,
				"error", cause)
			return cause
		}
	}

	return th.deadLetter(ctx, job, task, class, cause)
}

// deadLetter moves the job to its terminal failed state and captures everything an
// operator needs to requeue it.
func (th *taskHandler) deadLetter(ctx context.Context, job *database.ScanJob, task *asynq.Task, class database.FailureClass, cause error) error {
	if err := th.db.SetJobLastError(ctx, job.ID, cause.Error()); err != nil {
		th.logger.Error("failed to record job error", "job_id", job.ID, "error", err)
	}

	// Re-read for the accumulated failure history and current stage.
	current, err := th.db.GetScanJob(ctx, job.ID)
	if err != nil || current == nil {
		th.logger.Error("failed to reload job for dead letter", "job_id", job.ID, "error", err)
		current = job
	}

	history := current.History
	if len(history) == 0 || history[len(history)-1].Error != cause.Error() {
		history = append(history, database.FailureAttempt{
			Class: class,
			Error: cause.Error(),
			At:    dcctx.GetClock(ctx).Now().UTC(),
		})
	}

	captured, merr := json.Marshal(deadLetterPayload{
		TaskType: task.Type(),
		Payload:  task.Payload(),
	})
	if merr != nil {
		return errors.Wrap(merr, "failed to capture dead letter payload")
	}

	dl := &database.DeadLetter{
		ID:          dcctx.GetUuidGenerator(ctx).New(),
		JobId:       job.ID,
		ConnectorId: job.ConnectorId,
		Stage:       current.Stage,
		Class:       class,
		History:     history,
		Payload:     captured,
	}

	if err := th.db.CreateDeadLetter(ctx, dl); err != nil {
		th.logger.Error("failed to persist dead letter", "job_id", job.ID, "error", err)
		return errors.Wrap(err, "failed to persist dead letter")
	}

	if err := th.db.AdvanceJobStage(ctx, job.ID, current.Stage, database.JobStageFailedPermanent); err != nil {
		th.logger.Error("failed to mark job permanently failed", "job_id", job.ID, "error", err)
	}

	th.logger.Error("job dead-lettered",
		"job_id", job.ID,
		"dead_letter_id", dl.ID,
		"class", class,
		"stage", current.Stage,
		"error", cause)

	return errors.Wrapf(asynq.SkipRetry, "job %s dead-lettered: %v", job.ID, cause)
}

func (th *taskHandler) handleScan(ctx context.Context, task *asynq.Task) error {
	var p scanTaskPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return errors.Wrapf(asynq.SkipRetry, "malformed scan payload: %v", err)
	}

	job, err := th.db.GetScanJob(ctx, p.JobId)
	if err != nil {
		return err
	}
	if job == nil {
		return errors.Wrapf(asynq.SkipRetry, "job %s does not exist", p.JobId)
	}

	switch job.Stage {
	case database.JobStageSubmitted:
		if err := th.db.AdvanceJobStage(ctx, job.ID, database.JobStageSubmitted, database.JobStageScanning); err != nil {
			if errors.Is(err, database.ErrStaleStage) {
				// Redelivered after another worker advanced the job.
				return nil
			}
			return err
		}
	case database.JobStageScanning:
		// Redelivered mid-stage; the scan below is idempotent, run it again.
	default:
		return nil
	}

	connector, err := th.db.GetConnector(ctx, job.ConnectorId)
	if err != nil {
		return err
	}
	if connector == nil {
		return th.deadLetter(ctx, job, task, database.FailureClassMalformedPayload,
			errors.Errorf("connector %s does not exist", job.ConnectorId))
	}

	outcome, err := th.scanItem(ctx, connector, job)
	if err != nil {
		return th.failJob(ctx, job, task, classify(err), err)
	}

	if err := th.db.SetJobVerdict(ctx, job.ID, outcome.Verdict); err != nil {
		return err
	}

	if err := th.db.AdvanceJobStage(ctx, job.ID, database.JobStageScanning, database.JobStageVerdictPending); err != nil {
		if errors.Is(err, database.ErrStaleStage) {
			return nil
		}
		return err
	}

	verdict := results.VerdictInfo{
		Outcome:        outcome.Verdict,
		Classification: outcome.Classification,
		Reason:         outcome.Reason,
	}

	// Benign verdicts and a nothing policy skip straight to the result stage.
	policy := th.cfg.GetRoot().ItemAction
	if outcome.Verdict == database.VerdictMalicious && policy != config.ItemActionNothing {
		if err := th.db.AdvanceJobStage(ctx, job.ID, database.JobStageVerdictPending, database.JobStageActionPending); err != nil && !errors.Is(err, database.ErrStaleStage) {
			return err
		}

		_, err = th.asynq.EnqueueContext(ctx, newVerdictActionTask(actionTaskPayload{JobId: job.ID, Verdict: verdict}))
		return err
	}

	if err := th.db.AdvanceJobStage(ctx, job.ID, database.JobStageVerdictPending, database.JobStageResultPending); err != nil && !errors.Is(err, database.ErrStaleStage) {
		return err
	}

	_, err = th.asynq.EnqueueContext(ctx, newResultTask(resultTaskPayload{JobId: job.ID, Verdict: verdict}))
	return err
}

// scanItem streams the item from the connector into the scanner.
func (th *taskHandler) scanItem(ctx context.Context, connector *database.Connector, job *database.ScanJob) (*scanner.ScanOutcome, error) {
	client, err := th.clients.ForConnector(ctx, connector)
	if err != nil {
		return nil, errors.Wrapf(connectorapi.ErrAuthentication, "no usable credential: %v", err)
	}

	content, err := client.ReadFile(ctx, connectorapi.ReadFileRequest{
		Location: job.ItemPath,
		Metainfo: job.Metainfo,
	})
	if err != nil {
		return nil, err
	}
	defer content.Close()

	outcome, err := th.scanner.Scan(ctx, job.ItemPath, content)
	if err != nil {
		return nil, err
	}

	// Drain so the connector connection can be reused.
	_, _ = io.Copy(io.Discard, content)

	return outcome, nil
}

func (th *taskHandler) handleVerdictAction(ctx context.Context, task *asynq.Task) error {
	var p actionTaskPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return errors.Wrapf(asynq.SkipRetry, "malformed verdict action payload: %v", err)
	}

	job, err := th.db.GetScanJob(ctx, p.JobId)
	if err != nil {
		return err
	}
	if job == nil {
		return errors.Wrapf(asynq.SkipRetry, "job %s does not exist", p.JobId)
	}

	if job.Stage != database.JobStageActionPending {
		return nil
	}

	connector, err := th.db.GetConnector(ctx, job.ConnectorId)
	if err != nil {
		return err
	}
	if connector == nil {
		return th.deadLetter(ctx, job, task, database.FailureClassMalformedPayload,
			errors.Errorf("connector %s does not exist", job.ConnectorId))
	}

	policy := th.cfg.GetRoot().ItemAction

	var action *connectorapi.ItemActionResult
	client, err := th.clients.ForConnector(ctx, connector)
	if err == nil {
		action, err = client.ItemAction(ctx, connectorapi.ItemActionRequest{
			JobId:    job.ID,
			Location: job.ItemPath,
			Metainfo: job.Metainfo,
			Action:   policy,
			Verdict:  p.Verdict.Outcome,
			Reason:   p.Verdict.Reason,
		})
	}

	if err != nil {
		if connectorapi.IsUnavailable(err) {
			return th.failJob(ctx, job, task, database.FailureClassConnectorUnavailable, err)
		}

		// Remediation is often not idempotent; anything else completes the job with a
		// failed action rather than retrying.
		th.logger.Warn("item action failed; completing job flagged",
			"job_id", job.ID,
			"error", err)

		action = &connectorapi.ItemActionResult{
			JobId:   job.ID,
			Action:  policy,
			Outcome: connectorapi.ActionOutcomeFailed,
			Detail:  err.Error(),
		}

		if serr := th.db.SetJobLastError(ctx, job.ID, err.Error()); serr != nil {
			th.logger.Error("failed to record job error", "job_id", job.ID, "error", serr)
		}
	}

	if err := th.db.SetJobAction(ctx, job.ID, string(action.Action)); err != nil {
		return err
	}

	if err := th.db.AdvanceJobStage(ctx, job.ID, database.JobStageActionPending, database.JobStageResultPending); err != nil {
		if errors.Is(err, database.ErrStaleStage) {
			return nil
		}
		return err
	}

	_, err = th.asynq.EnqueueContext(ctx, newResultTask(resultTaskPayload{
		JobId:   job.ID,
		Verdict: p.Verdict,
		Action:  action,
	}))
	return err
}

func (th *taskHandler) handleResult(ctx context.Context, task *asynq.Task) error {
	var p resultTaskPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return errors.Wrapf(asynq.SkipRetry, "malformed result payload: %v", err)
	}

	job, err := th.db.GetScanJob(ctx, p.JobId)
	if err != nil {
		return err
	}
	if job == nil {
		return errors.Wrapf(asynq.SkipRetry, "job %s does not exist", p.JobId)
	}

	if job.Stage != database.JobStageResultPending {
		return nil
	}

	// A redelivery after a crash between persist and enqueue must not double-insert.
	existing, err := th.results.Get(ctx, job.ID)
	if err != nil {
		return err
	}

	if existing == nil {
		if _, err := th.results.Record(ctx, job, p.Verdict, p.Action); err != nil {
			return err
		}
	}

	_, err = th.asynq.EnqueueContext(ctx, newNotifyTask(notifyTaskPayload{
		JobId:   job.ID,
		Verdict: p.Verdict,
		Action:  p.Action,
	}))
	return err
}

func (th *taskHandler) handleNotify(ctx context.Context, task *asynq.Task) error {
	var p notifyTaskPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return errors.Wrapf(asynq.SkipRetry, "malformed notify payload: %v", err)
	}

	job, err := th.db.GetScanJob(ctx, p.JobId)
	if err != nil {
		return err
	}
	if job == nil {
		return errors.Wrapf(asynq.SkipRetry, "job %s does not exist", p.JobId)
	}

	if job.Stage != database.JobStageResultPending {
		// Already published by a previous delivery.
		return nil
	}

	if err := th.notifier.Publish(ctx, results.BuildEvent(job, p.Verdict, p.Action)); err != nil {
		return err
	}

	if err := th.db.AdvanceJobStage(ctx, job.ID, database.JobStageResultPending, database.JobStageNotified); err != nil {
		if errors.Is(err, database.ErrStaleStage) {
			return nil
		}
		return err
	}

	if err := th.db.AdvanceJobStage(ctx, job.ID, database.JobStageNotified, database.JobStageCompleted); err != nil && !errors.Is(err, database.ErrStaleStage) {
		return err
	}

	if job.FullScanId != nil {
		if err := th.db.IncrementFullScanCompleted(ctx, *job.FullScanId); err != nil {
			th.logger.Error("failed to count full scan completion",
				"job_id", job.ID,
				"full_scan_id", *job.FullScanId,
				"error", err)
		}
	}

	th.logger.Info("job completed",
		"job_id", job.ID,
		"verdict", p.Verdict.Outcome,
		"connector_id", job.ConnectorId)

	return nil
}
