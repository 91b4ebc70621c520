package registry

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/connectorapi"
	"github.com/logang-di/dsx-connect/internal/database"
)

const (
	taskTypeLivenessProbe = "registry:liveness_probe"
	taskTypeNonceCleanup  = "registry:cleanup_nonces"
)

func GetLivenessProbeTask() *asynq.Task {
	return asynq.NewTask(
		taskTypeLivenessProbe,
		nil,
		asynq.MaxRetry(0),
	)
}

func GetNonceCleanupTask() *asynq.Task {
	return asynq.NewTask(
		taskTypeNonceCleanup,
		nil,
		asynq.MaxRetry(0),
	)
}

// TaskRegistrar interface for registering tasks and providing cron configs.
type TaskRegistrar interface {
	RegisterTasks(mux *asynq.ServeMux)
	GetCronTasks() []*asynq.PeriodicTaskConfig
}

type taskHandler struct {
	cfg     config.C
	db      database.DB
	clients connectorapi.F
	logger  *slog.Logger
}

// NewTaskHandler creates the task handler for the connector liveness sweep.
func NewTaskHandler(
	cfg config.C,
	db database.DB,
	clients connectorapi.F,
	logger *slog.Logger,
) TaskRegistrar {
	return &taskHandler{
		cfg:     cfg,
		db:      db,
		clients: clients,
		logger:  logger,
	}
}

func (th *taskHandler) RegisterTasks(mux *asynq.ServeMux) {
	mux.HandleFunc(taskTypeLivenessProbe, th.livenessProbe)
	mux.HandleFunc(taskTypeNonceCleanup, th.cleanupNonces)
}

func (th *taskHandler) GetCronTasks() []*asynq.PeriodicTaskConfig {
	return []*asynq.PeriodicTaskConfig{
		{
			Cronspec: th.cfg.GetRoot().Registry.LivenessSchedule(),
			Task:     GetLivenessProbeTask(),
		},
		{
			Cronspec: th.cfg.GetRoot().Registry.NonceCleanupSchedule(),
			Task:     GetNonceCleanupTask(),
		},
	}
}

// cleanupNonces drops signing nonces whose retention window has passed so the table
// does not grow without bound.
func (th *taskHandler) cleanupNonces(ctx context.Context, task *asynq.Task) error {
	deleted, err := th.db.DeleteExpiredNonces(ctx)
	if err != nil {
		th.logger.Error("nonce cleanup failed", "error", err)
		return err
	}

	if deleted > 0 {
		th.logger.Debug("expired nonces deleted", "count", deleted)
	}

	return nil
}

// livenessProbe sweeps every enrolled connector with a repo_check call. A probe failure
// only moves READY to DEGRADED; a success moves REGISTERED or DEGRADED to READY.
func (th *taskHandler) livenessProbe(ctx context.Context, task *asynq.Task) error {
	connectors, err := th.db.ListConnectors(ctx,
		database.ConnectorStatusRegistered,
		database.ConnectorStatusReady,
		database.ConnectorStatusDegraded,
	)
	if err != nil {
		th.logger.Error("liveness sweep failed to list connectors", "error", err)
		return err
	}

	for _, c := range connectors {
		th.probeOne(ctx, c)
	}

	return nil
}

func (th *taskHandler) probeOne(ctx context.Context, c *database.Connector) {
	probeCtx, cancel := context.WithTimeout(ctx, th.cfg.GetRoot().Registry.ProbeTimeout())
	defer cancel()

	client, err := th.clients.ForConnector(probeCtx, c)
	if err == nil {
		err = client.RepoCheck(probeCtx)
	}

	if err != nil {
		if c.Status == database.ConnectorStatusReady {
			th.logger.Warn("connector failed liveness probe",
				"connector_id", c.ID,
				"error", err)

			if serr := th.db.SetConnectorStatus(ctx, c.ID, database.ConnectorStatusDegraded); serr != nil {
				th.logger.Error("failed to mark connector degraded", "connector_id", c.ID, "error", serr)
			}
		}
		return
	}

	if terr := th.db.TouchConnectorLastSeen(ctx, c.ID); terr != nil {
		th.logger.Error("failed to touch connector last seen", "connector_id", c.ID, "error", terr)
	}

	if c.Status != database.ConnectorStatusReady {
		th.logger.Info("connector is ready",
			"connector_id", c.ID,
			"previous_status", c.Status)

		if serr := th.db.SetConnectorStatus(ctx, c.ID, database.ConnectorStatusReady); serr != nil {
			th.logger.Error("failed to mark connector ready", "connector_id", c.ID, "error", serr)
		}
	}
}
