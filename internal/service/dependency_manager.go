package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"

	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/connectorapi"
	"github.com/logang-di/dsx-connect/internal/database"
	"github.com/logang-di/dsx-connect/internal/dcasynq"
	"github.com/logang-di/dsx-connect/internal/dclog"
	"github.com/logang-di/dsx-connect/internal/dcredis"
	"github.com/logang-di/dsx-connect/internal/encrypt"
	"github.com/logang-di/dsx-connect/internal/hmacsig"
	"github.com/logang-di/dsx-connect/internal/notify"
	"github.com/logang-di/dsx-connect/internal/pipeline"
	"github.com/logang-di/dsx-connect/internal/registry"
	"github.com/logang-di/dsx-connect/internal/results"
	"github.com/logang-di/dsx-connect/internal/scanner"
	"github.com/logang-di/dsx-connect/internal/statestore"
)

// DependencyManager wires the service graph lazily so each binary only pays for what it
// touches. Getters panic on unrecoverable setup failures; services construct their
// dependencies at boot, not per request.
type DependencyManager struct {
	serviceId      string
	cfg            config.C
	logBuilder     dclog.Builder
	logger         *slog.Logger
	r              dcredis.Client
	db             database.DB
	e              encrypt.E
	asynqClient    dcasynq.Client
	asynqInspector *asynq.Inspector
	registry       registry.R
	state          statestore.S
	scanner        scanner.S
	clients        connectorapi.F
	resultsEmitter results.Emitter
	results        results.R
	notifier       notify.N
	enqueuer       pipeline.Enqueuer
	verifier       *hmacsig.Verifier
}

func NewDependencyManager(serviceId string, cfg config.C) *DependencyManager {
	return &DependencyManager{
		serviceId: serviceId,
		cfg:       cfg,
	}
}

func (dm *DependencyManager) GetConfig() config.C {
	return dm.cfg
}

func (dm *DependencyManager) GetConfigRoot() *config.Root {
	return dm.cfg.GetRoot()
}

func (dm *DependencyManager) GetServiceId() string {
	return dm.serviceId
}

func (dm *DependencyManager) GetLogBuilder() dclog.Builder {
	if dm.logBuilder == nil {
		dm.logBuilder = dclog.NewBuilder(dm.GetRootLogger())
	}

	return dm.logBuilder
}

func (dm *DependencyManager) GetRootLogger() *slog.Logger {
	return dm.GetConfigRoot().Logging.GetRootLogger()
}

func (dm *DependencyManager) GetLogger() *slog.Logger {
	if dm.logger == nil {
		dm.logger = dm.GetLogBuilder().WithService(dm.serviceId).Build()
	}

	return dm.logger
}

func (dm *DependencyManager) GetRedisClient() dcredis.Client {
	if dm.r == nil {
		var err error
		dm.r, err = dcredis.NewForRoot(context.Background(), dm.GetConfigRoot())
		if err != nil {
			panic(err)
		}
	}

	return dm.r
}

func (dm *DependencyManager) GetDatabase() database.DB {
	if dm.db == nil {
		var err error
		dm.db, err = database.NewConnectionForRoot(dm.GetConfigRoot(), dm.GetLogger())
		if err != nil {
			panic(err)
		}
	}

	return dm.db
}

// AutoMigrateDatabase migrates the schema when the root config has auto migrate on. The
// migration runs under a redis lock so concurrently starting services do not race.
func (dm *DependencyManager) AutoMigrateDatabase() {
	if !dm.GetConfigRoot().Database.GetAutoMigrate() {
		return
	}

	m := dcredis.NewMutex(
		dm.GetRedisClient(),
		"database:migrate",
		dcredis.MutexOptionLockFor(1*time.Minute),
		dcredis.MutexOptionRetryLinearBackoff(250*time.Millisecond),
		dcredis.MutexOptionDetailedLockMetadata(),
	)
	if err := m.Lock(context.Background()); err != nil {
		panic(errors.Wrap(err, "failed to establish lock for database migration"))
	}
	defer m.Unlock(context.Background())

	if err := dm.GetDatabase().Migrate(context.Background()); err != nil {
		panic(err)
	}
}

func (dm *DependencyManager) GetEncryptService() encrypt.E {
	if dm.e == nil {
		dm.e = encrypt.NewEncryptService(dm.GetConfig())
	}

	return dm.e
}

func (dm *DependencyManager) GetAsynqClient() dcasynq.Client {
	if dm.asynqClient == nil {
		dm.asynqClient = asynq.NewClientFromRedisClient(dm.GetRedisClient())
	}

	return dm.asynqClient
}

func (dm *DependencyManager) GetAsynqInspector() *asynq.Inspector {
	if dm.asynqInspector == nil {
		dm.asynqInspector = asynq.NewInspectorFromRedisClient(dm.GetRedisClient())
	}

	return dm.asynqInspector
}

func (dm *DependencyManager) GetRegistry() registry.R {
	if dm.registry == nil {
		dm.registry = registry.NewRegistry(
			dm.GetConfig(),
			dm.GetDatabase(),
			dm.GetEncryptService(),
			dm.GetLogBuilder().WithComponent("registry").Build(),
		)
	}

	return dm.registry
}

func (dm *DependencyManager) GetStateStore() statestore.S {
	if dm.state == nil {
		dm.state = statestore.NewStateStore(dm.GetDatabase())
	}

	return dm.state
}

func (dm *DependencyManager) GetScannerClient() scanner.S {
	if dm.scanner == nil {
		dm.scanner = scanner.NewClient(dm.GetConfig())
	}

	return dm.scanner
}

func (dm *DependencyManager) GetConnectorClients() connectorapi.F {
	if dm.clients == nil {
		dm.clients = connectorapi.NewFactory(
			dm.GetConfig(),
			dm.GetDatabase(),
			dm.GetEncryptService(),
		)
	}

	return dm.clients
}

func (dm *DependencyManager) GetResultsEmitter() results.Emitter {
	if dm.resultsEmitter == nil {
		dm.resultsEmitter = results.NewEmitterForRoot(
			dm.GetConfig(),
			dm.GetLogBuilder().WithComponent("syslog").Build(),
		)
	}

	return dm.resultsEmitter
}

func (dm *DependencyManager) GetResults() results.R {
	if dm.results == nil {
		dm.results = results.NewService(
			dm.GetConfig(),
			dm.GetDatabase(),
			dm.GetResultsEmitter(),
			dm.GetLogBuilder().WithComponent("results").Build(),
		)
	}

	return dm.results
}

func (dm *DependencyManager) GetNotifier() notify.N {
	if dm.notifier == nil {
		dm.notifier = notify.NewNotifier(
			dm.GetConfig(),
			dm.GetRedisClient(),
			dm.GetLogBuilder().WithComponent("notify").Build(),
		)
	}

	return dm.notifier
}

func (dm *DependencyManager) GetEnqueuer() pipeline.Enqueuer {
	if dm.enqueuer == nil {
		dm.enqueuer = pipeline.NewEnqueuer(
			dm.GetConfig(),
			dm.GetDatabase(),
			dm.GetAsynqClient(),
			dm.GetConnectorClients(),
			dm.GetLogBuilder().WithComponent("pipeline").Build(),
		)
	}

	return dm.enqueuer
}

func (dm *DependencyManager) GetHmacVerifier() *hmacsig.Verifier {
	if dm.verifier == nil {
		dm.verifier = hmacsig.NewVerifier(
			dm.GetRegistry(),
			dm.GetDatabase(),
			dm.GetConfigRoot().SystemAuth.ClockSkew(),
		)
	}

	return dm.verifier
}
