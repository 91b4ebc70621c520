package worker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/logang-di/dsx-connect/internal/api_common"
	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/dclog"
	"github.com/logang-di/dsx-connect/internal/dcredis"
	"github.com/logang-di/dsx-connect/internal/pipeline"
	"github.com/logang-di/dsx-connect/internal/registry"
	"github.com/logang-di/dsx-connect/internal/service"
)

const defaultQueueConcurrency = 5

func Serve(cfg config.C) {
	dm := service.NewDependencyManager("worker", cfg)
	dclog.SetDefaultLog(dm.GetRootLogger())
	logger := dm.GetLogger()

	if !cfg.IsDebugMode() {
		gin.SetMode(gin.ReleaseMode)
	}

	workerConfig := cfg.GetRoot().Worker
	router := api_common.GinForService(&workerConfig)

	router.GET("/ping", func(c *gin.Context) {
		c.PureJSON(http.StatusOK, gin.H{
			"service": "worker",
			"message": "pong",
		})
	})

	asyncHasError := false
	asyncRunning := false
	asyncIsScheduler := false
	asyncHealthChecker := func(err error) {
		asyncHasError = asyncHasError || err != nil
	}

	asyncSchedulerHealthChecker := func(isScheduler bool, err error) {
		asyncHasError = asyncHasError || err != nil
		asyncIsScheduler = isScheduler
	}

	router.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		dbChan := make(chan bool, 1)
		redisChan := make(chan bool, 1)
		asynqClientChan := make(chan bool, 1)

		go func() {
			dbChan <- dm.GetDatabase().Ping(ctx)
		}()

		go func() {
			redisChan <- dcredis.Ping(ctx, dm.GetRedisClient())
		}()

		go func() {
			asynqClientChan <- dm.GetAsynqClient().Ping() == nil
		}()

		dbOk := <-dbChan
		redisOk := <-redisChan
		asyncClientOk := <-asynqClientChan
		everythingOk := dbOk && redisOk && asyncRunning && !asyncHasError && asyncClientOk
		status := http.StatusOK
		if !everythingOk {
			status = http.StatusServiceUnavailable
		}

		c.PureJSON(status, gin.H{
			"service":          "worker",
			"db":               dbOk,
			"redis":            redisOk,
			"asynqServer":      asyncRunning && !asyncHasError,
			"asynqClient":      asyncClientOk,
			"asyncIsScheduler": asyncIsScheduler,
			"ok":               everythingOk,
		})
	})

	dm.AutoMigrateDatabase()

	ctx := context.Background()

	// Each stage runs on its own queue so a slow stage (streaming large files into the
	// scanner) never starves the cheap ones.
	queues := map[string]int{
		pipeline.QueueScanRequest:   workerConfig.GetConcurrencyOrDefault(pipeline.QueueScanRequest, defaultQueueConcurrency),
		pipeline.QueueVerdictAction: workerConfig.GetConcurrencyOrDefault(pipeline.QueueVerdictAction, defaultQueueConcurrency),
		pipeline.QueueScanResult:    workerConfig.GetConcurrencyOrDefault(pipeline.QueueScanResult, defaultQueueConcurrency),
		pipeline.QueueNotification:  workerConfig.GetConcurrencyOrDefault(pipeline.QueueNotification, defaultQueueConcurrency),
		"default":                   1,
	}

	totalConcurrency := 0
	for _, n := range queues {
		totalConcurrency += n
	}

	srv := asynq.NewServerFromRedisClient(
		dm.GetRedisClient(),
		asynq.Config{
			HealthCheckFunc: asyncHealthChecker,
			Concurrency:     totalConcurrency,
			RetryDelayFunc:  pipeline.RetryDelayFunc(cfg),
			BaseContext: func() context.Context {
				return ctx
			},
			Logger:   &asyncLogger{inner: dm.GetLogBuilder().WithComponent("asynq").Build()},
			LogLevel: asynq.InfoLevel,
			Queues:   queues,
		},
	)

	mux := asynq.NewServeMux()

	pipelineTaskHandler := pipeline.NewTaskHandler(
		cfg,
		dm.GetDatabase(),
		dm.GetAsynqClient(),
		dm.GetConnectorClients(),
		dm.GetScannerClient(),
		dm.GetResults(),
		dm.GetNotifier(),
		dm.GetLogBuilder().WithComponent("pipeline").Build(),
	)
	pipelineTaskHandler.RegisterTasks(mux)

	registryTaskHandler := registry.NewTaskHandler(
		cfg,
		dm.GetDatabase(),
		dm.GetConnectorClients(),
		dm.GetLogBuilder().WithComponent("registry").Build(),
	)
	registryTaskHandler.RegisterTasks(mux)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		asyncRunning = true
		if err := srv.Run(mux); err != nil {
			asyncHasError = true
			log.Fatalf("could not run async server: %v", err)
		}
		asyncRunning = false
		logger.Info("Async worker shutdown complete")
	}()

	sched := newScheduler(
		dm.GetRedisClient(),
		asyncSchedulerHealthChecker,
		dm.GetLogBuilder().WithComponent("scheduler").Build(),
	).
		addRegistrar(pipelineTaskHandler).
		addRegistrar(registryTaskHandler)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sched.Run(); err != nil {
			asyncHasError = true
			log.Fatalf("could not run scheduler: %v", err)
		}
		asyncIsScheduler = false
		logger.Info("Async scheduler shutdown complete")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		httpServer := &http.Server{
			Addr:    fmt.Sprintf("%s:%d", workerConfig.GetHost(), workerConfig.GetPort()),
			Handler: router,
		}
		if err := api_common.RunServer(httpServer, logger); err != nil {
			log.Fatalf("could not run gin server: %v", err)
		}
		logger.Info("Gin shutdown complete")
	}()

	wg.Wait()
	logger.Info("Worker shutting down")
	defer logger.Info("Worker shutdown complete")
}
