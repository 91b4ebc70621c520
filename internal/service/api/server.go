package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/logang-di/dsx-connect/internal/api_common"
	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/dclog"
	"github.com/logang-di/dsx-connect/internal/dcredis"
	"github.com/logang-di/dsx-connect/internal/hmacsig"
	"github.com/logang-di/dsx-connect/internal/routes"
	"github.com/logang-di/dsx-connect/internal/service"
)

func GetGinServer(dm *service.DependencyManager) *http.Server {
	root := dm.GetConfigRoot()
	svc := &root.Api

	server := api_common.GinForService(svc)

	server.GET("/ping", func(c *gin.Context) {
		c.PureJSON(http.StatusOK, gin.H{
			"service": "api",
			"message": "pong",
		})
	})

	server.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		dbChan := make(chan bool, 1)
		redisChan := make(chan bool, 1)

		go func() {
			dbChan <- dm.GetDatabase().Ping(ctx)
		}()

		go func() {
			redisChan <- dcredis.Ping(ctx, dm.GetRedisClient())
		}()

		dbOk := <-dbChan
		redisOk := <-redisChan
		everythingOk := dbOk && redisOk
		status := http.StatusOK
		if !everythingOk {
			status = http.StatusServiceUnavailable
		}

		c.PureJSON(status, gin.H{
			"service": "api",
			"db":      dbOk,
			"redis":   redisOk,
			"ok":      everythingOk,
		})
	})

	signed := hmacsig.GinMiddleware(
		dm.GetHmacVerifier(),
		dm.GetLogBuilder().WithComponent("hmac").Build(),
	)

	routesConnectors := routes.NewConnectorsRoutes(
		dm.GetConfig(),
		dm.GetDatabase(),
		dm.GetRegistry(),
		dm.GetEnqueuer(),
		dm.GetStateStore(),
		signed,
	)
	routesScan := routes.NewScanRoutes(
		dm.GetConfig(),
		dm.GetDatabase(),
		dm.GetEnqueuer(),
		dm.GetResults(),
		signed,
	)
	routesState := routes.NewStateRoutes(
		dm.GetConfig(),
		dm.GetStateStore(),
		signed,
	)

	api := server.Group("/api/v1")
	routesConnectors.Register(api)
	routesScan.Register(api)
	routesState.Register(api)

	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", svc.GetHost(), svc.GetPort()),
		Handler: server,
	}
}

func Serve(cfg config.C) {
	dm := service.NewDependencyManager("api", cfg)
	dclog.SetDefaultLog(dm.GetRootLogger())
	logger := dm.GetLogger()

	if !cfg.IsDebugMode() {
		gin.SetMode(gin.ReleaseMode)
	}

	defer dm.GetRedisClient().Close()

	dm.AutoMigrateDatabase()

	server := GetGinServer(dm)

	logger.Info("running service", "addr", server.Addr)
	if err := api_common.RunServer(server, logger); err != nil {
		logger.Error(err.Error())
	}

	logger.Info("API shutdown complete")
}
