package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/reuseworks/volsched-api/api/swagger"
	"github.com/reuseworks/volsched-api/internal/handler"
	"github.com/reuseworks/volsched-api/internal/middleware"
	"github.com/reuseworks/volsched-api/internal/models"
	"github.com/reuseworks/volsched-api/internal/repository"
	"github.com/reuseworks/volsched-api/internal/service"
	"github.com/reuseworks/volsched-api/pkg/cache"
	"github.com/reuseworks/volsched-api/pkg/config"
	"github.com/reuseworks/volsched-api/pkg/database"
	"github.com/reuseworks/volsched-api/pkg/jobs"
	"github.com/reuseworks/volsched-api/pkg/logger"
	corsmiddleware "github.com/reuseworks/volsched-api/pkg/middleware/cors"
	reqidmiddleware "github.com/reuseworks/volsched-api/pkg/middleware/requestid"
	"github.com/reuseworks/volsched-api/pkg/storage"
)

// @title Volunteer Scheduling API
// @version 1.0.0
// @description Appointment scheduling for volunteer work stations
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, conflict cache disabled", "error", err)
		redisClient = nil
	}

	// Repositories.
	locationRepo := repository.NewLocationRepository(db)
	stationRepo := repository.NewStationRepository(db)
	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	exportJobRepo := repository.NewExportJobRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	locationSvc := service.NewLocationService(locationRepo, logr)
	stationSvc := service.NewStationService(stationRepo, locationRepo, logr)
	profileSvc := service.NewProfileService(profileRepo, userRepo, logr)
	authSvc := service.NewAuthService(userRepo, profileRepo, logr, cfg.JWT)
	appointmentSvc := service.NewAppointmentService(appointmentRepo, stationRepo, profileRepo, logr, cfg.Scheduling)
	conflictSvc := service.NewConflictService(appointmentRepo, cacheRepo, logr, cfg.Conflicts).WithMetrics(metricsSvc)

	// Export pipeline.
	var exportSvc *service.ExportService
	var exportQueue *jobs.Queue
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

		exportQueue = jobs.NewQueue("roster-exports", func(ctx context.Context, job jobs.Job) error {
			return exportSvc.Process(ctx, job)
		}, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			Logger:     logr,
		})
		exportSvc = service.NewExportService(exportJobRepo, appointmentRepo, stationRepo, profileRepo, store, signer, exportQueue, logr)

		exportQueue.Start(context.Background())
		defer exportQueue.Stop()
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	locationHandler := handler.NewLocationHandler(locationSvc)
	stationHandler := handler.NewStationHandler(stationSvc)
	profileHandler := handler.NewProfileHandler(profileSvc, appointmentSvc)
	appointmentHandler := handler.NewAppointmentHandler(appointmentSvc, conflictSvc, metricsSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/login", authHandler.Login)

		authed := api.Group("")
		authed.Use(middleware.JWT(authSvc))
		{
			authed.GET("/auth/me", authHandler.Me)
			authed.PUT("/auth/password", authHandler.ChangePassword)
			authed.GET("/metrics/snapshot", metricsHandler.Snapshot)

			staff := middleware.RequireRoles(models.RoleAdmin, models.RoleCoordinator)

			authed.GET("/locations", locationHandler.List)
			authed.GET("/locations/:id", locationHandler.Get)
			authed.POST("/locations", staff, locationHandler.Create)
			authed.PUT("/locations/:id", staff, locationHandler.Update)
			authed.DELETE("/locations/:id", middleware.RequireRoles(models.RoleAdmin), locationHandler.Delete)

			authed.GET("/stations", stationHandler.List)
			authed.GET("/stations/:id", stationHandler.Get)
			authed.POST("/stations", staff, stationHandler.Create)
			authed.PUT("/stations/:id", staff, stationHandler.Update)
			authed.DELETE("/stations/:id", middleware.RequireRoles(models.RoleAdmin), stationHandler.Delete)

			authed.GET("/profiles", staff, profileHandler.List)
			authed.GET("/profiles/:id", middleware.RBAC("ADMIN", "COORDINATOR", "SELF"), profileHandler.Get)
			authed.GET("/profiles/:id/appointments", middleware.RBAC("ADMIN", "COORDINATOR", "SELF"), profileHandler.ListAppointments)
			authed.POST("/profiles", staff, profileHandler.Create)
			authed.PUT("/profiles/:id", staff, profileHandler.Update)
			authed.DELETE("/profiles/:id", middleware.RequireRoles(models.RoleAdmin), profileHandler.Delete)

			authed.GET("/appointments", appointmentHandler.List)
			authed.GET("/appointments/conflicts", staff, appointmentHandler.Conflicts)
			authed.GET("/appointments/:id", appointmentHandler.Get)
			authed.POST("/appointments", staff, appointmentHandler.Create)
			authed.PUT("/appointments/:id", staff, appointmentHandler.Update)
			authed.DELETE("/appointments/:id", middleware.RequireRoles(models.RoleAdmin), appointmentHandler.Delete)
			authed.POST("/appointments/:id/assign", appointmentHandler.Assign)
			authed.POST("/appointments/:id/unassign", appointmentHandler.Unassign)

			if cfg.Exports.Enabled {
				exportHandler := handler.NewExportHandler(exportSvc)
				authed.POST("/exports", staff, exportHandler.Create)
				authed.GET("/exports/:id", staff, exportHandler.Get)
				api.GET("/exports/download", exportHandler.Download)
			}
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
