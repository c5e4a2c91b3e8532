package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/student-crm-api/api/swagger"
	"github.com/noah-isme/student-crm-api/internal/handler"
	"github.com/noah-isme/student-crm-api/internal/middleware"
	"github.com/noah-isme/student-crm-api/internal/models"
	"github.com/noah-isme/student-crm-api/internal/repository"
	"github.com/noah-isme/student-crm-api/internal/service"
	"github.com/noah-isme/student-crm-api/pkg/cache"
	"github.com/noah-isme/student-crm-api/pkg/config"
	"github.com/noah-isme/student-crm-api/pkg/database"
	"github.com/noah-isme/student-crm-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/student-crm-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/student-crm-api/pkg/middleware/requestid"
	"github.com/noah-isme/student-crm-api/pkg/storage"
)

// @title Student CRM API
// @version 0.1.0
// @description Student relationship management API with per-record activity trails
// @BasePath /api/v1
// @schemes http

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

	validate := validator.New()

	recordRepo := repository.NewRecordRepository(db)
	userRepo := repository.NewUserRepository(db)

	metricsSvc := service.NewMetricsService()

	var recordSvc *service.RecordService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, list cache disabled", "error", err)
			recordSvc = service.NewRecordService(recordRepo, nil, metricsSvc, validate, logr, cfg.Cache.ListTTL)
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close() //nolint:errcheck
			recordSvc = service.NewRecordService(recordRepo, cacheRepo, metricsSvc, validate, logr, cfg.Cache.ListTTL)
		}
	} else {
		recordSvc = service.NewRecordService(recordRepo, nil, metricsSvc, validate, logr, cfg.Cache.ListTTL)
	}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "student-crm-api",
	})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	recordHandler := handler.NewRecordHandler(recordSvc)
	activityHandler := handler.NewActivityHandler(recordSvc)
	authHandler := handler.NewAuthHandler(authSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	records := api.Group("/records", middleware.JWT(authSvc))
	records.GET("", recordHandler.List)
	records.GET("/summary", recordHandler.Summary)
	records.GET("/:id", recordHandler.Get)
	records.POST("", middleware.Audit(userRepo, models.AuditActionRecordCreate, "records"), recordHandler.Create)
	records.PUT("/:id", middleware.Audit(userRepo, models.AuditActionRecordUpdate, "records"), recordHandler.Update)
	records.DELETE("/:id",
		middleware.RequireRoles(models.RoleAdmin),
		middleware.Audit(userRepo, models.AuditActionRecordDelete, "records"),
		recordHandler.Delete)

	actions := records.Group("/:id", middleware.Audit(userRepo, models.AuditActionRecordAction, "records"))
	actions.POST("/notes", activityHandler.AddNote)
	actions.POST("/login", activityHandler.RecordLogin)
	actions.POST("/communications", activityHandler.LogCommunication)
	actions.POST("/reminders", activityHandler.AddReminder)

	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc := service.NewExportService(recordRepo, store, signer, service.ExportConfig{
			APIPrefix:  cfg.APIPrefix,
			ResultTTL:  cfg.Exports.SignedURLTTL,
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
		}, logr, nil, nil)
		exportSvc.Start(context.Background())
		defer exportSvc.Stop()

		exportHandler := handler.NewExportHandler(exportSvc)
		exports := api.Group("/exports")
		exports.GET("/download/:token", exportHandler.Download)
		exports.POST("",
			middleware.JWT(authSvc),
			middleware.Audit(userRepo, models.AuditActionRosterExport, "exports"),
			exportHandler.Enqueue)
		exports.GET("/:id", middleware.JWT(authSvc), exportHandler.Job)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
