package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/marsha-lti/api/swagger"
	"github.com/noah-isme/marsha-lti/internal/handler"
	internalmiddleware "github.com/noah-isme/marsha-lti/internal/middleware"
	"github.com/noah-isme/marsha-lti/internal/repository"
	"github.com/noah-isme/marsha-lti/internal/service"
	"github.com/noah-isme/marsha-lti/pkg/cache"
	"github.com/noah-isme/marsha-lti/pkg/config"
	"github.com/noah-isme/marsha-lti/pkg/database"
	"github.com/noah-isme/marsha-lti/pkg/logger"
	corsmiddleware "github.com/noah-isme/marsha-lti/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/marsha-lti/pkg/middleware/requestid"
)

// @title Marsha LTI API
// @version 1.0.0
// @description LTI launch resolution, resource tokens and playlist portability.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey ResourceToken
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := database.RunMigrations(db.DB); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
		logr.Info("migrations applied")
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, passport cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, "marsha", logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, redisClient != nil)

	validate := validator.New()
	txManager := repository.NewTxManager(db)

	siteRepo := repository.NewConsumerSiteRepository(db)
	playlistRepo := repository.NewPlaylistRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	associationRepo := repository.NewLtiAssociationRepository(db)
	requestRepo := repository.NewPortabilityRequestRepository(db)

	resolver := service.NewLtiResolver(txManager, playlistRepo, resourceRepo, metricsSvc, logr)
	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	associationSvc := service.NewLtiAssociationService(associationRepo, logr)
	launchSvc := service.NewLaunchService(validate, siteRepo, associationRepo, resolver, tokenSvc, cacheSvc, service.LaunchConfig{
		InstructorRoles: cfg.LTI.InstructorRoles,
		PassportTTL:     cfg.Cache.TTL,
	}, logr)
	portabilitySvc := service.NewPortabilityService(txManager, requestRepo, playlistRepo, logr)
	resourceSvc := service.NewResourceService(resourceRepo)

	metricsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
		"redis":    cacheRepo.Ping,
	})
	ltiHandler := handler.NewLtiHandler(launchSvc)
	resourceHandler := handler.NewResourceHandler(resourceSvc)
	portabilityHandler := handler.NewPortabilityHandler(portabilitySvc, validate)
	associationHandler := handler.NewAssociationHandler(associationSvc, validate)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.LTI.FrameAncestors))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	api.POST("/lti/:kind/launch", ltiHandler.Launch)

	secured := api.Group("")
	secured.Use(internalmiddleware.ResourceJWT(tokenSvc))
	secured.GET("/resources/:id", resourceHandler.Get)
	secured.POST("/lti-user-associations", associationHandler.Create)

	portability := secured.Group("/portability-requests")
	portability.Use(internalmiddleware.InstructorOnly())
	portability.POST("", portabilityHandler.Create)
	portability.POST("/:id/accept", portabilityHandler.Accept)
	portability.POST("/:id/reject", portabilityHandler.Reject)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
