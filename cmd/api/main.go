package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/config"
	"github.com/noah-isme/gema-assessment-api/internal/database"
	"github.com/noah-isme/gema-assessment-api/internal/handler"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/router"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	cloud "github.com/noah-isme/gema-assessment-api/pkg/cloudinary"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger = logger.With().Str("service", cfg.AppName).Str("env", cfg.AppEnv).Logger()

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelConnect()

	db, err := database.ConnectPostgres(connectCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(connectCtx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis disabled: statistics are not cached")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	var uploader service.FileUploader
	if cfg.CloudinaryEnabled() {
		attachments, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary client")
		}
		uploader = attachments
	} else {
		logger.Warn().Msg("cloudinary not configured: attachments are rejected")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	assessmentRepo := repository.NewAssessmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)
	transactor := repository.NewTransactor(db)

	activityService := service.NewActivityService(activityRepo, logger)
	statisticsService := service.NewStatisticsService(assessmentRepo, submissionRepo, courseRepo, redisClient, cfg.StatsCacheTTL, logger)
	notificationService := service.NewNotificationService(notificationRepo, redisClient, cfg.NotificationChannel, natsConn, validate, logger)
	dispatcher := service.NewNotificationDispatcher(outboxRepo, notificationService, service.DispatcherConfig{
		Interval:    cfg.NotificationRetryInterval,
		MaxAttempts: cfg.NotificationMaxAttempts,
	}, logger)
	assessmentService := service.NewAssessmentService(assessmentRepo, courseRepo, validate, uploader, activityService, logger)
	submissionService := service.NewSubmissionService(assessmentRepo, submissionRepo, courseRepo, transactor, statisticsService, validate, logger)
	gradingService := service.NewGradingService(service.GradingDependencies{
		Assessments: assessmentRepo,
		Submissions: submissionRepo,
		Courses:     courseRepo,
		Outbox:      outboxRepo,
		Transactor:  transactor,
		Dispatcher:  dispatcher,
		Stats:       statisticsService,
		Activity:    activityService,
	}, validate, service.GradingConfig{MaxBulkEntries: cfg.MaxBulkEntries}, logger)

	workers, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	notificationService.Start(workers)
	go dispatcher.Run(workers)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    16 * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		AssessmentHandler:   handler.NewAssessmentHandler(assessmentService, logger),
		SubmissionHandler:   handler.NewSubmissionHandler(submissionService, logger),
		GradingHandler:      handler.NewGradingHandler(gradingService, logger),
		StatisticsHandler:   handler.NewStatisticsHandler(statisticsService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger, 30*time.Second),
		ActivityHandler:     handler.NewActivityHandler(activityService, logger),
		HealthProbes:        healthProbes(db, redisClient, natsConn),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, cfg.ShutdownTimeout, stopWorkers, logger)
}

func healthProbes(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) []handler.HealthProbe {
	probes := []handler.HealthProbe{{
		Name: "database",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}

	if redisClient != nil {
		probes = append(probes, handler.HealthProbe{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	if natsConn != nil {
		probes = append(probes, handler.HealthProbe{
			Name: "nats",
			Check: func(context.Context) error {
				if !natsConn.IsConnected() {
					return errors.New(natsConn.Status().String())
				}
				return nil
			},
		})
	}

	return probes
}

func waitForShutdown(app *fiber.App, timeout time.Duration, stopWorkers context.CancelFunc, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	stopWorkers()

	logger.Info().Msg("server stopped")
}
