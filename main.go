package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"affiliate-system/config"
	"affiliate-system/events"
	"affiliate-system/handlers"
	"affiliate-system/mailer"
	"affiliate-system/metrics"
	"affiliate-system/middleware"
	"affiliate-system/models"
	"affiliate-system/services"
	"affiliate-system/utils"
	"affiliate-system/workers"

	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func initLogger() *zap.Logger {
	var logger *zap.Logger
	var err error
	if os.Getenv("APP_ENV") == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	zap.ReplaceGlobals(logger)
	return logger
}

func main() {
	logger := initLogger()
	defer func() { _ = logger.Sync() }()

	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var publisher events.Publisher = events.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.PublishTimeout)
		if err != nil {
			logger.Fatal("failed to initialize kafka publisher", zap.Error(err))
		}
		publisher = kp
		logger.Info("kafka publisher enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
			zap.Duration("publish_timeout", cfg.Kafka.PublishTimeout))
	}
	defer publisher.Close()

	links := services.NewLinkService(db, cfg.Affiliate)
	links.Metrics = m
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, link cache disabled", zap.Error(err))
		} else {
			links.Cache = services.NewRedisLinkCache(rdb, cfg.Redis.LinkCacheTTL)
			logger.Info("link cache enabled")
		}
	}

	users := services.NewUserDirectory(db)
	roster := services.NewRosterService(db)

	visits := services.NewVisitService(db, links, cfg.Affiliate)
	visits.Metrics = m

	attribution := services.NewAttributionService(db, links, roster)
	attribution.Events = publisher
	attribution.PublishTimeout = cfg.Kafka.PublishTimeout
	attribution.Metrics = m

	rewards := services.NewRewardEngine(db)
	rewards.Events = publisher
	rewards.PublishTimeout = cfg.Kafka.PublishTimeout
	rewards.Metrics = m

	tmpl, err := mailer.LoadInvitationTemplate(cfg.Mail.TemplateFile)
	if err != nil {
		logger.Fatal("failed to load invitation template", zap.Error(err))
	}
	if cfg.Mail.ResendAPIKey == "" {
		logger.Warn("RESEND_API_KEY not set, invitation sends will fail")
	}
	resend, err := mailer.NewResendMailer(cfg.Mail.ResendURL, cfg.Mail.ResendAPIKey, cfg.Mail.SendTimeout)
	if err != nil {
		logger.Fatal("failed to initialize resend client", zap.Error(err))
	}
	invitations := services.NewInvitationService(links, roster, users, resend, tmpl, cfg.Mail)
	invitations.Metrics = m

	dashboard := services.NewDashboardService(db, links, users)
	hooks := services.NewHookService(attribution, rewards)

	var sched gocron.Scheduler
	if cfg.Retention.VisitRetention > 0 {
		var store workers.ObjectStore
		if cfg.R2.Enabled() {
			r2, err := utils.InitR2(ctx, cfg.R2)
			if err != nil {
				logger.Fatal("failed to initialize R2 client", zap.Error(err))
			}
			store = r2
		}
		archiver := workers.NewVisitArchiver(db, store, cfg.Retention.VisitRetention)
		sched, err = services.StartRetentionScheduler(ctx, archiver, cfg.Retention.ArchiveInterval)
		if err != nil {
			logger.Fatal("failed to start retention scheduler", zap.Error(err))
		}
		logger.Info("visit retention enabled",
			zap.Duration("retention", cfg.Retention.VisitRetention),
			zap.Duration("interval", cfg.Retention.ArchiveInterval),
			zap.Bool("archive_to_r2", store != nil))
	}

	app := fiber.New(fiber.Config{
		ProxyHeader:        fiber.HeaderXForwardedFor,
		EnableIPValidation: true,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       60 * time.Second,
	})

	app.Use(middleware.RequestLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Service-Token",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// 🔐 Only Gateway requests, except ops endpoints and service-to-service hooks
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, "/health", "/metrics", "/internal/"))

	handlers.SetupOpsRoutes(app, db, registry)
	handlers.SetupHookRoutes(app, hooks, cfg.ServiceToken)
	handlers.SetupAffiliateRoutes(app, handlers.AffiliateServices{
		Links:       links,
		Visits:      visits,
		Roster:      roster,
		Invitations: invitations,
		Dashboard:   dashboard,
	})

	go func() {
		if err := app.Listen(cfg.Port); err != nil {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	logger.Info("affiliate service running",
		zap.String("port", cfg.Port),
		zap.Strings("allowed_origins", cfg.AllowedOrigins))

	<-ctx.Done()
	logger.Info("shutting down")

	if sched != nil {
		if err := sched.Shutdown(); err != nil {
			logger.Warn("scheduler shutdown", zap.Error(err))
		}
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}
