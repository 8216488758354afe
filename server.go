package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/DhruviKhanpara/LMS-sub001/config"
	"github.com/DhruviKhanpara/LMS-sub001/handlers"
	"github.com/DhruviKhanpara/LMS-sub001/middlewares"
	"github.com/DhruviKhanpara/LMS-sub001/models"
	"github.com/DhruviKhanpara/LMS-sub001/store"
	"github.com/DhruviKhanpara/LMS-sub001/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/DhruviKhanpara/LMS-sub001")

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func corsConfig(s config.Settings) cors.Config {
	cfg := cors.DefaultConfig()
	if s.IsProduction() {
		// deny all unless an allowlist is configured
		cfg.AllowOrigins = splitAndTrim(s.HTTP.CORSAllowedOrigins)
		if len(cfg.AllowOrigins) == 0 {
			cfg.AllowOrigins = []string{}
		}
	} else {
		cfg.AllowAllOrigins = true
	}
	cfg.AddAllowMethods("GET", "POST", "OPTIONS")
	cfg.AddAllowHeaders("Origin", "Content-Type", "Authorization", middlewares.CorrelationHeader)
	cfg.AddExposeHeaders("Content-Length", middlewares.CorrelationHeader)
	cfg.AllowCredentials = true
	return cfg
}

func newRouter(s config.Settings, engine *workflow.Engine, rdb *redis.Client, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(cors.New(corsConfig(s)))
	handlers.RegisterHealth(r)

	r.Use(middlewares.ErrorHandler(logger))
	r.Use(middlewares.AuthMiddleware())
	if s.HTTP.RateLimitEnabled && rdb != nil {
		r.Use(middlewares.NewRateLimiter(rdb, s.HTTP.RateLimitRequests, s.HTTP.RateLimitWindow).Middleware())
	}

	handlers.New(engine.Circulation, engine, logger).Register(r)
	r.NoRoute(customNotFoundHandler)
	return r
}

func newLocker(logger *logrus.Logger) workflow.Locker {
	if client := config.GetRedisLock(); client != nil {
		return config.NewRedisLocker(client, 5*time.Second)
	}
	logger.WithFields(logrus.Fields{"field": "locks"}).Warn("running without Redis; per-book serialization relies on row locks only")
	return workflow.NoopLocker{}
}

func main() {
	logger := config.GetLogger()

	settings, err := config.LoadSettings()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "settings"}).Fatal(err.Error())
	}
	config.SetLogLevel(settings.LogLevel)
	if settings.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	db, err := config.ConnectDatabaseWithRetry(sigCtx, settings)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "database"}).Fatal("database unavailable: " + err.Error())
	}
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can block tables; production runs `libraryctl migrate` instead.
	if settings.DB.AutoMigrate {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err.Error())
		}
	}

	rdb, err := config.ConnectRedisWithRetry(sigCtx, settings)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "redis"}).Fatal("redis unavailable: " + err.Error())
	}
	locker := newLocker(logger)

	sender, stopSender, err := config.NewMailSender(sigCtx, settings, logger)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "mail"}).Fatal(err.Error())
	}
	defer stopSender()

	engine := workflow.NewEngine(store.New(db), sender, locker, logger)

	// Background workers stop before the HTTP drain below.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	outboxDone := startOutboxProcessor(workerCtx, settings, engine.Outbox, logger)
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		NewScheduler(settings, engine, locker, logger).Run(workerCtx)
	}()

	srv := &http.Server{
		Addr:    ":" + settings.Port,
		Handler: newRouter(settings, engine, rdb, logger),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()
	logger.WithFields(logrus.Fields{"field": "http", "port": settings.Port}).Info("server started")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	cancelWorkers()
	<-outboxDone
	<-schedulerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		config.LogError(logger, "server", "main", "graceful shutdown", nil, err)
	}

	if rdb != nil {
		_ = rdb.Close()
	}
}
