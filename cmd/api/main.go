package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"appointments/internal/config"
	"appointments/internal/database"
	"appointments/internal/domain/appointment"
	"appointments/internal/middleware"
	"appointments/internal/pkg/logger"
	"appointments/internal/pkg/metrics"
	"appointments/internal/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Fatal("invalid configuration", "error", err)
	}

	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	db, err := database.ConnectWithPool(cfg.Database.URL, database.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, log)
	if err != nil {
		log.Fatal("db connect failed", "error", err)
	}
	defer func() { _ = database.Close(db) }()

	if cfg.Database.AutoMigrate {
		if err := appointment.Migrate(db); err != nil {
			log.Fatal("migration failed", "error", err)
		}
		log.Info("schema migrated")
	}

	var limiter middleware.Limiter
	if cfg.RateLimit.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RateLimit.RedisURL)
		if err != nil {
			log.Fatal("invalid REDIS_URL", "error", err)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		limiter = middleware.NewRedisLimiter(rdb, cfg.RateLimit.Requests, cfg.RateLimit.Window, "appointments")
	} else {
		limiter = middleware.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	m := metrics.New("appointments")
	policy := appointment.NewPolicy(cfg.Booking.MinAdvance, cfg.Booking.UTCOffset, cfg.Booking.OpenAt, cfg.Booking.CloseAt)
	svc := appointment.NewService(
		appointment.NewStore(db),
		policy,
		appointment.WithPageSizes(cfg.Booking.DefaultPageSize, cfg.Booking.MaxPageSize),
	)

	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := newRouter(cfg, db, svc, limiter, m, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("http server starting", "addr", srv.Addr, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

func newRouter(
	cfg *config.Config,
	db *gorm.DB,
	svc *appointment.Service,
	limiter middleware.Limiter,
	m *metrics.Metrics,
	log logger.Logger,
) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Metrics(m),
		middleware.ErrorLogger(log),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.CORSAllowedOrigins),
	)

	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := database.Ping(ctx, db); err != nil {
			_ = c.Error(err)
			response.Error(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable")
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	v1 := r.Group("/api/v1")
	appointment.NewHandler(svc, m).RegisterRoutes(v1, middleware.RateLimit(limiter, log, true))

	return r
}
