package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"schooltrack/internal/config"
	"schooltrack/internal/directory"
	"schooltrack/internal/httpmiddleware"
	"schooltrack/internal/logging"
	"schooltrack/internal/notify"
	"schooltrack/internal/queue"
	"schooltrack/internal/reader"
	"schooltrack/internal/scan"
	"schooltrack/internal/stats"
	"schooltrack/internal/store"
	"schooltrack/internal/sysconfig"
)

type server struct {
	cfg     config.App
	db      *store.DB
	repo    *directory.Repository
	gateway *reader.Gateway
	hub     *notify.Hub
	fanout  *notify.Fanout
	statsRW *stats.Recorder
	sysCfg  *sysconfig.Store
	q       queue.Queue
	log     *logrus.Entry

	started  time.Time
	upgrader websocket.Upgrader

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component("api")

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}

func run(cfg config.App, log *logrus.Entry) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.EnsureSchema(context.Background()); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "schooltrack:events")
	}

	gateway := reader.New(reader.Config{Type: cfg.ReaderType, Name: cfg.ReaderName}, logging.Component("reader"))
	hub := notify.NewHub(logging.Component("hub"))
	fanout := notify.NewFanout(hub, logging.Component("fanout"))

	repo := directory.NewRepository(db.Client)
	processor := scan.NewProcessor(repo, fanout, q, logging.Component("processor"))
	poller := scan.NewPoller(gateway, processor, cfg.PollPeriod, cfg.PollGuardTimeout, logging.Component("poller"))
	supervisor := scan.NewSupervisor(gateway, poller, cfg.ReconnectBackoff, logging.Component("supervisor"))

	s := &server{
		cfg:        cfg,
		db:         db,
		repo:       repo,
		gateway:    gateway,
		hub:        hub,
		fanout:     fanout,
		statsRW:    stats.NewRecorder(redisClient.Client),
		sysCfg:     sysconfig.NewStore(redisClient.Client),
		q:          q,
		log:        log,
		started:    time.Now(),
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		shutdownCh: make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	supDone := make(chan struct{})
	if cfg.ReaderType != "none" {
		go func() {
			defer close(supDone)
			supervisor.Run(ctx)
		}()
	} else {
		close(supDone)
		log.Warn("reader disabled, scan pipeline not started")
	}
	go fanout.Run(ctx, cfg.NotifyDrainEvery)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin).Gin())

	s.routes(r, redisClient)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.HTTPPort).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-s.shutdownCh:
		log.Warn("shutdown requested via admin endpoint")
	}
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("forced server shutdown")
	}

	// Stop the poller supervisor and the fanout drain; join the supervisor
	// with a bound so a wedged device never blocks exit.
	cancel()
	select {
	case <-supDone:
	case <-time.After(5 * time.Second):
		log.Warn("supervisor did not stop in time")
	}
	gateway.CloseDevice()

	log.Info("server exited")
	return nil
}

// requestShutdown triggers the same graceful exit path as SIGTERM.
func (s *server) requestShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
