package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callhub/internal/core/ports"
	"callhub/internal/core/services"
	httphandlers "callhub/internal/handlers/http"
	"callhub/internal/infrastructure/distributed"
	"callhub/internal/infrastructure/middleware"
	"callhub/internal/infrastructure/monitoring"
	"callhub/internal/infrastructure/reliability"
	"callhub/internal/infrastructure/repositories"
	wsignal "callhub/internal/infrastructure/signal"
	"callhub/pkg/circuitbreaker"
	"callhub/pkg/config"
	"callhub/pkg/logger"
	"callhub/pkg/retry"
	"callhub/pkg/tracing"
	"callhub/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Fall back to defaults so a broken file never blocks a dev start
		cfg = config.DefaultConfig()
	}

	zapLogger, logErr := logger.New(cfg.Logging.Level)
	if logErr != nil {
		fmt.Fprintln(os.Stderr, logErr)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()
	if err != nil {
		log.Warnw("config not loaded, using defaults", "path", *configPath, "error", err)
	}

	tracingCfg := tracing.DefaultConfig()
	tracingCfg.Enabled = cfg.Tracing.Enabled
	tracingCfg.JaegerURL = cfg.Tracing.JaegerURL
	tracingCfg.Environment = cfg.Tracing.Environment
	tracingCfg.SampleRate = cfg.Tracing.SampleRate
	tp, err := tracing.Init(tracingCfg)
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	repoFactory := repositories.NewRepositoryFactory(cfg, log)
	registry := repoFactory.CreateConnectionRegistry()
	rooms := repoFactory.CreateRoomDirectory()
	sessionRepo := repoFactory.CreateSessionRepository()

	// Session metadata: store -> timeout/retry/breaker -> TTL cache
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Session.RetryAttempts
	cbCfg := circuitbreaker.DefaultConfig()
	cbCfg.FailureThreshold = cfg.Session.BreakerFailures
	cbCfg.Timeout = cfg.Session.BreakerReset
	guarded := reliability.NewSessionProviderWrapper(
		services.NewRepositorySessionProvider(sessionRepo),
		cfg.Session.LookupTimeout,
		retryCfg,
		cbCfg,
		log,
	)
	cachedSessions := services.NewCachedSessionProvider(guarded, cfg.Session.CacheTTL)
	defer cachedSessions.Stop()
	sessions := services.NewSessionController(cachedSessions, log)

	// Monitoring
	var metrics ports.SignalingMetrics = ports.NoopMetrics()
	if cfg.Monitoring.PrometheusEnabled {
		collector := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
		collector.ObserveBreaker("session_provider", func() float64 {
			return float64(guarded.BreakerState())
		})
		metrics = collector
	}

	// Transport and routing
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	wsServer := wsignal.NewWebSocketServer(authService, wsignal.OptionsFromConfig(cfg), log)

	var publisher ports.Publisher = wsServer
	var bus *distributed.EventBus
	if client := repoFactory.RedisClient(); client != nil {
		bus = distributed.NewEventBus(client, wsServer, cfg.Redis.Channel, utils.GenerateInstanceID(), log)
		publisher = bus
	}

	router := services.NewRouter(registry, rooms, sessions, publisher, metrics, log)
	wsServer.Bind(router)

	if bus != nil {
		bus.Observe(router)
		go func() {
			if err := bus.Run(ctx); err != nil && ctx.Err() == nil {
				log.Errorw("event bus stopped", "error", err)
			}
		}()
	}

	// Health
	checker := monitoring.NewHealthChecker()
	if client := repoFactory.RedisClient(); client != nil {
		checker.AddRedisCheck(client, 2*time.Second)
	}
	checker.AddSessionStoreCheck(sessionRepo, 2*time.Second)
	checker.AddBreakerCheck("session_provider", guarded.BreakerState)

	// HTTP
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(
		middleware.RecoveryMiddleware(log),
		middleware.RequestLoggerMiddleware(logger.NewContextLogger(zapLogger)),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(log),
	)

	engine.GET(cfg.Signal.Path, gin.WrapF(wsServer.HandleWebSocket))
	httphandlers.NewHealthHandler(checker, router).SetupRoutes(engine)
	if cfg.Monitoring.PrometheusEnabled {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := engine.Group("/api/v1", middleware.NewHTTPRateLimitMiddleware(cfg))
	public := api.Group("", middleware.OptionalAuthMiddleware(authService))
	httphandlers.NewICEHandler(cfg.WebRTC.ICEServers).SetupRoutes(public)

	private := api.Group("", middleware.AuthMiddleware(authService))
	httphandlers.NewSessionHandler(sessionRepo, cachedSessions, log).SetupRoutes(private)
	httphandlers.NewRoomHandler(router).SetupRoutes(private)

	srv := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     engine,
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout would cut hijacked websocket connections
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting callhub signaling server",
			"address", cfg.Server.Address,
			"ws_path", cfg.Signal.Path,
			"redis", repoFactory.RedisClient() != nil,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during http shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	wsCtx, wsCancel := context.WithTimeout(context.Background(), cfg.Signal.ShutdownTimeout)
	defer wsCancel()
	if err := wsServer.Shutdown(wsCtx); err != nil {
		log.Warnw("websocket connections did not drain", "error", err)
	}

	cancel()
	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warnw("error flushing traces", "error", err)
	}

	log.Info("callhub signaling server stopped")
}
