// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/mbd888/walletguard/internal/config"
	"github.com/mbd888/walletguard/internal/contractcheck"
	"github.com/mbd888/walletguard/internal/intel"
	"github.com/mbd888/walletguard/internal/logging"
	"github.com/mbd888/walletguard/internal/metrics"
	"github.com/mbd888/walletguard/internal/monitor"
	"github.com/mbd888/walletguard/internal/prevention"
	"github.com/mbd888/walletguard/internal/ratelimit"
	"github.com/mbd888/walletguard/internal/realtime"
	"github.com/mbd888/walletguard/internal/security"
	"github.com/mbd888/walletguard/internal/simulator"
	"github.com/mbd888/walletguard/internal/threat"
	"github.com/mbd888/walletguard/internal/traces"
	"github.com/mbd888/walletguard/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	engine       *prevention.Engine
	handler      *prevention.Handler
	store        prevention.Store
	feed         intel.Feed
	hub          *realtime.Hub
	monitor      *monitor.Monitor
	rateLimiter  *ratelimit.Limiter
	db           *sql.DB       // nil if using in-memory
	rdb          *redis.Client // nil if no intel cache
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	stopTraces   func(context.Context) error
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSimulatorFeed sets custom collaborators (for testing)
func WithSimulatorFeed(sim simulator.Simulator, feed intel.Feed) Option {
	return func(s *Server) {
		s.engine = prevention.NewEngine(sim, feed)
		s.feed = feed
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set engine/logger)
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		pgStore := prevention.NewPostgresStore(db)
		if err := pgStore.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		s.db = db
		s.store = pgStore
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.store = prevention.NewMemoryStore()
		s.logger.Info("using in-memory storage")
	}

	// Collaborators, unless a test already injected them
	if s.engine == nil {
		feed, err := s.buildIntelFeed()
		if err != nil {
			return nil, err
		}
		s.feed = feed

		var sim simulator.Simulator
		if cfg.SimulatorURL != "" {
			sim = simulator.NewClient(cfg.SimulatorURL, cfg.SimulatorKey)
			s.logger.Info("using remote simulator", "url", cfg.SimulatorURL)
		} else {
			sim = simulator.Static{}
			s.logger.Warn("no SIMULATOR_URL configured, simulation is a pass-through")
		}

		s.engine = prevention.NewEngine(sim, feed)
	}

	validator := contractcheck.New()
	if cfg.ExplorerURL != "" {
		validator = contractcheck.New(contractcheck.WithVerifier(
			contractcheck.NewExplorerVerifier(cfg.ExplorerURL, cfg.ExplorerKey)))
		s.logger.Info("contract source verification enabled", "explorer", cfg.ExplorerURL)
	}

	s.engine = s.engine.
		WithStore(s.store).
		WithValidator(validator).
		WithLargeTransferThreshold(cfg.LargeTransferThreshold)

	// Realtime alert hub
	s.hub = realtime.NewHub(s.logger)

	// On-chain monitor
	if cfg.MonitorEnabled {
		mon, err := monitor.New(monitor.Config{
			RPCURL:       cfg.RPCURL,
			PollInterval: cfg.MonitorPollInterval,
			StartBlock:   cfg.MonitorStartBlock,
		}, s.feed, hubSink{hub: s.hub}, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create monitor: %w", err)
		}
		s.monitor = mon
	}

	s.handler = prevention.NewHandler(s.engine, s.store, s.feed).
		WithNotifier(s.onEvaluation)

	// Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// buildIntelFeed layers the configured threat intelligence sources: builtin
// denylist, optional YAML rules file, optional remote API, with an optional
// Redis cache in front of the whole chain.
func (s *Server) buildIntelFeed() (intel.Feed, error) {
	var feed intel.Feed

	if s.cfg.IntelRulesFile != "" {
		f, err := intel.NewStaticFeedFromFile(s.cfg.IntelRulesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load intel rules: %w", err)
		}
		feed = f
		s.logger.Info("loaded intel rules file", "path", s.cfg.IntelRulesFile)
	} else {
		feed = intel.NewStaticFeed()
	}

	if s.cfg.IntelURL != "" {
		feed = intel.NewChain(feed, intel.NewHTTPFeed(s.cfg.IntelURL, s.cfg.IntelKey))
		s.logger.Info("using remote intel feed", "url", s.cfg.IntelURL)
	}

	if s.cfg.RedisURL != "" {
		opt, err := redis.ParseURL(s.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		s.rdb = redis.NewClient(opt)
		feed = intel.NewCachedFeed(feed, s.rdb, s.cfg.IntelCacheTTL, s.logger)
		s.logger.Info("intel verdicts cached in redis", "ttl", s.cfg.IntelCacheTTL)
	}

	return feed, nil
}

// onEvaluation fans a completed evaluation out to realtime subscribers and
// puts the sender under on-chain watch.
func (s *Server) onEvaluation(tx *threat.Transaction, result *prevention.Result) {
	s.hub.BroadcastEvaluation(realtime.EvaluationEvent{
		Wallet:    tx.From,
		To:        tx.To,
		Allowed:   result.Allowed,
		RiskLevel: string(result.RiskLevel),
		RiskScore: result.RiskScore,
		Threats:   len(result.Threats),
	})

	if !result.Allowed {
		for _, t := range result.Threats {
			if t.Severity != threat.SeverityCritical && t.Severity != threat.SeverityHigh {
				continue
			}
			s.hub.BroadcastThreatAlert(realtime.ThreatAlert{
				Wallet:      tx.From,
				Type:        t.Type,
				Severity:    string(t.Severity),
				Description: t.Description,
				Source:      t.Source,
			})
		}
	}

	// Wallets that use the gateway stay protected between transactions.
	if s.monitor != nil {
		s.monitor.Watch(tx.From)
	}
}

// hubSink forwards monitor alerts to the realtime hub.
type hubSink struct {
	hub *realtime.Hub
}

func (h hubSink) Alert(ctx context.Context, alert monitor.Alert) {
	h.hub.BroadcastThreatAlert(realtime.ThreatAlert{
		Wallet:      alert.Wallet,
		Type:        alert.Type,
		Severity:    string(alert.Severity),
		Description: alert.Description,
		Source:      "monitor",
	})
	h.hub.BroadcastWalletActivity(alert)
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Realtime alert stream
	s.router.GET("/ws/alerts", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	// Threat prevention API
	v1 := s.router.Group("/v1")
	s.handler.RegisterRoutes(v1)
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unhealthy"
		} else {
			checks["redis"] = "healthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v != "healthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing (no-op when no collector is configured)
	stopTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Error("failed to init tracing", "error", err)
	} else {
		s.stopTraces = stopTraces
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.hub.Run(runCtx)

	// Start on-chain monitor
	if s.monitor != nil {
		if err := s.monitor.Start(runCtx); err != nil {
			s.logger.Error("failed to start monitor", "error", err)
		}
	}

	// Background metric collectors
	metrics.StartProfileCollector(runCtx, s.engine.Learner().Len, 15*time.Second)
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, monitor, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop on-chain monitor
	if s.monitor != nil {
		s.monitor.Stop()
		s.logger.Info("monitor stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush traces
	if s.stopTraces != nil {
		if err := s.stopTraces(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	// Close redis connection
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
