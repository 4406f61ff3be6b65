// Package server sets up the HTTP server with all routes.
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

	"github.com/tdhoang/trunggian/internal/auth"
	"github.com/tdhoang/trunggian/internal/balance"
	"github.com/tdhoang/trunggian/internal/chat"
	"github.com/tdhoang/trunggian/internal/config"
	"github.com/tdhoang/trunggian/internal/customer"
	"github.com/tdhoang/trunggian/internal/dispute"
	"github.com/tdhoang/trunggian/internal/escrow"
	"github.com/tdhoang/trunggian/internal/idgen"
	"github.com/tdhoang/trunggian/internal/logging"
	"github.com/tdhoang/trunggian/internal/metrics"
	"github.com/tdhoang/trunggian/internal/points"
	"github.com/tdhoang/trunggian/internal/ratelimit"
	"github.com/tdhoang/trunggian/internal/security"
	"github.com/tdhoang/trunggian/internal/traces"
	"github.com/tdhoang/trunggian/internal/validation"
	"github.com/tdhoang/trunggian/internal/wallet"
)

// Server wraps the HTTP server and dependencies.
type Server struct {
	cfg            *config.Config
	logger         *slog.Logger
	db             *sql.DB // nil if using in-memory storage
	authMgr        *auth.Manager
	customers      customer.Store
	book           *balance.Book
	points         *points.Service
	escrowService  *escrow.Service
	escrowStore    escrow.Store
	escrowTimer    *escrow.Timer
	disputeService *dispute.Service
	hub            *chat.Hub
	rateLimiter    *ratelimit.Limiter
	router         *gin.Engine
	httpSrv        *http.Server
	cancelRunCtx   context.CancelFunc         // cancels background goroutines started in Run
	shutdownTraces func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing, continuing without it", "error", err)
	} else {
		s.shutdownTraces = shutdownTraces
	}

	// Storage: Postgres if DATABASE_URL is set, in-memory otherwise.
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
		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		s.customers = customer.NewPostgresStore(db)
		s.authMgr = auth.NewManager(auth.NewPostgresStore(db))
		s.book = balance.New(balance.NewPostgresStore(db))
		s.points = points.New(points.NewPostgresStore(db))
		s.escrowStore = escrow.NewPostgresStore(db)
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		s.customers = customer.NewMemoryStore()
		s.authMgr = auth.NewManager(auth.NewMemoryStore())
		s.book = balance.New(balance.NewMemoryStore())
		s.points = points.New(points.NewMemoryStore())
		s.escrowStore = escrow.NewMemoryStore()
	}

	// Chat hub for realtime transaction events and per-transaction rooms.
	s.hub = chat.NewHub(s.logger)

	s.escrowService = escrow.NewService(s.escrowStore, s.book).
		WithCustomers(&customerDirectory{s.customers}).
		WithPoints(s.points).
		WithEmitter(s.hub).
		WithLimits(escrow.Limits{
			MinAmount:        cfg.MinAmount,
			MaxAmount:        cfg.MaxAmount,
			MaxDurationHours: cfg.MaxDurationHours,
		})
	s.escrowTimer = escrow.NewTimer(s.escrowService, s.escrowStore, cfg.ExpirySweep, s.logger)

	var disputeStore dispute.Store
	if s.db != nil {
		disputeStore = dispute.NewPostgresStore(s.db)
	} else {
		disputeStore = dispute.NewMemoryStore()
	}
	s.disputeService = dispute.NewService(disputeStore, s.escrowService)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// maskDSN hides the password in a connection string for logging.
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

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Đã xảy ra lỗi, vui lòng thử lại sau",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitRPM,
		BurstSize:         ratelimit.DefaultConfig().BurstSize,
	})
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

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

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for transaction events and chat. Auth is optional here:
	// anonymous clients can watch the general feed, authenticated ones are
	// identified in chat rooms.
	s.router.GET("/ws", auth.Middleware(s.authMgr), func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request, auth.GetCustomerID(c))
	})

	// V1 API group
	v1 := s.router.Group("/v1")
	v1.Use(validation.CustomerIDParamMiddleware())

	// PUBLIC ROUTES
	v1.GET("/platform", s.platformHandler)

	customerHandler := customer.NewHandler(s.customers, s.authMgr)
	escrowHandler := escrow.NewHandler(s.escrowService, s.escrowService.Limits())
	disputeHandler := dispute.NewHandler(s.disputeService)
	walletHandler := wallet.NewHandler(s.book, &customerDirectory{s.customers})

	customerHandler.RegisterPublicRoutes(v1)

	// PROTECTED ROUTES (require API key)
	protected := v1.Group("")
	protected.Use(auth.Middleware(s.authMgr), auth.RequireAuth(s.authMgr))
	{
		customerHandler.RegisterProtectedRoutes(protected)
		escrowHandler.RegisterProtectedRoutes(protected)
		disputeHandler.RegisterProtectedRoutes(protected)
		walletHandler.RegisterProtectedRoutes(protected)
		protected.GET("/points", s.pointsHandler)
		protected.POST("/points/spend", s.spendPointsHandler)
	}

	// ADMIN ROUTES (X-Admin-Secret header; disabled when no secret is set)
	admin := v1.Group("/admin")
	admin.Use(auth.RequireAdmin(s.cfg.AdminSecret))
	{
		escrowHandler.RegisterAdminRoutes(admin)
		disputeHandler.RegisterAdminRoutes(admin)
		walletHandler.RegisterAdminRoutes(admin)
		admin.GET("/chat/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, s.hub.Stats())
		})
	}
}

// platformHandler returns public platform parameters.
func (s *Server) platformHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"platform": gin.H{
			"name":     "Trunggian",
			"version":  "0.1.0",
			"currency": "VND",
		},
		"limits": gin.H{
			"minAmount":        s.cfg.MinAmount,
			"maxAmount":        s.cfg.MaxAmount,
			"maxDurationHours": s.cfg.MaxDurationHours,
		},
	})
}

// pointsHandler returns the authenticated customer's loyalty points.
func (s *Server) pointsHandler(c *gin.Context) {
	p, err := s.points.Get(c.Request.Context(), auth.GetCustomerID(c))
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to get points", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Đã xảy ra lỗi, vui lòng thử lại sau",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": p})
}

// spendPointsHandler redeems loyalty points.
func (s *Server) spendPointsHandler(c *gin.Context) {
	var req struct {
		Amount int64  `json:"amount" binding:"required"`
		Note   string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "amount required"})
		return
	}

	customerID := auth.GetCustomerID(c)
	err := s.points.Spend(c.Request.Context(), customerID, req.Amount, idgen.WithPrefix("rdm_"))
	switch {
	case errors.Is(err, points.ErrInsufficientPoints):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "insufficient_points",
			"message": "Không đủ điểm thưởng",
		})
		return
	case errors.Is(err, points.ErrInvalidPoints):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_points",
			"message": "Số điểm không hợp lệ",
		})
		return
	case err != nil:
		logging.L(c.Request.Context()).Error("failed to spend points", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Đã xảy ra lỗi, vui lòng thử lại sau",
		})
		return
	}

	p, err := s.points.Get(c.Request.Context(), customerID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"spent": req.Amount})
		return
	}
	c.JSON(http.StatusOK, gin.H{"spent": req.Amount, "points": p})
}

// HealthResponse for health check endpoints.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "in-memory"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
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

// Run starts the HTTP server with graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.hub.Run(runCtx)
	go s.escrowTimer.Start(runCtx)

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

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

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, timer, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	s.escrowTimer.Stop()
	s.logger.Info("expiry sweep stopped")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Warn("trace exporter shutdown error", "error", err)
		}
	}

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

// Router returns the gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// customerDirectory adapts customer.Store to the Exists checks used by
// the escrow and wallet packages.
type customerDirectory struct {
	store customer.Store
}

func (d *customerDirectory) Exists(ctx context.Context, customerID string) (bool, error) {
	_, err := d.store.Get(ctx, customerID)
	if errors.Is(err, customer.ErrCustomerNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
