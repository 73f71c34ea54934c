package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MuhdNihalCY/wpdebuglog/internal/config"
	"github.com/MuhdNihalCY/wpdebuglog/internal/handler"
	"github.com/MuhdNihalCY/wpdebuglog/internal/logger"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an idle client keeps its rate limiter.
const limiterIdleTTL = 24 * time.Hour

// Dependencies holds the dependencies needed by the server.
type Dependencies struct {
	Config    *config.Config
	Store     handler.LogStore
	AppLogger *logger.AppLogger
}

// rateLimiterEntry is a per-client limiter plus the time it was last used.
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Server represents the admin HTTP server.
type Server struct {
	router     *gin.Engine
	config     *config.Config
	deps       Dependencies
	appLogger  *logger.AppLogger
	srvMu      sync.Mutex
	httpServer *http.Server

	// keyed by client IP
	limiters     sync.Map
	limiterMu    sync.Mutex // serializes lastSeen updates
	rateLimit    rate.Limit
	burstLimit   int
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewServer creates a new server instance with its dependencies.
func NewServer(deps Dependencies) *Server {
	if deps.Config == nil {
		panic("server: Config dependency cannot be nil")
	}
	if deps.Store == nil {
		panic("server: Store dependency cannot be nil")
	}
	if deps.AppLogger == nil {
		panic("server: AppLogger dependency cannot be nil")
	}

	switch deps.Config.Admin.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(deps.Config.Admin.TrustedProxies); err != nil {
		deps.AppLogger.Error("Invalid admin.trusted_proxies, trusting none: %v", err)
		_ = router.SetTrustedProxies(nil)
	}

	s := &Server{
		router:       router,
		config:       deps.Config,
		deps:         deps,
		appLogger:    deps.AppLogger,
		shutdownChan: make(chan struct{}),
	}

	router.Use(s.requestLogMiddleware())
	router.Use(gin.CustomRecovery(s.recoveryHandler))

	if limit := deps.Config.Admin.RateLimit; limit > 0 {
		// requests per minute to requests per second, bursting up to the per-minute limit
		s.rateLimit = rate.Limit(float64(limit) / 60.0)
		s.burstLimit = limit
		s.appLogger.Info("Rate limiting enabled for POST /api/logs: Rate=%.2f req/sec, Burst=%d", float64(s.rateLimit), s.burstLimit)
		go s.cleanupRateLimiters()
	} else {
		s.rateLimit = rate.Inf
		s.appLogger.Info("Rate limiting disabled for POST /api/logs")
	}

	s.setupRoutes()
	return s
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	tokenTTL, err := config.ParseDuration(s.config.Admin.Token.Expiration)
	if err != nil {
		tokenTTL, _ = config.ParseDuration(config.DefaultTokenTTL)
	}

	logsDeps := handler.LogsHandlerDeps{
		Store:        s.deps.Store,
		AppLogger:    s.appLogger,
		TokenSecret:  s.config.Admin.Token.Secret,
		TokenTTL:     tokenTTL,
		DefaultLines: s.config.Admin.DefaultLines,
		MaxLines:     s.config.Admin.MaxLines,
	}

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.HEAD("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	s.router.GET("/version", handler.VersionHandler)

	api := s.router.Group("/api")
	{
		api.GET("/logs", handler.NewTailHandler(logsDeps))
		if s.rateLimit != rate.Inf {
			api.POST("/logs", s.rateLimitMiddleware(), handler.NewWriteHandler(logsDeps))
		} else {
			api.POST("/logs", handler.NewWriteHandler(logsDeps))
		}
		api.POST("/logs/clear", handler.NewClearHandler(logsDeps))
		api.POST("/retention", handler.NewRetentionHandler(logsDeps))
	}
}

// recoveryHandler turns a handler panic into an ERROR record.
func (s *Server) recoveryHandler(c *gin.Context, recovered any) {
	s.deps.Store.LogError(c.FullPath(), fmt.Sprint(recovered), map[string]interface{}{
		"method": c.Request.Method,
	}, handler.RequestMeta(c))
	s.appLogger.Error("Recovered panic in %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

// requestLogMiddleware logs each request at DEBUG; health checks at TRACE.
func (s *Server) requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log := s.appLogger.Debug
		if c.Request.URL.Path == "/health" {
			log = s.appLogger.Trace
		}
		log("%s %s %d %s (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}

// rateLimitMiddleware creates a Gin middleware for rate limiting based on IP.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		value, _ := s.limiters.LoadOrStore(ip, &rateLimiterEntry{
			limiter:  rate.NewLimiter(s.rateLimit, s.burstLimit),
			lastSeen: now,
		})
		entry := value.(*rateLimiterEntry)

		s.limiterMu.Lock()
		entry.lastSeen = now
		s.limiterMu.Unlock()

		if !entry.limiter.Allow() {
			s.appLogger.Info("Rate limit exceeded for IP: %s", ip)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// cleanupRateLimiters drops limiters of clients idle for longer than
// limiterIdleTTL until the server shuts down.
func (s *Server) cleanupRateLimiters() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdownChan:
			return
		case now := <-ticker.C:
			s.pruneLimiters(now)
		}
	}
}

func (s *Server) pruneLimiters(now time.Time) {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	s.limiters.Range(func(key, value interface{}) bool {
		if now.Sub(value.(*rateLimiterEntry).lastSeen) > limiterIdleTTL {
			s.limiters.Delete(key)
		}
		return true
	})
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	select {
	case <-s.shutdownChan:
		return nil
	default:
	}

	addr := fmt.Sprintf("%s:%d", s.config.Admin.Host, s.config.Admin.Port)
	s.srvMu.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.srvMu.Unlock()

	s.appLogger.Info("Starting admin server on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin server failed: %w", err)
	}
	return nil
}

// Shutdown stops the cleanup goroutine and gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })

	s.srvMu.Lock()
	srv := s.httpServer
	s.srvMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
