package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"ibkr-sma-scanner/internal/assistant"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/session"
	"ibkr-sma-scanner/internal/smacache"
	"ibkr-sma-scanner/internal/types"
)

type Connection interface {
	Status() session.Status
	IsConnected() bool
	ScheduleReconnect() bool
}

type CacheReader interface {
	Load(ctx context.Context) (smacache.Table, string, error)
	CheckStaleness(ctx context.Context, cacheDate string, now time.Time) (string, bool)
}

type Scanner interface {
	Run(ctx context.Context, universe []string) (types.ScanResult, error)
}

type Asker interface {
	Ask(ctx context.Context, question string) assistant.Answer
}

// UniverseFunc loads the ticker universe for a scan.
type UniverseFunc func() ([]string, error)

type Deps struct {
	Conn      Connection
	Cache     CacheReader
	Scanner   Scanner
	Assistant Asker
	Universe  UniverseFunc
}

// Server exposes connection status, cache state, scans and the assistant
// over HTTP, and pushes scan results to websocket clients.
type Server struct {
	addr   string
	deps   Deps
	engine *gin.Engine
	hub    *hub

	// one scan at a time
	scanMu sync.Mutex

	now func() time.Time
}

func New(addr string, deps Deps) *Server {
	if !logger.IsDebugEnabled() {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		addr:   addr,
		deps:   deps,
		engine: gin.New(),
		hub:    newHub(),
		now:    time.Now,
	}
	s.engine.Use(gin.Recovery(), requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)
	api.GET("/connection", s.getConnection)
	api.GET("/cache", s.getCache)
	api.POST("/scan", s.postScan)
	api.POST("/ask", s.postAsk)
	api.POST("/reconnect", s.postReconnect)

	s.engine.GET("/ws", s.handleWebSocket)
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.engine}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "Starting API server", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info(ctx, "Stopping API server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"connected": s.deps.Conn.IsConnected(),
		"time":      s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) getConnection(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Conn.Status())
}

func (s *Server) getCache(c *gin.Context) {
	ctx := c.Request.Context()
	table, date, err := s.deps.Cache.Load(ctx)
	if err != nil {
		if errors.Is(err, smacache.ErrCacheNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "sma cache not built"})
			return
		}
		logger.ErrorWithErr(ctx, "Failed to load sma cache", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	expected, stale := s.deps.Cache.CheckStaleness(ctx, date, s.now())
	c.JSON(http.StatusOK, gin.H{
		"cache_date":    date,
		"expected_date": expected,
		"stale":         stale,
		"tickers":       len(table),
	})
}

type scanRequest struct {
	Tickers []string `json:"tickers"`
}

func (s *Server) postScan(c *gin.Context) {
	ctx := c.Request.Context()

	var req scanRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if !s.deps.Conn.IsConnected() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "broker not connected"})
		return
	}
	if !s.scanMu.TryLock() {
		c.JSON(http.StatusConflict, gin.H{"error": "scan already running"})
		return
	}
	defer s.scanMu.Unlock()

	universe := req.Tickers
	if len(universe) == 0 {
		u, err := s.deps.Universe()
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to load universe", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		universe = u
	}

	res, err := s.deps.Scanner.Run(ctx, universe)
	if err != nil {
		if errors.Is(err, smacache.ErrCacheNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "sma cache not built"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.hub.publish(res)
	c.JSON(http.StatusOK, res)
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

func (s *Server) postAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}
	c.JSON(http.StatusOK, s.deps.Assistant.Ask(c.Request.Context(), req.Question))
}

func (s *Server) postReconnect(c *gin.Context) {
	if s.deps.Conn.IsConnected() {
		c.JSON(http.StatusOK, gin.H{"started": false, "connected": true})
		return
	}
	started := s.deps.Conn.ScheduleReconnect()
	c.JSON(http.StatusAccepted, gin.H{"started": started, "connected": false})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug(c.Request.Context(), "HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
