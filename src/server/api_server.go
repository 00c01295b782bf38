package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"stock-cache/src/interfaces"
	"stock-cache/src/logger"
	"stock-cache/src/models"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// -----------------------------------------------------------------------------
// APIServer
// -----------------------------------------------------------------------------

type APIServer struct {
	Config        *models.MConfig
	Logger        *logger.Logger
	Stocks        interfaces.IStockService
	Subscriptions interfaces.ISubscriptions
	ProviderName  string

	engine   *gin.Engine
	validate *validator.Validate
	http     *http.Server

	// WebSocket clients
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	stopOnce   sync.Once
	stateMutex sync.RWMutex
}

var _ interfaces.IDataExchanger = (*APIServer)(nil)

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewAPIServer(cfg *models.MConfig, stocks interfaces.IStockService, subs interfaces.ISubscriptions, providerName string, log *logger.Logger) *APIServer {
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = logger.NewNop()
	}

	s := &APIServer{
		Config:        cfg,
		Logger:        log,
		Stocks:        stocks,
		Subscriptions: subs,
		ProviderName:  providerName,
		engine:        gin.New(),
		validate:      newValidator(),
		clients:       make(map[*Client]struct{}),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		quit:          make(chan struct{}),
	}

	s.engine.Use(gin.Recovery(), s.requestLogger(), corsMiddleware())
	s.setupRoutes()

	go s.runHub()
	return s
}

// -----------------------------------------------------------------------------

// corsMiddleware reflects any origin with credentials.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin := c.Request.Header.Get("Origin"); origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func (s *APIServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.Logger.Debug("%s %s -> %d", c.Request.Method, c.Request.URL.RequestURI(), c.Writer.Status())
	}
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	s.engine.GET("/stocks", s.getStocks)
	s.engine.GET("/prices", s.getPrices)
	s.engine.GET("/api/health", s.getHealth)

	// WebSocket endpoint
	s.engine.GET("/latest-prices", s.handleWebSocket)
}

// Handler exposes the routes without a listener.
func (s *APIServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *APIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.stateMutex.Lock()
	s.http = &http.Server{Addr: addr, Handler: s.engine}
	srv := s.http
	s.stateMutex.Unlock()

	s.Logger.Info("Starting server on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *APIServer) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.quit) })

	s.stateMutex.RLock()
	srv := s.http
	s.stateMutex.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// -----------------------------------------------------------------------------

// Connections returns the number of live websocket clients.
func (s *APIServer) Connections() int {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return len(s.clients)
}
