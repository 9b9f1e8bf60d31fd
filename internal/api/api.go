// Package api exposes the engine over HTTP: alert/position/account queries
// and the manual trading commands.
package api

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/whalepulse/engine/internal/enrich"
	"github.com/whalepulse/engine/internal/store"
	"github.com/whalepulse/engine/internal/trading"
)

const (
	ServiceName    = "whalepulse-engine"
	ServiceVersion = "1.0.0"

	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
)

// Engine is the surface the handlers need from the trading engine.
type Engine interface {
	Alerts() []store.Alert
	Positions() []store.Position
	History() []store.TradeHistoryItem
	Account() store.AccountState
	Strategy() store.StrategyConfig
	SetStrategy(store.StrategyConfig)
	OpenManual(req trading.ManualOpenRequest) (store.Position, error)
	ClosePosition(id string) error
	EmergencyStop() int
	Candidate(symbol string) (enrich.Candidate, bool)
}

// Handler handles HTTP requests using the Gin framework.
type Handler struct {
	engine Engine
	logger *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(engine Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine: engine,
		logger: logger,
	}
}

// StartServer starts the HTTP server.
func (h *Handler) StartServer(port int) error {
	router := h.SetupRoutes()
	return router.Run(":" + strconv.Itoa(port))
}

// SetupRoutes configures all API routes.
func (h *Handler) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(requestIDMiddleware())
	router.Use(ginLoggerMiddleware(h.logger))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/alerts", h.GetAlerts)
	router.GET("/positions", h.GetPositions)
	router.GET("/history", h.GetHistory)
	router.GET("/account", h.GetAccount)
	router.GET("/config", h.GetConfig)
	router.PUT("/config", h.UpdateConfig)
	router.GET("/candidates/:symbol", h.GetCandidate)
	router.POST("/positions", h.OpenPosition)
	router.DELETE("/positions/:id", h.ClosePosition)
	router.POST("/emergency-stop", h.EmergencyStop)
	router.GET("/health", h.HealthCheck)

	return router
}
