package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/whalepulse/engine/internal/store"
	"github.com/whalepulse/engine/internal/trading"
)

// GetAlerts handles GET /alerts. Alerts are newest first; limit trims the
// response.
func (h *Handler) GetAlerts(c *gin.Context) {
	alerts := h.engine.Alerts()
	if limit, ok := parseLimit(c.Query("limit")); ok && limit < len(alerts) {
		alerts = alerts[:limit]
	}
	c.JSON(http.StatusOK, alerts)
}

// GetPositions handles GET /positions.
func (h *Handler) GetPositions(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Positions())
}

// GetHistory handles GET /history.
func (h *Handler) GetHistory(c *gin.Context) {
	history := h.engine.History()
	if limit, ok := parseLimit(c.Query("limit")); ok && limit < len(history) {
		history = history[:limit]
	}
	c.JSON(http.StatusOK, history)
}

// GetAccount handles GET /account.
func (h *Handler) GetAccount(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Account())
}

// GetConfig handles GET /config.
func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Strategy())
}

// UpdateConfig handles PUT /config. The payload is merged over the current
// strategy: fields omitted from the JSON keep their existing values, so a
// partial update never zeroes the blacklist or the toggles. The engine picks
// the new values up on its next cycle.
func (h *Handler) UpdateConfig(c *gin.Context) {
	strat := h.engine.Strategy()
	if err := c.ShouldBindJSON(&strat); err != nil {
		h.handleError(c, err, http.StatusBadRequest, "invalid config payload")
		return
	}

	if strat.Leverage <= 0 || strat.RiskPerTrade <= 0 || strat.StopLossPercent <= 0 {
		h.handleError(c, errInvalidStrategy, http.StatusBadRequest, errInvalidStrategy.Error())
		return
	}

	h.engine.SetStrategy(strat)
	c.JSON(http.StatusOK, strat)
}

// GetCandidate handles GET /candidates/:symbol, the cached pump enrichment.
func (h *Handler) GetCandidate(c *gin.Context) {
	candidate, ok := h.engine.Candidate(c.Param("symbol"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no candidate data"})
		return
	}
	c.JSON(http.StatusOK, candidate)
}

// openPositionRequest is the manual open payload. Only symbol and side are
// required; zero-valued overrides fall back to the strategy config.
type openPositionRequest struct {
	Symbol          string  `json:"symbol" binding:"required"`
	Side            string  `json:"side" binding:"required"`
	Leverage        float64 `json:"leverage"`
	RiskPerTrade    float64 `json:"riskPerTrade"`
	StopLossPercent float64 `json:"stopLossPercent"`
	TP1Percent      float64 `json:"tp1Percent"`
	TP2Percent      float64 `json:"tp2Percent"`
}

// OpenPosition handles POST /positions.
func (h *Handler) OpenPosition(c *gin.Context) {
	var req openPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, err, http.StatusBadRequest, "invalid position payload")
		return
	}

	pos, err := h.engine.OpenManual(trading.ManualOpenRequest{
		Symbol:          req.Symbol,
		Side:            store.Side(req.Side),
		Leverage:        req.Leverage,
		RiskPerTrade:    req.RiskPerTrade,
		StopLossPercent: req.StopLossPercent,
		TP1Percent:      req.TP1Percent,
		TP2Percent:      req.TP2Percent,
	})
	if err != nil {
		h.handleError(c, err, http.StatusUnprocessableEntity, err.Error())
		return
	}
	c.JSON(http.StatusCreated, pos)
}

// ClosePosition handles DELETE /positions/:id.
func (h *Handler) ClosePosition(c *gin.Context) {
	if err := h.engine.ClosePosition(c.Param("id")); err != nil {
		h.handleError(c, err, http.StatusNotFound, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

// EmergencyStop handles POST /emergency-stop: closes every open position.
func (h *Handler) EmergencyStop(c *gin.Context) {
	closed := h.engine.EmergencyStop()
	c.JSON(http.StatusOK, gin.H{"closed": closed})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"service":   ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   ServiceVersion,
	})
}

// handleError logs the error and sends the HTTP response.
func (h *Handler) handleError(c *gin.Context, err error, statusCode int, userMessage string) {
	requestID := "unknown"
	if id, exists := c.Get(RequestIDContextKey); exists {
		if s, ok := id.(string); ok {
			requestID = s
		}
	}

	h.logger.Error("api_error",
		slog.String("request_id", requestID),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("error", err.Error()),
		slog.Int("status_code", statusCode),
	)

	c.JSON(statusCode, gin.H{
		"error":      userMessage,
		"request_id": requestID,
	})
}

// parseLimit parses a positive limit query parameter.
func parseLimit(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
