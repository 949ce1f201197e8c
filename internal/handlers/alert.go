package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Cyvadra/stock-alert/internal/config"
	"github.com/Cyvadra/stock-alert/internal/logging"
	"github.com/Cyvadra/stock-alert/internal/models"
	"github.com/Cyvadra/stock-alert/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SweepRunner triggers sweeps on demand
type SweepRunner interface {
	RunNow(ctx context.Context, kind services.SweepKind) (services.SweepResult, error)
}

// Pipeline evaluates one security and exposes the current alert settings
type Pipeline interface {
	EvaluateSecurity(ctx context.Context, code string) (*services.Evaluated, error)
	Settings(ctx context.Context) config.AlertSettings
}

// QuoteResolver resolves a quote
type QuoteResolver interface {
	Resolve(ctx context.Context, code string) (*models.Quote, error)
}

// AlertReader reads the audit log
type AlertReader interface {
	GetAlert(ctx context.Context, id uint) (*models.AlertLog, error)
	GetAlerts(ctx context.Context, page, limit int, filter services.AlertFilter) ([]models.AlertLog, int64, error)
}

// CooldownReader lists ledger rows
type CooldownReader interface {
	List(ctx context.Context, code string, windowOf func(models.ConditionType) time.Duration) ([]services.CooldownStatus, error)
}

// AlertHandler serves the on-demand sweep, evaluation and read endpoints
type AlertHandler struct {
	sweeps    SweepRunner
	pipeline  Pipeline
	quotes    QuoteResolver
	alerts    AlertReader
	cooldowns CooldownReader
	logger    zerolog.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(sweeps SweepRunner, pipeline Pipeline, quotes QuoteResolver, alerts AlertReader, cooldowns CooldownReader, logger zerolog.Logger) *AlertHandler {
	return &AlertHandler{
		sweeps:    sweeps,
		pipeline:  pipeline,
		quotes:    quotes,
		alerts:    alerts,
		cooldowns: cooldowns,
		logger:    logging.Component(logger, "http"),
	}
}

// RunSweep runs a sweep now and returns its summary
func (h *AlertHandler) RunSweep(c *gin.Context) {
	kind, err := services.ParseSweepKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// the sweep finishes even if the caller disconnects
	result, err := h.sweeps.RunNow(context.WithoutCancel(c.Request.Context()), kind)
	switch {
	case errors.Is(err, services.ErrSweepRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error().Err(err).Str("sweep", string(kind)).Msg("On-demand sweep failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Sweep failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// EvaluateSecurity runs every condition for one security
func (h *AlertHandler) EvaluateSecurity(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	out, err := h.pipeline.EvaluateSecurity(c.Request.Context(), code)
	switch {
	case errors.Is(err, services.ErrQuoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Quote not found", "code": code})
		return
	case err != nil:
		h.logger.Error().Err(err).Str("code", code).Msg("Evaluation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Evaluation failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetQuote resolves a quote without evaluating it
func (h *AlertHandler) GetQuote(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	quote, err := h.quotes.Resolve(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Quote not found", "code": code})
		return
	}
	c.JSON(http.StatusOK, quote)
}

// GetAlerts retrieves audit log rows with pagination
func (h *AlertHandler) GetAlerts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 20
	}
	filter := services.AlertFilter{
		Code:      c.Query("code"),
		Condition: models.ConditionType(strings.ToUpper(c.Query("type"))),
	}

	alerts, total, err := h.alerts.GetAlerts(c.Request.Context(), page, limit, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"total":  total,
		"page":   page,
		"limit":  limit,
	})
}

// GetAlert retrieves a specific audit row by ID
func (h *AlertHandler) GetAlert(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert ID"})
		return
	}

	alert, err := h.alerts.GetAlert(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}

	c.JSON(http.StatusOK, alert)
}

// GetCooldowns lists ledger rows with the time left in each window
func (h *AlertHandler) GetCooldowns(c *gin.Context) {
	settings := h.pipeline.Settings(c.Request.Context())
	windowOf := func(ct models.ConditionType) time.Duration {
		return services.CooldownFor(ct, settings)
	}

	rows, err := h.cooldowns.List(c.Request.Context(), c.Query("code"), windowOf)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve cooldowns"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cooldowns": rows})
}
