package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Cyvadra/stock-alert/internal/config"
	"github.com/Cyvadra/stock-alert/internal/models"
	"github.com/Cyvadra/stock-alert/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeps struct {
	err    error
	kind   services.SweepKind
	ctxErr error
}

func (f *fakeSweeps) RunNow(ctx context.Context, kind services.SweepKind) (services.SweepResult, error) {
	f.kind = kind
	f.ctxErr = ctx.Err()
	return services.SweepResult{Kind: kind, Securities: 3, Events: 1}, f.err
}

type fakePipeline struct {
	err error
}

func (f *fakePipeline) EvaluateSecurity(ctx context.Context, code string) (*services.Evaluated, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.Evaluated{
		Quote:  &models.Quote{Code: code, Price: 610},
		Events: []models.AlertEvent{{ConditionType: models.ConditionPriceChange, SecurityCode: code}},
	}, nil
}

func (f *fakePipeline) Settings(ctx context.Context) config.AlertSettings {
	s := config.DefaultAlertSettings()
	s.TechnicalCooldown = 2 * time.Hour
	return s
}

type fakeQuotes struct{}

func (fakeQuotes) Resolve(ctx context.Context, code string) (*models.Quote, error) {
	if code != "2330" {
		return nil, services.ErrQuoteNotFound
	}
	return &models.Quote{Code: "2330", Name: "台積電", Price: 610, Source: "tse-live"}, nil
}

type fakeAlerts struct {
	page, limit int
	filter      services.AlertFilter
}

func (f *fakeAlerts) GetAlert(ctx context.Context, id uint) (*models.AlertLog, error) {
	if id != 1 {
		return nil, errors.New("record not found")
	}
	return &models.AlertLog{ID: 1, EventID: "evt-1"}, nil
}

func (f *fakeAlerts) GetAlerts(ctx context.Context, page, limit int, filter services.AlertFilter) ([]models.AlertLog, int64, error) {
	f.page, f.limit, f.filter = page, limit, filter
	return []models.AlertLog{{ID: 1}}, 41, nil
}

type fakeCooldowns struct {
	windows map[models.ConditionType]time.Duration
}

func (f *fakeCooldowns) List(ctx context.Context, code string, windowOf func(models.ConditionType) time.Duration) ([]services.CooldownStatus, error) {
	f.windows = map[models.ConditionType]time.Duration{
		models.ConditionRSIOverbought: windowOf(models.ConditionRSIOverbought),
		models.ConditionPriceChange:   windowOf(models.ConditionPriceChange),
	}
	return []services.CooldownStatus{{
		CooldownEntry: models.CooldownEntry{SecurityCode: code, ConditionType: models.ConditionRSIOverbought},
		Active:        true,
	}}, nil
}

type harness struct {
	router    *gin.Engine
	sweeps    *fakeSweeps
	pipeline  *fakePipeline
	alerts    *fakeAlerts
	cooldowns *fakeCooldowns
}

func newHarness() *harness {
	gin.SetMode(gin.TestMode)
	h := &harness{
		sweeps:    &fakeSweeps{},
		pipeline:  &fakePipeline{},
		alerts:    &fakeAlerts{},
		cooldowns: &fakeCooldowns{},
	}
	handler := NewAlertHandler(h.sweeps, h.pipeline, fakeQuotes{}, h.alerts, h.cooldowns, zerolog.Nop())

	h.router = gin.New()
	h.router.POST("/sweeps/:kind", handler.RunSweep)
	h.router.POST("/securities/:code/evaluate", handler.EvaluateSecurity)
	h.router.GET("/quotes/:code", handler.GetQuote)
	h.router.GET("/alerts", handler.GetAlerts)
	h.router.GET("/alerts/:id", handler.GetAlert)
	h.router.GET("/cooldowns", handler.GetCooldowns)
	return h
}

func (h *harness) do(method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestRunSweep(t *testing.T) {
	t.Run("runs a known sweep", func(t *testing.T) {
		h := newHarness()
		rec, body := h.do(http.MethodPost, "/sweeps/risk")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, services.SweepRisk, h.sweeps.kind)
		assert.Equal(t, "risk", body["kind"])
		assert.Equal(t, 3.0, body["securities"])
	})

	t.Run("outlives a disconnected caller", func(t *testing.T) {
		h := newHarness()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sweeps/intraday", nil).WithContext(ctx))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, services.SweepIntraday, h.sweeps.kind)
		assert.NoError(t, h.sweeps.ctxErr)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		h := newHarness()
		rec, _ := h.do(http.MethodPost, "/sweeps/hourly")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, h.sweeps.kind)
	})

	t.Run("conflict while running", func(t *testing.T) {
		h := newHarness()
		h.sweeps.err = fmt.Errorf("%w: intraday", services.ErrSweepRunning)
		rec, _ := h.do(http.MethodPost, "/sweeps/intraday")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("internal failure", func(t *testing.T) {
		h := newHarness()
		h.sweeps.err = errors.New("disk I/O error")
		rec, body := h.do(http.MethodPost, "/sweeps/cleanup")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Sweep failed", body["error"])
	})
}

func TestEvaluateSecurity(t *testing.T) {
	t.Run("returns events", func(t *testing.T) {
		h := newHarness()
		rec, body := h.do(http.MethodPost, "/securities/2330/evaluate")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, body["events"], 1)
	})

	t.Run("unknown security", func(t *testing.T) {
		h := newHarness()
		h.pipeline.err = fmt.Errorf("%w: 9999", services.ErrQuoteNotFound)
		rec, body := h.do(http.MethodPost, "/securities/9999/evaluate")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "9999", body["code"])
	})
}

func TestGetQuote(t *testing.T) {
	h := newHarness()
	rec, body := h.do(http.MethodGet, "/quotes/2330")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tse-live", body["source"])

	rec, _ = h.do(http.MethodGet, "/quotes/XXXX")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAlerts(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		h := newHarness()
		rec, body := h.do(http.MethodGet, "/alerts")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, h.alerts.page)
		assert.Equal(t, 20, h.alerts.limit)
		assert.Equal(t, 41.0, body["total"])
	})

	t.Run("filters and clamps", func(t *testing.T) {
		h := newHarness()
		rec, _ := h.do(http.MethodGet, "/alerts?page=0&limit=1000&code=2330&type=stop_loss")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, h.alerts.page)
		assert.Equal(t, 20, h.alerts.limit)
		assert.Equal(t, "2330", h.alerts.filter.Code)
		assert.Equal(t, models.ConditionStopLoss, h.alerts.filter.Condition)
	})
}

func TestGetAlert(t *testing.T) {
	h := newHarness()

	rec, body := h.do(http.MethodGet, "/alerts/1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "evt-1", body["event_id"])

	rec, _ = h.do(http.MethodGet, "/alerts/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(http.MethodGet, "/alerts/7")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCooldowns(t *testing.T) {
	h := newHarness()
	rec, body := h.do(http.MethodGet, "/cooldowns?code=2330")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["cooldowns"], 1)

	assert.Equal(t, 2*time.Hour, h.cooldowns.windows[models.ConditionRSIOverbought])
	assert.Equal(t, 4*time.Hour, h.cooldowns.windows[models.ConditionPriceChange])
}
