// Package app wires configuration, storage, providers and services into a
// running alert engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Cyvadra/stock-alert/internal/config"
	"github.com/Cyvadra/stock-alert/internal/database"
	"github.com/Cyvadra/stock-alert/internal/handlers"
	"github.com/Cyvadra/stock-alert/internal/routes"
	"github.com/Cyvadra/stock-alert/internal/services"
	"github.com/Cyvadra/stock-alert/provider"
	"github.com/Cyvadra/stock-alert/provider/google"
	"github.com/Cyvadra/stock-alert/provider/twse"
	"github.com/Cyvadra/stock-alert/provider/yahoo"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// App holds the application dependencies
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	DB        *gorm.DB
	Metrics   *services.Metrics
	Resolver  *services.Resolver
	Ledger    *services.Ledger
	Alerts    *services.AlertService
	Sweeps    *services.SweepService
	Scheduler *services.Scheduler
}

// New builds the application from configuration
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	db, err := database.InitDatabase(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	return NewWithDB(cfg, logger, db), nil
}

// NewWithDB builds the application on an open database
func NewWithDB(cfg *config.Config, logger zerolog.Logger, db *gorm.DB) *App {
	metrics := services.NewMetrics()

	resolver := services.NewResolver(db, BuildLadders(cfg.Providers), logger, metrics)
	history := services.NewHistoryService(db)
	engine := services.NewIndicatorEngine(history)
	ledger := services.NewLedger(db)
	evaluator := services.NewEvaluator(db, ledger, logger, metrics)
	dispatcher := services.NewDispatcher(db, services.NewLinePusher(cfg.Line), cfg.Line.Recipient, cfg.Line.PushInterval, logger, metrics)
	sweeps := services.NewSweepService(db, resolver, history, engine, evaluator, dispatcher, cfg.Scheduler, logger, metrics)

	return &App{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Metrics:   metrics,
		Resolver:  resolver,
		Ledger:    ledger,
		Alerts:    services.NewAlertService(db),
		Sweeps:    sweeps,
		Scheduler: services.NewScheduler(sweeps, cfg.Scheduler, logger, metrics),
	}
}

// BuildLadders creates every upstream provider in resolution order
func BuildLadders(cfg config.ProvidersConfig) services.Ladders {
	domestic := provider.NewClient(provider.ClientConfig{
		Timeout:      cfg.Timeout,
		UserAgent:    cfg.UserAgent,
		HostInterval: cfg.HostInterval,
	})
	foreign := provider.NewClient(provider.ClientConfig{
		Timeout:      cfg.ForeignTimeout,
		UserAgent:    cfg.UserAgent,
		HostInterval: cfg.HostInterval,
	})

	return services.Ladders{
		Domestic: map[twse.Venue]services.VenueProviders{
			twse.VenueTSE: {
				Live:    twse.NewLiveProvider(domestic, cfg.TWSELiveURL, twse.VenueTSE),
				Closing: twse.NewTWSECloseProvider(domestic, cfg.TWSECloseURL),
				Scrape:  twse.NewScrapeProvider(domestic, cfg.YahooTWURL, twse.VenueTSE),
			},
			twse.VenueOTC: {
				Live:    twse.NewLiveProvider(domestic, cfg.TWSELiveURL, twse.VenueOTC),
				Closing: twse.NewTPExCloseProvider(domestic, cfg.TPExCloseURL),
				Scrape:  twse.NewScrapeProvider(domestic, cfg.YahooTWURL, twse.VenueOTC),
			},
		},
		Foreign: []provider.Provider{
			yahoo.NewChartProvider(foreign, cfg.YahooChartURL),
			yahoo.NewQuoteProvider(foreign, cfg.YahooQuoteURL),
			yahoo.NewSummaryProvider(foreign, cfg.YahooSummURL),
			yahoo.NewPageProvider(foreign, cfg.YahooHTMLURL),
			google.NewPageProvider(foreign, cfg.GoogleURL),
		},
	}
}

// Router builds the gin engine serving the pull interface
func (a *App) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	handler := handlers.NewAlertHandler(a.Scheduler, a.Sweeps, a.Resolver, a.Alerts, a.Ledger, a.Logger)
	routes.SetupRoutes(r, handler, a.Metrics.Handler())
	return r
}

// Serve starts the scheduler and the HTTP server and blocks until ctx ends
func (a *App) Serve(ctx context.Context) error {
	if a.Config.Line.ChannelToken == "" || a.Config.Line.Recipient == "" {
		a.Logger.Warn().Msg("LINE channel token or recipient missing, pushes will fail")
	}

	if !a.Config.Scheduler.Disabled {
		if err := a.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer a.Scheduler.Stop()
	}

	addr := fmt.Sprintf("%s:%s", a.Config.Server.Host, a.Config.Server.Port)
	srv := &http.Server{Addr: addr, Handler: a.Router()}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", addr).Msg("Starting server")
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Logger.Info().Msg("Shutting down server")
	return srv.Shutdown(shutdownCtx)
}

// Close releases the database
func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
