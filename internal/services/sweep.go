package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Cyvadra/stock-alert/internal/config"
	"github.com/Cyvadra/stock-alert/internal/logging"
	"github.com/Cyvadra/stock-alert/internal/models"
	"github.com/Cyvadra/stock-alert/provider"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SweepKind names a scheduled pass
type SweepKind string

const (
	SweepIntraday  SweepKind = "intraday"
	SweepRisk      SweepKind = "risk"
	SweepTechnical SweepKind = "technical"
	SweepSummary   SweepKind = "summary"
	SweepCleanup   SweepKind = "cleanup"
)

// SweepKinds lists every sweep the scheduler knows
var SweepKinds = []SweepKind{SweepIntraday, SweepRisk, SweepTechnical, SweepSummary, SweepCleanup}

// ParseSweepKind validates a sweep name
func ParseSweepKind(s string) (SweepKind, error) {
	for _, k := range SweepKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSweep, s)
}

// SweepResult summarises one pass
type SweepResult struct {
	Kind       SweepKind     `json:"kind"`
	Securities int           `json:"securities"`
	Resolved   int           `json:"resolved"`
	Skipped    int           `json:"skipped"`
	Events     int           `json:"events"`
	Delivered  int           `json:"delivered"`
	Removed    int64         `json:"removed,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// Evaluated is the outcome of a single-security evaluation
type Evaluated struct {
	Quote     *models.Quote             `json:"quote"`
	Snapshot  *models.IndicatorSnapshot `json:"snapshot,omitempty"`
	Events    []models.AlertEvent       `json:"events"`
	Delivered int                       `json:"delivered"`
}

// subjects groups everything tracked for one security
type subjects struct {
	watches   []models.WatchEntry
	positions []models.Position
	rules     []models.ConditionRule
}

// SweepService runs the resolve, record, evaluate and dispatch pipeline over
// a set of securities, one at a time.
type SweepService struct {
	db         *gorm.DB
	resolver   *Resolver
	history    *HistoryService
	engine     *IndicatorEngine
	evaluator  *Evaluator
	dispatcher *Dispatcher
	logger     zerolog.Logger
	metrics    *Metrics

	pace      time.Duration
	retention int
	now       func() time.Time
}

// NewSweepService creates the sweep pipeline
func NewSweepService(db *gorm.DB, resolver *Resolver, history *HistoryService, engine *IndicatorEngine,
	evaluator *Evaluator, dispatcher *Dispatcher, cfg config.SchedulerConfig, logger zerolog.Logger, metrics *Metrics) *SweepService {
	return &SweepService{
		db:         db,
		resolver:   resolver,
		history:    history,
		engine:     engine,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		logger:     logging.Component(logger, "sweep"),
		metrics:    metrics,
		pace:       cfg.PaceDelay,
		retention:  cfg.HistoryRetentionDays,
		now:        time.Now,
	}
}

// Settings parses the alert settings rows
func (s *SweepService) Settings(ctx context.Context) config.AlertSettings {
	var rows []models.Setting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load settings, using defaults")
		return config.DefaultAlertSettings()
	}
	kv := make(map[string]string, len(rows))
	for _, r := range rows {
		kv[r.Key] = r.Value
	}
	settings, errs := config.ParseAlertSettings(kv)
	for _, err := range errs {
		s.logger.Warn().Err(err).Msg("Ignoring malformed setting")
	}
	return settings
}

// Run executes one sweep of the given kind
func (s *SweepService) Run(ctx context.Context, kind SweepKind) (SweepResult, error) {
	switch kind {
	case SweepIntraday:
		return s.Intraday(ctx)
	case SweepRisk:
		return s.Risk(ctx)
	case SweepTechnical:
		return s.Technical(ctx)
	case SweepSummary:
		return s.Summary(ctx)
	case SweepCleanup:
		return s.Cleanup(ctx)
	}
	return SweepResult{}, fmt.Errorf("%w: %q", ErrUnknownSweep, kind)
}

// Intraday evaluates price conditions for every active watch entry
func (s *SweepService) Intraday(ctx context.Context) (SweepResult, error) {
	var watches []models.WatchEntry
	if err := s.db.WithContext(ctx).Preload("Security").Where("is_active = ?", true).Find(&watches).Error; err != nil {
		return SweepResult{Kind: SweepIntraday}, fmt.Errorf("load watch entries: %w", err)
	}
	bySecurity := map[string]*subjects{}
	for _, w := range watches {
		g := group(bySecurity, w.SecurityCode)
		g.watches = append(g.watches, w)
	}
	return s.sweep(ctx, SweepIntraday, bySecurity, CheckPrice), nil
}

// Risk evaluates targets, stop-loss and take-profit for positions with
// notifications on and at least one target set.
func (s *SweepService) Risk(ctx context.Context) (SweepResult, error) {
	var positions []models.Position
	err := s.db.WithContext(ctx).Preload("Security").
		Where("notify_enabled = ? AND is_sold = ?", true, false).
		Where("target_price_high IS NOT NULL OR target_price_low IS NOT NULL").
		Find(&positions).Error
	if err != nil {
		return SweepResult{Kind: SweepRisk}, fmt.Errorf("load positions: %w", err)
	}
	bySecurity := map[string]*subjects{}
	for _, p := range positions {
		g := group(bySecurity, p.SecurityCode)
		g.positions = append(g.positions, p)
	}
	return s.sweep(ctx, SweepRisk, bySecurity, CheckRisk), nil
}

// Technical evaluates indicator crossings over watched, held and
// rule-covered securities.
func (s *SweepService) Technical(ctx context.Context) (SweepResult, error) {
	db := s.db.WithContext(ctx)
	var (
		watches   []models.WatchEntry
		positions []models.Position
		rules     []models.ConditionRule
	)
	if err := db.Where("is_active = ?", true).Find(&watches).Error; err != nil {
		return SweepResult{Kind: SweepTechnical}, fmt.Errorf("load watch entries: %w", err)
	}
	if err := db.Where("is_sold = ?", false).Find(&positions).Error; err != nil {
		return SweepResult{Kind: SweepTechnical}, fmt.Errorf("load positions: %w", err)
	}
	if err := db.Find(&rules).Error; err != nil {
		return SweepResult{Kind: SweepTechnical}, fmt.Errorf("load condition rules: %w", err)
	}

	bySecurity := map[string]*subjects{}
	for _, w := range watches {
		g := group(bySecurity, w.SecurityCode)
		g.watches = append(g.watches, w)
	}
	for _, p := range positions {
		if p.IsHeld() {
			g := group(bySecurity, p.SecurityCode)
			g.positions = append(g.positions, p)
		}
	}
	for _, r := range rules {
		if r.IsActive {
			group(bySecurity, r.SecurityCode)
		}
	}
	// inactive rules still switch conditions off for tracked securities
	for _, r := range rules {
		if g, ok := bySecurity[r.SecurityCode]; ok {
			g.rules = append(g.rules, r)
		}
	}
	return s.sweep(ctx, SweepTechnical, bySecurity, CheckTechnical), nil
}

// EvaluateSecurity runs every check for one security on demand
func (s *SweepService) EvaluateSecurity(ctx context.Context, code string) (*Evaluated, error) {
	code = provider.NormalizeSymbol(code)
	db := s.db.WithContext(ctx)
	g := &subjects{}
	if err := db.Where("security_code = ? AND is_active = ?", code, true).Find(&g.watches).Error; err != nil {
		return nil, err
	}
	if err := db.Where("security_code = ? AND is_sold = ?", code, false).Find(&g.positions).Error; err != nil {
		return nil, err
	}
	if err := db.Where("security_code = ?", code).Find(&g.rules).Error; err != nil {
		return nil, err
	}
	return s.process(ctx, code, g, CheckAll, s.Settings(ctx))
}

// Summary pushes one carousel with profit and loss for every held position
func (s *SweepService) Summary(ctx context.Context) (SweepResult, error) {
	result := SweepResult{Kind: SweepSummary, StartedAt: s.now()}
	var positions []models.Position
	err := s.db.WithContext(ctx).Preload("Security").
		Where("is_sold = ? AND is_won = ?", false, true).
		Order("security_code").
		Find(&positions).Error
	if err != nil {
		return result, fmt.Errorf("load positions: %w", err)
	}

	quotes := map[string]*models.Quote{}
	var bubbles []Message
	var total decimal.Decimal
	for i, p := range positions {
		if !p.IsHeld() {
			continue
		}
		q, ok := quotes[p.SecurityCode]
		if !ok {
			if i > 0 && !s.sleep(ctx) {
				break
			}
			result.Securities++
			var err error
			q, err = s.resolver.Resolve(ctx, p.SecurityCode)
			if err != nil {
				s.logger.Info().Err(err).Str("code", p.SecurityCode).Msg("Skipping holding without quote")
				result.Skipped++
			} else {
				result.Resolved++
			}
			quotes[p.SecurityCode] = q
		}
		if q == nil {
			continue
		}
		h := summarise(p, q)
		total = total.Add(decimal.NewFromFloat(h.ProfitLoss))
		bubbles = append(bubbles, BuildHoldingBubble(h))
	}

	if len(bubbles) > 0 {
		alt := fmt.Sprintf("持股摘要 %d 檔，總損益 %s", len(bubbles), total.StringFixed(0))
		if err := s.dispatcher.PushCarousel(ctx, alt, bubbles); err != nil {
			s.logger.Error().Err(err).Msg("Failed to push holdings summary")
		} else {
			result.Delivered = 1
		}
	}
	result.Duration = s.now().Sub(result.StartedAt)
	return result, nil
}

// Cleanup drops daily bars past the retention window
func (s *SweepService) Cleanup(ctx context.Context) (SweepResult, error) {
	result := SweepResult{Kind: SweepCleanup, StartedAt: s.now()}
	removed, err := s.history.Cleanup(ctx, result.StartedAt, s.retention)
	if err != nil {
		return result, fmt.Errorf("cleanup history: %w", err)
	}
	result.Removed = removed
	result.Duration = s.now().Sub(result.StartedAt)
	s.logger.Info().Int64("removed", removed).Msg("Price history cleaned up")
	return result, nil
}

func (s *SweepService) sweep(ctx context.Context, kind SweepKind, bySecurity map[string]*subjects, checks Checks) SweepResult {
	result := SweepResult{Kind: kind, StartedAt: s.now(), Securities: len(bySecurity)}
	settings := s.Settings(ctx)

	codes := make([]string, 0, len(bySecurity))
	for code := range bySecurity {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for i, code := range codes {
		if i > 0 && !s.sleep(ctx) {
			break
		}
		out, err := s.process(ctx, code, bySecurity[code], checks, settings)
		if err != nil {
			result.Skipped++
			continue
		}
		result.Resolved++
		result.Events += len(out.Events)
		result.Delivered += out.Delivered
	}

	result.Duration = s.now().Sub(result.StartedAt)
	s.logger.Info().
		Str("sweep", string(kind)).
		Int("securities", result.Securities).
		Int("skipped", result.Skipped).
		Int("events", result.Events).
		Int("delivered", result.Delivered).
		Dur("duration", result.Duration).
		Msg("Sweep finished")
	return result
}

// process handles one security. Any failure, including a panic, skips the
// security and leaves the rest of the sweep running.
func (s *SweepService) process(ctx context.Context, code string, g *subjects, checks Checks, settings config.AlertSettings) (out *Evaluated, err error) {
	log := s.logger.With().Str("code", code).Logger()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("Recovered while evaluating security")
			out, err = nil, fmt.Errorf("evaluate %s: panic: %v", code, rec)
		}
	}()

	quote, err := s.resolver.Resolve(ctx, code)
	if err != nil {
		log.Info().Err(err).Msg("Skipping security this cycle")
		return nil, err
	}

	if err := s.history.Record(ctx, quote); err != nil {
		log.Warn().Err(err).Msg("Failed to record price history")
	}

	snapshot, err := s.engine.Snapshot(ctx, code, settings)
	if err != nil {
		log.Debug().Err(err).Msg("Indicators unavailable")
		snapshot = nil
	}

	events := s.evaluator.Evaluate(ctx, Evaluation{
		Quote:     quote,
		Snapshot:  snapshot,
		Settings:  settings,
		Watches:   g.watches,
		Positions: g.positions,
		Rules:     g.rules,
		Checks:    checks,
	})
	s.disarm(ctx, events)
	delivered := s.dispatcher.Dispatch(ctx, events)

	return &Evaluated{Quote: quote, Snapshot: snapshot, Events: events, Delivered: delivered}, nil
}

// disarm clears the target behind every one-shot event so it cannot refire
func (s *SweepService) disarm(ctx context.Context, events []models.AlertEvent) {
	for _, ev := range events {
		if !ev.IsOneShot() {
			continue
		}
		var err error
		switch {
		case ev.PositionID != 0:
			err = s.db.WithContext(ctx).Model(&models.Position{}).Where("id = ?", ev.PositionID).Update(ev.Disarm, nil).Error
		case ev.WatchID != 0:
			err = s.db.WithContext(ctx).Model(&models.WatchEntry{}).Where("id = ?", ev.WatchID).Update(ev.Disarm, nil).Error
		}
		if err != nil {
			s.logger.Error().Err(err).Str("code", ev.SecurityCode).Str("target", ev.Disarm).Msg("Failed to clear target")
		}
	}
}

func (s *SweepService) sleep(ctx context.Context) bool {
	if s.pace <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(s.pace)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func group(m map[string]*subjects, code string) *subjects {
	g, ok := m[code]
	if !ok {
		g = &subjects{}
		m[code] = g
	}
	return g
}

func summarise(p models.Position, q *models.Quote) HoldingSummary {
	shares := decimal.NewFromInt(int64(p.Shares()))
	cost := decimal.NewFromFloat(p.CostPrice)
	value := decimal.NewFromFloat(q.Price)
	pl, _ := value.Sub(cost).Mul(shares).Round(0).Float64()

	name := p.Security.Name
	if name == "" {
		name = q.Name
	}
	return HoldingSummary{
		Code:          p.SecurityCode,
		Name:          name,
		Shares:        p.Shares(),
		CostPrice:     p.CostPrice,
		Price:         q.Price,
		ChangePercent: q.ChangePercent,
		ProfitLoss:    pl,
		ProfitPercent: PercentOf(q.Price, p.CostPrice),
	}
}
