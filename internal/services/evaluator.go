package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Cyvadra/stock-alert/internal/config"
	"github.com/Cyvadra/stock-alert/internal/logging"
	"github.com/Cyvadra/stock-alert/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Checks selects which groups of conditions an evaluation runs
type Checks uint8

const (
	// CheckPrice covers threshold breach, MA breakout/breakdown, N-day
	// high/low and watch targets.
	CheckPrice Checks = 1 << iota
	// CheckRisk covers position targets, stop-loss and take-profit.
	CheckRisk
	// CheckTechnical covers the indicator crossings.
	CheckTechnical

	CheckAll = CheckPrice | CheckRisk | CheckTechnical
)

// Evaluation is everything the evaluator needs for one security
type Evaluation struct {
	Quote     *models.Quote
	Snapshot  *models.IndicatorSnapshot // nil disables indicator checks
	Settings  config.AlertSettings
	Watches   []models.WatchEntry
	Positions []models.Position
	Rules     []models.ConditionRule
	Checks    Checks
}

// Evaluator turns a quote and indicator snapshot into alert events
type Evaluator struct {
	db      *gorm.DB
	ledger  *Ledger
	logger  zerolog.Logger
	metrics *Metrics
	now     func() time.Time

	mu        sync.Mutex
	lastPrice map[string]float64 // price seen by the previous evaluation
}

// NewEvaluator creates a condition evaluator
func NewEvaluator(db *gorm.DB, ledger *Ledger, logger zerolog.Logger, metrics *Metrics) *Evaluator {
	return &Evaluator{
		db:        db,
		ledger:    ledger,
		logger:    logging.Component(logger, "evaluator"),
		metrics:   metrics,
		now:       time.Now,
		lastPrice: make(map[string]float64),
	}
}

// CooldownFor returns the ledger window for a condition type
func CooldownFor(condition models.ConditionType, s config.AlertSettings) time.Duration {
	if condition.IsTechnical() {
		return s.TechnicalCooldown
	}
	return s.PriceCooldown
}

// Evaluate returns the events triggered for one security, in rule order.
// Recurring conditions consult and update the ledger; targets are returned
// with Disarm set and stop-loss/take-profit are never suppressed.
func (e *Evaluator) Evaluate(ctx context.Context, in Evaluation) []models.AlertEvent {
	q := in.Quote
	if q == nil || q.Price <= 0 {
		return nil
	}

	run := &evaluation{Evaluator: e, in: in, ctx: ctx, now: e.now()}
	prev, hasPrev := e.swapLastPrice(q.Code, q.Price, in.Checks&CheckPrice != 0)

	if in.Checks&CheckPrice != 0 {
		run.threshold()
		if hasPrev {
			run.maBreak(prev)
		}
		run.newHighLow()
		run.watchTargets()
	}
	if in.Checks&CheckRisk != 0 {
		run.positionTargets()
		run.stopLossTakeProfit()
	}
	if in.Checks&CheckTechnical != 0 {
		run.technical()
	}
	return run.events
}

// swapLastPrice records price and returns the one it replaces. Only price
// checks advance it so the technical sweep does not hide a crossing.
func (e *Evaluator) swapLastPrice(code string, price float64, advance bool) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev, ok := e.lastPrice[code]
	if advance {
		e.lastPrice[code] = price
	}
	return prev, ok
}

type evaluation struct {
	*Evaluator
	in     Evaluation
	ctx    context.Context
	now    time.Time
	events []models.AlertEvent
}

func (r *evaluation) event(condition models.ConditionType, value float64, msg string) models.AlertEvent {
	q := r.in.Quote
	name := q.Name
	if name == "" {
		name = q.Code
	}
	return models.AlertEvent{
		ID:            uuid.NewString(),
		ConditionType: condition,
		SecurityCode:  q.Code,
		SecurityName:  name,
		Message:       fmt.Sprintf("%s %s", name, msg),
		Value:         value,
		Price:         q.Price,
		ChangePercent: q.ChangePercent,
		TriggeredAt:   r.now,
	}
}

func (r *evaluation) emit(ev models.AlertEvent) {
	r.metrics.alertFired(string(ev.ConditionType))
	r.events = append(r.events, ev)
}

// gated emits ev only if the ledger lets its (security, condition) fire.
// A ledger failure lets the event through.
func (r *evaluation) gated(ev models.AlertEvent) {
	window := CooldownFor(ev.ConditionType, r.in.Settings)
	ok, err := r.ledger.TryFire(r.ctx, ev.SecurityCode, ev.ConditionType, window)
	if err != nil {
		r.logger.Warn().Err(err).Str("code", ev.SecurityCode).Str("condition", string(ev.ConditionType)).Msg("Cooldown ledger unavailable")
		ok = true
	}
	if !ok {
		return
	}
	if ev.ConditionType.IsTechnical() {
		r.stampRules(ev.ConditionType)
	}
	r.emit(ev)
}

func (r *evaluation) stampRules(condition models.ConditionType) {
	err := r.db.WithContext(r.ctx).Model(&models.ConditionRule{}).
		Where("security_code = ? AND condition_type = ? AND is_active = ?", r.in.Quote.Code, condition, true).
		Update("last_triggered_at", r.now).Error
	if err != nil {
		r.logger.Warn().Err(err).Str("code", r.in.Quote.Code).Msg("Failed to stamp condition rule")
	}
}

// threshold fires on the tightest threshold among the watchers
func (r *evaluation) threshold() {
	if len(r.in.Watches) == 0 {
		return
	}
	limit := -1.0
	for _, w := range r.in.Watches {
		t := r.in.Settings.DefaultThreshold
		if w.AlertThreshold != nil && *w.AlertThreshold > 0 {
			t = *w.AlertThreshold
		}
		if limit < 0 || t < limit {
			limit = t
		}
	}
	pct := r.in.Quote.ChangePercent
	if limit <= 0 || abs(pct) < limit {
		return
	}
	direction := "大漲"
	if pct < 0 {
		direction = "大跌"
	}
	r.gated(r.event(models.ConditionPriceChange, pct, fmt.Sprintf("%s %+.2f%%", direction, pct)))
}

func (r *evaluation) maBreak(prev float64) {
	s := r.in.Snapshot
	if s == nil || s.MA <= 0 || prev <= 0 {
		return
	}
	price := r.in.Quote.Price
	switch {
	case prev <= s.MA && price > s.MA:
		r.gated(r.event(models.ConditionMABreakout, s.MA, fmt.Sprintf("突破 %d 日均線 %.2f", s.MAPeriod, s.MA)))
	case prev >= s.MA && price < s.MA:
		r.gated(r.event(models.ConditionMABreakdown, s.MA, fmt.Sprintf("跌破 %d 日均線 %.2f", s.MAPeriod, s.MA)))
	}
}

func (r *evaluation) newHighLow() {
	s := r.in.Snapshot
	if s == nil {
		return
	}
	price := r.in.Quote.Price
	if s.HighN > 0 && price > s.HighN {
		r.gated(r.event(models.ConditionNewHigh, price, fmt.Sprintf("創 %d 日新高 %.2f", s.HighLowDays, price)))
	}
	if s.LowN > 0 && price < s.LowN {
		r.gated(r.event(models.ConditionNewLow, price, fmt.Sprintf("創 %d 日新低 %.2f", s.HighLowDays, price)))
	}
}

func (r *evaluation) watchTargets() {
	for _, w := range r.in.Watches {
		for _, ev := range r.targets(w.TargetPriceHigh, w.TargetPriceLow) {
			ev.Owner = w.Owner
			ev.WatchID = w.ID
			r.emit(ev)
		}
	}
}

func (r *evaluation) positionTargets() {
	for _, p := range r.in.Positions {
		if !p.IsHeld() || !p.NotifyEnabled {
			continue
		}
		for _, ev := range r.targets(p.TargetPriceHigh, p.TargetPriceLow) {
			ev.Owner = p.Owner
			ev.PositionID = p.ID
			r.emit(ev)
		}
	}
}

func (r *evaluation) targets(high, low *float64) []models.AlertEvent {
	price := r.in.Quote.Price
	var out []models.AlertEvent
	if high != nil && *high > 0 && price >= *high {
		ev := r.event(models.ConditionTargetHigh, *high, fmt.Sprintf("達到目標價 %.2f", *high))
		ev.Disarm = "target_price_high"
		out = append(out, ev)
	}
	if low != nil && *low > 0 && price <= *low {
		ev := r.event(models.ConditionTargetLow, *low, fmt.Sprintf("跌破目標價 %.2f", *low))
		ev.Disarm = "target_price_low"
		out = append(out, ev)
	}
	return out
}

func (r *evaluation) stopLossTakeProfit() {
	price := r.in.Quote.Price
	for _, p := range r.in.Positions {
		if !p.IsHeld() || !p.NotifyEnabled || p.CostPrice <= 0 {
			continue
		}
		profit := PercentOf(price, p.CostPrice)
		var ev models.AlertEvent
		switch {
		case profit <= r.in.Settings.StopLossPercent:
			ev = r.event(models.ConditionStopLoss, profit, fmt.Sprintf("觸及停損 %.2f%% (成本 %.2f)", profit, p.CostPrice))
		case profit >= r.in.Settings.TakeProfitPercent:
			ev = r.event(models.ConditionTakeProfit, profit, fmt.Sprintf("觸及停利 %+.2f%% (成本 %.2f)", profit, p.CostPrice))
		default:
			continue
		}
		ev.Owner = p.Owner
		ev.PositionID = p.ID
		r.emit(ev)
	}
}

// technical runs every crossing condition unless the security's rules
// switch it off. An active rule's parameter replaces the global setting.
func (r *evaluation) technical() {
	s := r.in.Snapshot
	if s == nil {
		return
	}
	price := r.in.Quote.Price
	set := r.in.Settings

	for _, condition := range models.TechnicalConditions {
		param, enabled := r.ruleParam(condition)
		if !enabled {
			continue
		}
		switch condition {
		case models.ConditionRSIOverbought:
			level := orDefault(param, set.RSIOverbought)
			if s.HasRSI && s.RSI >= level {
				r.gated(r.event(condition, s.RSI, fmt.Sprintf("RSI 超買 %.1f", s.RSI)))
			}
		case models.ConditionRSIOversold:
			level := orDefault(param, set.RSIOversold)
			if s.HasRSI && s.RSI <= level {
				r.gated(r.event(condition, s.RSI, fmt.Sprintf("RSI 超賣 %.1f", s.RSI)))
			}
		case models.ConditionKDGoldenCross:
			zone := orDefault(param, 50)
			if s.HasKD && s.PrevK <= s.PrevD && s.K > s.D && s.K < zone {
				r.gated(r.event(condition, s.K, fmt.Sprintf("KD 低檔黃金交叉 K=%.1f D=%.1f", s.K, s.D)))
			}
		case models.ConditionKDDeathCross:
			zone := orDefault(param, 50)
			if s.HasKD && s.PrevK >= s.PrevD && s.K < s.D && s.K > zone {
				r.gated(r.event(condition, s.K, fmt.Sprintf("KD 高檔死亡交叉 K=%.1f D=%.1f", s.K, s.D)))
			}
		case models.ConditionMACDBullish:
			if s.HasMACD && s.PrevDIF <= 0 && s.DIF > 0 {
				r.gated(r.event(condition, s.DIF, fmt.Sprintf("MACD 翻多 DIF=%.2f", s.DIF)))
			}
		case models.ConditionMACDBearish:
			if s.HasMACD && s.PrevDIF >= 0 && s.DIF < 0 {
				r.gated(r.event(condition, s.DIF, fmt.Sprintf("MACD 翻空 DIF=%.2f", s.DIF)))
			}
		case models.ConditionVolumeSpike:
			ratio := orDefault(param, set.VolumeSpikeRatio)
			if s.HasVolumeRatio && s.VolumeRatio >= ratio {
				r.gated(r.event(condition, s.VolumeRatio, fmt.Sprintf("爆量 %.1f 倍", s.VolumeRatio)))
			}
		case models.ConditionMACrossUp:
			if s.MA > 0 && s.PrevClose <= s.MA && price > s.MA {
				r.gated(r.event(condition, s.MA, fmt.Sprintf("站上 %d 日均線 %.2f", s.MAPeriod, s.MA)))
			}
		case models.ConditionMACrossDown:
			if s.MA > 0 && s.PrevClose >= s.MA && price < s.MA {
				r.gated(r.event(condition, s.MA, fmt.Sprintf("跌破 %d 日均線 %.2f", s.MAPeriod, s.MA)))
			}
		}
	}
}

// ruleParam looks up the rules for condition. With no rules the condition
// runs on defaults; with rules it runs only if one is active.
func (r *evaluation) ruleParam(condition models.ConditionType) (*float64, bool) {
	var (
		found  bool
		param  *float64
		active bool
	)
	for _, rule := range r.in.Rules {
		if rule.ConditionType != condition {
			continue
		}
		found = true
		if rule.IsActive {
			active = true
			if param == nil && rule.Param != nil {
				param = rule.Param
			}
		}
	}
	return param, !found || active
}

func orDefault(param *float64, fallback float64) float64 {
	if param != nil && *param > 0 {
		return *param
	}
	return fallback
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
