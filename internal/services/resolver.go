package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Cyvadra/stock-alert/internal/logging"
	"github.com/Cyvadra/stock-alert/internal/models"
	"github.com/Cyvadra/stock-alert/provider"
	"github.com/Cyvadra/stock-alert/provider/twse"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VenueProviders groups the domestic providers answering for one venue
type VenueProviders struct {
	Live    provider.Provider
	Closing provider.Provider
	Scrape  provider.Provider
}

// Ladders holds every provider the resolver may consult, in priority order
type Ladders struct {
	Domestic map[twse.Venue]VenueProviders
	Foreign  []provider.Provider
}

// Resolver turns a security identifier into a repaired quote by walking the
// provider ladder for its market.
type Resolver struct {
	db      *gorm.DB
	ladders Ladders
	logger  zerolog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewResolver creates a quote resolver
func NewResolver(db *gorm.DB, ladders Ladders, logger zerolog.Logger, metrics *Metrics) *Resolver {
	return &Resolver{
		db:      db,
		ladders: ladders,
		logger:  logging.Component(logger, "resolver"),
		metrics: metrics,
		now:     time.Now,
	}
}

// SetClock overrides the wall clock used for session decisions
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// Resolve returns the best available quote for code, or ErrQuoteNotFound when
// every provider in the ladder is exhausted.
func (r *Resolver) Resolve(ctx context.Context, code string) (*models.Quote, error) {
	symbol := provider.NormalizeSymbol(code)
	now := r.now()

	var (
		raw    *provider.RawQuote
		market models.Market
		err    error
	)
	switch provider.Classify(symbol) {
	case provider.KindDomestic:
		raw, market, err = r.resolveDomestic(ctx, symbol, now)
	case provider.KindForeign:
		market = models.MarketForeign
		raw, err = r.walk(ctx, symbol, r.ladders.Foreign)
	default:
		return nil, fmt.Errorf("%w: %q is not a recognised identifier", ErrQuoteNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrQuoteNotFound, symbol, err)
	}

	quote := RepairQuote(raw)
	quote.Code = symbol
	quote.Market = market
	quote.ResolvedAt = now
	quote.Session = models.SessionAfterHours
	if provider.InSession(now) {
		quote.Session = models.SessionIntraday
	}

	r.metrics.quoteResolved(quote.Source)
	r.rememberSecurity(ctx, &quote)
	return &quote, nil
}

func (r *Resolver) resolveDomestic(ctx context.Context, symbol string, now time.Time) (*provider.RawQuote, models.Market, error) {
	venues := r.venueOrder(ctx, symbol)

	if provider.InSession(now) {
		for _, v := range venues {
			vp := r.ladders.Domestic[v]
			raw, err := r.attempt(ctx, vp.Live, symbol)
			if err != nil {
				continue
			}
			return r.recheckStale(ctx, vp, symbol, raw), marketOf(v), nil
		}
	}

	for _, v := range venues {
		vp := r.ladders.Domestic[v]
		for _, p := range []provider.Provider{vp.Closing, vp.Scrape} {
			if raw, err := r.attempt(ctx, p, symbol); err == nil {
				return raw, marketOf(v), nil
			}
		}
	}

	if !provider.InSession(now) {
		for _, v := range venues {
			if raw, err := r.attempt(ctx, r.ladders.Domestic[v].Live, symbol); err == nil {
				return raw, marketOf(v), nil
			}
		}
	}
	return nil, models.MarketUnknown, provider.ErrNoData
}

// recheckStale handles the live endpoint echoing the previous close. The
// closing board is asked again and wins when it disagrees. A genuinely flat
// day cannot be told apart and keeps the live answer.
func (r *Resolver) recheckStale(ctx context.Context, vp VenueProviders, symbol string, live *provider.RawQuote) *provider.RawQuote {
	if live.Price <= 0 || live.PrevClose <= 0 || live.Price != live.PrevClose {
		return live
	}
	closing, err := r.attempt(ctx, vp.Closing, symbol)
	if err != nil || closing.Price <= 0 || closing.Price == live.Price {
		return live
	}
	r.logger.Debug().
		Str("code", symbol).
		Float64("live", live.Price).
		Float64("closing", closing.Price).
		Msg("Live quote looks stale, using closing price")
	if closing.PrevClose <= 0 {
		closing.PrevClose = live.PrevClose
	}
	if closing.Name == "" {
		closing.Name = live.Name
	}
	return closing
}

// venueOrder puts the venue recorded for the security first
func (r *Resolver) venueOrder(ctx context.Context, symbol string) []twse.Venue {
	order := []twse.Venue{twse.VenueTSE, twse.VenueOTC}
	var sec models.Security
	if err := r.db.WithContext(ctx).Select("market").First(&sec, "code = ?", symbol).Error; err == nil && sec.Market == models.MarketTPEx {
		order = []twse.Venue{twse.VenueOTC, twse.VenueTSE}
	}
	return order
}

func (r *Resolver) walk(ctx context.Context, symbol string, ladder []provider.Provider) (*provider.RawQuote, error) {
	for _, p := range ladder {
		raw, err := r.attempt(ctx, p, symbol)
		if err != nil {
			continue
		}
		if raw.Price <= 0 {
			r.metrics.quoteFailed(p.Name())
			continue
		}
		return raw, nil
	}
	return nil, provider.ErrNoData
}

// attempt runs one provider once. A panic while decoding counts as a failed
// attempt so the ladder keeps going.
func (r *Resolver) attempt(ctx context.Context, p provider.Provider, symbol string) (raw *provider.RawQuote, err error) {
	if p == nil {
		return nil, provider.ErrNoData
	}
	defer func() {
		if rec := recover(); rec != nil {
			raw, err = nil, provider.Malformed(p.Name(), fmt.Errorf("panic: %v", rec))
		}
		if err != nil {
			r.metrics.quoteFailed(p.Name())
			r.logger.Debug().Err(err).Str("code", symbol).Str("provider", p.Name()).Msg("Provider attempt failed")
		}
	}()

	raw, err = p.Fetch(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !raw.Usable() {
		return nil, provider.NewProviderError(p.Name(), "NO_DATA", symbol, provider.ErrNoData)
	}
	if raw.Source == "" {
		raw.Source = p.Name()
	}
	return raw, nil
}

// rememberSecurity creates the security on first sight, backfills an empty
// name and records the venue that answered.
func (r *Resolver) rememberSecurity(ctx context.Context, q *models.Quote) {
	db := r.db.WithContext(ctx)
	var sec models.Security
	err := db.First(&sec, "code = ?", q.Code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		sec = models.Security{Code: q.Code, Name: q.Name, Market: q.Market}
		if err := db.Create(&sec).Error; err != nil {
			r.logger.Warn().Err(err).Str("code", q.Code).Msg("Failed to create security")
		}
		return
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("code", q.Code).Msg("Failed to load security")
		return
	}

	updates := map[string]interface{}{}
	if sec.Name == "" && q.Name != "" {
		updates["name"] = q.Name
	}
	if q.Market != models.MarketUnknown && sec.Market != q.Market {
		updates["market"] = q.Market
	}
	if len(updates) > 0 {
		if err := db.Model(&sec).Updates(updates).Error; err != nil {
			r.logger.Warn().Err(err).Str("code", q.Code).Msg("Failed to update security")
		}
	}
	if q.Name == "" {
		q.Name = sec.Name
	}
}

func marketOf(v twse.Venue) models.Market {
	if v == twse.VenueOTC {
		return models.MarketTPEx
	}
	return models.MarketTWSE
}

// RepairQuote applies the field repair rules to a raw provider answer.
// Previous close is never derived from price; price falls back to previous
// close only when missing; open, high and low fall back to price.
func RepairQuote(raw *provider.RawQuote) models.Quote {
	price := provider.PositiveOrZero(raw.Price)
	prevClose := provider.PositiveOrZero(raw.PrevClose)
	if price == 0 {
		price = prevClose
	}

	fill := func(v float64) float64 {
		if v = provider.PositiveOrZero(v); v == 0 {
			return price
		}
		return v
	}

	change, pct := ChangeOf(price, prevClose)
	return models.Quote{
		Code:          raw.Symbol,
		Name:          raw.Name,
		Price:         price,
		Open:          fill(raw.Open),
		High:          fill(raw.High),
		Low:           fill(raw.Low),
		PrevClose:     prevClose,
		Change:        change,
		ChangePercent: pct,
		Volume:        raw.Volume,
		Source:        raw.Source,
	}
}

// ChangeOf returns price-prevClose and the percent move, rounded to two
// places. A non-positive previous close yields zero change.
func ChangeOf(price, prevClose float64) (change, percent float64) {
	if prevClose <= 0 || !finite(price) || !finite(prevClose) {
		return 0, 0
	}
	p := decimal.NewFromFloat(price)
	prev := decimal.NewFromFloat(prevClose)
	diff := p.Sub(prev)
	pct := diff.Div(prev).Mul(decimal.NewFromInt(100))
	change, _ = diff.Round(4).Float64()
	percent, _ = pct.Round(2).Float64()
	if !finite(change) || !finite(percent) {
		return 0, 0
	}
	return change, percent
}

// PercentOf returns (value-base)/base*100 rounded to two places, 0 when base
// is not positive.
func PercentOf(value, base float64) float64 {
	_, pct := ChangeOf(value, base)
	return pct
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
