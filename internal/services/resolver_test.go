package services

import (
	"context"
	"math"
	"testing"

	"github.com/Cyvadra/stock-alert/internal/models"
	"github.com/Cyvadra/stock-alert/provider"
	"github.com/Cyvadra/stock-alert/provider/twse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type domesticFakes struct {
	tseLive, tseClose, tseScrape *fakeProvider
	otcLive, otcClose, otcScrape *fakeProvider
}

func (d domesticFakes) ladders(foreign ...provider.Provider) Ladders {
	return Ladders{
		Domestic: map[twse.Venue]VenueProviders{
			twse.VenueTSE: {Live: d.tseLive, Closing: d.tseClose, Scrape: d.tseScrape},
			twse.VenueOTC: {Live: d.otcLive, Closing: d.otcClose, Scrape: d.otcScrape},
		},
		Foreign: foreign,
	}
}

func allFailing() domesticFakes {
	return domesticFakes{
		tseLive: failing("tse-live"), tseClose: failing("tse-close"), tseScrape: failing("tse-scrape"),
		otcLive: failing("otc-live"), otcClose: failing("otc-close"), otcScrape: failing("otc-scrape"),
	}
}

func TestRepairQuote(t *testing.T) {
	t.Run("zero previous close yields zero change", func(t *testing.T) {
		q := RepairQuote(&provider.RawQuote{Price: 100})
		assert.Equal(t, 0.0, q.Change)
		assert.Equal(t, 0.0, q.ChangePercent)
		assert.Equal(t, 0.0, q.PrevClose)
	})

	t.Run("negative previous close yields zero change", func(t *testing.T) {
		q := RepairQuote(&provider.RawQuote{Price: 100, PrevClose: -3})
		assert.Equal(t, 0.0, q.ChangePercent)
		assert.False(t, math.IsNaN(q.ChangePercent) || math.IsInf(q.ChangePercent, 0))
	})

	t.Run("missing price falls back to previous close", func(t *testing.T) {
		q := RepairQuote(&provider.RawQuote{PrevClose: 42.5})
		assert.Equal(t, 42.5, q.Price)
		assert.Equal(t, 0.0, q.Change)
		assert.Equal(t, 42.5, q.Open)
	})

	t.Run("previous close is never taken from price", func(t *testing.T) {
		q := RepairQuote(&provider.RawQuote{Price: 88})
		assert.Equal(t, 0.0, q.PrevClose)
	})

	t.Run("open high low fall back to price", func(t *testing.T) {
		q := RepairQuote(&provider.RawQuote{Price: 10, PrevClose: 9, High: 11})
		assert.Equal(t, 10.0, q.Open)
		assert.Equal(t, 11.0, q.High)
		assert.Equal(t, 10.0, q.Low)
	})

	t.Run("change is rounded", func(t *testing.T) {
		q := RepairQuote(&provider.RawQuote{Price: 585, PrevClose: 580})
		assert.Equal(t, 5.0, q.Change)
		assert.Equal(t, 0.86, q.ChangePercent)
	})
}

func TestChangeOf(t *testing.T) {
	tests := []struct {
		name        string
		price, prev float64
		change, pct float64
	}{
		{"up", 105.2, 100, 5.2, 5.2},
		{"down", 95, 100, -5, -5},
		{"flat", 100, 100, 0, 0},
		{"no previous close", 100, 0, 0, 0},
		{"infinite price", math.Inf(1), 100, 0, 0},
		{"nan previous close", 100, math.NaN(), 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change, pct := ChangeOf(tt.price, tt.prev)
			assert.InDelta(t, tt.change, change, 1e-9)
			assert.InDelta(t, tt.pct, pct, 1e-9)
		})
	}
}

func TestResolveStaleLiveQuote(t *testing.T) {
	db := newTestDB(t)
	fakes := allFailing()
	fakes.tseLive = answering("tse-live", provider.RawQuote{Name: "台積電", Price: 580, PrevClose: 580, Volume: 1000})
	fakes.tseClose = answering("tse-close", provider.RawQuote{Price: 585, PrevClose: 580})

	r := NewResolver(db, fakes.ladders(), nopLogger(), NewMetrics())
	r.SetClock(fixedClock(inSession))

	q, err := r.Resolve(context.Background(), "2330")
	require.NoError(t, err)
	assert.Equal(t, 585.0, q.Price)
	assert.Equal(t, 5.0, q.Change)
	assert.InDelta(t, 0.86, q.ChangePercent, 0.005)
	assert.Equal(t, "tse-close", q.Source)
	assert.Equal(t, "台積電", q.Name)
	assert.Equal(t, models.SessionIntraday, q.Session)
	assert.Equal(t, 1, fakes.tseClose.Calls())
}

func TestResolveFlatDayKeepsLiveQuote(t *testing.T) {
	db := newTestDB(t)
	fakes := allFailing()
	fakes.tseLive = answering("tse-live", provider.RawQuote{Price: 580, PrevClose: 580})
	fakes.tseClose = answering("tse-close", provider.RawQuote{Price: 580, PrevClose: 575})

	r := NewResolver(db, fakes.ladders(), nopLogger(), nil)
	r.SetClock(fixedClock(inSession))

	q, err := r.Resolve(context.Background(), "2330")
	require.NoError(t, err)
	assert.Equal(t, "tse-live", q.Source)
	assert.Equal(t, 0.0, q.ChangePercent)
}

func TestResolveLiveNotStale(t *testing.T) {
	db := newTestDB(t)
	fakes := allFailing()
	fakes.tseLive = answering("tse-live", provider.RawQuote{Price: 590, PrevClose: 580})

	r := NewResolver(db, fakes.ladders(), nopLogger(), nil)
	r.SetClock(fixedClock(inSession))

	q, err := r.Resolve(context.Background(), "2330")
	require.NoError(t, err)
	assert.Equal(t, 590.0, q.Price)
	assert.Equal(t, 0, fakes.tseClose.Calls())
}

func TestResolveAfterCloseUsesClosingBoard(t *testing.T) {
	db := newTestDB(t)
	fakes := allFailing()
	fakes.tseLive = answering("tse-live", provider.RawQuote{Price: 580, PrevClose: 580})
	fakes.tseClose = answering("tse-close", provider.RawQuote{Price: 585, PrevClose: 580})

	r := NewResolver(db, fakes.ladders(), nopLogger(), nil)
	r.SetClock(fixedClock(afterClose))

	q, err := r.Resolve(context.Background(), "2330")
	require.NoError(t, err)
	assert.Equal(t, "tse-close", q.Source)
	assert.Equal(t, models.SessionAfterHours, q.Session)
	assert.Equal(t, 0, fakes.tseLive.Calls())
}

func TestResolveFallsBackToScrape(t *testing.T) {
	db := newTestDB(t)
	fakes := allFailing()
	fakes.tseScrape = answering("tse-scrape", provider.RawQuote{Price: 101, PrevClose: 100})

	r := NewResolver(db, fakes.ladders(), nopLogger(), nil)
	r.SetClock(fixedClock(afterClose))

	q, err := r.Resolve(context.Background(), "1101")
	require.NoError(t, err)
	assert.Equal(t, "tse-scrape", q.Source)
	assert.Equal(t, 1, fakes.tseClose.Calls())
}

func TestResolveSwapsVenue(t *testing.T) {
	db := newTestDB(t)
	fakes := allFailing()
	fakes.otcLive = answering("otc-live", provider.RawQuote{Name: "世芯-KY", Price: 2500, PrevClose: 2450})

	r := NewResolver(db, fakes.ladders(), nopLogger(), nil)
	r.SetClock(fixedClock(inSession))

	q, err := r.Resolve(context.Background(), "3661")
	require.NoError(t, err)
	assert.Equal(t, models.MarketTPEx, q.Market)
	assert.Equal(t, 1, fakes.tseLive.Calls())

	var sec models.Security
	require.NoError(t, db.First(&sec, "code = ?", "3661").Error)
	assert.Equal(t, models.MarketTPEx, sec.Market)
	assert.Equal(t, "世芯-KY", sec.Name)

	// the recorded venue is tried first next time
	_, err = r.Resolve(context.Background(), "3661")
	require.NoError(t, err)
	assert.Equal(t, 1, fakes.tseLive.Calls())
	assert.Equal(t, 2, fakes.otcLive.Calls())
}

func TestResolveBackfillsName(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Security{Code: "2330", Market: models.MarketTWSE}).Error)

	fakes := allFailing()
	fakes.tseLive = answering("tse-live", provider.RawQuote{Name: "台積電", Price: 590, PrevClose: 580})
	r := NewResolver(db, fakes.ladders(), nopLogger(), nil)
	r.SetClock(fixedClock(inSession))

	_, err := r.Resolve(context.Background(), "2330.TW")
	require.NoError(t, err)

	var sec models.Security
	require.NoError(t, db.First(&sec, "code = ?", "2330").Error)
	assert.Equal(t, "台積電", sec.Name)
}

func TestResolveForeignAllTimeOut(t *testing.T) {
	db := newTestDB(t)
	foreign := []provider.Provider{
		timingOut("yahoo-chart"),
		timingOut("yahoo-quote"),
		timingOut("yahoo-summary"),
		timingOut("yahoo-html"),
	}
	r := NewResolver(db, allFailing().ladders(foreign...), nopLogger(), NewMetrics())

	q, err := r.Resolve(context.Background(), "XXXX")
	assert.Nil(t, q)
	assert.ErrorIs(t, err, ErrQuoteNotFound)
	for _, p := range foreign {
		assert.Equal(t, 1, p.(*fakeProvider).Calls())
	}

	var count int64
	db.Model(&models.Security{}).Count(&count)
	assert.Zero(t, count)
}

func TestResolveForeignFirstPositivePrice(t *testing.T) {
	db := newTestDB(t)
	chart := answering("yahoo-chart", provider.RawQuote{PrevClose: 190})
	quote := answering("yahoo-quote", provider.RawQuote{Name: "Apple Inc.", Price: 195, PrevClose: 190})
	google := answering("google-html", provider.RawQuote{Price: 1})

	r := NewResolver(db, allFailing().ladders(chart, quote, google), nopLogger(), nil)
	q, err := r.Resolve(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Code)
	assert.Equal(t, 195.0, q.Price)
	assert.Equal(t, "yahoo-quote", q.Source)
	assert.Equal(t, models.MarketForeign, q.Market)
	assert.Equal(t, 0, google.Calls())
}

func TestResolveSurvivesProviderPanic(t *testing.T) {
	db := newTestDB(t)
	broken := &fakeProvider{name: "yahoo-chart", panic: true}
	good := answering("yahoo-quote", provider.RawQuote{Price: 10, PrevClose: 9})

	r := NewResolver(db, allFailing().ladders(broken, good), nopLogger(), nil)
	q, err := r.Resolve(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "yahoo-quote", q.Source)
}

func TestResolveInvalidIdentifier(t *testing.T) {
	r := NewResolver(newTestDB(t), allFailing().ladders(), nopLogger(), nil)
	_, err := r.Resolve(context.Background(), "NOT-A-TICKER")
	assert.ErrorIs(t, err, ErrQuoteNotFound)
}
