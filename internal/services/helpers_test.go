package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Cyvadra/stock-alert/internal/database"
	"github.com/Cyvadra/stock-alert/internal/models"
	"github.com/Cyvadra/stock-alert/provider"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var (
	// Monday 10:00 in Taipei, inside the session
	inSession = time.Date(2026, 10, 19, 10, 0, 0, 0, provider.Taipei)
	// Monday 15:00 in Taipei, after the close
	afterClose = time.Date(2026, 10, 19, 15, 0, 0, 0, provider.Taipei)
)

// fakeProvider answers from a fixed quote or error and counts calls
type fakeProvider struct {
	name  string
	quote *provider.RawQuote
	err   error
	panic bool

	mu    sync.Mutex
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Fetch(ctx context.Context, symbol string) (*provider.RawQuote, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panic {
		panic("unexpected payload shape")
	}
	if f.err != nil {
		return nil, f.err
	}
	q := *f.quote
	q.Symbol = symbol
	return &q, nil
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func answering(name string, q provider.RawQuote) *fakeProvider {
	return &fakeProvider{name: name, quote: &q}
}

func failing(name string) *fakeProvider {
	return &fakeProvider{name: name, err: provider.NotFound(name, "")}
}

func timingOut(name string) *fakeProvider {
	return &fakeProvider{name: name, err: provider.NewProviderError(name, "TIMEOUT", "deadline exceeded", provider.ErrTimeout)}
}

// recordingPusher captures pushed messages
type recordingPusher struct {
	mu       sync.Mutex
	messages []Message
	pushes   int
	err      error
}

func (p *recordingPusher) Push(ctx context.Context, recipient string, messages ...Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.pushes++
	p.messages = append(p.messages, messages...)
	return nil
}

func (p *recordingPusher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestDB(t *testing.T) *gorm.DB {
	return database.OpenTest(t)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func ptr(f float64) *float64 {
	return &f
}

// seedHistory writes closes as consecutive daily bars ending the day before end
func seedHistory(t *testing.T, db *gorm.DB, code string, end time.Time, closes []float64, volume int64) {
	t.Helper()
	history := NewHistoryService(db)
	start := end.AddDate(0, 0, -len(closes))
	for i, c := range closes {
		row := models.PriceHistory{
			SecurityCode: code,
			TradeDate:    provider.TradeDate(start.AddDate(0, 0, i)),
			Open:         c,
			High:         c,
			Low:          c,
			Close:        c,
			Volume:       volume,
		}
		if err := history.Upsert(context.Background(), &row); err != nil {
			t.Fatalf("seed history: %v", err)
		}
	}
}
