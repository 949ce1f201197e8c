package twse

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Cyvadra/stock-alert/provider"
)

var yahooTWPatterns = provider.FieldPatterns{
	Name:             regexp.MustCompile(`"symbolName"\s*:\s*"([^"]+)"`),
	Price:            regexp.MustCompile(`"regularMarketPrice"\s*:\s*"?([0-9.,]+)`),
	PrevClose:        regexp.MustCompile(`"regularMarketPreviousClose"\s*:\s*"?([0-9.,]+)`),
	Open:             regexp.MustCompile(`"regularMarketOpen"\s*:\s*"?([0-9.,]+)`),
	High:             regexp.MustCompile(`"regularMarketDayHigh"\s*:\s*"?([0-9.,]+)`),
	Low:              regexp.MustCompile(`"regularMarketDayLow"\s*:\s*"?([0-9.,]+)`),
	Volume:           regexp.MustCompile(`"regularMarketVolume"\s*:\s*"?([0-9.,]+)`),
	VolumeMultiplier: 1000, // page reports lots
}

// ScrapeProvider scrapes the Yahoo TW quote page for one venue
type ScrapeProvider struct {
	client  *provider.Client
	baseURL string
	venue   Venue
}

// NewScrapeProvider creates the HTML scrape fallback for a venue
func NewScrapeProvider(client *provider.Client, baseURL string, venue Venue) *ScrapeProvider {
	return &ScrapeProvider{client: client, baseURL: strings.TrimRight(baseURL, "/"), venue: venue}
}

// Name returns the provider name
func (p *ScrapeProvider) Name() string {
	return "yahoo-tw-" + string(p.venue)
}

// Fetch scrapes the page for symbol
func (p *ScrapeProvider) Fetch(ctx context.Context, symbol string) (*provider.RawQuote, error) {
	suffix := ".TW"
	if p.venue == VenueOTC {
		suffix = ".TWO"
	}
	body, err := p.client.Get(ctx, p.Name(), fmt.Sprintf("%s/%s%s", p.baseURL, symbol, suffix), nil)
	if err != nil {
		return nil, err
	}

	q := yahooTWPatterns.Extract(body)
	if !q.Usable() {
		return nil, provider.NotFound(p.Name(), symbol)
	}
	q.Symbol = symbol
	q.Source = p.Name()
	return q, nil
}
