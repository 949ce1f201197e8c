// Package yahoo implements the foreign quote providers backed by Yahoo
// Finance: the chart API, the quote API, the quoteSummary API and a page
// scrape, tried in that order by the resolver.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Cyvadra/stock-alert/provider"
)

// ChartProvider reads the v8 chart API
type ChartProvider struct {
	client  *provider.Client
	baseURL string
}

// NewChartProvider creates a chart API provider
func NewChartProvider(client *provider.Client, baseURL string) *ChartProvider {
	return &ChartProvider{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Name returns the provider name
func (p *ChartProvider) Name() string { return "yahoo-chart" }

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				ShortName          string  `json:"shortName"`
				LongName           string  `json:"longName"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"previousClose"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
				DayHigh            float64 `json:"regularMarketDayHigh"`
				DayLow             float64 `json:"regularMarketDayLow"`
				Volume             float64 `json:"regularMarketVolume"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Open []*float64 `json:"open"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch retrieves the quote from the chart meta block
func (p *ChartProvider) Fetch(ctx context.Context, symbol string) (*provider.RawQuote, error) {
	body, err := p.client.Get(ctx, p.Name(), p.baseURL+"/"+symbol, map[string]string{
		"interval": "1d",
		"range":    "5d",
	})
	if err != nil {
		return nil, err
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, provider.Malformed(p.Name(), err)
	}
	if resp.Chart.Error != nil || len(resp.Chart.Result) == 0 {
		return nil, provider.NotFound(p.Name(), symbol)
	}
	r := resp.Chart.Result[0]
	meta := r.Meta

	prev := meta.PreviousClose
	if prev <= 0 {
		prev = meta.ChartPreviousClose
	}
	var open float64
	if len(r.Indicators.Quote) > 0 {
		opens := r.Indicators.Quote[0].Open
		if n := len(opens); n > 0 && opens[n-1] != nil {
			open = *opens[n-1]
		}
	}

	q := &provider.RawQuote{
		Symbol:    symbol,
		Name:      firstNonEmpty(meta.LongName, meta.ShortName),
		Price:     provider.PositiveOrZero(meta.RegularMarketPrice),
		Open:      provider.PositiveOrZero(open),
		High:      provider.PositiveOrZero(meta.DayHigh),
		Low:       provider.PositiveOrZero(meta.DayLow),
		PrevClose: provider.PositiveOrZero(prev),
		Volume:    int64(provider.PositiveOrZero(meta.Volume)),
		Source:    p.Name(),
	}
	if q.Price <= 0 {
		return nil, provider.NotFound(p.Name(), symbol)
	}
	return q, nil
}

// QuoteProvider reads the v7 quote API
type QuoteProvider struct {
	client  *provider.Client
	baseURL string
}

// NewQuoteProvider creates a quote API provider
func NewQuoteProvider(client *provider.Client, baseURL string) *QuoteProvider {
	return &QuoteProvider{client: client, baseURL: baseURL}
}

// Name returns the provider name
func (p *QuoteProvider) Name() string { return "yahoo-quote" }

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol        string  `json:"symbol"`
			ShortName     string  `json:"shortName"`
			LongName      string  `json:"longName"`
			Price         float64 `json:"regularMarketPrice"`
			PreviousClose float64 `json:"regularMarketPreviousClose"`
			Open          float64 `json:"regularMarketOpen"`
			DayHigh       float64 `json:"regularMarketDayHigh"`
			DayLow        float64 `json:"regularMarketDayLow"`
			Volume        float64 `json:"regularMarketVolume"`
		} `json:"result"`
	} `json:"quoteResponse"`
}

// Fetch retrieves the quote
func (p *QuoteProvider) Fetch(ctx context.Context, symbol string) (*provider.RawQuote, error) {
	body, err := p.client.Get(ctx, p.Name(), p.baseURL, map[string]string{"symbols": symbol})
	if err != nil {
		return nil, err
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, provider.Malformed(p.Name(), err)
	}
	if len(resp.QuoteResponse.Result) == 0 {
		return nil, provider.NotFound(p.Name(), symbol)
	}
	r := resp.QuoteResponse.Result[0]

	q := &provider.RawQuote{
		Symbol:    symbol,
		Name:      firstNonEmpty(r.LongName, r.ShortName),
		Price:     provider.PositiveOrZero(r.Price),
		Open:      provider.PositiveOrZero(r.Open),
		High:      provider.PositiveOrZero(r.DayHigh),
		Low:       provider.PositiveOrZero(r.DayLow),
		PrevClose: provider.PositiveOrZero(r.PreviousClose),
		Volume:    int64(provider.PositiveOrZero(r.Volume)),
		Source:    p.Name(),
	}
	if q.Price <= 0 {
		return nil, provider.NotFound(p.Name(), symbol)
	}
	return q, nil
}

// SummaryProvider reads the price module of the v10 quoteSummary API
type SummaryProvider struct {
	client  *provider.Client
	baseURL string
}

// NewSummaryProvider creates a quoteSummary provider
func NewSummaryProvider(client *provider.Client, baseURL string) *SummaryProvider {
	return &SummaryProvider{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Name returns the provider name
func (p *SummaryProvider) Name() string { return "yahoo-summary" }

type rawValue struct {
	Raw float64 `json:"raw"`
}

type summaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			Price struct {
				ShortName     string   `json:"shortName"`
				LongName      string   `json:"longName"`
				Price         rawValue `json:"regularMarketPrice"`
				PreviousClose rawValue `json:"regularMarketPreviousClose"`
				Open          rawValue `json:"regularMarketOpen"`
				DayHigh       rawValue `json:"regularMarketDayHigh"`
				DayLow        rawValue `json:"regularMarketDayLow"`
				Volume        rawValue `json:"regularMarketVolume"`
			} `json:"price"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

// Fetch retrieves the quote
func (p *SummaryProvider) Fetch(ctx context.Context, symbol string) (*provider.RawQuote, error) {
	body, err := p.client.Get(ctx, p.Name(), p.baseURL+"/"+symbol, map[string]string{"modules": "price"})
	if err != nil {
		return nil, err
	}

	var resp summaryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, provider.Malformed(p.Name(), err)
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return nil, provider.NotFound(p.Name(), symbol)
	}
	r := resp.QuoteSummary.Result[0].Price

	q := &provider.RawQuote{
		Symbol:    symbol,
		Name:      firstNonEmpty(r.LongName, r.ShortName),
		Price:     provider.PositiveOrZero(r.Price.Raw),
		Open:      provider.PositiveOrZero(r.Open.Raw),
		High:      provider.PositiveOrZero(r.DayHigh.Raw),
		Low:       provider.PositiveOrZero(r.DayLow.Raw),
		PrevClose: provider.PositiveOrZero(r.PreviousClose.Raw),
		Volume:    int64(provider.PositiveOrZero(r.Volume.Raw)),
		Source:    p.Name(),
	}
	if q.Price <= 0 {
		return nil, provider.NotFound(p.Name(), symbol)
	}
	return q, nil
}

var pagePatterns = provider.FieldPatterns{
	Name:      regexp.MustCompile(`<h1[^>]*>([^<(]+)`),
	Price:     regexp.MustCompile(`data-field="regularMarketPrice"[^>]*value="([0-9.,]+)"`),
	PrevClose: regexp.MustCompile(`data-field="regularMarketPreviousClose"[^>]*>\s*([0-9.,]+)`),
	Open:      regexp.MustCompile(`data-field="regularMarketOpen"[^>]*>\s*([0-9.,]+)`),
	Volume:    regexp.MustCompile(`data-field="regularMarketVolume"[^>]*>\s*([0-9.,]+)`),
}

// PageProvider scrapes the quote page
type PageProvider struct {
	client  *provider.Client
	baseURL string
}

// NewPageProvider creates the HTML scrape provider
func NewPageProvider(client *provider.Client, baseURL string) *PageProvider {
	return &PageProvider{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Name returns the provider name
func (p *PageProvider) Name() string { return "yahoo-html" }

// Fetch scrapes the page for symbol
func (p *PageProvider) Fetch(ctx context.Context, symbol string) (*provider.RawQuote, error) {
	body, err := p.client.Get(ctx, p.Name(), fmt.Sprintf("%s/%s/", p.baseURL, symbol), nil)
	if err != nil {
		return nil, err
	}
	q := pagePatterns.Extract(body)
	if q.Price <= 0 {
		return nil, provider.NotFound(p.Name(), symbol)
	}
	q.Symbol = symbol
	q.Source = p.Name()
	return q, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
