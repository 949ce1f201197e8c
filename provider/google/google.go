// Package google scrapes the Google Finance quote page, the foreign ladder's
// provider of last resort.
package google

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Cyvadra/stock-alert/provider"
)

var patterns = provider.FieldPatterns{
	Name:      regexp.MustCompile(`<div class="zzDege">([^<]+)</div>`),
	Price:     regexp.MustCompile(`data-last-price="([0-9.,]+)"`),
	PrevClose: regexp.MustCompile(`Previous close</div>(?:<[^>]+>)*\$?([0-9.,]+)`),
}

// PageProvider scrapes quote pages, trying each listing exchange in order
type PageProvider struct {
	client    *provider.Client
	baseURL   string
	exchanges []string
}

// NewPageProvider creates the provider
func NewPageProvider(client *provider.Client, baseURL string) *PageProvider {
	return &PageProvider{
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		exchanges: []string{"NASDAQ", "NYSE"},
	}
}

// Name returns the provider name
func (p *PageProvider) Name() string { return "google-html" }

// Fetch scrapes the first exchange page that carries a price
func (p *PageProvider) Fetch(ctx context.Context, symbol string) (*provider.RawQuote, error) {
	var lastErr error = provider.NotFound(p.Name(), symbol)
	for _, exchange := range p.exchanges {
		body, err := p.client.Get(ctx, p.Name(), fmt.Sprintf("%s/%s:%s", p.baseURL, symbol, exchange), map[string]string{"hl": "en"})
		if err != nil {
			lastErr = err
			if provider.IsTemporaryError(err) {
				// a timeout spends this provider's one attempt
				return nil, err
			}
			continue
		}
		q := patterns.Extract(body)
		if q.Price > 0 {
			q.Symbol = symbol
			q.Source = p.Name()
			return q, nil
		}
	}
	return nil, lastErr
}
