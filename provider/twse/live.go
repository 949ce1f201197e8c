// Package twse implements the domestic quote providers: the exchange's live
// MIS endpoint, the listed and OTC closing-price open data endpoints, and a
// Yahoo TW page scrape used as the last resort.
package twse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Cyvadra/stock-alert/provider"
)

// Venue is a domestic listing board
type Venue string

const (
	VenueTSE Venue = "tse" // listed
	VenueOTC Venue = "otc" // over the counter
)

// LiveProvider queries the MIS real-time quote endpoint for one venue
type LiveProvider struct {
	client  *provider.Client
	baseURL string
	venue   Venue
}

// NewLiveProvider creates a live quote provider for a venue
func NewLiveProvider(client *provider.Client, baseURL string, venue Venue) *LiveProvider {
	return &LiveProvider{client: client, baseURL: baseURL, venue: venue}
}

// Name returns the provider name
func (p *LiveProvider) Name() string {
	return "twse-live-" + string(p.venue)
}

type misResponse struct {
	RtCode   string       `json:"rtcode"`
	MsgArray []misMessage `json:"msgArray"`
}

type misMessage struct {
	Code      string `json:"c"`
	Name      string `json:"n"`
	Price     string `json:"z"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	PrevClose string `json:"y"`
	Volume    string `json:"v"` // lots
	Bids      string `json:"b"` // "584.00_583.50_"
}

// Fetch retrieves the live quote
func (p *LiveProvider) Fetch(ctx context.Context, symbol string) (*provider.RawQuote, error) {
	body, err := p.client.Get(ctx, p.Name(), p.baseURL, map[string]string{
		"ex_ch": fmt.Sprintf("%s_%s.tw", p.venue, symbol),
		"json":  "1",
		"delay": "0",
	})
	if err != nil {
		return nil, err
	}

	var resp misResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, provider.Malformed(p.Name(), err)
	}
	if len(resp.MsgArray) == 0 {
		return nil, provider.NotFound(p.Name(), symbol)
	}
	msg := resp.MsgArray[0]
	if msg.Code != "" && msg.Code != symbol {
		return nil, provider.NotFound(p.Name(), symbol)
	}

	price := provider.ParsePrice(msg.Price)
	if price == 0 {
		// no trade yet this session; the best bid is the freshest indication
		price = provider.ParsePrice(strings.Split(msg.Bids, "_")[0])
	}

	q := &provider.RawQuote{
		Symbol:    symbol,
		Name:      msg.Name,
		Price:     price,
		Open:      provider.ParsePrice(msg.Open),
		High:      provider.ParsePrice(msg.High),
		Low:       provider.ParsePrice(msg.Low),
		PrevClose: provider.ParsePrice(msg.PrevClose),
		Volume:    provider.ParseVolume(msg.Volume) * 1000,
		Source:    p.Name(),
	}
	if !q.Usable() {
		return nil, provider.NotFound(p.Name(), symbol)
	}
	return q, nil
}
