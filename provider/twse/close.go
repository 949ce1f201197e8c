package twse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Cyvadra/stock-alert/provider"
)

// boardTTL bounds how long a downloaded board is reused; each call returns
// every security on the venue.
const boardTTL = time.Minute

// CloseProvider serves closing prices from a whole-board open data endpoint
type CloseProvider struct {
	client  *provider.Client
	baseURL string
	name    string
	decode  func(body []byte) (map[string]*provider.RawQuote, error)
	now     func() time.Time

	mu        sync.Mutex
	board     map[string]*provider.RawQuote
	fetchedAt time.Time
}

// NewTWSECloseProvider creates the listed-board closing price provider
func NewTWSECloseProvider(client *provider.Client, baseURL string) *CloseProvider {
	return &CloseProvider{client: client, baseURL: baseURL, name: "twse-close", decode: decodeTWSEBoard, now: time.Now}
}

// NewTPExCloseProvider creates the OTC-board closing price provider
func NewTPExCloseProvider(client *provider.Client, baseURL string) *CloseProvider {
	return &CloseProvider{client: client, baseURL: baseURL, name: "tpex-close", decode: decodeTPExBoard, now: time.Now}
}

// Name returns the provider name
func (p *CloseProvider) Name() string {
	return p.name
}

// Fetch looks the symbol up in the (cached) board
func (p *CloseProvider) Fetch(ctx context.Context, symbol string) (*provider.RawQuote, error) {
	board, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	q, ok := board[symbol]
	if !ok || !q.Usable() {
		return nil, provider.NotFound(p.name, symbol)
	}
	out := *q
	return &out, nil
}

func (p *CloseProvider) load(ctx context.Context) (map[string]*provider.RawQuote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.board != nil && p.now().Sub(p.fetchedAt) < boardTTL {
		return p.board, nil
	}

	body, err := p.client.Get(ctx, p.name, p.baseURL, nil)
	if err != nil {
		return nil, err
	}
	board, err := p.decode(body)
	if err != nil {
		return nil, provider.Malformed(p.name, err)
	}
	for _, q := range board {
		q.Source = p.name
	}
	p.board = board
	p.fetchedAt = p.now()
	return board, nil
}

type twseDayRow struct {
	Code         string `json:"Code"`
	Name         string `json:"Name"`
	TradeVolume  string `json:"TradeVolume"`
	OpeningPrice string `json:"OpeningPrice"`
	HighestPrice string `json:"HighestPrice"`
	LowestPrice  string `json:"LowestPrice"`
	ClosingPrice string `json:"ClosingPrice"`
	Change       string `json:"Change"`
}

func decodeTWSEBoard(body []byte) (map[string]*provider.RawQuote, error) {
	var rows []twseDayRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}
	board := make(map[string]*provider.RawQuote, len(rows))
	for _, r := range rows {
		closePrice := provider.ParsePrice(r.ClosingPrice)
		board[r.Code] = &provider.RawQuote{
			Symbol:    r.Code,
			Name:      r.Name,
			Price:     closePrice,
			Open:      provider.ParsePrice(r.OpeningPrice),
			High:      provider.ParsePrice(r.HighestPrice),
			Low:       provider.ParsePrice(r.LowestPrice),
			PrevClose: prevFromChange(closePrice, r.Change),
			Volume:    provider.ParseVolume(r.TradeVolume),
		}
	}
	return board, nil
}

type tpexCloseRow struct {
	Code          string `json:"SecuritiesCompanyCode"`
	Name          string `json:"CompanyName"`
	Close         string `json:"Close"`
	Change        string `json:"Change"`
	Open          string `json:"Open"`
	High          string `json:"High"`
	Low           string `json:"Low"`
	TradingShares string `json:"TradingShares"`
}

func decodeTPExBoard(body []byte) (map[string]*provider.RawQuote, error) {
	var rows []tpexCloseRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}
	board := make(map[string]*provider.RawQuote, len(rows))
	for _, r := range rows {
		closePrice := provider.ParsePrice(r.Close)
		board[r.Code] = &provider.RawQuote{
			Symbol:    r.Code,
			Name:      r.Name,
			Price:     closePrice,
			Open:      provider.ParsePrice(r.Open),
			High:      provider.ParsePrice(r.High),
			Low:       provider.ParsePrice(r.Low),
			PrevClose: prevFromChange(closePrice, r.Change),
			Volume:    provider.ParseVolume(r.TradingShares),
		}
	}
	return board, nil
}

// prevFromChange derives the previous close; an unparseable change leaves it
// absent rather than equal to the close.
func prevFromChange(closePrice float64, change string) float64 {
	if closePrice <= 0 {
		return 0
	}
	delta, ok := provider.ParseField(change)
	if !ok {
		return 0
	}
	return provider.PositiveOrZero(closePrice - delta)
}
