package provider

import (
	"context"
)

// Provider is one upstream quote source. Fetch returns ErrNotFound (or a
// ProviderError wrapping one of the package errors) when it cannot answer.
type Provider interface {
	// Name is the provenance tag attached to quotes it produces
	Name() string

	// Fetch retrieves a raw quote for symbol
	Fetch(ctx context.Context, symbol string) (*RawQuote, error)
}

// RawQuote is a provider answer before repair. A zero numeric field means
// the provider had no data for it.
type RawQuote struct {
	Symbol    string
	Name      string
	Price     float64
	Open      float64
	High      float64
	Low       float64
	PrevClose float64
	Volume    int64 // shares
	Source    string
}

// Usable reports whether the answer carries a strictly positive price or,
// failing that, a previous close the price can fall back to.
func (q *RawQuote) Usable() bool {
	return q != nil && (q.Price > 0 || q.PrevClose > 0)
}

// Func adapts a plain function to the Provider interface
type Func struct {
	ProviderName string
	FetchFunc    func(ctx context.Context, symbol string) (*RawQuote, error)
}

// Name returns the provider name
func (f Func) Name() string {
	return f.ProviderName
}

// Fetch calls the wrapped function
func (f Func) Fetch(ctx context.Context, symbol string) (*RawQuote, error) {
	return f.FetchFunc(ctx, symbol)
}
