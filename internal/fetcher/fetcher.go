package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"crypto-price-tracker/internal/token"
)

// ErrUpstream marks any failure to obtain a usable response from the price API.
var ErrUpstream = errors.New("price api request failed")

// PriceSource retrieves current USD spot prices in a single batched call.
// Tokens the upstream has no data for are omitted from the result.
type PriceSource interface {
	FetchPrices(ctx context.Context, tokens []token.Token) (map[token.Token]decimal.Decimal, error)
}

// HistoricalPrice is one upstream observation returned by a history query.
type HistoricalPrice struct {
	Timestamp time.Time
	Price     decimal.Decimal
}

// HistorySource retrieves past prices for a single token.
type HistorySource interface {
	FetchHistory(ctx context.Context, tok token.Token, from, to time.Time) ([]HistoricalPrice, error)
}
