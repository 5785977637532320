package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-price-tracker/internal/token"
)

const (
	simplePricePath  = "/simple/price"
	marketRangePath  = "/coins/%s/market_chart/range"
	quoteCurrency    = "usd"
	apiKeyHeader     = "x-cg-demo-api-key"
	maxErrorBodySize = 512
)

// CoinGeckoOptions parameterise the CoinGecko client.
type CoinGeckoOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// CoinGecko fetches prices from the CoinGecko public API.
type CoinGecko struct {
	opts    CoinGeckoOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	timeout time.Duration
}

// NewCoinGecko constructs a CoinGecko client.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	return &CoinGecko{
		opts:    opts,
		logger:  logger.With().Str("component", "coingecko").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		timeout: timeout,
	}
}

// FetchPrices retrieves USD prices for all tokens in one request.
func (c *CoinGecko) FetchPrices(ctx context.Context, tokens []token.Token) (map[token.Token]decimal.Decimal, error) {
	if len(tokens) == 0 {
		return map[token.Token]decimal.Decimal{}, nil
	}

	ids := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if !tok.Valid() {
			return nil, fmt.Errorf("%w: %s", token.ErrUnsupported, tok)
		}
		ids = append(ids, tok.ProviderID())
	}

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", quoteCurrency)

	var payload map[string]map[string]*decimal.Decimal
	if err := c.getJSON(ctx, simplePricePath, query, &payload); err != nil {
		return nil, err
	}

	prices := make(map[token.Token]decimal.Decimal, len(tokens))
	for _, tok := range tokens {
		entry, ok := payload[tok.ProviderID()]
		if !ok {
			continue
		}
		price := entry[quoteCurrency]
		if price == nil {
			continue
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("%w: negative price %s for %s", ErrUpstream, price.String(), tok)
		}
		prices[tok] = *price
	}

	c.logger.Debug().Int("requested", len(tokens)).Int("received", len(prices)).Msg("fetched spot prices")
	return prices, nil
}

// FetchHistory retrieves the USD price series for tok within [from, to].
func (c *CoinGecko) FetchHistory(ctx context.Context, tok token.Token, from, to time.Time) ([]HistoricalPrice, error) {
	if !tok.Valid() {
		return nil, fmt.Errorf("%w: %s", token.ErrUnsupported, tok)
	}
	if !from.Before(to) {
		return nil, errors.New("history range is empty")
	}

	query := url.Values{}
	query.Set("vs_currency", quoteCurrency)
	query.Set("from", strconv.FormatInt(from.Unix(), 10))
	query.Set("to", strconv.FormatInt(to.Unix(), 10))

	var payload struct {
		Prices [][]json.Number `json:"prices"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf(marketRangePath, url.PathEscape(tok.ProviderID())), query, &payload); err != nil {
		return nil, err
	}

	points := make([]HistoricalPrice, 0, len(payload.Prices))
	for _, pair := range payload.Prices {
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: malformed history point", ErrUpstream)
		}
		ms, err := decimal.NewFromString(pair[0].String())
		if err != nil {
			return nil, fmt.Errorf("%w: parse history timestamp: %v", ErrUpstream, err)
		}
		price, err := decimal.NewFromString(pair[1].String())
		if err != nil {
			return nil, fmt.Errorf("%w: parse history price: %v", ErrUpstream, err)
		}
		if price.IsNegative() {
			continue
		}
		points = append(points, HistoricalPrice{
			Timestamp: time.UnixMilli(ms.IntPart()).UTC(),
			Price:     price,
		})
	}
	return points, nil
}

func (c *CoinGecko) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if c.opts.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.opts.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}

	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	return nil
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr struct {
		Error  string `json:"error"`
		Status struct {
			ErrorMessage string `json:"error_message"`
		} `json:"status"`
	}
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Status.ErrorMessage != "" {
			return fmt.Errorf("%w (%d): %s", ErrUpstream, status, apiErr.Status.ErrorMessage)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("%w (%d): %s", ErrUpstream, status, apiErr.Error)
		}
	}
	text := strings.TrimSpace(string(payload))
	if len(text) > maxErrorBodySize {
		text = text[:maxErrorBodySize]
	}
	if text != "" {
		return fmt.Errorf("%w (%d): %s", ErrUpstream, status, text)
	}
	return fmt.Errorf("%w (%d)", ErrUpstream, status)
}

var (
	_ PriceSource   = (*CoinGecko)(nil)
	_ HistorySource = (*CoinGecko)(nil)
)
