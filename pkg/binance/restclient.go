package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"marketstream/internal/model"

	"go.uber.org/ratelimit"
)

type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    ratelimit.Limiter
}

// NewRESTClient creates a futures REST client. requestsPerSec <= 0 disables rate limiting.
func NewRESTClient(baseURL string, timeout time.Duration, requestsPerSec int) *RESTClient {
	limiter := ratelimit.NewUnlimited()
	if requestsPerSec > 0 {
		limiter = ratelimit.New(requestsPerSec)
	}
	return &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

func (c *RESTClient) HTTPClient() *http.Client {
	return c.httpClient
}

// get performs a rate-limited GET and decodes the JSON body into out.
func (c *RESTClient) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	c.limiter.Take()

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	// Execute the HTTP request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	// Check HTTP status code
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Msg == "" {
			apiErr.Msg = string(body)
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// GetUSDTPerpetualSymbols fetches TRADING perpetual contracts quoted in USDT, sorted by symbol.
func (c *RESTClient) GetUSDTPerpetualSymbols(ctx context.Context) ([]model.Symbol, error) {
	var info ExchangeInfoResponse
	if err := c.get(ctx, "/fapi/v1/exchangeInfo", nil, &info); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var symbols []model.Symbol
	for _, s := range info.Symbols {
		if s.QuoteAsset != "USDT" || s.Status != "TRADING" || s.ContractType != "PERPETUAL" {
			continue
		}
		if seen[s.Symbol] {
			continue
		}
		seen[s.Symbol] = true
		symbols = append(symbols, model.Symbol(s.Symbol))
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })
	return symbols, nil
}

// GetFundingRate returns the most recent funding rate for symbol.
func (c *RESTClient) GetFundingRate(ctx context.Context, symbol model.Symbol) (model.FundingRate, error) {
	query := url.Values{}
	query.Set("symbol", symbol.String())
	query.Set("limit", "1")

	var list []FundingRateResponse
	if err := c.get(ctx, "/fapi/v1/fundingRate", query, &list); err != nil {
		return model.FundingRate{}, err
	}
	if len(list) == 0 {
		return model.FundingRate{}, fmt.Errorf("no funding rate returned for %s", symbol)
	}

	latest := list[len(list)-1]
	rate, err := parseFinite(latest.FundingRate)
	if err != nil {
		return model.FundingRate{}, fmt.Errorf("parse funding rate %q: %w", latest.FundingRate, err)
	}
	return model.FundingRate{
		Symbol:      symbol,
		Rate:        rate,
		FundingTime: time.UnixMilli(latest.FundingTime).UTC(),
		ObservedAt:  time.Now().UTC(),
	}, nil
}

// GetOpenInterest returns the current open interest for symbol.
func (c *RESTClient) GetOpenInterest(ctx context.Context, symbol model.Symbol) (model.OpenInterest, error) {
	query := url.Values{}
	query.Set("symbol", symbol.String())

	var resp OpenInterestResponse
	if err := c.get(ctx, "/fapi/v1/openInterest", query, &resp); err != nil {
		return model.OpenInterest{}, err
	}

	oi, err := parseFinite(resp.OpenInterest)
	if err != nil {
		return model.OpenInterest{}, fmt.Errorf("parse open interest %q: %w", resp.OpenInterest, err)
	}
	observed := time.Now().UTC()
	if resp.Time > 0 {
		observed = time.UnixMilli(resp.Time).UTC()
	}
	return model.OpenInterest{
		Symbol:       symbol,
		OpenInterest: oi,
		ObservedAt:   observed,
	}, nil
}

// GetOrderBook returns a depth snapshot with at most limit levels per side.
func (c *RESTClient) GetOrderBook(ctx context.Context, symbol model.Symbol, limit int) (model.OrderBookDelta, error) {
	query := url.Values{}
	query.Set("symbol", symbol.String())
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp DepthResponse
	if err := c.get(ctx, "/fapi/v1/depth", query, &resp); err != nil {
		return model.OrderBookDelta{}, err
	}

	bids, err := ParseLevels(resp.Bids)
	if err != nil {
		return model.OrderBookDelta{}, fmt.Errorf("parse bids: %w", err)
	}
	asks, err := ParseLevels(resp.Asks)
	if err != nil {
		return model.OrderBookDelta{}, fmt.Errorf("parse asks: %w", err)
	}

	observed := time.Now().UTC()
	if resp.EventTime > 0 {
		observed = time.UnixMilli(resp.EventTime).UTC()
	}
	return model.OrderBookDelta{
		Symbol:        symbol,
		Bids:          bids,
		Asks:          asks,
		FinalUpdateID: resp.LastUpdateID,
		ObservedAt:    observed,
	}, nil
}
