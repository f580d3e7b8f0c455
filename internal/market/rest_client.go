package market

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxRetries = 3

// RestClientInterface defines the price endpoints the catalog depends on.
type RestClientInterface interface {
	GetServerTime(ctx context.Context) (int64, error)
	Get24hTickers(ctx context.Context) ([]Ticker24h, error)
}

// RestClient is a client for a Binance-compatible public market API.
// It implements the RestClientInterface.
type RestClient struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
	backoff func(attempt int) time.Duration
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new market data client.
func NewRestClient(cfg *config.Market, logger *zap.Logger) *RestClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(10 * time.Second)

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:  client,
		logger:  logger,
		limiter: limiter,
		backoff: exponentialBackoff,
	}
}

// Exponential backoff: 1s, 2s, 4s
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// GetServerTime fetches the current server time. It doubles as a connectivity check.
func (c *RestClient) GetServerTime(ctx context.Context) (int64, error) {
	type serverTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/time", func() *resty.Request {
		return c.client.R().SetResult(&serverTimeResponse{})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}

	return resp.Result().(*serverTimeResponse).ServerTime, nil
}

// Ticker24h is one entry of the rolling 24h ticker statistics.
type Ticker24h struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	QuoteVolume        string `json:"quoteVolume"`
}

// Get24hTickers fetches 24h statistics for every symbol.
func (c *RestClient) Get24hTickers(ctx context.Context) ([]Ticker24h, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/ticker/24hr", func() *resty.Request {
		var tickers []Ticker24h
		return c.client.R().
			SetResult(&tickers).
			SetHeader("Content-Type", "application/json")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get 24h tickers: %w", err)
	}

	return *resp.Result().(*[]Ticker24h), nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
// newReq builds a fresh request per attempt so results are never decoded twice.
func (c *RestClient) doRequest(ctx context.Context, method, url string, newReq func() *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = newReq().SetContext(ctx).Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests || statusCode == 418 { // HTTP 429 or 418
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
			err = fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		} else if ctx.Err() == nil {
			// Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, err
		}

		if retryAfter == 0 {
			retryAfter = c.backoff(i)
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}
