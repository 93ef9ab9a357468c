// Package exchange supplies the USD to VES exchange rate used when
// settling payments entered in bolívares.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL is how long a fetched rate is served before the next fetch.
const DefaultTTL = time.Hour

// ErrNoRate is returned when the source answered without a usable VES rate.
var ErrNoRate = errors.New("exchange: response has no VES rate")

// Quote is the cached rate and when it was fetched.
type Quote struct {
	Base      string    `json:"base"`
	Currency  string    `json:"currency"`
	Rate      float64   `json:"rate"`
	FetchedAt time.Time `json:"fetched_at"`
}

type ratesResponse struct {
	Rates struct {
		VES *float64 `json:"VES"`
	} `json:"rates"`
}

// Client fetches the rate from a JSON endpoint exposing rates.VES and keeps
// it for the TTL. Failed fetches are not cached and not retried; the next
// call after a failure fetches again.
type Client struct {
	mu     sync.RWMutex
	quote  *Quote
	url    string
	ttl    time.Duration
	client *http.Client
	logger zerolog.Logger
	now    func() time.Time
}

func NewClient(url string, ttl, timeout time.Duration, logger zerolog.Logger) *Client {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:    url,
		ttl:    ttl,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "exchange").Logger(),
		now:    time.Now,
	}
}

// Rate returns the current USD to VES rate.
func (c *Client) Rate(ctx context.Context) (float64, error) {
	q, err := c.Quote(ctx)
	if err != nil {
		return 0, err
	}
	return q.Rate, nil
}

// Quote returns the cached quote, fetching a fresh one once the TTL expired.
func (c *Client) Quote(ctx context.Context) (Quote, error) {
	c.mu.RLock()
	q := c.quote
	c.mu.RUnlock()
	if q != nil && c.now().Sub(q.FetchedAt) < c.ttl {
		return *q, nil
	}

	fresh, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("exchange rate fetch failed")
		return Quote{}, err
	}

	c.mu.Lock()
	c.quote = &fresh
	c.mu.Unlock()
	c.logger.Debug().Float64("rate", fresh.Rate).Msg("exchange rate refreshed")
	return fresh, nil
}

func (c *Client) fetch(ctx context.Context) (Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("GET %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("exchange endpoint returned status %d", resp.StatusCode)
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("decode exchange response: %w", err)
	}
	if body.Rates.VES == nil || *body.Rates.VES <= 0 {
		return Quote{}, ErrNoRate
	}

	return Quote{Base: "USD", Currency: "VES", Rate: *body.Rates.VES, FetchedAt: c.now()}, nil
}

// Convert turns a USD amount into bolívares, rounded to cents.
func Convert(amountUSD, rate float64) float64 {
	return math.Round(amountUSD*rate*100) / 100
}
