// Package serpapi implements the rate-limited external fetch capability
// against the SerpApi Google Maps endpoints.
package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tattler-mx/tattler-go/internal/errors"
	"github.com/tattler-mx/tattler-go/internal/logging"
)

// Package-level logger specific to the serpapi service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "serpapi.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "serpapi", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize serpapi file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "serpapi")
		closeLogger = func() error { return nil }
	}
}

// Config holds the SerpApi client configuration
type Config struct {
	APIKey       string
	BaseURL      string
	Language     string
	GoogleDomain string
	Timeout      time.Duration
	CacheTTL     time.Duration

	// Transport overrides the HTTP transport; tests use it to stub the
	// provider without touching the network.
	Transport http.RoundTripper
}

// DefaultConfig returns the default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://serpapi.com",
		Language:     "es",
		GoogleDomain: "google.com.mx",
		Timeout:      20 * time.Second,
		CacheTTL:     15 * time.Minute,
	}
}

// Client provides methods for interacting with the SerpApi search endpoints
type Client struct {
	config     Config
	httpClient *http.Client
	cache      *cache.Cache

	metrics struct {
		apiCalls  int64
		cacheHits int64
		apiErrors int64
		mu        sync.Mutex
	}
}

// NewClient creates a new SerpApi client
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.Newf("SerpApi API key is required").
			Category(errors.CategoryConfiguration).
			Component("serpapi").
			Build()
	}

	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Language == "" {
		config.Language = defaults.Language
	}
	if config.GoogleDomain == "" {
		config.GoogleDomain = defaults.GoogleDomain
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = defaults.CacheTTL
	}

	client := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		cache: cache.New(config.CacheTTL, config.CacheTTL*2),
	}

	logger.Info("SerpApi client initialized",
		"base_url", config.BaseURL,
		"language", config.Language,
		"google_domain", config.GoogleDomain,
		"timeout", config.Timeout,
		"cache_ttl", config.CacheTTL)

	return client, nil
}

// Close cleans up client resources
func (c *Client) Close() {
	logger.Info("Closing SerpApi client")
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing serpapi logger: %v", err)
		}
	}
}

// SearchMaps fetches one page of a google_maps search. pageToken continues
// a previous page's sequence; pass an empty string for the first page.
func (c *Client) SearchMaps(ctx context.Context, query, pageToken string) (*MapsSearchPage, error) {
	params := url.Values{}
	params.Set("engine", "google_maps")
	params.Set("q", query)
	params.Set("hl", c.config.Language)
	params.Set("google_domain", c.config.GoogleDomain)
	params.Set("type", "search")
	params.Set("num", "20")
	if pageToken != "" {
		params.Set("next_page_token", pageToken)
	}

	var page MapsSearchPage
	if err := c.doRequest(ctx, params, &page); err != nil {
		return nil, err
	}

	logger.Debug("maps search page fetched",
		"query", query,
		"results", len(page.LocalResults),
		"has_next_page", page.NextPageToken() != "")
	return &page, nil
}

// FetchReviews fetches the first page of reviews for one place, keyed by
// its data_id. Responses are cached for the configured TTL.
func (c *Client) FetchReviews(ctx context.Context, dataID string) (*ReviewsPage, error) {
	cacheKey := fmt.Sprintf("reviews:%s", dataID)
	if cached, found := c.cache.Get(cacheKey); found {
		if page, ok := cached.(*ReviewsPage); ok {
			c.metrics.mu.Lock()
			c.metrics.cacheHits++
			c.metrics.mu.Unlock()
			logger.Debug("reviews cache hit", "data_id", dataID)
			return page, nil
		}
	}

	params := url.Values{}
	params.Set("engine", "google_maps_reviews")
	params.Set("data_id", dataID)
	params.Set("hl", c.config.Language)

	var page ReviewsPage
	if err := c.doRequest(ctx, params, &page); err != nil {
		return nil, err
	}

	c.cache.Set(cacheKey, &page, cache.DefaultExpiration)
	logger.Debug("reviews fetched", "data_id", dataID, "count", len(page.Reviews))
	return &page, nil
}

// doRequest issues one GET against the search endpoint with the fixed
// timeout and decodes the JSON response into out. Network failures,
// timeouts and non-200 responses all surface as network-category errors;
// the caller treats them uniformly.
func (c *Client) doRequest(ctx context.Context, params url.Values, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	params.Set("api_key", c.config.APIKey)
	reqURL := fmt.Sprintf("%s/search.json?%s", c.config.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryNetwork).
			Component("serpapi").
			Build()
	}

	c.metrics.mu.Lock()
	c.metrics.apiCalls++
	c.metrics.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordError()
		return errors.New(err).
			Category(errors.CategoryNetwork).
			Component("serpapi").
			Context("engine", params.Get("engine")).
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		c.recordError()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf("serpapi request failed with status %d: %s", resp.StatusCode, string(body)).
			Category(errors.CategoryNetwork).
			Component("serpapi").
			Context("status", resp.StatusCode).
			Build()
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.recordError()
		return errors.New(err).
			Category(errors.CategoryNetwork).
			Component("serpapi").
			Context("stage", "decode").
			Build()
	}
	return nil
}

func (c *Client) recordError() {
	c.metrics.mu.Lock()
	c.metrics.apiErrors++
	c.metrics.mu.Unlock()
}

// Metrics returns a snapshot of the client's request counters.
func (c *Client) Metrics() (apiCalls, cacheHits, apiErrors int64) {
	c.metrics.mu.Lock()
	defer c.metrics.mu.Unlock()
	return c.metrics.apiCalls, c.metrics.cacheHits, c.metrics.apiErrors
}
