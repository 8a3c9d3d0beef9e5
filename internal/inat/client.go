// Package inat wraps the iNaturalist taxonomy REST API: free-text species
// autocomplete, taxon id lookup and reference image retrieval. Every
// operation is cached with a TTL and degrades to an empty result on network
// failure, a directory outage must never interrupt the feedback flow.
package inat

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
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/SayHoang/plantidentify/internal/errors"
	"github.com/SayHoang/plantidentify/internal/logging"
	obsmetrics "github.com/SayHoang/plantidentify/internal/observability/metrics"
)

// Package-level logger specific to the directory service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "inat.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "inat", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize inat file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "inat")
		closeLogger = func() error { return nil }
	}
}

// minQueryLength is the shortest autocomplete query that triggers a remote call.
const minQueryLength = 3

// Client provides cached, best-effort access to the iNaturalist API
type Client struct {
	config     Config
	httpClient *http.Client
	shortCache *cache.Cache // autocomplete results
	longCache  *cache.Cache // taxon ids and observation photos
	limiter    *rate.Limiter
	prom       *obsmetrics.DirectoryMetrics

	// Metrics
	metrics struct {
		apiCalls    int64
		cacheHits   int64
		cacheMisses int64
		apiErrors   int64
		mu          sync.RWMutex
	}
}

// NewClient creates a new iNaturalist API client
func NewClient(config Config) *Client {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.AutocompleteTTL == 0 {
		config.AutocompleteTTL = defaults.AutocompleteTTL
	}
	if config.LookupTTL == 0 {
		config.LookupTTL = defaults.LookupTTL
	}
	if config.AutocompleteTimeout == 0 {
		config.AutocompleteTimeout = defaults.AutocompleteTimeout
	}
	if config.TaxaTimeout == 0 {
		config.TaxaTimeout = defaults.TaxaTimeout
	}
	if config.ObservationsTimeout == 0 {
		config.ObservationsTimeout = defaults.ObservationsTimeout
	}
	if config.RateLimitMS == 0 {
		config.RateLimitMS = defaults.RateLimitMS
	}

	client := &Client{
		config:     config,
		httpClient: &http.Client{},
		shortCache: cache.New(config.AutocompleteTTL, config.AutocompleteTTL*2),
		longCache:  cache.New(config.LookupTTL, config.LookupTTL*2),
		limiter:    rate.NewLimiter(rate.Every(time.Duration(config.RateLimitMS)*time.Millisecond), 1),
	}

	logger.Info("iNaturalist client initialized",
		"base_url", config.BaseURL,
		"autocomplete_ttl", config.AutocompleteTTL,
		"lookup_ttl", config.LookupTTL,
		"rate_limit_ms", config.RateLimitMS)

	return client
}

// SetMetrics attaches Prometheus collectors to the client. Safe to leave
// unset, counters then stay process-local.
func (c *Client) SetMetrics(m *obsmetrics.DirectoryMetrics) {
	c.prom = m
}

// Close cleans up client resources
func (c *Client) Close() {
	logger.Info("Closing iNaturalist client")
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing inat logger: %v", err)
		}
	}
}

// Autocomplete searches taxa matching the free-text query, restricted to
// species, genus and family ranks. Queries shorter than three characters
// return nil without a remote call. Network failures degrade to nil.
func (c *Client) Autocomplete(ctx context.Context, query string) []SpeciesCandidate {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minQueryLength {
		return nil
	}

	cacheKey := "autocomplete:" + strings.ToLower(query)
	if cached, found := c.shortCache.Get(cacheKey); found {
		if candidates, ok := cached.([]SpeciesCandidate); ok {
			c.countCacheHit()
			logger.Debug("autocomplete cache hit", "query", query, "candidates", len(candidates))
			return candidates
		}
	}
	c.countCacheMiss()

	reqCtx, cancel := context.WithTimeout(ctx, c.config.AutocompleteTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("q", query)
	params.Set("is_active", "true")
	params.Set("rank", "species,genus,family")
	requestURL := fmt.Sprintf("%s/taxa/autocomplete?%s", c.config.BaseURL, params.Encode())

	var response taxaResponse
	if err := c.doRequest(reqCtx, "taxa_autocomplete", requestURL, &response); err != nil {
		logger.Warn("autocomplete request failed, degrading to empty result",
			"query", query,
			"error", err.Error())
		return nil
	}

	candidates := make([]SpeciesCandidate, 0, len(response.Results))
	for _, result := range response.Results {
		displayName := result.PreferredCommonName
		if displayName == "" {
			displayName = result.Name
		}
		candidates = append(candidates, SpeciesCandidate{
			ID:               result.ID,
			ScientificName:   result.Name,
			DisplayName:      displayName,
			Rank:             result.Rank,
			FormattedDisplay: fmt.Sprintf("%s (%s) - Rank: %s", displayName, result.Name, result.Rank),
		})
	}

	c.shortCache.Set(cacheKey, candidates, cache.DefaultExpiration)

	logger.Debug("autocomplete results cached", "query", query, "candidates", len(candidates))
	return candidates
}

// TaxonID resolves a scientific name to its taxon id via a species-rank
// search. Returns 0 when the name is unknown or the service is unreachable;
// the failure is a soft warning, never an interruption.
func (c *Client) TaxonID(ctx context.Context, scientificName string) int {
	if scientificName == "" {
		return 0
	}

	cacheKey := "taxon:" + strings.ToLower(scientificName)
	if cached, found := c.longCache.Get(cacheKey); found {
		if id, ok := cached.(int); ok {
			c.countCacheHit()
			return id
		}
	}
	c.countCacheMiss()

	reqCtx, cancel := context.WithTimeout(ctx, c.config.TaxaTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("q", scientificName)
	params.Set("is_active", "true")
	params.Set("rank", "species")
	requestURL := fmt.Sprintf("%s/taxa?%s", c.config.BaseURL, params.Encode())

	var response taxaResponse
	if err := c.doRequest(reqCtx, "taxa", requestURL, &response); err != nil {
		logger.Warn("taxon id lookup failed",
			"scientific_name", scientificName,
			"error", err.Error())
		return 0
	}

	if response.TotalResults == 0 || len(response.Results) == 0 {
		logger.Debug("no taxon id found", "scientific_name", scientificName)
		return 0
	}

	id := response.Results[0].ID
	c.longCache.Set(cacheKey, id, cache.DefaultExpiration)
	return id
}

// ReferenceImages returns up to count medium-resolution photo URLs for a
// taxon, sourced from research-grade observations sorted by votes. Failures
// degrade to an empty slice.
func (c *Client) ReferenceImages(ctx context.Context, taxonID, count int) []string {
	if taxonID == 0 || count <= 0 {
		return nil
	}

	cacheKey := fmt.Sprintf("images:%d:%d", taxonID, count)
	if cached, found := c.longCache.Get(cacheKey); found {
		if urls, ok := cached.([]string); ok {
			c.countCacheHit()
			return urls
		}
	}
	c.countCacheMiss()

	reqCtx, cancel := context.WithTimeout(ctx, c.config.ObservationsTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("taxon_id", fmt.Sprintf("%d", taxonID))
	params.Set("photos", "true")
	params.Set("quality_grade", "research")
	params.Set("per_page", fmt.Sprintf("%d", count))
	params.Set("order", "desc")
	params.Set("order_by", "votes")
	requestURL := fmt.Sprintf("%s/observations?%s", c.config.BaseURL, params.Encode())

	var response observationsResponse
	if err := c.doRequest(reqCtx, "observations", requestURL, &response); err != nil {
		logger.Warn("reference image lookup failed, degrading to empty result",
			"taxon_id", taxonID,
			"error", err.Error())
		return nil
	}

	imageURLs := make([]string, 0, count)
	for _, obs := range response.Results {
		if len(obs.Photos) == 0 {
			continue
		}
		photoURL := obs.Photos[0].URL
		if photoURL == "" {
			continue
		}
		// The API hands out square thumbnails, the medium variant lives at
		// the same path.
		imageURLs = append(imageURLs, strings.ReplaceAll(photoURL, "square", "medium"))
		if len(imageURLs) >= count {
			break
		}
	}

	c.longCache.Set(cacheKey, imageURLs, cache.DefaultExpiration)

	logger.Debug("reference images cached", "taxon_id", taxonID, "count", len(imageURLs))
	return imageURLs
}

// doRequest performs a rate-limited GET and decodes the JSON response. There
// are no retries: per-call timeouts are bounded and callers degrade instead.
func (c *Client) doRequest(ctx context.Context, endpoint, requestURL string, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Newf("rate limiter wait aborted: %w", err).
			Category(errors.CategoryNetwork).
			Component("inat").
			Build()
	}

	c.countAPICall(endpoint)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, http.NoBody)
	if err != nil {
		c.countAPIError(endpoint)
		return errors.Newf("failed to create HTTP request: %w", err).
			Category(errors.CategoryNetwork).
			Component("inat").
			Context("url", requestURL).
			Build()
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.countAPIError(endpoint)
		return errors.Newf("HTTP request failed: %w", err).
			Category(errors.CategoryNetwork).
			Component("inat").
			Context("url", requestURL).
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		c.countAPIError(endpoint)
		return errors.Newf("failed to read response body: %w", err).
			Category(errors.CategoryNetwork).
			Component("inat").
			Context("url", requestURL).
			Context("status_code", resp.StatusCode).
			Build()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.countAPIError(endpoint)
		preview := string(bodyBytes)
		if len(preview) > 500 {
			preview = preview[:500] + "..."
		}
		logger.Warn("iNaturalist API error response",
			"status_code", resp.StatusCode,
			"url", requestURL,
			"response_preview", preview)
		return errors.Newf("iNaturalist API error (status %d)", resp.StatusCode).
			Category(errors.CategoryNetwork).
			Component("inat").
			Context("status_code", resp.StatusCode).
			Context("url", requestURL).
			Build()
	}

	if result != nil {
		if err := json.Unmarshal(bodyBytes, result); err != nil {
			c.countAPIError(endpoint)
			return errors.Newf("failed to parse response: %w", err).
				Category(errors.CategoryNetwork).
				Component("inat").
				Context("url", requestURL).
				Context("response_size", len(bodyBytes)).
				Build()
		}
	}

	if c.prom != nil {
		c.prom.ObserveRequestDuration(endpoint, time.Since(start).Seconds())
	}

	logger.Debug("iNaturalist API request successful",
		"url", requestURL,
		"duration_ms", time.Since(start).Milliseconds(),
		"response_size", len(bodyBytes))

	return nil
}

func (c *Client) countAPICall(endpoint string) {
	c.metrics.mu.Lock()
	c.metrics.apiCalls++
	c.metrics.mu.Unlock()
	if c.prom != nil {
		c.prom.IncrementAPICalls(endpoint)
	}
}

func (c *Client) countAPIError(endpoint string) {
	c.metrics.mu.Lock()
	c.metrics.apiErrors++
	c.metrics.mu.Unlock()
	if c.prom != nil {
		c.prom.IncrementAPIErrors(endpoint)
	}
}

func (c *Client) countCacheHit() {
	c.metrics.mu.Lock()
	c.metrics.cacheHits++
	c.metrics.mu.Unlock()
	if c.prom != nil {
		c.prom.IncrementCacheHits()
	}
}

func (c *Client) countCacheMiss() {
	c.metrics.mu.Lock()
	c.metrics.cacheMisses++
	c.metrics.mu.Unlock()
	if c.prom != nil {
		c.prom.IncrementCacheMisses()
	}
}

// Metrics represents directory client performance counters
type Metrics struct {
	APICalls    int64 `json:"api_calls"`
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	APIErrors   int64 `json:"api_errors"`
}

// GetMetrics returns current client metrics
func (c *Client) GetMetrics() Metrics {
	c.metrics.mu.RLock()
	defer c.metrics.mu.RUnlock()
	return Metrics{
		APICalls:    c.metrics.apiCalls,
		CacheHits:   c.metrics.cacheHits,
		CacheMisses: c.metrics.cacheMisses,
		APIErrors:   c.metrics.apiErrors,
	}
}
