package inat

import (
	"time"

	"github.com/SayHoang/plantidentify/internal/conf"
)

// Config holds configuration for the iNaturalist API client
type Config struct {
	BaseURL             string
	AutocompleteTTL     time.Duration
	LookupTTL           time.Duration
	AutocompleteTimeout time.Duration
	TaxaTimeout         time.Duration
	ObservationsTimeout time.Duration
	RateLimitMS         int
}

// DefaultConfig returns the default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:             "https://api.inaturalist.org/v1",
		AutocompleteTTL:     10 * time.Minute,
		LookupTTL:           1 * time.Hour,
		AutocompleteTimeout: 5 * time.Second,
		TaxaTimeout:         10 * time.Second,
		ObservationsTimeout: 15 * time.Second,
		RateLimitMS:         250,
	}
}

// ConfigFromSettings builds a client configuration from application settings
func ConfigFromSettings(settings *conf.Settings) Config {
	cfg := DefaultConfig()
	d := settings.Directory
	if d.BaseURL != "" {
		cfg.BaseURL = d.BaseURL
	}
	if d.AutocompleteTTL > 0 {
		cfg.AutocompleteTTL = d.AutocompleteTTL
	}
	if d.LookupTTL > 0 {
		cfg.LookupTTL = d.LookupTTL
	}
	if d.AutocompleteTimeout > 0 {
		cfg.AutocompleteTimeout = d.AutocompleteTimeout
	}
	if d.TaxaTimeout > 0 {
		cfg.TaxaTimeout = d.TaxaTimeout
	}
	if d.ObservationsTimeout > 0 {
		cfg.ObservationsTimeout = d.ObservationsTimeout
	}
	if d.RateLimitMS > 0 {
		cfg.RateLimitMS = d.RateLimitMS
	}
	return cfg
}

// SpeciesCandidate is one autocomplete result, pre-formatted for display.
// Candidates are ephemeral: recomputed per query string, never persisted.
type SpeciesCandidate struct {
	ID               int    `json:"id"`
	ScientificName   string `json:"scientific_name"`
	DisplayName      string `json:"display_name"`
	Rank             string `json:"rank"`
	FormattedDisplay string `json:"formatted_display"`
}

// taxaResponse is the wire shape of /taxa and /taxa/autocomplete
type taxaResponse struct {
	TotalResults int           `json:"total_results"`
	Results      []taxonResult `json:"results"`
}

type taxonResult struct {
	ID                  int    `json:"id"`
	Name                string `json:"name"`
	PreferredCommonName string `json:"preferred_common_name"`
	Rank                string `json:"rank"`
}

// observationsResponse is the wire shape of /observations
type observationsResponse struct {
	TotalResults int                 `json:"total_results"`
	Results      []observationResult `json:"results"`
}

type observationResult struct {
	Photos []observationPhoto `json:"photos"`
}

type observationPhoto struct {
	URL string `json:"url"`
}
