package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/paulmach/orb"
)

// ErrNoMatch is returned when the provider finds no candidate for an
// address. Callers treat it differently from transport errors: a
// submission with an unmatchable address is rejected, a provider outage
// is retried.
var ErrNoMatch = errors.New("no geocoding match")

// Match is one ranked geocoding candidate.
type Match struct {
	PlaceName string
	Center    orb.Point
	Relevance float64
}

// GeocoderConfig configures the forward-geocoding client.
type GeocoderConfig struct {
	// BaseURL of the Mapbox-style places endpoint.
	BaseURL string
	// AccessToken is sent as the access_token query parameter.
	AccessToken string
	Timeout     time.Duration
	CacheTTL    time.Duration
}

const (
	defaultGeocodeBaseURL  = "https://api.mapbox.com/geocoding/v5/mapbox.places"
	defaultGeocodeTimeout  = 10 * time.Second
	defaultGeocodeCacheTTL = 15 * time.Minute
)

// Geocoder resolves street addresses to coordinates through a
// Mapbox-style forward geocoding endpoint. Responses are cached per
// address so the sampler and the submission flow do not re-query.
type Geocoder struct {
	cfg        GeocoderConfig
	httpClient *http.Client
	cache      *cache.Cache
	log        *slog.Logger
}

// NewGeocoder creates a geocoding client. Zero config fields get
// defaults.
func NewGeocoder(cfg GeocoderConfig) *Geocoder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeocodeBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultGeocodeTimeout
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaultGeocodeCacheTTL
	}
	return &Geocoder{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
		log:        slog.Default().With("component", "geocoder"),
	}
}

// geocodeResponse is the provider's wire shape: ranked features, each
// with a [lng, lat] center.
type geocodeResponse struct {
	Features []struct {
		PlaceName string     `json:"place_name"`
		Center    [2]float64 `json:"center"`
		Relevance float64    `json:"relevance"`
	} `json:"features"`
}

// Forward geocodes an address and returns the best-ranked match. An
// empty candidate list maps to ErrNoMatch. Not-found results are cached
// alongside hits.
func (g *Geocoder) Forward(ctx context.Context, address string) (Match, error) {
	if cached, found := g.cache.Get(address); found {
		if m, ok := cached.(Match); ok {
			return m, nil
		}
		return Match{}, ErrNoMatch
	}

	endpoint := fmt.Sprintf("%s/%s.json", g.cfg.BaseURL, url.PathEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Match{}, fmt.Errorf("building geocode request: %w", err)
	}
	q := req.URL.Query()
	q.Set("access_token", g.cfg.AccessToken)
	q.Set("limit", "5")
	req.URL.RawQuery = q.Encode()

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Match{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Match{}, fmt.Errorf("geocode request: unexpected status %d", resp.StatusCode)
	}

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Match{}, fmt.Errorf("decoding geocode response: %w", err)
	}

	if len(body.Features) == 0 {
		g.cache.Set(address, nil, cache.DefaultExpiration)
		return Match{}, ErrNoMatch
	}

	best := body.Features[0]
	match := Match{
		PlaceName: best.PlaceName,
		Center:    orb.Point{best.Center[0], best.Center[1]},
		Relevance: best.Relevance,
	}
	g.cache.Set(address, match, cache.DefaultExpiration)
	g.log.Debug("geocoded address", "address", address, "place", best.PlaceName)
	return match, nil
}
