package enrich

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const geocodeURLPattern = `=~^https://api\.mapbox\.com/geocoding/v5/mapbox\.places/.*`

func newTestGeocoder(t *testing.T) *Geocoder {
	t.Helper()
	g := NewGeocoder(GeocoderConfig{AccessToken: "pk.test-token", CacheTTL: time.Minute})
	httpmock.ActivateNonDefault(g.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return g
}

func austinResponder() httpmock.Responder {
	return httpmock.NewStringResponder(200, `{
		"features": [
			{"place_name": "1100 Congress Ave, Austin, Texas", "center": [-97.7403, 30.2747], "relevance": 0.98},
			{"place_name": "Congress Ave, Austin, Texas", "center": [-97.745, 30.26], "relevance": 0.7}
		]
	}`)
}

func TestForwardReturnsBestMatch(t *testing.T) {
	g := newTestGeocoder(t)
	httpmock.RegisterResponder("GET", geocodeURLPattern, austinResponder())

	match, err := g.Forward(context.Background(), "1100 Congress Ave")
	require.NoError(t, err)
	assert.Equal(t, "1100 Congress Ave, Austin, Texas", match.PlaceName)
	assert.Equal(t, orb.Point{-97.7403, 30.2747}, match.Center)
	assert.InDelta(t, 0.98, match.Relevance, 1e-9)
}

func TestForwardSendsToken(t *testing.T) {
	g := newTestGeocoder(t)
	var token string
	httpmock.RegisterResponder("GET", geocodeURLPattern,
		func(req *http.Request) (*http.Response, error) {
			token = req.URL.Query().Get("access_token")
			return austinResponder()(req)
		})

	_, err := g.Forward(context.Background(), "1100 Congress Ave")
	require.NoError(t, err)
	assert.Equal(t, "pk.test-token", token)
}

func TestForwardNoMatch(t *testing.T) {
	g := newTestGeocoder(t)
	httpmock.RegisterResponder("GET", geocodeURLPattern,
		httpmock.NewStringResponder(200, `{"features": []}`))

	_, err := g.Forward(context.Background(), "nowhere at all")
	assert.ErrorIs(t, err, ErrNoMatch)

	// The miss is cached too.
	_, err = g.Forward(context.Background(), "nowhere at all")
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestForwardCachesHits(t *testing.T) {
	g := newTestGeocoder(t)
	httpmock.RegisterResponder("GET", geocodeURLPattern, austinResponder())

	first, err := g.Forward(context.Background(), "1100 Congress Ave")
	require.NoError(t, err)
	second, err := g.Forward(context.Background(), "1100 Congress Ave")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestForwardServerError(t *testing.T) {
	g := newTestGeocoder(t)
	httpmock.RegisterResponder("GET", geocodeURLPattern,
		httpmock.NewStringResponder(500, `upstream exploded`))

	_, err := g.Forward(context.Background(), "1100 Congress Ave")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoMatch)
	assert.Contains(t, err.Error(), "500")
}

func TestForwardMalformedBody(t *testing.T) {
	g := newTestGeocoder(t)
	httpmock.RegisterResponder("GET", geocodeURLPattern,
		httpmock.NewStringResponder(200, `{"features": [`))

	_, err := g.Forward(context.Background(), "1100 Congress Ave")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoMatch)
}

func TestForwardEscapesAddress(t *testing.T) {
	g := newTestGeocoder(t)
	var path string
	httpmock.RegisterResponder("GET", geocodeURLPattern,
		func(req *http.Request) (*http.Response, error) {
			path = req.URL.EscapedPath()
			return austinResponder()(req)
		})

	_, err := g.Forward(context.Background(), "500 E 5th St #120")
	require.NoError(t, err)
	assert.NotContains(t, path, "#")
}
