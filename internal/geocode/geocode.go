package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/example/van-notify/internal/models"
)

// Client resolves a street address to coordinates. Implementations are best
// effort: a miss is (zero, false), never an error the caller must handle.
type Client interface {
	Geocode(ctx context.Context, address string) (models.Coord, bool)
}

// HTTPClient queries a Nominatim-style search endpoint.
type HTTPClient struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPClient(endpoint string) *HTTPClient {
	return &HTTPClient{Endpoint: endpoint, Client: &http.Client{Timeout: 2 * time.Second}}
}

func (c *HTTPClient) Geocode(ctx context.Context, address string) (models.Coord, bool) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("limit", "1")
	q.Set("q", address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+"/search?"+q.Encode(), nil)
	if err != nil {
		return models.Coord{}, false
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return models.Coord{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.Coord{}, false
	}
	var out []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || len(out) == 0 {
		return models.Coord{}, false
	}
	lat, errLat := strconv.ParseFloat(out[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(out[0].Lon, 64)
	if errLat != nil || errLon != nil {
		return models.Coord{}, false
	}
	return models.Coord{Lat: lat, Lon: lon}, true
}
