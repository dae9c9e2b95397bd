package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"civicledger.org/internal/obs"
)

const defaultBaseURL = "https://nominatim.openstreetmap.org"

// Geocoder reverse-geocodes coordinates into a locality name. Implementations
// must degrade to ("", nil) on external failure rather than propagate it.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) string
}

// Nominatim queries the OpenStreetMap reverse endpoint. A zero value is not
// usable; construct with NewNominatim.
type Nominatim struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewNominatim builds a geocoder. Empty baseURL selects the public OSM
// endpoint; timeout <= 0 defaults to five seconds.
func NewNominatim(baseURL string, timeout time.Duration) *Nominatim {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Nominatim{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// nominatimResponse is the subset of the jsonv2 payload we read.
type nominatimResponse struct {
	Address struct {
		Suburb        string `json:"suburb"`
		Neighbourhood string `json:"neighbourhood"`
		CityDistrict  string `json:"city_district"`
		City          string `json:"city"`
	} `json:"address"`
}

// ReverseGeocode resolves a locality through the priority ladder
// suburb > neighbourhood > city district > city. One attempt, no retries;
// any failure (network, status, malformed body, missing fields) returns "".
func (n *Nominatim) ReverseGeocode(ctx context.Context, lat, lng float64) string {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", fmt.Sprintf("%g", lat))
	q.Set("lon", fmt.Sprintf("%g", lng))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		obs.GeocodeFailures.Inc()
		return ""
	}
	req.Header.Set("User-Agent", "civicledger-api")

	resp, err := n.client.Do(req)
	if err != nil {
		obs.GeocodeFailures.Inc()
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		obs.GeocodeFailures.Inc()
		return ""
	}

	var payload nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		obs.GeocodeFailures.Inc()
		return ""
	}

	addr := payload.Address
	for _, candidate := range []string{addr.Suburb, addr.Neighbourhood, addr.CityDistrict, addr.City} {
		if candidate != "" {
			return candidate
		}
	}
	obs.GeocodeFailures.Inc()
	return ""
}
