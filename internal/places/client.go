package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/wayfarer/backend/internal/scrape"
)

// ErrDisabled indicates the places provider is not configured.
var ErrDisabled = errors.New("places provider not configured")

// LatLng is a coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Query is a text search, optionally biased towards a location.
type Query struct {
	Text         string  `json:"query"`
	Location     *LatLng `json:"location,omitempty"`
	RadiusMeters int     `json:"radius,omitempty"`
}

func (q Query) key() string {
	k := strings.ToLower(strings.TrimSpace(q.Text))
	if q.Location != nil {
		k += fmt.Sprintf("|%.5f,%.5f|%d", q.Location.Lat, q.Location.Lng, q.RadiusMeters)
	}
	return k
}

// Client talks to a Google Places style web service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient constructs a Client. A nil httpClient falls back to http.DefaultClient.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://maps.googleapis.com"
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: httpClient}
}

type apiPlace struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Rating           float64  `json:"rating"`
	RatingsTotal     int64    `json:"user_ratings_total"`
	Types            []string `json:"types"`
	Website          string   `json:"website"`
	Phone            string   `json:"international_phone_number"`
	URL              string   `json:"url"`
	Geometry         struct {
		Location LatLng `json:"location"`
	} `json:"geometry"`
}

func (p apiPlace) toPlace() scrape.Place {
	return scrape.Place{
		PlaceID:          p.PlaceID,
		Name:             p.Name,
		FormattedAddress: p.FormattedAddress,
		Latitude:         p.Geometry.Location.Lat,
		Longitude:        p.Geometry.Location.Lng,
		Rating:           p.Rating,
		RatingsTotal:     p.RatingsTotal,
		Types:            p.Types,
		Website:          p.Website,
		Phone:            p.Phone,
		MapsURL:          p.URL,
	}
}

// Search runs a text search.
func (c *Client) Search(ctx context.Context, q Query) ([]scrape.Place, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, errors.New("places search: query is required")
	}
	params := url.Values{}
	params.Set("query", q.Text)
	if q.Location != nil {
		params.Set("location", strconv.FormatFloat(q.Location.Lat, 'f', -1, 64)+","+strconv.FormatFloat(q.Location.Lng, 'f', -1, 64))
		radius := q.RadiusMeters
		if radius <= 0 {
			radius = 5000
		}
		params.Set("radius", strconv.Itoa(radius))
	}

	var resp struct {
		Status       string     `json:"status"`
		ErrorMessage string     `json:"error_message"`
		Results      []apiPlace `json:"results"`
	}
	if err := c.get(ctx, "/maps/api/place/textsearch/json", params, &resp); err != nil {
		return nil, err
	}
	if err := statusError(resp.Status, resp.ErrorMessage); err != nil {
		return nil, err
	}

	out := make([]scrape.Place, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, r.toPlace())
	}
	return out, nil
}

// Details looks up a single place.
func (c *Client) Details(ctx context.Context, placeID string) (scrape.Place, error) {
	if strings.TrimSpace(placeID) == "" {
		return scrape.Place{}, errors.New("places details: place id is required")
	}
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", "place_id,name,formatted_address,geometry,rating,user_ratings_total,types,website,international_phone_number,url")

	var resp struct {
		Status       string   `json:"status"`
		ErrorMessage string   `json:"error_message"`
		Result       apiPlace `json:"result"`
	}
	if err := c.get(ctx, "/maps/api/place/details/json", params, &resp); err != nil {
		return scrape.Place{}, err
	}
	if err := statusError(resp.Status, resp.ErrorMessage); err != nil {
		return scrape.Place{}, err
	}
	return resp.Result.toPlace(), nil
}

// ErrNotFound indicates the provider has no matching place.
var ErrNotFound = errors.New("place not found")

func statusError(status, message string) error {
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	case "NOT_FOUND":
		return ErrNotFound
	default:
		if message == "" {
			message = "request failed"
		}
		return fmt.Errorf("places provider: %s: %s", status, message)
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if c == nil || strings.TrimSpace(c.apiKey) == "" {
		return ErrDisabled
	}
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build places request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("places request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("places request: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode places response: %w", err)
	}
	return nil
}
