// Package places wraps the Google Places API (new) with fuzzy name
// matching and advisory cost accumulation.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

// Business status values returned by the API.
const (
	BusinessOperational       = "OPERATIONAL"
	BusinessClosedTemporarily = "CLOSED_TEMPORARILY"
	BusinessClosedPermanently = "CLOSED_PERMANENTLY"
)

// Per-operation pricing (USD), advisory bookkeeping only.
var opPricing = map[string]float64{
	"text_search": 0.032,
	"details":     0.017,
	"photo":       0.007,
}

// Place holds the fields the directory cares about.
type Place struct {
	ID              string
	Name            string
	Address         string
	Phone           string
	Website         string
	Rating          float64
	ReviewCount     int
	BusinessStatus  string
	Latitude        float64
	Longitude       float64
	PhotoReferences []string
}

// Match is a place candidate with a name-similarity confidence.
type Match struct {
	PlaceID    string
	Name       string
	Confidence float64
}

// Client performs Places API operations.
type Client interface {
	// FindPlaceID text-searches for a restaurant and scores candidates by
	// name similarity. Callers should gate on a minimum confidence before
	// trusting the match.
	FindPlaceID(ctx context.Context, name, city, state string) (*Match, error)

	// GetPlaceDetails fetches authoritative fields for a place. A 404 is
	// "not found" (nil, nil), not an error.
	GetPlaceDetails(ctx context.Context, placeID string) (*Place, error)

	// FetchPhoto downloads one photo by its reference name.
	FetchPhoto(ctx context.Context, photoRef string, maxWidth int) ([]byte, error)

	// TotalCost returns the running advisory cost in USD since the last
	// reset.
	TotalCost() float64

	// ResetCost zeroes the running cost.
	ResetCost()
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client

	mu   sync.Mutex
	cost float64
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) addCost(op string) {
	c.mu.Lock()
	c.cost += opPricing[op]
	c.mu.Unlock()
}

func (c *httpClient) TotalCost() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cost
}

func (c *httpClient) ResetCost() {
	c.mu.Lock()
	c.cost = 0
	c.mu.Unlock()
}

type textSearchRequest struct {
	TextQuery  string `json:"textQuery"`
	MaxResults int    `json:"maxResultCount"`
}

type apiPlace struct {
	ID          string `json:"id"`
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	FormattedAddress      string  `json:"formattedAddress"`
	NationalPhoneNumber   string  `json:"nationalPhoneNumber"`
	WebsiteURI            string  `json:"websiteUri"`
	Rating                float64 `json:"rating"`
	UserRatingCount       int     `json:"userRatingCount"`
	BusinessStatus        string  `json:"businessStatus"`
	Location              struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	Photos []struct {
		Name string `json:"name"`
	} `json:"photos"`
}

type textSearchResponse struct {
	Places []apiPlace `json:"places"`
}

func (c *httpClient) FindPlaceID(ctx context.Context, name, city, state string) (*Match, error) {
	query := fmt.Sprintf("%s restaurant %s %s", name, city, state)
	body, err := json.Marshal(textSearchRequest{TextQuery: query, MaxResults: 3})
	if err != nil {
		return nil, eris.Wrap(err, "places: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", strings.NewReader(string(body)))
	if err != nil {
		return nil, eris.Wrap(err, "places: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", "places.id,places.displayName,places.businessStatus")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "places: send request")
	}
	defer resp.Body.Close() //nolint:errcheck
	c.addCost("text_search")

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "places: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("places: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result textSearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "places: unmarshal response")
	}
	if len(result.Places) == 0 {
		return nil, nil
	}

	var best *Match
	for _, p := range result.Places {
		score := nameSimilarity(name, p.DisplayName.Text)
		if score >= 0.8 {
			return &Match{PlaceID: p.ID, Name: p.DisplayName.Text, Confidence: score}, nil
		}
		if best == nil || score > best.Confidence {
			best = &Match{PlaceID: p.ID, Name: p.DisplayName.Text, Confidence: score}
		}
	}
	return best, nil
}

const detailsFieldMask = "id,displayName,formattedAddress,nationalPhoneNumber,websiteUri," +
	"rating,userRatingCount,businessStatus,location,photos.name"

func (c *httpClient) GetPlaceDetails(ctx context.Context, placeID string) (*Place, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/places/"+placeID, nil)
	if err != nil {
		return nil, eris.Wrap(err, "places: create request")
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", detailsFieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "places: send request")
	}
	defer resp.Body.Close() //nolint:errcheck
	c.addCost("details")

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "places: read response")
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("places: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var p apiPlace
	if err := json.Unmarshal(respBody, &p); err != nil {
		return nil, eris.Wrap(err, "places: unmarshal response")
	}

	place := &Place{
		ID:             p.ID,
		Name:           p.DisplayName.Text,
		Address:        p.FormattedAddress,
		Phone:          p.NationalPhoneNumber,
		Website:        p.WebsiteURI,
		Rating:         p.Rating,
		ReviewCount:    p.UserRatingCount,
		BusinessStatus: p.BusinessStatus,
		Latitude:       p.Location.Latitude,
		Longitude:      p.Location.Longitude,
	}
	for _, ph := range p.Photos {
		place.PhotoReferences = append(place.PhotoReferences, ph.Name)
	}
	return place, nil
}

func (c *httpClient) FetchPhoto(ctx context.Context, photoRef string, maxWidth int) ([]byte, error) {
	if maxWidth <= 0 {
		maxWidth = 800
	}
	url := fmt.Sprintf("%s/%s/media?maxWidthPx=%d&key=%s", c.baseURL, photoRef, maxWidth, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "places: create photo request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "places: fetch photo")
	}
	defer resp.Body.Close() //nolint:errcheck
	c.addCost("photo")

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("places: photo status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "places: read photo")
	}
	return data, nil
}
