package places

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindPlaceIDExactMatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/places:searchText", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Goog-Api-Key"))
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "places.id")

		resp := map[string]any{
			"places": []map[string]any{
				{"id": "pl-1", "displayName": map[string]string{"text": "Duke's Diner"}},
				{"id": "pl-2", "displayName": map[string]string{"text": "Duke's Car Wash"}},
			},
		}
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("key", WithBaseURL(srv.URL))
	match, err := c.FindPlaceID(context.Background(), "Duke's Diner", "Austin", "TX")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "pl-1", match.PlaceID)
	assert.InDelta(t, 1.0, match.Confidence, 0.001)
}

func TestFindPlaceIDLowConfidenceBest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"places": []map[string]any{
				{"id": "pl-9", "displayName": map[string]string{"text": "Totally Different Name"}},
			},
		}
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("key", WithBaseURL(srv.URL))
	match, err := c.FindPlaceID(context.Background(), "Duke's Diner", "Austin", "TX")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "pl-9", match.PlaceID)
	assert.Less(t, match.Confidence, 0.5)
}

func TestFindPlaceIDNoCandidates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"places":[]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("key", WithBaseURL(srv.URL))
	match, err := c.FindPlaceID(context.Background(), "Ghost Kitchen", "Nowhere", "KS")
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestGetPlaceDetails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/places/pl-1", r.URL.Path)
		resp := map[string]any{
			"id":                  "pl-1",
			"displayName":         map[string]string{"text": "Duke's Diner"},
			"formattedAddress":    "123 Congress Ave, Austin, TX",
			"nationalPhoneNumber": "(512) 555-0100",
			"websiteUri":          "https://dukesdiner.com",
			"rating":              4.6,
			"userRatingCount":     841,
			"businessStatus":      BusinessOperational,
			"location":            map[string]float64{"latitude": 30.26, "longitude": -97.74},
			"photos":              []map[string]string{{"name": "places/pl-1/photos/abc"}},
		}
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("key", WithBaseURL(srv.URL))
	place, err := c.GetPlaceDetails(context.Background(), "pl-1")
	require.NoError(t, err)
	require.NotNil(t, place)
	assert.Equal(t, "Duke's Diner", place.Name)
	assert.Equal(t, BusinessOperational, place.BusinessStatus)
	assert.Equal(t, 841, place.ReviewCount)
	assert.Equal(t, []string{"places/pl-1/photos/abc"}, place.PhotoReferences)
}

func TestGetPlaceDetailsNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("key", WithBaseURL(srv.URL))
	place, err := c.GetPlaceDetails(context.Background(), "gone")
	require.NoError(t, err)
	assert.Nil(t, place)
}

func TestCostAccumulation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"places":[]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("key", WithBaseURL(srv.URL))
	_, err := c.FindPlaceID(context.Background(), "A", "B", "C")
	require.NoError(t, err)
	_, err = c.FindPlaceID(context.Background(), "A", "B", "C")
	require.NoError(t, err)

	assert.InDelta(t, 2*0.032, c.TotalCost(), 0.0001)

	c.ResetCost()
	assert.Zero(t, c.TotalCost())
}
