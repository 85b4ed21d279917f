package seed

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flavortown/enrich-cli/internal/model"
)

func TestRestaurantsFromCSV(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"Name,City,State,Address,Status,Cuisines,Price Tier,Website",
		"Duke's Diner,Tulsa,OK,101 Main St,open,bbq|southern,$$,https://dukes.example.com",
		"Pho Haven,Boise,ID,,,vietnamese,,",
	}, "\n")

	got, err := RestaurantsFromCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "duke-s-diner-tulsa", got[0].Slug)
	assert.Equal(t, "Duke's Diner", got[0].Name)
	assert.Equal(t, model.StatusOpen, got[0].Status)
	assert.Equal(t, []string{"bbq", "southern"}, got[0].Cuisines)
	assert.Equal(t, model.PriceModerate, got[0].PriceTier)
	assert.Equal(t, "https://dukes.example.com", got[0].Website)

	assert.Equal(t, model.StatusUnknown, got[1].Status, "missing status defaults to unknown")
	assert.Equal(t, []string{"vietnamese"}, got[1].Cuisines)
}

func TestRestaurantsFromCSVSkipsBadRows(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"name,city,status",
		",Tulsa,open",
		"Duke's Diner,,open",
		"Taco Casa,Austin,demolished",
		"Pho Haven,Boise,open",
	}, "\n")

	got, err := RestaurantsFromCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 1, "rows missing name or city, or with bad status, are skipped")
	assert.Equal(t, "Pho Haven", got[0].Name)
}

func TestRestaurantsFromCSVExplicitSlug(t *testing.T) {
	t.Parallel()

	input := "name,city,slug\nDuke's Diner,Tulsa,dukes-legacy-slug\n"
	got, err := RestaurantsFromCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "dukes-legacy-slug", got[0].Slug)
}

func TestRestaurantsFromCSVEmpty(t *testing.T) {
	t.Parallel()

	_, err := RestaurantsFromCSV(context.Background(), strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header row")
}

func TestEpisodesFromCSV(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"title,season,episode,air_date,description",
		"Pilot,1,1,2010-04-12,The one that started it all",
		"Smoke and Spice,1,2,4/19/2010,",
	}, "\n")

	got, err := EpisodesFromCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "s01e01-pilot", got[0].Slug)
	require.NotNil(t, got[0].AirDate)
	assert.Equal(t, time.Date(2010, 4, 12, 0, 0, 0, 0, time.UTC), *got[0].AirDate)

	assert.Equal(t, "s01e02-smoke-and-spice", got[1].Slug)
	require.NotNil(t, got[1].AirDate, "slash date format is accepted")
}

func TestEpisodesFromCSVSkipsBadRows(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"title,season,episode,air_date",
		",1,1,",
		"No Season,x,1,",
		"Bad Date,1,3,someday",
		"Keeper,2,5,",
	}, "\n")

	got, err := EpisodesFromCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Keeper", got[0].Title)
	assert.Equal(t, "s02e05-keeper", got[0].Slug)
	assert.Nil(t, got[0].AirDate)
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"bbq", "southern"}, splitList("bbq|southern"))
	assert.Equal(t, []string{"bbq", "southern"}, splitList("bbq; southern"))
	assert.Equal(t, []string{"bbq"}, splitList(" bbq ;"))
}
