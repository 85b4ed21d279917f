// Package seed parses restaurant and episode seed files into directory
// records. Rows with missing required fields are skipped with a warning
// rather than failing the whole import.
package seed

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flavortown/enrich-cli/internal/fetcher"
	"github.com/flavortown/enrich-cli/internal/model"
)

// airDateLayouts are accepted air_date formats, tried in order.
var airDateLayouts = []string{"2006-01-02", "1/2/2006"}

// headerIndex maps normalized column names to their position.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		h = strings.ReplaceAll(h, " ", "_")
		idx[h] = i
	}
	return idx
}

func field(idx map[string]int, record []string, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func restaurantFromRecord(idx map[string]int, record []string) (model.Restaurant, error) {
	name := field(idx, record, "name")
	city := field(idx, record, "city")
	if name == "" || city == "" {
		return model.Restaurant{}, eris.New("name and city are required")
	}

	r := model.Restaurant{
		Name:      name,
		City:      city,
		State:     field(idx, record, "state"),
		Address:   field(idx, record, "address"),
		Slug:      field(idx, record, "slug"),
		Cuisines:  splitList(field(idx, record, "cuisines")),
		PriceTier: model.PriceTier(field(idx, record, "price_tier")),
		Phone:     field(idx, record, "phone"),
		Website:   field(idx, record, "website"),
	}
	if r.Slug == "" {
		r.Slug = model.Slugify(r.Name, r.City)
	}

	switch status := field(idx, record, "status"); status {
	case "":
		r.Status = model.StatusUnknown
	case "open", "closed", "unknown":
		r.Status = model.RestaurantStatus(status)
	default:
		return model.Restaurant{}, eris.Errorf("invalid status %q", status)
	}
	return r, nil
}

func episodeFromRecord(idx map[string]int, record []string) (model.Episode, error) {
	title := field(idx, record, "title")
	if title == "" {
		return model.Episode{}, eris.New("title is required")
	}
	season, err := strconv.Atoi(field(idx, record, "season"))
	if err != nil || season < 1 {
		return model.Episode{}, eris.New("season must be a positive integer")
	}
	num, err := strconv.Atoi(field(idx, record, "episode"))
	if err != nil || num < 1 {
		return model.Episode{}, eris.New("episode must be a positive integer")
	}

	e := model.Episode{
		Title:         title,
		Season:        season,
		EpisodeNumber: num,
		Description:   field(idx, record, "description"),
		Slug:          field(idx, record, "slug"),
	}
	if e.Slug == "" {
		e.Slug = model.Slugify(fmt.Sprintf("s%02de%02d", season, num), title)
	}

	if raw := field(idx, record, "air_date"); raw != "" {
		var parsed bool
		for _, layout := range airDateLayouts {
			if d, err := time.Parse(layout, raw); err == nil {
				e.AirDate = &d
				parsed = true
				break
			}
		}
		if !parsed {
			return model.Episode{}, eris.Errorf("unparseable air_date %q", raw)
		}
	}
	return e, nil
}

// parse runs the per-record mapper over every data row, skipping rows the
// mapper rejects.
func parse[T any](rows [][]string, entity string, from func(map[string]int, []string) (T, error)) ([]T, error) {
	if len(rows) == 0 {
		return nil, eris.Errorf("seed: %s file has no header row", entity)
	}
	idx := headerIndex(rows[0])

	out := make([]T, 0, len(rows)-1)
	skipped := 0
	for i, record := range rows[1:] {
		if len(record) == 0 {
			continue
		}
		rec, err := from(idx, record)
		if err != nil {
			skipped++
			zap.L().Warn("skipping seed row",
				zap.String("entity", entity),
				zap.Int("row", i+2),
				zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	if skipped > 0 {
		zap.L().Info("seed parse finished with skips",
			zap.String("entity", entity),
			zap.Int("parsed", len(out)),
			zap.Int("skipped", skipped))
	}
	return out, nil
}

func collectCSV(ctx context.Context, r io.Reader) ([][]string, error) {
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{TrimSpace: true})
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return rows, nil
}

// RestaurantsFromCSV parses a restaurant seed CSV. The first row must be a
// header naming at least "name" and "city".
func RestaurantsFromCSV(ctx context.Context, r io.Reader) ([]model.Restaurant, error) {
	rows, err := collectCSV(ctx, r)
	if err != nil {
		return nil, eris.Wrap(err, "seed: read restaurants csv")
	}
	return parse(rows, "restaurant", restaurantFromRecord)
}

// RestaurantsFromXLSX parses the first sheet of a restaurant seed workbook.
func RestaurantsFromXLSX(path string) ([]model.Restaurant, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	if err != nil {
		return nil, eris.Wrap(err, "seed: read restaurants xlsx")
	}
	return parse(rows, "restaurant", restaurantFromRecord)
}

// EpisodesFromCSV parses an episode seed CSV. The first row must be a
// header naming at least "title", "season" and "episode".
func EpisodesFromCSV(ctx context.Context, r io.Reader) ([]model.Episode, error) {
	rows, err := collectCSV(ctx, r)
	if err != nil {
		return nil, eris.Wrap(err, "seed: read episodes csv")
	}
	return parse(rows, "episode", episodeFromRecord)
}

// EpisodesFromXLSX parses the first sheet of an episode seed workbook.
func EpisodesFromXLSX(path string) ([]model.Episode, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	if err != nil {
		return nil, eris.Wrap(err, "seed: read episodes xlsx")
	}
	return parse(rows, "episode", episodeFromRecord)
}
