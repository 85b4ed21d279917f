package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/flavortown/enrich-cli/internal/db"
	"github.com/flavortown/enrich-cli/internal/model"
)

// Seed import columns. IDs and created_at are left to the column defaults
// so a re-import never rewrites them.
var (
	importRestaurantColumns = []string{
		"slug", "name", "city", "state", "address",
		"status", "enrichment_status", "cuisines", "price_tier",
		"phone", "website", "updated_at",
	}
	importEpisodeColumns = []string{
		"slug", "title", "season", "episode_number", "air_date",
		"description", "updated_at",
	}
)

func importDefaults(r *model.Restaurant) {
	if r.Status == "" {
		r.Status = model.StatusUnknown
	}
	if r.EnrichmentStatus == "" {
		r.EnrichmentStatus = model.EnrichmentPending
	}
	if r.Cuisines == nil {
		r.Cuisines = []string{}
	}
}

// tableEmpty reports whether a seed target table has no rows yet. A first
// import into an empty table can take the COPY fast path since there is
// nothing to conflict with.
func (s *PostgresStore) tableEmpty(ctx context.Context, table string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+table+")").Scan(&exists); err != nil {
		return false, eris.Wrapf(err, "postgres: probe %s", table)
	}
	return !exists, nil
}

func (s *PostgresStore) importRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	empty, err := s.tableEmpty(ctx, table)
	if err != nil {
		return 0, err
	}
	if empty {
		return db.CopyRows(ctx, s.pool, table, columns, rows)
	}
	return db.UpsertRows(ctx, s.pool, table, columns, []string{"slug"}, rows)
}

func (s *PostgresStore) ImportRestaurants(ctx context.Context, restaurants []model.Restaurant) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(restaurants))
	for i := range restaurants {
		r := restaurants[i]
		importDefaults(&r)
		rows = append(rows, []any{
			r.Slug, r.Name, r.City, r.State, r.Address,
			string(r.Status), string(r.EnrichmentStatus), r.Cuisines, string(r.PriceTier),
			r.Phone, r.Website, now,
		})
	}
	n, err := s.importRows(ctx, "restaurants", importRestaurantColumns, rows)
	if err != nil {
		return n, eris.Wrap(err, "postgres: import restaurants")
	}
	return n, nil
}

func (s *PostgresStore) ImportEpisodes(ctx context.Context, episodes []model.Episode) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(episodes))
	for _, e := range episodes {
		rows = append(rows, []any{
			e.Slug, e.Title, e.Season, e.EpisodeNumber, e.AirDate,
			e.Description, now,
		})
	}
	n, err := s.importRows(ctx, "episodes", importEpisodeColumns, rows)
	if err != nil {
		return n, eris.Wrap(err, "postgres: import episodes")
	}
	return n, nil
}

const sqliteImportRestaurant = `
	INSERT INTO restaurants (id, slug, name, city, state, address, status, enrichment_status, cuisines, price_tier, phone, website, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(slug) DO UPDATE SET
		name = excluded.name, city = excluded.city, state = excluded.state,
		address = excluded.address, status = excluded.status,
		cuisines = excluded.cuisines, price_tier = excluded.price_tier,
		phone = excluded.phone, website = excluded.website,
		updated_at = excluded.updated_at`

func (s *SQLiteStore) ImportRestaurants(ctx context.Context, restaurants []model.Restaurant) (int64, error) {
	now := time.Now().UTC()
	var affected int64
	for i := range restaurants {
		r := restaurants[i]
		importDefaults(&r)
		cuisines, err := json.Marshal(r.Cuisines)
		if err != nil {
			return affected, eris.Wrap(err, "sqlite: encode cuisines")
		}
		res, err := s.db.ExecContext(ctx, sqliteImportRestaurant,
			uuid.NewString(), r.Slug, r.Name, r.City, r.State, r.Address,
			string(r.Status), string(r.EnrichmentStatus), string(cuisines), string(r.PriceTier),
			r.Phone, r.Website, now, now,
		)
		if err != nil {
			return affected, eris.Wrapf(err, "sqlite: import restaurant %s", r.Slug)
		}
		n, _ := res.RowsAffected()
		affected += n
	}
	return affected, nil
}

const sqliteImportEpisode = `
	INSERT INTO episodes (id, slug, title, season, episode_number, air_date, description, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(slug) DO UPDATE SET
		title = excluded.title, season = excluded.season,
		episode_number = excluded.episode_number, air_date = excluded.air_date,
		description = excluded.description, updated_at = excluded.updated_at`

func (s *SQLiteStore) ImportEpisodes(ctx context.Context, episodes []model.Episode) (int64, error) {
	now := time.Now().UTC()
	var affected int64
	for _, e := range episodes {
		res, err := s.db.ExecContext(ctx, sqliteImportEpisode,
			uuid.NewString(), e.Slug, e.Title, e.Season, e.EpisodeNumber, e.AirDate,
			e.Description, now, now,
		)
		if err != nil {
			return affected, eris.Wrapf(err, "sqlite: import episode %s", e.Slug)
		}
		n, _ := res.RowsAffected()
		affected += n
	}
	return affected, nil
}
