package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/flavortown/enrich-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Array and result
// columns are stored as JSON text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS restaurants (
	id                TEXT PRIMARY KEY,
	slug              TEXT NOT NULL UNIQUE,
	name              TEXT NOT NULL,
	city              TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	address           TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'unknown',
	enrichment_status TEXT NOT NULL DEFAULT 'pending',
	last_enriched_at  DATETIME,
	last_verified_at  DATETIME,
	description       TEXT NOT NULL DEFAULT '',
	cuisines          TEXT NOT NULL DEFAULT '[]',
	price_tier        TEXT NOT NULL DEFAULT '',
	guy_quote         TEXT NOT NULL DEFAULT '',
	dishes            TEXT NOT NULL DEFAULT '[]',
	phone             TEXT NOT NULL DEFAULT '',
	website           TEXT NOT NULL DEFAULT '',
	google_place_id   TEXT NOT NULL DEFAULT '',
	rating            REAL NOT NULL DEFAULT 0,
	review_count      INTEGER NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_restaurants_status ON restaurants(status);
CREATE INDEX IF NOT EXISTS idx_restaurants_city ON restaurants(city, state);

CREATE TABLE IF NOT EXISTS episodes (
	id               TEXT PRIMARY KEY,
	slug             TEXT NOT NULL UNIQUE,
	title            TEXT NOT NULL,
	season           INTEGER NOT NULL DEFAULT 0,
	episode_number   INTEGER NOT NULL DEFAULT 0,
	air_date         DATETIME,
	description      TEXT NOT NULL DEFAULT '',
	meta_description TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS episode_restaurants (
	episode_id    TEXT NOT NULL,
	restaurant_id TEXT NOT NULL,
	PRIMARY KEY (episode_id, restaurant_id)
);

CREATE TABLE IF NOT EXISTS cities (
	id               TEXT PRIMARY KEY,
	slug             TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	state            TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	restaurant_count INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS search_cache (
	id          TEXT PRIMARY KEY,
	query_hash  TEXT NOT NULL,
	query       TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL DEFAULT '',
	entity_name TEXT NOT NULL DEFAULT '',
	results     TEXT NOT NULL,
	fetched_at  DATETIME NOT NULL,
	expires_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_search_cache_hash ON search_cache(query_hash, fetched_at DESC);
`

// Migrate applies the embedded schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteRestaurantColumns = restaurantColumns

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRestaurantLite(row rowScanner) (*model.Restaurant, error) {
	var r model.Restaurant
	var cuisines, dishes string
	err := row.Scan(
		&r.ID, &r.Slug, &r.Name, &r.City, &r.State, &r.Address,
		&r.Status, &r.EnrichmentStatus, &r.LastEnrichedAt, &r.LastVerifiedAt,
		&r.Description, &cuisines, &r.PriceTier, &r.GuyQuote, &dishes,
		&r.Phone, &r.Website, &r.GooglePlaceID, &r.Rating, &r.ReviewCount,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cuisines), &r.Cuisines); err != nil {
		return nil, eris.Wrap(err, "sqlite: decode cuisines")
	}
	if err := json.Unmarshal([]byte(dishes), &r.Dishes); err != nil {
		return nil, eris.Wrap(err, "sqlite: decode dishes")
	}
	return &r, nil
}

func (s *SQLiteStore) getRestaurant(ctx context.Context, where string, arg any) (*model.Restaurant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRestaurantColumns+` FROM restaurants WHERE `+where, arg)
	r, err := scanRestaurantLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get restaurant")
	}
	return r, nil
}

func (s *SQLiteStore) GetRestaurantByID(ctx context.Context, id string) (*model.Restaurant, error) {
	return s.getRestaurant(ctx, "id = ?", id)
}

func (s *SQLiteStore) GetRestaurantBySlug(ctx context.Context, slug string) (*model.Restaurant, error) {
	return s.getRestaurant(ctx, "slug = ?", slug)
}

func (s *SQLiteStore) GetRestaurantsByIDs(ctx context.Context, ids []string) ([]model.Restaurant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRestaurantColumns+` FROM restaurants WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get restaurants by ids")
	}
	defer rows.Close()
	return collectRestaurantsLite(rows)
}

func sqliteCriteriaClause(c RestaurantCriteria) (string, []any) {
	var conds []string
	var args []any

	if c.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(c.Status))
	}
	if c.City != "" {
		conds = append(conds, "lower(city) = lower(?)")
		args = append(args, c.City)
	}
	if c.State != "" {
		conds = append(conds, "lower(state) = lower(?)")
		args = append(args, c.State)
	}
	if c.NotVerifiedInDays > 0 {
		conds = append(conds, "(last_verified_at IS NULL OR last_verified_at < datetime('now', ?))")
		args = append(args, fmt.Sprintf("-%d days", c.NotVerifiedInDays))
	}
	if c.NotEnrichedInDays > 0 {
		conds = append(conds, "(last_enriched_at IS NULL OR last_enriched_at < datetime('now', ?))")
		args = append(args, fmt.Sprintf("-%d days", c.NotEnrichedInDays))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *SQLiteStore) ListRestaurants(ctx context.Context, criteria RestaurantCriteria) ([]model.Restaurant, error) {
	where, args := sqliteCriteriaClause(criteria)
	query := `SELECT ` + sqliteRestaurantColumns + ` FROM restaurants` + where + ` ORDER BY slug`
	if criteria.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, criteria.Limit)
	}
	if criteria.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, criteria.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list restaurants")
	}
	defer rows.Close()
	return collectRestaurantsLite(rows)
}

func collectRestaurantsLite(rows *sql.Rows) ([]model.Restaurant, error) {
	var out []model.Restaurant
	for rows.Next() {
		r, err := scanRestaurantLite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan restaurant")
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate restaurants")
	}
	return out, nil
}

func (s *SQLiteStore) CountRestaurants(ctx context.Context, criteria RestaurantCriteria) (int, error) {
	where, args := sqliteCriteriaClause(criteria)
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM restaurants`+where, args...).Scan(&count)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: count restaurants")
	}
	return count, nil
}

func (s *SQLiteStore) CreateRestaurant(ctx context.Context, r *model.Restaurant) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = model.StatusUnknown
	}
	if r.EnrichmentStatus == "" {
		r.EnrichmentStatus = model.EnrichmentPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO restaurants (id, slug, name, city, state, address, status, enrichment_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Slug, r.Name, r.City, r.State, r.Address, string(r.Status), string(r.EnrichmentStatus), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: create restaurant")
	}
	return nil
}

func (s *SQLiteStore) UpdateRestaurantContent(ctx context.Context, id string, content model.RestaurantContent) error {
	cuisines, err := json.Marshal(content.Cuisines)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode cuisines")
	}
	dishes, err := json.Marshal(content.Dishes)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode dishes")
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE restaurants
		SET description = ?, cuisines = ?, price_tier = ?, guy_quote = ?, dishes = ?, updated_at = datetime('now')
		WHERE id = ?`,
		content.Description, string(cuisines), string(content.PriceTier), content.GuyQuote, string(dishes), id,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update restaurant content")
	}
	return nil
}

func (s *SQLiteStore) UpdateRestaurantStatus(ctx context.Context, id string, status model.RestaurantStatus, verifiedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE restaurants SET status = ?, last_verified_at = ?, updated_at = datetime('now') WHERE id = ?`,
		string(status), verifiedAt.UTC(), id,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update restaurant status")
	}
	return nil
}

func (s *SQLiteStore) UpdateRestaurantContact(ctx context.Context, id string, contact model.ContactInfo) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE restaurants
		SET phone = ?, website = ?, google_place_id = ?, rating = ?, review_count = ?, updated_at = datetime('now')
		WHERE id = ?`,
		contact.Phone, contact.Website, contact.GooglePlaceID, contact.Rating, contact.ReviewCount, id,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update restaurant contact")
	}
	return nil
}

func (s *SQLiteStore) SetEnrichmentStatus(ctx context.Context, id string, status model.EnrichmentStatus, enrichedAt *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE restaurants
		SET enrichment_status = ?, last_enriched_at = COALESCE(?, last_enriched_at), updated_at = datetime('now')
		WHERE id = ?`,
		string(status), enrichedAt, id,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: set enrichment status")
	}
	return nil
}

func (s *SQLiteStore) GetEpisodeBySlug(ctx context.Context, slug string) (*model.Episode, error) {
	var e model.Episode
	err := s.db.QueryRowContext(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE slug = ?`, slug).
		Scan(&e.ID, &e.Slug, &e.Title, &e.Season, &e.EpisodeNumber, &e.AirDate,
			&e.Description, &e.MetaDescription, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get episode by slug")
	}
	return &e, nil
}

func (s *SQLiteStore) ListEpisodesMissingMeta(ctx context.Context, limit int) ([]model.Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE meta_description = '' ORDER BY season, episode_number`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list episodes missing meta")
	}
	defer rows.Close()

	var out []model.Episode
	for rows.Next() {
		var e model.Episode
		if err := rows.Scan(&e.ID, &e.Slug, &e.Title, &e.Season, &e.EpisodeNumber, &e.AirDate,
			&e.Description, &e.MetaDescription, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan episode")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate episodes")
	}
	return out, nil
}

func (s *SQLiteStore) UpdateEpisodeDescriptions(ctx context.Context, id, description, metaDescription string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE episodes SET description = ?, meta_description = ?, updated_at = datetime('now') WHERE id = ?`,
		description, metaDescription, id,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update episode descriptions")
	}
	return nil
}

func (s *SQLiteStore) GetCityBySlug(ctx context.Context, slug string) (*model.City, error) {
	var c model.City
	err := s.db.QueryRowContext(ctx,
		`SELECT id, slug, name, state, description, restaurant_count, created_at, updated_at FROM cities WHERE slug = ?`, slug).
		Scan(&c.ID, &c.Slug, &c.Name, &c.State, &c.Description, &c.RestaurantCount, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get city by slug")
	}
	return &c, nil
}

func (s *SQLiteStore) UpdateCityDescription(ctx context.Context, id, description string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE cities SET description = ?, updated_at = datetime('now') WHERE id = ?`,
		description, id,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update city description")
	}
	return nil
}

func (s *SQLiteStore) GetCachedSearch(ctx context.Context, queryHash string) (*model.CachedSearch, error) {
	var row model.CachedSearch
	var resultsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, query_hash, query, entity_type, entity_id, entity_name, results, fetched_at, expires_at
		FROM search_cache
		WHERE query_hash = ? AND (expires_at IS NULL OR expires_at > datetime('now'))
		ORDER BY fetched_at DESC LIMIT 1`, queryHash).
		Scan(&row.ID, &row.QueryHash, &row.Query, &row.EntityType, &row.EntityID, &row.EntityName,
			&resultsJSON, &row.FetchedAt, &row.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached search")
	}
	if err := json.Unmarshal([]byte(resultsJSON), &row.Results); err != nil {
		return nil, eris.Wrap(err, "sqlite: decode cached results")
	}
	return &row, nil
}

func (s *SQLiteStore) PutCachedSearch(ctx context.Context, row model.CachedSearch) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	resultsJSON, err := json.Marshal(row.Results)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode results")
	}
	var expires any
	if row.ExpiresAt != nil {
		expires = row.ExpiresAt.UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO search_cache (id, query_hash, query, entity_type, entity_id, entity_name, results, fetched_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.QueryHash, row.Query, string(row.EntityType), row.EntityID, row.EntityName,
		string(resultsJSON), row.FetchedAt.UTC(), expires,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: put cached search")
	}
	return nil
}

func (s *SQLiteStore) PruneExpiredSearches(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM search_cache WHERE expires_at IS NOT NULL AND expires_at <= datetime('now')`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune expired searches")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}
