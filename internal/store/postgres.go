package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/flavortown/enrich-cli/internal/db"
	"github.com/flavortown/enrich-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const restaurantColumns = `id, slug, name, city, state, address, status, enrichment_status,
	last_enriched_at, last_verified_at, description, cuisines, price_tier, guy_quote, dishes,
	phone, website, google_place_id, rating, review_count, created_at, updated_at`

// preparedStatements lists queries prepared on each new connection for the
// hottest store operations.
var preparedStatements = map[string]string{
	"get_restaurant_by_id":   `SELECT ` + restaurantColumns + ` FROM restaurants WHERE id = $1`,
	"get_restaurant_by_slug": `SELECT ` + restaurantColumns + ` FROM restaurants WHERE slug = $1`,
	"update_restaurant_status": `UPDATE restaurants SET status = $1, last_verified_at = $2, updated_at = now() WHERE id = $3`,
	"get_cached_search": `SELECT id, query_hash, query, entity_type, entity_id, entity_name, results, fetched_at, expires_at
		FROM search_cache WHERE query_hash = $1 AND (expires_at IS NULL OR expires_at > now())
		ORDER BY fetched_at DESC LIMIT 1`,
	"prune_expired_searches": `DELETE FROM search_cache WHERE expires_at IS NOT NULL AND expires_at <= now()`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests (pgxmock) and
// the seed importer.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool exposes the underlying pool for bulk import helpers.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS restaurants (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	slug              TEXT NOT NULL UNIQUE,
	name              TEXT NOT NULL,
	city              TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	address           TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'unknown',
	enrichment_status TEXT NOT NULL DEFAULT 'pending',
	last_enriched_at  TIMESTAMPTZ,
	last_verified_at  TIMESTAMPTZ,
	description       TEXT NOT NULL DEFAULT '',
	cuisines          TEXT[] NOT NULL DEFAULT '{}',
	price_tier        TEXT NOT NULL DEFAULT '',
	guy_quote         TEXT NOT NULL DEFAULT '',
	dishes            TEXT[] NOT NULL DEFAULT '{}',
	phone             TEXT NOT NULL DEFAULT '',
	website           TEXT NOT NULL DEFAULT '',
	google_place_id   TEXT NOT NULL DEFAULT '',
	rating            DOUBLE PRECISION NOT NULL DEFAULT 0,
	review_count      INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_restaurants_status ON restaurants(status);
CREATE INDEX IF NOT EXISTS idx_restaurants_city ON restaurants(city, state);
CREATE INDEX IF NOT EXISTS idx_restaurants_last_verified ON restaurants(last_verified_at);

CREATE TABLE IF NOT EXISTS episodes (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	slug             TEXT NOT NULL UNIQUE,
	title            TEXT NOT NULL,
	season           INTEGER NOT NULL DEFAULT 0,
	episode_number   INTEGER NOT NULL DEFAULT 0,
	air_date         TIMESTAMPTZ,
	description      TEXT NOT NULL DEFAULT '',
	meta_description TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS episode_restaurants (
	episode_id    TEXT NOT NULL REFERENCES episodes(id),
	restaurant_id TEXT NOT NULL REFERENCES restaurants(id),
	PRIMARY KEY (episode_id, restaurant_id)
);

CREATE TABLE IF NOT EXISTS cities (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	slug             TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	state            TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	restaurant_count INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS search_cache (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	query_hash  TEXT NOT NULL,
	query       TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL DEFAULT '',
	entity_name TEXT NOT NULL DEFAULT '',
	results     JSONB NOT NULL,
	fetched_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_search_cache_hash ON search_cache(query_hash, fetched_at DESC);
CREATE INDEX IF NOT EXISTS idx_search_cache_expires ON search_cache(expires_at);
`

// Migrate applies the embedded schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanRestaurant(row pgx.Row) (*model.Restaurant, error) {
	var r model.Restaurant
	err := row.Scan(
		&r.ID, &r.Slug, &r.Name, &r.City, &r.State, &r.Address,
		&r.Status, &r.EnrichmentStatus, &r.LastEnrichedAt, &r.LastVerifiedAt,
		&r.Description, &r.Cuisines, &r.PriceTier, &r.GuyQuote, &r.Dishes,
		&r.Phone, &r.Website, &r.GooglePlaceID, &r.Rating, &r.ReviewCount,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) GetRestaurantByID(ctx context.Context, id string) (*model.Restaurant, error) {
	r, err := scanRestaurant(s.pool.QueryRow(ctx,
		`SELECT `+restaurantColumns+` FROM restaurants WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get restaurant by id")
	}
	return r, nil
}

func (s *PostgresStore) GetRestaurantBySlug(ctx context.Context, slug string) (*model.Restaurant, error) {
	r, err := scanRestaurant(s.pool.QueryRow(ctx,
		`SELECT `+restaurantColumns+` FROM restaurants WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get restaurant by slug")
	}
	return r, nil
}

func (s *PostgresStore) GetRestaurantsByIDs(ctx context.Context, ids []string) ([]model.Restaurant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+restaurantColumns+` FROM restaurants WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get restaurants by ids")
	}
	defer rows.Close()
	return collectRestaurants(rows)
}

// criteriaClause renders a RestaurantCriteria into a WHERE clause and args.
func criteriaClause(c RestaurantCriteria) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if c.Status != "" {
		add("status = $%d", string(c.Status))
	}
	if c.City != "" {
		add("lower(city) = lower($%d)", c.City)
	}
	if c.State != "" {
		add("lower(state) = lower($%d)", c.State)
	}
	if c.NotVerifiedInDays > 0 {
		add("(last_verified_at IS NULL OR last_verified_at < now() - make_interval(days => $%d))", c.NotVerifiedInDays)
	}
	if c.NotEnrichedInDays > 0 {
		add("(last_enriched_at IS NULL OR last_enriched_at < now() - make_interval(days => $%d))", c.NotEnrichedInDays)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) ListRestaurants(ctx context.Context, criteria RestaurantCriteria) ([]model.Restaurant, error) {
	where, args := criteriaClause(criteria)
	sql := `SELECT ` + restaurantColumns + ` FROM restaurants` + where + ` ORDER BY slug`
	if criteria.Limit > 0 {
		args = append(args, criteria.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if criteria.Offset > 0 {
		args = append(args, criteria.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list restaurants")
	}
	defer rows.Close()
	return collectRestaurants(rows)
}

func collectRestaurants(rows pgx.Rows) ([]model.Restaurant, error) {
	var out []model.Restaurant
	for rows.Next() {
		r, err := scanRestaurant(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan restaurant")
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate restaurants")
	}
	return out, nil
}

func (s *PostgresStore) CountRestaurants(ctx context.Context, criteria RestaurantCriteria) (int, error) {
	where, args := criteriaClause(criteria)
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM restaurants`+where, args...).Scan(&count)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: count restaurants")
	}
	return count, nil
}

func (s *PostgresStore) CreateRestaurant(ctx context.Context, r *model.Restaurant) error {
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

	_, err := s.pool.Exec(ctx, `
		INSERT INTO restaurants (id, slug, name, city, state, address, status, enrichment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.Slug, r.Name, r.City, r.State, r.Address, string(r.Status), string(r.EnrichmentStatus), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: create restaurant")
	}
	return nil
}

func (s *PostgresStore) UpdateRestaurantContent(ctx context.Context, id string, content model.RestaurantContent) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE restaurants
		SET description = $1, cuisines = $2, price_tier = $3, guy_quote = $4, dishes = $5, updated_at = now()
		WHERE id = $6`,
		content.Description, content.Cuisines, string(content.PriceTier), content.GuyQuote, content.Dishes, id,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update restaurant content")
	}
	return nil
}

func (s *PostgresStore) UpdateRestaurantStatus(ctx context.Context, id string, status model.RestaurantStatus, verifiedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE restaurants SET status = $1, last_verified_at = $2, updated_at = now() WHERE id = $3`,
		string(status), verifiedAt, id,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update restaurant status")
	}
	return nil
}

func (s *PostgresStore) UpdateRestaurantContact(ctx context.Context, id string, contact model.ContactInfo) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE restaurants
		SET phone = $1, website = $2, google_place_id = $3, rating = $4, review_count = $5, updated_at = now()
		WHERE id = $6`,
		contact.Phone, contact.Website, contact.GooglePlaceID, contact.Rating, contact.ReviewCount, id,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update restaurant contact")
	}
	return nil
}

func (s *PostgresStore) SetEnrichmentStatus(ctx context.Context, id string, status model.EnrichmentStatus, enrichedAt *time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE restaurants
		SET enrichment_status = $1, last_enriched_at = COALESCE($2, last_enriched_at), updated_at = now()
		WHERE id = $3`,
		string(status), enrichedAt, id,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: set enrichment status")
	}
	return nil
}

const episodeColumns = `id, slug, title, season, episode_number, air_date, description, meta_description, created_at, updated_at`

func scanEpisode(row pgx.Row) (*model.Episode, error) {
	var e model.Episode
	err := row.Scan(&e.ID, &e.Slug, &e.Title, &e.Season, &e.EpisodeNumber, &e.AirDate,
		&e.Description, &e.MetaDescription, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PostgresStore) GetEpisodeBySlug(ctx context.Context, slug string) (*model.Episode, error) {
	e, err := scanEpisode(s.pool.QueryRow(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get episode by slug")
	}
	return e, nil
}

func (s *PostgresStore) ListEpisodesMissingMeta(ctx context.Context, limit int) ([]model.Episode, error) {
	sql := `SELECT ` + episodeColumns + ` FROM episodes WHERE meta_description = '' ORDER BY season, episode_number`
	args := []any{}
	if limit > 0 {
		args = append(args, limit)
		sql += " LIMIT $1"
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list episodes missing meta")
	}
	defer rows.Close()

	var out []model.Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan episode")
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate episodes")
	}
	return out, nil
}

func (s *PostgresStore) UpdateEpisodeDescriptions(ctx context.Context, id, description, metaDescription string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE episodes SET description = $1, meta_description = $2, updated_at = now() WHERE id = $3`,
		description, metaDescription, id,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update episode descriptions")
	}
	return nil
}

func (s *PostgresStore) GetCityBySlug(ctx context.Context, slug string) (*model.City, error) {
	var c model.City
	err := s.pool.QueryRow(ctx,
		`SELECT id, slug, name, state, description, restaurant_count, created_at, updated_at FROM cities WHERE slug = $1`, slug).
		Scan(&c.ID, &c.Slug, &c.Name, &c.State, &c.Description, &c.RestaurantCount, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get city by slug")
	}
	return &c, nil
}

func (s *PostgresStore) UpdateCityDescription(ctx context.Context, id, description string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE cities SET description = $1, updated_at = now() WHERE id = $2`,
		description, id,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update city description")
	}
	return nil
}

func (s *PostgresStore) GetCachedSearch(ctx context.Context, queryHash string) (*model.CachedSearch, error) {
	var row model.CachedSearch
	var resultsJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, query_hash, query, entity_type, entity_id, entity_name, results, fetched_at, expires_at
		FROM search_cache
		WHERE query_hash = $1 AND (expires_at IS NULL OR expires_at > now())
		ORDER BY fetched_at DESC LIMIT 1`, queryHash).
		Scan(&row.ID, &row.QueryHash, &row.Query, &row.EntityType, &row.EntityID, &row.EntityName,
			&resultsJSON, &row.FetchedAt, &row.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached search")
	}
	if err := json.Unmarshal(resultsJSON, &row.Results); err != nil {
		return nil, eris.Wrap(err, "postgres: decode cached results")
	}
	return &row, nil
}

func (s *PostgresStore) PutCachedSearch(ctx context.Context, row model.CachedSearch) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	resultsJSON, err := json.Marshal(row.Results)
	if err != nil {
		return eris.Wrap(err, "postgres: encode results")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO search_cache (id, query_hash, query, entity_type, entity_id, entity_name, results, fetched_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		row.ID, row.QueryHash, row.Query, string(row.EntityType), row.EntityID, row.EntityName,
		resultsJSON, row.FetchedAt, row.ExpiresAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: put cached search")
	}
	return nil
}

func (s *PostgresStore) PruneExpiredSearches(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM search_cache WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: prune expired searches")
	}
	return int(tag.RowsAffected()), nil
}
