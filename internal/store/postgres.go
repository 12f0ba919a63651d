package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/foodtruck-cli/internal/db"
	"github.com/sells-group/foodtruck-cli/internal/model"
)

// PostgresStore implements Store using pgxpool. Business locations are
// also written to a PostGIS point column for spatial queries.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
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

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS discovered_urls (
	id            TEXT PRIMARY KEY,
	url           TEXT NOT NULL UNIQUE,
	status        TEXT NOT NULL DEFAULT 'new',
	source_query  TEXT NOT NULL DEFAULT '',
	region        TEXT NOT NULL DEFAULT '',
	notes         TEXT NOT NULL DEFAULT '',
	discovered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scraping_jobs (
	id             TEXT PRIMARY KEY,
	target_url     TEXT NOT NULL,
	job_type       TEXT NOT NULL DEFAULT 'website',
	priority       INTEGER NOT NULL DEFAULT 5,
	status         TEXT NOT NULL DEFAULT 'pending',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	scheduled_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at     TIMESTAMPTZ,
	completed_at   TIMESTAMPTZ,
	errors         JSONB NOT NULL DEFAULT '[]',
	data_collected JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (retry_count <= max_retries)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_scraping_jobs_active_url
	ON scraping_jobs(target_url) WHERE status IN ('pending', 'running');
CREATE INDEX IF NOT EXISTS idx_scraping_jobs_claim
	ON scraping_jobs(status, priority DESC, scheduled_at);

CREATE TABLE IF NOT EXISTS businesses (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	name_key            TEXT NOT NULL,
	verification_status TEXT NOT NULL DEFAULT 'pending',
	data_quality_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	data                JSONB NOT NULL,
	location            geometry(Point, 4326),
	last_scraped_at     TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_businesses_name_key ON businesses(name_key);
CREATE INDEX IF NOT EXISTS idx_businesses_last_scraped ON businesses(last_scraped_at);
CREATE INDEX IF NOT EXISTS idx_businesses_location ON businesses USING GIST(location);

CREATE TABLE IF NOT EXISTS business_sources (
	url         TEXT PRIMARY KEY,
	business_id TEXT NOT NULL REFERENCES businesses(id)
);

CREATE TABLE IF NOT EXISTS api_usage (
	service       TEXT NOT NULL,
	usage_date    DATE NOT NULL,
	requests_used BIGINT NOT NULL DEFAULT 0,
	tokens_used   BIGINT NOT NULL DEFAULT 0,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (service, usage_date)
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Discovered URLs ---

func (s *PostgresStore) InsertDiscoveredURL(ctx context.Context, u *model.DiscoveredURL) (bool, error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Status == "" {
		u.Status = model.DiscoveredNew
	}
	now := time.Now().UTC()
	if u.DiscoveredAt.IsZero() {
		u.DiscoveredAt = now
	}
	u.UpdatedAt = now

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO discovered_urls (id, url, status, source_query, region, notes, discovered_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (url) DO NOTHING`,
		u.ID, u.URL, string(u.Status), u.SourceQuery, u.Region, u.Notes, u.DiscoveredAt, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert discovered url %s", u.URL)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetDiscoveredURL(ctx context.Context, url string) (*model.DiscoveredURL, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+discoveredCols+` FROM discovered_urls WHERE url = $1`, url)
	u, err := scanDiscoveredPG(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get discovered url")
	}
	return u, nil
}

func (s *PostgresStore) UpdateDiscoveredStatus(ctx context.Context, url string, status model.DiscoveredStatus) error {
	current, err := s.GetDiscoveredURL(ctx, url)
	if err != nil {
		return err
	}
	if current == nil {
		return eris.Wrapf(ErrNotFound, "discovered url %s", url)
	}
	if !current.Status.CanAdvanceTo(status) {
		return eris.Wrapf(ErrInvalidTransition, "discovered url %s: %s -> %s", url, current.Status, status)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE discovered_urls SET status = $1, updated_at = now() WHERE url = $2 AND status = $3`,
		string(status), url, string(current.Status),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update discovered url %s", url)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "discovered url %s", url)
	}
	return nil
}

func (s *PostgresStore) ListDiscoveredURLs(ctx context.Context, filter URLFilter) ([]model.DiscoveredURL, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+discoveredCols+` FROM discovered_urls
		 WHERE ($1 = '' OR status = $1)
		 ORDER BY discovered_at ASC LIMIT $2`,
		string(filter.Status), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list discovered urls")
	}
	defer rows.Close()

	var out []model.DiscoveredURL
	for rows.Next() {
		u, err := scanDiscoveredPG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan discovered url")
		}
		out = append(out, *u)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate discovered urls")
}

func (s *PostgresStore) CountDiscoveredByStatus(ctx context.Context) (map[model.DiscoveredStatus]int, error) {
	counts := make(map[model.DiscoveredStatus]int)
	err := s.countBy(ctx, `SELECT status, COUNT(*) FROM discovered_urls GROUP BY status`, func(k string, n int) {
		counts[model.DiscoveredStatus(k)] = n
	})
	return counts, err
}

// --- Scraping jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.ScrapingJob) (*model.ScrapingJob, bool, error) {
	prepareJob(job)

	errorsJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: marshal job errors")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO scraping_jobs (id, target_url, job_type, priority, status, retry_count, max_retries,
			scheduled_at, errors, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT DO NOTHING`,
		job.ID, job.TargetURL, job.JobType, job.Priority, string(job.Status), job.RetryCount, job.MaxRetries,
		job.ScheduledAt, string(errorsJSON), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, false, eris.Wrapf(err, "postgres: insert job %s", job.TargetURL)
	}
	if tag.RowsAffected() == 1 {
		return job, true, nil
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+jobCols+` FROM scraping_jobs WHERE target_url = $1 AND status IN ('pending', 'running')`,
		job.TargetURL,
	)
	existing, err := scanJobPG(row)
	if err != nil {
		return nil, false, eris.Wrapf(err, "postgres: load active job for %s", job.TargetURL)
	}
	return existing, false, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.ScrapingJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobCols+` FROM scraping_jobs WHERE id = $1`, id)
	job, err := scanJobPG(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}
	return job, nil
}

// ClaimNextJob locks the best due pending row with SKIP LOCKED so
// concurrent workers never block on or double-claim the same job.
func (s *PostgresStore) ClaimNextJob(ctx context.Context, now time.Time) (*model.ScrapingJob, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin claim tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx,
		`SELECT id FROM scraping_jobs
		 WHERE status = 'pending' AND scheduled_at <= $1
		 ORDER BY priority DESC, scheduled_at ASC, created_at ASC
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`,
		now,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select claimable job")
	}

	job, err := scanJobPG(tx.QueryRow(ctx,
		`UPDATE scraping_jobs SET status = 'running', started_at = $1, updated_at = $1
		 WHERE id = $2 RETURNING `+jobCols,
		now, id,
	))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: mark job %s running", id)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit claim")
	}
	return job, nil
}

func (s *PostgresStore) ClaimJob(ctx context.Context, id string, now time.Time) (*model.ScrapingJob, error) {
	job, err := scanJobPG(s.pool.QueryRow(ctx,
		`UPDATE scraping_jobs SET status = 'running', started_at = $1, updated_at = $1
		 WHERE id = $2 AND status = 'pending' RETURNING `+jobCols,
		now, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, gerr := s.GetJob(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, eris.Wrapf(ErrInvalidTransition, "job %s is not pending", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: claim job %s", id)
	}
	return job, nil
}

func (s *PostgresStore) FinishJob(ctx context.Context, job *model.ScrapingJob) error {
	errorsJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job errors")
	}
	var data any
	if job.DataCollected != nil {
		b, err := json.Marshal(job.DataCollected)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal job data")
		}
		data = string(b)
	}
	job.UpdatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`UPDATE scraping_jobs SET status = $1, retry_count = $2, scheduled_at = $3, completed_at = $4,
			errors = $5, data_collected = $6, updated_at = $7
		 WHERE id = $8 AND status = 'running'`,
		string(job.Status), job.RetryCount, job.ScheduledAt, job.CompletedAt,
		string(errorsJSON), data, job.UpdatedAt, job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish job %s", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrInvalidTransition, "job %s is not running", job.ID)
	}
	return nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.ScrapingJob, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobCols+` FROM scraping_jobs
		 WHERE ($1 = '' OR status = $1)
		 ORDER BY priority DESC, scheduled_at ASC LIMIT $2 OFFSET $3`,
		string(filter.Status), limit, filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var out []model.ScrapingJob
	for rows.Next() {
		job, err := scanJobPG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		out = append(out, *job)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate jobs")
}

func (s *PostgresStore) CountJobsByStatus(ctx context.Context) (map[model.JobStatus]int, error) {
	counts := make(map[model.JobStatus]int)
	err := s.countBy(ctx, `SELECT status, COUNT(*) FROM scraping_jobs GROUP BY status`, func(k string, n int) {
		counts[model.JobStatus(k)] = n
	})
	return counts, err
}

func (s *PostgresStore) RequeueFailedJobs(ctx context.Context, limit int, now time.Time) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE scraping_jobs SET status = 'pending', retry_count = retry_count + 1,
		        scheduled_at = $1, completed_at = NULL, updated_at = $1
		 WHERE id IN (
			SELECT DISTINCT ON (f.target_url) f.id FROM scraping_jobs f
			WHERE f.status = 'failed' AND f.retry_count < f.max_retries
			  AND NOT EXISTS (
				SELECT 1 FROM scraping_jobs a
				WHERE a.target_url = f.target_url AND a.status IN ('pending', 'running')
			  )
			ORDER BY f.target_url, f.updated_at DESC
			LIMIT $2
		 )`,
		now, limit,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: requeue failed jobs")
	}
	return int(tag.RowsAffected()), nil
}

// --- Business records ---

func (s *PostgresStore) CreateBusiness(ctx context.Context, b *model.BusinessRecord, nameKey string) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.VerificationStatus == "" {
		b.VerificationStatus = model.VerificationPending
	}

	data, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal business")
	}
	point, err := locationEWKB(b.CurrentLocation)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO businesses (id, name, name_key, verification_status, data_quality_score, data,
			location, last_scraped_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, ST_GeomFromEWKB($7::bytea), $8, $9, $9)`,
		b.ID, b.Name, nameKey, string(b.VerificationStatus), b.DataQualityScore, string(data),
		point, b.LastScrapedAt, now,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert business %s", b.Name)
	}
	if err := insertSourcesPG(ctx, tx, b); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit business")
}

func (s *PostgresStore) UpdateBusiness(ctx context.Context, b *model.BusinessRecord, nameKey string) error {
	b.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal business")
	}
	point, err := locationEWKB(b.CurrentLocation)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE businesses SET name = $1, name_key = $2, verification_status = $3, data_quality_score = $4,
			data = $5, location = ST_GeomFromEWKB($6::bytea), last_scraped_at = $7, updated_at = $8
		 WHERE id = $9`,
		b.Name, nameKey, string(b.VerificationStatus), b.DataQualityScore, string(data),
		point, b.LastScrapedAt, b.UpdatedAt, b.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update business %s", b.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "business %s", b.ID)
	}
	if err := insertSourcesPG(ctx, tx, b); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit business")
}

func insertSourcesPG(ctx context.Context, tx pgx.Tx, b *model.BusinessRecord) error {
	for _, u := range b.SourceURLs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO business_sources (url, business_id) VALUES ($1, $2) ON CONFLICT (url) DO NOTHING`,
			u, b.ID,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert source url %s", u)
		}
	}
	return nil
}

// locationEWKB encodes the record's coordinates as an SRID 4326 point, or
// nil when the location has no coordinates.
func locationEWKB(loc *model.Location) ([]byte, error) {
	lat, lng, ok := loc.Coordinates()
	if !ok {
		return nil, nil
	}
	pt := geom.NewPointFlat(geom.XY, []float64{lng, lat}).SetSRID(4326)
	data, err := ewkb.Marshal(pt, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode location")
	}
	return data, nil
}

func (s *PostgresStore) GetBusiness(ctx context.Context, id string) (*model.BusinessRecord, error) {
	b, err := scanBusinessPG(s.pool.QueryRow(ctx, `SELECT `+businessCols+` FROM businesses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "business %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get business %s", id)
	}
	return b, nil
}

func (s *PostgresStore) FindBusinessBySourceURL(ctx context.Context, url string) (*model.BusinessRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+prefixCols("b.", businessCols)+` FROM businesses b
		 JOIN business_sources s ON s.business_id = b.id WHERE s.url = $1`, url)
	return optionalBusinessPG(row, "find business by source url")
}

func (s *PostgresStore) FindBusinessByNameKey(ctx context.Context, nameKey string) (*model.BusinessRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+businessCols+` FROM businesses WHERE name_key = $1 ORDER BY created_at ASC LIMIT 1`, nameKey)
	return optionalBusinessPG(row, "find business by name")
}

func optionalBusinessPG(row pgx.Row, op string) (*model.BusinessRecord, error) {
	b, err := scanBusinessPG(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", op)
	}
	return b, nil
}

func (s *PostgresStore) ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.BusinessRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+businessCols+` FROM businesses
		 WHERE ($1::timestamptz IS NULL OR last_scraped_at IS NULL OR last_scraped_at < $1)
		   AND ($4 = '' OR name_key LIKE $4 || '%' ESCAPE '\')
		 ORDER BY created_at ASC LIMIT $2 OFFSET $3`,
		filter.ScrapedBefore, limit, filter.Offset, escapeLike(filter.NamePrefix),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list businesses")
	}
	defer rows.Close()

	var out []model.BusinessRecord
	for rows.Next() {
		b, err := scanBusinessPG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan business")
		}
		out = append(out, *b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate businesses")
}

func (s *PostgresStore) CountBusinesses(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM businesses`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count businesses")
}

// --- Usage counters ---

func (s *PostgresStore) IncrementUsage(ctx context.Context, service, day string, requests, tokens int64) (*model.UsageCounter, error) {
	c := model.UsageCounter{Service: service, UsageDate: day}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO api_usage (service, usage_date, requests_used, tokens_used, updated_at)
		 VALUES ($1, $2::date, $3, $4, now())
		 ON CONFLICT (service, usage_date) DO UPDATE SET
			requests_used = api_usage.requests_used + EXCLUDED.requests_used,
			tokens_used = api_usage.tokens_used + EXCLUDED.tokens_used,
			updated_at = now()
		 RETURNING requests_used, tokens_used`,
		service, day, requests, tokens,
	).Scan(&c.RequestsUsed, &c.TokensUsed)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: increment usage %s", service)
	}
	return &c, nil
}

func (s *PostgresStore) GetUsage(ctx context.Context, service, day string) (*model.UsageCounter, error) {
	c := model.UsageCounter{Service: service, UsageDate: day}
	err := s.pool.QueryRow(ctx,
		`SELECT requests_used, tokens_used FROM api_usage WHERE service = $1 AND usage_date = $2::date`,
		service, day,
	).Scan(&c.RequestsUsed, &c.TokensUsed)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "postgres: get usage %s", service)
	}
	return &c, nil
}

// helpers

func (s *PostgresStore) countBy(ctx context.Context, query string, fn func(string, int)) error {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return eris.Wrap(err, "postgres: count")
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return eris.Wrap(err, "postgres: scan count")
		}
		fn(k, n)
	}
	return eris.Wrap(rows.Err(), "postgres: iterate counts")
}

func scanDiscoveredPG(row pgx.Row) (*model.DiscoveredURL, error) {
	var u model.DiscoveredURL
	var status string
	if err := row.Scan(&u.ID, &u.URL, &status, &u.SourceQuery, &u.Region, &u.Notes, &u.DiscoveredAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Status = model.DiscoveredStatus(status)
	return &u, nil
}

func scanJobPG(row pgx.Row) (*model.ScrapingJob, error) {
	var j model.ScrapingJob
	var status string
	var errorsJSON, data []byte

	err := row.Scan(&j.ID, &j.TargetURL, &j.JobType, &j.Priority, &status, &j.RetryCount, &j.MaxRetries,
		&j.ScheduledAt, &j.StartedAt, &j.CompletedAt, &errorsJSON, &data, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &j.Errors); err != nil {
			return nil, eris.Wrap(err, "unmarshal job errors")
		}
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &j.DataCollected); err != nil {
			return nil, eris.Wrap(err, "unmarshal job data")
		}
	}
	return &j, nil
}

func scanBusinessPG(row pgx.Row) (*model.BusinessRecord, error) {
	var b model.BusinessRecord
	var data []byte
	var status string
	var lastScraped *time.Time
	var createdAt, updatedAt time.Time

	if err := row.Scan(&b.ID, &data, &status, &b.DataQualityScore, &lastScraped, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	id, score := b.ID, b.DataQualityScore
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, eris.Wrap(err, "unmarshal business")
	}
	b.ID, b.DataQualityScore = id, score
	b.VerificationStatus = model.VerificationStatus(status)
	b.LastScrapedAt = lastScraped
	b.CreatedAt = createdAt
	b.UpdatedAt = updatedAt
	return &b, nil
}
