package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/foodtruck-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection and SQLite has a single writer.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS discovered_urls (
	id            TEXT PRIMARY KEY,
	url           TEXT NOT NULL UNIQUE,
	status        TEXT NOT NULL DEFAULT 'new',
	source_query  TEXT NOT NULL DEFAULT '',
	region        TEXT NOT NULL DEFAULT '',
	notes         TEXT NOT NULL DEFAULT '',
	discovered_at TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scraping_jobs (
	id             TEXT PRIMARY KEY,
	target_url     TEXT NOT NULL,
	job_type       TEXT NOT NULL DEFAULT 'website',
	priority       INTEGER NOT NULL DEFAULT 5,
	status         TEXT NOT NULL DEFAULT 'pending',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	scheduled_at   TEXT NOT NULL,
	started_at     TEXT,
	completed_at   TEXT,
	errors         TEXT NOT NULL DEFAULT '[]',
	data_collected TEXT,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL,
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
	data_quality_score  REAL NOT NULL DEFAULT 0,
	data                TEXT NOT NULL,
	last_scraped_at     TEXT,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_businesses_name_key ON businesses(name_key);
CREATE INDEX IF NOT EXISTS idx_businesses_last_scraped ON businesses(last_scraped_at);

CREATE TABLE IF NOT EXISTS business_sources (
	url         TEXT PRIMARY KEY,
	business_id TEXT NOT NULL REFERENCES businesses(id)
);

CREATE TABLE IF NOT EXISTS api_usage (
	service       TEXT NOT NULL,
	usage_date    TEXT NOT NULL,
	requests_used INTEGER NOT NULL DEFAULT 0,
	tokens_used   INTEGER NOT NULL DEFAULT 0,
	updated_at    TEXT NOT NULL,
	PRIMARY KEY (service, usage_date)
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Discovered URLs ---

func (s *SQLiteStore) InsertDiscoveredURL(ctx context.Context, u *model.DiscoveredURL) (bool, error) {
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

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO discovered_urls (id, url, status, source_query, region, notes, discovered_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(url) DO NOTHING`,
		u.ID, u.URL, string(u.Status), u.SourceQuery, u.Region, u.Notes, fmtTime(u.DiscoveredAt), fmtTime(now),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert discovered url %s", u.URL)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

const discoveredCols = `id, url, status, source_query, region, notes, discovered_at, updated_at`

func (s *SQLiteStore) GetDiscoveredURL(ctx context.Context, url string) (*model.DiscoveredURL, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+discoveredCols+` FROM discovered_urls WHERE url = ?`, url)
	u, err := scanDiscovered(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get discovered url")
	}
	return u, nil
}

func (s *SQLiteStore) UpdateDiscoveredStatus(ctx context.Context, url string, status model.DiscoveredStatus) error {
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

	// Guard on the status read above so a concurrent change is not overwritten.
	res, err := s.db.ExecContext(ctx,
		`UPDATE discovered_urls SET status = ?, updated_at = ? WHERE url = ? AND status = ?`,
		string(status), fmtTime(time.Now()), url, string(current.Status),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update discovered url %s", url)
	}
	return checkRowsAffected(res, "discovered url", url)
}

func (s *SQLiteStore) ListDiscoveredURLs(ctx context.Context, filter URLFilter) ([]model.DiscoveredURL, error) {
	query := `SELECT ` + discoveredCols + ` FROM discovered_urls`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY discovered_at ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list discovered urls")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DiscoveredURL
	for rows.Next() {
		u, err := scanDiscovered(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan discovered url")
		}
		out = append(out, *u)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate discovered urls")
}

func (s *SQLiteStore) CountDiscoveredByStatus(ctx context.Context) (map[model.DiscoveredStatus]int, error) {
	counts := make(map[model.DiscoveredStatus]int)
	err := s.countBy(ctx, `SELECT status, COUNT(*) FROM discovered_urls GROUP BY status`, func(k string, n int) {
		counts[model.DiscoveredStatus(k)] = n
	})
	return counts, err
}

// --- Scraping jobs ---

const jobCols = `id, target_url, job_type, priority, status, retry_count, max_retries, scheduled_at,
	started_at, completed_at, errors, data_collected, created_at, updated_at`

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.ScrapingJob) (*model.ScrapingJob, bool, error) {
	prepareJob(job)

	errorsJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: marshal job errors")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scraping_jobs (id, target_url, job_type, priority, status, retry_count, max_retries,
			scheduled_at, errors, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		job.ID, job.TargetURL, job.JobType, job.Priority, string(job.Status), job.RetryCount, job.MaxRetries,
		fmtTime(job.ScheduledAt), string(errorsJSON), fmtTime(job.CreatedAt), fmtTime(job.UpdatedAt),
	)
	if err != nil {
		return nil, false, eris.Wrapf(err, "sqlite: insert job %s", job.TargetURL)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 1 {
		return job, true, nil
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobCols+` FROM scraping_jobs WHERE target_url = ? AND status IN ('pending', 'running')`,
		job.TargetURL,
	)
	existing, err := scanJob(row)
	if err != nil {
		return nil, false, eris.Wrapf(err, "sqlite: load active job for %s", job.TargetURL)
	}
	return existing, false, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.ScrapingJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobCols+` FROM scraping_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	return job, nil
}

// ClaimNextJob flips the best due pending job to running in one statement,
// so two concurrent claimers can never receive the same job.
func (s *SQLiteStore) ClaimNextJob(ctx context.Context, now time.Time) (*model.ScrapingJob, error) {
	ts := fmtTime(now)
	row := s.db.QueryRowContext(ctx,
		`UPDATE scraping_jobs SET status = 'running', started_at = ?, updated_at = ?
		 WHERE id = (
			SELECT id FROM scraping_jobs
			WHERE status = 'pending' AND scheduled_at <= ?
			ORDER BY priority DESC, scheduled_at ASC, created_at ASC
			LIMIT 1
		 ) AND status = 'pending'
		 RETURNING `+jobCols,
		ts, ts, ts,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: claim job")
	}
	return job, nil
}

func (s *SQLiteStore) ClaimJob(ctx context.Context, id string, now time.Time) (*model.ScrapingJob, error) {
	ts := fmtTime(now)
	row := s.db.QueryRowContext(ctx,
		`UPDATE scraping_jobs SET status = 'running', started_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'
		 RETURNING `+jobCols,
		ts, ts, id,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, gerr := s.GetJob(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, eris.Wrapf(ErrInvalidTransition, "job %s is not pending", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: claim job %s", id)
	}
	return job, nil
}

// FinishJob writes the outcome of a running job: completed, failed, or
// back to pending for a retry.
func (s *SQLiteStore) FinishJob(ctx context.Context, job *model.ScrapingJob) error {
	errorsJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job errors")
	}
	var data any
	if job.DataCollected != nil {
		b, err := json.Marshal(job.DataCollected)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal job data")
		}
		data = string(b)
	}
	job.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE scraping_jobs SET status = ?, retry_count = ?, scheduled_at = ?, completed_at = ?,
			errors = ?, data_collected = ?, updated_at = ?
		 WHERE id = ? AND status = 'running'`,
		string(job.Status), job.RetryCount, fmtTime(job.ScheduledAt), fmtTimePtr(job.CompletedAt),
		string(errorsJSON), data, fmtTime(job.UpdatedAt), job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish job %s", job.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrInvalidTransition, "job %s is not running", job.ID)
	}
	return nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.ScrapingJob, error) {
	query := `SELECT ` + jobCols + ` FROM scraping_jobs`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY priority DESC, scheduled_at ASC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ScrapingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		out = append(out, *job)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate jobs")
}

func (s *SQLiteStore) CountJobsByStatus(ctx context.Context) (map[model.JobStatus]int, error) {
	counts := make(map[model.JobStatus]int)
	err := s.countBy(ctx, `SELECT status, COUNT(*) FROM scraping_jobs GROUP BY status`, func(k string, n int) {
		counts[model.JobStatus(k)] = n
	})
	return counts, err
}

// RequeueFailedJobs moves failed jobs that still have retries left back to
// pending with one more retry counted. URLs that already have a live job, and all but the newest failed
// job per URL, are skipped.
func (s *SQLiteStore) RequeueFailedJobs(ctx context.Context, limit int, now time.Time) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	ts := fmtTime(now)
	res, err := s.db.ExecContext(ctx,
		`UPDATE scraping_jobs SET status = 'pending', retry_count = retry_count + 1,
		        scheduled_at = ?, completed_at = NULL, updated_at = ?
		 WHERE id IN (
			SELECT f.id FROM scraping_jobs f
			WHERE f.status = 'failed' AND f.retry_count < f.max_retries
			  AND NOT EXISTS (
				SELECT 1 FROM scraping_jobs a
				WHERE a.target_url = f.target_url AND a.status IN ('pending', 'running')
			  )
			  AND f.id = (
				SELECT n.id FROM scraping_jobs n
				WHERE n.target_url = f.target_url AND n.status = 'failed'
				ORDER BY n.updated_at DESC LIMIT 1
			  )
			LIMIT ?
		 )`,
		ts, ts, limit,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: requeue failed jobs")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// --- Business records ---

const businessCols = `id, data, verification_status, data_quality_score, last_scraped_at, created_at, updated_at`

func (s *SQLiteStore) CreateBusiness(ctx context.Context, b *model.BusinessRecord, nameKey string) error {
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
		return eris.Wrap(err, "sqlite: marshal business")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO businesses (id, name, name_key, verification_status, data_quality_score, data,
			last_scraped_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, nameKey, string(b.VerificationStatus), b.DataQualityScore, string(data),
		fmtTimePtr(b.LastScrapedAt), fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert business %s", b.Name)
	}
	if err := insertSources(ctx, tx, b); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit business")
}

func (s *SQLiteStore) UpdateBusiness(ctx context.Context, b *model.BusinessRecord, nameKey string) error {
	b.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal business")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE businesses SET name = ?, name_key = ?, verification_status = ?, data_quality_score = ?,
			data = ?, last_scraped_at = ?, updated_at = ?
		 WHERE id = ?`,
		b.Name, nameKey, string(b.VerificationStatus), b.DataQualityScore, string(data),
		fmtTimePtr(b.LastScrapedAt), fmtTime(b.UpdatedAt), b.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update business %s", b.ID)
	}
	if err := checkRowsAffected(res, "business", b.ID); err != nil {
		return err
	}
	if err := insertSources(ctx, tx, b); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit business")
}

func insertSources(ctx context.Context, tx *sql.Tx, b *model.BusinessRecord) error {
	for _, u := range b.SourceURLs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO business_sources (url, business_id) VALUES (?, ?) ON CONFLICT(url) DO NOTHING`,
			u, b.ID,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert source url %s", u)
		}
	}
	return nil
}

func (s *SQLiteStore) GetBusiness(ctx context.Context, id string) (*model.BusinessRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+businessCols+` FROM businesses WHERE id = ?`, id)
	b, err := scanBusiness(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "business %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get business %s", id)
	}
	return b, nil
}

func (s *SQLiteStore) FindBusinessBySourceURL(ctx context.Context, url string) (*model.BusinessRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+prefixCols("b.", businessCols)+` FROM businesses b
		 JOIN business_sources s ON s.business_id = b.id WHERE s.url = ?`, url)
	return s.optionalBusiness(row, "find business by source url")
}

func (s *SQLiteStore) FindBusinessByNameKey(ctx context.Context, nameKey string) (*model.BusinessRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+businessCols+` FROM businesses WHERE name_key = ? ORDER BY created_at ASC LIMIT 1`, nameKey)
	return s.optionalBusiness(row, "find business by name")
}

func (s *SQLiteStore) optionalBusiness(row *sql.Row, op string) (*model.BusinessRecord, error) {
	b, err := scanBusiness(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", op)
	}
	return b, nil
}

func (s *SQLiteStore) ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.BusinessRecord, error) {
	query := `SELECT ` + businessCols + ` FROM businesses`
	var (
		where []string
		args  []any
	)
	if filter.ScrapedBefore != nil {
		where = append(where, `(last_scraped_at IS NULL OR last_scraped_at < ?)`)
		args = append(args, fmtTime(*filter.ScrapedBefore))
	}
	if filter.NamePrefix != "" {
		where = append(where, `name_key LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(filter.NamePrefix)+"%")
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list businesses")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.BusinessRecord
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan business")
		}
		out = append(out, *b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate businesses")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *SQLiteStore) CountBusinesses(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM businesses`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count businesses")
}

// --- Usage counters ---

// IncrementUsage adds to a day's counters in a single upsert statement.
func (s *SQLiteStore) IncrementUsage(ctx context.Context, service, day string, requests, tokens int64) (*model.UsageCounter, error) {
	var c model.UsageCounter
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO api_usage (service, usage_date, requests_used, tokens_used, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(service, usage_date) DO UPDATE SET
			requests_used = requests_used + excluded.requests_used,
			tokens_used = tokens_used + excluded.tokens_used,
			updated_at = excluded.updated_at
		 RETURNING service, usage_date, requests_used, tokens_used`,
		service, day, requests, tokens, fmtTime(time.Now()),
	).Scan(&c.Service, &c.UsageDate, &c.RequestsUsed, &c.TokensUsed)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: increment usage %s", service)
	}
	return &c, nil
}

func (s *SQLiteStore) GetUsage(ctx context.Context, service, day string) (*model.UsageCounter, error) {
	c := model.UsageCounter{Service: service, UsageDate: day}
	err := s.db.QueryRowContext(ctx,
		`SELECT requests_used, tokens_used FROM api_usage WHERE service = ? AND usage_date = ?`,
		service, day,
	).Scan(&c.RequestsUsed, &c.TokensUsed)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(err, "sqlite: get usage %s", service)
	}
	return &c, nil
}

// helpers

func (s *SQLiteStore) countBy(ctx context.Context, query string, fn func(string, int)) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return eris.Wrap(err, "sqlite: count")
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return eris.Wrap(err, "sqlite: scan count")
		}
		fn(k, n)
	}
	return eris.Wrap(rows.Err(), "sqlite: iterate counts")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func prefixCols(prefix, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDiscovered(row scannable) (*model.DiscoveredURL, error) {
	var u model.DiscoveredURL
	var status, discoveredAt, updatedAt string
	if err := row.Scan(&u.ID, &u.URL, &status, &u.SourceQuery, &u.Region, &u.Notes, &discoveredAt, &updatedAt); err != nil {
		return nil, err
	}
	u.Status = model.DiscoveredStatus(status)
	var err error
	if u.DiscoveredAt, err = parseTime(discoveredAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanJob(row scannable) (*model.ScrapingJob, error) {
	var j model.ScrapingJob
	var status, scheduledAt, errorsJSON, createdAt, updatedAt string
	var startedAt, completedAt, data sql.NullString

	err := row.Scan(&j.ID, &j.TargetURL, &j.JobType, &j.Priority, &status, &j.RetryCount, &j.MaxRetries,
		&scheduledAt, &startedAt, &completedAt, &errorsJSON, &data, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)

	if j.ScheduledAt, err = parseTime(scheduledAt); err != nil {
		return nil, err
	}
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if j.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if j.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if j.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(errorsJSON), &j.Errors); err != nil {
		return nil, eris.Wrap(err, "unmarshal job errors")
	}
	if data.Valid {
		if err := json.Unmarshal([]byte(data.String), &j.DataCollected); err != nil {
			return nil, eris.Wrap(err, "unmarshal job data")
		}
	}
	return &j, nil
}

func scanBusiness(row scannable) (*model.BusinessRecord, error) {
	var b model.BusinessRecord
	var data, status, createdAt, updatedAt string
	var lastScraped sql.NullString

	if err := row.Scan(&b.ID, &data, &status, &b.DataQualityScore, &lastScraped, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	id, score := b.ID, b.DataQualityScore
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, eris.Wrap(err, "unmarshal business")
	}
	b.ID, b.DataQualityScore = id, score
	b.VerificationStatus = model.VerificationStatus(status)

	var err error
	if b.LastScrapedAt, err = parseNullTime(lastScraped); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// prepareJob fills defaults on a new job.
func prepareJob(job *model.ScrapingJob) {
	now := time.Now().UTC()
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.JobType == "" {
		job.JobType = model.DefaultJobType
	}
	if job.MaxRetries <= 0 {
		job.MaxRetries = model.DefaultMaxRetries
	}
	if job.Status == "" {
		job.Status = model.JobPending
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = now
	}
	if job.Errors == nil {
		job.Errors = []string{}
	}
	job.CreatedAt = now
	job.UpdatedAt = now
}
