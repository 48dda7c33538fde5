package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sentinel-cli/internal/db"
	"github.com/sells-group/sentinel-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
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
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id         TEXT PRIMARY KEY,
	org_id     TEXT NOT NULL,
	window     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'collecting',
	summary    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS seen_markers (
	org_id        TEXT NOT NULL,
	url           TEXT NOT NULL,
	first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (org_id, url)
);

CREATE TABLE IF NOT EXISTS findings (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	org_id     TEXT NOT NULL,
	analyzer   TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_org ON pipeline_runs(org_id);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS idx_seen_markers_first_seen ON seen_markers(first_seen_at);
CREATE INDEX IF NOT EXISTS idx_findings_org ON findings(org_id);
CREATE INDEX IF NOT EXISTS idx_findings_run ON findings(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, orgID string, window model.TimeWindow) (*model.PipelineRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, org_id, window, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, orgID, string(window), string(model.RunStatusCollecting), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.PipelineRun{
		ID:        id,
		OrgID:     orgID,
		Window:    window,
		Status:    model.RunStatusCollecting,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.PipelineRunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, summary = $2, updated_at = $3 WHERE id = $4`,
		string(status), summaryJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, org_id, window, status, summary, created_at, updated_at FROM pipeline_runs WHERE id = $1`,
		runID,
	)
	return scanPGRun(row)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	query := `SELECT id, org_id, window, status, summary, created_at, updated_at FROM pipeline_runs WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.OrgID != "" {
		query += ` AND org_id = ` + arg(filter.OrgID)
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ` + arg(filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		r, err := scanPGRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) HasSeen(ctx context.Context, orgID string, urls []string, lookback time.Duration) (map[string]bool, error) {
	seen := make(map[string]bool, len(urls))
	if len(urls) == 0 {
		return seen, nil
	}

	cutoff := time.Now().UTC().Add(-lookback)
	rows, err := s.pool.Query(ctx,
		`SELECT url FROM seen_markers WHERE org_id = $1 AND first_seen_at > $2 AND url = ANY($3)`,
		orgID, cutoff, urls,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: has seen")
	}
	defer rows.Close()

	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, eris.Wrap(err, "postgres: scan seen url")
		}
		seen[u] = true
	}
	return seen, eris.Wrap(rows.Err(), "postgres: has seen iterate")
}

func (s *PostgresStore) MarkSeen(ctx context.Context, orgID string, markers []model.SeenMarker) error {
	if len(markers) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(markers))
	for _, m := range markers {
		at := m.FirstSeenAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		rows = append(rows, []any{orgID, m.URL, at.UTC()})
	}

	_, err := db.BulkInsertIgnore(ctx, s.pool, "seen_markers",
		[]string{"org_id", "url", "first_seen_at"},
		[]string{"org_id", "url"},
		rows,
	)
	return eris.Wrap(err, "postgres: mark seen")
}

func (s *PostgresStore) SaveFinding(ctx context.Context, f *model.Finding) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(f)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal finding")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO findings (id, run_id, org_id, analyzer, payload, created_at) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		f.ID, f.RunID, f.OrgID, f.Analyzer, payload, f.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: save finding")
}

func (s *PostgresStore) ListFindings(ctx context.Context, filter FindingFilter) ([]model.Finding, error) {
	query := `SELECT payload FROM findings WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.OrgID != "" {
		query += ` AND org_id = ` + arg(filter.OrgID)
	}
	if filter.RunID != "" {
		query += ` AND run_id = ` + arg(filter.RunID)
	}
	if filter.Analyzer != "" {
		query += ` AND analyzer = ` + arg(filter.Analyzer)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list findings")
	}
	defer rows.Close()

	var findings []model.Finding
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan finding")
		}
		var f model.Finding
		if err := json.Unmarshal(payload, &f); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal finding")
		}
		findings = append(findings, f)
	}
	return findings, eris.Wrap(rows.Err(), "postgres: list findings iterate")
}

// scanPGRun handles both pgx.Row and pgx.Rows.
func scanPGRun(row pgx.Row) (*model.PipelineRun, error) {
	var r model.PipelineRun
	var window string
	var summaryJSON []byte

	err := row.Scan(&r.ID, &r.OrgID, &window, &r.Status, &summaryJSON, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}

	r.Window = model.TimeWindow(window)
	if len(summaryJSON) > 0 {
		r.Summary = &model.PipelineRunSummary{}
		if err := json.Unmarshal(summaryJSON, r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &r, nil
}

