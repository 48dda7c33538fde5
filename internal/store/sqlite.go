package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/sentinel-cli/internal/model"
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
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id         TEXT PRIMARY KEY,
	org_id     TEXT NOT NULL,
	window     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'collecting',
	summary    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS seen_markers (
	org_id        TEXT NOT NULL,
	url           TEXT NOT NULL,
	first_seen_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (org_id, url)
);

CREATE TABLE IF NOT EXISTS findings (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	org_id     TEXT NOT NULL,
	analyzer   TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_org ON pipeline_runs(org_id);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS idx_seen_markers_first_seen ON seen_markers(first_seen_at);
CREATE INDEX IF NOT EXISTS idx_findings_org ON findings(org_id);
CREATE INDEX IF NOT EXISTS idx_findings_run ON findings(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, orgID string, window model.TimeWindow) (*model.PipelineRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, org_id, window, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, orgID, string(window), string(model.RunStatusCollecting), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.PipelineRunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, summary = ?, updated_at = ? WHERE id = ?`,
		string(status), string(summaryJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, org_id, window, status, summary, created_at, updated_at FROM pipeline_runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	query := `SELECT id, org_id, window, status, summary, created_at, updated_at FROM pipeline_runs WHERE 1=1`
	var args []any

	if filter.OrgID != "" {
		query += ` AND org_id = ?`
		args = append(args, filter.OrgID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) HasSeen(ctx context.Context, orgID string, urls []string, lookback time.Duration) (map[string]bool, error) {
	seen := make(map[string]bool, len(urls))
	if len(urls) == 0 {
		return seen, nil
	}

	cutoff := time.Now().UTC().Add(-lookback)
	placeholders := strings.Repeat("?,", len(urls))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(urls)+2)
	args = append(args, orgID, cutoff)
	for _, u := range urls {
		args = append(args, u)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT url FROM seen_markers WHERE org_id = ? AND first_seen_at > ? AND url IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: has seen")
	}
	defer rows.Close()

	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan seen url")
		}
		seen[u] = true
	}
	return seen, eris.Wrap(rows.Err(), "sqlite: has seen iterate")
}

func (s *SQLiteStore) MarkSeen(ctx context.Context, orgID string, markers []model.SeenMarker) error {
	if len(markers) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin mark seen")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO seen_markers (org_id, url, first_seen_at) VALUES (?, ?, ?)
		 ON CONFLICT(org_id, url) DO NOTHING`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare mark seen")
	}
	defer stmt.Close()

	for _, m := range markers {
		at := m.FirstSeenAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, orgID, m.URL, at.UTC()); err != nil {
			return eris.Wrapf(err, "sqlite: mark seen %s", m.URL)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit mark seen")
}

func (s *SQLiteStore) SaveFinding(ctx context.Context, f *model.Finding) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(f)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal finding")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO findings (id, run_id, org_id, analyzer, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		f.ID, f.RunID, f.OrgID, f.Analyzer, string(payload), f.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: save finding")
}

func (s *SQLiteStore) ListFindings(ctx context.Context, filter FindingFilter) ([]model.Finding, error) {
	query := `SELECT payload FROM findings WHERE 1=1`
	var args []any

	if filter.OrgID != "" {
		query += ` AND org_id = ?`
		args = append(args, filter.OrgID)
	}
	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.Analyzer != "" {
		query += ` AND analyzer = ?`
		args = append(args, filter.Analyzer)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list findings")
	}
	defer rows.Close()

	var findings []model.Finding
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan finding")
		}
		var f model.Finding
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal finding")
		}
		findings = append(findings, f)
	}
	return findings, eris.Wrap(rows.Err(), "sqlite: list findings iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.PipelineRun, error) {
	var r model.PipelineRun
	var window string
	var summaryJSON sql.NullString

	err := row.Scan(&r.ID, &r.OrgID, &window, &r.Status, &summaryJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.Window = model.TimeWindow(window)
	if summaryJSON.Valid && summaryJSON.String != "" {
		r.Summary = &model.PipelineRunSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &r, nil
}
