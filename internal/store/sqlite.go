package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/elite-command/refinery/internal/correction"
	"github.com/elite-command/refinery/internal/model"
	"github.com/elite-command/refinery/internal/pipeline"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id             TEXT PRIMARY KEY,
	business_model TEXT NOT NULL DEFAULT '',
	payload        TEXT NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS templates (
	id             TEXT PRIMARY KEY,
	business_model TEXT NOT NULL,
	active         INTEGER NOT NULL DEFAULT 1,
	payload        TEXT NOT NULL,
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS template_assignments (
	id          TEXT PRIMARY KEY,
	company_id  TEXT NOT NULL,
	active      INTEGER NOT NULL DEFAULT 1,
	payload     TEXT NOT NULL,
	assigned_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS entries (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	source_id  TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'pending',
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS records (
	id                TEXT PRIMARY KEY,
	entry_id          TEXT NOT NULL,
	company_id        TEXT NOT NULL,
	canonical_code    TEXT NOT NULL,
	method            TEXT NOT NULL,
	lineage_id        TEXT NOT NULL DEFAULT '',
	validation_status TEXT NOT NULL DEFAULT 'pending',
	human_verified    INTEGER NOT NULL DEFAULT 0,
	confidence        REAL NOT NULL DEFAULT 0,
	payload           TEXT NOT NULL,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS scores (
	id         TEXT PRIMARY KEY,
	target_id  TEXT NOT NULL,
	company_id TEXT NOT NULL,
	overall    REAL NOT NULL,
	level      TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS lineage_events (
	id         TEXT PRIMARY KEY,
	parent_id  TEXT NOT NULL DEFAULT '',
	company_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS lineage_graphs (
	cache_key  TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	expires_at DATETIME
);

CREATE TABLE IF NOT EXISTS thresholds (
	id             TEXT PRIMARY KEY,
	company_id     TEXT NOT NULL DEFAULT '',
	business_model TEXT NOT NULL DEFAULT '',
	active         INTEGER NOT NULL DEFAULT 1,
	payload        TEXT NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS alerts (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'active',
	level      TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS corrections (
	id              TEXT PRIMARY KEY,
	target_id       TEXT NOT NULL,
	company_id      TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'pending',
	business_impact TEXT NOT NULL DEFAULT 'low',
	payload         TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS workflows (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL DEFAULT '',
	active     INTEGER NOT NULL DEFAULT 1,
	priority   INTEGER NOT NULL DEFAULT 0,
	payload    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS annotations (
	id         TEXT PRIMARY KEY,
	target_id  TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_templates_model ON templates(business_model, active);
CREATE INDEX IF NOT EXISTS idx_assignments_company ON template_assignments(company_id, active);
CREATE INDEX IF NOT EXISTS idx_entries_status ON entries(status);
CREATE INDEX IF NOT EXISTS idx_entries_company_source ON entries(company_id, source_id);
CREATE INDEX IF NOT EXISTS idx_records_entry ON records(entry_id);
CREATE INDEX IF NOT EXISTS idx_records_company_code ON records(company_id, canonical_code);
CREATE INDEX IF NOT EXISTS idx_records_company_method ON records(company_id, method);
CREATE INDEX IF NOT EXISTS idx_records_lineage ON records(lineage_id);
CREATE INDEX IF NOT EXISTS idx_scores_target ON scores(target_id, created_at);
CREATE INDEX IF NOT EXISTS idx_events_parent ON lineage_events(parent_id);
CREATE INDEX IF NOT EXISTS idx_thresholds_company ON thresholds(company_id, active);
CREATE INDEX IF NOT EXISTS idx_alerts_company_status ON alerts(company_id, status);
CREATE INDEX IF NOT EXISTS idx_corrections_target ON corrections(target_id);
CREATE INDEX IF NOT EXISTS idx_corrections_company_status ON corrections(company_id, status);
CREATE INDEX IF NOT EXISTS idx_workflows_company ON workflows(company_id, active);
CREATE INDEX IF NOT EXISTS idx_annotations_target ON annotations(target_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Companies

func (s *SQLiteStore) SaveCompany(ctx context.Context, c *model.Company) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal company")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO companies (id, business_model, payload, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET business_model = excluded.business_model, payload = excluded.payload`,
		c.ID, string(c.BusinessModel), string(payload), c.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: save company")
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	return scanPayload[model.Company](s.db.QueryRowContext(ctx,
		`SELECT payload FROM companies WHERE id = ?`, id), "sqlite: get company")
}

func (s *SQLiteStore) ListCompanies(ctx context.Context) ([]model.Company, error) {
	return queryPayloads[model.Company](ctx, s.db,
		`SELECT payload FROM companies ORDER BY created_at`, nil, "sqlite: list companies")
}

// Templates and assignments

func (s *SQLiteStore) SaveTemplate(ctx context.Context, t *model.Template) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	payload, err := json.Marshal(t)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal template")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO templates (id, business_model, active, payload, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET business_model = excluded.business_model,
		   active = excluded.active, payload = excluded.payload, updated_at = excluded.updated_at`,
		t.ID, string(t.BusinessModel), t.Active, string(payload), t.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: save template")
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	return scanPayload[model.Template](s.db.QueryRowContext(ctx,
		`SELECT payload FROM templates WHERE id = ?`, id), "sqlite: get template")
}

func (s *SQLiteStore) ListTemplates(ctx context.Context) ([]model.Template, error) {
	return queryPayloads[model.Template](ctx, s.db,
		`SELECT payload FROM templates ORDER BY business_model, updated_at DESC`, nil,
		"sqlite: list templates")
}

func (s *SQLiteStore) FindActiveTemplateByModel(ctx context.Context, bm model.BusinessModelType) (*model.Template, error) {
	return scanPayload[model.Template](s.db.QueryRowContext(ctx,
		`SELECT payload FROM templates WHERE business_model = ? AND active = 1
		 ORDER BY updated_at DESC LIMIT 1`,
		string(bm)), "sqlite: find template by model")
}

func (s *SQLiteStore) SaveAssignment(ctx context.Context, a *model.TemplateAssignment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal assignment")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin assignment tx")
	}
	defer tx.Rollback()

	// A company holds at most one active assignment.
	if a.Active {
		if _, err := tx.ExecContext(ctx,
			`UPDATE template_assignments
			 SET active = 0, payload = json_set(payload, '$.active', json('false'))
			 WHERE company_id = ? AND active = 1`,
			a.CompanyID,
		); err != nil {
			return eris.Wrap(err, "sqlite: deactivate assignments")
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO template_assignments (id, company_id, active, payload, assigned_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET active = excluded.active, payload = excluded.payload`,
		a.ID, a.CompanyID, a.Active, string(payload), a.AssignedAt,
	); err != nil {
		return eris.Wrap(err, "sqlite: save assignment")
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit assignment")
}

func (s *SQLiteStore) GetActiveAssignment(ctx context.Context, companyID string) (*model.TemplateAssignment, error) {
	return scanPayload[model.TemplateAssignment](s.db.QueryRowContext(ctx,
		`SELECT payload FROM template_assignments WHERE company_id = ? AND active = 1
		 ORDER BY assigned_at DESC LIMIT 1`,
		companyID), "sqlite: get active assignment")
}

// Raw entries

func (s *SQLiteStore) SaveEntry(ctx context.Context, e *model.RawEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal entry")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries (id, company_id, source_id, status, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.CompanyID, e.SourceID, string(e.Status), string(payload), e.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: save entry")
}

func (s *SQLiteStore) GetEntry(ctx context.Context, id string) (*model.RawEntry, error) {
	return scanPayload[model.RawEntry](s.db.QueryRowContext(ctx,
		`SELECT payload FROM entries WHERE id = ?`, id), "sqlite: get entry")
}

func (s *SQLiteStore) UpdateEntry(ctx context.Context, e *model.RawEntry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal entry")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE entries SET status = ?, payload = ? WHERE id = ?`,
		string(e.Status), string(payload), e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update entry %s", e.ID)
	}
	return checkRowsAffected(res, "entry", e.ID)
}

func (s *SQLiteStore) ListPendingEntries(ctx context.Context, limit int) ([]model.RawEntry, error) {
	query := `SELECT payload FROM entries WHERE status = 'pending' ORDER BY created_at`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return queryPayloads[model.RawEntry](ctx, s.db, query, args, "sqlite: list pending entries")
}

// Records

func (s *SQLiteStore) SaveRecord(ctx context.Context, rec *model.Record) error {
	return s.upsertRecord(ctx, s.db.ExecContext, rec)
}

type execFn func(ctx context.Context, query string, args ...any) (sql.Result, error)

func (s *SQLiteStore) upsertRecord(ctx context.Context, exec execFn, rec *model.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	payload, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal record")
	}
	_, err = exec(ctx,
		`INSERT INTO records (id, entry_id, company_id, canonical_code, method, lineage_id,
		   validation_status, human_verified, confidence, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET canonical_code = excluded.canonical_code,
		   method = excluded.method, lineage_id = excluded.lineage_id,
		   validation_status = excluded.validation_status, human_verified = excluded.human_verified,
		   confidence = excluded.confidence, payload = excluded.payload`,
		rec.ID, rec.EntryID, rec.CompanyID, rec.CanonicalCode, rec.Method, rec.LineageID,
		string(rec.ValidationStatus), rec.HumanVerified, rec.Confidence, string(payload), rec.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: save record")
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	return scanPayload[model.Record](s.db.QueryRowContext(ctx,
		`SELECT payload FROM records WHERE id = ?`, id), "sqlite: get record")
}

func (s *SQLiteStore) UpdateRecord(ctx context.Context, rec *model.Record) error {
	rec.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal record")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET canonical_code = ?, method = ?, lineage_id = ?, validation_status = ?,
		   human_verified = ?, confidence = ?, payload = ? WHERE id = ?`,
		rec.CanonicalCode, rec.Method, rec.LineageID, string(rec.ValidationStatus),
		rec.HumanVerified, rec.Confidence, string(payload), rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update record %s", rec.ID)
	}
	return checkRowsAffected(res, "record", rec.ID)
}

func (s *SQLiteStore) ListRecordsByEntry(ctx context.Context, entryID string) ([]model.Record, error) {
	return queryPayloads[model.Record](ctx, s.db,
		`SELECT payload FROM records WHERE entry_id = ? ORDER BY created_at`,
		[]any{entryID}, "sqlite: list records by entry")
}

// downstreamCountSQL walks lineage descendants of the record's own event and
// counts every other record hanging off that subgraph.
const downstreamCountSQL = `
WITH RECURSIVE down(id) AS (
	SELECT lineage_id FROM records WHERE id = ?
	UNION
	SELECT e.id FROM lineage_events e JOIN down d ON e.parent_id = d.id
)
SELECT COUNT(*) FROM records r
WHERE r.lineage_id IN (SELECT id FROM down WHERE id != '') AND r.id != ?`

func (s *SQLiteStore) CountDownstreamRecords(ctx context.Context, targetID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, downstreamCountSQL, targetID, targetID).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: count downstream records")
	}
	return n, nil
}

// Confidence scores

func (s *SQLiteStore) SaveScore(ctx context.Context, sc *model.Score) error {
	return s.insertScore(ctx, s.db.ExecContext, sc)
}

func (s *SQLiteStore) insertScore(ctx context.Context, exec execFn, sc *model.Score) error {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(sc)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal score")
	}
	_, err = exec(ctx,
		`INSERT INTO scores (id, target_id, company_id, overall, level, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.TargetID, sc.CompanyID, sc.Overall, string(sc.Level), string(payload), sc.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: save score")
}

func (s *SQLiteStore) GetScore(ctx context.Context, id string) (*model.Score, error) {
	return scanPayload[model.Score](s.db.QueryRowContext(ctx,
		`SELECT payload FROM scores WHERE id = ?`, id), "sqlite: get score")
}

func (s *SQLiteStore) LatestScoreForTarget(ctx context.Context, targetID string) (*model.Score, error) {
	return scanPayload[model.Score](s.db.QueryRowContext(ctx,
		`SELECT payload FROM scores WHERE target_id = ? ORDER BY created_at DESC LIMIT 1`,
		targetID), "sqlite: latest score")
}

// Lineage

func (s *SQLiteStore) AppendEvent(ctx context.Context, e *model.Event) error {
	return s.insertEvent(ctx, s.db.ExecContext, e)
}

func (s *SQLiteStore) insertEvent(ctx context.Context, exec execFn, e *model.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal event")
	}
	// Events are append-only: no upsert, a duplicate id is an error.
	_, err = exec(ctx,
		`INSERT INTO lineage_events (id, parent_id, company_id, event_type, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.ParentID, e.CompanyID, string(e.Type), string(payload), e.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: append event")
}

func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return scanPayload[model.Event](s.db.QueryRowContext(ctx,
		`SELECT payload FROM lineage_events WHERE id = ?`, id), "sqlite: get event")
}

func (s *SQLiteStore) ListChildEvents(ctx context.Context, parentID string) ([]model.Event, error) {
	return queryPayloads[model.Event](ctx, s.db,
		`SELECT payload FROM lineage_events WHERE parent_id = ? ORDER BY created_at`,
		[]any{parentID}, "sqlite: list child events")
}

func (s *SQLiteStore) GetCachedGraph(ctx context.Context, rootID string, direction model.GraphDirection, depth int) (*model.Graph, error) {
	return scanPayload[model.Graph](s.db.QueryRowContext(ctx,
		`SELECT payload FROM lineage_graphs
		 WHERE cache_key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		graphCacheKey(rootID, direction, depth), time.Now().UTC()), "sqlite: get cached graph")
}

func (s *SQLiteStore) SaveCachedGraph(ctx context.Context, g *model.Graph) error {
	payload, err := json.Marshal(g)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal graph")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lineage_graphs (cache_key, payload, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT (cache_key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
		graphCacheKey(g.RootID, g.Direction, g.Depth), string(payload), g.ExpiresAt,
	)
	return eris.Wrap(err, "sqlite: save cached graph")
}

// Thresholds and alerts

func (s *SQLiteStore) SaveThreshold(ctx context.Context, th *model.Threshold) error {
	if th.ID == "" {
		th.ID = uuid.New().String()
	}
	if th.CreatedAt.IsZero() {
		th.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(th)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal threshold")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO thresholds (id, company_id, business_model, active, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET company_id = excluded.company_id,
		   business_model = excluded.business_model, active = excluded.active, payload = excluded.payload`,
		th.ID, th.CompanyID, string(th.BusinessModel), th.Active, string(payload), th.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: save threshold")
}

func (s *SQLiteStore) GetThresholdForCompany(ctx context.Context, companyID string) (*model.Threshold, error) {
	return scanPayload[model.Threshold](s.db.QueryRowContext(ctx,
		`SELECT payload FROM thresholds WHERE active = 1 AND (company_id = ? OR company_id = '')
		 ORDER BY CASE WHEN company_id = ? THEN 0 ELSE 1 END, created_at DESC LIMIT 1`,
		companyID, companyID), "sqlite: threshold for company")
}

func (s *SQLiteStore) ListApplicableThresholds(ctx context.Context, companyID string) ([]model.Threshold, error) {
	return queryPayloads[model.Threshold](ctx, s.db,
		`SELECT payload FROM thresholds WHERE active = 1 AND (company_id = ? OR company_id = '')
		 ORDER BY CASE WHEN company_id = ? THEN 0 ELSE 1 END, created_at DESC`,
		[]any{companyID, companyID}, "sqlite: list thresholds")
}

func (s *SQLiteStore) SaveAlert(ctx context.Context, a *model.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal alert")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, company_id, status, level, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.CompanyID, string(a.Status), string(a.Level), string(payload), a.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: save alert")
}

func (s *SQLiteStore) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	return scanPayload[model.Alert](s.db.QueryRowContext(ctx,
		`SELECT payload FROM alerts WHERE id = ?`, id), "sqlite: get alert")
}

func (s *SQLiteStore) UpdateAlert(ctx context.Context, a *model.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal alert")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET status = ?, payload = ? WHERE id = ?`,
		string(a.Status), string(payload), a.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update alert %s", a.ID)
	}
	return checkRowsAffected(res, "alert", a.ID)
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, f AlertFilter) ([]model.Alert, error) {
	query := `SELECT payload FROM alerts WHERE 1=1`
	var args []any
	if f.CompanyID != "" {
		query += ` AND company_id = ?`
		args = append(args, f.CompanyID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.Level != "" {
		query += ` AND level = ?`
		args = append(args, string(f.Level))
	}
	query += ` ORDER BY created_at DESC`
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	return queryPayloads[model.Alert](ctx, s.db, query, args, "sqlite: list alerts")
}

// Corrections, workflows, annotations

func (s *SQLiteStore) SaveCorrection(ctx context.Context, c *model.Correction) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal correction")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO corrections (id, target_id, company_id, status, business_impact, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TargetID, c.CompanyID, string(c.Status), string(c.BusinessImpact), string(payload), c.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: save correction")
}

func (s *SQLiteStore) GetCorrection(ctx context.Context, id string) (*model.Correction, error) {
	return scanPayload[model.Correction](s.db.QueryRowContext(ctx,
		`SELECT payload FROM corrections WHERE id = ?`, id), "sqlite: get correction")
}

func (s *SQLiteStore) UpdateCorrection(ctx context.Context, c *model.Correction) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal correction")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE corrections SET status = ?, business_impact = ?, payload = ? WHERE id = ?`,
		string(c.Status), string(c.BusinessImpact), string(payload), c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update correction %s", c.ID)
	}
	return checkRowsAffected(res, "correction", c.ID)
}

func (s *SQLiteStore) ListCorrections(ctx context.Context, f correction.Filter) ([]model.Correction, error) {
	query := `SELECT payload FROM corrections WHERE 1=1`
	var args []any
	if f.CompanyID != "" {
		query += ` AND company_id = ?`
		args = append(args, f.CompanyID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.Impact != "" {
		query += ` AND business_impact = ?`
		args = append(args, string(f.Impact))
	}
	query += ` ORDER BY created_at`
	return queryPayloads[model.Correction](ctx, s.db, query, args, "sqlite: list corrections")
}

func (s *SQLiteStore) ListCorrectionsSince(ctx context.Context, companyID string, since time.Time) ([]model.Correction, error) {
	query := `SELECT payload FROM corrections WHERE created_at >= ?`
	args := []any{since}
	if companyID != "" {
		query += ` AND company_id = ?`
		args = append(args, companyID)
	}
	query += ` ORDER BY created_at`
	return queryPayloads[model.Correction](ctx, s.db, query, args, "sqlite: list corrections since")
}

func (s *SQLiteStore) SaveWorkflow(ctx context.Context, w *model.Workflow) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(w)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal workflow")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, company_id, active, priority, payload) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET company_id = excluded.company_id, active = excluded.active,
		   priority = excluded.priority, payload = excluded.payload`,
		w.ID, w.CompanyID, w.Active, w.Priority, string(payload),
	)
	return eris.Wrap(err, "sqlite: save workflow")
}

func (s *SQLiteStore) ListWorkflows(ctx context.Context, companyID string) ([]model.Workflow, error) {
	return queryPayloads[model.Workflow](ctx, s.db,
		`SELECT payload FROM workflows WHERE company_id = ? OR company_id = '' ORDER BY priority`,
		[]any{companyID}, "sqlite: list workflows")
}

func (s *SQLiteStore) SaveAnnotation(ctx context.Context, a *model.Annotation) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal annotation")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO annotations (id, target_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		a.ID, a.TargetID, string(payload), a.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: save annotation")
}

func (s *SQLiteStore) ListAnnotations(ctx context.Context, targetID string) ([]model.Annotation, error) {
	return queryPayloads[model.Annotation](ctx, s.db,
		`SELECT payload FROM annotations WHERE target_id = ? ORDER BY created_at`,
		[]any{targetID}, "sqlite: list annotations")
}

// CommitEntryResult lands one processed entry atomically: the entry update,
// its records, their scores, and the lineage events all commit together.
func (s *SQLiteStore) CommitEntryResult(ctx context.Context, res *pipeline.EntryResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin commit tx")
	}
	defer tx.Rollback()

	entryPayload, err := json.Marshal(res.Entry)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal entry")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries (id, company_id, source_id, status, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET status = excluded.status, payload = excluded.payload`,
		res.Entry.ID, res.Entry.CompanyID, res.Entry.SourceID, string(res.Entry.Status),
		string(entryPayload), res.Entry.CreatedAt,
	); err != nil {
		return eris.Wrap(err, "sqlite: commit entry")
	}

	for i := range res.Events {
		if err := s.insertEvent(ctx, tx.ExecContext, &res.Events[i]); err != nil {
			return err
		}
	}
	for i := range res.Records {
		if err := s.upsertRecord(ctx, tx.ExecContext, &res.Records[i]); err != nil {
			return err
		}
	}
	for i := range res.Scores {
		if err := s.insertScore(ctx, tx.ExecContext, &res.Scores[i]); err != nil {
			return err
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit entry result")
}

// Evidence queries

func (s *SQLiteStore) ValidationConsensus(ctx context.Context, targetID string) (float64, bool, error) {
	rec, err := s.GetRecord(ctx, targetID)
	if err != nil || rec == nil {
		return 0, false, err
	}
	var total, passed int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN validation_status = 'passed' THEN 1 ELSE 0 END), 0)
		 FROM records WHERE company_id = ? AND canonical_code = ? AND id != ?`,
		rec.CompanyID, rec.CanonicalCode, targetID,
	).Scan(&total, &passed)
	if err != nil {
		return 0, false, eris.Wrap(err, "sqlite: validation consensus")
	}
	if total == 0 {
		return 0, false, nil
	}
	return float64(passed) / float64(total), true, nil
}

func (s *SQLiteStore) HistoricalPerformance(ctx context.Context, companyID, method string) (float64, bool, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT AVG(confidence) FROM records
		 WHERE company_id = ? AND method = ? AND validation_status = 'passed'`,
		companyID, method,
	).Scan(&avg)
	if err != nil {
		return 0, false, eris.Wrap(err, "sqlite: historical performance")
	}
	if !avg.Valid {
		return 0, false, nil
	}
	return avg.Float64, true, nil
}

func (s *SQLiteStore) CrossValidation(ctx context.Context, targetID string) (float64, bool, error) {
	rec, err := s.GetRecord(ctx, targetID)
	if err != nil || rec == nil {
		return 0, false, err
	}
	var sources, total, passed int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT entry_id), COUNT(*),
		   COALESCE(SUM(CASE WHEN validation_status = 'passed' THEN 1 ELSE 0 END), 0)
		 FROM records WHERE company_id = ? AND canonical_code = ?`,
		rec.CompanyID, rec.CanonicalCode,
	).Scan(&sources, &total, &passed)
	if err != nil {
		return 0, false, eris.Wrap(err, "sqlite: cross validation")
	}
	// One source cannot corroborate itself.
	if sources < 2 {
		return 0, false, nil
	}
	return float64(passed) / float64(total), true, nil
}

func (s *SQLiteStore) SourceErrorRate(ctx context.Context, companyID, source string) (float64, bool, error) {
	var total, errored int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0)
		 FROM entries WHERE company_id = ? AND source_id = ?`,
		companyID, source,
	).Scan(&total, &errored)
	if err != nil {
		return 0, false, eris.Wrap(err, "sqlite: source error rate")
	}
	if total == 0 {
		return 0, false, nil
	}
	return float64(errored) / float64(total), true, nil
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

func scanPayload[T any](row *sql.Row, msg string) (*T, error) {
	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, msg)
	}
	var v T
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, eris.Wrap(err, msg+" unmarshal")
	}
	return &v, nil
}

func queryPayloads[T any](ctx context.Context, db *sql.DB, query string, args []any, msg string) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, msg)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, msg+" scan")
		}
		var v T
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, eris.Wrap(err, msg+" unmarshal")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), msg+" iterate")
}
