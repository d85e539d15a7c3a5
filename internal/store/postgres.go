package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/elite-command/refinery/internal/correction"
	"github.com/elite-command/refinery/internal/db"
	"github.com/elite-command/refinery/internal/model"
	"github.com/elite-command/refinery/internal/pipeline"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot pipeline path.
var preparedStatements = map[string]string{
	"get_entry":     `SELECT payload FROM entries WHERE id = $1`,
	"update_entry":  `UPDATE entries SET status = $1, payload = $2 WHERE id = $3`,
	"get_record":    `SELECT payload FROM records WHERE id = $1`,
	"get_event":     `SELECT payload FROM lineage_events WHERE id = $1`,
	"insert_score":  `INSERT INTO scores (id, target_id, company_id, overall, level, payload, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"list_children": `SELECT payload FROM lineage_events WHERE parent_id = $1 ORDER BY created_at`,
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id             TEXT PRIMARY KEY,
	business_model TEXT NOT NULL DEFAULT '',
	payload        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS templates (
	id             TEXT PRIMARY KEY,
	business_model TEXT NOT NULL,
	active         BOOLEAN NOT NULL DEFAULT true,
	payload        JSONB NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS template_assignments (
	id          TEXT PRIMARY KEY,
	company_id  TEXT NOT NULL,
	active      BOOLEAN NOT NULL DEFAULT true,
	payload     JSONB NOT NULL,
	assigned_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS entries (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	source_id  TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'pending',
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS records (
	id                TEXT PRIMARY KEY,
	entry_id          TEXT NOT NULL,
	company_id        TEXT NOT NULL,
	canonical_code    TEXT NOT NULL,
	method            TEXT NOT NULL,
	lineage_id        TEXT NOT NULL DEFAULT '',
	validation_status TEXT NOT NULL DEFAULT 'pending',
	human_verified    BOOLEAN NOT NULL DEFAULT false,
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0,
	payload           JSONB NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scores (
	id         TEXT PRIMARY KEY,
	target_id  TEXT NOT NULL,
	company_id TEXT NOT NULL,
	overall    DOUBLE PRECISION NOT NULL,
	level      TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lineage_events (
	id         TEXT PRIMARY KEY,
	parent_id  TEXT NOT NULL DEFAULT '',
	company_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lineage_graphs (
	cache_key  TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	expires_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS thresholds (
	id             TEXT PRIMARY KEY,
	company_id     TEXT NOT NULL DEFAULT '',
	business_model TEXT NOT NULL DEFAULT '',
	active         BOOLEAN NOT NULL DEFAULT true,
	payload        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS alerts (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'active',
	level      TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS corrections (
	id              TEXT PRIMARY KEY,
	target_id       TEXT NOT NULL,
	company_id      TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'pending',
	business_impact TEXT NOT NULL DEFAULT 'low',
	payload         JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workflows (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL DEFAULT '',
	active     BOOLEAN NOT NULL DEFAULT true,
	priority   INTEGER NOT NULL DEFAULT 0,
	payload    JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS annotations (
	id         TEXT PRIMARY KEY,
	target_id  TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_templates_model ON templates(business_model, active);
CREATE INDEX IF NOT EXISTS idx_assignments_company ON template_assignments(company_id, active);
CREATE INDEX IF NOT EXISTS idx_entries_status ON entries(status);
CREATE INDEX IF NOT EXISTS idx_entries_company_source ON entries(company_id, source_id);
CREATE INDEX IF NOT EXISTS idx_records_entry ON records(entry_id);
CREATE INDEX IF NOT EXISTS idx_records_company_code ON records(company_id, canonical_code);
CREATE INDEX IF NOT EXISTS idx_records_company_method ON records(company_id, method);
CREATE INDEX IF NOT EXISTS idx_records_lineage ON records(lineage_id);
CREATE INDEX IF NOT EXISTS idx_scores_target ON scores(target_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_parent ON lineage_events(parent_id);
CREATE INDEX IF NOT EXISTS idx_thresholds_company ON thresholds(company_id, active);
CREATE INDEX IF NOT EXISTS idx_alerts_company_status ON alerts(company_id, status);
CREATE INDEX IF NOT EXISTS idx_corrections_target ON corrections(target_id);
CREATE INDEX IF NOT EXISTS idx_corrections_company_status ON corrections(company_id, status);
CREATE INDEX IF NOT EXISTS idx_workflows_company ON workflows(company_id, active);
CREATE INDEX IF NOT EXISTS idx_annotations_target ON annotations(target_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

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

// Companies

func (s *PostgresStore) SaveCompany(ctx context.Context, c *model.Company) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal company")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO companies (id, business_model, payload, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET business_model = $2, payload = $3`,
		c.ID, string(c.BusinessModel), payload, c.CreatedAt,
	)
	return eris.Wrap(err, "postgres: save company")
}

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	return pgScanOne[model.Company](s.pool.QueryRow(ctx,
		`SELECT payload FROM companies WHERE id = $1`, id), "postgres: get company")
}

func (s *PostgresStore) ListCompanies(ctx context.Context) ([]model.Company, error) {
	return pgQueryMany[model.Company](ctx, s.pool,
		`SELECT payload FROM companies ORDER BY created_at`, nil, "postgres: list companies")
}

// Templates and assignments

func (s *PostgresStore) SaveTemplate(ctx context.Context, t *model.Template) error {
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
		return eris.Wrap(err, "postgres: marshal template")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO templates (id, business_model, active, payload, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET business_model = $2, active = $3, payload = $4, updated_at = $5`,
		t.ID, string(t.BusinessModel), t.Active, payload, t.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: save template")
}

func (s *PostgresStore) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	return pgScanOne[model.Template](s.pool.QueryRow(ctx,
		`SELECT payload FROM templates WHERE id = $1`, id), "postgres: get template")
}

func (s *PostgresStore) ListTemplates(ctx context.Context) ([]model.Template, error) {
	return pgQueryMany[model.Template](ctx, s.pool,
		`SELECT payload FROM templates ORDER BY business_model, updated_at DESC`, nil,
		"postgres: list templates")
}

func (s *PostgresStore) FindActiveTemplateByModel(ctx context.Context, bm model.BusinessModelType) (*model.Template, error) {
	return pgScanOne[model.Template](s.pool.QueryRow(ctx,
		`SELECT payload FROM templates WHERE business_model = $1 AND active
		 ORDER BY updated_at DESC LIMIT 1`,
		string(bm)), "postgres: find template by model")
}

func (s *PostgresStore) SaveAssignment(ctx context.Context, a *model.TemplateAssignment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal assignment")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin assignment tx")
	}
	defer tx.Rollback(ctx)

	// A company holds at most one active assignment.
	if a.Active {
		if _, err := tx.Exec(ctx,
			`UPDATE template_assignments
			 SET active = false, payload = jsonb_set(payload, '{active}', 'false')
			 WHERE company_id = $1 AND active`,
			a.CompanyID,
		); err != nil {
			return eris.Wrap(err, "postgres: deactivate assignments")
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO template_assignments (id, company_id, active, payload, assigned_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET active = $3, payload = $4`,
		a.ID, a.CompanyID, a.Active, payload, a.AssignedAt,
	); err != nil {
		return eris.Wrap(err, "postgres: save assignment")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit assignment")
}

func (s *PostgresStore) GetActiveAssignment(ctx context.Context, companyID string) (*model.TemplateAssignment, error) {
	return pgScanOne[model.TemplateAssignment](s.pool.QueryRow(ctx,
		`SELECT payload FROM template_assignments WHERE company_id = $1 AND active
		 ORDER BY assigned_at DESC LIMIT 1`,
		companyID), "postgres: get active assignment")
}

// Raw entries

func (s *PostgresStore) SaveEntry(ctx context.Context, e *model.RawEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal entry")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO entries (id, company_id, source_id, status, payload, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.CompanyID, e.SourceID, string(e.Status), payload, e.CreatedAt,
	)
	return eris.Wrap(err, "postgres: save entry")
}

// SaveEntries bulk-inserts a batch of entries with the COPY protocol.
func (s *PostgresStore) SaveEntries(ctx context.Context, entries []model.RawEntry) (int64, error) {
	rows := make([][]any, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		payload, err := json.Marshal(e)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal entry")
		}
		rows = append(rows, []any{e.ID, e.CompanyID, e.SourceID, string(e.Status), payload, e.CreatedAt})
	}
	return db.CopyFrom(ctx, s.pool, "entries",
		[]string{"id", "company_id", "source_id", "status", "payload", "created_at"}, rows)
}

func (s *PostgresStore) GetEntry(ctx context.Context, id string) (*model.RawEntry, error) {
	return pgScanOne[model.RawEntry](s.pool.QueryRow(ctx,
		`SELECT payload FROM entries WHERE id = $1`, id), "postgres: get entry")
}

func (s *PostgresStore) UpdateEntry(ctx context.Context, e *model.RawEntry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal entry")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE entries SET status = $1, payload = $2 WHERE id = $3`,
		string(e.Status), payload, e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update entry %s", e.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("entry not found: %s", e.ID)
	}
	return nil
}

func (s *PostgresStore) ListPendingEntries(ctx context.Context, limit int) ([]model.RawEntry, error) {
	query := `SELECT payload FROM entries WHERE status = 'pending' ORDER BY created_at`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	return pgQueryMany[model.RawEntry](ctx, s.pool, query, args, "postgres: list pending entries")
}

// Records

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) SaveRecord(ctx context.Context, rec *model.Record) error {
	return pgUpsertRecord(ctx, s.pool, rec)
}

func pgUpsertRecord(ctx context.Context, exec pgExecer, rec *model.Record) error {
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
		return eris.Wrap(err, "postgres: marshal record")
	}
	_, err = exec.Exec(ctx,
		`INSERT INTO records (id, entry_id, company_id, canonical_code, method, lineage_id,
		   validation_status, human_verified, confidence, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET canonical_code = $4, method = $5, lineage_id = $6,
		   validation_status = $7, human_verified = $8, confidence = $9, payload = $10`,
		rec.ID, rec.EntryID, rec.CompanyID, rec.CanonicalCode, rec.Method, rec.LineageID,
		string(rec.ValidationStatus), rec.HumanVerified, rec.Confidence, payload, rec.CreatedAt,
	)
	return eris.Wrap(err, "postgres: save record")
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	return pgScanOne[model.Record](s.pool.QueryRow(ctx,
		`SELECT payload FROM records WHERE id = $1`, id), "postgres: get record")
}

func (s *PostgresStore) UpdateRecord(ctx context.Context, rec *model.Record) error {
	rec.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal record")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE records SET canonical_code = $1, method = $2, lineage_id = $3, validation_status = $4,
		   human_verified = $5, confidence = $6, payload = $7 WHERE id = $8`,
		rec.CanonicalCode, rec.Method, rec.LineageID, string(rec.ValidationStatus),
		rec.HumanVerified, rec.Confidence, payload, rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update record %s", rec.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("record not found: %s", rec.ID)
	}
	return nil
}

func (s *PostgresStore) ListRecordsByEntry(ctx context.Context, entryID string) ([]model.Record, error) {
	return pgQueryMany[model.Record](ctx, s.pool,
		`SELECT payload FROM records WHERE entry_id = $1 ORDER BY created_at`,
		[]any{entryID}, "postgres: list records by entry")
}

const pgDownstreamCountSQL = `
WITH RECURSIVE down(id) AS (
	SELECT lineage_id FROM records WHERE id = $1
	UNION
	SELECT e.id FROM lineage_events e JOIN down d ON e.parent_id = d.id
)
SELECT COUNT(*) FROM records r
WHERE r.lineage_id IN (SELECT id FROM down WHERE id != '') AND r.id != $1`

func (s *PostgresStore) CountDownstreamRecords(ctx context.Context, targetID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, pgDownstreamCountSQL, targetID).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: count downstream records")
	}
	return n, nil
}

// Confidence scores

func (s *PostgresStore) SaveScore(ctx context.Context, sc *model.Score) error {
	return pgInsertScore(ctx, s.pool, sc)
}

func pgInsertScore(ctx context.Context, exec pgExecer, sc *model.Score) error {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(sc)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal score")
	}
	_, err = exec.Exec(ctx,
		`INSERT INTO scores (id, target_id, company_id, overall, level, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sc.ID, sc.TargetID, sc.CompanyID, sc.Overall, string(sc.Level), payload, sc.CreatedAt,
	)
	return eris.Wrap(err, "postgres: save score")
}

func (s *PostgresStore) GetScore(ctx context.Context, id string) (*model.Score, error) {
	return pgScanOne[model.Score](s.pool.QueryRow(ctx,
		`SELECT payload FROM scores WHERE id = $1`, id), "postgres: get score")
}

func (s *PostgresStore) LatestScoreForTarget(ctx context.Context, targetID string) (*model.Score, error) {
	return pgScanOne[model.Score](s.pool.QueryRow(ctx,
		`SELECT payload FROM scores WHERE target_id = $1 ORDER BY created_at DESC LIMIT 1`,
		targetID), "postgres: latest score")
}

// Lineage

func (s *PostgresStore) AppendEvent(ctx context.Context, e *model.Event) error {
	return pgInsertEvent(ctx, s.pool, e)
}

func pgInsertEvent(ctx context.Context, exec pgExecer, e *model.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal event")
	}
	// Events are append-only: no upsert, a duplicate id is an error.
	_, err = exec.Exec(ctx,
		`INSERT INTO lineage_events (id, parent_id, company_id, event_type, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.ParentID, e.CompanyID, string(e.Type), payload, e.CreatedAt,
	)
	return eris.Wrap(err, "postgres: append event")
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return pgScanOne[model.Event](s.pool.QueryRow(ctx,
		`SELECT payload FROM lineage_events WHERE id = $1`, id), "postgres: get event")
}

func (s *PostgresStore) ListChildEvents(ctx context.Context, parentID string) ([]model.Event, error) {
	return pgQueryMany[model.Event](ctx, s.pool,
		`SELECT payload FROM lineage_events WHERE parent_id = $1 ORDER BY created_at`,
		[]any{parentID}, "postgres: list child events")
}

func (s *PostgresStore) GetCachedGraph(ctx context.Context, rootID string, direction model.GraphDirection, depth int) (*model.Graph, error) {
	return pgScanOne[model.Graph](s.pool.QueryRow(ctx,
		`SELECT payload FROM lineage_graphs
		 WHERE cache_key = $1 AND (expires_at IS NULL OR expires_at > now())`,
		graphCacheKey(rootID, direction, depth)), "postgres: get cached graph")
}

func (s *PostgresStore) SaveCachedGraph(ctx context.Context, g *model.Graph) error {
	payload, err := json.Marshal(g)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal graph")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO lineage_graphs (cache_key, payload, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (cache_key) DO UPDATE SET payload = $2, expires_at = $3`,
		graphCacheKey(g.RootID, g.Direction, g.Depth), payload, g.ExpiresAt,
	)
	return eris.Wrap(err, "postgres: save cached graph")
}

// Thresholds and alerts

func (s *PostgresStore) SaveThreshold(ctx context.Context, th *model.Threshold) error {
	if th.ID == "" {
		th.ID = uuid.New().String()
	}
	if th.CreatedAt.IsZero() {
		th.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(th)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal threshold")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO thresholds (id, company_id, business_model, active, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET company_id = $2, business_model = $3, active = $4, payload = $5`,
		th.ID, th.CompanyID, string(th.BusinessModel), th.Active, payload, th.CreatedAt,
	)
	return eris.Wrap(err, "postgres: save threshold")
}

func (s *PostgresStore) GetThresholdForCompany(ctx context.Context, companyID string) (*model.Threshold, error) {
	return pgScanOne[model.Threshold](s.pool.QueryRow(ctx,
		`SELECT payload FROM thresholds WHERE active AND (company_id = $1 OR company_id = '')
		 ORDER BY CASE WHEN company_id = $1 THEN 0 ELSE 1 END, created_at DESC LIMIT 1`,
		companyID), "postgres: threshold for company")
}

func (s *PostgresStore) ListApplicableThresholds(ctx context.Context, companyID string) ([]model.Threshold, error) {
	return pgQueryMany[model.Threshold](ctx, s.pool,
		`SELECT payload FROM thresholds WHERE active AND (company_id = $1 OR company_id = '')
		 ORDER BY CASE WHEN company_id = $1 THEN 0 ELSE 1 END, created_at DESC`,
		[]any{companyID}, "postgres: list thresholds")
}

func (s *PostgresStore) SaveAlert(ctx context.Context, a *model.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal alert")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO alerts (id, company_id, status, level, payload, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.CompanyID, string(a.Status), string(a.Level), payload, a.CreatedAt,
	)
	return eris.Wrap(err, "postgres: save alert")
}

func (s *PostgresStore) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	return pgScanOne[model.Alert](s.pool.QueryRow(ctx,
		`SELECT payload FROM alerts WHERE id = $1`, id), "postgres: get alert")
}

func (s *PostgresStore) UpdateAlert(ctx context.Context, a *model.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal alert")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts SET status = $1, payload = $2 WHERE id = $3`,
		string(a.Status), payload, a.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update alert %s", a.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("alert not found: %s", a.ID)
	}
	return nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, f AlertFilter) ([]model.Alert, error) {
	query := `SELECT payload FROM alerts WHERE true`
	args := []any{}
	argIdx := 1

	if f.CompanyID != "" {
		query += fmt.Sprintf(` AND company_id = $%d`, argIdx)
		args = append(args, f.CompanyID)
		argIdx++
	}
	if f.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(f.Status))
		argIdx++
	}
	if f.Level != "" {
		query += fmt.Sprintf(` AND level = $%d`, argIdx)
		args = append(args, string(f.Level))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	return pgQueryMany[model.Alert](ctx, s.pool, query, args, "postgres: list alerts")
}

// Corrections, workflows, annotations

func (s *PostgresStore) SaveCorrection(ctx context.Context, c *model.Correction) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal correction")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO corrections (id, target_id, company_id, status, business_impact, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.TargetID, c.CompanyID, string(c.Status), string(c.BusinessImpact), payload, c.CreatedAt,
	)
	return eris.Wrap(err, "postgres: save correction")
}

func (s *PostgresStore) GetCorrection(ctx context.Context, id string) (*model.Correction, error) {
	return pgScanOne[model.Correction](s.pool.QueryRow(ctx,
		`SELECT payload FROM corrections WHERE id = $1`, id), "postgres: get correction")
}

func (s *PostgresStore) UpdateCorrection(ctx context.Context, c *model.Correction) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal correction")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE corrections SET status = $1, business_impact = $2, payload = $3 WHERE id = $4`,
		string(c.Status), string(c.BusinessImpact), payload, c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update correction %s", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("correction not found: %s", c.ID)
	}
	return nil
}

func (s *PostgresStore) ListCorrections(ctx context.Context, f correction.Filter) ([]model.Correction, error) {
	query := `SELECT payload FROM corrections WHERE true`
	args := []any{}
	argIdx := 1

	if f.CompanyID != "" {
		query += fmt.Sprintf(` AND company_id = $%d`, argIdx)
		args = append(args, f.CompanyID)
		argIdx++
	}
	if f.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(f.Status))
		argIdx++
	}
	if f.Impact != "" {
		query += fmt.Sprintf(` AND business_impact = $%d`, argIdx)
		args = append(args, string(f.Impact))
		argIdx++
	}
	query += ` ORDER BY created_at`

	return pgQueryMany[model.Correction](ctx, s.pool, query, args, "postgres: list corrections")
}

func (s *PostgresStore) ListCorrectionsSince(ctx context.Context, companyID string, since time.Time) ([]model.Correction, error) {
	query := `SELECT payload FROM corrections WHERE created_at >= $1`
	args := []any{since}
	if companyID != "" {
		query += ` AND company_id = $2`
		args = append(args, companyID)
	}
	query += ` ORDER BY created_at`
	return pgQueryMany[model.Correction](ctx, s.pool, query, args, "postgres: list corrections since")
}

func (s *PostgresStore) SaveWorkflow(ctx context.Context, w *model.Workflow) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(w)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal workflow")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO workflows (id, company_id, active, priority, payload) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET company_id = $2, active = $3, priority = $4, payload = $5`,
		w.ID, w.CompanyID, w.Active, w.Priority, payload,
	)
	return eris.Wrap(err, "postgres: save workflow")
}

func (s *PostgresStore) ListWorkflows(ctx context.Context, companyID string) ([]model.Workflow, error) {
	return pgQueryMany[model.Workflow](ctx, s.pool,
		`SELECT payload FROM workflows WHERE company_id = $1 OR company_id = '' ORDER BY priority`,
		[]any{companyID}, "postgres: list workflows")
}

func (s *PostgresStore) SaveAnnotation(ctx context.Context, a *model.Annotation) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal annotation")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO annotations (id, target_id, payload, created_at) VALUES ($1, $2, $3, $4)`,
		a.ID, a.TargetID, payload, a.CreatedAt,
	)
	return eris.Wrap(err, "postgres: save annotation")
}

func (s *PostgresStore) ListAnnotations(ctx context.Context, targetID string) ([]model.Annotation, error) {
	return pgQueryMany[model.Annotation](ctx, s.pool,
		`SELECT payload FROM annotations WHERE target_id = $1 ORDER BY created_at`,
		[]any{targetID}, "postgres: list annotations")
}

// CommitEntryResult lands one processed entry atomically: the entry update,
// its records, their scores, and the lineage events all commit together.
func (s *PostgresStore) CommitEntryResult(ctx context.Context, res *pipeline.EntryResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin commit tx")
	}
	defer tx.Rollback(ctx)

	entryPayload, err := json.Marshal(res.Entry)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal entry")
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO entries (id, company_id, source_id, status, payload, created_at) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET status = $4, payload = $5`,
		res.Entry.ID, res.Entry.CompanyID, res.Entry.SourceID, string(res.Entry.Status),
		entryPayload, res.Entry.CreatedAt,
	); err != nil {
		return eris.Wrap(err, "postgres: commit entry")
	}

	for i := range res.Events {
		if err := pgInsertEvent(ctx, tx, &res.Events[i]); err != nil {
			return err
		}
	}
	for i := range res.Records {
		if err := pgUpsertRecord(ctx, tx, &res.Records[i]); err != nil {
			return err
		}
	}
	for i := range res.Scores {
		if err := pgInsertScore(ctx, tx, &res.Scores[i]); err != nil {
			return err
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit entry result")
}

// Evidence queries

func (s *PostgresStore) ValidationConsensus(ctx context.Context, targetID string) (float64, bool, error) {
	rec, err := s.GetRecord(ctx, targetID)
	if err != nil || rec == nil {
		return 0, false, err
	}
	var total, passed int
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN validation_status = 'passed' THEN 1 ELSE 0 END), 0)
		 FROM records WHERE company_id = $1 AND canonical_code = $2 AND id != $3`,
		rec.CompanyID, rec.CanonicalCode, targetID,
	).Scan(&total, &passed)
	if err != nil {
		return 0, false, eris.Wrap(err, "postgres: validation consensus")
	}
	if total == 0 {
		return 0, false, nil
	}
	return float64(passed) / float64(total), true, nil
}

func (s *PostgresStore) HistoricalPerformance(ctx context.Context, companyID, method string) (float64, bool, error) {
	var avg *float64
	err := s.pool.QueryRow(ctx,
		`SELECT AVG(confidence) FROM records
		 WHERE company_id = $1 AND method = $2 AND validation_status = 'passed'`,
		companyID, method,
	).Scan(&avg)
	if err != nil {
		return 0, false, eris.Wrap(err, "postgres: historical performance")
	}
	if avg == nil {
		return 0, false, nil
	}
	return *avg, true, nil
}

func (s *PostgresStore) CrossValidation(ctx context.Context, targetID string) (float64, bool, error) {
	rec, err := s.GetRecord(ctx, targetID)
	if err != nil || rec == nil {
		return 0, false, err
	}
	var sources, total, passed int
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT entry_id), COUNT(*),
		   COALESCE(SUM(CASE WHEN validation_status = 'passed' THEN 1 ELSE 0 END), 0)
		 FROM records WHERE company_id = $1 AND canonical_code = $2`,
		rec.CompanyID, rec.CanonicalCode,
	).Scan(&sources, &total, &passed)
	if err != nil {
		return 0, false, eris.Wrap(err, "postgres: cross validation")
	}
	// One source cannot corroborate itself.
	if sources < 2 {
		return 0, false, nil
	}
	return float64(passed) / float64(total), true, nil
}

func (s *PostgresStore) SourceErrorRate(ctx context.Context, companyID, source string) (float64, bool, error) {
	var total, errored int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0)
		 FROM entries WHERE company_id = $1 AND source_id = $2`,
		companyID, source,
	).Scan(&total, &errored)
	if err != nil {
		return 0, false, eris.Wrap(err, "postgres: source error rate")
	}
	if total == 0 {
		return 0, false, nil
	}
	return float64(errored) / float64(total), true, nil
}

// row helpers

func pgScanOne[T any](row pgx.Row, msg string) (*T, error) {
	var payload []byte
	err := row.Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, msg)
	}
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, eris.Wrap(err, msg+" unmarshal")
	}
	return &v, nil
}

func pgQueryMany[T any](ctx context.Context, pool db.Pool, query string, args []any, msg string) ([]T, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, msg)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, msg+" scan")
		}
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, eris.Wrap(err, msg+" unmarshal")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), msg+" iterate")
}
