package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/pim-core/internal/model"
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
	// A single writer connection keeps per-pair read-modify-write serialized.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS entities (
	id           TEXT PRIMARY KEY,
	entity_type  TEXT NOT NULL,
	external_key TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(entity_type, external_key)
);

CREATE TABLE IF NOT EXISTS attributes (
	id                   TEXT PRIMARY KEY,
	key                  TEXT NOT NULL,
	label                TEXT,
	entity_type          TEXT NOT NULL,
	data_type            TEXT NOT NULL,
	editable             TEXT NOT NULL DEFAULT 'yes',
	review_policy        TEXT NOT NULL DEFAULT 'no',
	pipeline_id          TEXT,
	confidence_threshold REAL,
	options              TEXT,
	UNIQUE(entity_type, key)
);

CREATE TABLE IF NOT EXISTS versioned_values (
	entity_id        TEXT NOT NULL,
	attribute_id     TEXT NOT NULL,
	current          TEXT,
	approved         TEXT,
	override         TEXT,
	live             TEXT,
	confidence       REAL,
	justification    TEXT,
	pipeline_version INTEGER,
	input_hash       TEXT,
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY(entity_id, attribute_id)
);

CREATE TABLE IF NOT EXISTS pipelines (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL UNIQUE,
	entity_type         TEXT NOT NULL,
	output_attribute_id TEXT NOT NULL,
	version             INTEGER NOT NULL DEFAULT 1,
	modules             TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id           TEXT PRIMARY KEY,
	pipeline_id  TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	triggered_by TEXT NOT NULL DEFAULT 'manual',
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME,
	tokens_in    INTEGER NOT NULL DEFAULT 0,
	tokens_out   INTEGER NOT NULL DEFAULT 0,
	cost_usd     REAL NOT NULL DEFAULT 0,
	processed    INTEGER NOT NULL DEFAULT 0,
	skipped      INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE TABLE IF NOT EXISTS pipeline_evals (
	id          TEXT PRIMARY KEY,
	pipeline_id TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	expected    TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
CREATE INDEX IF NOT EXISTS idx_attributes_type ON attributes(entity_type);
CREATE INDEX IF NOT EXISTS idx_values_entity ON versioned_values(entity_id);
CREATE INDEX IF NOT EXISTS idx_pipelines_type ON pipelines(entity_type);
CREATE INDEX IF NOT EXISTS idx_runs_pipeline ON pipeline_runs(pipeline_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS idx_evals_pipeline ON pipeline_evals(pipeline_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Entities ---

func (s *SQLiteStore) CreateEntity(ctx context.Context, entityType, externalKey string) (*model.Entity, error) {
	e := &model.Entity{
		ID:          uuid.New().String(),
		EntityType:  entityType,
		ExternalKey: externalKey,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (id, entity_type, external_key, created_at) VALUES (?, ?, ?, ?)`,
		e.ID, e.EntityType, e.ExternalKey, e.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert entity")
	}
	return e, nil
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	var e model.Entity
	err := s.db.QueryRowContext(ctx,
		`SELECT id, entity_type, external_key, created_at FROM entities WHERE id = ?`, id,
	).Scan(&e.ID, &e.EntityType, &e.ExternalKey, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &model.NotFoundError{Kind: "entity", ID: id}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get entity %s", id)
	}
	return &e, nil
}

func (s *SQLiteStore) GetEntityByExternalKey(ctx context.Context, entityType, externalKey string) (*model.Entity, error) {
	var e model.Entity
	err := s.db.QueryRowContext(ctx,
		`SELECT id, entity_type, external_key, created_at FROM entities WHERE entity_type = ? AND external_key = ?`,
		entityType, externalKey,
	).Scan(&e.ID, &e.EntityType, &e.ExternalKey, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &model.NotFoundError{Kind: "entity", ID: externalKey}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get entity by key %s", externalKey)
	}
	return &e, nil
}

func (s *SQLiteStore) ListEntities(ctx context.Context, entityType string) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_type, external_key, created_at FROM entities WHERE entity_type = ? ORDER BY external_key`,
		entityType,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var e model.Entity
		if err := rows.Scan(&e.ID, &e.EntityType, &e.ExternalKey, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ImportEntities(ctx context.Context, entities []model.Entity) (int64, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import entities: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entities (id, entity_type, external_key, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(entity_type, external_key) DO NOTHING`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import entities: prepare")
	}
	defer stmt.Close()

	var n int64
	for _, e := range entities {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		res, err := stmt.ExecContext(ctx, e.ID, e.EntityType, e.ExternalKey, e.CreatedAt)
		if err != nil {
			return n, eris.Wrapf(err, "sqlite: import entity %s", e.ExternalKey)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}

	if err := tx.Commit(); err != nil {
		return n, eris.Wrap(err, "sqlite: import entities: commit")
	}
	return n, nil
}

// --- Attributes ---

func (s *SQLiteStore) UpsertAttribute(ctx context.Context, attr model.Attribute) error {
	optionsJSON, err := marshalOptions(attr.Options)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO attributes (id, key, label, entity_type, data_type, editable, review_policy, pipeline_id, confidence_threshold, options)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   label = excluded.label,
		   editable = excluded.editable,
		   review_policy = excluded.review_policy,
		   pipeline_id = excluded.pipeline_id,
		   confidence_threshold = excluded.confidence_threshold,
		   options = excluded.options`,
		attr.ID, attr.Key, attr.Label, attr.EntityType, string(attr.DataType),
		string(attr.Editable), string(attr.Review), nullString(attr.PipelineID),
		attr.ConfidenceThreshold, optionsJSON,
	)
	return eris.Wrapf(err, "sqlite: upsert attribute %s", attr.ID)
}

func (s *SQLiteStore) GetAttribute(ctx context.Context, id string) (*model.Attribute, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, key, label, entity_type, data_type, editable, review_policy, pipeline_id, confidence_threshold, options
		 FROM attributes WHERE id = ?`, id,
	)
	attr, err := scanAttribute(row)
	if err == sql.ErrNoRows {
		return nil, &model.NotFoundError{Kind: "attribute", ID: id}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get attribute %s", id)
	}
	return attr, nil
}

func (s *SQLiteStore) ListAttributes(ctx context.Context, entityType string) ([]model.Attribute, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key, label, entity_type, data_type, editable, review_policy, pipeline_id, confidence_threshold, options
		 FROM attributes WHERE entity_type = ? ORDER BY key`,
		entityType,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list attributes")
	}
	defer rows.Close()

	var out []model.Attribute
	for rows.Next() {
		attr, err := scanAttribute(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan attribute")
		}
		out = append(out, *attr)
	}
	return out, rows.Err()
}

// --- Versioned values ---

const valueColumns = `entity_id, attribute_id, current, approved, override, live,
	confidence, justification, pipeline_version, input_hash, updated_at`

func (s *SQLiteStore) GetValue(ctx context.Context, entityID, attributeID string) (*model.VersionedValue, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+valueColumns+` FROM versioned_values WHERE entity_id = ? AND attribute_id = ?`,
		entityID, attributeID,
	)
	v, err := scanValue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get value %s/%s", entityID, attributeID)
	}
	return v, nil
}

func (s *SQLiteStore) MutateValue(ctx context.Context, entityID, attributeID string, create bool, fn MutateFn) (*model.VersionedValue, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: mutate value: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx,
		`SELECT `+valueColumns+` FROM versioned_values WHERE entity_id = ? AND attribute_id = ?`,
		entityID, attributeID,
	)
	v, err := scanValue(row)
	if err == sql.ErrNoRows {
		if !create {
			return nil, &model.NotFoundError{Kind: "value", ID: entityID + "/" + attributeID}
		}
		v = &model.VersionedValue{EntityID: entityID, AttributeID: attributeID}
		err = nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: mutate value: read %s/%s", entityID, attributeID)
	}

	if err := fn(v); err != nil {
		return nil, err
	}
	v.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO versioned_values (`+valueColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(entity_id, attribute_id) DO UPDATE SET
		   current = excluded.current,
		   approved = excluded.approved,
		   override = excluded.override,
		   live = excluded.live,
		   confidence = excluded.confidence,
		   justification = excluded.justification,
		   pipeline_version = excluded.pipeline_version,
		   input_hash = excluded.input_hash,
		   updated_at = excluded.updated_at`,
		v.EntityID, v.AttributeID, v.Current, v.Approved, v.Override, v.Live,
		v.Confidence, v.Justification, v.PipelineVersion, v.InputHash, v.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: mutate value: write %s/%s", entityID, attributeID)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: mutate value: commit")
	}
	return v, nil
}

func (s *SQLiteStore) ListValues(ctx context.Context, entityType string) ([]model.VersionedValue, error) {
	query := `SELECT ` + valueColumns + ` FROM versioned_values ORDER BY entity_id, attribute_id`
	args := []any{}
	if entityType != "" {
		query = `SELECT v.entity_id, v.attribute_id, v.current, v.approved, v.override, v.live,
			v.confidence, v.justification, v.pipeline_version, v.input_hash, v.updated_at
			FROM versioned_values v
			JOIN entities e ON e.id = v.entity_id
			WHERE e.entity_type = ?
			ORDER BY v.entity_id, v.attribute_id`
		args = append(args, entityType)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list values")
	}
	defer rows.Close()

	var out []model.VersionedValue
	for rows.Next() {
		v, err := scanValueFromRows(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan value")
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// --- Pipelines ---

func (s *SQLiteStore) SavePipeline(ctx context.Context, p *model.Pipeline) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Version == 0 {
		p.Version = 1
	}
	modulesJSON, err := json.Marshal(p.Modules)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal modules")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pipelines (id, name, entity_type, output_attribute_id, version, modules)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   entity_type = excluded.entity_type,
		   output_attribute_id = excluded.output_attribute_id,
		   version = excluded.version,
		   modules = excluded.modules`,
		p.ID, p.Name, p.EntityType, p.OutputAttributeID, p.Version, string(modulesJSON),
	)
	return eris.Wrapf(err, "sqlite: save pipeline %s", p.Name)
}

func (s *SQLiteStore) GetPipeline(ctx context.Context, id string) (*model.Pipeline, error) {
	return s.getPipelineWhere(ctx, `id = ?`, id)
}

func (s *SQLiteStore) GetPipelineByName(ctx context.Context, name string) (*model.Pipeline, error) {
	return s.getPipelineWhere(ctx, `name = ?`, name)
}

func (s *SQLiteStore) getPipelineWhere(ctx context.Context, where, arg string) (*model.Pipeline, error) {
	var p model.Pipeline
	var modulesJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, entity_type, output_attribute_id, version, modules FROM pipelines WHERE `+where, arg,
	).Scan(&p.ID, &p.Name, &p.EntityType, &p.OutputAttributeID, &p.Version, &modulesJSON)
	if err == sql.ErrNoRows {
		return nil, &model.NotFoundError{Kind: "pipeline", ID: arg}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get pipeline %s", arg)
	}
	if err := json.Unmarshal([]byte(modulesJSON), &p.Modules); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal modules for %s", arg)
	}
	return &p, nil
}

func (s *SQLiteStore) ListPipelines(ctx context.Context, entityType string) ([]*model.Pipeline, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, entity_type, output_attribute_id, version, modules
		 FROM pipelines WHERE entity_type = ? ORDER BY name`,
		entityType,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pipelines")
	}
	defer rows.Close()

	var out []*model.Pipeline
	for rows.Next() {
		var p model.Pipeline
		var modulesJSON string
		if err := rows.Scan(&p.ID, &p.Name, &p.EntityType, &p.OutputAttributeID, &p.Version, &modulesJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pipeline")
		}
		if err := json.Unmarshal([]byte(modulesJSON), &p.Modules); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal modules for %s", p.Name)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, pipelineID string, trigger model.TriggeredBy) (*model.PipelineRun, error) {
	r := &model.PipelineRun{
		ID:          uuid.New().String(),
		PipelineID:  pipelineID,
		Status:      model.RunStatusRunning,
		TriggeredBy: trigger,
		StartedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, pipeline_id, status, triggered_by, started_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.PipelineID, string(r.Status), string(r.TriggeredBy), r.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return r, nil
}

func (s *SQLiteStore) AddRunTokens(ctx context.Context, runID string, tokensIn, tokensOut int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET tokens_in = tokens_in + ?, tokens_out = tokens_out + ? WHERE id = ?`,
		tokensIn, tokensOut, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: add run tokens %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, totals RunTotals) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, completed_at = ?, processed = ?, skipped = ?, failed = ?, cost_usd = ? WHERE id = ?`,
		string(status), time.Now().UTC(), totals.Processed, totals.Skipped, totals.Failed, totals.CostUSD, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(model.RunStatusFailed), time.Now().UTC(), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) CancelRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, completed_at = ?, error = ? WHERE id = ? AND status = ?`,
		string(model.RunStatusCancelled), time.Now().UTC(), model.CancelledErrorSummary,
		runID, string(model.RunStatusRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: cancel run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pipeline_id, status, triggered_by, started_at, completed_at,
		 tokens_in, tokens_out, cost_usd, processed, skipped, failed, error
		 FROM pipeline_runs WHERE id = ?`, runID,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, &model.NotFoundError{Kind: "run", ID: runID}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	query := `SELECT id, pipeline_id, status, triggered_by, started_at, completed_at,
		tokens_in, tokens_out, cost_usd, processed, skipped, failed, error
		FROM pipeline_runs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.PipelineID != "" {
		query += ` AND pipeline_id = ?`
		args = append(args, filter.PipelineID)
	}
	query += ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []model.PipelineRun
	for rows.Next() {
		r, err := scanRunFromRows(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// --- Evals ---

func (s *SQLiteStore) SaveEval(ctx context.Context, eval model.PipelineEval) error {
	if eval.ID == "" {
		eval.ID = uuid.New().String()
	}
	if eval.CreatedAt.IsZero() {
		eval.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_evals (id, pipeline_id, entity_id, expected, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET expected = excluded.expected`,
		eval.ID, eval.PipelineID, eval.EntityID, eval.Expected, eval.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: save eval %s", eval.ID)
}

func (s *SQLiteStore) ListEvals(ctx context.Context, pipelineID string) ([]model.PipelineEval, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pipeline_id, entity_id, expected, created_at FROM pipeline_evals WHERE pipeline_id = ? ORDER BY created_at`,
		pipelineID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list evals")
	}
	defer rows.Close()

	var out []model.PipelineEval
	for rows.Next() {
		var e model.PipelineEval
		if err := rows.Scan(&e.ID, &e.PipelineID, &e.EntityID, &e.Expected, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan eval")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanAttribute(row scannable) (*model.Attribute, error) {
	var a model.Attribute
	var label, pipelineID, optionsJSON sql.NullString
	var threshold sql.NullFloat64
	var dataType, editable, review string
	if err := row.Scan(&a.ID, &a.Key, &label, &a.EntityType, &dataType, &editable, &review,
		&pipelineID, &threshold, &optionsJSON); err != nil {
		return nil, err
	}
	a.Label = label.String
	a.DataType = model.DataType(dataType)
	a.Editable = model.Editable(editable)
	a.Review = model.ReviewPolicy(review)
	a.PipelineID = pipelineID.String
	if threshold.Valid {
		t := threshold.Float64
		a.ConfidenceThreshold = &t
	}
	if optionsJSON.Valid && optionsJSON.String != "" {
		if err := json.Unmarshal([]byte(optionsJSON.String), &a.Options); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func scanValue(row scannable) (*model.VersionedValue, error) {
	var v model.VersionedValue
	var current, approved, override, live, justification, inputHash sql.NullString
	var confidence sql.NullFloat64
	var pipelineVersion sql.NullInt64
	if err := row.Scan(&v.EntityID, &v.AttributeID, &current, &approved, &override, &live,
		&confidence, &justification, &pipelineVersion, &inputHash, &v.UpdatedAt); err != nil {
		return nil, err
	}
	v.Current = nullableString(current)
	v.Approved = nullableString(approved)
	v.Override = nullableString(override)
	v.Live = nullableString(live)
	if confidence.Valid {
		c := confidence.Float64
		v.Confidence = &c
	}
	v.Justification = nullableString(justification)
	if pipelineVersion.Valid {
		pv := int(pipelineVersion.Int64)
		v.PipelineVersion = &pv
	}
	v.InputHash = nullableString(inputHash)
	return &v, nil
}

func scanValueFromRows(rows *sql.Rows) (*model.VersionedValue, error) {
	return scanValue(rows)
}

func scanRun(row scannable) (*model.PipelineRun, error) {
	var r model.PipelineRun
	var status, trigger string
	var completedAt sql.NullTime
	var errMsg sql.NullString
	if err := row.Scan(&r.ID, &r.PipelineID, &status, &trigger, &r.StartedAt, &completedAt,
		&r.TokensIn, &r.TokensOut, &r.CostUSD, &r.Processed, &r.Skipped, &r.Failed, &errMsg); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	r.TriggeredBy = model.TriggeredBy(trigger)
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	r.Error = errMsg.String
	return &r, nil
}

func scanRunFromRows(rows *sql.Rows) (*model.PipelineRun, error) {
	return scanRun(rows)
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return &model.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func marshalOptions(opts []string) (any, error) {
	if len(opts) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(opts)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal options")
	}
	return string(b), nil
}
