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

	"github.com/sells-group/pim-core/internal/db"
	"github.com/sells-group/pim-core/internal/model"
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
CREATE TABLE IF NOT EXISTS entities (
	id           TEXT PRIMARY KEY,
	entity_type  TEXT NOT NULL,
	external_key TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
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
	confidence_threshold DOUBLE PRECISION,
	options              JSONB,
	UNIQUE(entity_type, key)
);

CREATE TABLE IF NOT EXISTS versioned_values (
	entity_id        TEXT NOT NULL,
	attribute_id     TEXT NOT NULL,
	current          TEXT,
	approved         TEXT,
	override         TEXT,
	live             TEXT,
	confidence       DOUBLE PRECISION,
	justification    TEXT,
	pipeline_version INTEGER,
	input_hash       TEXT,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY(entity_id, attribute_id)
);

CREATE TABLE IF NOT EXISTS pipelines (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL UNIQUE,
	entity_type         TEXT NOT NULL,
	output_attribute_id TEXT NOT NULL,
	version             INTEGER NOT NULL DEFAULT 1,
	modules             JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id           TEXT PRIMARY KEY,
	pipeline_id  TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	triggered_by TEXT NOT NULL DEFAULT 'manual',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	tokens_in    BIGINT NOT NULL DEFAULT 0,
	tokens_out   BIGINT NOT NULL DEFAULT 0,
	cost_usd     DOUBLE PRECISION NOT NULL DEFAULT 0,
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
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
CREATE INDEX IF NOT EXISTS idx_attributes_type ON attributes(entity_type);
CREATE INDEX IF NOT EXISTS idx_values_entity ON versioned_values(entity_id);
CREATE INDEX IF NOT EXISTS idx_pipelines_type ON pipelines(entity_type);
CREATE INDEX IF NOT EXISTS idx_runs_pipeline ON pipeline_runs(pipeline_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS idx_evals_pipeline ON pipeline_evals(pipeline_id);
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

// --- Entities ---

func (s *PostgresStore) CreateEntity(ctx context.Context, entityType, externalKey string) (*model.Entity, error) {
	e := &model.Entity{
		ID:          uuid.New().String(),
		EntityType:  entityType,
		ExternalKey: externalKey,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO entities (id, entity_type, external_key, created_at) VALUES ($1, $2, $3, $4)`,
		e.ID, e.EntityType, e.ExternalKey, e.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert entity")
	}
	return e, nil
}

func (s *PostgresStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	var e model.Entity
	err := s.pool.QueryRow(ctx,
		`SELECT id, entity_type, external_key, created_at FROM entities WHERE id = $1`, id,
	).Scan(&e.ID, &e.EntityType, &e.ExternalKey, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.NotFoundError{Kind: "entity", ID: id}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get entity %s", id)
	}
	return &e, nil
}

func (s *PostgresStore) GetEntityByExternalKey(ctx context.Context, entityType, externalKey string) (*model.Entity, error) {
	var e model.Entity
	err := s.pool.QueryRow(ctx,
		`SELECT id, entity_type, external_key, created_at FROM entities WHERE entity_type = $1 AND external_key = $2`,
		entityType, externalKey,
	).Scan(&e.ID, &e.EntityType, &e.ExternalKey, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.NotFoundError{Kind: "entity", ID: externalKey}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get entity by key %s", externalKey)
	}
	return &e, nil
}

func (s *PostgresStore) ListEntities(ctx context.Context, entityType string) ([]model.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, entity_type, external_key, created_at FROM entities WHERE entity_type = $1 ORDER BY external_key`,
		entityType,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var e model.Entity
		if err := rows.Scan(&e.ID, &e.EntityType, &e.ExternalKey, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ImportEntities bulk-loads entities via COPY into a temp table and
// INSERT ... ON CONFLICT, so re-imports are idempotent.
func (s *PostgresStore) ImportEntities(ctx context.Context, entities []model.Entity) (int64, error) {
	rows := make([][]any, 0, len(entities))
	now := time.Now().UTC()
	for _, e := range entities {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		rows = append(rows, []any{e.ID, e.EntityType, e.ExternalKey, e.CreatedAt})
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "entities",
		Columns:      []string{"id", "entity_type", "external_key", "created_at"},
		ConflictKeys: []string{"entity_type", "external_key"},
		UpdateCols:   []string{},
	}, rows)
}

// --- Attributes ---

func (s *PostgresStore) UpsertAttribute(ctx context.Context, attr model.Attribute) error {
	var optionsJSON []byte
	if len(attr.Options) > 0 {
		var err error
		optionsJSON, err = json.Marshal(attr.Options)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal options")
		}
	}
	var pipelineID *string
	if attr.PipelineID != "" {
		pipelineID = &attr.PipelineID
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO attributes (id, key, label, entity_type, data_type, editable, review_policy, pipeline_id, confidence_threshold, options)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   label = EXCLUDED.label,
		   editable = EXCLUDED.editable,
		   review_policy = EXCLUDED.review_policy,
		   pipeline_id = EXCLUDED.pipeline_id,
		   confidence_threshold = EXCLUDED.confidence_threshold,
		   options = EXCLUDED.options`,
		attr.ID, attr.Key, attr.Label, attr.EntityType, string(attr.DataType),
		string(attr.Editable), string(attr.Review), pipelineID, attr.ConfidenceThreshold, optionsJSON,
	)
	return eris.Wrapf(err, "postgres: upsert attribute %s", attr.ID)
}

func (s *PostgresStore) GetAttribute(ctx context.Context, id string) (*model.Attribute, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, key, label, entity_type, data_type, editable, review_policy, pipeline_id, confidence_threshold, options
		 FROM attributes WHERE id = $1`, id,
	)
	attr, err := scanPgAttribute(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.NotFoundError{Kind: "attribute", ID: id}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get attribute %s", id)
	}
	return attr, nil
}

func (s *PostgresStore) ListAttributes(ctx context.Context, entityType string) ([]model.Attribute, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, key, label, entity_type, data_type, editable, review_policy, pipeline_id, confidence_threshold, options
		 FROM attributes WHERE entity_type = $1 ORDER BY key`,
		entityType,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list attributes")
	}
	defer rows.Close()

	var out []model.Attribute
	for rows.Next() {
		attr, err := scanPgAttribute(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan attribute")
		}
		out = append(out, *attr)
	}
	return out, rows.Err()
}

// --- Versioned values ---

const pgValueColumns = `entity_id, attribute_id, current, approved, override, live,
	confidence, justification, pipeline_version, input_hash, updated_at`

func (s *PostgresStore) GetValue(ctx context.Context, entityID, attributeID string) (*model.VersionedValue, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgValueColumns+` FROM versioned_values WHERE entity_id = $1 AND attribute_id = $2`,
		entityID, attributeID,
	)
	v, err := scanPgValue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get value %s/%s", entityID, attributeID)
	}
	return v, nil
}

// MutateValue serializes concurrent writers to the same pair with a row lock.
func (s *PostgresStore) MutateValue(ctx context.Context, entityID, attributeID string, create bool, fn MutateFn) (*model.VersionedValue, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: mutate value: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx,
		`SELECT `+pgValueColumns+` FROM versioned_values WHERE entity_id = $1 AND attribute_id = $2 FOR UPDATE`,
		entityID, attributeID,
	)
	v, err := scanPgValue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if !create {
			return nil, &model.NotFoundError{Kind: "value", ID: entityID + "/" + attributeID}
		}
		v = &model.VersionedValue{EntityID: entityID, AttributeID: attributeID}
		err = nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: mutate value: read %s/%s", entityID, attributeID)
	}

	if err := fn(v); err != nil {
		return nil, err
	}
	v.UpdatedAt = time.Now().UTC()

	_, err = tx.Exec(ctx,
		`INSERT INTO versioned_values (`+pgValueColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (entity_id, attribute_id) DO UPDATE SET
		   current = EXCLUDED.current,
		   approved = EXCLUDED.approved,
		   override = EXCLUDED.override,
		   live = EXCLUDED.live,
		   confidence = EXCLUDED.confidence,
		   justification = EXCLUDED.justification,
		   pipeline_version = EXCLUDED.pipeline_version,
		   input_hash = EXCLUDED.input_hash,
		   updated_at = EXCLUDED.updated_at`,
		v.EntityID, v.AttributeID, v.Current, v.Approved, v.Override, v.Live,
		v.Confidence, v.Justification, v.PipelineVersion, v.InputHash, v.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: mutate value: write %s/%s", entityID, attributeID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: mutate value: commit")
	}
	return v, nil
}

func (s *PostgresStore) ListValues(ctx context.Context, entityType string) ([]model.VersionedValue, error) {
	query := `SELECT ` + pgValueColumns + ` FROM versioned_values ORDER BY entity_id, attribute_id`
	var args []any
	if entityType != "" {
		query = `SELECT v.entity_id, v.attribute_id, v.current, v.approved, v.override, v.live,
			v.confidence, v.justification, v.pipeline_version, v.input_hash, v.updated_at
			FROM versioned_values v
			JOIN entities e ON e.id = v.entity_id
			WHERE e.entity_type = $1
			ORDER BY v.entity_id, v.attribute_id`
		args = append(args, entityType)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list values")
	}
	defer rows.Close()

	var out []model.VersionedValue
	for rows.Next() {
		v, err := scanPgValue(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan value")
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// --- Pipelines ---

func (s *PostgresStore) SavePipeline(ctx context.Context, p *model.Pipeline) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Version == 0 {
		p.Version = 1
	}
	modulesJSON, err := json.Marshal(p.Modules)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal modules")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pipelines (id, name, entity_type, output_attribute_id, version, modules)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   entity_type = EXCLUDED.entity_type,
		   output_attribute_id = EXCLUDED.output_attribute_id,
		   version = EXCLUDED.version,
		   modules = EXCLUDED.modules`,
		p.ID, p.Name, p.EntityType, p.OutputAttributeID, p.Version, modulesJSON,
	)
	return eris.Wrapf(err, "postgres: save pipeline %s", p.Name)
}

func (s *PostgresStore) GetPipeline(ctx context.Context, id string) (*model.Pipeline, error) {
	return s.getPipelineWhere(ctx, `id = $1`, id)
}

func (s *PostgresStore) GetPipelineByName(ctx context.Context, name string) (*model.Pipeline, error) {
	return s.getPipelineWhere(ctx, `name = $1`, name)
}

func (s *PostgresStore) getPipelineWhere(ctx context.Context, where, arg string) (*model.Pipeline, error) {
	var p model.Pipeline
	var modulesJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, entity_type, output_attribute_id, version, modules FROM pipelines WHERE `+where, arg,
	).Scan(&p.ID, &p.Name, &p.EntityType, &p.OutputAttributeID, &p.Version, &modulesJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.NotFoundError{Kind: "pipeline", ID: arg}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get pipeline %s", arg)
	}
	if err := json.Unmarshal(modulesJSON, &p.Modules); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal modules for %s", arg)
	}
	return &p, nil
}

func (s *PostgresStore) ListPipelines(ctx context.Context, entityType string) ([]*model.Pipeline, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, entity_type, output_attribute_id, version, modules
		 FROM pipelines WHERE entity_type = $1 ORDER BY name`,
		entityType,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pipelines")
	}
	defer rows.Close()

	var out []*model.Pipeline
	for rows.Next() {
		var p model.Pipeline
		var modulesJSON []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.EntityType, &p.OutputAttributeID, &p.Version, &modulesJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pipeline")
		}
		if err := json.Unmarshal(modulesJSON, &p.Modules); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal modules for %s", p.Name)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, pipelineID string, trigger model.TriggeredBy) (*model.PipelineRun, error) {
	r := &model.PipelineRun{
		ID:          uuid.New().String(),
		PipelineID:  pipelineID,
		Status:      model.RunStatusRunning,
		TriggeredBy: trigger,
		StartedAt:   time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, pipeline_id, status, triggered_by, started_at) VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.PipelineID, string(r.Status), string(r.TriggeredBy), r.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return r, nil
}

func (s *PostgresStore) AddRunTokens(ctx context.Context, runID string, tokensIn, tokensOut int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET tokens_in = tokens_in + $1, tokens_out = tokens_out + $2 WHERE id = $3`,
		tokensIn, tokensOut, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: add run tokens %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Kind: "run", ID: runID}
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, totals RunTotals) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, completed_at = $2, processed = $3, skipped = $4, failed = $5, cost_usd = $6 WHERE id = $7`,
		string(status), time.Now().UTC(), totals.Processed, totals.Skipped, totals.Failed, totals.CostUSD, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Kind: "run", ID: runID}
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, completed_at = $2, error = $3 WHERE id = $4`,
		string(model.RunStatusFailed), time.Now().UTC(), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Kind: "run", ID: runID}
	}
	return nil
}

func (s *PostgresStore) CancelRun(ctx context.Context, runID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, completed_at = $2, error = $3 WHERE id = $4 AND status = $5`,
		string(model.RunStatusCancelled), time.Now().UTC(), model.CancelledErrorSummary,
		runID, string(model.RunStatusRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: cancel run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Kind: "run", ID: runID}
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, pipeline_id, status, triggered_by, started_at, completed_at,
		 tokens_in, tokens_out, cost_usd, processed, skipped, failed, error
		 FROM pipeline_runs WHERE id = $1`, runID,
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.NotFoundError{Kind: "run", ID: runID}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	query := `SELECT id, pipeline_id, status, triggered_by, started_at, completed_at,
		tokens_in, tokens_out, cost_usd, processed, skipped, failed, error
		FROM pipeline_runs WHERE 1=1`
	var args []any
	argN := 1
	if filter.Status != "" {
		query += ` AND status = $` + strconv.Itoa(argN)
		args = append(args, string(filter.Status))
		argN++
	}
	if filter.PipelineID != "" {
		query += ` AND pipeline_id = $` + strconv.Itoa(argN)
		args = append(args, filter.PipelineID)
		argN++
	}
	query += ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(argN)
		args = append(args, filter.Limit)
		argN++
		if filter.Offset > 0 {
			query += ` OFFSET $` + strconv.Itoa(argN)
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.PipelineRun
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// --- Evals ---

func (s *PostgresStore) SaveEval(ctx context.Context, eval model.PipelineEval) error {
	if eval.ID == "" {
		eval.ID = uuid.New().String()
	}
	if eval.CreatedAt.IsZero() {
		eval.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_evals (id, pipeline_id, entity_id, expected, created_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET expected = EXCLUDED.expected`,
		eval.ID, eval.PipelineID, eval.EntityID, eval.Expected, eval.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: save eval %s", eval.ID)
}

func (s *PostgresStore) ListEvals(ctx context.Context, pipelineID string) ([]model.PipelineEval, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, pipeline_id, entity_id, expected, created_at FROM pipeline_evals WHERE pipeline_id = $1 ORDER BY created_at`,
		pipelineID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list evals")
	}
	defer rows.Close()

	var out []model.PipelineEval
	for rows.Next() {
		var e model.PipelineEval
		if err := rows.Scan(&e.ID, &e.PipelineID, &e.EntityID, &e.Expected, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan eval")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- scan helpers ---

func scanPgAttribute(row pgx.Row) (*model.Attribute, error) {
	var a model.Attribute
	var label, pipelineID *string
	var threshold *float64
	var dataType, editable, review string
	var optionsJSON []byte
	if err := row.Scan(&a.ID, &a.Key, &label, &a.EntityType, &dataType, &editable, &review,
		&pipelineID, &threshold, &optionsJSON); err != nil {
		return nil, err
	}
	if label != nil {
		a.Label = *label
	}
	a.DataType = model.DataType(dataType)
	a.Editable = model.Editable(editable)
	a.Review = model.ReviewPolicy(review)
	if pipelineID != nil {
		a.PipelineID = *pipelineID
	}
	a.ConfidenceThreshold = threshold
	if len(optionsJSON) > 0 {
		if err := json.Unmarshal(optionsJSON, &a.Options); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func scanPgValue(row pgx.Row) (*model.VersionedValue, error) {
	var v model.VersionedValue
	if err := row.Scan(&v.EntityID, &v.AttributeID, &v.Current, &v.Approved, &v.Override, &v.Live,
		&v.Confidence, &v.Justification, &v.PipelineVersion, &v.InputHash, &v.UpdatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

func scanPgRun(row pgx.Row) (*model.PipelineRun, error) {
	var r model.PipelineRun
	var status, trigger string
	var errMsg *string
	if err := row.Scan(&r.ID, &r.PipelineID, &status, &trigger, &r.StartedAt, &r.CompletedAt,
		&r.TokensIn, &r.TokensOut, &r.CostUSD, &r.Processed, &r.Skipped, &r.Failed, &errMsg); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	r.TriggeredBy = model.TriggeredBy(trigger)
	if errMsg != nil {
		r.Error = *errMsg
	}
	return &r, nil
}
