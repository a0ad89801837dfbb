package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crowdcount/internal/db"
	"github.com/sells-group/crowdcount/internal/model"
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

// NewPostgresFromPool wraps an existing pool. Close on the store does not
// close the pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Timestamps are stored as TIMESTAMP WITHOUT TIME ZONE: readings are naive
// wall-clock values and must round-trip unchanged.
const postgresMigration = `
CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS observations (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	ts         TIMESTAMP NOT NULL,
	camera     TEXT NOT NULL,
	position   TEXT NOT NULL DEFAULT '',
	count      DOUBLE PRECISION,
	counts     JSONB
);

CREATE INDEX IF NOT EXISTS idx_observations_project_ts ON observations(project_id, ts);
`

var observationColumns = []string{"id", "project_id", "ts", "camera", "position", "count", "counts"}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
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

func (s *PostgresStore) QueryObservations(ctx context.Context, projectID string, from, to time.Time) ([]model.Observation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, ts, camera, position, count, counts FROM observations WHERE project_id = $1 AND ts >= $2 AND ts < $3`,
		projectID, from, to,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query observations %s", projectID)
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		var (
			o      model.Observation
			counts []byte
		)
		if err := rows.Scan(&o.ID, &o.ProjectID, &o.Timestamp, &o.Camera, &o.Position, &o.Count, &counts); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		if len(counts) > 0 {
			if err := json.Unmarshal(counts, &o.Counts); err != nil {
				return nil, eris.Wrapf(err, "postgres: decode counts for %s", o.ID)
			}
		}
		o.Timestamp = naive(o.Timestamp)
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate observations")
}

func (s *PostgresStore) InsertObservations(ctx context.Context, projectID string, obs []model.Observation) (int, error) {
	rows := make([][]any, 0, len(obs))
	for _, o := range obs {
		row, err := observationRow(projectID, o)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:           "observations",
		Columns:         observationColumns,
		ConflictKeys:    []string{"id"},
		IgnoreConflicts: true,
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: insert observations %s", projectID)
	}
	return int(n), nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM projects WHERE id = $1`, projectID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get project %s", projectID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get project %s", projectID)
	}

	var p model.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrapf(err, "postgres: decode project %s", projectID)
	}
	p.ID = projectID
	return &p, nil
}

func (s *PostgresStore) PutProject(ctx context.Context, p *model.Project) error {
	if p == nil || p.ID == "" {
		return eris.New("postgres: project id is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal project")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO projects (id, data, updated_at) VALUES ($1, $2, now()) ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		p.ID, data,
	)
	return eris.Wrapf(err, "postgres: put project %s", p.ID)
}

func observationRow(projectID string, o model.Observation) ([]any, error) {
	if o.ID == "" {
		return nil, eris.New("store: observation id is required")
	}
	var counts []byte
	if len(o.Counts) > 0 {
		var err error
		if counts, err = json.Marshal(o.Counts); err != nil {
			return nil, eris.Wrapf(err, "store: marshal counts for %s", o.ID)
		}
	}
	return []any{o.ID, projectID, naive(o.Timestamp), o.Camera, o.Position, o.Count, counts}, nil
}

// naive drops the location while keeping the wall-clock fields.
func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
