package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crowdcount/internal/model"
)

// sqliteTimeLayout is fixed width so that lexical order matches time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000"

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
CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS observations (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	ts         TEXT NOT NULL,
	camera     TEXT NOT NULL,
	position   TEXT NOT NULL DEFAULT '',
	count      REAL,
	counts     TEXT
);

CREATE INDEX IF NOT EXISTS idx_observations_project_ts ON observations(project_id, ts);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) QueryObservations(ctx context.Context, projectID string, from, to time.Time) ([]model.Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, ts, camera, position, count, counts FROM observations WHERE project_id = ? AND ts >= ? AND ts < ?`,
		projectID, from.Format(sqliteTimeLayout), to.Format(sqliteTimeLayout),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query observations %s", projectID)
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		var (
			o      model.Observation
			ts     string
			count  sql.NullFloat64
			counts sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.ProjectID, &ts, &o.Camera, &o.Position, &count, &counts); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		if o.Timestamp, err = time.ParseInLocation(sqliteTimeLayout, ts, time.UTC); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse timestamp for %s", o.ID)
		}
		if count.Valid {
			v := count.Float64
			o.Count = &v
		}
		if counts.Valid && counts.String != "" {
			if err := json.Unmarshal([]byte(counts.String), &o.Counts); err != nil {
				return nil, eris.Wrapf(err, "sqlite: decode counts for %s", o.ID)
			}
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate observations")
}

func (s *SQLiteStore) InsertObservations(ctx context.Context, projectID string, obs []model.Observation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO observations (id, project_id, ts, camera, position, count, counts) VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	inserted := 0
	for _, o := range obs {
		row, err := observationRow(projectID, o)
		if err != nil {
			return 0, err
		}
		row[2] = o.Timestamp.Format(sqliteTimeLayout)
		if b, ok := row[6].([]byte); ok && b != nil {
			row[6] = string(b)
		} else {
			row[6] = nil
		}
		res, err := stmt.ExecContext(ctx, row...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert observation %s", o.ID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit")
	}
	return inserted, nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM projects WHERE id = ?`, projectID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get project %s", projectID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get project %s", projectID)
	}
	var p model.Project
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode project %s", projectID)
	}
	p.ID = projectID
	return &p, nil
}

func (s *SQLiteStore) PutProject(ctx context.Context, p *model.Project) error {
	if p == nil || p.ID == "" {
		return eris.New("sqlite: project id is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal project")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, data, updated_at) VALUES (?, ?, datetime('now')) ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		p.ID, string(data),
	)
	return eris.Wrapf(err, "sqlite: put project %s", p.ID)
}
