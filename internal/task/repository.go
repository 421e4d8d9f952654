package task

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLStore keeps records in the tasks table of a sqlite database. The table
// is emptied on open: records never outlive the process that created them.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db, now: time.Now}
	if err := s.initTable(ctx); err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return nil, err
	}
	return s, nil
}

// initTable creates the tasks table if it doesn't exist
func (s *SQLStore) initTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		progress REAL NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		speed TEXT NOT NULL DEFAULT '',
		eta TEXT NOT NULL DEFAULT '',
		filename TEXT,
		size INTEGER,
		data BLOB,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_updated_at ON tasks(updated_at);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLStore) Put(ctx context.Context, id string, rec Record) error {
	query := `
	INSERT INTO tasks (id, status, progress, message, speed, eta, filename, size, data, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		progress = excluded.progress,
		message = excluded.message,
		speed = excluded.speed,
		eta = excluded.eta,
		filename = excluded.filename,
		size = excluded.size,
		data = excluded.data,
		updated_at = excluded.updated_at`

	var (
		filename sql.NullString
		size     sql.NullInt64
		data     []byte
	)
	if rec.Artifact != nil {
		filename = sql.NullString{String: rec.Artifact.Filename, Valid: true}
		size = sql.NullInt64{Int64: rec.Artifact.Size, Valid: true}
		data = rec.Artifact.Data
	}

	_, err := s.db.ExecContext(ctx, query,
		id, string(rec.Status), rec.Progress, rec.Message, rec.Speed, rec.ETA,
		filename, size, data, s.now().UnixMilli())
	return err
}

const selectColumns = `status, progress, message, speed, eta, filename, size, data`

// Get leaves the data column alone; status polls of completed tasks would
// otherwise read the whole audio file.
func (s *SQLStore) Get(ctx context.Context, id string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT status, progress, message, speed, eta, filename, size, NULL FROM tasks WHERE id = ?`, id)
	return scanRecord(row)
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return err
}

// Take relies on DELETE ... RETURNING so the status check, the read and the
// delete are a single statement.
func (s *SQLStore) Take(ctx context.Context, id string, want Status) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND status = ? RETURNING `+selectColumns,
		id, string(want))
	return scanRecord(row)
}

func (s *SQLStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE updated_at < ? AND status IN (?, ?)`,
		cutoff.UnixMilli(), string(StatusCompleted), string(StatusError))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func scanRecord(row *sql.Row) (Record, bool, error) {
	var (
		rec      Record
		status   string
		filename sql.NullString
		size     sql.NullInt64
		data     []byte
	)
	err := row.Scan(&status, &rec.Progress, &rec.Message, &rec.Speed, &rec.ETA, &filename, &size, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}

	rec.Status = Status(status)
	if filename.Valid {
		rec.Artifact = &Artifact{
			Data:     data,
			Filename: filename.String,
			Size:     size.Int64,
		}
	}
	return rec, true, nil
}
