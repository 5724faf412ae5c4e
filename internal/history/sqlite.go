package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // register SQLite driver via side effects for database/sql

	logx "watcher/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// goose keeps its dialect and base FS in package globals.
var gooseMu sync.Mutex

type sqliteStore struct {
	db       *sql.DB
	log      logx.Logger
	capacity int

	opCount    atomic.Uint64
	pruneEvery uint64
	closed     atomic.Bool
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("history.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
	`, busy.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	if err := migrateUp(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	pruneEvery := uint64(cfg.Capacity / 10)
	if pruneEvery == 0 {
		pruneEvery = 1
	}
	return &sqliteStore{db: db, log: log, capacity: cfg.Capacity, pruneEvery: pruneEvery}, nil
}

func migrateUp(ctx context.Context, db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	goose.SetBaseFS(migrationsFS)
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

func (s *sqliteStore) Put(ctx context.Context, r Record) error {
	if s.closed.Load() {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_history(task_id, event_id, watch_id, trigger_type, state, error,
			scheduled_at, triggered_at, queued_at, started_at, finished_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(task_id) DO UPDATE SET state=excluded.state, error=excluded.error,
			started_at=excluded.started_at, finished_at=excluded.finished_at`,
		r.TaskID, r.EventID, r.WatchID, r.TriggerType, r.State, nullStr(r.Error),
		toNano(r.ScheduledTime), toNano(r.TriggeredTime), toNano(r.QueuedAt), toNano(r.StartedAt), toNano(r.FinishedAt),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		if perr := s.prune(pctx); perr != nil {
			s.log.Debug("history prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) List(ctx context.Context, q Query) ([]Record, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	limit := q.Limit
	if limit <= 0 || limit > s.capacity {
		limit = s.capacity
	}
	query := `SELECT task_id, event_id, watch_id, trigger_type, state, COALESCE(error, ''),
		scheduled_at, triggered_at, queued_at, started_at, finished_at
		FROM task_history`
	args := []any{}
	if q.WatchID != "" {
		query += ` WHERE watch_id = ?`
		args = append(args, q.WatchID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                                   Record
			sched, trig, queued, started, finis int64
		)
		if err := rows.Scan(&r.TaskID, &r.EventID, &r.WatchID, &r.TriggerType, &r.State, &r.Error,
			&sched, &trig, &queued, &started, &finis); err != nil {
			return nil, err
		}
		r.ScheduledTime = fromNano(sched)
		r.TriggeredTime = fromNano(trig)
		r.QueuedAt = fromNano(queued)
		r.StartedAt = fromNano(started)
		r.FinishedAt = fromNano(finis)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM task_history WHERE id <= (SELECT COALESCE(MAX(id), 0) FROM task_history) - ?`,
		s.capacity,
	)
	return err
}

func (s *sqliteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func toNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
