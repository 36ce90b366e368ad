package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"

	_ "modernc.org/sqlite" // SQLite driver.
)

const (
	defaultBusyTimeout = 5 * time.Second
	timestampLayout    = "2006-01-02 15:04:05.000"
)

// SQLiteStore keeps records in the posture_log table. Databases created by
// earlier versions (without session_id and duration_ms) are upgraded in place;
// their rows count as records with zero duration.
type SQLiteStore struct {
	db          *sql.DB
	busyTimeout time.Duration
	log         logger.Logger
	closed      atomic.Bool
}

// Open opens or creates the database at path and applies migrations.
func Open(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	s := newSQLiteStore(opts...)
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=%s", path,
		url.QueryEscape(fmt.Sprintf("busy_timeout(%d)", s.busyTimeout.Milliseconds())))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return s.attach(ctx, db)
}

// NewSQLiteStore wraps an existing connection pool and applies migrations.
func NewSQLiteStore(ctx context.Context, db *sql.DB, opts ...Option) (*SQLiteStore, error) {
	return newSQLiteStore(opts...).attach(ctx, db)
}

func newSQLiteStore(opts ...Option) *SQLiteStore {
	s := &SQLiteStore{busyTimeout: defaultBusyTimeout, log: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQLiteStore) attach(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	// One connection: sqlite serialises writers anyway and ":memory:"
	// databases are per connection.
	db.SetMaxOpenConns(1)
	s.db = db
	if err := s.migrate(ctx); err != nil {
		if cerr := db.Close(); cerr != nil {
			s.log.Warn(ctx, "close after failed migration", logger.Error(cerr))
		}
		return nil, fmt.Errorf("%w: %w", ErrMigrate, err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS posture_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT,
			timestamp TEXT,
			status TEXT
		)`); err != nil {
		return err
	}

	cols, err := s.columns(ctx)
	if err != nil {
		return err
	}
	upgrades := []struct {
		column string
		stmt   string
	}{
		{"session_id", `ALTER TABLE posture_log ADD COLUMN session_id TEXT NOT NULL DEFAULT ''`},
		{"duration_ms", `ALTER TABLE posture_log ADD COLUMN duration_ms INTEGER NOT NULL DEFAULT 0`},
	}
	for _, u := range upgrades {
		if cols[u.column] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, u.stmt); err != nil {
			return err
		}
		s.log.Info(ctx, "upgraded posture_log", logger.String("column", u.column))
	}

	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_posture_log_username ON posture_log(username)`)
	return err
}

func (s *SQLiteStore) columns(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info('posture_log')`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	cols := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// Insert implements Store.
func (s *SQLiteStore) Insert(ctx context.Context, rec model.TransitionRecord) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := validate(rec); err != nil {
		return err
	}
	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posture_log (session_id, username, timestamp, status, duration_ms) VALUES (?, ?, ?, ?, ?)`,
		rec.SessionID,
		rec.User,
		rec.EnteredAt.Local().Format(timestampLayout),
		rec.Status.String(),
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	metrics.RecordPersistenceWrite(float64(time.Since(start).Microseconds()) / 1000)
	return nil
}

// Aggregates implements Store.
func (s *SQLiteStore) Aggregates(ctx context.Context, f AggregateFilter) ([]model.UserAggregate, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT username,
			COALESCE(SUM(CASE WHEN status = ? THEN duration_ms ELSE 0 END), 0),
			COALESCE(SUM(duration_ms), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COUNT(*)
		FROM posture_log
		WHERE (? = '' OR session_id <> ?) AND (? = '' OR username = ?)
		GROUP BY username
		ORDER BY username`,
		model.LabelGood, model.LabelGood,
		f.ExcludeSession, f.ExcludeSession,
		f.User, f.User,
	)
	if err != nil {
		return nil, fmt.Errorf("query aggregates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.UserAggregate
	for rows.Next() {
		var (
			agg           model.UserAggregate
			user          sql.NullString
			goodMs, allMs int64
		)
		if err := rows.Scan(&user, &goodMs, &allMs, &agg.GoodRecords, &agg.TotalRecords); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		agg.User = user.String
		agg.GoodTime = time.Duration(goodMs) * time.Millisecond
		agg.TotalTime = time.Duration(allMs) * time.Millisecond
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}
	return out, nil
}

// HasUser implements Store.
func (s *SQLiteStore) HasUser(ctx context.Context, user string) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posture_log WHERE username = ?`, user).Scan(&n); err != nil {
		return false, fmt.Errorf("count user records: %w", err)
	}
	return n > 0, nil
}

// Close implements Store. It is safe to call more than once.
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
