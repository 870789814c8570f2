package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "wabot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Sessions ----

func (s *sqliteStore) CreateSession(ctx context.Context, sess Session) (int64, error) {
	status := sess.Status
	if status == "" {
		status = SessionDisconnected
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(owner_id, name, status, last_log) VALUES(?,?,?,?)`,
		sess.OwnerID, sess.Name, string(status), nullStr(sess.LastLog),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) GetSession(ctx context.Context, id int64) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, status, last_log, created_at FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *sqliteStore) ListSessions(ctx context.Context, ownerID int64) ([]Session, error) {
	q := `SELECT id, owner_id, name, status, last_log, created_at FROM sessions`
	args := []any{}
	if ownerID != 0 {
		q += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateSessionStatus(ctx context.Context, id int64, status SessionStatus, log string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, last_log = ? WHERE id = ?`,
		string(status), nullStr(log), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ---- Tasks ----

func (s *sqliteStore) CreateTask(ctx context.Context, t Task) (int64, error) {
	status := t.Status
	if status == "" {
		status = TaskStopped
	}
	tt := t.TargetType
	if tt == "" {
		tt = TargetContact
	}
	msgs, err := json.Marshal(t.Messages)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(owner_id, session_id, name, target, target_type, messages, interval_seconds, prefix_name, status, last_log)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		t.OwnerID, t.SessionID, t.Name, t.Target, string(tt), string(msgs),
		t.IntervalSeconds, t.PrefixName, string(status), nullStr(t.LastLog),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) GetTask(ctx context.Context, id int64) (Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, session_id, name, target, target_type, messages, interval_seconds, prefix_name, status, last_log, created_at
		 FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

func (s *sqliteStore) UpdateTask(ctx context.Context, t Task) error {
	msgs, err := json.Marshal(t.Messages)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET session_id = ?, name = ?, target = ?, target_type = ?, messages = ?, interval_seconds = ?, prefix_name = ?, status = ?
		 WHERE id = ?`,
		t.SessionID, t.Name, t.Target, string(t.TargetType), string(msgs),
		t.IntervalSeconds, t.PrefixName, string(t.Status), t.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) ListTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	q := `SELECT id, owner_id, session_id, name, target, target_type, messages, interval_seconds, prefix_name, status, last_log, created_at FROM tasks`
	var (
		conds []string
		args  []any
	)
	if f.OwnerID != 0 {
		conds = append(conds, `owner_id = ?`)
		args = append(args, f.OwnerID)
	}
	if f.SessionID != 0 {
		conds = append(conds, `session_id = ?`)
		args = append(args, f.SessionID)
	}
	if f.Status != "" {
		conds = append(conds, `status = ?`)
		args = append(args, string(f.Status))
	}
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateTaskStatus(ctx context.Context, id int64, status TaskStatus, log string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, last_log = ? WHERE id = ?`,
		string(status), nullStr(log), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ---- Scan helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (Session, error) {
	var (
		sess    Session
		status  string
		lastLog sql.NullString
		created string
	)
	err := r.Scan(&sess.ID, &sess.OwnerID, &sess.Name, &status, &lastLog, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	sess.Status = SessionStatus(status)
	sess.LastLog = lastLog.String
	sess.CreatedAt = parseTime(created)
	return sess, nil
}

func scanTask(r rowScanner) (Task, error) {
	var (
		t        Task
		tt       string
		status   string
		messages string
		lastLog  sql.NullString
		created  string
	)
	err := r.Scan(&t.ID, &t.OwnerID, &t.SessionID, &t.Name, &t.Target, &tt,
		&messages, &t.IntervalSeconds, &t.PrefixName, &status, &lastLog, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	t.TargetType = TargetType(tt)
	t.Status = TaskStatus(status)
	t.LastLog = lastLog.String
	t.CreatedAt = parseTime(created)
	if messages != "" {
		// A malformed messages column is surfaced as an empty list; the
		// scheduler treats that as invalid configuration, not a crash.
		_ = json.Unmarshal([]byte(messages), &t.Messages)
	}
	return t, nil
}

func parseTime(v string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
