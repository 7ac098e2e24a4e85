package taskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     TEXT    NOT NULL,
	title       TEXT    NOT NULL,
	description TEXT    NOT NULL DEFAULT '',
	completed   INTEGER NOT NULL DEFAULT 0,
	priority    TEXT    NOT NULL DEFAULT 'medium',
	tags_json   TEXT    NOT NULL DEFAULT '[]',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id, created_at);
`

const taskColumns = `id, user_id, title, description, completed, priority, tags_json, created_at, updated_at`

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the task database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create tasks dir: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open tasks db: %w", err)
	}
	// One writer at a time; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init tasks schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, userID string, t NewTask) (*Task, error) {
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return nil, err
	}
	priority := t.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	now := s.now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (user_id, title, description, completed, priority, tags_json, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?, ?, ?)`,
		userID, t.Title, t.Description, string(priority), tags, now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert task id: %w", err)
	}
	return s.Get(ctx, userID, id)
}

func (s *SQLiteStore) List(ctx context.Context, userID string, f Filter) ([]*Task, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	switch f.Status {
	case StatusPending:
		where = append(where, "completed = 0")
	case StatusCompleted:
		where = append(where, "completed = 1")
	}
	if f.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(f.Priority))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		where = append(where, "(instr(lower(title), ?) > 0 OR instr(lower(description), ?) > 0)")
		q = strings.ToLower(q)
		args = append(args, q, q)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at, id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID string, id int64) (*Task, error) {
	return getTask(ctx, s.db, userID, id)
}

// Update applies p inside a transaction so a cancelled request never leaves
// a half-written row. An empty patch reads the task without writing.
func (s *SQLiteStore) Update(ctx context.Context, userID string, id int64, p Patch) (*Task, error) {
	if p.Empty() {
		return s.Get(ctx, userID, id)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	t, err := getTask(ctx, tx, userID, id)
	if err != nil {
		return nil, err
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.SetTags {
		t.Tags = p.Tags
	}
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return nil, err
	}
	t.UpdatedAt = s.now().UTC()

	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, priority = ?, tags_json = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		t.Title, t.Description, string(t.Priority), tags, t.UpdatedAt.UnixNano(), id, userID); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID string, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	return n > 0, nil
}

// SetCompleted is idempotent: completing a completed task succeeds and
// leaves updated_at untouched.
func (s *SQLiteStore) SetCompleted(ctx context.Context, userID string, id int64, completed bool) (*Task, error) {
	flag := 0
	if completed {
		flag = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET completed = ?, updated_at = ? WHERE id = ? AND user_id = ? AND completed != ?`,
		flag, s.now().UTC().UnixNano(), id, userID, flag)
	if err != nil {
		return nil, fmt.Errorf("set completed: %w", err)
	}
	if _, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("set completed: %w", err)
	}
	return s.Get(ctx, userID, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTask(ctx context.Context, q queryer, userID string, id int64) (*Task, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return t, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (*Task, error) {
	var (
		t                  Task
		completed          int
		priority, tagsJSON string
		created, updated   int64
	)
	if err := sc.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &completed, &priority, &tagsJSON, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.Completed = completed != 0
	t.Priority = Priority(priority)
	t.CreatedAt = time.Unix(0, created).UTC()
	t.UpdatedAt = time.Unix(0, updated).UTC()
	if err := json.Unmarshal([]byte(tagsJSON), &t.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return &t, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(data), nil
}
