// Package history provides SQLite-based persistence for chat sessions and
// their messages. The database is opened lazily and created on first use.
// If opening the file fails, the store falls back to an in-memory database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/medchat-go/internal/chat"
	"github.com/comigor/medchat-go/internal/logger"
	"github.com/comigor/medchat-go/internal/session"
)

// ErrNotFound is returned for operations on an unknown session.
var ErrNotFound = errors.New("session not found")

// ErrClosed is returned by a store closed before its first use.
var ErrClosed = errors.New("history store closed")

const memoryDSN = "file::memory:?_busy_timeout=10000&_fk=1"

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	sender TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_session ON messages (session_id, id);`

// Store persists sessions and messages. The zero value is not usable; call Open.
type Store struct {
	path string

	once    sync.Once
	db      *sql.DB
	initErr error
}

// Open returns a store backed by the SQLite file at path. An empty path keeps
// everything in memory. Nothing touches the disk until the first call.
func Open(path string) *Store {
	return &Store{path: path}
}

func (s *Store) init() {
	if s.path != "" {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			logger.L.Warn("history dir create failed; using in-memory history", "error", err)
		} else if db, err := openDB("file:" + s.path + "?_busy_timeout=10000&_fk=1"); err != nil {
			logger.L.Warn("sqlite open failed; using in-memory history", "path", s.path, "error", err)
		} else {
			s.db = db
			logger.L.Info("sqlite history DB initialized", "path", s.path)
			return
		}
	}

	db, err := openDB(memoryDSN)
	if err != nil {
		s.initErr = err
		logger.L.Error("in-memory sqlite unavailable", "error", err)
		return
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	s.db = db
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (s *Store) conn() (*sql.DB, error) {
	s.once.Do(s.init)
	return s.db, s.initErr
}

// Close releases the database, if it was opened. A store that was never used
// is closed without touching the disk.
func (s *Store) Close() error {
	opened := true
	s.once.Do(func() {
		opened = false
		s.initErr = ErrClosed
	})
	if !opened || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertSession stores sess. A known id only gets its title replaced.
func (s *Store) UpsertSession(ctx context.Context, sess session.Session) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	created := sess.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = db.ExecContext(ctx, `INSERT INTO sessions (id, title, created_at) VALUES (?,?,?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title;`,
		sess.ID, sess.Title, formatTime(created))
	return err
}

// Sessions returns all sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]session.Session, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT id, title, created_at FROM sessions ORDER BY created_at DESC, rowid DESC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Session
	for rows.Next() {
		var sess session.Session
		var created string
		if err := rows.Scan(&sess.ID, &sess.Title, &created); err != nil {
			return nil, err
		}
		sess.CreatedAt = parseTime(created)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Session returns one session or ErrNotFound.
func (s *Store) Session(ctx context.Context, id string) (session.Session, error) {
	db, err := s.conn()
	if err != nil {
		return session.Session{}, err
	}
	sess := session.Session{ID: id}
	var created string
	err = db.QueryRowContext(ctx, `SELECT title, created_at FROM sessions WHERE id = ?;`, id).Scan(&sess.Title, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, ErrNotFound
	}
	if err != nil {
		return session.Session{}, err
	}
	sess.CreatedAt = parseTime(created)
	return sess, nil
}

// RenameSession sets the title of id.
func (s *Store) RenameSession(ctx context.Context, id, title string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `UPDATE sessions SET title = ? WHERE id = ?;`, title, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteSession removes id and all of its messages.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?;`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?;`, id)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

// Append adds a message to the end of a session.
func (s *Store) Append(ctx context.Context, sessionID string, msg chat.Message) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO messages (session_id, message_id, sender, content, created_at) VALUES (?,?,?,?,?);`,
		sessionID, msg.ID, string(msg.Sender), msg.Text, formatTime(msg.Timestamp))
	return err
}

// Replace overwrites the stored messages of a session with msgs.
func (s *Store) Replace(ctx context.Context, sessionID string, msgs []chat.Message) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?;`, sessionID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO messages (session_id, message_id, sender, content, created_at) VALUES (?,?,?,?,?);`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx, sessionID, m.ID, string(m.Sender), m.Text, formatTime(m.Timestamp)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// List returns the messages of a session in chronological order. When limit
// is positive only the newest limit messages are returned.
func (s *Store) List(ctx context.Context, sessionID string, limit int) ([]chat.Message, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	query := `SELECT message_id, sender, content, created_at FROM messages WHERE session_id = ? ORDER BY id ASC;`
	args := []any{sessionID}
	if limit > 0 {
		query = `SELECT message_id, sender, content, created_at FROM (
			SELECT id, message_id, sender, content, created_at FROM messages WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC;`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var m chat.Message
		var sender, created string
		if err := rows.Scan(&m.ID, &sender, &m.Text, &created); err != nil {
			return nil, err
		}
		m.Sender = chat.Sender(sender)
		m.Timestamp = parseTime(created)
		out = append(out, m)
	}
	return out, rows.Err()
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

// fixed width so that text order matches time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
