package store

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/initiative-app/offline-edge/internal/logging"
)

func init() {
	// Register http.Header for gob encoding (it's a map[string][]string).
	gob.Register(http.Header{})
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS namespaces (
	name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS entries (
	namespace TEXT NOT NULL,
	key       TEXT NOT NULL,
	status    INTEGER NOT NULL,
	headers   BLOB NOT NULL,
	body      BLOB NOT NULL,
	stored_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, key)
);
`

// SQLiteRegistry manages cache namespaces in a single SQLite file, so
// cached data survives process restarts.
type SQLiteRegistry struct {
	db *sql.DB
}

// OpenSQLiteRegistry opens (or creates) the cache database at path.
func OpenSQLiteRegistry(path string) (*SQLiteRegistry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite cache path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite cache: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	return &SQLiteRegistry{db: db}, nil
}

func (r *SQLiteRegistry) Open(namespace string) (Store, error) {
	if _, err := r.db.Exec(`INSERT OR IGNORE INTO namespaces (name) VALUES (?)`, namespace); err != nil {
		return nil, fmt.Errorf("register namespace %s: %w", namespace, err)
	}
	return &SQLiteStore{db: r.db, namespace: namespace}, nil
}

func (r *SQLiteRegistry) Namespaces() ([]string, error) {
	rows, err := r.db.Query(`SELECT name FROM namespaces ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *SQLiteRegistry) Drop(namespace string) error {
	if _, err := r.db.Exec(`DELETE FROM entries WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("drop namespace entries: %w", err)
	}
	if _, err := r.db.Exec(`DELETE FROM namespaces WHERE name = ?`, namespace); err != nil {
		return fmt.Errorf("drop namespace: %w", err)
	}
	return nil
}

func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

// SQLiteStore is one namespace within a SQLiteRegistry.
type SQLiteStore struct {
	db            *sql.DB
	namespace     string
	writeFailures atomic.Int64
}

func (s *SQLiteStore) Get(key string) (*Entry, bool) {
	var (
		status   int
		headers  []byte
		body     []byte
		storedAt int64
	)
	err := s.db.QueryRow(
		`SELECT status, headers, body, stored_at FROM entries WHERE namespace = ? AND key = ?`,
		s.namespace, key,
	).Scan(&status, &headers, &body, &storedAt)
	if err != nil {
		if err != sql.ErrNoRows {
			logging.Warn("sqlite cache get failed, treating as miss",
				zap.String("namespace", s.namespace), zap.Error(err))
		}
		return nil, false
	}

	var hdr http.Header
	if err := gob.NewDecoder(bytes.NewReader(headers)).Decode(&hdr); err != nil {
		logging.Warn("sqlite cache decode failed, treating as miss",
			zap.String("namespace", s.namespace), zap.Error(err))
		return nil, false
	}
	return &Entry{
		StatusCode: status,
		Headers:    hdr,
		Body:       body,
		StoredAt:   time.UnixMilli(storedAt).UTC(),
	}, true
}

func (s *SQLiteStore) Set(key string, entry *Entry) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry.Headers); err != nil {
		s.writeFailures.Add(1)
		logging.Warn("sqlite cache encode failed",
			zap.String("namespace", s.namespace), zap.Error(err))
		return
	}

	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO entries (namespace, key, status, headers, body, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.namespace, key, entry.StatusCode, buf.Bytes(), entry.Body, storedAt.UTC().UnixMilli(),
	)
	if err != nil {
		s.writeFailures.Add(1)
		logging.Warn("sqlite cache set failed",
			zap.String("namespace", s.namespace), zap.Error(err))
	}
}

func (s *SQLiteStore) Delete(key string) {
	if _, err := s.db.Exec(`DELETE FROM entries WHERE namespace = ? AND key = ?`, s.namespace, key); err != nil {
		logging.Warn("sqlite cache delete failed",
			zap.String("namespace", s.namespace), zap.Error(err))
	}
}

func (s *SQLiteStore) Keys() []string {
	rows, err := s.db.Query(`SELECT key FROM entries WHERE namespace = ?`, s.namespace)
	if err != nil {
		logging.Warn("sqlite cache keys failed",
			zap.String("namespace", s.namespace), zap.Error(err))
		return nil
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return keys
		}
		keys = append(keys, key)
	}
	return keys
}

func (s *SQLiteStore) Len() int {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entries WHERE namespace = ?`, s.namespace).Scan(&n); err != nil {
		return 0
	}
	return n
}

func (s *SQLiteStore) Purge() {
	if _, err := s.db.Exec(`DELETE FROM entries WHERE namespace = ?`, s.namespace); err != nil {
		logging.Warn("sqlite cache purge failed",
			zap.String("namespace", s.namespace), zap.Error(err))
	}
}

func (s *SQLiteStore) Stats() Stats {
	return Stats{
		Size:          s.Len(),
		WriteFailures: s.writeFailures.Load(),
	}
}
