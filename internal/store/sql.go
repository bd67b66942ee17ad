package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/mailwright/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT   NOT NULL,
	id         TEXT   NOT NULL,
	data       TEXT   NOT NULL,
	labels     TEXT   NOT NULL DEFAULT '{}',
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_documents_recency ON documents(collection, updated_at DESC);
`

// SQL is a Store backed by a single documents table in SQLite or Postgres.
type SQL struct {
	conn    *sql.DB
	dialect string
}

// OpenSQLite opens (or creates) a SQLite database file and applies the schema.
func OpenSQLite(path string) (*SQL, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)
	return initSQL(conn, "sqlite3")
}

// OpenPostgres connects to Postgres and applies the schema.
func OpenPostgres(dsn string) (*SQL, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	return initSQL(conn, "postgres")
}

func initSQL(conn *sql.DB, dialect string) (*SQL, error) {
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQL{conn: conn, dialect: dialect}, nil
}

func (s *SQL) Collection(name string) Collection { return &sqlCollection{s: s, name: name} }

func (s *SQL) Ping(ctx context.Context) error { return s.conn.PingContext(ctx) }

// Close closes the underlying database connection.
func (s *SQL) Close() error { return s.conn.Close() }

// rebind rewrites ? placeholders as $n for Postgres.
func (s *SQL) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type sqlCollection struct {
	s    *SQL
	name string
}

func (c *sqlCollection) Save(ctx context.Context, doc Document) error {
	doc = stamp(doc)
	labels, err := json.Marshal(doc.Labels)
	if err != nil {
		return fmt.Errorf("store: marshal labels: %w", err)
	}
	if doc.Labels == nil {
		labels = []byte("{}")
	}
	_, err = c.s.conn.ExecContext(ctx, c.s.rebind(`
		INSERT INTO documents (collection, id, data, labels, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			data       = excluded.data,
			labels     = excluded.labels,
			updated_at = excluded.updated_at
	`), c.name, doc.ID, string(doc.Data), string(labels), doc.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("store: save %s/%s: %w", c.name, doc.ID, err)
	}
	return nil
}

func (c *sqlCollection) Get(ctx context.Context, id string) (Document, error) {
	row := c.s.conn.QueryRowContext(ctx, c.s.rebind(
		`SELECT id, data, labels, updated_at FROM documents WHERE collection = ? AND id = ?`), c.name, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("store: get %s/%s: %w", c.name, id, apperr.ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("store: get %s/%s: %w", c.name, id, err)
	}
	return doc, nil
}

// List orders and bounds by time in SQL; label matching happens after the
// scan, so the limit is applied in Go.
func (c *sqlCollection) List(ctx context.Context, f Filter) ([]Document, error) {
	var since int64
	if !f.Since.IsZero() {
		since = f.Since.UnixNano()
	}
	rows, err := c.s.conn.QueryContext(ctx, c.s.rebind(`
		SELECT id, data, labels, updated_at FROM documents
		WHERE collection = ? AND updated_at >= ?
		ORDER BY updated_at DESC
	`), c.name, since)
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", c.name, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list %s: %w", c.name, err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list %s: %w", c.name, err)
	}
	return f.apply(out), nil
}

func (c *sqlCollection) Delete(ctx context.Context, id string) error {
	res, err := c.s.conn.ExecContext(ctx, c.s.rebind(
		`DELETE FROM documents WHERE collection = ? AND id = ?`), c.name, id)
	if err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", c.name, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: delete %s/%s: %w", c.name, id, apperr.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (Document, error) {
	var (
		doc     Document
		data    string
		labels  string
		updated int64
	)
	if err := row.Scan(&doc.ID, &data, &labels, &updated); err != nil {
		return Document{}, err
	}
	doc.Data = json.RawMessage(data)
	if labels != "" && labels != "{}" && labels != "null" {
		if err := json.Unmarshal([]byte(labels), &doc.Labels); err != nil {
			return Document{}, fmt.Errorf("decode labels: %w", err)
		}
	}
	doc.UpdatedAt = time.Unix(0, updated).UTC()
	return doc, nil
}
