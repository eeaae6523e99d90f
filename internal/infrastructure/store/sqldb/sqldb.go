package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/store"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// Open opens a database for the dialect. For sqlite dsn is a file path and the
// parent directory is created when missing.
func Open(dialect Dialect, dsn string) (*sql.DB, error) {
	if dialect == DialectSQLite && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		dsn = "file:" + dsn + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// Transport executes statement RPCs against a database/sql handle and answers
// with the same JSON envelope a remote statement store would. Each transaction
// session is pinned to one connection.
type Transport struct {
	db      *sql.DB
	dialect Dialect

	mu       sync.Mutex
	sessions map[string]*sql.Conn
}

func New(db *sql.DB, dialect Dialect) *Transport {
	return &Transport{
		db:       db,
		dialect:  dialect,
		sessions: make(map[string]*sql.Conn),
	}
}

func (t *Transport) Dialect() Dialect {
	return t.dialect
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (t *Transport) Execute(ctx context.Context, req store.Request) ([]byte, error) {
	switch keyword(req.SQL) {
	case "BEGIN":
		return t.begin(ctx, req)
	case "COMMIT", "ROLLBACK":
		return t.finish(ctx, req)
	}

	var target queryer = t.db
	if req.Session != "" {
		conn, ok := t.session(req.Session)
		if !ok {
			return nil, fmt.Errorf("sqldb: unknown session %q", req.Session)
		}
		target = conn
	}

	query := req.SQL
	if t.dialect == DialectPostgres {
		query = Rebind(query)
	}

	if returnsRows(query) {
		return t.query(ctx, target, query, req.Params)
	}
	return t.exec(ctx, target, query, req.Params)
}

// Close rolls back and releases every open session.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, conn := range t.sessions {
		_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		_ = conn.Close()
		delete(t.sessions, id)
	}
	return nil
}

func (t *Transport) begin(ctx context.Context, req store.Request) ([]byte, error) {
	if req.Session == "" {
		return nil, fmt.Errorf("sqldb: BEGIN without session")
	}
	t.mu.Lock()
	_, exists := t.sessions[req.Session]
	t.mu.Unlock()
	if exists {
		return nil, fmt.Errorf("sqldb: session %q already open", req.Session)
	}

	conn, err := t.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqldb: acquire connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, req.SQL); err != nil {
		_ = conn.Close()
		return nil, err
	}

	t.mu.Lock()
	t.sessions[req.Session] = conn
	t.mu.Unlock()
	return []byte(`{"results":[{"rows":[],"rowsAffected":0}]}`), nil
}

func (t *Transport) finish(ctx context.Context, req store.Request) ([]byte, error) {
	t.mu.Lock()
	conn, ok := t.sessions[req.Session]
	if ok {
		delete(t.sessions, req.Session)
	}
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("sqldb: unknown session %q", req.Session)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, req.SQL); err != nil {
		if keyword(req.SQL) == "COMMIT" {
			_, _ = conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		}
		return nil, err
	}
	return []byte(`{"results":[{"rows":[],"rowsAffected":0}]}`), nil
}

func (t *Transport) session(id string) (*sql.Conn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	conn, ok := t.sessions[id]
	return conn, ok
}

type result struct {
	Columns         []string         `json:"columns"`
	Rows            []map[string]any `json:"rows"`
	RowsAffected    int64            `json:"rowsAffected"`
	LastInsertRowid *int64           `json:"lastInsertRowid,omitempty"`
}

type response struct {
	Results []result `json:"results"`
}

func (t *Transport) query(ctx context.Context, target queryer, query string, params []any) ([]byte, error) {
	rows, err := target.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqldb: read columns: %w", err)
	}

	out := result{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqldb: scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = jsonValue(values[i])
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if keyword(query) != "SELECT" && keyword(query) != "WITH" {
		out.RowsAffected = int64(len(out.Rows))
	}
	return json.Marshal(response{Results: []result{out}})
}

func (t *Transport) exec(ctx context.Context, target queryer, query string, params []any) ([]byte, error) {
	res, err := target.ExecContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}

	out := result{Rows: []map[string]any{}}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if keyword(query) == "INSERT" {
		if id, err := res.LastInsertId(); err == nil && id > 0 {
			out.LastInsertRowid = &id
		}
	}
	return json.Marshal(response{Results: []result{out}})
}

func jsonValue(v any) any {
	switch typed := v.(type) {
	case []byte:
		return string(typed)
	case time.Time:
		return typed.UTC().Format(time.RFC3339Nano)
	default:
		return typed
	}
}

func keyword(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(strings.TrimRight(fields[0], ";"))
}

func returnsRows(query string) bool {
	switch keyword(query) {
	case "SELECT", "WITH", "PRAGMA":
		return true
	}
	return strings.Contains(strings.ToUpper(query), "RETURNING")
}

// Rebind rewrites ? placeholders to $1..$n, leaving quoted text alone.
func Rebind(query string) string {
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '?':
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(ch)
	}
	return sb.String()
}
