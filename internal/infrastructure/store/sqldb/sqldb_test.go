package sqldb

import (
	"context"
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/store"
)

func openSQLite(t *testing.T) *Transport {
	t.Helper()
	db, err := Open(DialectSQLite, filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	tr := New(db, DialectSQLite)
	t.Cleanup(func() { _ = tr.Close() })
	mustExec(t, tr, store.Request{SQL: "CREATE TABLE things (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)"})
	return tr
}

func mustExec(t *testing.T, tr *Transport, req store.Request) map[string]any {
	t.Helper()
	body, err := tr.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute(%q) error = %v", req.SQL, err)
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return out
}

func firstResult(t *testing.T, env map[string]any) map[string]any {
	t.Helper()
	results, ok := env["results"].([]any)
	if !ok || len(results) == 0 {
		t.Fatalf("envelope has no results: %v", env)
	}
	return results[0].(map[string]any)
}

func countThings(t *testing.T, tr *Transport) int {
	t.Helper()
	env := mustExec(t, tr, store.Request{SQL: "SELECT COUNT(*) AS n FROM things"})
	rows := firstResult(t, env)["rows"].([]any)
	return int(rows[0].(map[string]any)["n"].(float64))
}

func TestSQLiteSessionCommit(t *testing.T) {
	tr := openSQLite(t)

	mustExec(t, tr, store.Request{Session: "s1", SQL: "BEGIN"})
	env := mustExec(t, tr, store.Request{Session: "s1", SQL: "INSERT INTO things (name) VALUES (?) RETURNING id", Params: []any{"a"}})
	rows := firstResult(t, env)["rows"].([]any)
	if id := rows[0].(map[string]any)["id"].(float64); id != 1 {
		t.Fatalf("expected id 1, got %v", id)
	}

	env = mustExec(t, tr, store.Request{Session: "s1", SQL: "INSERT INTO things (name) VALUES (?)", Params: []any{"b"}})
	res := firstResult(t, env)
	if res["lastInsertRowid"].(float64) != 2 || res["rowsAffected"].(float64) != 1 {
		t.Fatalf("unexpected exec envelope: %v", res)
	}
	mustExec(t, tr, store.Request{Session: "s1", SQL: "COMMIT"})

	if n := countThings(t, tr); n != 2 {
		t.Fatalf("expected 2 committed rows, got %d", n)
	}
}

func TestSQLiteSessionRollback(t *testing.T) {
	tr := openSQLite(t)

	mustExec(t, tr, store.Request{Session: "s2", SQL: "BEGIN"})
	mustExec(t, tr, store.Request{Session: "s2", SQL: "INSERT INTO things (name) VALUES (?)", Params: []any{"gone"}})
	mustExec(t, tr, store.Request{Session: "s2", SQL: "ROLLBACK"})

	if n := countThings(t, tr); n != 0 {
		t.Fatalf("expected rollback to discard rows, got %d", n)
	}
}

func TestUnknownSessionIsRejected(t *testing.T) {
	tr := openSQLite(t)

	_, err := tr.Execute(context.Background(), store.Request{Session: "nope", SQL: "INSERT INTO things (name) VALUES ('x')"})
	if err == nil || !strings.Contains(err.Error(), "unknown session") {
		t.Fatalf("expected unknown session error, got %v", err)
	}
	if _, err := tr.Execute(context.Background(), store.Request{Session: "nope", SQL: "COMMIT"}); err == nil {
		t.Fatalf("expected COMMIT on unknown session to fail")
	}
}

func TestRebind(t *testing.T) {
	got := Rebind(`SELECT * FROM t WHERE a = ? AND b = '?' AND c = ?`)
	want := `SELECT * FROM t WHERE a = $1 AND b = '?' AND c = $2`
	if got != want {
		t.Fatalf("Rebind() = %q, want %q", got, want)
	}
}

func TestPostgresDialectRebindsAndReturnsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	tr := New(db, DialectPostgres)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO lists (name) VALUES ($1) RETURNING id")).
		WithArgs("groceries").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))

	body, err := tr.Execute(context.Background(), store.Request{
		SQL:    "INSERT INTO lists (name) VALUES (?) RETURNING id",
		Params: []any{"groceries"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(string(body), `"rows":[{"id":4}]`) {
		t.Fatalf("unexpected envelope: %s", body)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
