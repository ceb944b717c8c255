package query

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xlttj/chreport/pkg/config"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`
		CREATE TABLE events (id INTEGER, kind TEXT, payload BLOB);
		INSERT INTO events VALUES (1, 'insert', x'6869'), (2, 'select', NULL), (3, 'merge', x'00');
	`)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

// hookQuerier delegates to a real database and runs before on every query.
type hookQuerier struct {
	db     *sql.DB
	before func(ctx context.Context, query string)
}

func (h *hookQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	h.before(ctx, query)
	return h.db.QueryContext(ctx, query, args...)
}

func TestRunAllIsolatesFailures(t *testing.T) {
	db := openTestDB(t)
	queries := []config.Query{
		{Key: "first", SQL: "SELECT 1 AS one"},
		{Key: "second", Name: "Second Query", SQL: "SELECT kind FROM events ORDER BY id"},
		{Key: "broken", SQL: "SELECT * FROM missing_table"},
		{Key: "fourth", SQL: "SELECT count(*) AS n FROM events"},
	}

	outcomes, err := NewRunner(db, 0).RunAll(context.Background(), queries)
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if len(outcomes) != 4 {
		t.Fatalf("got %d outcomes, want 4", len(outcomes))
	}
	for i, o := range outcomes {
		if o.Query.Key != queries[i].Key {
			t.Errorf("outcome %d is %s, want %s", i, o.Query.Key, queries[i].Key)
		}
	}
	if outcomes[2].Err == nil || outcomes[2].Result != nil {
		t.Errorf("broken query outcome = %+v, want an error and no result", outcomes[2])
	}
	if outcomes[3].Err != nil || outcomes[3].Result.Rows[0][0] != int64(3) {
		t.Errorf("fourth query outcome = %+v, want count 3", outcomes[3])
	}

	results := Results(outcomes)
	if len(results) != 3 {
		t.Fatalf("Results() kept %d, want 3", len(results))
	}
	if results[1].DisplayName != "Second Query" || results[0].DisplayName != "first" {
		t.Errorf("display names = %q, %q", results[0].DisplayName, results[1].DisplayName)
	}
}

func TestRunAllPreservesOrderAndConvertsBytes(t *testing.T) {
	db := openTestDB(t)
	q := config.Query{Key: "events", SQL: "SELECT payload, kind, id FROM events ORDER BY id DESC"}

	outcomes, err := NewRunner(db, 0).RunAll(context.Background(), []config.Query{q})
	if err != nil || outcomes[0].Err != nil {
		t.Fatalf("RunAll() = %v, %v", err, outcomes[0].Err)
	}
	res := outcomes[0].Result
	if got := res.Columns; len(got) != 3 || got[0] != "payload" || got[1] != "kind" || got[2] != "id" {
		t.Errorf("Columns = %v", got)
	}
	if len(res.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(res.Rows))
	}
	if res.Rows[0][2] != int64(3) || res.Rows[2][2] != int64(1) {
		t.Errorf("rows not in database order: %v", res.Rows)
	}
	if res.Rows[2][0] != "hi" {
		t.Errorf("blob = %#v, want string \"hi\"", res.Rows[2][0])
	}
	if res.Rows[1][0] != nil {
		t.Errorf("NULL = %#v, want nil", res.Rows[1][0])
	}
}

func TestRunAllEmptyResult(t *testing.T) {
	db := openTestDB(t)
	q := config.Query{Key: "none", SQL: "SELECT id FROM events WHERE id > 100"}

	outcomes, _ := NewRunner(db, 0).RunAll(context.Background(), []config.Query{q})
	if outcomes[0].Err != nil {
		t.Fatalf("query error = %v", outcomes[0].Err)
	}
	if res := outcomes[0].Result; len(res.Rows) != 0 || len(res.Columns) != 1 {
		t.Errorf("result = %+v, want one column and no rows", res)
	}
}

func TestRunAllStopsBetweenQueriesWhenCancelled(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []string
	querier := &hookQuerier{db: db, before: func(qctx context.Context, query string) {
		seen = append(seen, query)
		cancel()
		if qctx.Err() != nil {
			t.Errorf("in-flight query saw cancellation: %v", qctx.Err())
		}
	}}
	queries := []config.Query{
		{Key: "a", SQL: "SELECT 1"},
		{Key: "b", SQL: "SELECT 2"},
	}

	outcomes, err := NewRunner(querier, 0).RunAll(ctx, queries)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunAll() error = %v, want context.Canceled", err)
	}
	if len(outcomes) != 1 || outcomes[0].Err != nil {
		t.Fatalf("outcomes = %+v, want the first query completed", outcomes)
	}
	if len(seen) != 1 {
		t.Errorf("executed %v after cancellation", seen)
	}
}

func TestRunAllAppliesQueryTimeout(t *testing.T) {
	db := openTestDB(t)
	var deadlines []bool
	querier := &hookQuerier{db: db, before: func(qctx context.Context, _ string) {
		_, ok := qctx.Deadline()
		deadlines = append(deadlines, ok)
	}}
	q := []config.Query{{Key: "a", SQL: "SELECT 1"}}

	NewRunner(querier, 0).RunAll(context.Background(), q)
	r := NewRunner(querier, 30)
	if r.Timeout != 30*time.Second {
		t.Fatalf("Timeout = %s", r.Timeout)
	}
	r.RunAll(context.Background(), q)

	if len(deadlines) != 2 || deadlines[0] || !deadlines[1] {
		t.Errorf("deadlines = %v, want [false true]", deadlines)
	}
}
