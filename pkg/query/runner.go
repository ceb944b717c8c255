// Package query executes the configured report queries one after another.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xlttj/chreport/pkg/config"
	"github.com/xlttj/chreport/pkg/logging"
)

// Querier is satisfied by *sql.DB.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Result is one successful query rendered as columns and rows, both in the
// order the database returned them.
type Result struct {
	Name        string
	DisplayName string
	Columns     []string
	Rows        [][]any
}

// Outcome is the result of one query; Result is nil when Err is set.
type Outcome struct {
	Query    config.Query
	Result   *Result
	Err      error
	Duration time.Duration
}

// Runner runs queries with an optional per-query timeout.
type Runner struct {
	DB      Querier
	Timeout time.Duration
}

func NewRunner(db Querier, timeoutSeconds int) *Runner {
	return &Runner{DB: db, Timeout: time.Duration(timeoutSeconds) * time.Second}
}

// RunAll executes queries in order. A failing query is logged and recorded
// in its Outcome; the others still run. Cancelling ctx does not interrupt a
// query already executing, but no further query starts: the returned
// outcomes then cover only the queries attempted, together with ctx.Err().
func (r *Runner) RunAll(ctx context.Context, queries []config.Query) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(queries))
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			logging.LogWarn("Stopping before query %d/%d (%s): %v", i+1, len(queries), q.Key, err)
			return outcomes, err
		}
		outcomes = append(outcomes, r.run(ctx, q))
	}
	return outcomes, nil
}

func (r *Runner) run(ctx context.Context, q config.Query) Outcome {
	logging.LogInfo("Executing query: %s", q.Key)
	start := time.Now()

	qctx := context.WithoutCancel(ctx)
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(qctx, r.Timeout)
		defer cancel()
	}

	res, err := execute(qctx, r.DB, q)
	out := Outcome{Query: q, Result: res, Err: err, Duration: time.Since(start)}
	if err != nil {
		logging.LogError("Error executing query %s: %v", q.Key, err)
		return out
	}
	logging.LogInfo("Query %s completed, %d rows returned", q.Key, len(res.Rows))
	return out
}

func execute(ctx context.Context, db Querier, q config.Query) (*Result, error) {
	rows, err := db.QueryContext(ctx, q.SQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	res := &Result{Name: q.Key, DisplayName: q.DisplayName(), Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(res.Rows)+1, err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Results returns the successful results in order, dropping failures.
func Results(outcomes []Outcome) []Result {
	results := make([]Result, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err == nil && o.Result != nil {
			results = append(results, *o.Result)
		}
	}
	return results
}
