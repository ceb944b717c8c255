// Package run drives one report run from connection to cleanup.
package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xlttj/chreport/pkg/config"
	"github.com/xlttj/chreport/pkg/database"
	"github.com/xlttj/chreport/pkg/history"
	"github.com/xlttj/chreport/pkg/logging"
	"github.com/xlttj/chreport/pkg/query"
)

var (
	ErrInterrupted = errors.New("run interrupted")
	ErrPanic       = errors.New("run panicked")
)

type Stage int

const (
	StageIdle Stage = iota
	StageConnecting
	StageQuerying
	StageReporting
	StageCleanup
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "Idle"
	case StageConnecting:
		return "Connecting"
	case StageQuerying:
		return "Querying"
	case StageReporting:
		return "Reporting"
	case StageCleanup:
		return "Cleanup"
	case StageDone:
		return "Done"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

type Connector interface {
	Connect(ctx context.Context, cfg config.ConnectionConfig) (*database.Session, error)
}

type ReportWriter interface {
	Write(results []query.Result) (string, error)
}

type Recorder interface {
	Record(r history.Run) error
}

// Outcome summarizes a run. Stage is StageDone on success and otherwise the
// stage in which the run failed.
type Outcome struct {
	RunID           string
	StartedAt       time.Time
	Duration        time.Duration
	Success         bool
	Stage           Stage
	Mode            config.Mode
	QueriesRun      int
	QueriesFailed   int
	ResultsProduced int
	ReportPath      string
	Err             error
}

func (o Outcome) ExitCode() int {
	if o.Success {
		return 0
	}
	return 1
}

// Controller runs the stages in order. History is optional.
type Controller struct {
	Config    *config.Config
	Connector Connector
	Writer    ReportWriter
	History   Recorder

	Now   func() time.Time
	NewID func() string
}

func NewController(cfg *config.Config, connector Connector, writer ReportWriter) *Controller {
	return &Controller{
		Config:    cfg,
		Connector: connector,
		Writer:    writer,
		Now:       time.Now,
		NewID:     uuid.NewString,
	}
}

// Run executes one report run. Whatever happens, including a panic or
// cancellation of ctx, the database session and its tunnel are released
// exactly once before Run returns. Cancelling ctx while a query runs
// returns without waiting for that query.
func (c *Controller) Run(ctx context.Context) (out Outcome) {
	start := c.Now()
	out = Outcome{RunID: c.NewID(), StartedAt: start, Stage: StageIdle, Mode: c.Config.ClickHouse.EffectiveMode()}
	logging.LogInfo("Report run %s started", out.RunID)

	var session *database.Session
	abandoned := false
	defer func() {
		if r := recover(); r != nil {
			logging.LogError("Run %s panicked during %s: %v", out.RunID, out.Stage, r)
			out.Err = fmt.Errorf("%w during %s: %v", ErrPanic, out.Stage, r)
			out.Success = false
		}
		logging.LogDebug("Run %s: %s -> %s", out.RunID, out.Stage, StageCleanup)
		switch {
		case abandoned:
			// The tunnel is already gone; closing the database would wait
			// for the query still running on it.
			go session.Close()
		case session != nil:
			session.Close()
		}
		if out.Success {
			out.Stage = StageDone
		}
		out.Duration = c.Now().Sub(start)
		c.finish(out)
	}()

	c.enter(&out, StageConnecting)
	if err := interrupted(ctx); err != nil {
		out.Err = err
		return out
	}
	var err error
	session, err = c.Connector.Connect(ctx, c.Config.ClickHouse)
	if err != nil {
		out.Err = orInterrupted(ctx, err)
		return out
	}
	out.Mode = session.Mode

	c.enter(&out, StageQuerying)
	if err := interrupted(ctx); err != nil {
		out.Err = err
		return out
	}
	runner := query.NewRunner(session.DB, c.Config.ClickHouse.QueryTimeoutSeconds)
	done := make(chan queryBatch, 1)
	go func() {
		var b queryBatch
		defer func() {
			b.panicked = recover()
			done <- b
		}()
		b.outcomes, b.err = runner.RunAll(ctx, c.Config.Queries)
	}()

	var batch queryBatch
	select {
	case batch = <-done:
	case <-ctx.Done():
		// A running query is never cancelled, but the run does not wait for
		// it either: the tunnel goes down now and the run ends.
		logging.LogWarn("Run %s interrupted while querying; releasing the connection", out.RunID)
		session.Release()
		abandoned = true
		out.Err = interrupted(ctx)
		return out
	}
	if batch.panicked != nil {
		panic(batch.panicked)
	}
	out.QueriesRun = len(batch.outcomes)
	for _, o := range batch.outcomes {
		if o.Err != nil {
			out.QueriesFailed++
		}
	}
	if batch.err != nil {
		out.Err = orInterrupted(ctx, batch.err)
		return out
	}
	if err := interrupted(ctx); err != nil {
		out.Err = err
		return out
	}
	results := query.Results(batch.outcomes)

	c.enter(&out, StageReporting)
	if err := interrupted(ctx); err != nil {
		out.Err = err
		return out
	}
	path, err := c.Writer.Write(results)
	if err != nil {
		out.Err = err
		return out
	}
	for _, r := range results {
		if len(r.Rows) > 0 {
			out.ResultsProduced++
		}
	}
	out.ReportPath = path
	out.Success = true
	return out
}

type queryBatch struct {
	outcomes []query.Outcome
	err      error
	panicked any
}

func (c *Controller) enter(out *Outcome, s Stage) {
	logging.LogDebug("Run %s: %s -> %s", out.RunID, out.Stage, s)
	out.Stage = s
}

func (c *Controller) finish(out Outcome) {
	if out.Success {
		logging.LogInfo("Report run %s completed in %s: %s", out.RunID, out.Duration.Round(time.Millisecond), out.ReportPath)
	} else {
		logging.LogError("Report run %s failed during %s after %s: %v", out.RunID, out.Stage, out.Duration.Round(time.Millisecond), out.Err)
	}
	if c.History == nil {
		return
	}
	rec := history.Run{
		ID:              out.RunID,
		StartedAt:       out.StartedAt,
		Duration:        out.Duration,
		Success:         out.Success,
		Stage:           out.Stage.String(),
		Mode:            string(out.Mode),
		ResultsProduced: out.ResultsProduced,
		ReportPath:      out.ReportPath,
	}
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}
	if err := c.History.Record(rec); err != nil {
		logging.LogWarn("Could not record run %s in history: %v", out.RunID, err)
	}
}

func interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return nil
}

// orInterrupted attributes err to the interrupt when ctx is already done.
func orInterrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, ErrInterrupted) {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return err
}
