// Package commandtest provides in-memory command.Runner and command.Process
// implementations for tests.
package commandtest

import (
	"context"
	"sync"
	"time"

	"github.com/xlttj/chreport/pkg/command"
)

// Process is a scripted background process. Done marks it exited;
// IgnoreTerm makes it survive Terminate so that Kill is needed.
type Process struct {
	mu         sync.Mutex
	PID        int
	Done       bool
	StderrText string
	IgnoreTerm bool
	Terminated int
	Killed     int
}

func (p *Process) Pid() int { return p.PID }

func (p *Process) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Done
}

func (p *Process) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.StderrText
}

func (p *Process) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Terminated++
	if !p.IgnoreTerm {
		p.Done = true
	}
	return nil
}

func (p *Process) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Killed++
	p.Done = true
	return nil
}

// Wait never blocks; it reports the current state.
func (p *Process) Wait(time.Duration) bool {
	return p.Exited()
}

// Runner records every command. RunErr fails Run calls whose first
// argument matches the key; Output, when set, supplies Run's stdout.
// Start hands out Proc.
type Runner struct {
	mu       sync.Mutex
	Runs     [][]string
	RunErr   map[string]error
	Output   func(args []string) string
	Proc     *Process
	StartErr error
	Starts   [][]string
}

func (r *Runner) Run(_ context.Context, _ time.Duration, name string, args ...string) (command.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Runs = append(r.Runs, append([]string{name}, args...))
	if len(args) > 0 {
		if err := r.RunErr[args[0]]; err != nil {
			return command.Result{ExitCode: 1, Stderr: err.Error()}, err
		}
	}
	if r.Output != nil {
		return command.Result{Stdout: r.Output(args)}, nil
	}
	return command.Result{}, nil
}

func (r *Runner) Start(name string, args ...string) (command.Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Starts = append(r.Starts, append([]string{name}, args...))
	if r.StartErr != nil {
		return nil, r.StartErr
	}
	return r.Proc, nil
}
