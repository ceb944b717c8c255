// Package command runs external CLI tools, either to completion with a
// timeout or as a background process whose lifetime the caller owns.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ErrTimeout is returned by Run when the command outlives its timeout.
var ErrTimeout = errors.New("command timed out")

// Result is the captured outcome of a synchronous command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes external commands.
type Runner interface {
	// Run executes name to completion. A non-zero exit is reported as an
	// error with Result still populated.
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error)
	// Start launches name in the background.
	Start(name string, args ...string) (Process, error)
}

// Process is a running background command.
type Process interface {
	Pid() int
	// Exited reports whether the process has terminated.
	Exited() bool
	// Stderr returns what the process wrote to stderr so far.
	Stderr() string
	// Terminate asks the process and everything it spawned to exit
	// (SIGTERM).
	Terminate() error
	// Kill forces the process and everything it spawned to exit (SIGKILL).
	Kill() error
	// Wait blocks until exit or timeout and reports whether the process
	// exited. A negative timeout waits without limit.
	Wait(timeout time.Duration) bool
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command with a timeout and captures its output.
func (r *ExecRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return res, fmt.Errorf("%s %s: %w after %s", name, strings.Join(args, " "), ErrTimeout, timeout)
		}
		if stderrStr := strings.TrimSpace(res.Stderr); stderrStr != "" {
			return res, fmt.Errorf("%s failed: %w (stderr: %s)", name, err, stderrStr)
		}
		return res, fmt.Errorf("%s failed: %w", name, err)
	}
	return res, nil
}

// pipeGrace bounds how long the reaper waits for output pipes held open by
// children that outlived the process.
const pipeGrace = 2 * time.Second

// Start launches the command in its own process group and reaps it in a
// goroutine so that Exited and Wait never block on the OS.
func (r *ExecRunner) Start(name string, args ...string) (Process, error) {
	cmd := exec.Command(name, args...)
	configureProcess(cmd)
	cmd.WaitDelay = pipeGrace
	p := &execProcess{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	cmd.Stdout = &p.stdout
	cmd.Stderr = &p.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%s start failed: %w", name, err)
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// syncBuffer is written by the exec copy goroutine and read by pollers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type execProcess struct {
	cmd     *exec.Cmd
	stdout  syncBuffer
	stderr  syncBuffer
	done    chan struct{}
	waitErr error
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *execProcess) Stderr() string {
	return p.stderr.String()
}

func (p *execProcess) Terminate() error {
	return signalProcess(p.cmd.Process, syscall.SIGTERM)
}

func (p *execProcess) Kill() error {
	return signalProcess(p.cmd.Process, syscall.SIGKILL)
}

func (p *execProcess) Wait(timeout time.Duration) bool {
	if timeout < 0 {
		<-p.done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}
