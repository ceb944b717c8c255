package k8s

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xlttj/chreport/pkg/command"
	"github.com/xlttj/chreport/pkg/config"
	"github.com/xlttj/chreport/pkg/logging"
)

var (
	// ErrPortInUse means something already listens on the local port, which
	// would also make the readiness probe succeed for the wrong listener.
	ErrPortInUse           = errors.New("local port already in use")
	ErrContextSwitchFailed = errors.New("kubectl context switch failed")
	ErrLaunchFailed        = errors.New("port-forward launch failed")
	ErrProcessExited       = errors.New("port-forward process exited")
	ErrReadinessTimeout    = errors.New("port-forward readiness timeout")
)

const (
	versionProbeTimeout  = 10 * time.Second
	contextSwitchTimeout = 30 * time.Second
	defaultStopGrace     = 5 * time.Second
)

// State is the lifecycle of one Tunnel.
type State int

const (
	StateStarting State = iota
	StateReady
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "Starting"
	case StateReady:
		return "Ready"
	case StateFailed:
		return "Failed"
	case StateStopped:
		return "Stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ReadinessPolicy bounds the wait for a forwarded port. kubectl gives no
// ready callback, so a TCP probe every Interval, Attempts times, is the
// only signal available.
type ReadinessPolicy struct {
	Interval time.Duration
	Attempts int
}

var DefaultReadinessPolicy = ReadinessPolicy{Interval: time.Second, Attempts: 10}

// forTimeout keeps the interval and stretches or shrinks the attempt count
// to cover timeoutSeconds.
func (p ReadinessPolicy) forTimeout(timeoutSeconds int) ReadinessPolicy {
	if timeoutSeconds <= 0 || p.Interval <= 0 {
		return p
	}
	timeout := time.Duration(timeoutSeconds) * time.Second
	attempts := int((timeout + p.Interval - 1) / p.Interval)
	return ReadinessPolicy{Interval: p.Interval, Attempts: max(attempts, 1)}
}

// Tunnel is one running kubectl port-forward process. Only the Manager
// that started it changes its state.
type Tunnel struct {
	mu        sync.Mutex
	proc      command.Process
	pid       int
	localPort int
	state     State
}

func (t *Tunnel) PID() int {
	return t.pid
}

func (t *Tunnel) LocalPort() int {
	return t.localPort
}

func (t *Tunnel) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tunnel) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Manager starts and stops kubectl port-forward tunnels. Every field has a
// working default from NewManager; tests swap the runner, probe and clock.
type Manager struct {
	Kubectl   string
	Runner    command.Runner
	Probe     Prober
	Policy    ReadinessPolicy
	StopGrace time.Duration

	// Sleep waits between readiness attempts.
	Sleep func(ctx context.Context, d time.Duration) error
	// PortFree reports whether the local port can still be bound.
	PortFree func(port int) bool
	// Contexts lists kubeconfig contexts for the pre-switch check. Nil
	// skips the check.
	Contexts func() ([]string, error)
}

func NewManager(runner command.Runner) *Manager {
	return &Manager{
		Kubectl:   "kubectl",
		Runner:    runner,
		Probe:     NewTCPProber(),
		Policy:    DefaultReadinessPolicy,
		StopGrace: defaultStopGrace,
		Sleep:     sleepContext,
		PortFree:  isPortAvailable,
		Contexts:  KubeconfigContexts,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CheckTool verifies kubectl can be invoked at all.
func (m *Manager) CheckTool(ctx context.Context) error {
	_, err := m.Runner.Run(ctx, versionProbeTimeout, m.Kubectl, "version", "--client")
	return err
}

// portForwardArgs builds: port-forward [--namespace ns] <target> local:remote
func portForwardArgs(cfg config.TunnelConfig) []string {
	args := []string{"port-forward"}
	if cfg.Namespace != "" {
		args = append(args, "--namespace", cfg.Namespace)
	}
	return append(args, cfg.Target(), fmt.Sprintf("%d:%d", cfg.LocalPort, cfg.InternalPort))
}

// Start switches context if configured, launches the port-forward and
// waits until localhost:LocalPort accepts connections. On any failure the
// process is already stopped when Start returns.
func (m *Manager) Start(ctx context.Context, cfg config.TunnelConfig) (*Tunnel, error) {
	if cfg.Context != "" {
		if err := m.switchContext(ctx, cfg.Context); err != nil {
			return nil, err
		}
	}

	if !m.PortFree(cfg.LocalPort) {
		logging.LogError("Pre-check failed: localhost:%d: %v", cfg.LocalPort, ErrPortInUse)
		return nil, fmt.Errorf("%w: %w: localhost:%d", ErrLaunchFailed, ErrPortInUse, cfg.LocalPort)
	}

	args := portForwardArgs(cfg)
	logging.LogInfo("Starting port-forward: %s %s", m.Kubectl, strings.Join(args, " "))
	proc, err := m.Runner.Start(m.Kubectl, args...)
	if err != nil {
		logging.LogError("Failed to start port-forward: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}

	t := &Tunnel{proc: proc, pid: proc.Pid(), localPort: cfg.LocalPort, state: StateStarting}
	policy := m.Policy.forTimeout(cfg.ReadinessTimeoutSeconds)
	if err := m.awaitReady(ctx, t, policy); err != nil {
		logging.LogError("Port-forward (PID: %d) not usable: %v", t.pid, err)
		m.Stop(t)
		return nil, err
	}
	return t, nil
}

func (m *Manager) switchContext(ctx context.Context, name string) error {
	if m.Contexts != nil {
		known, err := m.Contexts()
		if err != nil {
			logging.LogDebug("Kubeconfig pre-check skipped: %v", err)
		} else if len(known) > 0 && !slices.Contains(known, name) {
			return fmt.Errorf("%w: context %q not found in kubeconfig (available: %s)",
				ErrContextSwitchFailed, name, strings.Join(known, ", "))
		}
	}

	logging.LogInfo("Switching kubectl context: %s config use-context %s", m.Kubectl, name)
	if _, err := m.Runner.Run(ctx, contextSwitchTimeout, m.Kubectl, "config", "use-context", name); err != nil {
		logging.LogError("kubectl context switch failed: %v", err)
		return fmt.Errorf("%w: %w", ErrContextSwitchFailed, err)
	}
	logging.LogInfo("kubectl context set: %s", name)
	return nil
}

func (m *Manager) awaitReady(ctx context.Context, t *Tunnel, policy ReadinessPolicy) error {
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if t.proc.Exited() {
			t.setState(StateFailed)
			return fmt.Errorf("%w (PID: %d): %s", ErrProcessExited, t.pid, strings.TrimSpace(t.proc.Stderr()))
		}
		if m.Probe.Reachable(ctx, "localhost", t.localPort) {
			t.setState(StateReady)
			logging.LogInfo("Port-forward ready: localhost:%d (PID: %d, attempt %d)", t.localPort, t.pid, attempt)
			return nil
		}
		logging.LogDebug("Port-forward not ready yet: attempt %d/%d", attempt, policy.Attempts)
		if err := m.Sleep(ctx, policy.Interval); err != nil {
			t.setState(StateFailed)
			return fmt.Errorf("waiting for port-forward: %w", err)
		}
	}
	t.setState(StateFailed)
	return fmt.Errorf("%w: localhost:%d after %d attempts every %s",
		ErrReadinessTimeout, t.localPort, policy.Attempts, policy.Interval)
}

// Stop terminates the tunnel: SIGTERM, StopGrace to exit, then SIGKILL and
// an unbounded wait. It is safe on nil, never-started and stopped tunnels.
func (m *Manager) Stop(t *Tunnel) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateStopped {
		logging.LogDebug("Stop: port-forward PID %d already stopped", t.pid)
		return
	}
	if t.proc != nil && !t.proc.Exited() {
		logging.LogInfo("Stopping port-forward process PID: %d", t.pid)
		if err := t.proc.Terminate(); err != nil {
			logging.LogDebug("Stop: SIGTERM to PID %d: %v", t.pid, err)
		}
		if !t.proc.Wait(m.StopGrace) {
			logging.LogWarn("Port-forward PID %d still running after %s, killing", t.pid, m.StopGrace)
			if err := t.proc.Kill(); err != nil {
				logging.LogError("Stop: SIGKILL to PID %d: %v", t.pid, err)
			}
			t.proc.Wait(-1)
		}
		logging.LogInfo("Port-forward process PID %d stopped", t.pid)
	}
	t.state = StateStopped
}
