//go:build unix

package k8s

import (
	"context"
	"errors"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/xlttj/chreport/pkg/command"
)

// fakeKubectl writes a shell script standing in for kubectl.
func fakeKubectl(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("sh not available: %v", err)
	}
	path := filepath.Join(t.TempDir(), "kubectl")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("write fake kubectl: %v", err)
	}
	return path
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func processGone(pid int) bool {
	return errors.Is(syscall.Kill(pid, 0), syscall.ESRCH)
}

func realManager(t *testing.T, kubectl string) *Manager {
	m := NewManager(command.NewExecRunner())
	m.Kubectl = kubectl
	m.Contexts = nil
	m.Policy = ReadinessPolicy{Interval: 50 * time.Millisecond, Attempts: 10}
	m.StopGrace = time.Second
	return m
}

func TestRealForwarderNeverListens(t *testing.T) {
	kubectl := fakeKubectl(t, `echo "$$" > "$(dirname "$0")/pid"
exec sleep 30`)
	m := realManager(t, kubectl)
	cfg := testTunnelConfig()
	cfg.LocalPort = freePort(t)

	start := time.Now()
	_, err := m.Start(context.Background(), cfg)
	if !errors.Is(err, ErrReadinessTimeout) {
		t.Fatalf("Start() error = %v, want ErrReadinessTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Start() took %s", elapsed)
	}

	data, err := os.ReadFile(filepath.Join(filepath.Dir(kubectl), "pid"))
	if err != nil {
		t.Fatalf("fake kubectl did not record its pid: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("pid file: %v", err)
	}
	if !processGone(pid) {
		t.Errorf("forwarding process %d still running after failed Start", pid)
	}
}

func TestRealForwarderWrapperChildStopped(t *testing.T) {
	// a wrapper that forks instead of exec'ing leaves the real forwarder
	// as its child, holding the stderr pipe
	kubectl := fakeKubectl(t, `sleep 20 &
echo "$!" > "$(dirname "$0")/child"
wait`)
	m := realManager(t, kubectl)
	cfg := testTunnelConfig()
	cfg.LocalPort = freePort(t)

	start := time.Now()
	_, err := m.Start(context.Background(), cfg)
	if !errors.Is(err, ErrReadinessTimeout) {
		t.Fatalf("Start() error = %v, want ErrReadinessTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Start() took %s waiting on the wrapped child", elapsed)
	}

	data, err := os.ReadFile(filepath.Join(filepath.Dir(kubectl), "child"))
	if err != nil {
		t.Fatalf("wrapper did not record its child: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("child file: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !processGone(pid) && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if !processGone(pid) {
		t.Errorf("wrapped forwarder %d survived Stop", pid)
	}
}

func TestRealForwarderExitsImmediately(t *testing.T) {
	kubectl := fakeKubectl(t, `echo 'error: pod not found' >&2
exit 1`)
	m := realManager(t, kubectl)
	cfg := testTunnelConfig()
	cfg.LocalPort = freePort(t)

	_, err := m.Start(context.Background(), cfg)
	if !errors.Is(err, ErrProcessExited) {
		t.Fatalf("Start() error = %v, want ErrProcessExited", err)
	}
	if !strings.Contains(err.Error(), "pod not found") {
		t.Errorf("error %q does not carry stderr", err)
	}
}

func TestRealForwarderReadyAndStopped(t *testing.T) {
	// the "forwarder" is a sleeping process; the port is served by the test
	kubectl := fakeKubectl(t, "exec sleep 30")
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	m := realManager(t, kubectl)
	m.PortFree = func(int) bool { return true }
	cfg := testTunnelConfig()
	cfg.LocalPort = l.Addr().(*net.TCPAddr).Port

	tun, err := m.Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if tun.State() != StateReady {
		t.Fatalf("State() = %s", tun.State())
	}
	m.Stop(tun)
	m.Stop(tun)
	if !processGone(tun.PID()) {
		t.Errorf("process %d still running after Stop", tun.PID())
	}
}

func TestPortAvailability(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	if isPortAvailable(port) {
		t.Errorf("port %d reported free while bound", port)
	}
	if !NewTCPProber().Reachable(context.Background(), "localhost", port) {
		t.Errorf("probe could not reach bound port %d", port)
	}
	l.Close()
	if !isPortAvailable(port) {
		t.Errorf("port %d reported busy after close", port)
	}
	if NewTCPProber().Reachable(context.Background(), "127.0.0.1", port) {
		t.Errorf("probe reached closed port %d", port)
	}
}
