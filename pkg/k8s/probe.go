package k8s

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/xlttj/chreport/pkg/logging"
)

// Prober reports whether something accepts TCP connections at host:port.
type Prober interface {
	Reachable(ctx context.Context, host string, port int) bool
}

// TCPProber dials with a short timeout. It holds no state.
type TCPProber struct {
	Timeout time.Duration
}

func NewTCPProber() TCPProber {
	return TCPProber{Timeout: time.Second}
}

func (p TCPProber) Reachable(ctx context.Context, host string, port int) bool {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// isPortAvailable checks if a TCP port is available to listen on localhost.
func isPortAvailable(port int) bool {
	address := fmt.Sprintf("127.0.0.1:%d", port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		// bind errors are the common case; anything else is treated the same
		logging.LogDebug("Port check: cannot listen on %s: %v", address, err)
		return false
	}
	_ = listener.Close()
	return true
}
