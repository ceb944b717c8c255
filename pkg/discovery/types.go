// Package discovery finds ClickHouse services in a Kubernetes cluster and
// turns the chosen one into the clickhouse/kubectl block of a config file.
package discovery

import (
	"strings"

	"github.com/xlttj/chreport/pkg/config"
)

// Options holds the configuration for a discovery run
type Options struct {
	Context         string // Kubernetes context to use; empty means the current one
	NamespaceFilter string // Wildcard filter for namespaces (e.g., "clickhouse-*")
	OutputFile      string // Output file path (empty = stdout)
	AcceptAll       bool   // Take the first candidate without prompting
	Verbose         bool
}

// ServicePort is one port of a Kubernetes service.
type ServicePort struct {
	Name     string
	Port     int
	Protocol string
}

// Service is a Kubernetes service as reported by kubectl.
type Service struct {
	Name      string
	Namespace string
	Type      string
	Ports     []ServicePort
	Labels    map[string]string
}

// Candidate is a service that looks like ClickHouse, with the port a report
// connection should forward to.
type Candidate struct {
	Service  Service
	Port     ServicePort
	Protocol string // http or native
}

// Result holds the outcome of the cluster scan.
type Result struct {
	Context         string
	NamespaceFilter string
	Candidates      []Candidate
}

const (
	httpPort   = 8123
	nativePort = 9000
)

// candidateFor reports whether svc looks like a ClickHouse server and, if
// so, which port to use. The HTTP interface wins over the native one.
func candidateFor(svc Service) (Candidate, bool) {
	if !looksLikeClickHouse(svc) {
		return Candidate{}, false
	}
	var native *ServicePort
	for i, p := range svc.Ports {
		if p.Protocol != "" && p.Protocol != "TCP" {
			continue
		}
		if p.Port == httpPort || p.Name == "http" {
			return Candidate{Service: svc, Port: p, Protocol: "http"}, true
		}
		if native == nil && (p.Port == nativePort || p.Name == "tcp" || p.Name == "native") {
			native = &svc.Ports[i]
		}
	}
	if native != nil {
		return Candidate{Service: svc, Port: *native, Protocol: "native"}, true
	}
	return Candidate{}, false
}

func looksLikeClickHouse(svc Service) bool {
	if strings.Contains(strings.ToLower(svc.Name), "clickhouse") {
		return true
	}
	for k, v := range svc.Labels {
		// Altinity operator labels every object it manages.
		if strings.HasPrefix(k, "clickhouse.altinity.com/") {
			return true
		}
		switch k {
		case "app", "app.kubernetes.io/name", "app.kubernetes.io/component":
			if strings.Contains(strings.ToLower(v), "clickhouse") {
				return true
			}
		}
	}
	return false
}

// Connection builds the connection settings for a tunneled report against
// the candidate. The local port mirrors the remote one.
func (c Candidate) Connection(kubeContext string) config.ConnectionConfig {
	return config.ConnectionConfig{
		Mode:     config.ModeTunneled,
		Driver:   "clickhouse",
		Protocol: c.Protocol,
		Host:     "localhost",
		Port:     c.Port.Port,
		Username: "default",
		Database: "default",
		Tunnel: &config.TunnelConfig{
			Enabled:      true,
			Service:      c.Service.Name,
			Namespace:    c.Service.Namespace,
			InternalPort: c.Port.Port,
			LocalPort:    c.Port.Port,
			Context:      kubeContext,
		},
	}
}
