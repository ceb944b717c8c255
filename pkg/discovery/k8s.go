package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/xlttj/chreport/pkg/command"
	"github.com/xlttj/chreport/pkg/logging"
)

// ErrNoNamespaces is returned when no namespace matches the filter.
var ErrNoNamespaces = errors.New("no matching namespaces")

// k8sServiceList is the part of "kubectl get services -o json" we read.
type k8sServiceList struct {
	Items []struct {
		Metadata struct {
			Name      string            `json:"name"`
			Namespace string            `json:"namespace"`
			Labels    map[string]string `json:"labels"`
		} `json:"metadata"`
		Spec struct {
			Type  string `json:"type"`
			Ports []struct {
				Name     string `json:"name"`
				Port     int    `json:"port"`
				Protocol string `json:"protocol"`
			} `json:"ports"`
		} `json:"spec"`
	} `json:"items"`
}

// Kubectl queries the cluster through the kubectl binary.
type Kubectl struct {
	Runner  command.Runner
	Path    string
	Timeout time.Duration
}

func NewKubectl(runner command.Runner) *Kubectl {
	return &Kubectl{Runner: runner, Path: "kubectl", Timeout: 30 * time.Second}
}

func (k *Kubectl) run(ctx context.Context, kubeContext string, args ...string) (string, error) {
	if kubeContext != "" {
		args = append(args, "--context", kubeContext)
	}
	res, err := k.Runner.Run(ctx, k.Timeout, k.Path, args...)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// CurrentContext returns the kubeconfig's current context.
func (k *Kubectl) CurrentContext(ctx context.Context) (string, error) {
	out, err := k.run(ctx, "", "config", "current-context")
	if err != nil {
		return "", fmt.Errorf("kubectl current-context failed: %w", err)
	}
	name := strings.TrimSpace(out)
	if name == "" {
		return "", fmt.Errorf("no current context set")
	}
	return name, nil
}

// Namespaces lists the namespaces matching filter, a shell-style pattern.
func (k *Kubectl) Namespaces(ctx context.Context, kubeContext, filter string) ([]string, error) {
	out, err := k.run(ctx, kubeContext, "get", "namespaces", "-o", "jsonpath={.items[*].metadata.name}")
	if err != nil {
		return nil, fmt.Errorf("kubectl get namespaces failed: %w", err)
	}
	if filter == "" {
		filter = "*"
	}
	var matching []string
	for _, ns := range strings.Fields(out) {
		ok, err := path.Match(filter, ns)
		if err != nil {
			return nil, fmt.Errorf("invalid namespace filter %q: %w", filter, err)
		}
		if ok {
			matching = append(matching, ns)
		}
	}
	if len(matching) == 0 {
		return nil, fmt.Errorf("%w: pattern '%s'", ErrNoNamespaces, filter)
	}
	return matching, nil
}

// Services lists the services of one namespace.
func (k *Kubectl) Services(ctx context.Context, kubeContext, namespace string) ([]Service, error) {
	out, err := k.run(ctx, kubeContext, "get", "services", "-n", namespace, "-o", "json")
	if err != nil {
		return nil, fmt.Errorf("kubectl get services failed: %w", err)
	}
	var list k8sServiceList
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		return nil, fmt.Errorf("failed to parse kubectl output: %w", err)
	}

	services := make([]Service, 0, len(list.Items))
	for _, item := range list.Items {
		svc := Service{
			Name:      item.Metadata.Name,
			Namespace: item.Metadata.Namespace,
			Type:      item.Spec.Type,
			Labels:    item.Metadata.Labels,
		}
		if svc.Namespace == "" {
			svc.Namespace = namespace
		}
		for _, p := range item.Spec.Ports {
			svc.Ports = append(svc.Ports, ServicePort{Name: p.Name, Port: p.Port, Protocol: p.Protocol})
		}
		services = append(services, svc)
	}
	return services, nil
}

// Discover scans the matching namespaces for ClickHouse services. A
// namespace that cannot be listed is logged and skipped.
func Discover(ctx context.Context, k *Kubectl, opts Options) (*Result, error) {
	logging.LogDebug("Starting ClickHouse discovery with options: %+v", opts)

	kubeContext := opts.Context
	if kubeContext == "" {
		current, err := k.CurrentContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get current context: %w", err)
		}
		kubeContext = current
	}

	namespaces, err := k.Namespaces(ctx, kubeContext, opts.NamespaceFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to discover namespaces: %w", err)
	}

	result := &Result{Context: kubeContext, NamespaceFilter: opts.NamespaceFilter}
	for _, ns := range namespaces {
		services, err := k.Services(ctx, kubeContext, ns)
		if err != nil {
			logging.LogError("Failed to get services in namespace %s: %v", ns, err)
			continue
		}
		for _, svc := range services {
			if c, ok := candidateFor(svc); ok {
				result.Candidates = append(result.Candidates, c)
			}
		}
	}
	logging.LogDebug("Discovery found %d candidate(s) in %d namespace(s)", len(result.Candidates), len(namespaces))
	return result, nil
}
