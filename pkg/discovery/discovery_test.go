package discovery

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/xlttj/chreport/pkg/command/commandtest"
	"github.com/xlttj/chreport/pkg/config"
)

const analyticsServices = `{"items":[
 {"metadata":{"name":"grafana","namespace":"analytics","labels":{"app":"grafana"}},
  "spec":{"type":"ClusterIP","ports":[{"name":"http","port":3000,"protocol":"TCP"}]}},
 {"metadata":{"name":"chi-signoz-cluster","namespace":"analytics","labels":{"clickhouse.altinity.com/chi":"signoz"}},
  "spec":{"type":"ClusterIP","ports":[{"name":"tcp","port":9000,"protocol":"TCP"},{"name":"http","port":8123,"protocol":"TCP"}]}}
]}`

const warehouseServices = `{"items":[
 {"metadata":{"name":"clickhouse-native","namespace":"warehouse"},
  "spec":{"type":"ClusterIP","ports":[{"name":"native","port":9000,"protocol":"TCP"}]}}
]}`

func fakeCluster() *commandtest.Runner {
	return &commandtest.Runner{Output: func(args []string) string {
		switch {
		case args[0] == "config":
			return "staging\n"
		case args[1] == "namespaces":
			return "analytics default kube-system warehouse"
		case args[1] == "services" && args[3] == "analytics":
			return analyticsServices
		case args[1] == "services" && args[3] == "warehouse":
			return warehouseServices
		}
		return `{"items":[]}`
	}}
}

func TestDiscoverFindsClickHouseServices(t *testing.T) {
	r := fakeCluster()
	result, err := Discover(context.Background(), NewKubectl(r), Options{NamespaceFilter: "*"})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if result.Context != "staging" {
		t.Errorf("context = %q, want the current one", result.Context)
	}
	if len(result.Candidates) != 2 {
		t.Fatalf("candidates = %+v", result.Candidates)
	}
	first, second := result.Candidates[0], result.Candidates[1]
	if first.Service.Name != "chi-signoz-cluster" || first.Port.Port != 8123 || first.Protocol != "http" {
		t.Errorf("first = %+v, want the http port", first)
	}
	if second.Service.Namespace != "warehouse" || second.Port.Port != 9000 || second.Protocol != "native" {
		t.Errorf("second = %+v", second)
	}

	for _, call := range r.Runs[1:] {
		if call[len(call)-2] != "--context" || call[len(call)-1] != "staging" {
			t.Errorf("call %v does not pin the context", call)
		}
	}
}

func TestDiscoverNamespaceFilter(t *testing.T) {
	r := fakeCluster()
	result, err := Discover(context.Background(), NewKubectl(r), Options{Context: "prod", NamespaceFilter: "ware*"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Candidates) != 1 || result.Candidates[0].Service.Namespace != "warehouse" {
		t.Errorf("candidates = %+v", result.Candidates)
	}
	if r.Runs[0][1] == "current-context" {
		t.Error("current context looked up although one was given")
	}

	_, err = Discover(context.Background(), NewKubectl(fakeCluster()), Options{Context: "prod", NamespaceFilter: "nope-*"})
	if !errors.Is(err, ErrNoNamespaces) {
		t.Errorf("err = %v, want ErrNoNamespaces", err)
	}
}

func TestDiscoverSkipsUnlistableNamespace(t *testing.T) {
	r := fakeCluster()
	inner := r.Output
	r.Output = func(args []string) string {
		if args[1] == "services" && args[3] == "analytics" {
			return "not json"
		}
		return inner(args)
	}
	result, err := Discover(context.Background(), NewKubectl(r), Options{Context: "prod"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Candidates) != 1 {
		t.Errorf("candidates = %+v", result.Candidates)
	}
}

func TestCandidateFor(t *testing.T) {
	tests := []struct {
		name string
		svc  Service
		want int
	}{
		{"name match http", Service{Name: "clickhouse", Ports: []ServicePort{{Name: "http", Port: 8123}}}, 8123},
		{"label match", Service{Name: "olap", Labels: map[string]string{"app.kubernetes.io/name": "ClickHouse"}, Ports: []ServicePort{{Port: 8123, Protocol: "TCP"}}}, 8123},
		{"native only", Service{Name: "clickhouse", Ports: []ServicePort{{Name: "tcp", Port: 9000}}}, 9000},
		{"udp ignored", Service{Name: "clickhouse", Ports: []ServicePort{{Port: 8123, Protocol: "UDP"}}}, 0},
		{"not clickhouse", Service{Name: "postgres", Ports: []ServicePort{{Port: 8123}}}, 0},
		{"no usable port", Service{Name: "clickhouse-keeper", Ports: []ServicePort{{Port: 2181}}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := candidateFor(tt.svc)
			if tt.want == 0 {
				if ok {
					t.Errorf("candidate %+v, want none", c)
				}
				return
			}
			if !ok || c.Port.Port != tt.want {
				t.Errorf("got %+v ok=%v, want port %d", c, ok, tt.want)
			}
		})
	}
}

func TestRunPromptsAndPrintsConnection(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), NewKubectl(fakeCluster()), Options{Context: "prod"}, strings.NewReader("maybe\nn\ny\n"), &out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "Invalid response 'maybe'") || !strings.Contains(out.String(), "Skipped: chi-signoz-cluster") {
		t.Errorf("prompt output:\n%s", out.String())
	}

	idx := strings.Index(out.String(), "clickhouse:")
	if idx < 0 {
		t.Fatalf("no connection block:\n%s", out.String())
	}
	var section struct {
		ClickHouse config.ConnectionConfig `yaml:"clickhouse"`
	}
	if err := yaml.Unmarshal([]byte(out.String()[idx:]), &section); err != nil {
		t.Fatalf("block is not YAML: %v", err)
	}
	conn := section.ClickHouse
	if conn.Mode != config.ModeTunneled || conn.Protocol != "native" || conn.Tunnel == nil {
		t.Fatalf("connection = %+v", conn)
	}
	if conn.Tunnel.Target() != "svc/clickhouse-native" || conn.Tunnel.Namespace != "warehouse" || conn.Tunnel.Context != "prod" {
		t.Errorf("tunnel = %+v", conn.Tunnel)
	}
	if conn.Tunnel.InternalPort != 9000 || conn.Tunnel.LocalPort != 9000 || conn.Port != 9000 {
		t.Errorf("ports = %d/%d/%d", conn.Port, conn.Tunnel.InternalPort, conn.Tunnel.LocalPort)
	}
}

func TestRunQuitAndDeclineAll(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), NewKubectl(fakeCluster()), Options{Context: "prod"}, strings.NewReader("q\n"), &out)
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("err = %v, want ErrCancelled", err)
	}

	out.Reset()
	err = Run(context.Background(), NewKubectl(fakeCluster()), Options{Context: "prod"}, strings.NewReader("n\nn\n"), &out)
	if err != nil || !strings.Contains(out.String(), "No service selected") {
		t.Errorf("err = %v, output:\n%s", err, out.String())
	}
}

func TestRunAcceptAllWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conn", "clickhouse.yaml")
	var out bytes.Buffer
	err := Run(context.Background(), NewKubectl(fakeCluster()), Options{Context: "prod", AcceptAll: true, OutputFile: path}, strings.NewReader(""), &out)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("connection file: %v", err)
	}
	if !strings.Contains(string(data), "service: chi-signoz-cluster") {
		t.Errorf("file:\n%s", data)
	}
}

func TestRunNoCandidates(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), NewKubectl(fakeCluster()), Options{Context: "prod", NamespaceFilter: "default"}, strings.NewReader(""), &out)
	if err != nil || !strings.Contains(out.String(), "No ClickHouse services found") {
		t.Errorf("err = %v, output:\n%s", err, out.String())
	}
}
