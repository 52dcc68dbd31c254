package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func withTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	origReg := prometheus.DefaultRegisterer
	origGather := prometheus.DefaultGatherer
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGather
	})
	return reg
}

func TestNoopMetrics(t *testing.T) {
	var m Metrics = Noop{}
	m.ObserveUpstreamRequest("postgres", "tools/call", "ok", 0.1)
	m.IncToolCall("pg.query", "ok")
	m.IncRateLimited()
	m.IncProfileRead("cache")
	m.SetBridgeState("postgres", true)
}

func TestPromMetrics(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewProm("mcpgate")
	m.ObserveUpstreamRequest("postgres", "tools/call", "ok", 0.25)
	m.IncToolCall("postgres", "ok")
	m.IncRateLimited()
	m.IncProfileRead("database")
	m.SetBridgeState("postgres", true)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, want := range []struct {
		name   string
		labels map[string]string
	}{
		{"mcpgate_upstream_requests_total", map[string]string{"upstream": "postgres", "method": "tools/call", "status": "ok"}},
		{"mcpgate_upstream_request_duration_seconds", map[string]string{"upstream": "postgres", "method": "tools/call"}},
		{"mcpgate_tool_calls_total", map[string]string{"route": "postgres", "status": "ok"}},
		{"mcpgate_rate_limited_total", nil},
		{"mcpgate_profile_reads_total", map[string]string{"source": "database"}},
		{"mcpgate_bridge_ready", map[string]string{"upstream": "postgres"}},
	} {
		if !hasMetric(families, want.name, want.labels) {
			t.Errorf("expected metric %s %v", want.name, want.labels)
		}
	}
}

func TestNewPromTwice(t *testing.T) {
	reg := withTestRegistry(t)
	NewProm("mcpgate").IncRateLimited()
	NewProm("mcpgate").IncRateLimited()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() == "mcpgate_rate_limited_total" {
			if got := fam.GetMetric()[0].GetCounter().GetValue(); got != 2 {
				t.Errorf("rate_limited_total = %v, want 2", got)
			}
			return
		}
	}
	t.Fatal("rate_limited_total not registered")
}

func TestHandler(t *testing.T) {
	withTestRegistry(t)
	NewProm("mcpgate").IncRateLimited()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "mcpgate_rate_limited_total 1") {
		t.Errorf("body missing rate limited counter:\n%s", rec.Body.String())
	}
}

func hasMetric(families []*dto.MetricFamily, name string, labels map[string]string) bool {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			matched := true
			for k, v := range labels {
				found := false
				for _, lp := range m.GetLabel() {
					if lp.GetName() == k && lp.GetValue() == v {
						found = true
						break
					}
				}
				if !found {
					matched = false
					break
				}
			}
			if matched {
				return true
			}
		}
	}
	return false
}
