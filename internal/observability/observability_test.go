package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel"
)

func TestRunCollector_ObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewRunCollector(reg)
	if err != nil {
		t.Fatalf("NewRunCollector: %v", err)
	}

	collector.ObserveRun(ModeRun, 20*time.Millisecond)
	collector.ObserveRun(ModeStep, time.Millisecond)
	collector.ObserveRun(ModeStep, time.Millisecond)
	collector.UnresolvedEquation()
	collector.EmptyCatalogQuery()

	if got := testutil.ToFloat64(collector.ScenarioRuns.WithLabelValues(ModeStep)); got != 2 {
		t.Fatalf("sdrun_scenario_runs_total{mode=step} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.UnresolvedEquations); got != 1 {
		t.Fatalf("sdrun_unresolved_equations_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.EmptyCatalog); got != 1 {
		t.Fatalf("sdrun_empty_catalog_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "sdrun_scenario_run_duration_seconds", map[string]string{"mode": ModeRun}); count != 1 {
		t.Fatalf("sdrun_scenario_run_duration_seconds{mode=run} sample_count = %d, want 1", count)
	}
}

func TestRunCollector_ReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewRunCollector(reg)
	if err != nil {
		t.Fatalf("NewRunCollector: %v", err)
	}
	second, err := NewRunCollector(reg)
	if err != nil {
		t.Fatalf("second NewRunCollector: %v", err)
	}

	first.ObserveRun(ModeRun, time.Millisecond)
	if got := testutil.ToFloat64(second.ScenarioRuns.WithLabelValues(ModeRun)); got != 1 {
		t.Fatalf("shared counter = %v, want 1", got)
	}
}

func TestRunCollector_NilSafe(t *testing.T) {
	var c *RunCollector
	c.ObserveRun(ModeRun, time.Second)
	c.UnresolvedEquation()
	c.EmptyCatalogQuery()
	if c.Gatherer() != nil {
		t.Fatal("nil collector Gatherer() != nil")
	}
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewRunCollector(reg)
	if err != nil {
		t.Fatalf("NewRunCollector: %v", err)
	}
	collector.ObserveRun(ModeRun, time.Millisecond)
	collector.UnresolvedEquation()
	collector.EmptyCatalogQuery()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"sdrun_scenario_runs_total",
		"sdrun_scenario_run_duration_seconds",
		"sdrun_unresolved_equations_total",
		"sdrun_empty_catalog_total",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestInitTracing_Disabled(t *testing.T) {
	tracing, err := InitTracing(context.Background(), TracingConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	tracing.Shutdown(context.Background())

	_, span := Tracer().Start(context.Background(), "runner.RunScenarios")
	defer span.End()
	if span.SpanContext().IsSampled() {
		t.Error("span sampled with tracing disabled")
	}
}

func TestInitTracing_StdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	tracing, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		Exporter:    "stdout",
		Version:     "1.2.3",
		SampleRatio: 1,
		Writer:      &buf,
	}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	t.Cleanup(func() {
		_, _ = InitTracing(context.Background(), TracingConfig{}, nil)
	})

	_, span := Tracer().Start(context.Background(), "runner.RunScenarios")
	span.End()
	tracing.Shutdown(context.Background())

	for _, want := range []string{"runner.RunScenarios", "1.2.3"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("exported spans missing %q: %s", want, buf.String())
		}
	}
	if otel.GetTracerProvider() == nil {
		t.Fatal("global tracer provider not set")
	}
}

func TestInitTracing_UnsupportedExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil)
	if err == nil {
		t.Fatal("InitTracing with unknown exporter error = nil, want error")
	}
}

func TestParseExporter(t *testing.T) {
	tests := []struct {
		in      string
		want    Exporter
		wantErr bool
	}{
		{"", ExporterStdout, false},
		{"stdout", ExporterStdout, false},
		{"OTLP", ExporterOTLP, false},
		{"otlpgrpc", ExporterOTLP, false},
		{"zipkin", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExporter(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseExporter(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseExporter(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		if got := sampler(tt.ratio).Description(); got != tt.want {
			t.Errorf("sampler(%v) = %q, want %q", tt.ratio, got, tt.want)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
