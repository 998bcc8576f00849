package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	config := Default()

	if config.Scenarios.Dir != "scenarios" {
		t.Errorf("expected Scenarios.Dir 'scenarios', got '%s'", config.Scenarios.Dir)
	}
	if config.Store.Enabled {
		t.Error("expected Store.Enabled to be false by default")
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
	if config.Logging.Format != "text" {
		t.Errorf("expected Logging.Format 'text', got '%s'", config.Logging.Format)
	}
	if config.Tracing.Enabled {
		t.Error("expected Tracing.Enabled to be false by default")
	}
	if config.Tracing.SampleRatio != 1 {
		t.Errorf("expected Tracing.SampleRatio 1, got %f", config.Tracing.SampleRatio)
	}
	if config.Output.DefaultFormat != "dict" {
		t.Errorf("expected Output.DefaultFormat 'dict', got '%s'", config.Output.DefaultFormat)
	}
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, `
scenarios:
  dir: models/scenarios
store:
  enabled: true
  path: /var/lib/sdrun/results.db
logging:
  level: trace
  format: json
metrics:
  addr: ":9090"
tracing:
  enabled: true
  exporter: otlp
  endpoint: collector:4317
  sample_ratio: 0.25
output:
  default_format: df
`)

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Scenarios.Dir != "models/scenarios" {
		t.Errorf("expected Scenarios.Dir 'models/scenarios', got '%s'", config.Scenarios.Dir)
	}
	if !config.Store.Enabled || config.Store.Path != "/var/lib/sdrun/results.db" {
		t.Errorf("unexpected Store config: %+v", config.Store)
	}
	if config.Logging.Level != "trace" || config.Logging.Format != "json" {
		t.Errorf("unexpected Logging config: %+v", config.Logging)
	}
	if config.Metrics.Addr != ":9090" {
		t.Errorf("expected Metrics.Addr ':9090', got '%s'", config.Metrics.Addr)
	}
	if !config.Tracing.Enabled || config.Tracing.Exporter != "otlp" || config.Tracing.SampleRatio != 0.25 {
		t.Errorf("unexpected Tracing config: %+v", config.Tracing)
	}
	if config.Tracing.ServiceName != "sdrun" {
		t.Errorf("expected default ServiceName to survive partial file, got '%s'", config.Tracing.ServiceName)
	}
	if config.Output.DefaultFormat != "df" {
		t.Errorf("expected Output.DefaultFormat 'df', got '%s'", config.Output.DefaultFormat)
	}
}

func TestLoadFromFile_EnvExpansion(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, `
store:
  path: ${TEST_SDRUN_HOME}/results.db
`)
	t.Setenv("TEST_SDRUN_HOME", "/data")

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if config.Store.Path != "/data/results.db" {
		t.Errorf("expected Store.Path '/data/results.db', got '%s'", config.Store.Path)
	}
}

func TestLoad(t *testing.T) {
	root := t.TempDir()

	config, err := Load(root)
	if err != nil {
		t.Fatalf("Load without file failed: %v", err)
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected default level without file, got '%s'", config.Logging.Level)
	}

	writeConfig(t, Path(root), "logging:\n  level: debug\n")
	t.Setenv("SDRUN_LOG_FORMAT", "json")

	config, err = Load(root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("expected file level 'debug', got '%s'", config.Logging.Level)
	}
	if config.Logging.Format != "json" {
		t.Errorf("expected env format 'json', got '%s'", config.Logging.Format)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, Path(root), "logging: [invalid yaml\n")
	if _, err := Load(root); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SDRUN_LOG_LEVEL", "debug")
	t.Setenv("SDRUN_SCENARIOS_DIR", "/srv/scenarios")
	t.Setenv("SDRUN_DB_PATH", "/tmp/r.db")
	t.Setenv("SDRUN_METRICS_ADDR", "127.0.0.1:9100")
	t.Setenv("SDRUN_TRACING_ENABLED", "1")
	t.Setenv("SDRUN_TRACING_EXPORTER", "otlp")
	t.Setenv("SDRUN_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("SDRUN_TRACING_SAMPLE_RATIO", "0.5")

	config := Default()
	applyEnvOverrides(config)

	if config.Logging.Level != "debug" {
		t.Errorf("expected Logging.Level 'debug', got '%s'", config.Logging.Level)
	}
	if config.Scenarios.Dir != "/srv/scenarios" {
		t.Errorf("expected Scenarios.Dir '/srv/scenarios', got '%s'", config.Scenarios.Dir)
	}
	if config.Store.Path != "/tmp/r.db" {
		t.Errorf("expected Store.Path '/tmp/r.db', got '%s'", config.Store.Path)
	}
	if config.Metrics.Addr != "127.0.0.1:9100" {
		t.Errorf("expected Metrics.Addr, got '%s'", config.Metrics.Addr)
	}
	if !config.Tracing.Enabled || config.Tracing.Exporter != "otlp" || config.Tracing.Endpoint != "otel:4317" {
		t.Errorf("unexpected Tracing config: %+v", config.Tracing)
	}
	if config.Tracing.SampleRatio != 0.5 {
		t.Errorf("expected SampleRatio 0.5, got %f", config.Tracing.SampleRatio)
	}
}

func TestEnvOverrides_InvalidSampleRatioIgnored(t *testing.T) {
	t.Setenv("SDRUN_TRACING_SAMPLE_RATIO", "lots")

	config := Default()
	applyEnvOverrides(config)

	if config.Tracing.SampleRatio != 1 {
		t.Errorf("expected SampleRatio to stay 1, got %f", config.Tracing.SampleRatio)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"empty level", func(c *Config) { c.Logging.Level = "" }, false},
		{"error level", func(c *Config) { c.Logging.Level = "error" }, false},
		{"invalid level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"invalid format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"empty scenarios dir", func(c *Config) { c.Scenarios.Dir = "" }, true},
		{"negative sample ratio", func(c *Config) { c.Tracing.SampleRatio = -0.1 }, true},
		{"sample ratio above 1", func(c *Config) { c.Tracing.SampleRatio = 1.5 }, true},
		{"unknown exporter while disabled", func(c *Config) { c.Tracing.Exporter = "zipkin" }, false},
		{"unknown exporter while enabled", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "zipkin"
		}, true},
		{"invalid output format", func(c *Config) { c.Output.DefaultFormat = "csv" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPaths(t *testing.T) {
	config := Default()
	root := "/project"

	if got := config.ScenariosDir(root); got != filepath.Join(root, "scenarios") {
		t.Errorf("ScenariosDir() = %q", got)
	}
	if got := config.StorePath(root); got != filepath.Join(root, ".sdrun", "results.db") {
		t.Errorf("StorePath() = %q", got)
	}

	config.Scenarios.Dir = "/abs/scenarios"
	config.Store.Path = "data/results.db"
	if got := config.ScenariosDir(root); got != "/abs/scenarios" {
		t.Errorf("ScenariosDir() absolute = %q", got)
	}
	if got := config.StorePath(root); got != filepath.Join(root, "data", "results.db") {
		t.Errorf("StorePath() relative = %q", got)
	}
}

func TestLoadFromFile_NotFound(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}
