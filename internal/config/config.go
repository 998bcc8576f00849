// Package config provides unified configuration loading for sdrun.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DirName is the per-project state directory.
const DirName = ".sdrun"

// Config contains all sdrun configuration settings.
type Config struct {
	Scenarios ScenariosConfig `json:"scenarios" yaml:"scenarios"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Tracing   TracingConfig   `json:"tracing" yaml:"tracing"`
	Output    OutputConfig    `json:"output" yaml:"output"`
}

// ScenariosConfig locates the scenario files.
type ScenariosConfig struct {
	// Dir is searched recursively for *.yaml and *.yml scenario files.
	// Relative paths resolve against the project root.
	Dir string `json:"dir" yaml:"dir"`
}

// StoreConfig configures result persistence.
type StoreConfig struct {
	// Enabled saves every full run without passing --save.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the SQLite database. Empty means <root>/.sdrun/results.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// LoggingConfig configures sdrun's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", "trace" or
	// "error". "debug" and "trace" enable the run journal at
	// .sdrun/runs.jsonl.
	Level string `json:"level" yaml:"level"`

	// Format is "text" (default) or "json".
	Format string `json:"format" yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint of long-running commands.
type MetricsConfig struct {
	// Addr is the listen address for /metrics, empty to disable.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	ServiceName string  `json:"service_name" yaml:"service_name"`
	Exporter    string  `json:"exporter" yaml:"exporter"`
	Endpoint    string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio"`
}

// OutputConfig sets output defaults.
type OutputConfig struct {
	// DefaultFormat is the run format when --format is omitted.
	DefaultFormat string `json:"default_format" yaml:"default_format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Scenarios: ScenariosConfig{Dir: "scenarios"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			ServiceName: "sdrun",
			Exporter:    "stdout",
			SampleRatio: 1,
		},
		Output: OutputConfig{DefaultFormat: "dict"},
	}
}

// Path returns the config file location for a project root.
func Path(root string) string {
	return filepath.Join(root, DirName, "config.yaml")
}

// Load loads configuration for a project root.
// Order: defaults -> <root>/.sdrun/config.yaml -> environment variables
func Load(root string) (*Config, error) {
	config := Default()

	configPath := Path(root)
	if _, statErr := os.Stat(configPath); statErr == nil {
		fileConfig, loadErr := LoadFromFile(configPath)
		if loadErr != nil {
			return nil, fmt.Errorf("loading config file: %w", loadErr)
		}
		config = fileConfig
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Scenarios.Dir = expandEnvVars(config.Scenarios.Dir)
	config.Store.Path = expandEnvVars(config.Store.Path)
	config.Tracing.Endpoint = expandEnvVars(config.Tracing.Endpoint)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Scenarios.Dir == "" {
		return fmt.Errorf("scenarios.dir must not be empty")
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true, "error": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, error, or empty for default)", c.Logging.Level)
	}

	validFormats := map[string]bool{"": true, "text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Logging.Format)
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1, got %f", c.Tracing.SampleRatio)
	}
	validExporters := map[string]bool{"stdout": true, "otlp": true}
	if c.Tracing.Enabled && !validExporters[c.Tracing.Exporter] {
		return fmt.Errorf("invalid tracing exporter: %s (valid: stdout, otlp)", c.Tracing.Exporter)
	}

	validOutputs := map[string]bool{"dict": true, "json": true, "df": true}
	if !validOutputs[c.Output.DefaultFormat] {
		return fmt.Errorf("invalid output.default_format: %s (valid: dict, json, df)", c.Output.DefaultFormat)
	}

	return nil
}

// ScenariosDir resolves the scenario directory against root.
func (c *Config) ScenariosDir(root string) string {
	return resolve(root, c.Scenarios.Dir)
}

// StorePath resolves the results database path against root.
func (c *Config) StorePath(root string) string {
	if c.Store.Path == "" {
		return filepath.Join(root, DirName, "results.db")
	}
	return resolve(root, c.Store.Path)
}

// StateDir is the per-project directory holding the journal and database.
func StateDir(root string) string {
	return filepath.Join(root, DirName)
}

func resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("SDRUN_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("SDRUN_LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}

	if v := os.Getenv("SDRUN_SCENARIOS_DIR"); v != "" {
		config.Scenarios.Dir = v
	}

	if v := os.Getenv("SDRUN_DB_PATH"); v != "" {
		config.Store.Path = v
	}

	if v := os.Getenv("SDRUN_METRICS_ADDR"); v != "" {
		config.Metrics.Addr = v
	}

	if v := os.Getenv("SDRUN_TRACING_ENABLED"); v != "" {
		config.Tracing.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SDRUN_TRACING_EXPORTER"); v != "" {
		config.Tracing.Exporter = v
	}
	if v := os.Getenv("SDRUN_OTLP_ENDPOINT"); v != "" {
		config.Tracing.Endpoint = v
	}
	if v := os.Getenv("SDRUN_TRACING_SAMPLE_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Tracing.SampleRatio = f
		}
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
