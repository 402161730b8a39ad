// Package config loads devagent configuration, resolves model providers, and
// manages encrypted project secrets.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ProjectDirName is the per-project state directory.
const ProjectDirName = ".devagent"

// ConfigFileName is the config file inside ProjectDirName.
const ConfigFileName = "config.yaml"

// Provider names.
const (
	ProviderGitHub    = "github"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Default endpoints.
const (
	GitHubModelsBaseURL = "https://models.inference.ai.azure.com"
	OllamaDefaultHost   = "http://localhost:11434"
)

// Host kinds.
const (
	HostPython = "python"
	HostNone   = "none"
)

// Config is the root configuration.
type Config struct {
	Generation  GenerationConfig  `yaml:"generation"`
	Loop        LoopConfig        `yaml:"loop"`
	Probe       ProbeConfig       `yaml:"probe"`
	Host        HostConfig        `yaml:"host"`
	Output      OutputConfig      `yaml:"output"`
	Logging     LoggingConfig     `yaml:"logging"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// GenerationConfig selects and tunes the model backend.
type GenerationConfig struct {
	Provider         string        `yaml:"provider"`
	Model            string        `yaml:"model"`
	BaseURL          string        `yaml:"base_url"`
	Temperature      float64       `yaml:"temperature"`
	MaxTokens        int           `yaml:"max_tokens"`
	Timeout          time.Duration `yaml:"timeout"`
	TransientRetries *int          `yaml:"transient_retries"`
	MinCodeLength    int           `yaml:"min_code_length"`
	RequiredImport   string        `yaml:"required_import"`
}

// LoopConfig bounds the retry loop.
type LoopConfig struct {
	MaxAttempts  *int `yaml:"max_attempts"`
	PreviewChars int  `yaml:"preview_chars"`
}

// ProbeConfig tunes the execution probes.
type ProbeConfig struct {
	SettleInterval  time.Duration `yaml:"settle_interval"`
	ErrorSeverities []string      `yaml:"error_severities"`
	ScriptBindings  []string      `yaml:"script_bindings"`
}

// HostConfig selects the host implementation.
type HostConfig struct {
	Kind        string        `yaml:"kind"`
	Interpreter string        `yaml:"interpreter"`
	ExtraPaths  []string      `yaml:"extra_paths"`
	ExecTimeout time.Duration `yaml:"exec_timeout"`
}

// OutputConfig controls where artifacts are written.
type OutputConfig struct {
	Root string `yaml:"root"`
}

// LoggingConfig controls the rotated log file.
type LoggingConfig struct {
	Dir       string `yaml:"dir"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	Tee       *bool  `yaml:"tee"`
}

// PersistenceConfig locates the session database.
type PersistenceConfig struct {
	DBPath string `yaml:"db_path"`
}

// MetricsConfig controls metrics exposure and querying.
type MetricsConfig struct {
	ListenAddr    string `yaml:"listen_addr"`
	PrometheusURL string `yaml:"prometheus_url"`
}

// Attempts returns the configured debug-attempt budget.
func (l LoopConfig) Attempts() int {
	if l.MaxAttempts == nil {
		return 2
	}
	return *l.MaxAttempts
}

// Retries returns the configured transient retry count.
func (g GenerationConfig) Retries() int {
	if g.TransientRetries == nil {
		return 2
	}
	return *g.TransientRetries
}

func intPtr(v int) *int { return &v }

// TeeEnabled reports whether log lines also go to stderr.
func (l LoggingConfig) TeeEnabled() bool {
	return l.Tee == nil || *l.Tee
}

// Default returns a config with all defaults applied for projectDir.
func Default(projectDir string) *Config {
	cfg := &Config{}
	applyDefaults(cfg, projectDir)
	return cfg
}

// applyDefaults sets default values for missing configuration.
func applyDefaults(cfg *Config, projectDir string) {
	if projectDir == "" {
		projectDir = "."
	}

	g := &cfg.Generation
	if g.Provider == "" {
		if g.Model != "" {
			if provider, err := GetModelProvider(g.Model); err == nil {
				g.Provider = provider
			}
		}
		if g.Provider == "" {
			g.Provider = ProviderGitHub
		}
	}
	if g.Model == "" {
		g.Model = DefaultModelFor(g.Provider)
	}
	if g.BaseURL == "" {
		switch g.Provider {
		case ProviderGitHub:
			g.BaseURL = GitHubModelsBaseURL
		case ProviderOllama:
			g.BaseURL = OllamaDefaultHost
		}
	}
	if g.Temperature == 0 {
		g.Temperature = 0.1
	}
	if g.MaxTokens == 0 {
		g.MaxTokens = 8000
	}
	if g.MinCodeLength == 0 {
		g.MinCodeLength = 50
	}
	if g.RequiredImport == "" {
		g.RequiredImport = "import slicer"
	}
	if g.TransientRetries == nil {
		g.TransientRetries = intPtr(2)
	}

	if cfg.Loop.MaxAttempts == nil {
		cfg.Loop.MaxAttempts = intPtr(2)
	}
	if cfg.Loop.PreviewChars == 0 {
		cfg.Loop.PreviewChars = 800
	}

	if cfg.Probe.SettleInterval == 0 {
		cfg.Probe.SettleInterval = time.Second
	}
	if len(cfg.Probe.ErrorSeverities) == 0 {
		cfg.Probe.ErrorSeverities = []string{"ERROR", "FATAL", "WARNING"}
	}
	if cfg.Probe.ScriptBindings == nil {
		cfg.Probe.ScriptBindings = []string{"slicer", "logging", "SampleData"}
	}

	if cfg.Host.Kind == "" {
		cfg.Host.Kind = HostPython
	}
	if cfg.Host.ExecTimeout == 0 {
		cfg.Host.ExecTimeout = 2 * time.Minute
	}

	if cfg.Output.Root == "" {
		cfg.Output.Root = filepath.Join(projectDir, "devagent-output")
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = filepath.Join(projectDir, ProjectDirName, "logs")
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 10
	}
	if cfg.Persistence.DBPath == "" {
		cfg.Persistence.DBPath = filepath.Join(projectDir, ProjectDirName, "devagent.db")
	}
}

// validateConfig rejects configurations the loop cannot run with.
func validateConfig(cfg *Config) error {
	switch cfg.Generation.Provider {
	case ProviderGitHub, ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderOllama:
	default:
		return fmt.Errorf("unknown generation provider %q (expected one of %s)",
			cfg.Generation.Provider, strings.Join(SupportedProviders(), ", "))
	}
	if cfg.Generation.Temperature < 0 || cfg.Generation.Temperature > 2 {
		return fmt.Errorf("generation.temperature must be within [0, 2], got %v", cfg.Generation.Temperature)
	}
	if cfg.Generation.MaxTokens < 0 {
		return fmt.Errorf("generation.max_tokens must be positive")
	}
	if cfg.Generation.Timeout < 0 {
		return fmt.Errorf("generation.timeout must not be negative")
	}
	if *cfg.Generation.TransientRetries < 0 {
		return fmt.Errorf("generation.transient_retries must not be negative")
	}
	if *cfg.Loop.MaxAttempts < 0 {
		return fmt.Errorf("loop.max_attempts must be >= 0")
	}
	if cfg.Loop.PreviewChars < 0 {
		return fmt.Errorf("loop.preview_chars must not be negative")
	}
	if cfg.Probe.SettleInterval < 0 {
		return fmt.Errorf("probe.settle_interval must not be negative")
	}
	switch cfg.Host.Kind {
	case HostPython, HostNone:
	default:
		return fmt.Errorf("unknown host kind %q (expected %s or %s)", cfg.Host.Kind, HostPython, HostNone)
	}
	return nil
}

// SupportedProviders lists accepted provider names.
func SupportedProviders() []string {
	return []string{ProviderGitHub, ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderOllama}
}
