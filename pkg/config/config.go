// Package config provides configuration loading, validation, and access for the triage service.
//
// The configuration lives in <projectDir>/.triage/config.json. A single global copy is kept in
// memory behind a mutex; GetConfig returns it by value so callers cannot mutate shared state.
//
//	if err := config.LoadConfig(projectDir); err != nil { ... }
//	cfg, err := config.GetConfig()
//
// Load reads a config file without touching the global copy and is what tests and one-shot
// tools should use.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bugtriage/pkg/logx"
)

const (
	// ProjectConfigDir holds config.json, the encrypted secrets file and the default data files.
	ProjectConfigDir      = ".triage"
	ProjectConfigFilename = "config.json"

	// SchemaVersion is bumped whenever a field changes meaning.
	SchemaVersion = "1.0"

	DefaultModel          = ModelClaudeSonnetLatest
	DefaultMaxTokens      = 2048
	DefaultTemperature    = 0.2
	DefaultMaxRetries     = 3
	DefaultTicketPrefix   = "CSE"
	DefaultSummaryMaxLen  = 300
	DefaultLLMTimeout     = 60 * time.Second
	DefaultToolTimeout    = 15 * time.Second
	DefaultListenAddr     = ":8080"
	DefaultMaxConcurrency = 4
	DefaultPrometheusURL  = "http://localhost:9090"
)

//nolint:gochecknoglobals // intentional singleton for process-wide config
var (
	config     *Config
	projectDir string
	logger     *logx.Logger
	mu         sync.RWMutex
)

func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// Config is the complete on-disk configuration.
type Config struct {
	SchemaVersion string            `json:"schema_version"`
	Model         *ModelConfig      `json:"model"`
	Triage        *TriageConfig     `json:"triage"`
	Resilience    *ResilienceConfig `json:"resilience"`
	Data          *DataConfig       `json:"data"`
	GitHub        *GitHubConfig     `json:"github"`
	Metrics       *MetricsConfig    `json:"metrics"`
	Store         *StoreConfig      `json:"store"`
	Trace         *TraceConfig      `json:"trace"`
	Server        *ServerConfig     `json:"server"`
}

// ModelConfig selects the decision-maker model. The provider is inferred from the name.
type ModelConfig struct {
	Name        string  `json:"name"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

// TriageConfig holds the control-loop policy knobs.
type TriageConfig struct {
	MaxRetries    int           `json:"max_retries"`
	TicketPrefix  string        `json:"ticket_prefix"`
	SummaryMaxLen int           `json:"summary_max_len"`
	RunTimeout    time.Duration `json:"run_timeout"` // 0 = no whole-run deadline
}

// RetryConfig defines transport-level retry for LLM calls.
type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts"`
	InitialDelay  time.Duration `json:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
	Jitter        bool          `json:"jitter"`
}

// ResilienceConfig bundles per-call timeouts and transport retry.
type ResilienceConfig struct {
	LLMTimeout  time.Duration `json:"llm_timeout"`
	ToolTimeout time.Duration `json:"tool_timeout"`
	Retry       RetryConfig   `json:"retry"`
}

// DataConfig points at the JSON record sources.
type DataConfig struct {
	Dir         string `json:"dir"`
	TicketsFile string `json:"tickets_file"`
	ChatFile    string `json:"chat_file"`
	IssuesFile  string `json:"issues_file"`
}

// GitHubConfig switches issue_search from the local file to a live repository.
type GitHubConfig struct {
	Enabled bool   `json:"enabled"`
	Owner   string `json:"owner"`
	Repo    string `json:"repo"`
}

// MetricsConfig controls Prometheus instrumentation.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`
	PrometheusURL string `json:"prometheus_url"`
}

// StoreConfig locates the run-history database.
type StoreConfig struct {
	DBPath string `json:"db_path"`
}

// TraceConfig locates the JSONL event trace.
type TraceConfig struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir"`
}

// ServerConfig configures `triage serve`.
type ServerConfig struct {
	ListenAddr     string `json:"listen_addr"`
	MaxConcurrency int    `json:"max_concurrency"`
}

// TicketsPath returns the ticket store location.
func (d *DataConfig) TicketsPath() string { return filepath.Join(d.Dir, d.TicketsFile) }

// ChatPath returns the chat-thread file location.
func (d *DataConfig) ChatPath() string { return filepath.Join(d.Dir, d.ChatFile) }

// IssuesPath returns the code-host issue file location.
func (d *DataConfig) IssuesPath() string { return filepath.Join(d.Dir, d.IssuesFile) }

// GetProjectDir returns the directory passed to LoadConfig.
func GetProjectDir() string {
	mu.RLock()
	defer mu.RUnlock()
	return projectDir
}

// GetConfig returns the loaded config by value.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return *config, nil
}

// SetConfigForTesting installs cfg as the global config. Pass nil to reset.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg != nil {
		applyDefaults(cfg)
	}
	config = cfg
	if cfg == nil {
		projectDir = ""
	}
}

// LoadConfig loads <dir>/.triage/config.json into the global config.
//
// A missing file is created with defaults. A file that cannot be parsed is an error so user
// edits are never overwritten. Relative data/store/trace paths are resolved against dir.
func LoadConfig(dir string) error {
	mu.Lock()
	defer mu.Unlock()

	projectDir = dir
	path := filepath.Join(dir, ProjectConfigDir, ProjectConfigFilename)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		getLogger().Info("📝 Config file not found, creating %s", path)
		cfg := createDefaultConfig()
		if err := validateConfig(cfg); err != nil {
			return fmt.Errorf("default config validation failed: %w", err)
		}
		if err := Save(cfg, path); err != nil {
			return fmt.Errorf("failed to save initial config: %w", err)
		}
		resolvePaths(cfg, dir)
		config = cfg
		return nil
	}

	cfg, err := Load(path)
	if err != nil {
		return err
	}
	resolvePaths(cfg, dir)
	config = cfg
	getLogger().Info("✅ Config loaded from %s (model %s)", path, cfg.Model.Name)
	return nil
}

// Load parses, defaults and validates a config file without touching the global config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config file %s exists but cannot be parsed: %w", path, err)
	}

	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg as indented JSON, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Default returns a fully defaulted config.
func Default() *Config {
	return createDefaultConfig()
}

func createDefaultConfig() *Config {
	cfg := &Config{SchemaVersion: SchemaVersion}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SchemaVersion
	}
	if cfg.Model == nil {
		cfg.Model = &ModelConfig{}
	}
	if cfg.Triage == nil {
		cfg.Triage = &TriageConfig{}
	}
	if cfg.Resilience == nil {
		cfg.Resilience = &ResilienceConfig{}
	}
	if cfg.Data == nil {
		cfg.Data = &DataConfig{}
	}
	if cfg.GitHub == nil {
		cfg.GitHub = &GitHubConfig{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{}
	}
	if cfg.Store == nil {
		cfg.Store = &StoreConfig{}
	}
	if cfg.Trace == nil {
		cfg.Trace = &TraceConfig{Enabled: true}
	}
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}

	if cfg.Model.Name == "" {
		cfg.Model.Name = DefaultModel
	}
	if cfg.Model.MaxTokens == 0 {
		cfg.Model.MaxTokens = DefaultMaxTokens
	}
	if cfg.Model.Temperature == 0 {
		cfg.Model.Temperature = DefaultTemperature
	}

	if cfg.Triage.MaxRetries == 0 {
		cfg.Triage.MaxRetries = DefaultMaxRetries
	}
	if cfg.Triage.TicketPrefix == "" {
		cfg.Triage.TicketPrefix = DefaultTicketPrefix
	}
	if cfg.Triage.SummaryMaxLen == 0 {
		cfg.Triage.SummaryMaxLen = DefaultSummaryMaxLen
	}

	if cfg.Resilience.LLMTimeout == 0 {
		cfg.Resilience.LLMTimeout = DefaultLLMTimeout
	}
	if cfg.Resilience.ToolTimeout == 0 {
		cfg.Resilience.ToolTimeout = DefaultToolTimeout
	}
	r := &cfg.Resilience.Retry
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}
	if r.InitialDelay == 0 {
		r.InitialDelay = 500 * time.Millisecond
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = 10 * time.Second
	}
	if r.BackoffFactor == 0 {
		r.BackoffFactor = 2.0
	}

	if cfg.Data.Dir == "" {
		cfg.Data.Dir = filepath.Join(ProjectConfigDir, "data")
	}
	if cfg.Data.TicketsFile == "" {
		cfg.Data.TicketsFile = "tickets.json"
	}
	if cfg.Data.ChatFile == "" {
		cfg.Data.ChatFile = "chat.json"
	}
	if cfg.Data.IssuesFile == "" {
		cfg.Data.IssuesFile = "issues.json"
	}

	if cfg.Metrics.PrometheusURL == "" {
		cfg.Metrics.PrometheusURL = DefaultPrometheusURL
	}
	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = filepath.Join(ProjectConfigDir, "runs.db")
	}
	if cfg.Trace.Dir == "" {
		cfg.Trace.Dir = filepath.Join(ProjectConfigDir, "trace")
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.MaxConcurrency == 0 {
		cfg.Server.MaxConcurrency = DefaultMaxConcurrency
	}
}

func validateConfig(cfg *Config) error {
	if _, err := GetModelProvider(cfg.Model.Name); err != nil {
		return err
	}
	if cfg.Model.MaxTokens < 0 {
		return fmt.Errorf("model.max_tokens must be positive")
	}
	if cfg.Model.Temperature < 0 || cfg.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature must be between 0.0 and 2.0")
	}
	if cfg.Triage.MaxRetries < 0 {
		return fmt.Errorf("triage.max_retries cannot be negative (got %d)", cfg.Triage.MaxRetries)
	}
	if strings.ContainsAny(cfg.Triage.TicketPrefix, " -") {
		return fmt.Errorf("triage.ticket_prefix %q must not contain spaces or dashes", cfg.Triage.TicketPrefix)
	}
	if cfg.Triage.RunTimeout < 0 {
		return fmt.Errorf("triage.run_timeout cannot be negative")
	}
	if cfg.GitHub.Enabled && (cfg.GitHub.Owner == "" || cfg.GitHub.Repo == "") {
		return fmt.Errorf("github.enabled requires github.owner and github.repo")
	}
	if cfg.Server.MaxConcurrency < 0 {
		return fmt.Errorf("server.max_concurrency cannot be negative")
	}
	return nil
}

func resolvePaths(cfg *Config, dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	cfg.Data.Dir = abs(cfg.Data.Dir)
	cfg.Store.DBPath = abs(cfg.Store.DBPath)
	cfg.Trace.Dir = abs(cfg.Trace.Dir)
}
