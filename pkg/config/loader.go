package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// DefaultConfig returns a fully populated config with default values.
func DefaultConfig() *Config {
	return &Config{
		SchemaVersion: SchemaVersion,
		Models: &ModelsConfig{
			Primary:     "claude-sonnet-4-20250514",
			Backup:      "deepseek/deepseek-chat-v3-0324",
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		Pipeline: &PipelineConfig{
			MaxIterations:       DefaultMaxIterations,
			CompletionThreshold: DefaultCompletionThreshold,
			PublicationStandard: DefaultPublicationStandard,
			RefinementCutoff:    DefaultRefinementCutoff,
			MinRoundsForExtract: DefaultMinRoundsForExtract,
			MinRoundsForWrite:   DefaultMinRoundsForWrite,
			MinTextForWrite:     DefaultMinTextForWrite,
			MaxInterviewRounds:  DefaultMaxInterviewRounds,
		},
		Batch: &BatchConfig{
			Workers: DefaultBatchWorkers,
		},
		Search: &SearchConfig{
			Provider:       "tavily",
			MaxResults:     5,
			TimeoutSeconds: 20,
		},
		Storage: &StorageConfig{
			DatabasePath: filepath.Join(ProjectConfigDir, "saga.db"),
			ExportDir:    "output",
		},
		Metrics: &MetricsConfig{
			Enabled: false,
			Addr:    DefaultMetricsAddr,
		},
	}
}

// LoadConfig loads configuration from <dir>/.saga/config.json, applies
// environment variable substitution, fills defaults, validates, and installs
// the result as the global config. A missing file yields pure defaults.
func LoadConfig(dir string) error {
	if dir == "" {
		dir = "."
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve project directory: %w", err)
	}

	cfg, err := loadConfigFile(filepath.Join(absDir, ProjectConfigDir, ProjectConfigFilename))
	if err != nil {
		return err
	}

	applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	config = cfg
	projectDir = absDir
	return nil
}

// loadConfigFile reads and parses a config file with ${ENV} substitution.
// A missing file is not an error; defaults cover everything.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{SchemaVersion: SchemaVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Replace environment variable placeholders.
	dataStr := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		envVar := match[2 : len(match)-1]
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match // leave placeholder if env var not set
	})

	var cfg Config
	if err := json.Unmarshal([]byte(dataStr), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return &cfg, nil
}

// applyDefaults fills in any missing sections or zero values.
func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SchemaVersion
	}
	if cfg.Models == nil {
		cfg.Models = defaults.Models
	} else {
		if cfg.Models.Primary == "" {
			cfg.Models.Primary = defaults.Models.Primary
		}
		if cfg.Models.MaxTokens <= 0 {
			cfg.Models.MaxTokens = defaults.Models.MaxTokens
		}
		if cfg.Models.Temperature <= 0 {
			cfg.Models.Temperature = defaults.Models.Temperature
		}
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = defaults.Pipeline
	} else {
		p, d := cfg.Pipeline, defaults.Pipeline
		if p.MaxIterations <= 0 {
			p.MaxIterations = d.MaxIterations
		}
		if p.CompletionThreshold <= 0 {
			p.CompletionThreshold = d.CompletionThreshold
		}
		if p.PublicationStandard <= 0 {
			p.PublicationStandard = d.PublicationStandard
		}
		if p.RefinementCutoff <= 0 {
			p.RefinementCutoff = d.RefinementCutoff
		}
		if p.MinRoundsForExtract <= 0 {
			p.MinRoundsForExtract = d.MinRoundsForExtract
		}
		if p.MinRoundsForWrite <= 0 {
			p.MinRoundsForWrite = d.MinRoundsForWrite
		}
		if p.MinTextForWrite <= 0 {
			p.MinTextForWrite = d.MinTextForWrite
		}
		if p.MaxInterviewRounds <= 0 {
			p.MaxInterviewRounds = d.MaxInterviewRounds
		}
	}
	if cfg.Batch == nil {
		cfg.Batch = defaults.Batch
	} else if cfg.Batch.Workers <= 0 {
		cfg.Batch.Workers = defaults.Batch.Workers
	}
	if cfg.Search == nil {
		cfg.Search = defaults.Search
	} else {
		if cfg.Search.Provider == "" {
			cfg.Search.Provider = defaults.Search.Provider
		}
		if cfg.Search.MaxResults <= 0 {
			cfg.Search.MaxResults = defaults.Search.MaxResults
		}
		if cfg.Search.TimeoutSeconds <= 0 {
			cfg.Search.TimeoutSeconds = defaults.Search.TimeoutSeconds
		}
	}
	if cfg.Storage == nil {
		cfg.Storage = defaults.Storage
	} else {
		if cfg.Storage.DatabasePath == "" {
			cfg.Storage.DatabasePath = defaults.Storage.DatabasePath
		}
		if cfg.Storage.ExportDir == "" {
			cfg.Storage.ExportDir = defaults.Storage.ExportDir
		}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = defaults.Metrics
	} else if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = defaults.Metrics.Addr
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Models.Primary == "" {
		return fmt.Errorf("models.primary is required")
	}
	if _, err := GetModelProvider(cfg.Models.Primary); err != nil {
		return fmt.Errorf("models.primary: %w", err)
	}
	if cfg.Models.Backup != "" {
		if _, err := GetModelProvider(cfg.Models.Backup); err != nil {
			return fmt.Errorf("models.backup: %w", err)
		}
	}
	if cfg.Models.Temperature < 0 || cfg.Models.Temperature > 2 {
		return fmt.Errorf("models.temperature must be in [0, 2], got %.2f", cfg.Models.Temperature)
	}

	p := cfg.Pipeline
	for _, check := range []struct {
		name  string
		value float64
	}{
		{"completion_threshold", p.CompletionThreshold},
		{"publication_standard", p.PublicationStandard},
		{"refinement_cutoff", p.RefinementCutoff},
	} {
		if check.value < 0 || check.value > 10 {
			return fmt.Errorf("pipeline.%s must be in [0, 10], got %.2f", check.name, check.value)
		}
	}
	if p.CompletionThreshold > p.PublicationStandard {
		return fmt.Errorf("pipeline.completion_threshold (%.1f) cannot exceed publication_standard (%.1f)",
			p.CompletionThreshold, p.PublicationStandard)
	}
	if p.MaxIterations < 1 {
		return fmt.Errorf("pipeline.max_iterations must be positive")
	}

	if cfg.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be positive")
	}
	if cfg.Search.Provider != "tavily" {
		return fmt.Errorf("search.provider must be 'tavily', got %q", cfg.Search.Provider)
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	return nil
}

// Save writes the current global config to <projectDir>/.saga/config.json.
func Save() error {
	mu.RLock()
	cfg := config
	dir := projectDir
	mu.RUnlock()

	if cfg == nil {
		return fmt.Errorf("config not initialized - call LoadConfig first")
	}

	configDir := filepath.Join(dir, ProjectConfigDir)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(configDir, ProjectConfigFilename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
