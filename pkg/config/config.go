// Package config provides configuration loading, validation, and management
// for the biography pipeline.
//
// KEY PRINCIPLES:
//
//  1. SEPARATION OF CONCERNS:
//     - Project Config: user-tunable settings (models, thresholds, storage) saved to .saga/config.json
//     - Constants: hardcoded model registry and provider mappings that users should not modify
//     - State: session data belongs in the DATABASE, never in config
//
//  2. GLOBAL SINGLETON: a single Config instance is maintained in memory,
//     protected by a mutex.
//
//  3. VALUE-BASED ACCESS: GetConfig() returns the config BY VALUE (copy, not
//     reference) to prevent external mutation.
//
//  4. VALIDATION FIRST: configs are validated on load; invalid configs are
//     rejected.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"saga/pkg/logx"
)

// Project config constants.
const (
	ProjectConfigFilename = "config.json"
	ProjectConfigDir      = ".saga"
	SchemaVersion         = "1.0"
)

// Provider identifiers.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderGoogle     = "google"
	ProviderOllama     = "ollama"
)

// Environment variable names for credentials.
const (
	EnvAnthropicAPIKey  = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey     = "OPENAI_API_KEY"
	EnvOpenRouterAPIKey = "OPENROUTER_API_KEY"
	EnvGoogleAPIKey     = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost       = "OLLAMA_HOST"
	EnvTavilyAPIKey     = "TAVILY_API_KEY"
)

// EnvSagaPassword optionally carries the secrets-file password so stored
// credentials unlock without a prompt.
const EnvSagaPassword = "SAGA_PASSWORD"

// DefaultOpenRouterBaseURL is the OpenAI-compatible OpenRouter endpoint.
const DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// DefaultMetricsAddr is where the Prometheus exposition endpoint listens
// when metrics are enabled without an explicit address.
const DefaultMetricsAddr = "localhost:9090"

// Pipeline policy defaults. The thresholds are deliberate policy choices,
// not hard law: the source material used 8.0/8.5/9.0 in different places,
// and these are the values this implementation standardizes on.
const (
	DefaultMaxIterations       = 50
	DefaultCompletionThreshold = 8.5
	DefaultPublicationStandard = 9.0
	DefaultRefinementCutoff    = 7.5
	DefaultMinRoundsForExtract = 3
	DefaultMinRoundsForWrite   = 6
	DefaultMinTextForWrite     = 1500
	DefaultMaxInterviewRounds  = 20
	DefaultBatchWorkers        = 10
)

// Global config instance with mutex protection.
// projectDir is set once during LoadConfig and never changes.
//
//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config     *Config
	projectDir string
	logger     *logx.Logger
	mu         sync.RWMutex
)

// getLogger returns the config logger, initializing it if needed.
func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// LogInfo logs an info message using the config logger.
func LogInfo(format string, args ...any) {
	getLogger().Info(format, args...)
}

// ModelInfo contains static information about a known LLM model.
// This data is hardcoded in the application, not user-configurable.
type ModelInfo struct {
	Provider         string  // API provider (anthropic, openrouter, ...)
	InputCPM         float64 // Cost per million input tokens (USD)
	OutputCPM        float64 // Cost per million output tokens (USD)
	MaxContextTokens int     // Maximum context window size in tokens
	MaxOutputTokens  int     // Maximum output tokens per request
}

// KnownModels contains pricing and provider information for common models.
// This is optional - unknown models are inferred via ProviderPatterns.
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	// Claude models (Anthropic)
	"claude-sonnet-4-20250514": {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"claude-3-5-haiku-20241022": {
		Provider:         ProviderAnthropic,
		InputCPM:         0.8,
		OutputCPM:        4.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},

	// OpenAI models
	"gpt-4o": {
		Provider:         ProviderOpenAI,
		InputCPM:         2.5,
		OutputCPM:        10.0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  4096,
	},
	"gpt-4o-mini": {
		Provider:         ProviderOpenAI,
		InputCPM:         0.15,
		OutputCPM:        0.6,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},

	// Google Gemini models
	"gemini-2.0-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.10,
		OutputCPM:        0.40,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  8192,
	},
	"gemini-2.5-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.30,
		OutputCPM:        2.50,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},

	// OpenRouter-routed models (provider/model form)
	"deepseek/deepseek-chat-v3-0324": {
		Provider:         ProviderOpenRouter,
		InputCPM:         0.25,
		OutputCPM:        0.85,
		MaxContextTokens: 64000,
		MaxOutputTokens:  8192,
	},
	"anthropic/claude-sonnet-4": {
		Provider:         ProviderOpenRouter,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"qwen/qwen3-32b": {
		Provider:         ProviderOpenRouter,
		InputCPM:         0.10,
		OutputCPM:        0.30,
		MaxContextTokens: 32768,
		MaxOutputTokens:  8192,
	},

	// Local models (Ollama)
	"llama3.3": {
		Provider:         ProviderOllama,
		InputCPM:         0.0,
		OutputCPM:        0.0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  4096,
	},
}

// ProviderPattern represents a pattern for inferring provider from model name.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns defines rules for inferring providers from unknown model
// names. Allows using new models without code changes. Names containing a
// slash are OpenRouter-routed and handled before these patterns apply.
//
//nolint:gochecknoglobals // Intentional global for inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	// Common open-source model prefixes served by a local Ollama
	{"phi", ProviderOllama},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"deepseek", ProviderOllama},
	{"ollama:", ProviderOllama}, // Explicit prefix like "ollama:phi4"
}

// GetModelProvider returns the API provider for a given model.
// Checks KnownModels first, then the slash rule, then prefix patterns.
// Returns an error if the model cannot be mapped to a provider.
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}

	// "provider/model" names route through OpenRouter
	if strings.Contains(modelName, "/") {
		return ProviderOpenRouter, nil
	}

	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}

	return "", fmt.Errorf("unknown model '%s': no known provider mapping or pattern match", modelName)
}

// GetModelInfo returns the ModelInfo for a model name. Unknown models get
// conservative defaults with an inferred provider and false.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}

	provider, _ := GetModelProvider(modelName)
	return ModelInfo{
		Provider:         provider,
		InputCPM:         0.0,
		OutputCPM:        0.0,
		MaxContextTokens: 32000,
		MaxOutputTokens:  4096,
	}, false
}

// CalculateCost returns the USD cost of a completion for a known model.
// Unknown models cost zero; usage is still allowed.
func CalculateCost(modelName string, inputTokens, outputTokens int) float64 {
	info, known := GetModelInfo(modelName)
	if !known {
		return 0.0
	}
	return float64(inputTokens)/1e6*info.InputCPM + float64(outputTokens)/1e6*info.OutputCPM
}

// ClampMaxTokens caps a requested completion size to the model's output limit.
func ClampMaxTokens(modelName string, requested int) int {
	info, _ := GetModelInfo(modelName)
	if info.MaxOutputTokens > 0 && requested > info.MaxOutputTokens {
		return info.MaxOutputTokens
	}
	return requested
}

// ModelsConfig selects which models drive the pipeline.
type ModelsConfig struct {
	Primary           string  `json:"primary"`                       // Model used for all pipeline stages
	Backup            string  `json:"backup,omitempty"`              // Fallback model when the primary exhausts its retries
	MaxTokens         int     `json:"max_tokens"`                    // Completion token cap per request (default: 4096)
	Temperature       float32 `json:"temperature"`                   // Base sampling temperature for generation (default: 0.7)
	OpenRouterBaseURL string  `json:"openrouter_base_url,omitempty"` // Override for the OpenRouter endpoint
	OllamaHost        string  `json:"ollama_host,omitempty"`         // Override for the local Ollama server
}

// PipelineConfig tunes the coordinator's decision thresholds.
type PipelineConfig struct {
	MaxIterations       int     `json:"max_iterations"`         // Coordinator iteration cap (default: 50)
	CompletionThreshold float64 `json:"completion_threshold"`   // Score at which a session may complete (default: 8.5)
	PublicationStandard float64 `json:"publication_standard"`   // Score reported as publication-ready (default: 9.0)
	RefinementCutoff    float64 `json:"refinement_cutoff"`      // Below this, refinement rewrites comprehensively (default: 7.5)
	MinRoundsForExtract int     `json:"min_rounds_for_extract"` // Dialogue rounds before event extraction (default: 3)
	MinRoundsForWrite   int     `json:"min_rounds_for_write"`   // Dialogue rounds before drafting (default: 6)
	MinTextForWrite     int     `json:"min_text_for_write"`     // Interview characters that substitute for research (default: 1500)
	MaxInterviewRounds  int     `json:"max_interview_rounds"`   // Rounds after which the interviewer winds down (default: 20)
}

// BatchConfig controls concurrent batch processing.
type BatchConfig struct {
	Workers int `json:"workers"` // Concurrent sessions in batch mode (default: 10)
}

// SearchConfig defines the web search provider used for historical research.
type SearchConfig struct {
	Provider       string `json:"provider"`        // Search backend; only "tavily" is supported
	MaxResults     int    `json:"max_results"`     // Results per query (default: 5)
	TimeoutSeconds int    `json:"timeout_seconds"` // Per-query timeout (default: 20)
}

// StorageConfig locates session persistence and exports.
type StorageConfig struct {
	DatabasePath string `json:"database_path"` // SQLite file path (default: .saga/saga.db)
	ExportDir    string `json:"export_dir"`    // Directory for exported session JSON (default: output)
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"` // Whether to serve /metrics (default: false)
	Addr    string `json:"addr"`    // Listen address (default: "localhost:9090")
}

// Config represents the main configuration for the pipeline.
//
// Model pricing and provider mappings are hardcoded in KnownModels, not here.
type Config struct {
	SchemaVersion string `json:"schema_version"`

	Models   *ModelsConfig   `json:"models"`
	Pipeline *PipelineConfig `json:"pipeline"`
	Batch    *BatchConfig    `json:"batch"`
	Search   *SearchConfig   `json:"search"`
	Storage  *StorageConfig  `json:"storage"`
	Metrics  *MetricsConfig  `json:"metrics"`
}

// GetConfig returns the current global config BY VALUE (copy, not reference).
// Must call LoadConfig first to initialize the global config.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return *config, nil
}

// SetConfigForTesting sets the global config for testing purposes.
// Pass nil to reset. This bypasses normal initialization.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
	if cfg == nil {
		projectDir = ""
	}
}

// GetProjectDir returns the current project directory.
func GetProjectDir() string {
	mu.RLock()
	defer mu.RUnlock()
	return projectDir
}

// GetProjectConfigDir returns the path to the .saga directory.
// Must call LoadConfig first to initialize projectDir.
func GetProjectConfigDir() (string, error) {
	mu.RLock()
	defer mu.RUnlock()
	if projectDir == "" {
		return "", fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return filepath.Join(projectDir, ProjectConfigDir), nil
}

// GetAPIKey returns the API key for a given provider.
// Checks the secrets file first, then falls back to environment variables.
// For Ollama, returns the host URL instead of an API key.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderOpenRouter:
		envVar = EnvOpenRouterAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		// Ollama doesn't use API keys - return host URL instead
		if host := os.Getenv(EnvOllamaHost); host != "" {
			return host, nil
		}
		return "http://localhost:11434", nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	key, err := GetSecret(envVar)
	if err == nil && key != "" {
		return key, nil
	}

	return "", fmt.Errorf("API key not found: %s not in secrets file or environment", envVar)
}

// GetSearchAPIKey returns the Tavily API key, or empty if not configured.
// Research degrades to empty historical context without it.
func GetSearchAPIKey() string {
	key, err := GetSecret(EnvTavilyAPIKey)
	if err != nil {
		return ""
	}
	return key
}
