// Package config loads runtime configuration from the environment, with
// an optional YAML file for the serve command.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all configuration values.
type Config struct {
	// HTTP server
	HTTPAddr string `yaml:"http_addr"`

	// SurrealDB connection (analytical + graph backends)
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Qdrant (vector backend)
	QdrantHost       string `yaml:"qdrant_host"`
	QdrantPort       int    `yaml:"qdrant_port"`
	QdrantCollection string `yaml:"qdrant_collection"`

	// Backend selection per family
	VectorBackend     string `yaml:"vector_backend"`
	AnalyticalBackend string `yaml:"analytical_backend"`
	GraphBackend      string `yaml:"graph_backend"`

	// Embeddings
	EmbeddingProvider  string `yaml:"embedding_provider"`
	EmbeddingModel     string `yaml:"embedding_model"`
	EmbeddingDimension int    `yaml:"embedding_dimension"`

	// LLM provider chain, tried in order. The static provider is always
	// appended last.
	ProviderOrder  []string `yaml:"provider_order"`
	OllamaHost     string   `yaml:"ollama_host"`
	OllamaModel    string   `yaml:"ollama_model"`
	AnthropicModel string   `yaml:"anthropic_model"`
	OpenAIModel    string   `yaml:"openai_model"`
	AnthropicKey   string   `yaml:"-"`
	OpenAIKey      string   `yaml:"-"`

	TokenBudget     int64    `yaml:"token_budget"`
	ProviderTimeout Duration `yaml:"provider_timeout"`

	// Orchestration
	GlobalTimeout      Duration `yaml:"global_timeout"`
	StepTimeout        Duration `yaml:"step_timeout"`
	MaxParallel        int      `yaml:"max_parallel"`
	MaxResults         int      `yaml:"max_results"`
	IntentCacheSize    int      `yaml:"intent_cache_size"`
	MultiStepThreshold float64  `yaml:"multi_step_threshold"`

	// Adapter health tracking
	HealthFailureThreshold int      `yaml:"health_failure_threshold"`
	HealthCooldown         Duration `yaml:"health_cooldown"`
	HealthProbeInterval    Duration `yaml:"health_probe_interval"`

	// Logging
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

// Load reads configuration from environment variables, falling back to
// defaults suitable for local development.
func Load() Config {
	return Config{
		HTTPAddr: getEnv("TRIVIUM_HTTP_ADDR", ":8080"),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "trivium"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "knowledge"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		QdrantHost:       getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:       getEnvInt("QDRANT_PORT", 6334),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "trivium_chunks"),

		VectorBackend:     getEnv("TRIVIUM_VECTOR_BACKEND", "qdrant"),
		AnalyticalBackend: getEnv("TRIVIUM_ANALYTICAL_BACKEND", "surrealdb"),
		GraphBackend:      getEnv("TRIVIUM_GRAPH_BACKEND", "surrealdb"),

		EmbeddingProvider:  getEnv("TRIVIUM_EMBEDDING_PROVIDER", "ollama"),
		EmbeddingModel:     getEnv("TRIVIUM_EMBEDDING_MODEL", "nomic-embed-text"),
		EmbeddingDimension: getEnvInt("TRIVIUM_EMBEDDING_DIMENSION", 768),

		ProviderOrder:  splitList(getEnv("TRIVIUM_PROVIDER_ORDER", "ollama,anthropic")),
		OllamaHost:     getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:    getEnv("TRIVIUM_OLLAMA_MODEL", "llama3.2"),
		AnthropicModel: getEnv("TRIVIUM_ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		OpenAIModel:    getEnv("TRIVIUM_OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),

		TokenBudget:     int64(getEnvInt("TRIVIUM_TOKEN_BUDGET", 0)),
		ProviderTimeout: getEnvDuration("TRIVIUM_PROVIDER_TIMEOUT", 30*time.Second),

		GlobalTimeout:      getEnvDuration("TRIVIUM_GLOBAL_TIMEOUT", 30*time.Second),
		StepTimeout:        getEnvDuration("TRIVIUM_STEP_TIMEOUT", 10*time.Second),
		MaxParallel:        getEnvInt("TRIVIUM_MAX_PARALLEL", 4),
		MaxResults:         getEnvInt("TRIVIUM_MAX_RESULTS", 10),
		IntentCacheSize:    getEnvInt("TRIVIUM_INTENT_CACHE_SIZE", 128),
		MultiStepThreshold: getEnvFloat("TRIVIUM_MULTI_STEP_THRESHOLD", 0.5),

		HealthFailureThreshold: getEnvInt("TRIVIUM_HEALTH_FAILURE_THRESHOLD", 3),
		HealthCooldown:         getEnvDuration("TRIVIUM_HEALTH_COOLDOWN", 30*time.Second),
		HealthProbeInterval:    getEnvDuration("TRIVIUM_HEALTH_PROBE_INTERVAL", 15*time.Second),

		LogFile:  getEnv("TRIVIUM_LOG_FILE", "/tmp/trivium.log"),
		LogLevel: getEnv("TRIVIUM_LOG_LEVEL", "INFO"),
	}
}

// LoadFile overlays YAML values from path onto the environment-derived
// config. Environment variables act as defaults; file values win.
func LoadFile(path string) (Config, error) {
	cfg := Load()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// SlogLevel parses the configured log level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return Duration(d)
		}
	}
	return Duration(defaultVal)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
