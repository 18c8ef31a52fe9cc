package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the housing assistant service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Turn      TurnConfig      `mapstructure:"turn"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Maps      MapsConfig      `mapstructure:"maps"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address       string `mapstructure:"address"`
	JWTSecret     string `mapstructure:"jwt_secret"`
	AuthRequired  bool   `mapstructure:"auth_required"`
	RetentionCron string `mapstructure:"retention_cron"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
	Embedding EmbeddingConfig        `mapstructure:"embedding"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai or any compatible endpoint
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model to use for each turn phase
type LLMRoutingConfig struct {
	Compression string `mapstructure:"compression"` // conversation summarisation
	Analysis    string `mapstructure:"analysis"`    // query rewriting and routing
	Branch      string `mapstructure:"branch"`      // per-sub-question reasoning loop
	Aggregation string `mapstructure:"aggregation"` // final streamed synthesis
	Fallback    string `mapstructure:"fallback"`
}

// Model resolves the configured model for a phase, falling back when unset.
func (r LLMRoutingConfig) Model(phase string) string {
	var m string
	switch phase {
	case "compression":
		m = r.Compression
	case "analysis":
		m = r.Analysis
	case "branch":
		m = r.Branch
	case "aggregation":
		m = r.Aggregation
	}
	if m == "" {
		m = r.Fallback
	}
	return m
}

// EmbeddingConfig selects the embedding model used by the knowledge index.
type EmbeddingConfig struct {
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// TurnConfig bounds the turn-processing engine.
type TurnConfig struct {
	MaxSubQuestions    int           `mapstructure:"max_sub_questions"`
	MaxIterations      int           `mapstructure:"max_iterations"`
	BranchTimeout      time.Duration `mapstructure:"branch_timeout"`
	TurnTimeout        time.Duration `mapstructure:"turn_timeout"`
	SummaryMinMessages int           `mapstructure:"summary_min_messages"`
	SummaryWindow      int           `mapstructure:"summary_window"`
	StreamBuffer       int           `mapstructure:"stream_buffer"`
}

// Normalize applies defaults for unset turn limits.
func (t TurnConfig) Normalize() TurnConfig {
	if t.MaxSubQuestions <= 0 || t.MaxSubQuestions > 3 {
		t.MaxSubQuestions = 3
	}
	if t.MaxIterations <= 0 {
		t.MaxIterations = 6
	}
	if t.BranchTimeout <= 0 {
		t.BranchTimeout = 90 * time.Second
	}
	if t.TurnTimeout <= 0 {
		t.TurnTimeout = 4 * time.Minute
	}
	if t.SummaryMinMessages <= 0 {
		t.SummaryMinMessages = 4
	}
	if t.SummaryWindow <= 0 {
		t.SummaryWindow = 6
	}
	if t.StreamBuffer <= 0 {
		t.StreamBuffer = 64
	}
	return t
}

// RetrievalConfig controls hybrid search over the knowledge index.
type RetrievalConfig struct {
	IndexPath           string  `mapstructure:"index_path"`
	ParentStorePath     string  `mapstructure:"parent_store_path"`
	TopKChunks          int     `mapstructure:"top_k_chunks"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MaxParentRetrieval  int     `mapstructure:"max_parent_retrieval"`
}

// Normalize applies the retrieval defaults.
func (r RetrievalConfig) Normalize() RetrievalConfig {
	if r.IndexPath == "" {
		r.IndexPath = "knowledge.bleve"
	}
	if r.ParentStorePath == "" {
		r.ParentStorePath = "parent_store"
	}
	if r.TopKChunks <= 0 {
		r.TopKChunks = 7
	}
	if r.SimilarityThreshold <= 0 {
		r.SimilarityThreshold = 0.7
	}
	if r.MaxParentRetrieval <= 0 {
		r.MaxParentRetrieval = 3
	}
	return r
}

// MapsConfig contains location-service settings.
type MapsConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Region       string        `mapstructure:"region"`
	SearchRadius int           `mapstructure:"search_radius"`
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Normalize applies the maps defaults.
func (m MapsConfig) Normalize() MapsConfig {
	if m.BaseURL == "" {
		m.BaseURL = "https://maps.googleapis.com/maps/api"
	}
	if m.Region == "" {
		m.Region = "sg"
	}
	if m.SearchRadius <= 0 {
		m.SearchRadius = 1000
	}
	if m.MaxResults <= 0 {
		m.MaxResults = 8
	}
	if m.Timeout <= 0 {
		m.Timeout = 15 * time.Second
	}
	return m
}

// IngestConfig controls the document ingestion pipeline.
type IngestConfig struct {
	DocsDir       string        `mapstructure:"docs_dir"`
	ChildSize     int           `mapstructure:"child_size"`
	ChildOverlap  int           `mapstructure:"child_overlap"`
	MinParentSize int           `mapstructure:"min_parent_size"`
	MaxParentSize int           `mapstructure:"max_parent_size"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	MaxChars      int           `mapstructure:"max_chars"`
}

// Normalize applies the chunking defaults.
func (i IngestConfig) Normalize() IngestConfig {
	if i.DocsDir == "" {
		i.DocsDir = "docs"
	}
	if i.ChildSize <= 0 {
		i.ChildSize = 500
	}
	if i.ChildOverlap <= 0 {
		i.ChildOverlap = 100
	}
	if i.MinParentSize <= 0 {
		i.MinParentSize = 2000
	}
	if i.MaxParentSize <= 0 {
		i.MaxParentSize = 10000
	}
	if i.FetchTimeout <= 0 {
		i.FetchTimeout = 30 * time.Second
	}
	if i.MaxChars <= 0 {
		i.MaxChars = 120000
	}
	return i
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Driver   string         `mapstructure:"driver"` // postgres or memory
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DSN builds a lib/pq connection string from the configured fields.
func (p PostgresConfig) DSN() (string, error) {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL, nil
	}
	if strings.TrimSpace(p.Host) == "" || strings.TrimSpace(p.DBName) == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Addr returns host:port, or empty when redis is not configured.
func (r RedisConfig) Addr() string {
	if strings.TrimSpace(r.Host) == "" || strings.TrimSpace(r.Port) == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CostTracking bool   `mapstructure:"cost_tracking"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// LoadConfig loads config from file (or the default search paths) plus
// HOUSLY_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "60s")
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.retention_cron", "@daily")
	viper.SetDefault("server.retention_days", 30)
	viper.SetDefault("storage.driver", "postgres")
	viper.SetDefault("llm.embedding.model", "text-embedding-3-small")
	viper.SetDefault("llm.embedding.dimensions", 1536)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("HOUSLY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	config.Turn = config.Turn.Normalize()
	config.Retrieval = config.Retrieval.Normalize()
	config.Maps = config.Maps.Normalize()
	config.Ingest = config.Ingest.Normalize()
	return &config, nil
}
