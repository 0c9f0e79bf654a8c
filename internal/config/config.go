package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type QueueConfig struct {
	// Backend selects the Queueing Layer implementation: "pool" runs an
	// in-process bounded pool, "redis" a broker-backed queue.
	Backend           string `yaml:"backend"`
	StageAConcurrency int    `yaml:"stage_a_concurrency"`
	StageBConcurrency int    `yaml:"stage_b_concurrency"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type SecurityConfig struct {
	MasterKey string `yaml:"master_key"`
}

// PipelineConfig holds the built-in defaults tier of the job configuration.
// Global settings and job overrides are layered on top per key at call time.
type PipelineConfig struct {
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	OpenAIAPIKey    string `yaml:"openai_api_key"` // bootstrap credential for first-run settings
	ModelA          string `yaml:"model_a"`
	ModelB          string `yaml:"model_b"`
	ModelAProtocol  string `yaml:"model_a_protocol"` // chat_completions | responses
	ModelBProtocol  string `yaml:"model_b_protocol"` // images_edits | responses
	ModelBEndpoint  string `yaml:"model_b_endpoint"`
	ModelAUseSchema *bool  `yaml:"model_a_use_schema"`
	QAMode          string `yaml:"qa_mode"`           // auto | strict
	ReadingDir      string `yaml:"reading_direction"` // auto | rtl | ltr
	OutputFormat    string `yaml:"output_format"`
	StageATimeout   int    `yaml:"stage_a_timeout"` // seconds
	StageBTimeout   int    `yaml:"stage_b_timeout"` // seconds
	Retries         *int   `yaml:"retries"` // extra attempts after the first; 0 is a valid setting
	KeepArtifacts   *bool  `yaml:"keep_all_artifacts"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	Storage  StorageConfig  `yaml:"storage"`
	Security SecurityConfig `yaml:"security"`
	Pipeline PipelineConfig `yaml:"pipeline"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Queue.Backend == "redis" && cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required for queue.backend=redis")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8000
	}
	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = "pool"
	}
	if cfg.Queue.StageAConcurrency <= 0 {
		cfg.Queue.StageAConcurrency = 6
	}
	if cfg.Queue.StageBConcurrency <= 0 {
		cfg.Queue.StageBConcurrency = 4
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "./data"
	}

	p := &cfg.Pipeline
	if p.OpenAIBaseURL == "" {
		p.OpenAIBaseURL = "https://api.openai.com"
	}
	if p.ModelA == "" {
		p.ModelA = "gemini-3-pro-preview"
	}
	if p.ModelB == "" {
		p.ModelB = "gemini-3-pro-image-preview"
	}
	if p.ModelAProtocol == "" {
		p.ModelAProtocol = "chat_completions"
	}
	if p.ModelBProtocol == "" {
		p.ModelBProtocol = "images_edits"
	}
	if p.ModelBEndpoint == "" {
		p.ModelBEndpoint = "/v1/images/edits"
	}
	if p.ModelAUseSchema == nil {
		t := true
		p.ModelAUseSchema = &t
	}
	if p.QAMode == "" {
		p.QAMode = "auto"
	}
	if p.ReadingDir == "" {
		p.ReadingDir = "auto"
	}
	if p.OutputFormat == "" {
		p.OutputFormat = "cbz"
	}
	if p.StageATimeout <= 0 {
		p.StageATimeout = 120
	}
	if p.StageBTimeout <= 0 {
		p.StageBTimeout = 300
	}
	if p.Retries == nil || *p.Retries < 0 {
		one := 1
		p.Retries = &one
	}
	if p.KeepArtifacts == nil {
		t := true
		p.KeepArtifacts = &t
	}
}

// Defaults materializes the built-in defaults tier as a plain key map, the
// lowest-precedence input to the per-job config merge.
func (p *PipelineConfig) Defaults() map[string]any {
	return map[string]any{
		"openai_base_url":    p.OpenAIBaseURL,
		"model_a":            p.ModelA,
		"model_b":            p.ModelB,
		"model_a_protocol":   p.ModelAProtocol,
		"model_b_protocol":   p.ModelBProtocol,
		"model_b_endpoint":   p.ModelBEndpoint,
		"model_a_use_schema": *p.ModelAUseSchema,
		"qa_mode":            p.QAMode,
		"reading_direction":  p.ReadingDir,
		"output_format":      p.OutputFormat,
		"stage_a_timeout":    p.StageATimeout,
		"stage_b_timeout":    p.StageBTimeout,
		"retries":            *p.Retries,
		"keep_all_artifacts": *p.KeepArtifacts,
	}
}
