package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/default.yaml"

type OllamaConfig struct {
	Host               string `yaml:"host"`
	Model              string `yaml:"model"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
	MaxRetries         int    `yaml:"max_retries"`
	RetryBackoffMillis int    `yaml:"retry_backoff_ms"`
}

type CrawlerConfig struct {
	Enabled                bool   `yaml:"enabled"`
	Root                   string `yaml:"root"`
	IntervalSeconds        int    `yaml:"interval_seconds"`
	PauseSeconds           int    `yaml:"pause_seconds"`
	Watch                  bool   `yaml:"watch"`
	FailureCooldownMinutes int    `yaml:"failure_cooldown_minutes"`
	Queue                  string `yaml:"queue"`
}

type AnalysisConfig struct {
	SampleInterval          float64 `yaml:"frame_sample_interval"`
	SceneThreshold          float64 `yaml:"scene_threshold"`
	MaxFrames               int     `yaml:"max_frames_per_video"`
	FrameWidth              int     `yaml:"frame_width"`
	StaticThreshold         float64 `yaml:"static_threshold"`
	MinStaticDuration       float64 `yaml:"min_static_duration"`
	DiffMetric              string  `yaml:"diff_metric"`
	HighlightScoreThreshold int     `yaml:"highlight_score_threshold"`
	HighlightMinDuration    float64 `yaml:"highlight_min_duration"`
	TagFrequencyThreshold   float64 `yaml:"tag_frequency_threshold"`
}

type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type Config struct {
	Ollama        OllamaConfig   `yaml:"ollama"`
	Crawler       CrawlerConfig  `yaml:"crawler"`
	Analysis      AnalysisConfig `yaml:"analysis"`
	API           APIConfig      `yaml:"api"`
	Database      DatabaseConfig `yaml:"database"`
	Redis         RedisConfig    `yaml:"redis"`
	NATS          NATSConfig     `yaml:"nats"`
	AppVersion    string         `yaml:"app_version"`
	SchemaVersion string         `yaml:"schema_version"`
}

func Default() *Config {
	return &Config{
		Ollama: OllamaConfig{
			Host:               "http://host.docker.internal:11434",
			Model:              "llava:13b",
			TimeoutSeconds:     300,
			MaxRetries:         0,
			RetryBackoffMillis: 2000,
		},
		Crawler: CrawlerConfig{
			Enabled:                false,
			Root:                   "/videos",
			IntervalSeconds:        3600,
			PauseSeconds:           30,
			Watch:                  false,
			FailureCooldownMinutes: 360,
			Queue:                  "memory",
		},
		Analysis: AnalysisConfig{
			SampleInterval:          2.0,
			SceneThreshold:          0.4,
			MaxFrames:               100,
			FrameWidth:              1280,
			StaticThreshold:         0.02,
			MinStaticDuration:       1.0,
			DiffMetric:              "ssim",
			HighlightScoreThreshold: 7,
			HighlightMinDuration:    5.0,
			TagFrequencyThreshold:   0.2,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8420,
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "./analysis.db",
			Host: "localhost",
			Port: 5432,
			User: "fpv",
			Name: "fpv_analysis",
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "fpv:crawl",
		},
		NATS: NATSConfig{
			Subject: "fpv",
		},
		AppVersion:    "0.1.0",
		SchemaVersion: "1.0",
	}
}

// Load applies, in order: defaults, the YAML file at path (missing is fine
// unless path was given explicitly), a .env file in the working directory
// and finally environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	// godotenv never overrides variables that are already set
	_ = godotenv.Load()

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Ollama.Host = getEnv("OLLAMA_HOST", c.Ollama.Host)
	c.Ollama.Model = getEnv("OLLAMA_MODEL", c.Ollama.Model)
	c.Ollama.TimeoutSeconds = getEnvInt("OLLAMA_TIMEOUT", c.Ollama.TimeoutSeconds)
	c.Ollama.MaxRetries = getEnvInt("OLLAMA_MAX_RETRIES", c.Ollama.MaxRetries)
	c.Ollama.RetryBackoffMillis = int(getEnvDuration("OLLAMA_RETRY_BACKOFF",
		time.Duration(c.Ollama.RetryBackoffMillis)*time.Millisecond) / time.Millisecond)

	c.Crawler.Enabled = getEnvBool("CRAWLER_ENABLED", c.Crawler.Enabled)
	c.Crawler.Root = getEnv("CRAWLER_ROOT", c.Crawler.Root)
	c.Crawler.IntervalSeconds = getEnvInt("CRAWLER_INTERVAL", c.Crawler.IntervalSeconds)
	c.Crawler.PauseSeconds = getEnvInt("ANALYSIS_PAUSE_SECONDS", c.Crawler.PauseSeconds)
	c.Crawler.Watch = getEnvBool("CRAWLER_WATCH", c.Crawler.Watch)
	c.Crawler.FailureCooldownMinutes = int(getEnvDuration("CRAWLER_FAILURE_COOLDOWN",
		time.Duration(c.Crawler.FailureCooldownMinutes)*time.Minute) / time.Minute)
	c.Crawler.Queue = getEnv("CRAWLER_QUEUE", c.Crawler.Queue)

	c.Analysis.SampleInterval = getEnvFloat("FRAME_SAMPLE_INTERVAL", c.Analysis.SampleInterval)
	c.Analysis.SceneThreshold = getEnvFloat("SCENE_THRESHOLD", c.Analysis.SceneThreshold)
	c.Analysis.MaxFrames = getEnvInt("MAX_FRAMES_PER_VIDEO", c.Analysis.MaxFrames)
	c.Analysis.FrameWidth = getEnvInt("FRAME_WIDTH", c.Analysis.FrameWidth)
	c.Analysis.StaticThreshold = getEnvFloat("STATIC_THRESHOLD", c.Analysis.StaticThreshold)
	c.Analysis.MinStaticDuration = getEnvFloat("MIN_STATIC_DURATION", c.Analysis.MinStaticDuration)
	c.Analysis.DiffMetric = getEnv("STATIC_DIFF_METRIC", c.Analysis.DiffMetric)
	c.Analysis.HighlightScoreThreshold = getEnvInt("HIGHLIGHT_SCORE_THRESHOLD", c.Analysis.HighlightScoreThreshold)
	c.Analysis.HighlightMinDuration = getEnvFloat("HIGHLIGHT_MIN_DURATION", c.Analysis.HighlightMinDuration)
	c.Analysis.TagFrequencyThreshold = getEnvFloat("TAG_FREQUENCY_THRESHOLD", c.Analysis.TagFrequencyThreshold)

	c.API.Host = getEnv("API_HOST", c.API.Host)
	c.API.Port = getEnvInt("API_PORT", c.API.Port)

	c.Database.Type = getEnv("DB_TYPE", c.Database.Type)
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Subject = getEnv("NATS_SUBJECT", c.NATS.Subject)

	c.AppVersion = getEnv("APP_VERSION", c.AppVersion)
	c.SchemaVersion = getEnv("SCHEMA_VERSION", c.SchemaVersion)
}

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Ollama.Host != "", "ollama host is required")
	check(c.Ollama.Model != "", "ollama model is required")
	check(c.Ollama.TimeoutSeconds > 0, "ollama timeout must be positive, got %d", c.Ollama.TimeoutSeconds)
	check(c.Ollama.MaxRetries >= 0, "ollama max retries must not be negative, got %d", c.Ollama.MaxRetries)

	check(c.Crawler.IntervalSeconds > 0, "crawler interval must be positive, got %d", c.Crawler.IntervalSeconds)
	check(c.Crawler.PauseSeconds >= 0, "analysis pause must not be negative, got %d", c.Crawler.PauseSeconds)
	check(c.Crawler.FailureCooldownMinutes >= 0, "failure cooldown must not be negative")
	check(c.Crawler.Queue == "memory" || c.Crawler.Queue == "redis", "unknown crawler queue %q", c.Crawler.Queue)
	if c.Crawler.Enabled {
		check(c.Crawler.Root != "", "crawler root is required when the crawler is enabled")
	}

	a := c.Analysis
	check(a.SampleInterval > 0, "frame sample interval must be positive, got %g", a.SampleInterval)
	check(a.SceneThreshold > 0 && a.SceneThreshold < 1, "scene threshold must be in (0,1), got %g", a.SceneThreshold)
	check(a.MaxFrames >= 2, "max frames per video must be at least 2, got %d", a.MaxFrames)
	check(a.FrameWidth > 0, "frame width must be positive, got %d", a.FrameWidth)
	check(a.StaticThreshold > 0 && a.StaticThreshold < 1, "static threshold must be in (0,1), got %g", a.StaticThreshold)
	check(a.MinStaticDuration > 0, "min static duration must be positive, got %g", a.MinStaticDuration)
	check(a.DiffMetric == "ssim" || a.DiffMetric == "mad", "unknown diff metric %q", a.DiffMetric)
	check(a.HighlightScoreThreshold >= 1 && a.HighlightScoreThreshold <= 10,
		"highlight score threshold must be in 1..10, got %d", a.HighlightScoreThreshold)
	check(a.HighlightMinDuration >= 0, "highlight min duration must not be negative")
	check(a.TagFrequencyThreshold > 0 && a.TagFrequencyThreshold < 1,
		"tag frequency threshold must be in (0,1), got %g", a.TagFrequencyThreshold)

	check(c.API.Port > 0 && c.API.Port < 65536, "invalid api port %d", c.API.Port)
	check(c.Database.Type == "sqlite" || c.Database.Type == "postgres", "unknown database type %q", c.Database.Type)

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

func (o OllamaConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

func (o OllamaConfig) RetryBackoff() time.Duration {
	return time.Duration(o.RetryBackoffMillis) * time.Millisecond
}

func (c CrawlerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c CrawlerConfig) Pause() time.Duration {
	return time.Duration(c.PauseSeconds) * time.Second
}

func (c CrawlerConfig) FailureCooldown() time.Duration {
	return time.Duration(c.FailureCooldownMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
