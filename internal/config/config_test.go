package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://host.docker.internal:11434", cfg.Ollama.Host)
	assert.Equal(t, "llava:13b", cfg.Ollama.Model)
	assert.Equal(t, 300*time.Second, cfg.Ollama.Timeout())
	assert.False(t, cfg.Crawler.Enabled)
	assert.Equal(t, "/videos", cfg.Crawler.Root)
	assert.Equal(t, time.Hour, cfg.Crawler.Interval())
	assert.Equal(t, 30*time.Second, cfg.Crawler.Pause())
	assert.Equal(t, 6*time.Hour, cfg.Crawler.FailureCooldown())
	assert.Equal(t, 2.0, cfg.Analysis.SampleInterval)
	assert.Equal(t, 100, cfg.Analysis.MaxFrames)
	assert.Equal(t, 0.02, cfg.Analysis.StaticThreshold)
	assert.Equal(t, 7, cfg.Analysis.HighlightScoreThreshold)
	assert.Equal(t, "0.0.0.0:8420", cfg.Addr())
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "1.0", cfg.SchemaVersion)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
ollama:
  model: llava:7b
  max_retries: 2
crawler:
  enabled: true
  root: /mnt/fpv
  queue: redis
analysis:
  max_frames_per_video: 40
  diff_metric: mad
api:
  port: 9000
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	t.Setenv("OLLAMA_MODEL", "bakllava")
	t.Setenv("CRAWLER_INTERVAL", "600")
	t.Setenv("FRAME_SAMPLE_INTERVAL", "1.5")
	t.Setenv("CRAWLER_FAILURE_COOLDOWN", "90m")
	t.Setenv("OLLAMA_RETRY_BACKOFF", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bakllava", cfg.Ollama.Model, "env wins over yaml")
	assert.Equal(t, 2, cfg.Ollama.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Ollama.RetryBackoff())
	assert.True(t, cfg.Crawler.Enabled)
	assert.Equal(t, "/mnt/fpv", cfg.Crawler.Root)
	assert.Equal(t, "redis", cfg.Crawler.Queue)
	assert.Equal(t, 10*time.Minute, cfg.Crawler.Interval())
	assert.Equal(t, 90*time.Minute, cfg.Crawler.FailureCooldown())
	assert.Equal(t, 1.5, cfg.Analysis.SampleInterval)
	assert.Equal(t, 40, cfg.Analysis.MaxFrames)
	assert.Equal(t, "mad", cfg.Analysis.DiffMetric)
	assert.Equal(t, 9000, cfg.API.Port)
	assert.Equal(t, 0.4, cfg.Analysis.SceneThreshold, "untouched keys keep defaults")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "explicit path must exist")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("ollama: [unclosed"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	t.Setenv("STATIC_THRESHOLD", "1.5")
	_, err = Load("")
	assert.ErrorContains(t, err, "static threshold")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"zero interval", func(c *Config) { c.Crawler.IntervalSeconds = 0 }, "crawler interval"},
		{"tag threshold one", func(c *Config) { c.Analysis.TagFrequencyThreshold = 1 }, "tag frequency"},
		{"one frame", func(c *Config) { c.Analysis.MaxFrames = 1 }, "max frames"},
		{"unknown metric", func(c *Config) { c.Analysis.DiffMetric = "psnr" }, "diff metric"},
		{"unknown queue", func(c *Config) { c.Crawler.Queue = "kafka" }, "crawler queue"},
		{"unknown database", func(c *Config) { c.Database.Type = "mysql" }, "database type"},
		{"negative sample interval", func(c *Config) { c.Analysis.SampleInterval = -1 }, "sample interval"},
		{"enabled without root", func(c *Config) { c.Crawler.Enabled = true; c.Crawler.Root = "" }, "crawler root"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestGetEnvHelpersIgnoreGarbage(t *testing.T) {
	t.Setenv("X_INT", "abc")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_DUR", "soon")

	assert.Equal(t, 7, getEnvInt("X_INT", 7))
	assert.True(t, getEnvBool("X_BOOL", true))
	assert.Equal(t, time.Second, getEnvDuration("X_DUR", time.Second))
	assert.Equal(t, "fallback", getEnv("X_UNSET_FOR_TEST", "fallback"))
}
