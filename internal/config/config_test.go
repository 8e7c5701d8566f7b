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
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 6, cfg.Pipeline.Concurrency)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.StageTimeout)
	assert.Equal(t, 1, cfg.Pipeline.RetryBudget)
	assert.Equal(t, time.Second, cfg.Pipeline.RetryBackoff)
	assert.Equal(t, 3, cfg.Pipeline.PersistRetries)
	assert.Equal(t, time.Duration(0), cfg.Pipeline.JobDeadline)
	assert.Equal(t, 100, cfg.Pipeline.MaxPages)
	assert.Equal(t, ProviderOpenAI, cfg.Extractor.Provider)
	assert.Equal(t, "./data/objects", cfg.Storage.LocalRoot)
}

func TestLoadPipelineOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
pipeline:
  concurrency: 2
  stage_timeout: 5s
  retry_budget: 0
  job_deadline: 2m
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Pipeline.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.StageTimeout)
	assert.Equal(t, 0, cfg.Pipeline.RetryBudget)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.JobDeadline)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		p := ProviderConfig{Name: "x", Provider: ProviderOpenAI, Model: "m", BaseURL: "http://localhost"}
		return Config{
			Extractor:  p,
			Classifier: p,
			Summarizer: p,
			Pipeline: PipelineConfig{
				Concurrency:  6,
				StageTimeout: time.Minute,
				RetryBudget:  1,
				MaxPages:     100,
			},
		}
	}

	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero concurrency", mutate: func(c *Config) { c.Pipeline.Concurrency = 0 }, wantErr: true},
		{name: "zero stage timeout", mutate: func(c *Config) { c.Pipeline.StageTimeout = 0 }, wantErr: true},
		{name: "negative retry budget", mutate: func(c *Config) { c.Pipeline.RetryBudget = -1 }, wantErr: true},
		{name: "unknown provider", mutate: func(c *Config) { c.Classifier.Provider = "bogus" }, wantErr: true},
		{name: "vertex without base url", mutate: func(c *Config) {
			c.Summarizer.Provider = ProviderVertex
			c.Summarizer.BaseURL = ""
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProviderResolveEnvVars(t *testing.T) {
	t.Setenv("PAGEPIPE_TEST_KEY", "secret")
	c := ProviderConfig{Name: "x", Provider: ProviderOpenAI, Model: "m", BaseURL: "http://h", APIKeyEnv: "PAGEPIPE_TEST_KEY"}
	c.ResolveEnvVars()
	assert.Equal(t, "secret", c.APIKey)
	assert.NoError(t, c.ValidateWithAPIKey())

	direct := ProviderConfig{APIKey: "direct", APIKeyEnv: "PAGEPIPE_TEST_KEY"}
	direct.ResolveEnvVars()
	assert.Equal(t, "direct", direct.APIKey)
}
