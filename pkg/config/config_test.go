package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { SetConfigForTesting(nil) })

	require.NoError(t, LoadConfig(dir))

	_, err := os.Stat(filepath.Join(dir, ProjectConfigDir, ProjectConfigFilename))
	require.NoError(t, err, "default config should be written")

	cfg, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, cfg.Model.Name)
	assert.Equal(t, DefaultMaxRetries, cfg.Triage.MaxRetries)
	assert.Equal(t, DefaultTicketPrefix, cfg.Triage.TicketPrefix)
	assert.Equal(t, DefaultToolTimeout, cfg.Resilience.ToolTimeout)
	assert.Equal(t, filepath.Join(dir, ProjectConfigDir, "data"), cfg.Data.Dir)
	assert.Equal(t, filepath.Join(dir, ProjectConfigDir, "data", "tickets.json"), cfg.Data.TicketsPath())
	assert.Equal(t, dir, GetProjectDir())
}

func TestLoadConfigKeepsUserValues(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { SetConfigForTesting(nil) })

	path := filepath.Join(dir, ProjectConfigDir, ProjectConfigFilename)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(`{
		"model": {"name": "gpt-4o"},
		"triage": {"max_retries": 1, "ticket_prefix": "BUG"},
		"data": {"dir": "/srv/triage"}
	}`), 0644))

	require.NoError(t, LoadConfig(dir))
	cfg, err := GetConfig()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.Model.Name)
	assert.Equal(t, 1, cfg.Triage.MaxRetries)
	assert.Equal(t, "BUG", cfg.Triage.TicketPrefix)
	assert.Equal(t, "/srv/triage", cfg.Data.Dir)
	assert.Equal(t, DefaultLLMTimeout, cfg.Resilience.LLMTimeout)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unparseable", `{"model": `},
		{"unknown model", `{"model": {"name": "mystery-7b"}}`},
		{"negative retries", `{"triage": {"max_retries": -1}}`},
		{"dashed prefix", `{"triage": {"ticket_prefix": "A-B"}}`},
		{"github without repo", `{"github": {"enabled": true, "owner": "acme"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestGetConfigBeforeLoad(t *testing.T) {
	SetConfigForTesting(nil)
	_, err := GetConfig()
	assert.Error(t, err)
}

func TestSetConfigForTestingAppliesDefaults(t *testing.T) {
	t.Cleanup(func() { SetConfigForTesting(nil) })

	SetConfigForTesting(&Config{Triage: &TriageConfig{MaxRetries: 5}})
	cfg, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Triage.MaxRetries)
	assert.Equal(t, 3, cfg.Resilience.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Resilience.Retry.InitialDelay)
}

func TestGetModelProvider(t *testing.T) {
	tests := []struct {
		model    string
		provider string
	}{
		{"claude-sonnet-4-5", ProviderAnthropic},
		{"claude-3-opus", ProviderAnthropic},
		{"gpt-4o", ProviderOpenAI},
		{"o4-mini", ProviderOpenAI},
		{"gemini-2.5-flash", ProviderGoogle},
		{"mistral-nemo:latest", ProviderOllama},
		{"ollama:phi4", ProviderOllama},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			got, err := GetModelProvider(tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.provider, got)
		})
	}

	_, err := GetModelProvider("unknown-model")
	assert.Error(t, err)
}

func TestCalculateCost(t *testing.T) {
	assert.InDelta(t, 3.0+15.0, CalculateCost("claude-sonnet-4-5", 1_000_000, 1_000_000), 1e-9)
	assert.Zero(t, CalculateCost("llama3", 1000, 1000))
}

func TestGetAPIKeyPrecedence(t *testing.T) {
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	t.Setenv(EnvAnthropicAPIKey, "env-key")

	key, err := GetAPIKey(ProviderAnthropic)
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)

	SetSecret(EnvAnthropicAPIKey, "file-key")
	key, err = GetAPIKey(ProviderAnthropic)
	require.NoError(t, err)
	assert.Equal(t, "file-key", key)

	t.Setenv(EnvOpenAIAPIKey, "")
	_, err = GetAPIKey(ProviderOpenAI)
	assert.Error(t, err)

	_, err = GetAPIKey("acme")
	assert.Error(t, err)
}

func TestMissingCredentials(t *testing.T) {
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	SetDecryptedSecrets(nil)
	t.Setenv(EnvAnthropicAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")
	t.Setenv(EnvGoogleAPIKey, "")
	assert.Equal(t, []string{EnvAnthropicAPIKey, EnvOpenAIAPIKey, EnvGoogleAPIKey}, MissingCredentials())

	SetSecret(EnvOpenAIAPIKey, "sk-test")
	assert.Equal(t, []string{EnvAnthropicAPIKey, EnvGoogleAPIKey}, MissingCredentials())
}

func TestGetAPIKeyOllamaHost(t *testing.T) {
	t.Setenv(EnvOllamaHost, "")
	host, err := GetAPIKey(ProviderOllama)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434", host)

	t.Setenv(EnvOllamaHost, "http://gpu-box:11434")
	host, err = GetAPIKey(ProviderOllama)
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:11434", host)
}
