package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Default model per provider.
const (
	ModelClaudeSonnetLatest = "claude-sonnet-4-5"
	ModelGPT4o              = "gpt-4o"
	ModelGeminiFlash        = "gemini-2.5-flash"
	ModelOllamaDefault      = "mistral-nemo:latest"
)

// Credential variables. Each is looked up in the decrypted secrets first, then the
// environment.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
	EnvGitHubToken     = "GITHUB_TOKEN"

	defaultOllamaHost = "http://localhost:11434"
)

// ModelInfo is the price and output limit of a model the tool knows about.
type ModelInfo struct {
	Provider        string
	InputCPM        float64 // USD per million prompt tokens
	OutputCPM       float64 // USD per million completion tokens
	MaxOutputTokens int
}

//nolint:gochecknoglobals // static model table
var KnownModels = map[string]ModelInfo{
	"claude-sonnet-4-5":        {ProviderAnthropic, 3.0, 15.0, 8192},
	"claude-sonnet-4-20250514": {ProviderAnthropic, 3.0, 15.0, 8192},
	"claude-haiku-4-5":         {ProviderAnthropic, 1.0, 5.0, 8192},
	"gpt-4o":                   {ProviderOpenAI, 2.5, 10.0, 4096},
	"gpt-4o-mini":              {ProviderOpenAI, 0.15, 0.6, 16384},
	"o4-mini":                  {ProviderOpenAI, 1.1, 4.4, 16384},
	"gemini-2.0-flash":         {ProviderGoogle, 0.10, 0.40, 8192},
	"gemini-2.5-flash":         {ProviderGoogle, 0.30, 2.50, 65536},
}

// providers lists, per provider, the credential it needs and the model-name prefixes
// that select it when the model is not in KnownModels. Ollama has no credential.
//
//nolint:gochecknoglobals // static table
var providers = []struct {
	name     string
	keyEnv   string
	prefixes []string
}{
	{ProviderAnthropic, EnvAnthropicAPIKey, []string{"claude"}},
	{ProviderOpenAI, EnvOpenAIAPIKey, []string{"gpt", "o1", "o3", "o4"}},
	{ProviderGoogle, EnvGoogleAPIKey, []string{"gemini"}},
	{ProviderOllama, "", []string{"ollama:", "llama", "qwen", "mistral", "phi", "deepseek"}},
}

// GetModelProvider resolves modelName through KnownModels, then by name prefix.
func GetModelProvider(modelName string) (string, error) {
	if info, ok := KnownModels[modelName]; ok {
		return info.Provider, nil
	}
	for _, p := range providers {
		for _, prefix := range p.prefixes {
			if strings.HasPrefix(modelName, prefix) {
				return p.name, nil
			}
		}
	}
	return "", fmt.Errorf("unknown model '%s': no known provider mapping or pattern match", modelName)
}

// CalculateCost prices one call in USD. Models missing from KnownModels cost nothing.
func CalculateCost(modelName string, promptTokens, completionTokens int) float64 {
	info, ok := KnownModels[modelName]
	if !ok {
		return 0
	}
	return (float64(promptTokens)*info.InputCPM + float64(completionTokens)*info.OutputCPM) / 1e6
}

// OllamaModelName strips the optional "ollama:" prefix.
func OllamaModelName(modelName string) string {
	return strings.TrimPrefix(modelName, "ollama:")
}

// GetAPIKey returns the credential for provider. For Ollama it is the server URL.
func GetAPIKey(provider string) (string, error) {
	if provider == ProviderOllama {
		if host := os.Getenv(EnvOllamaHost); host != "" {
			return host, nil
		}
		return defaultOllamaHost, nil
	}
	for _, p := range providers {
		if p.name != provider {
			continue
		}
		if key, err := GetSecret(p.keyEnv); err == nil {
			return key, nil
		}
		return "", fmt.Errorf("API key not found: %s not set in secrets file or environment", p.keyEnv)
	}
	return "", fmt.Errorf("unknown provider: %s", provider)
}

// GetGitHubToken returns "" when no token is configured; the issue tracker then makes
// anonymous requests.
func GetGitHubToken() string {
	token, _ := GetSecret(EnvGitHubToken)
	return token
}

// MissingCredentials lists the hosted-provider credentials that are not set.
func MissingCredentials() []string {
	var missing []string
	for _, p := range providers {
		if p.keyEnv == "" {
			continue
		}
		if _, err := GetSecret(p.keyEnv); err != nil {
			missing = append(missing, p.keyEnv)
		}
	}
	return missing
}
