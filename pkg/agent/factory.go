package agent

import (
	"fmt"

	"bugtriage/pkg/agent/internal/llmimpl/anthropic"
	"bugtriage/pkg/agent/internal/llmimpl/google"
	"bugtriage/pkg/agent/internal/llmimpl/ollama"
	"bugtriage/pkg/agent/internal/llmimpl/openaiofficial"
	"bugtriage/pkg/agent/llm"
	"bugtriage/pkg/agent/middleware/metrics"
	"bugtriage/pkg/agent/middleware/resilience/retry"
	"bugtriage/pkg/agent/middleware/resilience/timeout"
	"bugtriage/pkg/agent/middleware/validation"
	"bugtriage/pkg/config"
	"bugtriage/pkg/logx"
)

// LLMClientFactory creates LLM clients with properly configured middleware chains.
type LLMClientFactory struct {
	config   config.Config
	recorder metrics.Recorder
	logger   *logx.Logger
}

// NewLLMClientFactory creates a factory. A nil recorder disables LLM metrics.
func NewLLMClientFactory(cfg config.Config, recorder metrics.Recorder) *LLMClientFactory {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &LLMClientFactory{
		config:   cfg,
		recorder: recorder,
		logger:   logx.NewLogger("llm"),
	}
}

// CreateClient builds a client for the configured model.
func (f *LLMClientFactory) CreateClient() (llm.LLMClient, error) {
	if f.config.Model == nil || f.config.Model.Name == "" {
		return nil, fmt.Errorf("no model configured")
	}
	return f.CreateClientForModel(f.config.Model.Name)
}

// CreateClientForModel infers the provider from the model name, looks up its credential
// and wraps the raw client in the middleware chain.
func (f *LLMClientFactory) CreateClientForModel(modelName string) (llm.LLMClient, error) {
	provider, err := config.GetModelProvider(modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to determine provider for model %s: %w", modelName, err)
	}
	apiKey, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", provider, err)
	}
	raw, err := NewRawClient(provider, modelName, apiKey)
	if err != nil {
		return nil, err
	}
	f.logger.Info("Using %s via %s", modelName, provider)
	return f.Wrap(raw), nil
}

// NewRawClient constructs an unwrapped provider client. For Ollama, apiKey is the host URL.
func NewRawClient(provider, modelName, apiKey string) (llm.LLMClient, error) {
	switch provider {
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClientWithModel(apiKey, modelName), nil
	case config.ProviderOpenAI:
		return openaiofficial.NewOfficialClientWithModel(apiKey, modelName), nil
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(apiKey, modelName), nil
	case config.ProviderOllama:
		return ollama.NewOllamaClientWithModel(apiKey, config.OllamaModelName(modelName)), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// Wrap applies the middleware chain:
// Metrics -> Retry -> Timeout -> EmptyResponse -> raw client.
// Each retry attempt gets its own timeout.
func (f *LLMClientFactory) Wrap(raw llm.LLMClient) llm.LLMClient {
	retryCfg := retry.DefaultConfig
	llmTimeout := config.DefaultLLMTimeout
	if r := f.config.Resilience; r != nil {
		if r.Retry.MaxAttempts > 0 {
			retryCfg = retry.FromConfig(r.Retry)
		}
		llmTimeout = r.LLMTimeout
	}

	return llm.Chain(raw,
		metrics.Middleware(f.recorder, nil, f.logger),
		retry.Middleware(retry.NewPolicy(retryCfg, nil)),
		timeout.Middleware(llmTimeout),
		validation.EmptyResponse(),
	)
}
