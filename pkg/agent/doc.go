// Package agent connects the triage control loop to language models.
//
// LLMClientFactory picks a provider from the configured model name and wraps the raw
// client in the standard middleware chain (metrics, transport retry, per-call timeout,
// empty-reply guard). Decider turns such a client into a triage.DecisionMaker by mapping
// transcripts to provider-neutral completion requests and replies back to transcript
// messages.
//
// Provider implementations live under internal/llmimpl and are reachable only through
// the factory.
package agent
