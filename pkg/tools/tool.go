// Package tools provides the triage tool catalog: the record searches and ticket creation
// the decision-maker may call, with their LLM-facing definitions.
package tools

import (
	"context"
	"errors"
	"fmt"
)

// Tool names.
const (
	ToolTicketSearch = "ticket_search"
	ToolChatSearch   = "chat_search"
	ToolIssueSearch  = "issue_search"
	ToolTicketCreate = "ticket_create"
)

var (
	// ErrInvalidArguments means the caller supplied missing or malformed arguments.
	ErrInvalidArguments = errors.New("invalid tool arguments")
	// ErrUnknownTool means no tool with the requested name is registered.
	ErrUnknownTool = errors.New("unknown tool")
)

// Tool is a named callable exposed to the decision-maker.
type Tool interface {
	Name() string
	// PromptDocumentation is a short markdown entry for system prompts.
	PromptDocumentation() string
	// Definition describes the tool for provider tool-calling APIs.
	Definition() ToolDefinition
	// Exec runs the tool. An error return is an infrastructure failure; data problems
	// are reported in the result text.
	Exec(ctx context.Context, args map[string]any) (*ExecResult, error)
}

// ToolDefinition is the provider-neutral tool description.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// InputSchema is a JSON-schema object describing tool arguments.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes one argument.
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Default     string               `json:"default,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
}

// ExecResult is the text handed back to the decision-maker.
type ExecResult struct {
	Content string `json:"content"`
}

// stringArg returns a non-empty string argument or an ErrInvalidArguments error.
func stringArg(args map[string]any, name string) (string, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidArguments, name)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidArguments, name, raw)
	}
	if s == "" {
		return "", fmt.Errorf("%w: %s must not be empty", ErrInvalidArguments, name)
	}
	return s, nil
}

// optionalStringArg returns the argument or fallback when absent or empty.
func optionalStringArg(args map[string]any, name, fallback string) (string, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return fallback, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidArguments, name, raw)
	}
	if s == "" {
		return fallback, nil
	}
	return s, nil
}

func queryDefinition(name, description, example string) ToolDefinition {
	return ToolDefinition{
		Name:        name,
		Description: description,
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"query": {
					Type:        "string",
					Description: "Keywords describing the reported problem (e.g., '" + example + "')",
				},
			},
			Required: []string{"query"},
		},
	}
}
