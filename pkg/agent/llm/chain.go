package llm

import (
	"context"
)

// Middleware decorates an LLMClient.
type Middleware func(next LLMClient) LLMClient

// CompleteFunc is the signature of LLMClient.Complete.
type CompleteFunc func(context.Context, CompletionRequest) (CompletionResponse, error)

type wrapped struct {
	complete CompleteFunc
	model    func() string
}

func (w wrapped) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return w.complete(ctx, req)
}

func (w wrapped) GetModelName() string { return w.model() }

// WrapClient builds an LLMClient from its two methods. Middlewares use it to intercept
// Complete while forwarding the model name of the client they wrap.
func WrapClient(complete CompleteFunc, model func() string) LLMClient {
	return wrapped{complete: complete, model: model}
}

// Chain wraps base so that the first middleware sees each request first:
//
//	Chain(c, a, b) == a(b(c))
func Chain(base LLMClient, middlewares ...Middleware) LLMClient {
	for i := len(middlewares) - 1; i >= 0; i-- {
		base = middlewares[i](base)
	}
	return base
}
