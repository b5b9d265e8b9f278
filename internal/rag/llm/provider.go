package llm

import (
	"context"
	"fmt"

	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
)

// Request is a single-shot completion: one system prompt, one user prompt.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float32
}

// Invoker is the completion service used by the analysis stages. Adapters wrap
// provider failures in jobModel.ErrLLMInvocation.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, req Request) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

func InvocationError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", jobModel.ErrLLMInvocation, provider, err)
}
