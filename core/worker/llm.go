package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/kairoai/engine/core/errors"
	"github.com/kairoai/engine/core/intent"
)

// Backend is the opaque language-model collaborator. Generate is fallible
// with network and quota errors; the worker classifies them before
// surfacing.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMWorker executes language tasks through a Backend.
type LLMWorker struct {
	id           string
	capabilities []intent.Capability
	backend      Backend
	systemPrompt string
}

// NewLLMWorker creates a worker over the given backend.
func NewLLMWorker(id string, capabilities []intent.Capability, backend Backend, systemPrompt string) *LLMWorker {
	return &LLMWorker{
		id:           id,
		capabilities: capabilities,
		backend:      backend,
		systemPrompt: systemPrompt,
	}
}

// ID returns the worker identifier.
func (w *LLMWorker) ID() string {
	return w.id
}

// Capabilities returns the served capabilities.
func (w *LLMWorker) Capabilities() []intent.Capability {
	return w.capabilities
}

// Execute generates a completion for the request. Backend failures are
// classified as retryable (timeouts, rate limits, transient network errors)
// or permanent before being surfaced to the coordinator.
func (w *LLMWorker) Execute(ctx context.Context, req Request) (*Result, error) {
	output, err := w.backend.Generate(ctx, w.buildPrompt(req))
	if err != nil {
		return nil, w.classify(err)
	}

	return &Result{
		Output:       output,
		QualityScore: qualityFromOutput(output),
		NetworkCalls: 1,
	}, nil
}

func (w *LLMWorker) buildPrompt(req Request) string {
	var b strings.Builder
	if w.systemPrompt != "" {
		b.WriteString(w.systemPrompt)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Capability: %s\nTask: %s\n", req.Capability, req.Description)
	if len(req.Restrictions) > 0 {
		fmt.Fprintf(&b, "Restrictions: %s\n", strings.Join(req.Restrictions, ", "))
	}
	return b.String()
}

func (w *LLMWorker) classify(err error) error {
	if errors.IsTransient(err) {
		return errors.MarkRetryable(fmt.Errorf("llm backend: %w", err))
	}
	return errors.MarkPermanent(fmt.Errorf("llm backend: %w", err))
}

// qualityFromOutput is a crude self-assessment: empty output scores zero,
// short output half, anything substantial full marks. Workers with real
// evaluation replace this.
func qualityFromOutput(output string) float64 {
	trimmed := strings.TrimSpace(output)
	switch {
	case trimmed == "":
		return 0
	case len(trimmed) < 40:
		return 0.5
	default:
		return 1.0
	}
}
